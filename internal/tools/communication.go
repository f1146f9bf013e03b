// ABOUTME: Communication tools for sending and scheduling channel messages
// ABOUTME: Test mode records the message without touching any transport

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tommyyliu/everlight-agents/internal/comms"
)

// TestModeResult is returned by send_message when test mode is active.
const TestModeResult = "Message recorded (test mode; not sent to external queue)."

// CommunicationPack returns the channel messaging tools.
func CommunicationPack() []*Tool {
	return []*Tool{
		{
			Definition: Definition{
				Name:            "send_message_tool",
				Description:     "Send a message to a channel",
				InputSchemaJSON: `{"type":"object","properties":{"channel":{"type":"string"},"message":{"type":"string"}},"required":["channel","message"]}`,
			},
			Handler: sendMessage,
		},
		{
			Definition: Definition{
				Name:            "schedule_message",
				Description:     "Schedule a message to be sent to a channel at a specific time",
				InputSchemaJSON: `{"type":"object","properties":{"channel":{"type":"string"},"message":{"type":"string"},"run_at":{"type":"string","format":"date-time"}},"required":["channel","message","run_at"]}`,
			},
			Handler: scheduleMessage,
		},
	}
}

type sendMessageInput struct {
	Channel string `json:"channel"`
	Message string `json:"message"`
}

func sendMessage(ctx context.Context, tc *Context, input json.RawMessage) (string, error) {
	var in sendMessageInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("parsing input: %w", err)
	}

	if tc.Testing {
		return TestModeResult, nil
	}

	result := tc.Dispatcher.Send(ctx, comms.SendRequest{
		UserID:  tc.UserID,
		Channel: in.Channel,
		Message: in.Message,
		Sender:  tc.AgentName,
	})
	if result.Status != comms.StatusSent {
		return fmt.Sprintf("Error sending message: %s", result.Reason), nil
	}
	return "Message sent.", nil
}

type scheduleMessageInput struct {
	Channel string    `json:"channel"`
	Message string    `json:"message"`
	RunAt   time.Time `json:"run_at"`
}

func scheduleMessage(ctx context.Context, tc *Context, input json.RawMessage) (string, error) {
	var in scheduleMessageInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("parsing input: %w", err)
	}

	if tc.Testing {
		return TestModeResult, nil
	}

	result := tc.Dispatcher.Send(ctx, comms.SendRequest{
		UserID:  tc.UserID,
		Channel: in.Channel,
		Message: in.Message,
		Sender:  tc.AgentName,
		RunAt:   &in.RunAt,
	})
	if result.Status != comms.StatusSent {
		return fmt.Sprintf("Error scheduling message: %s", result.Reason), nil
	}
	return fmt.Sprintf("Message scheduled for %s.", in.RunAt.UTC().Format(time.RFC3339)), nil
}

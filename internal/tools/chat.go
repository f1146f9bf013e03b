// ABOUTME: Chat tools: agent-to-agent DMs, self DMs, histories, listing
// ABOUTME: Conversations are ensured on use; sends also notify a channel

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tommyyliu/everlight-agents/internal/comms"
	"github.com/tommyyliu/everlight-agents/internal/store"
)

// ChatPack returns the conversation tools.
func ChatPack() []*Tool {
	return []*Tool{
		{
			Definition: Definition{
				Name:            "list_conversations",
				Description:     "List conversations for the user",
				InputSchemaJSON: `{"type":"object","properties":{"kind":{"type":"string","enum":["dm","self"]}}}`,
			},
			Handler: listConversations,
		},
		{
			Definition: Definition{
				Name:            "fetch_dm_history",
				Description:     "Fetch direct message history with another agent",
				InputSchemaJSON: `{"type":"object","properties":{"with_agent":{"type":"string"},"limit":{"type":"integer"},"before":{"type":"string","format":"date-time"},"after":{"type":"string","format":"date-time"}},"required":["with_agent"]}`,
			},
			Handler: fetchDMHistory,
		},
		{
			Definition: Definition{
				Name:            "fetch_self_dm_history",
				Description:     "Fetch the agent's own self-conversation history",
				InputSchemaJSON: `{"type":"object","properties":{"limit":{"type":"integer"},"before":{"type":"string","format":"date-time"},"after":{"type":"string","format":"date-time"}}}`,
			},
			Handler: fetchSelfDMHistory,
		},
		{
			Definition: Definition{
				Name:            "send_dm_to",
				Description:     "Send a direct message to another agent",
				InputSchemaJSON: `{"type":"object","properties":{"target_agent":{"type":"string"},"content":{"type":"string"},"run_at":{"type":"string","format":"date-time"}},"required":["target_agent","content"]}`,
			},
			Handler: sendDMTo,
		},
		{
			Definition: Definition{
				Name:            "send_self_dm",
				Description:     "Send a message to the agent's own self conversation",
				InputSchemaJSON: `{"type":"object","properties":{"content":{"type":"string"},"run_at":{"type":"string","format":"date-time"}},"required":["content"]}`,
			},
			Handler: sendSelfDM,
		},
	}
}

// memberNames resolves the member agent names for a conversation, keyed
// by agent ID for sender attribution.
func memberNames(ctx context.Context, tc *Context, conversationID uuid.UUID) (map[uuid.UUID]string, []string, error) {
	members, err := tc.Store.ListConversationMembers(ctx, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("listing members: %w", err)
	}

	byID := make(map[uuid.UUID]string, len(members))
	var names []string
	for _, m := range members {
		agent, err := tc.Store.GetAgent(ctx, m.AgentID)
		if err != nil {
			return nil, nil, fmt.Errorf("resolving member %s: %w", m.AgentID, err)
		}
		byID[agent.ID] = agent.Name
		names = append(names, agent.Name)
	}
	return byID, names, nil
}

type listConversationsInput struct {
	Kind string `json:"kind"`
}

func listConversations(ctx context.Context, tc *Context, input json.RawMessage) (string, error) {
	var in listConversationsInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return "", fmt.Errorf("parsing input: %w", err)
		}
	}

	conversations, err := tc.Store.ListConversations(ctx, tc.UserID, in.Kind)
	if err != nil {
		return "", fmt.Errorf("listing conversations: %w", err)
	}
	if len(conversations) == 0 {
		return "No conversations found.", nil
	}

	var lines []string
	for _, c := range conversations {
		_, names, err := memberNames(ctx, tc, c.ID)
		if err != nil {
			return "", err
		}

		lastAt := "no messages yet"
		if t, err := tc.Store.LastChatMessageAt(ctx, c.ID); err != nil {
			return "", fmt.Errorf("fetching last message time: %w", err)
		} else if t != nil {
			lastAt = t.Format(time.RFC3339)
		}

		lines = append(lines,
			fmt.Sprintf("Conversation: %s (id: %s)", c.Name, c.ID),
			fmt.Sprintf("Members: %s", strings.Join(names, ", ")),
			fmt.Sprintf("Last message: %s", lastAt),
			"---",
		)
	}
	return strings.Join(lines, "\n"), nil
}

type fetchDMHistoryInput struct {
	WithAgent string     `json:"with_agent"`
	Limit     int        `json:"limit"`
	Before    *time.Time `json:"before"`
	After     *time.Time `json:"after"`
}

func fetchDMHistory(ctx context.Context, tc *Context, input json.RawMessage) (string, error) {
	in := fetchDMHistoryInput{Limit: 50}
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("parsing input: %w", err)
	}

	me, err := tc.me(ctx)
	if err != nil {
		return agentsNotFound(err)
	}
	other, err := tc.Store.GetAgentByName(ctx, tc.UserID, in.WithAgent)
	if err != nil {
		return agentsNotFound(err)
	}

	convo, err := tc.Directory.EnsureDM(ctx, tc.UserID, me, other)
	if err != nil {
		return "", fmt.Errorf("ensuring conversation: %w", err)
	}

	return renderHistory(ctx, tc, convo, store.ChatMessageFilter{
		Limit:  in.Limit,
		Before: in.Before,
		After:  in.After,
	})
}

type fetchSelfHistoryInput struct {
	Limit  int        `json:"limit"`
	Before *time.Time `json:"before"`
	After  *time.Time `json:"after"`
}

func fetchSelfDMHistory(ctx context.Context, tc *Context, input json.RawMessage) (string, error) {
	in := fetchSelfHistoryInput{Limit: 50}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return "", fmt.Errorf("parsing input: %w", err)
		}
	}

	me, err := tc.me(ctx)
	if err != nil {
		return agentNotFound(err)
	}

	convo, err := tc.Directory.EnsureSelf(ctx, tc.UserID, me)
	if err != nil {
		return "", fmt.Errorf("ensuring conversation: %w", err)
	}

	return renderHistory(ctx, tc, convo, store.ChatMessageFilter{
		Limit:  in.Limit,
		Before: in.Before,
		After:  in.After,
	})
}

// renderHistory formats a conversation header followed by its messages in
// ascending order.
func renderHistory(ctx context.Context, tc *Context, convo *store.Conversation, filter store.ChatMessageFilter) (string, error) {
	byID, names, err := memberNames(ctx, tc, convo.ID)
	if err != nil {
		return "", err
	}

	lines := []string{
		fmt.Sprintf("Conversation: %s (id: %s)", convo.Name, convo.ID),
		fmt.Sprintf("Members: %s", strings.Join(names, ", ")),
		"---",
		"Messages:",
	}

	msgs, err := tc.Store.ListChatMessages(ctx, convo.ID, filter)
	if err != nil {
		return "", fmt.Errorf("listing chat messages: %w", err)
	}
	for _, m := range msgs {
		sender, ok := byID[m.SenderAgentID]
		if !ok {
			sender = "unknown"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", m.CreatedAt.Format(time.RFC3339), sender, m.Content))
	}
	return strings.Join(lines, "\n"), nil
}

type sendDMInput struct {
	TargetAgent string     `json:"target_agent"`
	Content     string     `json:"content"`
	RunAt       *time.Time `json:"run_at"`
}

func sendDMTo(ctx context.Context, tc *Context, input json.RawMessage) (string, error) {
	var in sendDMInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("parsing input: %w", err)
	}

	me, err := tc.me(ctx)
	if err != nil {
		return agentsNotFound(err)
	}
	other, err := tc.Store.GetAgentByName(ctx, tc.UserID, in.TargetAgent)
	if err != nil {
		return agentsNotFound(err)
	}

	convo, err := tc.Directory.EnsureDM(ctx, tc.UserID, me, other)
	if err != nil {
		return "", fmt.Errorf("ensuring conversation: %w", err)
	}

	return deliverChatMessage(ctx, tc, convo, me, other.Name, in.Content, in.RunAt)
}

type sendSelfInput struct {
	Content string     `json:"content"`
	RunAt   *time.Time `json:"run_at"`
}

func sendSelfDM(ctx context.Context, tc *Context, input json.RawMessage) (string, error) {
	var in sendSelfInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("parsing input: %w", err)
	}

	me, err := tc.me(ctx)
	if err != nil {
		return agentNotFound(err)
	}

	convo, err := tc.Directory.EnsureSelf(ctx, tc.UserID, me)
	if err != nil {
		return "", fmt.Errorf("ensuring conversation: %w", err)
	}

	return deliverChatMessage(ctx, tc, convo, me, me.Name, in.Content, in.RunAt)
}

// deliverChatMessage persists the chat row then notifies the target's
// private channel (the lower-cased agent name). Test mode skips the
// notification entirely.
func deliverChatMessage(ctx context.Context, tc *Context, convo *store.Conversation, me *store.Agent, targetName, content string, runAt *time.Time) (string, error) {
	msg := &store.ChatMessage{
		ConversationID: convo.ID,
		SenderAgentID:  me.ID,
		Content:        content,
		ContentType:    "text",
	}
	if err := tc.Store.SaveChatMessage(ctx, msg); err != nil {
		return "", fmt.Errorf("saving chat message: %w", err)
	}

	if !tc.Testing {
		tc.Dispatcher.Send(ctx, comms.SendRequest{
			UserID:  tc.UserID,
			Channel: strings.ToLower(targetName),
			Message: content,
			Sender:  me.Name,
			RunAt:   runAt,
		})
	}

	return fmt.Sprintf("Sent to %s (conversation_id=%s).", convo.Name, convo.ID), nil
}

// agentsNotFound maps a missing-agent lookup to the tool's string result;
// anything else is an infrastructure error.
func agentsNotFound(err error) (string, error) {
	if errors.Is(err, store.ErrNotFound) {
		return "Error: one or both agents not found.", nil
	}
	return "", fmt.Errorf("looking up agent: %w", err)
}

func agentNotFound(err error) (string, error) {
	if errors.Is(err, store.ErrNotFound) {
		return "Error: agent not found.", nil
	}
	return "", fmt.Errorf("looking up agent: %w", err)
}

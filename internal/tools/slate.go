// ABOUTME: Slate tools: read and update the user's single living slate
// ABOUTME: The slate is one mutable document per user, upserted in place

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tommyyliu/everlight-agents/internal/store"
)

// SlatePack returns the living slate tools.
func SlatePack() []*Tool {
	return []*Tool{
		{
			Definition: Definition{
				Name:            "read_slate",
				Description:     "Read the current content of the user's living slate",
				InputSchemaJSON: `{"type":"object","properties":{}}`,
			},
			Handler: readSlate,
		},
		{
			Definition: Definition{
				Name:            "update_slate",
				Description:     "Update the user's living slate with new content",
				InputSchemaJSON: `{"type":"object","properties":{"content":{"type":"string"}},"required":["content"]}`,
			},
			Handler: updateSlate,
		},
	}
}

func readSlate(ctx context.Context, tc *Context, _ json.RawMessage) (string, error) {
	slate, err := tc.Store.GetSlate(ctx, tc.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return "The slate is currently empty.", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading slate: %w", err)
	}
	return slate.Content, nil
}

type updateSlateInput struct {
	Content string `json:"content"`
}

func updateSlate(ctx context.Context, tc *Context, input json.RawMessage) (string, error) {
	var in updateSlateInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("parsing input: %w", err)
	}

	if err := tc.Store.UpsertSlate(ctx, tc.UserID, in.Content); err != nil {
		return "", fmt.Errorf("updating slate: %w", err)
	}
	return "Slate updated successfully.", nil
}

// ABOUTME: Brief tools: list and create scheduled daily briefs
// ABOUTME: utc_date defaults to the day of display_at when omitted

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tommyyliu/everlight-agents/internal/store"
)

// BriefPack returns the brief management tools.
func BriefPack() []*Tool {
	return []*Tool{
		{
			Definition: Definition{
				Name:            "list_user_briefs",
				Description:     "List existing briefs for the user to review before creating new ones",
				InputSchemaJSON: `{"type":"object","properties":{"target_date":{"type":"string","format":"date"},"include_dismissed":{"type":"boolean"}}}`,
			},
			Handler: listUserBriefs,
		},
		{
			Definition: Definition{
				Name:            "create_brief",
				Description:     "Create a new brief for the user",
				InputSchemaJSON: `{"type":"object","properties":{"title":{"type":"string"},"content":{"type":"string"},"display_at":{"type":"string","format":"date-time"},"utc_date":{"type":"string","format":"date"}},"required":["title","content","display_at"]}`,
			},
			Handler: createBrief,
		},
	}
}

const dateLayout = "2006-01-02"

type listBriefsInput struct {
	TargetDate       string `json:"target_date"`
	IncludeDismissed bool   `json:"include_dismissed"`
}

func listUserBriefs(ctx context.Context, tc *Context, input json.RawMessage) (string, error) {
	var in listBriefsInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return "", fmt.Errorf("parsing input: %w", err)
		}
	}

	target := tc.now().UTC().Truncate(24 * time.Hour)
	if in.TargetDate != "" {
		parsed, err := time.Parse(dateLayout, in.TargetDate)
		if err != nil {
			return fmt.Sprintf("Error: target_date '%s' is not a valid date (expected YYYY-MM-DD)", in.TargetDate), nil
		}
		target = parsed
	}

	briefs, err := tc.Store.ListBriefs(ctx, tc.UserID, target, in.IncludeDismissed)
	if err != nil {
		return "", fmt.Errorf("listing briefs: %w", err)
	}
	if len(briefs) == 0 {
		return fmt.Sprintf("No briefs found for %s.", target.Format(dateLayout)), nil
	}

	lines := []string{fmt.Sprintf("Existing briefs for %s:", target.Format(dateLayout))}
	for _, b := range briefs {
		status := ""
		if b.DismissedAt != nil {
			status = " (dismissed)"
		}
		lines = append(lines, fmt.Sprintf("- %s: '%s'%s\n  Content: %s",
			b.DisplayAt.Format("15:04"), b.Title, status, preview(b.Content, 100)))
	}
	return strings.Join(lines, "\n"), nil
}

type createBriefInput struct {
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	DisplayAt time.Time `json:"display_at"`
	UTCDate   string    `json:"utc_date"`
}

func createBrief(ctx context.Context, tc *Context, input json.RawMessage) (string, error) {
	var in createBriefInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("parsing input: %w", err)
	}

	utcDate := in.DisplayAt.UTC().Truncate(24 * time.Hour)
	if in.UTCDate != "" {
		parsed, err := time.Parse(dateLayout, in.UTCDate)
		if err != nil {
			return fmt.Sprintf("Error: utc_date '%s' is not a valid date (expected YYYY-MM-DD)", in.UTCDate), nil
		}
		utcDate = parsed
	}

	brief := &store.Brief{
		UserID:    tc.UserID,
		UTCDate:   utcDate,
		Title:     in.Title,
		Content:   in.Content,
		DisplayAt: in.DisplayAt,
	}
	if err := tc.Store.CreateBrief(ctx, brief); err != nil {
		return "", fmt.Errorf("creating brief: %w", err)
	}

	return fmt.Sprintf("Brief '%s' created successfully for %s at %s.",
		in.Title, utcDate.Format(dateLayout), in.DisplayAt.Format("15:04")), nil
}

// ABOUTME: Data tools for searching and browsing raw ingested entries
// ABOUTME: Long content is truncated to previews for agent consumption

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DataPack returns the raw-entry search tools.
func DataPack() []*Tool {
	return []*Tool{
		{
			Definition: Definition{
				Name:            "search_raw_entries",
				Description:     "Search past raw entries using semantic similarity",
				InputSchemaJSON: `{"type":"object","properties":{"query":{"type":"string"},"limit":{"type":"integer"},"source_filter":{"type":"string"}},"required":["query"]}`,
			},
			Handler: searchRawEntries,
		},
		{
			Definition: Definition{
				Name:            "get_recent_raw_entries",
				Description:     "Get recent raw entries for context",
				InputSchemaJSON: `{"type":"object","properties":{"limit":{"type":"integer"}}}`,
			},
			Handler: getRecentRawEntries,
		},
	}
}

// preview truncates to at most max runes, never splitting a multi-byte
// character.
func preview(content string, max int) string {
	runes := []rune(content)
	if len(runes) > max {
		return string(runes[:max]) + "..."
	}
	return content
}

type rawEntrySearchInput struct {
	Query        string `json:"query"`
	Limit        int    `json:"limit"`
	SourceFilter string `json:"source_filter"`
}

func searchRawEntries(ctx context.Context, tc *Context, input json.RawMessage) (string, error) {
	in := rawEntrySearchInput{Limit: 10}
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("parsing input: %w", err)
	}

	vec, err := tc.Embedder.Embed(ctx, in.Query)
	if err != nil {
		return "", fmt.Errorf("embedding query: %w", err)
	}

	results, err := tc.Store.SearchRawEntries(ctx, tc.UserID, vec, in.Limit, in.SourceFilter)
	if err != nil {
		return "", fmt.Errorf("searching raw entries: %w", err)
	}
	if len(results) == 0 {
		return "No relevant raw entries found.", nil
	}

	var lines []string
	for _, entry := range results {
		lines = append(lines, fmt.Sprintf("ID: %s\nSource: %s\nCreated: %s\nContent: %s\n---",
			entry.ID, entry.Source, entry.CreatedAt.Format(time.RFC3339), preview(entry.Content, 300)))
	}
	return strings.Join(lines, "\n"), nil
}

type recentRawEntriesInput struct {
	Limit int `json:"limit"`
}

func getRecentRawEntries(ctx context.Context, tc *Context, input json.RawMessage) (string, error) {
	in := recentRawEntriesInput{Limit: 20}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return "", fmt.Errorf("parsing input: %w", err)
		}
	}

	results, err := tc.Store.ListRecentRawEntries(ctx, tc.UserID, in.Limit)
	if err != nil {
		return "", fmt.Errorf("listing raw entries: %w", err)
	}
	if len(results) == 0 {
		return "No recent raw entries found.", nil
	}

	var lines []string
	for _, entry := range results {
		lines = append(lines, fmt.Sprintf("Source: %s | Created: %s\nContent: %s\n---",
			entry.Source, entry.CreatedAt.Format(time.RFC3339), preview(entry.Content, 200)))
	}
	return strings.Join(lines, "\n"), nil
}

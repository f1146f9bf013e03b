// ABOUTME: Note tools: create, update, semantic search, title listing
// ABOUTME: Content is embedded on every write so search stays current

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tommyyliu/everlight-agents/internal/store"
)

// NotesPack returns the note management tools.
func NotesPack() []*Tool {
	return []*Tool{
		{
			Definition: Definition{
				Name:            "create_note",
				Description:     "Create and store a structured summary with semantic embedding",
				InputSchemaJSON: `{"type":"object","properties":{"title":{"type":"string"},"content":{"type":"string"}},"required":["title","content"]}`,
			},
			Handler: createNote,
		},
		{
			Definition: Definition{
				Name:            "update_note",
				Description:     "Update an existing note's content and optionally title",
				InputSchemaJSON: `{"type":"object","properties":{"note_id":{"type":"string"},"content":{"type":"string"},"title":{"type":"string"}},"required":["note_id","content"]}`,
			},
			Handler: updateNote,
		},
		{
			Definition: Definition{
				Name:            "search_notes",
				Description:     "Search existing summaries using semantic similarity",
				InputSchemaJSON: `{"type":"object","properties":{"query":{"type":"string"},"limit":{"type":"integer"}},"required":["query"]}`,
			},
			Handler: searchNotes,
		},
		{
			Definition: Definition{
				Name:            "get_note_titles",
				Description:     "Retrieve all notes for organizational overview",
				InputSchemaJSON: `{"type":"object","properties":{}}`,
			},
			Handler: getNoteTitles,
		},
	}
}

type createNoteInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func createNote(ctx context.Context, tc *Context, input json.RawMessage) (string, error) {
	var in createNoteInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("parsing input: %w", err)
	}

	me, err := tc.me(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Sprintf("Error: Agent %s not found for user", tc.AgentName), nil
		}
		return "", fmt.Errorf("looking up agent: %w", err)
	}

	vec, err := tc.Embedder.Embed(ctx, in.Content)
	if err != nil {
		return "", fmt.Errorf("embedding note content: %w", err)
	}

	note := &store.Note{
		UserID:    tc.UserID,
		OwnerID:   me.ID,
		Title:     in.Title,
		Content:   in.Content,
		Embedding: vec,
	}
	if err := tc.Store.CreateNote(ctx, note); err != nil {
		return "", fmt.Errorf("creating note: %w", err)
	}

	return fmt.Sprintf("Note created successfully with ID: %s", note.ID), nil
}

type updateNoteInput struct {
	NoteID  string  `json:"note_id"`
	Content string  `json:"content"`
	Title   *string `json:"title"`
}

func updateNote(ctx context.Context, tc *Context, input json.RawMessage) (string, error) {
	var in updateNoteInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("parsing input: %w", err)
	}

	noteID, err := uuid.Parse(in.NoteID)
	if err != nil {
		return fmt.Sprintf("Error: note_id '%s' is not a valid UUID", in.NoteID), nil
	}

	note, err := tc.Store.GetNote(ctx, tc.UserID, noteID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Sprintf("Error: Note %s not found for user", in.NoteID), nil
		}
		return "", fmt.Errorf("fetching note: %w", err)
	}

	note.Content = in.Content
	if in.Title != nil {
		note.Title = *in.Title
	}

	vec, err := tc.Embedder.Embed(ctx, in.Content)
	if err != nil {
		return "", fmt.Errorf("embedding note content: %w", err)
	}
	note.Embedding = vec

	if err := tc.Store.UpdateNote(ctx, note); err != nil {
		return "", fmt.Errorf("updating note: %w", err)
	}
	return fmt.Sprintf("Note %s updated successfully.", note.ID), nil
}

type noteSearchInput struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func searchNotes(ctx context.Context, tc *Context, input json.RawMessage) (string, error) {
	in := noteSearchInput{Limit: 5}
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("parsing input: %w", err)
	}

	vec, err := tc.Embedder.Embed(ctx, in.Query)
	if err != nil {
		return "", fmt.Errorf("embedding query: %w", err)
	}

	results, err := tc.Store.SearchNotes(ctx, tc.UserID, vec, in.Limit)
	if err != nil {
		return "", fmt.Errorf("searching notes: %w", err)
	}
	if len(results) == 0 {
		return "No summaries found.", nil
	}

	var lines []string
	for _, note := range results {
		lines = append(lines, fmt.Sprintf("ID: %s\nContent: %s\nCreated: %s\n---",
			note.ID, note.Content, note.CreatedAt.Format(time.RFC3339)))
	}
	return strings.Join(lines, "\n"), nil
}

func getNoteTitles(ctx context.Context, tc *Context, _ json.RawMessage) (string, error) {
	notes, err := tc.Store.ListNotes(ctx, tc.UserID)
	if err != nil {
		return "", fmt.Errorf("listing notes: %w", err)
	}
	if len(notes) == 0 {
		return "No notes found.", nil
	}

	var lines []string
	for _, note := range notes {
		lines = append(lines, fmt.Sprintf("ID: %s\nCreated: %s\nTitle: %s\n---",
			note.ID, note.CreatedAt.Format(time.RFC3339), note.Title))
	}
	return strings.Join(lines, "\n"), nil
}

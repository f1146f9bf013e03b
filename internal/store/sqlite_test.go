// ABOUTME: Tests for the SQLite store implementation
// ABOUTME: Covers users, agents, subscriptions, messages, conversations, memory

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	return store
}

func seedUser(t *testing.T, s Store) *User {
	t.Helper()

	user := &User{Email: "test@example.com"}
	if err := s.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return user
}

func seedAgent(t *testing.T, s Store, user *User, name string, tools ...string) *Agent {
	t.Helper()

	agent := &Agent{
		UserID: user.ID,
		Name:   name,
		Prompt: "You are " + name + ".",
		Tools:  tools,
	}
	if err := s.CreateAgent(context.Background(), agent); err != nil {
		t.Fatalf("CreateAgent(%s) failed: %v", name, err)
	}
	return agent
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestCreateAndGetUser(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	user := seedUser(t, store)

	got, err := store.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.Email != user.Email {
		t.Errorf("email = %q, want %q", got.Email, user.Email)
	}
}

func TestGetAgentByName(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	user := seedUser(t, store)
	seedAgent(t, store, user, "Eforos", "create_note", "send_message_tool")

	got, err := store.GetAgentByName(ctx, user.ID, "Eforos")
	if err != nil {
		t.Fatalf("GetAgentByName failed: %v", err)
	}
	if got.Name != "Eforos" {
		t.Errorf("name = %q, want Eforos", got.Name)
	}
	if len(got.Tools) != 2 {
		t.Errorf("tools = %v, want 2 entries", got.Tools)
	}

	_, err = store.GetAgentByName(ctx, user.ID, "Nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing agent: err = %v, want ErrNotFound", err)
	}
}

func TestUpdateAgent(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	user := seedUser(t, store)
	agent := seedAgent(t, store, user, "Eforos", "create_note")

	agent.Prompt = "Guard the archive."
	agent.Tools = []string{"create_note", "search_notes"}
	if err := store.UpdateAgent(ctx, agent); err != nil {
		t.Fatalf("UpdateAgent failed: %v", err)
	}

	got, err := store.GetAgent(ctx, agent.ID)
	if err != nil {
		t.Fatalf("GetAgent failed: %v", err)
	}
	if got.Prompt != "Guard the archive." {
		t.Errorf("prompt = %q, want updated prompt", got.Prompt)
	}
	if len(got.Tools) != 2 {
		t.Errorf("tools = %v, want 2 entries", got.Tools)
	}

	missing := &Agent{ID: uuid.New(), UserID: user.ID, Prompt: "x"}
	if err := store.UpdateAgent(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing agent: err = %v, want ErrNotFound", err)
	}
}

func TestCreateAgent_DuplicateName(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	user := seedUser(t, store)
	seedAgent(t, store, user, "Eforos")

	dup := &Agent{UserID: user.ID, Name: "Eforos", Prompt: "again"}
	err := store.CreateAgent(ctx, dup)
	if !errors.Is(err, ErrDuplicateAgent) {
		t.Errorf("err = %v, want ErrDuplicateAgent", err)
	}
}

func TestSubscribers(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	user := seedUser(t, store)
	eforos := seedAgent(t, store, user, "Eforos")
	safine := seedAgent(t, store, user, "Safine")

	for _, sub := range []*AgentSubscription{
		{AgentID: eforos.ID, Channel: "raw_data_entries"},
		{AgentID: safine.ID, Channel: "safine"},
	} {
		if err := store.CreateSubscription(ctx, sub); err != nil {
			t.Fatalf("CreateSubscription failed: %v", err)
		}
	}

	subs, err := store.Subscribers(ctx, user.ID, "raw_data_entries")
	if err != nil {
		t.Fatalf("Subscribers failed: %v", err)
	}
	if len(subs) != 1 || subs[0].Name != "Eforos" {
		t.Errorf("subscribers = %v, want [Eforos]", subs)
	}

	// A channel nobody subscribes to is valid and empty.
	subs, err = store.Subscribers(ctx, user.ID, "nobody-home")
	if err != nil {
		t.Fatalf("Subscribers failed: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("expected no subscribers, got %d", len(subs))
	}
}

func TestSaveAndListMessages(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	user := seedUser(t, store)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		msg := &Message{
			UserID:    user.ID,
			Sender:    "Eforos",
			Payload:   MessagePayload{Channel: "safine", Message: "hello"},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}

	msgs, err := store.ListMessages(ctx, user.ID, 2)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	// Newest first.
	if !msgs[0].CreatedAt.After(msgs[1].CreatedAt) {
		t.Errorf("messages not in descending order: %v, %v", msgs[0].CreatedAt, msgs[1].CreatedAt)
	}
	if msgs[0].Payload.Channel != "safine" {
		t.Errorf("payload channel = %q, want safine", msgs[0].Payload.Channel)
	}
}

func TestCreateConversation_DuplicateDM(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	user := seedUser(t, store)
	a := seedAgent(t, store, user, "Eforos")
	b := seedAgent(t, store, user, "Safine")

	first, second := orderPair(a.ID, b.ID)
	conv := &Conversation{
		UserID: user.ID,
		Type:   ConversationTypeDM,
		Name:   GenerateDMName(a.Name, b.Name),
		DMAID:  &first,
		DMBID:  &second,
	}
	err := store.CreateConversation(ctx, conv, []*ConversationMember{
		{AgentID: a.ID, Role: MemberRoleMember},
		{AgentID: b.ID, Role: MemberRoleMember},
	})
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	dup := &Conversation{
		UserID: user.ID,
		Type:   ConversationTypeDM,
		Name:   "whatever",
		DMAID:  &first,
		DMBID:  &second,
	}
	err = store.CreateConversation(ctx, dup, nil)
	if !errors.Is(err, ErrDuplicateConversation) {
		t.Errorf("err = %v, want ErrDuplicateConversation", err)
	}

	got, err := store.GetDMConversation(ctx, user.ID, first, second)
	if err != nil {
		t.Fatalf("GetDMConversation failed: %v", err)
	}
	if got.ID != conv.ID {
		t.Errorf("got conversation %s, want %s", got.ID, conv.ID)
	}
}

func TestChatMessages_FilterAndOrder(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	user := seedUser(t, store)
	agent := seedAgent(t, store, user, "Safine")

	conv := &Conversation{
		UserID:      user.ID,
		Type:        ConversationTypeSelf,
		Name:        GenerateSelfDMName(agent.Name),
		SelfAgentID: &agent.ID,
	}
	if err := store.CreateConversation(ctx, conv, []*ConversationMember{
		{AgentID: agent.ID, Role: MemberRoleOwner},
	}); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		msg := &ChatMessage{
			ConversationID: conv.ID,
			SenderAgentID:  agent.ID,
			Content:        "note to self",
			CreatedAt:      base.Add(time.Duration(i) * time.Hour),
		}
		if err := store.SaveChatMessage(ctx, msg); err != nil {
			t.Fatalf("SaveChatMessage failed: %v", err)
		}
	}

	after := base.Add(30 * time.Minute)
	before := base.Add(3*time.Hour + 30*time.Minute)
	msgs, err := store.ListChatMessages(ctx, conv.ID, ChatMessageFilter{
		Limit:  10,
		After:  &after,
		Before: &before,
	})
	if err != nil {
		t.Fatalf("ListChatMessages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Errorf("messages not ascending at index %d", i)
		}
	}

	last, err := store.LastChatMessageAt(ctx, conv.ID)
	if err != nil {
		t.Fatalf("LastChatMessageAt failed: %v", err)
	}
	if last == nil || !last.Equal(base.Add(4*time.Hour)) {
		t.Errorf("last message at = %v, want %v", last, base.Add(4*time.Hour))
	}
}

func TestChatMessages_SubsecondOrdering(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	user := seedUser(t, store)
	agent := seedAgent(t, store, user, "Safine")

	conv := &Conversation{
		UserID:      user.ID,
		Type:        ConversationTypeSelf,
		Name:        GenerateSelfDMName(agent.Name),
		SelfAgentID: &agent.ID,
	}
	if err := store.CreateConversation(ctx, conv, []*ConversationMember{
		{AgentID: agent.ID, Role: MemberRoleOwner},
	}); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	// Fractions of different lengths: .1s renders shorter than .12s under
	// a trimming format, which used to reverse their text sort order.
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	first := base.Add(100 * time.Millisecond)
	second := base.Add(120 * time.Millisecond)
	for _, ts := range []time.Time{second, first} {
		msg := &ChatMessage{
			ConversationID: conv.ID,
			SenderAgentID:  agent.ID,
			Content:        ts.Format("15:04:05.000"),
			CreatedAt:      ts,
		}
		if err := store.SaveChatMessage(ctx, msg); err != nil {
			t.Fatalf("SaveChatMessage failed: %v", err)
		}
	}

	msgs, err := store.ListChatMessages(ctx, conv.ID, ChatMessageFilter{Limit: 10})
	if err != nil {
		t.Fatalf("ListChatMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if !msgs[0].CreatedAt.Equal(first) || !msgs[1].CreatedAt.Equal(second) {
		t.Errorf("order = [%v, %v], want [%v, %v]",
			msgs[0].CreatedAt, msgs[1].CreatedAt, first, second)
	}

	// A bound between the two fractions must split them.
	before := base.Add(110 * time.Millisecond)
	msgs, err = store.ListChatMessages(ctx, conv.ID, ChatMessageFilter{Before: &before})
	if err != nil {
		t.Fatalf("ListChatMessages with Before failed: %v", err)
	}
	if len(msgs) != 1 || !msgs[0].CreatedAt.Equal(first) {
		t.Errorf("Before bound returned %d messages, want only the earlier one", len(msgs))
	}

	last, err := store.LastChatMessageAt(ctx, conv.ID)
	if err != nil {
		t.Fatalf("LastChatMessageAt failed: %v", err)
	}
	if last == nil || !last.Equal(second) {
		t.Errorf("last message at = %v, want %v", last, second)
	}
}

func TestNotes_SearchBySimilarity(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	user := seedUser(t, store)
	agent := seedAgent(t, store, user, "Eforos")

	near := make([]float32, EmbeddingDim)
	far := make([]float32, EmbeddingDim)
	near[0] = 1
	far[1] = 1

	for title, vec := range map[string][]float32{"near": near, "far": far} {
		note := &Note{
			UserID:    user.ID,
			OwnerID:   agent.ID,
			Title:     title,
			Content:   "content for " + title,
			Embedding: vec,
		}
		if err := store.CreateNote(ctx, note); err != nil {
			t.Fatalf("CreateNote failed: %v", err)
		}
	}

	query := make([]float32, EmbeddingDim)
	query[0] = 0.9
	results, err := store.SearchNotes(ctx, user.ID, query, 1)
	if err != nil {
		t.Fatalf("SearchNotes failed: %v", err)
	}
	if len(results) != 1 || results[0].Title != "near" {
		t.Errorf("nearest note = %v, want the 'near' note", results)
	}
}

func TestSlate_Upsert(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	user := seedUser(t, store)

	_, err := store.GetSlate(ctx, user.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty slate: err = %v, want ErrNotFound", err)
	}

	if err := store.UpsertSlate(ctx, user.ID, "first"); err != nil {
		t.Fatalf("UpsertSlate failed: %v", err)
	}
	if err := store.UpsertSlate(ctx, user.ID, "second"); err != nil {
		t.Fatalf("UpsertSlate failed: %v", err)
	}

	slate, err := store.GetSlate(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetSlate failed: %v", err)
	}
	if slate.Content != "second" {
		t.Errorf("slate content = %q, want second", slate.Content)
	}
}

func TestBriefs_DateAndDismissedFilter(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	user := seedUser(t, store)

	day := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	dismissedAt := day.Add(10 * time.Hour)
	briefs := []*Brief{
		{UserID: user.ID, UTCDate: day, Title: "morning", Content: "rise", DisplayAt: day.Add(8 * time.Hour)},
		{UserID: user.ID, UTCDate: day, Title: "noon", Content: "eat", DisplayAt: day.Add(12 * time.Hour), DismissedAt: &dismissedAt},
		{UserID: user.ID, UTCDate: day.AddDate(0, 0, 1), Title: "tomorrow", Content: "later", DisplayAt: day.Add(32 * time.Hour)},
	}
	for _, b := range briefs {
		if err := store.CreateBrief(ctx, b); err != nil {
			t.Fatalf("CreateBrief failed: %v", err)
		}
	}

	active, err := store.ListBriefs(ctx, user.ID, day, false)
	if err != nil {
		t.Fatalf("ListBriefs failed: %v", err)
	}
	if len(active) != 1 || active[0].Title != "morning" {
		t.Errorf("active briefs = %v, want [morning]", active)
	}

	all, err := store.ListBriefs(ctx, user.ID, day, true)
	if err != nil {
		t.Fatalf("ListBriefs failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("got %d briefs, want 2", len(all))
	}
}

func TestRawEntries_RecentAndSourceFilter(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	user := seedUser(t, store)

	vec := make([]float32, EmbeddingDim)
	vec[0] = 1
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, source := range []string{"journal", "journal", "import"} {
		entry := &RawEntry{
			UserID:    user.ID,
			Source:    source,
			Content:   "entry",
			Embedding: vec,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := store.CreateRawEntry(ctx, entry); err != nil {
			t.Fatalf("CreateRawEntry failed: %v", err)
		}
	}

	recent, err := store.ListRecentRawEntries(ctx, user.ID, 2)
	if err != nil {
		t.Fatalf("ListRecentRawEntries failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d entries, want 2", len(recent))
	}
	if !recent[0].CreatedAt.After(recent[1].CreatedAt) {
		t.Error("recent entries not newest first")
	}

	journal, err := store.SearchRawEntries(ctx, user.ID, vec, 10, "journal")
	if err != nil {
		t.Fatalf("SearchRawEntries failed: %v", err)
	}
	if len(journal) != 2 {
		t.Errorf("got %d journal entries, want 2", len(journal))
	}
}

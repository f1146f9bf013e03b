// ABOUTME: PostgreSQL implementation of the Store interface using pgx
// ABOUTME: Uses pgvector for note/raw-entry similarity search

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// EmbeddingDim is the dimensionality of stored embedding vectors.
const EmbeddingDim = 768

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
// The schema is created if it doesn't exist; the pgvector extension is
// required for similarity search.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	logger := slog.Default().With("component", "store")

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &PostgresStore{pool: pool, logger: logger}

	if err := s.createSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("Postgres store initialized")
	return s, nil
}

func (s *PostgresStore) createSchema(ctx context.Context) error {
	schema := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS agents (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			name TEXT NOT NULL,
			prompt TEXT NOT NULL,
			tools JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

			UNIQUE(user_id, name)
		);

		CREATE TABLE IF NOT EXISTS agent_subscriptions (
			id UUID PRIMARY KEY,
			agent_id UUID NOT NULL REFERENCES agents(id),
			channel TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

			UNIQUE(agent_id, channel)
		);

		CREATE INDEX IF NOT EXISTS idx_subscriptions_channel ON agent_subscriptions(channel);

		CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			sender TEXT NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS idx_messages_user_created ON messages(user_id, created_at);

		CREATE TABLE IF NOT EXISTS conversations (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			type TEXT NOT NULL CHECK (type IN ('dm', 'self')),
			name TEXT NOT NULL,
			dm_a_id UUID,
			dm_b_id UUID,
			self_agent_id UUID,
			created_by_agent_id UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_dm
			ON conversations(user_id, dm_a_id, dm_b_id)
			WHERE type = 'dm';

		CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_self
			ON conversations(user_id, self_agent_id)
			WHERE type = 'self';

		CREATE TABLE IF NOT EXISTS conversation_members (
			id UUID PRIMARY KEY,
			conversation_id UUID NOT NULL REFERENCES conversations(id),
			agent_id UUID NOT NULL REFERENCES agents(id),
			role TEXT NOT NULL CHECK (role IN ('owner', 'member')),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS idx_members_conversation ON conversation_members(conversation_id);

		CREATE TABLE IF NOT EXISTS chat_messages (
			id UUID PRIMARY KEY,
			conversation_id UUID NOT NULL REFERENCES conversations(id),
			sender_agent_id UUID NOT NULL REFERENCES agents(id),
			content TEXT NOT NULL,
			content_type TEXT NOT NULL DEFAULT 'text',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS idx_chat_messages_conversation
			ON chat_messages(conversation_id, created_at);

		CREATE TABLE IF NOT EXISTS notes (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			owner UUID NOT NULL REFERENCES agents(id),
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS idx_notes_user ON notes(user_id, created_at);

		CREATE TABLE IF NOT EXISTS raw_entries (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			source TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS idx_raw_entries_user ON raw_entries(user_id, created_at);

		CREATE TABLE IF NOT EXISTS slates (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL UNIQUE REFERENCES users(id),
			content TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS briefs (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			utc_date DATE NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			display_at TIMESTAMPTZ NOT NULL,
			dismissed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS idx_briefs_user_date ON briefs(user_id, utc_date);
	`, EmbeddingDim, EmbeddingDim)

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// isUniqueViolation checks for a Postgres unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.logger.Info("closing Postgres store")
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser creates a new user row.
func (s *PostgresStore) CreateUser(ctx context.Context, user *User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, created_at) VALUES ($1, $2, $3)`,
		user.ID, user.Email, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID. Returns ErrNotFound if absent.
func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	user := &User{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, created_at FROM users WHERE id = $1`, id,
	).Scan(&user.ID, &user.Email, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return user, nil
}

// CreateAgent creates a new agent. Returns ErrDuplicateAgent on a
// (user, name) collision.
func (s *PostgresStore) CreateAgent(ctx context.Context, agent *Agent) error {
	if agent.ID == uuid.Nil {
		agent.ID = uuid.New()
	}
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = time.Now().UTC()
	}
	tools := agent.Tools
	if tools == nil {
		tools = []string{}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO agents (id, user_id, name, prompt, tools, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		agent.ID, agent.UserID, agent.Name, agent.Prompt, tools, agent.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAgent
		}
		return fmt.Errorf("inserting agent: %w", err)
	}
	return nil
}

const pgAgentColumns = `id, user_id, name, prompt, tools, created_at`

func scanPgAgent(row pgx.Row) (*Agent, error) {
	agent := &Agent{}
	err := row.Scan(&agent.ID, &agent.UserID, &agent.Name, &agent.Prompt, &agent.Tools, &agent.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning agent: %w", err)
	}
	return agent, nil
}

// GetAgent retrieves an agent by ID.
func (s *PostgresStore) GetAgent(ctx context.Context, id uuid.UUID) (*Agent, error) {
	return scanPgAgent(s.pool.QueryRow(ctx,
		`SELECT `+pgAgentColumns+` FROM agents WHERE id = $1`, id))
}

// GetAgentByName retrieves an agent by its (user, name) addressing key.
func (s *PostgresStore) GetAgentByName(ctx context.Context, userID uuid.UUID, name string) (*Agent, error) {
	return scanPgAgent(s.pool.QueryRow(ctx,
		`SELECT `+pgAgentColumns+` FROM agents WHERE user_id = $1 AND name = $2`, userID, name))
}

// ListAgents returns all agents for a user ordered by name.
func (s *PostgresStore) ListAgents(ctx context.Context, userID uuid.UUID) ([]*Agent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgAgentColumns+` FROM agents WHERE user_id = $1 ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		agent, err := scanPgAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// UpdateAgent rewrites an agent's prompt and tool list. Name and owner are
// the addressing key and stay fixed.
func (s *PostgresStore) UpdateAgent(ctx context.Context, agent *Agent) error {
	tools := agent.Tools
	if tools == nil {
		tools = []string{}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE agents SET prompt = $1, tools = $2 WHERE id = $3 AND user_id = $4`,
		agent.Prompt, tools, agent.ID, agent.UserID,
	)
	if err != nil {
		return fmt.Errorf("updating agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateSubscription subscribes an agent to a channel.
func (s *PostgresStore) CreateSubscription(ctx context.Context, sub *AgentSubscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO agent_subscriptions (id, agent_id, channel, created_at) VALUES ($1, $2, $3, $4)`,
		sub.ID, sub.AgentID, sub.Channel, sub.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting subscription: %w", err)
	}
	return nil
}

// Subscribers returns the agents subscribed to (user, channel).
func (s *PostgresStore) Subscribers(ctx context.Context, userID uuid.UUID, channel string) ([]*Agent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.user_id, a.name, a.prompt, a.tools, a.created_at
		FROM agents a
		JOIN agent_subscriptions sub ON sub.agent_id = a.id
		WHERE a.user_id = $1 AND sub.channel = $2
		ORDER BY a.name
	`, userID, channel)
	if err != nil {
		return nil, fmt.Errorf("querying subscribers: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		agent, err := scanPgAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// SaveMessage appends one immutable message row.
func (s *PostgresStore) SaveMessage(ctx context.Context, msg *Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, user_id, sender, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.UserID, msg.Sender, msg.Payload, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// ListMessages returns the most recent messages for a user, newest first.
func (s *PostgresStore) ListMessages(ctx context.Context, userID uuid.UUID, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, sender, payload, created_at
		FROM messages
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(&msg.ID, &msg.UserID, &msg.Sender, &msg.Payload, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// CreateConversation inserts a conversation and its members in one
// transaction. Returns ErrDuplicateConversation on an identity-key race.
func (s *PostgresStore) CreateConversation(ctx context.Context, conv *Conversation, members []*ConversationMember) error {
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO conversations (id, user_id, type, name, dm_a_id, dm_b_id, self_agent_id, created_by_agent_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, conv.ID, conv.UserID, conv.Type, conv.Name, conv.DMAID, conv.DMBID, conv.SelfAgentID, conv.CreatedByAgentID, conv.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	for _, m := range members {
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = conv.CreatedAt
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO conversation_members (id, conversation_id, agent_id, role, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, m.ID, conv.ID, m.AgentID, m.Role, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting conversation member: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing conversation: %w", err)
	}
	return nil
}

const pgConversationColumns = `id, user_id, type, name, dm_a_id, dm_b_id, self_agent_id, created_by_agent_id, created_at`

func scanPgConversation(row pgx.Row) (*Conversation, error) {
	conv := &Conversation{}
	err := row.Scan(&conv.ID, &conv.UserID, &conv.Type, &conv.Name,
		&conv.DMAID, &conv.DMBID, &conv.SelfAgentID, &conv.CreatedByAgentID, &conv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}
	return conv, nil
}

// GetDMConversation looks up the DM row for an ordered ID pair.
func (s *PostgresStore) GetDMConversation(ctx context.Context, userID, aID, bID uuid.UUID) (*Conversation, error) {
	return scanPgConversation(s.pool.QueryRow(ctx, `
		SELECT `+pgConversationColumns+`
		FROM conversations
		WHERE user_id = $1 AND type = 'dm' AND dm_a_id = $2 AND dm_b_id = $3
	`, userID, aID, bID))
}

// GetSelfConversation looks up an agent's self conversation.
func (s *PostgresStore) GetSelfConversation(ctx context.Context, userID, agentID uuid.UUID) (*Conversation, error) {
	return scanPgConversation(s.pool.QueryRow(ctx, `
		SELECT `+pgConversationColumns+`
		FROM conversations
		WHERE user_id = $1 AND type = 'self' AND self_agent_id = $2
	`, userID, agentID))
}

// ListConversations returns all conversations for a user, optionally
// filtered by type.
func (s *PostgresStore) ListConversations(ctx context.Context, userID uuid.UUID, kind string) ([]*Conversation, error) {
	query := `SELECT ` + pgConversationColumns + ` FROM conversations WHERE user_id = $1`
	args := []any{userID}
	if kind != "" {
		query += ` AND type = $2`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		conv, err := scanPgConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// ListConversationMembers returns the member rows for a conversation.
func (s *PostgresStore) ListConversationMembers(ctx context.Context, conversationID uuid.UUID) ([]*ConversationMember, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, agent_id, role, created_at
		FROM conversation_members
		WHERE conversation_id = $1
		ORDER BY created_at
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying conversation members: %w", err)
	}
	defer rows.Close()

	var members []*ConversationMember
	for rows.Next() {
		m := &ConversationMember{}
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.AgentID, &m.Role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning member row: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// SaveChatMessage appends one chat message.
func (s *PostgresStore) SaveChatMessage(ctx context.Context, msg *ChatMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.ContentType == "" {
		msg.ContentType = "text"
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, conversation_id, sender_agent_id, content, content_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ID, msg.ConversationID, msg.SenderAgentID, msg.Content, msg.ContentType, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting chat message: %w", err)
	}
	return nil
}

// ListChatMessages returns chat messages in chronological order.
func (s *PostgresStore) ListChatMessages(ctx context.Context, conversationID uuid.UUID, filter ChatMessageFilter) ([]*ChatMessage, error) {
	query := `
		SELECT id, conversation_id, sender_agent_id, content, content_type, created_at
		FROM chat_messages
		WHERE conversation_id = $1
	`
	args := []any{conversationID}
	idx := 2

	if filter.Before != nil {
		query += fmt.Sprintf(` AND created_at < $%d`, idx)
		args = append(args, *filter.Before)
		idx++
	}
	if filter.After != nil {
		query += fmt.Sprintf(` AND created_at > $%d`, idx)
		args = append(args, *filter.After)
		idx++
	}
	query += ` ORDER BY created_at ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, idx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chat messages: %w", err)
	}
	defer rows.Close()

	var messages []*ChatMessage
	for rows.Next() {
		msg := &ChatMessage{}
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderAgentID, &msg.Content, &msg.ContentType, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chat message row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// LastChatMessageAt returns the newest chat message timestamp, or nil.
func (s *PostgresStore) LastChatMessageAt(ctx context.Context, conversationID uuid.UUID) (*time.Time, error) {
	var t time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT created_at FROM chat_messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, conversationID).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying last chat message: %w", err)
	}
	return &t, nil
}

func vectorOrNil(v []float32) any {
	if v == nil {
		return nil
	}
	return pgvector.NewVector(v)
}

// CreateNote inserts a new note.
func (s *PostgresStore) CreateNote(ctx context.Context, note *Note) error {
	if note.ID == uuid.Nil {
		note.ID = uuid.New()
	}
	now := time.Now().UTC()
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now
	}
	if note.UpdatedAt.IsZero() {
		note.UpdatedAt = note.CreatedAt
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO notes (id, user_id, owner, title, content, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, note.ID, note.UserID, note.OwnerID, note.Title, note.Content, vectorOrNil(note.Embedding), note.CreatedAt, note.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting note: %w", err)
	}
	return nil
}

const pgNoteColumns = `id, user_id, owner, title, content, embedding, created_at, updated_at`

func scanPgNote(row pgx.Row) (*Note, error) {
	note := &Note{}
	var embedding *pgvector.Vector
	err := row.Scan(&note.ID, &note.UserID, &note.OwnerID, &note.Title, &note.Content, &embedding, &note.CreatedAt, &note.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning note: %w", err)
	}
	if embedding != nil {
		note.Embedding = embedding.Slice()
	}
	return note, nil
}

// GetNote retrieves a note scoped to a user.
func (s *PostgresStore) GetNote(ctx context.Context, userID, id uuid.UUID) (*Note, error) {
	return scanPgNote(s.pool.QueryRow(ctx,
		`SELECT `+pgNoteColumns+` FROM notes WHERE user_id = $1 AND id = $2`, userID, id))
}

// UpdateNote updates a note's title, content and embedding.
func (s *PostgresStore) UpdateNote(ctx context.Context, note *Note) error {
	note.UpdatedAt = time.Now().UTC()

	tag, err := s.pool.Exec(ctx, `
		UPDATE notes SET title = $1, content = $2, embedding = $3, updated_at = $4
		WHERE user_id = $5 AND id = $6
	`, note.Title, note.Content, vectorOrNil(note.Embedding), note.UpdatedAt, note.UserID, note.ID)
	if err != nil {
		return fmt.Errorf("updating note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SearchNotes returns the user's notes nearest to the query vector, using
// pgvector L2 distance.
func (s *PostgresStore) SearchNotes(ctx context.Context, userID uuid.UUID, query []float32, limit int) ([]*Note, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+pgNoteColumns+`
		FROM notes
		WHERE user_id = $1
		ORDER BY embedding <-> $2
		LIMIT $3
	`, userID, pgvector.NewVector(query), limit)
	if err != nil {
		return nil, fmt.Errorf("querying notes: %w", err)
	}
	defer rows.Close()

	var notes []*Note
	for rows.Next() {
		note, err := scanPgNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

// ListNotes returns all notes for a user, newest first.
func (s *PostgresStore) ListNotes(ctx context.Context, userID uuid.UUID) ([]*Note, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgNoteColumns+` FROM notes WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying notes: %w", err)
	}
	defer rows.Close()

	var notes []*Note
	for rows.Next() {
		note, err := scanPgNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

// CreateRawEntry inserts a raw ingested entry.
func (s *PostgresStore) CreateRawEntry(ctx context.Context, entry *RawEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO raw_entries (id, user_id, source, content, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.UserID, entry.Source, entry.Content, vectorOrNil(entry.Embedding), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting raw entry: %w", err)
	}
	return nil
}

func scanPgRawEntry(row pgx.Row) (*RawEntry, error) {
	entry := &RawEntry{}
	var embedding *pgvector.Vector
	err := row.Scan(&entry.ID, &entry.UserID, &entry.Source, &entry.Content, &embedding, &entry.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning raw entry: %w", err)
	}
	if embedding != nil {
		entry.Embedding = embedding.Slice()
	}
	return entry, nil
}

// SearchRawEntries returns raw entries nearest to the query vector,
// optionally filtered by source.
func (s *PostgresStore) SearchRawEntries(ctx context.Context, userID uuid.UUID, query []float32, limit int, source string) ([]*RawEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	q := `
		SELECT id, user_id, source, content, embedding, created_at
		FROM raw_entries
		WHERE user_id = $1
	`
	args := []any{userID}
	idx := 2
	if source != "" {
		q += fmt.Sprintf(` AND source = $%d`, idx)
		args = append(args, source)
		idx++
	}
	q += fmt.Sprintf(` ORDER BY embedding <-> $%d LIMIT $%d`, idx, idx+1)
	args = append(args, pgvector.NewVector(query), limit)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying raw entries: %w", err)
	}
	defer rows.Close()

	var entries []*RawEntry
	for rows.Next() {
		entry, err := scanPgRawEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ListRecentRawEntries returns the newest raw entries for a user.
func (s *PostgresStore) ListRecentRawEntries(ctx context.Context, userID uuid.UUID, limit int) ([]*RawEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, source, content, embedding, created_at
		FROM raw_entries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying raw entries: %w", err)
	}
	defer rows.Close()

	var entries []*RawEntry
	for rows.Next() {
		entry, err := scanPgRawEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetSlate returns the user's living slate.
func (s *PostgresStore) GetSlate(ctx context.Context, userID uuid.UUID) (*Slate, error) {
	slate := &Slate{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, content, updated_at FROM slates WHERE user_id = $1`, userID,
	).Scan(&slate.ID, &slate.UserID, &slate.Content, &slate.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying slate: %w", err)
	}
	return slate, nil
}

// UpsertSlate writes the user's slate, creating the single row on first use.
func (s *PostgresStore) UpsertSlate(ctx context.Context, userID uuid.UUID, content string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO slates (id, user_id, content, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE SET content = EXCLUDED.content, updated_at = now()
	`, uuid.New(), userID, content)
	if err != nil {
		return fmt.Errorf("upserting slate: %w", err)
	}
	return nil
}

// CreateBrief inserts a new brief.
func (s *PostgresStore) CreateBrief(ctx context.Context, brief *Brief) error {
	if brief.ID == uuid.Nil {
		brief.ID = uuid.New()
	}
	if brief.CreatedAt.IsZero() {
		brief.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO briefs (id, user_id, utc_date, title, content, display_at, dismissed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, brief.ID, brief.UserID, brief.UTCDate, brief.Title, brief.Content, brief.DisplayAt, brief.DismissedAt, brief.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting brief: %w", err)
	}
	return nil
}

// ListBriefs returns briefs for a user on a given UTC date.
func (s *PostgresStore) ListBriefs(ctx context.Context, userID uuid.UUID, date time.Time, includeDismissed bool) ([]*Brief, error) {
	query := `
		SELECT id, user_id, utc_date, title, content, display_at, dismissed_at, created_at
		FROM briefs
		WHERE user_id = $1 AND utc_date = $2
	`
	if !includeDismissed {
		query += ` AND dismissed_at IS NULL`
	}
	query += ` ORDER BY display_at ASC`

	rows, err := s.pool.Query(ctx, query, userID, date)
	if err != nil {
		return nil, fmt.Errorf("querying briefs: %w", err)
	}
	defer rows.Close()

	var briefs []*Brief
	for rows.Next() {
		b := &Brief{}
		if err := rows.Scan(&b.ID, &b.UserID, &b.UTCDate, &b.Title, &b.Content, &b.DisplayAt, &b.DismissedAt, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning brief row: %w", err)
		}
		briefs = append(briefs, b)
	}
	return briefs, rows.Err()
}

// Ensure PostgresStore implements Store interface
var _ Store = (*PostgresStore)(nil)

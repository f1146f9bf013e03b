// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides agent/message/conversation persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			name TEXT NOT NULL,
			prompt TEXT NOT NULL,
			tools TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL,

			UNIQUE(user_id, name)
		);

		CREATE INDEX IF NOT EXISTS idx_agents_user ON agents(user_id);

		CREATE TABLE IF NOT EXISTS agent_subscriptions (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL REFERENCES agents(id),
			channel TEXT NOT NULL,
			created_at DATETIME NOT NULL,

			UNIQUE(agent_id, channel)
		);

		CREATE INDEX IF NOT EXISTS idx_subscriptions_channel ON agent_subscriptions(channel);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			sender TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_user_created ON messages(user_id, created_at);

		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			type TEXT NOT NULL,
			name TEXT NOT NULL,
			dm_a_id TEXT,
			dm_b_id TEXT,
			self_agent_id TEXT,
			created_by_agent_id TEXT,
			created_at DATETIME NOT NULL,

			CHECK (type IN ('dm', 'self'))
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_dm
			ON conversations(user_id, dm_a_id, dm_b_id)
			WHERE type = 'dm';

		CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_self
			ON conversations(user_id, self_agent_id)
			WHERE type = 'self';

		CREATE TABLE IF NOT EXISTS conversation_members (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			agent_id TEXT NOT NULL REFERENCES agents(id),
			role TEXT NOT NULL,
			created_at DATETIME NOT NULL,

			CHECK (role IN ('owner', 'member'))
		);

		CREATE INDEX IF NOT EXISTS idx_members_conversation ON conversation_members(conversation_id);

		CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			sender_agent_id TEXT NOT NULL REFERENCES agents(id),
			content TEXT NOT NULL,
			content_type TEXT NOT NULL DEFAULT 'text',
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_chat_messages_conversation
			ON chat_messages(conversation_id, created_at);

		CREATE TABLE IF NOT EXISTS notes (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			owner TEXT NOT NULL REFERENCES agents(id),
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_notes_user ON notes(user_id, created_at);

		CREATE TABLE IF NOT EXISTS raw_entries (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			source TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding TEXT,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_raw_entries_user ON raw_entries(user_id, created_at);

		CREATE TABLE IF NOT EXISTS slates (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL UNIQUE REFERENCES users(id),
			content TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS briefs (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			utc_date TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			display_at DATETIME NOT NULL,
			dismissed_at DATETIME,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_briefs_user_date ON briefs(user_id, utc_date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Ping checks the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new user row.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, created_at) VALUES (?, ?, ?)`,
		user.ID.String(), user.Email, user.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}

	s.logger.Debug("created user", "id", user.ID, "email", user.Email)
	return nil
}

// GetUser retrieves a user by ID. Returns ErrNotFound if absent.
func (s *SQLiteStore) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	var user User
	var idStr, createdAtStr string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, created_at FROM users WHERE id = ?`, id.String(),
	).Scan(&idStr, &user.Email, &createdAtStr)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parsing user id: %w", err)
	}
	user.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &user, nil
}

// CreateAgent creates a new agent. Returns ErrDuplicateAgent if an agent
// with the same (user, name) pair already exists.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *Agent) error {
	if agent.ID == uuid.Nil {
		agent.ID = uuid.New()
	}
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = time.Now().UTC()
	}

	tools, err := json.Marshal(agent.Tools)
	if err != nil {
		return fmt.Errorf("encoding tools: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agents (id, user_id, name, prompt, tools, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		agent.ID.String(), agent.UserID.String(), agent.Name, agent.Prompt,
		string(tools), agent.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateAgent
		}
		return fmt.Errorf("inserting agent: %w", err)
	}

	s.logger.Debug("created agent", "id", agent.ID, "name", agent.Name)
	return nil
}

func (s *SQLiteStore) scanAgent(row interface{ Scan(...any) error }) (*Agent, error) {
	var agent Agent
	var idStr, userIDStr, toolsStr, createdAtStr string

	err := row.Scan(&idStr, &userIDStr, &agent.Name, &agent.Prompt, &toolsStr, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning agent: %w", err)
	}

	if agent.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("parsing agent id: %w", err)
	}
	if agent.UserID, err = uuid.Parse(userIDStr); err != nil {
		return nil, fmt.Errorf("parsing agent user_id: %w", err)
	}
	if err := json.Unmarshal([]byte(toolsStr), &agent.Tools); err != nil {
		return nil, fmt.Errorf("decoding tools: %w", err)
	}
	if agent.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &agent, nil
}

// GetAgent retrieves an agent by ID. Returns ErrNotFound if absent.
func (s *SQLiteStore) GetAgent(ctx context.Context, id uuid.UUID) (*Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, prompt, tools, created_at FROM agents WHERE id = ?`,
		id.String(),
	)
	return s.scanAgent(row)
}

// GetAgentByName retrieves an agent by its (user, name) addressing key.
// Returns ErrNotFound if absent.
func (s *SQLiteStore) GetAgentByName(ctx context.Context, userID uuid.UUID, name string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, prompt, tools, created_at FROM agents WHERE user_id = ? AND name = ?`,
		userID.String(), name,
	)
	return s.scanAgent(row)
}

// ListAgents returns all agents for a user ordered by name.
func (s *SQLiteStore) ListAgents(ctx context.Context, userID uuid.UUID) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, prompt, tools, created_at FROM agents WHERE user_id = ? ORDER BY name`,
		userID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		agent, err := s.scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// UpdateAgent rewrites an agent's prompt and tool list. Name and owner are
// the addressing key and stay fixed.
func (s *SQLiteStore) UpdateAgent(ctx context.Context, agent *Agent) error {
	tools, err := json.Marshal(agent.Tools)
	if err != nil {
		return fmt.Errorf("encoding tools: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE agents SET prompt = ?, tools = ? WHERE id = ? AND user_id = ?`,
		agent.Prompt, string(tools), agent.ID.String(), agent.UserID.String(),
	)
	if err != nil {
		return fmt.Errorf("updating agent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated agent", "id", agent.ID, "name", agent.Name)
	return nil
}

// CreateSubscription subscribes an agent to a channel.
func (s *SQLiteStore) CreateSubscription(ctx context.Context, sub *AgentSubscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_subscriptions (id, agent_id, channel, created_at) VALUES (?, ?, ?, ?)`,
		sub.ID.String(), sub.AgentID.String(), sub.Channel, sub.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting subscription: %w", err)
	}

	s.logger.Debug("created subscription", "agent_id", sub.AgentID, "channel", sub.Channel)
	return nil
}

// Subscribers returns the agents subscribed to (user, channel). Zero
// subscribers is a valid, silent result.
func (s *SQLiteStore) Subscribers(ctx context.Context, userID uuid.UUID, channel string) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.user_id, a.name, a.prompt, a.tools, a.created_at
		FROM agents a
		JOIN agent_subscriptions sub ON sub.agent_id = a.id
		WHERE a.user_id = ? AND sub.channel = ?
		ORDER BY a.name
	`, userID.String(), channel)
	if err != nil {
		return nil, fmt.Errorf("querying subscribers: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		agent, err := s.scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// SaveMessage appends one immutable message row. The row is never updated
// or deleted afterwards; it is the audit log independent of delivery.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, user_id, sender, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID.String(), msg.UserID.String(), msg.Sender, string(payload),
		msg.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("saved message", "id", msg.ID, "channel", msg.Payload.Channel, "sender", msg.Sender)
	return nil
}

// ListMessages returns the most recent messages for a user, newest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, userID uuid.UUID, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, sender, payload, created_at
		FROM messages
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, userID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var idStr, userIDStr, payloadStr, createdAtStr string

		if err := rows.Scan(&idStr, &userIDStr, &msg.Sender, &payloadStr, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		if msg.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("parsing message id: %w", err)
		}
		if msg.UserID, err = uuid.Parse(userIDStr); err != nil {
			return nil, fmt.Errorf("parsing message user_id: %w", err)
		}
		if err := json.Unmarshal([]byte(payloadStr), &msg.Payload); err != nil {
			return nil, fmt.Errorf("decoding payload: %w", err)
		}
		if msg.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}

		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// CreateConversation inserts a conversation and its member rows in one
// transaction. Returns ErrDuplicateConversation if the identity key is
// already taken, so callers can re-query the winner's row.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation, members []*ConversationMember) error {
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, type, name, dm_a_id, dm_b_id, self_agent_id, created_by_agent_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		conv.ID.String(), conv.UserID.String(), conv.Type, conv.Name,
		uuidPtrString(conv.DMAID), uuidPtrString(conv.DMBID),
		uuidPtrString(conv.SelfAgentID), uuidPtrString(conv.CreatedByAgentID),
		conv.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
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
		_, err = tx.ExecContext(ctx, `
			INSERT INTO conversation_members (id, conversation_id, agent_id, role, created_at)
			VALUES (?, ?, ?, ?, ?)
		`,
			m.ID.String(), conv.ID.String(), m.AgentID.String(), m.Role,
			m.CreatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("inserting conversation member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "type", conv.Type, "name", conv.Name)
	return nil
}

// uuidPtrString returns nil for nil pointers, otherwise the UUID text form
func uuidPtrString(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func (s *SQLiteStore) scanConversation(row interface{ Scan(...any) error }) (*Conversation, error) {
	var conv Conversation
	var idStr, userIDStr, createdAtStr string
	var dmA, dmB, selfAgent, createdBy sql.NullString

	err := row.Scan(&idStr, &userIDStr, &conv.Type, &conv.Name, &dmA, &dmB, &selfAgent, &createdBy, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	if conv.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("parsing conversation id: %w", err)
	}
	if conv.UserID, err = uuid.Parse(userIDStr); err != nil {
		return nil, fmt.Errorf("parsing conversation user_id: %w", err)
	}
	if conv.DMAID, err = parseNullUUID(dmA); err != nil {
		return nil, err
	}
	if conv.DMBID, err = parseNullUUID(dmB); err != nil {
		return nil, err
	}
	if conv.SelfAgentID, err = parseNullUUID(selfAgent); err != nil {
		return nil, err
	}
	if conv.CreatedByAgentID, err = parseNullUUID(createdBy); err != nil {
		return nil, err
	}
	if conv.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &conv, nil
}

func parseNullUUID(ns sql.NullString) (*uuid.UUID, error) {
	if !ns.Valid {
		return nil, nil
	}
	id, err := uuid.Parse(ns.String)
	if err != nil {
		return nil, fmt.Errorf("parsing uuid column: %w", err)
	}
	return &id, nil
}

const conversationColumns = `id, user_id, type, name, dm_a_id, dm_b_id, self_agent_id, created_by_agent_id, created_at`

// GetDMConversation looks up the DM conversation for an ordered ID pair.
// Callers must pass the pair already ordered by string comparison.
func (s *SQLiteStore) GetDMConversation(ctx context.Context, userID, aID, bID uuid.UUID) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE user_id = ? AND type = 'dm' AND dm_a_id = ? AND dm_b_id = ?
	`, userID.String(), aID.String(), bID.String())
	return s.scanConversation(row)
}

// GetSelfConversation looks up an agent's self conversation.
func (s *SQLiteStore) GetSelfConversation(ctx context.Context, userID, agentID uuid.UUID) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE user_id = ? AND type = 'self' AND self_agent_id = ?
	`, userID.String(), agentID.String())
	return s.scanConversation(row)
}

// ListConversations returns all conversations for a user, optionally
// filtered by type ("dm" or "self"). Empty kind means all.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID uuid.UUID, kind string) ([]*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE user_id = ?`
	args := []any{userID.String()}
	if kind != "" {
		query += ` AND type = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		conv, err := s.scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// ListConversationMembers returns the member rows for a conversation.
func (s *SQLiteStore) ListConversationMembers(ctx context.Context, conversationID uuid.UUID) ([]*ConversationMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, agent_id, role, created_at
		FROM conversation_members
		WHERE conversation_id = ?
		ORDER BY created_at
	`, conversationID.String())
	if err != nil {
		return nil, fmt.Errorf("querying conversation members: %w", err)
	}
	defer rows.Close()

	var members []*ConversationMember
	for rows.Next() {
		var m ConversationMember
		var idStr, convIDStr, agentIDStr, createdAtStr string

		if err := rows.Scan(&idStr, &convIDStr, &agentIDStr, &m.Role, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning member row: %w", err)
		}
		if m.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("parsing member id: %w", err)
		}
		if m.ConversationID, err = uuid.Parse(convIDStr); err != nil {
			return nil, fmt.Errorf("parsing member conversation_id: %w", err)
		}
		if m.AgentID, err = uuid.Parse(agentIDStr); err != nil {
			return nil, fmt.Errorf("parsing member agent_id: %w", err)
		}
		if m.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}

		members = append(members, &m)
	}
	return members, rows.Err()
}

// chatTimeLayout is fixed width, unlike RFC3339Nano which trims trailing
// fractional zeros. Chat timestamps are ordered and range-filtered by SQL
// text comparison, which only matches chronological order when every value
// has the same width.
const chatTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SaveChatMessage appends one chat message to a conversation.
func (s *SQLiteStore) SaveChatMessage(ctx context.Context, msg *ChatMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.ContentType == "" {
		msg.ContentType = "text"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, conversation_id, sender_agent_id, content, content_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		msg.ID.String(), msg.ConversationID.String(), msg.SenderAgentID.String(),
		msg.Content, msg.ContentType, msg.CreatedAt.UTC().Format(chatTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting chat message: %w", err)
	}

	s.logger.Debug("saved chat message", "id", msg.ID, "conversation_id", msg.ConversationID)
	return nil
}

// ListChatMessages returns chat messages for a conversation in chronological
// order, bounded by the filter's limit and before/after timestamps.
func (s *SQLiteStore) ListChatMessages(ctx context.Context, conversationID uuid.UUID, filter ChatMessageFilter) ([]*ChatMessage, error) {
	query := `
		SELECT id, conversation_id, sender_agent_id, content, content_type, created_at
		FROM chat_messages
		WHERE conversation_id = ?
	`
	args := []any{conversationID.String()}

	if filter.Before != nil {
		query += ` AND created_at < ?`
		args = append(args, filter.Before.UTC().Format(chatTimeLayout))
	}
	if filter.After != nil {
		query += ` AND created_at > ?`
		args = append(args, filter.After.UTC().Format(chatTimeLayout))
	}
	query += ` ORDER BY created_at ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chat messages: %w", err)
	}
	defer rows.Close()

	var messages []*ChatMessage
	for rows.Next() {
		var msg ChatMessage
		var idStr, convIDStr, senderIDStr, createdAtStr string

		if err := rows.Scan(&idStr, &convIDStr, &senderIDStr, &msg.Content, &msg.ContentType, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning chat message row: %w", err)
		}
		if msg.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("parsing chat message id: %w", err)
		}
		if msg.ConversationID, err = uuid.Parse(convIDStr); err != nil {
			return nil, fmt.Errorf("parsing conversation_id: %w", err)
		}
		if msg.SenderAgentID, err = uuid.Parse(senderIDStr); err != nil {
			return nil, fmt.Errorf("parsing sender_agent_id: %w", err)
		}
		if msg.CreatedAt, err = time.Parse(chatTimeLayout, createdAtStr); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}

		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// LastChatMessageAt returns the timestamp of the newest chat message in a
// conversation, or nil if the conversation has no messages yet.
func (s *SQLiteStore) LastChatMessageAt(ctx context.Context, conversationID uuid.UUID) (*time.Time, error) {
	var createdAtStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at FROM chat_messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, conversationID.String()).Scan(&createdAtStr)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying last chat message: %w", err)
	}

	t, err := time.Parse(chatTimeLayout, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &t, nil
}

// encodeEmbedding stores vectors as JSON text. SQLite has no vector type;
// similarity for this backend is computed in process over the user's rows.
func encodeEmbedding(v []float32) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding embedding: %w", err)
	}
	return string(data), nil
}

func decodeEmbedding(ns sql.NullString) ([]float32, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var v []float32
	if err := json.Unmarshal([]byte(ns.String), &v); err != nil {
		return nil, fmt.Errorf("decoding embedding: %w", err)
	}
	return v, nil
}

// l2Distance computes Euclidean distance between two vectors. Mismatched
// lengths rank last.
func l2Distance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.MaxFloat64
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// CreateNote inserts a new note.
func (s *SQLiteStore) CreateNote(ctx context.Context, note *Note) error {
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

	embedding, err := encodeEmbedding(note.Embedding)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notes (id, user_id, owner, title, content, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		note.ID.String(), note.UserID.String(), note.OwnerID.String(),
		note.Title, note.Content, embedding,
		note.CreatedAt.UTC().Format(time.RFC3339), note.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting note: %w", err)
	}

	s.logger.Debug("created note", "id", note.ID, "title", note.Title)
	return nil
}

func (s *SQLiteStore) scanNote(row interface{ Scan(...any) error }) (*Note, error) {
	var note Note
	var idStr, userIDStr, ownerStr, createdAtStr, updatedAtStr string
	var embedding sql.NullString

	err := row.Scan(&idStr, &userIDStr, &ownerStr, &note.Title, &note.Content, &embedding, &createdAtStr, &updatedAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning note: %w", err)
	}

	if note.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("parsing note id: %w", err)
	}
	if note.UserID, err = uuid.Parse(userIDStr); err != nil {
		return nil, fmt.Errorf("parsing note user_id: %w", err)
	}
	if note.OwnerID, err = uuid.Parse(ownerStr); err != nil {
		return nil, fmt.Errorf("parsing note owner: %w", err)
	}
	if note.Embedding, err = decodeEmbedding(embedding); err != nil {
		return nil, err
	}
	if note.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if note.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &note, nil
}

const noteColumns = `id, user_id, owner, title, content, embedding, created_at, updated_at`

// GetNote retrieves a note scoped to a user. Returns ErrNotFound if the
// note does not exist or belongs to another user.
func (s *SQLiteStore) GetNote(ctx context.Context, userID, id uuid.UUID) (*Note, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE user_id = ? AND id = ?`,
		userID.String(), id.String(),
	)
	return s.scanNote(row)
}

// UpdateNote updates a note's title, content and embedding.
// Returns ErrNotFound if the note doesn't exist.
func (s *SQLiteStore) UpdateNote(ctx context.Context, note *Note) error {
	note.UpdatedAt = time.Now().UTC()

	embedding, err := encodeEmbedding(note.Embedding)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE notes SET title = ?, content = ?, embedding = ?, updated_at = ?
		WHERE user_id = ? AND id = ?
	`,
		note.Title, note.Content, embedding, note.UpdatedAt.UTC().Format(time.RFC3339),
		note.UserID.String(), note.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("updating note: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated note", "id", note.ID)
	return nil
}

// SearchNotes returns the user's notes nearest to the query vector.
// Distance is computed in process; fine at personal-assistant scale.
func (s *SQLiteStore) SearchNotes(ctx context.Context, userID uuid.UUID, query []float32, limit int) ([]*Note, error) {
	if limit <= 0 {
		limit = 5
	}

	notes, err := s.ListNotes(ctx, userID)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(notes, func(i, j int) bool {
		return l2Distance(notes[i].Embedding, query) < l2Distance(notes[j].Embedding, query)
	})
	if len(notes) > limit {
		notes = notes[:limit]
	}
	return notes, nil
}

// ListNotes returns all notes for a user, newest first.
func (s *SQLiteStore) ListNotes(ctx context.Context, userID uuid.UUID) ([]*Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE user_id = ? ORDER BY created_at DESC`,
		userID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying notes: %w", err)
	}
	defer rows.Close()

	var notes []*Note
	for rows.Next() {
		note, err := s.scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

// CreateRawEntry inserts a raw ingested entry.
func (s *SQLiteStore) CreateRawEntry(ctx context.Context, entry *RawEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	embedding, err := encodeEmbedding(entry.Embedding)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO raw_entries (id, user_id, source, content, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		entry.ID.String(), entry.UserID.String(), entry.Source, entry.Content,
		embedding, entry.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting raw entry: %w", err)
	}

	s.logger.Debug("created raw entry", "id", entry.ID, "source", entry.Source)
	return nil
}

func (s *SQLiteStore) scanRawEntry(row interface{ Scan(...any) error }) (*RawEntry, error) {
	var entry RawEntry
	var idStr, userIDStr, createdAtStr string
	var embedding sql.NullString

	err := row.Scan(&idStr, &userIDStr, &entry.Source, &entry.Content, &embedding, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning raw entry: %w", err)
	}

	if entry.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("parsing raw entry id: %w", err)
	}
	if entry.UserID, err = uuid.Parse(userIDStr); err != nil {
		return nil, fmt.Errorf("parsing raw entry user_id: %w", err)
	}
	if entry.Embedding, err = decodeEmbedding(embedding); err != nil {
		return nil, err
	}
	if entry.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &entry, nil
}

// SearchRawEntries returns the user's raw entries nearest to the query
// vector, optionally filtered by source.
func (s *SQLiteStore) SearchRawEntries(ctx context.Context, userID uuid.UUID, query []float32, limit int, source string) ([]*RawEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	q := `SELECT id, user_id, source, content, embedding, created_at FROM raw_entries WHERE user_id = ?`
	args := []any{userID.String()}
	if source != "" {
		q += ` AND source = ?`
		args = append(args, source)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying raw entries: %w", err)
	}
	defer rows.Close()

	var entries []*RawEntry
	for rows.Next() {
		entry, err := s.scanRawEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return l2Distance(entries[i].Embedding, query) < l2Distance(entries[j].Embedding, query)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// ListRecentRawEntries returns the newest raw entries for a user.
func (s *SQLiteStore) ListRecentRawEntries(ctx context.Context, userID uuid.UUID, limit int) ([]*RawEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, source, content, embedding, created_at
		FROM raw_entries
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, userID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("querying raw entries: %w", err)
	}
	defer rows.Close()

	var entries []*RawEntry
	for rows.Next() {
		entry, err := s.scanRawEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetSlate returns the user's living slate. Returns ErrNotFound if the
// user has never written one.
func (s *SQLiteStore) GetSlate(ctx context.Context, userID uuid.UUID) (*Slate, error) {
	var slate Slate
	var idStr, userIDStr, updatedAtStr string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, content, updated_at FROM slates WHERE user_id = ?`,
		userID.String(),
	).Scan(&idStr, &userIDStr, &slate.Content, &updatedAtStr)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying slate: %w", err)
	}

	if slate.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("parsing slate id: %w", err)
	}
	if slate.UserID, err = uuid.Parse(userIDStr); err != nil {
		return nil, fmt.Errorf("parsing slate user_id: %w", err)
	}
	if slate.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &slate, nil
}

// UpsertSlate writes the user's slate, creating the single row on first use.
func (s *SQLiteStore) UpsertSlate(ctx context.Context, userID uuid.UUID, content string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slates (id, user_id, content, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at
	`, uuid.New().String(), userID.String(), content, now)
	if err != nil {
		return fmt.Errorf("upserting slate: %w", err)
	}

	s.logger.Debug("updated slate", "user_id", userID)
	return nil
}

// CreateBrief inserts a new brief.
func (s *SQLiteStore) CreateBrief(ctx context.Context, brief *Brief) error {
	if brief.ID == uuid.Nil {
		brief.ID = uuid.New()
	}
	if brief.CreatedAt.IsZero() {
		brief.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO briefs (id, user_id, utc_date, title, content, display_at, dismissed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		brief.ID.String(), brief.UserID.String(),
		brief.UTCDate.UTC().Format("2006-01-02"),
		brief.Title, brief.Content,
		brief.DisplayAt.UTC().Format(time.RFC3339),
		timePtrString(brief.DismissedAt),
		brief.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting brief: %w", err)
	}

	s.logger.Debug("created brief", "id", brief.ID, "title", brief.Title)
	return nil
}

func timePtrString(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// ListBriefs returns briefs for a user on a given UTC date, ordered by
// display time. Dismissed briefs are excluded unless includeDismissed.
func (s *SQLiteStore) ListBriefs(ctx context.Context, userID uuid.UUID, date time.Time, includeDismissed bool) ([]*Brief, error) {
	query := `
		SELECT id, user_id, utc_date, title, content, display_at, dismissed_at, created_at
		FROM briefs
		WHERE user_id = ? AND utc_date = ?
	`
	args := []any{userID.String(), date.UTC().Format("2006-01-02")}
	if !includeDismissed {
		query += ` AND dismissed_at IS NULL`
	}
	query += ` ORDER BY display_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying briefs: %w", err)
	}
	defer rows.Close()

	var briefs []*Brief
	for rows.Next() {
		var b Brief
		var idStr, userIDStr, dateStr, displayAtStr, createdAtStr string
		var dismissedAt sql.NullString

		if err := rows.Scan(&idStr, &userIDStr, &dateStr, &b.Title, &b.Content, &displayAtStr, &dismissedAt, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning brief row: %w", err)
		}
		if b.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("parsing brief id: %w", err)
		}
		if b.UserID, err = uuid.Parse(userIDStr); err != nil {
			return nil, fmt.Errorf("parsing brief user_id: %w", err)
		}
		if b.UTCDate, err = time.Parse("2006-01-02", dateStr); err != nil {
			return nil, fmt.Errorf("parsing utc_date: %w", err)
		}
		if b.DisplayAt, err = time.Parse(time.RFC3339, displayAtStr); err != nil {
			return nil, fmt.Errorf("parsing display_at: %w", err)
		}
		if dismissedAt.Valid {
			t, err := time.Parse(time.RFC3339, dismissedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parsing dismissed_at: %w", err)
			}
			b.DismissedAt = &t
		}
		if b.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}

		briefs = append(briefs, &b)
	}
	return briefs, rows.Err()
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)

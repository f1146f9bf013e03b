// ABOUTME: Store interface and data types for everlight-agents persistence
// ABOUTME: Defines User, Agent, Message, Conversation structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when a conversation with the same
// identity key already exists. Callers performing get-or-create should treat
// this as "someone else just created it" and re-query.
var ErrDuplicateConversation = errors.New("conversation already exists")

// ErrDuplicateAgent is returned when an agent with the same (user, name)
// pair already exists.
var ErrDuplicateAgent = errors.New("agent already exists")

// User is the tenant root; every other entity hangs off a user.
type User struct {
	ID        uuid.UUID
	Email     string
	CreatedAt time.Time
}

// Agent is a named, user-scoped actor with a prompt and a tool allow-list.
// The (UserID, Name) pair is the addressing key used throughout the system
// and is immutable after creation.
type Agent struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	Prompt    string
	Tools     []string
	CreatedAt time.Time
}

// AgentSubscription subscribes an agent to a channel name. Channels are bare
// strings; there is no separate channel entity.
type AgentSubscription struct {
	ID        uuid.UUID
	AgentID   uuid.UUID
	Channel   string
	CreatedAt time.Time
}

// MessagePayload is the channel/message body persisted with every publication.
type MessagePayload struct {
	Channel string `json:"channel"`
	Message string `json:"message"`
}

// Message is the immutable audit record of one channel publication.
// Rows are append-only; persistence is never conditioned on delivery outcome.
type Message struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Sender    string
	Payload   MessagePayload
	CreatedAt time.Time
}

// Conversation types
const (
	ConversationTypeDM   = "dm"
	ConversationTypeSelf = "self"
)

// Conversation member roles
const (
	MemberRoleOwner  = "owner"
	MemberRoleMember = "member"
)

// Conversation is a persisted thread between exactly two agents (dm) or one
// agent and itself (self). Identity is derived, never chosen by the caller:
// for dm conversations DMAID < DMBID under string comparison of the UUIDs.
type Conversation struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	Type             string
	Name             string
	DMAID            *uuid.UUID
	DMBID            *uuid.UUID
	SelfAgentID      *uuid.UUID
	CreatedByAgentID *uuid.UUID
	CreatedAt        time.Time
}

// ConversationMember links an agent to a conversation with a role.
type ConversationMember struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	AgentID        uuid.UUID
	Role           string
	CreatedAt      time.Time
}

// ChatMessage is one append-only message within a conversation.
type ChatMessage struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	SenderAgentID  uuid.UUID
	Content        string
	ContentType    string
	CreatedAt      time.Time
}

// ChatMessageFilter bounds a chat history query. Zero values mean unbounded.
type ChatMessageFilter struct {
	Limit  int
	Before *time.Time
	After  *time.Time
}

// Note is a semantic summary owned by an agent, embedded for similarity search.
type Note struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	OwnerID   uuid.UUID
	Title     string
	Content   string
	Embedding []float32
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RawEntry is a raw ingested record (journal entry, imported data, etc).
type RawEntry struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Source    string
	Content   string
	Embedding []float32
	CreatedAt time.Time
}

// Slate is the user's single mutable "living slate" document.
type Slate struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Content   string
	UpdatedAt time.Time
}

// Brief is a scheduled note surfaced to the user at a display time.
type Brief struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	UTCDate     time.Time
	Title       string
	Content     string
	DisplayAt   time.Time
	DismissedAt *time.Time
	CreatedAt   time.Time
}

// Store defines the persistence interface. Both SQLiteStore and
// PostgresStore implement it.
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)

	// Agents
	CreateAgent(ctx context.Context, agent *Agent) error
	GetAgent(ctx context.Context, id uuid.UUID) (*Agent, error)
	GetAgentByName(ctx context.Context, userID uuid.UUID, name string) (*Agent, error)
	ListAgents(ctx context.Context, userID uuid.UUID) ([]*Agent, error)
	UpdateAgent(ctx context.Context, agent *Agent) error

	// Subscriptions (channel registry)
	CreateSubscription(ctx context.Context, sub *AgentSubscription) error
	Subscribers(ctx context.Context, userID uuid.UUID, channel string) ([]*Agent, error)

	// Messages (audit log of channel publications)
	SaveMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, userID uuid.UUID, limit int) ([]*Message, error)

	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation, members []*ConversationMember) error
	GetDMConversation(ctx context.Context, userID, aID, bID uuid.UUID) (*Conversation, error)
	GetSelfConversation(ctx context.Context, userID, agentID uuid.UUID) (*Conversation, error)
	ListConversations(ctx context.Context, userID uuid.UUID, kind string) ([]*Conversation, error)
	ListConversationMembers(ctx context.Context, conversationID uuid.UUID) ([]*ConversationMember, error)

	// Chat messages
	SaveChatMessage(ctx context.Context, msg *ChatMessage) error
	ListChatMessages(ctx context.Context, conversationID uuid.UUID, filter ChatMessageFilter) ([]*ChatMessage, error)
	LastChatMessageAt(ctx context.Context, conversationID uuid.UUID) (*time.Time, error)

	// Notes
	CreateNote(ctx context.Context, note *Note) error
	GetNote(ctx context.Context, userID, id uuid.UUID) (*Note, error)
	UpdateNote(ctx context.Context, note *Note) error
	SearchNotes(ctx context.Context, userID uuid.UUID, query []float32, limit int) ([]*Note, error)
	ListNotes(ctx context.Context, userID uuid.UUID) ([]*Note, error)

	// Raw entries
	CreateRawEntry(ctx context.Context, entry *RawEntry) error
	SearchRawEntries(ctx context.Context, userID uuid.UUID, query []float32, limit int, source string) ([]*RawEntry, error)
	ListRecentRawEntries(ctx context.Context, userID uuid.UUID, limit int) ([]*RawEntry, error)

	// Slate
	GetSlate(ctx context.Context, userID uuid.UUID) (*Slate, error)
	UpsertSlate(ctx context.Context, userID uuid.UUID, content string) error

	// Briefs
	CreateBrief(ctx context.Context, brief *Brief) error
	ListBriefs(ctx context.Context, userID uuid.UUID, date time.Time, includeDismissed bool) ([]*Brief, error)

	// Ping checks connectivity
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}

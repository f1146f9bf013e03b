// ABOUTME: Conversation directory with get-or-create ensure semantics
// ABOUTME: Guarantees deterministic conversation identity regardless of call order

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Directory resolves agent identities to canonical Conversation rows,
// creating them lazily on first use. It is stateless beyond the persisted
// rows; every call goes to the store.
type Directory struct {
	store  Store
	logger *slog.Logger
}

// NewDirectory creates a conversation directory over the given store.
func NewDirectory(s Store) *Directory {
	return &Directory{
		store:  s,
		logger: slog.Default().With("component", "directory"),
	}
}

// EnsureSelf returns the agent's self-conversation, creating it (with one
// owner member) if absent. Repeated calls return the same row.
func (d *Directory) EnsureSelf(ctx context.Context, userID uuid.UUID, agent *Agent) (*Conversation, error) {
	conv, err := d.store.GetSelfConversation(ctx, userID, agent.ID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("looking up self conversation: %w", err)
	}

	agentID := agent.ID
	conv = &Conversation{
		ID:               uuid.New(),
		UserID:           userID,
		Type:             ConversationTypeSelf,
		Name:             GenerateSelfDMName(agent.Name),
		SelfAgentID:      &agentID,
		CreatedByAgentID: &agentID,
	}
	members := []*ConversationMember{
		{ID: uuid.New(), ConversationID: conv.ID, AgentID: agent.ID, Role: MemberRoleOwner},
	}

	err = d.store.CreateConversation(ctx, conv, members)
	if errors.Is(err, ErrDuplicateConversation) {
		// Lost a creation race; the winner's row is the canonical one.
		return d.store.GetSelfConversation(ctx, userID, agent.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("creating self conversation: %w", err)
	}

	d.logger.Debug("created self conversation", "id", conv.ID, "agent", agent.Name)
	return conv, nil
}

// EnsureDM returns the canonical DM conversation between two agents,
// creating it (with two member rows) if absent. The storage key orders the
// pair by string comparison of the agent UUIDs, so EnsureDM(a, b) and
// EnsureDM(b, a) resolve to the same row. If a == b this delegates to
// EnsureSelf.
func (d *Directory) EnsureDM(ctx context.Context, userID uuid.UUID, a, b *Agent) (*Conversation, error) {
	if a.ID == b.ID {
		return d.EnsureSelf(ctx, userID, a)
	}

	lowID, highID := orderPair(a.ID, b.ID)

	conv, err := d.store.GetDMConversation(ctx, userID, lowID, highID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("looking up dm conversation: %w", err)
	}

	createdBy := a.ID
	conv = &Conversation{
		ID:               uuid.New(),
		UserID:           userID,
		Type:             ConversationTypeDM,
		Name:             GenerateDMName(a.Name, b.Name),
		DMAID:            &lowID,
		DMBID:            &highID,
		CreatedByAgentID: &createdBy,
	}
	members := []*ConversationMember{
		{ID: uuid.New(), ConversationID: conv.ID, AgentID: a.ID, Role: MemberRoleMember},
		{ID: uuid.New(), ConversationID: conv.ID, AgentID: b.ID, Role: MemberRoleMember},
	}

	err = d.store.CreateConversation(ctx, conv, members)
	if errors.Is(err, ErrDuplicateConversation) {
		return d.store.GetDMConversation(ctx, userID, lowID, highID)
	}
	if err != nil {
		return nil, fmt.Errorf("creating dm conversation: %w", err)
	}

	d.logger.Debug("created dm conversation", "id", conv.ID, "a", a.Name, "b", b.Name)
	return conv, nil
}

// orderPair returns the two IDs ordered by string comparison of their UUID
// text form. The order is stable and arbitrary; it exists only to make the
// (dm_a_id, dm_b_id) key deterministic at both write and lookup time.
func orderPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() < b.String() {
		return a, b
	}
	return b, a
}

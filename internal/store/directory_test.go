// ABOUTME: Tests for conversation directory ensure semantics
// ABOUTME: Covers idempotence, commutativity and name generation

package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDMName_AlphabeticalByName(t *testing.T) {
	assert.Equal(t, "Direct Message between Eforos and Safine", GenerateDMName("Safine", "Eforos"))
	assert.Equal(t, "Direct Message between Eforos and Safine", GenerateDMName("Eforos", "Safine"))
	assert.Equal(t, "Direct Message with Safine (self)", GenerateSelfDMName("Safine"))
}

func TestEnsureSelf_Idempotent(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	user := seedUser(t, store)
	agent := seedAgent(t, store, user, "Safine")
	dir := NewDirectory(store)

	first, err := dir.EnsureSelf(ctx, user.ID, agent)
	require.NoError(t, err)
	assert.Equal(t, "Direct Message with Safine (self)", first.Name)
	assert.Equal(t, ConversationTypeSelf, first.Type)

	second, err := dir.EnsureSelf(ctx, user.ID, agent)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	members, err := store.ListConversationMembers(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, MemberRoleOwner, members[0].Role)
}

func TestEnsureDM_Commutative(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	user := seedUser(t, store)
	a := seedAgent(t, store, user, "Eforos")
	b := seedAgent(t, store, user, "Safine")
	dir := NewDirectory(store)

	ab, err := dir.EnsureDM(ctx, user.ID, a, b)
	require.NoError(t, err)
	ba, err := dir.EnsureDM(ctx, user.ID, b, a)
	require.NoError(t, err)

	assert.Equal(t, ab.ID, ba.ID)
	assert.Equal(t, "Direct Message between Eforos and Safine", ab.Name)

	members, err := store.ListConversationMembers(ctx, ab.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestEnsureDM_SameAgentDelegatesToSelf(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	user := seedUser(t, store)
	agent := seedAgent(t, store, user, "Safine")
	dir := NewDirectory(store)

	conv, err := dir.EnsureDM(ctx, user.ID, agent, agent)
	require.NoError(t, err)
	assert.Equal(t, ConversationTypeSelf, conv.Type)
	assert.Equal(t, "Direct Message with Safine (self)", conv.Name)
}

// racingStore simulates losing a creation race: the first lookup misses,
// the create hits the unique constraint because a concurrent caller just
// inserted the row, and the requery finds that winner.
type racingStore struct {
	Store
	dmLookups   int
	selfLookups int
	creates     int
}

func (r *racingStore) GetDMConversation(ctx context.Context, userID, aID, bID uuid.UUID) (*Conversation, error) {
	r.dmLookups++
	if r.dmLookups == 1 {
		return nil, ErrNotFound
	}
	return r.Store.GetDMConversation(ctx, userID, aID, bID)
}

func (r *racingStore) GetSelfConversation(ctx context.Context, userID, agentID uuid.UUID) (*Conversation, error) {
	r.selfLookups++
	if r.selfLookups == 1 {
		return nil, ErrNotFound
	}
	return r.Store.GetSelfConversation(ctx, userID, agentID)
}

func (r *racingStore) CreateConversation(ctx context.Context, conv *Conversation, members []*ConversationMember) error {
	r.creates++
	return ErrDuplicateConversation
}

func TestEnsureDM_LostRaceReturnsWinner(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	user := seedUser(t, store)
	a := seedAgent(t, store, user, "Eforos")
	b := seedAgent(t, store, user, "Safine")

	// The winner's row, inserted as if by a concurrent caller.
	winner, err := NewDirectory(store).EnsureDM(ctx, user.ID, a, b)
	require.NoError(t, err)

	racing := &racingStore{Store: store}
	got, err := NewDirectory(racing).EnsureDM(ctx, user.ID, a, b)
	require.NoError(t, err)
	assert.Equal(t, winner.ID, got.ID)
	assert.Equal(t, 1, racing.creates)
	assert.Equal(t, 2, racing.dmLookups)
}

func TestEnsureSelf_LostRaceReturnsWinner(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	user := seedUser(t, store)
	agent := seedAgent(t, store, user, "Safine")

	winner, err := NewDirectory(store).EnsureSelf(ctx, user.ID, agent)
	require.NoError(t, err)

	racing := &racingStore{Store: store}
	got, err := NewDirectory(racing).EnsureSelf(ctx, user.ID, agent)
	require.NoError(t, err)
	assert.Equal(t, winner.ID, got.ID)
	assert.Equal(t, 1, racing.creates)
}

func TestOrderPair_StableByIDString(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	user := seedUser(t, store)
	a := seedAgent(t, store, user, "Eforos")
	b := seedAgent(t, store, user, "Safine")

	x1, y1 := orderPair(a.ID, b.ID)
	x2, y2 := orderPair(b.ID, a.ID)
	assert.Equal(t, x1, x2)
	assert.Equal(t, y1, y2)
	assert.True(t, x1.String() < y1.String())
}

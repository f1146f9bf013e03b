// ABOUTME: Shared test fixtures for the tool packs
// ABOUTME: Builds a tool context over a temp SQLite store and fake transport

package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tommyyliu/everlight-agents/internal/comms"
	"github.com/tommyyliu/everlight-agents/internal/embedding"
	"github.com/tommyyliu/everlight-agents/internal/store"
)

type fakeTransport struct {
	mu        sync.Mutex
	delivered []comms.NotificationPayload
}

func (f *fakeTransport) Name() string { return comms.ModeLocal }

func (f *fakeTransport) Deliver(_ context.Context, payload comms.NotificationPayload, _ *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, payload)
	return nil
}

func (f *fakeTransport) sent() []comms.NotificationPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]comms.NotificationPayload{}, f.delivered...)
}

type fixture struct {
	tc        *Context
	store     store.Store
	user      *store.User
	transport *fakeTransport
}

// newFixture builds a tool context for agent "Eforos" with a second agent
// "Safine" present.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	user := &store.User{Email: "test@example.com"}
	require.NoError(t, st.CreateUser(ctx, user))

	for _, name := range []string{"Eforos", "Safine"} {
		agent := &store.Agent{UserID: user.ID, Name: name, Prompt: "You are " + name + "."}
		require.NoError(t, st.CreateAgent(ctx, agent))
	}

	transport := &fakeTransport{}
	tc := &Context{
		Store:      st,
		Directory:  store.NewDirectory(st),
		Dispatcher: comms.NewDispatcher(st, transport, nil, true),
		Embedder:   embedding.NewLocal(),
		UserID:     user.ID,
		AgentName:  "Eforos",
	}
	return &fixture{tc: tc, store: st, user: user, transport: transport}
}

func invoke(t *testing.T, tc *Context, handler Handler, input string) string {
	t.Helper()

	result, err := handler(context.Background(), tc, json.RawMessage(input))
	require.NoError(t, err)
	return result
}

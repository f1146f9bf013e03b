// ABOUTME: End-to-end test of the receive-process path
// ABOUTME: Drives POST /message through a real factory, registry, and store

package endpoint

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tommyyliu/everlight-agents/internal/agent"
	"github.com/tommyyliu/everlight-agents/internal/comms"
	"github.com/tommyyliu/everlight-agents/internal/embedding"
	"github.com/tommyyliu/everlight-agents/internal/store"
	"github.com/tommyyliu/everlight-agents/internal/tools"
)

// A publication on Safine's channel should reach Safine, load her config,
// and let her act through her tools against the store.
func TestMessage_EndToEndAgentRun(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	user := &store.User{Email: "e2e@example.com"}
	require.NoError(t, st.CreateUser(ctx, user))

	safine := &store.Agent{
		UserID: user.ID,
		Name:   "Safine",
		Prompt: "You curate the slate.",
		Tools:  []string{"update_slate", "read_slate"},
	}
	require.NoError(t, st.CreateAgent(ctx, safine))
	require.NoError(t, st.CreateSubscription(ctx, &store.AgentSubscription{
		AgentID: safine.ID,
		Channel: "safine",
	}))

	disp := comms.NewDispatcher(st, nil, nil, true)
	factory := agent.NewFactory(st, store.NewDirectory(st), disp, embedding.NewLocal(),
		tools.DefaultRegistry(), agent.NewEchoRunner(), nil, true)
	srv := New(st, factory, false, "")

	body := `{"user_id":"` + user.ID.String() + `","channel":"safine","message":"please update_slate with the plan","sender":"Eforos"}`
	req := httptest.NewRequest(http.MethodPost, "/message", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	srv.Wait()

	// The echo runner saw update_slate named in the prompt and invoked it,
	// so a slate row now exists.
	slate, err := st.GetSlate(ctx, user.ID)
	require.NoError(t, err)
	assert.NotNil(t, slate)
}

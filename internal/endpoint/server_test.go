// ABOUTME: Tests for the message endpoint fan-out and health route
// ABOUTME: Uses a fake processor to observe background agent runs

package endpoint

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tommyyliu/everlight-agents/internal/store"
)

type fakeProcessor struct {
	mu   sync.Mutex
	runs []string
}

func (f *fakeProcessor) Process(_ context.Context, _ uuid.UUID, agentName, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, agentName)
	return "ok: " + prompt, nil
}

func (f *fakeProcessor) processed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.runs...)
}

func newTestServer(t *testing.T) (*Server, *fakeProcessor, store.Store, *store.User) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	user := &store.User{Email: "test@example.com"}
	require.NoError(t, st.CreateUser(ctx, user))

	proc := &fakeProcessor{}
	srv := New(st, proc, false, "")
	return srv, proc, st, user
}

func subscribe(t *testing.T, st store.Store, user *store.User, name, channel string) {
	t.Helper()

	ctx := context.Background()
	agent := &store.Agent{UserID: user.ID, Name: name, Prompt: "You are " + name + "."}
	require.NoError(t, st.CreateAgent(ctx, agent))
	require.NoError(t, st.CreateSubscription(ctx, &store.AgentSubscription{
		AgentID: agent.ID,
		Channel: channel,
	}))
}

func postMessage(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/message", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "everlight-agents", body["service"])
}

func TestMessage_FanOutExcludesSender(t *testing.T) {
	srv, proc, st, user := newTestServer(t)
	subscribe(t, st, user, "Eforos", "raw_data_entries")
	subscribe(t, st, user, "Safine", "raw_data_entries")

	rec := postMessage(t, srv, `{"user_id":"`+user.ID.String()+`","channel":"raw_data_entries","message":"new entry","sender":"Eforos"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Message accepted. Processing for 1 agent(s) has been initiated.", body["message"])

	srv.Wait()
	assert.Equal(t, []string{"Safine"}, proc.processed())
}

func TestMessage_ZeroSubscribers(t *testing.T) {
	srv, proc, _, user := newTestServer(t)

	rec := postMessage(t, srv, `{"user_id":"`+user.ID.String()+`","channel":"empty","message":"anyone?","sender":"cli"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Message accepted. Processing for 0 agent(s) has been initiated.", body["message"])

	srv.Wait()
	assert.Empty(t, proc.processed())
}

func TestMessage_InvalidUserID(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := postMessage(t, srv, `{"user_id":"not-a-uuid","channel":"c","message":"m","sender":"s"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "not a valid UUID")
}

func TestMessage_MalformedBody(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := postMessage(t, srv, `{broken`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postMessage(t, srv, `{"user_id":"`+uuid.NewString()+`","channel":"","message":"","sender":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

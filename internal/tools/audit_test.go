// ABOUTME: Tests for the JSONL tool audit log
// ABOUTME: Covers entry shape, appending, and the nil no-op

package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLog_AppendsJSONLines(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "tool_calls.jsonl")
	f.tc.Audit = NewAuditLog(path)

	tool, ok := DefaultRegistry().Get("get_hourly_weather")
	require.True(t, ok)

	_, err := tool.Invoke(context.Background(), f.tc, json.RawMessage(`{}`))
	require.NoError(t, err)
	_, err = tool.Invoke(context.Background(), f.tc, json.RawMessage(`{}`))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var entry struct {
		Timestamp string          `json:"timestamp"`
		UserID    string          `json:"user_id"`
		AgentName string          `json:"agent_name"`
		Tool      string          `json:"tool"`
		Args      json.RawMessage `json:"args"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "get_hourly_weather", entry.Tool)
	assert.Equal(t, "Eforos", entry.AgentName)
	assert.Equal(t, f.user.ID.String(), entry.UserID)
	assert.NotEmpty(t, entry.Timestamp)
}

func TestAuditLog_NilIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.tc.Audit = NewAuditLog("")
	require.Nil(t, f.tc.Audit)

	tool, ok := DefaultRegistry().Get("get_current_time")
	require.True(t, ok)
	_, err := tool.Invoke(context.Background(), f.tc, nil)
	assert.NoError(t, err)
}

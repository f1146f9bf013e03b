// ABOUTME: Append-only JSONL audit log of tool invocations
// ABOUTME: Used by evaluation runs; logging failures never fail the tool

package tools

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"
)

// AuditLog appends one JSON line per tool invocation to a file. A nil
// AuditLog is a no-op; construct one only when a log path is configured.
type AuditLog struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// NewAuditLog creates an audit log writing to path. Returns nil when
// path is empty so callers can pass the result through unconditionally.
func NewAuditLog(path string) *AuditLog {
	if path == "" {
		return nil
	}
	return &AuditLog{
		path:   path,
		logger: slog.Default().With("component", "tool-audit"),
	}
}

type auditEntry struct {
	Timestamp string          `json:"timestamp"`
	UserID    string          `json:"user_id"`
	AgentName string          `json:"agent_name"`
	Tool      string          `json:"tool"`
	Args      json.RawMessage `json:"args"`
}

// Record appends one entry. Failures are logged and swallowed; an audit
// log must never crash a tool call.
func (a *AuditLog) Record(tc *Context, tool string, args json.RawMessage) {
	if a == nil {
		return
	}

	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	entry := auditEntry{
		Timestamp: time.Now().Format(time.RFC3339Nano),
		UserID:    tc.UserID.String(),
		AgentName: tc.AgentName,
		Tool:      tool,
		Args:      args,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		a.logger.Warn("failed to encode audit entry", "tool", tool, "error", err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		a.logger.Warn("failed to open audit log", "path", a.path, "error", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		a.logger.Warn("failed to write audit entry", "path", a.path, "error", err)
	}
}

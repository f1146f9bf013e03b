// ABOUTME: Core tool types shared across all agent tool packs
// ABOUTME: Tools take JSON input and return agent-consumable strings

package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tommyyliu/everlight-agents/internal/comms"
	"github.com/tommyyliu/everlight-agents/internal/embedding"
	"github.com/tommyyliu/everlight-agents/internal/store"
)

// Definition describes a tool to the agent runtime.
type Definition struct {
	Name            string
	Description     string
	InputSchemaJSON string
}

// Handler executes a tool. Expected conditions (missing agent, bad ID)
// come back as descriptive strings in the result; the error return is for
// infrastructure failures only.
type Handler func(ctx context.Context, tc *Context, input json.RawMessage) (string, error)

// Tool pairs a definition with its handler.
type Tool struct {
	Definition Definition
	Handler    Handler
}

// Invoke records the call in the audit log and runs the handler.
func (t *Tool) Invoke(ctx context.Context, tc *Context, input json.RawMessage) (string, error) {
	if tc.Audit != nil {
		tc.Audit.Record(tc, t.Definition.Name, input)
	}
	return t.Handler(ctx, tc, input)
}

// Context carries the per-invocation dependencies every tool needs. One
// Context is built per agent request; tools never reach for globals.
type Context struct {
	Store      store.Store
	Directory  *store.Directory
	Dispatcher *comms.Dispatcher
	Embedder   embedding.Embedder

	UserID    uuid.UUID
	AgentName string

	// Testing short-circuits external sends.
	Testing bool

	Audit *AuditLog

	// Now overrides the clock in tests. Nil means time.Now.
	Now func() time.Time
}

func (tc *Context) now() time.Time {
	if tc.Now != nil {
		return tc.Now()
	}
	return time.Now()
}

// me resolves the calling agent's own record.
func (tc *Context) me(ctx context.Context) (*store.Agent, error) {
	return tc.Store.GetAgentByName(ctx, tc.UserID, tc.AgentName)
}

// ABOUTME: Per-request agent factory backed by database configuration
// ABOUTME: Loads agent config fresh on every request, no process cache

package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tommyyliu/everlight-agents/internal/comms"
	"github.com/tommyyliu/everlight-agents/internal/embedding"
	"github.com/tommyyliu/everlight-agents/internal/store"
	"github.com/tommyyliu/everlight-agents/internal/tools"
)

// Factory builds and runs agents from their database configuration. It
// is deliberately stateless between requests: agent config (prompt, tool
// list) is read fresh from the store on every Process call, so updates
// take effect immediately.
type Factory struct {
	store      store.Store
	directory  *store.Directory
	dispatcher *comms.Dispatcher
	embedder   embedding.Embedder
	registry   *tools.Registry
	runner     Runner
	audit      *tools.AuditLog
	testing    bool
	logger     *slog.Logger
}

// NewFactory creates an agent factory.
func NewFactory(st store.Store, dir *store.Directory, disp *comms.Dispatcher, emb embedding.Embedder, reg *tools.Registry, runner Runner, audit *tools.AuditLog, testing bool) *Factory {
	return &Factory{
		store:      st,
		directory:  dir,
		dispatcher: disp,
		embedder:   emb,
		registry:   reg,
		runner:     runner,
		audit:      audit,
		testing:    testing,
		logger:     slog.Default().With("component", "agent-factory"),
	}
}

// Process runs one agent turn: loads the agent's configuration, selects
// its allowed tools from the registry, and invokes the runner.
func (f *Factory) Process(ctx context.Context, userID uuid.UUID, agentName, prompt string) (string, error) {
	cfg, err := f.store.GetAgentByName(ctx, userID, agentName)
	if err != nil {
		return "", fmt.Errorf("loading agent %q: %w", agentName, err)
	}

	selected, missing := f.registry.Select(cfg.Tools)
	if len(missing) > 0 {
		f.logger.Warn("agent configured with unavailable tools",
			"agent", agentName,
			"missing", missing)
	}

	tc := &tools.Context{
		Store:      f.store,
		Directory:  f.directory,
		Dispatcher: f.dispatcher,
		Embedder:   f.embedder,
		UserID:     userID,
		AgentName:  cfg.Name,
		Testing:    f.testing,
		Audit:      f.audit,
	}

	f.logger.Info("running agent",
		"agent", cfg.Name,
		"user_id", userID,
		"tools", len(selected))

	reply, err := f.runner.Run(ctx, RunRequest{
		SystemPrompt: cfg.Prompt,
		Prompt:       prompt,
		Tools:        selected,
		ToolContext:  tc,
	})
	if err != nil {
		return "", fmt.Errorf("running agent %q: %w", agentName, err)
	}
	return reply, nil
}

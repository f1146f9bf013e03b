// ABOUTME: Runner abstraction over the external model runtime
// ABOUTME: EchoRunner is the local stand-in for development and tests

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tommyyliu/everlight-agents/internal/tools"
)

// RunRequest is one model turn for a configured agent.
type RunRequest struct {
	SystemPrompt string
	Prompt       string
	Tools        []*tools.Tool
	ToolContext  *tools.Context
}

// Runner executes a model turn. The real implementation talks to an LLM
// runtime; the service only depends on this interface.
type Runner interface {
	Run(ctx context.Context, req RunRequest) (string, error)
}

// EchoRunner is a deterministic runner for development and tests. It
// answers with the prompt it was given and, when a tool named in the
// prompt's first line is available, invokes it with empty input. That is
// enough to exercise the full receive-process path without a model.
type EchoRunner struct{}

// NewEchoRunner creates an echo runner.
func NewEchoRunner() *EchoRunner {
	return &EchoRunner{}
}

func (r *EchoRunner) Run(ctx context.Context, req RunRequest) (string, error) {
	var toolResults []string
	for _, t := range req.Tools {
		if !strings.Contains(req.Prompt, t.Definition.Name) {
			continue
		}
		result, err := t.Invoke(ctx, req.ToolContext, json.RawMessage(`{}`))
		if err != nil {
			return "", fmt.Errorf("invoking %s: %w", t.Definition.Name, err)
		}
		toolResults = append(toolResults, fmt.Sprintf("%s: %s", t.Definition.Name, result))
	}

	reply := fmt.Sprintf("[%s] processed: %s", req.ToolContext.AgentName, req.Prompt)
	if len(toolResults) > 0 {
		reply += "\n" + strings.Join(toolResults, "\n")
	}
	return reply, nil
}

var _ Runner = (*EchoRunner)(nil)

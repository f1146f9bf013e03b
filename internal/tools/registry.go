// ABOUTME: Fixed name-to-tool registry with fail-closed selection
// ABOUTME: Unknown configured tool names are logged and excluded

package tools

import (
	"log/slog"
	"sort"
)

// Registry maps tool names to tools. The set is fixed at construction;
// an agent configured with a name the registry doesn't know simply
// doesn't get that tool.
type Registry struct {
	tools  map[string]*Tool
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: slog.Default().With("component", "tool-registry"),
	}
}

// DefaultRegistry returns a registry holding every built-in tool pack.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(CommunicationPack()...)
	r.Register(ChatPack()...)
	r.Register(NotesPack()...)
	r.Register(DataPack()...)
	r.Register(SlatePack()...)
	r.Register(BriefPack()...)
	r.Register(UtilitiesPack()...)
	return r
}

// Register adds tools to the registry. A duplicate name overwrites the
// earlier registration and is logged.
func (r *Registry) Register(tools ...*Tool) {
	for _, t := range tools {
		if _, exists := r.tools[t.Definition.Name]; exists {
			r.logger.Warn("overwriting registered tool", "tool", t.Definition.Name)
		}
		r.tools[t.Definition.Name] = t
	}
}

// Get returns the named tool.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select resolves configured tool names to tools, fail closed: unknown
// names come back in missing and are logged, never silently granted.
func (r *Registry) Select(names []string) (selected []*Tool, missing []string) {
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			r.logger.Warn("configured tool is not registered", "tool", name)
			missing = append(missing, name)
			continue
		}
		selected = append(selected, t)
	}
	return selected, missing
}

// Package tools holds the functions the agent may call and dispatches model
// tool calls to them.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/claw/llm"
	"github.com/aschepis/backscratcher/claw/metrics"
	"github.com/aschepis/backscratcher/claw/tools/schemas"
)

// Executor runs one tool call. args is never nil.
type Executor func(ctx context.Context, args map[string]any) (string, error)

type tool struct {
	spec llm.ToolSpec
	exec Executor
}

// Registry maps tool names to their spec and executor.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]tool
	logger zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	logger = logger.With().Str("component", "tool_registry").Logger()
	return &Registry{
		tools:  make(map[string]tool),
		logger: logger,
	}
}

// Register adds or replaces a tool. The description and argument schema are
// looked up in the schemas package by name.
func (r *Registry) Register(name string, exec Executor) {
	r.RegisterSpec(SpecFor(name), exec)
}

// RegisterSpec adds or replaces a tool with an explicit spec.
func (r *Registry) RegisterSpec(spec llm.ToolSpec, exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger.Debug().Str("name", spec.Name).Msg("Registering tool")
	r.tools[spec.Name] = tool{spec: spec, exec: exec}
}

// Specs returns the specs of every registered tool, sorted by name.
func (r *Registry) Specs() []llm.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]llm.ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, t.spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Execute runs the named tool and returns its output. Failures are reported
// as text for the model to read; Execute itself never fails.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result string) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn().Str("tool", name).Msg("Unknown tool requested")
		metrics.ToolCallsTotal.WithLabelValues("unknown", metrics.OutcomeError).Inc()
		return fmt.Sprintf("Error: Unknown tool %q", name)
	}
	if args == nil {
		args = map[string]any{}
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Str("tool", name).Interface("panic", p).Msg("Tool panicked")
			metrics.ToolCallsTotal.WithLabelValues(name, metrics.OutcomeError).Inc()
			result = fmt.Sprintf("Error executing tool %q: %v", name, p)
		}
	}()

	r.logger.Info().Str("tool", name).Interface("args", args).Msg("Executing tool")
	out, err := t.exec(ctx, args)
	if err != nil {
		r.logger.Warn().Str("tool", name).Err(err).Dur("took", time.Since(start)).Msg("Tool returned error")
		metrics.ToolCallsTotal.WithLabelValues(name, metrics.OutcomeError).Inc()
		return fmt.Sprintf("Error executing tool %q: %s", name, err.Error())
	}

	r.logger.Debug().Str("tool", name).Int("result_len", len(out)).Dur("took", time.Since(start)).Msg("Tool returned result")
	metrics.ToolCallsTotal.WithLabelValues(name, metrics.OutcomeOK).Inc()
	return out
}

// SpecFor converts the schema registered under name into an llm.ToolSpec.
// Unknown names get an empty object schema.
func SpecFor(name string) llm.ToolSpec {
	s := schemas.All()[name]
	spec := llm.ToolSpec{
		Name:        name,
		Description: s.Description,
		Schema:      llm.ToolSchema{Type: "object", Properties: map[string]any{}},
	}
	if t, ok := s.Schema["type"].(string); ok {
		spec.Schema.Type = t
	}
	if props, ok := s.Schema["properties"].(map[string]any); ok {
		spec.Schema.Properties = props
	}
	if req, ok := s.Schema["required"].([]string); ok {
		spec.Schema.Required = req
	}
	return spec
}

// Package tools provides the tool registry consumed by the agentic and
// direct-call actions: named callables with OpenAI-style function schemas.
package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/anuj67851/genai-workflow-maker/pkg/registry"
)

// ErrToolNotFound is returned when a lookup names an unregistered tool.
var ErrToolNotFound = errors.New("tool not found")

// Definition is the OpenAI-style function description sent to the model.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Tool is a named callable with a parameter schema.
type Tool interface {
	Definition() Definition
	Call(ctx context.Context, args map[string]any) (any, error)
}

// Registry maps tool names to callables. It is populated at startup and
// read-mostly afterwards.
type Registry struct {
	*registry.BaseRegistry[Tool]
}

func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Tool]()}
}

// Add registers a tool under its own name.
func (r *Registry) Add(tool Tool) error {
	return r.Register(tool.Definition().Name, tool)
}

// Lookup returns the named tool or ErrToolNotFound.
func (r *Registry) Lookup(name string) (Tool, error) {
	tool, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return tool, nil
}

// ByNames returns the named subset of the registry, failing on the first
// unknown name.
func (r *Registry) ByNames(names []string) ([]Tool, error) {
	selected := make([]Tool, 0, len(names))
	for _, name := range names {
		tool, err := r.Lookup(name)
		if err != nil {
			return nil, err
		}
		selected = append(selected, tool)
	}
	return selected, nil
}

// Definitions returns the schemas of every registered tool, ordered by name.
func (r *Registry) Definitions() []Definition {
	items := r.List()
	defs := make([]Definition, 0, len(items))
	for _, tool := range items {
		defs = append(defs, tool.Definition())
	}
	return defs
}

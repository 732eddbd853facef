// Package tools implements the callable tools exposed to the model
// during streaming: web search and page browsing.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lk2023060901/pentestgpt-backend/internal/llm"
)

// Result is what a tool hands back: content for the model plus any
// source URLs to surface as citations.
type Result struct {
	Content   string
	Citations []string
}

// Tool is one callable tool.
type Tool interface {
	Definition() llm.ToolDefinition
	Execute(ctx context.Context, args json.RawMessage) (*Result, error)
}

// Registry holds the tools offered to the model, in a stable order.
type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		name := t.Definition().Name
		if _, exists := r.tools[name]; !exists {
			r.order = append(r.order, name)
		}
		r.tools[name] = t
	}
	return r
}

// Definitions lists tool definitions for the chat request.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Execute runs the named tool. Unknown tools return an error result
// rather than failing the stream, so the model can recover.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (*Result, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	return t.Execute(ctx, args)
}

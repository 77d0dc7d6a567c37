// Package tools describes the builtin and MCP tool surface the gateway
// exposes to the agent runtime: names, declared JSON Schemas for their
// input, and the registry used to validate tool-use blocks before dispatch.
package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Name identifies a tool by the name the agent runtime uses on the wire.
type Name string

// Builtin tool names the sandbox and the builtin tool executors recognize.
const (
	Read  Name = "Read"
	Write Name = "Write"
	Edit  Name = "Edit"
	Glob  Name = "Glob"
	Grep  Name = "Grep"
	Bash  Name = "Bash"
	Task  Name = "Task"
)

// Spec describes one tool's metadata: its name, a human-readable
// description surfaced to the model, and the JSON Schema its input must
// satisfy.
type Spec struct {
	Name        Name
	Description string
	InputSchema map[string]any
}

// Registry indexes Specs by name and compiles their schemas once, so
// per-invocation validation is just a schema.Validate call.
type Registry struct {
	mu         sync.RWMutex
	specs      map[Name]Spec
	compiled   map[Name]*jsonschema.Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		specs:    make(map[Name]Spec),
		compiled: make(map[Name]*jsonschema.Schema),
	}
}

// Register compiles and stores spec.InputSchema under spec.Name. Returns an
// error if the schema fails to compile; callers should treat this as a
// startup-time configuration error.
func (r *Registry) Register(spec Spec) error {
	c := jsonschema.NewCompiler()
	const resourceName = "inmem://tool-schema"
	if spec.InputSchema != nil {
		if err := c.AddResource(resourceName, spec.InputSchema); err != nil {
			return fmt.Errorf("tools: compile schema for %q: %w", spec.Name, err)
		}
	}
	var compiled *jsonschema.Schema
	if spec.InputSchema != nil {
		sch, err := c.Compile(resourceName)
		if err != nil {
			return fmt.Errorf("tools: compile schema for %q: %w", spec.Name, err)
		}
		compiled = sch
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.Name] = spec
	if compiled != nil {
		r.compiled[spec.Name] = compiled
	}
	return nil
}

// Lookup returns the spec registered for name, if any.
func (r *Registry) Lookup(name Name) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[name]
	return s, ok
}

// Names returns every registered tool name, in no particular order.
func (r *Registry) Names() []Name {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Name, 0, len(r.specs))
	for n := range r.specs {
		out = append(out, n)
	}
	return out
}

// Validate checks input against the compiled schema for name, if one was
// registered. Unknown tool names and tools with no declared schema are not
// errors here — schema validation is advisory input hygiene, not sandbox
// enforcement; the sandbox policy is the authoritative gate.
func (r *Registry) Validate(_ context.Context, name Name, input map[string]any) error {
	r.mu.RLock()
	sch, ok := r.compiled[name]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := sch.Validate(input); err != nil {
		return fmt.Errorf("tools: input for %q failed schema validation: %w", name, err)
	}
	return nil
}

// Builtins returns the Specs for the gateway's builtin sandboxed tools.
func Builtins() []Spec {
	return []Spec{
		{
			Name:        Read,
			Description: "Read a file from the sandbox workspace.",
			InputSchema: map[string]any{
				"type":                 "object",
				"properties":           map[string]any{"file_path": map[string]any{"type": "string"}},
				"required":             []any{"file_path"},
				"additionalProperties": true,
			},
		},
		{
			Name:        Write,
			Description: "Write a file to the sandbox workspace.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"file_path": map[string]any{"type": "string"},
					"content":   map[string]any{"type": "string"},
				},
				"required":             []any{"file_path", "content"},
				"additionalProperties": true,
			},
		},
		{
			Name:        Edit,
			Description: "Apply a find/replace edit to an existing file.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"file_path":  map[string]any{"type": "string"},
					"old_string": map[string]any{"type": "string"},
					"new_string": map[string]any{"type": "string"},
				},
				"required":             []any{"file_path", "old_string", "new_string"},
				"additionalProperties": true,
			},
		},
		{
			Name:        Glob,
			Description: "List files matching a glob pattern.",
			InputSchema: map[string]any{
				"type":                 "object",
				"properties":           map[string]any{"pattern": map[string]any{"type": "string"}},
				"required":             []any{"pattern"},
				"additionalProperties": true,
			},
		},
		{
			Name:        Grep,
			Description: "Search file contents by regular expression.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"pattern": map[string]any{"type": "string"},
					"path":    map[string]any{"type": "string"},
				},
				"required":             []any{"pattern"},
				"additionalProperties": true,
			},
		},
		{
			Name:        Bash,
			Description: "Execute a shell command in the sandbox workspace.",
			InputSchema: map[string]any{
				"type":                 "object",
				"properties":           map[string]any{"command": map[string]any{"type": "string"}},
				"required":             []any{"command"},
				"additionalProperties": true,
			},
		},
		{
			Name:        Task,
			Description: "Spawn a nested sub-agent to perform a bounded sub-task.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"description": map[string]any{"type": "string"},
					"prompt":      map[string]any{"type": "string"},
				},
				"required":             []any{"prompt"},
				"additionalProperties": true,
			},
		},
	}
}

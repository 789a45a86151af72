package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	ai "github.com/spetersoncode/openagent"
)

// registeredTool combines a tool definition with its handler and compiled schema.
type registeredTool struct {
	tool     Tool
	handler  Handler
	resolved *jsonschema.Resolved // nil when the tool declares no schema
}

func (rt *registeredTool) Definition() Tool { return rt.tool }

// Invoke validates input against the declared schema and runs the handler.
func (rt *registeredTool) Invoke(ctx context.Context, input any) (any, error) {
	if input == nil {
		input = map[string]any{}
	}
	if rt.resolved != nil {
		if err := rt.resolved.Validate(input); err != nil {
			return nil, &ValidationError{Name: rt.tool.Name, Err: err}
		}
	}
	return rt.handler(ctx, input)
}

// Registry manages registered tools and their handlers.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*registeredTool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*registeredTool),
	}
}

// Register adds a tool with its handler to the registry. The schema is
// compiled once here. Returns an error if a tool with the same name is
// already registered or the schema is invalid.
func (r *Registry) Register(tool Tool, handler Handler) error {
	if err := validName(tool.Name); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("tool: %s has no handler", tool.Name)
	}
	resolved, err := compileSchema(tool.Parameters)
	if err != nil {
		return &ErrInvalidSchema{Name: tool.Name, Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return &ErrToolAlreadyRegistered{Name: tool.Name}
	}
	r.tools[tool.Name] = &registeredTool{tool: tool, handler: handler, resolved: resolved}
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(tool Tool, handler Handler) {
	if err := r.Register(tool, handler); err != nil {
		panic(err)
	}
}

// Unregister removes a tool from the registry.
// It is a no-op if the tool is not registered.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Lookup returns the capability registered under name.
func (r *Registry) Lookup(name string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rt, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return rt, true
}

// GetTool retrieves a tool definition by name.
func (r *Registry) GetTool(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rt, ok := r.tools[name]
	if !ok {
		return Tool{}, false
	}
	return rt.tool, true
}

// Tools returns all registered tool definitions sorted by name.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, rt := range r.tools {
		tools = append(tools, rt.tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// Names returns the sorted names of all registered tools.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs a tool invocation against the registry. See the package
// level Execute for the error contract.
func (r *Registry) Execute(ctx context.Context, use ai.ToolUseBlock) (ai.ToolResultBlock, error) {
	return Execute(ctx, r, use)
}

// Registration holds a tool and its handler for fluent registration.
type Registration struct {
	Tool    Tool
	Handler Handler
}

// Func creates a Registration whose schema is generated from T.
// Panics if schema generation fails.
func Func[T any](name, description string, fn TypedHandler[T]) Registration {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		panic(fmt.Sprintf("tool: schema for %s: %v", name, err))
	}
	params, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("tool: schema for %s: %v", name, err))
	}

	handler := func(ctx context.Context, input any) (any, error) {
		args, err := decodeInto[T](input)
		if err != nil {
			return nil, err
		}
		return fn(ctx, args)
	}
	return Registration{
		Tool:    Tool{Name: name, Description: description, Parameters: params},
		Handler: handler,
	}
}

// WithSchema creates a Registration from a hand-written schema and handler.
func WithSchema(name, description string, schema json.RawMessage, h Handler) Registration {
	return Registration{
		Tool:    Tool{Name: name, Description: description, Parameters: schema},
		Handler: h,
	}
}

// Add registers one or more tools to the registry.
// Panics if any tool is already registered.
// Returns the registry for fluent chaining.
func (r *Registry) Add(regs ...Registration) *Registry {
	for _, reg := range regs {
		r.MustRegister(reg.Tool, reg.Handler)
	}
	return r
}

func compileSchema(params json.RawMessage) (*jsonschema.Resolved, error) {
	if len(params) == 0 {
		return nil, nil
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(params, &schema); err != nil {
		return nil, err
	}
	return schema.Resolve(nil)
}

var _ Executor = (*Registry)(nil)

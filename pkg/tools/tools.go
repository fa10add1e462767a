package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	loggerpkg "github.com/minhyannv/function-call-go/pkg/logger"
)

var (
	// ErrDuplicateTool is returned by Register when the name is taken.
	ErrDuplicateTool = errors.New("duplicate tool")
	// ErrUnknownTool is returned by Lookup for unregistered names.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidDeclaration is returned for empty names, nil handlers or
	// schemas that cannot be resolved.
	ErrInvalidDeclaration = errors.New("invalid tool declaration")
)

// Declaration is what the model sees of a tool.
type Declaration struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

// Handler runs a tool with its already-parsed arguments. The returned value
// must be JSON-serializable. Wrap an error with Fatal to abort the turn.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is a registered declaration with its handler.
type Tool struct {
	Declaration
	Handler Handler

	resolved *jsonschema.Resolved
}

// Validate checks parsed arguments against the declared parameter schema.
func (t Tool) Validate(args map[string]any) error {
	if t.resolved == nil {
		return nil
	}
	return t.resolved.Validate(args)
}

// Registry maps tool names to handlers. Lookups are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	order   []string
	logger  loggerpkg.Logger
	verbose bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger injects a logger; verbose enables debug output.
func WithLogger(l loggerpkg.Logger, verbose bool) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
		r.verbose = verbose
	}
}

// NewRegistry builds an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		tools:  make(map[string]Tool),
		logger: loggerpkg.NopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Register adds a tool. The parameter schema is resolved once here so that
// dispatch-time validation never fails on the schema itself.
func (r *Registry) Register(decl Declaration, handler Handler) error {
	decl.Name = strings.TrimSpace(decl.Name)
	if decl.Name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidDeclaration)
	}
	if handler == nil {
		return fmt.Errorf("%w: %s has no handler", ErrInvalidDeclaration, decl.Name)
	}

	tool := Tool{Declaration: decl, Handler: handler}
	if decl.Parameters != nil {
		resolved, err := decl.Parameters.Resolve(nil)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidDeclaration, decl.Name, err)
		}
		tool.resolved = resolved
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[decl.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, decl.Name)
	}
	r.tools[decl.Name] = tool
	r.order = append(r.order, decl.Name)
	loggerpkg.Debug(r.verbose, r.logger, "tool registered", map[string]any{"tool": decl.Name})
	return nil
}

// MustRegister is Register for static setup code.
func (r *Registry) MustRegister(decl Declaration, handler Handler) {
	if err := r.Register(decl, handler); err != nil {
		panic(err)
	}
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return Tool{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return tool, nil
}

// Declarations returns every declaration in registration order.
func (r *Registry) Declarations() []Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Declaration, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Declaration)
	}
	return out
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks a handler error as unrecoverable for the whole turn, e.g.
// resource exhaustion. Other handler errors are reported to the model.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err was marked with Fatal.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}

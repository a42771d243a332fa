// Package action implements the server-authoritative state-mutation
// pipeline: a registry of named state types with declared actions, and
// the Dispatcher that resolves, hydrates, binds, invokes, persists, and
// publishes per mutating request.
//
// The registry is an explicit dispatch table built at process start and
// read-only at serve time; names arriving over HTTP resolve to typed
// handler descriptors with no runtime introspection.
package action

import (
	"context"
	"fmt"
)

// State is a named, server-defined schema plus action set representing
// one unit of mutable application state.
type State interface {
	// StateName returns the logical type identifier.
	StateName() string

	// Fields returns every declared field by property name. Encoding
	// always emits the full declared set, not just touched fields.
	Fields() map[string]any

	// Hydrate loads declared fields from stored data, ignoring unknown
	// keys so older records survive schema evolution.
	Hydrate(data map[string]any)
}

// Param describes one declared action parameter.
type Param struct {
	// Name matches the payload key that supplies the argument.
	Name string

	// Default is used when the payload omits the parameter.
	Default any

	// HasDefault distinguishes a declared default from a zero value.
	HasDefault bool

	// Nullable parameters bind to nil when neither payload value nor
	// default exists.
	Nullable bool
}

// InvokeFunc executes an action against a hydrated instance with
// arguments bound in declaration order.
type InvokeFunc func(ctx context.Context, st State, args []any) (any, error)

// Descriptor binds an action name to its invocation mode, parameter
// schema, and typed invocation function.
type Descriptor struct {
	Name string

	// ClientOnly actions are never executed server-side.
	ClientOnly bool

	Params []Param
	Invoke InvokeFunc
}

// Type is one registered state type.
type Type struct {
	name    string
	factory func() State
	actions map[string]*Descriptor
}

// NewType creates a state type with the given factory.
func NewType(name string, factory func() State) *Type {
	return &Type{
		name:    name,
		factory: factory,
		actions: make(map[string]*Descriptor),
	}
}

// Name returns the state type's logical identifier.
func (t *Type) Name() string {
	return t.name
}

// New constructs a fresh instance with declared defaults.
func (t *Type) New() State {
	return t.factory()
}

// Action registers an action descriptor and returns the type for
// chaining.
func (t *Type) Action(d *Descriptor) *Type {
	t.actions[d.Name] = d
	return t
}

// Descriptor looks up an action by name.
func (t *Type) Descriptor(name string) (*Descriptor, bool) {
	d, ok := t.actions[name]
	return d, ok
}

// Registry maps state names to registered types. Build it fully before
// serving; lookups are not synchronized.
type Registry struct {
	types map[string]*Type
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Type)}
}

// Register adds a state type. Duplicate names are a configuration error.
func (r *Registry) Register(t *Type) error {
	if _, exists := r.types[t.name]; exists {
		return fmt.Errorf("registering state type: %q already registered", t.name)
	}
	r.types[t.name] = t
	return nil
}

// Lookup resolves a state name to its registered type.
func (r *Registry) Lookup(name string) (*Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

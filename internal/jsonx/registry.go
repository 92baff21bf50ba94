// Package jsonx implements Schemat's reversible JSON-with-class-tags
// encoding (spec.md §4.C): a bidirectional converter between arbitrary
// in-memory values and a pure-JSON "state" that round-trips through
// encoding/json, tagging non-primitive shapes with a reserved "@" key so
// decoding can reconstruct the original Go value.
package jsonx

import (
	"fmt"
	"reflect"
	"sync"
)

// Stateful is implemented by custom-class instances and containers (the
// spec's "getstate/setstate pair"). JSONXState returns the JSON-safe payload to
// persist under the class tag; it is run through Encode recursively.
type Stateful interface {
	JSONXState() (any, error)
}

// ClassNamed lets a value report its own classpath directly, bypassing
// reflection-based lookup in the ClassRegistry.
type ClassNamed interface {
	JSONXClass() string
}

// Constructor rebuilds a value of a registered class from its decoded
// state (the output of Stateful.JSONXState, already recursively decoded).
type Constructor func(state any) (any, error)

// ClassRegistry is the process-wide classpath<->constructor table described
// in spec.md §4.C: "this registry must be process-wide and initialized
// before any decode runs." It is nonetheless an explicit value here (not a
// package global) per the runtime's "avoid package-level globals" design
// note, so tests can build isolated registries.
type ClassRegistry struct {
	mu      sync.RWMutex
	ctors   map[string]Constructor
	namesOf map[reflect.Type]string
}

func NewClassRegistry() *ClassRegistry {
	return &ClassRegistry{
		ctors:   map[string]Constructor{},
		namesOf: map[reflect.Type]string{},
	}
}

// Register associates a dotted classpath with a zero-value sample (used to
// recognize instances by reflect.Type when they don't implement
// ClassNamed) and a constructor invoked at decode time.
func (r *ClassRegistry) Register(class string, sample any, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[class] = ctor
	if sample != nil {
		r.namesOf[reflect.TypeOf(sample)] = class
	}
}

// ClassOf resolves the classpath for v: ClassNamed is consulted first,
// then the reflect.Type table.
func (r *ClassRegistry) ClassOf(v any) (string, bool) {
	if named, ok := v.(ClassNamed); ok {
		return named.JSONXClass(), true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.namesOf[reflect.TypeOf(v)]
	return name, ok
}

// Construct rebuilds a class instance from decoded state.
func (r *ClassRegistry) Construct(class string, state any) (any, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[class]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("jsonx: unknown class %q (class registry not initialized for it)", class)
	}
	return ctor(state)
}

// Package object implements the WebObject core (spec.md §4.E): identity,
// data, schema-driven property access with inheritance, and the edit log
// that feeds a Transaction.
package object

import (
	"strings"
	"sync"

	"github.com/schemat-io/schemat/internal/catalog"
	"github.com/schemat-io/schemat/internal/jsonx"
	"github.com/schemat-io/schemat/internal/schematerr"
	"github.com/schemat-io/schemat/internal/types"
)

// State is the WebObject lifecycle state machine described in spec.md
// §4.E.
type State int

const (
	StateStub State = iota
	StateLoading
	StateNewborn
	StateLoaded
	StateMutableClone
	StateEvicted
)

func (s State) String() string {
	switch s {
	case StateStub:
		return "stub"
	case StateLoading:
		return "loading"
	case StateNewborn:
		return "newborn"
	case StateLoaded:
		return "loaded"
	case StateMutableClone:
		return "mutable_clone"
	case StateEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// Category resolves a field name to a Type and exposes the prototype
// chain used by property inheritance. *Object does not implement it; a
// Category is supplied to an Object from outside (see internal/demo for a
// concrete implementation).
type Category interface {
	FieldType(name string) types.Type
	Prototypes() []Category
	// OwnFieldValues returns the category's own default values for name,
	// distinct from anything contributed by its prototype chain: the
	// third property-computation input of spec.md §3 ("category
	// defaults"), consulted after own entries and prototype
	// concatenation and before imputation.
	OwnFieldValues(name string) []any
	// Classpath is the dotted classpath instances of this category are
	// tagged with on encode (spec.md §4.C).
	Classpath() string
	CacheTimeout() int64
}

// RPCProxy synthesizes the role-scoped proxy returned for any property
// name beginning with "$" (spec.md §4.E rule 4 / §4.I).
type RPCProxy interface {
	Call(method string, args ...any) (any, error)
}

// Getter is a class-registered computed property (spec.md §4.E rule 3).
// NoCache signals the result must not be memoized.
type Getter func(o *Object) (value any, noCache bool, err error)

// Class describes the behavior attached to a category: its registered
// getters and the RPC proxy factory for $role accesses.
type Class struct {
	Getters  map[string]Getter
	ProxyFor func(o *Object, role string) (RPCProxy, error)
}

// Object is the in-memory WebObject. Own data lives in a Catalog; cached
// computed values are memoized per instance.
type Object struct {
	mu sync.RWMutex

	id          int64
	hasID       bool
	provID      int64
	isNewborn   bool

	state State
	own   *catalog.Catalog

	category Category
	class    *Class

	cache   map[string]any
	cacheOK map[string]bool

	editLog []Edit
	version int64
}

// undefinedSentinel distinguishes "computed to nil" from "not cached"
// in the per-instance property cache (spec.md §4.E rule 2).
type undefinedSentinel struct{}

var Undefined = undefinedSentinel{}

// NewStub creates an object known only by id, with no data loaded yet.
func NewStub(id int64) *Object {
	return &Object{id: id, hasID: true, state: StateStub}
}

// NewNewborn creates an object with data but no id, pending insertion.
func NewNewborn(provID int64, own *catalog.Catalog, category Category, class *Class) *Object {
	if own == nil {
		own = catalog.New()
	}
	return &Object{
		provID:    provID,
		isNewborn: true,
		state:     StateNewborn,
		own:       own,
		category:  category,
		class:     class,
		cache:     map[string]any{},
		cacheOK:   map[string]bool{},
	}
}

// ID returns the object's id and whether it has been assigned one yet
// (false for a still-provisional Newborn).
func (o *Object) ID() (int64, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.id, o.hasID
}

// RefID implements types.Reference: provisional objects report their
// negative-counter id as "provisional".
func (o *Object) RefID() (int64, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.hasID {
		return o.id, false
	}
	return o.provID, true
}

func (o *Object) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// MarkLoaded installs data fetched by the loader and transitions
// Stub/Loading -> Loaded.
func (o *Object) MarkLoaded(id int64, own *catalog.Catalog, category Category, class *Class) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.id = id
	o.hasID = true
	o.own = own
	o.category = category
	o.class = class
	o.state = StateLoaded
	o.cache = map[string]any{}
	o.cacheOK = map[string]bool{}
}

// MarkLoadFailed reverts a Loading stub back to Stub with cleared data,
// per the lifecycle diagram's "on-error" transition.
func (o *Object) MarkLoadFailed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.own = nil
	o.state = StateStub
}

// MutableClone duplicates a Loaded object for editing; the clone shares
// no mutable sub-state with its source (spec.md invariant).
func (o *Object) MutableClone() *Object {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var cloned *catalog.Catalog
	if o.own != nil {
		cloned = o.own.Clone()
	}
	return &Object{
		id:       o.id,
		hasID:    o.hasID,
		state:    StateMutableClone,
		own:      cloned,
		category: o.category,
		class:    o.class,
		cache:    map[string]any{},
		cacheOK:  map[string]bool{},
		version:  o.version,
	}
}

func isReserved(name string) bool {
	switch name {
	case "id", "__id", "__ver", "__category", "__schema", "__status":
		return true
	}
	return false
}

func isInternal(name string) bool {
	return strings.HasPrefix(name, "_") && !isReserved(name)
}

// Get implements the property-read semantics of spec.md §4.E.
func (o *Object) Get(name string) (any, error) {
	if isReserved(name) {
		return o.getReserved(name)
	}

	o.mu.RLock()
	if cached, ok := o.cacheOK[name]; ok && cached {
		v := o.cache[name]
		o.mu.RUnlock()
		if _, isUndefined := v.(undefinedSentinel); isUndefined {
			return nil, nil
		}
		return v, nil
	}
	o.mu.RUnlock()

	if o.class != nil {
		if getter, ok := o.class.Getters[name]; ok {
			v, noCache, err := getter(o)
			if err != nil {
				return nil, err
			}
			if !noCache {
				o.mu.Lock()
				o.cache[name] = v
				o.cacheOK[name] = true
				o.mu.Unlock()
			}
			return v, nil
		}
	}

	if strings.HasPrefix(name, "$") {
		if o.class == nil || o.class.ProxyFor == nil {
			return nil, schematerr.New(schematerr.KindUnsupported, "object: no RPC proxy factory configured for role access "+name)
		}
		return o.class.ProxyFor(o, strings.TrimPrefix(name, "$"))
	}

	values, err := o.resolveField(name)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.cache[name+"$"] = values
	o.cacheOK[name+"$"] = true
	if len(values) == 0 {
		o.cache[name] = Undefined
	} else {
		o.cache[name] = values[0]
	}
	o.cacheOK[name] = true
	o.mu.Unlock()

	if len(values) == 0 {
		return nil, nil
	}
	return values[0], nil
}

// GetAll returns every resolved value for name (the "plural" form, `p$`
// in spec.md).
func (o *Object) GetAll(name string) ([]any, error) {
	o.mu.RLock()
	if cached, ok := o.cacheOK[name+"$"]; ok && cached {
		v := o.cache[name+"$"].([]any)
		o.mu.RUnlock()
		return v, nil
	}
	o.mu.RUnlock()
	if _, err := o.Get(name); err != nil {
		return nil, err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cache[name+"$"].([]any), nil
}

func (o *Object) getReserved(name string) (any, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	switch name {
	case "id", "__id":
		if !o.hasID {
			return nil, nil
		}
		return o.id, nil
	case "__ver":
		return o.version, nil
	case "__status":
		return o.state.String(), nil
	case "__category", "__schema":
		// A category is itself the schema carrier (spec.md §3: "A
		// category is itself a web object whose role is to carry a
		// SCHEMA"), so both reserved names resolve to the same
		// underlying Category in this single-category-per-object model.
		if o.category == nil {
			return nil, nil
		}
		return o.category, nil
	}
	return nil, nil
}

// resolveField implements the four-step property computation of
// spec.md §3: own entries, prototype concatenation, category defaults,
// imputation.
func (o *Object) resolveField(name string) ([]any, error) {
	o.mu.RLock()
	loaded := o.own != nil
	own := o.own
	cat := o.category
	o.mu.RUnlock()

	if !loaded {
		return nil, schematerr.New(schematerr.KindNotLoaded, "object: property access on unloaded object")
	}

	var fieldType types.Type
	if cat != nil {
		fieldType = cat.FieldType(name)
	}
	if fieldType == nil {
		return nil, schematerr.New(schematerr.KindValidation, "object: no schema available to resolve field "+name)
	}

	ownValues := own.GetAll(name)
	streams := [][]any{ownValues}
	if fieldType.TypeOptions().Inherited && cat != nil {
		for _, proto := range cat.Prototypes() {
			streams = append(streams, fieldTypeValues(proto, name))
		}
		streams = append(streams, cat.OwnFieldValues(name))
	}

	values, err := fieldType.CombineInherited(streams, o)
	if err != nil {
		return nil, err
	}
	return values, nil
}

func fieldTypeValues(cat Category, name string) []any {
	// A Category may optionally expose FieldValues; categories that do not
	// contribute no values here.
	if provider, ok := cat.(interface{ FieldValues(string) []any }); ok {
		return provider.FieldValues(name)
	}
	return nil
}

// JSONXClass reports the category classpath a persisted record for o
// should be tagged with (spec.md §4.C). Used by EncodeOwnRecord rather
// than through jsonx.ClassNamed dispatch — see EncodeOwnRecord.
func (o *Object) JSONXClass() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.category == nil {
		return ""
	}
	return o.category.Classpath()
}

// EncodeOwnRecord produces o's canonical persisted record (spec.md §3
// "Record"): own Catalog entries recursively encoded through classes and
// tagged with the category's classpath. o itself is never fed to a
// generic jsonx.Encoder — since *Object also implements types.Reference,
// that would encode o as a bare {"@":id} pointer (the correct behavior
// when o appears as a field value *inside* another record, e.g. a REF
// field) rather than as the full record being persisted. EncodeOwnRecord
// starts one level below o, at its Catalog, to sidestep that ambiguity.
func (o *Object) EncodeOwnRecord(classes *jsonx.ClassRegistry) (any, error) {
	own := o.Own()
	if own == nil {
		return nil, schematerr.New(schematerr.KindNotLoaded, "object: encode on unloaded object")
	}
	return catalog.EncodeTagged(classes, own, o.JSONXClass())
}

// InvokeGetter implements types.Host so Type.Impute can call back into
// class-registered getters during imputation.
func (o *Object) InvokeGetter(name string) (any, bool, error) {
	if o.class == nil {
		return nil, false, nil
	}
	getter, ok := o.class.Getters[name]
	if !ok {
		return nil, false, nil
	}
	v, _, err := getter(o)
	return v, true, err
}

// Package registry implements the process-wide object cache and loader
// described in spec.md §4.F: an id->object cache with TTL, version
// tracking, and async load-once semantics, modeled on the teacher's
// in-memory Store (RWMutex-guarded maps, no package-level globals).
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/schemat-io/schemat/internal/catalog"
	"github.com/schemat-io/schemat/internal/object"
	"github.com/schemat-io/schemat/internal/schematerr"
)

// Loader fetches a raw record and resolves it into an Object's data.
// Implementations live in the storage layer; the Registry only depends
// on this narrow interface to avoid importing storage directly.
type Loader interface {
	LoadRecord(ctx context.Context, id int64) (data *catalog.Catalog, category object.Category, class *object.Class, err error)
}

type cacheEntry struct {
	obj      *object.Object
	loadedAt time.Time
	expireAt time.Time
	versions []int64
}

// inFlight represents a load in progress, shared by concurrent callers
// per spec.md §4.E: "concurrent load() calls... share a single
// in-flight promise".
type inFlight struct {
	done chan struct{}
	obj  *object.Object
	err  error
}

// Registry is the id->{object,loaded_at,expire_at} cache plus the
// parallel pending-load table.
type Registry struct {
	mu      sync.Mutex
	cache   map[int64]*cacheEntry
	pending map[int64]*inFlight

	loader       Loader
	defaultTTL   time.Duration
	provisional  int64 // monotonically decreasing counter for Newborn ids
}

func New(loader Loader, defaultTTL time.Duration) *Registry {
	return &Registry{
		cache:      map[int64]*cacheEntry{},
		pending:    map[int64]*inFlight{},
		loader:     loader,
		defaultTTL: defaultTTL,
	}
}

// SetLoader wires a Loader after construction, for loaders that need a
// live reference back into the Registry (e.g. as a jsonx reference
// resolver for REF fields embedded in their own records).
func (r *Registry) SetLoader(l Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loader = l
}

// ResolveID implements jsonx.ReferenceResolver: a bare {"@":id} tag
// decodes to the cached-or-stub Object for id, deferring the actual
// fetch until the field is accessed (spec.md §4.C "references resolve
// lazily"). Negative (provisional) ids are handled the same way: they
// get a Registry stub too, and no table of newborn objects is consulted.
func (r *Registry) ResolveID(id int64) (any, error) {
	return r.GetObject(id), nil
}

// NextProvisionalID hands out a fresh negative id for a Newborn object,
// per spec.md §3 "provisional objects... carry a negative __index_id".
func (r *Registry) NextProvisionalID() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.provisional--
	return r.provisional
}

// GetObject returns the cached instance for id, or registers and returns
// a fresh stub immediately if absent.
func (r *Registry) GetObject(id int64) *object.Object {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sweepAndGetLocked(id); ok {
		return e.obj
	}
	stub := object.NewStub(id)
	r.cache[id] = &cacheEntry{obj: stub, loadedAt: time.Time{}}
	return stub
}

// sweepAndGetLocked implements the lazy TTL sweep: an entry is evicted
// only when observed past its expire_at, not on a background timer.
func (r *Registry) sweepAndGetLocked(id int64) (*cacheEntry, bool) {
	e, ok := r.cache[id]
	if !ok {
		return nil, false
	}
	if !e.expireAt.IsZero() && timeNow().After(e.expireAt) {
		delete(r.cache, id)
		return nil, false
	}
	return e, true
}

// timeNow is a seam so tests can simulate TTL expiry deterministically.
var timeNow = time.Now

// GetLoaded returns a loaded instance for id, awaiting an in-flight load
// if one is underway, or starting one otherwise.
func (r *Registry) GetLoaded(ctx context.Context, id int64) (*object.Object, error) {
	r.mu.Lock()
	if e, ok := r.sweepAndGetLocked(id); ok && e.obj.State() == object.StateLoaded {
		r.mu.Unlock()
		return e.obj, nil
	}
	if f, ok := r.pending[id]; ok {
		r.mu.Unlock()
		<-f.done
		return f.obj, f.err
	}
	f := &inFlight{done: make(chan struct{})}
	r.pending[id] = f
	r.mu.Unlock()

	obj, err := r.loadRecord(ctx, id)

	r.mu.Lock()
	delete(r.pending, id)
	f.obj, f.err = obj, err
	close(f.done)
	r.mu.Unlock()

	return obj, err
}

func (r *Registry) loadRecord(ctx context.Context, id int64) (*object.Object, error) {
	if r.loader == nil {
		return nil, schematerr.New(schematerr.KindObjectNotFound, fmt.Sprintf("registry: no loader configured for id %d", id))
	}
	stub := r.GetObject(id)

	data, category, class, err := r.loader.LoadRecord(ctx, id)
	if err != nil {
		stub.MarkLoadFailed()
		return stub, schematerr.Wrap(schematerr.KindObjectNotFound, fmt.Sprintf("registry: load_record(%d)", id), err)
	}

	stub.MarkLoaded(id, data, category, class)

	ttl := r.defaultTTL
	if category != nil {
		if ct := category.CacheTimeout(); ct > 0 {
			ttl = time.Duration(ct) * time.Second
		}
	}
	r.mu.Lock()
	entry := r.cache[id]
	if entry == nil {
		entry = &cacheEntry{}
		r.cache[id] = entry
	}
	entry.obj = stub
	entry.loadedAt = timeNow()
	entry.expireAt = entry.loadedAt.Add(ttl)
	r.mu.Unlock()

	return stub, nil
}

// Preload installs an already-loaded object directly into the cache,
// bypassing the loader. Used by bootstrap code that constructs its
// initial objects in-process rather than through storage.
func (r *Registry) Preload(obj *object.Object, ttl time.Duration) {
	id, ok := obj.ID()
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := timeNow()
	r.cache[id] = &cacheEntry{obj: obj, loadedAt: now, expireAt: now.Add(ttl)}
}

// Reload forces a re-fetch and replaces the cached object atomically;
// any mutable clone already in flight is unaffected since MutableClone
// copies data rather than sharing it.
func (r *Registry) Reload(ctx context.Context, id int64) (*object.Object, error) {
	return r.loadRecord(ctx, id)
}

// RegisterVersion records a version snapshot for seal-validated
// dependency resolution (spec.md §4.G "Optional seal").
func (r *Registry) RegisterVersion(obj *object.Object) {
	id, ok := obj.ID()
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.cache[id]
	if !ok {
		return
	}
	e.versions = append(e.versions, obj.Version())
}

// Refresh is the synchronous best-effort variant of spec.md §4.F: it
// returns the newest cached instance, scheduling an async reload if the
// cache already holds something newer than obj's snapshot.
func (r *Registry) Refresh(ctx context.Context, obj *object.Object) *object.Object {
	id, ok := obj.ID()
	if !ok {
		return obj
	}
	r.mu.Lock()
	e, cached := r.cache[id]
	r.mu.Unlock()
	if !cached {
		return obj
	}
	if e.obj.Version() > obj.Version() {
		return e.obj
	}
	if e.obj.Version() < obj.Version() {
		go func() { _, _ = r.Reload(context.Background(), id) }()
	}
	return e.obj
}

// Forget evicts id immediately, bypassing the lazy sweep (used by tests
// and by explicit cache invalidation paths).
func (r *Registry) Forget(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, id)
}

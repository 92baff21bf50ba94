// Package txn implements the ambient (task-local) transaction context
// described in spec.md §4.G: a list of modified records staged for
// commit, with newborn-insert and existing-object-edit-replay commit
// policies.
package txn

import (
	"context"
	"sync"

	"github.com/schemat-io/schemat/internal/object"
	"github.com/schemat-io/schemat/internal/schematerr"
)

type ctxKey struct{}

// Transaction holds the set of mutable twins modified so far, keyed by
// pointer identity so repeated edits to the same object register once.
type Transaction struct {
	mu        sync.Mutex
	modified  []*object.Object
	seen      map[*object.Object]bool
}

// New starts a fresh, empty transaction.
func New() *Transaction {
	return &Transaction{seen: map[*object.Object]bool{}}
}

// WithTransaction installs txn as the ambient transaction on ctx (the
// task-local context of spec.md §4.G).
func WithTransaction(ctx context.Context, t *Transaction) context.Context {
	return context.WithValue(ctx, ctxKey{}, t)
}

// FromContext retrieves the ambient transaction, if any.
func FromContext(ctx context.Context) (*Transaction, bool) {
	t, ok := ctx.Value(ctxKey{}).(*Transaction)
	return t, ok
}

// Register records obj as modified within this transaction; step (c) of
// spec.md §4.G's edit pipeline. Idempotent per object.
func (t *Transaction) Register(obj *object.Object) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.seen[obj] {
		return
	}
	t.seen[obj] = true
	t.modified = append(t.modified, obj)
}

// Modified returns the staged objects in registration order.
func (t *Transaction) Modified() []*object.Object {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*object.Object(nil), t.modified...)
}

// SetField applies an edit to obj's mutable twin and, if ctx carries an
// ambient Transaction, registers obj with it for later commit — the
// full three-step pipeline of spec.md §4.G.
func SetField(ctx context.Context, obj *object.Object, name string, value any) error {
	if err := obj.Set(name, value); err != nil {
		return err
	}
	if t, ok := FromContext(ctx); ok {
		t.Register(obj)
	}
	return nil
}

// SetAllField is the plural-write counterpart of SetField.
func SetAllField(ctx context.Context, obj *object.Object, name string, values []any) error {
	if err := obj.SetAll(name, values); err != nil {
		return err
	}
	if t, ok := FromContext(ctx); ok {
		t.Register(obj)
	}
	return nil
}

// Inserter persists a brand-new (Newborn) object and returns its
// assigned id.
type Inserter interface {
	Insert(ctx context.Context, obj *object.Object) (id int64, err error)
}

// EditApplier sends an existing object's edit log to the ring store,
// optionally guarded by an if_version(v) check derived from __ver.
type EditApplier interface {
	ApplyEdits(ctx context.Context, id int64, ifVersion *int64, edits []object.Edit) error
}

// Committer is the RPC/storage boundary a Transaction commits through.
// The implementation in this package, StorageCommitter, writes directly
// to a storage.Stack; no bus-carried Committer is provided.
type Committer interface {
	Inserter
	EditApplier
}

// CommitResult reports the id assigned to each Newborn object committed,
// keyed by the provisional id it held while staged.
type CommitResult struct {
	AssignedIDs map[int64]int64
}

// Commit implements spec.md §4.G's commit policy: Newborn objects are
// sent as full inserts; existing objects emit their edit log, guarded by
// if_version(obj.Version()) when guardVersions is true. A version mismatch
// surfaces as a schematerr.KindVersionConflict application error; retry
// is left to the caller.
func (t *Transaction) Commit(ctx context.Context, committer Committer, guardVersions bool) (*CommitResult, error) {
	result := &CommitResult{AssignedIDs: map[int64]int64{}}
	for _, obj := range t.Modified() {
		id, hasID := obj.ID()
		if !hasID {
			provID, _ := obj.RefID()
			newID, err := committer.Insert(ctx, obj)
			if err != nil {
				return result, schematerr.Wrap(schematerr.KindValidation, "txn: insert newborn object", err)
			}
			result.AssignedIDs[provID] = newID
			continue
		}

		var guard *int64
		if guardVersions {
			v := obj.Version()
			guard = &v
		}
		edits := obj.EditLog()
		if len(edits) == 0 {
			continue
		}
		if err := committer.ApplyEdits(ctx, id, guard, edits); err != nil {
			if _, isKinded := schematerr.KindOf(err); isKinded {
				return result, err
			}
			return result, schematerr.Wrap(schematerr.KindVersionConflict, "txn: apply edits rejected by committer", err)
		}
	}
	return result, nil
}

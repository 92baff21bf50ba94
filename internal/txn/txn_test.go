package txn

import (
	"context"
	"errors"
	"testing"

	"github.com/schemat-io/schemat/internal/catalog"
	"github.com/schemat-io/schemat/internal/object"
	"github.com/schemat-io/schemat/internal/schematerr"
	"github.com/schemat-io/schemat/internal/types"
)

type fakeCategory struct{ fields map[string]types.Type }

func (c *fakeCategory) FieldType(name string) types.Type {
	if t, ok := c.fields[name]; ok {
		return t
	}
	return types.NewText(types.DefaultOptions())
}
func (c *fakeCategory) Prototypes() []object.Category      { return nil }
func (c *fakeCategory) CacheTimeout() int64                { return 0 }
func (c *fakeCategory) OwnFieldValues(name string) []any   { return nil }
func (c *fakeCategory) Classpath() string                  { return "test.fakeCategory" }

type fakeCommitter struct {
	inserted    []int64
	applied     map[int64][]object.Edit
	nextID      int64
	failApply   bool
}

func (c *fakeCommitter) Insert(ctx context.Context, obj *object.Object) (int64, error) {
	c.nextID++
	c.inserted = append(c.inserted, c.nextID)
	return c.nextID, nil
}

func (c *fakeCommitter) ApplyEdits(ctx context.Context, id int64, ifVersion *int64, edits []object.Edit) error {
	if c.failApply {
		return errors.New("conflict")
	}
	if c.applied == nil {
		c.applied = map[int64][]object.Edit{}
	}
	c.applied[id] = edits
	return nil
}

func TestSetFieldRegistersWithAmbientTransaction(t *testing.T) {
	cat := &fakeCategory{fields: map[string]types.Type{"name": types.NewString(types.DefaultOptions(), "", 0, 0)}}
	o := object.NewNewborn(-1, catalog.New(catalog.Entry{Key: "name", Value: "Ann"}), cat, nil)

	tx := New()
	ctx := WithTransaction(context.Background(), tx)
	if err := SetField(ctx, o, "name", "Bob"); err != nil {
		t.Fatal(err)
	}
	if len(tx.Modified()) != 1 {
		t.Fatalf("expected object registered, got %d", len(tx.Modified()))
	}
}

func TestCommitInsertsNewbornAndAssignsID(t *testing.T) {
	cat := &fakeCategory{fields: map[string]types.Type{"name": types.NewString(types.DefaultOptions(), "", 0, 0)}}
	o := object.NewNewborn(-7, catalog.New(catalog.Entry{Key: "name", Value: "Ann"}), cat, nil)
	tx := New()
	tx.Register(o)

	committer := &fakeCommitter{}
	result, err := tx.Commit(context.Background(), committer, true)
	if err != nil {
		t.Fatal(err)
	}
	if result.AssignedIDs[-7] != 1 {
		t.Fatalf("expected provisional -7 -> 1, got %v", result.AssignedIDs)
	}
}

func TestCommitAppliesEditLogForExisting(t *testing.T) {
	cat := &fakeCategory{fields: map[string]types.Type{"name": types.NewString(types.DefaultOptions(), "", 0, 0)}}
	o := object.NewStub(5)
	o.MarkLoaded(5, catalog.New(catalog.Entry{Key: "name", Value: "Ann"}), cat, nil)
	if err := o.Set("name", "Bob"); err != nil {
		t.Fatal(err)
	}

	tx := New()
	tx.Register(o)
	committer := &fakeCommitter{}
	if _, err := tx.Commit(context.Background(), committer, true); err != nil {
		t.Fatal(err)
	}
	if len(committer.applied[5]) != 1 {
		t.Fatalf("expected 1 edit applied, got %d", len(committer.applied[5]))
	}
}

func TestCommitPropagatesConflict(t *testing.T) {
	cat := &fakeCategory{fields: map[string]types.Type{"name": types.NewString(types.DefaultOptions(), "", 0, 0)}}
	o := object.NewStub(9)
	o.MarkLoaded(9, catalog.New(catalog.Entry{Key: "name", Value: "Ann"}), cat, nil)
	_ = o.Set("name", "Bob")

	tx := New()
	tx.Register(o)
	committer := &fakeCommitter{failApply: true}
	_, err := tx.Commit(context.Background(), committer, true)
	if err == nil {
		t.Fatal("expected conflict error to propagate")
	}
	if kind, ok := schematerr.KindOf(err); !ok || kind != schematerr.KindVersionConflict {
		t.Fatalf("expected KindVersionConflict, got %v (ok=%v)", kind, ok)
	}
}

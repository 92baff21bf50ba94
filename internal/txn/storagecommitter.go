package txn

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/schemat-io/schemat/internal/catalog"
	"github.com/schemat-io/schemat/internal/jsonx"
	"github.com/schemat-io/schemat/internal/object"
	"github.com/schemat-io/schemat/internal/schematerr"
	"github.com/schemat-io/schemat/internal/storage"
)

// StorageCommitter implements Inserter and EditApplier against a
// storage.Stack: Insert jsonx-encodes a Newborn's own record (tagged with
// its category's classpath, spec.md §4.C) and lands it on the stack's
// writable ring; ApplyEdits re-selects the stored record, replays the
// edit log onto it with object.ApplyEdit, and writes the result back.
//
// if_version guards are checked against an in-memory per-id version
// ledger kept on the committer, rather than folded into the ring's JSON
// payload: spec.md leaves the exact ring file format as a Non-goal, and
// embedding a version counter in the payload would leak into the record
// shape §8 scenario 1 specifies exactly.
type StorageCommitter struct {
	Stack   *storage.Stack
	Classes *jsonx.ClassRegistry

	mu       sync.Mutex
	versions map[int64]int64
}

func NewStorageCommitter(stack *storage.Stack, classes *jsonx.ClassRegistry) *StorageCommitter {
	return &StorageCommitter{Stack: stack, Classes: classes, versions: map[int64]int64{}}
}

func (c *StorageCommitter) Insert(ctx context.Context, obj *object.Object) (int64, error) {
	state, err := obj.EncodeOwnRecord(c.Classes)
	if err != nil {
		return 0, schematerr.Wrap(schematerr.KindValidation, "storage committer: encode newborn record", err)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return 0, schematerr.Wrap(schematerr.KindValidation, "storage committer: marshal newborn record", err)
	}
	id, err := c.Stack.Insert(ctx, data)
	if err != nil {
		return 0, schematerr.Wrap(schematerr.KindValidation, "storage committer: insert", err)
	}
	c.mu.Lock()
	c.versions[id] = 0
	c.mu.Unlock()
	return id, nil
}

func (c *StorageCommitter) ApplyEdits(ctx context.Context, id int64, ifVersion *int64, edits []object.Edit) error {
	if ifVersion != nil {
		c.mu.Lock()
		current, known := c.versions[id]
		c.mu.Unlock()
		if known && current != *ifVersion {
			return schematerr.New(schematerr.KindVersionConflict, fmt.Sprintf("storage committer: id %d at version %d, expected %d", id, current, *ifVersion))
		}
	}

	rec, ok, err := c.Stack.Select(ctx, id)
	if err != nil {
		return schematerr.Wrap(schematerr.KindObjectNotFound, fmt.Sprintf("storage committer: select(%d)", id), err)
	}
	if !ok {
		return schematerr.New(schematerr.KindObjectNotFound, fmt.Sprintf("storage committer: no record for id %d", id))
	}

	var raw any
	if err := json.Unmarshal(rec.Data, &raw); err != nil {
		return schematerr.Wrap(schematerr.KindValidation, fmt.Sprintf("storage committer: unmarshal id %d", id), err)
	}
	fields, class, err := jsonx.NewDecoder(c.Classes, nil).DecodeRecord(raw)
	if err != nil {
		return schematerr.Wrap(schematerr.KindValidation, fmt.Sprintf("storage committer: decode record %d", id), err)
	}

	cat, err := catalog.Load(fields)
	if err != nil {
		return schematerr.Wrap(schematerr.KindValidation, fmt.Sprintf("storage committer: load catalog %d", id), err)
	}

	for _, e := range edits {
		if e.Op == object.OpIfVersion {
			continue
		}
		if err := object.ApplyEdit(cat, e); err != nil {
			return schematerr.Wrap(schematerr.KindValidation, fmt.Sprintf("storage committer: apply edit to id %d", id), err)
		}
	}

	tagged, err := catalog.EncodeTagged(c.Classes, cat, class)
	if err != nil {
		return schematerr.Wrap(schematerr.KindValidation, fmt.Sprintf("storage committer: encode id %d", id), err)
	}
	data, err := json.Marshal(tagged)
	if err != nil {
		return schematerr.Wrap(schematerr.KindValidation, fmt.Sprintf("storage committer: marshal id %d", id), err)
	}
	if err := c.Stack.Update(ctx, id, data); err != nil {
		return schematerr.Wrap(schematerr.KindValidation, fmt.Sprintf("storage committer: update id %d", id), err)
	}

	c.mu.Lock()
	c.versions[id]++
	c.mu.Unlock()
	return nil
}

package object

import (
	"github.com/schemat-io/schemat/internal/catalog"
	"github.com/schemat-io/schemat/internal/schematerr"
)

// Op names the supported edit operators (spec.md §4.G).
type Op string

const (
	OpSet       Op = "set"
	OpSetKey    Op = "setkey"
	OpInsert    Op = "insert"
	OpDelete    Op = "delete"
	OpMove      Op = "move"
	OpIncrement Op = "increment"
	OpOverwrite Op = "overwrite"
	OpIfVersion Op = "if_version"
)

// Edit is one staged mutation: `[op, ...args]` in spec.md's notation.
type Edit struct {
	Op   Op
	Args []any
}

// EditLog returns the edits appended so far, in order.
func (o *Object) EditLog() []Edit {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]Edit(nil), o.editLog...)
}

// Version reports the object's local __ver counter.
func (o *Object) Version() int64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.version
}

// applyAndLog applies edit to the mutable twin's Catalog; appending it to
// the edit log is left to the caller, which does so once the edit has
// applied without error.
func (o *Object) applyAndLog(e Edit) error {
	if o.own == nil {
		return schematerr.New(schematerr.KindNotLoaded, "object: edit on unloaded object")
	}
	return ApplyEdit(o.own, e)
}

// ApplyEdit replays a single Edit onto a bare Catalog. It is the engine
// behind applyAndLog, factored out so a commit pipeline can replay a
// transaction's edit log onto a freshly storage-loaded Catalog without
// going through an *Object (spec.md §4.G commit step "apply the edit log
// to the record read from storage").
func ApplyEdit(cat *catalog.Catalog, e Edit) error {
	if cat == nil {
		return schematerr.New(schematerr.KindNotLoaded, "object: edit on nil catalog")
	}
	switch e.Op {
	case OpSet:
		key, _ := e.Args[0].(string)
		cat.Set(key, e.Args[1])
	case OpSetKey:
		oldKey, _ := e.Args[0].(string)
		newKey, _ := e.Args[1].(string)
		if err := cat.SetKey(oldKey, newKey); err != nil {
			return err
		}
	case OpInsert:
		pos, _ := e.Args[0].(int)
		key, _ := e.Args[1].(string)
		cat.Insert(pos, key, e.Args[2])
	case OpDelete:
		key, _ := e.Args[0].(string)
		cat.Delete(key)
	case OpMove:
		key, _ := e.Args[0].(string)
		delta, _ := e.Args[1].(int)
		if err := cat.Move(key, delta); err != nil {
			return err
		}
	case OpIncrement:
		key, _ := e.Args[0].(string)
		delta, _ := e.Args[1].(float64)
		if _, err := cat.Increment(key, delta); err != nil {
			return err
		}
	case OpOverwrite:
		// bulk overwrite payload is decoded by the caller before Edit is built
		entries, ok := e.Args[0].([]catalog.Entry)
		if !ok {
			return schematerr.New(schematerr.KindValidation, "object: overwrite payload must be []catalog.Entry")
		}
		cat.Overwrite(entries)
	case OpIfVersion:
		// validated at commit time by the transaction, not applied here.
	default:
		return schematerr.New(schematerr.KindValidation, "object: unknown edit op "+string(e.Op))
	}
	return nil
}

// Set writes an in-schema or open-schema field, converting it to a
// `set` edit as described in spec.md §4.E's write semantics. Reserved
// slots must go through SetReserved instead; internal (`_`-prefixed)
// names are written directly and no edit is logged for them.
func (o *Object) Set(name string, value any) error {
	if isReserved(name) {
		return schematerr.New(schematerr.KindValidation, "object: "+name+" is reserved; use SetReserved")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if isInternal(name) {
		o.own.Set(name, value)
		o.invalidateLocked(name)
		return nil
	}
	e := Edit{Op: OpSet, Args: []any{name, value}}
	if err := o.applyAndLog(e); err != nil {
		return err
	}
	o.editLog = append(o.editLog, e)
	o.invalidateLocked(name)
	return nil
}

// SetAll replaces every occurrence of name atomically (the `p$ = [...]`
// plural write form).
func (o *Object) SetAll(name string, values []any) error {
	if isReserved(name) {
		return schematerr.New(schematerr.KindValidation, "object: "+name+" is reserved; use SetReserved")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for o.own.Delete(name) {
		o.editLog = append(o.editLog, Edit{Op: OpDelete, Args: []any{name}})
	}
	for _, v := range values {
		e := Edit{Op: OpInsert, Args: []any{-1, name, v}}
		if err := o.applyAndLog(e); err != nil {
			return err
		}
		o.editLog = append(o.editLog, e)
	}
	o.invalidateLocked(name)
	return nil
}

func (o *Object) invalidateLocked(name string) {
	delete(o.cacheOK, name)
	delete(o.cacheOK, name+"$")
	delete(o.cache, name)
	delete(o.cache, name+"$")
}

// SetReserved writes directly to a reserved slot (the `id = v` style
// writes in spec.md §4.E).
func (o *Object) SetReserved(name string, value any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch name {
	case "id", "__id":
		id, ok := value.(int64)
		if !ok {
			return schematerr.New(schematerr.KindValidation, "object: id must be int64")
		}
		o.id = id
		o.hasID = true
	case "__ver":
		v, ok := value.(int64)
		if !ok {
			return schematerr.New(schematerr.KindValidation, "object: __ver must be int64")
		}
		o.version = v
	case "__category", "__schema":
		cat, ok := value.(Category)
		if !ok {
			return schematerr.New(schematerr.KindValidation, "object: "+name+" must be a Category")
		}
		o.category = cat
		o.cache = map[string]any{}
		o.cacheOK = map[string]bool{}
	default:
		return schematerr.New(schematerr.KindValidation, "object: unsupported reserved slot "+name)
	}
	return nil
}

// Own exposes the mutable twin's Catalog for the Transaction/commit
// pipeline (spec.md §4.G).
func (o *Object) Own() *catalog.Catalog {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.own
}

// Package catalog implements the ordered key-value collection that backs
// every WebObject's own properties (spec.md §4.D): a list of (key, value)
// entries where the same key may repeat, preserving insertion order.
package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/schemat-io/schemat/internal/schematerr"
)

// Entry is one (key, value) pair. Key may be empty for list-like catalogs
// built from append-only inserts (e.g. an array nested inside a record).
type Entry struct {
	Key   string
	Value any
}

// Catalog is an ordered sequence of Entry, supporting duplicate keys.
type Catalog struct {
	entries []Entry
}

// New builds a Catalog from key/value pairs given in order.
func New(pairs ...Entry) *Catalog {
	c := &Catalog{entries: make([]Entry, len(pairs))}
	copy(c.entries, pairs)
	return c
}

// Len reports the number of top-level entries.
func (c *Catalog) Len() int { return len(c.entries) }

// Entries returns the live entry slice in insertion order. Callers must
// not mutate it directly; use the edit operators instead.
func (c *Catalog) Entries() []Entry { return c.entries }

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// Get returns the first value at path, or (nil, false) if absent. A
// multi-segment path descends into nested Catalog or map[string]any
// values; a numeric segment descends into a []any.
func (c *Catalog) Get(path string) (any, bool) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return nil, false
	}
	v, ok := c.firstByKey(segs[0])
	if !ok {
		return nil, false
	}
	return descend(v, segs[1:])
}

// GetAll returns every value stored under the (possibly compound) path,
// in insertion order, matching duplicate top-level keys.
func (c *Catalog) GetAll(path string) []any {
	segs := splitPath(path)
	if len(segs) == 0 {
		return nil
	}
	var out []any
	for _, e := range c.entries {
		if e.Key != segs[0] {
			continue
		}
		if v, ok := descend(e.Value, segs[1:]); ok {
			out = append(out, v)
		}
	}
	return out
}

func (c *Catalog) firstByKey(key string) (any, bool) {
	for _, e := range c.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func descend(v any, segs []string) (any, bool) {
	if len(segs) == 0 {
		return v, true
	}
	head, rest := segs[0], segs[1:]
	switch x := v.(type) {
	case *Catalog:
		sub, ok := x.firstByKey(head)
		if !ok {
			return nil, false
		}
		return descend(sub, rest)
	case map[string]any:
		sub, ok := x[head]
		if !ok {
			return nil, false
		}
		return descend(sub, rest)
	case []any:
		idx, err := strconv.Atoi(head)
		if err != nil || idx < 0 || idx >= len(x) {
			return nil, false
		}
		return descend(x[idx], rest)
	default:
		return nil, false
	}
}

// --- edit operators (spec.md §4.G lists these as the supported ops) ---

// Set replaces the value of the first entry matching key, or appends a
// new entry if key is not present.
func (c *Catalog) Set(key string, value any) {
	for i, e := range c.entries {
		if e.Key == key {
			c.entries[i].Value = value
			return
		}
	}
	c.entries = append(c.entries, Entry{Key: key, Value: value})
}

// SetKey renames the first entry matching oldKey to newKey, leaving its
// value and position unchanged.
func (c *Catalog) SetKey(oldKey, newKey string) error {
	for i, e := range c.entries {
		if e.Key == oldKey {
			c.entries[i].Key = newKey
			return nil
		}
	}
	return schematerr.New(schematerr.KindValidation, fmt.Sprintf("catalog: setkey: no entry for key %q", oldKey))
}

// Insert adds a new entry at position pos (appended if pos < 0 or
// pos >= Len()).
func (c *Catalog) Insert(pos int, key string, value any) {
	entry := Entry{Key: key, Value: value}
	if pos < 0 || pos >= len(c.entries) {
		c.entries = append(c.entries, entry)
		return
	}
	c.entries = append(c.entries, Entry{})
	copy(c.entries[pos+1:], c.entries[pos:])
	c.entries[pos] = entry
}

// Delete removes the first entry matching key. Returns false if absent.
func (c *Catalog) Delete(key string) bool {
	for i, e := range c.entries {
		if e.Key == key {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Move shifts the first entry matching key by delta positions (negative
// moves earlier, positive moves later), clamped to the list bounds.
func (c *Catalog) Move(key string, delta int) error {
	idx := -1
	for i, e := range c.entries {
		if e.Key == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		return schematerr.New(schematerr.KindValidation, fmt.Sprintf("catalog: move: no entry for key %q", key))
	}
	target := idx + delta
	if target < 0 {
		target = 0
	}
	if target > len(c.entries)-1 {
		target = len(c.entries) - 1
	}
	if target == idx {
		return nil
	}
	entry := c.entries[idx]
	c.entries = append(c.entries[:idx], c.entries[idx+1:]...)
	c.entries = append(c.entries, Entry{})
	copy(c.entries[target+1:], c.entries[target:])
	c.entries[target] = entry
	return nil
}

// Increment adds delta to the numeric value stored at key and returns
// the new value. The entry must currently hold an int64 or float64.
func (c *Catalog) Increment(key string, delta float64) (any, error) {
	for i, e := range c.entries {
		if e.Key != key {
			continue
		}
		switch v := e.Value.(type) {
		case int64:
			next := v + int64(delta)
			c.entries[i].Value = next
			return next, nil
		case float64:
			next := v + delta
			c.entries[i].Value = next
			return next, nil
		default:
			return nil, schematerr.New(schematerr.KindValidation, fmt.Sprintf("catalog: increment: key %q is not numeric", key))
		}
	}
	return nil, schematerr.New(schematerr.KindValidation, fmt.Sprintf("catalog: increment: no entry for key %q", key))
}

// Overwrite replaces the entire entry list in bulk, used when an edit
// replaces a whole sub-catalog atomically.
func (c *Catalog) Overwrite(entries []Entry) {
	c.entries = append([]Entry(nil), entries...)
}

// Clone returns a shallow copy safe to mutate independently (the mutable
// twin used during a transaction, per spec.md §4.G).
func (c *Catalog) Clone() *Catalog {
	out := &Catalog{entries: make([]Entry, len(c.entries))}
	copy(out.entries, c.entries)
	return out
}

// Replacer is called once per entry during Transform, including entries
// holding a nested Catalog (after that Catalog has itself been
// transformed); returning ok=false leaves the value unchanged.
type Replacer func(key string, value any) (replacement any, ok bool)

// Transform walks the catalog (and any nested Catalog values) applying
// replacer to every entry, returning a new Catalog with matched nodes
// replaced. Non-Catalog composite values (map/slice) are left as-is.
func (c *Catalog) Transform(replacer Replacer) *Catalog {
	out := &Catalog{entries: make([]Entry, len(c.entries))}
	for i, e := range c.entries {
		v := e.Value
		if sub, ok := v.(*Catalog); ok {
			v = sub.Transform(replacer)
		}
		if repl, ok := replacer(e.Key, v); ok {
			v = repl
		}
		out.entries[i] = Entry{Key: e.Key, Value: v}
	}
	return out
}

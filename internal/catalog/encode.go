package catalog

import (
	"fmt"

	"github.com/schemat-io/schemat/internal/jsonx"
)

// catalogTag marks a catalog's plain-JSON encoding so Load can tell a
// duplicate-key-capable catalog apart from an ordinary object: a Catalog
// whose keys are all distinct and non-empty encodes as a plain JSON
// object; otherwise it encodes as an ordered array of [key, value] pairs
// tagged under catalogTag.
const catalogTag = "__catalog__"

// JSONXState implements jsonx.Stateful so a Catalog can be embedded
// inside other Stateful values and round-tripped through jsonx.
func (c *Catalog) JSONXState() (any, error) {
	if c.isPlainObjectShaped() {
		m := make(map[string]any, len(c.entries))
		for _, e := range c.entries {
			m[e.Key] = e.Value
		}
		return m, nil
	}
	pairs := make([]any, len(c.entries))
	for i, e := range c.entries {
		pairs[i] = []any{e.Key, e.Value}
	}
	return map[string]any{catalogTag: pairs}, nil
}

func (c *Catalog) isPlainObjectShaped() bool {
	seen := map[string]bool{}
	for _, e := range c.entries {
		if e.Key == "" || seen[e.Key] {
			return false
		}
		seen[e.Key] = true
	}
	return true
}

// Encode produces a plain JSON-safe structure (map/slice/primitives)
// suitable for encoding/json.Marshal, per spec.md §4.D.
func Encode(classes *jsonx.ClassRegistry, c *Catalog) (any, error) {
	state, err := c.JSONXState()
	if err != nil {
		return nil, err
	}
	return jsonx.NewEncoder(classes).Encode(state)
}

// EncodeTagged is Encode plus an explicit class tag applied on top: the
// shape a WebObject's own persisted record takes (spec.md §4.C, §8
// scenario 1 — "{…fields…, "@":"classpath"}"). A Catalog has no notion
// of its own classpath, so callers that do (object.Object, the commit
// pipeline) supply it explicitly.
func EncodeTagged(classes *jsonx.ClassRegistry, c *Catalog, class string) (any, error) {
	encoded, err := Encode(classes, c)
	if err != nil {
		return nil, err
	}
	if class == "" {
		return encoded, nil
	}
	m, ok := encoded.(map[string]any)
	if !ok {
		return map[string]any{"=": encoded, "@": class}, nil
	}
	tagged := make(map[string]any, len(m)+1)
	for k, v := range m {
		tagged[k] = v
	}
	tagged["@"] = class
	return tagged, nil
}

// Load is the inverse of Encode: it reconstructs a Catalog from a
// decoded-JSON value (the output of json.Unmarshal into `any`, run
// through a jsonx.Decoder beforehand by the caller).
func Load(decoded any) (*Catalog, error) {
	m, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("catalog: load: expected object, got %T", decoded)
	}
	if raw, tagged := m[catalogTag]; tagged {
		pairs, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("catalog: load: %s payload is not an array", catalogTag)
		}
		c := &Catalog{entries: make([]Entry, 0, len(pairs))}
		for _, p := range pairs {
			pair, ok := p.([]any)
			if !ok || len(pair) != 2 {
				return nil, fmt.Errorf("catalog: load: malformed entry pair %#v", p)
			}
			key, _ := pair[0].(string)
			c.entries = append(c.entries, Entry{Key: key, Value: pair[1]})
		}
		return c, nil
	}
	c := &Catalog{entries: make([]Entry, 0, len(m))}
	for k, v := range m {
		c.entries = append(c.entries, Entry{Key: k, Value: v})
	}
	return c, nil
}

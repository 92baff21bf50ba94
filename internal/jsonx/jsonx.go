package jsonx

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"time"

	"github.com/schemat-io/schemat/internal/schematerr"
	"github.com/schemat-io/schemat/internal/types"
)

const tagKey = "@"
const payloadKey = "="

const (
	flagWrap     = "wrap"
	flagBinary   = "bin"
	flagBigInt   = "bigint"
	flagClass    = "class"
	flagTime     = "time"
	flagDuration = "duration"
)

// ClassRef represents a bare classpath value (as opposed to an instance of
// that class), encoded as {"=":"dotted.path","@":"class"}.
type ClassRef string

// ReferenceResolver resolves integer class tags to live objects at decode
// time. Non-negative ids are committed objects and negative ids are
// provisional (newborn) ones; how each is looked up is left to the
// implementation.
type ReferenceResolver interface {
	ResolveID(id int64) (any, error)
}

// Encoder converts in-memory values into a JSON-safe state tree.
type Encoder struct {
	Classes *ClassRegistry
	seen    map[uintptr]bool
}

func NewEncoder(classes *ClassRegistry) *Encoder {
	return &Encoder{Classes: classes, seen: map[uintptr]bool{}}
}

// Encode converts v into a structure safe for encoding/json.Marshal.
func (e *Encoder) Encode(v any) (any, error) {
	if e.seen == nil {
		e.seen = map[uintptr]bool{}
	}
	return e.encode(v)
}

func identity(v any) (uintptr, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return 0, false
		}
		return rv.Pointer(), true
	}
	return 0, false
}

func (e *Encoder) encode(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch x := v.(type) {
	case bool, string, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return x, nil
	case []byte:
		return map[string]any{payloadKey: hex.EncodeToString(x), tagKey: flagBinary}, nil
	case *big.Int:
		return map[string]any{payloadKey: x.String(), tagKey: flagBigInt}, nil
	case ClassRef:
		return map[string]any{payloadKey: string(x), tagKey: flagClass}, nil
	case time.Time:
		return map[string]any{payloadKey: x.Format(time.RFC3339Nano), tagKey: flagTime}, nil
	case time.Duration:
		return map[string]any{payloadKey: x.String(), tagKey: flagDuration}, nil
	case types.Reference:
		id, provisional := x.RefID()
		if provisional && id > 0 {
			id = -id
		}
		return map[string]any{tagKey: float64(id)}, nil
	}

	if id, ok := identity(v); ok {
		if e.seen[id] {
			return nil, schematerr.New(schematerr.KindValidation, "jsonx: cyclic object graph detected during encode")
		}
		e.seen[id] = true
		defer delete(e.seen, id)
	}

	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, elem := range x {
			enc, err := e.encode(elem)
			if err != nil {
				return nil, err
			}
			out[i] = enc
		}
		return out, nil

	case map[string]any:
		_, collision := x[tagKey]
		inner := make(map[string]any, len(x))
		for k, elem := range x {
			enc, err := e.encode(elem)
			if err != nil {
				return nil, err
			}
			inner[k] = enc
		}
		if collision {
			return map[string]any{payloadKey: inner, tagKey: flagWrap}, nil
		}
		return inner, nil
	}

	if stateful, ok := v.(Stateful); ok {
		class, known := e.Classes.ClassOf(v)
		if !known {
			return nil, fmt.Errorf("jsonx: encoding a Stateful value whose class is not registered (%T)", v)
		}
		state, err := stateful.JSONXState()
		if err != nil {
			return nil, err
		}
		if m, ok := state.(map[string]any); ok {
			out := make(map[string]any, len(m)+1)
			for k, elem := range m {
				enc, err := e.encode(elem)
				if err != nil {
					return nil, err
				}
				out[k] = enc
			}
			out[tagKey] = class
			return out, nil
		}
		enc, err := e.encode(state)
		if err != nil {
			return nil, err
		}
		return map[string]any{payloadKey: enc, tagKey: class}, nil
	}

	return nil, fmt.Errorf("jsonx: unsupported type %T for encoding", v)
}

// Decoder converts a decoded-JSON state tree back into Go values.
type Decoder struct {
	Classes *ClassRegistry
	Refs    ReferenceResolver
}

func NewDecoder(classes *ClassRegistry, refs ReferenceResolver) *Decoder {
	return &Decoder{Classes: classes, Refs: refs}
}

// Decode is the inverse of Encoder.Encode.
func (d *Decoder) Decode(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, float64:
		return x, nil
	case []any:
		out := make([]any, len(x))
		for i, elem := range x {
			dec, err := d.Decode(elem)
			if err != nil {
				return nil, err
			}
			out[i] = dec
		}
		return out, nil
	case map[string]any:
		return d.decodeObject(x)
	default:
		return nil, fmt.Errorf("jsonx: unexpected decoded-JSON shape %T", v)
	}
}

func (d *Decoder) decodeObject(x map[string]any) (any, error) {
	tag, hasTag := x[tagKey]
	if !hasTag {
		out := make(map[string]any, len(x))
		for k, elem := range x {
			dec, err := d.Decode(elem)
			if err != nil {
				return nil, err
			}
			out[k] = dec
		}
		return out, nil
	}

	switch t := tag.(type) {
	case float64:
		id := int64(t)
		if d.Refs == nil {
			return nil, fmt.Errorf("jsonx: decoding object reference id %d without a ReferenceResolver", id)
		}
		return d.Refs.ResolveID(id)
	case string:
		switch t {
		case flagWrap:
			inner, ok := x[payloadKey].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("jsonx: wrap-flag payload is not an object")
			}
			out := make(map[string]any, len(inner))
			for k, elem := range inner {
				dec, err := d.Decode(elem)
				if err != nil {
					return nil, err
				}
				out[k] = dec
			}
			return out, nil
		case flagBinary:
			s, _ := x[payloadKey].(string)
			return hex.DecodeString(s)
		case flagBigInt:
			s, _ := x[payloadKey].(string)
			n := new(big.Int)
			if _, ok := n.SetString(s, 10); !ok {
				return nil, fmt.Errorf("jsonx: invalid bigint payload %q", s)
			}
			return n, nil
		case flagClass:
			s, _ := x[payloadKey].(string)
			return ClassRef(s), nil
		case flagTime:
			s, _ := x[payloadKey].(string)
			return time.Parse(time.RFC3339, s)
		case flagDuration:
			s, _ := x[payloadKey].(string)
			return time.ParseDuration(s)
		default:
			fields := make(map[string]any, len(x))
			for k, elem := range x {
				if k == tagKey {
					continue
				}
				dec, err := d.Decode(elem)
				if err != nil {
					return nil, err
				}
				fields[k] = dec
			}
			if d.Classes == nil {
				return nil, fmt.Errorf("jsonx: decoding class %q without a ClassRegistry", t)
			}
			return d.Classes.Construct(t, fields)
		}
	default:
		return nil, fmt.Errorf("jsonx: unrecognized class tag type %T", tag)
	}
}

// DecodeRecord decodes a top-level persisted record (the shape
// catalog.EncodeTagged produces): its class tag is returned as metadata
// rather than dispatched through Classes.Construct, since a loader only
// needs the record's field values and the classpath naming its category,
// not a constructed Go value (spec.md §4.F: the loader turns a stored
// record into a Catalog plus the Category its classpath names).
func (d *Decoder) DecodeRecord(v any) (fields map[string]any, class string, err error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, "", fmt.Errorf("jsonx: decode record: expected object, got %T", v)
	}
	if tag, hasTag := m[tagKey]; hasTag {
		class, _ = tag.(string)
	}
	out := make(map[string]any, len(m))
	for k, elem := range m {
		if k == tagKey {
			continue
		}
		dec, derr := d.Decode(elem)
		if derr != nil {
			return nil, "", derr
		}
		out[k] = dec
	}
	return out, class, nil
}

// MarshalJSON encodes v through Encode and then through encoding/json,
// matching Catalog.encode()'s "safe for JSON.stringify" contract.
func MarshalJSON(classes *ClassRegistry, v any) ([]byte, error) {
	state, err := NewEncoder(classes).Encode(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(state)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func UnmarshalJSON(classes *ClassRegistry, refs ReferenceResolver, data []byte, out *any) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := NewDecoder(classes, refs).Decode(raw)
	if err != nil {
		return err
	}
	*out = decoded
	return nil
}

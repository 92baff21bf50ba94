package jsonx

import (
	"math/big"
	"reflect"
	"testing"
	"time"
)

type fakeRef struct {
	id          int64
	provisional bool
}

func (r fakeRef) RefID() (int64, bool) { return r.id, r.provisional }

type point struct {
	X, Y int
}

func (p point) JSONXState() (any, error) {
	return map[string]any{"x": float64(p.X), "y": float64(p.Y)}, nil
}

func newPointRegistry() *ClassRegistry {
	reg := NewClassRegistry()
	reg.Register("geo.Point", point{}, func(state any) (any, error) {
		m := state.(map[string]any)
		return point{X: int(m["x"].(float64)), Y: int(m["y"].(float64))}, nil
	})
	return reg
}

func roundtrip(t *testing.T, classes *ClassRegistry, v any) any {
	t.Helper()
	enc, err := NewEncoder(classes).Encode(v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dec, err := NewDecoder(classes, nil).Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return dec
}

func TestRoundtripPrimitives(t *testing.T) {
	for _, v := range []any{nil, true, "hello", float64(42)} {
		got := roundtrip(t, nil, v)
		if got != v {
			t.Fatalf("roundtrip %v: got %v", v, got)
		}
	}
}

func TestRoundtripArrayAndMap(t *testing.T) {
	v := []any{float64(1), "two", map[string]any{"three": float64(3)}}
	got := roundtrip(t, nil, v)
	if !reflect.DeepEqual(got, v) {
		t.Fatalf("got %#v, want %#v", got, v)
	}
}

func TestWrapFlagCollision(t *testing.T) {
	v := map[string]any{"@": "literal-at-sign"}
	enc, err := NewEncoder(nil).Encode(v)
	if err != nil {
		t.Fatal(err)
	}
	wrapper, ok := enc.(map[string]any)
	if !ok || wrapper[tagKey] != flagWrap {
		t.Fatalf("expected wrap envelope, got %#v", enc)
	}
	dec, err := NewDecoder(nil, nil).Decode(enc)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(dec, v) {
		t.Fatalf("got %#v, want %#v", dec, v)
	}
}

func TestBinaryRoundtrip(t *testing.T) {
	v := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	got := roundtrip(t, nil, v)
	b, ok := got.([]byte)
	if !ok || !reflect.DeepEqual(b, v) {
		t.Fatalf("got %#v, want %#v", got, v)
	}
}

func TestBigIntRoundtrip(t *testing.T) {
	v := new(big.Int)
	v.SetString("123456789012345678901234567890", 10)
	got := roundtrip(t, nil, v)
	n, ok := got.(*big.Int)
	if !ok || n.Cmp(v) != 0 {
		t.Fatalf("got %#v, want %#v", got, v)
	}
}

func TestTimeRoundtrip(t *testing.T) {
	v := time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)
	got := roundtrip(t, nil, v)
	ts, ok := got.(time.Time)
	if !ok || !ts.Equal(v) {
		t.Fatalf("got %#v, want %#v", got, v)
	}
}

func TestDurationRoundtrip(t *testing.T) {
	v := 90 * time.Minute
	got := roundtrip(t, nil, v)
	d, ok := got.(time.Duration)
	if !ok || d != v {
		t.Fatalf("got %#v, want %#v", got, v)
	}
}

func TestClassRefRoundtrip(t *testing.T) {
	v := ClassRef("schemat.types.StringType")
	got := roundtrip(t, nil, v)
	if got != v {
		t.Fatalf("got %#v, want %#v", got, v)
	}
}

func TestStatefulInstanceRoundtrip(t *testing.T) {
	reg := newPointRegistry()
	v := point{X: 3, Y: 4}
	got := roundtrip(t, reg, v)
	if got != v {
		t.Fatalf("got %#v, want %#v", got, v)
	}
}

func TestReferenceEncodesAsAtTag(t *testing.T) {
	enc, err := NewEncoder(nil).Encode(fakeRef{id: 77})
	if err != nil {
		t.Fatal(err)
	}
	m := enc.(map[string]any)
	if m[tagKey] != float64(77) {
		t.Fatalf("expected @:77, got %#v", m)
	}
}

func TestProvisionalReferenceEncodesNegative(t *testing.T) {
	enc, err := NewEncoder(nil).Encode(fakeRef{id: 5, provisional: true})
	if err != nil {
		t.Fatal(err)
	}
	m := enc.(map[string]any)
	if m[tagKey] != float64(-5) {
		t.Fatalf("expected @:-5, got %#v", m)
	}
}

type resolverFunc func(int64) (any, error)

func (f resolverFunc) ResolveID(id int64) (any, error) { return f(id) }

func TestDecodeReferenceUsesResolver(t *testing.T) {
	var resolved int64
	resolver := resolverFunc(func(id int64) (any, error) {
		resolved = id
		return "resolved-object", nil
	})
	dec := NewDecoder(nil, resolver)
	out, err := dec.Decode(map[string]any{"@": float64(-9)})
	if err != nil {
		t.Fatal(err)
	}
	if resolved != -9 || out != "resolved-object" {
		t.Fatalf("got resolved=%d out=%v", resolved, out)
	}
}

func TestCyclicGraphRejectedAtEncode(t *testing.T) {
	a := map[string]any{}
	a["self"] = a
	if _, err := NewEncoder(nil).Encode(a); err == nil {
		t.Fatal("expected cyclic graph to be rejected")
	}
}

func TestUnknownClassTagFails(t *testing.T) {
	_, err := NewDecoder(NewClassRegistry(), nil).Decode(map[string]any{"@": "no.such.Class", "x": float64(1)})
	if err == nil {
		t.Fatal("expected error for unregistered class")
	}
}

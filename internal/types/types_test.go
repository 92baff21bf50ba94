package types

import (
	"testing"
	"time"
)

type fakeHost struct {
	getters map[string]any
}

func (h fakeHost) InvokeGetter(name string) (any, bool, error) {
	v, ok := h.getters[name]
	return v, ok, nil
}

type fakeRef struct {
	id          int64
	provisional bool
}

func (r fakeRef) RefID() (int64, bool) { return r.id, r.provisional }

func TestValidateIdempotent(t *testing.T) {
	str := NewString(DefaultOptions(), "", 0, 10)
	v1, err := str.Validate("hello")
	if err != nil {
		t.Fatal(err)
	}
	v2, err := str.Validate(v1)
	if err != nil {
		t.Fatal(err)
	}
	v3, err := str.Validate(v2)
	if err != nil {
		t.Fatal(err)
	}
	if v2 != v3 {
		t.Fatalf("validate not idempotent: %v != %v", v2, v3)
	}
}

func TestIntegerValidateRejectsOutOfFamily(t *testing.T) {
	u := NewInteger(DefaultOptions(), false, WidthAdaptive)
	if _, err := u.Validate(int64(-1)); err == nil {
		t.Fatal("expected error validating negative value as unsigned")
	}
}

func TestDurationValidatesNativeAndText(t *testing.T) {
	d := NewDuration(DefaultOptions())
	v, err := d.Validate(30 * time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if v != 30*time.Minute {
		t.Fatalf("got %v", v)
	}
	v, err = d.Validate("1h30m")
	if err != nil {
		t.Fatal(err)
	}
	if v != 90*time.Minute {
		t.Fatalf("got %v", v)
	}
	if _, err := d.Validate("not-a-duration"); err == nil {
		t.Fatal("expected error for malformed duration text")
	}
}

func TestTimestampValidatesRFC3339AndDoesNotTruncate(t *testing.T) {
	ts := NewTimestamp(DefaultOptions())
	want := time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)
	v, err := ts.Validate(want.Format(time.RFC3339))
	if err != nil {
		t.Fatal(err)
	}
	got, ok := v.(time.Time)
	if !ok || !got.Equal(want) {
		t.Fatalf("got %v, want %v", v, want)
	}
}

func TestMultipleFieldConcatenatesAndDedupes(t *testing.T) {
	str := NewString(Options{Inherited: true, Multiple: true, NotNull: true, NotBlank: true}, "", 0, 0)
	own := []any{"x"}
	proto := []any{"y", "z", "x"}
	cat := []any{"d"}
	values, err := str.CombineInherited([][]any{own, proto, cat}, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"x", "y", "z", "d"}
	if len(values) != len(want) {
		t.Fatalf("got %v, want %v", values, want)
	}
	for i, w := range want {
		if values[i] != w {
			t.Fatalf("index %d: got %v want %v", i, values[i], w)
		}
	}
}

func TestSingleValuedFieldRejectsDuplicate(t *testing.T) {
	str := NewString(DefaultOptions(), "", 0, 0)
	_, err := str.CombineInherited([][]any{{"a", "b"}}, nil)
	if err == nil {
		t.Fatal("expected validation error for duplicate single-valued field")
	}
}

func TestSingleValuedFieldImputesWhenEmpty(t *testing.T) {
	opts := DefaultOptions()
	opts.Default = "fallback"
	str := NewString(opts, "", 0, 0)
	values, err := str.CombineInherited([][]any{{}, {}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 1 || values[0] != "fallback" {
		t.Fatalf("expected imputed default, got %v", values)
	}
}

func TestNonInheritedFieldIgnoresAncestors(t *testing.T) {
	opts := DefaultOptions()
	opts.Inherited = false
	opts.Multiple = true
	str := NewString(opts, "", 0, 0)
	own := []any{"x"}
	proto := []any{"y"}
	values, err := str.CombineInherited([][]any{own, proto}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 1 || values[0] != "x" {
		t.Fatalf("expected own-only values, got %v", values)
	}
}

func TestImputeGetterFallsBackToDefault(t *testing.T) {
	opts := DefaultOptions()
	opts.Getter = "computeX"
	opts.Default = "static"
	str := NewString(opts, "", 0, 0)
	v, err := str.Impute(fakeHost{getters: map[string]any{}})
	if err != nil {
		t.Fatal(err)
	}
	if v != "static" {
		t.Fatalf("expected fallback to default, got %v", v)
	}
	v, err = str.Impute(fakeHost{getters: map[string]any{"computeX": "computed"}})
	if err != nil {
		t.Fatal(err)
	}
	if v != "computed" {
		t.Fatalf("expected getter result, got %v", v)
	}
}

func TestArrayMergeInheritedConcatenates(t *testing.T) {
	arr := NewArray(Options{Inherited: true, Mergeable: true, NotNull: true, NotBlank: true}, NewText(DefaultOptions()))
	own := []any{[]any{"a"}}
	proto := []any{[]any{"b", "c"}}
	values, err := arr.CombineInherited([][]any{own, proto}, nil)
	if err != nil {
		t.Fatal(err)
	}
	merged, ok := values[0].([]any)
	if !ok || len(merged) != 3 {
		t.Fatalf("expected concatenated array of 3, got %v", values)
	}
}

func TestObjectMergeYoungestOverrides(t *testing.T) {
	obj := NewObject(Options{Inherited: true, Mergeable: true, NotNull: true, NotBlank: true})
	young := map[string]any{"a": 1, "b": 2}
	old := map[string]any{"b": 99, "c": 3}
	values, err := obj.CombineInherited([][]any{{young}, {old}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	merged := values[0].(map[string]any)
	if merged["a"] != 1 || merged["b"] != 2 || merged["c"] != 3 {
		t.Fatalf("unexpected merge result: %v", merged)
	}
}

func TestRefValidateRoundtrip(t *testing.T) {
	ref := NewRef(DefaultOptions(), true, false)
	v, err := ref.Validate(fakeRef{id: 200})
	if err != nil {
		t.Fatal(err)
	}
	r, ok := v.(Reference)
	if !ok {
		t.Fatal("expected Reference value back")
	}
	if id, _ := r.RefID(); id != 200 {
		t.Fatalf("expected id 200, got %d", id)
	}
}

func TestVariantValidatesByTag(t *testing.T) {
	v := NewVariant(DefaultOptions(), "kind", map[string]Type{
		"text": NewRecord(DefaultOptions(), map[string]Type{
			"kind":  NewText(DefaultOptions()),
			"value": NewText(DefaultOptions()),
		}, true),
	})
	out, err := v.Validate(map[string]any{"kind": "text", "value": "hi"})
	if err != nil {
		t.Fatal(err)
	}
	m := out.(map[string]any)
	if m["kind"] != "text" || m["value"] != "hi" {
		t.Fatalf("unexpected variant result: %v", m)
	}
	if _, err := v.Validate(map[string]any{"kind": "unknown"}); err == nil {
		t.Fatal("expected error for unknown variant tag")
	}
}

func TestRecordStrictRejectsUnknownField(t *testing.T) {
	rec := NewRecord(DefaultOptions(), map[string]Type{"a": NewText(DefaultOptions())}, true)
	if _, err := rec.Validate(map[string]any{"a": "ok", "b": "nope"}); err == nil {
		t.Fatal("expected strict record to reject unknown field")
	}
}

func TestMergeSchemasOwnWins(t *testing.T) {
	base := NewSchema(map[string]Type{"tags": NewText(DefaultOptions())}, false)
	own := NewSchema(map[string]Type{"tags": NewInteger(DefaultOptions(), true, WidthAdaptive)}, false)
	merged := MergeSchemas(own, base)
	if _, ok := merged.FieldType("tags").(*IntegerType); !ok {
		t.Fatal("expected own schema's field type to win over prototype")
	}
}

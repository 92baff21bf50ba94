package types

import "sort"

// ArrayType validates a homogeneous list of Elem-typed values. Per
// spec.md §4.B, merge_inherited concatenates arrays from different
// ancestors into one combined array (distinct from the field-level
// Multiple option, which instead produces several entries of the field).
type ArrayType struct {
	Base
	Elem Type
}

func NewArray(opts Options, elem Type) *ArrayType {
	t := &ArrayType{Base: Base{Opts: opts}, Elem: elem}
	t.Merger = t.mergeArrays
	return t
}

func (t *ArrayType) Validate(v any) (any, error) {
	val, keep, err := applyEdgePolicies(t.Opts, v)
	if err != nil || !keep {
		return val, err
	}
	arr, ok := val.([]any)
	if !ok {
		return nil, validationErrorf("expected array, got %T", v)
	}
	out := make([]any, len(arr))
	for i, elem := range arr {
		validated, err := t.Elem.Validate(elem)
		if err != nil {
			return nil, validationErrorf("array element %d: %v", i, err)
		}
		out[i] = validated
	}
	return out, nil
}

func (t *ArrayType) mergeArrays(values []any, _ Host) (any, error) {
	var out []any
	for _, v := range values {
		if arr, ok := v.([]any); ok {
			out = append(out, arr...)
		} else {
			out = append(out, v)
		}
	}
	return out, nil
}

// SetType validates a list of unique Elem-typed values and merges by
// taking the union, youngest ancestor's elements ordered first.
type SetType struct {
	Base
	Elem Type
}

func NewSet(opts Options, elem Type) *SetType {
	t := &SetType{Base: Base{Opts: opts}, Elem: elem}
	t.Merger = t.mergeSets
	return t
}

func (t *SetType) Validate(v any) (any, error) {
	val, keep, err := applyEdgePolicies(t.Opts, v)
	if err != nil || !keep {
		return val, err
	}
	arr, ok := val.([]any)
	if !ok {
		return nil, validationErrorf("expected set (as array), got %T", v)
	}
	seen := map[any]struct{}{}
	out := make([]any, 0, len(arr))
	for _, elem := range arr {
		validated, err := t.Elem.Validate(elem)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[validated]; dup {
			continue
		}
		seen[validated] = struct{}{}
		out = append(out, validated)
	}
	return out, nil
}

func (t *SetType) mergeSets(values []any, _ Host) (any, error) {
	seen := map[any]struct{}{}
	var out []any
	for _, v := range values {
		arr, ok := v.([]any)
		if !ok {
			arr = []any{v}
		}
		for _, elem := range arr {
			if _, dup := seen[elem]; dup {
				continue
			}
			seen[elem] = struct{}{}
			out = append(out, elem)
		}
	}
	return out, nil
}

// ObjectType validates a plain-object map (POJO) with no declared schema;
// merge_inherited merges shallowly with the youngest ancestor's keys
// overriding older ones.
type ObjectType struct{ Base }

func NewObject(opts Options) *ObjectType {
	t := &ObjectType{Base{Opts: opts}}
	t.Merger = t.mergeObjects
	return t
}

func (t *ObjectType) Validate(v any) (any, error) {
	val, keep, err := applyEdgePolicies(t.Opts, v)
	if err != nil || !keep {
		return val, err
	}
	m, ok := val.(map[string]any)
	if !ok {
		return nil, validationErrorf("expected object, got %T", v)
	}
	return m, nil
}

func (t *ObjectType) mergeObjects(values []any, _ Host) (any, error) {
	// values[0] is the youngest; later entries are progressively older
	// ancestors, so earlier keys win on conflict.
	out := map[string]any{}
	for i := len(values) - 1; i >= 0; i-- {
		m, ok := values[i].(map[string]any)
		if !ok {
			continue
		}
		for k, v := range m {
			out[k] = v
		}
	}
	return out, nil
}

// MapType is like ObjectType but validates each value against a declared
// ValueType, modeling a typed key->value map.
type MapType struct {
	Base
	ValueType Type
}

func NewMap(opts Options, valueType Type) *MapType {
	t := &MapType{Base: Base{Opts: opts}, ValueType: valueType}
	t.Merger = t.mergeMaps
	return t
}

func (t *MapType) Validate(v any) (any, error) {
	val, keep, err := applyEdgePolicies(t.Opts, v)
	if err != nil || !keep {
		return val, err
	}
	m, ok := val.(map[string]any)
	if !ok {
		return nil, validationErrorf("expected map, got %T", v)
	}
	out := make(map[string]any, len(m))
	for k, elem := range m {
		validated, err := t.ValueType.Validate(elem)
		if err != nil {
			return nil, validationErrorf("map key %q: %v", k, err)
		}
		out[k] = validated
	}
	return out, nil
}

func (t *MapType) mergeMaps(values []any, _ Host) (any, error) {
	out := map[string]any{}
	for i := len(values) - 1; i >= 0; i-- {
		m, ok := values[i].(map[string]any)
		if !ok {
			continue
		}
		for k, v := range m {
			out[k] = v
		}
	}
	return out, nil
}

// RecordType ("SCHEMA" in spec.md) validates a map against a declared set
// of per-field Types. When Strict is false, keys absent from Fields pass
// through unvalidated (an "open" schema).
type RecordType struct {
	Base
	Fields map[string]Type
	Strict bool
}

func NewRecord(opts Options, fields map[string]Type, strict bool) *RecordType {
	return &RecordType{Base: Base{Opts: opts}, Fields: fields, Strict: strict}
}

func (t *RecordType) Validate(v any) (any, error) {
	val, keep, err := applyEdgePolicies(t.Opts, v)
	if err != nil || !keep {
		return val, err
	}
	m, ok := val.(map[string]any)
	if !ok {
		return nil, validationErrorf("expected record, got %T", v)
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		ft, known := t.Fields[k]
		if !known {
			if t.Strict {
				return nil, validationErrorf("unknown field %q in strict record", k)
			}
			out[k] = v
			continue
		}
		validated, err := ft.Validate(v)
		if err != nil {
			return nil, validationErrorf("field %q: %v", k, err)
		}
		out[k] = validated
	}
	for name, ft := range t.Fields {
		if _, present := out[name]; !present && ft.TypeOptions().Required {
			return nil, validationErrorf("missing required field %q", name)
		}
	}
	return out, nil
}

// FieldNames returns the record's declared field names in sorted order,
// for deterministic iteration (e.g. when computing a seal).
func (t *RecordType) FieldNames() []string {
	names := make([]string, 0, len(t.Fields))
	for name := range t.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// VariantType validates a tagged union: the value must be a map carrying
// TagField, whose value selects one of the named Variants to validate the
// remaining payload against.
type VariantType struct {
	Base
	TagField string
	Variants map[string]Type
}

func NewVariant(opts Options, tagField string, variants map[string]Type) *VariantType {
	return &VariantType{Base: Base{Opts: opts}, TagField: tagField, Variants: variants}
}

func (t *VariantType) Validate(v any) (any, error) {
	val, keep, err := applyEdgePolicies(t.Opts, v)
	if err != nil || !keep {
		return val, err
	}
	m, ok := val.(map[string]any)
	if !ok {
		return nil, validationErrorf("expected tagged variant object, got %T", v)
	}
	tag, ok := m[t.TagField].(string)
	if !ok {
		return nil, validationErrorf("variant missing string tag %q", t.TagField)
	}
	sub, known := t.Variants[tag]
	if !known {
		return nil, validationErrorf("unknown variant tag %q", tag)
	}
	validated, err := sub.Validate(m)
	if err != nil {
		return nil, err
	}
	out, _ := validated.(map[string]any)
	if out == nil {
		out = map[string]any{}
	}
	out[t.TagField] = tag
	return out, nil
}

// TypeType holds another Type as its value, used by categories whose
// SCHEMA itself declares fields of kind TYPE. It sets no Merger, so
// inherited values combine by Base's default rules; field options are not
// merged when one Type subclasses another.
type TypeType struct {
	Base
	Inner Type
}

func NewTypeType(opts Options, inner Type) *TypeType {
	return &TypeType{Base: Base{Opts: opts}, Inner: inner}
}

func (t *TypeType) Validate(v any) (any, error) {
	inner, ok := v.(Type)
	if !ok {
		return nil, validationErrorf("expected Type value, got %T", v)
	}
	return inner, nil
}

// RefType validates a Reference value (strong/autoload flags are policy
// hints consumed by the object/registry layer, not by validation itself).
type RefType struct {
	Base
	Strong   bool
	Autoload bool
}

func NewRef(opts Options, strong, autoload bool) *RefType {
	return &RefType{Base: Base{Opts: opts}, Strong: strong, Autoload: autoload}
}

func (t *RefType) Validate(v any) (any, error) {
	val, keep, err := applyEdgePolicies(t.Opts, v)
	if err != nil || !keep {
		return val, err
	}
	ref, ok := val.(Reference)
	if !ok {
		return nil, validationErrorf("expected reference, got %T", v)
	}
	return ref, nil
}

func (t *RefType) Binary() bool { return true }

func (t *RefType) WriteBinary(v any) ([]byte, error) {
	ref, ok := v.(Reference)
	if !ok {
		return nil, validationErrorf("WriteBinary: expected reference, got %T", v)
	}
	id, _ := ref.RefID()
	return (&IntegerType{Signed: true, Width: WidthAdaptive}).WriteBinary(id)
}

func (t *RefType) ReadBinary(b []byte) (any, error) {
	return (&IntegerType{Signed: true, Width: WidthAdaptive}).ReadBinary(b)
}

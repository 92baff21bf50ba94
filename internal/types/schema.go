package types

// Schema is a category's field map plus its strict/non-strict flag (spec.md
// §3 "Schema"). It is modeled directly on RecordType since a schema is, at
// its core, a RECORD/SCHEMA type describing the shape of instances.
type Schema struct {
	*RecordType
}

func NewSchema(fields map[string]Type, strict bool) Schema {
	return Schema{NewRecord(DefaultOptions(), fields, strict)}
}

// FieldType returns the Type declared for name, or a generic open TEXT
// type as the spec's "fall back to a generic schema" behavior for
// unresolved field names.
func (s Schema) FieldType(name string) Type {
	if s.RecordType != nil {
		if t, ok := s.Fields[name]; ok {
			return t
		}
	}
	return NewText(DefaultOptions())
}

// MergeSchemas linearizes field declarations across a prototype chain,
// own schema first (highest precedence), matching how Catalog/property
// resolution treats "own entries" as taking precedence over inherited
// ones. The result is strict only if every schema in the chain is strict.
func MergeSchemas(chain ...Schema) Schema {
	fields := map[string]Type{}
	strict := true
	for i := len(chain) - 1; i >= 0; i-- {
		s := chain[i]
		if s.RecordType == nil {
			continue
		}
		for name, t := range s.Fields {
			fields[name] = t
		}
		if !s.Strict {
			strict = false
		}
	}
	return NewSchema(fields, strict)
}

// Package types implements Schemat's declarative schema type system:
// validation, prototype-aware value combination, imputation, and binary
// encodability for the subset of types usable inside index keys.
//
// A Type never touches storage or the object registry directly; it talks
// to the hosting object only through the narrow Host interface, so this
// package has no dependency on the object/registry packages and can be
// unit-tested in isolation.
package types

import (
	"fmt"

	"github.com/schemat-io/schemat/internal/schematerr"
)

// Host is the minimal surface a Type needs from the object carrying a
// field, to run imputation functions or named getter methods.
type Host interface {
	// InvokeGetter calls a named zero-argument method on the host object
	// and returns its result, or ok=false if no such getter exists.
	InvokeGetter(name string) (value any, ok bool, err error)
}

// Reference is implemented by anything a REF type can point at (normally
// object.Object). Kept as an interface here to avoid an import cycle
// between types and object.
type Reference interface {
	RefID() (id int64, provisional bool)
}

// Options carries the per-field configuration merged from class defaults
// and instance overrides, per spec.md §3 "Schema".
type Options struct {
	Required  bool
	Multiple  bool
	Mergeable bool
	Inherited bool // whether prototype/category values are consulted at all
	Default   any
	Impute    func(obj Host) (any, error)
	Getter    string // name of a Host method to call for imputation
	Alias     string
	Virtual   bool
	Immutable bool
	Editable  bool
	NotNull   bool // default true; see Edge policies in spec.md §4.B
	NotBlank  bool // default true
}

// DefaultOptions returns the baseline field options: inherited, not_null
// and not_blank are true by default; everything else is the zero value.
func DefaultOptions() Options {
	return Options{Inherited: true, NotNull: true, NotBlank: true}
}

// Merge returns a copy of base with any non-zero fields of override applied
// on top, modeling "options merged from class defaults and instance
// overrides". Inherited, NotNull and NotBlank are the exception: they are
// always taken from override, even when false.
func (base Options) Merge(override Options) Options {
	out := base
	if override.Required {
		out.Required = true
	}
	if override.Multiple {
		out.Multiple = true
	}
	if override.Mergeable {
		out.Mergeable = true
	}
	out.Inherited = override.Inherited
	if override.Default != nil {
		out.Default = override.Default
	}
	if override.Impute != nil {
		out.Impute = override.Impute
	}
	if override.Getter != "" {
		out.Getter = override.Getter
	}
	if override.Alias != "" {
		out.Alias = override.Alias
	}
	if override.Virtual {
		out.Virtual = true
	}
	if override.Immutable {
		out.Immutable = true
	}
	if override.Editable {
		out.Editable = true
	}
	out.NotNull = override.NotNull
	out.NotBlank = override.NotBlank
	return out
}

// Type is the public surface every concrete type family implements.
type Type interface {
	// Validate canonicalizes value or fails with a schematerr ValidationError.
	Validate(value any) (any, error)
	// CombineInherited merges per-ancestor value arrays (own values first,
	// per spec.md §3 "Property computation inputs"), imputing when empty.
	CombineInherited(arrays [][]any, obj Host) ([]any, error)
	// Impute runs the Impute function, or the named Getter, or returns
	// Default, in that order.
	Impute(obj Host) (any, error)
	// TypeOptions exposes the merged field options.
	TypeOptions() Options
	// Binary reports whether this type supports WriteBinary/ReadBinary.
	Binary() bool
	WriteBinary(value any) ([]byte, error)
	ReadBinary(b []byte) (any, error)
}

// Base provides the shared Options plumbing and default CombineInherited/
// Impute behavior that every concrete family embeds and may override.
type Base struct {
	Opts Options
	// Merger, when set, implements type-specific merge_inherited semantics
	// (catalogs merge entry-wise, maps merge by key, sets union
	// youngest-first); nil means "multiple: concatenate, else: pick
	// youngest" which is the default described in spec.md §4.B.
	Merger func(values []any, obj Host) (any, error)
}

func (b Base) TypeOptions() Options { return b.Opts }

func (b Base) Binary() bool { return false }

func (b Base) WriteBinary(any) ([]byte, error) {
	return nil, schematerr.New(schematerr.KindUnsupported, "type does not support binary encoding")
}

func (b Base) ReadBinary([]byte) (any, error) {
	return nil, schematerr.New(schematerr.KindUnsupported, "type does not support binary encoding")
}

// Impute runs, in order: the Impute function, the named Getter on obj, or
// returns the static Default. Mirrors spec.md §4.B impute().
func (b Base) Impute(obj Host) (any, error) {
	if b.Opts.Impute != nil {
		return b.Opts.Impute(obj)
	}
	if b.Opts.Getter != "" && obj != nil {
		v, ok, err := obj.InvokeGetter(b.Opts.Getter)
		if err != nil {
			return nil, err
		}
		if ok {
			return v, nil
		}
	}
	return b.Opts.Default, nil
}

// CombineInherited implements spec.md §4.B combine_inherited: if
// Multiple, concatenate all per-ancestor arrays (own values are arrays[0]
// by convention); otherwise pick the first (youngest) non-empty array's
// first value, optionally merging with Merger when Mergeable. If no
// candidates exist at all, impute.
func (b Base) CombineInherited(arrays [][]any, obj Host) ([]any, error) {
	if !b.Opts.Inherited && len(arrays) > 1 {
		arrays = arrays[:1]
	}
	if b.Opts.Multiple {
		var out []any
		seen := map[string]struct{}{}
		for _, arr := range arrays {
			for _, v := range arr {
				k := fmt.Sprintf("%v", v)
				if _, dup := seen[k]; dup {
					continue
				}
				seen[k] = struct{}{}
				out = append(out, v)
			}
		}
		if len(out) == 0 {
			imputed, err := b.Impute(obj)
			if err != nil {
				return nil, err
			}
			if imputed == nil {
				return nil, nil
			}
			return []any{imputed}, nil
		}
		return out, nil
	}

	if b.Opts.Mergeable && b.Merger != nil {
		var flat []any
		for _, arr := range arrays {
			flat = append(flat, arr...)
		}
		if len(flat) == 0 {
			imputed, err := b.Impute(obj)
			if err != nil {
				return nil, err
			}
			if imputed == nil {
				return nil, nil
			}
			return []any{imputed}, nil
		}
		merged, err := b.Merger(flat, obj)
		if err != nil {
			return nil, err
		}
		return []any{merged}, nil
	}

	for _, arr := range arrays {
		if len(arr) > 0 {
			if len(arr) > 1 {
				return nil, schematerr.New(schematerr.KindValidation, "field declared multiple=false yielded more than one value")
			}
			return []any{arr[0]}, nil
		}
	}
	imputed, err := b.Impute(obj)
	if err != nil {
		return nil, err
	}
	if imputed == nil {
		return nil, nil
	}
	return []any{imputed}, nil
}

// isBlank reports whether v is the empty string or an empty slice/map,
// used by the not_blank edge policy.
func isBlank(v any) bool {
	switch x := v.(type) {
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

// applyEdgePolicies enforces not_null/not_blank as described in spec.md
// §4.B "Edge policies". Returns (value, keep) where keep=false means the
// value should be dropped from the record after validation.
func applyEdgePolicies(opts Options, v any) (any, bool, error) {
	if v == nil {
		if opts.NotNull && opts.Required {
			return nil, false, schematerr.New(schematerr.KindValidation, "value required but null")
		}
		return nil, false, nil
	}
	if opts.NotBlank && isBlank(v) {
		if opts.Required {
			return nil, false, schematerr.New(schematerr.KindValidation, "value required but blank")
		}
		return nil, false, nil
	}
	return v, true, nil
}

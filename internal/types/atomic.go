package types

import (
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/schemat-io/schemat/internal/codec"
	"github.com/schemat-io/schemat/internal/schematerr"
)

func validationErrorf(format string, args ...any) error {
	return schematerr.New(schematerr.KindValidation, fmt.Sprintf(format, args...))
}

// BooleanType validates Go bool values.
type BooleanType struct{ Base }

func NewBoolean(opts Options) *BooleanType { return &BooleanType{Base{Opts: opts}} }

func (t *BooleanType) Validate(v any) (any, error) {
	val, keep, err := applyEdgePolicies(t.Opts, v)
	if err != nil || !keep {
		return val, err
	}
	b, ok := val.(bool)
	if !ok {
		return nil, validationErrorf("expected bool, got %T", v)
	}
	return b, nil
}

// NumberType validates float64 values (JSON's native numeric type).
type NumberType struct{ Base }

func NewNumber(opts Options) *NumberType { return &NumberType{Base{Opts: opts}} }

func (t *NumberType) Validate(v any) (any, error) {
	val, keep, err := applyEdgePolicies(t.Opts, v)
	if err != nil || !keep {
		return val, err
	}
	switch n := val.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return nil, validationErrorf("expected number, got %T", v)
	}
}

// IntegerWidth selects fixed vs. adaptive-length binary encoding.
type IntegerWidth int

const (
	WidthAdaptive IntegerWidth = 0
	Width1        IntegerWidth = 1
	Width2        IntegerWidth = 2
	Width4        IntegerWidth = 4
	Width8        IntegerWidth = 8
)

// IntegerType validates int64 values and supports binary index encoding,
// signed or unsigned, fixed-width or adaptive-length per spec.md §4.A/§4.B.
type IntegerType struct {
	Base
	Signed bool
	Width  IntegerWidth
}

func NewInteger(opts Options, signed bool, width IntegerWidth) *IntegerType {
	return &IntegerType{Base: Base{Opts: opts}, Signed: signed, Width: width}
}

func (t *IntegerType) Validate(v any) (any, error) {
	val, keep, err := applyEdgePolicies(t.Opts, v)
	if err != nil || !keep {
		return val, err
	}
	var i64 int64
	switch n := val.(type) {
	case int64:
		i64 = n
	case int:
		i64 = int64(n)
	case float64:
		if n != float64(int64(n)) {
			return nil, validationErrorf("expected integer, got fractional %v", n)
		}
		i64 = int64(n)
	default:
		return nil, validationErrorf("expected integer, got %T", v)
	}
	if !t.Signed && i64 < 0 {
		return nil, validationErrorf("expected unsigned integer, got %d", i64)
	}
	return i64, nil
}

func (t *IntegerType) Binary() bool { return true }

func (t *IntegerType) WriteBinary(v any) ([]byte, error) {
	i64, ok := v.(int64)
	if !ok {
		return nil, validationErrorf("WriteBinary: expected int64, got %T", v)
	}
	if t.Width == WidthAdaptive {
		if t.Signed {
			return codec.EncodeIntAdaptive(i64), nil
		}
		if i64 < 0 {
			return nil, validationErrorf("WriteBinary: negative value for unsigned type")
		}
		return codec.EncodeUintAdaptive(uint64(i64)), nil
	}
	if t.Signed {
		return codec.EncodeIntFixed(i64, int(t.Width))
	}
	if i64 < 0 {
		return nil, validationErrorf("WriteBinary: negative value for unsigned type")
	}
	return codec.EncodeUintFixed(uint64(i64), int(t.Width))
}

func (t *IntegerType) ReadBinary(b []byte) (any, error) {
	if t.Width == WidthAdaptive {
		if t.Signed {
			v, _, err := codec.DecodeIntAdaptive(b)
			return v, err
		}
		v, _, err := codec.DecodeUintAdaptive(b)
		return int64(v), err
	}
	if t.Signed {
		return codec.DecodeIntFixed(b), nil
	}
	return int64(codec.DecodeUintFixed(b)), nil
}

// StringType validates strings within a charset and length bounds. An
// empty CharsetPattern means "no charset restriction".
type StringType struct {
	Base
	CharsetPattern string
	MinLen, MaxLen int
	charsetRe      *regexp.Regexp
}

func NewString(opts Options, charset string, minLen, maxLen int) *StringType {
	t := &StringType{Base: Base{Opts: opts}, CharsetPattern: charset, MinLen: minLen, MaxLen: maxLen}
	if charset != "" {
		t.charsetRe = regexp.MustCompile(charset)
	}
	return t
}

func (t *StringType) Validate(v any) (any, error) {
	val, keep, err := applyEdgePolicies(t.Opts, v)
	if err != nil || !keep {
		return val, err
	}
	s, ok := val.(string)
	if !ok {
		return nil, validationErrorf("expected string, got %T", v)
	}
	if t.MinLen > 0 && len(s) < t.MinLen {
		return nil, validationErrorf("string shorter than %d", t.MinLen)
	}
	if t.MaxLen > 0 && len(s) > t.MaxLen {
		return nil, validationErrorf("string longer than %d", t.MaxLen)
	}
	if t.charsetRe != nil && !t.charsetRe.MatchString(s) {
		return nil, validationErrorf("string %q does not match charset %s", s, t.CharsetPattern)
	}
	return s, nil
}

func (t *StringType) Binary() bool { return true }

func (t *StringType) WriteBinary(v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, validationErrorf("WriteBinary: expected string, got %T", v)
	}
	return codec.EncodeString(s), nil
}

func (t *StringType) ReadBinary(b []byte) (any, error) { return codec.DecodeString(b) }

// NewIdentifier is FIELD/IDENTIFIER from spec.md §4.B: a STRING restricted
// to a charset suitable for field/category names.
func NewIdentifier(opts Options) *StringType {
	return NewString(opts, `^[A-Za-z_][A-Za-z0-9_]*$`, 1, 64)
}

// NewText is TEXT/CODE: a STRING with no charset restriction and no
// practical length bound, used for free-form content.
func NewText(opts Options) *StringType {
	return NewString(opts, "", 0, 0)
}

// URLType wraps StringType with a URL-parseability check.
type URLType struct{ StringType }

func NewURL(opts Options) *URLType {
	return &URLType{StringType{Base: Base{Opts: opts}}}
}

func (t *URLType) Validate(v any) (any, error) {
	val, keep, err := applyEdgePolicies(t.Opts, v)
	if err != nil || !keep {
		return val, err
	}
	s, ok := val.(string)
	if !ok {
		return nil, validationErrorf("expected string for URL, got %T", v)
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" {
		return nil, validationErrorf("invalid URL %q", s)
	}
	return s, nil
}

// DateTimeType validates time.Time (or RFC3339 strings) values. OnlyDate
// truncates to the day, modeling DATE vs. DATETIME.
type DateTimeType struct {
	Base
	OnlyDate bool
}

func NewDateTime(opts Options) *DateTimeType { return &DateTimeType{Base: Base{Opts: opts}} }
func NewDate(opts Options) *DateTimeType     { return &DateTimeType{Base: Base{Opts: opts}, OnlyDate: true} }

func (t *DateTimeType) Validate(v any) (any, error) {
	val, keep, err := applyEdgePolicies(t.Opts, v)
	if err != nil || !keep {
		return val, err
	}
	var ts time.Time
	switch x := val.(type) {
	case time.Time:
		ts = x
	case string:
		parsed, err := time.Parse(time.RFC3339, x)
		if err != nil {
			return nil, validationErrorf("invalid date/time %q: %v", x, err)
		}
		ts = parsed
	default:
		return nil, validationErrorf("expected time, got %T", v)
	}
	if t.OnlyDate {
		ts = time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	}
	return ts, nil
}

// NewTimestamp is the TIMESTAMP family: an RFC3339 instant, always kept
// at full precision (unlike NewDate, which truncates to the day).
func NewTimestamp(opts Options) *DateTimeType { return &DateTimeType{Base: Base{Opts: opts}} }

// DurationType validates time.Duration values, accepting either a native
// time.Duration or Go's text duration form ("30m", "1h30m").
type DurationType struct{ Base }

func NewDuration(opts Options) *DurationType { return &DurationType{Base{Opts: opts}} }

func (t *DurationType) Validate(v any) (any, error) {
	val, keep, err := applyEdgePolicies(t.Opts, v)
	if err != nil || !keep {
		return val, err
	}
	switch x := val.(type) {
	case time.Duration:
		return x, nil
	case string:
		d, err := time.ParseDuration(x)
		if err != nil {
			return nil, validationErrorf("invalid duration %q: %v", x, err)
		}
		return d, nil
	default:
		return nil, validationErrorf("expected duration, got %T", v)
	}
}

// BinaryType validates []byte payloads.
type BinaryType struct{ Base }

func NewBinary(opts Options) *BinaryType { return &BinaryType{Base{Opts: opts}} }

func (t *BinaryType) Validate(v any) (any, error) {
	val, keep, err := applyEdgePolicies(t.Opts, v)
	if err != nil || !keep {
		return val, err
	}
	b, ok := val.([]byte)
	if !ok {
		return nil, validationErrorf("expected []byte, got %T", v)
	}
	return b, nil
}

// EnumType validates that a string value is one of a fixed Values set.
type EnumType struct {
	Base
	Values []string
}

func NewEnum(opts Options, values []string) *EnumType {
	return &EnumType{Base: Base{Opts: opts}, Values: values}
}

func (t *EnumType) Validate(v any) (any, error) {
	val, keep, err := applyEdgePolicies(t.Opts, v)
	if err != nil || !keep {
		return val, err
	}
	s, ok := val.(string)
	if !ok {
		return nil, validationErrorf("expected string enum, got %T", v)
	}
	for _, allowed := range t.Values {
		if allowed == s {
			return s, nil
		}
	}
	return nil, validationErrorf("%q is not one of %v", s, t.Values)
}

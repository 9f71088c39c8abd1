package operation

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/harun/docmcp/pkg/errdefs"
	"github.com/spf13/cast"
)

// Reserved parameter names read by the dispatcher.
const (
	ParamPath       = "path"
	ParamOutputPath = "outputPath"
	ParamUseSession = "useSession"
)

// Parameters is an ordered, immutable bag of loosely typed argument values.
type Parameters struct {
	op     string
	names  []string
	values map[string]interface{}
}

// ParametersBuilder collects values before a call. Build snapshots them.
type ParametersBuilder struct {
	op     string
	names  []string
	values map[string]interface{}
}

// NewParametersBuilder starts a bag for the named operation.
func NewParametersBuilder(op string) *ParametersBuilder {
	return &ParametersBuilder{op: op, values: make(map[string]interface{})}
}

// Set adds or replaces a value. Insertion order is kept for new names.
func (b *ParametersBuilder) Set(name string, value interface{}) *ParametersBuilder {
	if _, exists := b.values[name]; !exists {
		b.names = append(b.names, name)
	}
	b.values[name] = value
	return b
}

// Build returns an immutable copy of the collected values.
func (b *ParametersBuilder) Build() Parameters {
	p := Parameters{
		op:     b.op,
		names:  append([]string(nil), b.names...),
		values: make(map[string]interface{}, len(b.values)),
	}
	for k, v := range b.values {
		p.values[k] = v
	}
	return p
}

// NewParameters builds a bag from a decoded JSON object, ordered by name.
func NewParameters(op string, args map[string]interface{}) Parameters {
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	b := NewParametersBuilder(op)
	for _, name := range names {
		b.Set(name, args[name])
	}
	return b.Build()
}

// Operation returns the operation the bag was built for.
func (p Parameters) Operation() string { return p.op }

// Names returns parameter names in order.
func (p Parameters) Names() []string {
	return append([]string(nil), p.names...)
}

// Len returns the number of parameters.
func (p Parameters) Len() int { return len(p.names) }

// Has reports whether name is present with a non-nil value.
func (p Parameters) Has(name string) bool {
	v, ok := p.values[name]
	return ok && v != nil
}

// Raw returns the uncoerced value.
func (p Parameters) Raw(name string) (interface{}, bool) {
	v, ok := p.values[name]
	return v, ok
}

// Map returns a copy of the values.
func (p Parameters) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// Get returns the named value coerced to T. An absent or null value is a
// missing parameter; a value that cannot be coerced is a type mismatch.
func Get[T any](p Parameters, name string) (T, error) {
	var zero T
	raw, ok := p.values[name]
	if !ok || raw == nil {
		return zero, errdefs.MissingParameter(p.op, name)
	}
	return coerce[T](p.op, name, raw)
}

// GetOptional is Get with a default for absent values. Present values that
// cannot be coerced still fail.
func GetOptional[T any](p Parameters, name string, def T) (T, error) {
	raw, ok := p.values[name]
	if !ok || raw == nil {
		return def, nil
	}
	return coerce[T](p.op, name, raw)
}

func coerce[T any](op, name string, raw interface{}) (T, error) {
	var zero T
	var (
		out  interface{}
		err  error
		want string
	)

	switch any(zero).(type) {
	case string:
		want = "a string"
		switch raw.(type) {
		case map[string]interface{}, []interface{}:
			err = fmt.Errorf("got %T", raw)
		default:
			out, err = cast.ToStringE(raw)
		}
	case int:
		want = "an integer"
		if err = checkIntegral(raw); err == nil {
			out, err = cast.ToIntE(raw)
		}
	case int64:
		want = "an integer"
		if err = checkIntegral(raw); err == nil {
			out, err = cast.ToInt64E(raw)
		}
	case float64:
		want = "a number"
		out, err = cast.ToFloat64E(raw)
	case bool:
		want = "a boolean"
		out, err = cast.ToBoolE(raw)
	case time.Duration:
		want = "a duration"
		out, err = cast.ToDurationE(raw)
	case []string:
		want = "a list of strings"
		if s, ok := raw.(string); ok {
			out = []string{s}
		} else {
			out, err = cast.ToStringSliceE(raw)
		}
	case map[string]interface{}:
		want = "an object"
		out, err = cast.ToStringMapE(raw)
	default:
		want = fmt.Sprintf("a %T", zero)
		if v, ok := raw.(T); ok {
			return v, nil
		}
		err = fmt.Errorf("got %T", raw)
	}

	if err != nil {
		return zero, errdefs.TypeMismatch(op, name, want, err)
	}
	return out.(T), nil
}

// checkIntegral rejects fractional numbers that cast would silently truncate.
func checkIntegral(raw interface{}) error {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case bool:
		return fmt.Errorf("got boolean %v", v)
	default:
		return nil
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return fmt.Errorf("%v is not a whole number", f)
	}
	return nil
}

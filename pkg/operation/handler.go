package operation

import (
	"reflect"
	"strings"
	"unicode"
)

// Handler implements one named operation.
type Handler interface {
	Execute(c *Context, params Parameters) (Result, error)
}

// Named lets a handler declare its operation name explicitly.
type Named interface {
	Name() string
}

// TraitProvider lets a handler declare metadata used for validation and listing.
type TraitProvider interface {
	Traits() Traits
}

// Factory constructs a fresh handler instance.
type Factory func() Handler

// Access declares whether an operation reads or mutates documents.
type Access int

const (
	AccessRead Access = iota
	AccessWrite
	// AccessNone operations manage sessions rather than document content.
	AccessNone
)

func (a Access) String() string {
	switch a {
	case AccessWrite:
		return "write"
	case AccessNone:
		return "none"
	default:
		return "read"
	}
}

// Output selects the response shape.
type Output int

const (
	OutputText Output = iota
	OutputStructured
)

func (o Output) String() string {
	if o == OutputStructured {
		return "structured"
	}
	return "text"
}

// ParameterSpec describes one accepted parameter.
type ParameterSpec struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// Traits is the metadata a handler declares about itself.
type Traits struct {
	Description string
	Access      Access
	Output      Output
	// NeedsDocument makes the reserved path parameter required.
	NeedsDocument bool
	Parameters    []ParameterSpec
}

// NameOf returns the handler's declared operation name: its Name method if
// present, otherwise its type name in snake case without a Handler suffix.
func NameOf(h Handler) string {
	if n, ok := h.(Named); ok {
		return strings.TrimSpace(n.Name())
	}
	t := reflect.TypeOf(h)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return snakeCase(strings.TrimSuffix(t.Name(), "Handler"))
}

// TraitsOf returns the handler's declared traits, or read/text defaults.
func TraitsOf(h Handler) Traits {
	if tp, ok := h.(TraitProvider); ok {
		return tp.Traits()
	}
	return Traits{Access: AccessRead, Output: OutputText}
}

func snakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]))
			nextLower := i > 0 && i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1])
			if prevLower || nextLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

package operation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/harun/docmcp/pkg/errdefs"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// Source is the compile-time set of handler constructors a registry is built from.
type Source []Factory

// Descriptor is one registered operation.
type Descriptor struct {
	Name    string
	Traits  Traits
	Factory Factory

	schema    *gojsonschema.Schema
	schemaMap map[string]interface{}
}

// Schema returns the JSON schema of the operation's parameters.
func (d *Descriptor) Schema() map[string]interface{} {
	return d.schemaMap
}

// Registry maps operation names to handler factories. It never changes after
// construction, so concurrent lookups need no locking.
type Registry struct {
	descriptors map[string]*Descriptor
	names       []string
	source      Source
}

// NewRegistry builds a registry from source. It fails if a factory is nil or
// yields no handler, if a handler has no name, or if two handlers share a name.
func NewRegistry(source Source) (*Registry, error) {
	r := &Registry{
		descriptors: make(map[string]*Descriptor, len(source)),
		source:      append(Source(nil), source...),
	}

	for i, factory := range source {
		desc, err := describe(i, factory)
		if err != nil {
			return nil, err
		}
		key := strings.ToLower(desc.Name)
		if existing, exists := r.descriptors[key]; exists {
			return nil, fmt.Errorf("duplicate operation %q (already registered as %q)", desc.Name, existing.Name)
		}
		r.descriptors[key] = desc
		r.names = append(r.names, key)
	}
	sort.Strings(r.names)

	log.Debug().Int("operations", len(r.names)).Msg("Operation registry built")
	return r, nil
}

// With returns a new registry holding r's operations plus extra.
func (r *Registry) With(extra ...Factory) (*Registry, error) {
	source := append(append(Source(nil), r.source...), extra...)
	return NewRegistry(source)
}

func describe(index int, factory Factory) (desc *Descriptor, err error) {
	if factory == nil {
		return nil, fmt.Errorf("operation source entry %d has no constructor", index)
	}

	defer func() {
		if r := recover(); r != nil {
			desc = nil
			err = fmt.Errorf("operation source entry %d: constructor panicked: %v", index, r)
		}
	}()

	h := factory()
	if h == nil {
		return nil, fmt.Errorf("operation source entry %d: constructor returned no handler", index)
	}

	name := NameOf(h)
	if name == "" {
		return nil, fmt.Errorf("operation source entry %d (%T) has no name", index, h)
	}

	traits := TraitsOf(h)
	schemaMap, schema, err := generateJSONSchema(traits)
	if err != nil {
		return nil, fmt.Errorf("operation %q: invalid parameter schema: %w", name, err)
	}

	return &Descriptor{
		Name:      name,
		Traits:    traits,
		Factory:   factory,
		schema:    schema,
		schemaMap: schemaMap,
	}, nil
}

// GetHandler returns a fresh handler for name, compared case-insensitively.
func (r *Registry) GetHandler(name string) (Handler, error) {
	desc, ok := r.Descriptor(name)
	if !ok {
		return nil, errdefs.Unsupported(name)
	}
	return desc.Factory(), nil
}

// Descriptor returns the registered descriptor for name.
func (r *Registry) Descriptor(name string) (*Descriptor, bool) {
	desc, ok := r.descriptors[strings.ToLower(strings.TrimSpace(name))]
	return desc, ok
}

// Descriptors returns every descriptor sorted by name.
func (r *Registry) Descriptors() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.descriptors[name])
	}
	return out
}

// Names returns the lower-case operation names, sorted.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Len returns the number of registered operations.
func (r *Registry) Len() int { return len(r.names) }

var validTypes = map[string]bool{
	"string": true, "number": true, "boolean": true,
	"object": true, "array": true, "integer": true,
}

// generateJSONSchema builds the parameter schema. Scalar non-string types also
// accept strings so loose callers can send "5" for 5; Get does the coercion.
func generateJSONSchema(traits Traits) (map[string]interface{}, *gojsonschema.Schema, error) {
	properties := map[string]interface{}{
		ParamPath: map[string]interface{}{
			"type":        "string",
			"description": "Document path relative to the documents root.",
		},
		ParamOutputPath: map[string]interface{}{
			"type":        "string",
			"description": "Where to save the result. Defaults to path for stateless calls.",
		},
		ParamUseSession: map[string]interface{}{
			"type":        []string{"boolean", "string"},
			"description": "Work on the caller's cached copy instead of loading from disk.",
		},
	}
	required := []string{}
	if traits.NeedsDocument {
		required = append(required, ParamPath)
	}

	for _, param := range traits.Parameters {
		if param.Name == "" {
			return nil, nil, fmt.Errorf("parameter with empty name")
		}
		if !validTypes[param.Type] {
			return nil, nil, fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}

		var typ interface{} = param.Type
		switch param.Type {
		case "integer", "number", "boolean":
			typ = []string{param.Type, "string"}
		}

		paramSchema := map[string]interface{}{
			"type":        typ,
			"description": param.Description,
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}

	// path is enforced by the dispatcher, since a preloaded document can stand in for it
	validation := make(map[string]interface{}, len(schemaMap))
	for k, v := range schemaMap {
		validation[k] = v
	}
	if traits.NeedsDocument {
		if rest := required[1:]; len(rest) > 0 {
			validation["required"] = rest
		} else {
			delete(validation, "required")
		}
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(validation))
	if err != nil {
		return nil, nil, err
	}
	return schemaMap, schema, nil
}

// Validate checks args against the operation's schema.
func (d *Descriptor) Validate(args map[string]interface{}) error {
	if d.schema == nil {
		return nil
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	result, err := d.schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return errdefs.Wrap(errdefs.KindArgument, d.Name, err, "parameters are not a valid object")
	}
	if result.Valid() {
		return nil
	}

	for _, verr := range result.Errors() {
		if verr.Type() == "required" {
			if prop, ok := verr.Details()["property"].(string); ok {
				return errdefs.MissingParameter(d.Name, prop)
			}
		}
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, verr := range result.Errors() {
		msgs = append(msgs, verr.String())
	}
	return errdefs.Argument(d.Name, "invalid parameters: %s", strings.Join(msgs, "; "))
}

package operation

import (
	"errors"
	"testing"

	"github.com/harun/docmcp/pkg/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingHandler struct{}

func (pingHandler) Execute(c *Context, params Parameters) (Result, error) {
	return Textf("pong"), nil
}

type namedHandler struct{ name string }

func (h namedHandler) Name() string { return h.name }
func (namedHandler) Execute(c *Context, params Parameters) (Result, error) {
	return Result{}, nil
}

type resizeImageHandler struct{}

func (resizeImageHandler) Traits() Traits {
	return Traits{
		Description:   "Resize an image",
		Access:        AccessWrite,
		NeedsDocument: true,
		Parameters: []ParameterSpec{
			{Name: "width", Type: "integer", Required: true},
			{Name: "height", Type: "integer", Default: 100},
			{Name: "label", Type: "string"},
		},
	}
}

func (resizeImageHandler) Execute(c *Context, params Parameters) (Result, error) {
	return Result{}, nil
}

type badSchemaHandler struct{}

func (badSchemaHandler) Traits() Traits {
	return Traits{Parameters: []ParameterSpec{{Name: "x", Type: "uuid"}}}
}
func (badSchemaHandler) Execute(c *Context, params Parameters) (Result, error) {
	return Result{}, nil
}

func TestNameOf(t *testing.T) {
	assert.Equal(t, "ping", NameOf(pingHandler{}))
	assert.Equal(t, "resize_image", NameOf(&resizeImageHandler{}))
	assert.Equal(t, "Custom", NameOf(namedHandler{name: " Custom "}))
}

func TestSnakeCase(t *testing.T) {
	tests := map[string]string{
		"GetParagraphs":  "get_paragraphs",
		"HTTPServer":     "http_server",
		"Render2Pages":   "render2_pages",
		"already_snaked": "already_snaked",
	}
	for in, want := range tests {
		assert.Equal(t, want, snakeCase(in), in)
	}
}

func TestNewRegistry(t *testing.T) {
	r, err := NewRegistry(Source{
		func() Handler { return pingHandler{} },
		func() Handler { return resizeImageHandler{} },
		func() Handler { return namedHandler{name: "MixedCase"} },
	})
	require.NoError(t, err)

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"mixedcase", "ping", "resize_image"}, r.Names())

	desc, ok := r.Descriptor("MIXEDCASE")
	require.True(t, ok)
	assert.Equal(t, "MixedCase", desc.Name)

	h, err := r.GetHandler("Resize_Image")
	require.NoError(t, err)
	assert.IsType(t, resizeImageHandler{}, h)

	descs := r.Descriptors()
	require.Len(t, descs, 3)
	assert.Equal(t, "ping", descs[1].Name)
}

func TestNewRegistry_Failures(t *testing.T) {
	tests := []struct {
		name   string
		source Source
	}{
		{"duplicate name", Source{
			func() Handler { return pingHandler{} },
			func() Handler { return namedHandler{name: "PING"} },
		}},
		{"nil factory", Source{nil}},
		{"nil handler", Source{func() Handler { return nil }}},
		{"panicking constructor", Source{func() Handler { panic("boom") }}},
		{"empty name", Source{func() Handler { return namedHandler{name: " "} }}},
		{"invalid schema", Source{func() Handler { return badSchemaHandler{} }}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRegistry(tt.source)
			assert.Error(t, err)
			assert.Nil(t, r)
		})
	}
}

func TestRegistry_Unknown(t *testing.T) {
	r, err := NewRegistry(Source{func() Handler { return pingHandler{} }})
	require.NoError(t, err)

	_, err = r.GetHandler("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrUnsupportedOperation))
	assert.Equal(t, errdefs.KindUnsupported, errdefs.KindOf(err))
}

func TestRegistry_With(t *testing.T) {
	base, err := NewRegistry(Source{func() Handler { return pingHandler{} }})
	require.NoError(t, err)

	extended, err := base.With(func() Handler { return resizeImageHandler{} })
	require.NoError(t, err)
	assert.Equal(t, 1, base.Len())
	assert.Equal(t, 2, extended.Len())

	_, err = extended.With(func() Handler { return pingHandler{} })
	assert.Error(t, err)
}

func TestDescriptor_Schema(t *testing.T) {
	r, err := NewRegistry(Source{func() Handler { return resizeImageHandler{} }})
	require.NoError(t, err)
	desc, _ := r.Descriptor("resize_image")

	schema := desc.Schema()
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, false, schema["additionalProperties"])
	assert.ElementsMatch(t, []string{ParamPath, "width"}, schema["required"])

	props := schema["properties"].(map[string]interface{})
	for _, name := range []string{ParamPath, ParamOutputPath, ParamUseSession, "width", "height", "label"} {
		assert.Contains(t, props, name)
	}
	assert.Equal(t, 100, props["height"].(map[string]interface{})["default"])
}

func TestDescriptor_Validate(t *testing.T) {
	r, err := NewRegistry(Source{func() Handler { return resizeImageHandler{} }})
	require.NoError(t, err)
	desc, _ := r.Descriptor("resize_image")

	tests := []struct {
		name    string
		args    map[string]interface{}
		missing bool
		valid   bool
	}{
		{"valid", map[string]interface{}{"path": "a.docx", "width": 10}, false, true},
		{"loose integer", map[string]interface{}{"path": "a.docx", "width": "10"}, false, true},
		{"path enforced later", map[string]interface{}{"width": 10}, false, true},
		{"missing required", map[string]interface{}{"path": "a.docx"}, true, false},
		{"nil args", nil, true, false},
		{"unknown parameter", map[string]interface{}{"width": 1, "colour": "red"}, false, false},
		{"wrong type", map[string]interface{}{"width": 1, "label": 5}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := desc.Validate(tt.args)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, errdefs.KindArgument, errdefs.KindOf(err))
			assert.Equal(t, tt.missing, errors.Is(err, errdefs.ErrMissingParameter))
		})
	}
}

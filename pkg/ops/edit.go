package ops

import (
	"strings"

	"github.com/harun/docmcp/pkg/document"
	"github.com/harun/docmcp/pkg/errdefs"
	"github.com/harun/docmcp/pkg/operation"
)

// AddParagraphHandler appends a paragraph.
type AddParagraphHandler struct{}

func (h *AddParagraphHandler) Traits() operation.Traits {
	return operation.Traits{
		Description:   "Append a paragraph to the end of the document.",
		Access:        operation.AccessWrite,
		NeedsDocument: true,
		Parameters: []operation.ParameterSpec{
			{Name: "text", Type: "string", Description: "Paragraph text", Required: true},
			{Name: "style", Type: "string", Description: "Paragraph style name, e.g. Heading1"},
		},
	}
}

func (h *AddParagraphHandler) Execute(c *operation.Context, params operation.Parameters) (operation.Result, error) {
	p, err := paragraphParam(params)
	if err != nil {
		return operation.Result{}, err
	}

	lease, err := c.OpenForWrite()
	if err != nil {
		return operation.Result{}, err
	}
	doc := lease.Document()
	doc.AppendParagraph(p)
	if err := lease.MarkModified(); err != nil {
		return operation.Result{}, err
	}
	return operation.Textf("Added paragraph %d", doc.ParagraphCount()-1), nil
}

// InsertParagraphHandler inserts a paragraph before an index.
type InsertParagraphHandler struct{}

func (h *InsertParagraphHandler) Traits() operation.Traits {
	return operation.Traits{
		Description:   "Insert a paragraph before the given index.",
		Access:        operation.AccessWrite,
		NeedsDocument: true,
		Parameters: []operation.ParameterSpec{
			{Name: "index", Type: "integer", Description: "Index to insert before; the paragraph count appends", Required: true},
			{Name: "text", Type: "string", Description: "Paragraph text", Required: true},
			{Name: "style", Type: "string", Description: "Paragraph style name"},
		},
	}
}

func (h *InsertParagraphHandler) Execute(c *operation.Context, params operation.Parameters) (operation.Result, error) {
	index, err := operation.Get[int](params, "index")
	if err != nil {
		return operation.Result{}, err
	}
	p, err := paragraphParam(params)
	if err != nil {
		return operation.Result{}, err
	}

	lease, err := c.OpenForWrite()
	if err != nil {
		return operation.Result{}, err
	}
	if err := lease.Document().InsertParagraph(index, p); err != nil {
		return operation.Result{}, rescope(c, err)
	}
	if err := lease.MarkModified(); err != nil {
		return operation.Result{}, err
	}
	return operation.Textf("Inserted paragraph at %d", index), nil
}

// DeleteParagraphHandler removes one paragraph.
type DeleteParagraphHandler struct{}

func (h *DeleteParagraphHandler) Traits() operation.Traits {
	return operation.Traits{
		Description:   "Delete the paragraph at the given index.",
		Access:        operation.AccessWrite,
		NeedsDocument: true,
		Parameters: []operation.ParameterSpec{
			{Name: "index", Type: "integer", Description: "Paragraph index", Required: true},
		},
	}
}

func (h *DeleteParagraphHandler) Execute(c *operation.Context, params operation.Parameters) (operation.Result, error) {
	index, err := operation.Get[int](params, "index")
	if err != nil {
		return operation.Result{}, err
	}

	lease, err := c.OpenForWrite()
	if err != nil {
		return operation.Result{}, err
	}
	if err := lease.Document().DeleteParagraph(index); err != nil {
		return operation.Result{}, rescope(c, err)
	}
	if err := lease.MarkModified(); err != nil {
		return operation.Result{}, err
	}
	return operation.Textf("Deleted paragraph %d", index), nil
}

// ReplaceTextHandler replaces text across all paragraphs.
type ReplaceTextHandler struct{}

func (h *ReplaceTextHandler) Traits() operation.Traits {
	return operation.Traits{
		Description:   "Replace every occurrence of a string in the document.",
		Access:        operation.AccessWrite,
		NeedsDocument: true,
		Parameters: []operation.ParameterSpec{
			{Name: "find", Type: "string", Description: "Text to find", Required: true},
			{Name: "replace", Type: "string", Description: "Replacement text", Required: true},
			{Name: "matchCase", Type: "boolean", Description: "Case-sensitive matching", Default: true},
		},
	}
}

func (h *ReplaceTextHandler) Execute(c *operation.Context, params operation.Parameters) (operation.Result, error) {
	find, err := operation.Get[string](params, "find")
	if err != nil {
		return operation.Result{}, err
	}
	if find == "" {
		return operation.Result{}, errdefs.Argument(c.Operation, "find must not be empty")
	}
	replacement, err := operation.Get[string](params, "replace")
	if err != nil {
		return operation.Result{}, err
	}
	matchCase, err := operation.GetOptional(params, "matchCase", true)
	if err != nil {
		return operation.Result{}, err
	}

	lease, err := c.OpenForWrite()
	if err != nil {
		return operation.Result{}, err
	}
	n := lease.Document().ReplaceText(find, replacement, matchCase)
	if n == 0 {
		return operation.Textf("No occurrences of %q", find), nil
	}
	if err := lease.MarkModified(); err != nil {
		return operation.Result{}, err
	}
	return operation.Textf("Replaced %d occurrences", n), nil
}

// SetDocumentPropertyHandler sets or clears a core property.
type SetDocumentPropertyHandler struct{}

func (h *SetDocumentPropertyHandler) Traits() operation.Traits {
	return operation.Traits{
		Description:   "Set a core document property. An empty value clears it.",
		Access:        operation.AccessWrite,
		NeedsDocument: true,
		Parameters: []operation.ParameterSpec{
			{Name: "name", Type: "string", Description: "One of: " + strings.Join(document.CoreProperties(), ", "), Required: true},
			{Name: "value", Type: "string", Description: "Property value", Required: true},
		},
	}
}

func (h *SetDocumentPropertyHandler) Execute(c *operation.Context, params operation.Parameters) (operation.Result, error) {
	name, err := operation.Get[string](params, "name")
	if err != nil {
		return operation.Result{}, err
	}
	value, err := operation.Get[string](params, "value")
	if err != nil {
		return operation.Result{}, err
	}
	if !isCoreProperty(name) {
		return operation.Result{}, errdefs.Argument(c.Operation, "unknown property %q", name)
	}

	lease, err := c.OpenForWrite()
	if err != nil {
		return operation.Result{}, err
	}
	lease.Document().SetProperty(name, value)
	if err := lease.MarkModified(); err != nil {
		return operation.Result{}, err
	}
	if value == "" {
		return operation.Textf("Cleared %s", name), nil
	}
	return operation.Textf("Set %s", name), nil
}

func paragraphParam(params operation.Parameters) (document.Paragraph, error) {
	text, err := operation.Get[string](params, "text")
	if err != nil {
		return document.Paragraph{}, err
	}
	style, err := operation.GetOptional(params, "style", "")
	if err != nil {
		return document.Paragraph{}, err
	}
	return document.Paragraph{Text: text, Style: style}, nil
}

func isCoreProperty(name string) bool {
	for _, p := range document.CoreProperties() {
		if p == name {
			return true
		}
	}
	return false
}

// rescope reports a document-level error under the running operation's name.
func rescope(c *operation.Context, err error) error {
	if e, ok := err.(*errdefs.Error); ok {
		return errdefs.Wrap(e.Kind, c.Operation, e.Err, "%s", e.Message)
	}
	return err
}

package ops

import (
	"fmt"
	"strings"

	"github.com/harun/docmcp/pkg/document"
	"github.com/harun/docmcp/pkg/errdefs"
	"github.com/harun/docmcp/pkg/operation"
)

// DefaultPageSize is the number of paragraphs per rendered page.
const DefaultPageSize = 20

// GetParagraphsHandler lists paragraphs with their indexes.
type GetParagraphsHandler struct{}

func (h *GetParagraphsHandler) Traits() operation.Traits {
	return operation.Traits{
		Description:   "List the document's paragraphs with their indexes.",
		Access:        operation.AccessRead,
		Output:        operation.OutputText,
		NeedsDocument: true,
		Parameters: []operation.ParameterSpec{
			{Name: "start", Type: "integer", Description: "First paragraph index", Default: 0},
			{Name: "count", Type: "integer", Description: "Maximum paragraphs to return, all when omitted"},
		},
	}
}

func (h *GetParagraphsHandler) Execute(c *operation.Context, params operation.Parameters) (operation.Result, error) {
	start, err := operation.GetOptional(params, "start", 0)
	if err != nil {
		return operation.Result{}, err
	}
	count, err := operation.GetOptional(params, "count", -1)
	if err != nil {
		return operation.Result{}, err
	}
	if start < 0 {
		return operation.Result{}, errdefs.Argument(c.Operation, "start must not be negative")
	}

	lease, err := c.OpenForRead()
	if err != nil {
		return operation.Result{}, err
	}
	paragraphs := lease.Document().Paragraphs()
	if len(paragraphs) == 0 {
		return operation.Textf("Document is empty"), nil
	}
	if start >= len(paragraphs) {
		return operation.Result{}, errdefs.Argument(c.Operation, "start %d is past the last paragraph (%d)", start, len(paragraphs)-1)
	}

	end := len(paragraphs)
	if count >= 0 && start+count < end {
		end = start + count
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		p := paragraphs[i]
		if p.Style != "" {
			fmt.Fprintf(&b, "[%d] (%s) %s\n", i, p.Style, p.Text)
		} else {
			fmt.Fprintf(&b, "[%d] %s\n", i, p.Text)
		}
	}
	return operation.Result{Text: strings.TrimSuffix(b.String(), "\n")}, nil
}

// DocumentInfo is the structured result of get_document_info.
type DocumentInfo struct {
	Path       string            `json:"path,omitempty"`
	Paragraphs int               `json:"paragraphs"`
	Words      int               `json:"words"`
	Characters int               `json:"characters"`
	Bytes      int64             `json:"bytes"`
	Properties map[string]string `json:"properties,omitempty"`
	Session    bool              `json:"session"`
}

// GetDocumentInfoHandler reports document statistics and core properties.
type GetDocumentInfoHandler struct{}

func (h *GetDocumentInfoHandler) Traits() operation.Traits {
	return operation.Traits{
		Description:   "Report paragraph, word and character counts and the core properties.",
		Access:        operation.AccessRead,
		Output:        operation.OutputStructured,
		NeedsDocument: true,
	}
}

func (h *GetDocumentInfoHandler) Execute(c *operation.Context, params operation.Parameters) (operation.Result, error) {
	lease, err := c.OpenForRead()
	if err != nil {
		return operation.Result{}, err
	}
	doc := lease.Document()

	info := DocumentInfo{
		Path:       lease.Path(),
		Paragraphs: doc.ParagraphCount(),
		Words:      doc.WordCount(),
		Characters: len([]rune(doc.Text())),
		Bytes:      doc.Size(),
		Properties: doc.Properties(),
		Session:    c.UseSession,
	}
	if len(info.Properties) == 0 {
		info.Properties = nil
	}
	return operation.Structured(info, fmt.Sprintf("%d paragraphs, %d words", info.Paragraphs, info.Words)), nil
}

// Page is one rendered page.
type Page struct {
	Number     int    `json:"number"`
	First      int    `json:"first"`
	Paragraphs int    `json:"paragraphs"`
	Text       string `json:"text"`
}

// RenderPagesHandler splits the document into fixed-size pages of plain text.
// Rendering checks for cancellation before each page.
type RenderPagesHandler struct{}

func (h *RenderPagesHandler) Traits() operation.Traits {
	return operation.Traits{
		Description:   "Render the document as pages of plain text.",
		Access:        operation.AccessRead,
		Output:        operation.OutputStructured,
		NeedsDocument: true,
		Parameters: []operation.ParameterSpec{
			{Name: "pageSize", Type: "integer", Description: "Paragraphs per page", Default: DefaultPageSize},
			{Name: "maxPages", Type: "integer", Description: "Stop after this many pages"},
		},
	}
}

func (h *RenderPagesHandler) Execute(c *operation.Context, params operation.Parameters) (operation.Result, error) {
	pageSize, err := operation.GetOptional(params, "pageSize", DefaultPageSize)
	if err != nil {
		return operation.Result{}, err
	}
	if pageSize <= 0 {
		return operation.Result{}, errdefs.Argument(c.Operation, "pageSize must be positive")
	}
	maxPages, err := operation.GetOptional(params, "maxPages", 0)
	if err != nil {
		return operation.Result{}, err
	}

	lease, err := c.OpenForRead()
	if err != nil {
		return operation.Result{}, err
	}
	paragraphs := lease.Document().Paragraphs()

	var pages []Page
	for first := 0; first < len(paragraphs); first += pageSize {
		if err := c.Err(); err != nil {
			return operation.Result{}, errdefs.Wrap(errdefs.KindCanceled, c.Operation, err, "rendering canceled after %d pages", len(pages))
		}
		if maxPages > 0 && len(pages) >= maxPages {
			break
		}
		end := first + pageSize
		if end > len(paragraphs) {
			end = len(paragraphs)
		}
		pages = append(pages, renderPage(len(pages)+1, first, paragraphs[first:end]))
	}

	return operation.Structured(pages, fmt.Sprintf("Rendered %d pages", len(pages))), nil
}

func renderPage(number, first int, paragraphs []document.Paragraph) Page {
	lines := make([]string, len(paragraphs))
	for i, p := range paragraphs {
		lines[i] = p.Text
	}
	return Page{
		Number:     number,
		First:      first,
		Paragraphs: len(paragraphs),
		Text:       strings.Join(lines, "\n"),
	}
}

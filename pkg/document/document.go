package document

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/harun/docmcp/pkg/errdefs"
)

// paragraphOverhead approximates the per-paragraph bookkeeping cost in bytes.
const paragraphOverhead = 48

// Paragraph is a single block of text with an optional style name.
type Paragraph struct {
	Text  string `json:"text"`
	Style string `json:"style,omitempty"`
}

// Document is the in-memory object graph of an open document.
// It is not safe for concurrent use; callers serialize access through session handles.
type Document struct {
	paragraphs []Paragraph
	properties map[string]string
}

// New creates a document holding the given paragraph texts.
func New(texts ...string) *Document {
	doc := &Document{properties: make(map[string]string)}
	for _, text := range texts {
		doc.paragraphs = append(doc.paragraphs, Paragraph{Text: text})
	}
	return doc
}

// ParagraphCount returns the number of paragraphs.
func (d *Document) ParagraphCount() int {
	return len(d.paragraphs)
}

// Paragraphs returns a copy of all paragraphs in order.
func (d *Document) Paragraphs() []Paragraph {
	out := make([]Paragraph, len(d.paragraphs))
	copy(out, d.paragraphs)
	return out
}

// Paragraph returns the paragraph at index.
func (d *Document) Paragraph(index int) (Paragraph, error) {
	if err := d.checkIndex(index, len(d.paragraphs)-1); err != nil {
		return Paragraph{}, err
	}
	return d.paragraphs[index], nil
}

// AppendParagraph adds a paragraph at the end of the document.
func (d *Document) AppendParagraph(p Paragraph) {
	d.paragraphs = append(d.paragraphs, p)
}

// InsertParagraph inserts p before index. index == ParagraphCount appends.
func (d *Document) InsertParagraph(index int, p Paragraph) error {
	if err := d.checkIndex(index, len(d.paragraphs)); err != nil {
		return err
	}
	d.paragraphs = append(d.paragraphs, Paragraph{})
	copy(d.paragraphs[index+1:], d.paragraphs[index:])
	d.paragraphs[index] = p
	return nil
}

// DeleteParagraph removes the paragraph at index.
func (d *Document) DeleteParagraph(index int) error {
	if err := d.checkIndex(index, len(d.paragraphs)-1); err != nil {
		return err
	}
	d.paragraphs = append(d.paragraphs[:index], d.paragraphs[index+1:]...)
	return nil
}

// ReplaceText replaces every occurrence of old with replacement and returns the count.
func (d *Document) ReplaceText(old, replacement string, matchCase bool) int {
	if old == "" {
		return 0
	}
	total := 0
	for i, p := range d.paragraphs {
		var n int
		var text string
		if matchCase {
			n = strings.Count(p.Text, old)
			text = strings.ReplaceAll(p.Text, old, replacement)
		} else {
			text, n = replaceFold(p.Text, old, replacement)
		}
		if n > 0 {
			d.paragraphs[i].Text = text
			total += n
		}
	}
	return total
}

// Property returns a core property such as "title" or "creator".
func (d *Document) Property(name string) (string, bool) {
	v, ok := d.properties[name]
	return v, ok
}

// SetProperty sets a core property. An empty value removes it.
func (d *Document) SetProperty(name, value string) {
	if d.properties == nil {
		d.properties = make(map[string]string)
	}
	if value == "" {
		delete(d.properties, name)
		return
	}
	d.properties[name] = value
}

// Properties returns a copy of all core properties.
func (d *Document) Properties() map[string]string {
	out := make(map[string]string, len(d.properties))
	for k, v := range d.properties {
		out[k] = v
	}
	return out
}

// PropertyNames returns the property names in sorted order.
func (d *Document) PropertyNames() []string {
	names := make([]string, 0, len(d.properties))
	for k := range d.properties {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Text returns the document text with one paragraph per line.
func (d *Document) Text() string {
	texts := make([]string, len(d.paragraphs))
	for i, p := range d.paragraphs {
		texts[i] = p.Text
	}
	return strings.Join(texts, "\n")
}

// WordCount returns the number of whitespace-separated words.
func (d *Document) WordCount() int {
	n := 0
	for _, p := range d.paragraphs {
		n += len(strings.Fields(p.Text))
	}
	return n
}

// Clone returns a deep copy that shares no state with d.
func (d *Document) Clone() *Document {
	return &Document{
		paragraphs: d.Paragraphs(),
		properties: d.Properties(),
	}
}

// Size estimates the in-memory footprint in bytes.
func (d *Document) Size() int64 {
	var n int64
	for _, p := range d.paragraphs {
		n += int64(len(p.Text) + len(p.Style) + paragraphOverhead)
	}
	for k, v := range d.properties {
		n += int64(len(k) + len(v))
	}
	return n
}

func (d *Document) checkIndex(index, max int) error {
	if index < 0 || index > max {
		return errdefs.Argument("document", "paragraph index %d out of range [0, %d]", index, max)
	}
	return nil
}

// replaceFold replaces every case-insensitive occurrence of old. Matching is
// done over runes, so case pairs of different byte lengths still match.
func replaceFold(s, old, replacement string) (string, int) {
	src := []rune(s)
	n := utf8.RuneCountInString(old)

	var b strings.Builder
	count := 0
	for i := 0; i < len(src); {
		if i+n <= len(src) && strings.EqualFold(string(src[i:i+n]), old) {
			b.WriteString(replacement)
			i += n
			count++
			continue
		}
		b.WriteRune(src[i])
		i++
	}
	if count == 0 {
		return s, 0
	}
	return b.String(), count
}

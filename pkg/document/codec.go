package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/harun/docmcp/pkg/errdefs"
)

// Codec converts between stored bytes and the in-memory document.
type Codec interface {
	Decode(data []byte) (*Document, error)
	Encode(doc *Document) ([]byte, error)
}

// CodecFor selects a codec from the file extension.
func CodecFor(path string) (Codec, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".docx":
		return DocxCodec{}, nil
	case ".txt", ".md", ".text":
		return TextCodec{}, nil
	default:
		return nil, errdefs.Argument("document", "unsupported document format %q", filepath.Ext(path))
	}
}

// TextCodec stores one paragraph per line. Properties are not persisted.
type TextCodec struct{}

func (TextCodec) Decode(data []byte) (*Document, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return New(), nil
	}
	return New(strings.Split(text, "\n")...), nil
}

func (TextCodec) Encode(doc *Document) ([]byte, error) {
	if doc.ParagraphCount() == 0 {
		return []byte{}, nil
	}
	return []byte(doc.Text() + "\n"), nil
}

const (
	wordNamespace = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	documentPart  = "word/document.xml"
	corePart      = "docProps/core.xml"
)

// coreProperties maps docProps/core.xml element names to property names.
var coreProperties = map[string]string{
	"title":          "title",
	"subject":        "subject",
	"creator":        "creator",
	"keywords":       "keywords",
	"description":    "description",
	"lastModifiedBy": "lastModifiedBy",
	"category":       "category",
}

// CoreProperties returns the property names the docx codec persists, sorted.
func CoreProperties() []string {
	names := make([]string, 0, len(coreProperties))
	for _, name := range coreProperties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DocxCodec reads and writes the paragraph layer of WordprocessingML packages.
type DocxCodec struct{}

func (DocxCodec) Decode(data []byte) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open docx package: %w", err)
	}

	doc := New()
	found := false
	for _, f := range zr.File {
		switch f.Name {
		case documentPart:
			found = true
			if err := readPart(f, func(r io.Reader) error { return decodeBody(r, doc) }); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", documentPart, err)
			}
		case corePart:
			if err := readPart(f, func(r io.Reader) error { return decodeCore(r, doc) }); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", corePart, err)
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("docx package has no %s", documentPart)
	}
	return doc, nil
}

func (DocxCodec) Encode(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	parts := []struct {
		name string
		body []byte
	}{
		{"[Content_Types].xml", []byte(contentTypesXML)},
		{"_rels/.rels", []byte(relsXML)},
		{documentPart, encodeBody(doc)},
		{corePart, encodeCore(doc)},
	}
	for _, part := range parts {
		w, err := zw.Create(part.name)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", part.name, err)
		}
		if _, err := w.Write(part.body); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", part.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish docx package: %w", err)
	}
	return buf.Bytes(), nil
}

func readPart(f *zip.File, fn func(io.Reader) error) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return fn(rc)
}

func decodeBody(r io.Reader, doc *Document) error {
	dec := xml.NewDecoder(r)
	var current *Paragraph
	inText := false
	var text strings.Builder

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordNamespace {
				continue
			}
			switch t.Name.Local {
			case "p":
				current = &Paragraph{}
				text.Reset()
			case "pStyle":
				if current != nil {
					current.Style = attr(t, "val")
				}
			case "t":
				inText = current != nil
			case "tab":
				if current != nil {
					text.WriteByte('\t')
				}
			case "br":
				if current != nil {
					text.WriteByte('\n')
				}
			}
		case xml.CharData:
			if inText {
				text.Write(t)
			}
		case xml.EndElement:
			if t.Name.Space != wordNamespace {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if current != nil {
					current.Text = text.String()
					doc.AppendParagraph(*current)
					current = nil
				}
			}
		}
	}
}

func decodeCore(r io.Reader, doc *Document) error {
	dec := xml.NewDecoder(r)
	var property string
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			property = coreProperties[t.Name.Local]
		case xml.CharData:
			if property != "" {
				doc.SetProperty(property, strings.TrimSpace(string(t)))
			}
		case xml.EndElement:
			property = ""
		}
	}
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func encodeBody(doc *Document) []byte {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString(`<w:document xmlns:w="` + wordNamespace + `"><w:body>`)
	for _, p := range doc.paragraphs {
		b.WriteString("<w:p>")
		if p.Style != "" {
			b.WriteString(`<w:pPr><w:pStyle w:val="`)
			xml.EscapeText(&b, []byte(p.Style))
			b.WriteString(`"/></w:pPr>`)
		}
		if p.Text != "" {
			b.WriteString(`<w:r><w:t xml:space="preserve">`)
			xml.EscapeText(&b, []byte(p.Text))
			b.WriteString("</w:t></w:r>")
		}
		b.WriteString("</w:p>")
	}
	b.WriteString("</w:body></w:document>")
	return b.Bytes()
}

func encodeCore(doc *Document) []byte {
	elements := make([]string, 0, len(coreProperties))
	for el := range coreProperties {
		elements = append(elements, el)
	}
	sort.Strings(elements)

	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString(`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/">`)
	for _, el := range elements {
		value, ok := doc.Property(coreProperties[el])
		if !ok {
			continue
		}
		prefix := "dc:"
		if el == "keywords" || el == "lastModifiedBy" || el == "category" {
			prefix = "cp:"
		}
		b.WriteString("<" + prefix + el + ">")
		xml.EscapeText(&b, []byte(value))
		b.WriteString("</" + prefix + el + ">")
	}
	b.WriteString("</cp:coreProperties>")
	return b.Bytes()
}

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
	`<Default Extension="xml" ContentType="application/xml"/>` +
	`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
	`<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>` +
	`</Types>`

const relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
	`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/>` +
	`</Relationships>`

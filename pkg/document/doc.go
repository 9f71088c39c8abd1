// Package document holds the in-memory paragraph model and its storage.
//
// Invariants:
// - Paths are canonicalized against the storage root; paths escaping it are rejected.
// - Saves are atomic (temp file then rename) and marked as recent writes.
// - Codecs are chosen by file extension (.docx, .txt, .md).
//
// Usage:
//
//	store, _ := document.NewOsStorage("/srv/documents")
//	doc, _ := store.Open("a.docx")
//	doc.AppendParagraph(document.Paragraph{Text: "Hello"})
//	_ = store.Save(doc, "a.docx")
package document

package ops

import "github.com/harun/docmcp/pkg/operation"

// Catalog returns the compile-time set of built-in operations.
func Catalog() operation.Source {
	return operation.Source{
		func() operation.Handler { return &GetParagraphsHandler{} },
		func() operation.Handler { return &GetDocumentInfoHandler{} },
		func() operation.Handler { return &RenderPagesHandler{} },
		func() operation.Handler { return &AddParagraphHandler{} },
		func() operation.Handler { return &InsertParagraphHandler{} },
		func() operation.Handler { return &DeleteParagraphHandler{} },
		func() operation.Handler { return &ReplaceTextHandler{} },
		func() operation.Handler { return &SetDocumentPropertyHandler{} },
		func() operation.Handler { return &SaveDocumentHandler{} },
		func() operation.Handler { return &CloseDocumentHandler{} },
		func() operation.Handler { return &CloseSessionHandler{} },
		func() operation.Handler { return &ListSessionsHandler{} },
	}
}

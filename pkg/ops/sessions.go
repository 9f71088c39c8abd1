package ops

import (
	"fmt"

	"github.com/harun/docmcp/pkg/errdefs"
	"github.com/harun/docmcp/pkg/operation"
	"github.com/harun/docmcp/pkg/session"
)

// SaveDocumentHandler commits the document. In session mode the cached copy
// stays open and clean; in stateless mode the file is re-saved.
type SaveDocumentHandler struct{}

func (h *SaveDocumentHandler) Traits() operation.Traits {
	return operation.Traits{
		Description:   "Save the document to outputPath, or back to path.",
		Access:        operation.AccessWrite,
		NeedsDocument: true,
	}
}

func (h *SaveDocumentHandler) Execute(c *operation.Context, params operation.Parameters) (operation.Result, error) {
	lease, err := c.OpenForWrite()
	if err != nil {
		return operation.Result{}, err
	}
	saved, err := lease.Save(c.OutputPath)
	if err != nil {
		return operation.Result{}, err
	}
	return operation.Textf("Saved to %s", saved), nil
}

// CloseDocumentHandler evicts one cached document, discarding uncommitted edits.
type CloseDocumentHandler struct{}

func (h *CloseDocumentHandler) Traits() operation.Traits {
	return operation.Traits{
		Description:   "Close the caller's cached copy of a document. Uncommitted edits are discarded.",
		Access:        operation.AccessNone,
		NeedsDocument: true,
	}
}

func (h *CloseDocumentHandler) Execute(c *operation.Context, params operation.Parameters) (operation.Result, error) {
	if c.Sessions == nil {
		return operation.Result{}, errdefs.State(c.Operation, "sessions are disabled")
	}
	closed, err := c.Sessions.Evict(c, c.CurrentIdentity(), c.SourcePath)
	if err != nil {
		return operation.Result{}, err
	}
	if !closed {
		return operation.Textf("%s was not open", c.SourcePath), nil
	}
	return operation.Textf("Closed %s", c.SourcePath), nil
}

// CloseSessionHandler evicts every document of the calling session.
type CloseSessionHandler struct{}

func (h *CloseSessionHandler) Traits() operation.Traits {
	return operation.Traits{
		Description: "Close every document the caller has open. Uncommitted edits are discarded.",
		Access:      operation.AccessNone,
	}
}

func (h *CloseSessionHandler) Execute(c *operation.Context, params operation.Parameters) (operation.Result, error) {
	if c.Sessions == nil {
		return operation.Result{}, errdefs.State(c.Operation, "sessions are disabled")
	}
	n, err := c.Sessions.EvictAll(c, c.CurrentIdentity())
	if err != nil {
		return operation.Result{}, err
	}
	return operation.Textf("Closed %d documents", n), nil
}

// ListSessionsHandler reports cached sessions. Without the all flag only the
// caller's own session is listed.
type ListSessionsHandler struct{}

func (h *ListSessionsHandler) Traits() operation.Traits {
	return operation.Traits{
		Description: "List cached sessions and their open documents.",
		Access:      operation.AccessNone,
		Output:      operation.OutputStructured,
		Parameters: []operation.ParameterSpec{
			{Name: "all", Type: "boolean", Description: "Include other callers' sessions", Default: false},
		},
	}
}

func (h *ListSessionsHandler) Execute(c *operation.Context, params operation.Parameters) (operation.Result, error) {
	all, err := operation.GetOptional(params, "all", false)
	if err != nil {
		return operation.Result{}, err
	}
	if c.Sessions == nil {
		return operation.Structured([]session.SessionInfo{}, "Sessions are disabled"), nil
	}

	caller := c.CurrentIdentity()
	sessions := []session.SessionInfo{}
	for _, s := range c.Sessions.Sessions() {
		if all || s.Identity == caller {
			sessions = append(sessions, s)
		}
	}
	return operation.Structured(sessions, fmt.Sprintf("%d sessions", len(sessions))), nil
}

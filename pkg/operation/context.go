package operation

import (
	"context"
	"path/filepath"

	"github.com/harun/docmcp/pkg/document"
	"github.com/harun/docmcp/pkg/errdefs"
	"github.com/harun/docmcp/pkg/identity"
	"github.com/harun/docmcp/pkg/session"
)

// Context carries everything one call needs. It is created per call and never reused.
// It embeds the call's context.Context so handlers can check cancellation directly.
type Context struct {
	context.Context

	// Operation is the resolved operation name.
	Operation string
	// Document is an optional preloaded document for stateless calls.
	Document *document.Document
	// Sessions is nil when the process runs without a session cache.
	Sessions *session.Manager
	Identity identity.Accessor
	Storage  *document.Storage

	SourcePath string
	OutputPath string
	UseSession bool

	access   Access
	rollback bool
	leases   []*Lease
}

// Lease is a document opened for the duration of one call.
type Lease struct {
	c        *Context
	path     string
	write    bool
	doc      *document.Document
	session  *session.Lease
	modified bool
	saved    string

	snapshot      *document.Document
	snapshotDirty bool
}

// Path returns the canonical document path.
func (l *Lease) Path() string { return l.path }

// Document returns the leased document.
func (l *Lease) Document() *document.Document {
	if l.session != nil {
		return l.session.Document()
	}
	return l.doc
}

// MarkModified records that the handler changed the document.
func (l *Lease) MarkModified() error {
	if !l.write {
		return errdefs.State(l.c.Operation, "document %q was opened read-only", l.path)
	}
	l.modified = true
	l.saved = ""
	if l.session != nil {
		return l.session.MarkDirty()
	}
	return nil
}

// Modified reports whether the handler changed the document during this call.
func (l *Lease) Modified() bool { return l.modified }

// Save persists the document to outputPath, or to its source when empty.
// In session mode this is a commit and the handle stays cached.
func (l *Lease) Save(outputPath string) (string, error) {
	if outputPath == "" {
		outputPath = l.path
	}
	target, err := l.c.Storage.Canonical(outputPath)
	if err != nil {
		return "", err
	}
	if l.session != nil {
		err = l.session.Commit(l.c, target)
	} else {
		err = l.c.Storage.Save(l.doc, target)
	}
	if err != nil {
		return "", err
	}
	l.saved = target
	return target, nil
}

// Saved returns where the document was last saved during this call.
func (l *Lease) Saved() string { return l.saved }

// CurrentIdentity returns the caller identity for session lookups.
func (c *Context) CurrentIdentity() string {
	if c.Identity == nil {
		return identity.Anonymous
	}
	return c.Identity.CurrentIdentity(c)
}

// OpenForRead opens the source document under a shared lock in session mode.
func (c *Context) OpenForRead() (*Lease, error) {
	return c.Open(c.SourcePath, false)
}

// OpenForWrite opens the source document under an exclusive lock in session mode.
func (c *Context) OpenForWrite() (*Lease, error) {
	return c.Open(c.SourcePath, true)
}

// Open leases the document at path. Opening the same path twice in one call
// returns the same lease; a read lease cannot be upgraded.
func (c *Context) Open(path string, write bool) (*Lease, error) {
	if write && c.access == AccessRead {
		return nil, errdefs.State(c.Operation, "operation is declared read-only")
	}
	if path == "" {
		if c.Document == nil {
			return nil, errdefs.MissingParameter(c.Operation, ParamPath)
		}
		return c.openPreloaded(write), nil
	}

	canonical, err := c.Storage.Canonical(path)
	if err != nil {
		return nil, err
	}

	for _, l := range c.leases {
		if l.path != canonical {
			continue
		}
		if write && !l.write {
			return nil, errdefs.State(c.Operation, "document %q is already open read-only in this call", path)
		}
		return l, nil
	}

	if err := c.Err(); err != nil {
		return nil, errdefs.Wrap(errdefs.KindCanceled, c.Operation, err, "call canceled before opening %q", path)
	}

	l := &Lease{c: c, path: canonical, write: write}
	switch {
	case c.UseSession && c.Sessions != nil:
		mode := session.ModeRead
		if write {
			mode = session.ModeWrite
		}
		sl, err := c.Sessions.Acquire(c, c.CurrentIdentity(), canonical, mode)
		if err != nil {
			return nil, err
		}
		l.session = sl
		if write && c.rollback {
			l.snapshot = sl.Document().Clone()
			l.snapshotDirty = sl.Handle().Dirty()
		}
	case c.Document != nil && c.SourcePath != "" && samePath(c, canonical, c.SourcePath):
		l.doc = c.Document
	default:
		doc, err := c.Storage.Open(canonical)
		if err != nil {
			return nil, err
		}
		l.doc = doc
	}

	c.leases = append(c.leases, l)
	return l, nil
}

func (c *Context) openPreloaded(write bool) *Lease {
	for _, l := range c.leases {
		if l.path == "" {
			return l
		}
	}
	l := &Lease{c: c, write: write, doc: c.Document}
	c.leases = append(c.leases, l)
	return l
}

// Leases returns the documents opened so far in this call.
func (c *Context) Leases() []*Lease {
	return append([]*Lease(nil), c.leases...)
}

// rollbackLeases restores snapshots taken when write leases were opened.
func (c *Context) rollbackLeases() int {
	restored := 0
	for _, l := range c.leases {
		if l.session == nil || l.snapshot == nil || l.saved != "" {
			continue
		}
		if err := l.session.Restore(l.snapshot, l.snapshotDirty); err == nil {
			l.modified = false
			restored++
		}
	}
	return restored
}

// releaseLeases unlocks every session lease. Safe to call more than once.
func (c *Context) releaseLeases() {
	for _, l := range c.leases {
		if l.session != nil {
			l.session.Release()
		}
	}
}

func samePath(c *Context, canonical, other string) bool {
	o, err := c.Storage.Canonical(other)
	return err == nil && filepath.Clean(o) == canonical
}

func (c *Context) isSource(l *Lease) bool {
	if l.path == "" {
		return true
	}
	return c.SourcePath != "" && samePath(c, l.path, c.SourcePath)
}

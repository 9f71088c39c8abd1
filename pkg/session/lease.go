package session

import (
	"context"
	"sync"

	"github.com/harun/docmcp/pkg/document"
	"github.com/harun/docmcp/pkg/errdefs"
)

// Lease is a locked view of a cached handle. Release must be called on every path.
type Lease struct {
	manager *Manager
	handle  *Handle
	mode    Mode
	release func()
	once    sync.Once
}

// Handle returns the leased handle.
func (l *Lease) Handle() *Handle { return l.handle }

// Mode returns the lock mode the lease holds.
func (l *Lease) Mode() Mode { return l.mode }

// Document returns the cached document. Read leases must not mutate it.
func (l *Lease) Document() *document.Document {
	return l.handle.document()
}

// MarkDirty records an in-memory edit. Only write leases may mark.
func (l *Lease) MarkDirty() error {
	if l.mode != ModeWrite {
		return errdefs.State("lease", "cannot modify %q under a read lock", l.handle.path)
	}
	l.handle.mu.Lock()
	l.handle.dirty = true
	l.handle.mu.Unlock()
	return nil
}

// Restore replaces the document and dirty flag. Used to roll back a failed edit.
func (l *Lease) Restore(doc *document.Document, dirty bool) error {
	if l.mode != ModeWrite {
		return errdefs.State("lease", "cannot restore %q under a read lock", l.handle.path)
	}
	l.handle.mu.Lock()
	defer l.handle.mu.Unlock()
	if l.handle.evicted {
		return errdefs.Wrap(errdefs.KindState, "lease", errdefs.ErrEvicted, "document %q is no longer open", l.handle.path)
	}
	l.handle.doc = doc
	l.handle.dirty = dirty
	return nil
}

// Commit persists the document while the lease is held.
func (l *Lease) Commit(ctx context.Context, outputPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return l.manager.commitLocked(ctx, l.handle, outputPath)
}

// Release unlocks the handle. Safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.release()
		l.manager.updateMetrics()
	})
}

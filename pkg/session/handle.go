package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/harun/docmcp/internal/observability"
	"github.com/harun/docmcp/pkg/document"
	"github.com/harun/docmcp/pkg/errdefs"
	"golang.org/x/sync/semaphore"
)

// maxReaders bounds concurrent shared holders. A writer acquires all of it.
const maxReaders = 1 << 16

// Mode selects shared or exclusive locking.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

func (m Mode) String() string {
	if m == ModeWrite {
		return "write"
	}
	return "read"
}

func (m Mode) weight() int64 {
	if m == ModeWrite {
		return maxReaders
	}
	return 1
}

// Handle is one cached document for one session.
type Handle struct {
	identity string
	path     string
	sem      *semaphore.Weighted

	mu         sync.Mutex
	doc        *document.Document
	size       int64
	dirty      bool
	stale      bool
	evicted    bool
	holders    int
	lastAccess time.Time
}

func newHandle(identity, path string, doc *document.Document) *Handle {
	return &Handle{
		identity:   identity,
		path:       path,
		sem:        semaphore.NewWeighted(maxReaders),
		doc:        doc,
		size:       doc.Size(),
		lastAccess: time.Now(),
	}
}

// Identity returns the owning session identity.
func (h *Handle) Identity() string { return h.identity }

// Path returns the canonical source path.
func (h *Handle) Path() string { return h.path }

// Dirty reports uncommitted in-memory edits.
func (h *Handle) Dirty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dirty
}

// Stale reports that the file changed on disk while the handle held edits.
func (h *Handle) Stale() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stale
}

// Evicted reports whether the handle reached its terminal state.
func (h *Handle) Evicted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.evicted
}

// LastAccess returns the last time a lock on the handle was released or taken.
func (h *Handle) LastAccess() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastAccess
}

func (h *Handle) document() *document.Document {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.doc
}

// lock waits up to timeout for the handle lock. The returned func releases it.
func (h *Handle) lock(ctx context.Context, mode Mode, timeout time.Duration) (func(), error) {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	if err := h.sem.Acquire(waitCtx, mode.weight()); err != nil {
		observability.RecordLockWait(mode.String(), time.Since(start), false)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errdefs.Wrap(errdefs.KindCanceled, "lock", ctxErr, "canceled while waiting for %s lock on %q", mode, h.path)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errdefs.Concurrency("lock", "timed out after %s waiting for %s lock on %q", timeout, mode, h.path)
		}
		return nil, errdefs.Internal("lock", err)
	}
	observability.RecordLockWait(mode.String(), time.Since(start), true)

	h.enter()
	var once sync.Once
	return func() {
		once.Do(func() {
			h.leave()
			h.sem.Release(mode.weight())
		})
	}, nil
}

// tryLockExclusive takes the exclusive lock only if nobody holds or waits for it.
func (h *Handle) tryLockExclusive() (func(), bool) {
	if !h.sem.TryAcquire(maxReaders) {
		return nil, false
	}
	h.enter()
	return func() {
		h.leave()
		h.sem.Release(maxReaders)
	}, true
}

func (h *Handle) enter() {
	h.mu.Lock()
	h.holders++
	h.lastAccess = time.Now()
	h.mu.Unlock()
}

func (h *Handle) leave() {
	h.mu.Lock()
	h.holders--
	h.lastAccess = time.Now()
	if h.doc != nil {
		h.size = h.doc.Size()
	}
	h.mu.Unlock()
}

// idleSince reports whether nobody holds the handle and it was last used before cutoff.
func (h *Handle) idleSince(cutoff time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.holders == 0 && h.lastAccess.Before(cutoff)
}

func (h *Handle) evict() (dirty bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	dirty = h.dirty
	h.evicted = true
	h.doc = nil
	h.size = 0
	return dirty
}

func (h *Handle) snapshot() DocumentInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return DocumentInfo{
		Path:       h.path,
		Dirty:      h.dirty,
		Stale:      h.stale,
		Bytes:      h.size,
		LastAccess: h.lastAccess,
	}
}

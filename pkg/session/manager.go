package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harun/docmcp/internal/observability"
	"github.com/harun/docmcp/internal/tracing"
	"github.com/harun/docmcp/pkg/document"
	"github.com/harun/docmcp/pkg/errdefs"
	"github.com/harun/docmcp/pkg/identity"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultLockTimeout = 10 * time.Second

	// acquireAttempts bounds retries when a handle is evicted between lookup and lock.
	acquireAttempts = 3
)

// Options tune locking and the cache budget. Zero budgets mean unbounded.
type Options struct {
	LockTimeout  time.Duration
	MaxDocuments int
	MaxBytes     int64
}

// DocumentInfo describes one cached handle.
type DocumentInfo struct {
	Path       string    `json:"path"`
	Dirty      bool      `json:"dirty"`
	Stale      bool      `json:"stale,omitempty"`
	Bytes      int64     `json:"bytes"`
	LastAccess time.Time `json:"lastAccess"`
}

// SessionInfo describes one caller session.
type SessionInfo struct {
	Identity   string         `json:"identity"`
	LastAccess time.Time      `json:"lastAccess"`
	Documents  []DocumentInfo `json:"documents"`
}

type session struct {
	identity   string
	docs       map[string]*Handle
	lastAccess time.Time
}

// Manager owns every session's cached document handles.
type Manager struct {
	storage *document.Storage
	opts    Options
	opens   singleflight.Group

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

// NewManager creates a manager that loads and commits through storage.
func NewManager(storage *document.Storage, opts Options) *Manager {
	observability.EnsureRegistered()

	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}

	log.Info().
		Str("root", storage.Root()).
		Dur("lock_timeout", opts.LockTimeout).
		Int("max_documents", opts.MaxDocuments).
		Int64("max_bytes", opts.MaxBytes).
		Msg("Session manager initialized")

	return &Manager{
		storage:  storage,
		opts:     opts,
		sessions: make(map[string]*session),
	}
}

// Storage returns the storage documents are loaded from.
func (m *Manager) Storage() *document.Storage {
	return m.storage
}

// LockTimeout returns the bounded wait applied to every lock request.
func (m *Manager) LockTimeout() time.Duration {
	return m.opts.LockTimeout
}

// GetOrOpen returns the cached handle for (id, path), loading it on first use.
// Repeated calls return the same instance until it is evicted.
func (m *Manager) GetOrOpen(ctx context.Context, id, path string) (*Handle, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	id = normalizeIdentity(id)
	canonical, err := m.storage.Canonical(path)
	if err != nil {
		return nil, err
	}

	if h := m.lookup(id, canonical); h != nil {
		return h, nil
	}

	v, err, _ := m.opens.Do(id+"\x00"+canonical, func() (interface{}, error) {
		if h := m.lookup(id, canonical); h != nil {
			return h, nil
		}
		return m.open(ctx, id, canonical)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

func (m *Manager) open(ctx context.Context, id, canonical string) (*Handle, error) {
	ctx, span := tracing.StartSpan(
		tracing.NewContext(ctx, tracing.Fields{SessionKey: id, Path: canonical}),
		"docmcp.session",
		"session.open",
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	doc, err := m.storage.Open(canonical)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	h := newHandle(id, canonical, doc)
	if err := m.admit(h); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	logger.Info().
		Str("path", canonical).
		Int("paragraphs", doc.ParagraphCount()).
		Msg("Document opened in session")
	return h, nil
}

// admit inserts h into its session, evicting clean idle handles to stay within budget.
func (m *Manager) admit(h *Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errdefs.State("open", "session manager is closed")
	}

	count, bytes := m.usageLocked()
	for m.overBudget(count+1, bytes+h.size) {
		victim, release := m.lruVictimLocked()
		if victim == nil {
			return errdefs.Wrap(errdefs.KindState, "open", errdefs.ErrBudgetExceeded,
				"cannot open %q: %d documents (%d bytes) cached and none can be released", h.path, count, bytes)
		}
		freed := victim.snapshot().Bytes
		m.evictLocked(victim, "budget")
		release()
		count--
		bytes -= freed
	}

	s, ok := m.sessions[h.identity]
	if !ok {
		s = &session{identity: h.identity, docs: make(map[string]*Handle)}
		m.sessions[h.identity] = s
	}
	s.docs[h.path] = h
	s.lastAccess = time.Now()
	m.updateMetricsLocked()
	return nil
}

func (m *Manager) overBudget(count int, bytes int64) bool {
	if m.opts.MaxDocuments > 0 && count > m.opts.MaxDocuments {
		return true
	}
	return m.opts.MaxBytes > 0 && bytes > m.opts.MaxBytes
}

func (m *Manager) usageLocked() (int, int64) {
	count := 0
	var bytes int64
	for _, s := range m.sessions {
		for _, h := range s.docs {
			count++
			bytes += h.snapshot().Bytes
		}
	}
	return count, bytes
}

// lruVictimLocked returns the least recently used handle that is clean and
// unlocked, with its exclusive lock held until the caller releases it.
func (m *Manager) lruVictimLocked() (*Handle, func()) {
	var candidates []*Handle
	for _, s := range m.sessions {
		for _, h := range s.docs {
			if !h.Dirty() {
				candidates = append(candidates, h)
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LastAccess().Before(candidates[j].LastAccess())
	})
	for _, h := range candidates {
		release, ok := h.tryLockExclusive()
		if !ok {
			continue
		}
		if h.Dirty() {
			release()
			continue
		}
		return h, release
	}
	return nil, nil
}

// Acquire returns a lease on the cached handle for (id, path) locked in mode.
func (m *Manager) Acquire(ctx context.Context, id, path string, mode Mode) (*Lease, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	for attempt := 0; attempt < acquireAttempts; attempt++ {
		h, err := m.GetOrOpen(ctx, id, path)
		if err != nil {
			return nil, err
		}
		release, err := h.lock(ctx, mode, m.opts.LockTimeout)
		if err != nil {
			return nil, err
		}
		if h.Evicted() {
			release()
			continue
		}
		m.touch(h.identity)
		return &Lease{manager: m, handle: h, mode: mode, release: release}, nil
	}
	return nil, errdefs.Wrap(errdefs.KindConcurrency, "acquire", errdefs.ErrEvicted,
		"document %q was evicted repeatedly while waiting for its lock", path)
}

// Commit persists h to outputPath and clears its dirty flag. The handle stays cached.
func (m *Manager) Commit(ctx context.Context, h *Handle, outputPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	release, err := h.lock(ctx, ModeRead, m.opts.LockTimeout)
	if err != nil {
		return err
	}
	defer release()
	return m.commitLocked(ctx, h, outputPath)
}

func (m *Manager) commitLocked(ctx context.Context, h *Handle, outputPath string) error {
	ctx, span := tracing.StartSpan(
		tracing.NewContext(ctx, tracing.Fields{SessionKey: h.identity, Path: h.path}),
		"docmcp.session",
		"session.commit",
		attribute.String("output_path", outputPath),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	doc := h.document()
	if doc == nil {
		err := errdefs.Wrap(errdefs.KindState, "commit", errdefs.ErrEvicted, "document %q is no longer open", h.path)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if outputPath == "" {
		outputPath = h.path
	}
	target, err := m.storage.Canonical(outputPath)
	if err != nil {
		return err
	}
	if err := m.storage.Save(doc, target); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	h.mu.Lock()
	h.dirty = false
	if target == h.path {
		h.stale = false
	}
	h.mu.Unlock()

	observability.RecordCommit()
	observability.RecordDocumentAudit(ctx, "commit", h.identity, target)
	logger.Info().
		Str("path", h.path).
		Str("output_path", target).
		Msg("Document committed")
	return nil
}

// Evict removes the handle for (id, path) once no operation holds it.
// It reports whether a handle was cached.
func (m *Manager) Evict(ctx context.Context, id, path string) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	id = normalizeIdentity(id)
	canonical, err := m.storage.Canonical(path)
	if err != nil {
		return false, err
	}
	h := m.lookup(id, canonical)
	if h == nil {
		return false, nil
	}
	return true, m.evictHandle(ctx, h, "close")
}

// EvictAll removes every handle of the session and the session itself.
// It returns the number of handles evicted.
func (m *Manager) EvictAll(ctx context.Context, id string) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	id = normalizeIdentity(id)

	m.mu.Lock()
	s, ok := m.sessions[id]
	var handles []*Handle
	if ok {
		for _, h := range s.docs {
			handles = append(handles, h)
		}
	}
	m.mu.Unlock()

	evicted := 0
	var errs []error
	for _, h := range handles {
		if err := m.evictHandle(ctx, h, "close"); err != nil {
			errs = append(errs, err)
			continue
		}
		evicted++
	}

	m.mu.Lock()
	if s, ok := m.sessions[id]; ok && len(s.docs) == 0 {
		delete(m.sessions, id)
		m.updateMetricsLocked()
	}
	m.mu.Unlock()

	if len(handles) > 0 {
		log.Info().
			Str("session_key", id).
			Int("evicted", evicted).
			Msg("Session documents evicted")
	}
	return evicted, errors.Join(errs...)
}

func (m *Manager) evictHandle(ctx context.Context, h *Handle, reason string) error {
	ctx, span := tracing.StartSpan(
		ctx,
		"docmcp.session",
		"session.evict",
		attribute.String("session_key", h.identity),
		attribute.String("path", h.path),
		attribute.String("reason", reason),
	)
	defer span.End()

	release, err := h.lock(ctx, ModeWrite, m.opts.LockTimeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer release()

	m.mu.Lock()
	m.evictLocked(h, reason)
	m.mu.Unlock()
	return nil
}

// evictLocked detaches h from its session. Callers hold m.mu and either the
// handle's exclusive lock or proof that nobody holds it.
func (m *Manager) evictLocked(h *Handle, reason string) {
	if s, ok := m.sessions[h.identity]; ok && s.docs[h.path] == h {
		delete(s.docs, h.path)
	}
	if h.Evicted() {
		return
	}
	if dirty := h.evict(); dirty {
		log.Warn().
			Str("session_key", h.identity).
			Str("path", h.path).
			Str("reason", reason).
			Msg("Evicting document with uncommitted edits")
	} else {
		log.Debug().
			Str("session_key", h.identity).
			Str("path", h.path).
			Str("reason", reason).
			Msg("Document evicted")
	}
	observability.RecordEviction(reason)
	m.updateMetricsLocked()
}

// SweepIdle evicts handles unused for longer than ttl and drops empty idle sessions.
// Handles currently locked are skipped and retried on the next sweep.
func (m *Manager) SweepIdle(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, s := range m.sessions {
		for _, h := range s.docs {
			if !h.idleSince(cutoff) {
				continue
			}
			release, ok := h.tryLockExclusive()
			if !ok {
				continue
			}
			m.evictLocked(h, "idle")
			release()
			evicted++
		}
		if len(s.docs) == 0 && s.lastAccess.Before(cutoff) {
			delete(m.sessions, id)
		}
	}
	m.updateMetricsLocked()
	return evicted
}

// ExternalChange reacts to a modification of path made outside this process.
// Clean idle handles are evicted so the next call reloads; handles with
// uncommitted edits are kept and marked stale.
func (m *Manager) ExternalChange(path string) int {
	canonical, err := m.storage.Canonical(path)
	if err != nil {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	affected := 0
	for _, s := range m.sessions {
		h, ok := s.docs[canonical]
		if !ok {
			continue
		}
		affected++
		observability.RecordExternalChange()

		if !h.Dirty() {
			if release, ok := h.tryLockExclusive(); ok {
				m.evictLocked(h, "external")
				release()
				continue
			}
		}
		h.mu.Lock()
		h.stale = true
		h.mu.Unlock()
		log.Warn().
			Str("session_key", h.identity).
			Str("path", canonical).
			Msg("Document changed on disk while cached; keeping in-memory copy")
	}
	return affected
}

// Sessions reports every live session sorted by identity.
func (m *Manager) Sessions() []SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		info := SessionInfo{Identity: s.identity, LastAccess: s.lastAccess}
		for _, h := range s.docs {
			info.Documents = append(info.Documents, h.snapshot())
		}
		sort.Slice(info.Documents, func(i, j int) bool {
			return info.Documents[i].Path < info.Documents[j].Path
		})
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Lookup returns the cached handle for (id, path) without opening it.
func (m *Manager) Lookup(id, path string) (*Handle, bool) {
	canonical, err := m.storage.Canonical(path)
	if err != nil {
		return nil, false
	}
	h := m.lookup(normalizeIdentity(id), canonical)
	return h, h != nil
}

// Close evicts every session. Further opens fail.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if _, err := m.EvictAll(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
		}
	}
	log.Info().Int("sessions", len(ids)).Msg("Session manager closed")
	return errors.Join(errs...)
}

func (m *Manager) lookup(id, canonical string) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	s.lastAccess = time.Now()
	return s.docs[canonical]
}

func (m *Manager) touch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.lastAccess = time.Now()
	}
}

func (m *Manager) updateMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateMetricsLocked()
}

func (m *Manager) updateMetricsLocked() {
	count, bytes := m.usageLocked()
	observability.SetActiveSessions(len(m.sessions))
	observability.SetOpenDocuments(count)
	observability.SetCachedBytes(bytes)
}

func normalizeIdentity(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return identity.Anonymous
	}
	return id
}

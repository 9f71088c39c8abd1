// Package session caches open documents per caller identity.
//
// Invariants:
// - A handle belongs to exactly one (identity, canonical path) pair; sessions never share handles.
// - A handle is mutated only under its exclusive lock; readers share the lock.
// - Lock waits are bounded; a timeout surfaces as a concurrency error.
// - Eviction (explicit, idle sweep, external change) takes the handle lock first, and evicted handles are terminal.
// - The cache is bounded by document count and bytes; only clean idle handles are evicted to make room.
//
// Usage:
//
//	mgr := session.NewManager(store, session.Options{LockTimeout: 5 * time.Second})
//	lease, _ := mgr.Acquire(ctx, "s1", "a.docx", session.ModeWrite)
//	lease.Document().AppendParagraph(document.Paragraph{Text: "Hello"})
//	_ = lease.MarkDirty()
//	_ = lease.Commit(ctx, "a.docx")
//	lease.Release()
package session

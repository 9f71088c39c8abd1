// Package ops is the built-in catalogue of document operations.
//
// Invariants:
// - Handlers are stateless; a fresh instance serves each call.
// - Handlers reach documents only through operation.Context leases, so the same
//   code runs in session mode and stateless mode.
// - Session management operations declare AccessNone and never open a document.
//
// Usage:
//
//	reg, err := operation.NewRegistry(ops.Catalog())
package ops

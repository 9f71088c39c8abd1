// Package operation dispatches named document operations to registered handlers.
//
// Invariants:
// - A Registry is immutable after construction; lookups take no locks and do no I/O.
// - Operation names are unique per registry, compared case-insensitively.
// - Parameters are schema-validated before a handler runs and are immutable afterwards.
// - Every lock a handler acquires through its Context is released when the call ends.
// - Handler failures and panics become structured failure responses, never process crashes.
//
// Usage:
//
//	reg, _ := operation.NewRegistry(ops.Catalog())
//	d, _ := operation.NewDispatcher(operation.DispatcherConfig{Registry: reg, Storage: store, Sessions: mgr})
//	resp := d.Dispatch(ctx, operation.Request{
//		Operation: "add_paragraph",
//		Arguments: map[string]interface{}{"path": "a.docx", "text": "Hello"},
//	})
package operation

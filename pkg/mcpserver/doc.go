// Package mcpserver exposes the operation registry as MCP tools over stdio or
// streamable HTTP.
//
// Invariants:
// - Every registered operation becomes exactly one tool with the operation's schema.
// - The MCP client session id is the caller identity; stdio has a single session.
// - Failed operations are tool results with IsError set, never transport errors.
// - When a client session ends its cached documents are evicted.
//
// Usage:
//
//	srv := mcpserver.New(dispatcher, mcpserver.Options{Name: "docmcp", Version: "1.0.0"})
//	err := srv.ServeStdio(ctx)
package mcpserver

package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/harun/docmcp/pkg/identity"
	"github.com/harun/docmcp/pkg/operation"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
)

const (
	DefaultName         = "docmcp"
	DefaultEndpointPath = "/mcp"
	shutdownTimeout     = 5 * time.Second
)

// Options configures the MCP server.
type Options struct {
	Name    string
	Version string
}

// Server adapts a dispatcher to the MCP tool protocol.
type Server struct {
	dispatcher *operation.Dispatcher
	mcp        *server.MCPServer
}

// New builds an MCP server with one tool per registered operation.
func New(dispatcher *operation.Dispatcher, opts Options) *Server {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s := &Server{dispatcher: dispatcher}

	hooks := &server.Hooks{}
	hooks.AddOnUnregisterSession(s.onSessionClosed)

	s.mcp = server.NewMCPServer(
		opts.Name,
		opts.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithHooks(hooks),
	)

	for _, desc := range dispatcher.Registry().Descriptors() {
		tool, err := toolFor(desc)
		if err != nil {
			log.Error().Err(err).Str("operation", desc.Name).Msg("Skipping operation with unencodable schema")
			continue
		}
		s.mcp.AddTool(tool, s.handle)
	}

	log.Debug().
		Str("name", opts.Name).
		Int("tools", dispatcher.Registry().Len()).
		Msg("MCP server configured")

	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func toolFor(desc *operation.Descriptor) (mcp.Tool, error) {
	schema, err := json.Marshal(desc.Schema())
	if err != nil {
		return mcp.Tool{}, fmt.Errorf("failed to encode schema: %w", err)
	}

	tool := mcp.NewToolWithRawSchema(desc.Name, desc.Traits.Description, schema)
	switch desc.Traits.Access {
	case operation.AccessRead:
		tool.Annotations.ReadOnlyHint = mcp.ToBoolPtr(true)
	case operation.AccessWrite:
		tool.Annotations.ReadOnlyHint = mcp.ToBoolPtr(false)
		tool.Annotations.DestructiveHint = mcp.ToBoolPtr(true)
	}
	tool.Annotations.OpenWorldHint = mcp.ToBoolPtr(false)
	return tool, nil
}

func (s *Server) handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp := s.dispatcher.Dispatch(ctx, operation.Request{
		Operation: request.Params.Name,
		Arguments: request.GetArguments(),
	})
	return toolResult(resp), nil
}

func toolResult(resp operation.Response) *mcp.CallToolResult {
	if !resp.Success {
		return mcp.NewToolResultError(resp.Content())
	}
	text := resp.Content()
	if resp.Saved != "" && resp.Data == nil {
		text = fmt.Sprintf("%s\nSaved: %s", text, resp.Saved)
	}
	return mcp.NewToolResultText(text)
}

func (s *Server) onSessionClosed(ctx context.Context, session server.ClientSession) {
	sessions := s.dispatcher.Sessions()
	if sessions == nil {
		return
	}
	n, err := sessions.EvictAll(context.Background(), session.SessionID())
	if err != nil {
		log.Warn().Err(err).Str("session", session.SessionID()).Msg("Failed to release session documents")
		return
	}
	if n > 0 {
		log.Info().Str("session", session.SessionID()).Int("documents", n).Msg("Released documents of closed MCP session")
	}
}

// ServeStdio serves MCP over the process's stdin and stdout until ctx ends or
// stdin closes.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.ServeStream(ctx, os.Stdin, os.Stdout)
}

// ServeStream serves newline-delimited MCP over in and out until ctx ends or in closes.
func (s *Server) ServeStream(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	log.Info().Msg("Serving MCP over stdio")
	err := stdio.Listen(ctx, in, out)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("stdio server failed: %w", err)
	}
	return nil
}

// ServeHTTP serves streamable HTTP MCP on addr until ctx ends.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.mcp, server.WithEndpointPath(DefaultEndpointPath))

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("path", DefaultEndpointPath).Msg("Serving MCP over HTTP")
		errCh <- httpServer.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down http server: %w", err)
		}
		return nil
	}
}

// IdentityAccessor resolves the MCP client session id of the call, falling
// back to identities attached with identity.WithIdentity.
func IdentityAccessor() identity.Accessor {
	return identity.Chain(
		identity.Func(func(ctx context.Context) string {
			if session := server.ClientSessionFromContext(ctx); session != nil {
				return session.SessionID()
			}
			return ""
		}),
		identity.FromContext(),
	)
}

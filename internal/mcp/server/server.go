// Package server exports a [tools.Set] over the Model Context Protocol so
// that an external voice pipeline can drive an interview through the same
// tools the in-process turn driver uses.
//
// Each interview session gets its own [Server]; [Handler] multiplexes the
// streamable HTTP transport across sessions by resolving the target server
// from the incoming request.
package server

import (
	"context"
	"log/slog"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/mockflow/internal/mcp/tools"
)

// Version is reported to MCP clients during initialisation.
const Version = "1.0.0"

// Server wraps an MCP server bound to one tool set.
type Server struct {
	srv *mcpsdk.Server
	set *tools.Set
}

// Option configures a [Server].
type Option func(*options)

type options struct {
	instructions string
	logger       *slog.Logger
}

// WithInstructions sets the instructions sent to clients on initialisation.
func WithInstructions(s string) Option {
	return func(o *options) { o.instructions = s }
}

// WithLogger sets the logger used by the underlying MCP server.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a Server named name that exposes every tool in set.
func New(name string, set *tools.Set, opts ...Option) *Server {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	srv := mcpsdk.NewServer(
		&mcpsdk.Implementation{Name: name, Version: Version},
		&mcpsdk.ServerOptions{Instructions: o.instructions, Logger: o.logger},
	)
	for _, t := range set.Tools() {
		schema := t.Definition.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		srv.AddTool(&mcpsdk.Tool{
			Name:        t.Definition.Name,
			Description: t.Definition.Description,
			InputSchema: schema,
		}, callHandler(set, t.Definition.Name))
	}
	return &Server{srv: srv, set: set}
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcpsdk.Server { return s.srv }

// Tools returns the exported tool set.
func (s *Server) Tools() *tools.Set { return s.set }

// callHandler adapts [tools.Set.Call] to the SDK handler signature. Handler
// failures become error results so the client model can react; only an
// unknown tool is a protocol error.
func callHandler(set *tools.Set, name string) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		args := "{}"
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			args = string(req.Params.Arguments)
		}
		res, err := set.Call(ctx, name, args)
		if err != nil {
			return nil, err
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: res.Content}},
			IsError: res.IsError,
		}, nil
	}
}

// Handler returns an HTTP handler serving the streamable MCP transport.
// resolve maps a request to the session's Server; returning nil rejects the
// request with 400.
func Handler(resolve func(*http.Request) *Server) http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(r *http.Request) *mcpsdk.Server {
		s := resolve(r)
		if s == nil {
			return nil
		}
		return s.srv
	}, nil)
}

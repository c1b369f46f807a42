// Package mcptools exposes the multi-database core as Model Context Protocol
// tools over stdio, for agent hosts that speak MCP natively.
package mcptools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpsrv "github.com/mark3labs/mcp-go/server"

	"github.com/myquery/myquery/internal/export"
	"github.com/myquery/myquery/internal/multidb"
	"github.com/myquery/myquery/internal/observability"
)

const serverName = "myquery-tools"

type Server struct {
	mcp      *mcpsrv.MCPServer
	registry *multidb.Registry
	executor *multidb.Executor
	exporter *export.Exporter
	logger   *slog.Logger
}

type Options struct {
	Version  string
	Registry *multidb.Registry
	Executor *multidb.Executor
	// Exporter enables the export argument of multi_db_query when set.
	Exporter *export.Exporter
	Logger   *slog.Logger
}

func New(opts Options) (*Server, error) {
	if opts.Registry == nil || opts.Executor == nil {
		return nil, errors.New("registry and executor are required")
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := &Server{
		registry: opts.Registry,
		executor: opts.Executor,
		exporter: opts.Exporter,
		logger:   opts.Logger,
	}
	s.mcp = mcpsrv.NewMCPServer(serverName, opts.Version,
		mcpsrv.WithToolCapabilities(false),
		mcpsrv.WithInstructions(instructions),
	)
	for _, t := range s.tools() {
		s.mcp.AddTool(t.Tool, t.Handler)
	}
	return s, nil
}

const instructions = `You are connected to a myquery tool server.

Use list_connections to see the registered databases, compare_schemas to see
which tables each one has, and multi_db_query to run one read-only SQL
statement on several databases at once. Results from several databases can be
stacked (merge=union, each row tagged with _source_db) or joined on a shared
column (merge=join with merge_key).`

// ServeStdio blocks until ctx is cancelled or the client disconnects.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	srv := mcpsrv.NewStdioServer(s.mcp)
	s.logger.InfoContext(ctx, "mcp_tools_listening", slog.String("transport", "stdio"))
	if err := srv.Listen(ctx, in, out); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("mcp stdio server: %w", err)
	}
	return nil
}

func (s *Server) tools() []mcpsrv.ServerTool {
	return []mcpsrv.ServerTool{
		s.toolListConnections(),
		s.toolMultiDBQuery(),
		s.toolCompareSchemas(),
	}
}

func resultErr(err error) *mcplib.CallToolResult {
	return mcplib.NewToolResultError(err.Error())
}

func stringArg(req mcplib.CallToolRequest, name string) string {
	args := req.GetArguments()
	if args == nil {
		return ""
	}
	v, _ := args[name].(string)
	return v
}

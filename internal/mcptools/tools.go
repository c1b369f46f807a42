package mcptools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpsrv "github.com/mark3labs/mcp-go/server"

	"github.com/myquery/myquery/internal/database"
	"github.com/myquery/myquery/internal/export"
	"github.com/myquery/myquery/internal/multidb"
)

var errNoConnections = errors.New("no database connections registered; add one with `myquery multidb add`")

type connectionInfo struct {
	Name string `json:"name"`
	database.Metadata
}

func (s *Server) toolListConnections() mcpsrv.ServerTool {
	tool := mcplib.NewTool("list_connections",
		mcplib.WithDescription("List the registered database connections with their type, database name, host and port."),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleListConnections}
}

func (s *Server) handleListConnections(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	out := []connectionInfo{}
	for _, name := range s.registry.List() {
		meta, ok := s.registry.Info(name)
		if !ok {
			continue
		}
		out = append(out, connectionInfo{Name: name, Metadata: meta})
	}
	return mcplib.NewToolResultJSON(out)
}

func (s *Server) toolMultiDBQuery() mcpsrv.ServerTool {
	opts := []mcplib.ToolOption{
		mcplib.WithDescription(`Run one SQL statement on several databases concurrently.

Each database reports success or failure on its own. Destructive statements
(DROP, DELETE, TRUNCATE, UPDATE, ALTER, CREATE) are rejected.`),
		mcplib.WithString("sql",
			mcplib.Description("The SQL statement to run on every selected database."),
			mcplib.Required(),
		),
		mcplib.WithString("databases",
			mcplib.Description(`"all" (default) or a comma separated list of connection names.`),
		),
		mcplib.WithString("merge",
			mcplib.Description("Optional merge of the successful results."),
			mcplib.Enum("union", "join"),
		),
		mcplib.WithString("merge_key",
			mcplib.Description("Column to join on; required when merge is join."),
		),
	}
	if s.exporter != nil {
		opts = append(opts, mcplib.WithString("export",
			mcplib.Description("Also write the merged dataset to files: csv, json, parquet, a comma list or all. Requires merge."),
		))
	}
	tool := mcplib.NewTool("multi_db_query", opts...)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleMultiDBQuery}
}

type queryResponse struct {
	multidb.Outcome
	Exported []export.File `json:"exported,omitempty"`
}

func (s *Server) handleMultiDBQuery(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	sqlText := strings.TrimSpace(stringArg(req, "sql"))
	if sqlText == "" {
		return resultErr(errors.New("multi_db_query: sql is required")), nil
	}
	if s.registry.Len() == 0 {
		return resultErr(errNoConnections), nil
	}
	mode, err := multidb.ParseMode(stringArg(req, "merge"))
	if err != nil {
		return resultErr(fmt.Errorf("multi_db_query: %w", err)), nil
	}
	selection := stringArg(req, "databases")
	if strings.TrimSpace(selection) == "" {
		selection = multidb.AllConnections
	}

	outcome := s.executor.Run(ctx, multidb.Request{
		SQL:       sqlText,
		Selection: selection,
		Merge:     mode,
		MergeKey:  strings.TrimSpace(stringArg(req, "merge_key")),
	})
	resp := queryResponse{Outcome: outcome}

	if formats := stringArg(req, "export"); formats != "" && s.exporter != nil {
		files, err := s.exportMerged(ctx, outcome, formats)
		if err != nil {
			return resultErr(fmt.Errorf("multi_db_query: export: %w", err)), nil
		}
		resp.Exported = files
	}
	s.logger.InfoContext(ctx, "mcp_tool_multi_db_query",
		slog.String("selection", selection),
		slog.String("merge", string(mode)),
		slog.Int("sources", len(outcome.Results)),
	)
	return mcplib.NewToolResultJSON(resp)
}

func (s *Server) exportMerged(ctx context.Context, outcome multidb.Outcome, rawFormats string) ([]export.File, error) {
	if outcome.Merged == nil {
		if outcome.MergeError != "" {
			return nil, errors.New(outcome.MergeError)
		}
		return nil, errors.New("export needs a merged result; set merge")
	}
	formats, err := export.ParseFormats(rawFormats)
	if err != nil {
		return nil, err
	}
	table, err := export.FromMerged(*outcome.Merged)
	if err != nil {
		return nil, err
	}
	return s.exporter.Export(ctx, table, formats, "")
}

func (s *Server) toolCompareSchemas() mcpsrv.ServerTool {
	tool := mcplib.NewTool("compare_schemas",
		mcplib.WithDescription("Introspect every registered database and report its table count and table names. A database that cannot be introspected reports an error without affecting the others."),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleCompareSchemas}
}

func (s *Server) handleCompareSchemas(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.registry.Len() == 0 {
		return resultErr(errNoConnections), nil
	}
	return mcplib.NewToolResultJSON(s.registry.CompareSchemas(ctx))
}

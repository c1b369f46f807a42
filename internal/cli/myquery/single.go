package myquery

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/myquery/myquery/internal/agent"
	"github.com/myquery/myquery/internal/analysis"
	"github.com/myquery/myquery/internal/database"
	"github.com/myquery/myquery/internal/export"
	"github.com/myquery/myquery/internal/query"
)

// connFlags are the single connection flags; unset values fall back to
// MYQUERY_DB_*.
type connFlags struct {
	dbType   string
	name     string
	host     string
	port     int
	user     string
	password string
}

func (a *app) bindConnFlags(cmd *cobra.Command) *connFlags {
	d := a.opts.Config.Database
	f := &connFlags{}
	cmd.Flags().StringVar(&f.dbType, "db-type", d.Type, "database type: postgresql, mysql, sqlite or duckdb")
	cmd.Flags().StringVar(&f.name, "db-name", d.Name, "database name, or file path for sqlite/duckdb")
	cmd.Flags().StringVar(&f.host, "db-host", d.Host, "database host")
	cmd.Flags().IntVar(&f.port, "db-port", d.Port, "database port (0 uses the engine default)")
	cmd.Flags().StringVar(&f.user, "db-user", d.User, "database user")
	cmd.Flags().StringVar(&f.password, "db-password", "", "database password (defaults to MYQUERY_DB_PASSWORD)")
	return f
}

func (a *app) params(f *connFlags) (database.Params, error) {
	dbType, err := database.ParseType(f.dbType)
	if err != nil {
		return database.Params{}, err
	}
	password := f.password
	if password == "" {
		password = a.opts.Config.Database.Password
	}
	d := a.opts.Config.Database
	return database.Params{
		Type:            dbType,
		Name:            f.name,
		Host:            f.host,
		Port:            f.port,
		User:            f.user,
		Password:        password,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
	}, nil
}

func (a *app) connectCommand() *cobra.Command {
	var flags *connFlags
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Test a database connection and show its schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := a.params(flags)
			if err != nil {
				return err
			}
			ag := agent.New(a.opts.Agent)
			defer func() { _ = ag.Close() }()
			if err := ag.Connect(cmd.Context(), params); err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			current, err := ag.Schema(cmd.Context(), false)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			meta := params.Metadata()
			_, _ = fmt.Fprintln(out, pterm.Success.Sprintf("Connected to %s database: %s", meta.Type, meta.DatabaseName))
			return renderSchema(out, current)
		},
	}
	flags = a.bindConnFlags(cmd)
	return cmd
}

func (a *app) queryCommand() *cobra.Command {
	var (
		flags    *connFlags
		rawSQL   bool
		optimize bool
		exp      exportFlags
	)
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a question (or run SQL with --sql) against one database",
		Example: `  myquery query "top 5 customers by revenue" --db-type sqlite --db-name shop.db
  myquery query --sql "SELECT count(*) FROM orders" --export csv,parquet`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			text := strings.TrimSpace(strings.Join(args, " "))
			params, err := a.params(flags)
			if err != nil {
				return err
			}
			ag := agent.New(a.opts.Agent)
			defer func() { _ = ag.Close() }()
			if err := ag.Connect(ctx, params); err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}

			out := cmd.OutOrStdout()
			var result query.Result
			if rawSQL {
				result = ag.Execute(ctx, text)
				if !result.Success {
					return errors.New(result.Error)
				}
				renderSQL(out, text)
				if err := renderResult(out, result); err != nil {
					return err
				}
				renderSummary(out, analysis.Summarize(result))
				if optimize {
					renderReview(out, ag.Review(ctx, text))
				}
			} else {
				flow := ag.ExecuteFlow(ctx, text, agent.FlowOptions{Visualize: true, Optimize: optimize})
				if flow.SQL != "" {
					renderSQL(out, flow.SQL)
				}
				if flow.Error != "" {
					return errors.New(flow.Error)
				}
				result = *flow.Execution
				if !result.Success {
					return errors.New(result.Error)
				}
				if err := renderFlow(out, flow); err != nil {
					return err
				}
			}

			if exp.formats == "" {
				return nil
			}
			table, err := export.FromResult(result)
			if err != nil {
				return err
			}
			return a.export(cmd, exp, table)
		},
	}
	flags = a.bindConnFlags(cmd)
	cmd.Flags().BoolVar(&rawSQL, "sql", false, "treat the argument as SQL instead of a question")
	cmd.Flags().BoolVar(&optimize, "optimize", false, "review the statement for performance problems")
	a.bindExportFlags(cmd, &exp)
	return cmd
}

package myquery

import (
	"github.com/spf13/cobra"

	"github.com/myquery/myquery/internal/mcptools"
)

func (a *app) toolsCommand() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Serve the registered connections as MCP tools over stdio",
		Long: `tools speaks the Model Context Protocol on stdin/stdout so agent hosts can
list connections, compare schemas and run multi-database queries. Logs go to
stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			registry, err := a.loadRegistry(ctx, func(string) {})
			if err != nil {
				return err
			}
			defer func() { _ = registry.Close() }()
			exporter, err := a.exporter(cmd, dir)
			if err != nil {
				return err
			}
			srv, err := mcptools.New(mcptools.Options{
				Version:  a.opts.Config.Service.Version,
				Registry: registry,
				Executor: a.executor(registry),
				Exporter: exporter,
				Logger:   a.logger,
			})
			if err != nil {
				return err
			}
			return srv.ServeStdio(ctx, a.opts.Stdin, a.opts.Stdout)
		},
	}
	cmd.Flags().StringVar(&dir, "output-dir", a.opts.Config.Export.Dir, "directory for exports requested by tool calls")
	return cmd
}

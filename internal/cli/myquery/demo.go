package myquery

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/myquery/myquery/internal/demo"
)

func (a *app) demoCommand() *cobra.Command {
	var opts demo.Options
	cmd := &cobra.Command{
		Use:   "demo [path]",
		Short: "Create a sample SQLite shop database to try questions on",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "demo.db"
			if len(args) == 1 {
				path = args[0]
			}
			opts.Logger = a.logger
			stats, err := demo.Create(cmd.Context(), path, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, pterm.Success.Sprintf("Demo database created: %s", stats.Path))
			_, _ = fmt.Fprintf(out, "Tables: customers (%d), products (%d), orders (%d)\n", stats.Customers, stats.Products, stats.Orders)
			_, _ = fmt.Fprintf(out, "Try: myquery query \"total revenue by country\" --db-type sqlite --db-name %s\n", stats.Path)
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Orders, "orders", 8, "number of orders to generate")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 42, "random seed; the same seed gives the same data")
	cmd.Flags().BoolVar(&opts.Overwrite, "overwrite", false, "replace the file if it exists")
	return cmd
}

package myquery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/myquery/myquery/internal/agent"
	"github.com/myquery/myquery/internal/database"
	"github.com/myquery/myquery/internal/export"
	"github.com/myquery/myquery/internal/multidb"
	"github.com/myquery/myquery/internal/profiles"
	"github.com/myquery/myquery/internal/secrets"
	"github.com/myquery/myquery/internal/storage"
)

func (a *app) profiles() *profiles.Store {
	return profiles.NewStore(a.opts.Config.Database.ConnectionsFile, a.keyring(), a.opts.Lookup, a.logger)
}

func (a *app) opener() database.Opener {
	if a.opts.Agent.Opener != nil {
		return a.opts.Agent.Opener
	}
	return database.Open
}

// loadRegistry connects every saved profile. Profiles that fail to connect
// are reported and skipped so the rest stay usable.
func (a *app) loadRegistry(ctx context.Context, warn func(string)) (*multidb.Registry, error) {
	store := a.profiles()
	list, err := store.List()
	if err != nil {
		return nil, err
	}
	registry := multidb.NewRegistry(a.logger, a.opener())
	for _, p := range list {
		params, err := store.Params(p)
		if err == nil {
			err = registry.Add(ctx, p.Name, a.withPool(params))
		}
		if err != nil {
			a.logger.Warn("profile_skipped", slog.String("connection", p.Name), slog.Any("error", err))
			warn(fmt.Sprintf("skipping %s: %v", p.Name, err))
		}
	}
	return registry, nil
}

func (a *app) withPool(params database.Params) database.Params {
	d := a.opts.Config.Database
	params.MaxOpenConns = d.MaxOpenConns
	params.MaxIdleConns = d.MaxIdleConns
	params.ConnMaxLifetime = d.ConnMaxLifetime
	return params
}

func (a *app) executor(registry *multidb.Registry) *multidb.Executor {
	return multidb.NewExecutor(registry, agent.FanoutConfig(a.opts.Config.Query), a.logger)
}

func (a *app) multidbCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "multidb",
		Aliases: []string{"mdb"},
		Short:   "Manage named connections and query several databases at once",
	}
	cmd.AddCommand(
		a.multidbAddCommand(),
		a.multidbListCommand(),
		a.multidbRemoveCommand(),
		a.multidbQueryCommand(),
		a.multidbCompareCommand(),
	)
	return cmd
}

func (a *app) multidbAddCommand() *cobra.Command {
	var (
		p        profiles.Profile
		password string
	)
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a connection after checking that it works",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p.Name = args[0]
			dbType, err := database.ParseType(p.Type)
			if err != nil {
				return err
			}
			probe := multidb.NewRegistry(a.logger, a.opener())
			defer func() { _ = probe.Close() }()
			err = probe.Add(cmd.Context(), p.Name, database.Params{
				Type:     dbType,
				Name:     p.Database,
				Host:     p.Host,
				Port:     p.Port,
				User:     p.User,
				Password: password,
			})
			if err != nil {
				return err
			}

			store := a.profiles()
			stored, err := store.Save(p, password)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, pterm.Success.Sprintf("Added connection %s (%s) to %s", p.Name, dbType, store.Path()))
			if password != "" && !stored {
				_, _ = fmt.Fprintf(out, "Password was not saved; set %s before querying.\n", secrets.EnvKey(p.Name))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&p.Type, "type", "", "database type: postgresql, mysql, sqlite or duckdb")
	cmd.Flags().StringVar(&p.Database, "name", "", "database name, or file path for sqlite/duckdb")
	cmd.Flags().StringVar(&p.Host, "host", "", "database host")
	cmd.Flags().IntVar(&p.Port, "port", 0, "database port")
	cmd.Flags().StringVar(&p.User, "user", "", "database user")
	cmd.Flags().StringVar(&password, "password", "", "database password, stored in the OS keyring")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (a *app) multidbListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered connections",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := a.profiles().List()
			if err != nil {
				return err
			}
			return renderProfiles(cmd.OutOrStdout(), list)
		},
	}
}

func (a *app) multidbRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Forget a connection and its stored password",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.profiles().Remove(args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), pterm.Success.Sprintf("Removed connection %s", args[0]))
			return nil
		},
	}
}

func (a *app) multidbQueryCommand() *cobra.Command {
	var (
		databases string
		merge     string
		mergeKey  string
		exp       exportFlags
	)
	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run one SQL statement on several connections",
		Example: `  myquery multidb query "SELECT region, sum(total) AS total FROM orders GROUP BY region" --merge union
  myquery multidb query "SELECT id, name FROM users" --connections crm,billing --merge join --merge-key id`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			mode, err := multidb.ParseMode(merge)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			registry, err := a.loadRegistry(ctx, func(msg string) { _, _ = fmt.Fprintln(out, pterm.Warning.Sprint(msg)) })
			if err != nil {
				return err
			}
			defer func() { _ = registry.Close() }()
			if registry.Len() == 0 {
				return fmt.Errorf("no database connections registered; add one with `myquery multidb add`")
			}

			started := time.Now()
			outcome := a.executor(registry).Run(ctx, multidb.Request{
				SQL:       strings.Join(args, " "),
				Selection: databases,
				Merge:     mode,
				MergeKey:  mergeKey,
			})
			if err := renderOutcome(out, outcome, time.Since(started)); err != nil {
				return err
			}
			if exp.formats == "" {
				return nil
			}
			return a.exportOutcome(cmd, exp, outcome)
		},
	}
	cmd.Flags().StringVar(&databases, "connections", multidb.AllConnections, "comma separated connection names, or all")
	cmd.Flags().StringVar(&merge, "merge", "", "combine results: union or join")
	cmd.Flags().StringVar(&mergeKey, "merge-key", "", "column to join on with --merge join")
	a.bindExportFlags(cmd, &exp)
	return cmd
}

// exportOutcome writes the merged dataset when there is one, otherwise one
// file set per successful source suffixed with its name.
func (a *app) exportOutcome(cmd *cobra.Command, exp exportFlags, outcome multidb.Outcome) error {
	if outcome.Merged != nil {
		table, err := export.FromMerged(*outcome.Merged)
		if err != nil {
			return err
		}
		return a.export(cmd, exp, table)
	}
	base := exp.name
	if base == "" {
		base = storage.DefaultExportName(time.Now())
	}
	succeeded := outcome.Results.Succeeded()
	if len(succeeded) == 0 {
		return export.ErrQueryFailed
	}
	for _, src := range succeeded {
		table, err := export.FromResult(src.Result)
		if err != nil {
			return err
		}
		per := exp
		per.name = base + "_" + src.Name
		if err := a.export(cmd, per, table); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) multidbCompareCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compare",
		Short: "Compare the tables of every registered connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			registry, err := a.loadRegistry(cmd.Context(), func(msg string) { _, _ = fmt.Fprintln(out, pterm.Warning.Sprint(msg)) })
			if err != nil {
				return err
			}
			defer func() { _ = registry.Close() }()
			return renderComparison(out, registry.CompareSchemas(cmd.Context()))
		},
	}
}

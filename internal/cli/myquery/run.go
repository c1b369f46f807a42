// Package myquery is the command tree of the myquery CLI: single connection
// querying, persisted multi-database fan-out and the MCP tool server.
package myquery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/myquery/myquery/internal/agent"
	"github.com/myquery/myquery/internal/config"
	"github.com/myquery/myquery/internal/observability"
	"github.com/myquery/myquery/internal/secrets"
	"github.com/myquery/myquery/internal/storage"
)

type Options struct {
	Config config.Config
	// Agent carries the model, opener and limits used for every agent and
	// registry the CLI builds.
	Agent  agent.Options
	Logger *slog.Logger

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Secrets overrides the OS keyring for profile passwords.
	Secrets secrets.Store
	// Lookup resolves MYQUERY_PASSWORD_<NAME> fallbacks; defaults to the
	// process environment.
	Lookup config.LookupFunc
	// ObjectStore overrides the configured S3 export target.
	ObjectStore storage.ObjectStore
}

type app struct {
	opts   Options
	logger *slog.Logger
}

// Run executes one CLI invocation and returns the process exit code.
func Run(ctx context.Context, args []string, opts Options) int {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.Lookup == nil {
		opts.Lookup = os.LookupEnv
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	if opts.Agent.Logger == nil {
		opts.Agent.Logger = opts.Logger
	}

	a := &app{opts: opts, logger: opts.Logger}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetIn(opts.Stdin)
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(opts.Stderr, pterm.Error.Sprint(err.Error()))
		return 1
	}
	return 0
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "myquery",
		Short:         "Talk to your databases in natural language",
		Long:          `myquery turns questions into SQL, runs them against one or many databases and explains the results.`,
		Version:       a.opts.Config.Service.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		a.connectCommand(),
		a.queryCommand(),
		a.multidbCommand(),
		a.toolsCommand(),
		a.demoCommand(),
	)
	return root
}

func (a *app) keyring() secrets.Store {
	if a.opts.Secrets != nil {
		return a.opts.Secrets
	}
	ring, err := secrets.OpenKeyring()
	if err != nil {
		a.logger.Debug("keyring_unavailable", slog.Any("error", err))
		return nil
	}
	a.opts.Secrets = ring
	return ring
}

package multidb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/myquery/myquery/internal/observability"
	"github.com/myquery/myquery/internal/query"
)

// AllConnections selects every registered connection at call time.
const AllConnections = "all"

const (
	defaultConcurrency   = 8
	defaultSourceTimeout = 30 * time.Second
)

type ExecutorConfig struct {
	Concurrency   int
	SourceTimeout time.Duration
	// Guard applies the destructive-statement check to every source.
	Guard bool
}

func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Concurrency:   defaultConcurrency,
		SourceTimeout: defaultSourceTimeout,
		Guard:         true,
	}
}

type Executor struct {
	registry *Registry
	cfg      ExecutorConfig
	logger   *slog.Logger
}

func NewExecutor(registry *Registry, cfg ExecutorConfig, logger *slog.Logger) *Executor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = defaultSourceTimeout
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Executor{registry: registry, cfg: cfg, logger: logger}
}

// ResolveSelection turns "all" or a comma separated list into names. Explicit
// names are trimmed and deduplicated, keeping first occurrence order.
func ResolveSelection(selector string, registry *Registry) []string {
	selector = strings.TrimSpace(selector)
	if selector == "" || strings.EqualFold(selector, AllConnections) {
		return registry.List()
	}
	seen := map[string]bool{}
	out := make([]string, 0)
	for _, part := range strings.Split(selector, ",") {
		name := strings.TrimSpace(part)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// ExecuteOnSelected runs sqlText once per name. It never fails as a whole:
// unknown names, guard rejections, timeouts and driver errors all land in
// that source's entry. Result order follows names.
func (e *Executor) ExecuteOnSelected(ctx context.Context, sqlText string, names []string) Results {
	sources := e.registry.snapshot(names)
	out := make(Results, len(sources))

	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i, src := range sources {
		g.Go(func() error {
			out[i] = e.runSource(ctx, sqlText, src)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range out {
		if !r.Success {
			failed++
		}
	}
	e.logger.InfoContext(ctx, "fanout_complete",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.Int("sources", len(out)),
		slog.Int("failed", failed),
	)
	return out
}

func (e *Executor) runSource(ctx context.Context, sqlText string, src source) (result SourceResult) {
	start := time.Now()
	defer func() {
		if recovered := recover(); recovered != nil {
			result = SourceResult{Name: src.name, Result: query.Failure(sqlText, fmt.Errorf("panic: %v", recovered))}
		}
		observability.ObserveFanoutSource(result.Success, time.Since(start))
	}()

	if !src.found {
		return SourceResult{Name: src.name, Result: query.Failure(sqlText, ErrConnectionNotFound)}
	}

	sourceCtx, cancel := context.WithTimeout(ctx, e.cfg.SourceTimeout)
	defer cancel()

	res := query.Execute(sourceCtx, src.db, sqlText, query.Options{AllowDestructive: !e.cfg.Guard})
	if !res.Success && errors.Is(sourceCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		res.Error = fmt.Sprintf("query timed out after %s", e.cfg.SourceTimeout)
	}
	if !res.Success {
		e.logger.WarnContext(ctx, "fanout_source_failed",
			slog.String("connection", src.name),
			slog.String("error", res.Error),
		)
	}
	return SourceResult{Name: src.name, Result: res}
}

// Request is a complete multi-database query: selection, statement and an
// optional merge.
type Request struct {
	SQL       string
	Selection string
	Merge     Mode
	MergeKey  string
}

// Outcome always carries the per-source results. Merged is set only when a
// merge was requested and succeeded; otherwise MergeError explains why.
type Outcome struct {
	Results    Results        `json:"results"`
	Merged     *MergedDataset `json:"merged,omitempty"`
	MergeError string         `json:"merge_error,omitempty"`
}

func (e *Executor) Run(ctx context.Context, req Request) Outcome {
	names := ResolveSelection(req.Selection, e.registry)
	results := e.ExecuteOnSelected(ctx, req.SQL, names)
	if req.Merge == ModeNone {
		return Outcome{Results: results}
	}
	return MergeOrFallback(results, req.Merge, req.MergeKey)
}

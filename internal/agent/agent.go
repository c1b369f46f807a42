// Package agent orchestrates one database conversation: connecting, reading
// the schema, generating SQL from natural language, running it and
// explaining the results. It also owns a multi-database registry for
// fan-out queries.
package agent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/myquery/myquery/internal/analysis"
	"github.com/myquery/myquery/internal/database"
	"github.com/myquery/myquery/internal/multidb"
	"github.com/myquery/myquery/internal/nl2sql"
	"github.com/myquery/myquery/internal/observability"
	"github.com/myquery/myquery/internal/query"
	"github.com/myquery/myquery/internal/schema"
)

var ErrNotConnected = errors.New("no database connection, connect to a database first")

const (
	historyTurns     = 5
	historyMaxChars  = 200
	schemaSampleRows = 3
)

var queryKeywords = []string{
	"show", "list", "get", "find", "select", "count", "sum", "average", "top",
	"tampilkan", "cari", "lihat", "berapa", "total",
}

type Config struct {
	MaxRows      int
	QueryTimeout time.Duration
	Fanout       multidb.ExecutorConfig
}

type Options struct {
	Logger     *slog.Logger
	Opener     database.Opener
	Translator nl2sql.Translator
	Completer  nl2sql.Completer
	Config     Config
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Agent struct {
	logger     *slog.Logger
	open       database.Opener
	translator nl2sql.Translator
	completer  nl2sql.Completer
	analyzer   *analysis.Analyzer
	cfg        Config

	mu      sync.Mutex
	db      *sql.DB
	params  database.Params
	history []Message

	registry *multidb.Registry
	executor *multidb.Executor
}

func New(opts Options) *Agent {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	open := opts.Opener
	if open == nil {
		open = database.Open
	}
	cfg := opts.Config
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = query.DefaultMaxRows
	}
	registry := multidb.NewRegistry(logger, open)
	return &Agent{
		logger:     logger,
		open:       open,
		translator: opts.Translator,
		completer:  opts.Completer,
		analyzer:   analysis.NewAnalyzer(opts.Completer),
		cfg:        cfg,
		registry:   registry,
		executor:   multidb.NewExecutor(registry, cfg.Fanout, logger),
	}
}

// Connect replaces the current connection only after the new one has been
// opened and probed.
func (a *Agent) Connect(ctx context.Context, params database.Params) error {
	params = params.WithDefaults()
	if err := params.Validate(); err != nil {
		return err
	}
	db, err := a.open(ctx, params)
	if err != nil {
		return fmt.Errorf("connect to %s database %q: %w", params.Type, params.Name, err)
	}

	a.mu.Lock()
	previous := a.db
	a.db = db
	a.params = params
	a.mu.Unlock()

	if previous != nil {
		if err := previous.Close(); err != nil {
			a.logger.Warn("close previous connection", slog.Any("error", err))
		}
	}
	a.logger.Info("database connected",
		slog.String("db_type", string(params.Type)),
		slog.String("db_name", params.Name),
	)
	return nil
}

// Connection reports what the agent is connected to.
func (a *Agent) Connection() (database.Metadata, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return database.Metadata{}, false
	}
	return a.params.Metadata(), true
}

func (a *Agent) IsConnected(ctx context.Context) bool {
	db, _, err := a.handle()
	if err != nil {
		return false
	}
	return database.Probe(ctx, db) == nil
}

func (a *Agent) handle() (*sql.DB, database.Type, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil, "", ErrNotConnected
	}
	return a.db, a.params.Type, nil
}

// Schema always reads the live database.
func (a *Agent) Schema(ctx context.Context, includeSampleData bool) (schema.Schema, error) {
	db, dbType, err := a.handle()
	if err != nil {
		return schema.Schema{}, err
	}
	opts := schema.Options{}
	if includeSampleData {
		opts.SampleRows = schemaSampleRows
	}
	return schema.Introspect(ctx, db, dbType, opts)
}

func (a *Agent) TableNames(ctx context.Context) ([]string, error) {
	db, dbType, err := a.handle()
	if err != nil {
		return nil, err
	}
	return schema.TableNames(ctx, db, dbType)
}

// GenerateSQL translates prompt against the live schema. An empty history
// uses the agent's own conversation.
func (a *Agent) GenerateSQL(ctx context.Context, prompt, history string) (string, error) {
	if a.translator == nil {
		return "", nl2sql.ErrNotConfigured
	}
	_, dbType, err := a.handle()
	if err != nil {
		return "", err
	}
	current, err := a.Schema(ctx, false)
	if err != nil {
		return "", fmt.Errorf("read schema: %w", err)
	}
	if history == "" {
		history = a.historyContext()
	}
	out, err := a.translator.Translate(ctx, nl2sql.Request{
		NaturalLanguage: prompt,
		Dialect:         string(dbType),
		Schema:          current.Describe(),
		History:         history,
	})
	if err != nil {
		return "", err
	}
	return out.SQL, nil
}

// Execute runs sqlText on the current connection with the row cap and the
// destructive-statement guard.
func (a *Agent) Execute(ctx context.Context, sqlText string) query.Result {
	db, _, err := a.handle()
	if err != nil {
		return query.Failure(sqlText, err)
	}
	if a.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.QueryTimeout)
		defer cancel()
	}
	return query.Execute(ctx, db, sqlText, query.Options{MaxRows: a.cfg.MaxRows})
}

func (a *Agent) Analyze(ctx context.Context, question string, result query.Result) (string, error) {
	return a.analyzer.Analyze(ctx, question, result)
}

// Review runs the static checks and, when a model is configured, asks it for
// advice with the schema as context.
func (a *Agent) Review(ctx context.Context, sqlText string) analysis.Review {
	review := analysis.ReviewSQL(sqlText)
	if a.completer == nil {
		return review
	}
	var description string
	if current, err := a.Schema(ctx, false); err == nil {
		description = current.Describe()
	}
	advice, err := a.analyzer.Advise(ctx, sqlText, description)
	if err != nil {
		a.logger.Warn("optimization advice failed", slog.Any("error", err))
		return review
	}
	review.Advice = advice
	return review
}

// Chat routes query-like messages through the execute flow when a database
// is connected and everything else to the general assistant.
func (a *Agent) Chat(ctx context.Context, message string) (string, error) {
	if looksLikeQuery(message) && a.IsConnected(ctx) {
		flow := a.ExecuteFlow(ctx, message, FlowOptions{Visualize: true})
		if flow.Error != "" {
			return flow.Error, nil
		}
		parts := make([]string, 0, 2)
		if flow.Analysis != "" {
			parts = append(parts, flow.Analysis)
		}
		if flow.Chart != analysis.ChartNone {
			parts = append(parts, fmt.Sprintf("\nSuggested visualization: %s chart", flow.Chart))
		}
		if len(parts) == 0 {
			return "Query completed.", nil
		}
		return strings.Join(parts, "\n"), nil
	}

	if a.completer == nil {
		return "", nl2sql.ErrNotConfigured
	}
	return a.completer.Complete(ctx,
		"You are a helpful database assistant. You help users connect to databases and query them using natural language. "+
			"You can provide guidance on database operations and SQL queries.",
		message,
	)
}

func looksLikeQuery(message string) bool {
	lower := strings.ToLower(message)
	for _, keyword := range queryKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

func (a *Agent) History() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Message(nil), a.history...)
}

func (a *Agent) ClearHistory() {
	a.mu.Lock()
	a.history = nil
	a.mu.Unlock()
}

func (a *Agent) remember(prompt, sqlText, answer string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history,
		Message{Role: "user", Content: prompt},
		Message{Role: "assistant", Content: fmt.Sprintf("SQL: %s\nAnalysis: %s", sqlText, answer)},
	)
}

// historyContext renders the last few messages, each cut to a fixed length.
func (a *Agent) historyContext() string {
	a.mu.Lock()
	recent := a.history
	if len(recent) > historyTurns {
		recent = recent[len(recent)-historyTurns:]
	}
	recent = append([]Message(nil), recent...)
	a.mu.Unlock()

	lines := make([]string, 0, len(recent))
	for _, msg := range recent {
		content := []rune(msg.Content)
		if len(content) > historyMaxChars {
			content = content[:historyMaxChars]
		}
		role := msg.Role
		if role != "" {
			role = strings.ToUpper(role[:1]) + role[1:]
		}
		lines = append(lines, role+": "+string(content))
	}
	return strings.Join(lines, "\n")
}

func (a *Agent) Registry() *multidb.Registry { return a.registry }

func (a *Agent) Executor() *multidb.Executor { return a.executor }

// Close releases the single connection and every registered connection.
func (a *Agent) Close() error {
	a.mu.Lock()
	db := a.db
	a.db = nil
	a.mu.Unlock()

	var errs []error
	if db != nil {
		errs = append(errs, db.Close())
	}
	errs = append(errs, a.registry.Close())
	return errors.Join(errs...)
}

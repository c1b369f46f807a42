// Package multidb holds named database connections and runs one query across
// a selection of them, optionally stitching the per-source results together.
package multidb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/myquery/myquery/internal/database"
	"github.com/myquery/myquery/internal/observability"
	"github.com/myquery/myquery/internal/schema"
)

var ErrConnectionNotFound = errors.New("Connection not found")

type entry struct {
	db     *sql.DB
	params database.Params
}

// Registry is safe for concurrent use. Names keep their insertion order;
// overwriting a name keeps its original position.
type Registry struct {
	logger *slog.Logger
	open   database.Opener

	mu      sync.RWMutex
	order   []string
	entries map[string]entry
}

func NewRegistry(logger *slog.Logger, open database.Opener) *Registry {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if open == nil {
		open = database.Open
	}
	return &Registry{
		logger:  logger,
		open:    open,
		entries: make(map[string]entry),
	}
}

// Add opens and probes a new handle before touching the registry, so a
// failed add leaves any existing entry for name in place. A replaced handle
// is closed once the new one is installed.
func (r *Registry) Add(ctx context.Context, name string, params database.Params) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("connection name is required")
	}
	if strings.EqualFold(name, AllConnections) {
		return fmt.Errorf("connection name %q is reserved", AllConnections)
	}
	params = params.WithDefaults()
	if err := params.Validate(); err != nil {
		return err
	}

	db, err := r.open(ctx, params)
	if err != nil {
		return fmt.Errorf("add connection %q: %w", name, err)
	}

	r.mu.Lock()
	previous, existed := r.entries[name]
	r.entries[name] = entry{db: db, params: params}
	if !existed {
		r.order = append(r.order, name)
	}
	r.mu.Unlock()

	if existed && previous.db != nil {
		if err := previous.db.Close(); err != nil {
			r.logger.Warn("close replaced connection", slog.String("connection", name), slog.Any("error", err))
		}
	}
	r.logger.Info("connection added",
		slog.String("connection", name),
		slog.String("db_type", string(params.Type)),
		slog.Bool("replaced", existed),
	)
	return nil
}

func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	current, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, name)
	}
	delete(r.entries, name)
	for i, existing := range r.order {
		if existing == name {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	if err := current.db.Close(); err != nil {
		r.logger.Warn("close removed connection", slog.String("connection", name), slog.Any("error", err))
	}
	r.logger.Info("connection removed", slog.String("connection", name))
	return nil
}

func (r *Registry) Get(name string) (*sql.DB, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	current, ok := r.entries[name]
	return current.db, ok
}

// List returns a copy of the registered names in insertion order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Info(name string) (database.Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	current, ok := r.entries[name]
	if !ok {
		return database.Metadata{}, false
	}
	return current.params.Metadata(), true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

type source struct {
	name   string
	db     *sql.DB
	dbType database.Type
	found  bool
}

func (r *Registry) snapshot(names []string) []source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]source, len(names))
	for i, name := range names {
		current, ok := r.entries[name]
		out[i] = source{name: name, db: current.db, dbType: current.params.Type, found: ok}
	}
	return out
}

// SchemaSummary is the per-connection outcome of CompareSchemas.
type SchemaSummary struct {
	Name       string
	TableCount int
	Tables     []string
	Error      string
}

// CompareSchemas introspects every registered connection independently. A
// failing connection only fills its own Error.
func (r *Registry) CompareSchemas(ctx context.Context) Comparison {
	sources := r.snapshot(r.List())
	out := make(Comparison, len(sources))

	var g errgroup.Group
	g.SetLimit(defaultConcurrency)
	for i, src := range sources {
		g.Go(func() error {
			out[i] = SchemaSummary{Name: src.name, Tables: []string{}}
			if !src.found {
				out[i].Error = ErrConnectionNotFound.Error()
				return nil
			}
			tables, err := schema.TableNames(ctx, src.db, src.dbType)
			if err != nil {
				out[i].Error = err.Error()
				return nil
			}
			out[i].Tables = tables
			out[i].TableCount = len(tables)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Close disposes every handle and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]entry)
	r.order = nil
	r.mu.Unlock()

	var errs []error
	for name, current := range entries {
		if err := current.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

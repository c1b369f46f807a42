// Package session keeps one isolated agent and one status record per client
// session. Actions on the same session run one at a time; status reads never
// wait behind a running action.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/myquery/myquery/internal/observability"
)

var (
	ErrCapacity = errors.New("session capacity reached")
	ErrNotFound = errors.New("Session not found")
)

const (
	evictedIdle     = "idle_ttl"
	evictedCapacity = "capacity"
	evictedDeleted  = "deleted"
)

type Config struct {
	// IdleTTL removes sessions unused for longer; zero keeps them forever.
	IdleTTL time.Duration
	// MaxSessions bounds the store; zero means unbounded.
	MaxSessions int
}

// Context is the mutable status record of a session.
type Context struct {
	SessionID       string   `json:"session_id"`
	Connected       bool     `json:"connected"`
	DBType          string   `json:"db_type,omitempty"`
	DBName          string   `json:"db_name,omitempty"`
	SchemaLoaded    bool     `json:"schema_loaded"`
	TableCount      int      `json:"table_count"`
	TableNames      []string `json:"table_names"`
	LastQuery       string   `json:"last_query,omitempty"`
	LastResultCount *int     `json:"last_result_count,omitempty"`
}

func (c Context) clone() Context {
	c.TableNames = append(make([]string, 0, len(c.TableNames)), c.TableNames...)
	if c.LastResultCount != nil {
		n := *c.LastResultCount
		c.LastResultCount = &n
	}
	return c
}

type Summary struct {
	SessionID string `json:"session_id"`
	Connected bool   `json:"connected"`
	DBName    string `json:"db_name,omitempty"`
}

type entry[A io.Closer] struct {
	id      string
	agent   A
	created time.Time

	// exec holds one token while an action runs on the session.
	exec chan struct{}

	// guarded by Store.mu
	ctx      Context
	lastUsed time.Time
	busy     int
	deleted  bool
}

// Store maps session ids to agents built by newAgent. It is safe for
// concurrent use.
type Store[A io.Closer] struct {
	newAgent func() (A, error)
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry[A]
}

func NewStore[A io.Closer](cfg Config, newAgent func() (A, error), logger *slog.Logger) *Store[A] {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Store[A]{
		newAgent: newAgent,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*entry[A]),
	}
}

// Do runs fn with the agent and a working copy of the context of session id.
// An empty, unknown or deleted id gets a fresh session. The context copy is
// stored back when fn returns, whatever its error. The returned id is the
// session fn ran in.
func (s *Store[A]) Do(ctx context.Context, id string, fn func(agent A, c *Context) error) (Context, string, error) {
	for {
		e, err := s.acquire(id)
		if err != nil {
			return Context{}, "", err
		}

		select {
		case e.exec <- struct{}{}:
		case <-ctx.Done():
			s.release(e, nil)
			return Context{}, e.id, ctx.Err()
		}

		s.mu.Lock()
		deleted := e.deleted
		working := e.ctx.clone()
		s.mu.Unlock()
		if deleted {
			<-e.exec
			s.release(e, nil)
			id = ""
			continue
		}

		err = fn(e.agent, &working)
		s.release(e, &working)
		<-e.exec
		return working.clone(), e.id, err
	}
}

// acquire resolves id to a live entry, creating one when needed, and marks it
// busy so it cannot be evicted.
func (s *Store[A]) acquire(id string) (*entry[A], error) {
	s.mu.Lock()
	now := s.now()
	closers := s.sweepLocked(now)

	e, ok := s.sessions[id]
	if !ok {
		var err error
		e, closers, err = s.createLocked(now, closers)
		if err != nil {
			s.mu.Unlock()
			s.closeAll(closers)
			return nil, err
		}
	}
	e.busy++
	e.lastUsed = now
	s.mu.Unlock()

	s.closeAll(closers)
	return e, nil
}

func (s *Store[A]) release(e *entry[A], working *Context) {
	s.mu.Lock()
	if working != nil && !e.deleted {
		e.ctx = working.clone()
	}
	e.busy--
	e.lastUsed = s.now()
	s.mu.Unlock()
}

func (s *Store[A]) createLocked(now time.Time, closers []io.Closer) (*entry[A], []io.Closer, error) {
	if s.cfg.MaxSessions > 0 && len(s.sessions) >= s.cfg.MaxSessions {
		victim := s.leastRecentlyUsedIdleLocked()
		if victim == nil {
			return nil, closers, ErrCapacity
		}
		closers = append(closers, s.removeLocked(victim, evictedCapacity))
	}

	agent, err := s.newAgent()
	if err != nil {
		return nil, closers, err
	}
	id := uuid.NewString()
	e := &entry[A]{
		id:       id,
		agent:    agent,
		created:  now,
		exec:     make(chan struct{}, 1),
		ctx:      Context{SessionID: id, TableNames: []string{}},
		lastUsed: now,
	}
	s.sessions[id] = e
	observability.SetActiveSessions(len(s.sessions))
	s.logger.Info("session created", slog.String("session_id", id))
	return e, closers, nil
}

func (s *Store[A]) leastRecentlyUsedIdleLocked() *entry[A] {
	var victim *entry[A]
	for _, e := range s.sessions {
		if e.busy > 0 {
			continue
		}
		if victim == nil || e.lastUsed.Before(victim.lastUsed) {
			victim = e
		}
	}
	return victim
}

func (s *Store[A]) expiredLocked(e *entry[A], now time.Time) bool {
	return s.cfg.IdleTTL > 0 && e.busy == 0 && now.Sub(e.lastUsed) > s.cfg.IdleTTL
}

func (s *Store[A]) sweepLocked(now time.Time) []io.Closer {
	if s.cfg.IdleTTL <= 0 {
		return nil
	}
	var closers []io.Closer
	for _, e := range s.sessions {
		if s.expiredLocked(e, now) {
			closers = append(closers, s.removeLocked(e, evictedIdle))
		}
	}
	return closers
}

func (s *Store[A]) removeLocked(e *entry[A], reason string) io.Closer {
	delete(s.sessions, e.id)
	e.deleted = true
	observability.SetActiveSessions(len(s.sessions))
	observability.ObserveSessionEviction(reason)
	s.logger.Info("session removed", slog.String("session_id", e.id), slog.String("reason", reason))
	return e.agent
}

func (s *Store[A]) closeAll(closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			s.logger.Warn("close session agent", slog.Any("error", err))
		}
	}
}

// Context returns a snapshot of the session's status record.
func (s *Store[A]) Context(id string) (Context, bool) {
	s.mu.Lock()
	e, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return Context{}, false
	}
	if s.expiredLocked(e, s.now()) {
		closer := s.removeLocked(e, evictedIdle)
		s.mu.Unlock()
		s.closeAll([]io.Closer{closer})
		return Context{}, false
	}
	snapshot := e.ctx.clone()
	s.mu.Unlock()
	return snapshot, true
}

// Delete removes the session at once and closes its agent after any running
// action has finished.
func (s *Store[A]) Delete(id string) error {
	s.mu.Lock()
	e, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	closer := s.removeLocked(e, evictedDeleted)
	s.mu.Unlock()

	e.exec <- struct{}{}
	s.closeAll([]io.Closer{closer})
	<-e.exec
	return nil
}

// List returns every live session, oldest first.
func (s *Store[A]) List() []Summary {
	s.mu.Lock()
	closers := s.sweepLocked(s.now())
	entries := make([]*entry[A], 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].created.Equal(entries[j].created) {
			return entries[i].id < entries[j].id
		}
		return entries[i].created.Before(entries[j].created)
	})
	out := make([]Summary, 0, len(entries))
	for _, e := range entries {
		out = append(out, Summary{SessionID: e.id, Connected: e.ctx.Connected, DBName: e.ctx.DBName})
	}
	s.mu.Unlock()

	s.closeAll(closers)
	return out
}

func (s *Store[A]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close removes every session and closes the agents.
func (s *Store[A]) Close() error {
	s.mu.Lock()
	entries := make([]*entry[A], 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	for _, e := range entries {
		delete(s.sessions, e.id)
		e.deleted = true
	}
	observability.SetActiveSessions(0)
	s.mu.Unlock()

	errs := make([]error, 0, len(entries))
	for _, e := range entries {
		errs = append(errs, e.agent.Close())
	}
	return errors.Join(errs...)
}

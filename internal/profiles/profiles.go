// Package profiles persists the CLI's named multi-database connections so
// they survive between invocations. Passwords are never written to the file.
package profiles

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/myquery/myquery/internal/database"
	"github.com/myquery/myquery/internal/observability"
	"github.com/myquery/myquery/internal/secrets"
)

const fileVersion = 1

var ErrNotFound = errors.New("connection profile not found")

type Profile struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Database string `yaml:"database,omitempty"`
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	User     string `yaml:"user,omitempty"`
}

type document struct {
	Version     int       `yaml:"version"`
	Connections []Profile `yaml:"connections"`
}

// Store reads and writes one YAML file. A missing file is an empty store.
type Store struct {
	path     string
	secrets  secrets.Store
	resolver secrets.Resolver
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewStore uses vault for passwords when non-nil; lookup is the environment
// fallback consulted by Params.
func NewStore(path string, vault secrets.Store, lookup func(string) (string, bool), logger *slog.Logger) *Store {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Store{
		path:     path,
		secrets:  vault,
		resolver: secrets.Resolver{Store: vault, Lookup: lookup},
		logger:   logger,
	}
}

func (s *Store) Path() string { return s.path }

func (s *Store) List() ([]Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return doc.Connections, nil
}

func (s *Store) Get(name string) (Profile, error) {
	profiles, err := s.List()
	if err != nil {
		return Profile{}, err
	}
	for _, p := range profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Save inserts or replaces the profile with the same name. A non-empty
// password goes to the secret store; stored reports whether that worked.
func (s *Store) Save(profile Profile, password string) (stored bool, err error) {
	profile.Name = strings.TrimSpace(profile.Name)
	if profile.Name == "" {
		return false, errors.New("connection name is required")
	}
	dbType, err := database.ParseType(profile.Type)
	if err != nil {
		return false, err
	}
	profile.Type = string(dbType)

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return false, err
	}
	replaced := false
	for i := range doc.Connections {
		if doc.Connections[i].Name == profile.Name {
			doc.Connections[i] = profile
			replaced = true
		}
	}
	if !replaced {
		doc.Connections = append(doc.Connections, profile)
	}
	sort.Slice(doc.Connections, func(i, j int) bool { return doc.Connections[i].Name < doc.Connections[j].Name })
	if err := s.write(doc); err != nil {
		return false, err
	}

	if password == "" || s.secrets == nil {
		return false, nil
	}
	if err := s.secrets.Set(profile.Name, password); err != nil {
		s.logger.Warn("password_not_stored",
			slog.String("connection", profile.Name),
			slog.String("fallback", secrets.EnvKey(profile.Name)),
			slog.Any("error", err),
		)
		return false, nil
	}
	return true, nil
}

func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	kept := doc.Connections[:0]
	found := false
	for _, p := range doc.Connections {
		if p.Name == name {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	doc.Connections = kept
	if err := s.write(doc); err != nil {
		return err
	}
	if s.secrets != nil {
		if err := s.secrets.Delete(name); err != nil {
			s.logger.Warn("password_not_removed", slog.String("connection", name), slog.Any("error", err))
		}
	}
	return nil
}

// Params turns a profile into connection parameters, resolving the password.
// A missing password is not an error: file engines need none and the server
// reports bad credentials itself.
func (s *Store) Params(profile Profile) (database.Params, error) {
	dbType, err := database.ParseType(profile.Type)
	if err != nil {
		return database.Params{}, err
	}
	params := database.Params{
		Type: dbType,
		Name: profile.Database,
		Host: profile.Host,
		Port: profile.Port,
		User: profile.User,
	}
	password, err := s.resolver.Password(profile.Name)
	switch {
	case err == nil:
		params.Password = password
	case !errors.Is(err, secrets.ErrNotFound):
		return database.Params{}, err
	}
	return params, nil
}

func (s *Store) read() (document, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return document{Version: fileVersion}, nil
	}
	if err != nil {
		return document{}, fmt.Errorf("read profiles: %w", err)
	}
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return document{}, fmt.Errorf("parse profiles %s: %w", s.path, err)
	}
	if doc.Version == 0 {
		doc.Version = fileVersion
	}
	if doc.Version != fileVersion {
		return document{}, fmt.Errorf("unsupported profiles version %d", doc.Version)
	}
	return doc, nil
}

// write replaces the file atomically via a temp file in the same directory.
func (s *Store) write(doc document) error {
	doc.Version = fileVersion
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create profiles dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".connections-*.yaml")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

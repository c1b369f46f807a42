// Package database resolves connection parameters into driver DSNs and opens
// probed, pooled handles for the supported SQL backends.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"
)

type Type string

const (
	SQLite   Type = "sqlite"
	Postgres Type = "postgresql"
	MySQL    Type = "mysql"
	DuckDB   Type = "duckdb"
)

const (
	defaultPostgresPort = 5432
	defaultMySQLPort    = 3306
	probeTimeout        = 5 * time.Second
	memoryPath          = ":memory:"
)

var (
	ErrUnsupportedType    = errors.New("unsupported database type")
	ErrMissingCredentials = errors.New("missing database credentials")
	ErrMissingName        = errors.New("database name is required")
	ErrFileNotFound       = errors.New("database file not found")
)

func ParseType(raw string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgresql", "postgres", "pg":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "duckdb":
		return DuckDB, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, raw)
	}
}

// Params describes one connection. For file-based engines Name is the file
// path; for server engines it is the database name.
type Params struct {
	Type     Type
	Name     string
	Host     string
	Port     int
	User     string
	Password string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type Metadata struct {
	Type         string `json:"type"`
	DatabaseName string `json:"database_name"`
	Host         string `json:"host,omitempty"`
	Port         int    `json:"port,omitempty"`
}

func (p Params) WithDefaults() Params {
	switch p.Type {
	case Postgres:
		if p.Host == "" {
			p.Host = "localhost"
		}
		if p.Port == 0 {
			p.Port = defaultPostgresPort
		}
	case MySQL:
		if p.Host == "" {
			p.Host = "localhost"
		}
		if p.Port == 0 {
			p.Port = defaultMySQLPort
		}
	}
	return p
}

func (p Params) Validate() error {
	switch p.Type {
	case SQLite:
		if strings.TrimSpace(p.Name) == "" {
			return ErrMissingName
		}
	case DuckDB:
	case Postgres, MySQL:
		if strings.TrimSpace(p.Name) == "" {
			return ErrMissingName
		}
		if strings.TrimSpace(p.User) == "" {
			return fmt.Errorf("%w: user is required for %s", ErrMissingCredentials, p.Type)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedType, p.Type)
	}
	if p.Port < 0 || p.Port > 65535 {
		return fmt.Errorf("invalid port %d", p.Port)
	}
	return nil
}

func (p Params) DriverName() string {
	switch p.Type {
	case SQLite:
		return "sqlite"
	case Postgres:
		return "pgx"
	case MySQL:
		return "mysql"
	case DuckDB:
		return "duckdb"
	default:
		return ""
	}
}

func (p Params) DSN() (string, error) {
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return "", err
	}
	switch p.Type {
	case SQLite:
		return p.Name, nil
	case DuckDB:
		if p.Name == memoryPath {
			return "", nil
		}
		return p.Name, nil
	case Postgres:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(p.User, p.Password),
			Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
			Path:   "/" + p.Name,
		}
		if p.Password == "" {
			u.User = url.User(p.User)
		}
		return u.String(), nil
	case MySQL:
		cfg := mysql.NewConfig()
		cfg.User = p.User
		cfg.Passwd = p.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
		cfg.DBName = p.Name
		cfg.ParseTime = true
		cfg.Timeout = 10 * time.Second
		return cfg.FormatDSN(), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, p.Type)
	}
}

func (p Params) Metadata() Metadata {
	p = p.WithDefaults()
	return Metadata{
		Type:         string(p.Type),
		DatabaseName: p.Name,
		Host:         p.Host,
		Port:         p.Port,
	}
}

// Opener opens a probed handle. Registries and agents accept one so tests can
// substitute sqlmock.
type Opener func(ctx context.Context, params Params) (*sql.DB, error)

// Open builds the DSN, configures pooling and runs the probe statement. The
// handle is closed again when the probe fails.
func Open(ctx context.Context, params Params) (*sql.DB, error) {
	params = params.WithDefaults()
	dsn, err := params.DSN()
	if err != nil {
		return nil, err
	}
	if params.Type == SQLite && params.Name != memoryPath {
		if _, err := os.Stat(params.Name); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, params.Name)
		}
	}

	db, err := sql.Open(params.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", params.Type, err)
	}
	if params.Type == SQLite && params.Name == memoryPath {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	} else if params.MaxOpenConns > 0 {
		db.SetMaxOpenConns(params.MaxOpenConns)
	}
	if params.MaxIdleConns > 0 {
		db.SetMaxIdleConns(params.MaxIdleConns)
	}
	if params.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(params.ConnMaxLifetime)
	}

	if err := Probe(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to %s database %q at %s: %w", params.Type, params.Name, MaskDSN(dsn), err)
	}
	return db, nil
}

// Probe runs the trivial connectivity check used before a handle is handed out.
func Probe(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("database handle is nil")
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	var one int
	if err := db.QueryRowContext(probeCtx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	return nil
}

// MaskDSN hides the password portion of a postgres URL or mysql DSN.
func MaskDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	if strings.Contains(dsn, "://") {
		u, err := url.Parse(dsn)
		if err != nil || u.User == nil {
			return dsn
		}
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
		return u.String()
	}
	if cfg, err := mysql.ParseDSN(dsn); err == nil && cfg.Passwd != "" {
		cfg.Passwd = "xxxxx"
		return cfg.FormatDSN()
	}
	return dsn
}

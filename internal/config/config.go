package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const DefaultEnvFile = ".env"

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	Query         QueryConfig
	Session       SessionConfig
	AI            AIConfig
	Export        ExportConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name    string
	Version string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  []string
}

// DatabaseConfig is the default single connection used by the CLI when no
// explicit connection flags are given.
type DatabaseConfig struct {
	Type            string
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectionsFile string
}

type QueryConfig struct {
	MaxRows           int
	Timeout           time.Duration
	FanoutConcurrency int
	FanoutGuard       bool
}

type SessionConfig struct {
	IdleTTL     time.Duration
	MaxSessions int
}

type AIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type ExportConfig struct {
	Dir string
}

type ObjectStoreConfig struct {
	Enabled          bool
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
	Debug    bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

// LoadFromEnv reads the process environment after merging a .env file from
// the working directory. Variables already set in the environment win.
func LoadFromEnv(serviceName string) (Config, error) {
	if err := loadDotEnv(DefaultEnvFile); err != nil {
		return Config{}, err
	}
	return Load(serviceName, os.LookupEnv)
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("MYQUERY_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid MYQUERY_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	steps := []func() error{
		func() error { return applyString(lookup, "MYQUERY_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "MYQUERY_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "MYQUERY_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "MYQUERY_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "MYQUERY_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyList(lookup, "MYQUERY_CORS_ORIGINS", &cfg.HTTP.CORSOrigins) },
		func() error { return applyString(lookup, "MYQUERY_DB_TYPE", &cfg.Database.Type) },
		func() error { return applyString(lookup, "MYQUERY_DB_HOST", &cfg.Database.Host) },
		func() error { return applyInt(lookup, "MYQUERY_DB_PORT", &cfg.Database.Port) },
		func() error { return applyString(lookup, "MYQUERY_DB_NAME", &cfg.Database.Name) },
		func() error { return applyString(lookup, "MYQUERY_DB_USER", &cfg.Database.User) },
		func() error { return applyString(lookup, "MYQUERY_DB_PASSWORD", &cfg.Database.Password) },
		func() error { return applyInt(lookup, "MYQUERY_DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns) },
		func() error { return applyInt(lookup, "MYQUERY_DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "MYQUERY_DB_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime)
		},
		func() error { return applyString(lookup, "MYQUERY_CONNECTIONS_FILE", &cfg.Database.ConnectionsFile) },
		func() error { return applyInt(lookup, "MYQUERY_QUERY_MAX_ROWS", &cfg.Query.MaxRows) },
		func() error { return applyDuration(lookup, "MYQUERY_QUERY_TIMEOUT", &cfg.Query.Timeout) },
		func() error { return applyInt(lookup, "MYQUERY_FANOUT_CONCURRENCY", &cfg.Query.FanoutConcurrency) },
		func() error { return applyBool(lookup, "MYQUERY_FANOUT_GUARD", &cfg.Query.FanoutGuard) },
		func() error { return applyDuration(lookup, "MYQUERY_SESSION_IDLE_TTL", &cfg.Session.IdleTTL) },
		func() error { return applyInt(lookup, "MYQUERY_SESSION_MAX", &cfg.Session.MaxSessions) },
		func() error { return applyString(lookup, "MYQUERY_AI_BASE_URL", &cfg.AI.BaseURL) },
		// OPENAI_* is accepted for compatibility; the MYQUERY_AI_* form wins.
		func() error { return applyString(lookup, "OPENAI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "MYQUERY_AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "OPENAI_MODEL", &cfg.AI.Model) },
		func() error { return applyString(lookup, "MYQUERY_AI_MODEL", &cfg.AI.Model) },
		func() error { return applyFloat(lookup, "MYQUERY_AI_TEMPERATURE", &cfg.AI.Temperature) },
		func() error { return applyDuration(lookup, "MYQUERY_AI_TIMEOUT", &cfg.AI.Timeout) },
		func() error { return applyString(lookup, "MYQUERY_EXPORT_DIR", &cfg.Export.Dir) },
		func() error { return applyBool(lookup, "MYQUERY_OBJECTSTORE_ENABLED", &cfg.ObjectStore.Enabled) },
		func() error { return applyString(lookup, "MYQUERY_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "MYQUERY_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "MYQUERY_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "MYQUERY_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error {
			return applyString(lookup, "MYQUERY_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
		},
		func() error { return applyBool(lookup, "MYQUERY_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "MYQUERY_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "MYQUERY_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},
		func() error { return applyBool(lookup, "MYQUERY_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "MYQUERY_LOG_LEVEL", &cfg.Observability.LogLevel) },
		func() error { return applyBool(lookup, "MYQUERY_DEBUG", &cfg.Observability.Debug) },
		func() error { return applyBool(lookup, "MYQUERY_AUTH_REQUIRED", &cfg.Auth.Required) },
		func() error { return applyString(lookup, "MYQUERY_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return Config{}, err
		}
	}

	if cfg.Observability.Debug {
		cfg.Observability.LogLevel = slog.LevelDebug
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if cfg.Query.MaxRows <= 0 {
		return Config{}, fmt.Errorf("MYQUERY_QUERY_MAX_ROWS must be positive")
	}
	if cfg.Query.FanoutConcurrency <= 0 {
		return Config{}, fmt.Errorf("MYQUERY_FANOUT_CONCURRENCY must be positive")
	}
	if cfg.Session.MaxSessions < 0 {
		return Config{}, fmt.Errorf("MYQUERY_SESSION_MAX must not be negative")
	}
	if cfg.ObjectStore.Enabled && cfg.ObjectStore.Bucket == "" {
		return Config{}, fmt.Errorf("object store bucket is required when the object store is enabled")
	}
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "myquery-mcp", Version: "1.0.0"},
		HTTP: HTTPConfig{
			Address:      "0.0.0.0:7766",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
			CORSOrigins:  []string{"*"},
		},
		Database: DatabaseConfig{
			Type:            "sqlite",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectionsFile: defaultConnectionsFile(),
		},
		Query: QueryConfig{
			MaxRows:           100,
			Timeout:           30 * time.Second,
			FanoutConcurrency: 8,
			FanoutGuard:       true,
		},
		Session: SessionConfig{
			IdleTTL:     30 * time.Minute,
			MaxSessions: 1000,
		},
		AI: AIConfig{
			BaseURL:     "https://api.openai.com",
			Model:       "gpt-4o-mini",
			Temperature: 0.1,
			Timeout:     60 * time.Second,
		},
		Export: ExportConfig{
			Dir: "outputs/exports",
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "myquery-exports",
			UseSSL:           false,
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  false,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = "127.0.0.1:17766"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Session.IdleTTL = time.Minute
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Observability.LogJSON = true
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func defaultConnectionsFile() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ".myquery/connections.yaml"
	}
	return dir + string(os.PathSeparator) + "myquery" + string(os.PathSeparator) + "connections.yaml"
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyList(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	out := make([]string, 0)
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	*dst = out
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("myquery-mcp", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != "0.0.0.0:7766" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if len(cfg.HTTP.CORSOrigins) != 1 || cfg.HTTP.CORSOrigins[0] != "*" {
		t.Fatalf("HTTP.CORSOrigins = %v", cfg.HTTP.CORSOrigins)
	}
	if cfg.Query.MaxRows != 100 {
		t.Fatalf("Query.MaxRows = %d", cfg.Query.MaxRows)
	}
	if cfg.Query.Timeout != 30*time.Second {
		t.Fatalf("Query.Timeout = %s", cfg.Query.Timeout)
	}
	if !cfg.Query.FanoutGuard {
		t.Fatal("Query.FanoutGuard should default to true")
	}
	if cfg.Session.IdleTTL != 30*time.Minute || cfg.Session.MaxSessions != 1000 {
		t.Fatalf("Session = %+v", cfg.Session)
	}
	if cfg.Export.Dir != "outputs/exports" {
		t.Fatalf("Export.Dir = %q", cfg.Export.Dir)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.ObjectStore.Enabled {
		t.Fatal("ObjectStore.Enabled should default to false")
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("myquery-mcp", mapLookup(map[string]string{"MYQUERY_PROFILE": "prod"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Observability.LogJSON {
		t.Fatal("LogJSON should default to true in prod")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"MYQUERY_PROFILE":            "test",
		"MYQUERY_HTTP_ADDR":          ":9999",
		"MYQUERY_HTTP_READ_TIMEOUT":  "2s",
		"MYQUERY_CORS_ORIGINS":       "https://a.example, https://b.example",
		"MYQUERY_DB_TYPE":            "postgresql",
		"MYQUERY_DB_HOST":            "db.internal",
		"MYQUERY_DB_PORT":            "6543",
		"MYQUERY_DB_NAME":            "sales",
		"MYQUERY_DB_USER":            "reader",
		"MYQUERY_QUERY_MAX_ROWS":     "250",
		"MYQUERY_QUERY_TIMEOUT":      "5s",
		"MYQUERY_FANOUT_CONCURRENCY": "3",
		"MYQUERY_FANOUT_GUARD":       "false",
		"MYQUERY_SESSION_IDLE_TTL":   "10m",
		"MYQUERY_SESSION_MAX":        "50",
		"OPENAI_API_KEY":             "legacy-key",
		"MYQUERY_AI_MODEL":           "gpt-4.1",
		"MYQUERY_AI_TEMPERATURE":     "0.3",
		"MYQUERY_EXPORT_DIR":         "/tmp/exports",
		"MYQUERY_LOG_LEVEL":          "error",
		"MYQUERY_AUTH_STATIC_KEYS":   "k1:alice:admin",
	})
	cfg, err := Load("myquery-mcp", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP.ReadTimeout = %s", cfg.HTTP.ReadTimeout)
	}
	if strings.Join(cfg.HTTP.CORSOrigins, "|") != "https://a.example|https://b.example" {
		t.Fatalf("HTTP.CORSOrigins = %v", cfg.HTTP.CORSOrigins)
	}
	if cfg.Database.Type != "postgresql" || cfg.Database.Port != 6543 || cfg.Database.User != "reader" {
		t.Fatalf("Database = %+v", cfg.Database)
	}
	if cfg.Query.MaxRows != 250 || cfg.Query.Timeout != 5*time.Second {
		t.Fatalf("Query = %+v", cfg.Query)
	}
	if cfg.Query.FanoutConcurrency != 3 || cfg.Query.FanoutGuard {
		t.Fatalf("Query = %+v", cfg.Query)
	}
	if cfg.Session.IdleTTL != 10*time.Minute || cfg.Session.MaxSessions != 50 {
		t.Fatalf("Session = %+v", cfg.Session)
	}
	if cfg.AI.APIKey != "legacy-key" {
		t.Fatalf("AI.APIKey = %q", cfg.AI.APIKey)
	}
	if cfg.AI.Model != "gpt-4.1" || cfg.AI.Temperature != 0.3 {
		t.Fatalf("AI = %+v", cfg.AI)
	}
	if cfg.Export.Dir != "/tmp/exports" {
		t.Fatalf("Export.Dir = %q", cfg.Export.Dir)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.StaticKeys != "k1:alice:admin" {
		t.Fatalf("StaticKeys = %q", cfg.Auth.StaticKeys)
	}
}

func TestLoadPrefersNativeAIKey(t *testing.T) {
	cfg, err := Load("myquery-mcp", mapLookup(map[string]string{
		"OPENAI_API_KEY":     "legacy",
		"MYQUERY_AI_API_KEY": "native",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AI.APIKey != "native" {
		t.Fatalf("AI.APIKey = %q", cfg.AI.APIKey)
	}
}

func TestLoadDebugForcesDebugLevel(t *testing.T) {
	cfg, err := Load("myquery-mcp", mapLookup(map[string]string{
		"MYQUERY_PROFILE":   "prod",
		"MYQUERY_LOG_LEVEL": "error",
		"MYQUERY_DEBUG":     "true",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "profile", env: map[string]string{"MYQUERY_PROFILE": "staging"}, want: "MYQUERY_PROFILE"},
		{name: "duration", env: map[string]string{"MYQUERY_QUERY_TIMEOUT": "soon"}, want: "MYQUERY_QUERY_TIMEOUT"},
		{name: "int", env: map[string]string{"MYQUERY_DB_PORT": "abc"}, want: "MYQUERY_DB_PORT"},
		{name: "bool", env: map[string]string{"MYQUERY_FANOUT_GUARD": "maybe"}, want: "MYQUERY_FANOUT_GUARD"},
		{name: "level", env: map[string]string{"MYQUERY_LOG_LEVEL": "loud"}, want: "MYQUERY_LOG_LEVEL"},
		{name: "max rows", env: map[string]string{"MYQUERY_QUERY_MAX_ROWS": "0"}, want: "MYQUERY_QUERY_MAX_ROWS"},
		{name: "bucket", env: map[string]string{"MYQUERY_OBJECTSTORE_ENABLED": "true", "MYQUERY_OBJECTSTORE_BUCKET": ""}, want: "bucket"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load("myquery-mcp", mapLookup(tc.env))
			if err == nil {
				t.Fatal("Load() expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Load() error = %v, want mention of %s", err, tc.want)
			}
		})
	}
}

func TestLoadRequiresLookup(t *testing.T) {
	if _, err := Load("myquery-mcp", nil); err == nil {
		t.Fatal("Load(nil) expected error")
	}
}

func TestLoadDotEnvMissingFileIsIgnored(t *testing.T) {
	if err := loadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("loadDotEnv() error = %v", err)
	}
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "MYQUERY_TEST_DOTENV_NEW=from-file\nMYQUERY_TEST_DOTENV_SET=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("MYQUERY_TEST_DOTENV_SET", "from-env")
	t.Setenv("MYQUERY_TEST_DOTENV_NEW", "")
	os.Unsetenv("MYQUERY_TEST_DOTENV_NEW")

	if err := loadDotEnv(path); err != nil {
		t.Fatalf("loadDotEnv() error = %v", err)
	}
	if got := os.Getenv("MYQUERY_TEST_DOTENV_NEW"); got != "from-file" {
		t.Fatalf("MYQUERY_TEST_DOTENV_NEW = %q", got)
	}
	if got := os.Getenv("MYQUERY_TEST_DOTENV_SET"); got != "from-env" {
		t.Fatalf("MYQUERY_TEST_DOTENV_SET = %q", got)
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

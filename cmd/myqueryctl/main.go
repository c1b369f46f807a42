package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/myquery/myquery/internal/cli/myqueryctl"
)

func main() {
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("MYQUERY_CLI_TIMEOUT")), 60*time.Second)
	options := myqueryctl.Options{
		BaseURL: envOr("MYQUERY_API_URL", "http://localhost:7766"),
		APIKey:  strings.TrimSpace(os.Getenv("MYQUERY_API_KEY")),
		Timeout: timeout,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}

	code := myqueryctl.Run(context.Background(), os.Args[1:], options)
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid MYQUERY_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}

// Package myqueryctl drives a running MCP session server from the command
// line. It keeps no state: the session id is passed explicitly every time.
package myqueryctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/myquery/myquery/internal/mcp"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("myqueryctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:7766"), "MCP server base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 60*time.Second), "HTTP timeout (e.g. 30s)")
	sessionID := fs.String("session", "", "session id for action (empty starts a new session)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	httpClient := defaults.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: *timeout}
	}
	client := mcp.NewClient(*baseURL, *apiKey, httpClient)

	command := strings.TrimSpace(fs.Arg(0))
	rest := fs.Args()[1:]
	var (
		out any
		err error
	)
	switch command {
	case "health", "ready":
		out, err = getRaw(ctx, httpClient, strings.TrimRight(*baseURL, "/")+"/v1/"+command, *apiKey)
	case "sessions":
		out, err = client.Sessions(ctx)
	case "context":
		if len(rest) != 1 {
			return usageError(stderr, "context needs exactly one session id")
		}
		out, err = client.Context(ctx, rest[0])
	case "delete":
		if len(rest) != 1 {
			return usageError(stderr, "delete needs exactly one session id")
		}
		err = client.DeleteSession(ctx, rest[0])
		out = map[string]string{"message": "Session deleted", "session_id": rest[0]}
	case "action":
		if len(rest) < 1 || len(rest) > 2 {
			return usageError(stderr, "action needs a name and optional JSON parameters")
		}
		var params any
		if len(rest) == 2 {
			raw := json.RawMessage(rest[1])
			if !json.Valid(raw) {
				return usageError(stderr, "parameters must be valid JSON")
			}
			params = raw
		}
		var resp mcp.Response
		resp, err = client.Action(ctx, mcp.Action(rest[0]), params, *sessionID)
		if err == nil && !resp.Success {
			printJSON(stdout, resp)
			return 1
		}
		out = resp
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	if err != nil {
		if errors.Is(err, mcp.ErrSessionNotFound) {
			_, _ = fmt.Fprintln(stderr, "session not found")
			return 1
		}
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}
	printJSON(stdout, out)
	return 0
}

// getRaw serves the probe endpoints, which sit outside the MCP client.
func getRaw(ctx context.Context, client *http.Client, url, apiKey string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(body)))
	}
	return body, nil
}

func printJSON(w io.Writer, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		_, _ = fmt.Fprintln(w, v)
		return
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, _ = fmt.Fprintln(w, string(raw))
		return
	}
	_, _ = fmt.Fprintln(w, buf.String())
}

func usageError(w io.Writer, msg string) int {
	_, _ = fmt.Fprintf(w, "%s\n\n", msg)
	writeUsage(w)
	return 2
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: myqueryctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                 GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                  GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  sessions               GET /mcp/sessions")
	_, _ = fmt.Fprintln(w, "  context <session>      GET /mcp/context/{session}")
	_, _ = fmt.Fprintln(w, "  delete <session>       DELETE /mcp/session/{session}")
	_, _ = fmt.Fprintln(w, "  action <name> [json]   POST /mcp/action (-session continues a session)")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}

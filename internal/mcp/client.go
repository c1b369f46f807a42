package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/myquery/myquery/internal/session"
)

var ErrSessionNotFound = errors.New("session not found")

// Client talks to a running MCP server. It keeps no session state; callers
// pass the session id they got back from Action.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: httpClient,
	}
}

func (c *Client) Action(ctx context.Context, action Action, parameters any, sessionID string) (Response, error) {
	req := Request{Action: action, SessionID: sessionID}
	if parameters != nil {
		body, err := json.Marshal(parameters)
		if err != nil {
			return Response{}, fmt.Errorf("marshal parameters: %w", err)
		}
		req.Parameters = body
	}
	var resp Response
	err := c.do(ctx, http.MethodPost, "/mcp/action", req, &resp)
	return resp, err
}

func (c *Client) Context(ctx context.Context, sessionID string) (session.Context, error) {
	var out session.Context
	err := c.do(ctx, http.MethodGet, "/mcp/context/"+url.PathEscape(sessionID), nil, &out)
	return out, err
}

func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/mcp/session/"+url.PathEscape(sessionID), nil, nil)
}

func (c *Client) Sessions(ctx context.Context) ([]session.Summary, error) {
	var out struct {
		Sessions []session.Summary `json:"sessions"`
	}
	err := c.do(ctx, http.MethodGet, "/mcp/sessions", nil, &out)
	return out.Sessions, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, strings.TrimSpace(string(raw)))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

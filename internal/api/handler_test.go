package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/myquery/myquery/internal/agent"
	"github.com/myquery/myquery/internal/auth"
	"github.com/myquery/myquery/internal/config"
	"github.com/myquery/myquery/internal/mcp"
	"github.com/myquery/myquery/internal/session"
)

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func testConfig(t *testing.T, env map[string]string) config.Config {
	t.Helper()
	cfg, err := config.Load("myquery-mcp", mapLookup(env))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func newDispatcher(t *testing.T) *mcp.Dispatcher {
	t.Helper()
	store := session.NewStore[mcp.Agent](session.Config{}, func() (mcp.Agent, error) {
		return agent.New(agent.Options{}), nil
	}, nil)
	t.Cleanup(func() { _ = store.Close() })
	return mcp.NewDispatcher(store, nil)
}

func sqliteFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "api.db")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(`CREATE TABLE products (id INTEGER PRIMARY KEY, name TEXT); CREATE TABLE orders (id INTEGER PRIMARY KEY);`); err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	return path
}

func postAction(t *testing.T, h http.Handler, body any) mcp.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/mcp/action", bytes.NewReader(raw)))
	if rr.Code != http.StatusOK {
		t.Fatalf("action status = %d body = %s", rr.Code, rr.Body.String())
	}
	var resp mcp.Response
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestRootAndHealthEndpoints(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("root status = %d", rr.Code)
	}
	var root map[string]string
	_ = json.Unmarshal(rr.Body.Bytes(), &root)
	if root["service"] != "myquery-mcp" || root["status"] != "running" || root["version"] == "" {
		t.Fatalf("root body = %v", root)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("health status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown path status = %d", rr.Code)
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{
		Readiness: func(context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestReadinessChecks(t *testing.T) {
	cfg := testConfig(t, map[string]string{"MYQUERY_OBJECTSTORE_ENABLED": "true", "MYQUERY_OBJECTSTORE_ENDPOINT": ""})
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err == nil {
		t.Fatal("expected object store error")
	}
	if err := CheckObjectStoreConfig(testConfig(t, nil))(context.Background()); err != nil {
		t.Fatalf("disabled object store error = %v", err)
	}

	dispatcher := newDispatcher(t)
	check := CombineReadinessChecks(nil, CheckSessionCapacity(dispatcher, 1))
	if err := check(context.Background()); err != nil {
		t.Fatalf("empty store error = %v", err)
	}
	_ = dispatcher.Handle(context.Background(), mcp.Request{Action: mcp.ActionGetStatus})
	if err := check(context.Background()); err == nil {
		t.Fatal("expected capacity error")
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{Dispatcher: newDispatcher(t)})
	path := sqliteFile(t)

	connected := postAction(t, h, map[string]any{
		"action":     "connect_db",
		"parameters": map[string]any{"db_type": "sqlite", "db_name": path},
	})
	if !connected.Success || connected.SessionID == "" || !connected.Context.Connected {
		t.Fatalf("connect response = %+v", connected)
	}

	schemaResp := postAction(t, h, map[string]any{
		"action":     "get_schema",
		"session_id": connected.SessionID,
	})
	if !schemaResp.Success || schemaResp.Context.TableCount != 2 {
		t.Fatalf("schema response = %+v", schemaResp)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/mcp/context/"+connected.SessionID, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("context status = %d", rr.Code)
	}
	var snapshot session.Context
	_ = json.Unmarshal(rr.Body.Bytes(), &snapshot)
	if !snapshot.SchemaLoaded || snapshot.TableNames[0] != "orders" || snapshot.DBType != "sqlite" {
		t.Fatalf("context = %+v", snapshot)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/mcp/sessions", nil))
	var listed struct {
		Sessions []session.Summary `json:"sessions"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &listed)
	if len(listed.Sessions) != 1 || listed.Sessions[0].SessionID != connected.SessionID || !listed.Sessions[0].Connected {
		t.Fatalf("sessions = %+v", listed.Sessions)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/mcp/session/"+connected.SessionID, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/mcp/context/"+connected.SessionID, nil),
		httptest.NewRequest(http.MethodDelete, "/mcp/session/"+connected.SessionID, nil),
	} {
		rr = httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusNotFound {
			t.Fatalf("%s after delete status = %d", req.Method, rr.Code)
		}
		var envelope map[string]any
		_ = json.Unmarshal(rr.Body.Bytes(), &envelope)
		if envelope["error_code"] != "SESSION_NOT_FOUND" {
			t.Fatalf("envelope = %v", envelope)
		}
	}

	fresh := postAction(t, h, map[string]any{"action": "get_status", "session_id": connected.SessionID})
	if !fresh.Success || fresh.SessionID == connected.SessionID || fresh.Context.Connected {
		t.Fatalf("status after delete = %+v", fresh)
	}
}

func TestActionRejectsMalformedBody(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{Dispatcher: newDispatcher(t)})

	for _, body := range []string{`{"action":`, `{"action":"chat","extra":1}`, `{"parameters":{}}`} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/mcp/action", bytes.NewBufferString(body)))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %s status = %d", body, rr.Code)
		}
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	cfg := testConfig(t, map[string]string{"MYQUERY_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("k1:cli:actions")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}
	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Dispatcher:     newDispatcher(t),
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/mcp/action", bytes.NewBufferString(`{"action":"get_status"}`)))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauth status = %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/mcp/action", bytes.NewBufferString(`{"action":"get_status"}`))
	req.Header.Set("X-API-Key", "k1")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("auth status = %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/mcp/sessions", nil)
	req.Header.Set("X-API-Key", "k1")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("sessions without admin scope status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("health should stay public, status = %d", rr.Code)
	}
}

func TestAuthRequiredWithoutMiddlewareFailsClosed(t *testing.T) {
	h := NewHandler(testConfig(t, map[string]string{"MYQUERY_AUTH_REQUIRED": "true"}), Dependencies{Dispatcher: newDispatcher(t)})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/mcp/sessions", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{Dispatcher: newDispatcher(t)})
	req := httptest.NewRequest(http.MethodOptions, "/mcp/action", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
}

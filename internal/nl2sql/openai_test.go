package nl2sql

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStripMarkdownSQL(t *testing.T) {
	tests := map[string]string{
		"```sql\nSELECT 1;\n```": "SELECT 1;",
		"```\nSELECT 2\n```":     "SELECT 2",
		"  SELECT 3  ":           "SELECT 3",
	}
	for in, want := range tests {
		if got := stripMarkdownSQL(in); got != want {
			t.Fatalf("stripMarkdownSQL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewOpenAITranslatorRequiresKey(t *testing.T) {
	_, err := NewOpenAITranslator(OpenAIConfig{BaseURL: "https://api.example.com"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("NewOpenAITranslator() error = %v", err)
	}
	if _, err := NewOpenAITranslator(OpenAIConfig{APIKey: "k"}); err == nil {
		t.Fatal("expected base URL error")
	}
}

func TestTranslateSendsSchemaAndHistory(t *testing.T) {
	var captured struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"` + "```sql\\nSELECT name FROM users LIMIT 10;\\n```" + `"}}]}`))
	}))
	defer srv.Close()

	translator, err := NewOpenAITranslator(OpenAIConfig{BaseURL: srv.URL + "/", APIKey: "secret", Model: "m1"})
	if err != nil {
		t.Fatalf("NewOpenAITranslator() error = %v", err)
	}
	result, err := translator.Translate(context.Background(), Request{
		NaturalLanguage: "list users",
		Dialect:         "sqlite",
		Schema:          "Table: users\nColumns: id (INTEGER), name (TEXT)",
		History:         "User: hi",
	})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if result.SQL != "SELECT name FROM users LIMIT 10;" {
		t.Fatalf("SQL = %q", result.SQL)
	}
	if result.Model != "m1" || captured.Model != "m1" {
		t.Fatalf("model = %q / %q", result.Model, captured.Model)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v", captured.Messages)
	}
	if !strings.Contains(captured.Messages[0].Content, "sqlite") {
		t.Fatalf("system prompt = %q", captured.Messages[0].Content)
	}
	user := captured.Messages[1].Content
	for _, want := range []string{"Table: users", "PREVIOUS CONTEXT:\nUser: hi", "USER REQUEST: list users"} {
		if !strings.Contains(user, want) {
			t.Fatalf("user prompt missing %q:\n%s", want, user)
		}
	}
}

func TestCompleteReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	translator, err := NewOpenAITranslator(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("NewOpenAITranslator() error = %v", err)
	}
	_, err = translator.Complete(context.Background(), "", "hello")
	if err == nil || !strings.Contains(err.Error(), "status=429") {
		t.Fatalf("Complete() error = %v", err)
	}
}

func TestTranslateRejectsEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	translator, err := NewOpenAITranslator(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("NewOpenAITranslator() error = %v", err)
	}
	if _, err := translator.Translate(context.Background(), Request{NaturalLanguage: "x"}); err == nil {
		t.Fatal("expected error for empty choices")
	}
	if _, err := translator.Translate(context.Background(), Request{}); err == nil {
		t.Fatal("expected error for empty request")
	}
}

package nl2sql

import (
	"context"
	"errors"
)

var ErrNotConfigured = errors.New("LLM not configured: set MYQUERY_AI_API_KEY or OPENAI_API_KEY")

type Request struct {
	NaturalLanguage string `json:"natural_language"`
	// Dialect is the database type the SQL must run on.
	Dialect string `json:"dialect"`
	Schema  string `json:"schema"`
	History string `json:"history,omitempty"`
}

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

// Completer is the free-form side of the model, used for analysis, advice
// and chat.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

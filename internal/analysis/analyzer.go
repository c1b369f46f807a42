// Package analysis turns query results and SQL text into insight: model
// written commentary, null statistics, static review and chart intent.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/myquery/myquery/internal/nl2sql"
	"github.com/myquery/myquery/internal/query"
)

const (
	MsgQueryFailed = "Cannot analyze data: query execution failed."
	MsgNoData      = "No data to analyze."

	sampleRows = 10
)

type Analyzer struct {
	completer nl2sql.Completer
}

// NewAnalyzer accepts a nil completer; Analyze then reports ErrNotConfigured
// for results that would need the model.
func NewAnalyzer(completer nl2sql.Completer) *Analyzer {
	return &Analyzer{completer: completer}
}

func (a *Analyzer) Analyze(ctx context.Context, question string, result query.Result) (string, error) {
	if !result.Success {
		return MsgQueryFailed, nil
	}
	if len(result.Data) == 0 {
		return MsgNoData, nil
	}
	if a == nil || a.completer == nil {
		return "", nl2sql.ErrNotConfigured
	}

	sample := result.Data
	if len(sample) > sampleRows {
		sample = sample[:sampleRows]
	}
	sampleJSON, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal sample rows: %w", err)
	}

	user := fmt.Sprintf("USER QUESTION: %s\n\nQUERY RESULTS:\nColumns: %s\nRow Count: %d\n\nData Sample:\n%s\n\n"+
		"Provide a direct answer to the question, the key insights, notable patterns and any recommendations. "+
		"Keep it concise and practical.",
		strings.TrimSpace(question),
		strings.Join(result.Columns, ", "),
		result.RowCount,
		string(sampleJSON),
	)
	answer, err := a.completer.Complete(ctx, "You are a data analyst explaining SQL query results.", user)
	if err != nil {
		return "", fmt.Errorf("analyze results: %w", err)
	}
	return answer, nil
}

// Advise asks the model for optimization advice on top of the static review.
func (a *Analyzer) Advise(ctx context.Context, sqlText, schemaDescription string) (string, error) {
	if a == nil || a.completer == nil {
		return "", nl2sql.ErrNotConfigured
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SQL Query:\n%s\n", strings.TrimSpace(sqlText))
	if schemaDescription != "" {
		fmt.Fprintf(&b, "\nDatabase Schema:\n%s\n", schemaDescription)
	}
	b.WriteString("\nGive performance suggestions, index recommendations and rewrites with their expected impact. Be concise.")
	answer, err := a.completer.Complete(ctx, "You are a SQL performance reviewer.", b.String())
	if err != nil {
		return "", fmt.Errorf("optimization advice: %w", err)
	}
	return answer, nil
}

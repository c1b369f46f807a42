// Package query runs one SQL statement against one connection and shapes the
// outcome into a success/failure result value.
package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/myquery/myquery/internal/observability"
)

const DefaultMaxRows = 100

var ErrDestructiveStatement = errors.New("destructive statement rejected")

// destructiveKeywords is a leading-keyword heuristic, not a parser. Comments,
// CTEs or stacked statements can get past it.
var destructiveKeywords = []string{"DROP", "DELETE", "TRUNCATE", "UPDATE", "ALTER", "CREATE"}

type Row map[string]any

// Result is either a success (Columns, Data, RowCount) or a failure (Error).
type Result struct {
	Success   bool
	Query     string
	Columns   []string
	Data      []Row
	RowCount  int
	Truncated bool
	Error     string
	Blocked   bool
}

func Failure(sqlText string, err error) Result {
	return Result{Success: false, Query: sqlText, Error: err.Error(), Blocked: errors.Is(err, ErrDestructiveStatement)}
}

type successJSON struct {
	Success   bool     `json:"success"`
	Query     string   `json:"query,omitempty"`
	Columns   []string `json:"columns"`
	Data      []Row    `json:"data"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated"`
}

type failureJSON struct {
	Success bool   `json:"success"`
	Query   string `json:"query,omitempty"`
	Error   string `json:"error"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	if !r.Success {
		return json.Marshal(failureJSON{Success: false, Query: r.Query, Error: r.Error})
	}
	columns := r.Columns
	if columns == nil {
		columns = []string{}
	}
	data := r.Data
	if data == nil {
		data = []Row{}
	}
	return json.Marshal(successJSON{
		Success:   true,
		Query:     r.Query,
		Columns:   columns,
		Data:      data,
		RowCount:  r.RowCount,
		Truncated: r.Truncated,
	})
}

func (r *Result) UnmarshalJSON(body []byte) error {
	var raw struct {
		Success   bool     `json:"success"`
		Query     string   `json:"query"`
		Columns   []string `json:"columns"`
		Data      []Row    `json:"data"`
		RowCount  int      `json:"row_count"`
		Truncated bool     `json:"truncated"`
		Error     string   `json:"error"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return err
	}
	*r = Result{
		Success:   raw.Success,
		Query:     raw.Query,
		Columns:   raw.Columns,
		Data:      raw.Data,
		RowCount:  raw.RowCount,
		Truncated: raw.Truncated,
		Error:     raw.Error,
	}
	return nil
}

type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type Options struct {
	// MaxRows caps fetched rows; zero or negative means no cap.
	MaxRows int
	// AllowDestructive skips the leading-keyword guard.
	AllowDestructive bool
}

// IsDestructive reports the matched keyword when the trimmed, uppercased
// statement starts with one of the destructive keywords.
func IsDestructive(sqlText string) (string, bool) {
	upper := strings.ToUpper(strings.TrimSpace(sqlText))
	for _, keyword := range destructiveKeywords {
		if strings.HasPrefix(upper, keyword) {
			return keyword, true
		}
	}
	return "", false
}

func Guard(sqlText string) error {
	if keyword, ok := IsDestructive(sqlText); ok {
		return fmt.Errorf("%w: %s statements are not allowed", ErrDestructiveStatement, keyword)
	}
	return nil
}

// Execute never returns an error; every failure ends up in Result.Error.
func Execute(ctx context.Context, db Queryer, sqlText string, opts Options) Result {
	result := execute(ctx, db, sqlText, opts)
	observability.ObserveQuery(result.Success, result.Blocked)
	return result
}

func execute(ctx context.Context, db Queryer, sqlText string, opts Options) Result {
	if strings.TrimSpace(sqlText) == "" {
		return Failure(sqlText, fmt.Errorf("sql is required"))
	}
	if !opts.AllowDestructive {
		if err := Guard(sqlText); err != nil {
			return Failure(sqlText, err)
		}
	}
	if db == nil {
		return Failure(sqlText, fmt.Errorf("not connected to a database"))
	}

	rows, err := db.QueryContext(ctx, stripTrailingSemicolons(sqlText))
	if err != nil {
		return Failure(sqlText, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Failure(sqlText, fmt.Errorf("query columns: %w", err))
	}

	data := make([]Row, 0)
	for rows.Next() {
		if opts.MaxRows > 0 && len(data) >= opts.MaxRows {
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Failure(sqlText, fmt.Errorf("scan row: %w", err))
		}
		data = append(data, toRow(columns, values))
	}
	if err := rows.Err(); err != nil {
		return Failure(sqlText, fmt.Errorf("iterate rows: %w", err))
	}

	return Result{
		Success:  true,
		Query:    sqlText,
		Columns:  columns,
		Data:     data,
		RowCount: len(data),
		// exactly MaxRows rows is indistinguishable from a cut result
		Truncated: opts.MaxRows > 0 && len(data) >= opts.MaxRows,
	}
}

func toRow(columns []string, values []any) Row {
	row := make(Row, len(columns))
	for i, column := range columns {
		row[column] = NormalizeValue(values[i])
	}
	return row
}

func NormalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	default:
		return typed
	}
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

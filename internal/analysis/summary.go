package analysis

import "github.com/myquery/myquery/internal/query"

type Summary struct {
	RowCount    int            `json:"row_count"`
	ColumnCount int            `json:"column_count,omitempty"`
	Columns     []string       `json:"columns,omitempty"`
	NullCounts  map[string]int `json:"null_counts,omitempty"`
}

// Summarize counts missing values per column. Empty strings count as missing.
func Summarize(result query.Result) Summary {
	if len(result.Data) == 0 {
		return Summary{}
	}
	out := Summary{
		RowCount:    len(result.Data),
		ColumnCount: len(result.Columns),
		Columns:     result.Columns,
		NullCounts:  make(map[string]int, len(result.Columns)),
	}
	for _, col := range result.Columns {
		out.NullCounts[col] = 0
	}
	for _, row := range result.Data {
		for _, col := range result.Columns {
			value, ok := row[col]
			if !ok || value == nil {
				out.NullCounts[col]++
				continue
			}
			if s, isString := value.(string); isString && s == "" {
				out.NullCounts[col]++
			}
		}
	}
	return out
}

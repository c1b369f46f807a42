package multidb

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/myquery/myquery/internal/observability"
	"github.com/myquery/myquery/internal/query"
)

// SourceColumn tags every union row with the connection it came from.
const SourceColumn = "_source_db"

type Mode string

const (
	ModeNone  Mode = ""
	ModeUnion Mode = "union"
	ModeJoin  Mode = "join"
)

var (
	ErrNoSuccessfulResults = errors.New("No successful results to merge")
	ErrMergeKeyRequired    = errors.New("merge key is required for join")
	ErrMergeKeyMissing     = errors.New("merge key missing")
	ErrUnknownMergeMode    = errors.New("unknown merge mode")
	ErrColumnCollision     = errors.New("merged column name collision")
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeNone:
		return ModeNone, nil
	case ModeUnion:
		return ModeUnion, nil
	case ModeJoin:
		return ModeJoin, nil
	default:
		return ModeNone, fmt.Errorf("%w: %q", ErrUnknownMergeMode, raw)
	}
}

type MergeMetadata struct {
	RowsPerSource map[string]int `json:"rows_per_source"`
}

type MergedDataset struct {
	Success         bool          `json:"success"`
	Merged          bool          `json:"merged"`
	MergeType       Mode          `json:"merge_type"`
	MergeKey        string        `json:"merge_key,omitempty"`
	Columns         []string      `json:"columns"`
	Data            []query.Row   `json:"data"`
	RowCount        int           `json:"row_count"`
	SourceDatabases []string      `json:"source_databases"`
	Metadata        MergeMetadata `json:"metadata"`
}

// Merge reduces the successful entries of results to one dataset. Failed
// entries never participate.
func Merge(results Results, mode Mode, key string) (MergedDataset, error) {
	ok := results.Succeeded()
	if len(ok) == 0 {
		return MergedDataset{}, ErrNoSuccessfulResults
	}
	switch mode {
	case ModeUnion:
		return union(ok), nil
	case ModeJoin:
		return join(ok, key)
	default:
		return MergedDataset{}, fmt.Errorf("%w: %q", ErrUnknownMergeMode, mode)
	}
}

// MergeOrFallback never loses data: on any merge failure, including a panic,
// the caller still gets the per-source results plus the reason.
func MergeOrFallback(results Results, mode Mode, key string) (outcome Outcome) {
	outcome = Outcome{Results: results}
	defer func() {
		if recovered := recover(); recovered != nil {
			outcome = Outcome{Results: results, MergeError: fmt.Sprintf("merge failed: %v", recovered)}
			observability.ObserveMerge(string(mode), false)
		}
	}()

	merged, err := Merge(results, mode, key)
	observability.ObserveMerge(string(mode), err == nil)
	if err != nil {
		outcome.MergeError = err.Error()
		return outcome
	}
	outcome.Merged = &merged
	return outcome
}

func newDataset(mode Mode, sources Results) MergedDataset {
	ds := MergedDataset{
		Success:         true,
		Merged:          true,
		MergeType:       mode,
		SourceDatabases: make([]string, 0, len(sources)),
		Metadata:        MergeMetadata{RowsPerSource: make(map[string]int, len(sources))},
	}
	for _, src := range sources {
		ds.SourceDatabases = append(ds.SourceDatabases, src.Name)
		ds.Metadata.RowsPerSource[src.Name] = len(src.Data)
	}
	return ds
}

func union(sources Results) MergedDataset {
	ds := newDataset(ModeUnion, sources)

	set := map[string]struct{}{}
	for _, src := range sources {
		for _, col := range src.Columns {
			if col != SourceColumn {
				set[col] = struct{}{}
			}
		}
	}
	columns := make([]string, 0, len(set))
	for col := range set {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	ds.Columns = append([]string{SourceColumn}, columns...)
	ds.Data = make([]query.Row, 0)
	for _, src := range sources {
		for _, row := range src.Data {
			out := make(query.Row, len(ds.Columns))
			out[SourceColumn] = src.Name
			for _, col := range columns {
				value, ok := row[col]
				if !ok {
					value = nil
				}
				out[col] = value
			}
			ds.Data = append(ds.Data, out)
		}
	}
	ds.RowCount = len(ds.Data)
	return ds
}

// join chains full outer joins over key in source order. Non-key columns are
// suffixed with the source name. Output rows keep the left side order first,
// followed by right rows that matched nothing. NULL keys never match.
func join(sources Results, key string) (MergedDataset, error) {
	if strings.TrimSpace(key) == "" {
		return MergedDataset{}, ErrMergeKeyRequired
	}
	for _, src := range sources {
		if !containsColumn(src.Columns, key) {
			return MergedDataset{}, fmt.Errorf("%w: column %q not found in source %q", ErrMergeKeyMissing, key, src.Name)
		}
	}

	ds := newDataset(ModeJoin, sources)
	ds.MergeKey = key
	ds.Columns = []string{key}

	used := map[string]string{key: ""}
	var acc []query.Row
	for i, src := range sources {
		renamed := make([]string, 0, len(src.Columns))
		mapping := make(map[string]string, len(src.Columns))
		for _, col := range src.Columns {
			if col == key {
				continue
			}
			name := col + "_" + src.Name
			if owner, taken := used[name]; taken {
				if owner == "" {
					return MergedDataset{}, fmt.Errorf("%w: column %q of source %q renames to merge key %q", ErrColumnCollision, col, src.Name, key)
				}
				return MergedDataset{}, fmt.Errorf("%w: column %q of source %q renames to %q, already produced by source %q", ErrColumnCollision, col, src.Name, name, owner)
			}
			used[name] = src.Name
			mapping[col] = name
			renamed = append(renamed, name)
		}
		right := make([]query.Row, 0, len(src.Data))
		for _, row := range src.Data {
			out := make(query.Row, len(renamed)+1)
			out[key] = row[key]
			for col, name := range mapping {
				out[name] = row[col]
			}
			right = append(right, out)
		}

		if i == 0 {
			acc = right
		} else {
			acc = outerJoin(acc, right, key, ds.Columns, renamed)
		}
		ds.Columns = append(ds.Columns, renamed...)
	}

	for _, row := range acc {
		for _, col := range ds.Columns {
			if _, ok := row[col]; !ok {
				row[col] = nil
			}
		}
	}
	ds.Data = acc
	ds.RowCount = len(acc)
	return ds, nil
}

func outerJoin(left, right []query.Row, key string, leftColumns, rightColumns []string) []query.Row {
	index := make(map[string][]int, len(right))
	for j, row := range right {
		if k, ok := joinKey(row[key]); ok {
			index[k] = append(index[k], j)
		}
	}

	matched := make([]bool, len(right))
	out := make([]query.Row, 0, len(left)+len(right))
	for _, l := range left {
		k, ok := joinKey(l[key])
		hits := index[k]
		if !ok || len(hits) == 0 {
			row := copyRow(l)
			for _, col := range rightColumns {
				row[col] = nil
			}
			out = append(out, row)
			continue
		}
		for _, j := range hits {
			matched[j] = true
			row := copyRow(l)
			for _, col := range rightColumns {
				row[col] = right[j][col]
			}
			out = append(out, row)
		}
	}
	for j, r := range right {
		if matched[j] {
			continue
		}
		row := copyRow(r)
		for _, col := range leftColumns {
			if col == key {
				continue
			}
			row[col] = nil
		}
		out = append(out, row)
	}
	return out
}

// joinKey normalises a key so values that compare equal in SQL land on the
// same string: integral floats equal integers and []byte equals string.
func joinKey(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return "s:" + v, true
	case []byte:
		return "s:" + string(v), true
	case bool:
		return "b:" + strconv.FormatBool(v), true
	case int:
		return "i:" + strconv.FormatInt(int64(v), 10), true
	case int8:
		return "i:" + strconv.FormatInt(int64(v), 10), true
	case int16:
		return "i:" + strconv.FormatInt(int64(v), 10), true
	case int32:
		return "i:" + strconv.FormatInt(int64(v), 10), true
	case int64:
		return "i:" + strconv.FormatInt(v, 10), true
	case uint:
		return "i:" + strconv.FormatUint(uint64(v), 10), true
	case uint8:
		return "i:" + strconv.FormatUint(uint64(v), 10), true
	case uint16:
		return "i:" + strconv.FormatUint(uint64(v), 10), true
	case uint32:
		return "i:" + strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return "i:" + strconv.FormatUint(v, 10), true
	case float32:
		return floatKey(float64(v))
	case float64:
		return floatKey(v)
	case time.Time:
		return "t:" + v.UTC().Format(time.RFC3339Nano), true
	default:
		return fmt.Sprintf("x:%v", v), true
	}
}

func floatKey(f float64) (string, bool) {
	if math.IsNaN(f) {
		return "", false
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
		return "i:" + strconv.FormatInt(int64(f), 10), true
	}
	return "f:" + strconv.FormatFloat(f, 'g', -1, 64), true
}

func copyRow(row query.Row) query.Row {
	out := make(query.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func containsColumn(columns []string, name string) bool {
	for _, col := range columns {
		if col == name {
			return true
		}
	}
	return false
}

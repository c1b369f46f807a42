package multidb

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myquery/myquery/internal/query"
)

func successResult(columns []string, rows []query.Row) query.Result {
	if rows == nil {
		rows = []query.Row{}
	}
	return query.Result{Success: true, Columns: columns, Data: rows, RowCount: len(rows)}
}

func failureResult(msg string) query.Result {
	return query.Result{Success: false, Error: msg}
}

func idRows(ids ...int64) []query.Row {
	rows := make([]query.Row, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, query.Row{"id": id})
	}
	return rows
}

func TestUnionRowCountIsSumOfSources(t *testing.T) {
	results := Results{
		{Name: "a", Result: successResult([]string{"id"}, idRows(1, 2, 3))},
		{Name: "b", Result: successResult([]string{"id"}, idRows(4, 5, 6, 7, 8))},
	}

	merged, err := Merge(results, ModeUnion, "")
	require.NoError(t, err)
	assert.Equal(t, 8, merged.RowCount)
	assert.Len(t, merged.Data, 8)
	for _, row := range merged.Data {
		assert.Contains(t, []any{"a", "b"}, row[SourceColumn])
	}
	assert.Equal(t, map[string]int{"a": 3, "b": 5}, merged.Metadata.RowsPerSource)
	assert.Equal(t, []string{"a", "b"}, merged.SourceDatabases)
	assert.Equal(t, ModeUnion, merged.MergeType)
}

func TestUnionColumnSuperset(t *testing.T) {
	results := Results{
		{Name: "A", Result: successResult([]string{"id", "name"}, []query.Row{{"id": int64(1), "name": "ann"}})},
		{Name: "B", Result: successResult([]string{"id", "email"}, []query.Row{{"id": int64(2), "email": "b@example.com"}})},
	}

	merged, err := Merge(results, ModeUnion, "")
	require.NoError(t, err)
	assert.Equal(t, []string{SourceColumn, "email", "id", "name"}, merged.Columns)
	for _, row := range merged.Data {
		assert.Len(t, row, 4)
		for _, col := range merged.Columns {
			_, ok := row[col]
			assert.True(t, ok, "row %v lacks %s", row, col)
		}
	}
	assert.Equal(t, query.Row{SourceColumn: "A", "email": nil, "id": int64(1), "name": "ann"}, merged.Data[0])
	assert.Equal(t, query.Row{SourceColumn: "B", "email": "b@example.com", "id": int64(2), "name": nil}, merged.Data[1])
}

func TestUnionPreservesPerSourceOrderInContiguousBlocks(t *testing.T) {
	results := Results{
		{Name: "a", Result: successResult([]string{"id"}, idRows(3, 1))},
		{Name: "b", Result: successResult([]string{"id"}, idRows(9, 2))},
	}
	merged, err := Merge(results, ModeUnion, "")
	require.NoError(t, err)

	got := make([]any, 0, len(merged.Data))
	for _, row := range merged.Data {
		got = append(got, row["id"])
	}
	assert.Equal(t, []any{int64(3), int64(1), int64(9), int64(2)}, got)
}

func TestUnionShadowsSourceColumnFromData(t *testing.T) {
	results := Results{
		{Name: "a", Result: successResult([]string{"_source_db", "id"}, []query.Row{{"_source_db": "fake", "id": int64(1)}})},
	}
	merged, err := Merge(results, ModeUnion, "")
	require.NoError(t, err)
	assert.Equal(t, []string{SourceColumn, "id"}, merged.Columns)
	assert.Equal(t, "a", merged.Data[0][SourceColumn])
}

func TestMergeSkipsFailedSources(t *testing.T) {
	results := Results{
		{Name: "ok", Result: successResult([]string{"id"}, idRows(1))},
		{Name: "down", Result: failureResult("connection refused")},
	}
	merged, err := Merge(results, ModeUnion, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, merged.SourceDatabases)
	assert.Equal(t, 1, merged.RowCount)
	_, listed := merged.Metadata.RowsPerSource["down"]
	assert.False(t, listed)
}

func TestMergeWithNoSuccessfulResultsFails(t *testing.T) {
	results := Results{
		{Name: "a", Result: failureResult("x")},
		{Name: "b", Result: failureResult("y")},
	}
	for _, mode := range []Mode{ModeUnion, ModeJoin} {
		_, err := Merge(results, mode, "id")
		require.ErrorIs(t, err, ErrNoSuccessfulResults)
		assert.Equal(t, "No successful results to merge", err.Error())
	}
	_, err := Merge(nil, ModeUnion, "")
	require.ErrorIs(t, err, ErrNoSuccessfulResults)
}

func TestJoinMissingKeyFailsNamingSource(t *testing.T) {
	results := Results{
		{Name: "A", Result: successResult([]string{"id", "x"}, []query.Row{{"id": int64(1), "x": "a"}})},
		{Name: "B", Result: successResult([]string{"user_id", "y"}, []query.Row{{"user_id": int64(1), "y": "b"}})},
	}
	_, err := Merge(results, ModeJoin, "id")
	require.ErrorIs(t, err, ErrMergeKeyMissing)
	assert.Contains(t, err.Error(), `"B"`)
	assert.Contains(t, err.Error(), `"id"`)

	_, err = Merge(results, ModeJoin, " ")
	require.ErrorIs(t, err, ErrMergeKeyRequired)
}

func TestJoinOuterMatch(t *testing.T) {
	results := Results{
		{Name: "A", Result: successResult([]string{"id", "x"}, []query.Row{
			{"id": int64(1), "x": "a"},
			{"id": int64(2), "x": "b"},
		})},
		{Name: "B", Result: successResult([]string{"id", "y"}, []query.Row{
			{"id": int64(2), "y": "c"},
			{"id": int64(3), "y": "d"},
		})},
	}

	merged, err := Merge(results, ModeJoin, "id")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "x_A", "y_B"}, merged.Columns)
	assert.Equal(t, 3, merged.RowCount)
	assert.Equal(t, []query.Row{
		{"id": int64(1), "x_A": "a", "y_B": nil},
		{"id": int64(2), "x_A": "b", "y_B": "c"},
		{"id": int64(3), "x_A": nil, "y_B": "d"},
	}, merged.Data)
	assert.Equal(t, "id", merged.MergeKey)
	assert.Equal(t, map[string]int{"A": 2, "B": 2}, merged.Metadata.RowsPerSource)
}

func TestJoinChainsAcrossThreeSources(t *testing.T) {
	results := Results{
		{Name: "a", Result: successResult([]string{"k", "v"}, []query.Row{{"k": "x", "v": 1}})},
		{Name: "b", Result: successResult([]string{"k", "v"}, []query.Row{{"k": "y", "v": 2}})},
		{Name: "c", Result: successResult([]string{"k", "v"}, []query.Row{{"k": "x", "v": 3}, {"k": "z", "v": 4}})},
	}
	merged, err := Merge(results, ModeJoin, "k")
	require.NoError(t, err)
	assert.Equal(t, []string{"k", "v_a", "v_b", "v_c"}, merged.Columns)
	assert.Equal(t, []query.Row{
		{"k": "x", "v_a": 1, "v_b": nil, "v_c": 3},
		{"k": "y", "v_a": nil, "v_b": 2, "v_c": nil},
		{"k": "z", "v_a": nil, "v_b": nil, "v_c": 4},
	}, merged.Data)
}

func TestJoinDuplicateKeysProduceEveryPairing(t *testing.T) {
	results := Results{
		{Name: "a", Result: successResult([]string{"id", "v"}, []query.Row{{"id": int64(1), "v": "a1"}, {"id": int64(1), "v": "a2"}})},
		{Name: "b", Result: successResult([]string{"id", "w"}, []query.Row{{"id": int64(1), "w": "b1"}, {"id": int64(1), "w": "b2"}})},
	}
	merged, err := Merge(results, ModeJoin, "id")
	require.NoError(t, err)
	assert.Equal(t, 4, merged.RowCount)
}

func TestJoinNullKeysNeverMatch(t *testing.T) {
	results := Results{
		{Name: "a", Result: successResult([]string{"id", "v"}, []query.Row{{"id": nil, "v": "left"}})},
		{Name: "b", Result: successResult([]string{"id", "w"}, []query.Row{{"id": nil, "w": "right"}})},
	}
	merged, err := Merge(results, ModeJoin, "id")
	require.NoError(t, err)
	assert.Equal(t, []query.Row{
		{"id": nil, "v_a": "left", "w_b": nil},
		{"id": nil, "v_a": nil, "w_b": "right"},
	}, merged.Data)
}

func TestJoinNormalisesNumericAndByteKeys(t *testing.T) {
	results := Results{
		{Name: "pg", Result: successResult([]string{"id", "v"}, []query.Row{{"id": int64(7), "v": 1}, {"id": "k", "v": 2}})},
		{Name: "my", Result: successResult([]string{"id", "w"}, []query.Row{{"id": float64(7), "w": 3}, {"id": []byte("k"), "w": 4}})},
	}
	merged, err := Merge(results, ModeJoin, "id")
	require.NoError(t, err)
	assert.Equal(t, 2, merged.RowCount)
}

func TestJoinRejectsRenameOntoMergeKey(t *testing.T) {
	results := Results{
		{Name: "a", Result: successResult([]string{"id_a", "id"}, []query.Row{{"id_a": int64(1), "id": "x"}})},
		{Name: "b", Result: successResult([]string{"id_a", "v"}, []query.Row{{"id_a": int64(1), "v": "y"}})},
	}
	_, err := Merge(results, ModeJoin, "id_a")
	require.ErrorIs(t, err, ErrColumnCollision)
	assert.Contains(t, err.Error(), `"a"`)
	assert.Contains(t, err.Error(), `"id"`)

	out := MergeOrFallback(results, ModeJoin, "id_a")
	assert.Nil(t, out.Merged)
	assert.Contains(t, out.MergeError, "collision")
	assert.Equal(t, results, out.Results)
}

func TestJoinRejectsRenameCollisionAcrossSources(t *testing.T) {
	results := Results{
		{Name: "a", Result: successResult([]string{"id", "x_b"}, []query.Row{{"id": int64(1), "x_b": 1}})},
		{Name: "b_a", Result: successResult([]string{"id", "x"}, []query.Row{{"id": int64(1), "x": 2}})},
	}
	_, err := Merge(results, ModeJoin, "id")
	require.ErrorIs(t, err, ErrColumnCollision)
	assert.Contains(t, err.Error(), `"x_b_a"`)
}

func TestMergeOrFallbackKeepsResultsOnError(t *testing.T) {
	results := Results{
		{Name: "a", Result: successResult([]string{"x"}, []query.Row{{"x": 1}})},
	}
	out := MergeOrFallback(results, ModeJoin, "id")
	assert.Nil(t, out.Merged)
	assert.Contains(t, out.MergeError, "merge key missing")
	assert.Equal(t, results, out.Results)

	out = MergeOrFallback(results, ModeUnion, "")
	require.NotNil(t, out.Merged)
	assert.Empty(t, out.MergeError)
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode(" Union ")
	require.NoError(t, err)
	assert.Equal(t, ModeUnion, mode)

	mode, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeNone, mode)

	_, err = ParseMode("intersect")
	assert.True(t, errors.Is(err, ErrUnknownMergeMode))
}

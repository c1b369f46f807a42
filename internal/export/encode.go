package export

import (
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"
)

func Encode(w io.Writer, format Format, table Table, at time.Time) error {
	switch format {
	case FormatCSV:
		return encodeCSV(w, table)
	case FormatJSON:
		return encodeJSON(w, table, at)
	case FormatParquet:
		return encodeParquet(w, table)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func encodeCSV(w io.Writer, table Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(table.Columns); err != nil {
		return err
	}
	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i, col := range table.Columns {
			record[i], _ = cellText(row[col])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type jsonMetadata struct {
	ExportedAt time.Time `json:"exported_at"`
	RowCount   int       `json:"row_count"`
	Columns    []string  `json:"columns"`
}

type jsonDocument struct {
	Metadata jsonMetadata `json:"metadata"`
	Data     []any        `json:"data"`
}

func encodeJSON(w io.Writer, table Table, at time.Time) error {
	doc := jsonDocument{
		Metadata: jsonMetadata{ExportedAt: at, RowCount: len(table.Rows), Columns: table.Columns},
		Data:     make([]any, 0, len(table.Rows)),
	}
	for _, row := range table.Rows {
		doc.Data = append(doc.Data, row)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// encodeParquet stores every column as an optional string. Result sets come
// from arbitrary engines, so values are rendered the same way as in CSV and
// SQL NULL becomes a parquet null.
func encodeParquet(w io.Writer, table Table) error {
	group := make(parquet.Group, len(table.Columns))
	for _, col := range table.Columns {
		group[col] = parquet.Optional(parquet.String())
	}
	schema := parquet.NewSchema("export", group)

	// Leaf columns are laid out in sorted name order.
	ordered := append([]string(nil), table.Columns...)
	sort.Strings(ordered)

	writer := parquet.NewWriter(w, schema)
	rows := make([]parquet.Row, 0, len(table.Rows))
	for _, source := range table.Rows {
		row := make(parquet.Row, len(ordered))
		for i, col := range ordered {
			text, ok := cellText(source[col])
			if !ok {
				row[i] = parquet.NullValue().Level(0, 0, i)
				continue
			}
			row[i] = parquet.ByteArrayValue([]byte(text)).Level(0, 1, i)
		}
		rows = append(rows, row)
	}
	if _, err := writer.WriteRows(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

// cellText renders a result value for text based formats. The bool is false
// for SQL NULL.
func cellText(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case []byte:
		return base64.StdEncoding.EncodeToString(v), true
	case time.Time:
		return v.Format(time.RFC3339Nano), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return fmt.Sprint(v), true
	}
}

// Package export writes query results and merged datasets to files in CSV,
// JSON or Parquet form, either on local disk or in an object store.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/myquery/myquery/internal/multidb"
	"github.com/myquery/myquery/internal/observability"
	"github.com/myquery/myquery/internal/query"
	"github.com/myquery/myquery/internal/storage"
)

type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// AllFormats is what "all" expands to.
var AllFormats = []Format{FormatCSV, FormatJSON, FormatParquet}

var (
	ErrQueryFailed   = errors.New("cannot export: query execution failed")
	ErrNoData        = errors.New("no data to export")
	ErrUnknownFormat = errors.New("unknown export format")
)

func (f Format) Ext() string { return string(f) }

func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatJSON:
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// ParseFormats accepts a single format, a comma separated list or "all".
// Duplicates collapse; order follows first appearance.
func ParseFormats(raw string) ([]Format, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" || raw == "all" {
		return append([]Format(nil), AllFormats...), nil
	}
	seen := map[Format]bool{}
	var out []Format
	for _, part := range strings.Split(raw, ",") {
		f := Format(strings.TrimSpace(part))
		switch f {
		case FormatCSV, FormatJSON, FormatParquet:
		case "all":
			return append([]Format(nil), AllFormats...), nil
		default:
			return nil, fmt.Errorf("%w: %q (use csv, json, parquet or all)", ErrUnknownFormat, part)
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out, nil
}

// Table is the shape every exporter consumes: ordered columns plus rows.
type Table struct {
	Columns []string
	Rows    []query.Row
}

func FromResult(result query.Result) (Table, error) {
	if !result.Success {
		return Table{}, ErrQueryFailed
	}
	if len(result.Data) == 0 {
		return Table{}, ErrNoData
	}
	return Table{Columns: result.Columns, Rows: result.Data}, nil
}

func FromMerged(dataset multidb.MergedDataset) (Table, error) {
	if !dataset.Success {
		return Table{}, ErrQueryFailed
	}
	if len(dataset.Data) == 0 {
		return Table{}, ErrNoData
	}
	return Table{Columns: dataset.Columns, Rows: dataset.Data}, nil
}

// File describes one written export.
type File struct {
	Format   Format `json:"format"`
	Location string `json:"location"`
	Size     int64  `json:"size"`
	ETag     string `json:"etag,omitempty"`
}

// Target persists encoded exports. Write reports where the file ended up.
type Target interface {
	Write(ctx context.Context, name string, format Format, body []byte, at time.Time) (Stored, error)
}

type Exporter struct {
	target Target
	logger *slog.Logger
	now    func() time.Time
}

func New(target Target, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Exporter{target: target, logger: logger, now: time.Now}
}

// Export encodes table once per format and writes each file. An empty name
// gets a timestamped default. The first failing format stops the run; files
// already written are still returned.
func (e *Exporter) Export(ctx context.Context, table Table, formats []Format, name string) ([]File, error) {
	if len(table.Rows) == 0 {
		return nil, ErrNoData
	}
	if len(formats) == 0 {
		formats = AllFormats
	}
	at := e.now()
	if strings.TrimSpace(name) == "" {
		name = storage.DefaultExportName(at)
	}
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}

	files := make([]File, 0, len(formats))
	for _, format := range formats {
		var buf bytes.Buffer
		if err := Encode(&buf, format, table, at); err != nil {
			observability.ObserveExport(string(format), false, 0)
			return files, fmt.Errorf("encode %s: %w", format, err)
		}
		stored, err := e.target.Write(ctx, name, format, buf.Bytes(), at)
		if err != nil {
			observability.ObserveExport(string(format), false, 0)
			return files, fmt.Errorf("write %s: %w", format, err)
		}
		observability.ObserveExport(string(format), true, stored.Size)
		e.logger.InfoContext(ctx, "export_written",
			slog.String("format", string(format)),
			slog.String("location", stored.Location),
			slog.Int64("bytes", stored.Size),
			slog.Int("rows", len(table.Rows)),
		)
		files = append(files, File{Format: format, Location: stored.Location, Size: stored.Size, ETag: stored.ETag})
	}
	return files, nil
}

// Package schema introspects tables, columns, keys and indexes of a connected
// database and renders a compact description for prompt building.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/myquery/myquery/internal/database"
	"github.com/myquery/myquery/internal/query"
)

type Column struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Nullable bool    `json:"nullable"`
	Default  *string `json:"default"`
}

type ForeignKey struct {
	Columns         []string `json:"columns"`
	RefersToTable   string   `json:"refers_to_table"`
	RefersToColumns []string `json:"refers_to_columns"`
}

type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
}

type Table struct {
	Columns     []Column     `json:"columns"`
	PrimaryKeys []string     `json:"primary_keys"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
	Indexes     []Index      `json:"indexes"`
	SampleData  []query.Row  `json:"sample_data,omitempty"`
}

type Schema struct {
	Tables      map[string]Table `json:"tables"`
	TotalTables int              `json:"total_tables"`
}

type Options struct {
	// SampleRows > 0 attaches that many rows per table.
	SampleRows int
}

type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s Schema) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe renders the schema in the compact text form used in prompts.
func (s Schema) Describe() string {
	var b strings.Builder
	for i, name := range s.TableNames() {
		if i > 0 {
			b.WriteString("\n")
		}
		table := s.Tables[name]
		fmt.Fprintf(&b, "Table: %s\n", name)
		cols := make([]string, 0, len(table.Columns))
		for _, col := range table.Columns {
			cols = append(cols, fmt.Sprintf("%s (%s)", col.Name, col.Type))
		}
		fmt.Fprintf(&b, "Columns: %s\n", strings.Join(cols, ", "))
		if len(table.PrimaryKeys) > 0 {
			fmt.Fprintf(&b, "Primary Key: %s\n", strings.Join(table.PrimaryKeys, ", "))
		}
		if len(table.ForeignKeys) > 0 {
			fks := make([]string, 0, len(table.ForeignKeys))
			for _, fk := range table.ForeignKeys {
				fks = append(fks, fmt.Sprintf("%s -> %s.%s",
					strings.Join(fk.Columns, ", "), fk.RefersToTable, strings.Join(fk.RefersToColumns, ", ")))
			}
			fmt.Fprintf(&b, "Foreign Keys: %s\n", strings.Join(fks, "; "))
		}
	}
	return b.String()
}

func Introspect(ctx context.Context, db Queryer, dbType database.Type, opts Options) (Schema, error) {
	names, err := TableNames(ctx, db, dbType)
	if err != nil {
		return Schema{}, err
	}
	out := Schema{Tables: make(map[string]Table, len(names)), TotalTables: len(names)}
	for _, name := range names {
		var table Table
		if dbType == database.SQLite {
			table, err = sqliteTable(ctx, db, name)
		} else {
			d, derr := dialectFor(dbType)
			if derr != nil {
				return Schema{}, derr
			}
			table, err = d.table(ctx, db, name)
		}
		if err != nil {
			return Schema{}, fmt.Errorf("introspect table %q: %w", name, err)
		}
		if opts.SampleRows > 0 {
			sample := query.Execute(ctx, db, fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteIdent(dbType, name), opts.SampleRows), query.Options{MaxRows: opts.SampleRows})
			if sample.Success {
				table.SampleData = sample.Data
			}
		}
		out.Tables[name] = table
	}
	return out, nil
}

// TableNames lists user tables only, sorted by name.
func TableNames(ctx context.Context, db Queryer, dbType database.Type) ([]string, error) {
	var stmt string
	if dbType == database.SQLite {
		stmt = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	} else {
		d, err := dialectFor(dbType)
		if err != nil {
			return nil, err
		}
		stmt = d.tables
	}
	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func quoteIdent(dbType database.Type, name string) string {
	if dbType == database.MySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

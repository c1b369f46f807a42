package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/myquery/myquery/internal/database"
)

// dialect holds information_schema style queries. Each per-table query takes
// the table name as its single argument and returns columns positionally.
type dialect struct {
	tables      string
	columns     string // name, type, is_nullable, default
	primaryKeys string // column
	foreignKeys string // constraint, column, referenced table, referenced column
	indexes     string // index, column, unique
}

var postgresDialect = dialect{
	tables: `SELECT table_name FROM information_schema.tables
WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'`,
	columns: `SELECT column_name, data_type, is_nullable, column_default
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1
ORDER BY ordinal_position`,
	primaryKeys: `SELECT kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = current_schema() AND tc.table_name = $1
ORDER BY kcu.ordinal_position`,
	foreignKeys: `SELECT tc.constraint_name, kcu.column_name, ccu.table_name, ccu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = current_schema() AND tc.table_name = $1
ORDER BY tc.constraint_name, kcu.ordinal_position`,
	indexes: `SELECT i.relname, a.attname, ix.indisunique
FROM pg_class t
JOIN pg_namespace n ON n.oid = t.relnamespace
JOIN pg_index ix ON t.oid = ix.indrelid
JOIN pg_class i ON i.oid = ix.indexrelid
JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
WHERE n.nspname = current_schema() AND t.relname = $1 AND NOT ix.indisprimary
ORDER BY i.relname, array_position(ix.indkey::int2[], a.attnum)`,
}

var mysqlDialect = dialect{
	tables: `SELECT table_name FROM information_schema.tables
WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'`,
	columns: `SELECT column_name, column_type, is_nullable, column_default
FROM information_schema.columns
WHERE table_schema = DATABASE() AND table_name = ?
ORDER BY ordinal_position`,
	primaryKeys: `SELECT column_name FROM information_schema.key_column_usage
WHERE table_schema = DATABASE() AND table_name = ? AND constraint_name = 'PRIMARY'
ORDER BY ordinal_position`,
	foreignKeys: `SELECT constraint_name, column_name, referenced_table_name, referenced_column_name
FROM information_schema.key_column_usage
WHERE table_schema = DATABASE() AND table_name = ? AND referenced_table_name IS NOT NULL
ORDER BY constraint_name, ordinal_position`,
	indexes: `SELECT index_name, column_name, non_unique = 0
FROM information_schema.statistics
WHERE table_schema = DATABASE() AND table_name = ? AND index_name <> 'PRIMARY'
ORDER BY index_name, seq_in_index`,
}

// duckdbDialect has no portable foreign key or index listing with column
// names, so those queries are left empty.
var duckdbDialect = dialect{
	tables: `SELECT table_name FROM information_schema.tables
WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'`,
	columns: `SELECT column_name, data_type, is_nullable, column_default
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = ?
ORDER BY ordinal_position`,
	primaryKeys: `SELECT unnest(constraint_column_names)
FROM duckdb_constraints()
WHERE schema_name = current_schema() AND table_name = ? AND constraint_type = 'PRIMARY KEY'`,
}

func dialectFor(dbType database.Type) (dialect, error) {
	switch dbType {
	case database.Postgres:
		return postgresDialect, nil
	case database.MySQL:
		return mysqlDialect, nil
	case database.DuckDB:
		return duckdbDialect, nil
	default:
		return dialect{}, fmt.Errorf("%w: %q", database.ErrUnsupportedType, dbType)
	}
}

func (d dialect) table(ctx context.Context, db Queryer, name string) (Table, error) {
	table := Table{
		Columns:     []Column{},
		PrimaryKeys: []string{},
		ForeignKeys: []ForeignKey{},
		Indexes:     []Index{},
	}

	err := eachRow(ctx, db, d.columns, name, 4, func(values []any) {
		col := Column{
			Name:     asString(values[0]),
			Type:     asString(values[1]),
			Nullable: strings.EqualFold(asString(values[2]), "YES"),
		}
		if values[3] != nil {
			def := asString(values[3])
			col.Default = &def
		}
		table.Columns = append(table.Columns, col)
	})
	if err != nil {
		return Table{}, fmt.Errorf("columns: %w", err)
	}

	err = eachRow(ctx, db, d.primaryKeys, name, 1, func(values []any) {
		table.PrimaryKeys = append(table.PrimaryKeys, asString(values[0]))
	})
	if err != nil {
		return Table{}, fmt.Errorf("primary keys: %w", err)
	}

	fkIndex := map[string]int{}
	err = eachRow(ctx, db, d.foreignKeys, name, 4, func(values []any) {
		constraint := asString(values[0])
		pos, ok := fkIndex[constraint]
		if !ok {
			pos = len(table.ForeignKeys)
			fkIndex[constraint] = pos
			table.ForeignKeys = append(table.ForeignKeys, ForeignKey{RefersToTable: asString(values[2])})
		}
		fk := &table.ForeignKeys[pos]
		fk.Columns = append(fk.Columns, asString(values[1]))
		fk.RefersToColumns = append(fk.RefersToColumns, asString(values[3]))
	})
	if err != nil {
		return Table{}, fmt.Errorf("foreign keys: %w", err)
	}

	idxIndex := map[string]int{}
	err = eachRow(ctx, db, d.indexes, name, 3, func(values []any) {
		indexName := asString(values[0])
		pos, ok := idxIndex[indexName]
		if !ok {
			pos = len(table.Indexes)
			idxIndex[indexName] = pos
			table.Indexes = append(table.Indexes, Index{Name: indexName, Unique: asBool(values[2])})
		}
		table.Indexes[pos].Columns = append(table.Indexes[pos].Columns, asString(values[1]))
	})
	if err != nil {
		return Table{}, fmt.Errorf("indexes: %w", err)
	}
	return table, nil
}

func eachRow(ctx context.Context, db Queryer, stmt string, arg any, width int, fn func([]any)) error {
	if stmt == "" {
		return nil
	}
	var (
		rows *sql.Rows
		err  error
	)
	if arg == nil {
		rows, err = db.QueryContext(ctx, stmt)
	} else {
		rows, err = db.QueryContext(ctx, stmt, arg)
	}
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		values := make([]any, width)
		targets := make([]any, width)
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return err
		}
		fn(values)
	}
	return rows.Err()
}

func asString(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case []byte:
		return string(typed)
	default:
		return fmt.Sprint(typed)
	}
}

func asInt(value any) int64 {
	switch typed := value.(type) {
	case int64:
		return typed
	case int32:
		return int64(typed)
	case int:
		return int64(typed)
	case bool:
		if typed {
			return 1
		}
		return 0
	default:
		n, _ := strconv.ParseInt(asString(value), 10, 64)
		return n
	}
}

func asBool(value any) bool {
	switch typed := value.(type) {
	case bool:
		return typed
	case string, []byte:
		s := strings.ToLower(asString(typed))
		return s == "1" || s == "t" || s == "true" || s == "yes"
	default:
		return asInt(value) != 0
	}
}

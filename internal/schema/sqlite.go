package schema

import (
	"context"
	"fmt"
	"sort"
)

// SQLite exposes keys and indexes only through pragmas, which return one
// row per column in their own column order.
func sqliteTable(ctx context.Context, db Queryer, name string) (Table, error) {
	table := Table{
		Columns:     []Column{},
		PrimaryKeys: []string{},
		ForeignKeys: []ForeignKey{},
		Indexes:     []Index{},
	}
	quoted := quoteIdent("sqlite", name)

	type pkCol struct {
		name string
		pos  int64
	}
	pks := make([]pkCol, 0)
	// cid, name, type, notnull, dflt_value, pk
	err := eachRow(ctx, db, fmt.Sprintf("PRAGMA table_info(%s)", quoted), nil, 6, func(values []any) {
		col := Column{
			Name:     asString(values[1]),
			Type:     asString(values[2]),
			Nullable: asInt(values[3]) == 0,
		}
		if values[4] != nil {
			def := asString(values[4])
			col.Default = &def
		}
		table.Columns = append(table.Columns, col)
		if pos := asInt(values[5]); pos > 0 {
			pks = append(pks, pkCol{name: col.Name, pos: pos})
		}
	})
	if err != nil {
		return Table{}, fmt.Errorf("table_info: %w", err)
	}
	sort.Slice(pks, func(i, j int) bool { return pks[i].pos < pks[j].pos })
	for _, pk := range pks {
		table.PrimaryKeys = append(table.PrimaryKeys, pk.name)
	}

	// id, seq, table, from, to, on_update, on_delete, match
	fkIndex := map[int64]int{}
	err = eachRow(ctx, db, fmt.Sprintf("PRAGMA foreign_key_list(%s)", quoted), nil, 8, func(values []any) {
		id := asInt(values[0])
		pos, ok := fkIndex[id]
		if !ok {
			pos = len(table.ForeignKeys)
			fkIndex[id] = pos
			table.ForeignKeys = append(table.ForeignKeys, ForeignKey{RefersToTable: asString(values[2])})
		}
		fk := &table.ForeignKeys[pos]
		fk.Columns = append(fk.Columns, asString(values[3]))
		fk.RefersToColumns = append(fk.RefersToColumns, asString(values[4]))
	})
	if err != nil {
		return Table{}, fmt.Errorf("foreign_key_list: %w", err)
	}

	type indexHead struct {
		name   string
		unique bool
	}
	heads := make([]indexHead, 0)
	// seq, name, unique, origin, partial
	err = eachRow(ctx, db, fmt.Sprintf("PRAGMA index_list(%s)", quoted), nil, 5, func(values []any) {
		if asString(values[3]) == "pk" {
			return
		}
		heads = append(heads, indexHead{name: asString(values[1]), unique: asBool(values[2])})
	})
	if err != nil {
		return Table{}, fmt.Errorf("index_list: %w", err)
	}
	sort.Slice(heads, func(i, j int) bool { return heads[i].name < heads[j].name })
	for _, head := range heads {
		idx := Index{Name: head.name, Unique: head.unique, Columns: []string{}}
		// seqno, cid, name
		err := eachRow(ctx, db, fmt.Sprintf("PRAGMA index_info(%s)", quoteIdent("sqlite", head.name)), nil, 3, func(values []any) {
			idx.Columns = append(idx.Columns, asString(values[2]))
		})
		if err != nil {
			return Table{}, fmt.Errorf("index_info %q: %w", head.name, err)
		}
		table.Indexes = append(table.Indexes, idx)
	}
	return table, nil
}

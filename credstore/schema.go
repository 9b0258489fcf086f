package credstore

import (
	"context"
	"database/sql"
	"strings"
)

type (
	tableDef struct {
		name    string
		columns []columnDef
		pk      []string
		unique  []uniqueDef
	}

	uniqueDef struct {
		name    string
		columns []string
	}

	columnDef struct {
		name     string
		datatype string
	}
)

// CheckSchema refuses to work with a users table that lost the properties
// the rest of the code relies on: a text primary key (ids are random, never
// a rowid alias) and a unique username.
func (s *Store) CheckSchema(ctx context.Context) error {
	td, err := loadTableDef(ctx, s.db, "users")
	if err != nil {
		return InvalidSchema{Table: "users", Reason: err.Error()}
	}
	if len(td.pk) != 1 || td.pk[0] != "id" {
		return InvalidSchema{Table: "users", Reason: "id must be the only primary key column"}
	}
	if dt := td.column("id").datatype; !strings.EqualFold(dt, "text") {
		return InvalidSchema{Table: "users", Reason: "id must be stored as text, got " + dt}
	}
	if !td.hasUnique("username") {
		return InvalidSchema{Table: "users", Reason: "username must be unique"}
	}
	return nil
}

func (t *tableDef) column(name string) columnDef {
	for _, c := range t.columns {
		if c.name == name {
			return c
		}
	}
	return columnDef{}
}

func (t *tableDef) hasUnique(columns ...string) bool {
	for _, u := range t.unique {
		if len(u.columns) != len(columns) {
			continue
		}
		match := true
		for i := range columns {
			if u.columns[i] != columns[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func loadTableDef(ctx context.Context, db *sql.DB, name string) (*tableDef, error) {
	td := tableDef{
		name: name,
	}

	type tableInfoRow struct {
		name     string
		datatype string
		pk       bool
	}
	rows, err := db.QueryContext(ctx, `select name, type, pk from pragma_table_info(?) order by name`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var row tableInfoRow
		err = rows.Scan(&row.name, &row.datatype, &row.pk)
		if err != nil {
			return nil, err
		}
		td.columns = append(td.columns, columnDef{name: row.name, datatype: row.datatype})
		if row.pk {
			td.pk = append(td.pk, row.name)
		}
	}
	if len(td.columns) == 0 {
		return nil, sql.ErrNoRows
	}
	uniqueIdx, err := listUniqueIndexes(ctx, db, name)
	if err != nil {
		return nil, err
	}
	for _, v := range uniqueIdx {
		udef, err := loadUniqueDef(ctx, db, v)
		if err != nil {
			return nil, err
		}
		td.unique = append(td.unique, udef)
	}
	return &td, nil
}

func loadUniqueDef(ctx context.Context, db *sql.DB, name string) (uniqueDef, error) {
	rows, err := db.QueryContext(ctx, `select name from pragma_index_info(?) order by name`, name)
	if err != nil {
		return uniqueDef{}, err
	}
	defer rows.Close()
	ud := uniqueDef{
		name: name,
	}
	for rows.Next() {
		var name string
		err = rows.Scan(&name)
		if err != nil {
			return uniqueDef{}, err
		}
		ud.columns = append(ud.columns, name)
	}
	return ud, nil
}

func listUniqueIndexes(ctx context.Context, db *sql.DB, name string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `select name from pragma_index_list(?) where [unique] = 1 order by name`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ret []string
	for rows.Next() {
		var name string
		err = rows.Scan(&name)
		if err != nil {
			return nil, err
		}
		ret = append(ret, name)
	}
	return ret, nil
}

package datasvc

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"
)

// SQLStore is a Service backed by the sqlite database created by the goose
// migrations. Table and column names are checked against the known schema.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLStore wraps db.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

func (s *SQLStore) Select(ctx context.Context, table string, q Query) ([]Record, error) {
	if err := checkQuery(table, q); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}

	where, args := whereClause(q.Filters)
	query := "SELECT * FROM " + table + where + orderClause(q.Order)
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns %s: %w", table, err)
	}

	records := make([]Record, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		rec := make(Record, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				rec[c] = string(b)
				continue
			}
			rec[c] = values[i]
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}

	return records, nil
}

func (s *SQLStore) Single(ctx context.Context, table string, q Query) (Record, error) {
	q.Limit = 1
	recs, err := s.Select(ctx, table, q)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

func (s *SQLStore) Insert(ctx context.Context, table string, rec Record) (Record, error) {
	out, err := prepareInsert(table, rec, s.now())
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}

	cols := sortedKeys(out)
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		placeholders[i] = "?"
		args[i] = sqlValue(out[c])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}

	stored, err := s.Single(ctx, table, Where(Eq("id", out["id"])))
	if err != nil {
		return nil, fmt.Errorf("reload inserted %s: %w", table, err)
	}
	return stored, nil
}

func (s *SQLStore) Update(ctx context.Context, table string, filters []Condition, patch Record) (int64, error) {
	if err := checkConditions(table, filters); err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	if len(filters) == 0 {
		return 0, errUnfilteredUpdate
	}
	if err := checkRecord(table, patch); err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	if len(patch) == 0 {
		return 0, nil
	}

	cols := sortedKeys(patch)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(filters))
	for i, c := range cols {
		sets[i] = c + " = ?"
		args = append(args, sqlValue(patch[c]))
	}
	where, whereArgs := whereClause(filters)
	args = append(args, whereArgs...)

	result, err := s.db.ExecContext(ctx, "UPDATE "+table+" SET "+strings.Join(sets, ", ")+where, args...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update %s rows affected: %w", table, err)
	}
	return affected, nil
}

func (s *SQLStore) Delete(ctx context.Context, table string, filters []Condition) (int64, error) {
	if err := checkConditions(table, filters); err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	if len(filters) == 0 {
		return 0, errUnfilteredDelete
	}

	where, args := whereClause(filters)
	result, err := s.db.ExecContext(ctx, "DELETE FROM "+table+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete %s rows affected: %w", table, err)
	}
	return affected, nil
}

func whereClause(filters []Condition) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	for _, f := range filters {
		if f.Value == nil {
			if f.Op == OpNeq {
				parts = append(parts, f.Column+" IS NOT NULL")
			} else {
				parts = append(parts, f.Column+" IS NULL")
			}
			continue
		}
		var op string
		switch f.Op {
		case OpEq:
			op = "="
		case OpNeq:
			op = "!="
		case OpGte:
			op = ">="
		case OpLt:
			op = "<"
		}
		parts = append(parts, f.Column+" "+op+" ?")
		args = append(args, sqlValue(f.Value))
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

func orderClause(order []Order) string {
	if len(order) == 0 {
		return " ORDER BY rowid"
	}
	parts := make([]string, 0, len(order)+1)
	for _, o := range order {
		if o.Desc {
			parts = append(parts, o.Column+" DESC")
		} else {
			parts = append(parts, o.Column+" ASC")
		}
	}
	if order[len(order)-1].Desc {
		parts = append(parts, "rowid DESC")
	} else {
		parts = append(parts, "rowid ASC")
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

// sqlValue keeps timestamps comparable with the TEXT values written by Timestamp.
func sqlValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return Timestamp(t)
	}
	return v
}

func sortedKeys(rec Record) []string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package datasvc

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemStore is an in-memory Service. It is used by tests and by the server
// when no database is configured.
type MemStore struct {
	mu     sync.RWMutex
	tables map[string][]memRow
	seq    int64
	now    func() time.Time
}

type memRow struct {
	seq int64
	rec Record
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{tables: make(map[string][]memRow), now: time.Now}
}

func (m *MemStore) Select(ctx context.Context, table string, q Query) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkQuery(table, q); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}

	m.mu.RLock()
	matched := make([]memRow, 0)
	for _, row := range m.tables[table] {
		if matches(row.rec, q.Filters) {
			matched = append(matched, memRow{seq: row.seq, rec: row.rec.Clone()})
		}
	}
	m.mu.RUnlock()

	sortRows(matched, q.Order)
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]Record, len(matched))
	for i, row := range matched {
		out[i] = row.rec
	}
	return out, nil
}

func (m *MemStore) Single(ctx context.Context, table string, q Query) (Record, error) {
	q.Limit = 1
	recs, err := m.Select(ctx, table, q)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

func (m *MemStore) Insert(ctx context.Context, table string, rec Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := prepareInsert(table, rec, m.now())
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.tables[table] {
		if row.rec.String("id") == out.String("id") {
			return nil, fmt.Errorf("insert %s: duplicate id %q", table, out.String("id"))
		}
	}
	m.seq++
	m.tables[table] = append(m.tables[table], memRow{seq: m.seq, rec: out})
	return out.Clone(), nil
}

func (m *MemStore) Update(ctx context.Context, table string, filters []Condition, patch Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := checkConditions(table, filters); err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	if len(filters) == 0 {
		return 0, errUnfilteredUpdate
	}
	if err := checkRecord(table, patch); err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var affected int64
	for _, row := range m.tables[table] {
		if !matches(row.rec, filters) {
			continue
		}
		for k, v := range patch {
			row.rec[k] = sqlValue(v)
		}
		affected++
	}
	return affected, nil
}

func (m *MemStore) Delete(ctx context.Context, table string, filters []Condition) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := checkConditions(table, filters); err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	if len(filters) == 0 {
		return 0, errUnfilteredDelete
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.tables[table][:0]
	var affected int64
	for _, row := range m.tables[table] {
		if matches(row.rec, filters) {
			affected++
			continue
		}
		kept = append(kept, row)
	}
	m.tables[table] = kept
	return affected, nil
}

func matches(rec Record, filters []Condition) bool {
	for _, f := range filters {
		v, present := rec[f.Column]
		if f.Value == nil {
			isNull := !present || v == nil
			if (f.Op == OpEq && !isNull) || (f.Op == OpNeq && isNull) {
				return false
			}
			continue
		}
		if !present || v == nil {
			return false
		}
		c := compare(v, f.Value)
		switch f.Op {
		case OpEq:
			if c != 0 {
				return false
			}
		case OpNeq:
			if c == 0 {
				return false
			}
		case OpGte:
			if c < 0 {
				return false
			}
		case OpLt:
			if c >= 0 {
				return false
			}
		}
	}
	return true
}

// compare orders two column values the way sqlite would for the types the
// services store: numbers numerically, everything else as text.
func compare(a, b any) int {
	af, aNum := number(a)
	bf, bNum := number(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(text(a), text(b))
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func text(v any) string {
	return Record{"v": v}.String("v")
}

func sortRows(rows []memRow, order []Order) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range order {
			ai, aok := rows[i].rec[o.Column]
			bj, bok := rows[j].rec[o.Column]
			// NULLs sort first ascending, like sqlite.
			var c int
			switch {
			case (!aok || ai == nil) && (!bok || bj == nil):
				c = 0
			case !aok || ai == nil:
				c = -1
			case !bok || bj == nil:
				c = 1
			default:
				c = compare(ai, bj)
			}
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		if len(order) > 0 && order[len(order)-1].Desc {
			return rows[i].seq > rows[j].seq
		}
		return rows[i].seq < rows[j].seq
	})
}

// Package datasvc is the boundary to the member data service: a generic
// record store addressed by table name and filter.
package datasvc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned by Single when no record matches.
var ErrNotFound = errors.New("record not found")

// Op is a filter comparison operator.
type Op string

const (
	OpEq  Op = "eq"
	OpNeq Op = "neq"
	OpGte Op = "gte"
	OpLt  Op = "lt"
)

// Condition filters records on one column.
type Condition struct {
	Column string
	Op     Op
	Value  any
}

func Eq(column string, value any) Condition  { return Condition{Column: column, Op: OpEq, Value: value} }
func Neq(column string, value any) Condition { return Condition{Column: column, Op: OpNeq, Value: value} }
func Gte(column string, value any) Condition { return Condition{Column: column, Op: OpGte, Value: value} }
func Lt(column string, value any) Condition  { return Condition{Column: column, Op: OpLt, Value: value} }

// Order sorts results on one column.
type Order struct {
	Column string
	Desc   bool
}

func Asc(column string) Order  { return Order{Column: column} }
func Desc(column string) Order { return Order{Column: column, Desc: true} }

// Query selects records. A zero Limit means no limit.
type Query struct {
	Filters []Condition
	Order   []Order
	Limit   int
}

// Where is shorthand for a Query with only filters.
func Where(filters ...Condition) Query {
	return Query{Filters: filters}
}

// Service is the data service used by the member area. Implementations must
// be safe for concurrent use.
type Service interface {
	Select(ctx context.Context, table string, q Query) ([]Record, error)
	Single(ctx context.Context, table string, q Query) (Record, error)
	Insert(ctx context.Context, table string, rec Record) (Record, error)
	Update(ctx context.Context, table string, filters []Condition, patch Record) (int64, error)
	Delete(ctx context.Context, table string, filters []Condition) (int64, error)
}

// TimestampLayout is the layout timestamps are written and compared in.
const TimestampLayout = "2006-01-02 15:04:05"

// Timestamp formats t in UTC for storage and range filters.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Record is one row keyed by column name.
type Record map[string]any

// String returns the column as a string, "" when absent or NULL.
func (r Record) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return Timestamp(v)
	default:
		return fmt.Sprint(v)
	}
}

// Float returns the column as a float64, 0 when absent or not numeric.
func (r Record) Float(col string) float64 {
	switch v := r[col].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f
	case []byte:
		f, _ := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		return f
	default:
		return 0
	}
}

// Int returns the column truncated to an int.
func (r Record) Int(col string) int {
	return int(r.Float(col))
}

// Bool returns the column as a bool. sqlite stores booleans as integers.
func (r Record) Bool(col string) bool {
	switch v := r[col].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return r.Float(col) != 0
	}
}

// Time returns the column as a time. Malformed or missing values report false.
func (r Record) Time(col string) (time.Time, bool) {
	switch v := r[col].(type) {
	case time.Time:
		return v, !v.IsZero()
	case string:
		return parseTime(v)
	case []byte:
		return parseTime(string(v))
	default:
		return time.Time{}, false
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	TimestampLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02",
}

func parseTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

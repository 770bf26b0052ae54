package querybuilder

import (
	"fmt"
	"strconv"
	"strings"
)

// Condition is one equality predicate; conditions in a WHERE clause are ANDed.
type Condition struct {
	column string
	value  any
}

func Eq(column string, value any) Condition {
	return Condition{column: column, value: value}
}

type verb int

const (
	verbSelect verb = iota
	verbInsert
	verbDelete
)

// Query renders the three single-table statements the cache index needs.
// Placeholders use SQLite's ?NNN form so argument order never depends on how
// the driver rebinds.
type Query struct {
	verb    verb
	table   string
	columns []string
	values  []any
	where   []Condition
	orderBy []string
	suffix  string
}

func Select(columns ...string) *Query {
	return &Query{verb: verbSelect, columns: append([]string(nil), columns...)}
}

func InsertInto(table string) *Query {
	return &Query{verb: verbInsert, table: table}
}

func DeleteFrom(table string) *Query {
	return &Query{verb: verbDelete, table: table}
}

func (q *Query) From(table string) *Query {
	q.table = table
	return q
}

func (q *Query) Columns(columns ...string) *Query {
	q.columns = append([]string(nil), columns...)
	return q
}

// Values sets the single inserted row.
func (q *Query) Values(values ...any) *Query {
	q.values = append([]any(nil), values...)
	return q
}

func (q *Query) Where(conditions ...Condition) *Query {
	q.where = append(q.where, conditions...)
	return q
}

func (q *Query) OrderBy(parts ...string) *Query {
	q.orderBy = append(q.orderBy, parts...)
	return q
}

// Suffix appends a trailing clause such as an ON CONFLICT upsert.
func (q *Query) Suffix(sql string) *Query {
	q.suffix = strings.TrimSpace(sql)
	return q
}

func (q *Query) ToSQL() (string, []any, error) {
	if strings.TrimSpace(q.table) == "" {
		return "", nil, fmt.Errorf("table is required")
	}

	var (
		buf  strings.Builder
		args []any
	)
	placeholder := func(value any) string {
		args = append(args, value)
		return "?" + strconv.Itoa(len(args))
	}

	switch q.verb {
	case verbSelect:
		if len(q.columns) == 0 {
			return "", nil, fmt.Errorf("select columns are required")
		}
		fmt.Fprintf(&buf, "SELECT %s FROM %s", strings.Join(q.columns, ", "), q.table)
	case verbInsert:
		if len(q.columns) == 0 {
			return "", nil, fmt.Errorf("insert columns are required")
		}
		if len(q.values) != len(q.columns) {
			return "", nil, fmt.Errorf("insert has %d values for %d columns", len(q.values), len(q.columns))
		}
		marks := make([]string, len(q.values))
		for i, value := range q.values {
			marks[i] = placeholder(value)
		}
		fmt.Fprintf(&buf, "INSERT INTO %s (%s) VALUES (%s)", q.table, strings.Join(q.columns, ", "), strings.Join(marks, ", "))
	case verbDelete:
		fmt.Fprintf(&buf, "DELETE FROM %s", q.table)
	}

	for i, c := range q.where {
		if i == 0 {
			buf.WriteString(" WHERE ")
		} else {
			buf.WriteString(" AND ")
		}
		buf.WriteString(c.column + " = " + placeholder(c.value))
	}
	if len(q.orderBy) > 0 {
		buf.WriteString(" ORDER BY " + strings.Join(q.orderBy, ", "))
	}
	if q.suffix != "" {
		buf.WriteString(" " + q.suffix)
	}
	return buf.String(), args, nil
}

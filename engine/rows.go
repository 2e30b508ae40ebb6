package engine

import "corvusDB/storage"

// Rows is the result of a read statement. The source rows are snapshotted
// when the statement runs (so iterating never touches the database again
// and holds no locks), but filtering and projection are lazy: a row is
// only materialized when the cursor reaches it.
type Rows struct {
	columns []string
	source  []storage.Row
	filter  rowFilter
	pos     int // index into source of the current row
	current []storage.Value
}

// Columns returns the result column names in projection order.
func (r *Rows) Columns() []string { return r.columns }

// Len returns the number of rows in the result, independent of cursor
// position.
func (r *Rows) Len() int {
	n := 0
	for _, row := range r.source {
		if r.filter.matches(row) {
			n++
		}
	}
	return n
}

// Next advances to the next matching row. It returns false once the
// result is exhausted.
func (r *Rows) Next() bool {
	for i := r.pos + 1; i < len(r.source); i++ {
		if r.filter.matches(r.source[i]) {
			r.pos = i
			r.current = r.project(r.source[i])
			return true
		}
	}
	r.pos = len(r.source)
	r.current = nil
	return false
}

// Values returns the current row's values in column order. Valid only
// after a successful Next.
func (r *Rows) Values() []storage.Value { return r.current }

// Value returns the current row's value for the named column, or NULL
// if the column is not in the projection.
func (r *Rows) Value(column string) storage.Value {
	if r.current == nil {
		return storage.Null()
	}
	for i, name := range r.columns {
		if name == column {
			return r.current[i]
		}
	}
	return storage.Null()
}

// First returns the first row of the result, independent of cursor
// position. The second return is false for an empty result.
func (r *Rows) First() ([]storage.Value, bool) {
	for _, row := range r.source {
		if r.filter.matches(row) {
			return r.project(row), true
		}
	}
	return nil, false
}

// Collect materializes the whole result, independent of cursor position.
func (r *Rows) Collect() [][]storage.Value {
	var out [][]storage.Value
	for _, row := range r.source {
		if r.filter.matches(row) {
			out = append(out, r.project(row))
		}
	}
	return out
}

func (r *Rows) project(row storage.Row) []storage.Value {
	values := make([]storage.Value, len(r.columns))
	for i, name := range r.columns {
		values[i] = row.Values[name]
	}
	return values
}

package storage

// Column describes one column of a table schema.
type Column struct {
	Name string    `json:"name"`
	Type ValueType `json:"type"`
}

// Row is one stored record. Values are keyed by column name.
type Row struct {
	ID     int64            `json:"id"`
	Values map[string]Value `json:"values"`
}

// Clone returns a deep copy so callers can hold rows without pinning
// store-internal state.
func (r Row) Clone() Row {
	values := make(map[string]Value, len(r.Values))
	for k, v := range r.Values {
		values[k] = v
	}
	return Row{ID: r.ID, Values: values}
}

// Table holds a schema and its rows.
type Table struct {
	Name      string        `json:"name"`
	Columns   []Column      `json:"columns"`
	NextRowID int64         `json:"next_row_id"`
	Rows      map[int64]Row `json:"rows"`
}

func newTable(name string, columns []Column) *Table {
	return &Table{
		Name:      name,
		Columns:   columns,
		NextRowID: 1,
		Rows:      make(map[int64]Row),
	}
}

// HasColumn reports whether the schema contains the named column.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

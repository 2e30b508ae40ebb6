package storage

// ChangeKind is the kind of a single buffered mutation.
type ChangeKind int

const (
	ChangeCreateTable ChangeKind = iota + 1
	ChangeInsert
	ChangeUpdate
	ChangeDelete
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCreateTable:
		return "CREATE_TABLE"
	case ChangeInsert:
		return "INSERT"
	case ChangeUpdate:
		return "UPDATE"
	case ChangeDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Change is one mutation recorded by a transaction. Changes are buffered
// until commit and applied to the store in order under the exclusive lock.
type Change struct {
	Kind    ChangeKind       `json:"kind"`
	Table   string           `json:"table"`
	Columns []Column         `json:"columns,omitempty"` // create table
	RowID   int64            `json:"row_id,omitempty"`
	Values  map[string]Value `json:"values,omitempty"` // insert: full row; update: set columns only
}

// ChangeSet is the ordered write set of one transaction.
type ChangeSet struct {
	Changes []Change
}

// Append records a change.
func (cs *ChangeSet) Append(c Change) {
	cs.Changes = append(cs.Changes, c)
}

// Empty reports whether the transaction wrote anything.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Changes) == 0
}

// Package transaction provides atomic units of work over a shared store.
// A transaction buffers its writes in a change set; other connections see
// nothing until commit promotes the file lock to exclusive and applies
// the set, while the owning transaction reads through its own buffer
// (read-your-writes).
package transaction

import (
	"sync"
	"time"

	"corvusDB/storage"
)

// Mode distinguishes auto-wrapped single-statement transactions from
// caller-delimited multi-statement ones. Commit and rollback behave the
// same in both; the mode decides who drives them.
type Mode int

const (
	Implicit Mode = iota
	Explicit
)

func (m Mode) String() string {
	if m == Explicit {
		return "EXPLICIT"
	}
	return "IMPLICIT"
}

// State is the lifecycle state of a transaction.
type State int

const (
	StateActive State = iota
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateCommitted:
		return "COMMITTED"
	case StateRolledBack:
		return "ROLLED_BACK"
	default:
		return "UNKNOWN"
	}
}

// Txn is one transaction. It is owned by a single connection; the
// internal mutex only guards against a reading statement overlapping a
// writing one on that connection.
type Txn struct {
	id     uint64
	connID uint64
	mode   Mode

	mu          sync.RWMutex
	state       State
	writes      storage.ChangeSet
	reserved    bool // holds the reserved (or stronger) file lock
	busyTimeout time.Duration

	mgr *Manager
}

// ID returns the transaction ID.
func (t *Txn) ID() uint64 { return t.id }

// Mode returns Implicit or Explicit.
func (t *Txn) Mode() Mode { return t.mode }

// State returns the current lifecycle state.
func (t *Txn) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// HasWrites reports whether the transaction buffered any changes.
func (t *Txn) HasWrites() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return !t.writes.Empty()
}

// TableExists reports whether the table is visible to this transaction,
// either committed or created by the transaction itself.
func (t *Txn) TableExists(name string) bool {
	if t.mgr.store.HasTable(name) {
		return true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, c := range t.writes.Changes {
		if c.Kind == storage.ChangeCreateTable && c.Table == name {
			return true
		}
	}
	return false
}

// Schema returns the column definitions visible to this transaction.
func (t *Txn) Schema(name string) ([]storage.Column, error) {
	t.mu.RLock()
	for _, c := range t.writes.Changes {
		if c.Kind == storage.ChangeCreateTable && c.Table == name {
			columns := make([]storage.Column, len(c.Columns))
			copy(columns, c.Columns)
			t.mu.RUnlock()
			return columns, nil
		}
	}
	t.mu.RUnlock()
	return t.mgr.store.Schema(name)
}

// Rows returns the table contents as this transaction sees them: the
// committed rows with the transaction's own buffered changes applied in
// order.
func (t *Txn) Rows(name string) ([]storage.Row, error) {
	var base []storage.Row
	if t.mgr.store.HasTable(name) {
		committed, err := t.mgr.store.Scan(name)
		if err != nil {
			return nil, err
		}
		base = committed
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	return overlayRows(base, name, t.writes.Changes), nil
}

// overlayRows applies the buffered changes for one table on top of the
// committed rows, preserving row ID order.
func overlayRows(base []storage.Row, table string, changes []storage.Change) []storage.Row {
	byID := make(map[int64]storage.Row, len(base))
	order := make([]int64, 0, len(base))
	for _, row := range base {
		byID[row.ID] = row
		order = append(order, row.ID)
	}

	for _, c := range changes {
		if c.Table != table {
			continue
		}
		switch c.Kind {
		case storage.ChangeInsert:
			values := make(map[string]storage.Value, len(c.Values))
			for k, v := range c.Values {
				values[k] = v
			}
			if _, exists := byID[c.RowID]; !exists {
				order = append(order, c.RowID)
			}
			byID[c.RowID] = storage.Row{ID: c.RowID, Values: values}
		case storage.ChangeUpdate:
			row, exists := byID[c.RowID]
			if !exists {
				continue
			}
			updated := row.Clone()
			for k, v := range c.Values {
				updated.Values[k] = v
			}
			byID[c.RowID] = updated
		case storage.ChangeDelete:
			delete(byID, c.RowID)
		}
	}

	rows := make([]storage.Row, 0, len(byID))
	for _, id := range order {
		if row, exists := byID[id]; exists {
			rows = append(rows, row.Clone())
		}
	}
	return rows
}

// NextRowID returns the row ID the next insert into the table should
// use, accounting for rows this transaction already inserted. Safe
// because writers are serialized by the reserved lock.
func (t *Txn) NextRowID(name string) (int64, error) {
	var next int64 = 1
	if t.mgr.store.HasTable(name) {
		stored, err := t.mgr.store.NextRowID(name)
		if err != nil {
			return 0, err
		}
		next = stored
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, c := range t.writes.Changes {
		if c.Table == name && c.Kind == storage.ChangeInsert && c.RowID >= next {
			next = c.RowID + 1
		}
	}
	return next, nil
}

// Record buffers a change. The caller must have made the transaction
// writable first.
func (t *Txn) Record(c storage.Change) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes.Append(c)
}

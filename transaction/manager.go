package transaction

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"corvusDB/errors"
	"corvusDB/locking"
	"corvusDB/storage"
	"corvusDB/wal"
)

// Manager coordinates transactions for one database file. All
// connections opened on the same identity share one Manager, one store,
// one WAL and one file lock.
type Manager struct {
	store     *storage.Store
	wal       *wal.Log // nil for in-memory databases
	lock      *locking.FileLock
	nextTxnID atomic.Uint64
	log       *zap.Logger
}

// NewManager creates a manager. startTxnID seeds the ID counter so IDs
// keep increasing across restarts (recovery reports the highest ID seen
// in the WAL).
func NewManager(store *storage.Store, walLog *wal.Log, lock *locking.FileLock, startTxnID uint64, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		store: store,
		wal:   walLog,
		lock:  lock,
		log:   log,
	}
	m.nextTxnID.Store(startTxnID)
	return m
}

// Store exposes the committed state for read-only statements that run
// outside any transaction view.
func (m *Manager) Store() *storage.Store { return m.store }

// Begin starts a transaction for connID. Every transaction holds a
// shared lock for its whole lifetime so no writer can commit underneath
// it; write intent escalates the lock later via MakeWritable.
func (m *Manager) Begin(connID uint64, mode Mode, busyTimeout time.Duration) (*Txn, error) {
	if err := m.lock.AcquireShared(connID, busyTimeout); err != nil {
		return nil, err
	}

	txn := &Txn{
		id:          m.nextTxnID.Add(1),
		connID:      connID,
		mode:        mode,
		state:       StateActive,
		busyTimeout: busyTimeout,
		mgr:         m,
	}
	m.log.Debug("transaction started",
		zap.Uint64("txn", txn.id),
		zap.Uint64("conn", connID),
		zap.String("mode", mode.String()))
	return txn, nil
}

// MakeWritable acquires the reserved lock for the transaction if it does
// not hold it yet. Called by the executor before the first write.
func (m *Manager) MakeWritable(t *Txn) error {
	t.mu.RLock()
	state, reserved := t.state, t.reserved
	t.mu.RUnlock()

	if state != StateActive {
		return errors.Newf(errors.CodeInternal, "transaction %d is not active", t.id)
	}
	if reserved {
		return nil
	}

	// Waiting happens outside t.mu so reads on the same connection are
	// not blocked. Re-acquiring reserved for the same transaction is
	// idempotent in the lock manager; another transaction on the same
	// connection waits its turn.
	if err := m.lock.AcquireReserved(t.connID, t.id, t.busyTimeout); err != nil {
		return err
	}
	t.mu.Lock()
	t.reserved = true
	t.mu.Unlock()
	return nil
}

// Commit makes the transaction's writes durable and visible. Read-only
// transactions just release their shared lock. For writers, the lock is
// promoted to exclusive (draining concurrent readers), the change set is
// logged and fsynced, then applied to the store, then all locks release.
//
// A BUSY failure during promotion leaves the transaction active and
// still reserved so the caller can retry the commit or roll back. Any
// other failure rolls the transaction back before the error returns.
func (m *Manager) Commit(t *Txn) error {
	t.mu.Lock()
	if t.state != StateActive {
		state := t.state
		t.mu.Unlock()
		return errors.Newf(errors.CodeInternal, "commit of %s transaction %d", state, t.id)
	}

	if t.writes.Empty() {
		t.state = StateCommitted
		t.mu.Unlock()
		m.releaseAll(t)
		return nil
	}
	writes := t.writes
	t.mu.Unlock()

	if err := m.lock.PromoteExclusive(t.connID, t.id, t.busyTimeout); err != nil {
		// Still active: the caller decides between retry and rollback.
		return err
	}

	if m.wal != nil {
		if err := m.wal.AppendCommit(t.id, &writes); err != nil {
			m.rollbackLocked(t)
			return err
		}
	}
	if err := m.store.Apply(&writes); err != nil {
		m.rollbackLocked(t)
		return err
	}

	t.mu.Lock()
	t.state = StateCommitted
	t.mu.Unlock()
	m.releaseAll(t)

	m.log.Debug("transaction committed",
		zap.Uint64("txn", t.id),
		zap.Int("changes", len(writes.Changes)))
	return nil
}

// Rollback discards the transaction's writes and releases its locks.
// Rolling back a finished transaction is a no-op.
func (m *Manager) Rollback(t *Txn) error {
	t.mu.Lock()
	if t.state != StateActive {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()
	m.rollbackLocked(t)

	m.log.Debug("transaction rolled back", zap.Uint64("txn", t.id))
	return nil
}

func (m *Manager) rollbackLocked(t *Txn) {
	t.mu.Lock()
	t.state = StateRolledBack
	t.writes = storage.ChangeSet{}
	t.mu.Unlock()
	m.releaseAll(t)
}

func (m *Manager) releaseAll(t *Txn) {
	t.mu.Lock()
	reserved := t.reserved
	t.reserved = false
	t.mu.Unlock()

	if reserved {
		m.lock.ReleaseWriter(t.connID, t.id)
	}
	m.lock.ReleaseShared(t.connID)
}

// Package locking arbitrates access to a single database file between
// many connections. It implements a five-level file lock (unlocked,
// shared, reserved, pending, exclusive) with timeout-bounded acquisition.
//
// Ownership is tracked per connection, never per goroutine, so a
// connection that holds a shared lock can upgrade to reserved without
// deadlocking against itself.
package locking

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"corvusDB/errors"
)

// Level is the strength of a file lock.
type Level int

const (
	LevelNone Level = iota
	LevelShared
	LevelReserved
	LevelPending
	LevelExclusive
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "NONE"
	case LevelShared:
		return "SHARED"
	case LevelReserved:
		return "RESERVED"
	case LevelPending:
		return "PENDING"
	case LevelExclusive:
		return "EXCLUSIVE"
	default:
		return "UNKNOWN"
	}
}

// Retry pacing for contended acquisitions. The first retry comes quickly;
// the delay doubles up to maxRetryDelay so a long wait does not spin.
const (
	baseRetryDelay = time.Millisecond
	maxRetryDelay  = 20 * time.Millisecond
)

// FileLock is the lock state shared by every connection opened on the
// same database file identity. All state transitions happen under mu, so
// callers never observe a partial transition.
//
// Shared locks are owned per connection; the writer slot is owned by one
// transaction (connection + transaction ID), so two transactions on the
// same connection serialize their writes while the owning connection's
// own reads stay unblocked.
type FileLock struct {
	mu         sync.Mutex
	identity   string
	shared     map[uint64]int // connection -> shared lock refcount
	writerConn uint64         // connection of the writing transaction, 0 if none
	writerTxn  uint64         // transaction holding reserved or stronger
	writerLv   Level          // LevelNone when writerConn == 0
	log        *zap.Logger
}

// NewFileLock creates the lock state for one database file.
func NewFileLock(identity string, log *zap.Logger) *FileLock {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileLock{
		identity: identity,
		shared:   make(map[uint64]int),
		writerLv: LevelNone,
		log:      log,
	}
}

// AcquireShared takes a read lock for connID. It fails with BUSY if
// another connection holds reserved or stronger and the timeout elapses.
// A connection that is itself the writer is always granted. Shared locks
// are counted per connection, so overlapping reads on one connection
// each pair with their own release.
func (fl *FileLock) AcquireShared(connID uint64, timeout time.Duration) error {
	return fl.acquire(connID, timeout, LevelShared, func() bool {
		if fl.writerConn != 0 && fl.writerConn != connID {
			return false
		}
		fl.shared[connID]++
		return true
	})
}

// AcquireReserved marks the transaction txnID on connID as the intending
// writer. At most one transaction holds reserved or stronger; a second
// transaction waits even when it runs on the same connection, otherwise
// the two would clobber each other's writes. Existing shared holders
// (including connID itself) are unaffected. Re-acquiring for the same
// transaction is idempotent.
func (fl *FileLock) AcquireReserved(connID, txnID uint64, timeout time.Duration) error {
	return fl.acquire(connID, timeout, LevelReserved, func() bool {
		if fl.writerConn == connID && fl.writerTxn == txnID {
			return true
		}
		if fl.writerConn != 0 {
			return false
		}
		fl.writerConn = connID
		fl.writerTxn = txnID
		fl.writerLv = LevelReserved
		return true
	})
}

// PromoteExclusive upgrades the writing transaction from reserved to
// exclusive. While draining, the state is pending: new shared requests
// are refused but readers that predate the reservation finish normally.
// On timeout the state reverts to reserved and the caller gets BUSY.
func (fl *FileLock) PromoteExclusive(connID, txnID uint64, timeout time.Duration) error {
	fl.mu.Lock()
	if fl.writerConn != connID || fl.writerTxn != txnID {
		fl.mu.Unlock()
		return errors.Newf(errors.CodeInternal,
			"transaction %d requested exclusive without holding reserved on %s", txnID, fl.identity)
	}
	if fl.writerLv == LevelExclusive {
		fl.mu.Unlock()
		return nil
	}
	fl.writerLv = LevelPending
	fl.mu.Unlock()

	err := fl.acquire(connID, timeout, LevelExclusive, func() bool {
		if !fl.drained(connID) {
			return false
		}
		fl.writerLv = LevelExclusive
		return true
	})
	if err != nil {
		fl.mu.Lock()
		if fl.writerConn == connID && fl.writerTxn == txnID && fl.writerLv == LevelPending {
			fl.writerLv = LevelReserved
		}
		fl.mu.Unlock()
	}
	return err
}

// drained reports whether every shared holder other than connID has
// released. Called under mu.
func (fl *FileLock) drained(connID uint64) bool {
	for id := range fl.shared {
		if id != connID {
			return false
		}
	}
	return true
}

// acquire runs try under mu in a deadline-bounded retry loop. A zero
// timeout means a single attempt. The deadline is computed from the first
// attempt, so the observed wait on failure is close to the timeout.
func (fl *FileLock) acquire(connID uint64, timeout time.Duration, want Level, try func() bool) error {
	deadline := time.Now().Add(timeout)
	delay := baseRetryDelay

	for {
		fl.mu.Lock()
		granted := try()
		holder := fl.writerConn
		fl.mu.Unlock()

		if granted {
			return nil
		}

		remaining := time.Until(deadline)
		if timeout <= 0 || remaining <= 0 {
			fl.log.Debug("lock acquisition timed out",
				zap.String("identity", fl.identity),
				zap.Uint64("conn", connID),
				zap.Uint64("holder", holder),
				zap.String("level", want.String()),
				zap.Duration("timeout", timeout))
			return errors.Newf(errors.CodeBusy,
				"database %s is locked (%s requested, held by connection %d)",
				fl.identity, want, holder)
		}

		if delay > remaining {
			delay = remaining
		}
		time.Sleep(delay)
		if delay < maxRetryDelay {
			delay *= 2
		}
	}
}

// ReleaseShared drops one shared reference for connID. Releasing a lock
// that is not held is a no-op.
func (fl *FileLock) ReleaseShared(connID uint64) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.shared[connID] <= 1 {
		delete(fl.shared, connID)
		return
	}
	fl.shared[connID]--
}

// ReleaseWriter drops the transaction's reserved/pending/exclusive
// lock, if it holds one. Another transaction's lock is never disturbed.
func (fl *FileLock) ReleaseWriter(connID, txnID uint64) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.writerConn == connID && fl.writerTxn == txnID {
		fl.writerConn = 0
		fl.writerTxn = 0
		fl.writerLv = LevelNone
	}
}

// ReleaseAll drops every lock connID holds, whichever of its
// transactions took them. Used on connection close; idempotent.
func (fl *FileLock) ReleaseAll(connID uint64) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	delete(fl.shared, connID)
	if fl.writerConn == connID {
		fl.writerConn = 0
		fl.writerTxn = 0
		fl.writerLv = LevelNone
	}
}

// HeldLevel returns the strongest level connID currently holds.
func (fl *FileLock) HeldLevel(connID uint64) Level {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.writerConn == connID {
		return fl.writerLv
	}
	if _, ok := fl.shared[connID]; ok {
		return LevelShared
	}
	return LevelNone
}

// State returns the overall lock state of the file.
func (fl *FileLock) State() Level {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.writerConn != 0 {
		return fl.writerLv
	}
	if len(fl.shared) > 0 {
		return LevelShared
	}
	return LevelNone
}

// SharedCount returns the number of connections holding a shared lock.
func (fl *FileLock) SharedCount() int {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return len(fl.shared)
}

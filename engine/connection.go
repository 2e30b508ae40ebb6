package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"corvusDB/errors"
	"corvusDB/sql"
	"corvusDB/transaction"
)

// Connection is one client session. A connection runs statements either
// inside an explicit transaction it owns or inside implicit per-statement
// transactions; it never has more than one transaction at a time.
//
// Methods are safe for concurrent use by multiple goroutines, but the
// transaction is connection-scoped: concurrent writers that want
// isolation from each other need separate connections.
type Connection struct {
	id  uint64
	db  *database
	log *zap.Logger

	closed      atomic.Bool
	busyTimeout atomic.Int64 // nanoseconds

	mu  sync.Mutex
	txn *transaction.Txn // active explicit transaction, if any
}

// ID returns the connection's identifier within its database.
func (c *Connection) ID() uint64 { return c.id }

// SetBusyTimeout changes how long subsequent lock acquisitions wait
// before failing with BUSY.
func (c *Connection) SetBusyTimeout(d time.Duration) {
	c.busyTimeout.Store(int64(d))
}

// BusyTimeout returns the current busy timeout.
func (c *Connection) BusyTimeout() time.Duration {
	return time.Duration(c.busyTimeout.Load())
}

// Prepare compiles statement text into a reusable statement. The
// returned statement is bound to this connection but carries no
// execution state, so it can be run many times with different
// parameters.
func (c *Connection) Prepare(text string) (*Statement, error) {
	if c.closed.Load() {
		return nil, errClosed()
	}
	plan, err := sql.Compile(text)
	if err != nil {
		return nil, err
	}
	return &Statement{conn: c, text: text, plan: plan}, nil
}

// Execute compiles and runs a statement with positional parameters.
func (c *Connection) Execute(text string, args ...any) (Result, error) {
	stmt, err := c.Prepare(text)
	if err != nil {
		return Result{}, err
	}
	return stmt.Exec(args...)
}

// Query compiles and runs a read statement with positional parameters.
func (c *Connection) Query(text string, args ...any) (*Rows, error) {
	stmt, err := c.Prepare(text)
	if err != nil {
		return nil, err
	}
	return stmt.Query(args...)
}

// Begin starts an explicit transaction. Statements on this connection
// run inside it until Commit or Rollback.
func (c *Connection) Begin() error {
	if c.closed.Load() {
		return errClosed()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.txn != nil {
		return errors.New(errors.CodeTxnActive, "transaction already active on this connection")
	}
	txn, err := c.db.txns.Begin(c.id, transaction.Explicit, c.BusyTimeout())
	if err != nil {
		return err
	}
	c.txn = txn
	return nil
}

// Commit commits the explicit transaction. A BUSY failure leaves the
// transaction active so the caller can retry or roll back; any other
// failure rolls it back.
func (c *Connection) Commit() error {
	if c.closed.Load() {
		return errClosed()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.txn == nil {
		return errors.New(errors.CodeNoTxn, "no transaction is active")
	}

	err := c.db.txns.Commit(c.txn)
	if err != nil && errors.IsBusy(err) {
		return err
	}
	c.txn = nil
	return err
}

// Rollback discards the explicit transaction.
func (c *Connection) Rollback() error {
	if c.closed.Load() {
		return errClosed()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.txn == nil {
		return errors.New(errors.CodeNoTxn, "no transaction is active")
	}
	err := c.db.txns.Rollback(c.txn)
	c.txn = nil
	return err
}

// InTransaction reports whether an explicit transaction is active.
func (c *Connection) InTransaction() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txn != nil
}

// Transact runs fn inside an explicit transaction: commit if fn
// returns nil, rollback otherwise. A BUSY commit is rolled back too, so
// the connection is always transaction-free when Transact returns.
func (c *Connection) Transact(fn func() error) error {
	if err := c.Begin(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		c.Rollback()
		return err
	}
	err := c.Commit()
	if err != nil && errors.IsBusy(err) {
		c.Rollback()
	}
	return err
}

// Close releases everything the connection holds: the active
// transaction is rolled back and all file locks are dropped. Closing an
// already closed connection is a no-op. The last close of a database
// checkpoints it.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	txn := c.txn
	c.txn = nil
	c.mu.Unlock()

	if txn != nil {
		c.db.txns.Rollback(txn)
	}
	c.db.lock.ReleaseAll(c.id)

	c.log.Debug("connection closed",
		zap.String("database", c.db.identity),
		zap.Uint64("conn", c.id))
	return c.db.release()
}

// currentTxn returns the explicit transaction, or nil.
func (c *Connection) currentTxn() *transaction.Txn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txn
}

// abandonTxn clears the explicit transaction slot if it still holds
// txn. Used after a fatal statement error forced a rollback.
func (c *Connection) abandonTxn(txn *transaction.Txn) {
	c.mu.Lock()
	if c.txn == txn {
		c.txn = nil
	}
	c.mu.Unlock()
}

func errClosed() error {
	return errors.New(errors.CodeConnClosed, "connection is closed")
}

// Package engine is the public face of the database: it opens
// connections, compiles statements and runs them inside transactions.
// All connections opened on the same file share one store, one WAL and
// one file lock, so the locking protocol arbitrates between them exactly
// as it would between processes.
package engine

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"corvusDB/config"
	"corvusDB/errors"
	"corvusDB/locking"
	"corvusDB/storage"
	"corvusDB/transaction"
	"corvusDB/wal"
)

// MemoryPath opens a private in-memory database with no WAL and no
// snapshot. Every Open of this path creates a fresh database.
const MemoryPath = ":memory:"

// Options configures a connection at open time.
type Options struct {
	// BusyTimeout bounds how long lock acquisition waits before failing
	// with BUSY. Zero fails immediately on first contention.
	BusyTimeout time.Duration

	// SyncWrites forces an fsync of the WAL on every commit.
	SyncWrites bool

	// Compression is the snapshot compression algorithm: snappy, lz4,
	// zstd or none. Empty means snappy.
	Compression string

	// Logger receives engine logs. Nil means no logging.
	Logger *zap.Logger
}

// OptionsFromConfig builds open options from a loaded configuration.
func OptionsFromConfig(cfg *config.Config, log *zap.Logger) Options {
	return Options{
		BusyTimeout: time.Duration(cfg.Database.BusyTimeoutMs) * time.Millisecond,
		SyncWrites:  cfg.Database.SyncWrites,
		Compression: cfg.Database.Compression,
		Logger:      log,
	}
}

// database is the state shared by every connection opened on one
// identity. It lives in the registry until the last connection closes.
type database struct {
	identity string
	store    *storage.Store
	wal      *wal.Log // nil for in-memory databases
	lock     *locking.FileLock
	txns     *transaction.Manager
	log      *zap.Logger

	nextConnID atomic.Uint64

	mu   sync.Mutex
	refs int
}

var (
	registryMu sync.Mutex
	registry   = make(map[string]*database)
)

// Open opens a connection to the database file at path, creating the
// file on first write if it does not exist. Connections to the same
// path share state; MemoryPath gets a private database per call.
func Open(path string, opts Options) (*Connection, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Compression == "" {
		opts.Compression = "snappy"
	}

	db, err := acquireDatabase(path, opts)
	if err != nil {
		return nil, err
	}

	conn := &Connection{
		id:  db.nextConnID.Add(1),
		db:  db,
		log: opts.Logger,
	}
	conn.busyTimeout.Store(int64(opts.BusyTimeout))

	opts.Logger.Debug("connection opened",
		zap.String("database", db.identity),
		zap.Uint64("conn", conn.id))
	return conn, nil
}

// acquireDatabase returns the shared state for path, creating and
// recovering it on first open.
func acquireDatabase(path string, opts Options) (*database, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	identity := path
	if path == MemoryPath {
		// Each in-memory open is its own world.
		identity = "memory:" + uuid.NewString()
	} else {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeStorage, "failed to resolve database path")
		}
		identity = abs
	}

	if db, ok := registry[identity]; ok {
		db.mu.Lock()
		db.refs++
		db.mu.Unlock()
		return db, nil
	}

	db, err := openDatabase(identity, path == MemoryPath, opts)
	if err != nil {
		return nil, err
	}
	registry[identity] = db
	return db, nil
}

func openDatabase(identity string, inMemory bool, opts Options) (*database, error) {
	log := opts.Logger

	var (
		store  *storage.Store
		walLog *wal.Log
		seed   uint64
		err    error
	)
	if inMemory {
		store, err = storage.NewStore("", opts.Compression, log)
		if err != nil {
			return nil, err
		}
	} else {
		store, err = storage.NewStore(identity, opts.Compression, log)
		if err != nil {
			return nil, err
		}

		// Roll forward anything committed after the last snapshot, then
		// fold it into a fresh snapshot so the log starts empty.
		walPath := identity + ".wal"
		rec, err := wal.Replay(walPath, log)
		if err != nil {
			return nil, err
		}
		if rec.Committed > 0 {
			if err := store.Apply(rec.Changes); err != nil {
				return nil, errors.Wrap(err, errors.CodeStorage, "failed to apply recovered transactions")
			}
		}
		seed = rec.MaxTxnID

		walLog, err = wal.Open(walPath, rec.NextLSN, opts.SyncWrites, log)
		if err != nil {
			return nil, err
		}
		if rec.Committed > 0 {
			if err := store.Checkpoint(); err != nil {
				walLog.Close()
				return nil, err
			}
			if err := walLog.Reset(); err != nil {
				walLog.Close()
				return nil, err
			}
		}
	}

	lock := locking.NewFileLock(identity, log)
	db := &database{
		identity: identity,
		store:    store,
		wal:      walLog,
		lock:     lock,
		txns:     transaction.NewManager(store, walLog, lock, seed, log),
		log:      log,
		refs:     1,
	}
	return db, nil
}

// release drops one connection reference. The last release checkpoints
// the store, truncates the WAL and closes it.
func (db *database) release() error {
	registryMu.Lock()
	db.mu.Lock()
	db.refs--
	last := db.refs == 0
	db.mu.Unlock()
	if last {
		delete(registry, db.identity)
	}
	registryMu.Unlock()

	if !last {
		return nil
	}

	var firstErr error
	if err := db.store.Checkpoint(); err != nil {
		firstErr = err
	}
	if db.wal != nil {
		if firstErr == nil {
			if err := db.wal.Reset(); err != nil {
				firstErr = err
			}
		}
		if err := db.wal.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	db.log.Debug("database closed", zap.String("database", db.identity))
	return firstErr
}

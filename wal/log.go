package wal

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"corvusDB/errors"
	"corvusDB/storage"
)

// Log is the append side of the write-ahead log for one database file.
type Log struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	nextLSN uint64
	sync    bool // fsync after every commit
	log     *zap.Logger
}

// Open opens (or creates) the log file at path in append mode. nextLSN
// should be one past the highest LSN found by recovery.
func Open(path string, nextLSN uint64, syncWrites bool, log *zap.Logger) (*Log, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "failed to create WAL directory")
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "failed to open WAL file")
	}
	if nextLSN == 0 {
		nextLSN = 1
	}
	return &Log{
		path:    path,
		file:    file,
		nextLSN: nextLSN,
		sync:    syncWrites,
		log:     log,
	}, nil
}

// AppendCommit writes the transaction's change set followed by a commit
// record. The commit record only hits the log after every operation
// entry, so recovery never applies half a transaction.
func (l *Log) AppendCommit(txnID uint64, cs *storage.ChangeSet) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return errors.New(errors.CodeStorage, "WAL is closed")
	}

	for _, change := range cs.Changes {
		entryType, err := entryTypeFor(change.Kind)
		if err != nil {
			return errors.Wrap(err, errors.CodeInternal, "unsupported change in WAL append")
		}
		entry := &Entry{LSN: l.nextLSN, TxnID: txnID, Type: entryType, Change: change}
		if err := l.append(entry); err != nil {
			return err
		}
	}

	commit := &Entry{LSN: l.nextLSN, TxnID: txnID, Type: EntryCommit}
	if err := l.append(commit); err != nil {
		return err
	}

	if l.sync {
		if err := l.file.Sync(); err != nil {
			return errors.Wrap(err, errors.CodeStorage, "failed to sync WAL")
		}
	}

	l.log.Debug("transaction logged",
		zap.Uint64("txn", txnID),
		zap.Int("changes", len(cs.Changes)))
	return nil
}

func (l *Log) append(e *Entry) error {
	data, err := e.Encode()
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to encode WAL entry")
	}
	if _, err := l.file.Write(data); err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to append WAL entry")
	}
	l.nextLSN++
	return nil
}

// Reset truncates the log. Called after a checkpoint has made the logged
// state durable in the snapshot.
func (l *Log) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return errors.New(errors.CodeStorage, "WAL is closed")
	}
	if err := l.file.Truncate(0); err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to truncate WAL")
	}
	if _, err := l.file.Seek(0, 0); err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to rewind WAL")
	}
	l.nextLSN = 1
	return nil
}

// Close syncs and closes the log file. Further appends fail.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		l.file = nil
		return errors.Wrap(err, errors.CodeStorage, "failed to sync WAL on close")
	}
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to close WAL")
	}
	return nil
}

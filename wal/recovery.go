package wal

import (
	"os"

	"go.uber.org/zap"

	"corvusDB/errors"
	"corvusDB/storage"
)

// RecoveryResult is what Replay found in the log.
type RecoveryResult struct {
	// Changes holds the operations of every committed transaction, in
	// commit order. Uncommitted tails are discarded.
	Changes *storage.ChangeSet

	// Committed is the number of committed transactions replayed.
	Committed int

	// NextLSN is one past the highest valid LSN seen.
	NextLSN uint64

	// MaxTxnID is the highest transaction ID seen, committed or not.
	MaxTxnID uint64
}

// Replay scans the log file and collects the change sets of committed
// transactions. A torn tail (truncated or checksum-failing entry) ends
// the scan: everything before it is kept, everything after is discarded,
// which matches the append-then-sync discipline of the writer.
func Replay(path string, log *zap.Logger) (*RecoveryResult, error) {
	if log == nil {
		log = zap.NewNop()
	}

	result := &RecoveryResult{
		Changes: &storage.ChangeSet{},
		NextLSN: 1,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return result, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "failed to read WAL")
	}

	pending := make(map[uint64][]storage.Change)
	offset := 0
	torn := false

	for offset < len(data) {
		entry, n, err := DecodeEntry(data[offset:])
		if err != nil {
			// Torn write at the tail; stop here.
			log.Warn("WAL scan stopped at damaged entry",
				zap.Int("offset", offset),
				zap.Error(err))
			torn = true
			break
		}
		offset += n

		if entry.LSN >= result.NextLSN {
			result.NextLSN = entry.LSN + 1
		}
		if entry.TxnID > result.MaxTxnID {
			result.MaxTxnID = entry.TxnID
		}

		if entry.Type == EntryCommit {
			for _, change := range pending[entry.TxnID] {
				result.Changes.Append(change)
			}
			delete(pending, entry.TxnID)
			result.Committed++
			continue
		}
		pending[entry.TxnID] = append(pending[entry.TxnID], entry.Change)
	}

	if result.Committed > 0 || torn || len(pending) > 0 {
		log.Info("WAL replay finished",
			zap.String("path", path),
			zap.Int("committed", result.Committed),
			zap.Int("discarded_txns", len(pending)),
			zap.Bool("torn_tail", torn))
	}
	return result, nil
}

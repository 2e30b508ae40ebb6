package wal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"corvusDB/storage"
)

func sampleChangeSet() *storage.ChangeSet {
	cs := &storage.ChangeSet{}
	cs.Append(storage.Change{
		Kind:  storage.ChangeCreateTable,
		Table: "events",
		Columns: []storage.Column{
			{Name: "kind", Type: storage.TypeText},
			{Name: "seq", Type: storage.TypeInteger},
		},
	})
	cs.Append(storage.Change{
		Kind:  storage.ChangeInsert,
		Table: "events",
		RowID: 1,
		Values: map[string]storage.Value{
			"kind": storage.Text("open"),
			"seq":  storage.Integer(1),
		},
	})
	return cs
}

func TestEntryEncodeDecode(t *testing.T) {
	entry := &Entry{
		LSN:   7,
		TxnID: 3,
		Type:  EntryInsert,
		Change: storage.Change{
			Kind:  storage.ChangeInsert,
			Table: "events",
			RowID: 42,
			Values: map[string]storage.Value{
				"kind": storage.Text(strings.Repeat("payload ", 64)),
			},
		},
	}

	data, err := entry.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	decoded, n, err := DecodeEntry(data)
	if err != nil {
		t.Fatalf("DecodeEntry() error = %v", err)
	}
	if n != len(data) {
		t.Errorf("consumed %d bytes of %d", n, len(data))
	}
	if decoded.LSN != 7 || decoded.TxnID != 3 || decoded.Type != EntryInsert {
		t.Errorf("header mismatch: %+v", decoded)
	}
	if decoded.Change.RowID != 42 || decoded.Change.Table != "events" {
		t.Errorf("change mismatch: %+v", decoded.Change)
	}
	if !decoded.Change.Values["kind"].Equal(entry.Change.Values["kind"]) {
		t.Error("large payload did not survive compression round trip")
	}
}

func TestEntryChecksumRejectsCorruption(t *testing.T) {
	entry := &Entry{LSN: 1, TxnID: 1, Type: EntryCommit}
	data, err := entry.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	data[9] ^= 0x01
	if _, _, err := DecodeEntry(data); err == nil {
		t.Error("expected checksum mismatch for flipped bit")
	}
}

func TestReplayAppliesOnlyCommittedTransactions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corvus.wal")

	log, err := Open(path, 1, true, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := log.AppendCommit(1, sampleChangeSet()); err != nil {
		t.Fatalf("AppendCommit() error = %v", err)
	}

	// Write op entries for txn 2 without a commit record, simulating a
	// crash mid-commit.
	uncommitted := &Entry{
		LSN:   100,
		TxnID: 2,
		Type:  EntryInsert,
		Change: storage.Change{
			Kind:   storage.ChangeInsert,
			Table:  "events",
			RowID:  2,
			Values: map[string]storage.Value{"seq": storage.Integer(2)},
		},
	}
	data, err := uncommitted.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	log.mu.Lock()
	if _, err := log.file.Write(data); err != nil {
		t.Fatalf("raw append: %v", err)
	}
	log.mu.Unlock()
	if err := log.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	result, err := Replay(path, nil)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if result.Committed != 1 {
		t.Errorf("Committed = %d, want 1", result.Committed)
	}
	if len(result.Changes.Changes) != 2 {
		t.Errorf("replayed %d changes, want 2 (create + insert)", len(result.Changes.Changes))
	}
	for _, c := range result.Changes.Changes {
		if c.RowID == 2 {
			t.Error("uncommitted change leaked into replay")
		}
	}
	if result.MaxTxnID != 2 {
		t.Errorf("MaxTxnID = %d, want 2", result.MaxTxnID)
	}
}

func TestReplayStopsAtTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corvus.wal")

	log, err := Open(path, 1, true, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := log.AppendCommit(1, sampleChangeSet()); err != nil {
		t.Fatalf("AppendCommit() error = %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Append garbage simulating a torn write.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.Write([]byte{0xDE, 0xAD, 0xBE}); err != nil {
		t.Fatalf("append garbage: %v", err)
	}
	f.Close()

	result, err := Replay(path, nil)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if result.Committed != 1 {
		t.Errorf("torn tail should not lose the committed prefix, got %d", result.Committed)
	}
}

func TestReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corvus.wal")

	log, err := Open(path, 1, true, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := log.AppendCommit(1, sampleChangeSet()); err != nil {
		t.Fatalf("AppendCommit() error = %v", err)
	}
	if err := log.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	result, err := Replay(path, nil)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if result.Committed != 0 {
		t.Errorf("reset log should replay nothing, got %d transactions", result.Committed)
	}
}

func TestReplayMissingFile(t *testing.T) {
	result, err := Replay(filepath.Join(t.TempDir(), "absent.wal"), nil)
	if err != nil {
		t.Fatalf("Replay() on missing file error = %v", err)
	}
	if result.Committed != 0 || result.NextLSN != 1 {
		t.Errorf("unexpected result for missing file: %+v", result)
	}
}

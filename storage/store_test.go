package storage

import (
	"os"
	"path/filepath"
	"testing"

	"corvusDB/errors"
)

func usersChangeSet() *ChangeSet {
	cs := &ChangeSet{}
	cs.Append(Change{Kind: ChangeCreateTable, Table: "users", Columns: []Column{
		{Name: "name", Type: TypeText},
		{Name: "age", Type: TypeInteger},
	}})
	cs.Append(Change{Kind: ChangeInsert, Table: "users", RowID: 1, Values: map[string]Value{
		"name": Text("ada"), "age": Integer(36),
	}})
	cs.Append(Change{Kind: ChangeInsert, Table: "users", RowID: 2, Values: map[string]Value{
		"name": Text("grace"), "age": Integer(45),
	}})
	return cs
}

func TestApplyChangeSet(t *testing.T) {
	s, err := NewStore("", "none", nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	if err := s.Apply(usersChangeSet()); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	count, err := s.RowCount("users")
	if err != nil || count != 2 {
		t.Fatalf("RowCount = %d, %v; want 2", count, err)
	}

	update := &ChangeSet{}
	update.Append(Change{Kind: ChangeUpdate, Table: "users", RowID: 1, Values: map[string]Value{
		"age": Integer(37),
	}})
	update.Append(Change{Kind: ChangeDelete, Table: "users", RowID: 2})
	if err := s.Apply(update); err != nil {
		t.Fatalf("Apply(update) error = %v", err)
	}

	row, ok, err := s.GetRow("users", 1)
	if err != nil || !ok {
		t.Fatalf("GetRow = %v, %v", ok, err)
	}
	if !row.Values["age"].Equal(Integer(37)) {
		t.Errorf("update not applied, age = %v", row.Values["age"])
	}
	if !row.Values["name"].Equal(Text("ada")) {
		t.Errorf("partial update clobbered other columns, name = %v", row.Values["name"])
	}

	if _, ok, _ := s.GetRow("users", 2); ok {
		t.Error("deleted row still visible")
	}
}

func TestScanOrdersByRowID(t *testing.T) {
	s, _ := NewStore("", "none", nil)
	cs := &ChangeSet{}
	cs.Append(Change{Kind: ChangeCreateTable, Table: "t", Columns: []Column{{Name: "v", Type: TypeInteger}}})
	for _, id := range []int64{5, 1, 3} {
		cs.Append(Change{Kind: ChangeInsert, Table: "t", RowID: id, Values: map[string]Value{"v": Integer(id)}})
	}
	if err := s.Apply(cs); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	rows, err := s.Scan("t")
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	for i, want := range []int64{1, 3, 5} {
		if rows[i].ID != want {
			t.Errorf("rows[%d].ID = %d, want %d", i, rows[i].ID, want)
		}
	}

	next, err := s.NextRowID("t")
	if err != nil || next != 6 {
		t.Errorf("NextRowID = %d, %v; want 6", next, err)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	for _, algo := range []string{"none", "snappy", "lz4", "zstd"} {
		t.Run(algo, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "corvus.db")

			s, err := NewStore(path, algo, nil)
			if err != nil {
				t.Fatalf("NewStore() error = %v", err)
			}
			if err := s.Apply(usersChangeSet()); err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if err := s.Checkpoint(); err != nil {
				t.Fatalf("Checkpoint() error = %v", err)
			}

			reopened, err := NewStore(path, algo, nil)
			if err != nil {
				t.Fatalf("reopen error = %v", err)
			}

			row, ok, err := reopened.GetRow("users", 1)
			if err != nil || !ok {
				t.Fatalf("GetRow after reload = %v, %v", ok, err)
			}
			// Values written as text and integer come back with the same
			// type and content.
			if !row.Values["name"].Equal(Text("ada")) {
				t.Errorf("text value did not round trip: %v", row.Values["name"])
			}
			if !row.Values["age"].Equal(Integer(36)) {
				t.Errorf("integer value did not round trip: %v", row.Values["age"])
			}

			next, err := reopened.NextRowID("users")
			if err != nil || next != 3 {
				t.Errorf("NextRowID after reload = %d, %v; want 3", next, err)
			}
		})
	}
}

func TestCorruptSnapshotDetected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corvus.db")

	s, _ := NewStore(path, "snappy", nil)
	if err := s.Apply(usersChangeSet()); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if err := s.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	data[len(data)-1] ^= 0xFF
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write corrupted snapshot: %v", err)
	}

	_, err = NewStore(path, "snappy", nil)
	if err == nil {
		t.Fatal("expected corruption to be detected")
	}
	if errors.CodeOf(err) != errors.CodeStorage {
		t.Errorf("expected STORAGE_FAULT, got %s", errors.CodeOf(err))
	}
}

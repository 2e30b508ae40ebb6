// Package storage holds the committed state of a database: typed values,
// tables and rows, plus compressed snapshot persistence. The store only
// ever contains committed data; uncommitted writes live in the owning
// transaction's change set until commit applies them here.
package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"corvusDB/compression"
	"corvusDB/errors"
)

// Snapshot file layout: magic, format version, algorithm name, CRC32 of
// the compressed payload, then the payload itself.
var snapshotMagic = [4]byte{'C', 'R', 'V', 'S'}

const snapshotVersion = 1

// Store is the committed table state for one database file.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*Table
	path   string // snapshot file path, empty for in-memory databases
	comp   *compression.Engine
	algo   string
	log    *zap.Logger
}

// NewStore creates a store backed by the snapshot file at path. An empty
// path creates a purely in-memory store. If the snapshot file exists it
// is loaded.
func NewStore(path, algo string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if algo == "" {
		algo = "snappy"
	}
	s := &Store{
		tables: make(map[string]*Table),
		path:   path,
		comp:   compression.NewEngine(),
		algo:   algo,
		log:    log,
	}
	if path != "" {
		if err := s.loadSnapshot(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// HasTable reports whether the table exists in committed state.
func (s *Store) HasTable(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tables[name]
	return ok
}

// Schema returns the column definitions of a table.
func (s *Store) Schema(name string) ([]Column, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[name]
	if !ok {
		return nil, errors.Newf(errors.CodeStorage, "no such table: %s", name)
	}
	columns := make([]Column, len(t.Columns))
	copy(columns, t.Columns)
	return columns, nil
}

// GetRow returns a copy of one committed row.
func (s *Store) GetRow(table string, id int64) (Row, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[table]
	if !ok {
		return Row{}, false, errors.Newf(errors.CodeStorage, "no such table: %s", table)
	}
	row, ok := t.Rows[id]
	if !ok {
		return Row{}, false, nil
	}
	return row.Clone(), true, nil
}

// Scan returns copies of all committed rows of a table, ordered by row ID.
func (s *Store) Scan(table string) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[table]
	if !ok {
		return nil, errors.Newf(errors.CodeStorage, "no such table: %s", table)
	}
	rows := make([]Row, 0, len(t.Rows))
	for _, row := range t.Rows {
		rows = append(rows, row.Clone())
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}

// RowCount returns the number of committed rows in a table.
func (s *Store) RowCount(table string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[table]
	if !ok {
		return 0, errors.Newf(errors.CodeStorage, "no such table: %s", table)
	}
	return len(t.Rows), nil
}

// NextRowID returns the next row ID a transaction should assign for
// inserts into the table. Row ID assignment is safe because writers are
// serialized by the reserved lock.
func (s *Store) NextRowID(table string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[table]
	if !ok {
		return 0, errors.Newf(errors.CodeStorage, "no such table: %s", table)
	}
	return t.NextRowID, nil
}

// Apply installs a committed change set. The caller must hold the
// exclusive file lock; the internal mutex only protects in-memory reads
// racing with the map mutation.
func (s *Store) Apply(cs *ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range cs.Changes {
		switch c.Kind {
		case ChangeCreateTable:
			if _, exists := s.tables[c.Table]; exists {
				return errors.Newf(errors.CodeStorage, "table %s already exists", c.Table)
			}
			s.tables[c.Table] = newTable(c.Table, c.Columns)

		case ChangeInsert:
			t, ok := s.tables[c.Table]
			if !ok {
				return errors.Newf(errors.CodeStorage, "no such table: %s", c.Table)
			}
			values := make(map[string]Value, len(c.Values))
			for k, v := range c.Values {
				values[k] = v
			}
			t.Rows[c.RowID] = Row{ID: c.RowID, Values: values}
			if c.RowID >= t.NextRowID {
				t.NextRowID = c.RowID + 1
			}

		case ChangeUpdate:
			t, ok := s.tables[c.Table]
			if !ok {
				return errors.Newf(errors.CodeStorage, "no such table: %s", c.Table)
			}
			row, ok := t.Rows[c.RowID]
			if !ok {
				// Row deleted by the same change set earlier; nothing to do.
				continue
			}
			updated := row.Clone()
			for k, v := range c.Values {
				updated.Values[k] = v
			}
			t.Rows[c.RowID] = updated

		case ChangeDelete:
			t, ok := s.tables[c.Table]
			if !ok {
				return errors.Newf(errors.CodeStorage, "no such table: %s", c.Table)
			}
			delete(t.Rows, c.RowID)

		default:
			return errors.Newf(errors.CodeInternal, "unknown change kind %d", c.Kind)
		}
	}
	return nil
}

// Checkpoint writes the full committed state to the snapshot file. It is
// a no-op for in-memory stores.
func (s *Store) Checkpoint() error {
	if s.path == "" {
		return nil
	}

	s.mu.RLock()
	payload, err := json.Marshal(s.tables)
	s.mu.RUnlock()
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to serialize snapshot")
	}

	compressed, err := s.comp.Compress(payload, s.algo)
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to compress snapshot")
	}

	var buf bytes.Buffer
	buf.Write(snapshotMagic[:])
	buf.WriteByte(snapshotVersion)
	buf.WriteByte(byte(len(s.algo)))
	buf.WriteString(s.algo)
	var crc [4]byte
	binary.LittleEndian.PutUint32(crc[:], crc32.ChecksumIEEE(compressed))
	buf.Write(crc[:])
	buf.Write(compressed)

	// Write to a temp file then rename so a crash never leaves a torn
	// snapshot behind.
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to create data directory")
	}
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to write snapshot")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to install snapshot")
	}

	s.log.Debug("snapshot written",
		zap.String("path", s.path),
		zap.String("algorithm", s.algo),
		zap.Int("raw_bytes", len(payload)),
		zap.Int("compressed_bytes", len(compressed)))
	return nil
}

func (s *Store) loadSnapshot() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to read snapshot")
	}

	if len(data) < 6 || !bytes.Equal(data[:4], snapshotMagic[:]) {
		return errors.Newf(errors.CodeStorage, "snapshot %s is not a corvus database", s.path)
	}
	if data[4] != snapshotVersion {
		return errors.Newf(errors.CodeStorage, "unsupported snapshot version %d", data[4])
	}

	algoLen := int(data[5])
	rest := data[6:]
	if len(rest) < algoLen+4 {
		return errors.Newf(errors.CodeStorage, "snapshot %s is truncated", s.path)
	}
	algo := string(rest[:algoLen])
	want := binary.LittleEndian.Uint32(rest[algoLen : algoLen+4])
	compressed := rest[algoLen+4:]

	if crc32.ChecksumIEEE(compressed) != want {
		return errors.Newf(errors.CodeStorage, "snapshot %s failed checksum verification", s.path)
	}

	payload, err := s.comp.Decompress(compressed, algo)
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to decompress snapshot")
	}

	tables := make(map[string]*Table)
	if err := json.Unmarshal(payload, &tables); err != nil {
		return errors.Wrap(err, errors.CodeStorage, "failed to decode snapshot")
	}
	for _, t := range tables {
		if t.Rows == nil {
			t.Rows = make(map[int64]Row)
		}
	}
	s.tables = tables

	s.log.Info("snapshot loaded",
		zap.String("path", s.path),
		zap.Int("tables", len(tables)))
	return nil
}

// String describes the store for logs.
func (s *Store) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("store(%d tables)", len(s.tables))
}

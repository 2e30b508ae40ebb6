// Package wal implements the write-ahead log. Change sets are appended
// and fsynced before commit application, so a crash between commit and
// checkpoint loses nothing: recovery replays every committed transaction
// found in the log.
package wal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"

	"github.com/golang/snappy"

	"corvusDB/storage"
)

// EntryType identifies what an entry records.
type EntryType uint32

const (
	EntryCreateTable EntryType = iota + 1
	EntryInsert
	EntryUpdate
	EntryDelete
	EntryCommit
)

func (t EntryType) String() string {
	switch t {
	case EntryCreateTable:
		return "CREATE_TABLE"
	case EntryInsert:
		return "INSERT"
	case EntryUpdate:
		return "UPDATE"
	case EntryDelete:
		return "DELETE"
	case EntryCommit:
		return "COMMIT"
	default:
		return fmt.Sprintf("Unknown(%d)", uint32(t))
	}
}

// Compression flag stored in the entry header.
const flagSnappy = 1

// Entry is a single WAL record. Operation entries carry one storage
// change; a commit entry closes the transaction.
type Entry struct {
	LSN    uint64
	TxnID  uint64
	Type   EntryType
	Change storage.Change // zero for commit entries
}

// header layout, little endian:
//
//	LSN        uint64
//	TxnID      uint64
//	Type       uint32
//	Flags      uint8
//	PayloadLen uint32
//	Checksum   uint32 (CRC32 over header-with-zero-checksum + payload)
const headerSize = 8 + 8 + 4 + 1 + 4 + 4

// Encode serializes the entry. Payloads above the compression threshold
// are snappy-compressed.
func (e *Entry) Encode() ([]byte, error) {
	var payload []byte
	if e.Type != EntryCommit {
		var err error
		payload, err = json.Marshal(e.Change)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize change: %w", err)
		}
	}

	var flags uint8
	if len(payload) >= compressionThreshold {
		compressed := snappy.Encode(nil, payload)
		if len(compressed) < len(payload) {
			payload = compressed
			flags = flagSnappy
		}
	}

	buf := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint64(buf[0:], e.LSN)
	binary.LittleEndian.PutUint64(buf[8:], e.TxnID)
	binary.LittleEndian.PutUint32(buf[16:], uint32(e.Type))
	buf[20] = flags
	binary.LittleEndian.PutUint32(buf[21:], uint32(len(payload)))
	copy(buf[headerSize:], payload)

	// Checksum covers the header (with the checksum field still zero)
	// and the payload.
	checksum := crc32.ChecksumIEEE(buf[:25])
	checksum = crc32.Update(checksum, crc32.IEEETable, payload)
	binary.LittleEndian.PutUint32(buf[25:], checksum)

	return buf, nil
}

// compressionThreshold is the payload size below which compression is not
// worth the header byte.
const compressionThreshold = 128

// DecodeEntry reads one entry from the front of data and returns it along
// with the number of bytes consumed. Truncated or corrupt data reports an
// error; recovery treats that as the end of the usable log.
func DecodeEntry(data []byte) (*Entry, int, error) {
	if len(data) < headerSize {
		return nil, 0, fmt.Errorf("truncated entry header: %d bytes", len(data))
	}

	payloadLen := int(binary.LittleEndian.Uint32(data[21:]))
	total := headerSize + payloadLen
	if len(data) < total {
		return nil, 0, fmt.Errorf("truncated entry payload: want %d bytes, have %d", total, len(data))
	}

	stored := binary.LittleEndian.Uint32(data[25:])
	checksum := crc32.ChecksumIEEE(data[:25])
	checksum = crc32.Update(checksum, crc32.IEEETable, data[headerSize:total])
	if checksum != stored {
		return nil, 0, fmt.Errorf("entry checksum mismatch")
	}

	e := &Entry{
		LSN:   binary.LittleEndian.Uint64(data[0:]),
		TxnID: binary.LittleEndian.Uint64(data[8:]),
		Type:  EntryType(binary.LittleEndian.Uint32(data[16:])),
	}

	payload := data[headerSize:total]
	if data[20]&flagSnappy != 0 {
		decoded, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to decompress entry payload: %w", err)
		}
		payload = decoded
	}

	if e.Type != EntryCommit {
		if err := json.Unmarshal(payload, &e.Change); err != nil {
			return nil, 0, fmt.Errorf("failed to decode change: %w", err)
		}
	}
	return e, total, nil
}

// entryTypeFor maps a change kind onto its WAL entry type.
func entryTypeFor(kind storage.ChangeKind) (EntryType, error) {
	switch kind {
	case storage.ChangeCreateTable:
		return EntryCreateTable, nil
	case storage.ChangeInsert:
		return EntryInsert, nil
	case storage.ChangeUpdate:
		return EntryUpdate, nil
	case storage.ChangeDelete:
		return EntryDelete, nil
	default:
		return 0, fmt.Errorf("no WAL entry type for change kind %d", kind)
	}
}

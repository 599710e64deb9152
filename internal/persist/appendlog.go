package persist

import (
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
)

// Op tags one append-log record (§4.H "ops {ADD, DELETE, MIGRATE,
// UPDATE_ENTRYPOINT}").
type Op uint8

const (
	OpAdd Op = iota + 1
	OpDelete
	OpMigrate
	OpUpdateEntryPoint
)

// Record is one decoded append-log entry.
type Record struct {
	Op            Op
	InternalIndex uint32
	Payload       []byte
}

// recordHeaderSize is the fixed portion of an on-disk record: length prefix,
// op tag, internal index. Payload and the trailing CRC follow.
const recordHeaderSize = 4 + 1 + 4

// AppendLog is a CRC32C-checked, length-prefixed sequential log of mutations
// since the last snapshot, grounded on the teacher's internal/storage/wal.go
// length-prefix framing but with a binary tag+checksum per record instead of
// a checksum-less JSON blob.
type AppendLog struct {
	mu sync.Mutex
	f  *os.File
}

// OpenAppendLog opens (creating if absent) the log file at path for
// appending.
func OpenAppendLog(path string) (*AppendLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("persist: open append log: %w", err)
	}
	return &AppendLog{f: f}, nil
}

// Append writes one record, synchronously, including its CRC32C trailer.
func (l *AppendLog) Append(op Op, internalIndex uint32, payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	body := make([]byte, recordHeaderSize-4+len(payload))
	body[0] = byte(op)
	putUint32(body[1:5], internalIndex)
	copy(body[5:], payload)

	crc := crc32.Checksum(body, castagnoliTable)
	total := make([]byte, 4+len(body)+4)
	putUint32(total[0:4], uint32(len(body)))
	copy(total[4:4+len(body)], body)
	putUint32(total[4+len(body):], crc)

	if _, err := l.f.Write(total); err != nil {
		return fmt.Errorf("persist: append record: %w", err)
	}
	return l.f.Sync()
}

// Close closes the underlying file.
func (l *AppendLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// ReplayLog reads every well-formed record from path in order. On hitting a
// truncated length prefix, a short body, or a CRC mismatch, it stops and
// truncates the file to the last valid record boundary (§4.H recovery:
// "replay until first CRC failure, then truncate"), so a half-written final
// record from a crash mid-append doesn't keep failing recovery forever.
func ReplayLog(path string) ([]Record, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("persist: open append log for replay: %w", err)
	}
	defer f.Close()

	var records []Record
	var offset int64
	lenBuf := make([]byte, 4)
	for {
		n, err := io.ReadFull(f, lenBuf)
		if err == io.EOF || (err == io.ErrUnexpectedEOF && n == 0) {
			break
		}
		if err != nil {
			break // truncated length prefix; stop here
		}
		bodyLen := getUint32(lenBuf)
		rest := make([]byte, int(bodyLen)+4)
		if _, err := io.ReadFull(f, rest); err != nil {
			break // truncated record; stop here
		}
		body := rest[:bodyLen]
		wantCRC := getUint32(rest[bodyLen:])
		if crc32.Checksum(body, castagnoliTable) != wantCRC {
			break // corrupted record; stop here
		}

		rec := Record{
			Op:            Op(body[0]),
			InternalIndex: getUint32(body[1:5]),
			Payload:       append([]byte(nil), body[5:]...),
		}
		records = append(records, rec)
		offset += 4 + int64(bodyLen) + 4
	}

	if err := f.Truncate(offset); err != nil {
		return records, fmt.Errorf("persist: truncate append log at %d: %w", offset, err)
	}
	return records, nil
}

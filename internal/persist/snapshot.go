package persist

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"hash/crc32"
	"os"
)

// IDEntry is one (external id, internal index) pair.
type IDEntry struct {
	Key           []byte
	InternalIndex uint32
}

// NodeEntry is one graph node's persisted shape.
type NodeEntry struct {
	InternalIndex uint32
	MaxLevel      uint8
	Tombstoned    bool
	Edges         [][]uint32
}

// VectorEntry is one original, verbatim vector keyed by internal index.
type VectorEntry struct {
	InternalIndex uint32
	Vector        []float32
}

// BufferEntry is one flat-buffer slot, in original slot order.
type BufferEntry struct {
	InternalIndex uint32
	Vector        []float32
	Migrated      bool
	Tombstoned    bool
}

// State is a complete point-in-time image of a coordinator (§4.H "point-in-
// time serialization"). The fixed header fields are pulled out separately so
// Write can lay down the bit-exact header before the (less constrained) body.
type State struct {
	Dimension      int
	M              int
	Mmax0          int
	EntryPoint     uint32
	HasEntryPoint  bool
	NodeCount      int64
	QuantizerType  int
	QuantizerCfg   []byte // gob-encoded quant.Config, opaque to this package

	IDs         []IDEntry
	Nodes       []NodeEntry
	Vectors     []VectorEntry
	Buffer      []BufferEntry
	DrainCursor int
}

// body is the gob-encoded payload that follows the fixed header. Only the
// header is required to be bit-exact; everything after it is this package's
// own implementation detail, so gob (already idiomatic for the corpus's
// config/metadata sections) is used instead of hand-rolling a second binary
// format for data the spec leaves unspecified.
type body struct {
	IDs         []IDEntry
	Nodes       []NodeEntry
	Vectors     []VectorEntry
	Buffer      []BufferEntry
	DrainCursor int
	Quantizer   []byte
}

// WriteSnapshot serializes s to path atomically: the full snapshot is
// written to path+".tmp", fsynced, then renamed over path so a reader never
// observes a partially-written file (§4.H "atomic write via temp+rename"),
// mirroring the teacher's atomicWrite helper.
func WriteSnapshot(path string, s *State) error {
	hdr := Header{
		Version:       formatVersion,
		Dimension:     uint32(s.Dimension),
		M:             uint32(s.M),
		Mmax0:         uint32(s.Mmax0),
		NodeCount:     uint64(s.NodeCount),
		QuantizerTag:  uint32(s.QuantizerType),
		ParamsOffset:  headerSize,
	}
	if s.HasEntryPoint {
		hdr.EntryPoint = s.EntryPoint
	} else {
		hdr.EntryPoint = NoEntryPoint
	}

	var bodyBuf bytes.Buffer
	if err := gob.NewEncoder(&bodyBuf).Encode(body{
		IDs:         s.IDs,
		Nodes:       s.Nodes,
		Vectors:     s.Vectors,
		Buffer:      s.Buffer,
		DrainCursor: s.DrainCursor,
		Quantizer:   s.QuantizerCfg,
	}); err != nil {
		return fmt.Errorf("persist: encode body: %w", err)
	}

	return atomicWrite(path, func(f *os.File) error {
		if _, err := f.Write(hdr.Marshal()); err != nil {
			return err
		}
		crc := crc32.Checksum(bodyBuf.Bytes(), castagnoliTable)
		var trailer [4]byte
		putUint32(trailer[:], crc)
		if _, err := f.Write(bodyBuf.Bytes()); err != nil {
			return err
		}
		_, err := f.Write(trailer[:])
		return err
	})
}

// ReadSnapshot loads and validates a snapshot written by WriteSnapshot.
func ReadSnapshot(path string) (*State, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) < headerSize+4 {
		return nil, fmt.Errorf("persist: snapshot truncated")
	}
	hdr, err := UnmarshalHeader(raw[:headerSize])
	if err != nil {
		return nil, err
	}

	bodyBytes := raw[headerSize : len(raw)-4]
	wantCRC := getUint32(raw[len(raw)-4:])
	gotCRC := crc32.Checksum(bodyBytes, castagnoliTable)
	if wantCRC != gotCRC {
		return nil, fmt.Errorf("persist: snapshot body checksum mismatch (corrupted state)")
	}

	var b body
	if err := gob.NewDecoder(bytes.NewReader(bodyBytes)).Decode(&b); err != nil {
		return nil, fmt.Errorf("persist: decode body: %w", err)
	}

	s := &State{
		Dimension:     int(hdr.Dimension),
		M:             int(hdr.M),
		Mmax0:         int(hdr.Mmax0),
		NodeCount:     int64(hdr.NodeCount),
		QuantizerType: int(hdr.QuantizerTag),
		QuantizerCfg:  b.Quantizer,
		IDs:           b.IDs,
		Nodes:         b.Nodes,
		Vectors:       b.Vectors,
		Buffer:        b.Buffer,
		DrainCursor:   b.DrainCursor,
	}
	if hdr.EntryPoint != NoEntryPoint {
		s.EntryPoint = hdr.EntryPoint
		s.HasEntryPoint = true
	}
	return s, nil
}

// atomicWrite writes via a temp file in the same directory as finalPath,
// syncs and closes it, then renames it into place. Grounded directly on the
// teacher's internal/index/hnsw/persistence.go atomicWrite helper.
func atomicWrite(finalPath string, writeFunc func(*os.File) error) error {
	tmpPath := finalPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("persist: create temp file: %w", err)
	}

	if err := writeFunc(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("persist: sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("persist: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("persist: rename temp file: %w", err)
	}
	return nil
}

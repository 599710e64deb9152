// Package persist implements the persistence layer (§4.H): a point-in-time
// snapshot with a bit-exact binary header, plus an optional CRC-checked
// append log for mutations since the last snapshot. Recovery loads the
// snapshot, then replays the log up to the first corrupted record.
package persist

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// castagnoliTable is CRC32C, per §4.H's checksum choice for append-log
// records and the snapshot body trailer.
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

func putUint32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func getUint32(b []byte) uint32    { return binary.LittleEndian.Uint32(b) }
func putUint64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
func getUint64(b []byte) uint64    { return binary.LittleEndian.Uint64(b) }

const (
	magic        = "OMEN"
	headerSize   = 512
	formatVersion = uint32(1)

	// NoEntryPoint marks an empty graph in the header's entry_point field.
	NoEntryPoint = uint32(0xFFFFFFFF)
)

// Header is the bit-exact 512-byte snapshot header (§4.H "Header layout").
type Header struct {
	Version        uint32
	Dimension      uint32
	M              uint32
	Mmax0          uint32
	EntryPoint     uint32
	NodeCount      uint64
	QuantizerTag   uint32
	ParamsOffset   uint64
}

// Marshal writes h into the exact byte layout the spec fixes.
func (h Header) Marshal() []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.Dimension)
	binary.LittleEndian.PutUint32(buf[12:16], h.M)
	binary.LittleEndian.PutUint32(buf[16:20], h.Mmax0)
	binary.LittleEndian.PutUint32(buf[20:24], h.EntryPoint)
	binary.LittleEndian.PutUint64(buf[24:32], h.NodeCount)
	binary.LittleEndian.PutUint32(buf[32:36], h.QuantizerTag)
	binary.LittleEndian.PutUint64(buf[36:44], h.ParamsOffset)
	// 44..47 padding within the quantizer-tag+offset region, 48..511 reserved;
	// both left zeroed by the initial make().
	return buf
}

// UnmarshalHeader parses and validates the fixed header, including the magic
// check (§7 CorruptedState: "invariant check failed at load").
func UnmarshalHeader(buf []byte) (Header, error) {
	if len(buf) < headerSize {
		return Header{}, errors.New("persist: header truncated")
	}
	if string(buf[0:4]) != magic {
		return Header{}, fmt.Errorf("persist: bad magic %q", buf[0:4])
	}
	var h Header
	h.Version = binary.LittleEndian.Uint32(buf[4:8])
	h.Dimension = binary.LittleEndian.Uint32(buf[8:12])
	h.M = binary.LittleEndian.Uint32(buf[12:16])
	h.Mmax0 = binary.LittleEndian.Uint32(buf[16:20])
	h.EntryPoint = binary.LittleEndian.Uint32(buf[20:24])
	h.NodeCount = binary.LittleEndian.Uint64(buf[24:32])
	h.QuantizerTag = binary.LittleEndian.Uint32(buf[32:36])
	h.ParamsOffset = binary.LittleEndian.Uint64(buf[36:44])
	if h.Version > formatVersion {
		return Header{}, fmt.Errorf("persist: unsupported version %d", h.Version)
	}
	return h, nil
}

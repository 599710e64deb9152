package persist

import "math"

// EncodeAdd packs an external id and its vector into an OpAdd payload:
// [4-byte id length][id bytes][float32 vector, little-endian].
func EncodeAdd(id []byte, vec []float32) []byte {
	out := make([]byte, 4+len(id)+4*len(vec))
	putUint32(out[0:4], uint32(len(id)))
	copy(out[4:4+len(id)], id)
	off := 4 + len(id)
	for _, f := range vec {
		putUint32(out[off:off+4], math.Float32bits(f))
		off += 4
	}
	return out
}

// DecodeAdd reverses EncodeAdd.
func DecodeAdd(payload []byte) (id []byte, vec []float32) {
	idLen := int(getUint32(payload[0:4]))
	id = append([]byte(nil), payload[4:4+idLen]...)
	rest := payload[4+idLen:]
	vec = make([]float32, len(rest)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(getUint32(rest[i*4 : i*4+4]))
	}
	return id, vec
}

// EncodeDelete packs the external id deleted under an internal index.
func EncodeDelete(id []byte) []byte { return append([]byte(nil), id...) }

// DecodeDelete reverses EncodeDelete.
func DecodeDelete(payload []byte) []byte { return append([]byte(nil), payload...) }

// EncodeUpdateEntryPoint packs a new entry point and its level.
func EncodeUpdateEntryPoint(entryPoint uint32, level uint8) []byte {
	out := make([]byte, 5)
	putUint32(out[0:4], entryPoint)
	out[4] = level
	return out
}

// DecodeUpdateEntryPoint reverses EncodeUpdateEntryPoint.
func DecodeUpdateEntryPoint(payload []byte) (entryPoint uint32, level uint8) {
	return getUint32(payload[0:4]), payload[4]
}

package persist

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Version:      formatVersion,
		Dimension:    128,
		M:            16,
		Mmax0:        32,
		EntryPoint:   42,
		NodeCount:    1000,
		QuantizerTag: 2,
		ParamsOffset: headerSize,
	}
	buf := h.Marshal()
	require.Len(t, buf, headerSize)
	require.Equal(t, magic, string(buf[0:4]))

	got, err := UnmarshalHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestUnmarshalHeaderBadMagic(t *testing.T) {
	buf := make([]byte, headerSize)
	copy(buf, "NOPE")
	_, err := UnmarshalHeader(buf)
	require.Error(t, err)
}

func TestUnmarshalHeaderTruncated(t *testing.T) {
	_, err := UnmarshalHeader(make([]byte, 10))
	require.Error(t, err)
}

func TestUnmarshalHeaderFutureVersion(t *testing.T) {
	h := Header{Version: formatVersion + 1}
	_, err := UnmarshalHeader(h.Marshal())
	require.Error(t, err)
}

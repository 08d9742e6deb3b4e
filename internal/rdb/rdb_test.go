package rdb

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func len6(n int) byte {
	return byte(n & lenMask6)
}

func strField(s string) []byte {
	return append([]byte{len6(len(s))}, []byte(s)...)
}

func TestDecodeEmptySnapshot(t *testing.T) {
	buf := []byte{0xFB, 0x00, 0x00, 0xFF}
	snap, err := Decode(buf)
	require.NoError(t, err)
	assert.Empty(t, snap.Main)
	assert.Empty(t, snap.Expiry)
}

func TestDecodeSingleKeyNoExpiry(t *testing.T) {
	buf := []byte{0xFB, 0x01, 0x00, typeString}
	buf = append(buf, strField("foo")...)
	buf = append(buf, strField("bar")...)
	buf = append(buf, 0xFF)

	snap, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("bar"), snap.Main["foo"])
	assert.Empty(t, snap.Expiry)
}

func TestDecodeKeyWithFutureExpiry(t *testing.T) {
	buf := []byte{0xFB, 0x01, 0x01, opExpiryMs}
	deadline := make([]byte, 8)
	binary.LittleEndian.PutUint64(deadline, 99999999999999) // far future
	buf = append(buf, deadline...)
	buf = append(buf, typeString)
	buf = append(buf, strField("k")...)
	buf = append(buf, strField("v")...)
	buf = append(buf, 0xFF)

	snap, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), snap.Main["k"])
	assert.Equal(t, uint64(99999999999999), snap.Expiry["k"])
}

func TestDecodeKeyWithPastExpiryIsDiscarded(t *testing.T) {
	buf := []byte{0xFB, 0x01, 0x01, opExpiryMs}
	deadline := make([]byte, 8)
	binary.LittleEndian.PutUint64(deadline, 1) // 1970, long expired
	buf = append(buf, deadline...)
	buf = append(buf, typeString)
	buf = append(buf, strField("k")...)
	buf = append(buf, strField("v")...)
	buf = append(buf, 0xFF)

	snap, err := Decode(buf)
	require.NoError(t, err)
	_, present := snap.Main["k"]
	assert.False(t, present)
	assert.Empty(t, snap.Expiry)
}

func TestDecodeMissingDBMarker(t *testing.T) {
	_, err := Decode([]byte("REDIS0011not-a-snapshot"))
	assert.ErrorIs(t, err, ErrNoDBMarker)
}

func TestDecodeTruncatedWithoutEOFMarkerDiscardsResults(t *testing.T) {
	buf := []byte{0xFB, 0x01, 0x00, typeString}
	buf = append(buf, strField("foo")...)
	buf = append(buf, strField("bar")...)
	// no trailing 0xFF

	snap, err := Decode(buf)
	assert.ErrorIs(t, err, ErrTruncated)
	assert.Empty(t, snap.Main)
	assert.Empty(t, snap.Expiry)
}

func TestDecodeRejectsNonStringValueType(t *testing.T) {
	buf := []byte{0xFB, 0x01, 0x00, 0x01} // 0x01 = list type, unsupported
	buf = append(buf, strField("foo")...)
	buf = append(buf, strField("bar")...)
	buf = append(buf, 0xFF)

	_, err := Decode(buf)
	assert.ErrorIs(t, err, ErrUnsupportedValueType)
}

func TestDecodeRejects14BitLength(t *testing.T) {
	buf := []byte{0xFB, 0x40, 0x00, 0xFF} // 0x40 = 01xxxxxx length tag
	_, err := Decode(buf)
	assert.ErrorIs(t, err, ErrUnsupportedLength)
}

func TestDecode32BitLittleEndianLength(t *testing.T) {
	// 0x80 (10xxxxxx tag) followed by a 4-byte little-endian length.
	buf := []byte{0xFB, 0x00, 0x00}
	buf = append(buf, typeString)
	lenBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBytes, 3)
	buf = append(buf, 0x80)
	buf = append(buf, lenBytes...)
	buf = append(buf, []byte("key")...)
	buf = append(buf, strField("val")...)
	buf = append(buf, 0xFF)

	snap, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("val"), snap.Main["key"])
}

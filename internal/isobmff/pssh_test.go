package isobmff

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func psshBoxV0(systemID, data []byte) []byte {
	size := 4 + 4 + 4 + 16 + 4 + len(data)
	buf := make([]byte, 0, size)
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], uint32(size))
	buf = append(buf, u32[:]...)
	buf = append(buf, 'p', 's', 's', 'h')
	buf = append(buf, 0, 0, 0, 0)
	buf = append(buf, systemID...)
	binary.BigEndian.PutUint32(u32[:], uint32(len(data)))
	buf = append(buf, u32[:]...)
	buf = append(buf, data...)
	return buf
}

var testSystemID = []byte{0xed, 0xef, 0x8b, 0xa9, 0x79, 0xd6, 0x4a, 0xce, 0xa3, 0xc8, 0x27, 0xdc, 0xd5, 0x1d, 0x21, 0xed}

func TestFindPssh_CapturesRawBoxAndData(t *testing.T) {
	data := []byte("license-payload")
	buf := psshBoxV0(testSystemID, data)

	records, err := FindPssh(buf, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, testSystemID, records[0].SystemID)
	assert.Equal(t, data, records[0].Data)
	assert.Equal(t, buf, records[0].RawBox)
}

func TestFindPssh_DedupsByteEqualBoxes(t *testing.T) {
	box := psshBoxV0(testSystemID, []byte("same-payload"))
	buf := append(append([]byte{}, box...), box...)

	records, err := FindPssh(buf, 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestDedupPssh_DistinguishesDifferentSystemIDs(t *testing.T) {
	otherSystemID := []byte{0x9a, 0x04, 0xf0, 0x79, 0x98, 0x40, 0x42, 0x86, 0xab, 0x92, 0xe6, 0x5b, 0xe0, 0x88, 0x5f, 0x95}
	boxA := psshBoxV0(testSystemID, []byte("payload"))
	boxB := psshBoxV0(otherSystemID, []byte("payload"))
	buf := append(append([]byte{}, boxA...), boxB...)

	records, err := FindPssh(buf, 0)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

package webm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"41.neocities.org/dashhls/internal/bitreader"
	"41.neocities.org/dashhls/internal/dasherr"
)

func elem(idBytes []byte, payload []byte) []byte {
	out := append([]byte{}, idBytes...)
	out = append(out, bitreader.EncodeVint(uint64(len(payload)))...)
	return append(out, payload...)
}

func beBytes(n uint64, width int) []byte {
	b := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		b[i] = byte(n)
		n >>= 8
	}
	return b
}

var (
	ebmlID              = []byte{0x1A, 0x45, 0xDF, 0xA3}
	segmentID           = []byte{0x18, 0x53, 0x80, 0x67}
	infoID              = []byte{0x15, 0x49, 0xA9, 0x66}
	timecodeScaleID     = []byte{0x2A, 0xD7, 0xB1}
	durationID          = []byte{0x44, 0x89}
	cuesID              = []byte{0x1C, 0x53, 0xBB, 0x6B}
	cuePointID          = []byte{0xBB}
	cueTimeID           = []byte{0xB3}
	cueTrackPositionsID = []byte{0xB7}
	cueClusterPositionID = []byte{0xF1}
)

func buildWebmCues(t *testing.T, timecodeScale uint64, durationTicks float64, cues [][2]uint64) []byte {
	t.Helper()
	var cuePoints []byte
	for _, c := range cues {
		cueTime, offset := c[0], c[1]
		trackPos := elem(cueClusterPositionID, beBytes(offset, 4))
		cuePoint := append(elem(cueTimeID, beBytes(cueTime, 4)), elem(cueTrackPositionsID, trackPos)...)
		cuePoints = append(cuePoints, elem(cuePointID, cuePoint)...)
	}
	cuesElem := elem(cuesID, cuePoints)

	durBits := math.Float64bits(durationTicks)
	durBytes := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		durBytes[i] = byte(durBits)
		durBits >>= 8
	}
	infoPayload := append(elem(timecodeScaleID, beBytes(timecodeScale, 4)), elem(durationID, durBytes)...)
	infoElem := elem(infoID, infoPayload)

	segmentPayload := append(append([]byte{}, infoElem...), cuesElem...)
	segmentElem := elem(segmentID, segmentPayload)

	header := elem(ebmlID, nil)
	return append(header, segmentElem...)
}

func TestParseCues_TwoCuePointsProducesTwoReferences(t *testing.T) {
	buf := buildWebmCues(t, 1000000, 5000, [][2]uint64{{0, 100}, {2000, 6000}})

	refs, err := ParseCues(buf, 0)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	assert.Equal(t, 0.0, refs[0].StartTime)
	assert.Equal(t, 2.0, refs[0].EndTime)
	assert.Equal(t, uint64(100), refs[0].StartByte)
	require.NotNil(t, refs[0].EndByte)
	assert.Equal(t, uint64(5999), *refs[0].EndByte)

	assert.Equal(t, 2.0, refs[1].StartTime)
	assert.Equal(t, 5.0, refs[1].EndTime)
	assert.Nil(t, refs[1].EndByte)
}

func TestParseCues_TimestampOffsetShiftsTimes(t *testing.T) {
	buf := buildWebmCues(t, 1000000, 1000, [][2]uint64{{0, 0}})
	refs, err := ParseCues(buf, 10.0)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, 10.0, refs[0].StartTime)
	assert.Equal(t, 11.0, refs[0].EndTime)
}

func TestParseCues_MissingEBMLHeaderFails(t *testing.T) {
	segmentElem := elem(segmentID, elem(infoID, nil))
	_, err := ParseCues(segmentElem, 0)
	require.Error(t, err)
	var de *dasherr.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, dasherr.WebmEbmlHeaderElementMissing, de.Code)
}

func TestParseCues_MissingCuesElementFails(t *testing.T) {
	durBytes := make([]byte, 8)
	infoElem := elem(infoID, elem(durationID, durBytes))
	segmentElem := elem(segmentID, infoElem)
	buf := append(elem(ebmlID, nil), segmentElem...)

	_, err := ParseCues(buf, 0)
	require.Error(t, err)
	var de *dasherr.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, dasherr.WebmCuesElementMissing, de.Code)
}

func TestParseCues_MissingCueTrackPositionsFails(t *testing.T) {
	cuePoint := elem(cueTimeID, beBytes(0, 1)) // no CueTrackPositions child
	cuesElem := elem(cuesID, elem(cuePointID, cuePoint))
	durBytes := make([]byte, 8)
	infoElem := elem(infoID, elem(durationID, durBytes))
	segmentElem := elem(segmentID, append(infoElem, cuesElem...))
	buf := append(elem(ebmlID, nil), segmentElem...)

	_, err := ParseCues(buf, 0)
	require.Error(t, err)
	var de *dasherr.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, dasherr.WebmCueTrackPositionsElementMissing, de.Code)
}

package mpd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

func TestExpandTimeline_SimpleRepeat(t *testing.T) {
	ss := []TimelineS{
		{T: ptr(0), D: 1000, R: 2},
	}
	got := ExpandTimeline(ss, 0, 1000, 0, false)
	require.Len(t, got, 3)
	assert.Equal(t, []TimelineEntry{
		{Start: 0, End: 1000, UnscaledStart: 0},
		{Start: 1000, End: 2000, UnscaledStart: 1000},
		{Start: 2000, End: 3000, UnscaledStart: 2000},
	}, got)
}

func TestExpandTimeline_ImplicitStartFromPreviousEnd(t *testing.T) {
	ss := []TimelineS{
		{T: ptr(0), D: 1000, R: 0},
		{D: 2000, R: 0},
	}
	got := ExpandTimeline(ss, 0, 1000, 0, false)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1000), got[1].Start)
	assert.Equal(t, int64(3000), got[1].End)
}

func TestExpandTimeline_NegativeRepeatToNextT(t *testing.T) {
	ss := []TimelineS{
		{T: ptr(0), D: 1000, R: -1},
		{T: ptr(5000), D: 1000, R: 0},
	}
	got := ExpandTimeline(ss, 0, 1000, 0, false)
	// first S fills [0,5000) in steps of 1000: 5 segments, then the
	// explicit next S adds one more.
	require.Len(t, got, 6)
	assert.Equal(t, int64(0), got[0].Start)
	assert.Equal(t, int64(4000), got[4].Start)
	assert.Equal(t, int64(5000), got[5].Start)
}

func TestExpandTimeline_NegativeRepeatToKnownPeriodEnd(t *testing.T) {
	ss := []TimelineS{
		{T: ptr(0), D: 1000, R: -1},
	}
	got := ExpandTimeline(ss, 0, 1000, 4.0, true)
	require.Len(t, got, 4)
	assert.Equal(t, int64(3000), got[3].Start)
}

func TestExpandTimeline_PresentationTimeOffsetShiftsStart(t *testing.T) {
	ss := []TimelineS{
		{T: ptr(2000), D: 1000, R: 0},
	}
	got := ExpandTimeline(ss, 2000, 1000, 0, false)
	require.Len(t, got, 1)
	assert.Equal(t, int64(0), got[0].Start)
}

func TestExpandTimeline_NegativeRepeatStartPastNextTDropsRemainder(t *testing.T) {
	ss := []TimelineS{
		{T: ptr(0), D: 1000, R: 0},
		{T: ptr(1500), D: 1000, R: -1},
		{T: ptr(1000), D: 1000, R: 0},
	}
	got := ExpandTimeline(ss, 0, 1000, 0, false)
	// the second S starts at 1500, already >= the third S@t (1000), so its
	// negative repeat must drop the remainder rather than emit a segment.
	require.Len(t, got, 1)
	assert.Equal(t, int64(0), got[0].Start)
}

func TestExpandTimeline_ZeroDurationStopsExpansion(t *testing.T) {
	ss := []TimelineS{
		{T: ptr(0), D: 1000, R: 0},
		{D: 0, R: 0},
	}
	got := ExpandTimeline(ss, 0, 1000, 0, false)
	require.Len(t, got, 1)
}

func TestCeilDiv(t *testing.T) {
	assert.Equal(t, int64(3), ceilDiv(9, 3))
	assert.Equal(t, int64(4), ceilDiv(10, 3))
	assert.Equal(t, int64(0), ceilDiv(5, 0))
}

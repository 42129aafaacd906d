package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func refAt(start, end float64) *SegmentReference {
	return NewSegmentReference(start, end, []string{"seg.m4s"})
}

func TestSegmentIndex_MergeRejectsOldOverlap(t *testing.T) {
	si := NewSegmentIndex([]*SegmentReference{refAt(0, 4)})
	si.Merge([]*SegmentReference{refAt(2, 6)}, 0.5)
	require.Equal(t, 1, si.Len())

	si.Merge([]*SegmentReference{refAt(4, 8)}, 0.5)
	require.Equal(t, 2, si.Len())
	assert.Equal(t, 4.0, si.At(1).StartTime)
}

func TestSegmentIndex_MergeAllowsToleratedOverlap(t *testing.T) {
	si := NewSegmentIndex([]*SegmentReference{refAt(0, 4)})
	si.Merge([]*SegmentReference{refAt(3.8, 8)}, 0.5)
	require.Equal(t, 2, si.Len())
}

func TestSegmentIndex_Evict(t *testing.T) {
	si := NewSegmentIndex([]*SegmentReference{refAt(0, 4), refAt(4, 8), refAt(8, 12)})
	si.Evict(5)
	require.Equal(t, 2, si.Len())
	assert.Equal(t, 4.0, si.At(0).StartTime)
}

func TestSegmentIndex_MergeAndEvict(t *testing.T) {
	si := NewSegmentIndex([]*SegmentReference{refAt(0, 4)})
	si.MergeAndEvict([]*SegmentReference{refAt(4, 8), refAt(8, 12)}, 0.5, 5)
	require.Equal(t, 2, si.Len())
	assert.Equal(t, 4.0, si.At(0).StartTime)
}

func TestSegmentIndex_FitTruncatesToPeriod(t *testing.T) {
	si := NewSegmentIndex([]*SegmentReference{refAt(0, 4), refAt(4, 8), refAt(8, 12)})
	si.Fit(2, 10, false, true)
	require.Equal(t, 3, si.Len())

	si2 := NewSegmentIndex([]*SegmentReference{refAt(0, 4), refAt(10, 14)})
	si2.Fit(2, 8, false, true)
	require.Equal(t, 1, si2.Len())
	assert.Equal(t, 0.0, si2.At(0).StartTime)
}

func TestSegmentIndex_FitSkipsWhenPeriodEndUnknown(t *testing.T) {
	si := NewSegmentIndex([]*SegmentReference{refAt(0, 4), refAt(100, 104)})
	si.Fit(0, 0, false, false)
	assert.Equal(t, 2, si.Len())
}

func TestPsshRecord_EqualByRawBoxBytes(t *testing.T) {
	a := &PsshRecord{RawBox: []byte{1, 2, 3}}
	b := &PsshRecord{RawBox: []byte{1, 2, 3}}
	c := &PsshRecord{RawBox: []byte{1, 2, 4}}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
}

func TestInheritanceFrame_DeriveCopiesSlicesIndependently(t *testing.T) {
	parent := &InheritanceFrame{BaseURLs: []string{"https://cdn/"}, ID: "rep1"}
	child := parent.Derive()
	child.BaseURLs[0] = "https://other/"
	child.ID = "rep2"

	assert.Equal(t, "https://cdn/", parent.BaseURLs[0])
	assert.Equal(t, "rep1", parent.ID)
	assert.Equal(t, "https://other/", child.BaseURLs[0])
}

func TestInheritanceFrame_DeriveClearsSegmentInfo(t *testing.T) {
	parent := &InheritanceFrame{SegmentBase: "x", SegmentList: "y", SegmentTemplate: "z"}
	child := parent.Derive()
	assert.Nil(t, child.SegmentBase)
	assert.Nil(t, child.SegmentList)
	assert.Nil(t, child.SegmentTemplate)
}

func TestStream_CreateSegmentIndexCachesFactoryResult(t *testing.T) {
	calls := 0
	s := &Stream{}
	s.SetSegmentIndexFactory(func() (*SegmentIndex, error) {
		calls++
		return NewSegmentIndex([]*SegmentReference{refAt(0, 1)}), nil
	})

	idx1, err := s.CreateSegmentIndex()
	require.NoError(t, err)
	idx2, err := s.CreateSegmentIndex()
	require.NoError(t, err)

	assert.Same(t, idx1, idx2)
	assert.Equal(t, 1, calls)
}

func TestStream_CreateSegmentIndexPropagatesFactoryError(t *testing.T) {
	s := &Stream{}
	want := errors.New("fetch failed")
	s.SetSegmentIndexFactory(func() (*SegmentIndex, error) { return nil, want })

	_, err := s.CreateSegmentIndex()
	assert.ErrorIs(t, err, want)
}

func TestPresentationTimeline_GetSegmentAvailabilityEndStatic(t *testing.T) {
	tl := &PresentationTimeline{Static: true, Duration: 120}
	assert.Equal(t, 120.0, tl.GetSegmentAvailabilityEnd())
}

func TestPresentationTimeline_NotifyMaxSegmentDurationOnlyGrows(t *testing.T) {
	tl := &PresentationTimeline{MaxSegmentDuration: 4}
	tl.NotifyMaxSegmentDuration(2)
	assert.Equal(t, 4.0, tl.MaxSegmentDuration)
	tl.NotifyMaxSegmentDuration(6)
	assert.Equal(t, 6.0, tl.MaxSegmentDuration)
}

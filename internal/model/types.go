// Package model holds the data entities shared across the ingest pipeline:
// presentations, streams, segment indexes, and DRM descriptors.
package model

import (
	"net/http"
	"time"
)

// ContentType is a closed set of stream content types, dispatched on at
// compile time rather than by runtime string comparison.
type ContentType int

const (
	ContentAudio ContentType = iota
	ContentVideo
	ContentText
	ContentImage
	ContentApplication
)

// VideoRange is the CICP-derived HDR hint for a video stream.
type VideoRange int

const (
	RangeSDR VideoRange = iota
	RangePQ
	RangeHLG
)

// DrmInfo describes one DRM system applicable to a stream.
type DrmInfo struct {
	KeySystem      string // e.g. "com.widevine.alpha"
	LicenseServer  string
	Robustness     string
	InitData       [][]byte // cenc PSSH override payloads
	KeyIDs         map[string]struct{}
	WidevinePSSH   []byte // raw Widevine pssh box payload, wrapped by apiclient.BuildPsshBox for the key API
}

// PsshRecord is a parsed pssh box: system ID, version, optional key IDs,
// the decoded payload, and the original box bytes for byte-equal dedup.
type PsshRecord struct {
	SystemID []byte // 16 bytes
	Version  int
	KeyIDs   [][]byte // 16 bytes each, version 1 only
	Data     []byte
	RawBox   []byte
}

// Equal implements PSSH dedup policy: byte-equality over the whole
// original box, header included.
func (p *PsshRecord) Equal(other *PsshRecord) bool {
	if other == nil {
		return false
	}
	return string(p.RawBox) == string(other.RawBox)
}

// InitSegmentReference is a lazily-resolved init segment plus its quality
// descriptor, used to build the master playlist.
type InitSegmentReference struct {
	URIs       []string
	StartByte  uint64
	EndByte    *uint64 // nil means "to EOF"
	Bandwidth  int
	Codecs     string
	Width, Height int
	FrameRate  float64
	SampleRate int
	Channels   int
}

// SegmentReference is one entry of a SegmentIndex.
type SegmentReference struct {
	StartTime, EndTime float64 // seconds, presentation timeline
	getURIs             func() ([]string, error)
	StartByte           uint64
	EndByte             *uint64 // nil means "to EOF"
	InitSegment         *InitSegmentReference
	TimestampOffset     float64
	AppendWindowStart   float64
	AppendWindowEnd     float64
}

func NewSegmentReference(start, end float64, uris []string) *SegmentReference {
	return &SegmentReference{
		StartTime: start,
		EndTime:   end,
		getURIs:   func() ([]string, error) { return uris, nil },
	}
}

func (r *SegmentReference) GetURIs() ([]string, error) {
	if r.getURIs == nil {
		return nil, nil
	}
	return r.getURIs()
}

func (r *SegmentReference) SetURIResolver(fn func() ([]string, error)) {
	r.getURIs = fn
}

// SegmentIndex is an ordered, gap-free sequence of SegmentReferences.
type SegmentIndex struct {
	references []*SegmentReference
	updateTimer *time.Timer
}

func NewSegmentIndex(refs []*SegmentReference) *SegmentIndex {
	return &SegmentIndex{references: refs}
}

func (si *SegmentIndex) IsEmpty() bool { return si == nil || len(si.references) == 0 }

func (si *SegmentIndex) Len() int { return len(si.references) }

func (si *SegmentIndex) At(i int) *SegmentReference { return si.references[i] }

func (si *SegmentIndex) References() []*SegmentReference { return si.references }

// Merge appends new references in order, rejecting overlaps older than
// toleranceSec.
func (si *SegmentIndex) Merge(next []*SegmentReference, toleranceSec float64) {
	for _, r := range next {
		if n := len(si.references); n > 0 {
			last := si.references[n-1]
			if r.StartTime < last.EndTime-toleranceSec {
				continue // overlaps older than tolerance, reject
			}
		}
		si.references = append(si.references, r)
	}
}

// MergeAndEvict merges then evicts references ending before
// minAvailabilityStart.
func (si *SegmentIndex) MergeAndEvict(next []*SegmentReference, toleranceSec, minAvailabilityStart float64) {
	si.Merge(next, toleranceSec)
	si.Evict(minAvailabilityStart)
}

// Evict drops references whose end time precedes minAvailabilityStart.
func (si *SegmentIndex) Evict(minAvailabilityStart float64) {
	i := 0
	for i < len(si.references) && si.references[i].EndTime < minAvailabilityStart {
		i++
	}
	si.references = si.references[i:]
}

// Fit truncates the index to [periodStart, periodEnd]; isNew indicates the
// period was newly observed this refresh (currently unused by callers, kept
// for interface parity with upstream callers).
func (si *SegmentIndex) Fit(periodStart, periodEnd float64, isNew bool, periodEndKnown bool) {
	_ = isNew
	if !periodEndKnown {
		// Open Question (i): unknown-duration last period is treated as
		// infinite and skipped.
		return
	}
	out := si.references[:0]
	for _, r := range si.references {
		if r.EndTime <= periodStart || r.StartTime >= periodEnd {
			continue
		}
		out = append(out, r)
	}
	si.references = out
}

func (si *SegmentIndex) Release() {
	if si.updateTimer != nil {
		si.updateTimer.Stop()
		si.updateTimer = nil
	}
}

func (si *SegmentIndex) ForEachTopLevelReference(fn func(*SegmentReference)) {
	for _, r := range si.references {
		fn(r)
	}
}

// Stream is one origin-identified media stream.
type Stream struct {
	ID               int
	PeriodID, RepID  string
	ContentType      ContentType
	MimeType         string
	Codecs           string
	Language         string
	Label            string
	Roles            []string
	Width, Height    int
	FrameRate        float64
	Channels         int
	SampleRate       int
	Bandwidth        int
	DrmInfos         []DrmInfo
	KeyIDs           map[string]struct{}
	VideoRange       VideoRange
	Encrypted        bool
	ForcedSubtitle   bool
	TrickModeFor     string

	segmentIndex        *SegmentIndex
	segmentIndexFactory func() (*SegmentIndex, error)
}

func (s *Stream) CreateSegmentIndex() (*SegmentIndex, error) {
	if s.segmentIndex != nil {
		return s.segmentIndex, nil
	}
	if s.segmentIndexFactory == nil {
		return nil, nil
	}
	idx, err := s.segmentIndexFactory()
	if err != nil {
		return nil, err
	}
	s.segmentIndex = idx
	return idx, nil
}

func (s *Stream) SetSegmentIndexFactory(fn func() (*SegmentIndex, error)) {
	s.segmentIndexFactory = fn
}

func (s *Stream) SegmentIndex() *SegmentIndex { return s.segmentIndex }

// Variant pairs an audio and a video Stream.
type Variant struct {
	Audio, Video *Stream
	Bandwidth    int
}

// PresentationTimeline tracks availability and duration for one presentation.
type PresentationTimeline struct {
	AvailabilityStart       time.Time
	ClockOffset             time.Duration
	SegmentAvailabilityDur  float64 // seconds; +Inf for VOD
	Duration                float64 // seconds
	Static                  bool
	MaxSegmentDuration      float64
	PresentationDelay       float64
}

func (t *PresentationTimeline) GetSegmentAvailabilityEnd() float64 {
	if t.Static {
		return t.Duration
	}
	now := time.Now().Add(t.ClockOffset).Sub(t.AvailabilityStart).Seconds()
	return now
}

func (t *PresentationTimeline) NotifyMaxSegmentDuration(d float64) {
	if d > t.MaxSegmentDuration {
		t.MaxSegmentDuration = d
	}
}

func (t *PresentationTimeline) SetStatic(static bool) { t.Static = static }

func (t *PresentationTimeline) SetClockOffset(ms int64) {
	t.ClockOffset = time.Duration(ms) * time.Millisecond
}

func (t *PresentationTimeline) SetDuration(s float64) { t.Duration = s }

// Presentation is the ingest root.
type Presentation struct {
	Timeline      *PresentationTimeline
	Variants      []*Variant
	TextStreams   []*Stream
	ImageStreams  []*Stream
	SequenceMode  bool // always false
	MinBufferTime float64
}

// InheritanceFrame is a per-level, value-typed MPD walk context.
type InheritanceFrame struct {
	BaseURLs               []string
	SegmentBase            any
	SegmentList            any
	SegmentTemplate        any
	Width, Height          int
	ContentType            string
	MimeType               string
	Codecs                 string
	FrameRate              string
	PixelAspectRatio       string
	EmsgURIs               []string
	ID                     string
	ChannelCount           int
	SamplingRate           int
	AvailabilityTimeOffset float64
}

// Derive produces a child frame that copies and overrides parent fields,
// leaving the parent untouched.
func (f *InheritanceFrame) Derive() *InheritanceFrame {
	child := *f
	child.BaseURLs = append([]string(nil), f.BaseURLs...)
	child.EmsgURIs = append([]string(nil), f.EmsgURIs...)
	child.SegmentBase = nil
	child.SegmentList = nil
	child.SegmentTemplate = nil
	return &child
}

// PeriodInfo tracks a period's resolved start/duration during the walk.
type PeriodInfo struct {
	Start, Duration float64
	Node            any
	IsLastPeriod    bool
	DurationKnown   bool
}

// Context is the mutable MPD-walk state; shallow-copyable for factory
// capture at representation-parse time.
type Context struct {
	Dynamic                bool
	Timeline               *PresentationTimeline
	Period                 *InheritanceFrame
	AdaptationSet          *InheritanceFrame
	Representation         *InheritanceFrame
	PeriodInfo             PeriodInfo
	Bandwidth              int
	Profiles               []string
	IndexRangeWarningGiven bool
}

// Snapshot returns a shallow copy, so a factory closure captures a value
// independent of later mutation of the live Context.
func (c *Context) Snapshot() *Context {
	cp := *c
	return &cp
}

// MediaRequest is an HTTP fetch job: URL plus optional range/auth headers.
type MediaRequest struct {
	URL    string
	Header http.Header
}

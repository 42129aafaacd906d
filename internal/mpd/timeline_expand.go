package mpd

import (
	"log/slog"
	"math"
)

// TimelineS is one S element: t (start, absent = use previous end), d
// (duration, required), r (repeat, default 0, negative means "fill to
// next S@t or period end").
type TimelineS struct {
	T      *int64
	D      int64
	R      int64
}

// TimelineEntry is one expanded segment in unscaled timescale units.
type TimelineEntry struct {
	Start, End   int64
	UnscaledStart int64
}

// ExpandTimeline expands a SegmentTimeline's S@t/d/r entries into concrete
// per-segment start/end times.
func ExpandTimeline(ss []TimelineS, unscaledPTO int64, timescale int64, periodDurationSeconds float64, periodDurationKnown bool) []TimelineEntry {
	var out []TimelineEntry
	lastEnd := -unscaledPTO

	for i := 0; i < len(ss); i++ {
		s := ss[i]
		var start int64
		if s.T != nil {
			start = *s.T - unscaledPTO
		} else {
			start = lastEnd
		}
		if s.D == 0 {
			slog.Warn("segment timeline: S element missing @d, dropping remainder")
			break
		}

		repeat := s.R
		if repeat < 0 {
			var nextHasT bool
			var nextT int64
			if i+1 < len(ss) && ss[i+1].T != nil {
				nextHasT = true
				nextT = *ss[i+1].T - unscaledPTO
			}
			switch {
			case nextHasT && start >= nextT:
				slog.Warn("segment timeline: negative repeat start >= next S@t, dropping remainder")
				return out
			case nextHasT:
				repeat = ceilDiv(nextT-start, s.D) - 1
			default:
				// no next S, or the next S has no @t of its own: both cases
				// fill to the period end.
				if !periodDurationKnown {
					slog.Warn("segment timeline: negative repeat with no next S@t and unknown period duration")
					repeat = 0
				} else {
					totalUnscaled := int64(periodDurationSeconds*float64(timescale)) - start
					repeat = ceilDiv(totalUnscaled, s.D) - 1
				}
			}
			if repeat < 0 {
				repeat = 0
			}
		}

		if len(out) > 0 {
			gapSeconds := math.Abs(float64(start-lastEnd)) / float64(timescale)
			if gapSeconds >= 1.0/15.0 {
				slog.Warn("segment timeline: gap exceeds tolerance", "gap_seconds", gapSeconds)
				out[len(out)-1].End = start
			}
		}

		for r := int64(0); r <= repeat; r++ {
			entry := TimelineEntry{Start: start, End: start + s.D, UnscaledStart: start}
			out = append(out, entry)
			start += s.D
			lastEnd = start
		}
	}
	return out
}

func ceilDiv(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	q := a / b
	if a%b != 0 && (a > 0) == (b > 0) {
		q++
	}
	return q
}

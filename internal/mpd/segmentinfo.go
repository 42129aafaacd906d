package mpd

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"41.neocities.org/dashhls/internal/dasherr"
	"41.neocities.org/dashhls/internal/isobmff"
	"41.neocities.org/dashhls/internal/model"
	"41.neocities.org/dashhls/internal/webm"
)

// FetchFunc retrieves bytes for a URI, optionally range-limited; wired to
// internal/fetch by the orchestrator.
type FetchFunc func(uri string, startByte uint64, endByte *uint64) ([]byte, error)

// segmentMergeTolerance mirrors the gap tolerance ExpandTimeline applies:
// an overlap smaller than one sub-frame at typical framerates is assumed to
// be the same segment re-announced, not a real collision.
const segmentMergeTolerance = 1.0 / 15.0

// fitToPeriod merges freshly resolved refs into rep.PreviousIndex when one
// exists, otherwise starts a fresh index, then truncates to the
// representation's own period bounds (period-local time, i.e. [0,
// duration), matching the resolvers' period-local reference times).
func fitToPeriod(rep *RawRepresentation, refs []*model.SegmentReference) *model.SegmentIndex {
	idx := rep.PreviousIndex
	isNew := idx == nil
	if isNew {
		idx = model.NewSegmentIndex(refs)
	} else {
		idx.Merge(refs, segmentMergeTolerance)
	}
	idx.Fit(0, rep.PeriodDuration, isNew, rep.PeriodDurKnown)
	return idx
}

// ResolveSegmentInfo dispatches to the SegmentBase, SegmentList, or
// SegmentTemplate resolver, returning a factory that builds the
// SegmentIndex when called.
func ResolveSegmentInfo(rep *RawRepresentation, fetch FetchFunc) (func() (*model.SegmentIndex, error), error) {
	f := rep.Frame
	switch {
	case f.SegmentTemplate != nil:
		return resolveSegmentTemplate(rep, fetch), nil
	case f.SegmentList != nil:
		return resolveSegmentList(rep), nil
	case f.SegmentBase != nil:
		return resolveSegmentBase(rep, fetch), nil
	default:
		return func() (*model.SegmentIndex, error) { return model.NewSegmentIndex(nil), nil }, nil
	}
}

func baseURL(rep *RawRepresentation) string {
	if len(rep.Frame.BaseURLs) > 0 {
		return rep.Frame.BaseURLs[0]
	}
	return ""
}

func timescaleOf(elem *etree.Element, def int64) int64 {
	if elem == nil {
		return def
	}
	if v := elem.SelectAttrValue("timescale", ""); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

// resolveSegmentBase builds an index from a single media URL plus an index
// (SIDX for mp4, Cues for WebM) fetched once.
func resolveSegmentBase(rep *RawRepresentation, fetch FetchFunc) func() (*model.SegmentIndex, error) {
	sb, _ := rep.Frame.SegmentBase.(*etree.Element)
	return func() (*model.SegmentIndex, error) {
		uri := baseURL(rep)
		if uri == "" {
			return nil, dasherr.New(dasherr.Critical, dasherr.Manifest, dasherr.DashNoSegmentInfo, nil)
		}

		var indexStart uint64
		var indexEnd *uint64
		if ir := sb.SelectAttrValue("indexRange", ""); ir != "" {
			s, e := parseByteRange(ir)
			indexStart = s
			indexEnd = &e
		}

		data, err := fetch(uri, indexStart, indexEnd)
		if err != nil {
			return nil, err
		}

		if strings.HasSuffix(strings.ToLower(strings.SplitN(uri, "?", 2)[0]), ".webm") {
			refs, err := webm.ParseCues(data, 0)
			if err != nil {
				return nil, err
			}
			resolveStaticURIs(refs, uri)
			return fitToPeriod(rep, refs), nil
		}

		var refs []*model.SegmentReference
		w := isobmff.NewWalker()
		w.On(isobmff.TypeSidx, func(b *isobmff.Box) error {
			sidxBase := indexStart
			r, err := isobmff.ParseSidx(b, sidxBase, 0)
			if err != nil {
				return err
			}
			refs = append(refs, r...)
			return nil
		})
		if err := w.Walk(data, int(indexStart)); err != nil {
			return nil, err
		}
		resolveStaticURIs(refs, uri)
		return fitToPeriod(rep, refs), nil
	}
}

// resolveSegmentList walks explicit SegmentURL children, each with optional
// @media/@mediaRange, duration taken from SegmentTimeline or the uniform
// @duration attribute.
func resolveSegmentList(rep *RawRepresentation) func() (*model.SegmentIndex, error) {
	sl, _ := rep.Frame.SegmentList.(*etree.Element)
	return func() (*model.SegmentIndex, error) {
		timescale := timescaleOf(sl, 1)
		urls := sl.SelectElements("SegmentURL")
		var durations []float64
		if tl := sl.SelectElement("SegmentTimeline"); tl != nil {
			ss := parseSTimeline(tl)
			entries := ExpandTimeline(ss, 0, timescale, 0, false)
			for _, e := range entries {
				durations = append(durations, float64(e.End-e.Start)/float64(timescale))
			}
		} else if d := sl.SelectAttrValue("duration", ""); d != "" {
			n, _ := strconv.ParseFloat(d, 64)
			for range urls {
				durations = append(durations, n/float64(timescale))
			}
		}

		base := baseURL(rep)
		var refs []*model.SegmentReference
		var cursor float64
		for i, su := range urls {
			media := su.SelectAttrValue("media", base)
			dur := 0.0
			if i < len(durations) {
				dur = durations[i]
			}
			ref := model.NewSegmentReference(cursor, cursor+dur, []string{resolveURL(base, media)})
			if mr := su.SelectAttrValue("mediaRange", ""); mr != "" {
				s, e := parseByteRange(mr)
				ref.StartByte = s
				ref.EndByte = &e
			}
			refs = append(refs, ref)
			cursor += dur
		}
		return fitToPeriod(rep, refs), nil
	}
}

// resolveSegmentTemplate performs $Number$/$Time$ template substitution,
// driven by a SegmentTimeline if present, otherwise by @duration over the
// period duration. When the period duration is unknown or not positive it
// emits a single placeholder reference at @startNumber; the availability
// window is not consulted.
func resolveSegmentTemplate(rep *RawRepresentation, fetch FetchFunc) func() (*model.SegmentIndex, error) {
	st, _ := rep.Frame.SegmentTemplate.(*etree.Element)
	return func() (*model.SegmentIndex, error) {
		timescale := timescaleOf(st, 1)
		startNumber := int64(1)
		if v := st.SelectAttrValue("startNumber", ""); v != "" {
			startNumber, _ = strconv.ParseInt(v, 10, 64)
		}
		base := baseURL(rep)
		media := st.SelectAttrValue("media", "")
		initTmpl := st.SelectAttrValue("initialization", "")

		var init *model.InitSegmentReference
		if initTmpl != "" {
			uri := Expand(initTmpl, TemplateParams{RepresentationID: rep.ID, Bandwidth: int64(rep.Bandwidth)})
			init = &model.InitSegmentReference{URIs: []string{resolveURL(base, uri)}, Bandwidth: rep.Bandwidth, Codecs: rep.Codecs}
		}

		var refs []*model.SegmentReference
		if tl := st.SelectElement("SegmentTimeline"); tl != nil {
			ss := parseSTimeline(tl)
			pto := int64(0)
			if v := st.SelectAttrValue("presentationTimeOffset", ""); v != "" {
				pto, _ = strconv.ParseInt(v, 10, 64)
			}
			entries := ExpandTimeline(ss, pto, timescale, rep.PeriodDuration, rep.PeriodDurKnown)
			number := startNumber
			for _, e := range entries {
				start := float64(e.Start) / float64(timescale)
				end := float64(e.End) / float64(timescale)
				uri := Expand(media, TemplateParams{RepresentationID: rep.ID, Number: number, Bandwidth: int64(rep.Bandwidth), Time: e.UnscaledStart})
				ref := model.NewSegmentReference(start, end, []string{resolveURL(base, uri)})
				ref.InitSegment = init
				refs = append(refs, ref)
				number++
			}
		} else if d := st.SelectAttrValue("duration", ""); d != "" {
			segDur, _ := strconv.ParseFloat(d, 64)
			segDurSec := segDur / float64(timescale)
			if !rep.PeriodDurKnown || rep.PeriodDuration <= 0 {
				// live, open-ended: one placeholder segment anchors
				// @startNumber. Resolving again on refresh produces this
				// same reference; later numbers are not generated.
				number := startNumber
				uri := Expand(media, TemplateParams{RepresentationID: rep.ID, Number: number, Bandwidth: int64(rep.Bandwidth)})
				ref := model.NewSegmentReference(0, segDurSec, []string{resolveURL(base, uri)})
				ref.InitSegment = init
				refs = append(refs, ref)
			} else {
				count := int64(rep.PeriodDuration/segDurSec + 0.5)
				number := startNumber
				var t float64
				for i := int64(0); i < count; i++ {
					uri := Expand(media, TemplateParams{RepresentationID: rep.ID, Number: number, Bandwidth: int64(rep.Bandwidth), Time: int64(t * float64(timescale))})
					ref := model.NewSegmentReference(t, t+segDurSec, []string{resolveURL(base, uri)})
					ref.InitSegment = init
					refs = append(refs, ref)
					number++
					t += segDurSec
				}
			}
		}
		_ = fetch
		return fitToPeriod(rep, refs), nil
	}
}

func parseSTimeline(tl *etree.Element) []TimelineS {
	var out []TimelineS
	for _, s := range tl.SelectElements("S") {
		var ts TimelineS
		if v := s.SelectAttrValue("t", ""); v != "" {
			n, _ := strconv.ParseInt(v, 10, 64)
			ts.T = &n
		}
		if v := s.SelectAttrValue("d", ""); v != "" {
			ts.D, _ = strconv.ParseInt(v, 10, 64)
		}
		if v := s.SelectAttrValue("r", ""); v != "" {
			ts.R, _ = strconv.ParseInt(v, 10, 64)
		}
		out = append(out, ts)
	}
	return out
}

func parseByteRange(r string) (uint64, uint64) {
	parts := strings.SplitN(r, "-", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	s, _ := strconv.ParseUint(parts[0], 10, 64)
	e, _ := strconv.ParseUint(parts[1], 10, 64)
	return s, e
}

func resolveStaticURIs(refs []*model.SegmentReference, uri string) {
	for _, r := range refs {
		r.SetURIResolver(func() ([]string, error) { return []string{uri}, nil })
	}
}

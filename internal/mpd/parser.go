// Package mpd parses MPEG-DASH MPD XML into a Presentation graph: the
// inheritance walk (Period → AdaptationSet → Representation), the three
// segment-info resolution strategies, ContentProtection analysis, and the
// cross-period combiner. Built over github.com/beevik/etree so the
// inheritance-frame algorithm gets node-by-node control a struct-tag
// unmarshaler would not expose.
package mpd

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"

	"41.neocities.org/dashhls/internal/dasherr"
	"41.neocities.org/dashhls/internal/model"
)

// RawRepresentation is a still-unresolved representation, carrying its
// element and inherited frame for the segment-info resolvers to act on.
type RawRepresentation struct {
	Elem           *etree.Element
	AdaptationElem *etree.Element
	PeriodElem     *etree.Element
	Frame          *model.InheritanceFrame
	PeriodID       string
	PeriodStart    float64
	PeriodDuration float64
	PeriodDurKnown bool
	IsLastPeriod   bool
	ID             string
	Bandwidth      int
	Codecs         string
	MimeType       string
	ContentType    model.ContentType
	Ctx            *model.Context
	DrmInfos       []model.DrmInfo
	KeyID          string // normalized default_KID, adaptation-set value overridden by the representation's own

	// PreviousIndex is the SegmentIndex already built for this
	// (period.id, representation.id) on an earlier refresh, set by the
	// caller (internal/orchestrator) before resolution; when non-nil the
	// segment-info resolvers merge into it instead of starting fresh.
	PreviousIndex *model.SegmentIndex
}

// ParseResult is the parser's output: the presentation root plus the
// per-representation raw list for segment-info resolution and the period
// combiner.
type ParseResult struct {
	Presentation    *model.Presentation
	Representations []*RawRepresentation
	Dynamic         bool
}

// Parse walks the document from root validation through ContentProtection
// and, for a dynamic manifest, runs the duplicate-ID check itself; period
// combination is invoked by the caller (internal/orchestrator) after
// segment-info resolution populates SegmentIndexes.
func Parse(data []byte, manifestURL string, now time.Time) (*ParseResult, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, dasherr.New(dasherr.Critical, dasherr.Manifest, dasherr.DashInvalidXML, err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "MPD" {
		return nil, dasherr.New(dasherr.Critical, dasherr.Manifest, dasherr.DashInvalidXML, nil)
	}

	dynamic := root.SelectAttrValue("type", "static") == "dynamic"
	minBufferTime, _ := ParseISODuration(root.SelectAttrValue("minBufferTime", "PT2S"))
	minimumUpdatePeriod := -1.0
	if v := root.SelectAttrValue("minimumUpdatePeriod", ""); v != "" {
		minimumUpdatePeriod, _ = ParseISODuration(v)
	}
	availStart, _ := ParseISODateTime(root.SelectAttrValue("availabilityStartTime", ""))
	timeShiftBufferDepth, _ := ParseISODuration(root.SelectAttrValue("timeShiftBufferDepth", ""))
	suggestedDelay := 1.5 * minBufferTime
	if v := root.SelectAttrValue("suggestedPresentationDelay", ""); v != "" {
		suggestedDelay, _ = ParseISODuration(v)
	}
	maxSegDuration, _ := ParseISODuration(root.SelectAttrValue("maxSegmentDuration", "PT1S"))
	if maxSegDuration < 1 {
		maxSegDuration = 1
	}
	var presentationDuration float64
	havePresentationDuration := false
	if v := root.SelectAttrValue("mediaPresentationDuration", ""); v != "" {
		presentationDuration, _ = ParseISODuration(v)
		havePresentationDuration = true
	}

	timeline := &model.PresentationTimeline{
		AvailabilityStart:      availStart,
		Static:                 !dynamic,
		MaxSegmentDuration:     maxSegDuration,
		PresentationDelay:      suggestedDelay,
		SegmentAvailabilityDur: timeShiftBufferDepth,
	}
	if havePresentationDuration {
		timeline.SetDuration(presentationDuration)
	}
	_ = minimumUpdatePeriod

	rootBaseURLs := collectBaseURLs(root, nil)

	periods := root.SelectElements("Period")
	if len(periods) == 0 {
		return nil, dasherr.New(dasherr.Critical, dasherr.Manifest, dasherr.DashEmptyPeriod, nil)
	}

	var allReps []*RawRepresentation
	periodStart := 0.0
	for pi, periodElem := range periods {
		start := periodStart
		if v := periodElem.SelectAttrValue("start", ""); v != "" {
			start, _ = ParseISODuration(v)
		}
		var duration float64
		durationKnown := false
		isLast := pi == len(periods)-1
		if pi+1 < len(periods) {
			nextStart := start
			if v := periods[pi+1].SelectAttrValue("start", ""); v != "" {
				nextStart, _ = ParseISODuration(v)
			}
			duration = nextStart - start
			durationKnown = true
		} else if havePresentationDuration {
			duration = presentationDuration - start
			durationKnown = true
		} else if v := periodElem.SelectAttrValue("duration", ""); v != "" {
			duration, _ = ParseISODuration(v)
			durationKnown = true
		}
		periodID := periodElem.SelectAttrValue("id", "")
		if periodID == "" {
			periodID = fmt.Sprintf("__sp_period_%v", start)
		}

		periodFrame := &model.InheritanceFrame{BaseURLs: collectBaseURLs(periodElem, rootBaseURLs)}

		adaptationSets := periodElem.SelectElements("AdaptationSet")
		if len(adaptationSets) == 0 {
			slog.Warn("dash: empty period", "period", periodID)
		}

		for _, asElem := range adaptationSets {
			if dropped := hasUnrecognizedEssentialProperty(asElem); dropped {
				continue // unrecognized EssentialProperty: dropped silently
			}
			asFrame := deriveAdaptationFrame(periodFrame, asElem)
			asDrmInfos, asDefaultKID, err := ParseContentProtection(asElem)
			if err != nil {
				return nil, err
			}

			reps := asElem.SelectElements("Representation")
			if len(reps) == 0 {
				slog.Warn("dash: empty adaptation set", "period", periodID)
				continue
			}

			var accumulatedDrm []model.DrmInfo
			for _, repElem := range reps {
				repFrame := deriveRepresentationFrame(asFrame, repElem)
				repDrm, repKID, err := ParseContentProtection(repElem)
				if err != nil {
					return nil, err
				}
				kid := asDefaultKID
				if repKID != "" {
					kid = repKID
				}
				effectiveDrm, err := IntersectKeySystems(asDrmInfos, repDrm)
				if err != nil {
					return nil, err
				}
				if len(accumulatedDrm) == 0 || allUnencrypted(accumulatedDrm) {
					accumulatedDrm = effectiveDrm
				} else {
					accumulatedDrm, err = IntersectKeySystems(accumulatedDrm, effectiveDrm)
					if err != nil {
						return nil, err
					}
				}
				if kid != "" {
					for i := range effectiveDrm {
						if effectiveDrm[i].KeyIDs == nil {
							effectiveDrm[i].KeyIDs = make(map[string]struct{})
						}
						effectiveDrm[i].KeyIDs[kid] = struct{}{}
					}
				}

				rep := &RawRepresentation{
					Elem: repElem, AdaptationElem: asElem, PeriodElem: periodElem,
					Frame: repFrame, PeriodID: periodID, PeriodStart: start,
					PeriodDuration: duration, PeriodDurKnown: durationKnown,
					IsLastPeriod: isLast,
					ID:           repElem.SelectAttrValue("id", ""),
					Codecs:       firstNonEmpty(repElem.SelectAttrValue("codecs", ""), asFrame.Codecs),
					MimeType:     firstNonEmpty(repElem.SelectAttrValue("mimeType", ""), asFrame.MimeType),
					ContentType:  classifyContentType(asFrame.ContentType, asFrame.MimeType),
					DrmInfos:     effectiveDrm,
					KeyID:        kid,
				}
				if bw := repElem.SelectAttrValue("bandwidth", ""); bw != "" {
					rep.Bandwidth, _ = strconv.Atoi(bw)
				}

				if err := validateSegmentSource(repElem, rep.ContentType); err != nil {
					return nil, err
				}

				allReps = append(allReps, rep)
			}
		}
		periodStart = start + duration
	}

	if dynamic {
		seen := make(map[string]bool)
		for _, r := range allReps {
			key := r.PeriodID + "/" + r.ID
			if seen[key] {
				return nil, dasherr.New(dasherr.Critical, dasherr.Manifest, dasherr.DashDuplicateRepresentationID, nil)
			}
			seen[key] = true
		}
	}

	pres := &model.Presentation{Timeline: timeline, MinBufferTime: minBufferTime}
	return &ParseResult{Presentation: pres, Representations: allReps, Dynamic: dynamic}, nil
}

func allUnencrypted(d []model.DrmInfo) bool { return len(d) == 0 }

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func classifyContentType(explicit, mime string) model.ContentType {
	ct := explicit
	if ct == "" || ct == "application" {
		ct = strings.SplitN(mime, "/", 2)[0]
	}
	switch ct {
	case "audio":
		return model.ContentAudio
	case "video":
		return model.ContentVideo
	case "text":
		return model.ContentText
	case "image":
		return model.ContentImage
	default:
		return model.ContentApplication
	}
}

func collectBaseURLs(elem *etree.Element, parent []string) []string {
	children := elem.SelectElements("BaseURL")
	if len(children) == 0 {
		return parent
	}
	var out []string
	for _, c := range children {
		href := strings.TrimSpace(c.Text())
		if len(parent) == 0 {
			out = append(out, href)
			continue
		}
		for _, p := range parent {
			out = append(out, resolveURL(p, href))
		}
	}
	return out
}

func resolveURL(base, ref string) string {
	if strings.Contains(ref, "://") {
		return ref
	}
	idx := strings.LastIndex(base, "/")
	if idx < 0 {
		return ref
	}
	return base[:idx+1] + ref
}

func deriveAdaptationFrame(parent *model.InheritanceFrame, asElem *etree.Element) *model.InheritanceFrame {
	f := parent.Derive()
	f.BaseURLs = collectBaseURLs(asElem, parent.BaseURLs)
	f.ContentType = asElem.SelectAttrValue("contentType", parent.ContentType)
	f.MimeType = asElem.SelectAttrValue("mimeType", parent.MimeType)
	f.Codecs = asElem.SelectAttrValue("codecs", parent.Codecs)
	f.FrameRate = asElem.SelectAttrValue("frameRate", parent.FrameRate)
	f.PixelAspectRatio = asElem.SelectAttrValue("par", parent.PixelAspectRatio)
	if sb := asElem.SelectElement("SegmentBase"); sb != nil {
		f.SegmentBase = sb
	}
	if sl := asElem.SelectElement("SegmentList"); sl != nil {
		f.SegmentList = sl
	}
	if st := asElem.SelectElement("SegmentTemplate"); st != nil {
		f.SegmentTemplate = st
	}
	return f
}

func deriveRepresentationFrame(parent *model.InheritanceFrame, repElem *etree.Element) *model.InheritanceFrame {
	f := parent.Derive()
	f.BaseURLs = collectBaseURLs(repElem, parent.BaseURLs)
	if sb := repElem.SelectElement("SegmentBase"); sb != nil {
		f.SegmentBase = sb
	}
	if sl := repElem.SelectElement("SegmentList"); sl != nil {
		f.SegmentList = sl
	}
	if st := repElem.SelectElement("SegmentTemplate"); st != nil {
		f.SegmentTemplate = st
	}
	return f
}

// hasUnrecognizedEssentialProperty silently drops an AdaptationSet: an
// EssentialProperty whose schemeIdUri we don't recognize causes the whole
// set to be skipped. Trickmode and CICP transfer-characteristics schemes
// are recognized and never trigger a drop.
func hasUnrecognizedEssentialProperty(asElem *etree.Element) bool {
	for _, ep := range asElem.SelectElements("EssentialProperty") {
		scheme := ep.SelectAttrValue("schemeIdUri", "")
		switch scheme {
		case "http://dashif.org/guidelines/trickmode",
			"urn:mpeg:mpegB:cicp:TransferCharacteristics",
			"":
			continue
		default:
			return true
		}
	}
	return false
}

// validateSegmentSource requires exactly one of SegmentBase/List/Template,
// except text/application content which may have none.
func validateSegmentSource(repElem *etree.Element, ct model.ContentType) error {
	count := 0
	if repElem.SelectElement("SegmentBase") != nil {
		count++
	}
	if repElem.SelectElement("SegmentList") != nil {
		count++
	}
	if repElem.SelectElement("SegmentTemplate") != nil {
		count++
	}
	if count == 1 {
		return nil
	}
	if count == 0 && (ct == model.ContentText || ct == model.ContentApplication) {
		return nil
	}
	return dasherr.New(dasherr.Critical, dasherr.Manifest, dasherr.DashNoSegmentInfo, nil)
}

// Package webm parses the WebM Cues index, as the sibling of isobmff's
// SIDX parser: same output shape (an ordered SegmentReference list), same
// EBML-over-cursor architecture, layered on internal/bitreader.
package webm

import (
	"41.neocities.org/dashhls/internal/bitreader"
	"41.neocities.org/dashhls/internal/dasherr"
	"41.neocities.org/dashhls/internal/model"
)

const (
	idEBML              = 0x1A45DFA3
	idSegment            = 0x18538067
	idInfo               = 0x1549A966
	idTimecodeScale      = 0x2AD7B1
	idDuration           = 0x4489
	idCues               = 0x1C53BB6B
	idCuePoint           = 0xBB
	idCueTime            = 0xB3
	idCueTrackPositions  = 0xB7
	idCueClusterPosition = 0xF1
)

func missing(code dasherr.Code) error {
	return dasherr.New(dasherr.Critical, dasherr.Media, code, nil)
}

// ParseCues parses the EBML header, locates Segment/Info (for TimecodeScale
// and Duration) and Cues, and returns an ordered SegmentReference list
// spanning cue to cue, with the final reference open-ended.
func ParseCues(buf []byte, timestampOffset float64) ([]*model.SegmentReference, error) {
	r := bitreader.NewEbmlReader(buf)

	foundEBML := false
	var segmentPayload []byte

	for r.HasMore() {
		el, err := r.ParseElement()
		if err != nil {
			return nil, err
		}
		switch el.ID {
		case idEBML:
			foundEBML = true
		case idSegment:
			segmentPayload = el.Payload
		}
	}
	if !foundEBML {
		return nil, missing(dasherr.WebmEbmlHeaderElementMissing)
	}
	if segmentPayload == nil {
		return nil, missing(dasherr.WebmSegmentElementMissing)
	}

	sr := bitreader.NewEbmlReader(segmentPayload)
	var infoPayload, cuesPayload []byte
	for sr.HasMore() {
		el, err := sr.ParseElement()
		if err != nil {
			return nil, err
		}
		switch el.ID {
		case idInfo:
			infoPayload = el.Payload
		case idCues:
			cuesPayload = el.Payload
		}
	}
	if infoPayload == nil {
		return nil, missing(dasherr.WebmInfoElementMissing)
	}
	if cuesPayload == nil {
		return nil, missing(dasherr.WebmCuesElementMissing)
	}

	timecodeScale := uint64(1000000) // ns, EBML default
	var durationTicks float64
	haveDuration := false
	ir := bitreader.NewEbmlReader(infoPayload)
	for ir.HasMore() {
		el, err := ir.ParseElement()
		if err != nil {
			return nil, err
		}
		switch el.ID {
		case idTimecodeScale:
			timecodeScale = beUint(el.Payload)
		case idDuration:
			durationTicks = beFloat(el.Payload)
			haveDuration = true
		}
	}
	if !haveDuration {
		return nil, missing(dasherr.WebmDurationElementMissing)
	}
	duration := durationTicks * float64(timecodeScale) / 1e9

	type cue struct {
		time   uint64
		offset uint64
	}
	var cues []cue
	cr := bitreader.NewEbmlReader(cuesPayload)
	for cr.HasMore() {
		el, err := cr.ParseElement()
		if err != nil {
			return nil, err
		}
		if el.ID != idCuePoint {
			continue
		}
		pr := bitreader.NewEbmlReader(el.Payload)
		var t uint64
		var off uint64
		haveTime, havePos := false, false
		for pr.HasMore() {
			pel, err := pr.ParseElement()
			if err != nil {
				return nil, err
			}
			switch pel.ID {
			case idCueTime:
				t = beUint(pel.Payload)
				haveTime = true
			case idCueTrackPositions:
				tpr := bitreader.NewEbmlReader(pel.Payload)
				for tpr.HasMore() {
					tpel, err := tpr.ParseElement()
					if err != nil {
						return nil, err
					}
					if tpel.ID == idCueClusterPosition {
						off = beUint(tpel.Payload)
						havePos = true
						break
					}
				}
			}
		}
		if !haveTime {
			return nil, missing(dasherr.WebmCueTimeElementMissing)
		}
		if !havePos {
			return nil, missing(dasherr.WebmCueTrackPositionsElementMissing)
		}
		cues = append(cues, cue{time: t, offset: off})
	}

	var refs []*model.SegmentReference
	for i, c := range cues {
		start := float64(c.time)*float64(timecodeScale)/1e9 + timestampOffset
		var end float64
		var endBytePtr *uint64
		startByte := c.offset
		if i+1 < len(cues) {
			end = float64(cues[i+1].time)*float64(timecodeScale)/1e9 + timestampOffset
			eb := cues[i+1].offset - 1
			endBytePtr = &eb
		} else {
			end = duration + timestampOffset
			endBytePtr = nil // open-ended
		}
		refs = append(refs, &model.SegmentReference{
			StartTime: start, EndTime: end,
			StartByte: startByte, EndByte: endBytePtr,
			TimestampOffset: timestampOffset,
		})
	}
	return refs, nil
}

func beUint(b []byte) uint64 {
	var v uint64
	for _, by := range b {
		v = v<<8 | uint64(by)
	}
	return v
}

func beFloat(b []byte) float64 {
	// WebM Duration is stored as an EBML float (4 or 8 bytes, big-endian
	// IEEE754); approximate via the integer bit pattern reinterpretation.
	bits := beUint(b)
	switch len(b) {
	case 4:
		return float64(float32FromBits(uint32(bits)))
	case 8:
		return float64FromBits(bits)
	default:
		return float64(bits)
	}
}

package isobmff

import (
	"41.neocities.org/dashhls/internal/dasherr"
	"41.neocities.org/dashhls/internal/model"
)

// ParseSidx parses a sidx full box. sidxOffset is the byte offset of the
// sidx box start within the container; its total declared size is b.Size.
func ParseSidx(b *Box, sidxOffset uint64, timestampOffset float64) ([]*model.SegmentReference, error) {
	if _, err := b.Payload.ReadU32(); err != nil { // reference_ID, skip
		return nil, err
	}
	timescale, err := b.Payload.ReadU32()
	if err != nil {
		return nil, err
	}
	if timescale == 0 {
		return nil, dasherr.New(dasherr.Critical, dasherr.Media, dasherr.Mp4SidxInvalidTimescale, nil)
	}
	var earliestPresentationTime, firstOffset uint64
	if b.Version == 0 {
		v, err := b.Payload.ReadU32()
		if err != nil {
			return nil, err
		}
		earliestPresentationTime = uint64(v)
		v, err = b.Payload.ReadU32()
		if err != nil {
			return nil, err
		}
		firstOffset = uint64(v)
	} else {
		earliestPresentationTime, err = b.Payload.ReadU64()
		if err != nil {
			return nil, err
		}
		firstOffset, err = b.Payload.ReadU64()
		if err != nil {
			return nil, err
		}
	}
	if _, err := b.Payload.ReadU16(); err != nil { // reserved
		return nil, err
	}
	refCount, err := b.Payload.ReadU16()
	if err != nil {
		return nil, err
	}

	startByte := sidxOffset + uint64(b.Size) + firstOffset
	unscaledStart := earliestPresentationTime

	refs := make([]*model.SegmentReference, 0, refCount)
	for i := uint16(0); i < refCount; i++ {
		chunk, err := b.Payload.ReadU32()
		if err != nil {
			return nil, err
		}
		refType := chunk >> 31
		size := chunk & 0x7fffffff
		duration, err := b.Payload.ReadU32()
		if err != nil {
			return nil, err
		}
		if _, err := b.Payload.ReadU32(); err != nil { // sap flags etc, skip
			return nil, err
		}
		if refType == 1 {
			return nil, dasherr.New(dasherr.Critical, dasherr.Media, dasherr.Mp4SidxTypeNotSupported, nil)
		}

		start := float64(unscaledStart)/float64(timescale) + timestampOffset
		end := float64(unscaledStart+uint64(duration))/float64(timescale) + timestampOffset
		endByte := startByte + uint64(size) - 1
		eb := endByte
		ref := &model.SegmentReference{
			StartTime: start, EndTime: end,
			StartByte: startByte, EndByte: &eb,
			TimestampOffset: timestampOffset,
		}
		refs = append(refs, ref)

		startByte += uint64(size)
		unscaledStart += uint64(duration)
	}
	return refs, nil
}

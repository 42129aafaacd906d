package isobmff

import (
	"encoding/binary"

	"41.neocities.org/dashhls/internal/bitreader"
	"41.neocities.org/dashhls/internal/model"
)

// FindPssh walks moov looking for pssh boxes. Warns (via the returned empty
// slice) but does not fail if none exist — content may be clear.
func FindPssh(moovPayload []byte, moovBase int) ([]*model.PsshRecord, error) {
	var records []*model.PsshRecord
	w := NewWalker()
	w.On(TypePssh, func(b *Box) error {
		rec, err := parsePssh(b)
		if err != nil {
			return err
		}
		records = append(records, rec)
		return nil
	})
	w.On(TypeTrak, func(b *Box) error { return nil }) // pssh lives directly under moov
	if err := w.Walk(moovPayload, moovBase); err != nil {
		return nil, err
	}
	return DedupPssh(records), nil
}

// rawBoxHeader reconstructs the header bytes a box was parsed from, since
// the walker never retains them once it has split size/type/version/flags
// off into the Box struct.
func rawBoxHeader(b *Box) []byte {
	if b.HeaderSize == 20 {
		hdr := make([]byte, 20)
		binary.BigEndian.PutUint32(hdr[0:4], 1)
		binary.BigEndian.PutUint32(hdr[4:8], uint32(b.Type))
		binary.BigEndian.PutUint64(hdr[8:16], b.Size)
		binary.BigEndian.PutUint32(hdr[16:20], uint32(b.Version)<<24|(b.Flags&0x00ffffff))
		return hdr
	}
	hdr := make([]byte, 12)
	binary.BigEndian.PutUint32(hdr[0:4], uint32(b.Size))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(b.Type))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(b.Version)<<24|(b.Flags&0x00ffffff))
	return hdr
}

func parsePssh(b *Box) (*model.PsshRecord, error) {
	payload, err := b.Payload.ReadBytes(b.Payload.Remaining())
	if err != nil {
		return nil, err
	}
	rawBox := append(rawBoxHeader(b), payload...)
	cur := bitreader.New(payload)

	systemID, err := cur.ReadBytes(16)
	if err != nil {
		return nil, err
	}
	rec := &model.PsshRecord{
		SystemID: append([]byte(nil), systemID...),
		Version:  int(b.Version),
		RawBox:   rawBox,
	}
	if b.Version == 1 {
		count, err := cur.ReadU32()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < count; i++ {
			kid, err := cur.ReadBytes(16)
			if err != nil {
				return nil, err
			}
			rec.KeyIDs = append(rec.KeyIDs, append([]byte(nil), kid...))
		}
	}
	dataSize, err := cur.ReadU32()
	if err != nil {
		return nil, err
	}
	data, err := cur.ReadBytes(int(dataSize))
	if err != nil {
		return nil, err
	}
	rec.Data = append([]byte(nil), data...)
	return rec, nil
}

// DedupPssh removes byte-equal duplicates, preserving order (Open Question
// iii: byte-equality over the whole original box, header included).
func DedupPssh(records []*model.PsshRecord) []*model.PsshRecord {
	var out []*model.PsshRecord
	for _, r := range records {
		dup := false
		for _, o := range out {
			if r.Equal(o) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, r)
		}
	}
	return out
}

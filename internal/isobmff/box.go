// Package isobmff implements a registry-driven ISO-BMFF box walker, plus
// PSSH and SIDX extraction on top of it. The manifest-side SIDX/PSSH
// analysis needs byte-offset and dedup control a struct-tag decoder
// doesn't expose, so the walker here is callback-driven from scratch;
// internal/decrypt reuses 41.neocities.org/sofia's moov/senc field layout
// for the init-segment rewrite it performs before handing segments to the
// decrypter subprocess.
package isobmff

import (
	"encoding/binary"

	"41.neocities.org/dashhls/internal/bitreader"
)

// FourCC is a big-endian 32-bit box type code.
type FourCC uint32

func FourCCFromString(s string) FourCC {
	b := []byte(s)
	return FourCC(binary.BigEndian.Uint32(b))
}

func (f FourCC) String() string {
	b := []byte{byte(f >> 24), byte(f >> 16), byte(f >> 8), byte(f)}
	return string(b)
}

var (
	TypeFtyp = FourCCFromString("ftyp")
	TypeMoov = FourCCFromString("moov")
	TypeMvhd = FourCCFromString("mvhd")
	TypeTrak = FourCCFromString("trak")
	TypeTkhd = FourCCFromString("tkhd")
	TypeMdia = FourCCFromString("mdia")
	TypeMdhd = FourCCFromString("mdhd")
	TypeHdlr = FourCCFromString("hdlr")
	TypeMinf = FourCCFromString("minf")
	TypeStbl = FourCCFromString("stbl")
	TypeStsd = FourCCFromString("stsd")
	TypeMvex = FourCCFromString("mvex")
	TypeMoof = FourCCFromString("moof")
	TypeMfhd = FourCCFromString("mfhd")
	TypeTraf = FourCCFromString("traf")
	TypeTfhd = FourCCFromString("tfhd")
	TypeTfdt = FourCCFromString("tfdt")
	TypeTrun = FourCCFromString("trun")
	TypeSidx = FourCCFromString("sidx")
	TypePssh = FourCCFromString("pssh")
	TypeMdat = FourCCFromString("mdat")
	TypeFree = FourCCFromString("free")
	TypeSenc = FourCCFromString("senc")
	TypeSinf = FourCCFromString("sinf")
	TypeSchi = FourCCFromString("schi")
	TypeTenc = FourCCFromString("tenc")
)

var containerTypes = map[FourCC]bool{
	TypeMoov: true, TypeTrak: true, TypeMdia: true, TypeMinf: true,
	TypeStbl: true, TypeMvex: true, TypeMoof: true, TypeTraf: true,
	TypeSinf: true, TypeSchi: true,
}

func IsContainer(t FourCC) bool { return containerTypes[t] }

var fullBoxTypes = map[FourCC]bool{
	TypeMvhd: true, TypeTkhd: true, TypeMdhd: true, TypeHdlr: true,
	TypeStsd: true, TypeMfhd: true, TypeTfhd: true, TypeTfdt: true,
	TypeTrun: true, TypeSidx: true, TypePssh: true,
}

func IsFullBox(t FourCC) bool { return fullBoxTypes[t] }

// Box is one parsed box header plus its payload sub-cursor.
type Box struct {
	Type       FourCC
	Size       uint64
	HeaderSize int
	Version    uint8
	Flags      uint32
	Payload    *bitreader.Cursor
	Start      int // offset of the box header within the parent buffer
}

// BasicCallback handles a non-full box's payload.
type BasicCallback func(b *Box) error

// FullCallback handles a full box's version/flags and payload.
type FullCallback func(b *Box) error

// Walker is a configurable registry-driven box walker: callers register
// per-FourCC callbacks, then Walk invokes them over a buffer.
type Walker struct {
	callbacks     map[FourCC]BasicCallback
	stopOnPartial bool
	stopped       bool
}

func NewWalker() *Walker { return &Walker{callbacks: make(map[FourCC]BasicCallback)} }

func (w *Walker) On(t FourCC, fn BasicCallback) { w.callbacks[t] = fn }

func (w *Walker) SetStopOnPartial(v bool) { w.stopOnPartial = v }

func (w *Walker) Stop() { w.stopped = true }

// Walk iterates boxes in buf starting at byte offset base (used so
// HeaderSize-aware callbacks, like sidx, can compute absolute offsets).
func (w *Walker) Walk(buf []byte, base int) error {
	c := bitreader.New(buf)
	for c.HasMore() && !w.stopped {
		boxStart := c.Position()
		hdrSize := 8
		sizeField, err := c.ReadU32()
		if err != nil {
			if w.stopOnPartial {
				return nil
			}
			return err
		}
		typeField, err := c.ReadU32()
		if err != nil {
			if w.stopOnPartial {
				return nil
			}
			return err
		}
		size := uint64(sizeField)
		if sizeField == 1 {
			large, err := c.ReadU64()
			if err != nil {
				if w.stopOnPartial {
					return nil
				}
				return err
			}
			size = large
			hdrSize = 16
		} else if sizeField == 0 {
			size = uint64(len(buf) - boxStart)
		}
		boxType := FourCC(typeField)

		var version uint8
		var flags uint32
		if IsFullBox(boxType) {
			vf, err := c.ReadU32()
			if err != nil {
				if w.stopOnPartial {
					return nil
				}
				return err
			}
			version = uint8(vf >> 24)
			flags = vf & 0x00ffffff
			hdrSize += 4
		}

		payloadEnd := boxStart + int(size)
		if payloadEnd > len(buf) {
			payloadEnd = len(buf)
		}
		payloadStart := boxStart + hdrSize
		if payloadStart > payloadEnd {
			payloadStart = payloadEnd
		}
		payload := bitreader.New(buf[payloadStart:payloadEnd])

		box := &Box{
			Type: boxType, Size: size, HeaderSize: hdrSize,
			Version: version, Flags: flags, Payload: payload,
			Start: base + boxStart,
		}
		if cb, ok := w.callbacks[boxType]; ok {
			if err := cb(box); err != nil {
				return err
			}
		}
		if err := c.Seek(payloadEnd); err != nil {
			return err
		}
	}
	return nil
}

// Children recursively walks a box's payload with the same callback set
// until the payload is exhausted.
func (w *Walker) Children(b *Box) error {
	rest, err := b.Payload.ReadBytes(b.Payload.Remaining())
	if err != nil {
		return err
	}
	return w.Walk(rest, b.Start+b.HeaderSize)
}

// SampleDescription reads a leading u32 entry count and invokes
// Children-style walking that many times over the payload.
func (w *Walker) SampleDescription(b *Box) error {
	count, err := b.Payload.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		if err := w.Children(b); err != nil {
			return err
		}
	}
	return nil
}

// AllData hands the box's entire remaining payload to fn.
func AllData(b *Box, fn func([]byte) error) error {
	data, err := b.Payload.ReadBytes(b.Payload.Remaining())
	if err != nil {
		return err
	}
	return fn(data)
}

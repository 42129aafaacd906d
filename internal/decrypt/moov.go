package decrypt

import (
	"41.neocities.org/sofia/file"
)

const widevineSystemID = "edef8ba979d64acea3c827dcd51d21ed"

// InitSegmentInfo is what RewriteInit extracts while patching the init
// segment for delivery to clients that choke on an unrecognized pssh box.
type InitSegmentInfo struct {
	Pssh      []byte
	KeyID     []byte
	Timescale uint64
}

// RewriteInit reads the init segment with sofia, pulls the Widevine pssh
// payload and the tenc default key ID, then renames the pssh/sinf boxes to
// "free" so browsers that reject unknown boxes still play the stream, and
// re-serializes.
func RewriteInit(data []byte) ([]byte, *InitSegmentInfo, error) {
	var f file.File
	if err := f.Read(data); err != nil {
		return nil, nil, err
	}
	info := &InitSegmentInfo{}

	moov, ok := f.GetMoov()
	if !ok {
		return data, info, nil
	}
	for _, p := range moov.Pssh {
		if p.SystemId.String() == widevineSystemID {
			info.Pssh = p.Data
		}
		copy(p.BoxHeader.Type[:], "free")
	}
	info.Timescale = uint64(moov.Trak.Mdia.Mdhd.Timescale)

	sinf, ok := moov.Trak.Mdia.Minf.Stbl.Stsd.Sinf()
	if !ok {
		return data, info, nil
	}
	copy(sinf.BoxHeader.Type[:], "free")
	info.KeyID = sinf.Schi.Tenc.DefaultKid[:]

	sample, ok := moov.Trak.Mdia.Minf.Stbl.Stsd.SampleEntry()
	if ok {
		sample.BoxHeader.Type = sinf.Frma.DataFormat
	}

	rewritten, err := f.Append(nil)
	if err != nil {
		return nil, nil, err
	}
	return rewritten, info, nil
}

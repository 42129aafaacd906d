// Package hls emits the bit-exact master/media playlist strings of spec
// §6, with the rolling live window delegated to grafov/m3u8's
// MediaPlaylist (the same fixed-capacity sliding-window/auto-eviction
// structure livesim2's packagers lean on), so this package only owns text
// formatting, not window bookkeeping.
package hls

import (
	"fmt"
	"math"
	"strings"

	"github.com/grafov/m3u8"
)

// MasterPlaylist renders the bit-exact master playlist: one audio
// EXT-X-MEDIA row, one video EXT-X-STREAM-INF row.
func MasterPlaylist(audioLang string, videoBandwidth int, width, height int, codec string, frameRate float64) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:7\n")
	fmt.Fprintf(&b, "#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID=\"audio\",LANGUAGE=\"%s\",NAME=\"%s\",AUTOSELECT=YES,URI=\"audio/audioVariant.m3u8\"\n", audioLang, audioLang)
	fmt.Fprintf(&b, "#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=%d,RESOLUTION=%dx%d,CODECS=\"%s\",FRAME-RATE=%.2f,AUDIO=\"audio\"\n",
		videoBandwidth, width, height, codec, round2(frameRate))
	b.WriteString("video/videoVariant.m3u8\n")
	return b.String()
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }

// Window wraps a grafov/m3u8 sliding-window MediaPlaylist to track one
// track's live segment window; MediaSequence and eviction bookkeeping come
// from the library, the bit-exact text comes from Render.
type Window struct {
	pl          *m3u8.MediaPlaylist
	maxSegments int
	bufferFull  bool
	targetDur   int
}

// NewWindow builds a track window with capacity maxSegments and the
// EXT-X-TARGETDURATION to print (floor of the manifest's update period).
func NewWindow(maxSegments, targetDurationSeconds int) (*Window, error) {
	pl, err := m3u8.NewMediaPlaylist(uint(maxSegments), uint(maxSegments+1))
	if err != nil {
		return nil, err
	}
	pl.MediaType = m3u8.EVENT
	return &Window{pl: pl, maxSegments: maxSegments, targetDur: targetDurationSeconds}, nil
}

// Append adds a segment, evicting the eldest when the window is full.
// Returns the evicted filename, if any.
func (w *Window) Append(filename string, duration float64) (evicted string, err error) {
	if w.pl.Count() >= uint(w.maxSegments) {
		if w.pl.Segments[0] != nil {
			evicted = w.pl.Segments[0].URI
		}
		w.bufferFull = true
	}
	w.pl.Slide(filename, duration, "")
	return evicted, nil
}

func (w *Window) BufferFull() bool { return w.bufferFull }

func (w *Window) MediaSequence() uint64 { return w.pl.SeqNo }

// Render produces the bit-exact media playlist text, independent of
// grafov/m3u8's own Encode output.
func (w *Window) Render() string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:7\n")
	b.WriteString("#EXT-X-PLAYLIST-TYPE:EVENT\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", w.targetDur)
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", w.MediaSequence())
	for _, seg := range w.pl.Segments {
		if seg == nil {
			continue
		}
		fmt.Fprintf(&b, "#EXTINF:%v,\n%s\n", seg.Duration, seg.URI)
	}
	return b.String()
}

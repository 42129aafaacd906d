package hls

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMasterPlaylist_ContainsRequiredTags(t *testing.T) {
	out := MasterPlaylist("en", 1_500_000, 1920, 1080, "avc1.64001f,mp4a.40.2", 29.97)
	assert.True(t, strings.HasPrefix(out, "#EXTM3U\n"))
	assert.Contains(t, out, "#EXT-X-VERSION:7")
	assert.Contains(t, out, `LANGUAGE="en"`)
	assert.Contains(t, out, "BANDWIDTH=1500000")
	assert.Contains(t, out, "RESOLUTION=1920x1080")
	assert.Contains(t, out, "FRAME-RATE=29.97")
	assert.Contains(t, out, "audio/audioVariant.m3u8")
	assert.Contains(t, out, "video/videoVariant.m3u8")
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 29.97, round2(29.969999))
	assert.Equal(t, 30.0, round2(30))
}

func TestWindow_AppendAndEvictAtCapacity(t *testing.T) {
	w, err := NewWindow(2, 4)
	require.NoError(t, err)

	evicted, err := w.Append("seg-0.m4s", 4)
	require.NoError(t, err)
	assert.Empty(t, evicted)

	evicted, err = w.Append("seg-1.m4s", 4)
	require.NoError(t, err)
	assert.Empty(t, evicted)
	assert.False(t, w.BufferFull())

	evicted, err = w.Append("seg-2.m4s", 4)
	require.NoError(t, err)
	assert.Equal(t, "seg-0.m4s", evicted)
	assert.True(t, w.BufferFull())
}

func TestWindow_RenderContainsSegments(t *testing.T) {
	w, err := NewWindow(3, 6)
	require.NoError(t, err)
	_, err = w.Append("seg-0.m4s", 6)
	require.NoError(t, err)
	_, err = w.Append("seg-1.m4s", 6)
	require.NoError(t, err)

	out := w.Render()
	assert.Contains(t, out, "#EXT-X-TARGETDURATION:6")
	assert.Contains(t, out, "#EXT-X-PLAYLIST-TYPE:EVENT")
	assert.Contains(t, out, "seg-0.m4s")
	assert.Contains(t, out, "seg-1.m4s")
}

// Package saver implements the live-window segment saver: per-cycle
// live-edge selection, the fetch→concat→decrypt→append→evict pipeline,
// pacing, and the filesystem layout, restructured from a one-shot
// full-stream download into a bounded rolling window.
package saver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"41.neocities.org/dashhls/internal/apiclient"
	"41.neocities.org/dashhls/internal/dasherr"
	"41.neocities.org/dashhls/internal/decrypt"
	"41.neocities.org/dashhls/internal/fetch"
	"41.neocities.org/dashhls/internal/hls"
	"41.neocities.org/dashhls/internal/model"
)

// Config holds the saver's per-run parameters.
type Config struct {
	OutPath       string // {outpath}
	RepoRoot      string // {repoRoot}, passed through to the decrypter
	MaxSegmentNum int
	Service, ID   string
	DecryptScript string
}

// Saver owns the two track windows and the filesystem working directories.
type Saver struct {
	cfg      Config
	fetcher  *fetch.Pool
	api      *apiclient.Client
	decr     *decrypt.Runner
	audio    *trackState
	video    *trackState
	keyID    []byte
	key      []byte
	masterWritten bool
}

type trackState struct {
	name           string
	window         *hls.Window
	lastSegmentURI string
	segments       []*model.SegmentReference
}

func New(cfg Config, fetcher *fetch.Pool, api *apiclient.Client, decr *decrypt.Runner) *Saver {
	return &Saver{cfg: cfg, fetcher: fetcher, api: api, decr: decr}
}

// Init builds the per-track segment lists from the audio and video
// streams' concatenated segment indexes; the Init segment is fetched
// lazily by processSegment rather than carried in the list.
func (s *Saver) Init(audio, video *model.Stream, targetDurationSeconds int) error {
	var err error
	s.audio, err = buildTrack("audio", audio)
	if err != nil {
		return err
	}
	s.video, err = buildTrack("video", video)
	if err != nil {
		return err
	}
	s.audio.window, err = hls.NewWindow(s.cfg.MaxSegmentNum, targetDurationSeconds)
	if err != nil {
		return err
	}
	s.video.window, err = hls.NewWindow(s.cfg.MaxSegmentNum, targetDurationSeconds)
	if err != nil {
		return err
	}
	for _, dir := range s.workingDirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// RefreshStreams updates the per-track segment lists from a newly selected
// or newly refreshed variant's streams, called once per cycle ahead of
// RunCycle. The tracks' windows and live-edge cursors are left untouched so
// a variant that still resolves to the same underlying stream keeps its
// buffered state across the refresh.
func (s *Saver) RefreshStreams(audio, video *model.Stream) error {
	if err := refreshTrackSegments(s.audio, audio); err != nil {
		return err
	}
	if err := refreshTrackSegments(s.video, video); err != nil {
		return err
	}
	return nil
}

func refreshTrackSegments(t *trackState, stream *model.Stream) error {
	if t == nil || stream == nil {
		return nil
	}
	idx, err := stream.CreateSegmentIndex()
	if err != nil {
		return err
	}
	var segs []*model.SegmentReference
	if idx != nil {
		idx.ForEachTopLevelReference(func(r *model.SegmentReference) { segs = append(segs, r) })
	}
	t.segments = segs
	return nil
}

func buildTrack(name string, stream *model.Stream) (*trackState, error) {
	idx, err := stream.CreateSegmentIndex()
	if err != nil {
		return nil, err
	}
	t := &trackState{name: name}
	if idx != nil {
		idx.ForEachTopLevelReference(func(r *model.SegmentReference) {
			t.segments = append(t.segments, r)
		})
	}
	return t, nil
}

func (s *Saver) workingDirs() []string {
	return []string{
		filepath.Join(s.cfg.RepoRoot, "download", "audio"),
		filepath.Join(s.cfg.RepoRoot, "download", "video"),
		filepath.Join(s.cfg.RepoRoot, "output", "audio"),
		filepath.Join(s.cfg.RepoRoot, "output", "video"),
		filepath.Join(s.cfg.OutPath, "audio"),
		filepath.Join(s.cfg.OutPath, "video"),
	}
}

// selectLiveEdge resumes from the last processed URI when known, otherwise
// windows back from the live edge by maxSegmentNum; a list holding no more
// than maxSegmentNum segments yields those already ended by
// availabilityEnd. It does not change t.lastSegmentURI; processSegment
// records it.
func selectLiveEdge(t *trackState, availabilityEnd float64, maxSegmentNum int) []*model.SegmentReference {
	total := len(t.segments)
	if t.lastSegmentURI != "" {
		for i, ref := range t.segments {
			uris, _ := ref.GetURIs()
			if len(uris) > 0 && uris[0] == t.lastSegmentURI {
				return t.segments[i+1:]
			}
		}
	}
	for k := 0; k+maxSegmentNum < total; k++ {
		if t.segments[k+maxSegmentNum].EndTime > availabilityEnd {
			return t.segments[k:]
		}
	}
	if total <= maxSegmentNum {
		var out []*model.SegmentReference
		for _, ref := range t.segments {
			if ref.EndTime <= availabilityEnd {
				out = append(out, ref)
			}
		}
		return out
	}
	return nil
}

// RunCycle processes one saver cycle: manifest-expiry key refresh,
// live-edge selection, and the per-segment pipeline for both tracks.
func (s *Saver) RunCycle(ctx context.Context, manifestExpired bool, psshBox []byte, availabilityEnd float64, segmentDuration time.Duration) error {
	if manifestExpired {
		resolved, err := s.api.FetchKey(ctx, s.cfg.Service, s.cfg.ID, psshBox)
		if err != nil {
			return err
		}
		if resolved == nil {
			return dasherr.New(dasherr.Critical, dasherr.Segment, dasherr.SegmentManipulationFailed, fmt.Errorf("saver: key API returned no key"))
		}
		s.keyID, s.key = resolved.KeyID, resolved.Key
	}

	audioRefs := selectLiveEdge(s.audio, availabilityEnd, s.cfg.MaxSegmentNum)
	videoRefs := selectLiveEdge(s.video, availabilityEnd, s.cfg.MaxSegmentNum)

	n := len(audioRefs)
	if len(videoRefs) < n {
		n = len(videoRefs)
	}

	for i := 0; i < n; i++ {
		start := time.Now()
		if err := s.processSegment(ctx, s.audio, audioRefs[i]); err != nil {
			return err
		}
		if err := s.processSegment(ctx, s.video, videoRefs[i]); err != nil {
			return err
		}
		elapsed := time.Since(start)
		if elapsed < segmentDuration && (s.audio.window.BufferFull() || s.video.window.BufferFull()) {
			time.Sleep(segmentDuration - elapsed)
		}
	}

	s.cleanup()
	return nil
}

// processSegment runs the per-segment fetch/concat/decrypt/append pipeline.
func (s *Saver) processSegment(ctx context.Context, t *trackState, ref *model.SegmentReference) error {
	uris, err := ref.GetURIs()
	if err != nil || len(uris) == 0 {
		return dasherr.New(dasherr.Critical, dasherr.Segment, dasherr.SegmentManipulationFailed, err)
	}
	uri := uris[0]
	name := segmentName(uri)

	downloadPath := filepath.Join(s.cfg.RepoRoot, "download", t.name, name)
	data, err := fetch.FetchOne(ctx, s.fetcher.Client, model.MediaRequest{URL: uri})
	if err != nil {
		return err
	}
	if err := os.WriteFile(downloadPath, data, 0o644); err != nil {
		return err
	}

	outPath := filepath.Join(s.cfg.OutPath, t.name, name)
	isInit := name == "init"
	if !isInit {
		initPath := filepath.Join(s.cfg.RepoRoot, "output", t.name, "init.mp4")
		initData, err := os.ReadFile(initPath)
		if err != nil {
			// first-ever segment of the window: seed output/init.mp4 from
			// the track's init segment URI.
			initData, err = fetchInit(ctx, s.fetcher, t)
			if err != nil {
				return err
			}
			_ = os.WriteFile(initPath, initData, 0o644)
		}
		outPath = filepath.Join(s.cfg.RepoRoot, "output", t.name, name)
		concat := append(append([]byte(nil), initData...), data...)
		if err := os.WriteFile(outPath, concat, 0o644); err != nil {
			return err
		}
	}

	nameStem := stripExt(name)
	decryptOut := filepath.Join(s.cfg.OutPath, t.name, nameStem+".mp4")
	if err := s.decr.Run(ctx, s.keyID, s.key, outPath, decryptOut, s.cfg.RepoRoot, t.name); err != nil {
		return err
	}

	if isInit {
		return nil
	}

	evicted, err := t.window.Append(nameStem+".mp4", ref.EndTime-ref.StartTime)
	if err != nil {
		return err
	}
	if evicted != "" {
		_ = os.Remove(filepath.Join(s.cfg.OutPath, t.name, evicted))
	}
	if err := os.WriteFile(filepath.Join(s.cfg.OutPath, t.name, t.name+"Variant.m3u8"), []byte(t.window.Render()), 0o644); err != nil {
		return err
	}
	t.lastSegmentURI = uri
	return nil
}

func fetchInit(ctx context.Context, p *fetch.Pool, t *trackState) ([]byte, error) {
	if len(t.segments) == 0 {
		return nil, fmt.Errorf("saver: no init segment for track %s", t.name)
	}
	init := t.segments[0].InitSegment
	if init == nil || len(init.URIs) == 0 {
		return nil, fmt.Errorf("saver: no init segment URI for track %s", t.name)
	}
	return fetch.FetchOne(ctx, p.Client, model.MediaRequest{URL: init.URIs[0]})
}

// segmentName zero-pads the hex-parsed segment name to 12 digits,
// falling back to the extension-stripped basename when it isn't hex.
func segmentName(uri string) string {
	base := filepath.Base(uri)
	stem := stripExt(base)
	if n, err := strconv.ParseUint(stem, 16, 64); err == nil {
		return fmt.Sprintf("%012d", n)
	}
	return stem
}

func stripExt(name string) string {
	ext := filepath.Ext(name)
	return name[:len(name)-len(ext)]
}

// WriteMasterPlaylist is the public entrypoint used by the caller once it
// has resolved the selected Variant's concrete bandwidth/resolution/codec.
func (s *Saver) WriteMasterPlaylist(audioLang string, videoBandwidth, width, height int, codec string, frameRate float64) error {
	if s.masterWritten {
		return nil
	}
	content := hls.MasterPlaylist(audioLang, videoBandwidth, width, height, codec, frameRate)
	if err := os.WriteFile(filepath.Join(s.cfg.OutPath, "master.m3u8"), []byte(content), 0o644); err != nil {
		return err
	}
	s.masterWritten = true
	return nil
}

func (s *Saver) cleanup() {
	for _, dir := range []string{
		filepath.Join(s.cfg.RepoRoot, "download"),
		filepath.Join(s.cfg.RepoRoot, "output"),
	} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			_ = os.RemoveAll(filepath.Join(dir, e.Name()))
		}
	}
}

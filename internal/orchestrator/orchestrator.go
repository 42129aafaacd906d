// Package orchestrator drives the DASH manifest refresh state machine:
// Idle → Starting → Live → Refreshing → Live (self-loop) → Stopping →
// Stopped.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"41.neocities.org/dashhls/internal/apiclient"
	"41.neocities.org/dashhls/internal/dasherr"
	"41.neocities.org/dashhls/internal/fetch"
	"41.neocities.org/dashhls/internal/model"
	"41.neocities.org/dashhls/internal/mpd"
	"41.neocities.org/dashhls/internal/timeline"
)

const minUpdatePeriod = 3 * time.Second

type State int

const (
	Idle State = iota
	Starting
	Live
	Refreshing
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Live:
		return "live"
	case Refreshing:
		return "refreshing"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Orchestrator owns the stream map and the manifest refresh loop.
type Orchestrator struct {
	mu      sync.Mutex
	state   State
	api     *apiclient.Client
	fetcher *fetch.Pool
	service string
	id      string

	manifestURI     string
	manifestExpired bool
	expireTime      time.Time
	updatePeriod    time.Duration
	ewma            *timeline.EWMA

	streams map[string]*model.Stream // key: periodID + "/" + repID

	presentation *model.Presentation

	timer  *time.Timer
	cancel context.CancelFunc
}

func New(api *apiclient.Client, fetcher *fetch.Pool, service, id string) *Orchestrator {
	return &Orchestrator{
		api: api, fetcher: fetcher, service: service, id: id,
		state:   Idle,
		streams: make(map[string]*model.Stream),
		ewma:    timeline.NewEWMA(5),
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Start resolves the manifest URL, fetches and parses the first manifest,
// and forces key acquisition on the first saver cycle.
func (o *Orchestrator) Start(ctx context.Context) (*model.Presentation, error) {
	o.mu.Lock()
	o.state = Starting
	o.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	res, err := o.api.ResolveManifestURL(ctx, o.service, o.id)
	if err != nil {
		return nil, err
	}
	o.manifestURI = res.Data
	o.expireTime = time.Unix(res.Expiry, 0)

	pres, err := o.requestManifest(ctx)
	if err != nil {
		return nil, err
	}
	o.manifestExpired = true

	o.mu.Lock()
	o.state = Live
	o.mu.Unlock()
	return pres, nil
}

// requestManifest fetches and parses the current manifest, recording the
// refresh duration into the EWMA.
func (o *Orchestrator) requestManifest(ctx context.Context) (*model.Presentation, error) {
	start := time.Now()
	data, err := fetch.FetchOne(ctx, o.fetcher.Client, model.MediaRequest{URL: o.manifestURI})
	if err != nil {
		return nil, err
	}
	result, err := mpd.Parse(data, o.manifestURI, time.Now())
	if err != nil {
		return nil, err
	}
	o.ewma.Sample(time.Since(start).Seconds())
	if err := o.mergeStreams(ctx, result); err != nil {
		return nil, err
	}
	return result.Presentation, nil
}

// rangeFetch adapts the fetcher pool to mpd.FetchFunc's byte-range contract
// for SegmentBase/SIDX resolution.
func (o *Orchestrator) rangeFetch(ctx context.Context) mpd.FetchFunc {
	return func(uri string, startByte uint64, endByte *uint64) ([]byte, error) {
		req := model.MediaRequest{URL: uri}
		if endByte != nil {
			req.Header = http.Header{"Range": []string{fmt.Sprintf("bytes=%d-%d", startByte, *endByte)}}
		}
		return fetch.FetchOne(ctx, o.fetcher.Client, req)
	}
}

// mergeStreams preserves per-(period,rep) streams across refresh: existing
// indexes are evicted up to the current availability start, then the
// period combiner rebuilds the Stream list from the freshly parsed
// representations and the result replaces each key's entry. Streams whose
// representation is absent from this refresh (a dropped Period) are left
// untouched in the map rather than discarded.
func (o *Orchestrator) mergeStreams(ctx context.Context, result *mpd.ParseResult) error {
	minAvailability := 0.0
	if result.Presentation.Timeline != nil {
		minAvailability = result.Presentation.Timeline.GetSegmentAvailabilityEnd() - result.Presentation.Timeline.SegmentAvailabilityDur
	}

	o.mu.Lock()
	for _, r := range result.Representations {
		key := r.PeriodID + "/" + r.ID
		existing, ok := o.streams[key]
		if !ok {
			continue
		}
		idx, err := existing.CreateSegmentIndex()
		if err != nil || idx == nil {
			continue
		}
		idx.Evict(minAvailability)
		r.PreviousIndex = idx
	}
	o.mu.Unlock()

	fetchFn := o.rangeFetch(ctx)
	indexes := make(map[*mpd.RawRepresentation]*model.SegmentIndex, len(result.Representations))
	for _, r := range result.Representations {
		factory, err := mpd.ResolveSegmentInfo(r, fetchFn)
		if err != nil {
			return err
		}
		idx, err := factory()
		if err != nil {
			return err
		}
		indexes[r] = idx
	}

	streams, err := mpd.CombinePeriods(result.Representations, indexes)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range streams {
		o.streams[s.PeriodID+"/"+s.RepID] = s
	}
	result.Presentation.Variants = buildVariants(streams)
	for _, s := range streams {
		switch s.ContentType {
		case model.ContentText:
			result.Presentation.TextStreams = append(result.Presentation.TextStreams, s)
		case model.ContentImage:
			result.Presentation.ImageStreams = append(result.Presentation.ImageStreams, s)
		}
	}
	return nil
}

// buildVariants pairs every video Stream with every audio Stream into a
// Variant with aggregate bandwidth; a content type with no counterpart
// still gets a Variant carrying only its own stream.
func buildVariants(streams []*model.Stream) []*model.Variant {
	var videos, audios []*model.Stream
	for _, s := range streams {
		switch s.ContentType {
		case model.ContentVideo:
			videos = append(videos, s)
		case model.ContentAudio:
			audios = append(audios, s)
		}
	}

	var variants []*model.Variant
	switch {
	case len(videos) > 0 && len(audios) > 0:
		for _, v := range videos {
			for _, a := range audios {
				variants = append(variants, &model.Variant{Video: v, Audio: a, Bandwidth: v.Bandwidth + a.Bandwidth})
			}
		}
	case len(videos) > 0:
		for _, v := range videos {
			variants = append(variants, &model.Variant{Video: v, Bandwidth: v.Bandwidth})
		}
	case len(audios) > 0:
		for _, a := range audios {
			variants = append(variants, &model.Variant{Audio: a, Bandwidth: a.Bandwidth})
		}
	}
	return variants
}

// OnUpdate implements the refresh tick: re-resolves the manifest URL if
// expired, re-fetches, and reschedules itself.
func (o *Orchestrator) OnUpdate(ctx context.Context, onRefreshed func(*model.Presentation)) {
	o.mu.Lock()
	o.state = Refreshing
	o.mu.Unlock()

	elapsedStart := time.Now()
	if time.Now().After(o.expireTime) || time.Now().Equal(o.expireTime) {
		res, err := o.api.ResolveManifestURL(ctx, o.service, o.id)
		if err != nil {
			slog.Error("manifest url refresh failed", "err", dasherr.Reclassify(err))
		} else {
			o.manifestURI = res.Data
			o.expireTime = time.Unix(res.Expiry, 0)
			o.manifestExpired = true
		}
	}

	pres, err := o.requestManifest(ctx)
	if err != nil {
		slog.Error("manifest refresh failed", "err", dasherr.Reclassify(err))
	} else if onRefreshed != nil {
		onRefreshed(pres)
	}

	elapsed := time.Since(elapsedStart)
	wait := o.updatePeriod - elapsed
	if est := time.Duration(o.ewma.Estimate() * float64(time.Second)); est > wait {
		wait = est
	}
	if wait < minUpdatePeriod {
		wait = minUpdatePeriod
	}

	o.mu.Lock()
	o.state = Live
	o.timer = time.AfterFunc(wait, func() { o.OnUpdate(ctx, onRefreshed) })
	o.mu.Unlock()
}

// ManifestExpired reports and clears the forced-key-acquisition flag, for
// the saver's manifest-expiry coupling.
func (o *Orchestrator) ManifestExpired() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	expired := o.manifestExpired
	o.manifestExpired = false
	return expired
}

// Stop releases every stream's segment index, clears the stream map,
// cancels the refresh timer, and cancels the operation context.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = Stopping
	if o.timer != nil {
		o.timer.Stop()
	}
	for _, s := range o.streams {
		idx, err := s.CreateSegmentIndex()
		if err != nil || idx == nil {
			continue
		}
		idx.Release()
	}
	o.streams = make(map[string]*model.Stream)
	if o.cancel != nil {
		o.cancel()
	}
	o.state = Stopped
}

// Command mayactl runs the DASH-to-HLS live ingest loop: resolve the
// manifest, parse it, select a variant, and drive the segment saver.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"41.neocities.org/dashhls/internal/apiclient"
	"41.neocities.org/dashhls/internal/config"
	"41.neocities.org/dashhls/internal/decrypt"
	"41.neocities.org/dashhls/internal/fetch"
	"41.neocities.org/dashhls/internal/logging"
	"41.neocities.org/dashhls/internal/metrics"
	"41.neocities.org/dashhls/internal/model"
	"41.neocities.org/dashhls/internal/orchestrator"
	"41.neocities.org/dashhls/internal/saver"
	"41.neocities.org/dashhls/internal/selector"
)

func main() {
	log.SetFlags(log.Ltime)

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	if err := logging.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatal(err)
	}

	m := metrics.New()
	go func() {
		addr := ":" + strconv.Itoa(cfg.MetricsPort)
		slog.Info("metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, m.Mux()); err != nil {
			slog.Error("metrics server stopped", "err", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	api := apiclient.New(cfg.ApiformatMpd, cfg.ApiformatKey)
	fetcher := fetch.NewPool(&http.Client{Timeout: 20 * time.Second}, cfg.Threads)
	decr := decrypt.NewRunner(cfg.DecryptScript)

	orch := orchestrator.New(api, fetcher, cfg.Service, cfg.ID)
	pres, err := orch.Start(ctx)
	if err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}
	m.IncManifestRefresh()

	tier := parseTier(cfg.Tier)

	var presMu sync.Mutex
	latest := pres
	go orch.OnUpdate(ctx, func(refreshed *model.Presentation) {
		presMu.Lock()
		latest = refreshed
		presMu.Unlock()
	})

	sv := saver.New(saver.Config{
		OutPath: cfg.OutPath, RepoRoot: cfg.RepoRoot,
		MaxSegmentNum: cfg.MaxSegmentNum, Service: cfg.Service, ID: cfg.ID,
		DecryptScript: cfg.DecryptScript,
	}, fetcher, api, decr)
	var initialized bool

	for {
		select {
		case <-ctx.Done():
			orch.Stop()
			return
		default:
		}

		presMu.Lock()
		currentPres := latest
		presMu.Unlock()

		// Variant selection runs once per cycle, against the latest
		// presentation, per §4.12.
		variant, err := selector.Select(currentPres.Variants, tier, cfg.Languages)
		if err != nil {
			slog.Error("variant selection failed", "err", err)
			if !initialized {
				os.Exit(1)
			}
			m.IncCycleError()
			continue
		}

		targetDuration := int(currentPres.Timeline.MaxSegmentDuration)
		if !initialized {
			if err := sv.Init(variant.Audio, variant.Video, targetDuration); err != nil {
				slog.Error("saver init failed", "err", err)
				os.Exit(1)
			}
			var audioLang string
			if variant.Audio != nil {
				audioLang = variant.Audio.Language
			}
			width, height, codec, frameRate := 0, 0, "", 0.0
			if variant.Video != nil {
				width, height, codec, frameRate = variant.Video.Width, variant.Video.Height, variant.Video.Codecs, variant.Video.FrameRate
			}
			if err := sv.WriteMasterPlaylist(audioLang, variant.Bandwidth, width, height, codec, frameRate); err != nil {
				slog.Error("master playlist write failed", "err", err)
			}
			initialized = true
		} else if err := sv.RefreshStreams(variant.Audio, variant.Video); err != nil {
			slog.Error("saver stream refresh failed", "err", err)
			m.IncCycleError()
			continue
		}

		expired := orch.ManifestExpired()
		availabilityEnd := currentPres.Timeline.GetSegmentAvailabilityEnd()
		var psshBox []byte
		if variant.Video != nil && len(variant.Video.DrmInfos) > 0 && len(variant.Video.DrmInfos[0].WidevinePSSH) > 0 {
			psshBox = apiclient.BuildPsshBox(variant.Video.DrmInfos[0].WidevinePSSH)
		}
		segmentDuration := time.Duration(currentPres.Timeline.MaxSegmentDuration * float64(time.Second))
		if err := sv.RunCycle(ctx, expired, psshBox, availabilityEnd, segmentDuration); err != nil {
			slog.Error("saver cycle failed", "err", err)
			m.IncCycleError()
		}
	}
}

func parseTier(s string) selector.Tier {
	switch s {
	case "low":
		return selector.TierLow
	case "high":
		return selector.TierHigh
	default:
		return selector.TierMid
	}
}

// Package main provides the entry point for the mosaic acquisition loop: the
// live camera frame is previewed against the mosaic until a key adds it,
// saves, or quits.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mosaic-builder/internal/app"
	"mosaic-builder/internal/config"
	"mosaic-builder/internal/cv"
	"mosaic-builder/internal/logging"
	"mosaic-builder/internal/metrics"
	"mosaic-builder/internal/mosaic"
	"mosaic-builder/internal/version"
	"mosaic-builder/pkg/geometry"

	"github.com/rs/zerolog/log"
)

const (
	appTitle = "Mosaic Builder"

	keyAdd  = ' '
	keySave = 's'
	keyQuit = 'q'
	keyEsc  = 27

	previewDelayMS = 30
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Settings file")
	device := flag.Int("camera", -1, "Video device (overrides settings)")
	outDir := flag.String("o", "", "Output directory (overrides settings)")
	watchDir := flag.String("watch", "", "Also add image files written to this directory")
	flag.Parse()

	logging.ConfigureRuntime()
	log.Info().Str("version", version.String()).Msgf("starting %s", appTitle)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("settings")
	}
	logging.SetFileLevel(cfg.Log.Level)
	if *device >= 0 {
		cfg.Camera.Device = *device
	}
	if *outDir != "" {
		cfg.Output.Dir = *outDir
	}
	if *watchDir != "" {
		cfg.Watch.Dir = *watchDir
	}

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("acquisition stopped")
	}
}

func run(cfg config.Config) error {
	session, release, err := cv.NewSession(cfg)
	if err != nil {
		return err
	}
	defer release()

	state := app.NewState(session, cfg.Output.Dir, cfg.Output.Autosave)
	state.On(app.EventTileAdded, func(data interface{}) {
		t := data.(*mosaic.Tile)
		log.Info().Int("tile", t.Index).Int("reference", t.Reference).Msg("added")
	})
	state.On(app.EventRegistrationFailed, func(data interface{}) {
		log.Warn().Err(data.(error)).Msg("move the stage to overlap the mosaic and retry")
	})
	state.On(app.EventSaved, func(data interface{}) {
		log.Info().Str("dir", data.(string)).Msg("saved")
	})

	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr)
	}

	if cfg.Watch.Dir != "" {
		watcher := app.NewFolderWatcher(cfg.Watch.Dir, time.Duration(cfg.Watch.IntervalMS)*time.Millisecond)
		watcher.OnNewFile(func(path string) {
			if _, err := state.AddFile(path); err != nil && !app.IsRecoverable(err) {
				log.Error().Err(err).Str("file", path).Msg("cannot add file")
			}
		})
		watcher.Start()
		defer watcher.Stop()
		log.Info().Str("dir", watcher.Dir()).Msg("watching for images")
	}

	camera, err := cv.OpenCamera(cfg.Camera.Device)
	if err != nil {
		return err
	}
	defer camera.Close()

	window := cv.NewPreviewWindow(appTitle)
	defer window.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-stop:
			return saveIfModified(state)
		default:
		}

		frame, err := camera.Frame()
		if err != nil {
			return err
		}

		snap := state.Snapshot()
		var outline []geometry.Point2D
		status := fmt.Sprintf("%d tiles  [space] add  [s] save  [q] quit", len(snap.Tiles))
		if p, err := state.Preview(frame); err == nil {
			outline = p.CanvasOutline
			if p.Reference >= 0 {
				status = fmt.Sprintf("%d tiles  ref %d  %d matches  %.0f%% overlap  [space] add",
					len(snap.Tiles), p.Reference, p.Score, 100*p.Overlap)
			}
		} else if !errors.Is(err, mosaic.ErrEmptyInput) {
			status = fmt.Sprintf("%d tiles  %v", len(snap.Tiles), err)
		}

		display := frame
		if !snap.Canvas.Empty() {
			display = snap.Canvas.Image
		}

		switch window.Show(display, outline, status, previewDelayMS) {
		case keyAdd:
			raw, err := camera.Acquire(cfg.Camera.Averages)
			if err != nil {
				return err
			}
			// Failures are reported through EventRegistrationFailed.
			_, _ = state.AddImage(raw)
		case keySave:
			if _, err := state.Save(); err != nil {
				log.Error().Err(err).Msg("save failed")
			}
		case keyQuit, keyEsc:
			return saveIfModified(state)
		}
	}
}

func saveIfModified(state *app.State) error {
	if !state.IsModified() || state.Len() == 0 {
		return nil
	}
	_, err := state.Save()
	return err
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}

// Command stitchtest builds a mosaic from image files on disk and prints the
// registration result for each one.
package main

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"mosaic-builder/internal/config"
	"mosaic-builder/internal/cv"
	"mosaic-builder/internal/logging"
	"mosaic-builder/internal/mosaic"
	"mosaic-builder/internal/project"
	"mosaic-builder/internal/raster"
	"mosaic-builder/internal/version"

	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Settings file")
	dir := flag.String("d", "", "Directory of images to stitch, in name order")
	out := flag.String("o", "", "Export the mosaic under this directory")
	name := flag.String("name", "", "Export name (default: timestamp)")
	format := flag.String("format", "", "Export format: tiff or png")
	backend := flag.String("render", "", "Render backend: go or opencv")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	logging.SetFileLevel(cfg.Log.Level)
	if *verbose {
		logging.SetLevel("debug")
	}
	if *format != "" {
		cfg.Output.Format = *format
	}
	if *backend != "" {
		cfg.Render.Backend = *backend
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	paths := flag.Args()
	if *dir != "" {
		found, err := imagesIn(*dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list %s: %v\n", *dir, err)
			os.Exit(1)
		}
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		fmt.Println("Usage: stitchtest [-config mosaic.toml] [-o outdir] [-d dir | image...]")
		os.Exit(1)
	}

	session, release, err := cv.NewSession(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create session: %v\n", err)
		os.Exit(1)
	}
	defer release()

	log.Info().Str("version", version.String()).Int("images", len(paths)).Msg("stitching")

	failed := 0
	for _, path := range paths {
		img, err := raster.Load(path)
		if err != nil {
			fmt.Printf("%-32s  load failed: %v\n", filepath.Base(path), err)
			failed++
			continue
		}
		tile, err := session.AddImage(img)
		if err != nil {
			fmt.Printf("%-32s  %s\n", filepath.Base(path), describeFailure(err))
			failed++
			continue
		}
		printTile(filepath.Base(path), tile)
	}

	b := session.Bounds()
	fmt.Printf("\n=== Mosaic ===\n")
	fmt.Printf("Tiles: %d of %d images\n", session.Len(), len(paths))
	if !b.Empty() {
		fmt.Printf("Bounds: x [%.1f, %.1f]  y [%.1f, %.1f]  (%.0f x %.0f)\n",
			b.XMin, b.XMax, b.YMin, b.YMax, b.Width(), b.Height())
	}

	if *out != "" && session.Len() > 0 {
		written, err := session.SaveMosaicAs(*out, *name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Save failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Saved: %s\n", written)
		if err := checkManifest(written, session.Len()); err != nil {
			fmt.Fprintf(os.Stderr, "Manifest check failed: %v\n", err)
			os.Exit(1)
		}
	}

	if failed > 0 {
		os.Exit(2)
	}
}

// checkManifest reads back the manifest just written and compares it with
// the session.
func checkManifest(dir string, tiles int) error {
	m, err := project.Load(filepath.Join(dir, project.ManifestFile))
	if err != nil {
		return err
	}
	if len(m.Tiles) != tiles {
		return fmt.Errorf("manifest lists %d tiles, session has %d", len(m.Tiles), tiles)
	}
	fmt.Printf("Manifest: %s, %d tiles, generator %s\n", m.Name, len(m.Tiles), m.Generator)
	return nil
}

func printTile(name string, t *mosaic.Tile) {
	if t.Reference < 0 {
		fmt.Printf("%-32s  tile %d  seed  %dx%d  %d features\n", name, t.Index, t.Width(), t.Height(), len(t.Features))
		return
	}
	fmt.Printf("%-32s  tile %d  ref %d  matches %d  inliers %d  scale %.4f  rot %.3f°  t (%.1f, %.1f)\n",
		name, t.Index, t.Reference, t.Matches, t.Inliers,
		t.Transform.ScaleFactor(), t.Transform.Angle()*180/math.Pi, t.Transform.TX, t.Transform.TY)
}

func describeFailure(err error) string {
	var regErr *mosaic.RegistrationError
	switch {
	case errors.As(err, &regErr) && regErr.Reference >= 0:
		return fmt.Sprintf("rejected: %v", regErr)
	default:
		return fmt.Sprintf("failed: %v", err)
	}
}

func imagesIn(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && raster.IsSupportedFormat(e.Name()) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

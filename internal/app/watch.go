package app

import (
	"image"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"mosaic-builder/internal/raster"

	"github.com/rs/zerolog/log"
)

// FolderWatcher polls a directory for image files written by an external
// capture program and reports each new file once, in name order.
type FolderWatcher struct {
	dir           string
	checkInterval time.Duration
	settle        time.Duration // a file must be unmodified this long before it is reported
	stopCh        chan struct{}
	done          sync.WaitGroup
	onNewFile     func(path string)

	seen map[string]bool
}

// NewFolderWatcher creates a watcher for dir. Files already present are
// reported on the first poll.
func NewFolderWatcher(dir string, checkInterval time.Duration) *FolderWatcher {
	return &FolderWatcher{
		dir:           dir,
		checkInterval: checkInterval,
		settle:        checkInterval,
		seen:          make(map[string]bool),
	}
}

// OnNewFile sets the callback for new files. The callback is called from the
// watcher goroutine.
func (w *FolderWatcher) OnNewFile(callback func(path string)) {
	w.onNewFile = callback
}

// Start begins watching in a background goroutine.
func (w *FolderWatcher) Start() {
	w.stopCh = make(chan struct{})
	w.done.Add(1)
	go w.watchLoop()
}

// Stop stops the watcher goroutine and waits for it to exit.
func (w *FolderWatcher) Stop() {
	close(w.stopCh)
	w.done.Wait()
}

func (w *FolderWatcher) watchLoop() {
	defer w.done.Done()
	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	for {
		w.poll(time.Now())
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
		}
	}
}

func (w *FolderWatcher) poll(now time.Time) {
	for _, path := range w.Scan(now) {
		if w.onNewFile != nil {
			w.onNewFile(path)
		}
	}
}

// Scan returns supported image files not reported before whose modification
// time is at least the settle interval before now, and marks them seen.
func (w *FolderWatcher) Scan(now time.Time) []string {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", w.dir).Msg("cannot read watch directory")
		return nil
	}

	var fresh []string
	for _, e := range entries {
		if e.IsDir() || !raster.IsSupportedFormat(e.Name()) {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if w.seen[path] {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < w.settle {
			continue
		}
		w.seen[path] = true
		fresh = append(fresh, path)
	}
	sort.Strings(fresh)
	return fresh
}

// Dir returns the watched directory.
func (w *FolderWatcher) Dir() string {
	return w.dir
}

func loadGray(path string) (*image.Gray, error) {
	return raster.Load(path)
}

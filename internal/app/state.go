// Package app provides application state, events and file ingestion around a
// mosaic session.
package app

import (
	"errors"
	"image"
	"path/filepath"
	"sync"
	"time"

	"mosaic-builder/internal/mosaic"
	"mosaic-builder/internal/project"

	"github.com/rs/zerolog/log"
)

// State owns the mosaic session shared by the camera loop, the folder
// watcher and autosave.
type State struct {
	mu sync.RWMutex

	session *mosaic.Session

	// Output
	OutputDir string
	Name      string // export name, chosen at the first save
	Autosave  bool
	LastSave  string
	Modified  bool

	// Clock for export names
	Now func() time.Time

	listeners map[EventType][]EventListener
}

// EventType names something that happened to the mosaic.
type EventType int

const (
	EventTileAdded EventType = iota
	EventRegistrationFailed
	EventPreview
	EventSaved
	EventSaveFailed
	EventModified
)

func (e EventType) String() string {
	switch e {
	case EventTileAdded:
		return "tile_added"
	case EventRegistrationFailed:
		return "registration_failed"
	case EventPreview:
		return "preview"
	case EventSaved:
		return "saved"
	case EventSaveFailed:
		return "save_failed"
	case EventModified:
		return "modified"
	default:
		return "unknown"
	}
}

// EventListener receives the event payload: a *mosaic.Tile, an error, a
// *mosaic.Preview, an export directory or the modified flag.
type EventListener func(data interface{})

// NewState creates application state around session, exporting into outputDir.
func NewState(session *mosaic.Session, outputDir string, autosave bool) *State {
	return &State{
		session:   session,
		OutputDir: outputDir,
		Autosave:  autosave,
		Now:       time.Now,
		listeners: make(map[EventType][]EventListener),
	}
}

// On subscribes fn to event.
func (s *State) On(event EventType, fn EventListener) {
	s.mu.Lock()
	s.listeners[event] = append(s.listeners[event], fn)
	s.mu.Unlock()
}

// Emit calls the subscribers of event in subscription order. It must not be
// called with s.mu held.
func (s *State) Emit(event EventType, data interface{}) {
	s.mu.RLock()
	fns := s.listeners[event]
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(data)
	}
}

// SetModified records whether tiles were added since the last save.
func (s *State) SetModified(v bool) {
	s.mu.Lock()
	s.Modified = v
	s.mu.Unlock()
	s.Emit(EventModified, v)
}

// AddImage adds raw to the mosaic and autosaves when enabled. A failed
// autosave is reported through EventSaveFailed; the tile stays added.
func (s *State) AddImage(raw *image.Gray) (*mosaic.Tile, error) {
	s.mu.Lock()
	tile, err := s.session.AddImage(raw)
	s.mu.Unlock()
	if err != nil {
		s.Emit(EventRegistrationFailed, err)
		return nil, err
	}

	s.Emit(EventTileAdded, tile)
	s.SetModified(true)

	if s.Autosave {
		if _, err := s.Save(); err != nil {
			log.Warn().Err(err).Msg("autosave failed")
		}
	}
	return tile, nil
}

// AddFile loads an image file and adds it.
func (s *State) AddFile(path string) (*mosaic.Tile, error) {
	img, err := loadGray(path)
	if err != nil {
		s.Emit(EventRegistrationFailed, err)
		return nil, err
	}
	tile, err := s.AddImage(img)
	if err == nil {
		log.Info().Str("file", filepath.Base(path)).Int("tile", tile.Index).Msg("file added")
	}
	return tile, err
}

// Preview reports where raw would land without adding it.
func (s *State) Preview(raw *image.Gray) (*mosaic.Preview, error) {
	// Detectors are not required to be safe for concurrent use.
	s.mu.Lock()
	p, err := s.session.PreviewImage(raw)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.Emit(EventPreview, p)
	return p, nil
}

// Save exports the mosaic into OutputDir. The export name is fixed at the
// first save so later saves, including autosaves, overwrite the same folder.
func (s *State) Save() (string, error) {
	s.mu.Lock()
	if s.Name == "" {
		s.Name = project.DefaultName(s.Now())
	}
	dir, err := s.session.SaveMosaicAs(s.OutputDir, s.Name)
	if err == nil {
		s.LastSave = dir
	}
	s.mu.Unlock()

	if err != nil {
		s.Emit(EventSaveFailed, err)
		return "", err
	}
	s.SetModified(false)
	s.Emit(EventSaved, dir)
	return dir, nil
}

// IsModified reports whether tiles were added since the last save.
func (s *State) IsModified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Modified
}

// Snapshot returns the session's current tiles, bounds and canvas.
func (s *State) Snapshot() mosaic.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Snapshot()
}

// Len returns the number of tiles.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Len()
}

// IsRecoverable reports whether err is a registration failure that leaves the
// mosaic usable, so the caller can simply move the stage and retry.
func IsRecoverable(err error) bool {
	return errors.Is(err, mosaic.ErrInsufficientOverlap) ||
		errors.Is(err, mosaic.ErrTransformNotFound) ||
		errors.Is(err, mosaic.ErrEmptyInput)
}

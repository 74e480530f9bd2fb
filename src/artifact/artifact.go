// Package artifact persists screen captures as short-lived PNG files.
//
// A Store owns at most one active artifact. The controller releases it
// explicitly once the answer for the capture is in; a new capture releases
// any artifact still held.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const filePrefix = "screen-ask-"

// Source produces a raster image of the current screen.
type Source interface {
	Capture() (image.Image, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func() (image.Image, error)

func (f SourceFunc) Capture() (image.Image, error) { return f() }

// CaptureError reports a failure of the capture primitive.
type CaptureError struct{ Err error }

func (e *CaptureError) Error() string { return fmt.Sprintf("screen capture failed: %v", e.Err) }
func (e *CaptureError) Unwrap() error { return e.Err }

// StorageError reports a failed artifact write, read or delete.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("artifact %s %s: %v", e.Op, e.Path, e.Err)
}
func (e *StorageError) Unwrap() error { return e.Err }

// Artifact is the on-disk representation of one capture.
type Artifact struct {
	Path      string
	Size      int64
	CreatedAt time.Time
	Width     int
	Height    int

	mu       sync.Mutex
	released bool
}

// Released reports whether the backing file has been removed by the store.
func (a *Artifact) Released() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.released
}

// Store writes captures into dir.
type Store struct {
	dir    string
	source Source
	now    func() time.Time
	remove func(string) error

	mu     sync.Mutex
	active *Artifact
}

func NewStore(dir string, source Source) *Store {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Store{dir: dir, source: source, now: time.Now, remove: os.Remove}
}

// Dir returns the directory artifacts are written to.
func (s *Store) Dir() string { return s.dir }

// Active returns the artifact currently held, or nil.
func (s *Store) Active() *Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// CaptureAndStore captures the screen and writes it as a uniquely named PNG.
func (s *Store) CaptureAndStore(ctx context.Context) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, &CaptureError{Err: err}
	}
	if s.source == nil {
		return nil, &CaptureError{Err: errors.New("no capture source configured")}
	}

	img, err := s.source.Capture()
	if err != nil {
		return nil, &CaptureError{Err: err}
	}
	if img == nil {
		return nil, &CaptureError{Err: errors.New("capture returned no image")}
	}

	if prev := s.Active(); prev != nil {
		log.Printf("artifact: superseding %s", prev.Path)
		if err := s.Release(prev); err != nil {
			log.Printf("artifact: failed to release superseded capture: %v", err)
		}
	}

	a, err := s.write(img)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.active = a
	s.mu.Unlock()

	log.Printf("artifact: stored %s (%d bytes, %dx%d)", a.Path, a.Size, a.Width, a.Height)
	return a, nil
}

func (s *Store) write(img image.Image) (*Artifact, error) {
	path := filepath.Join(s.dir, filePrefix+uuid.NewString()+".png")

	// O_EXCL keeps a single writer per name.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, &StorageError{Op: "create", Path: path, Err: err}
	}

	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		_ = s.remove(path)
		return nil, &StorageError{Op: "encode", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		_ = s.remove(path)
		return nil, &StorageError{Op: "close", Path: path, Err: err}
	}

	st, err := os.Stat(path)
	if err != nil {
		_ = s.remove(path)
		return nil, &StorageError{Op: "stat", Path: path, Err: err}
	}

	b := img.Bounds()
	return &Artifact{
		Path:      path,
		Size:      st.Size(),
		CreatedAt: s.now(),
		Width:     b.Dx(),
		Height:    b.Dy(),
	}, nil
}

// Release removes the backing file. Releasing nil or an already released
// artifact is a no-op.
func (s *Store) Release(a *Artifact) error {
	if a == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return nil
	}

	// A failed delete leaves the artifact unreleased so it can be retried.
	if err := s.remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &StorageError{Op: "delete", Path: a.Path, Err: err}
	}
	a.released = true

	s.mu.Lock()
	if s.active == a {
		s.active = nil
	}
	s.mu.Unlock()

	log.Printf("artifact: released %s", a.Path)
	return nil
}

// Sweep removes captures left behind by a previous process. It must only run
// before the first capture.
func (s *Store) Sweep() (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, filePrefix+"*.png"))
	if err != nil {
		return 0, &StorageError{Op: "sweep", Path: s.dir, Err: err}
	}
	removed := 0
	var errs []error
	for _, m := range matches {
		if err := s.remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if len(errs) > 0 {
		return removed, &StorageError{Op: "sweep", Path: s.dir, Err: errors.Join(errs...)}
	}
	return removed, nil
}

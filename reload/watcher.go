// Package reload watches files and reports content changes.
package reload

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce lets bursts of events (write then rename) settle before
// the file is hashed.
const DefaultDebounce = 100 * time.Millisecond

// Option configures a Watcher
type Option func(*Watcher)

// WithDebounce sets the debounce interval
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// Watcher reports files whose content changed. It watches parent
// directories so atomic replaces (write temp file, rename) are seen.
type Watcher struct {
	fsw      *fsnotify.Watcher
	files    map[string]bool
	dirs     map[string]bool
	hashes   map[string][sha256.Size]byte
	debounce time.Duration
	logger   zerolog.Logger
}

// NewWatcher watches paths. A path may be a file, which need not exist yet,
// or a directory, in which case every file directly inside it is watched.
func NewWatcher(paths []string, opts ...Option) (*Watcher, error) {
	w := &Watcher{
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
		hashes:   make(map[string][sha256.Size]byte),
		debounce: DefaultDebounce,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w.fsw = fsw

	watched := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fsw.Close()
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		dir := filepath.Dir(abs)
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			w.dirs[abs] = true
			dir = abs
			entries, _ := os.ReadDir(abs)
			for _, e := range entries {
				if e.Type().IsRegular() {
					f := filepath.Join(abs, e.Name())
					w.hashes[f], _ = HashFile(f)
				}
			}
		} else {
			w.files[abs] = true
			w.hashes[abs], _ = HashFile(abs)
		}
		if watched[dir] {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
		watched[dir] = true
		w.logger.Debug().Str("dir", dir).Msg("watching")
	}
	return w, nil
}

func (w *Watcher) relevant(name string) bool {
	return w.files[name] || w.dirs[filepath.Dir(name)]
}

// Run delivers changed paths to onChange until ctx is cancelled. onChange
// runs on the Run goroutine, one call at a time.
func (w *Watcher) Run(ctx context.Context, onChange func(path string)) error {
	fired := make(chan string, 16)
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(event.Name)
			if !w.relevant(name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.logger.Debug().Str("op", event.Op.String()).Str("path", name).Msg("filesystem event")
			if t, ok := timers[name]; ok {
				t.Stop()
			}
			timers[name] = time.AfterFunc(w.debounce, func() {
				select {
				case fired <- name:
				case <-ctx.Done():
				}
			})

		case name := <-fired:
			delete(timers, name)
			sum, err := HashFile(name)
			if err != nil && !os.IsNotExist(err) {
				w.logger.Warn().Err(err).Str("path", name).Msg("hash failed")
				continue
			}
			if prev, seen := w.hashes[name]; seen && prev == sum {
				w.logger.Debug().Str("path", name).Msg("content unchanged")
				continue
			}
			w.hashes[name] = sum
			onChange(name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watcher error")
		}
	}
}

// Close stops watching
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// HashFile returns the SHA-256 of a file's content. A missing file hashes
// to the zero value.
func HashFile(path string) ([sha256.Size]byte, error) {
	var sum [sha256.Size]byte
	f, err := os.Open(path)
	if err != nil {
		return sum, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return sum, err
	}
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

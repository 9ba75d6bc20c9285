// Package watch detects writes to the vault file that did not come from
// this process
package watch

import (
	"crypto/sha256"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 300 * time.Millisecond

// DigestSource reports the digest of the last blob the owner of the file
// read or wrote. *vault.Vault implements it.
type DigestSource interface {
	LastDigest() [sha256.Size]byte
}

// Event describes a foreign change to the watched file
type Event struct {
	Path     string
	Digest   [sha256.Size]byte // zero when the file is gone
	Expected [sha256.Size]byte
	Removed  bool
}

// Handler is called for every foreign change
type Handler func(Event)

// Option configures a Watcher
type Option func(*Watcher)

// WithDebounce sets how long the file must be quiet before it is checked
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// Watcher watches one file. It watches the parent directory, since atomic
// replacement swaps the inode under a file watch.
type Watcher struct {
	path     string
	source   DigestSource
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	handlers []Handler
	timer    *time.Timer
	stopped  bool
	checks   sync.WaitGroup
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a watcher for path that compares against source
func New(path string, source DigestSource, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:     abs,
		source:   source,
		watcher:  fw,
		debounce: defaultDebounce,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// OnChange registers a handler for foreign changes
func (w *Watcher) OnChange(h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Start begins watching in the background
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	w.stopChan = make(chan struct{})
	w.done = make(chan struct{})
	go w.watchLoop()

	w.logger.Info("vault watcher started", "path", w.path)
	return nil
}

// Stop halts the watcher and waits for the loop and any running check to
// exit. No handler is called once Stop returns.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	if w.stopChan != nil {
		close(w.stopChan)
		<-w.done
		w.stopChan = nil
	}
	w.checks.Wait()
	w.watcher.Close()
	w.logger.Info("vault watcher stopped")
}

func (w *Watcher) watchLoop() {
	defer close(w.done)

	for {
		select {
		case <-w.stopChan:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}

			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("vault watcher error", "error", err)
		}
	}
}

// schedule (re)arms the debounce timer
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.checks.Add(1)
	w.mu.Unlock()
	defer w.checks.Done()

	w.check()
}

// check hashes the file and reports it when it differs from what the
// source last saw
func (w *Watcher) check() {
	ev := Event{Path: w.path, Expected: w.source.LastDigest()}

	data, err := os.ReadFile(w.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		ev.Removed = true
	case err != nil:
		w.logger.Error("cannot read watched file", "path", w.path, "error", err)
		return
	default:
		ev.Digest = sha256.Sum256(data)
	}

	if ev.Digest == ev.Expected {
		return
	}

	w.logger.Warn("vault file changed by another writer, only one process may own the vault",
		"path", w.path, "removed", ev.Removed)

	w.mu.Lock()
	handlers := make([]Handler, len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

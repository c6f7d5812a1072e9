// Package watch implements the adapter that turns changes in the file
// store directory into domain lifecycle events.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/vmux/internal/backend"
	"github.com/jbweber/vmux/internal/logging"
	"github.com/jbweber/vmux/internal/naming"
)

// Event details, matching libvirt's defined/undefined detail codes.
const (
	DetailDefinedAdded     = 0
	DetailDefinedUpdated   = 1
	DetailUndefinedRemoved = 0
)

// Options configures the watch adapter.
type Options struct {
	// Dir is the file store directory to observe.
	Dir string
}

// Watcher observes a file store directory. Defining a domain emits
// EventDefined; removing or renaming its file emits EventUndefined.
type Watcher struct {
	opts Options
	log  *logrus.Entry

	sink     backend.EventSink
	fsw      *fsnotify.Watcher
	done     chan struct{}
	watching atomic.Bool

	mu    sync.Mutex
	known map[string]uuid.UUID
}

// New creates an unopened watch adapter.
func New(opts Options) *Watcher {
	return &Watcher{
		opts:  opts,
		log:   logging.WithField("backend", backend.Watch.String()),
		known: make(map[string]uuid.UUID),
	}
}

// ID implements backend.Backend.
func (w *Watcher) ID() backend.ID {
	return backend.Watch
}

// Open starts watching the directory. Domains already present are
// recorded without emitting events.
func (w *Watcher) Open(_ context.Context, params backend.OpenParams) error {
	if w.opts.Dir == "" {
		return fmt.Errorf("%w: watch directory is required", backend.ErrInvalidArgument)
	}
	if err := os.MkdirAll(w.opts.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create watch directory %s: %w", w.opts.Dir, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(w.opts.Dir); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.opts.Dir, err)
	}

	w.seed()

	w.sink = params.Events
	w.fsw = fsw
	w.done = make(chan struct{})
	w.watching.Store(true)
	go w.run()

	w.log.WithField("dir", w.opts.Dir).Debug("Watching file store")
	return nil
}

// Close stops the watch and waits for the event loop to exit.
func (w *Watcher) Close() error {
	if w.fsw == nil {
		return nil
	}
	w.watching.Store(false)
	err := w.fsw.Close()
	<-w.done
	w.fsw = nil
	if err != nil {
		return fmt.Errorf("failed to close file watcher: %w", err)
	}
	return nil
}

// Watching implements backend.Watcher.
func (w *Watcher) Watching() bool {
	return w.watching.Load()
}

func (w *Watcher) seed() {
	entries, err := os.ReadDir(w.opts.Dir)
	if err != nil {
		w.log.WithError(err).Warn("Failed to list watched directory")
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range entries {
		name, ok := naming.DomainFromConfigFile(e.Name())
		if !ok || !e.Type().IsRegular() {
			continue
		}
		if id, err := readUUID(filepath.Join(w.opts.Dir, e.Name())); err == nil {
			w.known[name] = id
		}
	}
}

func (w *Watcher) run() {
	defer close(w.done)
	defer w.watching.Store(false)

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("File watch error")
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	name, ok := naming.DomainFromConfigFile(ev.Name)
	if !ok {
		return
	}

	switch {
	case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
		id, err := readUUID(ev.Name)
		if err != nil {
			// Partially written files show up again on the next write.
			w.log.WithError(err).WithField("file", ev.Name).Debug("Ignoring unreadable domain file")
			return
		}
		w.mu.Lock()
		_, existed := w.known[name]
		w.known[name] = id
		w.mu.Unlock()

		detail := DetailDefinedAdded
		if existed {
			detail = DetailDefinedUpdated
		}
		w.emit(backend.Domain{ID: -1, UUID: id, Name: name}, backend.EventDefined, detail)

	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		w.mu.Lock()
		id, existed := w.known[name]
		delete(w.known, name)
		w.mu.Unlock()
		if !existed {
			return
		}
		w.emit(backend.Domain{ID: -1, UUID: id, Name: name}, backend.EventUndefined, DetailUndefinedRemoved)
	}
}

func (w *Watcher) emit(dom backend.Domain, typ backend.EventType, detail int) {
	w.log.WithFields(logrus.Fields{
		"domain": dom.Name,
		"event":  typ.String(),
	}).Debug("Domain event")
	if w.sink == nil {
		return
	}
	w.sink.Queue(backend.Event{
		Domain: dom,
		Class:  backend.EventClassLifecycle,
		Type:   typ,
		Detail: detail,
	})
}

var errNoUUID = errors.New("domain description has no uuid")

func readUUID(path string) (uuid.UUID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return uuid.Nil, err
	}
	def := &libvirtxml.Domain{}
	if err := def.Unmarshal(string(data)); err != nil {
		return uuid.Nil, err
	}
	if def.UUID == "" {
		return uuid.Nil, errNoUUID
	}
	return uuid.Parse(def.UUID)
}

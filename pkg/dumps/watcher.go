package dumps

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethpandaops/dumpoor/pkg/config"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const defaultDebounce = 2 * time.Second

// Watcher uploads dumps as they appear in the dump directory.
type Watcher interface {
	Start(ctx context.Context) error
	Stop() error
}

// WatcherOptions tunes a Watcher.
type WatcherOptions struct {
	// SendExisting queues the dumps already present when the watcher starts.
	SendExisting bool
}

type watcher struct {
	log      logrus.FieldLogger
	cfg      *config.DumpsConfig
	opts     WatcherOptions
	sender   *Sender
	lister   Lister
	debounce time.Duration
	exts     []string

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	timers  map[string]*time.Timer
	queue   []string
	queued  map[string]struct{}
	wake    chan struct{}
	stopped bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Watcher = (*watcher)(nil)

// NewWatcher creates a Watcher that hands settled dumps to sender. A dump
// is settled once no write to it has been seen for the debounce period.
func NewWatcher(
	log logrus.FieldLogger,
	cfg *config.DumpsConfig,
	sender *Sender,
	opts WatcherOptions,
) Watcher {
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	return &watcher{
		log:      log.WithField("component", "watcher"),
		cfg:      cfg,
		opts:     opts,
		sender:   sender,
		lister:   NewLister(cfg),
		debounce: debounce,
		exts:     normalizeExtensions(cfg.Extensions),
		timers:   make(map[string]*time.Timer, 8),
		queued:   make(map[string]struct{}, 8),
		wake:     make(chan struct{}, 1),
	}
}

// Start begins watching the dump directory. It returns once the watch is
// established; uploads happen in the background until Stop.
func (w *watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fs watcher: %w", err)
	}

	if err := fsw.Add(w.cfg.Dir); err != nil {
		_ = fsw.Close()

		return fmt.Errorf("watching %s: %w", w.cfg.Dir, err)
	}

	w.fsw = fsw

	ctx, w.cancel = context.WithCancel(ctx)

	if w.opts.SendExisting {
		existing, err := w.lister.List()
		if err != nil {
			w.log.WithError(err).Warn("Failed to list existing dumps")
		}

		for _, d := range existing {
			w.enqueue(d.Path)
		}

		w.log.WithField("count", len(existing)).Info("Queued existing dumps")
	}

	w.wg.Add(2)

	go w.handleEvents(ctx)
	go w.process(ctx)

	w.log.WithFields(logrus.Fields{
		"dir":      w.cfg.Dir,
		"debounce": w.debounce,
	}).Info("Watching for dumps")

	return nil
}

// Stop cancels pending uploads and waits for the background goroutines.
func (w *watcher) Stop() error {
	w.mu.Lock()
	w.stopped = true

	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}

	var err error
	if w.fsw != nil {
		err = w.fsw.Close()
	}

	w.wg.Wait()

	return err
}

func (w *watcher) handleEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}

			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}

			w.log.WithError(err).Warn("Watcher error")
		}
	}
}

func (w *watcher) handleEvent(event fsnotify.Event) {
	if !hasExtension(event.Name, w.exts) {
		return
	}

	log := w.log.WithFields(logrus.Fields{
		"path": event.Name,
		"op":   event.Op.String(),
	})

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		log.Debug("Dump changed")
		w.resetTimer(event.Name)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		log.Debug("Dump removed")
		w.cancelTimer(event.Name)
	}
}

// resetTimer (re)starts the debounce timer for path.
func (w *watcher) resetTimer(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}

	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		w.enqueue(path)
	})
}

func (w *watcher) cancelTimer(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *watcher) enqueue(path string) {
	w.mu.Lock()

	if _, ok := w.queued[path]; ok || w.stopped {
		w.mu.Unlock()

		return
	}

	w.queued[path] = struct{}{}
	w.queue = append(w.queue, path)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *watcher) dequeue() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.queue) == 0 {
		return "", false
	}

	path := w.queue[0]
	w.queue = w.queue[1:]
	delete(w.queued, path)

	return path, true
}

// process uploads queued dumps one at a time.
func (w *watcher) process(ctx context.Context) {
	defer w.wg.Done()

	for {
		for {
			path, ok := w.dequeue()
			if !ok {
				break
			}

			w.send(ctx, path)

			if ctx.Err() != nil {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		}
	}
}

func (w *watcher) send(ctx context.Context, path string) {
	log := w.log.WithField("file", filepath.Base(path))

	res, err := w.sender.SendOne(ctx, path)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}

		log.WithError(err).Warn("Dump not sent")

		return
	}

	if !res.Succeeded() {
		log.WithField("code", res.Code).Warn("Dump upload failed, keeping it for the next run")
	}
}

// Package watch provides a "watch a file, debounce, reload" loop. It
// standardises the reactive pattern used for configuration hot-reload so
// that every consumer gets consistent debounce windows and observability
// for free.
//
// Typical usage:
//
//	w, err := watch.New("/etc/passerelle.yaml", watch.Options{Debounce: 500 * time.Millisecond})
//	go w.OnChange(ctx, func() error { return reloadConfig() })
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Options tunes the watcher behaviour.
type Options struct {
	// Debounce is the quiet period after a file event before the action
	// fires. More events during the window reset the timer; editors save
	// in short bursts (write, rename, chmod) and the action should run
	// once per save, not once per event. Default: 100ms.
	Debounce time.Duration
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Debounce <= 0 {
		o.Debounce = 100 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher watches one file for changes and runs an action when it is
// rewritten. It is safe for concurrent use.
type Watcher struct {
	// path is the watched file, absolute and cleaned. The watch itself is
	// on the parent directory: editors replace files by rename, which
	// silently detaches a watch placed on the file node itself.
	path string
	fw   *fsnotify.Watcher
	opts Options

	// reloadMu + reloadCond broadcast when a reload completes, enabling
	// WaitForReload.
	reloadMu   sync.Mutex
	reloadCond *sync.Cond

	// Counters for observability (exported via Stats).
	events   atomic.Int64
	errors   atomic.Int64
	reloads  atomic.Int64
	reloadNs atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Events        int64         `json:"events"`
	Errors        int64         `json:"errors"`
	Reloads       int64         `json:"reloads"`
	AvgReloadTime time.Duration `json:"avg_reload_time"`
}

// New creates a Watcher for the given file. The file's directory must
// exist; the file itself may appear later. Call OnChange to start the
// loop and Close to release the watch.
func New(path string, opts Options) (*Watcher, error) {
	opts.defaults()

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve %q: %w", path, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %q: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{path: abs, fw: fw, opts: opts}
	w.reloadCond = sync.NewCond(&w.reloadMu)
	return w, nil
}

// Close releases the underlying file watch. A running OnChange loop
// returns once the event stream drains.
func (w *Watcher) Close() error { return w.fw.Close() }

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	s := Stats{
		Events:  w.events.Load(),
		Errors:  w.errors.Load(),
		Reloads: w.reloads.Load(),
	}
	if s.Reloads > 0 {
		s.AvgReloadTime = time.Duration(w.reloadNs.Load() / s.Reloads)
	}
	return s
}

// OnChange blocks until ctx is cancelled or the watcher is closed. When
// the file is written or replaced and the debounce window passes without
// further events, action is called.
//
// If action returns an error it is logged and counted; the previous state
// stays in effect until the file changes again. The initial load is the
// caller's job — OnChange only reacts to changes.
func (w *Watcher) OnChange(ctx context.Context, action func() error) {
	log := w.opts.Logger

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	log.Info("watch: started", "path", w.path, "debounce", w.opts.Debounce)

	for {
		select {
		case <-ctx.Done():
			log.Info("watch: stopped", "path", w.path)
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case ev, ok := <-w.fw.Events:
			if !ok {
				log.Info("watch: closed", "path", w.path)
				return
			}
			if !w.relevant(ev) {
				continue
			}
			w.events.Add(1)
			// (Re)start the debounce timer on every matching event.
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(w.opts.Debounce)
			debounceCh = debounceTimer.C
			log.Debug("watch: change detected, debouncing", "op", ev.Op.String())

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.errors.Add(1)
			log.Warn("watch: watcher error", "error", err)

		case <-debounceCh:
			debounceCh = nil
			w.fire(log, action)
		}
	}
}

// relevant reports whether an event concerns the watched file and means
// its content may have changed. Create covers atomic saves (write to a
// temp file, rename onto the target). Chmod and removal alone do not
// trigger a reload; a removed file reappears as Create.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create)
}

// WaitForReload blocks until the watcher has completed (action returned
// nil) at least target reloads, or ctx expires.
func (w *Watcher) WaitForReload(ctx context.Context, target int64) error {
	// Fast path.
	if w.reloads.Load() >= target {
		return nil
	}

	done := ctx.Done()
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	for w.reloads.Load() < target {
		// Interruptible wait: spawn a goroutine that wakes the cond on
		// context cancellation so we can observe both.
		ch := make(chan struct{})
		go func() {
			select {
			case <-done:
				w.reloadCond.Broadcast()
			case <-ch:
			}
		}()

		w.reloadCond.Wait()
		close(ch)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

func (w *Watcher) fire(log *slog.Logger, action func() error) {
	log.Info("watch: reloading", "path", w.path)
	start := time.Now()
	if err := action(); err != nil {
		w.errors.Add(1)
		log.Error("watch: reload failed", "error", err, "path", w.path)
		return
	}
	elapsed := time.Since(start)
	w.reloadNs.Add(int64(elapsed))
	w.markReload()
	log.Info("watch: reload complete", "path", w.path, "duration", elapsed)
}

func (w *Watcher) markReload() {
	w.reloads.Add(1)
	w.reloadCond.Broadcast()
}

package imessage

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes the Messages database files and reports coalesced change
// events. Messages appends to the WAL on every delivery, so raw fsnotify
// events arrive in bursts; the debounce window collapses each burst into a
// single notification.
type Watcher struct {
	dbPath   string
	debounce time.Duration
	events   chan time.Time
}

// NewWatcher prepares a watcher for the database at dbPath. A non-positive
// debounce defaults to one second.
func NewWatcher(dbPath string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = time.Second
	}
	return &Watcher{
		dbPath:   dbPath,
		debounce: debounce,
		events:   make(chan time.Time, 1),
	}
}

// Events delivers one timestamp per coalesced change burst. The channel is
// closed when Run returns.
func (w *Watcher) Events() <-chan time.Time { return w.events }

// Run watches until ctx is cancelled. The watch is on the containing
// directory because sqlite swaps WAL files in and out of existence.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}
	defer fsw.Close()

	dir := filepath.Dir(w.dbPath)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	base := filepath.Base(w.dbPath)
	relevant := map[string]struct{}{
		base:          {},
		base + "-wal": {},
		base + "-shm": {},
	}

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if _, want := relevant[filepath.Base(ev.Name)]; !want {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
		case t := <-timerC:
			timer = nil
			timerC = nil
			select {
			case w.events <- t:
			default:
				// A pending event already covers this burst.
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("fs watch: %w", err)
		}
	}
}

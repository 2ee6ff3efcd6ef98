package imessage

import (
	"context"
	"sync"
	"time"
)

// ChangeFanout replicates a single watcher event stream to many
// subscribers, one per live session. Slow subscribers drop ticks instead of
// blocking the watcher.
type ChangeFanout struct {
	mu   sync.Mutex
	subs map[chan time.Time]struct{}
}

func NewChangeFanout() *ChangeFanout {
	return &ChangeFanout{subs: make(map[chan time.Time]struct{})}
}

// Subscribe registers a new subscriber. The returned cancel function
// unregisters and closes the channel.
func (f *ChangeFanout) Subscribe() (<-chan time.Time, func()) {
	ch := make(chan time.Time, 1)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, ch)
			f.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Run forwards events from src to all subscribers until ctx is cancelled
// or src closes.
func (f *ChangeFanout) Run(ctx context.Context, src <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-src:
			if !ok {
				return nil
			}
			f.broadcast(t)
		}
	}
}

func (f *ChangeFanout) broadcast(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- t:
		default:
		}
	}
}

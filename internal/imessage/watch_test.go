package imessage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_CoalescesWrites(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "chat.db")
	if err := os.WriteFile(dbPath, []byte("seed"), 0o644); err != nil {
		t.Fatalf("Failed to seed db file: %v", err)
	}

	w := NewWatcher(dbPath, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Give the watcher time to install before mutating.
	time.Sleep(100 * time.Millisecond)

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(dbPath+"-wal", []byte{byte(i)}, 0o644); err != nil {
			t.Fatalf("Failed to write wal: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	select {
	case <-w.Events():
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for change event")
	}

	// Unrelated files never produce events.
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to write unrelated file: %v", err)
	}
	select {
	case <-w.Events():
		t.Fatal("Expected no event for unrelated file")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestChangeFanout(t *testing.T) {
	f := NewChangeFanout()

	sub1, cancel1 := f.Subscribe()
	sub2, cancel2 := f.Subscribe()
	defer cancel2()

	src := make(chan time.Time, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx, src)

	stamp := time.Date(2026, time.January, 16, 12, 0, 0, 0, time.UTC)
	src <- stamp

	for i, sub := range []<-chan time.Time{sub1, sub2} {
		select {
		case got := <-sub:
			if !got.Equal(stamp) {
				t.Fatalf("Subscriber %d expected %v, got %v", i, stamp, got)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("Subscriber %d timed out", i)
		}
	}

	// A cancelled subscriber's channel closes and stops receiving.
	cancel1()
	if _, ok := <-sub1; ok {
		t.Fatal("Expected closed channel after cancel")
	}

	src <- stamp.Add(time.Minute)
	select {
	case got := <-sub2:
		if !got.Equal(stamp.Add(time.Minute)) {
			t.Fatalf("Expected second tick, got %v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for second tick")
	}
}

func TestChangeFanout_StopsOnSourceClose(t *testing.T) {
	f := NewChangeFanout()
	src := make(chan time.Time)

	done := make(chan error, 1)
	go func() { done <- f.Run(context.Background(), src) }()

	close(src)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Expected nil on source close, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for Run to return")
	}
}

package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

// drainRun is a RunFunc that consumes inbound payloads until cancelled.
func drainRun(sink chan<- []byte) RunFunc {
	return func(ctx context.Context, id string, inbound <-chan []byte) error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case payload, ok := <-inbound:
				if !ok {
					return nil
				}
				if sink != nil {
					sink <- payload
				}
			}
		}
	}
}

func TestRegistry_CreateAndRoute(t *testing.T) {
	r := NewRegistry()
	sink := make(chan []byte, 1)

	sess, err := r.Create(context.Background(), drainRun(sink))
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if sess.ID() == "" {
		t.Fatal("Expected non-empty session id")
	}
	if !r.Validate(sess.ID()) {
		t.Fatal("Expected session to validate")
	}
	if r.Validate("nope") {
		t.Fatal("Expected unknown id to fail validation")
	}

	if !r.Route(context.Background(), sess.ID(), []byte("payload")) {
		t.Fatal("Expected route to succeed")
	}
	select {
	case got := <-sink:
		if string(got) != "payload" {
			t.Fatalf("Expected payload, got %s", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for routed payload")
	}
}

func TestRegistry_CapacityRejects(t *testing.T) {
	r := NewRegistry(WithMaxSessions(2))

	for i := 0; i < 2; i++ {
		if _, err := r.Create(context.Background(), drainRun(nil)); err != nil {
			t.Fatalf("Failed to create session %d: %v", i, err)
		}
	}

	if _, err := r.Create(context.Background(), drainRun(nil)); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("Expected ErrCapacityExceeded, got %v", err)
	}

	if r.Len() != 2 {
		t.Fatalf("Expected 2 live sessions, got %d", r.Len())
	}
}

func TestRegistry_TerminateFreesCapacity(t *testing.T) {
	r := NewRegistry(WithMaxSessions(1))

	sess, err := r.Create(context.Background(), drainRun(nil))
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if !r.Terminate(sess.ID()) {
		t.Fatal("Expected terminate to succeed")
	}
	if r.Terminate(sess.ID()) {
		t.Fatal("Expected second terminate to be a no-op")
	}
	if r.Validate(sess.ID()) {
		t.Fatal("Expected terminated session to fail validation")
	}

	if _, err := r.Create(context.Background(), drainRun(nil)); err != nil {
		t.Fatalf("Expected capacity to be freed, got %v", err)
	}
}

func TestRegistry_TerminateHook(t *testing.T) {
	var hooked atomic.Int32
	var hookedID string
	r := NewRegistry(WithTerminateHook(func(id string) {
		hooked.Add(1)
		hookedID = id
	}))

	sess, err := r.Create(context.Background(), drainRun(nil))
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	r.Terminate(sess.ID())
	if hooked.Load() != 1 {
		t.Fatalf("Expected hook to run once, ran %d times", hooked.Load())
	}
	if hookedID != sess.ID() {
		t.Fatalf("Expected hook id %s, got %s", sess.ID(), hookedID)
	}
}

func TestRegistry_RunErrorTerminates(t *testing.T) {
	terminated := make(chan string, 1)
	r := NewRegistry(WithTerminateHook(func(id string) { terminated <- id }))

	sess, err := r.Create(context.Background(), func(ctx context.Context, id string, inbound <-chan []byte) error {
		<-inbound
		return fmt.Errorf("engine failure")
	})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	r.Route(context.Background(), sess.ID(), []byte("trigger"))

	select {
	case id := <-terminated:
		if id != sess.ID() {
			t.Fatalf("Expected terminated id %s, got %s", sess.ID(), id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for implicit termination")
	}
	if r.Validate(sess.ID()) {
		t.Fatal("Expected failed session to be removed")
	}
}

func TestRegistry_RunPanicTerminates(t *testing.T) {
	terminated := make(chan string, 1)
	r := NewRegistry(WithTerminateHook(func(id string) { terminated <- id }))

	sess, err := r.Create(context.Background(), func(ctx context.Context, id string, inbound <-chan []byte) error {
		<-inbound
		panic("engine panic")
	})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	r.Route(context.Background(), sess.ID(), []byte("trigger"))

	select {
	case <-terminated:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for panic termination")
	}
}

func TestRegistry_RouteAfterTerminate(t *testing.T) {
	r := NewRegistry()
	sess, err := r.Create(context.Background(), drainRun(nil))
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	r.Terminate(sess.ID())
	if r.Route(context.Background(), sess.ID(), []byte("late")) {
		t.Fatal("Expected route to a terminated session to fail")
	}
}

func TestRegistry_TerminateRacingCreate(t *testing.T) {
	r := NewRegistry(WithMaxSessions(1000))

	// A sweep can observe a session the instant it lands in the map. The
	// cancel func must already be in place by then or Terminate panics.
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				r.sweep(time.Now().Add(48 * time.Hour))
			}
		}
	}()

	for i := 0; i < 200; i++ {
		if _, err := r.Create(context.Background(), drainRun(nil)); err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
	}

	close(stop)
	<-done
}

func TestRegistry_SweepTerminatesIdle(t *testing.T) {
	terminated := make(chan string, 2)
	r := NewRegistry(
		WithIdleTimeout(10*time.Millisecond),
		WithSweepInterval(5*time.Millisecond),
		WithTerminateHook(func(id string) { terminated <- id }),
	)

	sess, err := r.Create(context.Background(), drainRun(nil))
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	select {
	case id := <-terminated:
		if id != sess.ID() {
			t.Fatalf("Expected swept id %s, got %s", sess.ID(), id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for idle sweep")
	}
}

func TestRegistry_TouchKeepsAlive(t *testing.T) {
	r := NewRegistry(
		WithIdleTimeout(100*time.Millisecond),
		WithSweepInterval(10*time.Millisecond),
	)

	sess, err := r.Create(context.Background(), drainRun(nil))
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	// Touch more often than the idle timeout; the session must survive.
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		r.Touch(sess.ID())
		time.Sleep(20 * time.Millisecond)
	}
	if !r.Validate(sess.ID()) {
		t.Fatal("Expected touched session to survive the sweeper")
	}
}

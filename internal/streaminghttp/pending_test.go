package streaminghttp

import "testing"

func TestPendingTable_ResolveOnce(t *testing.T) {
	p := newPendingTable()

	ch := p.register("sess1", "req1")
	if !p.resolve("sess1", "req1", []byte("response")) {
		t.Fatal("Expected resolve to find the pending slot")
	}
	if got := <-ch; string(got) != "response" {
		t.Fatalf("Expected response payload, got %s", got)
	}

	// The slot is gone after the first resolve.
	if p.resolve("sess1", "req1", []byte("again")) {
		t.Fatal("Expected second resolve to miss")
	}
}

func TestPendingTable_ResolveUnknown(t *testing.T) {
	p := newPendingTable()
	if p.resolve("sess1", "req1", []byte("x")) {
		t.Fatal("Expected resolve without registration to miss")
	}
}

func TestPendingTable_Drop(t *testing.T) {
	p := newPendingTable()
	p.register("sess1", "req1")
	p.drop("sess1", "req1")
	if p.resolve("sess1", "req1", []byte("late")) {
		t.Fatal("Expected resolve after drop to miss")
	}
}

func TestPendingTable_ReusedIDDisplacesWaiter(t *testing.T) {
	p := newPendingTable()

	first := p.register("sess1", "req1")
	second := p.register("sess1", "req1")

	// The displaced waiter is failed immediately instead of dangling until
	// its timeout.
	if _, ok := <-first; ok {
		t.Fatal("Expected first waiter's channel to be closed")
	}

	if !p.resolve("sess1", "req1", []byte("response")) {
		t.Fatal("Expected resolve to find the new slot")
	}
	if got := <-second; string(got) != "response" {
		t.Fatalf("Expected response on the new slot, got %s", got)
	}
}

func TestPendingTable_FailSession(t *testing.T) {
	p := newPendingTable()
	ch1 := p.register("sess1", "req1")
	ch2 := p.register("sess1", "req2")
	other := p.register("sess2", "req1")

	p.failSession("sess1")

	for _, ch := range []<-chan []byte{ch1, ch2} {
		if _, ok := <-ch; ok {
			t.Fatal("Expected channel to be closed")
		}
	}

	// The other session's slot is untouched.
	if !p.resolve("sess2", "req1", []byte("ok")) {
		t.Fatal("Expected other session's slot to survive")
	}
	if got := <-other; string(got) != "ok" {
		t.Fatalf("Expected payload, got %s", got)
	}
}

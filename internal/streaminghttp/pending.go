package streaminghttp

import "sync"

type pendingKey struct {
	session string
	request string
}

// pendingTable correlates POST requests with their engine responses. Each
// entry resolves exactly once: by a matching response, by the caller
// dropping it (timeout or disconnect), or by session termination closing
// the channel.
type pendingTable struct {
	mu sync.Mutex
	m  map[pendingKey]chan []byte
}

func newPendingTable() *pendingTable {
	return &pendingTable{m: make(map[pendingKey]chan []byte)}
}

// register creates a pending slot before the request is routed, so a fast
// response cannot race the registration. A client reusing a request id
// displaces the earlier waiter, whose channel is closed rather than left to
// dangle until its timeout.
func (t *pendingTable) register(sessionID, requestID string) <-chan []byte {
	ch := make(chan []byte, 1)
	key := pendingKey{sessionID, requestID}
	t.mu.Lock()
	if old, ok := t.m[key]; ok {
		close(old)
	}
	t.m[key] = ch
	t.mu.Unlock()
	return ch
}

// resolve delivers a response payload to the waiting caller. It reports
// whether a pending slot existed.
func (t *pendingTable) resolve(sessionID, requestID string, payload []byte) bool {
	key := pendingKey{sessionID, requestID}
	t.mu.Lock()
	ch, ok := t.m[key]
	if ok {
		delete(t.m, key)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	ch <- payload
	return true
}

// drop abandons a pending slot without delivering anything.
func (t *pendingTable) drop(sessionID, requestID string) {
	t.mu.Lock()
	delete(t.m, pendingKey{sessionID, requestID})
	t.mu.Unlock()
}

// failSession closes every pending slot of a terminated session. Waiters
// observe the closed channel and report the session as gone.
func (t *pendingTable) failSession(sessionID string) {
	t.mu.Lock()
	for key, ch := range t.m {
		if key.session == sessionID {
			delete(t.m, key)
			close(ch)
		}
	}
	t.mu.Unlock()
}

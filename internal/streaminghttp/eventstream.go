package streaminghttp

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// streamEvent is one server-sent event bound for a connection.
type streamEvent struct {
	id   uint64
	data []byte
}

// streamConn is one attached SSE connection. Events arrive on ch; done
// closes when the session terminates.
type streamConn struct {
	ch   chan streamEvent
	done chan struct{}
}

// EventStreamManager fans engine push traffic out to every SSE connection a
// session has open. Event ids are monotonic per session across all
// connections.
type EventStreamManager struct {
	log *slog.Logger

	mu     sync.Mutex
	conns  map[string]map[*streamConn]struct{}
	nextID map[string]uint64
}

func NewEventStreamManager(log *slog.Logger) *EventStreamManager {
	if log == nil {
		log = slog.Default()
	}
	return &EventStreamManager{
		log:    log,
		conns:  make(map[string]map[*streamConn]struct{}),
		nextID: make(map[string]uint64),
	}
}

// Attach registers a new connection for a session.
func (m *EventStreamManager) Attach(sessionID string) *streamConn {
	conn := &streamConn{
		ch:   make(chan streamEvent, 32),
		done: make(chan struct{}),
	}
	m.mu.Lock()
	set, ok := m.conns[sessionID]
	if !ok {
		set = make(map[*streamConn]struct{})
		m.conns[sessionID] = set
	}
	set[conn] = struct{}{}
	m.mu.Unlock()
	return conn
}

// Detach removes a connection. Safe to call after CloseSession.
func (m *EventStreamManager) Detach(sessionID string, conn *streamConn) {
	m.mu.Lock()
	if set, ok := m.conns[sessionID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(m.conns, sessionID)
		}
	}
	m.mu.Unlock()
}

// Broadcast delivers a payload to every connection of a session. A
// connection that cannot keep up loses the event rather than stalling the
// session's engine.
func (m *EventStreamManager) Broadcast(sessionID string, payload []byte) {
	m.mu.Lock()
	id := m.nextID[sessionID] + 1
	m.nextID[sessionID] = id
	set := m.conns[sessionID]
	targets := make([]*streamConn, 0, len(set))
	for conn := range set {
		targets = append(targets, conn)
	}
	m.mu.Unlock()

	ev := streamEvent{id: id, data: payload}
	for _, conn := range targets {
		select {
		case conn.ch <- ev:
		default:
			m.log.Warn("sse.event.dropped", slog.String("sess.id", sessionID), slog.Uint64("event.id", id))
		}
	}
}

// CloseSession wakes every connection of a terminated session so its
// handler can unwind.
func (m *EventStreamManager) CloseSession(sessionID string) {
	m.mu.Lock()
	set := m.conns[sessionID]
	delete(m.conns, sessionID)
	delete(m.nextID, sessionID)
	m.mu.Unlock()

	for conn := range set {
		close(conn.done)
	}
}

// writeSSEEvent encodes one event in SSE wire format. Multi-line payloads
// become one data: line per line, per the SSE grammar.
func writeSSEEvent(w io.Writer, ev streamEvent) error {
	if _, err := fmt.Fprintf(w, "id: %d\nevent: message\n", ev.id); err != nil {
		return err
	}
	for _, line := range bytes.Split(ev.data, []byte("\n")) {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// writeSSEComment emits a keep-alive comment line.
func writeSSEComment(w io.Writer, text string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", text)
	return err
}

package streaminghttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/cyberpapiii/imessage-max-sub000/internal/jsonrpc"
	"github.com/cyberpapiii/imessage-max-sub000/internal/logctx"
	"github.com/cyberpapiii/imessage-max-sub000/internal/mcp"
	"github.com/cyberpapiii/imessage-max-sub000/internal/sessions"
)

const (
	sessionIDHeader = "Mcp-Session-Id"

	// maxBodyBytes bounds a single POST body.
	maxBodyBytes = 4 << 20
)

var (
	jsonMediaType        = contenttype.NewMediaType("application/json")
	eventStreamMediaType = contenttype.NewMediaType("text/event-stream")

	postAcceptable = []contenttype.MediaType{jsonMediaType, eventStreamMediaType}
	getAcceptable  = []contenttype.MediaType{eventStreamMediaType}
)

// EngineFactory builds the per-session run loop. The output callback
// receives every payload the session's engine emits; cleanup runs when the
// session exits.
type EngineFactory func(output func(ctx context.Context, payload []byte)) (run func(ctx context.Context, inbound <-chan []byte) error, cleanup func())

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) { h.log = log }
}

// WithRequestTimeout bounds how long a POST waits for its response.
func WithRequestTimeout(d time.Duration) Option {
	return func(h *Handler) { h.requestTimeout = d }
}

// WithKeepAliveInterval sets the SSE keep-alive comment cadence.
func WithKeepAliveInterval(d time.Duration) Option {
	return func(h *Handler) { h.keepAlive = d }
}

// WithBaseContext sets the context sessions inherit. Defaults to
// context.Background; pass the server's lifetime context so shutdown
// cancels session engines.
func WithBaseContext(ctx context.Context) Option {
	return func(h *Handler) { h.baseCtx = ctx }
}

// WithSessionOptions forwards options to the session registry.
func WithSessionOptions(opts ...sessions.Option) Option {
	return func(h *Handler) { h.sessionOpts = opts }
}

// Handler is the streamable HTTP endpoint: POST carries JSON-RPC messages
// in, GET opens an SSE stream for push traffic, DELETE tears the session
// down.
type Handler struct {
	log            *slog.Logger
	mux            *http.ServeMux
	registry       *sessions.Registry
	streams        *EventStreamManager
	pending        *pendingTable
	origin         OriginGuard
	newEngine      EngineFactory
	requestTimeout time.Duration
	keepAlive      time.Duration
	baseCtx        context.Context
	sessionOpts    []sessions.Option
}

// NewHandler builds the endpoint at the given path.
func NewHandler(path string, factory EngineFactory, opts ...Option) *Handler {
	h := &Handler{
		log:            slog.Default(),
		newEngine:      factory,
		requestTimeout: 300 * time.Second,
		keepAlive:      30 * time.Second,
		baseCtx:        context.Background(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.pending = newPendingTable()
	h.streams = NewEventStreamManager(h.log)

	regOpts := append([]sessions.Option{
		sessions.WithLogger(h.log),
		sessions.WithTerminateHook(h.onSessionTerminated),
	}, h.sessionOpts...)
	h.registry = sessions.NewRegistry(regOpts...)

	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("POST %s", path), h.handlePost)
	mux.HandleFunc(fmt.Sprintf("GET %s", path), h.handleGet)
	mux.HandleFunc(fmt.Sprintf("DELETE %s", path), h.handleDelete)
	h.mux = mux

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

// Run drives the session registry's idle sweeper until ctx is cancelled.
func (h *Handler) Run(ctx context.Context) error {
	return h.registry.Run(ctx)
}

// SessionCount reports live sessions.
func (h *Handler) SessionCount() int {
	return h.registry.Len()
}

// onSessionTerminated runs inside Registry.Terminate, whatever triggered
// it: explicit DELETE, idle sweep, or an engine failure. Pending POSTs see
// their channel close and open streams unwind.
func (h *Handler) onSessionTerminated(sessionID string) {
	h.pending.failSession(sessionID)
	h.streams.CloseSession(sessionID)
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.origin.AllowRequest(r) {
		h.log.WarnContext(ctx, "http.post.origin.rejected", slog.String("origin", r.Header.Get("Origin")), slog.String("host", r.Host))
		w.WriteHeader(http.StatusForbidden)
		return
	}

	if ct, err := contenttype.GetMediaType(r); err != nil || !ct.Matches(jsonMediaType) {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}
	if _, _, err := contenttype.GetAcceptableMediaType(r, postAcceptable); err != nil {
		w.WriteHeader(http.StatusNotAcceptable)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		h.writeError(w, http.StatusBadRequest, "batch requests are not supported")
		return
	}

	var msg jsonrpc.AnyMessage
	if err := msg.UnmarshalJSON(body); err != nil {
		h.log.InfoContext(ctx, "http.post.malformed", slog.String("err", err.Error()))
		h.writeError(w, http.StatusBadRequest, "malformed JSON-RPC message")
		return
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: msg.Method,
		ID:     msg.ID.String(),
		Type:   msg.Type(),
	})

	sessionID := r.Header.Get(sessionIDHeader)
	isInitialize := msg.Type() == jsonrpc.TypeRequest && mcp.Method(msg.Method) == mcp.InitializeMethod

	if sessionID == "" {
		if !isInitialize {
			h.writeError(w, http.StatusBadRequest, "missing "+sessionIDHeader+" header")
			return
		}
		sess, err := h.createSession()
		if err != nil {
			if errors.Is(err, sessions.ErrCapacityExceeded) {
				h.log.WarnContext(ctx, "http.post.session.capacity")
				h.writeError(w, http.StatusServiceUnavailable, "session capacity exceeded")
				return
			}
			h.log.ErrorContext(ctx, "http.post.session.create.fail", slog.String("err", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		sessionID = sess.ID()
		w.Header().Set(sessionIDHeader, sessionID)
		h.log.InfoContext(ctx, "http.post.session.created", slog.String("sess.id", sessionID))
	} else if !h.registry.Validate(sessionID) {
		h.writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sessionID})

	switch msg.Type() {
	case jsonrpc.TypeRequest:
		h.awaitResponse(ctx, w, sessionID, msg.ID.String(), body)
	default:
		// Notifications and client responses are accepted without a body.
		if !h.registry.Route(ctx, sessionID, body) {
			h.writeError(w, http.StatusNotFound, "unknown session")
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// awaitResponse registers the pending slot before routing so the engine's
// response cannot race the registration, then blocks until the response,
// the deadline, or session termination.
func (h *Handler) awaitResponse(ctx context.Context, w http.ResponseWriter, sessionID, requestID string, body []byte) {
	ch := h.pending.register(sessionID, requestID)

	if !h.registry.Route(ctx, sessionID, body) {
		h.pending.drop(sessionID, requestID)
		h.writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	timer := time.NewTimer(h.requestTimeout)
	defer timer.Stop()

	select {
	case payload, ok := <-ch:
		if !ok {
			h.writeError(w, http.StatusNotFound, "session terminated")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(payload)
	case <-timer.C:
		h.pending.drop(sessionID, requestID)
		h.log.WarnContext(ctx, "http.post.timeout")
		h.writeError(w, http.StatusGatewayTimeout, "request timed out")
	case <-ctx.Done():
		h.pending.drop(sessionID, requestID)
	}
}

// createSession wires a fresh engine to the registry. Engine output flows
// to the matching pending POST when it is a correlated response, and to
// the session's event streams otherwise.
func (h *Handler) createSession() (*sessions.Session, error) {
	return h.registry.Create(h.baseCtx, func(ctx context.Context, sessionID string, inbound <-chan []byte) error {
		run, cleanup := h.newEngine(func(cbCtx context.Context, payload []byte) {
			h.deliver(sessionID, payload)
		})
		if cleanup != nil {
			defer cleanup()
		}
		return run(ctx, inbound)
	})
}

// deliver routes one engine output payload: correlated responses resolve
// their pending POST, everything else (including responses nobody is
// waiting on) goes to the session's event streams.
func (h *Handler) deliver(sessionID string, payload []byte) {
	var msg jsonrpc.AnyMessage
	if err := msg.UnmarshalJSON(payload); err == nil &&
		msg.Type() == jsonrpc.TypeResponse && !msg.ID.IsNil() {
		if h.pending.resolve(sessionID, msg.ID.String(), payload) {
			return
		}
	}
	h.streams.Broadcast(sessionID, payload)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.origin.AllowRequest(r) {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	sessionID := r.Header.Get(sessionIDHeader)
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, "missing "+sessionIDHeader+" header")
		return
	}
	if !h.registry.Validate(sessionID) {
		h.writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	if _, _, err := contenttype.GetAcceptableMediaType(r, getAcceptable); err != nil {
		w.WriteHeader(http.StatusNotAcceptable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sessionID})
	h.registry.Touch(sessionID)

	conn := h.streams.Attach(sessionID)
	defer h.streams.Detach(sessionID, conn)

	// Terminate may have finished between the Validate above and Attach, in
	// which case CloseSession already ran and this connection would never
	// observe it. Re-check now that the connection is registered.
	if !h.registry.Validate(sessionID) {
		h.writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.log.InfoContext(ctx, "http.sse.open")
	defer h.log.InfoContext(ctx, "http.sse.close")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.done:
			return
		case ev := <-conn.ch:
			if err := writeSSEEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if err := writeSSEComment(w, "keepalive"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.origin.AllowRequest(r) {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	sessionID := r.Header.Get(sessionIDHeader)
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, "missing "+sessionIDHeader+" header")
		return
	}
	if !h.registry.Terminate(sessionID) {
		h.writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	h.log.InfoContext(ctx, "http.delete.ok", slog.String("sess.id", sessionID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	http.Error(w, msg, status)
}

// Package engine implements the per-session MCP protocol engine. Each
// session owns exactly one Engine; the engine consumes an inbound byte
// stream and reports every outbound payload through a callback, leaving all
// transport and lifecycle concerns to the caller.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cyberpapiii/imessage-max-sub000/internal/jsonrpc"
	"github.com/cyberpapiii/imessage-max-sub000/internal/logctx"
	"github.com/cyberpapiii/imessage-max-sub000/internal/mcp"
)

// OutputFunc receives every outbound payload the engine produces, both
// responses to inbound requests and server-initiated notifications.
type OutputFunc func(ctx context.Context, payload []byte)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithOutput sets the outbound payload callback.
func WithOutput(fn OutputFunc) Option {
	return func(e *Engine) { e.out = fn }
}

// WithServerInfo overrides the advertised server identity.
func WithServerInfo(info mcp.ImplementationInfo) Option {
	return func(e *Engine) { e.serverInfo = info }
}

// WithInstructions sets the instructions string returned on initialize.
func WithInstructions(s string) Option {
	return func(e *Engine) { e.instructions = s }
}

// WithChangeFeed attaches a message-store change feed. Each tick becomes an
// unsolicited notifications/messages/updated payload.
func WithChangeFeed(ch <-chan time.Time, path string) Option {
	return func(e *Engine) {
		e.changes = ch
		e.changePath = path
	}
}

// Engine is a single session's protocol state machine. All methods run on
// the session's run goroutine; the engine itself holds no locks.
type Engine struct {
	tools        *Toolset
	out          OutputFunc
	log          *slog.Logger
	serverInfo   mcp.ImplementationInfo
	instructions string
	changes      <-chan time.Time
	changePath   string

	initialized bool
	clientInfo  mcp.ImplementationInfo
}

// New constructs an Engine around a toolset.
func New(tools *Toolset, opts ...Option) *Engine {
	e := &Engine{
		tools:      tools,
		log:        slog.Default(),
		serverInfo: mcp.ImplementationInfo{Name: "imessage-max", Version: "dev"},
		out:        func(context.Context, []byte) {},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run consumes inbound payloads until ctx is cancelled or the channel
// closes. Change-feed ticks interleave with inbound traffic; both funnel
// through the single goroutine so session state needs no synchronization.
func (e *Engine) Run(ctx context.Context, inbound <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-inbound:
			if !ok {
				return nil
			}
			e.handle(ctx, payload)
		case t, ok := <-e.changes:
			if !ok {
				e.changes = nil
				continue
			}
			e.emitChange(ctx, t)
		}
	}
}

func (e *Engine) handle(ctx context.Context, payload []byte) {
	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		e.log.WarnContext(ctx, "engine.message.invalid", slog.String("err", err.Error()))
		e.send(ctx, jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, "parse error", nil))
		return
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: msg.Method,
		ID:     msg.ID.String(),
		Type:   msg.Type(),
	})

	switch msg.Type() {
	case jsonrpc.TypeRequest:
		e.send(ctx, e.dispatch(ctx, msg.AsRequest()))
	case jsonrpc.TypeNotification:
		e.handleNotification(ctx, msg.AsRequest())
	case jsonrpc.TypeResponse:
		// This server never initiates client-bound requests, so client
		// responses have nothing to correlate with.
		e.log.WarnContext(ctx, "engine.response.unmatched")
	}
}

func (e *Engine) dispatch(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	switch mcp.Method(req.Method) {
	case mcp.InitializeMethod:
		return e.handleInitialize(ctx, req)
	case mcp.PingMethod:
		res, _ := jsonrpc.NewResultResponse(req.ID, struct{}{})
		return res
	case mcp.ToolsListMethod:
		return e.handleToolsList(ctx, req)
	case mcp.ToolsCallMethod:
		return e.handleToolsCall(ctx, req)
	default:
		e.log.InfoContext(ctx, "engine.method.unknown")
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil)
	}
}

func (e *Engine) handleInitialize(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	if e.initialized {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "session already initialized", nil)
	}
	var params mcp.InitializeRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid initialize params", nil)
		}
	}
	e.initialized = true
	e.clientInfo = params.ClientInfo
	e.log.InfoContext(ctx, "engine.initialize.ok", slog.String("client", params.ClientInfo.Name))

	result := mcp.InitializeResult{
		ProtocolVersion: mcp.ProtocolVersion,
		Capabilities: mcp.ServerCapabilities{
			Tools: &struct {
				ListChanged bool `json:"listChanged"`
			}{},
		},
		ServerInfo:   e.serverInfo,
		Instructions: e.instructions,
	}
	res, err := jsonrpc.NewResultResponse(req.ID, result)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "encode initialize result", nil)
	}
	return res
}

func (e *Engine) handleToolsList(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	var params mcp.ListToolsRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid tools/list params", nil)
		}
	}
	list, err := e.tools.List(params.Cursor)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, err.Error(), nil)
	}
	res, err := jsonrpc.NewResultResponse(req.ID, list)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "encode tools/list result", nil)
	}
	return res
}

func (e *Engine) handleToolsCall(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	var params mcp.CallToolRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid tools/call params", nil)
	}

	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: params.Name})
	start := time.Now()

	result, err := e.tools.Call(ctx, params.Name, params.Arguments)
	if err != nil {
		if _, notFound := err.(*ErrToolNotFound); notFound {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, err.Error(), nil)
		}
		e.log.ErrorContext(ctx, "engine.tool.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "tool execution failed", nil)
	}
	e.log.InfoContext(ctx, "engine.tool.ok", slog.Duration("dur", time.Since(start)))

	res, err := jsonrpc.NewResultResponse(req.ID, result)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "encode tools/call result", nil)
	}
	return res
}

func (e *Engine) handleNotification(ctx context.Context, req *jsonrpc.Request) {
	switch mcp.Method(req.Method) {
	case mcp.InitializedNotificationMethod:
		e.log.InfoContext(ctx, "engine.client.ready")
	case mcp.CancelledNotificationMethod:
		// Inbound processing is sequential, so by the time a cancellation
		// arrives the referenced request has already completed.
		e.log.InfoContext(ctx, "engine.cancel.ignored")
	default:
		e.log.InfoContext(ctx, "engine.notification.unknown")
	}
}

func (e *Engine) emitChange(ctx context.Context, t time.Time) {
	if !e.initialized {
		return
	}
	params := mcp.MessagesUpdatedNotification{Path: e.changePath, ChangedAt: t.UTC().Format(time.RFC3339)}
	note, err := jsonrpc.NewRequest(nil, string(mcp.MessagesUpdatedNotificationMethod), params)
	if err != nil {
		e.log.ErrorContext(ctx, "engine.change.encode.fail", slog.String("err", err.Error()))
		return
	}
	e.send(ctx, note)
}

// send marshals a message and hands it to the output callback.
func (e *Engine) send(ctx context.Context, msg any) {
	b, err := json.Marshal(msg)
	if err != nil {
		e.log.ErrorContext(ctx, "engine.send.encode.fail", slog.String("err", err.Error()))
		return
	}
	e.out(ctx, b)
}

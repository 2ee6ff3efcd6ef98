package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/cyberpapiii/imessage-max-sub000/internal/mcp"
)

// ToolHandler executes a tool call with raw JSON arguments.
type ToolHandler func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error)

// Tool pairs a descriptor with its handler.
type Tool struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

// NewTool builds a Tool whose input schema is reflected from the argument
// type A and whose handler decodes arguments strictly before invoking fn.
// Malformed arguments surface as an in-band tool error rather than a
// protocol-level failure so the caller sees what it sent wrong.
func NewTool[A any](name, description string, fn func(ctx context.Context, args A) (*mcp.CallToolResult, error)) Tool {
	return Tool{
		Descriptor: mcp.Tool{
			Name:        name,
			Description: description,
			InputSchema: reflectInputSchema[A](),
		},
		Handler: func(ctx context.Context, raw json.RawMessage) (*mcp.CallToolResult, error) {
			var args A
			if len(raw) > 0 {
				dec := json.NewDecoder(bytes.NewReader(raw))
				dec.DisallowUnknownFields()
				if err := dec.Decode(&args); err != nil {
					return Errorf("invalid arguments: %s", err), nil
				}
			}
			return fn(ctx, args)
		},
	}
}

// Errorf builds an in-band tool error result.
func Errorf(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.ContentBlock{mcp.NewTextContent(fmt.Sprintf(format, args...))},
		IsError: true,
	}
}

// StructuredResult renders v as both indented text content and structured
// content on the same result.
func StructuredResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content:           []mcp.ContentBlock{mcp.NewTextContent(string(b))},
		StructuredContent: v,
	}, nil
}

// ErrToolNotFound reports a tools/call against an unregistered name.
type ErrToolNotFound struct {
	Name string
}

func (e *ErrToolNotFound) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// Toolset is an ordered, named collection of tools shared by every session.
type Toolset struct {
	mu       sync.RWMutex
	tools    []mcp.Tool
	handlers map[string]ToolHandler
	pageSize int
}

// NewToolset builds a Toolset from tools in registration order.
func NewToolset(tools ...Tool) *Toolset {
	ts := &Toolset{
		handlers: make(map[string]ToolHandler, len(tools)),
		pageSize: 50,
	}
	for _, t := range tools {
		ts.tools = append(ts.tools, t.Descriptor)
		ts.handlers[t.Descriptor.Name] = t.Handler
	}
	return ts
}

// List returns one page of tool descriptors. The cursor is an opaque offset
// issued by a previous page.
func (t *Toolset) List(cursor string) (*mcp.ListToolsResult, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 || n > len(t.tools) {
			return nil, fmt.Errorf("invalid cursor")
		}
		offset = n
	}

	end := offset + t.pageSize
	if end > len(t.tools) {
		end = len(t.tools)
	}
	page := t.tools[offset:end]

	result := &mcp.ListToolsResult{Tools: append([]mcp.Tool{}, page...)}
	if end < len(t.tools) {
		result.NextCursor = strconv.Itoa(end)
	}
	return result, nil
}

// Call invokes the named tool.
func (t *Toolset) Call(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error) {
	t.mu.RLock()
	handler, ok := t.handlers[name]
	t.mu.RUnlock()
	if !ok {
		return nil, &ErrToolNotFound{Name: name}
	}
	return handler(ctx, args)
}

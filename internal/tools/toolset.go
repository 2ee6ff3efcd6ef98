// Package tools builds the iMessage tool surface exposed over MCP. Tools
// read the Messages database through internal/imessage and resolve contact
// names through a ContactResolver; sending is delegated to a MessageSender
// capability provider.
package tools

import (
	"context"
	"log/slog"

	"github.com/cyberpapiii/imessage-max-sub000/internal/engine"
	"github.com/cyberpapiii/imessage-max-sub000/internal/imessage"
)

// MessageSender delivers an outgoing message to a chat. Implementations wrap
// platform automation; the default provider reports itself unavailable.
type MessageSender interface {
	Send(ctx context.Context, chatGUID, text string) error
	Available() bool
}

// NopSender is the default MessageSender. It never sends.
type NopSender struct{}

func (NopSender) Send(context.Context, string, string) error { return nil }
func (NopSender) Available() bool                            { return false }

// Deps carries the shared collaborators behind every tool.
type Deps struct {
	DB       *imessage.DB
	Resolver imessage.ContactResolver
	Sender   MessageSender
	Log      *slog.Logger
}

// NewToolset assembles the full tool surface.
func NewToolset(deps Deps) *engine.Toolset {
	if deps.Resolver == nil {
		deps.Resolver = imessage.NopResolver{}
	}
	if deps.Sender == nil {
		deps.Sender = NopSender{}
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	return engine.NewToolset(
		newFindChatTool(deps),
		newGetMessagesTool(deps),
		newSendMessageTool(deps),
	)
}

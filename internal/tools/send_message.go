package tools

import (
	"context"
	"errors"

	"github.com/cyberpapiii/imessage-max-sub000/internal/engine"
	"github.com/cyberpapiii/imessage-max-sub000/internal/imessage"
	"github.com/cyberpapiii/imessage-max-sub000/internal/mcp"
)

type sendMessageArgs struct {
	ChatID string `json:"chat_id" jsonschema:"description=Chat identifier such as chat42 or a GUID fragment"`
	Text   string `json:"text" jsonschema:"description=Message text to send"`
}

type sendMessageResult struct {
	Sent bool   `json:"sent"`
	Chat string `json:"chat"`
}

func newSendMessageTool(deps Deps) engine.Tool {
	return engine.NewTool("send_message",
		"Send a message to an iMessage chat. Requires a configured send provider.",
		func(ctx context.Context, args sendMessageArgs) (*mcp.CallToolResult, error) {
			if args.ChatID == "" || args.Text == "" {
				return engine.Errorf("chat_id and text are required"), nil
			}
			if !deps.Sender.Available() {
				return engine.Errorf("sending is not available: no send provider is configured"), nil
			}

			chatID, err := deps.DB.ResolveChatID(ctx, args.ChatID)
			if err != nil {
				if errors.Is(err, imessage.ErrChatNotFound) {
					return engine.Errorf("chat not found: %s", args.ChatID), nil
				}
				return nil, err
			}
			chat, err := deps.DB.GetChat(ctx, chatID)
			if err != nil {
				if errors.Is(err, imessage.ErrChatNotFound) {
					return engine.Errorf("chat not found: %s", args.ChatID), nil
				}
				return nil, err
			}

			if err := deps.Sender.Send(ctx, chat.GUID, args.Text); err != nil {
				return engine.Errorf("send failed: %s", err), nil
			}
			return engine.StructuredResult(sendMessageResult{Sent: true, Chat: chatKey(chatID)})
		})
}

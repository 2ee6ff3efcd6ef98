package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cyberpapiii/imessage-max-sub000/internal/engine"
	"github.com/cyberpapiii/imessage-max-sub000/internal/imessage"
	"github.com/cyberpapiii/imessage-max-sub000/internal/mcp"
)

type getMessagesArgs struct {
	ChatID           string   `json:"chat_id,omitempty" jsonschema:"description=Chat identifier such as chat42 or a GUID fragment"`
	Participants     []string `json:"participants,omitempty" jsonschema:"description=Alternative to chat_id: find the chat by participant handles"`
	Since            string   `json:"since,omitempty" jsonschema:"description=Lower time bound (ISO timestamp or relative like 24h or yesterday)"`
	Before           string   `json:"before,omitempty" jsonschema:"description=Upper time bound"`
	Limit            int      `json:"limit,omitempty" jsonschema:"description=Maximum messages to return (default 50)"`
	FromPerson       string   `json:"from_person,omitempty" jsonschema:"description=Only messages from this person (contact name, number, or me)"`
	Contains         string   `json:"contains,omitempty" jsonschema:"description=Text search within messages"`
	Has              string   `json:"has,omitempty" jsonschema:"description=Filter by content kind: links or attachments,enum=links,enum=attachments"`
	IncludeReactions *bool    `json:"include_reactions,omitempty" jsonschema:"description=Include tapback reactions (default true)"`
}

type messageInfo struct {
	ID          string                    `json:"id"`
	Timestamp   string                    `json:"ts,omitempty"`
	Text        string                    `json:"text"`
	From        string                    `json:"from,omitempty"`
	Reactions   []string                  `json:"reactions,omitempty"`
	Links       []string                  `json:"links,omitempty"`
	Attachments []imessage.AttachmentInfo `json:"attachments,omitempty"`
}

type getMessagesResult struct {
	Chat     chatRef           `json:"chat"`
	People   map[string]string `json:"people"`
	Messages []messageInfo     `json:"messages"`
	More     bool              `json:"more"`
	Cursor   *string           `json:"cursor"`
}

type chatRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func chatKey(id int64) string { return fmt.Sprintf("chat%d", id) }

func newGetMessagesTool(deps Deps) engine.Tool {
	return engine.NewTool("get_messages",
		"Read messages from an iMessage chat with time, sender, and content filters. Either chat_id or participants is required.",
		func(ctx context.Context, args getMessagesArgs) (*mcp.CallToolResult, error) {
			if args.ChatID == "" && len(args.Participants) == 0 {
				return engine.Errorf("either chat_id or participants is required"), nil
			}

			chatID, err := resolveTargetChat(ctx, deps, args)
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

			participants, err := deps.DB.ChatParticipants(ctx, chatID, deps.Resolver)
			if err != nil {
				return nil, err
			}
			people, handleToKey := buildPeopleMap(participants)

			query := imessage.MessageQuery{
				Limit:    args.Limit,
				Contains: args.Contains,
				Has:      args.Has,
			}
			if query.Limit <= 0 {
				query.Limit = 50
			}
			now := time.Now()
			if args.Since != "" {
				query.Since = imessage.ParseTimeInput(args.Since, now)
			}
			if args.Before != "" {
				query.Before = imessage.ParseTimeInput(args.Before, now)
			}
			if args.FromPerson != "" {
				if strings.EqualFold(args.FromPerson, "me") {
					query.FromMe = true
				} else {
					query.FromHandle = resolveFromPerson(args.FromPerson, deps.Resolver)
					if query.FromHandle == "" {
						return engine.Errorf("could not resolve person: %s", args.FromPerson), nil
					}
				}
			}

			msgs, err := deps.DB.MessagesForChat(ctx, chatID, query)
			if err != nil {
				return nil, err
			}

			includeReactions := args.IncludeReactions == nil || *args.IncludeReactions
			var reactions map[string][]imessage.Reaction
			if includeReactions && len(msgs) > 0 {
				guids := make([]string, len(msgs))
				for i, m := range msgs {
					guids[i] = m.GUID
				}
				reactions, err = deps.DB.ReactionsForMessages(ctx, guids)
				if err != nil {
					return nil, err
				}
			}

			out := make([]messageInfo, 0, len(msgs))
			for _, m := range msgs {
				text := imessage.MessageText(m.Text, m.AttributedBody)
				info := messageInfo{
					ID:   fmt.Sprintf("msg_%d", m.ID),
					Text: text,
				}
				if !m.Date.IsZero() {
					info.Timestamp = m.Date.Format(time.RFC3339)
				}
				if m.IsFromMe {
					info.From = "me"
				} else if m.SenderHandle != "" {
					info.From = handleToKey[m.SenderHandle]
					if info.From == "" {
						info.From = m.SenderHandle
					}
				}
				for _, r := range reactions[m.GUID] {
					if r.Removed {
						continue
					}
					fromKey := "me"
					if r.FromHandle != "" {
						fromKey = handleToKey[r.FromHandle]
						if fromKey == "" {
							fromKey = "unknown"
						}
					}
					info.Reactions = append(info.Reactions, imessage.ReactionEmoji(r.Kind)+" "+fromKey)
				}
				if text != "" {
					info.Links = imessage.ExtractLinks(text)
				}
				if m.HasAttachments {
					atts, err := deps.DB.AttachmentsForMessage(ctx, m.ID)
					if err != nil {
						return nil, err
					}
					for _, a := range atts {
						info.Attachments = append(info.Attachments, imessage.ClassifyAttachment(a))
					}
				}
				out = append(out, info)
			}

			name := chat.DisplayName
			if name == "" {
				name = imessage.GenerateDisplayName(participants)
			}

			return engine.StructuredResult(getMessagesResult{
				Chat:     chatRef{ID: chatKey(chatID), Name: name},
				People:   people,
				Messages: out,
				More:     len(out) == query.Limit,
			})
		})
}

func resolveTargetChat(ctx context.Context, deps Deps, args getMessagesArgs) (int64, error) {
	if args.ChatID != "" {
		return deps.DB.ResolveChatID(ctx, args.ChatID)
	}
	handles := resolveParticipantHandles(args.Participants, deps.Resolver)
	chats, err := deps.DB.FindChatsByHandles(ctx, handles, 1)
	if err != nil {
		return 0, err
	}
	if len(chats) == 0 {
		return 0, imessage.ErrChatNotFound
	}
	return chats[0].ID, nil
}

// buildPeopleMap assigns each participant a short key for compact message
// attribution: the lowercased first name, suffixed with an index on
// collision, or unknownN for unresolvable handles.
func buildPeopleMap(participants []imessage.Participant) (map[string]string, map[string]string) {
	people := map[string]string{"me": "Me"}
	handleToKey := make(map[string]string, len(participants))
	unknown := 0

	for i, p := range participants {
		if p.Name != "" {
			key := strings.ToLower(strings.Fields(p.Name)[0])
			if _, taken := people[key]; taken {
				key = fmt.Sprintf("%s%d", key, i)
			}
			people[key] = p.Name
			handleToKey[p.Handle] = key
		} else {
			unknown++
			key := fmt.Sprintf("unknown%d", unknown)
			people[key] = imessage.FormatHandleDisplay(p.Handle)
			handleToKey[p.Handle] = key
		}
	}
	return people, handleToKey
}

// resolveFromPerson maps a person filter to a handle: phone numbers
// normalize, anything else goes through the contact resolver.
func resolveFromPerson(person string, resolver imessage.ContactResolver) string {
	if strings.HasPrefix(person, "+") {
		return person
	}
	if normalized := imessage.NormalizeE164(person); normalized != "" {
		return normalized
	}
	if resolver.Available() {
		if handles := resolver.HandlesForName(person); len(handles) > 0 {
			return handles[0]
		}
	}
	return ""
}

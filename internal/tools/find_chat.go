package tools

import (
	"context"
	"strings"
	"time"

	"github.com/cyberpapiii/imessage-max-sub000/internal/engine"
	"github.com/cyberpapiii/imessage-max-sub000/internal/imessage"
	"github.com/cyberpapiii/imessage-max-sub000/internal/mcp"
)

type findChatArgs struct {
	Participants   []string `json:"participants,omitempty" jsonschema:"description=Participant names or phone numbers to match"`
	Name           string   `json:"name,omitempty" jsonschema:"description=Chat display name to search for (fuzzy match)"`
	ContainsRecent string   `json:"contains_recent,omitempty" jsonschema:"description=Text that appears in recent messages"`
	IsGroup        *bool    `json:"is_group,omitempty" jsonschema:"description=Filter to group chats (true) or direct chats (false)"`
	Limit          int      `json:"limit,omitempty" jsonschema:"description=Maximum results to return (default 5)"`
}

type chatSummary struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Participants []participantInfo `json:"participants"`
	Group        bool              `json:"group,omitempty"`
	Last         *lastMessageInfo  `json:"last,omitempty"`
	Match        string            `json:"match"`
}

type participantInfo struct {
	Handle string `json:"handle"`
	Name   string `json:"name"`
}

type lastMessageInfo struct {
	From string `json:"from"`
	Text string `json:"text"`
	Ago  string `json:"ago"`
}

type findChatResult struct {
	Chats  []chatSummary `json:"chats"`
	More   bool          `json:"more"`
	Cursor *string       `json:"cursor"`
}

func newFindChatTool(deps Deps) engine.Tool {
	return engine.NewTool("find_chat",
		"Find iMessage chats by participants, display name, or recent message content. At least one of participants, name, or contains_recent is required.",
		func(ctx context.Context, args findChatArgs) (*mcp.CallToolResult, error) {
			if len(args.Participants) == 0 && args.Name == "" && args.ContainsRecent == "" {
				return engine.Errorf("at least one of participants, name, or contains_recent is required"), nil
			}
			limit := args.Limit
			if limit <= 0 {
				limit = 5
			}

			var results []chatSummary

			if len(args.Participants) > 0 {
				handles := resolveParticipantHandles(args.Participants, deps.Resolver)
				if len(handles) > 0 {
					chats, err := deps.DB.FindChatsByHandles(ctx, handles, limit)
					if err != nil {
						return nil, err
					}
					for _, c := range chats {
						info, err := buildChatSummary(ctx, deps, c, "participants")
						if err != nil {
							return nil, err
						}
						results = append(results, info)
					}
				}
			}

			if args.Name != "" && len(results) == 0 {
				chats, err := deps.DB.ChatsByName(ctx, args.Name, limit)
				if err != nil {
					return nil, err
				}
				for _, c := range chats {
					info, err := buildChatSummary(ctx, deps, c, "name")
					if err != nil {
						return nil, err
					}
					results = append(results, info)
				}
			}

			if args.ContainsRecent != "" && len(results) == 0 {
				chats, err := deps.DB.ChatsByRecentContent(ctx, args.ContainsRecent, limit)
				if err != nil {
					return nil, err
				}
				for _, c := range chats {
					info, err := buildChatSummary(ctx, deps, c, "content")
					if err != nil {
						return nil, err
					}
					results = append(results, info)
				}
			}

			if args.IsGroup != nil {
				filtered := results[:0]
				for _, r := range results {
					if r.Group == *args.IsGroup {
						filtered = append(filtered, r)
					}
				}
				results = filtered
			}

			seen := make(map[string]struct{}, len(results))
			unique := make([]chatSummary, 0, len(results))
			for _, r := range results {
				if _, dup := seen[r.ID]; dup {
					continue
				}
				seen[r.ID] = struct{}{}
				unique = append(unique, r)
				if len(unique) >= limit {
					break
				}
			}

			return engine.StructuredResult(findChatResult{
				Chats: unique,
				More:  len(results) > limit,
			})
		})
}

// resolveParticipantHandles maps user-supplied participant strings to chat
// handles. Raw E.164 numbers pass through, other phone shapes normalize, and
// anything else is treated as a contact name.
func resolveParticipantHandles(participants []string, resolver imessage.ContactResolver) []string {
	var handles []string
	for _, p := range participants {
		if strings.HasPrefix(p, "+") {
			handles = append(handles, p)
			continue
		}
		if normalized := imessage.NormalizeE164(p); normalized != "" {
			handles = append(handles, normalized)
			continue
		}
		if resolver.Available() {
			handles = append(handles, resolver.HandlesForName(p)...)
		}
	}
	return handles
}

func buildChatSummary(ctx context.Context, deps Deps, c imessage.Chat, match string) (chatSummary, error) {
	participants, err := deps.DB.ChatParticipants(ctx, c.ID, deps.Resolver)
	if err != nil {
		return chatSummary{}, err
	}

	infos := make([]participantInfo, 0, len(participants))
	for _, p := range participants {
		infos = append(infos, participantInfo{Handle: p.Handle, Name: p.DisplayName()})
	}

	name := c.DisplayName
	if name == "" {
		name = imessage.GenerateDisplayName(participants)
	}

	summary := chatSummary{
		ID:           chatKey(c.ID),
		Name:         name,
		Participants: infos,
		Group:        len(participants) > 1,
		Match:        match,
	}

	last, ok, err := deps.DB.LastMessage(ctx, c.ID)
	if err != nil {
		return chatSummary{}, err
	}
	if ok {
		from := "me"
		if !last.IsFromMe {
			from = deps.Resolver.Resolve(last.SenderHandle)
			if from == "" {
				if last.SenderHandle != "" {
					from = imessage.FormatHandleDisplay(last.SenderHandle)
				} else {
					from = "unknown"
				}
			}
		}
		text := imessage.MessageText(last.Text, last.AttributedBody)
		// Truncate on rune boundaries so a multi-byte character at the cut
		// is never split.
		if r := []rune(text); len(r) > 50 {
			text = string(r[:50])
		}
		summary.Last = &lastMessageInfo{
			From: from,
			Text: text,
			Ago:  imessage.FormatCompactRelative(last.Date, time.Now()),
		}
	}

	return summary, nil
}

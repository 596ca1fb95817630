package transport

import (
	"fmt"
	"strconv"
	"strings"
)

// ChatTarget addresses one Telegram destination: a numeric chat id or an
// @channel username, optionally narrowed to a forum topic thread.
type ChatTarget struct {
	Chat     string
	ThreadID int
}

// Recipient implements telebot's Recipient.
func (t ChatTarget) Recipient() string { return t.Chat }

func (t ChatTarget) String() string {
	if t.ThreadID != 0 {
		return t.Chat + ":" + strconv.Itoa(t.ThreadID)
	}
	return t.Chat
}

// ParseChatTarget accepts "-100123", "-100123:45" (topic thread) and "@channel".
func ParseChatTarget(raw string) (ChatTarget, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ChatTarget{}, fmt.Errorf("empty chat id")
	}
	if strings.HasPrefix(s, "@") {
		if len(s) < 2 || strings.ContainsAny(s, " :") {
			return ChatTarget{}, fmt.Errorf("invalid chat username %q", raw)
		}
		return ChatTarget{Chat: s}, nil
	}

	chat, thread, hasThread := strings.Cut(s, ":")
	if _, err := strconv.ParseInt(chat, 10, 64); err != nil {
		return ChatTarget{}, fmt.Errorf("invalid chat id %q", raw)
	}
	t := ChatTarget{Chat: chat}
	if hasThread {
		id, err := strconv.Atoi(thread)
		if err != nil || id <= 0 {
			return ChatTarget{}, fmt.Errorf("invalid thread id in %q", raw)
		}
		t.ThreadID = id
	}
	return t, nil
}

// ParseChatTargets parses every entry and reports all invalid ones together.
func ParseChatTargets(raw []string) ([]ChatTarget, error) {
	out := make([]ChatTarget, 0, len(raw))
	var bad []string
	seen := map[ChatTarget]bool{}
	for _, r := range raw {
		t, err := ParseChatTarget(r)
		if err != nil {
			bad = append(bad, err.Error())
			continue
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(bad) > 0 {
		return nil, fmt.Errorf("telegram.chat_ids: %s", strings.Join(bad, "; "))
	}
	return out, nil
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// BotInfo is what the connectivity check learns about the bot account.
type BotInfo struct {
	ID       int64
	Username string
}

// MessageRef identifies a sent message.
type MessageRef struct {
	Chat      string
	ThreadID  int
	MessageID int
}

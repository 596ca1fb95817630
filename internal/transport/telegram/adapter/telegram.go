package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "tokenbot/internal/transport"
	logx "tokenbot/pkg/logx"
)

// Config configures the Telegram adapter.
type Config struct {
	Token string
	// Timeout bounds every Bot API HTTP call.
	Timeout time.Duration
	// URL overrides the Bot API endpoint (tests, local bot API servers).
	URL string
}

// Adapter sends messages through the Telegram Bot API. The bot is created
// offline (no getMe, no polling): the notifier only pushes messages, and
// connectivity is checked explicitly with Ping.
type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.URL,
		Token:   cfg.Token,
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

// call runs fn unless ctx is already done, and stops waiting when ctx ends.
// telebot has no context support; the HTTP client timeout bounds fn itself.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if ctx == nil {
		return fn()
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Ping calls getMe; it is the startup and health connectivity check.
func (a *Adapter) Ping(ctx context.Context) (kit.BotInfo, error) {
	data, err := call(ctx, func() ([]byte, error) { return a.bot.Raw("getMe", nil) })
	if err != nil {
		return kit.BotInfo{}, fmt.Errorf("telegram getMe: %w", err)
	}
	var resp struct {
		OK     bool `json:"ok"`
		Result struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return kit.BotInfo{}, fmt.Errorf("telegram getMe: decode: %w", err)
	}
	if !resp.OK {
		return kit.BotInfo{}, errors.New("telegram getMe: not ok")
	}
	return kit.BotInfo{ID: resp.Result.ID, Username: resp.Result.Username}, nil
}

const telegramTextLimit = 4000

// splitTelegramText splits long messages into chunks that are safe to send to Telegram.
// It prefers newline boundaries and (best-effort) avoids splitting inside HTML tags when ParseMode is HTML.
func splitTelegramText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		// Prefer splitting on a newline near the end of the window.
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		// Best-effort: don't split inside a tag for HTML parse mode.
		if strings.EqualFold(parseMode, "HTML") && end < len(rs) {
			lastOpen, lastClose := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					lastOpen = i
				case '>':
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))

		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

func sendOptions(to kit.ChatTarget, opt *kit.SendOptions) *tele.SendOptions {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	return &tele.SendOptions{
		ParseMode:             tele.ParseMode(opt.ParseMode),
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              to.ThreadID,
	}
}

// SendText sends text, split into several messages when it is too long.
// The returned ref points at the first message.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	parseMode := ""
	if opt != nil {
		parseMode = opt.ParseMode
	}
	chunks := splitTelegramText(text, telegramTextLimit, parseMode)

	var first kit.MessageRef
	for i, chunk := range chunks {
		msg, err := call(ctx, func() (*tele.Message, error) {
			return a.bot.Send(to, chunk, sendOptions(to, opt))
		})
		if err != nil {
			return first, err
		}
		if i == 0 && msg != nil {
			first = kit.MessageRef{Chat: to.Chat, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

// SendPhoto sends a photo by URL with an optional caption.
func (a *Adapter) SendPhoto(ctx context.Context, to kit.ChatTarget, photoURL, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if strings.TrimSpace(photoURL) == "" {
		return kit.MessageRef{}, errors.New("photo url is empty")
	}
	p := &tele.Photo{File: tele.FromURL(photoURL), Caption: caption}
	msg, err := call(ctx, func() (*tele.Message, error) {
		return a.bot.Send(to, p, sendOptions(to, opt))
	})
	if err != nil {
		return kit.MessageRef{}, err
	}
	ref := kit.MessageRef{Chat: to.Chat, ThreadID: to.ThreadID}
	if msg != nil {
		ref.MessageID = msg.ID
	}
	return ref, nil
}

// SendLog implements logx.Sender for the Telegram log sink.
func (a *Adapter) SendLog(ctx context.Context, chat string, threadID int, text string) error {
	_, err := a.SendText(ctx, kit.ChatTarget{Chat: chat, ThreadID: threadID}, text, &kit.SendOptions{DisablePreview: true})
	return err
}

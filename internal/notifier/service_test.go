package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenbot/internal/model"
	"tokenbot/internal/storage"
	kit "tokenbot/internal/transport"
	logx "tokenbot/pkg/logx"
)

type sent struct {
	Chat  string
	Photo string
	Text  string
	Opt   kit.SendOptions
}

type fakeSender struct {
	mu        sync.Mutex
	sent      []sent
	calls     map[string]int
	failChats map[string]bool
	failPhoto bool
}

func newFakeSender(failing ...string) *fakeSender {
	f := &fakeSender{calls: map[string]int{}, failChats: map[string]bool{}}
	for _, c := range failing {
		f.failChats[c] = true
	}
	return f
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[to.Chat]++
	if f.failChats[to.Chat] {
		return kit.MessageRef{}, errors.New("chat not found")
	}
	f.sent = append(f.sent, sent{Chat: to.Chat, Text: text, Opt: *opt})
	return kit.MessageRef{Chat: to.Chat, MessageID: len(f.sent)}, nil
}

func (f *fakeSender) SendPhoto(_ context.Context, to kit.ChatTarget, photoURL, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[to.Chat]++
	if f.failChats[to.Chat] || f.failPhoto {
		return kit.MessageRef{}, errors.New("wrong file identifier/HTTP URL specified")
	}
	f.sent = append(f.sent, sent{Chat: to.Chat, Photo: photoURL, Text: caption, Opt: *opt})
	return kit.MessageRef{Chat: to.Chat, MessageID: len(f.sent)}, nil
}

func (f *fakeSender) sentTo(chat string) []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sent
	for _, s := range f.sent {
		if s.Chat == chat {
			out = append(out, s)
		}
	}
	return out
}

type memRecorder struct {
	mu      sync.Mutex
	entries []storage.DeliveryEntry
}

func (m *memRecorder) AppendDelivery(_ context.Context, e storage.DeliveryEntry) error {
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return nil
}

func newTestService(s Sender, rec Recorder) *Service {
	svc := New(Config{RatePerSec: 1000, RetryMax: 2}, s, logx.Nop(), nil)
	if rec != nil {
		svc.recorder = rec
	}
	svc.sleep = func(context.Context, time.Duration) error { return nil }
	return svc
}

func dests(chats ...string) []kit.ChatTarget {
	out := make([]kit.ChatTarget, len(chats))
	for i, c := range chats {
		out[i] = kit.ChatTarget{Chat: c}
	}
	return out
}

func TestDeliverIsolatesFailingDestination(t *testing.T) {
	f := newFakeSender("-2")
	svc := newTestService(f, nil)

	for i := 1; i <= 3; i++ {
		outs := svc.Deliver(context.Background(), Ref{VID: int64(i)}, model.Message{Text: "n"}, dests("-1", "-2", "-3"))
		require.Len(t, outs, 3)
		assert.NoError(t, outs[0].Err)
		assert.Error(t, outs[1].Err)
		assert.NoError(t, outs[2].Err)
		assert.Equal(t, 3, outs[1].Attempts)
		assert.Equal(t, "-2", outs[1].Target.Chat)
		assert.False(t, AllFailed(outs))
	}

	assert.Len(t, f.sentTo("-1"), 3)
	assert.Len(t, f.sentTo("-3"), 3)
	assert.Empty(t, f.sentTo("-2"))
	assert.Equal(t, 9, f.calls["-2"])
}

func TestDeliverTextUsesHTMLWithoutPreview(t *testing.T) {
	f := newFakeSender()
	svc := newTestService(f, nil)
	outs := svc.Deliver(context.Background(), Ref{VID: 1}, model.Message{Text: "<b>x</b>"}, dests("-1"))
	require.True(t, outs[0].OK())
	got := f.sentTo("-1")
	require.Len(t, got, 1)
	assert.Equal(t, kit.SendOptions{ParseMode: "HTML", DisablePreview: true}, got[0].Opt)
	assert.Empty(t, got[0].Photo)
}

func TestDeliverSendsPhotoWhenImagePresent(t *testing.T) {
	f := newFakeSender()
	svc := newTestService(f, nil)
	outs := svc.Deliver(context.Background(), Ref{VID: 1}, model.Message{Text: "Foo", Image: "http://x/img.png"}, dests("-1"))
	require.True(t, outs[0].OK())
	assert.True(t, outs[0].Photo)
	got := f.sentTo("-1")
	require.Len(t, got, 1)
	assert.Equal(t, "http://x/img.png", got[0].Photo)
	assert.Equal(t, "Foo", got[0].Text)
}

func TestDeliverFallsBackToTextWhenPhotoFails(t *testing.T) {
	f := newFakeSender()
	f.failPhoto = true
	svc := newTestService(f, nil)
	outs := svc.Deliver(context.Background(), Ref{VID: 1}, model.Message{Text: "Foo", Image: "http://bad/img"}, dests("-1"))
	require.True(t, outs[0].OK())
	assert.False(t, outs[0].Photo)
	assert.Equal(t, 2, outs[0].Attempts)
	got := f.sentTo("-1")
	require.Len(t, got, 1)
	assert.Empty(t, got[0].Photo)
}

func TestDeliverLongCaptionGoesAsText(t *testing.T) {
	f := newFakeSender()
	svc := newTestService(f, nil)
	long := strings.Repeat("x", 1500)
	outs := svc.Deliver(context.Background(), Ref{VID: 1}, model.Message{Text: long, Image: "http://x/img.png"}, dests("-1"))
	require.True(t, outs[0].OK())
	assert.Equal(t, 1, outs[0].Attempts)
	got := f.sentTo("-1")
	require.Len(t, got, 1)
	assert.Empty(t, got[0].Photo)
}

func TestDeliverRecordsOutcomes(t *testing.T) {
	f := newFakeSender("-2")
	rec := &memRecorder{}
	svc := newTestService(f, rec)
	outs := svc.Deliver(context.Background(), Ref{VID: 42, Mint: "M"}, model.Message{Text: "n"}, dests("-1", "-2"))
	require.Len(t, outs, 2)

	require.Len(t, rec.entries, 2)
	byChat := map[string]storage.DeliveryEntry{}
	for _, e := range rec.entries {
		byChat[e.Chat] = e
	}
	assert.True(t, byChat["-1"].OK)
	assert.Equal(t, int64(42), byChat["-1"].VID)
	assert.Equal(t, "M", byChat["-1"].Mint)
	assert.False(t, byChat["-2"].OK)
	assert.Equal(t, "chat not found", byChat["-2"].Error)
	assert.Equal(t, 3, byChat["-2"].Attempts)
}

func TestBroadcastAllFailed(t *testing.T) {
	f := newFakeSender("-1", "-2")
	svc := newTestService(f, nil)
	outs := svc.Broadcast(context.Background(), "online", dests("-1", "-2"))
	assert.True(t, AllFailed(outs))
	assert.Equal(t, 2, Failed(outs))
	assert.False(t, AllFailed(nil))
}

func TestDeliverWithoutSender(t *testing.T) {
	svc := newTestService(nil, nil)
	outs := svc.Deliver(context.Background(), Ref{VID: 1}, model.Message{Text: "n"}, dests("-1"))
	assert.ErrorIs(t, outs[0].Err, ErrNoSender)
}

func TestDeliverStopsRetryingOnCancel(t *testing.T) {
	f := newFakeSender("-1")
	svc := newTestService(f, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outs := svc.Deliver(ctx, Ref{VID: 1}, model.Message{Text: "n"}, dests("-1"))
	assert.Error(t, outs[0].Err)
	assert.Equal(t, 0, f.calls["-1"])
}

func TestRetryDelayBounds(t *testing.T) {
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for i := 0; i < 50; i++ {
		d1 := retryDelay(cfg, 1)
		assert.GreaterOrEqual(t, d1, 70*time.Millisecond)
		assert.LessOrEqual(t, d1, 130*time.Millisecond)
		assert.LessOrEqual(t, retryDelay(cfg, 10), time.Second)
	}
}

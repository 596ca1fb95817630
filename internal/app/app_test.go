package app

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenbot/internal/config"
	"tokenbot/internal/model"
	"tokenbot/internal/notifier"
	kit "tokenbot/internal/transport"
	logx "tokenbot/pkg/logx"
)

func ptr[T any](v T) *T { return &v }

type fakeFetcher struct {
	md   *model.Metadata
	uris []string
}

func (f *fakeFetcher) Fetch(_ context.Context, uri string) *model.Metadata {
	f.uris = append(f.uris, uri)
	return f.md
}

type fakeDeliverer struct {
	mu    sync.Mutex
	msgs  []model.Message
	refs  []notifier.Ref
	fail  map[string]error
	calls int
}

func (f *fakeDeliverer) Deliver(_ context.Context, ref notifier.Ref, msg model.Message, dests []kit.ChatTarget) []notifier.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.msgs = append(f.msgs, msg)
	f.refs = append(f.refs, ref)
	outs := make([]notifier.Outcome, 0, len(dests))
	for _, d := range dests {
		outs = append(outs, notifier.Outcome{Target: d, Attempts: 1, Err: f.fail[d.Chat]})
	}
	return outs
}

func sampleEvent() model.Event {
	return model.Event{
		VID:         101,
		Mint:        "So11111111111111111111111111111111111111112",
		TokenName:   ptr("Record Name"),
		TokenSymbol: ptr("REC"),
		TokenURI:    ptr("https://meta.example/101.json"),
	}
}

func dests(chats ...string) []kit.ChatTarget {
	out := make([]kit.ChatTarget, 0, len(chats))
	for _, c := range chats {
		out = append(out, kit.ChatTarget{Chat: c})
	}
	return out
}

func TestPipelineEnrichesAndDelivers(t *testing.T) {
	f := &fakeFetcher{md: &model.Metadata{Name: "Foo", Image: "https://img.example/foo.png"}}
	d := &fakeDeliverer{}
	p := &pipeline{enrich: f, deliver: d, dests: dests("-1", "-2")}

	require.NoError(t, p.Handle(context.Background(), sampleEvent()))

	assert.Equal(t, []string{"https://meta.example/101.json"}, f.uris)
	require.Len(t, d.msgs, 1)
	assert.Contains(t, d.msgs[0].Text, "Foo")
	assert.Equal(t, "https://img.example/foo.png", d.msgs[0].Image)
	assert.Equal(t, notifier.Ref{VID: 101, Mint: sampleEvent().Mint}, d.refs[0])
}

func TestPipelineUnreachableMetadataFallsBackToRecord(t *testing.T) {
	d := &fakeDeliverer{}
	p := &pipeline{enrich: &fakeFetcher{}, deliver: d, dests: dests("-1")}

	require.NoError(t, p.Handle(context.Background(), sampleEvent()))

	require.Len(t, d.msgs, 1)
	assert.Contains(t, d.msgs[0].Text, "Record Name")
	assert.Contains(t, d.msgs[0].Text, "https://meta.example/101.json")
	assert.False(t, d.msgs[0].HasImage())
}

func TestPipelineWithoutEnricher(t *testing.T) {
	d := &fakeDeliverer{}
	p := &pipeline{deliver: d, dests: dests("-1")}

	require.NoError(t, p.Handle(context.Background(), sampleEvent()))
	assert.Contains(t, d.msgs[0].Text, "Record Name")
}

func TestPipelinePartialFailureIsNotAnError(t *testing.T) {
	d := &fakeDeliverer{fail: map[string]error{"-2": errors.New("chat not found")}}
	p := &pipeline{deliver: d, dests: dests("-1", "-2", "-3")}

	assert.NoError(t, p.Handle(context.Background(), sampleEvent()))
}

func TestPipelineAllFailedIsAnError(t *testing.T) {
	boom := errors.New("blocked")
	d := &fakeDeliverer{fail: map[string]error{"-1": boom, "-2": boom}}
	p := &pipeline{deliver: d, dests: dests("-1", "-2")}

	err := p.Handle(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

type fakeBroadcaster struct {
	texts []string
	fail  map[string]error
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, text string, dests []kit.ChatTarget) []notifier.Outcome {
	f.texts = append(f.texts, text)
	outs := make([]notifier.Outcome, 0, len(dests))
	for _, d := range dests {
		outs = append(outs, notifier.Outcome{Target: d, Attempts: 1, Err: f.fail[d.Chat]})
	}
	return outs
}

func TestAnnounceToleratesPartialFailure(t *testing.T) {
	b := &fakeBroadcaster{fail: map[string]error{"-2": errors.New("bot was kicked")}}

	require.NoError(t, announce(context.Background(), b, dests("-1", "-2", "-3"), logx.Nop()))
	require.Len(t, b.texts, 1)
	assert.Contains(t, b.texts[0], "3 destination(s)")
}

func TestAnnounceFailsWhenNoDestinationReceivedIt(t *testing.T) {
	boom := errors.New("unauthorized")
	b := &fakeBroadcaster{fail: map[string]error{"-1": boom, "-2": boom}}

	err := announce(context.Background(), b, dests("-1", "-2"), logx.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func testConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{
			Host: " db.local ", Port: 5432, User: "u", Password: "p", Name: "graph",
			SSL: true, MaxConns: 4,
		},
		Telegram: config.TelegramConfig{Token: " t ", ChatIDs: []string{"-100", "-200:7"}},
		Poll:     config.PollConfig{Interval: "5s"},
		Enrich:   config.EnrichConfig{MaxBytes: 2048},
		Notifier: config.NotifierConfig{RatePerSec: 5, RetryMax: ptr(4)},
		Storage:  &config.StorageConfig{Driver: " SQLite ", Path: " /tmp/audit.db "},
	}
}

func TestConfigMapping(t *testing.T) {
	cfg := testConfig()
	rt, err := cfg.Runtime()
	require.NoError(t, err)

	pg := mapPostgresConfig(cfg, rt)
	assert.Equal(t, "db.local", pg.Host)
	assert.Equal(t, 5432, pg.Port)
	assert.True(t, pg.SSL)
	assert.Equal(t, 10*time.Second, pg.ConnectTimeout)

	assert.Equal(t, "t", mapTelegramConfig(cfg, rt).Token)
	assert.Equal(t, int64(2048), mapEnrichConfig(cfg, rt).MaxBytes)

	nc := mapNotifierConfig(cfg, rt)
	assert.Equal(t, 5, nc.RatePerSec)
	assert.Equal(t, 4, nc.RetryMax)

	wc := mapWatcherConfig(rt)
	assert.Equal(t, 5*time.Second, wc.Interval)
	assert.Equal(t, config.DefaultPacing, wc.Pacing)
	assert.Equal(t, config.DefaultPollTimeout, wc.PollTimeout)

	assert.Equal(t, time.Minute, mapHealthConfig(rt).Interval)

	sc, ok := mapStorageConfig(cfg, rt)
	require.True(t, ok)
	assert.Equal(t, "sqlite", sc.Driver)
	assert.Equal(t, "/tmp/audit.db", sc.Path)

	cfg.Storage = nil
	_, ok = mapStorageConfig(cfg, rt)
	assert.False(t, ok)
}

func TestRenderPreview(t *testing.T) {
	a := &App{log: logx.Nop()}
	var buf bytes.Buffer
	require.NoError(t, a.render(context.Background(), sampleEvent(), &buf))

	out := buf.String()
	assert.Contains(t, out, "New Token Initialized!")
	assert.Contains(t, out, "Record Name")
	assert.NotContains(t, out, "image:")
}

func TestStatusWithoutStartedComponents(t *testing.T) {
	a := &App{log: logx.Nop(), dests: dests("-1", "@chan")}
	v, ok := a.status(context.Background()).(statusView)
	require.True(t, ok)
	assert.Equal(t, []string{"-1", "@chan"}, v.Destinations)
	assert.Empty(t, v.Deliveries)
}

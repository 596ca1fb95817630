package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "tokenbot/pkg/logx"
)

func okProbe(name string) Probe {
	return Probe{Name: name, Check: func(context.Context) error { return nil }}
}

func failProbe(name string, err error) Probe {
	return Probe{Name: name, Check: func(context.Context) error { return err }}
}

func TestCheckAllHealthy(t *testing.T) {
	c := NewChecker(Config{Interval: time.Minute}, logx.Nop(), okProbe("database"), okProbe("telegram"))
	pinged := 0
	c.watchdog = func() (bool, error) { pinged++; return true, nil }

	res := c.Check(context.Background())
	assert.True(t, res.OK)
	assert.Empty(t, res.Failures)
	assert.Equal(t, 1, pinged)

	last, healthy := c.Last()
	assert.Equal(t, res.At, last.At)
	assert.Equal(t, res.At, healthy)
}

func TestCheckReportsEveryFailure(t *testing.T) {
	c := NewChecker(Config{}, logx.Nop(),
		failProbe("database", errors.New("connection refused")),
		okProbe("telegram"),
		failProbe("extra", errors.New("nope")),
	)
	c.watchdog = func() (bool, error) { t.Fatal("watchdog pinged on failure"); return false, nil }

	res := c.Check(context.Background())
	assert.False(t, res.OK)
	assert.Equal(t, map[string]string{"database": "connection refused", "extra": "nope"}, res.Failures)
	assert.False(t, c.Healthy(time.Now()))
}

func TestProbeTimeout(t *testing.T) {
	slow := Probe{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	c := NewChecker(Config{Timeout: 10 * time.Millisecond}, logx.Nop(), slow)
	res := c.Check(context.Background())
	assert.False(t, res.OK)
	assert.Contains(t, res.Failures["slow"], "deadline")
}

func TestStaleAfterTwoIntervals(t *testing.T) {
	c := NewChecker(Config{Interval: time.Minute}, logx.Nop(), okProbe("db"))
	_, since := c.Last()

	assert.False(t, c.Stale(since.Add(90*time.Second)))
	assert.True(t, c.Stale(since.Add(121*time.Second)))
	assert.True(t, c.Healthy(since.Add(time.Minute)))
	assert.False(t, c.Healthy(since.Add(3*time.Minute)))
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	c := NewChecker(Config{}, logx.Nop())
	_, err := NewScheduler("every minute", c, logx.Nop())
	assert.Error(t, err)

	s, err := NewScheduler("@every 1m", c, logx.Nop())
	require.NoError(t, err)
	s.Start()
	s.Stop(context.Background())
}

func get(t *testing.T, app *fiber.App, path string) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(b, &body))
	return resp.StatusCode, body
}

func TestHealthzEndpoint(t *testing.T) {
	probeErr := error(nil)
	c := NewChecker(Config{}, logx.Nop(), Probe{Name: "database", Check: func(context.Context) error { return probeErr }})
	srv := NewServer("127.0.0.1:0", c, nil, logx.Nop())

	code, body := get(t, srv.App(), "/healthz")
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	probeErr = errors.New("down")
	c.Check(context.Background())
	code, body = get(t, srv.App(), "/healthz")
	assert.Equal(t, fiber.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body["status"])
	assert.Equal(t, map[string]any{"database": "down"}, body["failures"])
}

func TestStatusEndpoint(t *testing.T) {
	c := NewChecker(Config{}, logx.Nop())
	srv := NewServer("127.0.0.1:0", c, func(context.Context) any {
		return map[string]any{"destinations": 3}
	}, logx.Nop())

	code, body := get(t, srv.App(), "/status")
	assert.Equal(t, fiber.StatusOK, code)
	assert.EqualValues(t, 3, body["destinations"])

	bare := NewServer("127.0.0.1:0", c, nil, logx.Nop())
	code, _ = get(t, bare.App(), "/status")
	assert.Equal(t, fiber.StatusNotFound, code)
}

func TestPprofOnlyWhenEnabled(t *testing.T) {
	c := NewChecker(Config{}, logx.Nop())

	plain := NewServer("127.0.0.1:0", c, nil, logx.Nop())
	resp, err := plain.App().Test(httptest.NewRequest("GET", "/debug/pprof/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	prof := NewServer("127.0.0.1:0", c, nil, logx.Nop(), WithPprof())
	resp, err = prof.App().Test(httptest.NewRequest("GET", "/debug/pprof/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestServerRunStopsOnCancel(t *testing.T) {
	srv := NewServer("127.0.0.1:0", NewChecker(Config{}, logx.Nop()), nil, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestIntervalOf(t *testing.T) {
	assert.Equal(t, time.Minute, IntervalOf("@every 1m"))
	assert.Equal(t, 5*time.Minute, IntervalOf("*/5 * * * *"))
	assert.Equal(t, time.Hour, IntervalOf("@hourly"))
	assert.Equal(t, DefaultInterval, IntervalOf("garbage"))
}

package notifier

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tokenbot/internal/model"
	"tokenbot/internal/storage"
	kit "tokenbot/internal/transport"
	logx "tokenbot/pkg/logx"
	"tokenbot/pkg/tgui"
)

var ErrNoSender = errors.New("notifier has no sender")

var htmlOptions = kit.SendOptions{ParseMode: "HTML", DisablePreview: true}

// Service fans messages out to destinations with rate limiting and retries.
// It is safe for concurrent use.
type Service struct {
	cfg      Config
	sender   Sender
	log      logx.Logger
	recorder Recorder
	limiter  *rate.Limiter

	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a Service. recorder may be nil.
func New(cfg Config, sender Sender, log logx.Logger, recorder Recorder) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = withDefaults(cfg)
	return &Service{
		cfg:      cfg,
		sender:   sender,
		log:      log,
		recorder: recorder,
		// Token bucket: burst = rate per sec, so short spikes don't block too hard.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		sleep:   sleepCtx,
	}
}

func withDefaults(cfg Config) Config {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return cfg
}

// Deliver sends msg to every destination and waits for all of them.
// Outcomes are returned in destination order.
func (s *Service) Deliver(ctx context.Context, ref Ref, msg model.Message, dests []kit.ChatTarget) []Outcome {
	if ctx == nil {
		ctx = context.Background()
	}
	outs := make([]Outcome, len(dests))
	var wg sync.WaitGroup
	for i, to := range dests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("delivery panic", logx.String("vid", ref.String()), logx.String("chat", to.String()), logx.Any("panic", r), logx.Stack(logx.StackTrace(3, 32)))
					outs[i] = Outcome{Target: to, Err: errors.New("delivery panicked")}
				}
			}()
			outs[i] = s.deliverOne(ctx, ref, msg, to)
		}()
	}
	wg.Wait()

	for _, o := range outs {
		s.record(ctx, ref, o)
	}

	if failed := Failed(outs); failed > 0 {
		lvl := s.log.Warn
		if failed == len(outs) {
			lvl = s.log.Error
		}
		lvl("delivery incomplete",
			logx.String("vid", ref.String()),
			logx.Int("failed", failed),
			logx.Int("total", len(outs)),
		)
	}
	return outs
}

// Broadcast sends a plain HTML text to every destination.
func (s *Service) Broadcast(ctx context.Context, text string, dests []kit.ChatTarget) []Outcome {
	return s.Deliver(ctx, Ref{}, model.Message{Text: text}, dests)
}

func (s *Service) deliverOne(ctx context.Context, ref Ref, msg model.Message, to kit.ChatTarget) Outcome {
	start := time.Now()
	out := Outcome{Target: to}
	log := s.log.With(logx.String("vid", ref.String()), logx.String("chat", to.String()))

	if s.sender == nil {
		out.Err = ErrNoSender
		return out
	}

	// A bad image URL is not worth retrying: one photo attempt, then text.
	if msg.HasImage() && tgui.FitsCaption(msg.Text) {
		out.Attempts++
		err := s.attempt(ctx, func(c context.Context) error {
			opt := htmlOptions
			_, err := s.sender.SendPhoto(c, to, msg.Image, msg.Text, &opt)
			return err
		})
		if err == nil {
			out.Photo = true
			out.Took = time.Since(start)
			log.Debug("photo delivered", logx.Duration("took", out.Took))
			return out
		}
		if ctx.Err() != nil {
			out.Err = err
			out.Took = time.Since(start)
			return out
		}
		log.Warn("photo send failed; falling back to text", logx.String("image", msg.Image), logx.Err(err))
	}

	n, err := s.withRetry(ctx, log, func(c context.Context) error {
		opt := htmlOptions
		_, err := s.sender.SendText(c, to, msg.Text, &opt)
		return err
	})
	out.Attempts += n
	out.Err = err
	out.Took = time.Since(start)
	if err != nil {
		log.Warn("delivery failed", logx.Int("attempt", out.Attempts), logx.Duration("took", out.Took), logx.Err(err))
	} else {
		log.Debug("text delivered", logx.Int("attempt", out.Attempts), logx.Duration("took", out.Took))
	}
	return out
}

// attempt waits for the rate limiter and runs one bounded call.
func (s *Service) attempt(ctx context.Context, fn func(context.Context) error) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()
	return fn(callCtx)
}

// withRetry runs fn up to 1+RetryMax times and returns the attempts made.
func (s *Service) withRetry(ctx context.Context, log logx.Logger, fn func(context.Context) error) (int, error) {
	maxAttempts := 1 + s.cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := s.attempt(ctx, fn)
		if err == nil {
			return attempt, nil
		}
		lastErr = err
		log.Debug("send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if attempt >= maxAttempts || ctx.Err() != nil {
			return attempt, lastErr
		}
		if err := s.sleep(ctx, retryDelay(s.cfg, attempt)); err != nil {
			return attempt, lastErr
		}
	}
	return maxAttempts, lastErr
}

func (s *Service) record(ctx context.Context, ref Ref, o Outcome) {
	if s.recorder == nil {
		return
	}
	e := storage.DeliveryEntry{
		At:       time.Now(),
		VID:      ref.VID,
		Mint:     ref.Mint,
		Chat:     o.Target.Chat,
		ThreadID: o.Target.ThreadID,
		OK:       o.OK(),
		Photo:    o.Photo,
		Attempts: o.Attempts,
		TookMS:   o.Took.Milliseconds(),
	}
	if o.Err != nil {
		e.Error = o.Err.Error()
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.recorder.AppendDelivery(rctx, e); err != nil {
		s.log.Debug("delivery audit write failed", logx.Err(err), logx.String("chat", o.Target.String()))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// attempt starts at 1 (first attempt), delay is for the NEXT attempt.
	base := cfg.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxD := cfg.RetryMaxDelay
	if maxD <= 0 {
		maxD = 10 * time.Second
	}
	// Exponential backoff: base * 2^(attempt-1)
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	// Jitter 0.7..1.3
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	if d > maxD {
		d = maxD
	}
	return d
}

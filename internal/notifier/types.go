package notifier

import (
	"context"
	"strconv"
	"time"

	"tokenbot/internal/storage"
	kit "tokenbot/internal/transport"
)

// Config controls throttling and retries.
type Config struct {
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	// SendTimeout bounds a single API call.
	SendTimeout time.Duration
}

// Sender is the transport the notifier pushes through.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
	SendPhoto(ctx context.Context, to kit.ChatTarget, photoURL, caption string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// Recorder persists delivery outcomes. storage.Store satisfies it.
type Recorder interface {
	AppendDelivery(ctx context.Context, e storage.DeliveryEntry) error
}

// Ref identifies the event a message was built from.
type Ref struct {
	VID  int64
	Mint string
}

func (r Ref) String() string {
	if r.VID == 0 {
		return "-"
	}
	return strconv.FormatInt(r.VID, 10)
}

// Outcome is the delivery result for one destination.
type Outcome struct {
	Target   kit.ChatTarget
	Attempts int
	Photo    bool
	Err      error
	Took     time.Duration
}

func (o Outcome) OK() bool { return o.Err == nil }

// Failed counts outcomes with an error.
func Failed(outs []Outcome) int {
	n := 0
	for _, o := range outs {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// AllFailed reports whether no destination received the message.
func AllFailed(outs []Outcome) bool {
	return len(outs) > 0 && Failed(outs) == len(outs)
}

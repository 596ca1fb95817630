package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultPacing         = time.Second
	DefaultPollTimeout    = 30 * time.Second
	DefaultHealthSchedule = "@every 1m"
	DefaultRetryMax       = 2
)

// Runtime holds the parsed, defaulted values derived from Config.
type Runtime struct {
	PollInterval time.Duration
	Pacing       time.Duration
	PollTimeout  time.Duration

	DBConnectTimeout time.Duration
	TelegramTimeout  time.Duration

	EnrichEnabled bool
	EnrichTimeout time.Duration

	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration

	HealthSchedule string

	StorageBusyTimeout time.Duration
	StorageRetention   time.Duration
}

// Runtime parses every duration field. Zero values of optional fields fall
// back to their defaults; zero values of durations owned by other packages
// are left at 0 so those packages apply their own defaults.
func (c *Config) Runtime() (Runtime, error) {
	var rt Runtime
	var err error

	if rt.PollInterval, err = ParseDurationField("poll.interval", c.Poll.Interval); err != nil {
		return rt, err
	}
	if rt.PollInterval <= 0 {
		return rt, fmt.Errorf("poll.interval: must be > 0")
	}
	if strings.TrimSpace(c.Poll.Pacing) == "" {
		rt.Pacing = DefaultPacing
	} else if rt.Pacing, err = ParseDurationField("poll.pacing", c.Poll.Pacing); err != nil {
		return rt, err
	}
	if rt.PollTimeout, err = ParseDurationOrDefault("poll.timeout", c.Poll.Timeout, DefaultPollTimeout); err != nil {
		return rt, err
	}

	if rt.DBConnectTimeout, err = ParseDurationOrDefault("database.connect_timeout", c.Database.ConnectTimeout, 10*time.Second); err != nil {
		return rt, err
	}
	if rt.TelegramTimeout, err = ParseDurationField("telegram.timeout", c.Telegram.Timeout); err != nil {
		return rt, err
	}

	rt.EnrichEnabled = c.Enrich.Enabled == nil || *c.Enrich.Enabled
	if rt.EnrichTimeout, err = ParseDurationField("enrich.timeout", c.Enrich.Timeout); err != nil {
		return rt, err
	}

	rt.RetryMax = DefaultRetryMax
	if c.Notifier.RetryMax != nil {
		if *c.Notifier.RetryMax < 0 {
			return rt, fmt.Errorf("notifier.retry_max: must be >= 0")
		}
		rt.RetryMax = *c.Notifier.RetryMax
	}
	if rt.RetryBase, err = ParseDurationField("notifier.retry_base", c.Notifier.RetryBase); err != nil {
		return rt, err
	}
	if rt.RetryMaxDelay, err = ParseDurationField("notifier.retry_max_delay", c.Notifier.RetryMaxDelay); err != nil {
		return rt, err
	}
	if rt.SendTimeout, err = ParseDurationField("notifier.send_timeout", c.Notifier.SendTimeout); err != nil {
		return rt, err
	}

	rt.HealthSchedule = strings.TrimSpace(c.Health.Schedule)
	if rt.HealthSchedule == "" {
		rt.HealthSchedule = DefaultHealthSchedule
	}

	if c.Storage != nil {
		if rt.StorageBusyTimeout, err = ParseDurationOrDefault("storage.busy_timeout", c.Storage.BusyTimeout, time.Second); err != nil {
			return rt, err
		}
		if rt.StorageRetention, err = ParseDurationField("storage.retention", c.Storage.Retention); err != nil {
			return rt, err
		}
	}
	return rt, nil
}

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// envBindings maps config keys to the environment variables the bot has
// always been deployed with.
var envBindings = []struct{ key, env string }{
	{"database.host", "DB_HOST"},
	{"database.port", "DB_PORT"},
	{"database.user", "DB_USER"},
	{"database.password", "DB_PASSWORD"},
	{"database.name", "DB_NAME"},
	{"database.sslmode", "DB_SSLMODE"},
	{"database.table", "DB_TABLE"},
	{"telegram.token", "TELEGRAM_BOT_TOKEN"},
	{"telegram.chat_ids", "TELEGRAM_CHAT_ID"},
	{"telegram.group_log", "TELEGRAM_GROUP_LOG"},
	{"poll.interval", "POLL_INTERVAL"},
	{"logging.level", "LOG_LEVEL"},
	{"health.addr", "HEALTH_ADDR"},
}

// flagBindings maps command-line flags to config keys.
var flagBindings = []struct{ key, flag string }{
	{"logging.level", "log-level"},
	{"health.addr", "health-addr"},
}

func applyEnv(cfg *Config, flags *pflag.FlagSet) error {
	v := viper.New()
	for _, b := range envBindings {
		if err := v.BindEnv(b.key, b.env); err != nil {
			return fmt.Errorf("bind env %s: %w", b.env, err)
		}
	}
	if flags != nil {
		for _, b := range flagBindings {
			if f := flags.Lookup(b.flag); f != nil {
				if err := v.BindPFlag(b.key, f); err != nil {
					return fmt.Errorf("bind flag %s: %w", b.flag, err)
				}
			}
		}
	}

	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = strings.TrimSpace(v.GetString(key))
		}
	}
	str("database.host", &cfg.Database.Host)
	str("database.user", &cfg.Database.User)
	str("database.name", &cfg.Database.Name)
	str("database.table", &cfg.Database.Table)
	str("telegram.token", &cfg.Telegram.Token)
	str("telegram.group_log", &cfg.Telegram.GroupLog)
	str("logging.level", &cfg.Logging.Level)
	str("health.addr", &cfg.Health.Addr)
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}

	if v.IsSet("database.port") {
		raw := strings.TrimSpace(v.GetString("database.port"))
		port, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("DB_PORT: invalid port %q", raw)
		}
		cfg.Database.Port = port
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSL = strings.EqualFold(strings.TrimSpace(v.GetString("database.sslmode")), "require")
	}
	if v.IsSet("telegram.chat_ids") {
		cfg.Telegram.ChatIDs = splitAndClean(v.GetString("telegram.chat_ids"))
	}
	if v.IsSet("poll.interval") {
		d, err := parseMillisOrDuration(v.GetString("poll.interval"))
		if err != nil {
			return fmt.Errorf("POLL_INTERVAL: %w", err)
		}
		cfg.Poll.Interval = d.String()
	}
	return nil
}

// parseMillisOrDuration accepts a bare integer as milliseconds or a Go
// duration string.
func parseMillisOrDuration(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms <= 0 {
			return 0, fmt.Errorf("must be > 0, got %d", ms)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q", raw)
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be > 0, got %s", d)
	}
	return d, nil
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	kit "tokenbot/internal/transport"
)

// ErrMissing is matched by MissingError.
var ErrMissing = errors.New("missing required configuration")

// MissingError lists every required option that is unset.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return ErrMissing.Error() + ": " + strings.Join(e.Keys, ", ")
}

func (e *MissingError) Is(target error) bool { return target == ErrMissing }

// Parse reads a JSON or YAML config file with strict field checking.
func Parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	jb, _, err := coerceToJSONBytes(path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	return &cfg, nil
}

// Load builds the effective configuration: the optional file at path, then
// environment variables, then explicitly set flags. The result is validated.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	cfg := &Config{}
	if strings.TrimSpace(path) != "" {
		parsed, err := Parse(path)
		if err != nil {
			return nil, err
		}
		cfg = parsed
	}
	if err := applyEnv(cfg, flags); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports all missing required options at once, then the first
// malformed value.
func (c *Config) Validate() error {
	var missing []string
	need := func(ok bool, key string) {
		if !ok {
			missing = append(missing, key)
		}
	}
	need(strings.TrimSpace(c.Database.Host) != "", "database.host (DB_HOST)")
	need(c.Database.Port != 0, "database.port (DB_PORT)")
	need(strings.TrimSpace(c.Database.User) != "", "database.user (DB_USER)")
	need(c.Database.Password != "", "database.password (DB_PASSWORD)")
	need(strings.TrimSpace(c.Database.Name) != "", "database.name (DB_NAME)")
	need(strings.TrimSpace(c.Telegram.Token) != "", "telegram.token (TELEGRAM_BOT_TOKEN)")
	need(len(c.Telegram.ChatIDs) > 0, "telegram.chat_ids (TELEGRAM_CHAT_ID)")
	need(strings.TrimSpace(c.Poll.Interval) != "", "poll.interval (POLL_INTERVAL)")
	if len(missing) > 0 {
		return &MissingError{Keys: missing}
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("database.port: %d out of range", c.Database.Port)
	}
	if _, err := kit.ParseChatTargets(c.Telegram.ChatIDs); err != nil {
		return err
	}
	if _, err := c.Runtime(); err != nil {
		return err
	}
	return nil
}

package config

// Config is the file representation of the bot configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Environment variables (DB_*, TELEGRAM_*, POLL_INTERVAL, LOG_LEVEL) are
// applied on top of the file, see Load.
type Config struct {
	Database DatabaseConfig `json:"database"`
	Telegram TelegramConfig `json:"telegram"`
	Poll     PollConfig     `json:"poll"`
	Enrich   EnrichConfig   `json:"enrich"`
	Notifier NotifierConfig `json:"notifier"`
	Health   HealthConfig   `json:"health"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Logging  LoggingConfig  `json:"logging"`
}

// DatabaseConfig points at the indexer's Postgres database.
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
	// SSL enables sslmode=require.
	SSL bool `json:"ssl,omitempty"`
	// Table defaults to initialize_token_event_entity.
	Table          string `json:"table,omitempty"`
	MaxConns       int32  `json:"max_conns,omitempty"`
	ConnectTimeout string `json:"connect_timeout,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// ChatIDs are the notification destinations: "-100123", "-100123:45" (forum topic) or "@channel".
	ChatIDs []string `json:"chat_ids"`
	// GroupLog receives warn+ log lines when logging.telegram.enabled is set.
	GroupLog string `json:"group_log,omitempty"`
	// APIURL overrides the Bot API endpoint (local bot API server).
	APIURL  string `json:"api_url,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

// PollConfig controls the watcher loop.
//
// Defaults (when fields are omitted/zero):
//   - pacing: "1s"
//   - timeout: "30s"
//
// interval has no default and must be set.
type PollConfig struct {
	Interval string `json:"interval"`
	Pacing   string `json:"pacing,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

// EnrichConfig controls metadata fetching from token_uri.
// Enabled is a pointer so an omitted value means true.
type EnrichConfig struct {
	Enabled        *bool  `json:"enabled,omitempty"`
	Timeout        string `json:"timeout,omitempty"`
	MaxBytes       int64  `json:"max_bytes,omitempty"`
	IPFSGateway    string `json:"ipfs_gateway,omitempty"`
	ArweaveGateway string `json:"arweave_gateway,omitempty"`
	UserAgent      string `json:"user_agent,omitempty"`
}

// NotifierConfig controls delivery throttling and retries.
//
// Defaults (when fields are omitted/zero):
//   - rate_per_sec: 3
//   - retry_max: 2
//   - retry_base: "500ms"
//   - retry_max_delay: "10s"
//   - send_timeout: "10s"
type NotifierConfig struct {
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      *int   `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
}

// HealthConfig controls the periodic health check and the status server.
type HealthConfig struct {
	// Schedule is a robfig/cron spec; default "@every 1m".
	Schedule string `json:"schedule,omitempty"`
	// Addr enables the status HTTP server (e.g. "127.0.0.1:8080"). Empty disables it.
	Addr string `json:"addr,omitempty"`
	// Pprof mounts /debug/pprof on the status server.
	Pprof bool `json:"pprof,omitempty"`
}

// StorageConfig controls the optional delivery audit log.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./tokenbot.db", "retention": "720h" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	Retention   string `json:"retention,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

package app

import (
	"strings"

	"tokenbot/internal/config"
	"tokenbot/internal/enrich"
	"tokenbot/internal/health"
	"tokenbot/internal/notifier"
	"tokenbot/internal/storage"
	"tokenbot/internal/storage/postgres"
	telegram "tokenbot/internal/transport/telegram/adapter"
	"tokenbot/internal/watcher"
	logx "tokenbot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapPostgresConfig(cfg *config.Config, rt config.Runtime) postgres.Config {
	db := cfg.Database
	return postgres.Config{
		Host:           strings.TrimSpace(db.Host),
		Port:           db.Port,
		User:           db.User,
		Password:       db.Password,
		Database:       db.Name,
		SSL:            db.SSL,
		Table:          db.Table,
		MaxConns:       db.MaxConns,
		ConnectTimeout: rt.DBConnectTimeout,
	}
}

func mapTelegramConfig(cfg *config.Config, rt config.Runtime) telegram.Config {
	return telegram.Config{
		Token:   strings.TrimSpace(cfg.Telegram.Token),
		Timeout: rt.TelegramTimeout,
		URL:     strings.TrimSpace(cfg.Telegram.APIURL),
	}
}

func mapEnrichConfig(cfg *config.Config, rt config.Runtime) enrich.Config {
	return enrich.Config{
		Timeout:        rt.EnrichTimeout,
		MaxBytes:       cfg.Enrich.MaxBytes,
		IPFSGateway:    cfg.Enrich.IPFSGateway,
		ArweaveGateway: cfg.Enrich.ArweaveGateway,
		UserAgent:      cfg.Enrich.UserAgent,
	}
}

func mapNotifierConfig(cfg *config.Config, rt config.Runtime) notifier.Config {
	return notifier.Config{
		RatePerSec:    cfg.Notifier.RatePerSec,
		RetryMax:      rt.RetryMax,
		RetryBase:     rt.RetryBase,
		RetryMaxDelay: rt.RetryMaxDelay,
		SendTimeout:   rt.SendTimeout,
	}
}

func mapWatcherConfig(rt config.Runtime) watcher.Config {
	return watcher.Config{
		Interval:    rt.PollInterval,
		Pacing:      rt.Pacing,
		PollTimeout: rt.PollTimeout,
	}
}

func mapHealthConfig(rt config.Runtime) health.Config {
	return health.Config{Interval: health.IntervalOf(rt.HealthSchedule)}
}

// mapStorageConfig returns ok=false when the audit log is disabled.
func mapStorageConfig(cfg *config.Config, rt config.Runtime) (storage.Config, bool) {
	if cfg.Storage == nil {
		return storage.Config{}, false
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: rt.StorageBusyTimeout,
		Retention:   rt.StorageRetention,
	}, true
}

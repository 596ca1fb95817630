package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// Config configures the audit store.
//
// Driver values:
//   - "sqlite": SQLite database file (pure Go driver)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// Retention prunes entries older than this on open and periodically. 0 keeps everything.
	Retention time.Duration
}

// DeliveryEntry records the outcome of delivering one event to one chat.
// Keep it compact and schema-stable.
type DeliveryEntry struct {
	At       time.Time
	VID      int64
	Mint     string
	Chat     string
	ThreadID int
	OK       bool
	Photo    bool
	Attempts int
	Error    string
	TookMS   int64
}

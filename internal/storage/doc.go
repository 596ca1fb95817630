// Package storage provides the bot's small persistence layer.
//
// It records one audit row per delivery attempt outcome. It never stores the
// change-detection cursor: that resets to the table maximum on every start.
//
// Subpackage postgres reads the indexer's event table.
package storage

// Package source detects newly inserted token events by tracking the
// highest vid seen so far.
package source

import (
	"context"
	"fmt"
	"sort"

	"tokenbot/internal/model"
	logx "tokenbot/pkg/logx"
)

// Store is the data-store contract the source needs.
type Store interface {
	// MaxVID returns the current maximum vid, 0 for an empty table.
	MaxVID(ctx context.Context) (int64, error)
	// EventsAfter returns every row with vid > after, ascending by vid.
	EventsAfter(ctx context.Context, after int64) ([]model.Event, error)
}

// Source owns the in-memory cursor. It is not safe for concurrent use:
// only the watcher's single worker calls Poll.
type Source struct {
	store   Store
	log     logx.Logger
	lastVID int64
}

func New(store Store, log logx.Logger) *Source {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Source{store: store, log: log}
}

// Init positions the cursor at the store's current maximum so rows that
// already exist are never notified.
//
// A failing query leaves the cursor at 0. The next Poll then returns the
// whole table; this is the known fail-open behavior and is logged loudly.
func (s *Source) Init(ctx context.Context) int64 {
	max, err := s.store.MaxVID(ctx)
	if err != nil {
		s.lastVID = 0
		s.log.Error("cursor init failed, starting from 0 (next poll replays the whole table)", logx.Err(err))
		return 0
	}
	s.lastVID = max
	s.log.Info("cursor initialized", logx.Int64("vid", max))
	return max
}

// Poll returns every row inserted since the previous successful call, in
// ascending vid order, and advances the cursor to the highest vid returned.
// On error the cursor is left untouched so the batch is retried next time.
func (s *Source) Poll(ctx context.Context) ([]model.Event, error) {
	rows, err := s.store.EventsAfter(ctx, s.lastVID)
	if err != nil {
		return nil, fmt.Errorf("query events after vid %d: %w", s.lastVID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].VID < rows[j].VID })

	out := rows[:0]
	var prev int64
	for i, ev := range rows {
		// Drop anything at or behind the cursor and duplicate vids.
		if ev.VID <= s.lastVID || (i > 0 && ev.VID == prev) {
			prev = ev.VID
			continue
		}
		prev = ev.VID
		out = append(out, ev)
	}
	if dropped := len(rows) - len(out); dropped > 0 {
		s.log.Warn("store returned rows at or behind cursor", logx.Int("dropped", dropped), logx.Int64("cursor", s.lastVID))
	}
	if len(out) == 0 {
		return nil, nil
	}

	from := s.lastVID
	s.lastVID = out[len(out)-1].VID
	s.log.Info("new events", logx.Int("count", len(out)), logx.Int64("from_vid", from), logx.Int64("to_vid", s.lastVID))
	return out, nil
}

// Cursor returns the highest vid observed so far.
func (s *Source) Cursor() int64 { return s.lastVID }

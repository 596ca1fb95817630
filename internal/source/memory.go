package source

import (
	"context"
	"sort"
	"sync"

	"tokenbot/internal/model"
)

// Memory is an in-memory Store, exported as a test double for packages that
// drive a Source without Postgres (the watcher tests use it). Rows are kept
// sorted by vid.
type Memory struct {
	mu   sync.Mutex
	rows []model.Event

	// Err, when set, is returned by every query.
	Err error
}

// NewMemory returns a Memory holding rows.
func NewMemory(rows ...model.Event) *Memory {
	m := &Memory{}
	m.Insert(rows...)
	return m
}

// Insert appends rows, keeping vid order.
func (m *Memory) Insert(rows ...model.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, rows...)
	sort.SliceStable(m.rows, func(i, j int) bool { return m.rows[i].VID < m.rows[j].VID })
}

// SetErr makes subsequent queries fail with err (nil clears it).
func (m *Memory) SetErr(err error) {
	m.mu.Lock()
	m.Err = err
	m.mu.Unlock()
}

func (m *Memory) MaxVID(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	if len(m.rows) == 0 {
		return 0, nil
	}
	return m.rows[len(m.rows)-1].VID, nil
}

func (m *Memory) EventsAfter(_ context.Context, after int64) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	i := sort.Search(len(m.rows), func(i int) bool { return m.rows[i].VID > after })
	return append([]model.Event(nil), m.rows[i:]...), nil
}

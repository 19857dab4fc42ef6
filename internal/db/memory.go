package db

import (
	"github.com/sectrace/sectrace/internal/model"
)

// Memory is a database that stores data in memory.
type Memory struct {
	runs   map[uint]*model.Run
	events map[uint][]model.Event
	nextID uint
}

// NewInMemory creates a new in-memory database.
func NewInMemory() (Database, error) {
	return &Memory{
		runs:   make(map[uint]*model.Run),
		events: make(map[uint][]model.Event),
		nextID: 1,
	}, nil
}

// Connect connects to the database.
func (m *Memory) Connect() error {
	return nil
}

// CreateRun creates a new run record.
func (m *Memory) CreateRun(r *model.Run) error {
	if r.ID == 0 {
		r.ID = m.nextID
		m.nextID++
	}
	m.runs[r.ID] = r
	return nil
}

// CreateEvent appends an event to a run.
func (m *Memory) CreateEvent(e *model.Event) error {
	m.events[e.RunID] = append(m.events[e.RunID], *e)
	return nil
}

// Runs returns all recorded runs, newest first.
func (m *Memory) Runs() ([]model.Run, error) {
	runs := make([]model.Run, 0, len(m.runs))
	for id := m.nextID; id > 0; id-- {
		if r, ok := m.runs[id]; ok {
			runs = append(runs, *r)
		}
	}
	return runs, nil
}

// Events returns the events of a run, optionally filtered by kind.
// It returns ErrNotFound if the run does not exist.
func (m *Memory) Events(runID uint, kind string) ([]model.Event, error) {
	if _, ok := m.runs[runID]; !ok {
		return nil, model.ErrNotFound
	}
	if kind == "" {
		return m.events[runID], nil
	}
	var out []model.Event
	for _, e := range m.events[runID] {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out, nil
}

// Close closes the database.
func (m *Memory) Close() error {
	return nil
}

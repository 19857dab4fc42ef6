package db

import (
	"github.com/sectrace/sectrace/internal/model"
	"github.com/sectrace/sectrace/pkg/tracelog"
)

// EventRecorder persists every trace event into a Database, keyed to one run.
// It plugs into the trace log as a tracelog.Recorder.
type EventRecorder struct {
	db    Database
	runID uint
}

// NewEventRecorder creates the run record and returns a recorder feeding it.
func NewEventRecorder(database Database, run *model.Run) (*EventRecorder, error) {
	if err := database.CreateRun(run); err != nil {
		return nil, err
	}
	return &EventRecorder{db: database, runID: run.ID}, nil
}

// Record stores one event.
func (r *EventRecorder) Record(e tracelog.Event) error {
	return r.db.CreateEvent(&model.Event{
		RunID:       r.runID,
		Seq:         e.Seq,
		Kind:        string(e.Kind),
		RVA:         e.RVA,
		Page:        e.Page,
		Addr:        e.Addr,
		ModuleName:  e.Module,
		FuncName:    e.Func,
		Section:     e.Section,
		PrevSection: e.PrevSection,
		Leaf:        e.Leaf,
		Text:        e.Text,
	})
}

// Package db provides a database interface and implementations.
package db

import "github.com/sectrace/sectrace/internal/model"

// Database is the interface that wraps the basic database operations.
type Database interface {
	// Connect connects to the database.
	Connect() error

	// CreateRun creates a new run record.
	CreateRun(r *model.Run) error

	// CreateEvent appends an event to a run.
	CreateEvent(e *model.Event) error

	// Runs returns all recorded runs, newest first.
	Runs() ([]model.Run, error)

	// Events returns the events of a run, optionally filtered by kind.
	// It returns ErrNotFound if the run does not exist.
	Events(runID uint, kind string) ([]model.Event, error)

	// Close closes the database.
	Close() error
}

package db

import (
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/sectrace/sectrace/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Sqlite is a database that stores data in a sqlite database.
type Sqlite struct {
	URL string
	// Config
	BatchSize int

	db *gorm.DB
}

// NewSqlite creates a new Sqlite database.
func NewSqlite(path string, batchSize int) (Database, error) {
	if path == "" {
		return nil, fmt.Errorf("'path' is required")
	}
	return &Sqlite{
		URL:       path,
		BatchSize: batchSize,
	}, nil
}

// Connect connects to the database.
func (s *Sqlite) Connect() (err error) {
	s.db, err = gorm.Open(sqlite.Open(s.URL), &gorm.Config{
		CreateBatchSize:        s.BatchSize,
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to connect sqlite database: %w", err)
	}
	return s.db.AutoMigrate(
		&model.Run{},
		&model.Event{},
	)
}

// CreateRun creates a new run record.
func (s *Sqlite) CreateRun(r *model.Run) error {
	if result := s.db.Create(r); result.Error != nil {
		return result.Error
	}
	return nil
}

// CreateEvent appends an event to a run.
func (s *Sqlite) CreateEvent(e *model.Event) error {
	if result := s.db.Create(e); result.Error != nil {
		return result.Error
	}
	return nil
}

// Runs returns all recorded runs, newest first.
func (s *Sqlite) Runs() ([]model.Run, error) {
	var runs []model.Run
	if err := s.db.Order("id desc").Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// Events returns the events of a run, optionally filtered by kind.
// It returns ErrNotFound if the run does not exist.
func (s *Sqlite) Events(runID uint, kind string) ([]model.Event, error) {
	var run model.Run
	if err := s.db.First(&run, runID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	q := s.db.Where("run_id = ?", runID).Order("seq asc")
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var events []model.Event
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// Close closes the database.
func (s *Sqlite) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

// Package model contains the trace run models for the database.
package model

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("no run found")
)

// Run is the model for one trace invocation.
type Run struct {
	gorm.Model           // adds ID, created_at etc.
	Target     string    `json:"target,omitempty"`
	TracedName string    `json:"traced_name,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	Events     []Event   `json:"events,omitempty"`
}

// Event is the model for one trace log event.
type Event struct {
	gorm.Model
	RunID       uint   `gorm:"index" json:"run_id"`
	Seq         uint64 `json:"seq"`
	Kind        string `gorm:"index" json:"kind"`
	RVA         uint64 `json:"rva"`
	Page        uint64 `json:"page,omitempty"`
	Addr        uint64 `json:"addr,omitempty"`
	ModuleName  string `json:"module,omitempty"`
	FuncName    string `json:"func,omitempty"`
	Section     string `json:"section,omitempty"`
	PrevSection string `json:"prev_section,omitempty"`
	Leaf        uint32 `json:"leaf,omitempty"`
	Text        string `json:"text"`
}

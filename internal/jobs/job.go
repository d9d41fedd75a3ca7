// Package jobs tracks per-document analysis jobs and runs them on a
// bounded background worker pool.
package jobs

import (
	"time"

	"github.com/clauselens/clauselens/internal/analysis"
)

// Status is the lifecycle state of a job. Transitions only ever follow
// Pending → Processing → {Completed, Failed}; terminal states are sticky.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is the tracked unit of work for one uploaded document.
type Job struct {
	DocumentID   string
	Filename     string
	Enhance      bool
	Status       Status
	Progress     int
	CurrentStep  string
	StartedAt    time.Time
	EndedAt      *time.Time
	ErrorMessage string
	Result       *analysis.Result
}

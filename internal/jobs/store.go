package jobs

import (
	"errors"
	"sync"
	"time"

	"github.com/clauselens/clauselens/internal/analysis"
)

var (
	// ErrNotFound is returned for unknown document ids.
	ErrNotFound = errors.New("job not found")
	// ErrJobExists is returned when creating a job for an id that is already tracked.
	ErrJobExists = errors.New("job already exists for this document")
)

// Store is the process-wide map from document id to job state. Each job
// has its own lock, so updates to different documents never contend;
// readers always get a consistent snapshot, never a half-applied patch.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*entry

	now func() time.Time
}

type entry struct {
	mu  sync.Mutex
	job Job
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*entry),
		now:  time.Now,
	}
}

// Create registers a new job in Pending state. A second create for the
// same id is rejected with ErrJobExists regardless of the existing job's
// state; clients retry with a fresh upload (and a fresh id).
func (s *Store) Create(documentID, filename string, enhance bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[documentID]; ok {
		return ErrJobExists
	}
	s.jobs[documentID] = &entry{job: Job{
		DocumentID: documentID,
		Filename:   filename,
		Enhance:    enhance,
		Status:     StatusPending,
		StartedAt:  s.now().UTC(),
	}}
	return nil
}

// Restore registers an already-completed job, bypassing the normal
// Pending → Processing path. Used at startup to rehydrate the store from
// the durable archive so analyses survive a restart. A live job under
// the same id wins: ErrJobExists.
func (s *Store) Restore(documentID, filename string, result *analysis.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[documentID]; ok {
		return ErrJobExists
	}
	now := s.now().UTC()
	s.jobs[documentID] = &entry{job: Job{
		DocumentID:  documentID,
		Filename:    filename,
		Status:      StatusCompleted,
		Progress:    100,
		CurrentStep: "Analysis complete",
		StartedAt:   now,
		EndedAt:     &now,
		Result:      result,
	}}
	return nil
}

// Get returns a snapshot copy of the job. The Result pointer is shared
// but results are immutable once published.
func (s *Store) Get(documentID string) (Job, error) {
	e, err := s.entry(documentID)
	if err != nil {
		return Job{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job, nil
}

// CompletedResult returns the stored analysis result, or ErrNotFound if
// the document is unknown or has not completed.
func (s *Store) CompletedResult(documentID string) (*analysis.Result, error) {
	job, err := s.Get(documentID)
	if err != nil {
		return nil, err
	}
	if job.Status != StatusCompleted || job.Result == nil {
		return nil, ErrNotFound
	}
	return job.Result, nil
}

func (s *Store) entry(documentID string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.jobs[documentID]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// update applies fn under the job's lock.
func (s *Store) update(documentID string, fn func(*Job)) error {
	e, err := s.entry(documentID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.job)
	return nil
}

// SetProcessing moves a Pending job to Processing. Called the instant
// the background task picks the job up.
func (s *Store) SetProcessing(documentID, step string) error {
	return s.update(documentID, func(j *Job) {
		if j.Status != StatusPending {
			return
		}
		j.Status = StatusProcessing
		j.CurrentStep = step
	})
}

// SetProgress records the label and progress of the stage about to run.
// Progress never decreases and terminal jobs are left untouched.
func (s *Store) SetProgress(documentID string, progress int, step string) error {
	return s.update(documentID, func(j *Job) {
		if j.Status.Terminal() {
			return
		}
		if progress > j.Progress {
			j.Progress = progress
		}
		j.CurrentStep = step
	})
}

// Complete transitions a Processing job to Completed with its result.
func (s *Store) Complete(documentID string, result *analysis.Result) error {
	return s.update(documentID, func(j *Job) {
		if j.Status.Terminal() {
			return
		}
		now := s.now().UTC()
		j.Status = StatusCompleted
		j.Progress = 100
		j.CurrentStep = "Analysis complete"
		j.EndedAt = &now
		j.Result = result
	})
}

// Fail transitions a job to Failed with a sanitized message.
func (s *Store) Fail(documentID, message string) error {
	return s.update(documentID, func(j *Job) {
		if j.Status.Terminal() {
			return
		}
		now := s.now().UTC()
		j.Status = StatusFailed
		j.CurrentStep = "Analysis failed"
		j.ErrorMessage = message
		j.EndedAt = &now
	})
}

// MergeEnhancement attaches second-phase expert output to an already
// Completed job. The stored result is replaced by an enriched copy so
// snapshots handed out earlier keep their value; fields only ever grow.
func (s *Store) MergeEnhancement(documentID string, enh *analysis.Enhancement) error {
	return s.update(documentID, func(j *Job) {
		if j.Status != StatusCompleted || j.Result == nil {
			return
		}
		j.Result = j.Result.WithEnhancement(enh)
	})
}

// Package memory provides in-memory stores for development/testing.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/qa-docgen/internal/qadoc"
)

// Store errors shared with the API layer.
var (
	ErrJobNotFound      = errors.New("job not found")
	ErrTaskNotFound     = errors.New("task not found")
	ErrDocumentNotFound = errors.New("document not found")
)

// JobStore implements qadoc.JobStore with process-local maps.
type JobStore struct {
	mu        sync.RWMutex
	jobs      map[string]qadoc.Job
	tasks     map[string][]qadoc.Task
	documents map[string]qadoc.Document
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:      make(map[string]qadoc.Job),
		tasks:     make(map[string][]qadoc.Task),
		documents: make(map[string]qadoc.Document),
	}
}

// CreateJob stores a new job in pending status.
func (s *JobStore) CreateJob(_ context.Context, job qadoc.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (qadoc.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return qadoc.Job{}, ErrJobNotFound
	}
	return job, nil
}

// UpdateJobStatus updates the status and counters for a job. Terminal
// statuses are sticky: once a job finishes, further updates are rejected.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status qadoc.JobStatus,
	errText string,
	counters qadoc.JobCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status.Terminal() {
		return errors.New("job already terminal")
	}
	job.Status = status
	job.ErrorText = errText
	job.Counters = counters
	now := time.Now().UTC()
	if status == qadoc.JobStatusRunning && job.Started == nil {
		job.Started = pointerTime(now)
	}
	if status.Terminal() {
		job.Finished = pointerTime(now)
	}
	s.jobs[jobID] = job
	return nil
}

// CreateTasks appends the job's task rows.
func (s *JobStore) CreateTasks(_ context.Context, tasks []qadoc.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, task := range tasks {
		if _, ok := s.jobs[task.JobID]; !ok {
			return ErrJobNotFound
		}
		s.tasks[task.JobID] = append(s.tasks[task.JobID], task)
	}
	return nil
}

// UpdateTask replaces the stored row for the task.
func (s *JobStore) UpdateTask(_ context.Context, task qadoc.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.tasks[task.JobID]
	for i, row := range rows {
		if row.ID == task.ID {
			rows[i] = task
			return nil
		}
	}
	return ErrTaskNotFound
}

// ListTasks returns the job's tasks in submission order.
func (s *JobStore) ListTasks(_ context.Context, jobID string) ([]qadoc.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.tasks[jobID]
	out := make([]qadoc.Task, len(rows))
	copy(out, rows)
	return out, nil
}

// SaveDocument stores the job's assembled document. Documents are written
// exactly once, at terminal aggregation.
func (s *JobStore) SaveDocument(_ context.Context, doc qadoc.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.documents[doc.JobID]; exists {
		return errors.New("document already exists")
	}
	s.documents[doc.JobID] = doc
	return nil
}

// GetDocument fetches the job's document.
func (s *JobStore) GetDocument(_ context.Context, jobID string) (qadoc.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[jobID]
	if !ok {
		return qadoc.Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

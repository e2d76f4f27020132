// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/qa-docgen/internal/qadoc"
)

// Store errors surfaced to the API layer.
var (
	ErrJobNotFound      = errors.New("job not found")
	ErrTaskNotFound     = errors.New("task not found")
	ErrDocumentNotFound = errors.New("document not found")
)

// JobStoreConfig controls the Postgres connection pool.
type JobStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// JobStore persists jobs, tasks, and documents in Postgres.
type JobStore struct {
	pool pgxPool
}

// NewJobStore creates a Postgres-backed JobStore using the provided config.
func NewJobStore(ctx context.Context, cfg JobStoreConfig) (*JobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &JobStore{pool: pool}, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewJobStoreWithPool(pool pgxPool) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateJob inserts a new job row.
func (s *JobStore) CreateJob(ctx context.Context, job qadoc.Job) error {
	params, err := json.Marshal(job.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	query := `
		INSERT INTO jobs (id, status, submitted_at, parameters)
		VALUES ($1, $2, $3, $4);
	`
	if _, err := s.pool.Exec(ctx, query, job.ID, job.Status, job.Submitted, params); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob retrieves a single job by its ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (qadoc.Job, error) {
	query := `
		SELECT id, status, submitted_at, started_at, finished_at, error_text,
		       parameters, tasks_succeeded, tasks_failed, tasks_cancelled, retries
		FROM jobs
		WHERE id = $1;
	`
	var (
		job       qadoc.Job
		errText   *string
		paramsRaw []byte
	)
	err := s.pool.QueryRow(ctx, query, jobID).Scan(
		&job.ID,
		&job.Status,
		&job.Submitted,
		&job.Started,
		&job.Finished,
		&errText,
		&paramsRaw,
		&job.Counters.TasksSucceeded,
		&job.Counters.TasksFailed,
		&job.Counters.TasksCancelled,
		&job.Counters.Retries,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return qadoc.Job{}, ErrJobNotFound
		}
		return qadoc.Job{}, fmt.Errorf("get job: %w", err)
	}
	if errText != nil {
		job.ErrorText = *errText
	}
	if len(paramsRaw) > 0 {
		if err := json.Unmarshal(paramsRaw, &job.Parameters); err != nil {
			return qadoc.Job{}, fmt.Errorf("unmarshal parameters: %w", err)
		}
	}
	return job, nil
}

// UpdateJobStatus updates the status, error text, and counters for a job.
// Terminal rows are never updated again.
func (s *JobStore) UpdateJobStatus(
	ctx context.Context,
	jobID string,
	status qadoc.JobStatus,
	errText string,
	counters qadoc.JobCounters,
) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    error_text = NULLIF($2, ''),
		    tasks_succeeded = $3,
		    tasks_failed = $4,
		    tasks_cancelled = $5,
		    retries = $6,
		    started_at = COALESCE(started_at, CASE WHEN $1 = 'running' THEN now() END),
		    finished_at = CASE WHEN $1 IN ('completed', 'completed_with_errors', 'failed', 'cancelled')
		                       THEN now() ELSE finished_at END
		WHERE id = $7
		  AND status NOT IN ('completed', 'completed_with_errors', 'failed', 'cancelled');
	`
	res, err := s.pool.Exec(ctx, query,
		status, errText,
		counters.TasksSucceeded, counters.TasksFailed, counters.TasksCancelled, counters.Retries,
		jobID,
	)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// CreateTasks inserts the job's task rows.
func (s *JobStore) CreateTasks(ctx context.Context, tasks []qadoc.Task) error {
	query := `
		INSERT INTO tasks (id, job_id, url, status, attempts, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	for _, task := range tasks {
		if _, err := s.pool.Exec(ctx, query,
			task.ID, task.JobID, task.URL, task.Status, task.Attempts, task.Submitted,
		); err != nil {
			return fmt.Errorf("insert task %s: %w", task.ID, err)
		}
	}
	return nil
}

// UpdateTask replaces the mutable columns of a task row.
func (s *JobStore) UpdateTask(ctx context.Context, task qadoc.Task) error {
	lastErr, err := marshalNullable(task.LastError)
	if err != nil {
		return fmt.Errorf("marshal last error: %w", err)
	}
	cases, err := marshalNullable(task.TestCases)
	if err != nil {
		return fmt.Errorf("marshal test cases: %w", err)
	}
	query := `
		UPDATE tasks
		SET status = $1,
		    attempts = $2,
		    last_error = $3,
		    snapshot_id = NULLIF($4, ''),
		    page_title = NULLIF($5, ''),
		    test_cases = $6,
		    started_at = $7,
		    finished_at = $8
		WHERE id = $9;
	`
	res, err := s.pool.Exec(ctx, query,
		task.Status, task.Attempts, lastErr,
		task.SnapshotID, task.PageTitle, cases,
		task.Started, task.Finished,
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// ListTasks returns the job's tasks in submission order.
func (s *JobStore) ListTasks(ctx context.Context, jobID string) ([]qadoc.Task, error) {
	query := `
		SELECT id, job_id, url, status, attempts, last_error,
		       snapshot_id, page_title, test_cases, submitted_at, started_at, finished_at
		FROM tasks
		WHERE job_id = $1
		ORDER BY submitted_at ASC, id ASC;
	`
	rows, err := s.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []qadoc.Task
	for rows.Next() {
		var (
			task       qadoc.Task
			lastErrRaw []byte
			snapshotID *string
			pageTitle  *string
			casesRaw   []byte
		)
		err := rows.Scan(
			&task.ID,
			&task.JobID,
			&task.URL,
			&task.Status,
			&task.Attempts,
			&lastErrRaw,
			&snapshotID,
			&pageTitle,
			&casesRaw,
			&task.Submitted,
			&task.Started,
			&task.Finished,
		)
		if err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		if snapshotID != nil {
			task.SnapshotID = *snapshotID
		}
		if pageTitle != nil {
			task.PageTitle = *pageTitle
		}
		if len(lastErrRaw) > 0 {
			var taskErr qadoc.TaskError
			if err := json.Unmarshal(lastErrRaw, &taskErr); err != nil {
				return nil, fmt.Errorf("unmarshal last error: %w", err)
			}
			task.LastError = &taskErr
		}
		if len(casesRaw) > 0 {
			if err := json.Unmarshal(casesRaw, &task.TestCases); err != nil {
				return nil, fmt.Errorf("unmarshal test cases: %w", err)
			}
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// SaveDocument stores the job's assembled document as a single JSONB row.
func (s *JobStore) SaveDocument(ctx context.Context, doc qadoc.Document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	query := `
		INSERT INTO documents (job_id, generated_at, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, query, doc.JobID, doc.GeneratedAt, payload); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// GetDocument fetches the job's document.
func (s *JobStore) GetDocument(ctx context.Context, jobID string) (qadoc.Document, error) {
	query := `
		SELECT payload
		FROM documents
		WHERE job_id = $1;
	`
	var payload []byte
	if err := s.pool.QueryRow(ctx, query, jobID).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return qadoc.Document{}, ErrDocumentNotFound
		}
		return qadoc.Document{}, fmt.Errorf("get document: %w", err)
	}
	var doc qadoc.Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return qadoc.Document{}, fmt.Errorf("unmarshal document: %w", err)
	}
	return doc, nil
}

func marshalNullable(v any) ([]byte, error) {
	switch val := v.(type) {
	case *qadoc.TaskError:
		if val == nil {
			return nil, nil
		}
	case []qadoc.TestCase:
		if len(val) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

// Package scheduler fans a job's URL list out into concurrent per-URL tasks
// and drives each one through crawl, analysis and persistence.
package scheduler

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/qa-docgen/internal/assembler"
	"github.com/JakeFAU/qa-docgen/internal/metrics"
	"github.com/JakeFAU/qa-docgen/internal/qadoc"
)

// Config controls Scheduler behavior.
type Config struct {
	Workers        int
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	Topic          string
}

// Scheduler executes one job at a time: a bounded worker pool runs the job's
// tasks concurrently, each task independently acquiring a rate-limiter permit
// and owning its own retry loop. Task failures never propagate across tasks.
type Scheduler struct {
	jobStore  qadoc.JobStore
	snapshots qadoc.SnapshotProvider
	analyzer  qadoc.Analyzer
	limiter   qadoc.Limiter
	publisher qadoc.Publisher
	clock     qadoc.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Scheduler.
func New(
	jobStore qadoc.JobStore,
	snapshots qadoc.SnapshotProvider,
	analyzer qadoc.Analyzer,
	limiter qadoc.Limiter,
	publisher qadoc.Publisher,
	clock qadoc.Clock,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 250 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 5 * time.Second
	}
	return &Scheduler{
		jobStore:  jobStore,
		snapshots: snapshots,
		analyzer:  analyzer,
		limiter:   limiter,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run drives the job to a terminal status. It returns the terminal status;
// the error return covers store failures only, never task outcomes.
func (s *Scheduler) Run(ctx context.Context, jobID string) (qadoc.JobStatus, error) {
	job, err := s.jobStore.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.Status.Terminal() {
		return job.Status, nil
	}
	defer s.limiter.Forget(jobID)

	if err := s.jobStore.UpdateJobStatus(ctx, jobID, qadoc.JobStatusRunning, "", qadoc.JobCounters{}); err != nil {
		return "", err
	}

	tasks, err := s.jobStore.ListTasks(ctx, jobID)
	if err != nil {
		return "", err
	}

	results := make([]qadoc.Task, len(tasks))
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Workers)
	for i, task := range tasks {
		if task.Status.Terminal() {
			results[i] = task
			continue
		}
		g.Go(func() error {
			results[i] = s.runTask(ctx, job, task)
			return nil
		})
	}
	// Wait never returns an error: task outcomes live in results.
	_ = g.Wait()

	return s.finalize(ctx, job, results)
}

// runTask owns the attempt loop for one URL. Status transitions are written
// through to the store as they happen so the status endpoint always reflects
// the latest known state.
func (s *Scheduler) runTask(ctx context.Context, job qadoc.Job, task qadoc.Task) qadoc.Task {
	logger := s.logger.With(zap.String("job_id", job.ID), zap.String("url", task.URL))

	if ctx.Err() != nil {
		return s.cancelTask(task)
	}

	now := s.clock.Now()
	task.Status = qadoc.TaskStatusRunning
	task.Started = &now
	s.persistTask(ctx, task)

	wait := s.newBackoff()
	for attempt := 1; ; attempt++ {
		task.Attempts = attempt
		err := s.attempt(ctx, job, &task)
		if err == nil {
			task.Status = qadoc.TaskStatusSucceeded
			task.LastError = nil
			break
		}
		if ctx.Err() != nil {
			return s.cancelTask(task)
		}

		taskErr := qadoc.Normalize(err)
		task.LastError = &taskErr

		if qadoc.ClassifyAttempt(err) == qadoc.AttemptFatal {
			logger.Warn("task failed permanently",
				zap.String("kind", string(taskErr.Kind)),
				zap.String("message", taskErr.Message),
				zap.Int("attempt", attempt),
			)
			task.Status = qadoc.TaskStatusFailed
			break
		}
		if attempt >= s.cfg.MaxAttempts {
			logger.Warn("task exhausted attempts",
				zap.String("kind", string(taskErr.Kind)),
				zap.Int("attempts", attempt),
			)
			task.Status = qadoc.TaskStatusFailed
			break
		}

		task.Status = qadoc.TaskStatusRetrying
		s.persistTask(ctx, task)
		metrics.IncTaskRetry()
		logger.Info("task attempt failed, backing off",
			zap.String("kind", string(taskErr.Kind)),
			zap.Int("attempt", attempt),
		)
		if !s.sleep(ctx, wait.NextBackOff()) {
			return s.cancelTask(task)
		}
		task.Status = qadoc.TaskStatusRunning
		s.persistTask(ctx, task)
	}

	finished := s.clock.Now()
	task.Finished = &finished
	s.persistTask(ctx, task)
	metrics.IncTask(string(task.Status))
	return task
}

// attempt performs one crawl+analyze pass. It mutates the task's result
// fields only on success.
func (s *Scheduler) attempt(ctx context.Context, job qadoc.Job, task *qadoc.Task) error {
	if err := s.limiter.Acquire(ctx, job.ID, job.Parameters.RateLimitPerMinute); err != nil {
		return err
	}
	snapshot, err := s.snapshots.Snapshot(ctx, qadoc.FetchRequest{
		JobID: job.ID,
		URL:   task.URL,
		Auth:  job.Parameters.Auth,
	})
	if err != nil {
		return err
	}
	cases, err := s.analyzer.Analyze(ctx, snapshot)
	if err != nil {
		return err
	}
	task.SnapshotID = snapshot.ID
	task.PageTitle = snapshot.Title
	task.TestCases = cases
	return nil
}

func (s *Scheduler) cancelTask(task qadoc.Task) qadoc.Task {
	if task.Status.Terminal() {
		return task
	}
	now := s.clock.Now()
	task.Status = qadoc.TaskStatusCancelled
	task.Finished = &now
	// The run context is gone; persist with a fresh one.
	s.persistTask(context.Background(), task)
	metrics.IncTask(string(task.Status))
	return task
}

// finalize folds terminal task states into the job status, assembles the
// document exactly once, and publishes the completion event.
func (s *Scheduler) finalize(ctx context.Context, job qadoc.Job, tasks []qadoc.Task) (qadoc.JobStatus, error) {
	counters := qadoc.JobCounters{}
	for _, task := range tasks {
		switch task.Status {
		case qadoc.TaskStatusSucceeded:
			counters.TasksSucceeded++
		case qadoc.TaskStatusCancelled:
			counters.TasksCancelled++
		default:
			counters.TasksFailed++
		}
		if task.Attempts > 1 {
			counters.Retries += task.Attempts - 1
		}
	}

	status := deriveFinalStatus(ctx, counters)
	errText := ""
	if status == qadoc.JobStatusFailed {
		errText = "all tasks failed"
	}

	doc := assembler.Build(job, tasks, s.clock)
	// Persistence happens outside the (possibly cancelled) run context.
	storeCtx := ctx
	if storeCtx.Err() != nil {
		storeCtx = context.Background()
	}
	if err := s.jobStore.SaveDocument(storeCtx, doc); err != nil {
		return "", err
	}
	if err := s.jobStore.UpdateJobStatus(storeCtx, job.ID, status, errText, counters); err != nil {
		return "", err
	}
	metrics.IncJob(string(status))

	s.publishCompletion(storeCtx, job.ID, status, counters, doc.TotalCases)
	s.logger.Info("job finished",
		zap.String("job_id", job.ID),
		zap.String("status", string(status)),
		zap.Int("succeeded", counters.TasksSucceeded),
		zap.Int("failed", counters.TasksFailed),
		zap.Int("cancelled", counters.TasksCancelled),
	)
	return status, nil
}

func deriveFinalStatus(ctx context.Context, counters qadoc.JobCounters) qadoc.JobStatus {
	switch {
	case ctx.Err() != nil || counters.TasksCancelled > 0:
		return qadoc.JobStatusCancelled
	case counters.TasksFailed == 0:
		return qadoc.JobStatusCompleted
	case counters.TasksSucceeded > 0:
		return qadoc.JobStatusCompletedWithErrors
	default:
		return qadoc.JobStatusFailed
	}
}

func (s *Scheduler) publishCompletion(ctx context.Context, jobID string, status qadoc.JobStatus, counters qadoc.JobCounters, totalCases int) {
	if s.publisher == nil || s.cfg.Topic == "" {
		return
	}
	payload := map[string]any{
		"job_id":          jobID,
		"status":          string(status),
		"tasks_succeeded": counters.TasksSucceeded,
		"tasks_failed":    counters.TasksFailed,
		"total_cases":     totalCases,
		"timestamp":       s.clock.Now().Format(time.RFC3339),
	}
	if _, err := s.publisher.Publish(ctx, s.cfg.Topic, payload); err != nil {
		s.logger.Warn("completion publish failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (s *Scheduler) persistTask(ctx context.Context, task qadoc.Task) {
	if err := s.jobStore.UpdateTask(ctx, task); err != nil {
		s.logger.Error("task update failed",
			zap.String("task_id", task.ID),
			zap.String("status", string(task.Status)),
			zap.Error(err),
		)
	}
}

func (s *Scheduler) newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.BackoffInitial
	b.MaxInterval = s.cfg.BackoffMax
	b.MaxElapsedTime = 0
	return b
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

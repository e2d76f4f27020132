package scheduler

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/qa-docgen/internal/qadoc"
)

// Runner consumes submitted jobs from the queue and executes them on a pool
// of job slots. It also owns the cancellation registry: cancelling a job
// aborts its in-flight work and marks jobs still waiting in the queue.
type Runner struct {
	queue     qadoc.Queue
	jobStore  qadoc.JobStore
	scheduler *Scheduler
	clock     qadoc.Clock
	logger    *zap.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewRunner constructs a Runner.
func NewRunner(queue qadoc.Queue, jobStore qadoc.JobStore, scheduler *Scheduler, clock qadoc.Clock, logger *zap.Logger) *Runner {
	return &Runner{
		queue:     queue,
		jobStore:  jobStore,
		scheduler: scheduler,
		clock:     clock,
		logger:    logger,
		active:    make(map[string]context.CancelFunc),
	}
}

// Run blocks, consuming queue items until the context finishes. Start one
// goroutine per desired concurrent job.
func (r *Runner) Run(ctx context.Context) {
	for {
		item, err := r.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		r.processJob(ctx, item)
	}
}

// Enqueue proxies to the underlying queue.
func (r *Runner) Enqueue(ctx context.Context, item qadoc.QueueItem) error {
	if err := r.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Cancel aborts a job. In-flight jobs have their run context cancelled;
// queued jobs are marked terminal in the store so the runner skips them on
// dequeue. Already-terminal jobs are left untouched.
func (r *Runner) Cancel(ctx context.Context, jobID string) error {
	r.mu.Lock()
	cancel, running := r.active[jobID]
	r.mu.Unlock()
	if running {
		cancel()
		return nil
	}

	job, err := r.jobStore.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %s already %s", jobID, job.Status)
	}
	if err := r.cancelPendingTasks(ctx, jobID); err != nil {
		return err
	}
	return r.jobStore.UpdateJobStatus(ctx, jobID, qadoc.JobStatusCancelled, "cancelled via API", qadoc.JobCounters{})
}

func (r *Runner) processJob(ctx context.Context, item qadoc.QueueItem) {
	job, err := r.jobStore.GetJob(ctx, item.JobID)
	if err != nil {
		r.logger.Error("job lookup failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	if job.Status.Terminal() {
		r.logger.Info("skipping terminal job", zap.String("job_id", item.JobID), zap.String("status", string(job.Status)))
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.active[item.JobID] = cancel
	r.mu.Unlock()
	defer func() {
		cancel()
		r.mu.Lock()
		delete(r.active, item.JobID)
		r.mu.Unlock()
	}()

	status, err := r.scheduler.Run(jobCtx, item.JobID)
	if err != nil {
		r.logger.Error("job run failed", zap.String("job_id", item.JobID), zap.Error(err))
		if updateErr := r.jobStore.UpdateJobStatus(ctx, item.JobID, qadoc.JobStatusFailed, err.Error(), qadoc.JobCounters{}); updateErr != nil {
			r.logger.Error("job status update failed", zap.String("job_id", item.JobID), zap.Error(updateErr))
		}
		return
	}
	r.logger.Debug("job processed", zap.String("job_id", item.JobID), zap.String("status", string(status)))
}

func (r *Runner) cancelPendingTasks(ctx context.Context, jobID string) error {
	tasks, err := r.jobStore.ListTasks(ctx, jobID)
	if err != nil {
		return err
	}
	now := r.clock.Now()
	for _, task := range tasks {
		if task.Status.Terminal() {
			continue
		}
		task.Status = qadoc.TaskStatusCancelled
		task.Finished = &now
		if err := r.jobStore.UpdateTask(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

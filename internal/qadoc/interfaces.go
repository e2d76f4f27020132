package qadoc

import (
	"context"
	"io"
	"time"
)

// JobStore persists job, task and document state.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errText string, counters JobCounters) error
	CreateTasks(ctx context.Context, tasks []Task) error
	UpdateTask(ctx context.Context, task Task) error
	ListTasks(ctx context.Context, jobID string) ([]Task, error)
	SaveDocument(ctx context.Context, doc Document) error
	GetDocument(ctx context.Context, jobID string) (Document, error)
}

// SnapshotCache is the best-effort page snapshot cache. Get never returns an
// expired entry; implementations must be safe for concurrent use.
type SnapshotCache interface {
	Get(ctx context.Context, key string) (PageSnapshot, bool)
	Put(ctx context.Context, key string, snapshot PageSnapshot, ttl time.Duration)
}

// Fetcher drives the browser engine for one URL and returns the raw capture.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// SnapshotProvider returns a finished page snapshot for a URL, live or
// cached, with the screenshot already persisted.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, request FetchRequest) (PageSnapshot, error)
}

// FetchRequest captures everything needed to crawl one URL.
type FetchRequest struct {
	JobID string
	URL   string
	Auth  *AuthConfig
}

// FetchResponse is the raw result of a live crawl, before screenshot
// persistence and caching.
type FetchResponse struct {
	Snapshot   PageSnapshot
	Screenshot []byte
	Duration   time.Duration
}

// Analyzer turns a page snapshot into structured test cases.
type Analyzer interface {
	Analyze(ctx context.Context, snapshot PageSnapshot) ([]TestCase, error)
}

// Limiter is the per-job admission controller for outbound requests.
type Limiter interface {
	Acquire(ctx context.Context, jobID string, rpm int) error
	Forget(jobID string)
}

// BlobStore writes raw artifacts (screenshots) and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for submitted jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Params    JobParameters
	Submitted int64
}

// Hasher computes digests for cache keys and artifact paths.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job/task/snapshot IDs.
type IDGenerator interface {
	NewID() (string, error)
}

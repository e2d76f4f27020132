// Package qadoc defines core types shared across subsystems.
package qadoc

import (
	"time"
)

// JobStatus represents the lifecycle state of a documentation job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending             JobStatus = "pending"
	JobStatusRunning             JobStatus = "running"
	JobStatusCompleted           JobStatus = "completed"
	JobStatusCompletedWithErrors JobStatus = "completed_with_errors"
	JobStatusFailed              JobStatus = "failed"
	JobStatusCancelled           JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusCompletedWithErrors, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// TaskStatus represents the lifecycle state of a single (job, URL) task.
type TaskStatus string

// Task status values. A task moves queued -> running -> terminal, with
// retrying -> queued cycles bounded by the configured attempt limit.
const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusRetrying  TaskStatus = "retrying"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the task status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusSucceeded, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// AuthType identifies the credential strategy used while crawling.
type AuthType string

// Supported credential strategies.
const (
	AuthTypeBasic        AuthType = "basic"
	AuthTypeSessionToken AuthType = "session_token"
)

// TokenKind says how a session token is injected before navigation.
type TokenKind string

// Supported token injection mechanisms.
const (
	TokenKindCookie TokenKind = "cookie"
	TokenKindBearer TokenKind = "bearer"
)

// AuthConfig carries opaque crawl credentials supplied by the client.
type AuthConfig struct {
	Type       AuthType  `json:"auth_type"`
	Username   string    `json:"username,omitempty"`
	Password   string    `json:"password,omitempty"`
	TokenKind  TokenKind `json:"token_type,omitempty"`
	TokenName  string    `json:"token_name,omitempty"`
	TokenValue string    `json:"token_value,omitempty"`
}

// JobParameters captures the per-job knobs requested by the client.
type JobParameters struct {
	URLs               []string    `json:"urls"`
	Auth               *AuthConfig `json:"auth_config,omitempty"`
	RateLimitPerMinute int         `json:"rate_limit_requests_per_minute,omitempty"`
}

// Job represents the metadata persisted for each submitted batch.
type Job struct {
	ID         string        `json:"id"`
	Status     JobStatus     `json:"status"`
	Submitted  time.Time     `json:"submitted_at"`
	Started    *time.Time    `json:"started_at,omitempty"`
	Finished   *time.Time    `json:"finished_at,omitempty"`
	ErrorText  string        `json:"error_text,omitempty"`
	Parameters JobParameters `json:"parameters"`
	Counters   JobCounters   `json:"counters"`
}

// JobCounters tracks per-job task outcomes.
type JobCounters struct {
	TasksSucceeded int `json:"tasks_succeeded"`
	TasksFailed    int `json:"tasks_failed"`
	TasksCancelled int `json:"tasks_cancelled"`
	Retries        int `json:"retries"`
}

// TaskError is the normalized (kind, message) pair recorded for a failed
// attempt. Raw errors never reach the job store.
type TaskError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Task is the unit of work for one URL within a job.
type Task struct {
	ID         string     `json:"id"`
	JobID      string     `json:"job_id"`
	URL        string     `json:"url"`
	Status     TaskStatus `json:"status"`
	Attempts   int        `json:"attempts"`
	LastError  *TaskError `json:"last_error,omitempty"`
	SnapshotID string     `json:"snapshot_id,omitempty"`
	PageTitle  string     `json:"page_title,omitempty"`
	TestCases  []TestCase `json:"test_cases,omitempty"`
	Submitted  time.Time  `json:"submitted_at"`
	Started    *time.Time `json:"started_at,omitempty"`
	Finished   *time.Time `json:"finished_at,omitempty"`
}

// ElementType classifies extracted UI elements.
type ElementType string

// Element types recognized by the crawler. Anything else is reported as a
// general container.
const (
	ElementButton        ElementType = "button"
	ElementInputText     ElementType = "input_text"
	ElementInputPassword ElementType = "input_password"
	ElementInputEmail    ElementType = "input_email"
	ElementInputNumber   ElementType = "input_number"
	ElementInputCheckbox ElementType = "input_checkbox"
	ElementInputRadio    ElementType = "input_radio"
	ElementSelect        ElementType = "select_dropdown"
	ElementTextarea      ElementType = "textarea"
	ElementLink          ElementType = "link"
	ElementForm          ElementType = "form"
	ElementImage         ElementType = "image"
	ElementHeading       ElementType = "heading"
	ElementParagraph     ElementType = "paragraph"
	ElementList          ElementType = "list"
	ElementTable         ElementType = "table"
	ElementLabel         ElementType = "label"
	ElementIFrame        ElementType = "iframe"
	ElementVideo         ElementType = "video"
	ElementContainer     ElementType = "general_container"
)

// UIElement is one extracted node from the rendered DOM.
type UIElement struct {
	ID          string            `json:"element_id"`
	Type        ElementType       `json:"element_type"`
	Selector    string            `json:"selector"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	VisibleText string            `json:"visible_text,omitempty"`
	Interactive bool              `json:"interactive"`
}

// PageSnapshot is the captured UI-element data for a URL at a point in time.
// Immutable once written; a fresher capture supersedes it when the cache
// entry expires.
type PageSnapshot struct {
	ID            string      `json:"id"`
	URL           string      `json:"url"`
	Title         string      `json:"title,omitempty"`
	Elements      []UIElement `json:"elements"`
	ScreenshotURI string      `json:"screenshot_uri,omitempty"`
	CapturedAt    time.Time   `json:"captured_at"`
}

// TestCategory is the fixed classification for generated test cases.
type TestCategory string

// The four supported categories. The analyzer rejects anything else.
const (
	CategoryFunctional    TestCategory = "functional"
	CategoryUsability     TestCategory = "usability"
	CategoryEdgeCase      TestCategory = "edge_case"
	CategoryAccessibility TestCategory = "accessibility_check"
)

// Categories lists all categories in their canonical document order.
func Categories() []TestCategory {
	return []TestCategory{
		CategoryFunctional,
		CategoryUsability,
		CategoryEdgeCase,
		CategoryAccessibility,
	}
}

// ValidCategory reports whether c is one of the fixed categories.
func ValidCategory(c TestCategory) bool {
	switch c {
	case CategoryFunctional, CategoryUsability, CategoryEdgeCase, CategoryAccessibility:
		return true
	default:
		return false
	}
}

// TestPriority orders test cases inside a category.
type TestPriority string

// Priority levels.
const (
	PriorityHigh   TestPriority = "high"
	PriorityMedium TestPriority = "medium"
	PriorityLow    TestPriority = "low"
)

// TestStep is one ordered action/expectation pair in a test case.
type TestStep struct {
	Number         int    `json:"step_number"`
	Action         string `json:"action"`
	ExpectedResult string `json:"expected_result"`
}

// TestCase is a single generated QA test case. Immutable once attached to a
// task.
type TestCase struct {
	ID             string       `json:"test_case_id"`
	Title          string       `json:"test_case_title"`
	Category       TestCategory `json:"category"`
	Priority       TestPriority `json:"priority"`
	Description    string       `json:"description"`
	Preconditions  []string     `json:"preconditions,omitempty"`
	Steps          []TestStep   `json:"steps"`
	RelatedElement string       `json:"related_element_id,omitempty"`
}

// PageSection groups one succeeded task's test cases by category for the
// final document.
type PageSection struct {
	URL        string                      `json:"url"`
	Title      string                      `json:"title,omitempty"`
	SnapshotID string                      `json:"snapshot_id,omitempty"`
	Cases      map[TestCategory][]TestCase `json:"test_cases"`
}

// Document is the job-level aggregate built once all tasks are terminal.
type Document struct {
	JobID       string        `json:"job_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	Pages       []PageSection `json:"pages"`
	TotalCases  int           `json:"total_test_cases"`
}

// JobResult is returned by the API status endpoint.
type JobResult struct {
	Job   Job    `json:"job"`
	Tasks []Task `json:"tasks"`
}

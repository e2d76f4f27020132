package assembler

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/qa-docgen/internal/qadoc"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func testJob() qadoc.Job {
	return qadoc.Job{
		ID: "job-1",
		Parameters: qadoc.JobParameters{
			URLs: []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"},
		},
	}
}

func succeededTask(url, snapshotID string, cases ...qadoc.TestCase) qadoc.Task {
	return qadoc.Task{
		JobID:      "job-1",
		URL:        url,
		Status:     qadoc.TaskStatusSucceeded,
		SnapshotID: snapshotID,
		TestCases:  cases,
	}
}

func tc(id string, category qadoc.TestCategory, priority qadoc.TestPriority) qadoc.TestCase {
	return qadoc.TestCase{
		ID:       id,
		Title:    "case " + id,
		Category: category,
		Priority: priority,
		Steps:    []qadoc.TestStep{{Number: 1, Action: "do", ExpectedResult: "done"}},
	}
}

func TestBuild_PagesFollowSubmissionOrder(t *testing.T) {
	t.Parallel()

	job := testJob()
	clock := fixedClock{now: time.Unix(2000, 0).UTC()}

	// Tasks finish out of order; pages must not.
	tasks := []qadoc.Task{
		succeededTask("https://example.com/c", "snap-c"),
		succeededTask("https://example.com/a", "snap-a"),
		succeededTask("https://example.com/b", "snap-b"),
	}

	doc := Build(job, tasks, clock)
	require.Len(t, doc.Pages, 3)
	require.Equal(t, "https://example.com/a", doc.Pages[0].URL)
	require.Equal(t, "https://example.com/b", doc.Pages[1].URL)
	require.Equal(t, "https://example.com/c", doc.Pages[2].URL)
	require.Equal(t, clock.now, doc.GeneratedAt)
}

func TestBuild_OnlySucceededTasksContribute(t *testing.T) {
	t.Parallel()

	job := testJob()
	tasks := []qadoc.Task{
		succeededTask("https://example.com/a", "snap-a", tc("TC-1", qadoc.CategoryFunctional, qadoc.PriorityHigh)),
		{URL: "https://example.com/b", Status: qadoc.TaskStatusFailed},
		{URL: "https://example.com/c", Status: qadoc.TaskStatusCancelled},
	}

	doc := Build(job, tasks, fixedClock{now: time.Unix(2000, 0)})
	require.Len(t, doc.Pages, 1)
	require.Equal(t, "https://example.com/a", doc.Pages[0].URL)
	require.Equal(t, 1, doc.TotalCases)
}

func TestBuild_AllCategoriesPresent(t *testing.T) {
	t.Parallel()

	job := testJob()
	tasks := []qadoc.Task{
		succeededTask("https://example.com/a", "snap-a", tc("TC-1", qadoc.CategoryFunctional, qadoc.PriorityHigh)),
	}

	doc := Build(job, tasks, fixedClock{now: time.Unix(2000, 0)})
	require.Len(t, doc.Pages, 1)
	cases := doc.Pages[0].Cases
	for _, category := range qadoc.Categories() {
		require.Contains(t, cases, category)
	}
	require.Empty(t, cases[qadoc.CategoryUsability])
	require.Empty(t, cases[qadoc.CategoryEdgeCase])
	require.Empty(t, cases[qadoc.CategoryAccessibility])
}

func TestBuild_CasesOrderedByPriorityThenID(t *testing.T) {
	t.Parallel()

	job := testJob()
	tasks := []qadoc.Task{
		succeededTask("https://example.com/a", "snap-a",
			tc("TC-3", qadoc.CategoryFunctional, qadoc.PriorityLow),
			tc("TC-2", qadoc.CategoryFunctional, qadoc.PriorityHigh),
			tc("TC-1", qadoc.CategoryFunctional, qadoc.PriorityMedium),
			tc("TC-0", qadoc.CategoryFunctional, qadoc.PriorityHigh),
		),
	}

	doc := Build(job, tasks, fixedClock{now: time.Unix(2000, 0)})
	functional := doc.Pages[0].Cases[qadoc.CategoryFunctional]
	require.Len(t, functional, 4)
	require.Equal(t, "TC-0", functional[0].ID)
	require.Equal(t, "TC-2", functional[1].ID)
	require.Equal(t, "TC-1", functional[2].ID)
	require.Equal(t, "TC-3", functional[3].ID)
}

func TestBuild_Deterministic(t *testing.T) {
	t.Parallel()

	job := testJob()
	clock := fixedClock{now: time.Unix(2000, 0).UTC()}
	tasks := []qadoc.Task{
		succeededTask("https://example.com/b", "snap-b",
			tc("TC-B1", qadoc.CategoryUsability, qadoc.PriorityMedium),
			tc("TC-B2", qadoc.CategoryEdgeCase, qadoc.PriorityHigh),
		),
		succeededTask("https://example.com/a", "snap-a",
			tc("TC-A1", qadoc.CategoryFunctional, qadoc.PriorityLow),
		),
	}
	reversed := []qadoc.Task{tasks[1], tasks[0]}

	first, err := json.Marshal(Build(job, tasks, clock))
	require.NoError(t, err)
	second, err := json.Marshal(Build(job, reversed, clock))
	require.NoError(t, err)
	require.Equal(t, first, second, "identical terminal task sets must yield byte-identical documents")
}

func TestBuild_TotalCasesSumsAllPages(t *testing.T) {
	t.Parallel()

	job := testJob()
	tasks := []qadoc.Task{
		succeededTask("https://example.com/a", "snap-a",
			tc("TC-1", qadoc.CategoryFunctional, qadoc.PriorityHigh),
			tc("TC-2", qadoc.CategoryUsability, qadoc.PriorityLow),
		),
		succeededTask("https://example.com/b", "snap-b",
			tc("TC-3", qadoc.CategoryAccessibility, qadoc.PriorityMedium),
		),
	}

	doc := Build(job, tasks, fixedClock{now: time.Unix(2000, 0)})
	require.Equal(t, 3, doc.TotalCases)
}

func TestBuild_EmptyJobYieldsEmptyDocument(t *testing.T) {
	t.Parallel()

	doc := Build(testJob(), nil, fixedClock{now: time.Unix(2000, 0)})
	require.Equal(t, "job-1", doc.JobID)
	require.Empty(t, doc.Pages)
	require.Zero(t, doc.TotalCases)
}

// Package assembler builds the job-level document from terminal task results.
package assembler

import (
	"sort"

	"github.com/JakeFAU/qa-docgen/internal/qadoc"
)

// priorityRank orders cases inside a category bucket.
var priorityRank = map[qadoc.TestPriority]int{
	qadoc.PriorityHigh:   0,
	qadoc.PriorityMedium: 1,
	qadoc.PriorityLow:    2,
}

// Build folds the succeeded tasks' test cases into the job Document.
// Pure and deterministic: the same terminal task set always yields
// byte-identical groupings regardless of the order tasks completed in.
// Every category bucket is present, possibly empty.
func Build(job qadoc.Job, tasks []qadoc.Task, clock qadoc.Clock) qadoc.Document {
	succeeded := make([]qadoc.Task, 0, len(tasks))
	for _, task := range tasks {
		if task.Status == qadoc.TaskStatusSucceeded {
			succeeded = append(succeeded, task)
		}
	}
	// Page order follows the job's submitted URL order, not completion order.
	sort.SliceStable(succeeded, func(i, j int) bool {
		return urlRank(job, succeeded[i].URL) < urlRank(job, succeeded[j].URL)
	})

	doc := qadoc.Document{
		JobID:       job.ID,
		GeneratedAt: clock.Now(),
		Pages:       make([]qadoc.PageSection, 0, len(succeeded)),
	}
	for _, task := range succeeded {
		section := buildSection(task)
		for _, cases := range section.Cases {
			doc.TotalCases += len(cases)
		}
		doc.Pages = append(doc.Pages, section)
	}
	return doc
}

func buildSection(task qadoc.Task) qadoc.PageSection {
	buckets := make(map[qadoc.TestCategory][]qadoc.TestCase, 4)
	for _, category := range qadoc.Categories() {
		buckets[category] = []qadoc.TestCase{}
	}
	for _, tc := range task.TestCases {
		buckets[tc.Category] = append(buckets[tc.Category], tc)
	}
	for category := range buckets {
		cases := buckets[category]
		sort.SliceStable(cases, func(i, j int) bool {
			ri, rj := priorityRank[cases[i].Priority], priorityRank[cases[j].Priority]
			if ri != rj {
				return ri < rj
			}
			return cases[i].ID < cases[j].ID
		})
		buckets[category] = cases
	}
	return qadoc.PageSection{
		URL:        task.URL,
		Title:      task.PageTitle,
		SnapshotID: task.SnapshotID,
		Cases:      buckets,
	}
}

func urlRank(job qadoc.Job, url string) int {
	for i, u := range job.Parameters.URLs {
		if u == url {
			return i
		}
	}
	return len(job.Parameters.URLs)
}

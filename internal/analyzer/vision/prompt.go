package vision

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JakeFAU/qa-docgen/internal/qadoc"
)

// maxPromptElements caps how much of the element list is inlined so large
// pages stay inside the model's context window.
const maxPromptElements = 120

func buildPrompt(snapshot qadoc.PageSnapshot) string {
	summary := summarizeElements(snapshot.Elements)

	elements := snapshot.Elements
	if len(elements) > maxPromptElements {
		elements = elements[:maxPromptElements]
	}
	elementJSON, err := json.MarshalIndent(elements, "", "  ")
	if err != nil {
		elementJSON = []byte("[]")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Generate QA test cases for the following web page.\n\n")
	fmt.Fprintf(&b, "URL: %s\n", snapshot.URL)
	fmt.Fprintf(&b, "Page Title: %s\n", snapshot.Title)
	fmt.Fprintf(&b, "Element Summary: %s\n\n", summary)
	fmt.Fprintf(&b, "UI Elements:\n%s\n\n", elementJSON)
	b.WriteString(`Cover page-level functionality, core user flows for the interactive
elements, usability, boundary/edge conditions, and accessibility.

Respond with ONLY a JSON array of test cases. Each object must have:
- "test_case_id": unique identifier
- "test_case_title": descriptive title
- "category": exactly one of "functional", "usability", "edge_case", "accessibility_check"
- "priority": one of "high", "medium", "low"
- "description": what the test verifies
- "preconditions": array of strings (may be empty)
- "steps": array of {"step_number", "action", "expected_result"}
- "related_element_id": the element_id the case targets, or omit for page-level cases
`)
	return b.String()
}

func summarizeElements(elements []qadoc.UIElement) string {
	counts := map[string]int{}
	for _, el := range elements {
		counts[string(el.Type)]++
	}
	summary, err := json.Marshal(counts)
	if err != nil {
		return "{}"
	}
	return string(summary)
}

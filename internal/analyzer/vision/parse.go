package vision

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/JakeFAU/qa-docgen/internal/qadoc"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// testCasePayload is the strict schema expected from the model. Older
// prompt revisions emitted the category under "type", so both are accepted.
type testCasePayload struct {
	ID             string        `json:"test_case_id"`
	Title          string        `json:"test_case_title" validate:"required"`
	Category       string        `json:"category"`
	LegacyType     string        `json:"type"`
	Priority       string        `json:"priority" validate:"omitempty,oneof=high medium low"`
	Description    string        `json:"description" validate:"required"`
	Preconditions  []string      `json:"preconditions"`
	Steps          []stepPayload `json:"steps" validate:"required,min=1,dive"`
	RelatedElement string        `json:"related_element_id"`
}

type stepPayload struct {
	Number         int    `json:"step_number"`
	Action         string `json:"action" validate:"required"`
	ExpectedResult string `json:"expected_result" validate:"required"`
}

// parseResponse extracts the JSON array from the model output and validates
// each entry. Entries missing required fields are dropped and logged; an
// unknown category or an unparseable body is a parse error, never coerced.
func (a *Analyzer) parseResponse(content string) ([]qadoc.TestCase, error) {
	raw, err := extractJSONArray(content)
	if err != nil {
		return nil, qadoc.NewError(qadoc.KindAnalysisParse, err)
	}

	var payloads []testCasePayload
	if err := json.Unmarshal([]byte(raw), &payloads); err != nil {
		return nil, qadoc.NewError(qadoc.KindAnalysisParse, fmt.Errorf("decode test case array: %w", err))
	}
	if len(payloads) == 0 {
		return nil, qadoc.Errorf(qadoc.KindAnalysisParse, "model returned an empty test case array")
	}

	cases := make([]qadoc.TestCase, 0, len(payloads))
	dropped := 0
	for i, p := range payloads {
		category := p.Category
		if category == "" {
			category = p.LegacyType
		}
		if !qadoc.ValidCategory(qadoc.TestCategory(category)) {
			return nil, qadoc.Errorf(qadoc.KindAnalysisParse, "entry %d has unknown category %q", i, category)
		}
		if err := validate.Struct(p); err != nil {
			dropped++
			a.logger.Warn("dropping malformed test case entry", zap.Int("index", i), zap.Error(err))
			continue
		}
		tc, err := a.toTestCase(p, qadoc.TestCategory(category))
		if err != nil {
			return nil, err
		}
		cases = append(cases, tc)
	}
	if len(cases) == 0 {
		return nil, qadoc.Errorf(qadoc.KindAnalysisParse, "all %d entries were malformed", dropped)
	}
	return cases, nil
}

func (a *Analyzer) toTestCase(p testCasePayload, category qadoc.TestCategory) (qadoc.TestCase, error) {
	id := p.ID
	if id == "" {
		generated, err := a.idGen.NewID()
		if err != nil {
			return qadoc.TestCase{}, fmt.Errorf("generate test case id: %w", err)
		}
		id = "TC-" + generated
	}
	priority := qadoc.TestPriority(p.Priority)
	if priority == "" {
		priority = qadoc.PriorityMedium
	}
	steps := make([]qadoc.TestStep, 0, len(p.Steps))
	for i, s := range p.Steps {
		number := s.Number
		if number == 0 {
			number = i + 1
		}
		steps = append(steps, qadoc.TestStep{
			Number:         number,
			Action:         s.Action,
			ExpectedResult: s.ExpectedResult,
		})
	}
	return qadoc.TestCase{
		ID:             id,
		Title:          p.Title,
		Category:       category,
		Priority:       priority,
		Description:    p.Description,
		Preconditions:  p.Preconditions,
		Steps:          steps,
		RelatedElement: p.RelatedElement,
	}, nil
}

// extractJSONArray tolerates prose or fences around the array itself.
func extractJSONArray(content string) (string, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON array found in model response")
	}
	return content[start : end+1], nil
}

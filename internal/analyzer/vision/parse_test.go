package vision

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/qa-docgen/internal/qadoc"
)

type seqIDGen struct {
	n int
}

func (g *seqIDGen) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

func newTestAnalyzer() *Analyzer {
	return New(Config{
		Endpoint: "http://localhost/unused",
		Model:    "test-model",
		Timeout:  time.Second,
	}, &seqIDGen{}, zap.NewNop())
}

const validEntry = `{
	"test_case_id": "TC-001",
	"test_case_title": "Submit login form",
	"category": "functional",
	"priority": "high",
	"description": "Verifies the login form submits with valid credentials",
	"preconditions": ["user account exists"],
	"steps": [
		{"step_number": 1, "action": "fill username", "expected_result": "value shown"},
		{"step_number": 2, "action": "click submit", "expected_result": "dashboard loads"}
	],
	"related_element_id": "el-0001"
}`

func TestParseResponse_ValidArray(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer()
	cases, err := a.parseResponse("[" + validEntry + "]")
	require.NoError(t, err)
	require.Len(t, cases, 1)

	tc := cases[0]
	require.Equal(t, "TC-001", tc.ID)
	require.Equal(t, "Submit login form", tc.Title)
	require.Equal(t, qadoc.CategoryFunctional, tc.Category)
	require.Equal(t, qadoc.PriorityHigh, tc.Priority)
	require.Equal(t, []string{"user account exists"}, tc.Preconditions)
	require.Len(t, tc.Steps, 2)
	require.Equal(t, "el-0001", tc.RelatedElement)
}

func TestParseResponse_TolerantOfSurroundingProse(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer()
	content := "Here are the test cases:\n```json\n[" + validEntry + "]\n```\nLet me know if you need more."
	cases, err := a.parseResponse(content)
	require.NoError(t, err)
	require.Len(t, cases, 1)
}

func TestParseResponse_LegacyTypeField(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer()
	content := `[{
		"test_case_title": "Check contrast",
		"type": "accessibility_check",
		"description": "Verifies text contrast",
		"steps": [{"action": "inspect heading", "expected_result": "contrast ratio >= 4.5"}]
	}]`
	cases, err := a.parseResponse(content)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	require.Equal(t, qadoc.CategoryAccessibility, cases[0].Category)
}

func TestParseResponse_UnknownCategoryFailsCall(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer()
	content := `[{
		"test_case_title": "Weird",
		"category": "security",
		"description": "not a supported category",
		"steps": [{"action": "x", "expected_result": "y"}]
	}]`
	_, err := a.parseResponse(content)
	require.Error(t, err)
	require.Equal(t, qadoc.KindAnalysisParse, qadoc.KindOf(err))
}

func TestParseResponse_MalformedEntryDropped(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer()
	missingSteps := `{
		"test_case_title": "No steps",
		"category": "usability",
		"description": "steps array missing"
	}`
	cases, err := a.parseResponse("[" + validEntry + "," + missingSteps + "]")
	require.NoError(t, err)
	require.Len(t, cases, 1, "malformed entry is dropped, valid one kept")
}

func TestParseResponse_AllEntriesMalformed(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer()
	content := `[{"category": "functional"}, {"category": "usability"}]`
	_, err := a.parseResponse(content)
	require.Error(t, err)
	require.Equal(t, qadoc.KindAnalysisParse, qadoc.KindOf(err))
}

func TestParseResponse_NoArray(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer()
	for _, content := range []string{"", "I could not analyze this page.", "{}"} {
		_, err := a.parseResponse(content)
		require.Error(t, err, "content %q", content)
		require.Equal(t, qadoc.KindAnalysisParse, qadoc.KindOf(err))
	}
}

func TestParseResponse_EmptyArray(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer()
	_, err := a.parseResponse("[]")
	require.Error(t, err)
	require.Equal(t, qadoc.KindAnalysisParse, qadoc.KindOf(err))
}

func TestParseResponse_Defaults(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer()
	content := `[{
		"test_case_title": "Defaults",
		"category": "edge_case",
		"description": "priority, id and step numbers omitted",
		"steps": [
			{"action": "first", "expected_result": "ok"},
			{"action": "second", "expected_result": "ok"}
		]
	}]`
	cases, err := a.parseResponse(content)
	require.NoError(t, err)
	require.Len(t, cases, 1)

	tc := cases[0]
	require.Equal(t, qadoc.PriorityMedium, tc.Priority, "missing priority defaults to medium")
	require.Equal(t, "TC-id-1", tc.ID, "missing id is generated")
	require.Equal(t, 1, tc.Steps[0].Number)
	require.Equal(t, 2, tc.Steps[1].Number)
}

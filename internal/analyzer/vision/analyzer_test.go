package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/qa-docgen/internal/qadoc"
)

func completionBody(content string) string {
	envelope := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	data, _ := json.Marshal(envelope)
	return string(data)
}

func testSnapshot() qadoc.PageSnapshot {
	return qadoc.PageSnapshot{
		ID:    "snap-1",
		URL:   "https://example.com/login",
		Title: "Login",
		Elements: []qadoc.UIElement{
			{ID: "el-0001", Type: qadoc.ElementButton, Selector: "#submit", Interactive: true},
		},
	}
}

func TestAnalyze_Succeeds(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		fmt.Fprint(w, completionBody("["+validEntry+"]"))
	}))
	defer srv.Close()

	a := New(Config{
		Endpoint: srv.URL,
		APIKey:   "test-key",
		Model:    "test-model",
		Timeout:  time.Second,
	}, &seqIDGen{}, zap.NewNop())

	cases, err := a.Analyze(context.Background(), testSnapshot())
	require.NoError(t, err)
	require.Len(t, cases, 1)
	require.Equal(t, "Bearer test-key", gotAuth)

	var req completionRequest
	require.NoError(t, json.Unmarshal(gotBody, &req))
	require.Equal(t, "test-model", req.Model)
	require.Len(t, req.Messages, 2)
	require.Contains(t, req.Messages[1].Content[0].Text, "https://example.com/login")
	require.Contains(t, req.Messages[1].Content[0].Text, "el-0001")
}

func TestAnalyze_ProviderErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := New(Config{Endpoint: srv.URL, Timeout: time.Second}, &seqIDGen{}, zap.NewNop())
	_, err := a.Analyze(context.Background(), testSnapshot())
	require.Error(t, err)
	require.Equal(t, qadoc.KindAnalysisProvider, qadoc.KindOf(err))
}

func TestAnalyze_ProviderUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	a := New(Config{Endpoint: srv.URL, Timeout: time.Second}, &seqIDGen{}, zap.NewNop())
	_, err := a.Analyze(context.Background(), testSnapshot())
	require.Error(t, err)
	require.Equal(t, qadoc.KindAnalysisProvider, qadoc.KindOf(err))
}

func TestAnalyze_NoChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	a := New(Config{Endpoint: srv.URL, Timeout: time.Second}, &seqIDGen{}, zap.NewNop())
	_, err := a.Analyze(context.Background(), testSnapshot())
	require.Error(t, err)
	require.Equal(t, qadoc.KindAnalysisProvider, qadoc.KindOf(err))
}

func TestAnalyze_ParseErrorFromModelContent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, completionBody("I cannot produce test cases for this page."))
	}))
	defer srv.Close()

	a := New(Config{Endpoint: srv.URL, Timeout: time.Second}, &seqIDGen{}, zap.NewNop())
	_, err := a.Analyze(context.Background(), testSnapshot())
	require.Error(t, err)
	require.Equal(t, qadoc.KindAnalysisParse, qadoc.KindOf(err))
}

func TestBuildRequest_ScreenshotAttachedOnlyForHTTP(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer()

	snapshot := testSnapshot()
	snapshot.ScreenshotURI = "gs://bucket/screenshots/snap-1.png"
	req := a.buildRequest(snapshot)
	require.Len(t, req.Messages[1].Content, 1, "gs:// URIs are not fetchable by the provider")

	snapshot.ScreenshotURI = "https://cdn.example.com/snap-1.png"
	req = a.buildRequest(snapshot)
	require.Len(t, req.Messages[1].Content, 2)
	require.Equal(t, "image_url", req.Messages[1].Content[1].Type)
}

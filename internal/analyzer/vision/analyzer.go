// Package vision sends page snapshots to a vision-capable LLM and parses the
// response into structured test cases.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/qa-docgen/internal/metrics"
	"github.com/JakeFAU/qa-docgen/internal/qadoc"
)

// Config controls the LLM client.
type Config struct {
	Endpoint  string
	APIKey    string
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

// Analyzer implements qadoc.Analyzer against an OpenAI-compatible chat
// completions endpoint.
type Analyzer struct {
	cfg    Config
	client *http.Client
	idGen  qadoc.IDGenerator
	logger *zap.Logger
}

// New constructs an Analyzer.
func New(cfg Config, idGen qadoc.IDGenerator, logger *zap.Logger) *Analyzer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2000
	}
	return &Analyzer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		idGen:  idGen,
		logger: logger,
	}
}

// Analyze serializes the snapshot into a prompt, invokes the model, and
// parses its response against the test case schema. Individual malformed
// entries are dropped; an unparseable response or an unknown category fails
// the call with a parse error.
func (a *Analyzer) Analyze(ctx context.Context, snapshot qadoc.PageSnapshot) ([]qadoc.TestCase, error) {
	start := time.Now()
	content, err := a.complete(ctx, snapshot)
	if err != nil {
		return nil, err
	}
	metrics.ObserveAnalyzeDuration(time.Since(start))

	cases, err := a.parseResponse(content)
	if err != nil {
		return nil, err
	}
	for _, tc := range cases {
		metrics.IncTestCases(string(tc.Category), 1)
	}
	return cases, nil
}

func (a *Analyzer) complete(ctx context.Context, snapshot qadoc.PageSnapshot) (string, error) {
	payload, err := json.Marshal(a.buildRequest(snapshot))
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", qadoc.Errorf(qadoc.KindAnalysisProvider, "completion request canceled: %v", ctx.Err())
		}
		return "", qadoc.NewError(qadoc.KindAnalysisProvider, fmt.Errorf("completion request: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", qadoc.NewError(qadoc.KindAnalysisProvider, fmt.Errorf("read completion response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", qadoc.Errorf(qadoc.KindAnalysisProvider, "provider returned status %d: %s",
			resp.StatusCode, truncate(string(body), 256))
	}

	var parsed completionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", qadoc.NewError(qadoc.KindAnalysisProvider, fmt.Errorf("decode completion envelope: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return "", qadoc.Errorf(qadoc.KindAnalysisProvider, "provider returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func (a *Analyzer) buildRequest(snapshot qadoc.PageSnapshot) completionRequest {
	content := []messageContent{{Type: "text", Text: buildPrompt(snapshot)}}
	if strings.HasPrefix(snapshot.ScreenshotURI, "http://") || strings.HasPrefix(snapshot.ScreenshotURI, "https://") {
		content = append(content, messageContent{
			Type:     "image_url",
			ImageURL: &imageURL{URL: snapshot.ScreenshotURI},
		})
	}
	return completionRequest{
		Model: a.cfg.Model,
		Messages: []message{
			{Role: "system", Content: []messageContent{{
				Type: "text",
				Text: "You are an expert QA engineer who writes precise, actionable test cases.",
			}}},
			{Role: "user", Content: content},
		},
		Temperature: 0.7,
		MaxTokens:   a.cfg.MaxTokens,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type message struct {
	Role    string           `json:"role"`
	Content []messageContent `json:"content"`
}

type messageContent struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Package headless drives a browser via chromedp to capture page snapshots.
package headless

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/qa-docgen/internal/metrics"
	"github.com/JakeFAU/qa-docgen/internal/qadoc"
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	SettleWait        time.Duration
	ScreenshotQuality int
}

// Fetcher implements qadoc.Fetcher using chromedp and headless Chrome.
// It carries no retry of its own; retry policy lives in the scheduler.
type Fetcher struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a headless fetcher backed by chromedp.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	if cfg.SettleWait <= 0 {
		cfg.SettleWait = 500 * time.Millisecond
	}
	if cfg.ScreenshotQuality <= 0 {
		cfg.ScreenshotQuality = 80
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch navigates to the URL, applies the auth strategy, waits for the page
// to settle, and extracts the UI-element snapshot plus a screenshot.
func (f *Fetcher) Fetch(ctx context.Context, request qadoc.FetchRequest) (qadoc.FetchResponse, error) {
	if err := f.acquire(ctx); err != nil {
		return qadoc.FetchResponse{}, err
	}
	defer f.release()

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.cfg.NavigationTimeout)
	defer cancel()

	// Propagate caller cancellation into the tab context.
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	capture, err := f.runCapture(taskCtx, request)
	if err != nil {
		return qadoc.FetchResponse{}, classifyCrawlError(err, request.URL, f.cfg.NavigationTimeout)
	}

	if err := checkStatus(meta.status(), request.URL); err != nil {
		return qadoc.FetchResponse{}, err
	}

	duration := time.Since(start)
	metrics.ObserveCrawlDuration(duration)

	return qadoc.FetchResponse{
		Snapshot: qadoc.PageSnapshot{
			URL:      request.URL,
			Title:    capture.title,
			Elements: toUIElements(capture.elements),
		},
		Screenshot: capture.screenshot,
		Duration:   duration,
	}, nil
}

type captureResult struct {
	title      string
	elements   []rawElement
	screenshot []byte
}

func (f *Fetcher) runCapture(ctx context.Context, request qadoc.FetchRequest) (captureResult, error) {
	var out captureResult
	actions := []chromedp.Action{
		f.sessionSetupAction(request),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(f.cfg.SettleWait),
		chromedp.Title(&out.title),
		chromedp.Evaluate(extractScript, &out.elements),
		chromedp.FullScreenshot(&out.screenshot, f.cfg.ScreenshotQuality),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return captureResult{}, fmt.Errorf("chromedp run: %w", err)
	}
	return out, nil
}

// sessionSetupAction injects credentials before navigation: basic credentials
// as an Authorization header, session tokens as a cookie or bearer header.
func (f *Fetcher) sessionSetupAction(request qadoc.FetchRequest) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		auth := request.Auth
		if auth == nil {
			return nil
		}
		switch auth.Type {
		case qadoc.AuthTypeBasic:
			if auth.Username == "" {
				return nil
			}
			cred := base64.StdEncoding.EncodeToString([]byte(auth.Username + ":" + auth.Password))
			headers := network.Headers{"Authorization": "Basic " + cred}
			if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
				return fmt.Errorf("set basic auth header: %w", err)
			}
		case qadoc.AuthTypeSessionToken:
			switch auth.TokenKind {
			case qadoc.TokenKindCookie:
				err := network.SetCookie(auth.TokenName, auth.TokenValue).
					WithURL(request.URL).
					Do(ctx)
				if err != nil {
					return fmt.Errorf("set session cookie: %w", err)
				}
			case qadoc.TokenKindBearer:
				name := auth.TokenName
				if name == "" {
					name = "Authorization"
				}
				headers := network.Headers{name: "Bearer " + auth.TokenValue}
				if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
					return fmt.Errorf("set bearer header: %w", err)
				}
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

// classifyCrawlError maps engine failures onto the pipeline taxonomy. A
// deadline means the page never settled within the wait budget; everything
// else from the engine is a navigation failure.
func classifyCrawlError(err error, url string, budget time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return qadoc.Errorf(qadoc.KindCrawlTimeout, "page %s did not settle within %s", url, budget)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return qadoc.NewError(qadoc.KindCrawlNavigation, fmt.Errorf("navigate %s: %w", url, err))
}

func checkStatus(status int, url string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return qadoc.Errorf(qadoc.KindCrawlAuth, "credentials rejected for %s (status %d)", url, status)
	case status >= http.StatusBadRequest:
		return qadoc.Errorf(qadoc.KindCrawlNavigation, "fetch %s returned status %d", url, status)
	default:
		return nil
	}
}

type responseMeta struct {
	mu         sync.RWMutex
	statusCode int
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	m.statusCode = int(resp.Response.Status)
	m.mu.Unlock()
}

func (m *responseMeta) status() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.statusCode == 0 {
		return http.StatusOK
	}
	return m.statusCode
}

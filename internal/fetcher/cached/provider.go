// Package cached layers the snapshot cache and screenshot persistence over a
// live fetcher.
package cached

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/qa-docgen/internal/metrics"
	"github.com/JakeFAU/qa-docgen/internal/qadoc"
)

// Config controls Provider behavior.
type Config struct {
	TTL         time.Duration
	BlobPrefix  string
	ContentType string
}

// Provider implements qadoc.SnapshotProvider. Concurrent requests for the
// same cache key share one live crawl via singleflight, so a landing page
// referenced by several tasks is fetched once per TTL window. Cache failures
// degrade to a live crawl, never to a pipeline failure.
type Provider struct {
	fetcher qadoc.Fetcher
	cache   qadoc.SnapshotCache
	blobs   qadoc.BlobStore
	hasher  qadoc.Hasher
	idGen   qadoc.IDGenerator
	clock   qadoc.Clock
	group   singleflight.Group
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Provider.
func New(
	fetcher qadoc.Fetcher,
	cache qadoc.SnapshotCache,
	blobs qadoc.BlobStore,
	hasher qadoc.Hasher,
	idGen qadoc.IDGenerator,
	clock qadoc.Clock,
	cfg Config,
	logger *zap.Logger,
) *Provider {
	if cfg.ContentType == "" {
		cfg.ContentType = "image/png"
	}
	return &Provider{
		fetcher: fetcher,
		cache:   cache,
		blobs:   blobs,
		hasher:  hasher,
		idGen:   idGen,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

// Snapshot returns the page snapshot for the request, from cache when a
// fresh entry exists, otherwise from a live crawl whose result is cached.
func (p *Provider) Snapshot(ctx context.Context, request qadoc.FetchRequest) (qadoc.PageSnapshot, error) {
	key, err := qadoc.SnapshotCacheKey(request.URL, request.Auth, p.hasher)
	if err != nil {
		return qadoc.PageSnapshot{}, qadoc.NewError(qadoc.KindCrawlNavigation, err)
	}

	if snapshot, ok := p.cache.Get(ctx, key); ok {
		metrics.IncCacheHit()
		p.logger.Debug("snapshot cache hit", zap.String("url", request.URL))
		return snapshot, nil
	}
	metrics.IncCacheMiss()

	v, err, _ := p.group.Do(key, func() (any, error) {
		// Another caller may have filled the cache while we queued.
		if snapshot, ok := p.cache.Get(ctx, key); ok {
			return snapshot, nil
		}
		return p.crawlAndCache(ctx, request, key)
	})
	if err != nil {
		return qadoc.PageSnapshot{}, err
	}
	return v.(qadoc.PageSnapshot), nil
}

func (p *Provider) crawlAndCache(ctx context.Context, request qadoc.FetchRequest, key string) (qadoc.PageSnapshot, error) {
	resp, err := p.fetcher.Fetch(ctx, request)
	if err != nil {
		return qadoc.PageSnapshot{}, err
	}

	snapshot := resp.Snapshot
	snapshot.CapturedAt = p.clock.Now()
	snapshot.ID, err = p.idGen.NewID()
	if err != nil {
		return qadoc.PageSnapshot{}, fmt.Errorf("generate snapshot id: %w", err)
	}

	if uri, err := p.persistScreenshot(ctx, snapshot.ID, resp.Screenshot); err != nil {
		// The element snapshot is still useful without its screenshot.
		p.logger.Warn("screenshot persist failed", zap.String("url", request.URL), zap.Error(err))
	} else {
		snapshot.ScreenshotURI = uri
	}

	p.cache.Put(ctx, key, snapshot, p.cfg.TTL)
	p.logger.Debug("snapshot captured",
		zap.String("url", request.URL),
		zap.String("snapshot_id", snapshot.ID),
		zap.Int("elements", len(snapshot.Elements)),
	)
	return snapshot, nil
}

func (p *Provider) persistScreenshot(ctx context.Context, snapshotID string, screenshot []byte) (string, error) {
	if len(screenshot) == 0 || p.blobs == nil {
		return "", nil
	}
	path := p.buildBlobPath(snapshotID)
	uri, err := p.blobs.PutObject(ctx, path, p.cfg.ContentType, bytes.NewReader(screenshot))
	if err != nil {
		return "", fmt.Errorf("put screenshot: %w", err)
	}
	return uri, nil
}

func (p *Provider) buildBlobPath(snapshotID string) string {
	prefix := strings.Trim(p.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s.png", snapshotID)
	}
	return fmt.Sprintf("%s/%s.png", prefix, snapshotID)
}

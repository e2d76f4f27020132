package cached

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cacheMemory "github.com/JakeFAU/qa-docgen/internal/cache/memory"
	"github.com/JakeFAU/qa-docgen/internal/hash/sha256"
	"github.com/JakeFAU/qa-docgen/internal/qadoc"
	memoryStorage "github.com/JakeFAU/qa-docgen/internal/storage/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type seqIDGen struct {
	n atomic.Int64
}

func (g *seqIDGen) NewID() (string, error) {
	return fmt.Sprintf("snap-%d", g.n.Add(1)), nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, request qadoc.FetchRequest) (qadoc.FetchResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return qadoc.FetchResponse{}, f.err
	}
	return qadoc.FetchResponse{
		Snapshot: qadoc.PageSnapshot{
			URL:   request.URL,
			Title: "Fetched Page",
			Elements: []qadoc.UIElement{
				{ID: "el-0001", Type: qadoc.ElementButton, Selector: "#go", Interactive: true},
			},
		},
		Screenshot: []byte("png-bytes"),
		Duration:   time.Millisecond,
	}, nil
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type failingBlobStore struct{}

func (failingBlobStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket unavailable")
}

func newTestProvider(fetcher qadoc.Fetcher, blobs qadoc.BlobStore, clock qadoc.Clock, ttl time.Duration) *Provider {
	return New(
		fetcher,
		cacheMemory.NewSnapshotCache(clock),
		blobs,
		sha256.New(),
		&seqIDGen{},
		clock,
		Config{TTL: ttl, BlobPrefix: "screenshots", ContentType: "image/png"},
		zap.NewNop(),
	)
}

func TestSnapshot_CacheHitSuppressesSecondCrawl(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	blobs := memoryStorage.NewBlobStore()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	provider := newTestProvider(fetcher, blobs, clock, 5*time.Minute)

	req := qadoc.FetchRequest{JobID: "job-1", URL: "https://example.com/a"}

	first, err := provider.Snapshot(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "snap-1", first.ID)
	require.Equal(t, 1, fetcher.count())

	second, err := provider.Snapshot(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 1, fetcher.count(), "fresh cache entry must not trigger a crawl")
}

func TestSnapshot_ExpiredEntryCrawlsAgain(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	provider := newTestProvider(fetcher, memoryStorage.NewBlobStore(), clock, 5*time.Minute)

	req := qadoc.FetchRequest{JobID: "job-1", URL: "https://example.com/a"}

	_, err := provider.Snapshot(context.Background(), req)
	require.NoError(t, err)

	clock.Advance(6 * time.Minute)
	fresh, err := provider.Snapshot(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 2, fetcher.count())
	require.Equal(t, "snap-2", fresh.ID, "a fresher capture supersedes the expired one")
}

func TestSnapshot_ScreenshotPersisted(t *testing.T) {
	t.Parallel()

	blobs := memoryStorage.NewBlobStore()
	provider := newTestProvider(&fakeFetcher{}, blobs, &fakeClock{now: time.Unix(1000, 0)}, time.Minute)

	snapshot, err := provider.Snapshot(context.Background(), qadoc.FetchRequest{JobID: "job-1", URL: "https://example.com/a"})
	require.NoError(t, err)
	require.Equal(t, "mem://screenshots/snap-1.png", snapshot.ScreenshotURI)

	data, ok := blobs.GetObject("screenshots/snap-1.png")
	require.True(t, ok)
	require.Equal(t, []byte("png-bytes"), data)
}

func TestSnapshot_BlobFailureDoesNotFailPipeline(t *testing.T) {
	t.Parallel()

	provider := newTestProvider(&fakeFetcher{}, failingBlobStore{}, &fakeClock{now: time.Unix(1000, 0)}, time.Minute)

	snapshot, err := provider.Snapshot(context.Background(), qadoc.FetchRequest{JobID: "job-1", URL: "https://example.com/a"})
	require.NoError(t, err)
	require.Empty(t, snapshot.ScreenshotURI)
	require.NotEmpty(t, snapshot.Elements)
}

func TestSnapshot_FetchErrorPropagates(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{err: qadoc.Errorf(qadoc.KindCrawlTimeout, "timed out")}
	provider := newTestProvider(fetcher, memoryStorage.NewBlobStore(), &fakeClock{now: time.Unix(1000, 0)}, time.Minute)

	_, err := provider.Snapshot(context.Background(), qadoc.FetchRequest{JobID: "job-1", URL: "https://example.com/a"})
	require.Error(t, err)
	require.Equal(t, qadoc.KindCrawlTimeout, qadoc.KindOf(err))
}

func TestSnapshot_InvalidURLIsNavigationError(t *testing.T) {
	t.Parallel()

	provider := newTestProvider(&fakeFetcher{}, memoryStorage.NewBlobStore(), &fakeClock{now: time.Unix(1000, 0)}, time.Minute)

	_, err := provider.Snapshot(context.Background(), qadoc.FetchRequest{JobID: "job-1", URL: "no-scheme"})
	require.Error(t, err)
	require.Equal(t, qadoc.KindCrawlNavigation, qadoc.KindOf(err))
}

func TestSnapshot_ConcurrentCallersShareOneCrawl(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{delay: 50 * time.Millisecond}
	provider := newTestProvider(fetcher, memoryStorage.NewBlobStore(), &fakeClock{now: time.Unix(1000, 0)}, time.Minute)

	req := qadoc.FetchRequest{JobID: "job-1", URL: "https://example.com/a"}

	var wg sync.WaitGroup
	ids := make([]string, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snapshot, err := provider.Snapshot(context.Background(), req)
			require.NoError(t, err)
			ids[i] = snapshot.ID
		}()
	}
	wg.Wait()

	require.Equal(t, 1, fetcher.count(), "concurrent requests for one key share a single crawl")
	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
}

func TestSnapshot_DifferentAuthDoesNotShareCache(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	provider := newTestProvider(fetcher, memoryStorage.NewBlobStore(), &fakeClock{now: time.Unix(1000, 0)}, time.Minute)

	anon := qadoc.FetchRequest{JobID: "job-1", URL: "https://example.com/a"}
	authed := qadoc.FetchRequest{
		JobID: "job-1",
		URL:   "https://example.com/a",
		Auth:  &qadoc.AuthConfig{Type: qadoc.AuthTypeBasic, Username: "alice", Password: "pw"},
	}

	_, err := provider.Snapshot(context.Background(), anon)
	require.NoError(t, err)
	_, err = provider.Snapshot(context.Background(), authed)
	require.NoError(t, err)
	require.Equal(t, 2, fetcher.count(), "distinct auth contexts crawl separately")
}

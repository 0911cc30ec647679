// Package mediacache materializes playlist media into a durable local blob
// store and tracks the local handles the renderer uses.
package mediacache

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/signage-player/webplayer/internal/model"
)

// HandlePrefix is the local URL prefix under which cached blobs are served.
const HandlePrefix = "/media/"

// BlobStore is the persistent, key-addressed media store.
type BlobStore interface {
	HasMedia(ctx context.Context, key string) (bool, error)
	GetMedia(ctx context.Context, key string) (model.CacheEntry, error)
	PutMedia(ctx context.Context, entry model.CacheEntry) error
	DeleteMedia(ctx context.Context, key string) error
	ListMediaKeys(ctx context.Context) ([]string, error)
	PurgeMedia(ctx context.Context) (int, error)
}

// Handle is a locally dereferenceable reference to a cached blob.
type Handle struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Result counts per-item outcomes of one materialize or restore pass.
type Result struct {
	Cached  int `json:"cached"`
	Fetched int `json:"fetched"`
	Missing int `json:"missing"`
	Failed  int `json:"failed"`
}

type Options struct {
	KeyMode     string
	Concurrency int
}

type Manager struct {
	store       BlobStore
	fetcher     Fetcher
	keyMode     string
	concurrency int
	logger      *slog.Logger
	inflight    singleflight.Group

	mu      sync.RWMutex
	handles map[string]Handle
}

func NewManager(store BlobStore, fetcher Fetcher, opts Options, logger *slog.Logger) *Manager {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.KeyMode != KeyModeHashed {
		opts.KeyMode = KeyModeFilename
	}
	return &Manager{
		store:       store,
		fetcher:     fetcher,
		keyMode:     opts.KeyMode,
		concurrency: opts.Concurrency,
		logger:      logger,
		handles:     map[string]Handle{},
	}
}

type outcome int

const (
	outcomeCached outcome = iota
	outcomeFetched
	outcomeMissing
	outcomeFailed
)

// Materialize makes every item of the playlist available locally, fetching
// what the store does not hold yet. Failures are logged per item.
func (m *Manager) Materialize(ctx context.Context, playlist model.Playlist) Result {
	return m.sync(ctx, playlist, true)
}

// Restore rebuilds handles for items already in the store without network access.
func (m *Manager) Restore(ctx context.Context, playlist model.Playlist) Result {
	return m.sync(ctx, playlist, false)
}

func (m *Manager) sync(ctx context.Context, playlist model.Playlist, fetch bool) Result {
	urls := lo.Uniq(lo.Filter(playlist.URLs(), func(u string, _ int) bool {
		return strings.TrimSpace(u) != ""
	}))

	var cached, fetched, missing, failed atomic.Int64
	count := func(o outcome) {
		switch o {
		case outcomeCached:
			cached.Add(1)
		case outcomeFetched:
			fetched.Add(1)
		case outcomeMissing:
			missing.Add(1)
		default:
			failed.Add(1)
		}
	}

	if m.concurrency <= 1 {
		for _, rawURL := range urls {
			count(m.syncOne(ctx, rawURL, fetch))
		}
	} else {
		var g errgroup.Group
		g.SetLimit(m.concurrency)
		for _, rawURL := range urls {
			rawURL := rawURL
			g.Go(func() error {
				count(m.syncOne(ctx, rawURL, fetch))
				return nil
			})
		}
		_ = g.Wait()
	}

	res := Result{
		Cached:  int(cached.Load()),
		Fetched: int(fetched.Load()),
		Missing: int(missing.Load()),
		Failed:  int(failed.Load()),
	}
	m.logger.Info("media sync finished",
		"fetch", fetch,
		"items", len(urls),
		"cached", res.Cached,
		"fetched", res.Fetched,
		"missing", res.Missing,
		"failed", res.Failed,
	)
	return res
}

func (m *Manager) syncOne(ctx context.Context, rawURL string, fetch bool) outcome {
	key := Key(rawURL, m.keyMode)
	flightKey := key
	if !fetch {
		flightKey = "restore:" + key
	}
	v, err, _ := m.inflight.Do(flightKey, func() (any, error) {
		return m.ensure(ctx, key, rawURL, fetch)
	})
	if err != nil {
		m.logger.Warn("media sync failed", "url", rawURL, "key", key, "err", err)
		return outcomeFailed
	}
	return v.(outcome)
}

func (m *Manager) ensure(ctx context.Context, key, rawURL string, fetch bool) (outcome, error) {
	exists, err := m.store.HasMedia(ctx, key)
	if err != nil {
		return outcomeFailed, fmt.Errorf("lookup %s: %w", key, err)
	}
	if exists {
		entry, err := m.store.GetMedia(ctx, key)
		if err != nil {
			return outcomeFailed, fmt.Errorf("read %s: %w", key, err)
		}
		m.record(entry)
		return outcomeCached, nil
	}
	if !fetch {
		return outcomeMissing, nil
	}

	asset, err := m.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return outcomeFailed, err
	}
	entry := model.CacheEntry{
		Key:         key,
		Data:        asset.Data,
		ContentType: DetectContentType(asset.Data, asset.ContentType, key),
		SourceURL:   rawURL,
		Size:        int64(len(asset.Data)),
		CreatedAt:   time.Now().UTC(),
	}
	if err := m.store.PutMedia(ctx, entry); err != nil {
		return outcomeFailed, fmt.Errorf("store %s: %w", key, err)
	}
	m.logger.Debug("media cached", "key", key, "bytes", entry.Size)
	m.record(entry)
	return outcomeFetched, nil
}

func (m *Manager) record(entry model.CacheEntry) {
	contentType := entry.ContentType
	if contentType == "" {
		contentType = DetectContentType(entry.Data, "", entry.Key)
	}
	h := Handle{
		Key:         entry.Key,
		URL:         HandlePrefix + url.PathEscape(entry.Key),
		ContentType: contentType,
		Size:        int64(len(entry.Data)),
	}
	m.mu.Lock()
	m.handles[entry.Key] = h
	m.mu.Unlock()
}

// Handle returns the local handle for a media URL if it has been materialized.
func (m *Manager) Handle(rawURL string) (Handle, bool) {
	key := Key(rawURL, m.keyMode)
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handles[key]
	return h, ok
}

// Handles returns a snapshot of the handle table ordered by key.
func (m *Manager) Handles() []Handle {
	m.mu.RLock()
	items := lo.Values(m.handles)
	m.mu.RUnlock()
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return items
}

// Open reads a cached blob by key for serving.
func (m *Manager) Open(ctx context.Context, key string) (model.CacheEntry, error) {
	entry, err := m.store.GetMedia(ctx, key)
	if err != nil {
		return model.CacheEntry{}, err
	}
	if entry.ContentType == "" {
		entry.ContentType = DetectContentType(entry.Data, "", key)
	}
	return entry, nil
}

// Keys lists every key held by the persistent store.
func (m *Manager) Keys(ctx context.Context) ([]string, error) {
	return m.store.ListMediaKeys(ctx)
}

// Reset drops in-memory handles; the persistent store is untouched.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.handles = map[string]Handle{}
	m.mu.Unlock()
}

// Purge deletes the entire persistent store and the handle table.
func (m *Manager) Purge(ctx context.Context) (int, error) {
	m.Reset()
	removed, err := m.store.PurgeMedia(ctx)
	if err != nil {
		return removed, fmt.Errorf("purge media cache: %w", err)
	}
	return removed, nil
}

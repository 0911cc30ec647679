package mediacache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/afero"

	"github.com/signage-player/webplayer/internal/model"
	"github.com/signage-player/webplayer/internal/storage"
)

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string][]byte
	calls  map[string]int
}

func newFakeFetcher(bodies map[string][]byte) *fakeFetcher {
	return &fakeFetcher{bodies: bodies, calls: map[string]int{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[rawURL]++
	body, ok := f.bodies[rawURL]
	if !ok {
		return Asset{}, fmt.Errorf("media fetch status 404: %s", rawURL)
	}
	return Asset{Data: append([]byte(nil), body...)}, nil
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSQLiteStore(t *testing.T) *storage.Repository {
	t.Helper()
	repo, err := storage.New(context.Background(), filepath.Join(t.TempDir(), "cache.db"), discardLogger())
	if err != nil {
		t.Fatalf("create storage: %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	return repo
}

func playlistOf(urls ...string) model.Playlist {
	items := make([]model.PlaylistItem, 0, len(urls))
	for i, u := range urls {
		items = append(items, model.PlaylistItem{Position: i, Media: model.MediaAsset{URL: u}})
	}
	return model.Playlist{Items: items}
}

func storesUnderTest(t *testing.T) map[string]BlobStore {
	t.Helper()
	fsStore, err := NewFSStore(afero.NewMemMapFs(), "/cache")
	if err != nil {
		t.Fatalf("create fs store: %v", err)
	}
	return map[string]BlobStore{
		"sqlite": newSQLiteStore(t),
		"fs":     fsStore,
	}
}

func TestMaterializeCachesByFilenameAndIsIdempotent(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			fetcher := newFakeFetcher(map[string][]byte{
				"https://cdn/x/a.png": []byte("\x89PNG\r\n\x1a\nfake"),
				"https://cdn/y/b.mp4": []byte("video-bytes"),
			})
			m := NewManager(store, fetcher, Options{}, discardLogger())
			playlist := playlistOf("https://cdn/x/a.png", "https://cdn/y/b.mp4")

			first := m.Materialize(ctx, playlist)
			if first.Fetched != 2 || first.Failed != 0 {
				t.Fatalf("first Materialize() = %+v, want 2 fetched", first)
			}
			keys, err := store.ListMediaKeys(ctx)
			if err != nil {
				t.Fatalf("list keys: %v", err)
			}
			if len(keys) != 2 {
				t.Fatalf("keys = %v, want 2 entries", keys)
			}
			if _, err := store.GetMedia(ctx, "a.png"); err != nil {
				t.Fatalf("GetMedia(a.png): %v", err)
			}

			second := m.Materialize(ctx, playlist)
			if second.Cached != 2 || second.Fetched != 0 {
				t.Fatalf("second Materialize() = %+v, want 2 cached", second)
			}
			if got := fetcher.total(); got != 2 {
				t.Fatalf("fetch calls = %d, want 2", got)
			}

			h, ok := m.Handle("https://cdn/x/a.png")
			if !ok {
				t.Fatalf("Handle() missing for a.png")
			}
			if h.URL != "/media/a.png" {
				t.Fatalf("Handle().URL = %q, want %q", h.URL, "/media/a.png")
			}
			if h.ContentType != "image/png" {
				t.Fatalf("Handle().ContentType = %q, want image/png", h.ContentType)
			}
		})
	}
}

func TestMaterializeContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher(map[string][]byte{
		"https://cdn/ok-1.jpg": []byte("one"),
		"https://cdn/ok-2.jpg": []byte("two"),
	})
	m := NewManager(newSQLiteStore(t), fetcher, Options{}, discardLogger())

	res := m.Materialize(ctx, playlistOf("https://cdn/ok-1.jpg", "https://cdn/missing.jpg", "https://cdn/ok-2.jpg"))
	if res.Fetched != 2 || res.Failed != 1 {
		t.Fatalf("Materialize() = %+v, want 2 fetched 1 failed", res)
	}
	if _, ok := m.Handle("https://cdn/missing.jpg"); ok {
		t.Fatalf("Handle() present for failed item")
	}
	if _, ok := m.Handle("https://cdn/ok-2.jpg"); !ok {
		t.Fatalf("Handle() missing for item after failure")
	}
}

func TestRestoreUsesCacheWithoutNetwork(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	body := []byte("GIF89a-cached-frame")
	fetcher := newFakeFetcher(map[string][]byte{"https://cdn/x/a.gif": body})
	playlist := playlistOf("https://cdn/x/a.gif", "https://cdn/x/never-fetched.png")

	warm := NewManager(store, fetcher, Options{}, discardLogger())
	warm.Materialize(ctx, playlistOf("https://cdn/x/a.gif"))
	if fetcher.total() != 1 {
		t.Fatalf("warm-up fetch calls = %d, want 1", fetcher.total())
	}

	restarted := NewManager(store, fetcher, Options{}, discardLogger())
	if _, ok := restarted.Handle("https://cdn/x/a.gif"); ok {
		t.Fatalf("fresh manager already has handles")
	}
	res := restarted.Restore(ctx, playlist)
	if res.Cached != 1 || res.Missing != 1 || res.Fetched != 0 {
		t.Fatalf("Restore() = %+v, want 1 cached 1 missing", res)
	}
	if fetcher.total() != 1 {
		t.Fatalf("Restore() hit the network: fetch calls = %d", fetcher.total())
	}

	h, ok := restarted.Handle("https://cdn/x/a.gif")
	if !ok {
		t.Fatalf("Handle() missing after restore")
	}
	entry, err := restarted.Open(ctx, h.Key)
	if err != nil {
		t.Fatalf("Open(): %v", err)
	}
	if !bytes.Equal(entry.Data, body) {
		t.Fatalf("restored content = %q, want %q", entry.Data, body)
	}
}

func TestPurgeEmptiesStoreAndHandles(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			fetcher := newFakeFetcher(map[string][]byte{
				"https://cdn/a.png": []byte("a"),
				"https://cdn/b.png": []byte("b"),
			})
			m := NewManager(store, fetcher, Options{}, discardLogger())
			m.Materialize(ctx, playlistOf("https://cdn/a.png", "https://cdn/b.png"))

			removed, err := m.Purge(ctx)
			if err != nil {
				t.Fatalf("Purge(): %v", err)
			}
			if removed != 2 {
				t.Fatalf("Purge() removed = %d, want 2", removed)
			}
			keys, err := m.Keys(ctx)
			if err != nil {
				t.Fatalf("Keys(): %v", err)
			}
			if len(keys) != 0 {
				t.Fatalf("keys after purge = %v, want none", keys)
			}
			if len(m.Handles()) != 0 {
				t.Fatalf("handles after purge = %v, want none", m.Handles())
			}
			if _, err := m.Open(ctx, "a.png"); !errors.Is(err, storage.ErrNotFound) {
				t.Fatalf("Open() after purge error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestConcurrentMaterializeFetchesEachKeyOnce(t *testing.T) {
	ctx := context.Background()
	bodies := map[string][]byte{}
	urls := []string{}
	for i := 0; i < 12; i++ {
		u := fmt.Sprintf("https://cdn/%d/slide-%d.png", i, i)
		bodies[u] = []byte(u)
		urls = append(urls, u)
	}
	// duplicate URLs collapse before fetching
	urls = append(urls, urls[0], urls[1])
	fetcher := newFakeFetcher(bodies)
	m := NewManager(newSQLiteStore(t), fetcher, Options{Concurrency: 4}, discardLogger())

	res := m.Materialize(ctx, playlistOf(urls...))
	if res.Fetched != 12 || res.Failed != 0 {
		t.Fatalf("Materialize() = %+v, want 12 fetched", res)
	}
	for u, n := range fetcher.calls {
		if n != 1 {
			t.Fatalf("url %s fetched %d times", u, n)
		}
	}
	if len(m.Handles()) != 12 {
		t.Fatalf("handles = %d, want 12", len(m.Handles()))
	}
}

func TestHashedKeyModeSeparatesSameFilename(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher(map[string][]byte{
		"https://cdn/a/logo.png": []byte("first"),
		"https://cdn/b/logo.png": []byte("second"),
	})
	m := NewManager(newSQLiteStore(t), fetcher, Options{KeyMode: KeyModeHashed}, discardLogger())

	res := m.Materialize(ctx, playlistOf("https://cdn/a/logo.png", "https://cdn/b/logo.png"))
	if res.Fetched != 2 {
		t.Fatalf("Materialize() = %+v, want 2 fetched", res)
	}
	a, _ := m.Handle("https://cdn/a/logo.png")
	b, _ := m.Handle("https://cdn/b/logo.png")
	if a.Key == b.Key {
		t.Fatalf("hashed keys collide: %q", a.Key)
	}
}

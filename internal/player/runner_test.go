package player

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRunnerReplacesSessionOnReload(t *testing.T) {
	f := newFixture(t, filepath.Join(t.TempDir(), "player.db"))
	runner := NewRunner(f.deps)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		runner.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	waitFor(t, "first session", func() bool { return runner.Session() != nil })
	first := runner.Session()
	if runner.Generation() != 0 {
		t.Fatalf("Generation() = %d, want 0", runner.Generation())
	}

	runner.RequestReload()
	waitFor(t, "reload", func() bool { return runner.Generation() == 1 && runner.Session() != first })
}

func TestRunnerReloadsAfterFullRefresh(t *testing.T) {
	f := newFixture(t, filepath.Join(t.TempDir(), "player.db"))
	runner := NewRunner(f.deps)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		runner.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	waitFor(t, "first session", func() bool { return runner.Session() != nil })
	runner.Session().Accept(ctx, assignmentFor(string(testCode), false, "https://cdn/x/a.png"))
	runner.Session().Accept(ctx, assignmentFor(string(testCode), true, "https://cdn/x/a.png", "https://cdn/x/b.png"))

	waitFor(t, "reload after full refresh", func() bool { return runner.Generation() == 1 })
	// the new session refetches the persisted playlist into the emptied store
	waitFor(t, "refetch", func() bool {
		keys, err := f.cache.Keys(ctx)
		return err == nil && len(keys) == 2
	})
	if f.fetcher.count() != 3 {
		t.Fatalf("fetches = %d, want 3", f.fetcher.count())
	}
}

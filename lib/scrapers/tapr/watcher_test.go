package tapr

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"taprscrape/lib/progress"

	"github.com/stretchr/testify/require"
)

type recordedMessages struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordedMessages) sink() progress.Sink {
	return progress.Func(func(message string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.lines = append(r.lines, message)
	})
}

func (r *recordedMessages) count(message string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, line := range r.lines {
		if line == message {
			n++
		}
	}
	return n
}

func fastWatch() WatchOptions {
	return WatchOptions{Timeout: 500 * time.Millisecond, Interval: 10 * time.Millisecond}
}

func touch(t *testing.T, dir, name string) {
	t.Helper()
	err := os.WriteFile(filepath.Join(dir, name), []byte("data"), 0o644)
	require.NoError(t, err)
}

func TestWaitForDownloadsEmptySet(t *testing.T) {
	rec := &recordedMessages{}
	start := time.Now()
	ok := WaitForDownloads(context.Background(), t.TempDir(), LevelDistrict, nil, 2021, fastWatch(), rec.sink())
	require.True(t, ok)
	require.Less(t, time.Since(start), 10*time.Millisecond)
	require.Empty(t, rec.lines)
}

func TestWaitForDownloadsAllPresent(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "DISTGRAD.csv")
	touch(t, dir, "DREF.csv")

	rec := &recordedMessages{}
	ok := WaitForDownloads(context.Background(), dir, LevelDistrict, []string{"GRAD", "REF"}, 2021, fastWatch(), rec.sink())
	require.True(t, ok)
	require.Equal(t, 1, rec.count("All downloads for 2021 completed successfully."))
}

func TestWaitForDownloadsTimeout(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "DISTGRAD.csv")

	rec := &recordedMessages{}
	opts := WatchOptions{Timeout: 80 * time.Millisecond, Interval: 10 * time.Millisecond}
	start := time.Now()
	ok := WaitForDownloads(context.Background(), dir, LevelDistrict, []string{"GRAD", "REF"}, 2021, opts, rec.sink())
	require.False(t, ok)
	require.GreaterOrEqual(t, time.Since(start), opts.Timeout-opts.Interval)
	// the waiting notice only appears once no matter how many polls ran
	require.Equal(t, 1, rec.count("Waiting for all files to download..."))
}

func TestWaitForDownloadsInProgressMarker(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "DISTGRAD.csv")
	touch(t, dir, "DISTGRAD.csv.crdownload")

	opts := WatchOptions{Timeout: 60 * time.Millisecond, Interval: 10 * time.Millisecond}
	ok := WaitForDownloads(context.Background(), dir, LevelDistrict, []string{"GRAD"}, 2021, opts, progress.Discard())
	require.False(t, ok)
}

func TestWaitForDownloadsLateArrival(t *testing.T) {
	dir := t.TempDir()
	go func() {
		time.Sleep(30 * time.Millisecond)
		os.WriteFile(filepath.Join(dir, "DISTGRAD.dat"), []byte("data"), 0o644)
	}()

	ok := WaitForDownloads(context.Background(), dir, LevelDistrict, []string{"GRAD"}, 2019, fastWatch(), progress.Discard())
	require.True(t, ok)
}

func TestWaitForDownloadsContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := WatchOptions{Timeout: time.Minute, Interval: 10 * time.Millisecond}
	start := time.Now()
	ok := WaitForDownloads(ctx, t.TempDir(), LevelDistrict, []string{"GRAD"}, 2021, opts, progress.Discard())
	require.False(t, ok)
	require.Less(t, time.Since(start), time.Second)
}

package tapr

import (
	"context"
	"fmt"
	"os"
	"time"

	"taprscrape/lib/progress"
)

// Chrome writes an in-flight download next to its final name with this
// marker extension and renames it when the transfer finishes.
const inProgressExt = ".crdownload"

type WatchOptions struct {
	// Total wall time allowed from call start. Defaults to 200s.
	Timeout time.Duration
	// Delay between directory polls. Defaults to 5s.
	Interval time.Duration
}

func (o WatchOptions) withDefaults() WatchOptions {
	if o.Timeout == 0 {
		o.Timeout = 200 * time.Second
	}
	if o.Interval == 0 {
		o.Interval = 5 * time.Second
	}
	return o
}

// WaitForDownloads blocks until every variable's expected download file
// exists in dir with no in-progress marker, or the timeout elapses.
// An empty variable set is vacuously complete and returns true without
// polling. Returns false on timeout or context cancellation.
func WaitForDownloads(ctx context.Context, dir string, level Level, variables []string, year int, opts WatchOptions, sink progress.Sink) bool {
	opts = opts.withDefaults()

	expected := make([]string, 0, len(variables))
	for _, v := range variables {
		expected = append(expected, ExpectedDownloadName(level, v, year))
	}
	if len(expected) == 0 {
		return true
	}

	start := time.Now()
	first := true
	for time.Since(start) < opts.Timeout {
		if allDownloaded(dir, expected) {
			sink.Write(fmt.Sprintf("All downloads for %d completed successfully.", year))
			return true
		}

		if first {
			sink.Write("Waiting for all files to download...")
			first = false
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(opts.Interval):
		}
	}
	return false
}

func allDownloaded(dir string, expected []string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		present[e.Name()] = true
	}

	for _, name := range expected {
		if !present[name] || present[name+inProgressExt] {
			return false
		}
	}
	return true
}

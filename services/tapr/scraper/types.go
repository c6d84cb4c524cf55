package scraper

import (
	"context"
	"time"

	"taprscrape/lib/progress"
	"taprscrape/lib/scrapers/tapr"
)

// Request describes one batch run. It is validated once at the
// boundary and passed by value; nothing in the pipeline mutates it.
type Request struct {
	// Dir is an existing directory that receives one raw_data<year>
	// folder per requested year.
	Dir       string
	Years     []int
	Variables []string
	Level     tapr.Level
	// DistrictType requests the district type dataset alongside
	// district-level runs.
	DistrictType bool
}

// Outcome classifies what happened to one (year, variable) pair.
type Outcome string

const (
	// The canonical file already existed, the portal was not touched.
	OutcomeAlreadyPresent Outcome = "already_present"
	// The portal served the file and it was renamed into place.
	OutcomeDownloaded Outcome = "downloaded"
	// The portal has no selection control for the variable this year.
	OutcomeUnavailable Outcome = "unavailable"
	// The download never materialized before the watch timeout.
	OutcomeTimedOut Outcome = "timed_out"
)

type YearReport struct {
	Year int
	// Dir is the year's working directory.
	Dir        string
	Skipped    bool
	SkipReason string
	TimedOut   bool
	Outcomes   map[string]Outcome
}

type Report struct {
	Years []YearReport
}

// DistrictTypeFetcher returns the tabular district type data for a
// year, or an error when the year has none.
type DistrictTypeFetcher interface {
	FetchYear(ctx context.Context, year int) ([][]string, error)
}

type Options struct {
	// Browser opens one browser session per year.
	Browser tapr.BrowserFactory
	// DistrictType serves district type data; only consulted for
	// district-level requests with Request.DistrictType set.
	DistrictType DistrictTypeFetcher
	// Sink receives user-facing progress lines. Defaults to slog.
	Sink  progress.Sink
	Watch tapr.WatchOptions
	// BaseUrl of the download portal, without trailing slash.
	BaseUrl string
	// SettleDelay is the pause between selecting a dataset and
	// submitting the form, giving the page time to register the
	// selection. Defaults to 1s.
	SettleDelay time.Duration
}

const defaultBaseUrl = "https://rptsvr1.tea.texas.gov/perfreport/tapr"

// Package scraper orchestrates batch downloads from the TAPR advanced
// download portal: one browser session per year, one variable at a
// time, with filesystem state deciding what still needs fetching.
package scraper

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"taprscrape/lib/progress"
	"taprscrape/lib/scrapers/tapr"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/tapr/scraper")

type scraper struct {
	opts Options
	req  Request
	sink progress.Sink
}

// Scrape runs the batch described by req. Failures are scoped to the
// year or variable they occur in; only an invalid request returns an
// error.
func Scrape(ctx context.Context, opts Options, req Request) (*Report, error) {
	info, err := os.Stat(req.Dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s is not a valid directory", req.Dir)
	}
	if !req.Level.Valid() {
		return nil, fmt.Errorf("invalid level %q, must be one of: C, D, R, S", string(req.Level))
	}
	if len(req.Years) == 0 {
		return nil, fmt.Errorf("no years requested")
	}
	if len(req.Variables) == 0 {
		return nil, fmt.Errorf("no variables requested")
	}
	if opts.Browser == nil {
		return nil, fmt.Errorf("no browser factory configured")
	}
	if opts.Sink == nil {
		opts.Sink = progress.Slog()
	}
	if opts.BaseUrl == "" {
		opts.BaseUrl = defaultBaseUrl
	}
	if opts.SettleDelay == 0 {
		opts.SettleDelay = time.Second
	}

	s := scraper{opts: opts, req: req, sink: opts.Sink}

	report := &Report{}
	for _, year := range req.Years {
		report.Years = append(report.Years, s.scrapeYear(ctx, year))
	}

	s.sink.Write("All Data Downloaded!")
	return report, nil
}

func (s scraper) scrapeYear(ctx context.Context, year int) YearReport {
	ctx, span := tracer.Start(ctx, "scrapeYear")
	defer span.End()
	span.SetAttributes(attribute.Int("year", year))

	dir := filepath.Join(s.req.Dir, fmt.Sprintf("raw_data%d", year))
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		slog.WarnContext(ctx, "failed to create year directory", "dir", dir, "err", err)
		return YearReport{Year: year, Dir: dir, Skipped: true, SkipReason: "failed to create year directory"}
	}

	rep := s.downloadYear(ctx, year, dir)
	if rep.Skipped {
		span.SetStatus(codes.Error, rep.SkipReason)
		return rep
	}

	if s.req.Level == tapr.LevelDistrict && s.req.DistrictType {
		s.fetchDistrictType(ctx, dir, year)
	}

	// Legacy .dat files get a .csv sibling no matter how the rest of
	// the year went.
	tapr.ConvertDatFiles(dir, s.sink)
	return rep
}

// downloadYear holds the browser session; it is released on every exit
// path so the next year starts from a clean slate.
func (s scraper) downloadYear(ctx context.Context, year int, dir string) YearReport {
	rep := YearReport{Year: year, Dir: dir, Outcomes: map[string]Outcome{}}
	level := s.req.Level

	// Filesystem state decides what still needs the portal. When every
	// variable is already present there is nothing to fetch and no
	// browser session is opened at all.
	var pending []string
	for _, variable := range s.req.Variables {
		s.sink.Write(fmt.Sprintf("Checking for %s%s data...", level.Prefix(), variable))
		if tapr.AlreadyPresent(dir, level, variable, year) {
			rep.Outcomes[variable] = OutcomeAlreadyPresent
			s.sink.Write(fmt.Sprintf("%s_%d already exists", variable, year))
			continue
		}
		pending = append(pending, variable)
	}
	if len(pending) == 0 {
		return rep
	}

	skip := func(reason string) YearReport {
		rep.Skipped = true
		rep.SkipReason = reason
		return rep
	}

	browser, err := s.opts.Browser(ctx, dir)
	if err != nil {
		slog.WarnContext(ctx, "failed to open browser", "year", year, "err", err)
		return skip("failed to open browser")
	}
	defer func() {
		err := browser.Close()
		if err != nil {
			slog.WarnContext(ctx, "failed to close browser", "year", year, "err", err)
		}
	}()

	url := fmt.Sprintf("%s/%d/download/DownloadData.html", s.opts.BaseUrl, year)
	err = browser.Navigate(ctx, url)
	if err != nil {
		slog.WarnContext(ctx, "failed to load download page", "url", url, "err", err)
		return skip("failed to load download page")
	}

	text, err := browser.PageText(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to read download page", "url", url, "err", err)
		return skip("failed to read download page")
	}
	if strings.Contains(text, "Page Not Found") || strings.Contains(text, "404") {
		s.sink.Write(fmt.Sprintf("Year %d does not exist. Skipping...", year))
		return skip("year not available")
	}

	err = browser.SelectRadio(ctx, "sumlev", string(level))
	if err != nil {
		slog.WarnContext(ctx, "failed to select level", "level", string(level), "err", err)
		return skip("level control not found")
	}

	s.sink.Write(fmt.Sprintf("Downloading %s Level TAPR Data for %d...", level.Name(), year))

	var watch []string
	for _, variable := range pending {
		err := browser.SelectRadio(ctx, "setpick", variable)
		if err == nil {
			time.Sleep(s.opts.SettleDelay)
			err = browser.ClickSubmit(ctx, "Continue")
		}
		if err != nil {
			// Single attempt per variable, a missing control means
			// the portal has nothing for it this year.
			rep.Outcomes[variable] = OutcomeUnavailable
			s.sink.Write(fmt.Sprintf("%s not found for %d", variable, year))
			continue
		}

		token := level.Prefix()
		if variable == "REF" {
			token = string(level)
		}
		s.sink.Write(fmt.Sprintf("Downloaded %s%s for %d", token, variable, year))
		watch = append(watch, variable)
	}

	if tapr.WaitForDownloads(ctx, dir, level, watch, year, s.opts.Watch, s.sink) {
		for _, variable := range watch {
			_, err := tapr.RenameCanonical(dir, level, variable, year)
			if err != nil {
				slog.WarnContext(ctx, "failed to rename download", "variable", variable, "err", err)
			}
			rep.Outcomes[variable] = OutcomeDownloaded
		}
	} else if len(watch) > 0 {
		for _, variable := range watch {
			rep.Outcomes[variable] = OutcomeTimedOut
		}
		rep.TimedOut = true
		s.sink.Write(fmt.Sprintf("Timed out waiting for downloads for %d", year))
	}

	return rep
}

func (s scraper) fetchDistrictType(ctx context.Context, dir string, year int) {
	ctx, span := tracer.Start(ctx, "fetchDistrictType")
	defer span.End()
	span.SetAttributes(attribute.Int("year", year))

	s.sink.Write(fmt.Sprintf("Downloading District Type Data for %d...", year))

	path := filepath.Join(dir, fmt.Sprintf("district_type%d.csv", year))
	if _, err := os.Stat(path); err == nil {
		s.sink.Write(fmt.Sprintf("District Type Data for %d already exists", year))
		return
	}

	if s.opts.DistrictType == nil {
		slog.WarnContext(ctx, "no district type fetcher configured")
		return
	}

	rows, err := s.opts.DistrictType.FetchYear(ctx, year)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch district type data")
		slog.WarnContext(ctx, "failed to fetch district type data", "year", year, "err", err)
		s.sink.Write(fmt.Sprintf("Failed to retrieve District Type Data for %d. Skipping...", year))
		return
	}

	err = writeCSV(path, rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write district type csv")
		slog.WarnContext(ctx, "failed to write district type csv", "path", path, "err", err)
		return
	}
	s.sink.Write(fmt.Sprintf("Downloaded District Type Data for %d", year))
}

func writeCSV(path string, rows [][]string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	writer := csv.NewWriter(out)
	err = writer.WriteAll(rows)
	if err != nil {
		return err
	}
	return out.Sync()
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"taprscrape/lib/configutil"
	"taprscrape/lib/osutil"
	"taprscrape/lib/progress"
	"taprscrape/lib/scrapers/disttype"
	"taprscrape/lib/scrapers/tapr"
	"taprscrape/lib/telemetry"
	"taprscrape/lib/util/serviceutil"
	"taprscrape/services/tapr/scraper"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

type Config struct {
	BaseUrl             string `json:"base_url"`
	DistrictTypeBaseUrl string `json:"district_type_base_url"`
	TimeoutSeconds      int    `json:"timeout_seconds"`
}

var (
	flagDir          string
	flagYears        string
	flagVariables    string
	flagLevel        string
	flagDistrictType bool
	flagTimeout      int
	flagVerbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "taprscrape",
	Short: "taprscrape downloads TAPR datasets from the TEA reporting site.",
	Long: `taprscrape drives the TAPR advanced download portal for a set of
school years and variable codes, waits for the downloads to land,
renames them into stable per-year file names and converts legacy .dat
files to .csv. District-level runs also pull the district type dataset.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&flagDir, "dir", "", "directory to download data into (required)")
	rootCmd.Flags().StringVar(&flagYears, "years", "", "comma-separated school years, e.g. 2019,2021 (required)")
	rootCmd.Flags().StringVar(&flagVariables, "variables", "", "comma-separated variable codes, e.g. REF,GRAD (required)")
	rootCmd.Flags().StringVar(&flagLevel, "level", "", "level of data: Campus, District, Region or State (required)")
	rootCmd.Flags().BoolVar(&flagDistrictType, "district-type", true, "also fetch district type data on district-level runs")
	rootCmd.Flags().IntVar(&flagTimeout, "timeout", 0, "seconds to wait for each year's downloads (default 200)")
	rootCmd.Flags().BoolVar(&flagVerbose, "verbose", false, "enable debug logging")

	rootCmd.MarkFlagRequired("dir")
	rootCmd.MarkFlagRequired("years")
	rootCmd.MarkFlagRequired("variables")
	rootCmd.MarkFlagRequired("level")
}

func initSlog(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)
}

func run(cmd *cobra.Command, args []string) error {
	initSlog(flagVerbose)
	ctx := osutil.SignalContext()

	tel, err := telemetry.SetupFromEnv(ctx, "taprscrape")
	if err == nil {
		defer tel.Shutdown(context.Background())
	} else if !os.IsNotExist(err) {
		serviceutil.Fatal("failed to setup telemetry", err)
	}

	cfg, err := configutil.ReadConfig[Config]("taprscrape.json5")
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	level, err := tapr.ParseLevel(flagLevel)
	if err != nil {
		return err
	}

	timeout := flagTimeout
	if timeout == 0 {
		timeout = cfg.TimeoutSeconds
	}

	districtType, err := disttype.NewClient(disttype.ClientOptions{
		BaseUrl: cfg.DistrictTypeBaseUrl,
	})
	if err != nil {
		return err
	}

	report, err := scraper.Scrape(ctx, scraper.Options{
		Browser:      tapr.NewChromeBrowser,
		DistrictType: districtType,
		Sink:         progress.Writer(cmd.OutOrStdout()),
		Watch:        tapr.WatchOptions{Timeout: time.Duration(timeout) * time.Second},
		BaseUrl:      cfg.BaseUrl,
	}, scraper.Request{
		Dir:          flagDir,
		Years:        parseYears(flagYears),
		Variables:    parseList(flagVariables),
		Level:        level,
		DistrictType: flagDistrictType,
	})
	if err != nil {
		return err
	}

	renderReport(cmd, report)
	return nil
}

func parseYears(s string) []int {
	var years []int
	for _, part := range strings.Split(s, ",") {
		year, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		years = append(years, year)
	}
	return years
}

func parseList(s string) []string {
	var items []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			items = append(items, part)
		}
	}
	return items
}

func renderReport(cmd *cobra.Command, report *scraper.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"Year", "Variable", "Outcome"})
	for _, yr := range report.Years {
		if yr.Skipped {
			t.AppendRow(table.Row{yr.Year, "-", fmt.Sprintf("skipped: %s", yr.SkipReason)})
			continue
		}
		for _, variable := range sortedKeys(yr.Outcomes) {
			t.AppendRow(table.Row{yr.Year, variable, string(yr.Outcomes[variable])})
		}
	}
	t.Render()
}

func sortedKeys(m map[string]scraper.Outcome) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Package disttype pulls the yearly district type classification
// spreadsheet off the TEA district type data search pages.
package disttype

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http/cookiejar"
	"strings"
	"time"

	"taprscrape/lib/htmlutil"
	"taprscrape/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/xuri/excelize/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("scrapers/disttype")

var ErrNoSpreadsheet = errors.New("no spreadsheet link found on district type page")

// The district type workbook keeps its data on the third sheet; the
// first two are notes and a summary.
const dataSheetIndex = 2

const defaultBaseUrl = "https://tea.texas.gov"

type Client struct {
	baseUrl string
	http    *resty.Client
}

type ClientOptions struct {
	// BaseUrl overrides the TEA host, for tests.
	BaseUrl string
}

func NewClient(opts ClientOptions) (*Client, error) {
	baseUrl := opts.BaseUrl
	if baseUrl == "" {
		baseUrl = defaultBaseUrl
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "scrapers/disttype/http")

	return &Client{
		baseUrl: baseUrl,
		http:    client,
	}, nil
}

// SchoolYear converts an ending year into the academic year token the
// page urls use, e.g. 2024 -> "2023-24".
func SchoolYear(year int) string {
	return fmt.Sprintf("%d-%02d", year-1, year%100)
}

// FetchYear returns the rows of the district type data sheet for the
// school year ending in the given year.
func (c *Client) FetchYear(ctx context.Context, year int) ([][]string, error) {
	ctx, span := tracer.Start(ctx, "client:FetchYear")
	defer span.End()
	span.SetAttributes(attribute.Int("year", year))

	pageUrl := fmt.Sprintf(
		"%s/reports-and-data/school-data/district-type-data-search/district-type-%s",
		c.baseUrl, SchoolYear(year),
	)
	res, err := c.http.R().
		SetContext(ctx).
		Get(pageUrl)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch district type page")
		return nil, err
	}
	if res.StatusCode() != 200 {
		span.SetStatus(codes.Error, "district type page unavailable")
		return nil, fmt.Errorf("could not access %s (status code: %d)", pageUrl, res.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse district type page html")
		return nil, err
	}

	fileUrl := c.findSpreadsheetLink(doc)
	if fileUrl == "" {
		span.SetStatus(codes.Error, ErrNoSpreadsheet.Error())
		return nil, fmt.Errorf("%w: %s", ErrNoSpreadsheet, pageUrl)
	}
	span.AddEvent("found spreadsheet", trace.WithAttributes(attribute.String("url", fileUrl)))

	return c.fetchSheet(ctx, fileUrl)
}

// findSpreadsheetLink returns the absolute url of the first xlsx link
// on the page in document order, or "".
func (c *Client) findSpreadsheetLink(doc *goquery.Document) string {
	for _, anchor := range htmlutil.GetAnchors(doc.Find("a")) {
		if !strings.HasSuffix(strings.ToLower(anchor.Href), ".xlsx") {
			continue
		}
		if strings.HasPrefix(anchor.Href, "/") {
			return c.baseUrl + anchor.Href
		}
		return anchor.Href
	}
	return ""
}

func (c *Client) fetchSheet(ctx context.Context, fileUrl string) ([][]string, error) {
	ctx, span := tracer.Start(ctx, "client:fetchSheet")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		Get(fileUrl)
	if err != nil {
		span.SetStatus(codes.Error, "failed to download spreadsheet")
		return nil, err
	}
	if res.StatusCode() != 200 {
		span.SetStatus(codes.Error, "spreadsheet download failed")
		return nil, fmt.Errorf("could not download %s (status code: %d)", fileUrl, res.StatusCode())
	}

	workbook, err := excelize.OpenReader(bytes.NewReader(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to open workbook")
		return nil, err
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	if len(sheets) <= dataSheetIndex {
		span.SetStatus(codes.Error, "workbook missing data sheet")
		return nil, fmt.Errorf("workbook has %d sheets, expected at least %d", len(sheets), dataSheetIndex+1)
	}
	rows, err := workbook.GetRows(sheets[dataSheetIndex])
	if err != nil {
		span.SetStatus(codes.Error, "failed to read data sheet")
		return nil, err
	}
	return rows, nil
}

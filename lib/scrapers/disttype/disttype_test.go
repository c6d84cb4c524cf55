package disttype

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"taprscrape/lib/telemetry"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestSchoolYear(t *testing.T) {
	require.Equal(t, "2023-24", SchoolYear(2024))
	require.Equal(t, "2018-19", SchoolYear(2019))
	require.Equal(t, "2004-05", SchoolYear(2005))
}

var districtTypeRows = [][]string{
	{"DISTRICT", "DISTRICT NAME", "TYPE"},
	{"001902", "CAYUGA ISD", "Rural"},
	{"101912", "HOUSTON ISD", "Major Urban"},
}

func buildWorkbook(t *testing.T) []byte {
	t.Helper()
	workbook := excelize.NewFile()
	defer workbook.Close()

	// data lives on the third sheet, like the real workbook
	_, err := workbook.NewSheet("Contents")
	require.NoError(t, err)
	_, err = workbook.NewSheet("District Type")
	require.NoError(t, err)

	for i, row := range districtTypeRows {
		cells := make([]interface{}, len(row))
		for j, cell := range row {
			cells[j] = cell
		}
		err := workbook.SetSheetRow("District Type", fmt.Sprintf("A%d", i+1), &cells)
		require.NoError(t, err)
	}

	buf, err := workbook.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func setupServer(t *testing.T, pageHtml string, workbook []byte) *Client {
	t.Helper()
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/disttype")
	t.Cleanup(cleanup)

	mux := http.NewServeMux()
	mux.HandleFunc("/reports-and-data/school-data/district-type-data-search/district-type-2023-24",
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, pageHtml)
		})
	if workbook != nil {
		mux.HandleFunc("/sites/default/files/district-type.xlsx",
			func(w http.ResponseWriter, r *http.Request) {
				w.Write(workbook)
			})
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientOptions{BaseUrl: server.URL})
	require.NoError(t, err)
	return client
}

func TestFetchYear(t *testing.T) {
	page := `<html><body>
		<a href="/about">About</a>
		<a href="/sites/default/files/district-type.xlsx">District Type 2023-24 (XLSX)</a>
	</body></html>`
	client := setupServer(t, page, buildWorkbook(t))

	rows, err := client.FetchYear(context.Background(), 2024)
	require.NoError(t, err)

	diff := cmp.Diff(districtTypeRows, rows)
	require.Empty(t, diff)
}

func TestFetchYearPageMissing(t *testing.T) {
	client := setupServer(t, "irrelevant", nil)

	// no page registered for 2019-20, the mux answers 404
	_, err := client.FetchYear(context.Background(), 2020)
	require.Error(t, err)
}

func TestFetchYearNoSpreadsheetLink(t *testing.T) {
	page := `<html><body><a href="/about">About</a></body></html>`
	client := setupServer(t, page, nil)

	_, err := client.FetchYear(context.Background(), 2024)
	require.ErrorIs(t, err, ErrNoSpreadsheet)
}

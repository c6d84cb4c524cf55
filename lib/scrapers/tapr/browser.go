package tapr

import (
	"context"
	"errors"
)

// ErrControlNotFound is reported when a page control the download
// protocol needs is missing, e.g. a variable that does not exist for
// the selected year.
var ErrControlNotFound = errors.New("page control not found")

// Browser is the capability the download protocol needs from a browser
// session. Implementations hold one stateful page at a time; a session
// is scoped to a single year's downloads and must be closed before the
// next one starts.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	// SelectRadio clicks the radio input identified by its group
	// (name attribute) and value.
	SelectRadio(ctx context.Context, group, value string) error
	// ClickSubmit clicks the submit input carrying the given label.
	ClickSubmit(ctx context.Context, label string) error
	PageText(ctx context.Context) (string, error)
	Close() error
}

// BrowserFactory opens a browser session whose downloads land in
// downloadDir.
type BrowserFactory func(ctx context.Context, downloadDir string) (Browser, error)

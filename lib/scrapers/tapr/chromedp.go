package tapr

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
)

const (
	navigateTimeout = 30 * time.Second
	controlTimeout  = 10 * time.Second
)

type chromeBrowser struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// NewChromeBrowser starts a headless Chrome session that saves
// downloads into downloadDir without prompting.
func NewChromeBrowser(ctx context.Context, downloadDir string) (Browser, error) {
	absDir, err := filepath.Abs(downloadDir)
	if err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	b := &chromeBrowser{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}

	err = b.run(ctx, navigateTimeout,
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(absDir),
	)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to configure download dir: %w", err)
	}
	return b, nil
}

// run executes actions against the tab, bounded by timeout and by the
// caller's context.
func (b *chromeBrowser) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(b.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (b *chromeBrowser) Navigate(ctx context.Context, url string) error {
	return b.run(ctx, navigateTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (b *chromeBrowser) SelectRadio(ctx context.Context, group, value string) error {
	sel := fmt.Sprintf(`input[type="radio"][name=%q][value=%q]`, group, value)
	err := b.run(ctx, controlTimeout, chromedp.Click(sel, chromedp.ByQuery))
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: radio %s=%s", ErrControlNotFound, group, value)
	}
	return err
}

func (b *chromeBrowser) ClickSubmit(ctx context.Context, label string) error {
	sel := fmt.Sprintf(`input[type="submit"][value=%q]`, label)
	err := b.run(ctx, controlTimeout, chromedp.Click(sel, chromedp.ByQuery))
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: submit %q", ErrControlNotFound, label)
	}
	return err
}

func (b *chromeBrowser) PageText(ctx context.Context) (string, error) {
	var text string
	err := b.run(ctx, controlTimeout, chromedp.Text("body", &text, chromedp.ByQuery))
	if err != nil {
		return "", err
	}
	return text, nil
}

func (b *chromeBrowser) Close() error {
	err := chromedp.Cancel(b.ctx)
	b.cancelTab()
	b.cancelAlloc()
	return err
}

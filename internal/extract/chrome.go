package extract

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// pageTextJS mirrors chooseText inside the browser, where innerText reflects
// rendered layout.
const pageTextJS = `(() => {
  const body = document.body;
  const inner = ((body && body.innerText) || '').trim();
  if (inner.length > 200) return inner;
  return ((body && body.textContent) || '').replace(/\s+/g, ' ').trim();
})()`

// ChromeExtractor renders pages in a shared headless Chrome, one tab per call.
type ChromeExtractor struct {
	opts          options
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewChromeExtractor starts the browser allocator. Close releases it.
func NewChromeExtractor(opts ...Option) (*ChromeExtractor, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(),
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.UserAgent(userAgent),
		)...,
	)

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, err
	}

	return &ChromeExtractor{
		opts:          buildOptions(opts),
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Extract opens url in a new tab and reads its title and text.
func (e *ChromeExtractor) Extract(ctx context.Context, url string) (*Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(e.browserCtx)
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	navCtx, navCancel := context.WithTimeout(tabCtx, e.opts.navTimeout)
	defer navCancel()

	start := time.Now()
	resp, err := chromedp.RunResponse(navCtx, chromedp.Navigate(url))
	if err != nil {
		slog.Warn("navigation failed", "url", url, "error", err)
		return &Page{}, nil
	}

	page := &Page{}
	if resp != nil {
		page.Status = intPtr(int(resp.Status))
	}

	var title, text string
	if err := chromedp.Run(navCtx,
		chromedp.Title(&title),
		chromedp.Evaluate(pageTextJS, &text),
	); err != nil {
		slog.Warn("page text read failed", "url", url, "error", err)
	}

	page.Title = strings.TrimSpace(title)
	page.Text = text

	slog.Debug("page rendered", "url", url, "status", page.Status, "text_len", len(text), "elapsed", time.Since(start))
	return page, nil
}

// Close shuts the browser down.
func (e *ChromeExtractor) Close() error {
	e.browserCancel()
	e.allocCancel()
	return nil
}

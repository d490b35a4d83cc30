package goodreads

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const defaultBrowserTimeout = 60 * time.Second

var (
	chromedpExecAllocator = chromedp.NewExecAllocator
	chromedpContext       = chromedp.NewContext
	chromedpRunner        = chromedp.Run
	chromedpRunResponse   = chromedp.RunResponse
	capturePageHTML       = outerHTML
)

// BrowserTransport renders pages in headless Chrome. It is unauthenticated
// like HTTPTransport; it only helps when a plain client gets an incomplete page.
type BrowserTransport struct {
	Headless bool
	Timeout  time.Duration
	// Headers are sent with every request the browser makes
	Headers map[string]string
}

// NewBrowserTransport returns a headless transport
func NewBrowserTransport() *BrowserTransport {
	return &BrowserTransport{
		Headless: true,
		Timeout:  defaultBrowserTimeout,
		Headers:  map[string]string{"Accept-Language": "en-US,en;q=0.9"},
	}
}

// Fetch navigates to pageURL and returns the rendered document
func (b *BrowserTransport) Fetch(parentCtx context.Context, pageURL string) ([]byte, int, error) {
	timeout := b.Timeout
	if timeout == 0 {
		timeout = defaultBrowserTimeout
	}
	ctx, cancel := context.WithTimeout(parentCtx, timeout)
	defer cancel()

	allocCtx, cancelAllocator := chromedpExecAllocator(ctx, b.allocatorOptions()...)
	defer cancelAllocator()

	browserCtx, cancelBrowser := chromedpContext(allocCtx)
	defer cancelBrowser()

	if len(b.Headers) > 0 {
		headers := make(network.Headers, len(b.Headers))
		for k, v := range b.Headers {
			headers[k] = v
		}
		if err := chromedpRunner(browserCtx, network.Enable(), network.SetExtraHTTPHeaders(headers)); err != nil {
			return nil, 0, fmt.Errorf("failed to configure browser headers: %w", err)
		}
	}

	resp, err := chromedpRunResponse(browserCtx, chromedp.Navigate(pageURL))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to navigate to %s: %w", pageURL, err)
	}

	status := http.StatusOK
	if resp != nil {
		status = int(resp.Status)
	}
	if status < 200 || status >= 300 {
		return nil, status, nil
	}

	html, err := capturePageHTML(browserCtx)
	if err != nil {
		return nil, status, fmt.Errorf("failed to read rendered page: %w", err)
	}

	slog.Debug("Rendered page in browser", "url", pageURL, "bytes", len(html))
	return []byte(html), status, nil
}

func (b *BrowserTransport) allocatorOptions() []chromedp.ExecAllocatorOption {
	return []chromedp.ExecAllocatorOption{
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoFirstRun,
		chromedp.Flag("headless", b.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-default-apps", true),
	}
}

func outerHTML(ctx context.Context) (string, error) {
	var html string
	if err := chromedpRunner(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// NewTransport returns the transport registered under name
func NewTransport(name string) (Transport, error) {
	switch name {
	case "", "http":
		return NewHTTPTransport(), nil
	case "browser":
		return NewBrowserTransport(), nil
	default:
		return nil, fmt.Errorf("unknown transport %q; valid transports are: http, browser", name)
	}
}

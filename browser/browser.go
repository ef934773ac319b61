// Package browser wraps a headless Chrome tab behind the narrow
// capability surface the extractor needs: navigate, observe captured
// network exchanges, fetch response bodies, and snapshot the rendered
// DOM.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Exchange is one network response event captured while a page loaded.
type Exchange struct {
	RequestID string
	URL       string
	Status    int64
	MimeType  string
}

// Page is the capability surface consumed by the extractor. The
// chromedp implementation below is the production one; tests substitute
// in-memory fakes.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Exchanges() []Exchange
	ResponseBody(ctx context.Context, requestID string) ([]byte, error)
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Options configures a Chrome tab.
type Options struct {
	Headless  bool
	UserAgent string
	// Timeout bounds a single navigation, body fetch, or DOM snapshot.
	Timeout time.Duration
}

// ChromePage drives one headless Chrome tab. Each tracking session owns
// exactly one ChromePage for its lifetime; Close is safe to call more
// than once and from a goroutine other than the one running the page.
type ChromePage struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	timeout     time.Duration

	mu        sync.Mutex
	exchanges []Exchange

	closeOnce sync.Once
}

// NewChromePage launches a browser tab with network capture enabled.
func NewChromePage(opts Options) (*ChromePage, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	p := &ChromePage{
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		timeout:     opts.Timeout,
	}

	chromedp.ListenTarget(ctx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Response == nil {
			return
		}
		p.mu.Lock()
		p.exchanges = append(p.exchanges, Exchange{
			RequestID: string(resp.RequestID),
			URL:       resp.Response.URL,
			Status:    resp.Response.Status,
			MimeType:  resp.Response.MimeType,
		})
		p.mu.Unlock()
	})

	if err := chromedp.Run(ctx, network.Enable()); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	return p, nil
}

// Navigate loads url in the tab and resets the captured exchange log so
// a cycle only observes its own traffic.
func (p *ChromePage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	p.exchanges = nil
	p.mu.Unlock()

	runCtx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Exchanges returns the responses captured since the last Navigate, in
// the order they were observed.
func (p *ChromePage) Exchanges() []Exchange {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Exchange, len(p.exchanges))
	copy(out, p.exchanges)
	return out
}

// ResponseBody fetches the body of a captured exchange from the
// browser's network buffer.
func (p *ChromePage) ResponseBody(ctx context.Context, requestID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	var body []byte
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(network.RequestID(requestID)).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("response body %s: %w", requestID, err)
	}
	return body, nil
}

// HTML snapshots the rendered document.
func (p *ChromePage) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	runCtx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("snapshot dom: %w", err)
	}
	return html, nil
}

// Close tears down the tab and the browser process. In-flight calls
// fail with a cancellation error, which callers treat as a transient
// extraction failure.
func (p *ChromePage) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		p.allocCancel()
	})
	return nil
}

package documents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Renderer turns an HTML page into a file body. Ext is the file extension
// the output should be stored under.
type Renderer interface {
	Render(ctx context.Context, html string) ([]byte, error)
	Ext() string
}

// HTMLRenderer stores the page as-is.
type HTMLRenderer struct{}

func (HTMLRenderer) Render(_ context.Context, html string) ([]byte, error) {
	return []byte(html), nil
}

func (HTMLRenderer) Ext() string { return ".html" }

// ChromeRenderer prints pages to PDF with a headless Chrome that is started
// on first use and kept until Close.
type ChromeRenderer struct {
	ExecPath string
	Timeout  time.Duration

	mu            sync.Mutex
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

func NewChromeRenderer(execPath string) *ChromeRenderer {
	return &ChromeRenderer{ExecPath: execPath, Timeout: 60 * time.Second}
}

func (c *ChromeRenderer) Ext() string { return ".pdf" }

func (c *ChromeRenderer) initBrowser() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browserCtx != nil {
		select {
		case <-c.browserCtx.Done():
			c.cleanup()
		default:
			return nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	if c.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.ExecPath))
	}

	c.allocCtx, c.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	c.browserCtx, c.browserCancel = chromedp.NewContext(c.allocCtx)

	return chromedp.Run(c.browserCtx)
}

func (c *ChromeRenderer) cleanup() {
	if c.browserCancel != nil {
		c.browserCancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	c.browserCtx = nil
	c.allocCtx = nil
}

func (c *ChromeRenderer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanup()
}

func (c *ChromeRenderer) Render(ctx context.Context, html string) ([]byte, error) {
	if err := c.initBrowser(); err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}

	c.mu.Lock()
	browserCtx := c.browserCtx
	c.mu.Unlock()

	// one tab per document
	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	tabCtx, cancel := context.WithTimeout(tabCtx, c.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var pdf []byte
	err := chromedp.Run(tabCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	return pdf, nil
}

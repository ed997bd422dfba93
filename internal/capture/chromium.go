package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
)

// Default snapshot parameters. A portlet is a narrow sidebar box.
const (
	DefaultWidth   = 320
	DefaultHeight  = 400
	DefaultTimeout = 30 * time.Second

	// ReadySelector matches the portlet root once it is rendered.
	ReadySelector = `[data-ready="true"]`
)

// Options defines one portlet snapshot.
type Options struct {
	// URL of the rendered portlet, e.g.
	// "http://127.0.0.1:8080/portlets/calendar?year=2024&month=11".
	URL string
	// OutputPath is where the PNG is written.
	OutputPath string

	Width   int
	Height  int
	Timeout time.Duration
}

func (o *Options) defaults() error {
	if o.URL == "" {
		return errors.New("capture: URL is required")
	}
	if o.OutputPath == "" {
		return errors.New("capture: OutputPath is required")
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return nil
}

// PortletPNG loads opts.URL in headless Chromium, waits for the portlet
// root to carry data-ready="true" and writes a screenshot of that element.
func PortletPNG(parent context.Context, opts Options) error {
	if err := opts.defaults(); err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parent)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, opts.Timeout)
	defer cancelTimeout()

	var png []byte
	err := chromedp.Run(ctx,
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(ReadySelector, chromedp.ByQuery),
		chromedp.Screenshot(ReadySelector, &png, chromedp.NodeVisible, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(opts.OutputPath), 0o755); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}
	return nil
}

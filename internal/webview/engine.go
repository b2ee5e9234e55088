// Package webview drives tab content through a Chrome DevTools browser. Each
// tab owns one browser target.
package webview

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"pkt.systems/pslog"
	"pkt.systems/tabdeck/core"
	"pkt.systems/tabdeck/internal/logx"
	"pkt.systems/tabdeck/schema"
)

// Options configures the browser process and captures.
type Options struct {
	// ExecPath overrides browser discovery.
	ExecPath string
	Headless bool
	// UserDataDir keeps cookies and caches across runs when set.
	UserDataDir string
	Width       int64
	Height      int64
	// HomeURL is rendered as a blank page.
	HomeURL string
	// CaptureDir receives transient captures. Defaults to os.TempDir.
	CaptureDir string
	// CaptureQuality is the JPEG quality, 1-100.
	CaptureQuality int64
}

// DefaultOptions returns a headless phone-sized browser.
func DefaultOptions() Options {
	layout := schema.DefaultServiceConfig().Layout
	return Options{
		Headless:       true,
		Width:          int64(layout.DeviceWidth),
		Height:         int64(layout.DeviceHeight),
		HomeURL:        schema.DefaultHomeURL,
		CaptureQuality: 80,
	}
}

type target struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Engine implements core.Engine on chromedp.
type Engine struct {
	opts Options
	log  pslog.Logger

	browser       context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc

	mu       sync.Mutex
	targets  map[schema.TabID]*target
	listener core.EngineListener
}

var _ core.Engine = (*Engine)(nil)

// New launches the browser.
func New(ctx context.Context, opts Options) (*Engine, error) {
	opts = normalizeOptions(opts)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocatorOptions(opts)...)
	browser, cancelBrowser := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browser); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("%w: %v", schema.ErrEngineUnavailable, err)
	}
	e := newEngine(opts, pslog.Ctx(ctx))
	e.browser = browser
	e.cancelAlloc = cancelAlloc
	e.cancelBrowser = cancelBrowser
	e.log.Info("webview browser started", "headless", opts.Headless, "width", opts.Width, "height", opts.Height)
	return e, nil
}

func newEngine(opts Options, logger pslog.Logger) *Engine {
	return &Engine{
		opts:    opts,
		log:     logger,
		targets: make(map[schema.TabID]*target),
	}
}

func normalizeOptions(opts Options) Options {
	def := DefaultOptions()
	if opts.Width <= 0 {
		opts.Width = def.Width
	}
	if opts.Height <= 0 {
		opts.Height = def.Height
	}
	if opts.HomeURL == "" {
		opts.HomeURL = def.HomeURL
	}
	if opts.CaptureQuality <= 0 || opts.CaptureQuality > 100 {
		opts.CaptureQuality = def.CaptureQuality
	}
	if opts.CaptureDir == "" {
		opts.CaptureDir = os.TempDir()
	}
	return opts
}

func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	all := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(int(opts.Width), int(opts.Height)),
	)
	if opts.ExecPath != "" {
		all = append(all, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserDataDir != "" {
		all = append(all, chromedp.UserDataDir(opts.UserDataDir))
	}
	return all
}

// Listen registers the receiver of page signals.
func (e *Engine) Listen(listener core.EngineListener) {
	e.mu.Lock()
	e.listener = listener
	e.mu.Unlock()
}

func (e *Engine) currentListener() core.EngineListener {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listener
}

// Open creates a browser target for id and starts loading url.
func (e *Engine) Open(ctx context.Context, id schema.TabID, url string) error {
	if e.browser == nil {
		return schema.ErrEngineUnavailable
	}
	log := logx.WithTab(ctx, id)
	e.mu.Lock()
	if _, ok := e.targets[id]; ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", schema.ErrDuplicateTab, id)
	}
	tabCtx, cancel := chromedp.NewContext(e.browser)
	t := &target{ctx: tabCtx, cancel: cancel}
	e.targets[id] = t
	e.mu.Unlock()

	chromedp.ListenTarget(tabCtx, func(ev any) {
		switch ev := ev.(type) {
		case *page.EventFrameStartedLoading:
			e.progress(id, startedProgress)
		case *page.EventFrameNavigated:
			if ev.Frame == nil || ev.Frame.ParentID != "" {
				return
			}
			// Listeners run on the event loop; further commands must not.
			go e.navigated(t, id, ev.Frame.URL)
		case *page.EventDomContentEventFired:
			e.progress(id, domReadyProgress)
		case *page.EventLoadEventFired:
			e.progress(id, 1)
		}
	})

	err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(e.opts.Width, e.opts.Height),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, _, errText, _, err := page.Navigate(navigateURL(url, e.opts.HomeURL)).Do(ctx)
			if err != nil {
				return err
			}
			if errText != "" {
				return errors.New(errText)
			}
			return nil
		}),
	)
	if err != nil {
		log.Warn("webview open failed", "url", url, "err", err)
		e.drop(id)
		return fmt.Errorf("open %s: %w", id, err)
	}
	log.Debug("webview opened", "url", url)
	return nil
}

// Close tears down the target of id.
func (e *Engine) Close(ctx context.Context, id schema.TabID) error {
	t, ok := e.drop(id)
	if !ok {
		return fmt.Errorf("%w: %s", schema.ErrTabNotFound, id)
	}
	err := chromedp.Cancel(t.ctx)
	t.cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		logx.WithTab(ctx, id).Warn("webview close failed", "err", err)
		return err
	}
	return nil
}

// Capture writes a JPEG of the visible viewport of id to a temp file.
func (e *Engine) Capture(ctx context.Context, id schema.TabID) (core.TempRef, error) {
	t, ok := e.target(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", schema.ErrTabNotFound, id)
	}
	var buf []byte
	err := chromedp.Run(t.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(e.opts.CaptureQuality).
			Do(ctx)
		return err
	}))
	if err != nil {
		return "", fmt.Errorf("capture %s: %w", id, err)
	}
	return writeCapture(e.opts.CaptureDir, buf)
}

// Shutdown closes every target and the browser.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	targets := e.targets
	e.targets = make(map[schema.TabID]*target)
	e.mu.Unlock()
	for _, t := range targets {
		t.cancel()
	}
	if e.cancelBrowser != nil {
		e.cancelBrowser()
	}
	if e.cancelAlloc != nil {
		e.cancelAlloc()
	}
	e.log.Info("webview browser stopped", "targets", len(targets))
}

func (e *Engine) navigated(t *target, id schema.TabID, url string) {
	nav := schema.Navigation{URL: url}
	err := chromedp.Run(t.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		current, entries, err := page.GetNavigationHistory().Do(ctx)
		if err != nil {
			return err
		}
		nav.CanGoBack, nav.CanGoForward = historyFlags(current, len(entries))
		return nil
	}))
	if err != nil {
		e.log.Trace("webview history unavailable", "tab", id, "err", err)
	}
	if nav.URL == blankURL {
		nav.URL = e.opts.HomeURL
	}
	if listener := e.currentListener(); listener != nil {
		listener.OnNavigation(id, nav)
	}
}

func (e *Engine) progress(id schema.TabID, value float64) {
	if listener := e.currentListener(); listener != nil {
		listener.OnLoadProgress(id, value)
	}
}

func (e *Engine) target(id schema.TabID) (*target, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.targets[id]
	return t, ok
}

func (e *Engine) drop(id schema.TabID) (*target, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.targets[id]
	if ok {
		delete(e.targets, id)
	}
	return t, ok
}

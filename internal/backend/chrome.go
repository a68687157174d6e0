package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog/log"
	"github.com/ysmood/gson"

	"github.com/webpilot/webpilot-go/internal/config"
	"github.com/webpilot/webpilot-go/internal/types"
)

// Chrome runs one shared Chromium process over CDP. The process is
// launched on first use and monitored for liveness; registered observers
// fire when the connection is lost so dependents can invalidate state.
type Chrome struct {
	cfg *config.Config

	mu      sync.Mutex
	browser *rod.Browser
	closed  bool

	obsMu     sync.Mutex
	observers []func()

	monitorStop chan struct{}
}

// NewChrome creates a backend without launching anything.
func NewChrome(cfg *config.Config) *Chrome {
	return &Chrome{cfg: cfg}
}

// NewPage opens a new page, launching the browser on first call.
func (c *Chrome) NewPage(ctx context.Context) (Page, error) {
	browser, err := c.ensure(ctx)
	if err != nil {
		return nil, err
	}

	var page *rod.Page
	if c.cfg.StealthMode {
		page, err = stealth.Page(browser)
	} else {
		page, err = browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	if c.cfg.UserAgent != "" {
		if uaErr := (proto.NetworkSetUserAgentOverride{UserAgent: c.cfg.UserAgent}).Call(page); uaErr != nil {
			log.Warn().Err(uaErr).Msg("Failed to override user agent")
		}
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             c.cfg.ViewportWidth,
		Height:            c.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
		Mobile:            false,
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to set viewport")
	}

	return &chromePage{page: page}, nil
}

// Alive reports whether the browser process is up and answering CDP calls.
func (c *Chrome) Alive() bool {
	c.mu.Lock()
	browser := c.browser
	c.mu.Unlock()
	if browser == nil {
		return false
	}
	_, err := proto.BrowserGetVersion{}.Call(browser)
	return err == nil
}

// OnDisconnect registers fn to run once when the browser process is lost.
func (c *Chrome) OnDisconnect(fn func()) {
	c.obsMu.Lock()
	c.observers = append(c.observers, fn)
	c.obsMu.Unlock()
}

// Close shuts down the browser process. Observers do not fire for an
// orderly shutdown.
func (c *Chrome) Close() error {
	c.mu.Lock()
	c.closed = true
	browser := c.browser
	c.browser = nil
	stop := c.monitorStop
	c.monitorStop = nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if browser == nil {
		return nil
	}
	log.Info().Msg("Closing browser backend")
	return browser.Close()
}

// ensure launches the browser if it is not already running.
func (c *Chrome) ensure(ctx context.Context) (*rod.Browser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, types.ErrBackendClosed
	}
	if c.browser != nil {
		return c.browser, nil
	}

	log.Info().Bool("headless", c.cfg.Headless).Msg("Launching browser backend")

	l := launcher.New()
	if c.cfg.BrowserPath != "" {
		l = l.Bin(c.cfg.BrowserPath)
	}
	if c.cfg.Headless {
		l = l.Set("headless", "new")
	} else {
		l = l.Headless(false)
	}
	l = l.Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-background-networking").
		Set("disable-default-apps").
		Set("disable-extensions").
		Set("disable-sync").
		Set("mute-audio").
		Set("window-size", fmt.Sprintf("%d,%d", c.cfg.ViewportWidth, c.cfg.ViewportHeight))

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrBackendInitFailed, err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrBackendInitFailed, err)
	}

	c.browser = browser
	c.monitorStop = make(chan struct{})
	go c.monitor(browser, c.monitorStop)

	log.Info().Str("url", url).Msg("Browser backend ready")
	return browser, nil
}

// monitor polls the browser until it stops answering, then tears down
// local state and notifies observers. A later NewPage relaunches.
func (c *Chrome) monitor(browser *rod.Browser, stop chan struct{}) {
	ticker := time.NewTicker(c.cfg.LivenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := (proto.BrowserGetVersion{}).Call(browser); err != nil {
				log.Warn().Err(err).Msg("Browser backend disconnected")
				c.handleDisconnect(browser)
				return
			}
		}
	}
}

func (c *Chrome) handleDisconnect(browser *rod.Browser) {
	c.mu.Lock()
	// A relaunch may already have replaced this instance.
	if c.browser == browser {
		c.browser = nil
		c.monitorStop = nil
	}
	c.mu.Unlock()

	c.obsMu.Lock()
	observers := make([]func(), len(c.observers))
	copy(observers, c.observers)
	c.obsMu.Unlock()

	for _, fn := range observers {
		fn()
	}
}

// chromePage adapts a rod page to the Page interface.
type chromePage struct {
	page *rod.Page
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.page.Context(ctx).Navigate(url)
}

func (p *chromePage) WaitLoad(ctx context.Context) error {
	return p.page.Context(ctx).WaitLoad()
}

func (p *chromePage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	_, err := p.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("%w: %q did not appear within %s", types.ErrElementNotFound, selector, timeout)
	}
	return nil
}

func (p *chromePage) Has(ctx context.Context, selector string) (bool, error) {
	has, _, err := p.page.Context(ctx).Has(selector)
	return has, err
}

func (p *chromePage) Eval(ctx context.Context, js string) (gson.JSON, error) {
	obj, err := p.page.Context(ctx).Eval(js)
	if err != nil {
		return gson.JSON{}, err
	}
	return obj.Value, nil
}

func (p *chromePage) EvalOn(ctx context.Context, selector, js string) (gson.JSON, error) {
	el, err := p.element(ctx, selector)
	if err != nil {
		return gson.JSON{}, err
	}
	obj, err := el.Eval(js)
	if err != nil {
		return gson.JSON{}, err
	}
	return obj.Value, nil
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	el, err := p.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.ScrollIntoView(); err != nil {
		log.Debug().Err(err).Str("selector", selector).Msg("ScrollIntoView failed, clicking anyway")
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *chromePage) Type(ctx context.Context, selector, text string, clear bool) error {
	el, err := p.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Focus(); err != nil {
		return err
	}
	if clear {
		if err := el.SelectAllText(); err != nil {
			return err
		}
	}
	return el.Input(text)
}

func (p *chromePage) Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	format, q := captureParams(opts)

	if opts.Element != "" {
		el, err := p.element(ctx, opts.Element)
		if err != nil {
			return nil, err
		}
		return el.Screenshot(format, q)
	}

	var quality *int
	if format == proto.PageCaptureScreenshotFormatJpeg {
		quality = &q
	}
	return p.page.Context(ctx).Screenshot(opts.FullPage, &proto.PageCaptureScreenshot{
		Format:  format,
		Quality: quality,
	})
}

// captureParams maps the requested format to the CDP format constant and
// fills in the default jpeg quality.
func captureParams(opts ScreenshotOptions) (proto.PageCaptureScreenshotFormat, int) {
	if opts.Format != "jpeg" {
		return proto.PageCaptureScreenshotFormatPng, 0
	}
	q := opts.Quality
	if q == 0 {
		q = 80
	}
	return proto.PageCaptureScreenshotFormatJpeg, q
}

func (p *chromePage) Info(ctx context.Context) (PageInfo, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return PageInfo{}, err
	}
	return PageInfo{URL: info.URL, Title: info.Title}, nil
}

func (p *chromePage) Close() error {
	return p.page.Close()
}

// element resolves a selector without rod's default retry loop so a
// missing element fails fast; callers own their retry policy.
func (p *chromePage) element(ctx context.Context, selector string) (*rod.Element, error) {
	el, err := p.page.Context(ctx).Sleeper(rod.NotFoundSleeper).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", types.ErrElementNotFound, selector)
	}
	return el, nil
}

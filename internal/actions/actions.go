// Package actions implements the single-pass page operations: navigate,
// extract, click, type, and screenshot. Each operation acquires (or
// creates) the caller's session, runs one step against its page, and
// records session activity.
package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/webpilot/webpilot-go/internal/backend"
	"github.com/webpilot/webpilot-go/internal/config"
	"github.com/webpilot/webpilot-go/internal/extract"
	"github.com/webpilot/webpilot-go/internal/pool"
	"github.com/webpilot/webpilot-go/internal/selector"
	"github.com/webpilot/webpilot-go/internal/types"
)

// navigationSettle is how long a click waits for a triggered navigation.
const navigationSettle = 10 * time.Second

// NavigateResult reports a completed navigation.
type NavigateResult struct {
	URL    string `json:"url"`
	Title  string `json:"title"`
	Loaded bool   `json:"loaded"`
}

// ClickResult reports a completed click.
type ClickResult struct {
	Selector  string `json:"selector"`
	Navigated bool   `json:"navigated"`
	URL       string `json:"url"`
}

// InputResult reports completed text input.
type InputResult struct {
	Selector string `json:"selector"`
	Length   int    `json:"length"`
	Cleared  bool   `json:"cleared"`
}

// ScreenshotResult carries captured image bytes.
type ScreenshotResult struct {
	Data   []byte `json:"-"`
	Format string `json:"format"`
	Size   int    `json:"size"`
}

// Operations runs page actions against pooled sessions.
type Operations struct {
	cfg    *config.Config
	pool   *pool.Pool
	engine *extract.Engine
}

// New creates the operations layer.
func New(cfg *config.Config, p *pool.Pool, e *extract.Engine) *Operations {
	return &Operations{cfg: cfg, pool: p, engine: e}
}

// Navigate points the client's page at url and optionally waits for the
// load event and a readiness selector.
func (o *Operations) Navigate(ctx context.Context, req *types.NavigateRequest) (*NavigateResult, error) {
	s, err := o.pool.Acquire(ctx, req.ClientID)
	if err != nil {
		return nil, types.NewOperationError("navigate", req.ClientID, req.URL, err)
	}

	ctx, cancel := o.withTimeout(ctx, req.TimeoutMS)
	defer cancel()

	page := s.Page()
	if err := page.Navigate(ctx, req.URL); err != nil {
		return nil, types.NewOperationError("navigate", req.ClientID, req.URL,
			wrap(types.ErrNavigationFailed, err))
	}

	loaded := false
	if req.WaitForLoad {
		if err := page.WaitLoad(ctx); err != nil {
			return nil, types.NewOperationError("navigate", req.ClientID, req.URL,
				wrap(types.ErrNavigationFailed, err))
		}
		loaded = true
	}
	if req.WaitForSelector != "" {
		sel := selector.Normalize(req.WaitForSelector)
		if err := selector.Validate(sel); err != nil {
			return nil, types.NewOperationError("navigate", req.ClientID, req.URL, err)
		}
		deadline := o.cfg.DefaultTimeout
		if d, ok := ctx.Deadline(); ok {
			deadline = time.Until(d)
		}
		if err := page.WaitForSelector(ctx, sel, deadline); err != nil {
			return nil, types.NewOperationError("navigate", req.ClientID, req.URL, err)
		}
	}

	info, err := page.Info(ctx)
	if err != nil {
		// Navigation itself succeeded; report what we know.
		log.Debug().Err(err).Str("client_id", req.ClientID).Msg("Page info unavailable after navigation")
		info = backend.PageInfo{URL: req.URL}
	}
	s.SetCurrentURL(info.URL)
	s.Touch()

	log.Info().
		Str("client_id", req.ClientID).
		Str("url", info.URL).
		Msg("Navigation complete")
	return &NavigateResult{URL: info.URL, Title: info.Title, Loaded: loaded}, nil
}

// Extract runs the extraction pipeline against the client's page.
func (o *Operations) Extract(ctx context.Context, req *types.ExtractRequest) (*extract.Result, error) {
	s, err := o.pool.Acquire(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	opts := extract.Options{
		ContentType:    req.ContentType,
		Attribute:      req.Attribute,
		Timeout:        time.Duration(req.TimeoutMS) * time.Millisecond,
		WaitForContent: req.WaitForContent,
		RetryAttempts:  req.RetryAttempts,
		MinLength:      req.MinLength,
		Fallbacks:      req.FallbackSelectors,
	}

	result, err := o.engine.Extract(ctx, s.Page(), req.Selector, opts)
	if err != nil {
		return nil, err
	}
	s.Touch()
	return result, nil
}

// Click clicks the first element matching the selector, optionally
// waiting for a navigation it triggers.
func (o *Operations) Click(ctx context.Context, req *types.ClickRequest) (*ClickResult, error) {
	s, err := o.pool.Acquire(ctx, req.ClientID)
	if err != nil {
		return nil, types.NewOperationError("click", req.ClientID, req.Selector, err)
	}

	sel := selector.Normalize(req.Selector)
	if err := selector.Validate(sel); err != nil {
		return nil, types.NewOperationError("click", req.ClientID, req.Selector, err)
	}

	ctx, cancel := o.withTimeout(ctx, req.TimeoutMS)
	defer cancel()

	page := s.Page()
	before, _ := page.Info(ctx)

	if err := page.Click(ctx, sel); err != nil {
		return nil, types.NewOperationError("click", req.ClientID, sel,
			wrap(types.ErrClickFailed, err))
	}

	navigated := false
	currentURL := before.URL
	if req.WaitForNavigation {
		waitCtx, waitCancel := context.WithTimeout(ctx, navigationSettle)
		if err := page.WaitLoad(waitCtx); err != nil {
			log.Debug().Err(err).Str("client_id", req.ClientID).Msg("No navigation observed after click")
		}
		waitCancel()
	}
	if info, err := page.Info(ctx); err == nil {
		navigated = info.URL != before.URL
		currentURL = info.URL
	}

	s.SetCurrentURL(currentURL)
	s.Touch()

	log.Info().
		Str("client_id", req.ClientID).
		Str("selector", sel).
		Bool("navigated", navigated).
		Msg("Click complete")
	return &ClickResult{Selector: sel, Navigated: navigated, URL: currentURL}, nil
}

// Input types text into the first element matching the selector.
func (o *Operations) Input(ctx context.Context, req *types.InputRequest) (*InputResult, error) {
	s, err := o.pool.Acquire(ctx, req.ClientID)
	if err != nil {
		return nil, types.NewOperationError("input", req.ClientID, req.Selector, err)
	}

	sel := selector.Normalize(req.Selector)
	if err := selector.Validate(sel); err != nil {
		return nil, types.NewOperationError("input", req.ClientID, req.Selector, err)
	}

	ctx, cancel := o.withTimeout(ctx, 0)
	defer cancel()

	if err := s.Page().Type(ctx, sel, req.Text, req.Clear); err != nil {
		return nil, types.NewOperationError("input", req.ClientID, sel,
			wrap(types.ErrInputFailed, err))
	}
	s.Touch()

	log.Info().
		Str("client_id", req.ClientID).
		Str("selector", sel).
		Int("length", len(req.Text)).
		Msg("Text input complete")
	return &InputResult{Selector: sel, Length: len(req.Text), Cleared: req.Clear}, nil
}

// Screenshot captures the client's page or one element of it. A missing
// element fails with ErrElementNotFound rather than capturing the page.
func (o *Operations) Screenshot(ctx context.Context, req *types.ScreenshotRequest) (*ScreenshotResult, error) {
	s, err := o.pool.Acquire(ctx, req.ClientID)
	if err != nil {
		return nil, types.NewOperationError("screenshot", req.ClientID, req.Element, err)
	}

	ctx, cancel := o.withTimeout(ctx, 0)
	defer cancel()

	page := s.Page()
	element := ""
	if req.Element != "" {
		element = selector.Normalize(req.Element)
		if err := selector.Validate(element); err != nil {
			return nil, types.NewOperationError("screenshot", req.ClientID, req.Element, err)
		}
		present, hasErr := page.Has(ctx, element)
		if hasErr != nil {
			return nil, types.NewOperationError("screenshot", req.ClientID, element,
				wrap(types.ErrScreenshotFailed, hasErr))
		}
		if !present {
			return nil, types.NewOperationError("screenshot", req.ClientID, element, types.ErrElementNotFound)
		}
	}

	format := req.Format
	if format == "" {
		format = "png"
	}
	data, err := page.Screenshot(ctx, backend.ScreenshotOptions{
		FullPage: req.FullPage,
		Element:  element,
		Format:   format,
		Quality:  req.Quality,
	})
	if err != nil {
		return nil, types.NewOperationError("screenshot", req.ClientID, element,
			wrap(types.ErrScreenshotFailed, err))
	}
	s.Touch()

	log.Info().
		Str("client_id", req.ClientID).
		Int("bytes", len(data)).
		Msg("Screenshot captured")
	return &ScreenshotResult{Data: data, Format: format, Size: len(data)}, nil
}

// withTimeout derives the operation context from the request timeout,
// clamped to the configured maximum.
func (o *Operations) withTimeout(ctx context.Context, timeoutMS int) (context.Context, context.CancelFunc) {
	d := o.cfg.DefaultTimeout
	if timeoutMS > 0 {
		d = time.Duration(timeoutMS) * time.Millisecond
	}
	if d > o.cfg.MaxTimeout {
		d = o.cfg.MaxTimeout
	}
	return context.WithTimeout(ctx, d)
}

func wrap(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %v", sentinel, cause)
}

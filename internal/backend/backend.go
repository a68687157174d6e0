// Package backend abstracts the shared browser process behind narrow
// interfaces so the session pool and extraction engine can be exercised
// against fakes in tests.
package backend

import (
	"context"
	"time"

	"github.com/ysmood/gson"
)

// PageInfo reports the current location of a page.
type PageInfo struct {
	URL   string
	Title string
}

// ScreenshotOptions controls a capture request.
type ScreenshotOptions struct {
	FullPage bool
	Element  string // optional selector; empty captures the viewport
	Format   string // "png" (default) or "jpeg"
	Quality  int    // jpeg only
}

// Page is the per-session surface over one browser page. All blocking
// calls honor the supplied context.
type Page interface {
	// Navigate points the page at url without waiting for load completion.
	Navigate(ctx context.Context, url string) error

	// WaitLoad blocks until the page's load event has fired.
	WaitLoad(ctx context.Context) error

	// WaitForSelector blocks until selector matches an element or the
	// timeout elapses.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error

	// Has reports whether selector currently matches an element, without
	// waiting.
	Has(ctx context.Context, selector string) (bool, error)

	// Eval runs a JavaScript function in the page and returns its result.
	Eval(ctx context.Context, js string) (gson.JSON, error)

	// EvalOn runs a JavaScript function with the first element matching
	// selector bound as its receiver. Returns ErrElementNotFound when no
	// element matches.
	EvalOn(ctx context.Context, selector, js string) (gson.JSON, error)

	// Click scrolls the first matching element into view and clicks it.
	Click(ctx context.Context, selector string) error

	// Type focuses the first matching element and types text into it,
	// optionally clearing existing content first.
	Type(ctx context.Context, selector, text string, clear bool) error

	// Screenshot captures the page or a single element.
	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)

	// Info returns the page's current URL and title.
	Info(ctx context.Context) (PageInfo, error)

	// Close destroys the page. The shared browser stays up.
	Close() error
}

// Backend owns the shared browser process. Implementations launch lazily:
// the process starts on the first NewPage call, not at construction.
type Backend interface {
	// NewPage opens a fresh page, launching the browser first if needed.
	NewPage(ctx context.Context) (Page, error)

	// Alive reports whether the browser process is up and responding.
	Alive() bool

	// OnDisconnect registers fn to run when the browser process is lost.
	// Observers run once per disconnect, in registration order.
	OnDisconnect(fn func())

	// Close tears down the browser process and stops liveness monitoring.
	Close() error
}

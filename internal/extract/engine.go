// Package extract implements resilient content extraction: each request
// expands into an ordered selector plan, every selector gets bounded
// retries with linear backoff, extracted content must pass validity
// checks, and a plan that exhausts without success degrades to content
// synthesized from page metadata instead of a bare failure.
package extract

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog/log"

	"github.com/webpilot/webpilot-go/internal/backend"
	"github.com/webpilot/webpilot-go/internal/config"
	"github.com/webpilot/webpilot-go/internal/selector"
	"github.com/webpilot/webpilot-go/internal/types"
)

// Extraction method labels reported in results. Synthesized results
// carry MethodFallback with an empty Selector.
const (
	MethodDirect   = "direct"
	MethodFallback = "fallback"
)

// Waiting bounds used when wait_for_content is requested.
const (
	appearWaitCap    = 5 * time.Second
	indicatorWaitCap = 2 * time.Second
	indicatorPoll    = 100 * time.Millisecond
)

// metadataScript collects the page facts used for fallback synthesis.
const metadataScript = `() => {
	const body = document.body ? document.body.innerText : '';
	return {
		title: document.title || '',
		url: window.location.href,
		textLength: body.length,
		preview: body.slice(0, 500)
	};
}`

// Options controls one extraction request. Zero values fall back to the
// service configuration.
type Options struct {
	ContentType    string // "text" (default), "html", "outer_html", "value", "attribute", "computed"
	Attribute      string // optional attribute name; empty means all attributes as a JSON map
	Timeout        time.Duration
	WaitForContent bool
	RetryAttempts  int
	MinLength      int
	Fallbacks      []string
}

// Attempt records one try against one selector.
type Attempt struct {
	Selector string `json:"selector"`
	Try      int    `json:"try"` // 1-based within the selector
	Outcome  string `json:"outcome"`
	Error    string `json:"error,omitempty"`
}

// Result is a successful extraction.
type Result struct {
	Content          string    `json:"content"`
	Length           int       `json:"length"`
	Selector         string    `json:"selector"` // winning selector; empty when synthesized
	ContentType      string    `json:"content_type"`
	ExtractionMethod string    `json:"extraction_method"`
	RetryCount       int       `json:"retry_count"` // retries consumed on the winning selector
	Attempts         []Attempt `json:"attempts,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// outcome classifies a single attempt.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeNotFound
	outcomeInvalid
	outcomeError
)

func (o outcome) String() string {
	switch o {
	case outcomeSuccess:
		return "success"
	case outcomeNotFound:
		return "not_found"
	case outcomeInvalid:
		return "invalid_content"
	default:
		return "error"
	}
}

// Engine runs extraction plans against pages.
type Engine struct {
	cfg    *config.Config
	policy *selector.Manager

	// sleep is swappable so tests run without real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates an engine using the given fallback policy.
func NewEngine(cfg *config.Config, policy *selector.Manager) *Engine {
	return &Engine{
		cfg:    cfg,
		policy: policy,
		sleep:  sleepCtx,
	}
}

// Extract runs the full pipeline against page: build the selector plan,
// attempt each selector with retries and backoff, validate whatever comes
// back, and synthesize from page metadata when everything fails.
func (e *Engine) Extract(ctx context.Context, page backend.Page, rawSelector string, opts Options) (*Result, error) {
	opts = e.withDefaults(opts)
	pol := e.policy.Get()

	plan, err := selector.BuildPlan(rawSelector, opts.Fallbacks, pol)
	if err != nil {
		return nil, types.NewExtractionError(rawSelector, opts.ContentType, 0, err)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	if opts.WaitForContent {
		e.waitForContent(ctx, page, plan.Primary, pol)
	}

	var (
		attempts []Attempt
		lastErr  error = types.ErrElementNotFound
		lastSel        = plan.Primary
	)

	for selIdx, sel := range plan.Selectors {
		lastSel = sel
		for try := 1; try <= opts.RetryAttempts; try++ {
			content, oc, tryErr := e.tryOnce(ctx, page, sel, opts)
			attempt := Attempt{Selector: sel, Try: try, Outcome: oc.String()}
			if tryErr != nil {
				attempt.Error = tryErr.Error()
				lastErr = tryErr
			}
			attempts = append(attempts, attempt)

			log.Debug().
				Str("selector", sel).
				Int("try", try).
				Str("outcome", oc.String()).
				Msg("Extraction attempt")

			if oc == outcomeSuccess {
				method := MethodDirect
				if selIdx > 0 {
					method = MethodFallback
				}
				return &Result{
					Content:          content,
					Length:           len(content),
					Selector:         sel,
					ContentType:      opts.ContentType,
					ExtractionMethod: method,
					RetryCount:       try - 1,
					Attempts:         attempts,
					Timestamp:        time.Now().UTC(),
				}, nil
			}

			if ctx.Err() != nil {
				return nil, types.NewExtractionError(sel, opts.ContentType, len(attempts),
					fmt.Errorf("%w: %v", types.ErrExtractionFailed, ctx.Err()))
			}

			// Linear backoff before the next try of this selector.
			if try < opts.RetryAttempts {
				if err := e.sleep(ctx, e.cfg.RetryBackoff*time.Duration(try)); err != nil {
					return nil, types.NewExtractionError(sel, opts.ContentType, len(attempts),
						fmt.Errorf("%w: %v", types.ErrExtractionFailed, err))
				}
			}
		}
	}

	// Plan exhausted: degrade to page metadata rather than failing hard.
	if res, synthErr := e.synthesize(ctx, page, opts, attempts); synthErr == nil {
		log.Info().
			Str("selector", plan.Primary).
			Int("attempts", len(attempts)).
			Msg("Selector plan exhausted, returning synthesized page content")
		return res, nil
	} else {
		log.Warn().Err(synthErr).Msg("Fallback synthesis failed")
	}

	return nil, types.NewExtractionError(lastSel, opts.ContentType, len(attempts), lastErr)
}

// withDefaults fills unset options from configuration and clamps the
// caller's values to service limits.
func (e *Engine) withDefaults(opts Options) Options {
	if opts.ContentType == "" {
		opts.ContentType = "text"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = e.cfg.DefaultTimeout
	}
	if opts.Timeout > e.cfg.MaxTimeout {
		opts.Timeout = e.cfg.MaxTimeout
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = e.cfg.RetryAttempts
	}
	if opts.RetryAttempts > types.MaxRetryAttempts {
		opts.RetryAttempts = types.MaxRetryAttempts
	}
	if opts.MinLength <= 0 {
		opts.MinLength = e.cfg.MinContentLength
	}
	return opts
}

// tryOnce extracts content with one selector and classifies the result.
func (e *Engine) tryOnce(ctx context.Context, page backend.Page, sel string, opts Options) (string, outcome, error) {
	js, err := extractionScript(opts)
	if err != nil {
		return "", outcomeError, err
	}

	value, err := page.EvalOn(ctx, sel, js)
	if err != nil {
		if errors.Is(err, types.ErrElementNotFound) {
			return "", outcomeNotFound, err
		}
		return "", outcomeError, err
	}

	content := value.Str()
	if err := validateContent(content, opts); err != nil {
		return "", outcomeInvalid, err
	}
	return strings.TrimSpace(content), outcomeSuccess, nil
}

// extractionScript returns the element-scoped script for the requested
// content type.
func extractionScript(opts Options) (string, error) {
	switch opts.ContentType {
	case "text":
		return `() => this.textContent || ''`, nil
	case "html":
		return `() => this.innerHTML || ''`, nil
	case "outer_html":
		return `() => this.outerHTML || ''`, nil
	case "value":
		return `() => this.value !== undefined ? String(this.value) : ''`, nil
	case "attribute":
		if opts.Attribute == "" {
			return `() => {
				const out = {};
				for (const a of this.attributes) out[a.name] = a.value;
				return JSON.stringify(out);
			}`, nil
		}
		if !validAttributeName(opts.Attribute) {
			return "", fmt.Errorf("%w: bad attribute name %q", types.ErrInvalidRequest, opts.Attribute)
		}
		return fmt.Sprintf(`() => this.getAttribute(%q) || ''`, opts.Attribute), nil
	case "computed":
		return `() => {
			const cs = window.getComputedStyle(this);
			const props = ['display', 'visibility', 'position', 'color',
				'background-color', 'font-size', 'font-weight', 'width', 'height'];
			const out = {};
			for (const p of props) out[p] = cs.getPropertyValue(p);
			return JSON.stringify(out);
		}`, nil
	default:
		return "", fmt.Errorf("%w: unknown content_type %q", types.ErrInvalidRequest, opts.ContentType)
	}
}

func validAttributeName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == ':':
		default:
			return false
		}
	}
	return true
}

// validateContent applies the validity checks: non-empty after trimming,
// at least MinLength characters, and for text content, meaningful.
func validateContent(content string, opts Options) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return fmt.Errorf("%w: empty after trimming", types.ErrContentTooShort)
	}
	if len(trimmed) < opts.MinLength {
		return fmt.Errorf("%w: %d < %d characters", types.ErrContentTooShort, len(trimmed), opts.MinLength)
	}
	if opts.ContentType == "text" && !meaningful(trimmed) {
		return fmt.Errorf("%w: no word, CJK run, or number found", types.ErrContentNotMeaningful)
	}
	return nil
}

// meaningful reports whether text contains at least one word of three or
// more letters, two or more CJK characters, or a digit sequence.
func meaningful(text string) bool {
	letterRun, cjkCount := 0, 0
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) ||
			unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r):
			cjkCount++
			if cjkCount >= 2 {
				return true
			}
			letterRun = 0
		case unicode.IsLetter(r):
			letterRun++
			if letterRun >= 3 {
				return true
			}
		case unicode.IsDigit(r):
			return true
		default:
			letterRun = 0
		}
	}
	return false
}

// waitForContent gives dynamic pages a chance to render before the first
// attempt: wait for the primary selector to appear, let the DOM settle,
// then wait for loading indicators to clear. All three phases are bounded
// and best-effort.
func (e *Engine) waitForContent(ctx context.Context, page backend.Page, primary string, pol *selector.Policy) {
	appearWait := appearWaitCap
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < appearWait {
			appearWait = remaining
		}
	}
	if appearWait > 0 {
		if err := page.WaitForSelector(ctx, primary, appearWait); err != nil {
			log.Debug().Str("selector", primary).Msg("Primary selector did not appear during wait, continuing")
		}
	}

	_ = e.sleep(ctx, e.cfg.SettleDelay)

	deadline := time.Now().Add(indicatorWaitCap)
	for time.Now().Before(deadline) && ctx.Err() == nil {
		if !e.anyIndicatorPresent(ctx, page, pol.LoadingIndicators) {
			return
		}
		if e.sleep(ctx, indicatorPoll) != nil {
			return
		}
	}
}

func (e *Engine) anyIndicatorPresent(ctx context.Context, page backend.Page, indicators []string) bool {
	for _, ind := range indicators {
		if present, err := page.Has(ctx, ind); err == nil && present {
			return true
		}
	}
	return false
}

// synthesize builds a degraded result from page metadata.
func (e *Engine) synthesize(ctx context.Context, page backend.Page, opts Options, attempts []Attempt) (*Result, error) {
	// The overall deadline may already be spent; metadata collection gets
	// its own short budget.
	synthCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	value, err := page.Eval(synthCtx, metadataScript)
	if err != nil {
		return nil, fmt.Errorf("metadata collection failed: %w", err)
	}

	title := value.Get("title").Str()
	pageURL := value.Get("url").Str()
	preview := strings.TrimSpace(value.Get("preview").Str())

	var b strings.Builder
	if opts.ContentType == "html" {
		fmt.Fprintf(&b, "<html><head><title>%s</title></head><body>", html.EscapeString(title))
		fmt.Fprintf(&b, "<p>Page: %s</p><p>URL: %s</p>", html.EscapeString(title), html.EscapeString(pageURL))
		if preview != "" {
			fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(preview))
		}
		b.WriteString("</body></html>")
	} else {
		fmt.Fprintf(&b, "Page: %s\n", title)
		fmt.Fprintf(&b, "URL: %s\n", pageURL)
		if preview != "" {
			b.WriteString("\n")
			b.WriteString(preview)
		}
	}
	content := b.String()

	return &Result{
		Content:          content,
		Length:           len(content),
		Selector:         "",
		ContentType:      opts.ContentType,
		ExtractionMethod: MethodFallback,
		RetryCount:       0,
		Attempts:         attempts,
		Timestamp:        time.Now().UTC(),
	}, nil
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package selector

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/webpilot/webpilot-go/internal/types"
)

var (
	whitespaceRun  = regexp.MustCompile(`\s+`)
	combinatorPad  = regexp.MustCompile(`\s*([>+~,])\s*`)
	eventAttribute = regexp.MustCompile(`(?i)\bon\w+\s*=`)
)

// Normalize canonicalizes a raw selector: trims, percent-decodes encoded
// input, collapses whitespace runs, and removes padding around
// combinators. Normalizing an already-normalized selector is a no-op.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)

	// Selectors arriving through URLs are sometimes percent-encoded, and
	// occasionally double-encoded. Decode to a fixpoint, bounded, so the
	// result cannot change under a second Normalize.
	for i := 0; i < 4 && strings.Contains(s, "%"); i++ {
		decoded, err := url.PathUnescape(s)
		if err != nil || decoded == s {
			break
		}
		s = strings.TrimSpace(decoded)
	}

	s = whitespaceRun.ReplaceAllString(s, " ")
	s = combinatorPad.ReplaceAllString(s, "$1")
	return s
}

// Validate rejects empty, oversized, and dangerous selectors. It is
// applied after normalization.
func Validate(selector string) error {
	if selector == "" {
		return types.ErrSelectorEmpty
	}
	if len(selector) > types.MaxSelectorLength {
		return fmt.Errorf("%w: %d > %d characters", types.ErrSelectorTooLong, len(selector), types.MaxSelectorLength)
	}

	lower := strings.ToLower(selector)
	if strings.Contains(lower, "javascript:") {
		return fmt.Errorf("%w: contains javascript: URI", types.ErrInvalidSelector)
	}
	if strings.Contains(lower, "<script") {
		return fmt.Errorf("%w: contains script tag", types.ErrInvalidSelector)
	}
	if eventAttribute.MatchString(selector) {
		return fmt.Errorf("%w: contains event-handler attribute", types.ErrInvalidSelector)
	}
	return nil
}

// GenerateFallbacks derives alternates for a normalized selector, most
// specific first: the tail component of a compound selector, keyword
// alternates from the policy, then the policy's generic ladder. The
// primary selector itself is never included.
func GenerateFallbacks(normalized string, pol *Policy) []string {
	var out []string
	seen := map[string]bool{normalized: true}
	add := func(s string) {
		s = Normalize(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	if tail := tailComponent(normalized); tail != "" {
		add(tail)
	}

	lower := strings.ToLower(normalized)
	keywords := make([]string, 0, len(pol.Keywords))
	for kw := range pol.Keywords {
		keywords = append(keywords, kw)
	}
	sort.Strings(keywords)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			for _, alt := range pol.Keywords[kw] {
				add(alt)
			}
		}
	}

	for _, generic := range pol.GenericLadder {
		add(generic)
	}

	return out
}

// tailComponent returns the last simple component of a compound selector,
// or "" when the selector has no combinators.
func tailComponent(selector string) string {
	idx := strings.LastIndexAny(selector, " >+~")
	if idx < 0 || idx == len(selector)-1 {
		return ""
	}
	return selector[idx+1:]
}

// Plan is an ordered, deduplicated list of selectors to attempt.
type Plan struct {
	Primary   string   // the normalized caller selector
	Selectors []string // primary, caller fallbacks, generated fallbacks
}

// BuildPlan validates and normalizes the primary selector, then expands
// it into a full resolution plan: the primary first, caller-supplied
// fallbacks next, generated fallbacks last, duplicates removed while
// preserving first occurrence. Caller fallbacks that fail validation are
// dropped rather than failing the plan.
func BuildPlan(primary string, callerFallbacks []string, pol *Policy) (*Plan, error) {
	normalized := Normalize(primary)
	if err := Validate(normalized); err != nil {
		return nil, err
	}

	plan := &Plan{Primary: normalized}
	seen := map[string]bool{}
	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		plan.Selectors = append(plan.Selectors, s)
	}

	add(normalized)
	for _, fb := range callerFallbacks {
		n := Normalize(fb)
		if Validate(n) != nil {
			continue
		}
		add(n)
	}
	for _, gen := range GenerateFallbacks(normalized, pol) {
		add(gen)
	}

	return plan, nil
}

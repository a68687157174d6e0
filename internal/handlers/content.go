package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/webpilot/webpilot-go/internal/metrics"
	"github.com/webpilot/webpilot-go/internal/types"
)

func (h *Handler) handleNavigate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req types.NavigateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErr(w, err)
		return
	}

	result, err := h.ops.Navigate(r.Context(), &req)
	h.record("navigate", start, err)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeData(w, http.StatusOK, result)
}

// handleContent accepts either a JSON body (POST) or query parameters
// (GET) describing the extraction.
func (h *Handler) handleContent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req types.ExtractRequest
	if r.Method == http.MethodPost {
		if !h.decode(w, r, &req) {
			return
		}
	} else {
		req = extractRequestFromQuery(r)
	}
	if err := req.Validate(); err != nil {
		h.writeErr(w, err)
		return
	}

	result, err := h.ops.Extract(r.Context(), &req)
	h.record("extract", start, err)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	method := result.ExtractionMethod
	if result.Selector == "" {
		method = "synthesized"
	}
	metrics.RecordExtraction(method, result.RetryCount)
	h.writeData(w, http.StatusOK, result)
}

func extractRequestFromQuery(r *http.Request) types.ExtractRequest {
	q := r.URL.Query()
	req := types.ExtractRequest{
		ClientID:       q.Get("client_id"),
		Selector:       q.Get("selector"),
		ContentType:    q.Get("content_type"),
		Attribute:      q.Get("attribute"),
		WaitForContent: q.Get("wait_for_content") == "true",
	}
	if v, err := strconv.Atoi(q.Get("timeout")); err == nil {
		req.TimeoutMS = v
	}
	if v, err := strconv.Atoi(q.Get("retry_attempts")); err == nil {
		req.RetryAttempts = v
	}
	if v, err := strconv.Atoi(q.Get("min_length")); err == nil {
		req.MinLength = v
	}
	if fallbacks := q.Get("fallback_selectors"); fallbacks != "" {
		for _, fb := range strings.Split(fallbacks, ",") {
			if fb = strings.TrimSpace(fb); fb != "" {
				req.FallbackSelectors = append(req.FallbackSelectors, fb)
			}
		}
	}
	return req
}

func (h *Handler) handleClick(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req types.ClickRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErr(w, err)
		return
	}

	result, err := h.ops.Click(r.Context(), &req)
	h.record("click", start, err)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeData(w, http.StatusOK, result)
}

func (h *Handler) handleInput(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req types.InputRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErr(w, err)
		return
	}

	result, err := h.ops.Input(r.Context(), &req)
	h.record("input", start, err)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeData(w, http.StatusOK, result)
}

// handleScreenshot responds with raw image bytes rather than the JSON
// envelope; errors still use the envelope.
func (h *Handler) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()
	req := types.ScreenshotRequest{
		ClientID: q.Get("client_id"),
		FullPage: q.Get("full_page") == "true",
		Element:  q.Get("element"),
		Format:   q.Get("format"),
	}
	if v, err := strconv.Atoi(q.Get("quality")); err == nil {
		req.Quality = v
	}
	if err := req.Validate(); err != nil {
		h.writeErr(w, err)
		return
	}

	result, err := h.ops.Screenshot(r.Context(), &req)
	h.record("screenshot", start, err)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	contentType := "image/png"
	if result.Format == "jpeg" {
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(result.Size))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

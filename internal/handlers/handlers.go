// Package handlers implements the HTTP API. Every endpoint responds with
// the uniform {success, message|error, data} envelope.
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/webpilot/webpilot-go/internal/actions"
	"github.com/webpilot/webpilot-go/internal/config"
	"github.com/webpilot/webpilot-go/internal/metrics"
	"github.com/webpilot/webpilot-go/internal/pool"
	"github.com/webpilot/webpilot-go/internal/store"
	"github.com/webpilot/webpilot-go/internal/types"
	"github.com/webpilot/webpilot-go/pkg/version"
)

// maxBodyBytes bounds request bodies to keep JSON decoding cheap.
const maxBodyBytes = 1 << 20

// Handler serves the HTTP API.
type Handler struct {
	cfg       *config.Config
	ops       *actions.Operations
	pool      *pool.Pool
	store     *store.Store
	startTime time.Time
}

// New creates the API handler.
func New(cfg *config.Config, ops *actions.Operations, p *pool.Pool, st *store.Store) *Handler {
	return &Handler{
		cfg:       cfg,
		ops:       ops,
		pool:      p,
		store:     st,
		startTime: time.Now(),
	}
}

// Routes registers all endpoints on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("GET /health", h.handleHealth)

	mux.HandleFunc("POST /api/navigate", h.handleNavigate)
	mux.HandleFunc("GET /api/content", h.handleContent)
	mux.HandleFunc("POST /api/content", h.handleContent)
	mux.HandleFunc("POST /api/click", h.handleClick)
	mux.HandleFunc("POST /api/input", h.handleInput)
	mux.HandleFunc("GET /api/screenshot", h.handleScreenshot)

	mux.HandleFunc("GET /api/status", h.handleStatus)
	mux.HandleFunc("POST /api/session/release", h.handleRelease)

	mux.HandleFunc("POST /api/bookmarks", h.handleBookmarkAdd)
	mux.HandleFunc("GET /api/bookmarks", h.handleBookmarkList)
	mux.HandleFunc("PUT /api/bookmarks/{id}", h.handleBookmarkUpdate)
	mux.HandleFunc("DELETE /api/bookmarks/{id}", h.handleBookmarkDelete)
	mux.HandleFunc("POST /api/bookmarks/{id}/visit", h.handleBookmarkVisit)

	mux.HandleFunc("POST /api/credentials", h.handleCredentialSave)
	mux.HandleFunc("GET /api/credentials", h.handleCredentialList)
	mux.HandleFunc("GET /api/credentials/{domain}", h.handleCredentialGet)
	mux.HandleFunc("DELETE /api/credentials/{domain}", h.handleCredentialDelete)

	return mux
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.writeData(w, http.StatusOK, map[string]interface{}{
		"name":    "webpilot",
		"version": version.Full(),
		"uptime":  time.Since(h.startTime).Round(time.Second).String(),
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, types.Response{
		Success: true,
		Message: "healthy",
		Data: map[string]interface{}{
			"version":         version.Full(),
			"uptime_seconds":  int(time.Since(h.startTime).Seconds()),
			"active_sessions": h.pool.Count(),
		},
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID != "" {
		// A missing session reports null data rather than an error, so
		// callers can poll without special-casing 404s.
		h.writeData(w, http.StatusOK, h.pool.Status(r.Context(), clientID))
		return
	}
	h.writeData(w, http.StatusOK, h.pool.AllStatuses(r.Context()))
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID string `json:"client_id"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := types.ValidateClientID(req.ClientID); err != nil {
		h.writeErr(w, err)
		return
	}

	released := h.pool.Release(req.ClientID)
	h.writeJSON(w, http.StatusOK, types.Response{
		Success: true,
		Message: "session released",
		Data:    map[string]bool{"released": released},
	})
}

// decode reads a JSON body into dst, writing the error envelope on
// failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, types.Response{
			Success: false,
			Error:   "invalid JSON body: " + err.Error(),
		})
		return false
	}
	return true
}

// record updates operation metrics.
func (h *Handler) record(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordOperation(operation, status, time.Since(start))
}

func (h *Handler) writeData(w http.ResponseWriter, statusCode int, data interface{}) {
	h.writeJSON(w, statusCode, types.Response{Success: true, Data: data})
}

// writeErr maps an error to an HTTP status and emits the error envelope.
// Extraction failures carry their structured diagnostics in details.
func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrInvalidRequest),
		errors.Is(err, types.ErrInvalidURL),
		errors.Is(err, types.ErrURLRequired),
		errors.Is(err, types.ErrClientIDInvalid),
		errors.Is(err, types.ErrSelectorEmpty),
		errors.Is(err, types.ErrSelectorTooLong),
		errors.Is(err, types.ErrInvalidSelector),
		errors.Is(err, types.ErrInvalidDomain):
		statusCode = http.StatusBadRequest
	case errors.Is(err, types.ErrCapacityExceeded):
		statusCode = http.StatusTooManyRequests
	case errors.Is(err, types.ErrElementNotFound),
		errors.Is(err, types.ErrSessionNotFound),
		errors.Is(err, types.ErrBookmarkNotFound),
		errors.Is(err, types.ErrCredentialMissing):
		statusCode = http.StatusNotFound
	case errors.Is(err, types.ErrExtractionFailed),
		errors.Is(err, types.ErrContentTooShort),
		errors.Is(err, types.ErrContentNotMeaningful):
		statusCode = http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrPoolClosed),
		errors.Is(err, types.ErrBackendClosed),
		errors.Is(err, types.ErrBackendInitFailed),
		errors.Is(err, types.ErrSessionCreationFailed):
		statusCode = http.StatusServiceUnavailable
	}

	resp := types.Response{Success: false, Error: err.Error()}

	var extErr *types.ExtractionError
	if errors.As(err, &extErr) {
		resp.Details = map[string]interface{}{
			"selector":     extErr.Selector,
			"content_type": extErr.ContentType,
			"timestamp":    extErr.Timestamp,
			"attempts":     extErr.Attempts,
			"suggestions":  extErr.Suggestions,
		}
	}

	h.writeJSON(w, statusCode, resp)
}

// writeJSON buffers the encoded response so encoding errors surface as a
// clean 500 instead of a truncated body.
func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, resp interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(resp); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
		http.Error(w, `{"success":false,"error":"internal encoding error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

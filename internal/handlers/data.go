package handlers

import (
	"net/http"

	"github.com/webpilot/webpilot-go/internal/types"
)

func (h *Handler) handleBookmarkAdd(w http.ResponseWriter, r *http.Request) {
	var req types.BookmarkRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErr(w, err)
		return
	}

	b, err := h.store.AddBookmark(&req)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeData(w, http.StatusCreated, b)
}

func (h *Handler) handleBookmarkList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if query := q.Get("q"); query != "" {
		h.writeData(w, http.StatusOK, h.store.SearchBookmarks(query))
		return
	}
	h.writeData(w, http.StatusOK, h.store.ListBookmarks(q.Get("tag"), q.Get("domain")))
}

func (h *Handler) handleBookmarkUpdate(w http.ResponseWriter, r *http.Request) {
	var req types.BookmarkRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErr(w, err)
		return
	}

	b, err := h.store.UpdateBookmark(r.PathValue("id"), &req)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeData(w, http.StatusOK, b)
}

func (h *Handler) handleBookmarkDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteBookmark(r.PathValue("id")); err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, types.Response{Success: true, Message: "bookmark deleted"})
}

func (h *Handler) handleBookmarkVisit(w http.ResponseWriter, r *http.Request) {
	if err := h.store.RecordVisit(r.PathValue("id")); err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, types.Response{Success: true, Message: "visit recorded"})
}

func (h *Handler) handleCredentialSave(w http.ResponseWriter, r *http.Request) {
	var req types.CredentialRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErr(w, err)
		return
	}

	c, err := h.store.SaveCredential(&req)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	// Never echo the password back.
	h.writeData(w, http.StatusCreated, map[string]interface{}{
		"domain":     c.Domain,
		"username":   c.Username,
		"updated_at": c.UpdatedAt,
	})
}

func (h *Handler) handleCredentialList(w http.ResponseWriter, r *http.Request) {
	h.writeData(w, http.StatusOK, h.store.ListCredentialDomains())
}

func (h *Handler) handleCredentialGet(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.GetCredential(r.PathValue("domain"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeData(w, http.StatusOK, c)
}

func (h *Handler) handleCredentialDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteCredential(r.PathValue("domain")); err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, types.Response{Success: true, Message: "credential deleted"})
}

package contacts

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

// Handler serves the admin dashboard endpoints.
type Handler struct {
	store  Store
	logger *logging.Logger
}

// NewHandler creates the dashboard handler.
func NewHandler(store Store, logger *logging.Logger) *Handler {
	if store == nil {
		panic("contacts: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes mounts the dashboard endpoints on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/contacts", h.ListContacts)
	r.Get("/contacts/{phone}", h.GetContact)
	r.Get("/contact/{phone}", h.GetContact)
	r.Get("/conversations/{phone}", h.ListConversations)
	r.Get("/stats", h.Stats)
}

type pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type envelope struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Pagination *pagination `json:"pagination,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// ListContacts handles GET /admin/dashboard/contacts.
func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	page := pageFromQuery(r)
	list, total, err := h.store.ListContacts(r.Context(), r.URL.Query().Get("search"), page)
	if err != nil {
		h.logger.Error("failed to list contacts", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Error: "failed to list contacts"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: list, Pagination: paginationFor(page, total)})
}

// GetContact handles GET /admin/dashboard/contacts/{phone}.
func (h *Handler) GetContact(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.GetContact(r.Context(), chi.URLParam(r, "phone"))
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, envelope{Error: "Contact not found"})
		return
	case err != nil:
		h.logger.Error("failed to load contact", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Error: "failed to load contact"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: c})
}

// ListConversations handles GET /admin/dashboard/conversations/{phone}.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	page := pageFromQuery(r)
	list, total, err := h.store.ListConversations(r.Context(), chi.URLParam(r, "phone"), page)
	if err != nil {
		h.logger.Error("failed to list conversations", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Error: "failed to list conversations"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: list, Pagination: paginationFor(page, total)})
}

// Stats handles GET /admin/dashboard/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to load dashboard stats", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Error: "failed to load stats"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: st})
}

func pageFromQuery(r *http.Request) Page {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return Page{Page: page, Limit: limit}.Normalize()
}

func paginationFor(page Page, total int) *pagination {
	return &pagination{Page: page.Page, Limit: page.Limit, Total: total, Pages: page.Pages(total)}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

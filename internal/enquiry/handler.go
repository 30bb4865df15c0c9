package enquiry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	httpmiddleware "github.com/wolfman30/travel-enquiry-bot/internal/http/middleware"
	"github.com/wolfman30/travel-enquiry-bot/internal/phone"
	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

// CallbackCreator records a manual callback request.
type CallbackCreator interface {
	CreateCallbackRequest(ctx context.Context, phone, preferredTime string) (*Enquiry, error)
}

// Handler serves the admin enquiry endpoints.
type Handler struct {
	repo      Repository
	callbacks CallbackCreator
	validate  *validator.Validate
	logger    *logging.Logger
}

// NewHandler creates the admin handler. callbacks may be nil, which disables
// manual callback creation.
func NewHandler(repo Repository, callbacks CallbackCreator, logger *logging.Logger) *Handler {
	if repo == nil {
		panic("enquiry: repository cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:      repo,
		callbacks: callbacks,
		validate:  validator.New(),
		logger:    logger,
	}
}

// RegisterRoutes mounts the enquiry endpoints on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/stats", h.Stats)
	r.Get("/callback/pending", h.PendingCallbacks)
	r.Post("/callback", h.CreateCallback)
	r.Get("/tags/{tag}", h.ByTag)
	r.Get("/{id}", h.Get)
	r.Put("/{id}/status", h.UpdateStatus)
}

type envelope struct {
	Success bool   `json:"success"`
	Count   *int   `json:"count,omitempty"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// UpdateStatusRequest is the body of PUT /{id}/status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// CreateCallbackRequest is the body of POST /callback.
type CreateCallbackRequest struct {
	PhoneNumber   string `json:"phoneNumber" validate:"required,min=6,max=20"`
	PreferredTime string `json:"preferredTime" validate:"max=100"`
}

// List handles GET /admin/enquiries.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{Destination: strings.TrimSpace(q.Get("destination"))}

	if raw := q.Get("status"); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, envelope{Message: err.Error()})
			return
		}
		filter.Status = status
	}
	if raw := q.Get("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				filter.Tags = append(filter.Tags, strings.ToLower(tag))
			}
		}
	}
	if raw := q.Get("callbackRequested"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			filter.CallbackRequested = &v
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 && limit <= 500 {
			filter.Limit = limit
		}
	}
	h.writeList(w, r, filter)
}

// PendingCallbacks handles GET /admin/enquiries/callback/pending.
func (h *Handler) PendingCallbacks(w http.ResponseWriter, r *http.Request) {
	requested := true
	h.writeList(w, r, Filter{CallbackRequested: &requested, Status: StatusInProgress})
}

// ByTag handles GET /admin/enquiries/tags/{tag}.
func (h *Handler) ByTag(w http.ResponseWriter, r *http.Request) {
	tag := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "tag")))
	if tag == "" {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "tag is required"})
		return
	}
	h.writeList(w, r, Filter{Tags: []string{tag}})
}

func (h *Handler) writeList(w http.ResponseWriter, r *http.Request, filter Filter) {
	list, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list enquiries", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Message: "failed to list enquiries"})
		return
	}
	if list == nil {
		list = []*Enquiry{}
	}
	count := len(list)
	writeJSON(w, http.StatusOK, envelope{Success: true, Count: &count, Data: list})
}

// Stats handles GET /admin/enquiries/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to load enquiry stats", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Message: "failed to load stats"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: stats})
}

// Get handles GET /admin/enquiries/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	e, err := h.repo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err, "failed to load enquiry")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: e})
}

// UpdateStatus handles PUT /admin/enquiries/{id}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Message: (&InvalidStatusError{}).Error()})
		return
	}
	status, err := ParseStatus(req.Status)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Message: err.Error()})
		return
	}

	id := chi.URLParam(r, "id")
	e, err := h.repo.UpdateStatus(r.Context(), id, status)
	if err != nil {
		h.writeError(w, err, "failed to update status")
		return
	}
	h.logger.Info("enquiry status updated", "enquiry_id", id, "status", string(status), "by", httpmiddleware.AdminSubject(r.Context()))
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: e, Message: "Status updated successfully"})
}

// CreateCallback handles POST /admin/enquiries/callback.
func (h *Handler) CreateCallback(w http.ResponseWriter, r *http.Request) {
	if h.callbacks == nil {
		writeJSON(w, http.StatusNotImplemented, envelope{Message: "callback creation disabled"})
		return
	}
	var req CreateCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Message: err.Error()})
		return
	}
	e, err := h.callbacks.CreateCallbackRequest(r.Context(), phone.NormalizeE164(req.PhoneNumber, ""), req.PreferredTime)
	if err != nil {
		h.writeError(w, err, "failed to create callback")
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: e})
}

func (h *Handler) writeError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, envelope{Message: "Enquiry not found"})
	case errors.Is(err, ErrInvalidStatus):
		writeJSON(w, http.StatusBadRequest, envelope{Message: err.Error()})
	default:
		h.logger.Error(msg, "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Message: msg})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

package conversation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

// WhatsApp message ids are well under this; anything longer is not a job id.
const maxJobIDLen = 256

// JobsHandler serves turn job records to the admin API.
type JobsHandler struct {
	jobs   JobRecorder
	logger *logging.Logger
}

func NewJobsHandler(jobs JobRecorder, logger *logging.Logger) *JobsHandler {
	if jobs == nil {
		panic("conversation: job store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &JobsHandler{jobs: jobs, logger: logger.With("component", "jobs_api")}
}

type jobEnvelope struct {
	Success bool       `json:"success"`
	Data    *JobRecord `json:"data,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// GetJob handles GET /admin/jobs/{jobID}.
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(chi.URLParam(r, "jobID"))
	if jobID == "" || len(jobID) > maxJobIDLen {
		h.reply(w, http.StatusBadRequest, jobEnvelope{Error: "invalid job id"})
		return
	}

	job, err := h.jobs.Lookup(r.Context(), jobID)
	if errors.Is(err, ErrJobNotFound) {
		h.reply(w, http.StatusNotFound, jobEnvelope{Error: "job not found"})
		return
	}
	if err != nil {
		h.logger.Error("job lookup failed", "job_id", jobID, "error", err)
		h.reply(w, http.StatusInternalServerError, jobEnvelope{Error: "failed to load job"})
		return
	}
	h.reply(w, http.StatusOK, jobEnvelope{Success: true, Data: job})
}

func (h *JobsHandler) reply(w http.ResponseWriter, status int, body jobEnvelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("job response not written", "error", err)
	}
}

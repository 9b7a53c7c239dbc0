package controlapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/thep200/ghcollector/internal/model"
	"github.com/thep200/ghcollector/pkg/log"
)

// JobEnqueuer is the slice of jobstore.Store this handler depends on,
// narrowed to an interface so tests can stub it without a real
// Postgres connection.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, owner, name string, priority int) (*model.CollectionJob, error)
	List(ctx context.Context, status string, limit int) ([]*model.CollectionJob, error)
}

// Handler serves the job-intake routes: a write+list JSON surface over
// collection_jobs.
type Handler struct {
	Logger log.Logger
	Jobs   JobEnqueuer
}

func NewHandler(logger log.Logger, jobs JobEnqueuer) *Handler {
	return &Handler{Logger: logger, Jobs: jobs}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.healthz)
	mux.HandleFunc("/jobs", h.jobs)
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) jobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.enqueue(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type enqueueRequest struct {
	Owner    string `json:"owner"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := model.ValidateFullNameParts(req.Owner, req.Name); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job, err := h.Jobs.Enqueue(r.Context(), req.Owner, req.Name, req.Priority)
	if err != nil {
		h.Logger.Error(r.Context(), "failed to enqueue job %s/%s: %v", req.Owner, req.Name, err)
		http.Error(w, "failed to enqueue job", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(job)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")

	jobs, err := h.Jobs.List(r.Context(), status, 100)
	if err != nil {
		h.Logger.Error(r.Context(), "failed to list jobs: %v", err)
		http.Error(w, "failed to list jobs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(jobs)
}

package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/dvloznov/finance-manager/internal/api/middleware"
	"github.com/dvloznov/finance-manager/internal/audit"
	"github.com/dvloznov/finance-manager/internal/domain"
	"github.com/dvloznov/finance-manager/internal/jobs"
	"github.com/dvloznov/finance-manager/internal/logger"
	"github.com/go-chi/chi/v5"
)

// JobsHandler handles balance recomputation jobs.
type JobsHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(publisher jobs.Publisher, store jobs.JobStore) *JobsHandler {
	return &JobsHandler{
		publisher: publisher,
		store:     store,
	}
}

// Reconcile handles POST /reconcile. The job runs in the background;
// poll GET /jobs/{id} for its drift report.
func (h *JobsHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}

	job := &jobs.ReconcileJob{
		Apply:      strings.EqualFold(r.FormValue("apply"), "true"),
		MaxRetries: 2,
	}
	if err := h.publisher.PublishReconcile(r.Context(), job); err != nil {
		middleware.WriteServiceError(w, r, "Failed to enqueue reconcile job", err)
		return
	}

	log := logger.FromContext(r.Context())
	log.Info().
		Str("job_id", job.JobID).
		Bool("apply", job.Apply).
		Msg("Reconcile job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": job.JobID,
		"apply":  job.Apply,
		"status": jobs.JobStatusPending,
	})
}

// GetJob handles GET /jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		middleware.WriteServiceError(w, r, "Failed to get job", err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter := jobs.JobFilter{Status: jobs.JobStatus(r.URL.Query().Get("status"))}

	var err error
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		middleware.WriteServiceError(w, r, "Invalid limit", err)
		return
	}
	if filter.Offset, err = queryInt(r, "offset"); err != nil {
		middleware.WriteServiceError(w, r, "Invalid offset", err)
		return
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		middleware.WriteServiceError(w, r, "Failed to list jobs", err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// AuditLog lists audit entries.
type AuditLog interface {
	List(ctx context.Context, q audit.Query) ([]domain.AuditEntry, error)
}

// AuditHandler serves the mutation audit trail.
type AuditHandler struct {
	log AuditLog
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(log AuditLog) *AuditHandler {
	return &AuditHandler{log: log}
}

// ListEntries handles GET /audit?outcome=&record_id=&limit=
func (h *AuditHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		middleware.WriteServiceError(w, r, "Invalid limit", err)
		return
	}
	if limit == 0 {
		limit = 100
	}

	entries, err := h.log.List(r.Context(), audit.Query{
		Outcome:  r.URL.Query().Get("outcome"),
		RecordID: r.URL.Query().Get("record_id"),
		Limit:    limit,
	})
	if err != nil {
		middleware.WriteServiceError(w, r, "Failed to list audit entries", err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

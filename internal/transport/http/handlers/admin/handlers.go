package adminhandler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"crm/internal/domain/audit"
	"crm/internal/domain/auth"
	"crm/internal/domain/targets"
	"crm/internal/platform/jobs"
	"crm/internal/platform/metrics"
	"crm/internal/transport/http/api"
	"crm/internal/transport/http/middleware"
	"crm/internal/transport/http/shared"
)

type Handler struct {
	Jobs    *jobs.Service
	Targets *targets.Service
	Perms   middleware.PermissionStore
	Audit   *audit.Service
	Metrics *metrics.Collector
}

func NewHandler(jobSvc *jobs.Service, targetSvc *targets.Service, perms middleware.PermissionStore, auditSvc *audit.Service, collector *metrics.Collector) *Handler {
	return &Handler{Jobs: jobSvc, Targets: targetSvc, Perms: perms, Audit: auditSvc, Metrics: collector}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermTargetsRecur, h.Perms)).Post("/recurrence/run", h.handleRunRecurrences)
		r.With(middleware.RequirePermission(auth.PermSystemAdmin, h.Perms)).Get("/metrics", h.handleMetrics)
	})
}

// handleRunRecurrences triggers the period-rollover sweep immediately instead
// of waiting for the scheduler tick. The run is recorded as a job run like
// the scheduled sweeps.
func (h *Handler) handleRunRecurrences(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	details, err := h.Jobs.RunNow(r.Context(), jobs.JobRecurrenceSweep, user.TenantID, func(ctx context.Context) (any, error) {
		return h.Targets.RunRecurrences(ctx, time.Now().UTC())
	})
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "recurrence_run_failed", "failed to run recurrence sweep", middleware.GetRequestID(r.Context()))
		return
	}

	if summary, ok := details.(targets.RecurrenceSummary); ok && h.Metrics != nil {
		h.Metrics.RecordRecurrences(summary.Rolled)
	}
	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, audit.ActionTargetRecurrence, "job_run", jobs.JobRecurrenceSweep, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, details); err != nil {
		slog.Warn("audit targets.recurrence failed", "err", err)
	}
	api.Success(w, details, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetUser(r.Context()); !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	if h.Metrics == nil {
		api.Fail(w, http.StatusNotFound, "not_found", "metrics collection disabled", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, h.Metrics.Snapshot(), middleware.GetRequestID(r.Context()))
}

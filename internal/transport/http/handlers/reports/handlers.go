package reportshandler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"crm/internal/domain/auth"
	"crm/internal/domain/reports"
	"crm/internal/domain/targets"
	"crm/internal/transport/http/api"
	"crm/internal/transport/http/middleware"
	"crm/internal/transport/http/shared"
)

type Handler struct {
	Service *reports.Service
	Perms   middleware.PermissionStore
}

func NewHandler(service *reports.Service, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermReportsRead, h.Perms)).Get("/dashboard", h.handleDashboard)
		r.With(middleware.RequirePermission(auth.PermReportsRead, h.Perms)).Get("/targets/{userID}/progress", h.handleTargetProgress)
		r.With(middleware.RequirePermission(auth.PermReportsRead, h.Perms)).Get("/targets/{userID}/history.pdf", h.handleHistoryPDF)
		r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/job-runs", h.handleJobRuns)
		r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/job-runs/{runID}", h.handleJobRun)
	})
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	branchID := r.URL.Query().Get("branchId")
	if user.RoleName != auth.RoleAdmin && user.RoleName != auth.RoleSystemAdmin {
		branchID = user.BranchID
	}

	dashboard, err := h.Service.Dashboard(r.Context(), user.TenantID, branchID)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "dashboard_failed", "failed to build dashboard", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, dashboard, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleTargetProgress(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	userID := chi.URLParam(r, "userID")
	report, err := h.Service.TargetProgress(r.Context(), user.TenantID, userID, time.Now().UTC())
	if errors.Is(err, targets.ErrTargetNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "performance target not found", middleware.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "progress_report_failed", "failed to build progress report", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, report, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleHistoryPDF(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	userID := chi.URLParam(r, "userID")
	document, err := h.Service.HistoryPDF(r.Context(), user.TenantID, userID)
	if errors.Is(err, targets.ErrTargetNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "performance target not found", middleware.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "history_pdf_failed", "failed to render history document", middleware.GetRequestID(r.Context()))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="target-history.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(document)
}

func (h *Handler) handleJobRuns(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	filter := reports.JobRunFilter{
		JobType: r.URL.Query().Get("jobType"),
		Status:  r.URL.Query().Get("status"),
	}
	v := shared.NewValidator()
	if raw := r.URL.Query().Get("from"); raw != "" {
		if parsed, ok := v.Date("from", raw); ok {
			filter.StartedFrom = &parsed
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if parsed, ok := v.Date("to", raw); ok {
			filter.StartedTo = &parsed
		}
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	page := shared.ParsePagination(r, 50, 200)
	runs, err := h.Service.JobRuns(r.Context(), user.TenantID, filter, page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "job_runs_failed", "failed to list job runs", middleware.GetRequestID(r.Context()))
		return
	}
	total, err := h.Service.JobRunCount(r.Context(), user.TenantID, filter)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "job_runs_failed", "failed to count job runs", middleware.GetRequestID(r.Context()))
		return
	}

	api.Success(w, map[string]any{"items": runs, "total": total}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleJobRun(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	run, err := h.Service.JobRun(r.Context(), user.TenantID, chi.URLParam(r, "runID"))
	if err != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "job run not found", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, run, middleware.GetRequestID(r.Context()))
}

package targetshandler

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"crm/internal/domain/audit"
	"crm/internal/domain/auth"
	"crm/internal/domain/notifications"
	"crm/internal/domain/targets"
	"crm/internal/platform/cache"
	"crm/internal/platform/metrics"
	"crm/internal/transport/http/api"
	"crm/internal/transport/http/middleware"
	"crm/internal/transport/http/shared"
)

type Handler struct {
	Service    *targets.Service
	Perms      middleware.PermissionStore
	Notify     *notifications.Service
	Audit      *audit.Service
	Metrics    *metrics.Collector
	Cache      *cache.TTL
	Idem       *middleware.IdempotencyStore
	WebhookKey string
}

func NewHandler(service *targets.Service, perms middleware.PermissionStore, notify *notifications.Service, auditSvc *audit.Service, collector *metrics.Collector, readCache *cache.TTL, idem *middleware.IdempotencyStore, webhookKey string) *Handler {
	return &Handler{
		Service:    service,
		Perms:      perms,
		Notify:     notify,
		Audit:      auditSvc,
		Metrics:    collector,
		Cache:      readCache,
		Idem:       idem,
		WebhookKey: webhookKey,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/targets", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermTargetsRead, h.Perms)).Get("/{userID}", h.handleGetTarget)
		r.With(middleware.RequirePermission(auth.PermTargetsRead, h.Perms)).Get("/{userID}/history", h.handleHistory)
		r.With(middleware.RequirePermission(auth.PermTargetsRead, h.Perms)).Get("/{userID}/progress", h.handleProgress)
		r.With(middleware.RequirePermission(auth.PermTargetsRead, h.Perms)).Get("/{userID}/sync-transactions", h.handleListSyncTransactions)
		r.With(middleware.RequirePermission(auth.PermTargetsWrite, h.Perms)).Put("/{userID}", h.handleSetGoals)
		r.With(middleware.RequirePermission(auth.PermTargetsWrite, h.Perms)).Delete("/{userID}", h.handleDetachTarget)
		r.With(middleware.RequirePermission(auth.PermTargetsWrite, h.Perms)).Post("/{userID}/recalculate", h.handleRecalculate)
		r.With(middleware.RequirePermission(auth.PermTargetsRecur, h.Perms)).Post("/{userID}/disable-recurrence", h.handleDisableRecurrence)
		// The webhook is authenticated by key, not by session; RBAC applies
		// only when a logged-in user hits it directly.
		r.Post("/{userID}/erp-sync", h.handleExternalSync)
	})
}

func (h *Handler) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	userID := chi.URLParam(r, "userID")
	cacheKey := targets.CacheKey(user.TenantID, userID)
	if h.Cache != nil {
		if cached, ok := h.Cache.Get(cacheKey); ok {
			if rec, ok := cached.(*targets.TargetRecord); ok {
				api.Success(w, rec, middleware.GetRequestID(r.Context()))
				return
			}
		}
	}

	rec, err := h.Service.GetTarget(r.Context(), user.TenantID, userID)
	if errors.Is(err, targets.ErrTargetNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "performance target not found", middleware.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "target_read_failed", "failed to load target", middleware.GetRequestID(r.Context()))
		return
	}
	if h.Cache != nil {
		h.Cache.Set(cacheKey, rec)
	}
	api.Success(w, rec, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSetGoals(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	userID := chi.URLParam(r, "userID")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	var payload targets.GoalInput
	if err := json.Unmarshal(body, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	requestHash := middleware.RequestHash(body)
	if idempotencyKey != "" {
		stored, found, err := h.Idem.Check(r.Context(), user.TenantID, user.UserID, "targets.goals.set", idempotencyKey, requestHash)
		if errors.Is(err, middleware.ErrIdempotencyConflict) {
			api.Fail(w, http.StatusConflict, "idempotency_conflict", "idempotency key was used with a different payload", middleware.GetRequestID(r.Context()))
			return
		}
		if err != nil {
			slog.Warn("idempotency check failed", "err", err)
		}
		if found {
			api.Success(w, json.RawMessage(stored), middleware.GetRequestID(r.Context()))
			return
		}
	}

	v := shared.NewValidator()
	v.Enum("recurringInterval", payload.RecurringInterval,
		[]string{targets.IntervalDaily, targets.IntervalWeekly, targets.IntervalMonthly},
		"must be one of daily, weekly, monthly")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	existing := true
	if _, err := h.Service.GetTarget(r.Context(), user.TenantID, userID); errors.Is(err, targets.ErrTargetNotFound) {
		existing = false
	}

	rec, err := h.Service.SetGoals(r.Context(), user.TenantID, userID, payload)
	if errors.Is(err, targets.ErrUserNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "user not found", middleware.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "target_save_failed", "failed to save target goals", middleware.GetRequestID(r.Context()))
		return
	}

	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, audit.ActionTargetGoalsSet, "performance_target", rec.ID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, payload); err != nil {
		slog.Warn("audit targets.goals.set failed", "err", err)
	}
	if h.Notify != nil && !existing {
		if err := h.Notify.Notify(r.Context(), user.TenantID, userID, notifications.TypeGoalAssigned, "Performance goals assigned", "Performance goals have been set for you.", map[string]any{"period": rec.TargetPeriod}); err != nil {
			slog.Warn("goal assigned notification failed", "err", err)
		}
	}

	if idempotencyKey != "" {
		encoded, err := json.Marshal(rec)
		if err != nil {
			slog.Warn("idempotency response marshal failed", "err", err)
		} else if err := h.Idem.Save(r.Context(), user.TenantID, user.UserID, "targets.goals.set", idempotencyKey, requestHash, encoded); err != nil {
			slog.Warn("idempotency save failed", "err", err)
		}
	}

	if existing {
		api.Success(w, rec, middleware.GetRequestID(r.Context()))
		return
	}
	api.Created(w, rec, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDetachTarget(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	userID := chi.URLParam(r, "userID")
	err := h.Service.DetachTarget(r.Context(), user.TenantID, userID)
	if errors.Is(err, targets.ErrTargetNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "performance target not found", middleware.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "target_detach_failed", "failed to detach target", middleware.GetRequestID(r.Context()))
		return
	}

	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, audit.ActionTargetDetached, "performance_target", userID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, nil); err != nil {
		slog.Warn("audit targets.detach failed", "err", err)
	}
	api.Success(w, map[string]string{"status": "detached"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	userID := chi.URLParam(r, "userID")
	history, err := h.Service.History(r.Context(), user.TenantID, userID)
	if errors.Is(err, targets.ErrTargetNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "performance target not found", middleware.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "history_failed", "failed to load target history", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, history, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	userID := chi.URLParam(r, "userID")
	rec, err := h.Service.GetTarget(r.Context(), user.TenantID, userID)
	if errors.Is(err, targets.ErrTargetNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "performance target not found", middleware.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "progress_failed", "failed to load target progress", middleware.GetRequestID(r.Context()))
		return
	}

	api.Success(w, map[string]any{
		"period":      rec.TargetPeriod,
		"periodStart": rec.PeriodStartDate.Format("2006-01-02"),
		"periodEnd":   rec.PeriodEndDate.Format("2006-01-02"),
		"progress":    targets.ProgressSummary(rec),
	}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListSyncTransactions(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	userID := chi.URLParam(r, "userID")
	page := shared.ParsePagination(r, 50, 200)
	records, err := h.Service.ListSyncTransactions(r.Context(), user.TenantID, userID, page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "sync_list_failed", "failed to list sync transactions", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, records, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	userID := chi.URLParam(r, "userID")
	if err := h.Service.Recalculate(r.Context(), user.TenantID, userID); err != nil {
		if errors.Is(err, targets.ErrIntegrity) {
			api.Fail(w, http.StatusConflict, "integrity_error", "recalculated values failed integrity bounds", middleware.GetRequestID(r.Context()))
			return
		}
		api.Fail(w, http.StatusInternalServerError, "recalculate_failed", "failed to recalculate progress", middleware.GetRequestID(r.Context()))
		return
	}

	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, audit.ActionTargetRecurrence, "performance_target", userID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, map[string]string{"trigger": "manual_recalculate"}); err != nil {
		slog.Warn("audit targets.recalculate failed", "err", err)
	}
	api.Success(w, map[string]string{"status": "recalculated"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDisableRecurrence(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	userID := chi.URLParam(r, "userID")
	rec, err := h.Service.DisableRecurrence(r.Context(), user.TenantID, userID)
	if errors.Is(err, targets.ErrTargetNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "performance target not found", middleware.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "recurrence_disable_failed", "failed to disable recurrence", middleware.GetRequestID(r.Context()))
		return
	}

	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, audit.ActionRecurrenceDisable, "performance_target", rec.ID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, nil); err != nil {
		slog.Warn("audit targets.recurrence.disable failed", "err", err)
	}
	api.Success(w, rec, middleware.GetRequestID(r.Context()))
}

// handleExternalSync processes one ERP increment/decrement/replace
// transaction. Callers present either the shared webhook key or a session
// with the sync permission; branch-scoped sessions can only touch users in
// their own branch.
func (h *Handler) handleExternalSync(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	tenantID := ""
	callerBranchID := ""
	actorID := ""
	if key := r.Header.Get("X-Webhook-Key"); key != "" {
		if h.WebhookKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.WebhookKey)) != 1 {
			api.Fail(w, http.StatusUnauthorized, "unauthorized", "invalid webhook key", middleware.GetRequestID(r.Context()))
			return
		}
		tenantID = r.Header.Get("X-Tenant-ID")
		if tenantID == "" {
			api.Fail(w, http.StatusBadRequest, "invalid_payload", "tenant header required", middleware.GetRequestID(r.Context()))
			return
		}
	} else {
		user, ok := middleware.GetUser(r.Context())
		if !ok {
			api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
			return
		}
		allowed, err := h.Perms.HasPermission(r.Context(), user.RoleID, auth.PermTargetsSync)
		if err != nil || !allowed {
			api.Fail(w, http.StatusForbidden, "forbidden", "insufficient permissions", middleware.GetRequestID(r.Context()))
			return
		}
		tenantID = user.TenantID
		actorID = user.UserID
		if user.RoleName != auth.RoleAdmin && user.RoleName != auth.RoleSystemAdmin {
			callerBranchID = user.BranchID
		}
	}

	var payload targets.ExternalUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	result, err := h.Service.ProcessExternalUpdate(r.Context(), tenantID, callerBranchID, userID, payload)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "sync_failed", "failed to process external update", middleware.GetRequestID(r.Context()))
		return
	}

	if h.Metrics != nil {
		h.Metrics.RecordSync(result.Status, result.Replayed)
	}
	if result.Status == targets.StatusApplied && !result.Replayed {
		if err := h.Audit.Record(r.Context(), tenantID, actorID, audit.ActionTargetSync, "performance_target", userID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, map[string]any{
			"transactionId": payload.TransactionID,
			"updateMode":    payload.UpdateMode,
			"updatedValues": result.UpdatedValues,
		}); err != nil {
			slog.Warn("audit targets.sync failed", "err", err)
		}
	}

	switch result.Status {
	case targets.StatusApplied:
		api.Success(w, result, middleware.GetRequestID(r.Context()))
	case targets.StatusValidationFailed:
		api.FailWithDetails(w, http.StatusBadRequest, "validation_failed", "external update rejected", map[string]any{
			"validationErrors": result.ValidationErrors,
		}, middleware.GetRequestID(r.Context()))
	case targets.StatusConflict:
		api.FailWithDetails(w, http.StatusConflict, "conflict", "target row is busy; retry later", map[string]any{
			"attempts":   result.Conflict.Attempts,
			"retryAfter": result.Conflict.RetryAfter,
		}, middleware.GetRequestID(r.Context()))
	case targets.StatusNotFound:
		api.Fail(w, http.StatusNotFound, "not_found", "target user not found", middleware.GetRequestID(r.Context()))
	default:
		api.Fail(w, http.StatusInternalServerError, "sync_failed", "unexpected sync result", middleware.GetRequestID(r.Context()))
	}
}

package corehandler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"crm/internal/domain/audit"
	"crm/internal/domain/auth"
	"crm/internal/domain/core"
	"crm/internal/transport/http/api"
	"crm/internal/transport/http/middleware"
	"crm/internal/transport/http/shared"
)

type Handler struct {
	Service *core.Service
	Audit   *audit.Service
}

func NewHandler(service *core.Service, auditSvc *audit.Service) *Handler {
	return &Handler{Service: service, Audit: auditSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/me", h.handleMe)
	r.Route("/users", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermUsersRead, h.Service)).Get("/", h.handleListUsers)
		r.With(middleware.RequirePermission(auth.PermUsersWrite, h.Service)).Post("/", h.handleCreateUser)
		r.Route("/{userID}", func(r chi.Router) {
			r.With(middleware.RequirePermission(auth.PermUsersRead, h.Service)).Get("/", h.handleGetUser)
			r.With(middleware.RequirePermission(auth.PermUsersWrite, h.Service)).Put("/", h.handleUpdateUser)
			r.With(middleware.RequirePermission(auth.PermUsersWrite, h.Service)).Delete("/", h.handleDeleteUser)
		})
	})
	r.Route("/branches", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermOrgRead, h.Service)).Get("/", h.handleListBranches)
		r.With(middleware.RequirePermission(auth.PermOrgWrite, h.Service)).Post("/", h.handleCreateBranch)
	})
	r.With(middleware.RequirePermission(auth.PermOrgRead, h.Service)).Get("/holidays", h.handleListHolidays)
	r.With(middleware.RequirePermission(auth.PermOrgRead, h.Service)).Get("/roles", h.handleListRoles)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	exists, err := h.Service.UserExists(r.Context(), user.TenantID, user.UserID)
	if err != nil || !exists {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	profile, err := h.Service.GetUser(r.Context(), user.TenantID, user.UserID)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "profile_failed", "failed to load profile", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, profile, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	// Branch-scoped roles only see their own branch.
	branchID := r.URL.Query().Get("branchId")
	if user.RoleName != auth.RoleAdmin && user.RoleName != auth.RoleSystemAdmin {
		branchID = user.BranchID
	}

	users, err := h.Service.ListUsers(r.Context(), user.TenantID, branchID)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "user_list_failed", "failed to list users", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, users, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	target, err := h.Service.GetUser(r.Context(), user.TenantID, chi.URLParam(r, "userID"))
	if err != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "user not found", middleware.GetRequestID(r.Context()))
		return
	}
	if user.RoleName != auth.RoleAdmin && user.RoleName != auth.RoleSystemAdmin && user.BranchID != "" && target.BranchID != user.BranchID {
		api.Fail(w, http.StatusForbidden, "forbidden", "not allowed", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, target, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Phone     string `json:"phone"`
		RoleID    string `json:"roleId"`
		BranchID  string `json:"branchId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	v := shared.NewValidator()
	v.Required("email", payload.Email, "email is required")
	v.Required("password", payload.Password, "password is required")
	v.Required("roleId", payload.RoleID, "role id is required")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	hash, err := auth.HashPassword(payload.Password)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "hash_error", "failed to create user", middleware.GetRequestID(r.Context()))
		return
	}

	id, err := h.Service.CreateUser(r.Context(), user.TenantID, core.User{
		Email:     payload.Email,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Phone:     payload.Phone,
		RoleID:    payload.RoleID,
		BranchID:  payload.BranchID,
		Status:    auth.UserStatusActive,
	}, hash)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "user_create_failed", "failed to create user", middleware.GetRequestID(r.Context()))
		return
	}

	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, "users.create", "user", id, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, map[string]string{"email": payload.Email, "roleId": payload.RoleID}); err != nil {
		slog.Warn("audit users.create failed", "err", err)
	}
	api.Created(w, map[string]string{"id": id}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	userID := chi.URLParam(r, "userID")
	current, err := h.Service.GetUser(r.Context(), user.TenantID, userID)
	if err != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "user not found", middleware.GetRequestID(r.Context()))
		return
	}

	var payload struct {
		Email     *string `json:"email"`
		FirstName *string `json:"firstName"`
		LastName  *string `json:"lastName"`
		Phone     *string `json:"phone"`
		RoleID    *string `json:"roleId"`
		BranchID  *string `json:"branchId"`
		Status    *string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	if payload.Email != nil {
		current.Email = *payload.Email
	}
	if payload.FirstName != nil {
		current.FirstName = *payload.FirstName
	}
	if payload.LastName != nil {
		current.LastName = *payload.LastName
	}
	if payload.Phone != nil {
		current.Phone = *payload.Phone
	}
	if payload.RoleID != nil {
		current.RoleID = *payload.RoleID
	}
	if payload.BranchID != nil {
		current.BranchID = *payload.BranchID
	}
	if payload.Status != nil {
		v := shared.NewValidator()
		v.Enum("status", *payload.Status, []string{auth.UserStatusActive, auth.UserStatusInactive}, "must be active or inactive")
		if v.Reject(w, middleware.GetRequestID(r.Context())) {
			return
		}
		current.Status = *payload.Status
	}

	if err := h.Service.UpdateUser(r.Context(), user.TenantID, userID, *current); err != nil {
		api.Fail(w, http.StatusInternalServerError, "user_update_failed", "failed to update user", middleware.GetRequestID(r.Context()))
		return
	}

	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, "users.update", "user", userID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, payload); err != nil {
		slog.Warn("audit users.update failed", "err", err)
	}
	api.Success(w, map[string]string{"id": userID}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	userID := chi.URLParam(r, "userID")
	if err := h.Service.SoftDeleteUser(r.Context(), user.TenantID, userID); err != nil {
		api.Fail(w, http.StatusInternalServerError, "user_delete_failed", "failed to delete user", middleware.GetRequestID(r.Context()))
		return
	}

	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, "users.delete", "user", userID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, nil); err != nil {
		slog.Warn("audit users.delete failed", "err", err)
	}
	api.Success(w, map[string]string{"status": "deleted"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListBranches(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	branches, err := h.Service.ListBranches(r.Context(), user.TenantID)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "branch_list_failed", "failed to list branches", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, branches, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload struct {
		Name        string `json:"name"`
		Address     string `json:"address"`
		Timezone    string `json:"timezone"`
		WorkingDays []int  `json:"workingDays"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	v := shared.NewValidator()
	v.Required("name", payload.Name, "branch name is required")
	for _, day := range payload.WorkingDays {
		if day < 1 || day > 7 {
			v.Add("workingDays", "days must be ISO weekdays between 1 and 7")
			break
		}
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	id, err := h.Service.CreateBranch(r.Context(), user.TenantID, core.Branch{
		Name:        payload.Name,
		Address:     payload.Address,
		Timezone:    payload.Timezone,
		WorkingDays: payload.WorkingDays,
	})
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "branch_create_failed", "failed to create branch", middleware.GetRequestID(r.Context()))
		return
	}

	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, "branches.create", "branch", id, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, payload); err != nil {
		slog.Warn("audit branches.create failed", "err", err)
	}
	api.Created(w, map[string]string{"id": id}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListHolidays(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var from, to any
	v := shared.NewValidator()
	if raw := r.URL.Query().Get("from"); raw != "" {
		if parsed, ok := v.Date("from", raw); ok {
			from = parsed
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if parsed, ok := v.Date("to", raw); ok {
			to = parsed
		}
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	holidays, err := h.Service.ListHolidays(r.Context(), user.TenantID, from, to)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "holiday_list_failed", "failed to list holidays", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, holidays, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	roles, err := h.Service.ListRoles(r.Context(), user.TenantID)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "role_list_failed", "failed to list roles", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, roles, middleware.GetRequestID(r.Context()))
}

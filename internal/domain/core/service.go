package core

import "context"

type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

func (s *Service) HasPermission(ctx context.Context, roleID, permission string) (bool, error) {
	return s.store.HasPermission(ctx, roleID, permission)
}

func (s *Service) UserExists(ctx context.Context, tenantID, userID string) (bool, error) {
	return s.store.UserExists(ctx, tenantID, userID)
}

func (s *Service) GetUser(ctx context.Context, tenantID, userID string) (*User, error) {
	return s.store.GetUser(ctx, tenantID, userID)
}

func (s *Service) ListUsers(ctx context.Context, tenantID, branchID string) ([]User, error) {
	return s.store.ListUsers(ctx, tenantID, branchID)
}

func (s *Service) CreateUser(ctx context.Context, tenantID string, user User, passwordHash string) (string, error) {
	return s.store.CreateUser(ctx, tenantID, user, passwordHash)
}

func (s *Service) UpdateUser(ctx context.Context, tenantID, userID string, user User) error {
	return s.store.UpdateUser(ctx, tenantID, userID, user)
}

func (s *Service) SoftDeleteUser(ctx context.Context, tenantID, userID string) error {
	return s.store.SoftDeleteUser(ctx, tenantID, userID)
}

func (s *Service) GetBranch(ctx context.Context, tenantID, branchID string) (*Branch, error) {
	return s.store.GetBranch(ctx, tenantID, branchID)
}

func (s *Service) ListBranches(ctx context.Context, tenantID string) ([]Branch, error) {
	return s.store.ListBranches(ctx, tenantID)
}

func (s *Service) CreateBranch(ctx context.Context, tenantID string, branch Branch) (string, error) {
	return s.store.CreateBranch(ctx, tenantID, branch)
}

func (s *Service) ListHolidays(ctx context.Context, tenantID string, from, to any) ([]Holiday, error) {
	return s.store.ListHolidays(ctx, tenantID, from, to)
}

func (s *Service) UserBranchID(ctx context.Context, tenantID, userID string) (string, error) {
	return s.store.UserBranchID(ctx, tenantID, userID)
}

func (s *Service) ListPermissions(ctx context.Context) ([]map[string]string, error) {
	return s.store.ListPermissions(ctx)
}

func (s *Service) ListRoles(ctx context.Context, tenantID string) ([]map[string]any, error) {
	return s.store.ListRoles(ctx, tenantID)
}

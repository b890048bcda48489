package core

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) HasPermission(ctx context.Context, roleID, permission string) (bool, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1)
    FROM role_permissions rp
    JOIN permissions p ON rp.permission_id = p.id
    WHERE rp.role_id = $1 AND p.key = $2
  `, roleID, permission).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) UserExists(ctx context.Context, tenantID, userID string) (bool, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1)
    FROM users
    WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL
  `, tenantID, userID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

const userColumns = `u.id, u.email,
       COALESCE(u.first_name, ''), COALESCE(u.last_name, ''), COALESCE(u.phone, ''),
       u.role_id, r.name,
       COALESCE(u.branch_id::text, ''),
       u.status, u.last_login, u.created_at, u.updated_at`

func (s *Store) GetUser(ctx context.Context, tenantID, userID string) (*User, error) {
	row := s.DB.QueryRow(ctx, `
    SELECT `+userColumns+`
    FROM users u
    JOIN roles r ON u.role_id = r.id
    WHERE u.tenant_id = $1 AND u.id = $2 AND u.deleted_at IS NULL
  `, tenantID, userID)

	var user User
	if err := row.Scan(
		&user.ID, &user.Email, &user.FirstName, &user.LastName, &user.Phone,
		&user.RoleID, &user.RoleName, &user.BranchID, &user.Status,
		&user.LastLogin, &user.CreatedAt, &user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context, tenantID, branchID string) ([]User, error) {
	query := `
    SELECT ` + userColumns + `
    FROM users u
    JOIN roles r ON u.role_id = r.id
    WHERE u.tenant_id = $1 AND u.deleted_at IS NULL`
	args := []any{tenantID}
	if branchID != "" {
		query += " AND u.branch_id = $2"
		args = append(args, branchID)
	}
	query += " ORDER BY u.last_name, u.first_name"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var user User
		if err := rows.Scan(
			&user.ID, &user.Email, &user.FirstName, &user.LastName, &user.Phone,
			&user.RoleID, &user.RoleName, &user.BranchID, &user.Status,
			&user.LastLogin, &user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	return out, nil
}

func (s *Store) CreateUser(ctx context.Context, tenantID string, user User, passwordHash string) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO users (tenant_id, email, password_hash, first_name, last_name, phone, role_id, branch_id, status)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    RETURNING id
  `,
		tenantID, user.Email, passwordHash, user.FirstName, user.LastName, user.Phone,
		user.RoleID, nullIfEmpty(user.BranchID), user.Status,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) UpdateUser(ctx context.Context, tenantID, userID string, user User) error {
	cmd, err := s.DB.Exec(ctx, `
    UPDATE users
    SET email = $1,
        first_name = $2,
        last_name = $3,
        phone = $4,
        role_id = $5,
        branch_id = $6,
        status = $7,
        updated_at = now()
    WHERE tenant_id = $8 AND id = $9 AND deleted_at IS NULL
  `,
		user.Email, user.FirstName, user.LastName, user.Phone,
		user.RoleID, nullIfEmpty(user.BranchID), user.Status, tenantID, userID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return errors.New("user not found")
	}
	return nil
}

func (s *Store) SoftDeleteUser(ctx context.Context, tenantID, userID string) error {
	cmd, err := s.DB.Exec(ctx, `
    UPDATE users SET deleted_at = now(), status = 'inactive'
    WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL
  `, tenantID, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return errors.New("user not found")
	}
	return nil
}

func (s *Store) GetBranch(ctx context.Context, tenantID, branchID string) (*Branch, error) {
	row := s.DB.QueryRow(ctx, `
    SELECT id, name, COALESCE(address, ''), COALESCE(timezone, 'UTC'), working_days, created_at
    FROM branches
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, branchID)

	var branch Branch
	if err := row.Scan(&branch.ID, &branch.Name, &branch.Address, &branch.Timezone, &branch.WorkingDays, &branch.CreatedAt); err != nil {
		return nil, err
	}
	return &branch, nil
}

func (s *Store) ListBranches(ctx context.Context, tenantID string) ([]Branch, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, name, COALESCE(address, ''), COALESCE(timezone, 'UTC'), working_days, created_at
    FROM branches
    WHERE tenant_id = $1
    ORDER BY name
  `, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Branch
	for rows.Next() {
		var branch Branch
		if err := rows.Scan(&branch.ID, &branch.Name, &branch.Address, &branch.Timezone, &branch.WorkingDays, &branch.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, branch)
	}
	return out, nil
}

func (s *Store) CreateBranch(ctx context.Context, tenantID string, branch Branch) (string, error) {
	workingDays := branch.WorkingDays
	if len(workingDays) == 0 {
		workingDays = []int{1, 2, 3, 4, 5}
	}
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO branches (tenant_id, name, address, timezone, working_days)
    VALUES ($1,$2,$3,$4,$5)
    RETURNING id
  `, tenantID, branch.Name, branch.Address, branch.Timezone, workingDays).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) ListHolidays(ctx context.Context, tenantID string, from, to any) ([]Holiday, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, name, holiday_date
    FROM org_holidays
    WHERE tenant_id = $1 AND holiday_date >= $2 AND holiday_date <= $3
    ORDER BY holiday_date
  `, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Holiday
	for rows.Next() {
		var holiday Holiday
		if err := rows.Scan(&holiday.ID, &holiday.Name, &holiday.Date); err != nil {
			return nil, err
		}
		out = append(out, holiday)
	}
	return out, nil
}

func (s *Store) UserBranchID(ctx context.Context, tenantID, userID string) (string, error) {
	var branchID string
	err := s.DB.QueryRow(ctx, `
    SELECT COALESCE(branch_id::text, '')
    FROM users
    WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL
  `, tenantID, userID).Scan(&branchID)
	if err != nil {
		return "", err
	}
	return branchID, nil
}

func (s *Store) ListPermissions(ctx context.Context) ([]map[string]string, error) {
	rows, err := s.DB.Query(ctx, "SELECT id, key FROM permissions ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]string
	for rows.Next() {
		var id, key string
		if err := rows.Scan(&id, &key); err != nil {
			return nil, err
		}
		out = append(out, map[string]string{"id": id, "key": key})
	}
	return out, nil
}

func (s *Store) ListRoles(ctx context.Context, tenantID string) ([]map[string]any, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, name
    FROM roles
    WHERE tenant_id = $1
    ORDER BY name
  `, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out = append(out, map[string]any{"id": id, "name": name})
	}
	return out, nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

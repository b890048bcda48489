package auth

// UserContext is the authenticated caller as carried through request context.
type UserContext struct {
	UserID    string
	TenantID  string
	BranchID  string
	RoleID    string
	RoleName  string
	SessionID string
}

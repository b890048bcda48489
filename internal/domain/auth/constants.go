package auth

const (
	RoleSales       = "sales"
	RoleManager     = "manager"
	RoleAdmin       = "admin"
	RoleSystemAdmin = "system_admin"
)

const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
)

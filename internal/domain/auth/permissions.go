package auth

const (
	PermUsersRead         = "core.users.read"
	PermUsersWrite        = "core.users.write"
	PermOrgRead           = "core.org.read"
	PermOrgWrite          = "core.org.write"
	PermTargetsRead       = "targets.read"
	PermTargetsWrite      = "targets.write"
	PermTargetsSync       = "targets.sync"
	PermTargetsRecur      = "targets.recur"
	PermReportsRead       = "reports.read"
	PermNotificationsRead = "notifications.read"
	PermAuditRead         = "audit.read"
	PermSystemAdmin       = "admin.system"
)

var DefaultPermissions = []string{
	PermUsersRead,
	PermUsersWrite,
	PermOrgRead,
	PermOrgWrite,
	PermTargetsRead,
	PermTargetsWrite,
	PermTargetsSync,
	PermTargetsRecur,
	PermReportsRead,
	PermNotificationsRead,
	PermAuditRead,
	PermSystemAdmin,
}

var RolePermissions = map[string][]string{
	RoleSales: {
		PermUsersRead,
		PermOrgRead,
		PermTargetsRead,
		PermReportsRead,
		PermNotificationsRead,
	},
	RoleManager: {
		PermUsersRead,
		PermOrgRead,
		PermTargetsRead,
		PermTargetsWrite,
		PermReportsRead,
		PermNotificationsRead,
	},
	RoleAdmin: {
		PermUsersRead,
		PermUsersWrite,
		PermOrgRead,
		PermOrgWrite,
		PermTargetsRead,
		PermTargetsWrite,
		PermTargetsSync,
		PermTargetsRecur,
		PermReportsRead,
		PermNotificationsRead,
		PermAuditRead,
	},
	RoleSystemAdmin: {
		PermSystemAdmin,
	},
}

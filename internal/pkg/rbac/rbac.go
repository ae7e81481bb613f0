package rbac

const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

const (
	PermSendTest     = "notifications:test"
	PermSendBulk     = "notifications:bulk"
	PermViewStats    = "connections:stats"
	PermManageConns  = "connections:manage"
	PermReadOwnInbox = "inbox:read"
	PermSubscribeOwn = "push:subscribe"
)

// Roles defines the RBAC policy for the application
var Roles = map[string][]string{
	RoleAdmin: {"*"},
	RoleUser:  {PermReadOwnInbox, PermSubscribeOwn},
}

// Permissions describes available permissions
var Permissions = map[string]string{
	PermSendTest:     "send test pushes and broadcasts",
	PermSendBulk:     "send bulk notifications",
	PermViewStats:    "view connection statistics",
	PermManageConns:  "inspect or close any user's connection",
	PermReadOwnInbox: "list and mark own notifications",
	PermSubscribeOwn: "open own push stream",
}

// CheckPermission checks if a role has a specific permission
func CheckPermission(role, permission string) bool {
	perms, ok := Roles[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == "*" || p == permission {
			return true
		}
	}
	return false
}

// Any reports whether one of roles grants permission.
func Any(roles []string, permission string) bool {
	for _, r := range roles {
		if CheckPermission(r, permission) {
			return true
		}
	}
	return false
}

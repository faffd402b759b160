package domain

// Role flags attached to an identity.
const (
	RoleAdmin  = "admin"
	RoleBanned = "banned"
	RoleNoDMs  = "no_dms"
	RoleSystem = "system"
)

// User is an authenticated identity. The chat core holds only the id,
// the cached display name and role flags; credentials live in the
// identity store.
type User struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles,omitempty"`
}

func (u *User) hasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the identity carries the admin role.
func (u *User) IsAdmin() bool { return u.hasRole(RoleAdmin) }

// IsBanned reports whether the identity is banned from logging in.
func (u *User) IsBanned() bool { return u.hasRole(RoleBanned) }

// AllowsDirectMessages reports whether the identity accepts 1:1 messages.
func (u *User) AllowsDirectMessages() bool { return !u.hasRole(RoleNoDMs) }

// SystemUser is the reserved identity that auto-responder replies and
// server notices are attributed to.
var SystemUser = User{
	ID:       "system",
	Username: "system",
	Roles:    []string{RoleSystem},
}

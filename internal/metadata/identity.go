package metadata

// Role names with built-in meaning.
const (
	AdminRole   = "Admin"
	DefaultRole = "Viewer"
)

// IdentityLocalsKey is the request-local key the session and token layers
// store the acting identity under.
const IdentityLocalsKey = "identity"

// Identity is the acting user attached to a request. Nil means anonymous.
type Identity struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// IsAdmin reports whether the identity bypasses ownership checks.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == AdminRole
}

// RoleOrDefault returns the identity's role, or DefaultRole when anonymous.
func (i *Identity) RoleOrDefault() string {
	if i == nil || i.Role == "" {
		return DefaultRole
	}
	return i.Role
}

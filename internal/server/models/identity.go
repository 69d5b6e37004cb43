package models

// Identity is what an authenticated request knows about its caller. The
// role always comes from the store at request time.
type Identity struct {
	ID    string
	Email string
	Role  Role
}

// HasRole reports whether the identity holds one of roles.
func (i Identity) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

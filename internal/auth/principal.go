package auth

import "github.com/charlesng35/stomanager/internal/models"

// Principal is the authenticated caller attached to a request. It is rebuilt from the
// accounts table on every request.
type Principal struct {
	ID    string
	Email string
	Role  models.Role
}

// IsElevated reports whether the principal holds the SUPER_USER role.
func (p Principal) IsElevated() bool {
	return p.Role == models.RoleSuperUser
}

// PrincipalFromAccount builds a Principal from a persisted account.
func PrincipalFromAccount(account *models.Account) Principal {
	if account == nil {
		return Principal{}
	}
	return Principal{ID: account.ID, Email: account.Email, Role: account.Role}
}

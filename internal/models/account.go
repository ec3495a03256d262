package models

import "time"

// Role is the closed set of privilege levels an account can hold.
type Role string

const (
	// RoleSuperUser is the elevated role permitted to manage users and ingest data.
	RoleSuperUser Role = "SUPER_USER"
	// RoleAdminUser is the standard role granted to self-service signups.
	RoleAdminUser Role = "ADMIN_USER"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperUser, RoleAdminUser:
		return true
	default:
		return false
	}
}

// ParseRole converts user input into a Role, defaulting empty input to fallback.
func ParseRole(value string, fallback Role) (Role, bool) {
	if value == "" {
		return fallback, fallback.Valid()
	}
	role := Role(value)
	return role, role.Valid()
}

// Account is an activated login. Accounts are soft-deleted by clearing IsActive.
type Account struct {
	BaseModel

	Email        string `gorm:"uniqueIndex;not null;size:320" json:"email"`
	Name         string `gorm:"not null" json:"name"`
	PasswordHash string `gorm:"column:password_hash;not null" json:"-"`
	Role         Role   `gorm:"type:varchar(32);not null;index" json:"role"`
	IsActive     bool   `gorm:"default:true" json:"is_active"`

	LastLogin *time.Time `json:"last_login"`

	FailedAttempts int        `gorm:"default:0" json:"-"`
	LockedUntil    *time.Time `json:"-"`

	Sessions []Session `gorm:"foreignKey:UserID" json:"-"`
}

// TableName keeps the historical table name used by reporting queries.
func (Account) TableName() string { return "users" }

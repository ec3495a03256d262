package models

import "time"

// PendingAccount is a signup request that has not been activated yet. The ID doubles
// as the opaque token embedded in approval links.
type PendingAccount struct {
	BaseModel

	Email        string  `gorm:"not null;index;size:320" json:"email"`
	Name         string  `gorm:"not null" json:"name"`
	PasswordHash string  `gorm:"column:password_hash;not null" json:"-"`
	Role         Role    `gorm:"type:varchar(32);not null" json:"role"`
	AdminEmail   *string `gorm:"size:320" json:"admin_email,omitempty"`

	OTPVerified   bool `gorm:"column:otp_verified;default:false;not null" json:"otp_verified"`
	AdminApproved bool `gorm:"column:admin_approved;default:false;not null" json:"admin_approved"`

	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
}

// TableName matches the table used by the approval tooling.
func (PendingAccount) TableName() string { return "pending_users" }

// Expired reports whether the record is past its expiry at now.
func (p *PendingAccount) Expired(now time.Time) bool {
	return !p.ExpiresAt.After(now)
}

// RequiresApproval reports whether a named approver must act before promotion.
func (p *PendingAccount) RequiresApproval() bool {
	return p.AdminEmail != nil && *p.AdminEmail != ""
}

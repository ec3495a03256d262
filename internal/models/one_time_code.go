package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OTPPurpose scopes a one-time code to a single flow.
type OTPPurpose string

const (
	OTPPurposeSignup            OTPPurpose = "signup"
	OTPPurposePasswordReset     OTPPurpose = "password_reset"
	OTPPurposeEmailVerification OTPPurpose = "email_verification"
)

// Valid reports whether p is a known purpose.
func (p OTPPurpose) Valid() bool {
	switch p {
	case OTPPurposeSignup, OTPPurposePasswordReset, OTPPurposeEmailVerification:
		return true
	default:
		return false
	}
}

// OneTimeCode is a six digit code bound to an email and purpose.
type OneTimeCode struct {
	ID        string     `gorm:"primaryKey;type:uuid" json:"id"`
	Email     string     `gorm:"not null;index:idx_otp_lookup,priority:1;size:320" json:"email"`
	Purpose   OTPPurpose `gorm:"type:varchar(32);not null;index:idx_otp_lookup,priority:2" json:"purpose"`
	Code      string     `gorm:"size:6;not null" json:"-"`
	Used      bool       `gorm:"default:false;not null" json:"used"`
	ExpiresAt time.Time  `gorm:"index;not null" json:"expires_at"`
	CreatedAt time.Time  `gorm:"index" json:"created_at"`
}

func (OneTimeCode) TableName() string { return "otp_codes" }

func (o *OneTimeCode) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

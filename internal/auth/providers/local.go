package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/stomanager/internal/models"
	"github.com/charlesng35/stomanager/pkg/crypto"
)

var (
	// ErrInvalidCredentials is returned when the supplied email/password pair is invalid.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrAccountLocked signals that the account has exceeded the permitted failed attempts.
	ErrAccountLocked = errors.New("auth: account locked")
	// ErrAccountDisabled signals that the account has been deactivated.
	ErrAccountDisabled = errors.New("auth: account disabled")
)

// LocalConfig defines tunable behaviour for the local provider.
type LocalConfig struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
	Clock            func() time.Time
}

// AuthenticateInput contains the credentials and client metadata of a login attempt.
type AuthenticateInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// LocalProvider implements email/password authentication with account lockout controls.
type LocalProvider struct {
	db        *gorm.DB
	clock     func() time.Time
	threshold int
	duration  time.Duration
}

// NewLocalProvider builds a provider with sane defaults.
func NewLocalProvider(db *gorm.DB, cfg LocalConfig) (*LocalProvider, error) {
	if db == nil {
		return nil, errors.New("local provider: db is required")
	}

	threshold := cfg.LockoutThreshold
	if threshold <= 0 {
		threshold = 5
	}

	duration := cfg.LockoutDuration
	if duration <= 0 {
		duration = 15 * time.Minute
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &LocalProvider{
		db:        db,
		clock:     clock,
		threshold: threshold,
		duration:  duration,
	}, nil
}

// Authenticate verifies the supplied credentials and returns the matching account when successful.
func (p *LocalProvider) Authenticate(ctx context.Context, input AuthenticateInput) (*models.Account, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	db := p.db.WithContext(ctx)

	var account models.Account
	err := db.Where("email = ?", email).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("local provider: query account: %w", err)
	}

	now := p.clock()

	if !account.IsActive {
		return nil, ErrAccountDisabled
	}

	if account.LockedUntil != nil && account.LockedUntil.After(now) {
		return nil, ErrAccountLocked
	}

	// Lockout elapsed.
	if account.LockedUntil != nil {
		account.LockedUntil = nil
		account.FailedAttempts = 0
		if err := db.Model(&account).Updates(map[string]any{
			"locked_until":    nil,
			"failed_attempts": 0,
		}).Error; err != nil {
			return nil, fmt.Errorf("local provider: reset lock state: %w", err)
		}
	}

	if !crypto.VerifyPassword(account.PasswordHash, input.Password) {
		return nil, p.handleFailedAttempt(db, &account, now)
	}

	account.FailedAttempts = 0
	account.LockedUntil = nil
	account.LastLogin = &now

	if err := db.Model(&account).Updates(map[string]any{
		"failed_attempts": 0,
		"locked_until":    nil,
		"last_login":      now,
	}).Error; err != nil {
		return nil, fmt.Errorf("local provider: update account: %w", err)
	}

	return &account, nil
}

func (p *LocalProvider) handleFailedAttempt(db *gorm.DB, account *models.Account, now time.Time) error {
	account.FailedAttempts++

	updates := map[string]any{
		"failed_attempts": account.FailedAttempts,
	}

	if account.FailedAttempts >= p.threshold {
		lockUntil := now.Add(p.duration)
		account.LockedUntil = &lockUntil
		updates["locked_until"] = lockUntil
	}

	if err := db.Model(account).Updates(updates).Error; err != nil {
		return fmt.Errorf("local provider: update failed attempts: %w", err)
	}

	if account.LockedUntil != nil && account.LockedUntil.After(now) {
		return ErrAccountLocked
	}

	return ErrInvalidCredentials
}

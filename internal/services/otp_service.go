package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/stomanager/internal/models"
	"github.com/charlesng35/stomanager/pkg/crypto"
	"github.com/charlesng35/stomanager/pkg/metrics"
)

const (
	// DefaultOTPTTL is how long an issued code stays valid.
	DefaultOTPTTL = 10 * time.Minute

	otpMin = 100000
	otpMax = 999999

	otpIssueSavePoint = "otp_issue"
	maxIssueAttempts  = 3
)

// OTPOption customises the OTPService.
type OTPOption func(*OTPService)

// WithOTPTTL overrides the code lifetime.
func WithOTPTTL(ttl time.Duration) OTPOption {
	return func(s *OTPService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithOTPClock injects a custom time source.
func WithOTPClock(clock func() time.Time) OTPOption {
	return func(s *OTPService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// OTPService issues and verifies single-use six digit codes bound to (email, purpose).
type OTPService struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewOTPService constructs an OTPService.
func NewOTPService(db *gorm.DB, opts ...OTPOption) (*OTPService, error) {
	if db == nil {
		return nil, errors.New("otp service: db is required")
	}

	svc := &OTPService{db: db, ttl: DefaultOTPTTL, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// TTL returns the configured code lifetime.
func (s *OTPService) TTL() time.Duration {
	return s.ttl
}

// Issue generates a fresh code for the pair, invalidating earlier unused codes.
func (s *OTPService) Issue(ctx context.Context, email string, purpose models.OTPPurpose) (string, error) {
	ctx = ensureContext(ctx)

	var code string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		issued, err := s.IssueTx(tx, email, purpose)
		code = issued
		return err
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// IssueTx is Issue inside the caller's transaction.
func (s *OTPService) IssueTx(tx *gorm.DB, email string, purpose models.OTPPurpose) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", errors.New("otp service: email is required")
	}
	if !purpose.Valid() {
		return "", fmt.Errorf("otp service: invalid purpose %q", purpose)
	}

	n, err := crypto.RandomInt(otpMin, otpMax)
	if err != nil {
		return "", fmt.Errorf("otp service: generate code: %w", err)
	}
	code := strconv.FormatInt(n, 10)

	now := s.now()
	for attempt := 1; ; attempt++ {
		if err := tx.Model(&models.OneTimeCode{}).
			Where("email = ? AND purpose = ? AND used = ?", email, purpose, false).
			Update("used", true).Error; err != nil {
			return "", fmt.Errorf("otp service: invalidate previous codes: %w", err)
		}

		record := &models.OneTimeCode{
			Email:     email,
			Purpose:   purpose,
			Code:      code,
			ExpiresAt: now.Add(s.ttl),
			CreatedAt: now,
		}

		// The live-code index rejects the insert when a concurrent issuer committed after
		// the invalidation above. Roll back to the savepoint and invalidate again.
		if err := tx.SavePoint(otpIssueSavePoint).Error; err != nil {
			return "", fmt.Errorf("otp service: savepoint: %w", err)
		}
		err := tx.Create(record).Error
		if err == nil {
			break
		}
		if !isUniqueConstraintError(err) || attempt >= maxIssueAttempts {
			return "", fmt.Errorf("otp service: store code: %w", err)
		}
		if err := tx.RollbackTo(otpIssueSavePoint).Error; err != nil {
			return "", fmt.Errorf("otp service: rollback to savepoint: %w", err)
		}
	}

	return code, nil
}

// Verify consumes a matching live code. It returns false when nothing matches or the
// code was consumed by a concurrent request first.
func (s *OTPService) Verify(ctx context.Context, email, code string, purpose models.OTPPurpose) (bool, error) {
	ctx = ensureContext(ctx)

	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return false, nil
	}

	db := s.db.WithContext(ctx)

	var record models.OneTimeCode
	err := db.Where("email = ? AND code = ? AND purpose = ? AND used = ? AND expires_at > ?",
		email, code, purpose, false, s.now()).
		Order("created_at DESC").
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.OTPVerifications.WithLabelValues(string(purpose), "failure").Inc()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("otp service: find code: %w", err)
	}

	result := db.Model(&models.OneTimeCode{}).
		Where("id = ? AND used = ?", record.ID, false).
		Update("used", true)
	if result.Error != nil {
		return false, fmt.Errorf("otp service: consume code: %w", result.Error)
	}
	if result.RowsAffected != 1 {
		metrics.OTPVerifications.WithLabelValues(string(purpose), "failure").Inc()
		return false, nil
	}

	metrics.OTPVerifications.WithLabelValues(string(purpose), "success").Inc()
	return true, nil
}

// PurgeExpiredOrUsed deletes codes that can no longer be verified.
func (s *OTPService) PurgeExpiredOrUsed(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("expires_at < ? OR used = ?", s.now(), true).
		Delete(&models.OneTimeCode{})
	if result.Error != nil {
		return 0, fmt.Errorf("otp service: purge codes: %w", result.Error)
	}
	return result.RowsAffected, nil
}

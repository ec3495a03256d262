package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/stomanager/internal/models"
	"github.com/charlesng35/stomanager/pkg/crypto"
	apperrors "github.com/charlesng35/stomanager/pkg/errors"
	"github.com/charlesng35/stomanager/pkg/logger"
	"github.com/charlesng35/stomanager/pkg/metrics"
)

// DefaultPendingTTL is how long a signup stays claimable before it is purged.
const DefaultPendingTTL = 24 * time.Hour

// CreatePendingInput carries a signup request.
type CreatePendingInput struct {
	Email      string
	Name       string
	Password   string
	Role       string
	AdminEmail string
	IPAddress  string
	UserAgent  string
}

// CreatePendingResult is returned by Create.
type CreatePendingResult struct {
	Account   *models.PendingAccount
	EmailSent bool
}

// ResendResult is returned by ResendOTP.
type ResendResult struct {
	Email     string
	EmailSent bool
}

// PendingOption customises the PendingAccountService.
type PendingOption func(*PendingAccountService)

// WithPendingTTL overrides the signup lifetime.
func WithPendingTTL(ttl time.Duration) PendingOption {
	return func(s *PendingAccountService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithPendingClock injects a custom time source.
func WithPendingClock(clock func() time.Time) PendingOption {
	return func(s *PendingAccountService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithDefaultApprover sets the approver used when a signup names none. An empty value
// means signups are promoted as soon as their email is verified.
func WithDefaultApprover(email string) PendingOption {
	return func(s *PendingAccountService) {
		s.defaultApprover = normalizeEmail(email)
	}
}

// WithPendingAudit attaches the audit trail.
func WithPendingAudit(audit *AuditService) PendingOption {
	return func(s *PendingAccountService) {
		s.audit = audit
	}
}

// PendingAccountService stores signup requests until they are verified and approved.
type PendingAccountService struct {
	db              *gorm.DB
	otp             *OTPService
	notifier        Notifier
	audit           *AuditService
	ttl             time.Duration
	defaultApprover string
	now             func() time.Time
	log             *zap.Logger
}

// NewPendingAccountService constructs the pending account store.
func NewPendingAccountService(db *gorm.DB, otp *OTPService, notifier Notifier, opts ...PendingOption) (*PendingAccountService, error) {
	if db == nil {
		return nil, errors.New("pending account service: db is required")
	}
	if otp == nil {
		return nil, errors.New("pending account service: otp service is required")
	}
	if notifier == nil {
		return nil, errors.New("pending account service: notifier is required")
	}

	svc := &PendingAccountService{
		db:       db,
		otp:      otp,
		notifier: notifier,
		ttl:      DefaultPendingTTL,
		now:      time.Now,
		log:      logger.WithModule("signup"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create validates a signup, stores it together with its first OTP and emails the code.
func (s *PendingAccountService) Create(ctx context.Context, input CreatePendingInput) (*CreatePendingResult, error) {
	ctx = ensureContext(ctx)

	email, name, role, err := validateAccountInput(accountInput{
		Email:    input.Email,
		Name:     input.Name,
		Password: input.Password,
		Role:     input.Role,
	}, models.RoleAdminUser)
	if err != nil {
		metrics.Signups.WithLabelValues("invalid").Inc()
		return nil, err
	}

	approver := normalizeEmail(input.AdminEmail)
	if approver == "" {
		approver = s.defaultApprover
	} else if !ValidEmail(approver) {
		metrics.Signups.WithLabelValues("invalid").Inc()
		return nil, apperrors.NewValidation("Invalid admin email format")
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("pending account service: hash password: %w", err)
	}

	now := s.now()
	pending := &models.PendingAccount{
		Email:        email,
		Name:         name,
		PasswordHash: hashed,
		Role:         role,
		AdminEmail:   stringPtr(approver),
		ExpiresAt:    now.Add(s.ttl),
	}

	var code string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureEmailAvailable(tx, email, now); err != nil {
			return err
		}
		if err := tx.Create(pending).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrSignupPending.WithInternal(err)
			}
			return fmt.Errorf("pending account service: create: %w", err)
		}
		issued, err := s.otp.IssueTx(tx, email, models.OTPPurposeSignup)
		if err != nil {
			return err
		}
		code = issued
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			metrics.Signups.WithLabelValues("conflict").Inc()
		}
		return nil, storeError(err, nil)
	}

	metrics.Signups.WithLabelValues("created").Inc()

	sent := s.notifier.SendOTP(ctx, email, name, code, models.OTPPurposeSignup)
	if !sent.Success {
		s.log.Warn("signup stored but verification email failed",
			zap.String("email", email),
			zap.String("error", sent.Error),
		)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Actor:     email,
		Action:    AuditActionSignup,
		Resource:  pending.ID,
		Result:    AuditResultSuccess,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		Metadata: map[string]any{
			"email_sent":        sent.Success,
			"requires_approval": pending.RequiresApproval(),
		},
	})

	return &CreatePendingResult{Account: pending, EmailSent: sent.Success}, nil
}

func (s *PendingAccountService) ensureEmailAvailable(tx *gorm.DB, email string, now time.Time) error {
	var accounts int64
	if err := tx.Model(&models.Account{}).Where("email = ?", email).Count(&accounts).Error; err != nil {
		return fmt.Errorf("pending account service: check accounts: %w", err)
	}
	if accounts > 0 {
		return ErrUserExists
	}

	// Expired unapproved rows would otherwise hold the live-signup index.
	if err := tx.Where("email = ? AND admin_approved = ? AND expires_at <= ?", email, false, now).
		Delete(&models.PendingAccount{}).Error; err != nil {
		return fmt.Errorf("pending account service: clear expired: %w", err)
	}

	var pending int64
	if err := tx.Model(&models.PendingAccount{}).
		Where("email = ? AND admin_approved = ? AND expires_at > ?", email, false, now).
		Count(&pending).Error; err != nil {
		return fmt.Errorf("pending account service: check pending: %w", err)
	}
	if pending > 0 {
		return ErrSignupPending
	}
	return nil
}

// MarkOTPVerified flags the live signup for email as verified.
func (s *PendingAccountService) MarkOTPVerified(ctx context.Context, email string) (*models.PendingAccount, error) {
	ctx = ensureContext(ctx)

	pending, err := s.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).
		Model(&models.PendingAccount{}).
		Where("id = ?", pending.ID).
		Update("otp_verified", true).Error; err != nil {
		return nil, storeError(fmt.Errorf("pending account service: mark verified: %w", err), nil)
	}

	pending.OTPVerified = true
	return pending, nil
}

// FindByID returns a live pending account by its id (the approval token).
func (s *PendingAccountService) FindByID(ctx context.Context, id string) (*models.PendingAccount, error) {
	ctx = ensureContext(ctx)

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrPendingAccountNotFound
	}

	var pending models.PendingAccount
	err := s.db.WithContext(ctx).
		Where("id = ? AND expires_at > ?", id, s.now()).
		Take(&pending).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPendingAccountNotFound
	}
	if err != nil {
		return nil, storeError(fmt.Errorf("pending account service: find by id: %w", err), nil)
	}
	return &pending, nil
}

// FindByEmail returns the most recent live pending account for email.
func (s *PendingAccountService) FindByEmail(ctx context.Context, email string) (*models.PendingAccount, error) {
	ctx = ensureContext(ctx)

	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrPendingAccountNotFound
	}

	var pending models.PendingAccount
	err := s.db.WithContext(ctx).
		Where("email = ? AND expires_at > ?", email, s.now()).
		Order("created_at DESC").
		Take(&pending).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPendingAccountNotFound
	}
	if err != nil {
		return nil, storeError(fmt.Errorf("pending account service: find by email: %w", err), nil)
	}
	return &pending, nil
}

// ListAwaitingApproval returns verified, unapproved, live signups, newest first.
func (s *PendingAccountService) ListAwaitingApproval(ctx context.Context) ([]models.PendingAccount, error) {
	ctx = ensureContext(ctx)

	var pending []models.PendingAccount
	if err := s.db.WithContext(ctx).
		Where("otp_verified = ? AND admin_approved = ? AND expires_at > ?", true, false, s.now()).
		Order("created_at DESC").
		Find(&pending).Error; err != nil {
		return nil, storeError(fmt.Errorf("pending account service: list awaiting approval: %w", err), nil)
	}
	return pending, nil
}

// ResendOTP issues a fresh code for an unverified signup and emails it.
func (s *PendingAccountService) ResendOTP(ctx context.Context, email string) (*ResendResult, error) {
	ctx = ensureContext(ctx)

	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrPendingAccountNotFound
	}

	var (
		pending models.PendingAccount
		code    string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The row lock serialises concurrent resends for one signup.
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("email = ? AND expires_at > ?", email, s.now()).
			Order("created_at DESC").
			Take(&pending).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPendingAccountNotFound
		}
		if err != nil {
			return fmt.Errorf("pending account service: lock pending: %w", err)
		}
		if pending.OTPVerified {
			return ErrEmailAlreadyVerified
		}

		issued, err := s.otp.IssueTx(tx, pending.Email, models.OTPPurposeSignup)
		if err != nil {
			return err
		}
		code = issued
		return nil
	})
	if err != nil {
		return nil, storeError(err, nil)
	}
	sent := s.notifier.SendOTP(ctx, pending.Email, pending.Name, code, models.OTPPurposeSignup)
	if !sent.Success {
		s.log.Warn("verification code reissued but email failed",
			zap.String("email", pending.Email),
			zap.String("error", sent.Error),
		)
	}

	return &ResendResult{Email: pending.Email, EmailSent: sent.Success}, nil
}

// PurgeExpired deletes signups past their expiry.
func (s *PendingAccountService) PurgeExpired(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("expires_at <= ?", s.now()).
		Delete(&models.PendingAccount{})
	if result.Error != nil {
		return 0, fmt.Errorf("pending account service: purge expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}

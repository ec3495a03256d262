package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/stomanager/internal/auth"
	"github.com/charlesng35/stomanager/internal/models"
	"github.com/charlesng35/stomanager/pkg/logger"
	"github.com/charlesng35/stomanager/pkg/metrics"
)

// VerificationStatus is where a signup stands after its email has been verified.
type VerificationStatus string

const (
	StatusOTPSent              VerificationStatus = "otp_sent"
	StatusPendingAdminApproval VerificationStatus = "pending_admin_approval"
	StatusApproved             VerificationStatus = "approved"
)

// Promotion paths, used as metric labels.
const (
	PromotionPathAuto  = "auto"
	PromotionPathLink  = "link"
	PromotionPathAdmin = "admin"
)

// VerifyResult is returned by VerifyAndRoute.
type VerifyResult struct {
	Verified  bool
	Status    VerificationStatus
	Email     string
	Account   *models.Account
	EmailSent bool
}

// ApprovalOption customises the ApprovalService.
type ApprovalOption func(*ApprovalService)

// WithApprovalClock injects a custom time source.
func WithApprovalClock(clock func() time.Time) ApprovalOption {
	return func(s *ApprovalService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithApprovalBaseURL sets the public base URL used to build approval links.
func WithApprovalBaseURL(base string) ApprovalOption {
	return func(s *ApprovalService) {
		s.baseURL = strings.TrimRight(strings.TrimSpace(base), "/")
	}
}

// WithApprovalAudit attaches the audit trail.
func WithApprovalAudit(audit *AuditService) ApprovalOption {
	return func(s *ApprovalService) {
		s.audit = audit
	}
}

// ApprovalService turns verified signups into active accounts.
type ApprovalService struct {
	db       *gorm.DB
	pending  *PendingAccountService
	otp      *OTPService
	notifier Notifier
	audit    *AuditService
	baseURL  string
	now      func() time.Time
	log      *zap.Logger
}

// NewApprovalService constructs the approval gate.
func NewApprovalService(db *gorm.DB, pending *PendingAccountService, otp *OTPService, notifier Notifier, opts ...ApprovalOption) (*ApprovalService, error) {
	if db == nil {
		return nil, errors.New("approval service: db is required")
	}
	if pending == nil || otp == nil {
		return nil, errors.New("approval service: pending account and otp services are required")
	}
	if notifier == nil {
		return nil, errors.New("approval service: notifier is required")
	}

	svc := &ApprovalService{
		db:       db,
		pending:  pending,
		otp:      otp,
		notifier: notifier,
		now:      time.Now,
		log:      logger.WithModule("approval"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// ApprovalLink builds the emailed link that promotes pendingID.
func (s *ApprovalService) ApprovalLink(pendingID string) string {
	return fmt.Sprintf("%s/api/auth/approve?token=%s", s.baseURL, url.QueryEscape(pendingID))
}

// VerifyAndRoute checks a signup code and either requests approval or promotes the
// signup at once when it names no approver.
func (s *ApprovalService) VerifyAndRoute(ctx context.Context, email, code string) (*VerifyResult, error) {
	ctx = ensureContext(ctx)
	email = normalizeEmail(email)

	ok, err := s.otp.Verify(ctx, email, code, models.OTPPurposeSignup)
	if err != nil {
		return nil, storeError(err, nil)
	}
	if !ok {
		return &VerifyResult{Verified: false, Status: StatusOTPSent, Email: email}, nil
	}

	pending, err := s.pending.MarkOTPVerified(ctx, email)
	if err != nil {
		return nil, err
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Actor:    pending.Email,
		Action:   AuditActionVerifyOTP,
		Resource: pending.ID,
		Result:   AuditResultSuccess,
	})

	if pending.RequiresApproval() {
		sent := s.notifier.SendApprovalRequest(ctx, *pending.AdminEmail, pending.Email, pending.Name, s.ApprovalLink(pending.ID))
		if !sent.Success {
			s.log.Warn("approval request email failed",
				zap.String("pending_id", pending.ID),
				zap.String("error", sent.Error),
			)
		}
		return &VerifyResult{
			Verified:  true,
			Status:    StatusPendingAdminApproval,
			Email:     pending.Email,
			EmailSent: sent.Success,
		}, nil
	}

	account, emailSent, err := s.promote(ctx, pending.ID, nil, PromotionPathAuto)
	if err != nil {
		return nil, err
	}

	return &VerifyResult{
		Verified:  true,
		Status:    StatusApproved,
		Email:     account.Email,
		Account:   account,
		EmailSent: emailSent,
	}, nil
}

// Promote activates a verified pending account. approver is nil when the caller proved
// possession of the approval token instead of holding an elevated session.
func (s *ApprovalService) Promote(ctx context.Context, pendingID string, approver *auth.Principal) (*models.Account, error) {
	path := PromotionPathLink
	if approver != nil {
		path = PromotionPathAdmin
	}
	account, _, err := s.promote(ensureContext(ctx), pendingID, approver, path)
	return account, err
}

func (s *ApprovalService) promote(ctx context.Context, pendingID string, approver *auth.Principal, path string) (*models.Account, bool, error) {
	pendingID = strings.TrimSpace(pendingID)
	if pendingID == "" {
		return nil, false, ErrInvalidToken
	}

	var (
		pending models.PendingAccount
		account *models.Account
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()

		err := tx.Where("id = ? AND expires_at > ?", pendingID, now).Take(&pending).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidToken
		}
		if err != nil {
			return fmt.Errorf("approval service: load pending account: %w", err)
		}
		if !pending.OTPVerified {
			return ErrEmailNotVerified
		}
		if pending.AdminApproved {
			return ErrAlreadyApproved
		}

		result := tx.Model(&models.PendingAccount{}).
			Where("id = ? AND admin_approved = ? AND otp_verified = ? AND expires_at > ?", pendingID, false, true, now).
			Update("admin_approved", true)
		if result.Error != nil {
			return fmt.Errorf("approval service: claim pending account: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrAlreadyApproved
		}

		account = &models.Account{
			Email:        pending.Email,
			Name:         pending.Name,
			PasswordHash: pending.PasswordHash,
			Role:         pending.Role,
			IsActive:     true,
		}
		if err := tx.Create(account).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrUserExists.WithInternal(err)
			}
			return fmt.Errorf("approval service: create account: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, storeError(err, ErrApprovalFailed)
	}

	metrics.Promotions.WithLabelValues(path).Inc()

	sent := s.notifier.SendWelcome(ctx, account.Email, account.Name)
	if !sent.Success {
		s.log.Warn("welcome email failed",
			zap.String("account_id", account.ID),
			zap.String("error", sent.Error),
		)
	}

	entry := AuditEntry{
		UserID:   &account.ID,
		Actor:    account.Email,
		Action:   AuditActionApprove,
		Resource: pending.ID,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"path": path},
	}
	if approver != nil {
		entry.Actor = approver.Email
		entry.UserID = &approver.ID
		entry.Metadata["account_id"] = account.ID
	}
	recordAudit(s.audit, ctx, entry)

	return account, sent.Success, nil
}

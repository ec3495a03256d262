package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/stomanager/internal/auth"
	"github.com/charlesng35/stomanager/internal/models"
	"github.com/charlesng35/stomanager/pkg/crypto"
)

// CreateUserInput describes the fields accepted when an administrator creates an account.
type CreateUserInput struct {
	Email    string
	Name     string
	Password string
	Role     string
}

// ListUsersOptions controls pagination and filtering for account listing.
type ListUsersOptions struct {
	Page            int
	PerPage         int
	Query           string
	IncludeInactive bool
}

const (
	defaultUserPageSize = 50
	maxUserPageSize     = 200
)

// Normalized returns the options with page and page size clamped to the values List
// actually applies.
func (o ListUsersOptions) Normalized() ListUsersOptions {
	if o.Page <= 0 {
		o.Page = 1
	}
	if o.PerPage <= 0 || o.PerPage > maxUserPageSize {
		o.PerPage = defaultUserPageSize
	}
	return o
}

// SessionRevoker ends every session of an account.
type SessionRevoker interface {
	RevokeUserSessions(ctx context.Context, userID string) error
}

// UserOption customises the UserService.
type UserOption func(*UserService)

// WithUserAudit attaches the audit trail.
func WithUserAudit(audit *AuditService) UserOption {
	return func(s *UserService) {
		s.audit = audit
	}
}

// WithSessionRevoker revokes sessions when an account is deactivated.
func WithSessionRevoker(revoker SessionRevoker) UserOption {
	return func(s *UserService) {
		s.sessions = revoker
	}
}

// WithUserClock injects a custom time source.
func WithUserClock(clock func() time.Time) UserOption {
	return func(s *UserService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// UserService manages activated accounts.
type UserService struct {
	db       *gorm.DB
	audit    *AuditService
	sessions SessionRevoker
	now      func() time.Time
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, opts ...UserOption) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	svc := &UserService{db: db, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create provisions an active account directly, bypassing the signup flow.
func (s *UserService) Create(ctx context.Context, input CreateUserInput, actor *auth.Principal) (*models.Account, error) {
	ctx = ensureContext(ctx)

	email, name, role, err := validateAccountInput(accountInput(input), models.RoleAdminUser)
	if err != nil {
		return nil, err
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	account := &models.Account{
		Email:        email,
		Name:         name,
		PasswordHash: hashed,
		Role:         role,
		IsActive:     true,
	}

	if err := s.db.WithContext(ctx).Create(account).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrUserExists.WithInternal(err)
		}
		return nil, storeError(fmt.Errorf("user service: create account: %w", err), nil)
	}

	entry := AuditEntry{
		Action:   AuditActionUserCreate,
		Resource: account.ID,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"email": account.Email, "role": account.Role},
	}
	if actor != nil {
		entry.UserID = &actor.ID
		entry.Actor = actor.Email
	}
	recordAudit(s.audit, ctx, entry)

	return account, nil
}

// GetByID loads an account by identifier.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.Account, error) {
	ctx = ensureContext(ctx)

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrUserNotFound
	}

	var account models.Account
	err := s.db.WithContext(ctx).Take(&account, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, storeError(fmt.Errorf("user service: get account: %w", err), nil)
	}
	return &account, nil
}

// GetByEmail loads an account by email.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	ctx = ensureContext(ctx)

	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrUserNotFound
	}

	var account models.Account
	err := s.db.WithContext(ctx).Take(&account, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, storeError(fmt.Errorf("user service: get account by email: %w", err), nil)
	}
	return &account, nil
}

// List retrieves accounts, newest first, with pagination.
func (s *UserService) List(ctx context.Context, opts ListUsersOptions) ([]models.Account, int64, error) {
	ctx = ensureContext(ctx)

	opts = opts.Normalized()
	page, perPage := opts.Page, opts.PerPage

	query := s.db.WithContext(ctx).Model(&models.Account{})
	if !opts.IncludeInactive {
		query = query.Where("is_active = ?", true)
	}
	if q := strings.TrimSpace(opts.Query); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, storeError(fmt.Errorf("user service: count accounts: %w", err), nil)
	}

	var accounts []models.Account
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&accounts).Error; err != nil {
		return nil, 0, storeError(fmt.Errorf("user service: list accounts: %w", err), nil)
	}

	return accounts, total, nil
}

// Deactivate soft-deletes an account and ends its sessions.
func (s *UserService) Deactivate(ctx context.Context, id string, actor auth.Principal) error {
	ctx = ensureContext(ctx)

	id = strings.TrimSpace(id)
	if id == "" {
		return ErrMissingID
	}
	if id == actor.ID {
		return ErrSelfDeactivation
	}

	account, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", account.ID).
		Update("is_active", false).Error; err != nil {
		return storeError(fmt.Errorf("user service: deactivate account: %w", err), nil)
	}

	if s.sessions != nil {
		if err := s.sessions.RevokeUserSessions(ctx, account.ID); err != nil {
			return storeError(fmt.Errorf("user service: revoke sessions: %w", err), nil)
		}
	}

	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &actor.ID,
		Actor:    actor.Email,
		Action:   AuditActionUserDeactivate,
		Resource: account.ID,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"email": account.Email},
	})

	return nil
}

// RecordLogin stamps the last login time.
func (s *UserService) RecordLogin(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Update("last_login", s.now())
	if result.Error != nil {
		return storeError(fmt.Errorf("user service: record login: %w", result.Error), nil)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

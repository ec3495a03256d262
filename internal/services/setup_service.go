package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/stomanager/internal/database"
	"github.com/charlesng35/stomanager/internal/models"
	"github.com/charlesng35/stomanager/pkg/crypto"
	apperrors "github.com/charlesng35/stomanager/pkg/errors"
)

// DefaultAdminConfig names the bootstrap administrator.
type DefaultAdminConfig struct {
	Email    string
	Name     string
	Password string
}

// DefaultAdminStatus describes whether the bootstrap administrator exists.
type DefaultAdminStatus struct {
	Email     string      `json:"email"`
	Exists    bool        `json:"exists"`
	Name      string      `json:"name,omitempty"`
	Role      models.Role `json:"role,omitempty"`
	IsActive  *bool       `json:"isActive,omitempty"`
	CreatedAt *time.Time  `json:"createdAt,omitempty"`
}

// EnsureDefaultAdminResult is returned by EnsureDefaultAdmin.
type EnsureDefaultAdminResult struct {
	Created bool
	Account *models.Account
}

// SetupService bootstraps the first elevated account.
type SetupService struct {
	db    *gorm.DB
	cfg   DefaultAdminConfig
	audit *AuditService
}

// NewSetupService constructs a SetupService.
func NewSetupService(db *gorm.DB, cfg DefaultAdminConfig, audit *AuditService) (*SetupService, error) {
	if db == nil {
		return nil, errors.New("setup service: db is required")
	}
	cfg.Email = normalizeEmail(cfg.Email)
	cfg.Name = strings.TrimSpace(cfg.Name)
	if cfg.Name == "" {
		cfg.Name = "Administrator"
	}
	return &SetupService{db: db, cfg: cfg, audit: audit}, nil
}

// Configured reports whether enough settings exist to create the default admin.
func (s *SetupService) Configured() bool {
	return s.cfg.Email != "" && s.cfg.Password != ""
}

// DefaultAdminStatus reports whether the configured default admin account exists.
func (s *SetupService) DefaultAdminStatus(ctx context.Context) (*DefaultAdminStatus, error) {
	ctx = ensureContext(ctx)

	status := &DefaultAdminStatus{Email: s.cfg.Email}
	if s.cfg.Email == "" {
		return status, nil
	}

	var account models.Account
	err := s.db.WithContext(ctx).Take(&account, "email = ?", s.cfg.Email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return status, nil
	}
	if err != nil {
		return nil, storeError(fmt.Errorf("setup service: load default admin: %w", err), nil)
	}

	active := account.IsActive
	created := account.CreatedAt
	status.Exists = true
	status.Name = account.Name
	status.Role = account.Role
	status.IsActive = &active
	status.CreatedAt = &created
	return status, nil
}

// EnsureDefaultAdmin creates the SUPER_USER default admin unless it already exists.
func (s *SetupService) EnsureDefaultAdmin(ctx context.Context) (*EnsureDefaultAdminResult, error) {
	ctx = ensureContext(ctx)

	if !s.Configured() {
		return nil, apperrors.ErrInvalidState.WithMessage("Default admin email and password are not configured")
	}
	if len([]rune(s.cfg.Password)) < MinPasswordLength {
		return nil, apperrors.NewValidation("Password must be at least 8 characters")
	}

	var existing models.Account
	err := s.db.WithContext(ctx).Take(&existing, "email = ?", s.cfg.Email).Error
	if err == nil {
		return &EnsureDefaultAdminResult{Created: false, Account: &existing}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storeError(fmt.Errorf("setup service: load default admin: %w", err), nil)
	}

	hashed, err := crypto.HashPassword(s.cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("setup service: hash password: %w", err)
	}

	account := &models.Account{
		Email:        s.cfg.Email,
		Name:         s.cfg.Name,
		PasswordHash: hashed,
		Role:         models.RoleSuperUser,
		IsActive:     true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(account).Error; err != nil {
			return err
		}
		return database.UpsertSystemSetting(ctx, tx, database.DefaultAdminSetting, account.Email)
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			// Created concurrently by another caller.
			if reloadErr := s.db.WithContext(ctx).Take(&existing, "email = ?", s.cfg.Email).Error; reloadErr == nil {
				return &EnsureDefaultAdminResult{Created: false, Account: &existing}, nil
			}
		}
		return nil, storeError(fmt.Errorf("setup service: create default admin: %w", err), nil)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &account.ID,
		Actor:    account.Email,
		Action:   AuditActionDefaultAdmin,
		Resource: account.ID,
		Result:   AuditResultSuccess,
	})

	return &EnsureDefaultAdminResult{Created: true, Account: account}, nil
}

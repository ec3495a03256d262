package api

import (
	"gorm.io/gorm"

	"github.com/charlesng35/stomanager/internal/app"
	iauth "github.com/charlesng35/stomanager/internal/auth"
	"github.com/charlesng35/stomanager/internal/auth/providers"
	"github.com/charlesng35/stomanager/internal/services"
)

// Services is the application service graph behind the HTTP handlers. The
// server builds it once and hands the same instances to the router and to the
// maintenance jobs.
type Services struct {
	Audit    *services.AuditService
	Notifier services.Notifier
	OTP      *services.OTPService
	Pending  *services.PendingAccountService
	Approval *services.ApprovalService
	Users    *services.UserService
	Upload   *services.UploadService
	Setup    *services.SetupService
	Local    *providers.LocalProvider
}

// BuildServices wires every service from cfg. A nil notifier is replaced by the
// SMTP-backed dispatcher from NewNotifier.
func BuildServices(db *gorm.DB, cfg *app.Config, sessions *iauth.SessionService, notifier services.Notifier) (*Services, error) {
	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}

	if notifier == nil {
		notifier, err = NewNotifier(cfg)
		if err != nil {
			return nil, err
		}
	}

	otp, err := services.NewOTPService(db, services.WithOTPTTL(cfg.Auth.OTPTTL()))
	if err != nil {
		return nil, err
	}

	pending, err := services.NewPendingAccountService(db, otp, notifier,
		services.WithPendingTTL(cfg.Auth.PendingTTL()),
		services.WithDefaultApprover(cfg.Auth.Signup.DefaultApproverEmail),
		services.WithPendingAudit(audit),
	)
	if err != nil {
		return nil, err
	}

	approval, err := services.NewApprovalService(db, pending, otp, notifier,
		services.WithApprovalBaseURL(cfg.App.BaseURL),
		services.WithApprovalAudit(audit),
	)
	if err != nil {
		return nil, err
	}

	users, err := services.NewUserService(db,
		services.WithUserAudit(audit),
		services.WithSessionRevoker(sessions),
	)
	if err != nil {
		return nil, err
	}

	upload, err := services.NewUploadService(db,
		services.WithUploadAudit(audit),
		services.WithUploadMaxSize(cfg.Upload.MaxSizeBytes),
		services.WithUploadBatchSize(cfg.Upload.BatchSize),
	)
	if err != nil {
		return nil, err
	}

	setup, err := services.NewSetupService(db, services.DefaultAdminConfig{
		Email:    cfg.Setup.DefaultAdmin.Email,
		Name:     cfg.Setup.DefaultAdmin.Name,
		Password: cfg.Setup.DefaultAdmin.Password,
	}, audit)
	if err != nil {
		return nil, err
	}

	local, err := providers.NewLocalProvider(db, cfg.Auth.LocalProviderConfig())
	if err != nil {
		return nil, err
	}

	return &Services{
		Audit:    audit,
		Notifier: notifier,
		OTP:      otp,
		Pending:  pending,
		Approval: approval,
		Users:    users,
		Upload:   upload,
		Setup:    setup,
		Local:    local,
	}, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/charlesng35/stomanager/internal/models"
	"github.com/charlesng35/stomanager/pkg/logger"
	"github.com/charlesng35/stomanager/pkg/mail"
	"github.com/charlesng35/stomanager/pkg/metrics"
)

// Notification kinds, used as metric labels and by the email test endpoint.
const (
	NotificationKindOTP      = "otp"
	NotificationKindApproval = "approval"
	NotificationKindWelcome  = "welcome"
	NotificationKindTest     = "test"
)

// Result reports the outcome of a single notification. Send failures are carried here
// instead of being returned as errors.
type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Health describes the mail transport status.
type Health struct {
	Healthy bool           `json:"healthy"`
	Config  map[string]any `json:"config"`
	Error   string         `json:"error,omitempty"`
}

// Notifier delivers account lifecycle emails.
type Notifier interface {
	SendOTP(ctx context.Context, email, name, code string, purpose models.OTPPurpose) Result
	SendApprovalRequest(ctx context.Context, approverEmail, accountEmail, accountName, approvalLink string) Result
	SendWelcome(ctx context.Context, email, name string) Result
	SendTest(ctx context.Context, to string) Result
	CheckHealth(ctx context.Context) Health
}

// NotificationConfig bundles the settings NotificationService renders and sends with.
type NotificationConfig struct {
	AppName string
	BaseURL string
	SMTP    mail.SMTPSettings
	OTPTTL  time.Duration
	Clock   func() time.Time
}

// NotificationService renders templated emails and sends them through a mail.Mailer.
type NotificationService struct {
	mailer  mail.Mailer
	cfg     NotificationConfig
	now     func() time.Time
	log     *zap.Logger
	enabled bool
}

// NewNotificationService builds a dispatcher. A nil mailer or disabled SMTP falls back to a
// mailer that only logs.
func NewNotificationService(mailer mail.Mailer, cfg NotificationConfig) *NotificationService {
	if strings.TrimSpace(cfg.AppName) == "" {
		cfg.AppName = "STO Manager"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = DefaultOTPTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	log := logger.WithModule("notifications")
	enabled := cfg.SMTP.Enabled && mailer != nil
	if !enabled {
		mailer = logOnlyMailer{log: log}
	}

	return &NotificationService{
		mailer:  mailer,
		cfg:     cfg,
		now:     now,
		log:     log,
		enabled: enabled,
	}
}

// SendOTP emails a verification code.
func (s *NotificationService) SendOTP(ctx context.Context, email, name, code string, purpose models.OTPPurpose) Result {
	return s.send(ctx, NotificationKindOTP, email, otpEmail, emailView{
		Name:          displayName(name, email),
		Email:         email,
		Code:          code,
		Purpose:       purposeLabel(purpose),
		ExpiryMinutes: int(s.cfg.OTPTTL / time.Minute),
	})
}

// SendApprovalRequest asks the approver to promote a verified signup.
func (s *NotificationService) SendApprovalRequest(ctx context.Context, approverEmail, accountEmail, accountName, approvalLink string) Result {
	return s.send(ctx, NotificationKindApproval, approverEmail, approvalEmail, emailView{
		AccountEmail: accountEmail,
		AccountName:  accountName,
		ApprovalLink: approvalLink,
		PendingURL:   s.cfg.BaseURL + "/users/pending",
	})
}

// SendWelcome tells a newly promoted account it can sign in.
func (s *NotificationService) SendWelcome(ctx context.Context, email, name string) Result {
	return s.send(ctx, NotificationKindWelcome, email, welcomeEmail, emailView{
		Name:      displayName(name, email),
		Email:     email,
		SignInURL: s.cfg.BaseURL + "/auth/signin",
	})
}

// SendTest sends a configuration probe email.
func (s *NotificationService) SendTest(ctx context.Context, to string) Result {
	return s.send(ctx, NotificationKindTest, to, testEmail, emailView{})
}

// CheckHealth reports whether the SMTP transport is reachable.
func (s *NotificationService) CheckHealth(ctx context.Context) Health {
	health := Health{
		Config: map[string]any{
			"enabled": s.cfg.SMTP.Enabled,
			"host":    s.cfg.SMTP.Host,
			"port":    s.cfg.SMTP.Port,
			"from":    s.cfg.SMTP.From,
			"secure":  s.cfg.SMTP.UseTLS,
		},
	}

	if !s.enabled {
		health.Error = "SMTP disabled"
		return health
	}

	verifier, ok := s.mailer.(mail.Verifier)
	if !ok {
		health.Healthy = true
		return health
	}
	if err := verifier.Verify(ensureContext(ctx)); err != nil {
		health.Error = err.Error()
		return health
	}
	health.Healthy = true
	return health
}

func (s *NotificationService) send(ctx context.Context, kind, to string, tmpl emailTemplate, view emailView) Result {
	ctx = ensureContext(ctx)

	to = strings.TrimSpace(to)
	if to == "" {
		return s.fail(kind, to, errors.New("recipient is required"))
	}

	view.AppName = s.cfg.AppName
	if view.SentAt == "" {
		view.SentAt = s.now().UTC().Format(time.RFC1123)
	}

	rendered, err := tmpl.render(view)
	if err != nil {
		return s.fail(kind, to, fmt.Errorf("notifications: %w", err))
	}

	msg := mail.Message{
		ID:       s.messageID(),
		To:       []string{to},
		Subject:  rendered.Subject,
		Body:     rendered.Text,
		HTMLBody: rendered.HTML,
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		return s.fail(kind, to, err)
	}

	metrics.EmailsSent.WithLabelValues(kind, "success").Inc()
	s.log.Info("email sent",
		zap.String("kind", kind),
		zap.String("to", to),
		zap.String("message_id", msg.ID),
	)
	return Result{Success: true, MessageID: msg.ID}
}

func (s *NotificationService) fail(kind, to string, err error) Result {
	metrics.EmailsSent.WithLabelValues(kind, "failure").Inc()
	s.log.Warn("email delivery failed",
		zap.String("kind", kind),
		zap.String("to", to),
		zap.Error(err),
	)
	return Result{Success: false, Error: err.Error()}
}

func (s *NotificationService) messageID() string {
	host := strings.TrimSpace(s.cfg.SMTP.Host)
	if host == "" {
		host = "stomanager.local"
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), host)
}

func displayName(name, email string) string {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return trimmed
	}
	return email
}

func purposeLabel(purpose models.OTPPurpose) string {
	switch purpose {
	case models.OTPPurposePasswordReset:
		return "Password Reset"
	case models.OTPPurposeEmailVerification:
		return "Email Verification"
	default:
		return "Account Verification"
	}
}

// logOnlyMailer stands in when SMTP is disabled. It records that a message would have
// been sent without logging its body.
type logOnlyMailer struct {
	log *zap.Logger
}

func (m logOnlyMailer) Send(_ context.Context, msg mail.Message) error {
	m.log.Info("smtp disabled; email not delivered",
		zap.Strings("to", msg.To),
		zap.String("message_id", msg.ID),
	)
	return nil
}

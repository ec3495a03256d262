// Package security reviews the deployment posture at startup: elevated access, signing
// secrets, session lifetime and outbound email.
package security

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/stomanager/internal/app"
	iauth "github.com/charlesng35/stomanager/internal/auth"
	"github.com/charlesng35/stomanager/internal/models"
)

// CheckStatus captures the outcome of a review check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// Check contains the result of a single verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

// Result aggregates all checks with a per-status count.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

const maxRecommendedRefreshTTL = 30 * 24 * time.Hour

// Reviewer evaluates the running configuration. Missing dependencies degrade the
// affected checks to warnings.
type Reviewer struct {
	db  *gorm.DB
	jwt *iauth.JWTService
	cfg *app.Config
	now func() time.Time
}

func NewReviewer(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config) *Reviewer {
	return &Reviewer{db: db, jwt: jwt, cfg: cfg, now: time.Now}
}

// WithClock overrides the clock used in results.
func (r *Reviewer) WithClock(clock func() time.Time) {
	if clock != nil {
		r.now = clock
	}
}

// Run executes all checks.
func (r *Reviewer) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := []Check{
		r.checkSuperUser(ctx),
		r.checkJWTSecret(),
		r.checkSessionTTL(),
		r.checkMail(),
		r.checkBaseURL(),
	}

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}
	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{CheckedAt: r.now().UTC(), Checks: checks, Summary: summary}
}

func (r *Reviewer) checkSuperUser(ctx context.Context) Check {
	const id = "super_user_present"
	if r.db == nil {
		return Check{ID: id, Status: StatusWarn, Message: "Database unavailable, unable to confirm a Super User exists"}
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("role = ? AND is_active = ?", models.RoleSuperUser, true).
		Count(&count).Error; err != nil {
		return Check{ID: id, Status: StatusWarn, Message: fmt.Sprintf("Could not count Super Users: %v", err)}
	}

	if count == 0 {
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     "No active Super User found; signups cannot be approved by an administrator",
			Remediation: "Set STOMANAGER_SETUP_DEFAULT_ADMIN_EMAIL and STOMANAGER_SETUP_DEFAULT_ADMIN_PASSWORD or call POST /api/setup/default-admin.",
		}
	}
	return Check{ID: id, Status: StatusPass, Message: "Super User present", Details: map[string]any{"count": count}}
}

func (r *Reviewer) checkJWTSecret() Check {
	const id = "jwt_secret_strength"
	if r.jwt == nil {
		return Check{ID: id, Status: StatusWarn, Message: "JWT service not initialised"}
	}

	length := r.jwt.SecretLength()
	switch {
	case length < 32:
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     fmt.Sprintf("JWT signing secret is too short (%d bytes)", length),
			Remediation: "Use a randomly generated STOMANAGER_AUTH_JWT_SECRET of at least 32 bytes.",
		}
	case length < 48:
		return Check{
			ID:      id,
			Status:  StatusWarn,
			Message: fmt.Sprintf("JWT signing secret is %d bytes; 48 or more is recommended", length),
			Details: map[string]any{"length": length},
		}
	default:
		return Check{ID: id, Status: StatusPass, Message: "JWT signing secret length is adequate", Details: map[string]any{"length": length}}
	}
}

func (r *Reviewer) checkSessionTTL() Check {
	const id = "session_refresh_ttl"
	if r.cfg == nil {
		return Check{ID: id, Status: StatusWarn, Message: "Configuration not loaded"}
	}

	ttl := r.cfg.Auth.Session.RefreshTTL
	switch {
	case ttl <= 0:
		return Check{ID: id, Status: StatusWarn, Message: "Refresh token TTL is not configured; the default applies"}
	case ttl > maxRecommendedRefreshTTL:
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Refresh token TTL (%s) exceeds %s", ttl, maxRecommendedRefreshTTL),
			Remediation: "Lower STOMANAGER_AUTH_SESSION_REFRESH_TOKEN_TTL.",
		}
	default:
		return Check{ID: id, Status: StatusPass, Message: fmt.Sprintf("Refresh token TTL is %s", ttl)}
	}
}

func (r *Reviewer) checkMail() Check {
	const id = "smtp_configured"
	if r.cfg == nil {
		return Check{ID: id, Status: StatusWarn, Message: "Configuration not loaded"}
	}

	smtp := r.cfg.Email.SMTP
	if !smtp.Enabled || strings.TrimSpace(smtp.Host) == "" {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "SMTP is disabled; verification codes and approval links are logged, not delivered",
			Remediation: "Enable email.smtp and set its host and sender.",
		}
	}
	return Check{ID: id, Status: StatusPass, Message: "SMTP configured", Details: map[string]any{"host": smtp.Host}}
}

func (r *Reviewer) checkBaseURL() Check {
	const id = "public_base_url"
	if r.cfg == nil {
		return Check{ID: id, Status: StatusWarn, Message: "Configuration not loaded"}
	}

	u, err := url.Parse(r.cfg.App.BaseURL)
	if err != nil || u.Host == "" {
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     fmt.Sprintf("Base URL %q is not an absolute URL; emailed approval links will not work", r.cfg.App.BaseURL),
			Remediation: "Set STOMANAGER_APP_BASE_URL.",
		}
	}
	host := u.Hostname()
	if u.Scheme != "https" && host != "localhost" && host != "127.0.0.1" {
		return Check{ID: id, Status: StatusWarn, Message: "Approval links are served over plain HTTP"}
	}
	return Check{ID: id, Status: StatusPass, Message: "Base URL configured"}
}

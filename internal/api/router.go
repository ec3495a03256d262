package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/stomanager/internal/app"
	iauth "github.com/charlesng35/stomanager/internal/auth"
	"github.com/charlesng35/stomanager/internal/handlers"
	"github.com/charlesng35/stomanager/internal/middleware"
	"github.com/charlesng35/stomanager/internal/monitoring"
	"github.com/charlesng35/stomanager/internal/monitoring/checks"
	"github.com/charlesng35/stomanager/internal/services"
	"github.com/charlesng35/stomanager/pkg/mail"
)

// RouterOption customises NewRouter.
type RouterOption func(*routerOptions)

type routerOptions struct {
	shared       *Services
	notifier     services.Notifier
	rateStore    middleware.RateStore
	healthChecks []monitoring.Check
}

// WithServices makes the router use a service set built by BuildServices so the
// caller can share it with background jobs.
func WithServices(svcs *Services) RouterOption {
	return func(o *routerOptions) {
		o.shared = svcs
	}
}

// WithNotifier replaces the SMTP-backed notification dispatcher.
func WithNotifier(notifier services.Notifier) RouterOption {
	return func(o *routerOptions) {
		o.notifier = notifier
	}
}

// WithRateStore shares rate limit counters through store instead of process memory.
func WithRateStore(store middleware.RateStore) RouterOption {
	return func(o *routerOptions) {
		o.rateStore = store
	}
}

// WithHealthCheck adds a probe to /health next to the database check.
func WithHealthCheck(check monitoring.Check) RouterOption {
	return func(o *routerOptions) {
		o.healthChecks = append(o.healthChecks, check)
	}
}

// NewRouter builds the Gin engine, wires middleware and registers every route under /api.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, sessions *iauth.SessionService, opts ...RouterOption) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	options := routerOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	deps := options.shared
	if deps == nil {
		var err error
		if deps, err = BuildServices(db, cfg, sessions, options.notifier); err != nil {
			return nil, err
		}
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestActor())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins...))

	health := monitoring.NewHealthManager(checks.Database(db, 0))
	for _, check := range options.healthChecks {
		health.Register(check)
	}
	registerHealthRoutes(r, health, cfg)

	authn := middleware.NewAuthenticator(jwt, sessions, deps.Users)
	requireDB := middleware.RequireDatabase(db, 0)
	limiter := middleware.RateLimitWithStore(options.rateStore, cfg.RateLimit.Requests, cfg.RateLimit.Window)

	api := r.Group("/api")
	api.Use(requireDB)

	protected := api.Group("")
	protected.Use(authn.Auth())
	elevated := protected.Group("")
	elevated.Use(middleware.RequireSuperUser())

	registerAuthRoutes(api, protected, elevated, limiter, authRouteDeps{
		Auth:   handlers.NewAuthHandler(deps.Local, jwt, sessions, deps.Users, deps.Audit),
		Signup: handlers.NewSignupHandler(deps.Pending, deps.Approval),
	})
	registerUserRoutes(elevated, handlers.NewUserHandler(deps.Users, deps.Pending))
	registerUploadRoutes(protected, elevated, handlers.NewUploadHandler(deps.Upload))
	registerEmailRoutes(elevated, handlers.NewEmailHandler(deps.Notifier, cfg.App.BaseURL))
	registerSetupRoutes(api, authn, handlers.NewSetupHandler(deps.Setup))
	registerAuditRoutes(elevated, handlers.NewAuditHandler(deps.Audit))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

// NewNotifier builds the SMTP-backed notification dispatcher described by cfg. With SMTP
// disabled messages are rendered and logged but not delivered.
func NewNotifier(cfg *app.Config) (services.Notifier, error) {
	settings := cfg.Email.SMTPSettings()
	var mailer mail.Mailer
	if settings.Enabled {
		m, err := mail.NewSMTPMailer(settings)
		if err != nil {
			return nil, fmt.Errorf("configure smtp: %w", err)
		}
		mailer = m
	}
	return services.NewNotificationService(mailer, services.NotificationConfig{
		AppName: cfg.App.Name,
		BaseURL: cfg.App.BaseURL,
		SMTP:    settings,
		OTPTTL:  cfg.Auth.OTPTTL(),
	}), nil
}

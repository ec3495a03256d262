package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/stomanager/internal/api"
	"github.com/charlesng35/stomanager/internal/app"
	"github.com/charlesng35/stomanager/internal/app/maintenance"
	iauth "github.com/charlesng35/stomanager/internal/auth"
	"github.com/charlesng35/stomanager/internal/cache"
	"github.com/charlesng35/stomanager/internal/database"
	"github.com/charlesng35/stomanager/internal/middleware"
	"github.com/charlesng35/stomanager/internal/monitoring/checks"
	"github.com/charlesng35/stomanager/internal/security"
	"github.com/charlesng35/stomanager/internal/services"
	"github.com/charlesng35/stomanager/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Redis      *redis.Client
	SessionSvc *iauth.SessionService
	AuditSvc   *services.AuditService
	Services   *api.Services
	Cleaner    *maintenance.Cleaner
	RateStore  middleware.RateStore
	Router     *gin.Engine
}

// bootstrapRuntime initialises the database, optional Redis, services, background jobs
// and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			if err := stack.Shutdown(context.Background()); err != nil {
				log.Warn("partial runtime shutdown", zap.Error(err))
			}
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisClient(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed rate limiting", zap.Error(err))
			stack.Redis = nil
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.SessionSvc, err = iauth.NewSessionService(stack.DB, jwtSvc, cfg.Auth.SessionServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	notifier, err := api.NewNotifier(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialise notifier: %w", err)
	}

	stack.Services, err = api.BuildServices(stack.DB, cfg, stack.SessionSvc, notifier)
	if err != nil {
		return nil, fmt.Errorf("initialise services: %w", err)
	}
	stack.AuditSvc = stack.Services.Audit

	if err := ensureDefaultAdmin(ctx, stack.Services.Setup, log); err != nil {
		return nil, err
	}

	reviewPosture(ctx, security.NewReviewer(stack.DB, jwtSvc, cfg), log)

	stack.Cleaner = maintenance.NewCleaner(
		maintenance.WithSessions(stack.SessionSvc),
		maintenance.WithAudit(stack.AuditSvc),
		maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays),
		maintenance.WithSignupLifecycle(stack.Services.Pending, stack.Services.OTP),
		maintenance.WithCache(dbStore),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	if stack.Redis != nil {
		stack.RateStore = middleware.NewRedisRateStore(stack.Redis)
	} else {
		stack.RateStore = middleware.NewDatabaseRateStore(dbStore)
	}

	routerOpts := []api.RouterOption{
		api.WithServices(stack.Services),
		api.WithRateStore(stack.RateStore),
	}
	if cfg.Cache.Redis.Enabled {
		routerOpts = append(routerOpts, api.WithHealthCheck(checks.Redis(stack.Redis, cfg.Cache.Redis.Timeout)))
	}

	stack.Router, err = api.NewRouter(stack.DB, jwtSvc, cfg, stack.SessionSvc, routerOpts...)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// ensureDefaultAdmin creates the bootstrap SUPER_USER when credentials are configured.
func ensureDefaultAdmin(ctx context.Context, setup *services.SetupService, log *zap.Logger) error {
	if !setup.Configured() {
		return nil
	}

	result, err := setup.EnsureDefaultAdmin(ctx)
	if err != nil {
		return fmt.Errorf("ensure default admin: %w", err)
	}
	if result.Created {
		log.Info("default admin created", zap.String("email", result.Account.Email))
	}
	return nil
}

// reviewPosture logs every check that did not pass.
func reviewPosture(ctx context.Context, reviewer *security.Reviewer, log *zap.Logger) {
	result := reviewer.Run(ctx)
	for _, check := range result.Checks {
		fields := []zap.Field{zap.String("check", check.ID)}
		if check.Remediation != "" {
			fields = append(fields, zap.String("remediation", check.Remediation))
		}
		switch check.Status {
		case security.StatusFail:
			log.Error(check.Message, fields...)
		case security.StatusWarn:
			log.Warn(check.Message, fields...)
		}
	}
	log.Info("security review complete",
		zap.Int("pass", result.Summary[string(security.StatusPass)]),
		zap.Int("warn", result.Summary[string(security.StatusWarn)]),
		zap.Int("fail", result.Summary[string(security.StatusFail)]),
	)
}

// Shutdown stops background jobs, runs a final cleanup pass and releases connections.
func (s *runtimeStack) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}

	var errs error
	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		<-stopCtx.Done()
		errs = multierr.Append(errs, s.Cleaner.RunOnce(ctx))
	}

	if s.Redis != nil {
		errs = multierr.Append(errs, s.Redis.Close())
	}

	if s.DB != nil {
		errs = multierr.Append(errs, closeDatabase(s.DB))
	}
	return errs
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		_ = closeDatabase(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver:          strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:            strings.TrimSpace(cfg.Database.Path),
		DSN:             strings.TrimSpace(cfg.Database.DSN),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	var auth app.DBAuthConfig
	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
		return dbCfg
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		auth = cfg.Database.Postgres
	case "mysql":
		auth = cfg.Database.MySQL
	default:
		// Leave driver as-is to surface unsupported driver error during open.
		return dbCfg
	}

	dbCfg.Host = strings.TrimSpace(auth.Host)
	dbCfg.Port = auth.Port
	dbCfg.Name = strings.TrimSpace(auth.Database)
	dbCfg.User = strings.TrimSpace(auth.Username)
	dbCfg.Password = auth.Password
	dbCfg.Options = auth.Options
	return dbCfg
}

func closeDatabase(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("obtain sql db: %w", err)
	}
	return sqlDB.Close()
}

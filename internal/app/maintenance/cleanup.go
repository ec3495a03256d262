package maintenance

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/stomanager/pkg/logger"
)

const (
	defaultAuditRetentionDays = 90
	defaultSessionSpec        = "@hourly"
	defaultAuditSpec          = "@daily"
	defaultLifecycleSpec      = "@every 30m"
	defaultCacheSpec          = "@every 10m"
)

// SessionCleaner removes expired and revoked refresh sessions.
type SessionCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// AuditPruner enforces audit log retention.
type AuditPruner interface {
	CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error)
}

// PendingPurger removes signups that expired before activation.
type PendingPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// CodePurger removes one-time codes that can no longer be verified.
type CodePurger interface {
	PurgeExpiredOrUsed(ctx context.Context) (int64, error)
}

// CacheSweeper drops expired cache rows.
type CacheSweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Cleaner coordinates background maintenance: expired sessions, audit retention, stale
// signups with their codes, and expired cache rows.
type Cleaner struct {
	sessions  SessionCleaner
	audit     AuditPruner
	pending   PendingPurger
	codes     CodePurger
	cache     CacheSweeper
	cron      *cron.Cron
	log       *zap.Logger
	retention int

	sessionSchedule   string
	auditSchedule     string
	lifecycleSchedule string
	cacheSchedule     string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithSessions enables session cleanup.
func WithSessions(sessions SessionCleaner) Option {
	return func(cleaner *Cleaner) {
		cleaner.sessions = sessions
	}
}

// WithAudit enables audit retention enforcement.
func WithAudit(audit AuditPruner) Option {
	return func(cleaner *Cleaner) {
		cleaner.audit = audit
	}
}

// WithSignupLifecycle enables purging of expired signups and spent codes.
func WithSignupLifecycle(pending PendingPurger, codes CodePurger) Option {
	return func(cleaner *Cleaner) {
		cleaner.pending = pending
		cleaner.codes = codes
	}
}

// WithCache enables sweeping of the database-backed cache.
func WithCache(cache CacheSweeper) Option {
	return func(cleaner *Cleaner) {
		cleaner.cache = cache
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithSessionSchedule overrides the cron schedule for session cleanup.
func WithSessionSchedule(expr string) Option {
	return func(cleaner *Cleaner) {
		if expr != "" {
			cleaner.sessionSchedule = expr
		}
	}
}

// WithAuditSchedule overrides the cron schedule for audit retention enforcement.
func WithAuditSchedule(expr string) Option {
	return func(cleaner *Cleaner) {
		if expr != "" {
			cleaner.auditSchedule = expr
		}
	}
}

// WithLifecycleSchedule overrides the cron schedule for signup and code purging.
func WithLifecycleSchedule(expr string) Option {
	return func(cleaner *Cleaner) {
		if expr != "" {
			cleaner.lifecycleSchedule = expr
		}
	}
}

// WithCacheSchedule overrides the cron schedule for cache sweeping.
func WithCacheSchedule(expr string) Option {
	return func(cleaner *Cleaner) {
		if expr != "" {
			cleaner.cacheSchedule = expr
		}
	}
}

// NewCleaner constructs a Cleaner. Jobs whose dependency was not supplied are skipped.
func NewCleaner(opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		retention:         defaultAuditRetentionDays,
		sessionSchedule:   defaultSessionSpec,
		auditSchedule:     defaultAuditSpec,
		lifecycleSchedule: defaultLifecycleSpec,
		cacheSchedule:     defaultCacheSpec,
		log:               logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

type job struct {
	name     string
	schedule string
	run      func(ctx context.Context) (int64, error)
}

func (c *Cleaner) jobs() []job {
	var jobs []job
	if c.sessions != nil {
		jobs = append(jobs, job{name: "sessions", schedule: c.sessionSchedule, run: c.sessions.CleanupExpired})
	}
	if c.audit != nil && c.retention > 0 {
		jobs = append(jobs, job{name: "audit", schedule: c.auditSchedule, run: func(ctx context.Context) (int64, error) {
			return c.audit.CleanupOlderThan(ctx, c.retention)
		}})
	}
	if c.pending != nil || c.codes != nil {
		jobs = append(jobs, job{name: "signup_lifecycle", schedule: c.lifecycleSchedule, run: c.purgeLifecycle})
	}
	if c.cache != nil {
		jobs = append(jobs, job{name: "cache", schedule: c.cacheSchedule, run: c.cache.DeleteExpired})
	}
	return jobs
}

func (c *Cleaner) purgeLifecycle(ctx context.Context) (int64, error) {
	var (
		total int64
		errs  error
	)
	if c.pending != nil {
		n, err := c.pending.PurgeExpired(ctx)
		total += n
		errs = multierr.Append(errs, err)
	}
	if c.codes != nil {
		n, err := c.codes.PurgeExpiredOrUsed(ctx)
		total += n
		errs = multierr.Append(errs, err)
	}
	return total, errs
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one
// job is configured.
func (c *Cleaner) Start() error {
	jobs := c.jobs()
	if len(jobs) == 0 {
		return nil
	}

	for _, j := range jobs {
		j := j
		if _, err := c.cron.AddFunc(j.schedule, func() {
			removed, err := j.run(context.Background())
			if err != nil {
				c.log.Warn("cleanup failed", zap.String("job", j.name), zap.Error(err))
				return
			}
			if removed > 0 {
				c.log.Debug("cleanup finished", zap.String("job", j.name), zap.Int64("removed", removed))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Used in tests and
// during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range c.jobs() {
		if _, err := j.run(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

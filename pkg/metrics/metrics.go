package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records login attempts by result (success|failure|locked).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stomanager_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// RoleChecks counts role guard evaluations (allow|deny).
	RoleChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stomanager_role_checks_total",
			Help: "Total number of role checks",
		},
		[]string{"role", "result"},
	)

	// ActiveSessions tracks active sessions (not expired/revoked).
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stomanager_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// Signups counts signup submissions by result (created|conflict|invalid).
	Signups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stomanager_signups_total",
			Help: "Total number of signup submissions",
		},
		[]string{"result"},
	)

	// OTPVerifications counts OTP verification attempts by result (success|failure).
	OTPVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stomanager_otp_verifications_total",
			Help: "Total number of OTP verification attempts",
		},
		[]string{"purpose", "result"},
	)

	// Promotions counts pending account promotions by path (auto|link|admin).
	Promotions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stomanager_account_promotions_total",
			Help: "Total number of pending accounts promoted to active accounts",
		},
		[]string{"path"},
	)

	// EmailsSent counts outbound notifications by kind and result.
	EmailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stomanager_emails_sent_total",
			Help: "Total number of outbound notification emails",
		},
		[]string{"kind", "result"},
	)

	// UploadRows counts ingested SOH rows by outcome (success|failure).
	UploadRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stomanager_upload_rows_total",
			Help: "Total number of SOH rows processed by uploads",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stomanager_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

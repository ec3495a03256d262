package monitoring_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/stomanager/internal/database/testutil"
	"github.com/charlesng35/stomanager/internal/monitoring"
	"github.com/charlesng35/stomanager/internal/monitoring/checks"
)

func TestHealthManagerEvaluate(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager(
		monitoring.NewCheck("database", true, func(ctx context.Context) monitoring.ProbeResult {
			return monitoring.ProbeResult{Status: monitoring.StatusUp}
		}),
		monitoring.NewCheck("redis", false, func(ctx context.Context) monitoring.ProbeResult {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "connection refused"}
		}),
	)

	report := manager.Evaluate(context.Background())
	require.Equal(t, monitoring.StatusDegraded, report.Status)
	require.Len(t, report.Checks, 2)

	redis, ok := report.Component("redis")
	require.True(t, ok)
	require.Equal(t, "connection refused", redis.Details)
}

func TestHealthManagerCriticalFailure(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager()
	manager.Register(monitoring.NewCheck("optional", false, func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusDegraded}
	}))
	manager.Register(monitoring.NewCheck("database", true, func(ctx context.Context) monitoring.ProbeResult {
		panic(errors.New("driver exploded"))
	}))
	manager.Register(monitoring.Check{})

	report := manager.Evaluate(context.Background())
	require.Equal(t, monitoring.StatusDown, report.Status)
	require.Len(t, report.Checks, 2)

	db, ok := report.Component("database")
	require.True(t, ok)
	require.Equal(t, "driver exploded", db.Details)
	require.Positive(t, db.Duration)
}

func TestResultFromError(t *testing.T) {
	t.Parallel()

	require.Equal(t, monitoring.StatusUp, monitoring.ResultFromError(nil, time.Millisecond).Status)
	require.Equal(t, monitoring.StatusDegraded, monitoring.ResultFromError(context.DeadlineExceeded, 0).Status)
	require.Equal(t, monitoring.StatusDown, monitoring.ResultFromError(errors.New("boom"), -1).Status)
}

func TestDatabaseCheck(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	result := checks.Database(db, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	result = checks.Database(db, time.Second).Run(context.Background())
	require.Equal(t, monitoring.StatusDown, result.Status)

	result = checks.Database(nil, 0).Run(context.Background())
	require.Equal(t, "database not configured", result.Details)
}

func TestRedisCheckWithoutClient(t *testing.T) {
	result := checks.Redis(nil, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
}

package checks

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/charlesng35/stomanager/internal/monitoring"
)

const defaultRedisTimeout = 2 * time.Second

// Redis probes the shared rate limit store. Rate limiting falls back to the database when
// Redis is unreachable, so a failure only degrades the report.
func Redis(client *redis.Client, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("redis", false, func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if client == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "redis unavailable"}
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultRedisTimeout))
		defer cancel()

		return monitoring.ResultFromError(client.Ping(probeCtx).Err(), time.Since(start))
	})
}

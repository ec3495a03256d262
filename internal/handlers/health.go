package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/stomanager/internal/monitoring"
	"github.com/charlesng35/stomanager/pkg/response"
)

// Health reports dependency status. A failed critical probe answers 503.
func Health(health *monitoring.HealthManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := health.Evaluate(requestContext(c))

		status := "ok"
		code := http.StatusOK
		switch report.Status {
		case monitoring.StatusDown:
			status = "down"
			code = http.StatusServiceUnavailable
		case monitoring.StatusDegraded:
			status = "degraded"
		}

		database := string(monitoring.StatusDown)
		if probe, ok := report.Component("database"); ok {
			database = string(probe.Status)
		}

		response.Success(c, code, gin.H{
			"status":   status,
			"database": database,
			"checks":   report.Checks,
		})
	}
}

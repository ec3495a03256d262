package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/stomanager/pkg/errors"
	"github.com/charlesng35/stomanager/pkg/logger"
	"github.com/charlesng35/stomanager/pkg/response"
)

const defaultDatabasePingTimeout = 2 * time.Second

// ErrDatabaseUnavailable is returned when the datastore cannot be reached.
var ErrDatabaseUnavailable = errors.ErrServiceUnavailable.WithMessage("Database not available")

// RequireDatabase pings the connection pool before the handler runs and fails fast
// with 503 when it is unreachable.
func RequireDatabase(db *gorm.DB, timeout time.Duration) gin.HandlerFunc {
	if timeout <= 0 {
		timeout = defaultDatabasePingTimeout
	}
	return func(c *gin.Context) {
		if err := pingDatabase(c.Request.Context(), db, timeout); err != nil {
			logger.WithModule("http").Warn("database unavailable",
				zap.String("path", c.FullPath()),
				zap.Error(err),
			)
			response.Error(c, ErrDatabaseUnavailable)
			c.Abort()
			return
		}
		c.Next()
	}
}

func pingDatabase(ctx context.Context, db *gorm.DB, timeout time.Duration) error {
	if db == nil {
		return errors.ErrServiceUnavailable
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

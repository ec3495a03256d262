package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/stomanager/internal/auditctx"
)

// RequestActor stores the caller's address and user agent on the request context so
// services can attribute audit entries.
func RequestActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := auditctx.WithActor(c.Request.Context(), auditctx.Actor{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

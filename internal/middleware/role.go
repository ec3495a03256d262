package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/stomanager/internal/models"
	"github.com/charlesng35/stomanager/pkg/errors"
	"github.com/charlesng35/stomanager/pkg/metrics"
	"github.com/charlesng35/stomanager/pkg/response"
)

// ErrElevatedRoleRequired is returned to authenticated callers lacking the required role.
var ErrElevatedRoleRequired = errors.ErrForbidden.WithMessage("Super User access required")

// RequireRole admits only principals holding one of the supplied roles. It must run
// after Auth.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{}, len(roles))
	label := ""
	for i, role := range roles {
		allowed[role] = struct{}{}
		if i > 0 {
			label += "|"
		}
		label += string(role)
	}

	return func(c *gin.Context) {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			metrics.RoleChecks.WithLabelValues(label, "deny").Inc()
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[principal.Role]; !ok || !principal.Role.Valid() {
			metrics.RoleChecks.WithLabelValues(label, "deny").Inc()
			response.Error(c, ErrElevatedRoleRequired)
			c.Abort()
			return
		}
		metrics.RoleChecks.WithLabelValues(label, "allow").Inc()
		c.Next()
	}
}

// RequireSuperUser is RequireRole for the elevated role.
func RequireSuperUser() gin.HandlerFunc {
	return RequireRole(models.RoleSuperUser)
}

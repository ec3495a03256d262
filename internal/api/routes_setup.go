package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/stomanager/internal/handlers"
	"github.com/charlesng35/stomanager/internal/middleware"
)

func registerSetupRoutes(api *gin.RouterGroup, authn *middleware.Authenticator, handler *handlers.SetupHandler) {
	setup := api.Group("/setup")
	{
		setup.GET("/default-admin", handler.Status)
		setup.POST("/default-admin", authn.OptionalAuth(), handler.EnsureDefaultAdmin)
	}
}

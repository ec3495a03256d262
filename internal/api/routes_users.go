package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/stomanager/internal/handlers"
)

func registerUserRoutes(elevated *gin.RouterGroup, handler *handlers.UserHandler) {
	users := elevated.Group("/users")
	{
		users.GET("", handler.List)
		users.POST("", handler.Create)
		users.GET("/pending", handler.Pending)
		users.GET("/:id", handler.Get)
		users.DELETE("/:id", handler.Delete)
	}
}

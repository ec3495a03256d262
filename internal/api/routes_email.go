package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/stomanager/internal/handlers"
)

func registerEmailRoutes(elevated *gin.RouterGroup, handler *handlers.EmailHandler) {
	email := elevated.Group("/email")
	{
		email.POST("/test", handler.Test)
		email.GET("/health", handler.Health)
	}
}

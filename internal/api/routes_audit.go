package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/stomanager/internal/handlers"
)

func registerAuditRoutes(elevated *gin.RouterGroup, handler *handlers.AuditHandler) {
	elevated.GET("/audit", handler.List)
}

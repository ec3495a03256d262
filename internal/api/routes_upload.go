package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/stomanager/internal/handlers"
)

func registerUploadRoutes(protected, elevated *gin.RouterGroup, handler *handlers.UploadHandler) {
	protected.GET("/upload/progress/:uploadId", handler.Progress)

	upload := elevated.Group("/upload")
	{
		upload.POST("", handler.Upload)
		upload.GET("/sample-csv", handler.SampleCSV)
	}
}

package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/stomanager/internal/ingest"
	"github.com/charlesng35/stomanager/internal/services"
	"github.com/charlesng35/stomanager/pkg/errors"
	"github.com/charlesng35/stomanager/pkg/response"
)

const uploadFormField = "file"

var errNoFile = errors.New("NO_FILE", "No file uploaded", http.StatusBadRequest)

// UploadHandler accepts SOH files and reports ingestion progress.
type UploadHandler struct {
	svc *services.UploadService
}

func NewUploadHandler(svc *services.UploadService) *UploadHandler {
	return &UploadHandler{svc: svc}
}

// POST /api/upload
func (h *UploadHandler) Upload(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	// Multipart framing adds a little on top of the file itself.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.svc.MaxSize()+1<<20)

	header, err := c.FormFile(uploadFormField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			response.Error(c, ingest.CheckSize(h.svc.MaxSize()+1, h.svc.MaxSize()))
			return
		}
		response.Error(c, errNoFile)
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, errNoFile.WithInternal(err))
		return
	}
	defer file.Close()

	result, err := h.svc.Ingest(requestContext(c), services.UploadInput{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Reader:      file,
		UploadedBy:  principal.ID,
		IPAddress:   c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusOK, result, "File uploaded and processed successfully")
}

// GET /api/upload/progress/:uploadId
func (h *UploadHandler) Progress(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	progress, err := h.svc.Progress(requestContext(c), c.Param("uploadId"), principal.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, progress)
}

// GET /api/upload/sample-csv
func (h *UploadHandler) SampleCSV(c *gin.Context) {
	c.Header("Content-Disposition", "attachment; filename="+ingest.SampleFileName)
	c.Data(http.StatusOK, "text/csv", ingest.SampleCSV())
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/stomanager/internal/middleware"
	"github.com/charlesng35/stomanager/internal/services"
	"github.com/charlesng35/stomanager/pkg/errors"
	"github.com/charlesng35/stomanager/pkg/response"
)

type SetupHandler struct {
	svc *services.SetupService
}

func NewSetupHandler(svc *services.SetupService) *SetupHandler {
	return &SetupHandler{svc: svc}
}

// GET /api/setup/default-admin
func (h *SetupHandler) Status(c *gin.Context) {
	status, err := h.svc.DefaultAdminStatus(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	message := "Default admin user not found"
	if status.Exists {
		message = "Default admin user found"
	}
	response.SuccessWithMessage(c, http.StatusOK, status, message)
}

// POST /api/setup/default-admin
func (h *SetupHandler) EnsureDefaultAdmin(c *gin.Context) {
	// Anonymous callers may bootstrap; signed-in callers must already be elevated.
	if principal, ok := middleware.PrincipalFromContext(c); ok && !principal.IsElevated() {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	result, err := h.svc.EnsureDefaultAdmin(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := gin.H{
		"email":   result.Account.Email,
		"name":    result.Account.Name,
		"role":    result.Account.Role,
		"exists":  !result.Created,
		"created": result.Created,
	}
	if !result.Created {
		response.SuccessWithMessage(c, http.StatusOK, payload, "Default admin user already exists")
		return
	}
	response.SuccessWithMessage(c, http.StatusCreated, payload, "Default admin user created successfully")
}

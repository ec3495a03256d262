package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/stomanager/internal/models"
	"github.com/charlesng35/stomanager/internal/services"
	"github.com/charlesng35/stomanager/pkg/response"
)

type UserHandler struct {
	service *services.UserService
	pending *services.PendingAccountService
}

type createUserRequest struct {
	Email    string `json:"email" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role"`
}

func (createUserRequest) missingFieldsMessage() string { return "Missing required fields" }

func NewUserHandler(service *services.UserService, pending *services.PendingAccountService) *UserHandler {
	return &UserHandler{service: service, pending: pending}
}

// GET /api/users
func (h *UserHandler) List(c *gin.Context) {
	opts := services.ListUsersOptions{
		Page:            parseIntQuery(c, "page", 1),
		PerPage:         parseIntQuery(c, "per_page", 50),
		Query:           c.Query("q"),
		IncludeInactive: parseBoolQuery(c, "include_inactive"),
	}.Normalized()

	users, total, err := h.service.List(requestContext(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, users, response.NewMeta(opts.Page, opts.PerPage, total))
}

// GET /api/users/pending
func (h *UserHandler) Pending(c *gin.Context) {
	pending, err := h.pending.ListAwaitingApproval(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if pending == nil {
		pending = []models.PendingAccount{}
	}
	response.Success(c, http.StatusOK, pending)
}

// GET /api/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.service.GetByID(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// POST /api/users
func (h *UserHandler) Create(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	var body createUserRequest
	if !bindAndValidate(c, &body) {
		return
	}

	user, err := h.service.Create(requestContext(c), services.CreateUserInput{
		Email:    body.Email,
		Name:     body.Name,
		Password: body.Password,
		Role:     body.Role,
	}, &principal)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusCreated, user, "User created successfully")
}

// DELETE /api/users/:id
func (h *UserHandler) Delete(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	if err := h.service.Deactivate(requestContext(c), c.Param("id"), principal); err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusOK, gin.H{"id": c.Param("id")}, "User deleted successfully")
}

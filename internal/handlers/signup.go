package handlers

import (
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/stomanager/internal/models"
	"github.com/charlesng35/stomanager/internal/services"
	"github.com/charlesng35/stomanager/pkg/errors"
	"github.com/charlesng35/stomanager/pkg/response"
)

var (
	errMissingSignupFields = errors.NewValidation("Missing required fields")
	errInvalidOTP          = errors.New("INVALID_OTP", "Invalid or expired verification code", http.StatusBadRequest)
	errMissingToken        = errors.New("MISSING_TOKEN", "Missing token", http.StatusBadRequest)
	errMissingPendingID    = services.ErrMissingID.WithMessage("Missing pending user ID")
	errPendingNotFound     = services.ErrUserNotFound.WithMessage("Pending user not found")
)

// SignupHandler drives the self-service lifecycle: signup, email verification and approval.
type SignupHandler struct {
	pending  *services.PendingAccountService
	approval *services.ApprovalService
}

func NewSignupHandler(pending *services.PendingAccountService, approval *services.ApprovalService) *SignupHandler {
	return &SignupHandler{pending: pending, approval: approval}
}

type signupRequest struct {
	Email      string `json:"email" validate:"required"`
	Name       string `json:"name" validate:"required"`
	Password   string `json:"password" validate:"required"`
	AdminEmail string `json:"adminEmail"`
}

func (signupRequest) missingFieldsMessage() string { return "Missing required fields" }

type signupResponse struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	EmailSent bool      `json:"emailSent"`
}

// POST /api/auth/signup
func (h *SignupHandler) Signup(c *gin.Context) {
	var req signupRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.pending.Create(requestContext(c), services.CreatePendingInput{
		Email:      req.Email,
		Name:       req.Name,
		Password:   req.Password,
		Role:       string(models.RoleAdminUser),
		AdminEmail: req.AdminEmail,
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusCreated, signupResponse{
		Email:     result.Account.Email,
		Name:      result.Account.Name,
		CreatedAt: result.Account.CreatedAt,
		EmailSent: result.EmailSent,
	}, "Signup successful. Please verify your email.")
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type verifyOTPResponse struct {
	Verified  bool                        `json:"verified"`
	Status    services.VerificationStatus `json:"status"`
	Email     string                      `json:"email"`
	EmailSent bool                        `json:"emailSent"`
	Account   *models.Account             `json:"account,omitempty"`
}

// POST /api/auth/verify-otp
func (h *SignupHandler) VerifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.OTP) == "" {
		response.Error(c, errMissingSignupFields)
		return
	}

	result, err := h.approval.VerifyAndRoute(requestContext(c), req.Email, strings.TrimSpace(req.OTP))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !result.Verified {
		response.Error(c, errInvalidOTP)
		return
	}

	message := "Email verified successfully. Your account is pending admin approval."
	if result.Status == services.StatusApproved {
		message = "Email verified and account activated successfully!"
	}
	response.SuccessWithMessage(c, http.StatusOK, verifyOTPResponse{
		Verified:  true,
		Status:    result.Status,
		Email:     result.Email,
		EmailSent: result.EmailSent,
		Account:   result.Account,
	}, message)
}

type resendOTPRequest struct {
	Email string `json:"email"`
}

// POST /api/auth/resend-otp
func (h *SignupHandler) ResendOTP(c *gin.Context) {
	var req resendOTPRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		response.Error(c, errors.NewValidation("Email is required"))
		return
	}
	if !services.ValidEmail(req.Email) {
		response.Error(c, errors.NewValidation("Invalid email format"))
		return
	}

	result, err := h.pending.ResendOTP(requestContext(c), req.Email)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusOK, gin.H{
		"email":     result.Email,
		"emailSent": result.EmailSent,
	}, "Verification code has been resent to your email.")
}

// GET /api/auth/approve?token=
func (h *SignupHandler) ApproveLink(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, errMissingToken)
		return
	}

	account, err := h.approval.Promote(requestContext(c), token, nil)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondApproved(c, account)
}

type approveRequest struct {
	PendingUserID string `json:"pendingUserId"`
}

// POST /api/auth/approve
func (h *SignupHandler) Approve(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	var req approveRequest
	if !bindAndValidate(c, &req) {
		return
	}
	id := strings.TrimSpace(req.PendingUserID)
	if id == "" {
		response.Error(c, errMissingPendingID)
		return
	}

	account, err := h.approval.Promote(requestContext(c), id, &principal)
	if err != nil {
		// An unknown id is a lookup miss for an administrator, not a bad link.
		if stderrors.Is(err, services.ErrInvalidToken) {
			err = errPendingNotFound
		}
		response.Error(c, err)
		return
	}
	respondApproved(c, account)
}

func respondApproved(c *gin.Context, account *models.Account) {
	response.SuccessWithMessage(c, http.StatusOK, gin.H{
		"email": account.Email,
		"name":  account.Name,
	}, "User approved successfully")
}

package handlers

import (
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
	errInvalidEmailType = errors.New("INVALID_TYPE", "Invalid email type", http.StatusBadRequest)
	errEmailSendFailed  = errors.New("EMAIL_SEND_FAILED", "Failed to send email", http.StatusInternalServerError)
	errEmailUnhealthy   = errors.New("EMAIL_SERVICE_UNHEALTHY", "Email service is unhealthy", http.StatusServiceUnavailable)
)

// EmailHandler exposes the notification transport for operators.
type EmailHandler struct {
	notifier services.Notifier
	baseURL  string
	now      func() time.Time
}

func NewEmailHandler(notifier services.Notifier, baseURL string) *EmailHandler {
	return &EmailHandler{notifier: notifier, baseURL: strings.TrimRight(baseURL, "/"), now: time.Now}
}

type emailTestRequest struct {
	To   string `json:"to"`
	Type string `json:"type"`

	Name         string `json:"name"`
	OTPCode      string `json:"otpCode"`
	UserName     string `json:"userName"`
	AdminEmail   string `json:"adminEmail"`
	UserEmail    string `json:"userEmail"`
	ApprovalName string `json:"userNameForApproval"`
	ApprovalLink string `json:"approvalLink"`
}

// POST /api/email/test
func (h *EmailHandler) Test(c *gin.Context) {
	var req emailTestRequest
	if !bindAndValidate(c, &req) {
		return
	}
	to := strings.TrimSpace(req.To)
	kind := strings.TrimSpace(req.Type)
	if kind == "" {
		kind = services.NotificationKindTest
	}

	ctx := requestContext(c)
	var result services.Result
	switch kind {
	case services.NotificationKindTest:
		if to == "" {
			response.Error(c, errors.NewValidation("Recipient is required"))
			return
		}
		result = h.notifier.SendTest(ctx, to)
	case services.NotificationKindOTP:
		result = h.notifier.SendOTP(ctx, fallback(to, "test@example.com"), fallback(req.Name, "Test User"),
			fallback(req.OTPCode, "123456"), models.OTPPurposeSignup)
	case services.NotificationKindWelcome:
		result = h.notifier.SendWelcome(ctx, fallback(to, "test@example.com"), fallback(req.UserName, "Test User"))
	case services.NotificationKindApproval:
		link := fallback(req.ApprovalLink, h.baseURL+"/api/auth/approve?token=test-token")
		result = h.notifier.SendApprovalRequest(ctx, fallback(req.AdminEmail, fallback(to, "admin@example.com")),
			fallback(req.UserEmail, "user@example.com"), fallback(req.ApprovalName, "Test User"), link)
	default:
		response.Error(c, errInvalidEmailType)
		return
	}

	if !result.Success {
		response.Error(c, errEmailSendFailed.WithMessage("Failed to send email: "+result.Error))
		return
	}

	response.SuccessWithMessage(c, http.StatusOK, gin.H{
		"messageId": result.MessageID,
		"type":      kind,
		"to":        fallback(to, "default recipient"),
	}, "Email sent successfully")
}

// GET /api/email/health
func (h *EmailHandler) Health(c *gin.Context) {
	health := h.notifier.CheckHealth(requestContext(c))
	if !health.Healthy {
		response.Error(c, errEmailUnhealthy.WithMessage("Email service is unhealthy: "+health.Error))
		return
	}

	response.SuccessWithMessage(c, http.StatusOK, gin.H{
		"status":    "healthy",
		"config":    health.Config,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	}, "Email service is healthy")
}

func fallback(value, def string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return def
}

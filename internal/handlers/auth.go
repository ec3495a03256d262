package handlers

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/stomanager/internal/auth"
	"github.com/charlesng35/stomanager/internal/auth/providers"
	"github.com/charlesng35/stomanager/internal/middleware"
	"github.com/charlesng35/stomanager/internal/models"
	"github.com/charlesng35/stomanager/internal/services"
	"github.com/charlesng35/stomanager/pkg/errors"
	"github.com/charlesng35/stomanager/pkg/logger"
	"github.com/charlesng35/stomanager/pkg/metrics"
	"github.com/charlesng35/stomanager/pkg/response"
)

// Authenticator checks email/password credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, input providers.AuthenticateInput) (*models.Account, error)
}

// AuthHandler manages authentication flows (login/refresh/logout/me).
type AuthHandler struct {
	provider Authenticator
	jwt      *iauth.JWTService
	sessions *iauth.SessionService
	users    *services.UserService
	audit    *services.AuditService
}

func NewAuthHandler(provider Authenticator, jwt *iauth.JWTService, sessions *iauth.SessionService, users *services.UserService, audit *services.AuditService) *AuthHandler {
	return &AuthHandler{provider: provider, jwt: jwt, sessions: sessions, users: users, audit: audit}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}
	ctx := requestContext(c)

	account, err := h.provider.Authenticate(ctx, providers.AuthenticateInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		h.record(ctx, c, services.AuditEntry{
			Actor:  strings.ToLower(strings.TrimSpace(req.Email)),
			Action: services.AuditActionLogin,
			Result: services.AuditResultFailure,
		})
		switch {
		case stderrors.Is(err, providers.ErrAccountLocked):
			response.Error(c, errors.ErrAccountLocked)
		case stderrors.Is(err, providers.ErrInvalidCredentials), stderrors.Is(err, providers.ErrAccountDisabled):
			// Disabled accounts are indistinguishable from bad credentials.
			response.Error(c, errors.ErrInvalidCredentials)
		default:
			response.Error(c, errors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	pair, _, err := h.sessions.CreateSession(ctx, account, iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	h.record(ctx, c, services.AuditEntry{
		UserID: &account.ID,
		Actor:  account.Email,
		Action: services.AuditActionLogin,
		Result: services.AuditResultSuccess,
	})

	response.Success(c, http.StatusOK, gin.H{
		"tokens": h.tokens(pair),
		"user":   account,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pair, _, err := h.sessions.RefreshSession(requestContext(c), req.RefreshToken)
	if err != nil {
		switch {
		case stderrors.Is(err, iauth.ErrSessionNotFound),
			stderrors.Is(err, iauth.ErrSessionRevoked),
			stderrors.Is(err, iauth.ErrSessionExpired),
			stderrors.Is(err, iauth.ErrSessionInvalidToken),
			stderrors.Is(err, iauth.ErrSessionAccountInactive):
			response.Error(c, errors.ErrUnauthorized)
		default:
			response.Error(c, errors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	response.Success(c, http.StatusOK, h.tokens(pair))
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	sid := c.GetString(middleware.CtxSessionIDKey)
	if sid == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	ctx := requestContext(c)
	if err := h.sessions.RevokeSession(ctx, sid); err != nil && !stderrors.Is(err, iauth.ErrSessionNotFound) {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	userID := principal.ID
	h.record(ctx, c, services.AuditEntry{
		UserID:   &userID,
		Actor:    principal.Email,
		Action:   services.AuditActionLogout,
		Resource: sid,
		Result:   services.AuditResultSuccess,
	})

	response.SuccessWithMessage(c, http.StatusOK, gin.H{"revoked": true}, "Logged out")
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	account, err := h.users.GetByID(requestContext(c), principal.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, account)
}

func (h *AuthHandler) tokens(pair iauth.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int(h.jwt.TTL().Seconds()),
	}
}

func (h *AuthHandler) record(ctx context.Context, c *gin.Context, entry services.AuditEntry) {
	if h.audit == nil {
		return
	}
	entry.IPAddress = c.ClientIP()
	entry.UserAgent = c.Request.UserAgent()
	if err := h.audit.Log(ctx, entry); err != nil {
		logger.WithModule("auth").Warn("failed to record audit entry",
			zap.String("action", entry.Action),
			zap.Error(err),
		)
	}
}

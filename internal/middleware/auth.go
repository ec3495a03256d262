package middleware

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/stomanager/internal/auditctx"
	iauth "github.com/charlesng35/stomanager/internal/auth"
	"github.com/charlesng35/stomanager/internal/models"
	"github.com/charlesng35/stomanager/pkg/errors"
	"github.com/charlesng35/stomanager/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxUserIDKey    = "userID"
	CtxSessionIDKey = "sessionID"
	CtxPrincipalKey = "principal"
)

// SessionChecker reports whether the session behind an access token is still live.
type SessionChecker interface {
	IsActive(ctx context.Context, sessionID string) (bool, error)
}

// AccountLoader reloads the account behind an access token.
type AccountLoader interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
}

// Authenticator resolves bearer tokens into principals.
type Authenticator struct {
	jwt      *iauth.JWTService
	sessions SessionChecker
	accounts AccountLoader
}

// NewAuthenticator wires the token, session and account lookups used by Auth.
func NewAuthenticator(jwt *iauth.JWTService, sessions SessionChecker, accounts AccountLoader) *Authenticator {
	return &Authenticator{jwt: jwt, sessions: sessions, accounts: accounts}
}

// Auth enforces bearer authentication. The principal is rebuilt from the account row
// so role changes and deactivation take effect on the next request.
func (a *Authenticator) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			unauthorized(c)
			return
		}
		if err := a.authenticate(c, token); err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// OptionalAuth attaches a principal when a bearer token is supplied and lets anonymous
// requests through. A supplied but invalid token is still rejected.
func (a *Authenticator) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.TrimSpace(c.GetHeader("Authorization")) == "" {
			c.Next()
			return
		}
		token, ok := bearerToken(c)
		if !ok {
			unauthorized(c)
			return
		}
		if err := a.authenticate(c, token); err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (a *Authenticator) authenticate(c *gin.Context, token string) error {
	claims, err := a.jwt.ValidateAccessToken(token)
	if err != nil {
		c.Header("WWW-Authenticate", "Bearer")
		return errors.ErrUnauthorized
	}

	ctx := c.Request.Context()
	if a.sessions != nil && claims.SessionID != "" {
		active, err := a.sessions.IsActive(ctx, claims.SessionID)
		if err != nil {
			return err
		}
		if !active {
			return errors.ErrUnauthorized
		}
	}

	account, err := a.accounts.GetByID(ctx, claims.UserID)
	if err != nil {
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) && appErr.StatusCode < 500 {
			return errors.ErrUnauthorized
		}
		return err
	}
	if !account.IsActive {
		return errors.ErrUnauthorized.WithMessage("Account is inactive")
	}

	principal := iauth.PrincipalFromAccount(account)
	c.Set(CtxClaimsKey, claims)
	c.Set(CtxUserIDKey, principal.ID)
	c.Set(CtxPrincipalKey, principal)
	if claims.SessionID != "" {
		c.Set(CtxSessionIDKey, claims.SessionID)
	}
	c.Request = c.Request.WithContext(auditctx.WithIdentity(ctx, principal.ID, principal.Email))
	return nil
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(c *gin.Context) (iauth.Principal, bool) {
	v, ok := c.Get(CtxPrincipalKey)
	if !ok {
		return iauth.Principal{}, false
	}
	principal, ok := v.(iauth.Principal)
	return principal, ok
}

func bearerToken(c *gin.Context) (string, bool) {
	authz := c.GetHeader("Authorization")
	if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(authz[7:])
	return token, token != ""
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	response.Error(c, errors.ErrUnauthorized)
	c.Abort()
}

package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/stomanager/internal/auth"
	"github.com/charlesng35/stomanager/internal/middleware"
	"github.com/charlesng35/stomanager/pkg/errors"
	"github.com/charlesng35/stomanager/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// requirePrincipal returns the authenticated caller or writes a 401.
func requirePrincipal(c *gin.Context) (iauth.Principal, bool) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok || principal.ID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return iauth.Principal{}, false
	}
	return principal, true
}

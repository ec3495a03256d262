package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/stomanager/internal/handlers"
)

type authRouteDeps struct {
	Auth   *handlers.AuthHandler
	Signup *handlers.SignupHandler
}

func registerAuthRoutes(api, protected, elevated *gin.RouterGroup, limiter gin.HandlerFunc, deps authRouteDeps) {
	auth := api.Group("/auth")
	{
		auth.POST("/signup", limiter, deps.Signup.Signup)
		auth.POST("/verify-otp", limiter, deps.Signup.VerifyOTP)
		auth.POST("/resend-otp", limiter, deps.Signup.ResendOTP)
		auth.GET("/approve", deps.Signup.ApproveLink)
		auth.POST("/login", limiter, deps.Auth.Login)
		auth.POST("/refresh", deps.Auth.Refresh)
	}

	protected.GET("/auth/me", deps.Auth.Me)
	protected.POST("/auth/logout", deps.Auth.Logout)
	elevated.POST("/auth/approve", deps.Signup.Approve)
}

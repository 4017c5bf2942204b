package auth

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appauth "github.com/astranetix/bms/common/auth"
)

// Routes mounts /auth. authn validates bearer tokens; loginLimit throttles
// login attempts and may be nil.
func Routes(router *gin.RouterGroup, service *Service, logger *zap.Logger, authn, loginLimit gin.HandlerFunc) {
	handler := NewHandler(service, logger)

	group := router.Group("/auth")
	if loginLimit != nil {
		group.POST("/login", loginLimit, handler.Login)
	} else {
		group.POST("/login", handler.Login)
	}
	group.POST("/register/founder", handler.RegisterFounder)

	authed := group.Group("", authn)
	{
		authed.GET("/me", handler.Me)
		authed.POST("/logout", handler.Logout)
	}

	founder := authed.Group("/totp", appauth.RequireUserType(appauth.UserTypeFounder))
	{
		founder.POST("/setup", handler.SetupTOTP)
		founder.POST("/verify", handler.VerifyTOTP)
	}
}

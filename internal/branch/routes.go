package branch

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/astranetix/bms/common/auth"
)

// Routes configures the branch management routes
func Routes(router *gin.RouterGroup, service *Service, logger *zap.Logger, authn gin.HandlerFunc) {
	handler := NewHandler(service, logger)

	group := router.Group("/branch", authn, auth.RequireUserType(auth.UserTypeISP))
	{
		group.POST("", handler.Create)
		group.GET("", handler.List)
		group.GET("/:branch_id/dashboard", handler.Dashboard)
		group.GET("/:branch_id/users", handler.Users)
		group.GET("/:branch_id/analytics", handler.Analytics)
	}
}

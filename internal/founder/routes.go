package founder

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/astranetix/bms/common/auth"
)

// Routes configures the founder console routes
func Routes(router *gin.RouterGroup, service *Service, logger *zap.Logger, authn gin.HandlerFunc) {
	handler := NewHandler(service, logger)

	group := router.Group("/founder", authn, auth.RequireUserType(auth.UserTypeFounder))
	{
		group.GET("/dashboard", handler.Dashboard)
		group.POST("/isp/create", handler.CreateISP)
		group.GET("/isp/list", handler.ListISPs)
		group.PUT("/policies/global", handler.UpdateGlobalPolicies)
		group.GET("/revenue/analytics", handler.RevenueAnalytics)
		group.GET("/system/monitoring", handler.SystemMonitoring)
	}
}

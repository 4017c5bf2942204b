package noc

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/astranetix/bms/common/auth"
)

// Routes configures the NOC routes. Websocket clients authenticate with the
// token query parameter.
func Routes(router *gin.RouterGroup, service *Service, logger *zap.Logger, authn gin.HandlerFunc) {
	handler := NewHandler(service, logger)

	group := router.Group("/noc/:tenant_id", authn, auth.RequireUserType(auth.UserTypeISP, auth.UserTypeFounder))
	{
		group.GET("/dashboard", handler.Dashboard)
		group.POST("/alerts", handler.CreateAlert)
		group.GET("/alerts", handler.Alerts)
		group.GET("/alerts/stream", handler.StreamAlerts)
		group.PUT("/alerts/:alert_id/resolve", handler.ResolveAlert)
		group.POST("/devices/:device_id/heartbeat", handler.Heartbeat)
		group.GET("/ai-audit", handler.AnalyzeAudit)

		group.GET("/sla", handler.SLAs)
		group.POST("/sla", handler.CreateSLA)
		group.GET("/sla/:sla_id/compliance", handler.Compliance)
	}
}

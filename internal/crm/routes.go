package crm

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/astranetix/bms/common/auth"
)

// Routes configures the CRM routes
func Routes(router *gin.RouterGroup, service *Service, logger *zap.Logger, authn gin.HandlerFunc) {
	handler := NewHandler(service, logger)

	group := router.Group("/crm/:isp_id", authn, auth.RequireUserType(auth.UserTypeISP))
	{
		group.GET("/analytics", handler.Analytics)
		group.POST("/segments", handler.CreateSegment)
		group.GET("/segments", handler.Segments)
		group.POST("/campaigns", handler.CreateCampaign)
		group.GET("/campaigns", handler.Campaigns)
		group.POST("/campaigns/:campaign_id/launch", handler.Launch)
		group.POST("/campaigns/:campaign_id/events", handler.RecordEvent)
		group.GET("/campaigns/:campaign_id/metrics", handler.Metrics)
	}
}

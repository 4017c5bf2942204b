package isp

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/astranetix/bms/common/auth"
)

// Routes configures the ISP portal routes
func Routes(router *gin.RouterGroup, service *Service, logger *zap.Logger, authn gin.HandlerFunc) {
	handler := NewHandler(service, logger)

	group := router.Group("/isp", authn, auth.RequireUserType(auth.UserTypeISP))
	{
		group.GET("/dashboard", handler.Dashboard)

		group.POST("/subscribers", handler.CreateSubscriber)
		group.GET("/subscribers", handler.ListSubscribers)
		group.PATCH("/subscribers/:user_id", handler.UpdateSubscriberStatus)

		group.POST("/plans", handler.CreatePlan)
		group.GET("/plans", handler.ListPlans)

		group.PUT("/radius", handler.ConfigureRadius)
		group.PUT("/branding", handler.UpdateBranding)
		group.POST("/devices", handler.RegisterDevice)
		group.POST("/usage", handler.IngestUsage)

		group.GET("/bandwidth/optimization", handler.BandwidthOptimization)
		group.GET("/analytics/subscribers", handler.SubscriberAnalytics)
	}
}

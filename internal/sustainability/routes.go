package sustainability

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Routes configures the sustainability routes. Tenant access is checked per route.
func Routes(router *gin.RouterGroup, service *Service, logger *zap.Logger, authn gin.HandlerFunc) {
	handler := NewHandler(service, logger)

	group := router.Group("/sustainability/:tenant_id", authn)
	{
		group.GET("/dashboard", handler.Dashboard)
		group.POST("/metrics", handler.CreateMetric)
		group.GET("/metrics", handler.ListMetrics)
		group.POST("/carbon-offset", handler.PurchaseOffset)
		group.GET("/report", handler.Report)
	}
}

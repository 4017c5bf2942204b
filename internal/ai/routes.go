package ai

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/astranetix/bms/common/auth"
)

// Routes configures the AI routes
func Routes(router *gin.RouterGroup, service *Service, logger *zap.Logger, authn gin.HandlerFunc) {
	handler := NewHandler(service, logger)

	group := router.Group("/ai", authn, auth.RequireUserType(auth.UserTypeISP, auth.UserTypeFounder))
	{
		group.POST("/traffic/analyze", handler.AnalyzeTraffic)
		group.GET("/qos/optimize", handler.OptimizeQoS)
		group.GET("/network/predict", handler.PredictNetwork)
		group.GET("/anomalies", handler.DetectAnomalies)
		group.GET("/insights", handler.Insights)
		group.GET("/insights/:insight_id", handler.Insight)
	}
}

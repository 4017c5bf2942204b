package reporting

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/astranetix/bms/common/auth"
)

// Routes configures the reporting routes
func Routes(router *gin.RouterGroup, service *Service, logger *zap.Logger, authn gin.HandlerFunc) {
	handler := NewHandler(service, logger)

	group := router.Group("/reporting/:isp_id", authn, auth.RequireUserType(auth.UserTypeISP))
	{
		group.GET("/templates", handler.Templates)
		group.POST("/templates", handler.CreateTemplate)
		group.POST("/generate", handler.Generate)
		group.GET("/generations", handler.Generations)
		group.GET("/generations/:generation_id/download", handler.Download)
		group.POST("/custom-report", handler.CustomReport)
		group.GET("/compliance/:report_type", handler.Compliance)
		group.GET("/bi-endpoints", handler.BIEndpoints)
	}
}

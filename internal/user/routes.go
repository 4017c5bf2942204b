package user

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/astranetix/bms/common/auth"
)

// Routes configures the subscriber portal routes
func Routes(router *gin.RouterGroup, service *Service, logger *zap.Logger, authn gin.HandlerFunc) {
	handler := NewHandler(service, logger)

	group := router.Group("/user", authn, auth.RequireUserType(auth.UserTypeUser))
	{
		group.GET("/dashboard", handler.Dashboard)
		group.GET("/usage", handler.Usage)
		group.GET("/payments", handler.Payments)
		group.POST("/tickets", handler.CreateTicket)
		group.GET("/tickets", handler.Tickets)
		group.POST("/plan/upgrade", handler.UpgradePlan)
	}
}

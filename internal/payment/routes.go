package payment

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/astranetix/bms/common/auth"
)

// Routes configures the payment routes
func Routes(router *gin.RouterGroup, service *Service, logger *zap.Logger, authn gin.HandlerFunc) {
	handler := NewHandler(service, logger)

	group := router.Group("/payment", authn)
	{
		group.POST("/process", auth.RequireUserType(auth.UserTypeISP, auth.UserTypeUser), handler.Process)
		group.POST("/invoices", handler.CreateInvoice)
		group.GET("/invoices/:invoice_id", handler.Invoice)
		group.GET("/methods", handler.Methods)

		staff := group.Group("", auth.RequireUserType(auth.UserTypeISP, auth.UserTypeFounder))
		staff.POST("/refunds", handler.Refund)
		staff.GET("/analytics", handler.Analytics)
	}
}

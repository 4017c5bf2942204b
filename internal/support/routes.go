package support

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Routes configures the helpdesk routes. Tenant access is checked per route.
func Routes(router *gin.RouterGroup, service *Service, logger *zap.Logger, authn gin.HandlerFunc) {
	handler := NewHandler(service, logger)

	group := router.Group("/support/:tenant_id", authn)
	{
		group.POST("/tickets", handler.CreateTicket)
		group.GET("/tickets", handler.ListTickets)
		group.PUT("/tickets/:ticket_id", handler.UpdateTicket)
		group.POST("/chatbot", handler.Chatbot)
		group.GET("/analytics", handler.Analytics)
		group.GET("/knowledge-base", handler.KnowledgeBase)
		group.POST("/knowledge-base", handler.CreateArticle)
	}
}

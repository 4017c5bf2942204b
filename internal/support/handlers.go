package support

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/astranetix/bms/common/apiutil"
	apperrors "github.com/astranetix/bms/common/errors"
)

// Handler provides HTTP handlers for the helpdesk
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new support handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// CreateTicket opens a ticket
// @Summary Create ticket
// @Tags Support
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param tenant_id path string true "Tenant ID"
// @Param request body TicketCreateRequest true "Ticket"
// @Success 200 {object} TicketResponse
// @Router /api/v1/support/{tenant_id}/tickets [post]
func (h *Handler) CreateTicket(c *gin.Context) {
	_, tenantID, ok := apiutil.TenantParam(c, "tenant_id")
	if !ok {
		return
	}
	var req TicketCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	var userID *uuid.UUID
	if req.UserID != "" {
		id := uuid.MustParse(req.UserID)
		userID = &id
	}
	ticket, err := h.service.CreateTicket(c.Request.Context(), tenantID, userID, &req)
	if err != nil {
		apiutil.RequestLogger(c, h.logger, "create_ticket").Error("Failed to create ticket", zap.Error(err))
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewTicketResponse(ticket))
}

// ListTickets lists tickets newest first
// @Summary List tickets
// @Tags Support
// @Produce json
// @Security BearerAuth
// @Param tenant_id path string true "Tenant ID"
// @Param status query string false "Status"
// @Param priority query string false "Priority"
// @Param limit query int false "Limit" default(50)
// @Success 200 {array} TicketResponse
// @Router /api/v1/support/{tenant_id}/tickets [get]
func (h *Handler) ListTickets(c *gin.Context) {
	_, tenantID, ok := apiutil.TenantParam(c, "tenant_id")
	if !ok {
		return
	}
	var f TicketFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.ListTickets(c.Request.Context(), tenantID, f)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateTicket changes a ticket
// @Summary Update ticket
// @Tags Support
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param tenant_id path string true "Tenant ID"
// @Param ticket_id path string true "Ticket ID"
// @Param request body TicketUpdateRequest true "Changes"
// @Success 200 {object} TicketResponse
// @Failure 404 {object} apperrors.ProblemDetails
// @Router /api/v1/support/{tenant_id}/tickets/{ticket_id} [put]
func (h *Handler) UpdateTicket(c *gin.Context) {
	_, tenantID, ok := apiutil.TenantParam(c, "tenant_id")
	if !ok {
		return
	}
	ticketID, ok := apiutil.UUIDParam(c, "ticket_id")
	if !ok {
		return
	}
	var req TicketUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.UpdateTicket(c.Request.Context(), tenantID, ticketID, &req)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Chatbot answers a support question
// @Summary Chatbot
// @Tags Support
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param tenant_id path string true "Tenant ID"
// @Param request body ChatbotRequest true "Question"
// @Success 200 {object} ChatbotResponse
// @Router /api/v1/support/{tenant_id}/chatbot [post]
func (h *Handler) Chatbot(c *gin.Context) {
	_, tenantID, ok := apiutil.TenantParam(c, "tenant_id")
	if !ok {
		return
	}
	var req ChatbotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.Chat(c.Request.Context(), tenantID, &req)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Analytics reports helpdesk KPIs
// @Summary Support analytics
// @Tags Support
// @Produce json
// @Security BearerAuth
// @Param tenant_id path string true "Tenant ID"
// @Param days_back query int false "Window in days" default(30)
// @Success 200 {object} AnalyticsResponse
// @Router /api/v1/support/{tenant_id}/analytics [get]
func (h *Handler) Analytics(c *gin.Context) {
	_, tenantID, ok := apiutil.TenantParam(c, "tenant_id")
	if !ok {
		return
	}
	days, ok := apiutil.IntQuery(c, "days_back", 30, 1, 365)
	if !ok {
		return
	}
	resp, err := h.service.Analytics(c.Request.Context(), tenantID, days)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// KnowledgeBase lists help articles
// @Summary Knowledge base
// @Tags Support
// @Produce json
// @Security BearerAuth
// @Param tenant_id path string true "Tenant ID"
// @Param category query string false "Category"
// @Param language query string false "Language" default(en)
// @Param q query string false "Search text"
// @Success 200 {array} ArticleResponse
// @Router /api/v1/support/{tenant_id}/knowledge-base [get]
func (h *Handler) KnowledgeBase(c *gin.Context) {
	_, tenantID, ok := apiutil.TenantParam(c, "tenant_id")
	if !ok {
		return
	}
	var f ArticleFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.ListArticles(c.Request.Context(), tenantID, f)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CreateArticle adds a tenant help article
// @Summary Create article
// @Tags Support
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param tenant_id path string true "Tenant ID"
// @Param request body ArticleCreateRequest true "Article"
// @Success 200 {object} ArticleResponse
// @Router /api/v1/support/{tenant_id}/knowledge-base [post]
func (h *Handler) CreateArticle(c *gin.Context) {
	_, tenantID, ok := apiutil.TenantParam(c, "tenant_id")
	if !ok {
		return
	}
	var req ArticleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.CreateArticle(c.Request.Context(), tenantID, &req)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

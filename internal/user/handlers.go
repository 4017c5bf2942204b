package user

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/astranetix/bms/common/apiutil"
	apperrors "github.com/astranetix/bms/common/errors"
	"github.com/astranetix/bms/internal/audit"
)

// Handler provides HTTP handlers for the subscriber portal
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new subscriber portal handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Dashboard returns the subscriber overview
// @Summary Subscriber dashboard
// @Tags User
// @Produce json
// @Security BearerAuth
// @Success 200 {object} DashboardResponse
// @Router /api/v1/user/dashboard [get]
func (h *Handler) Dashboard(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	resp, err := h.service.Dashboard(c.Request.Context(), p.ID)
	if err != nil {
		apiutil.RequestLogger(c, h.logger, "user_dashboard").Error("Failed to build dashboard", zap.Error(err))
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Usage returns daily traffic with alerts
// @Summary Subscriber usage
// @Tags User
// @Produce json
// @Security BearerAuth
// @Param days query int false "Days of history" default(30)
// @Success 200 {object} UsageResponse
// @Router /api/v1/user/usage [get]
func (h *Handler) Usage(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	days, ok := apiutil.IntQuery(c, "days", 30, 1, 365)
	if !ok {
		return
	}
	resp, err := h.service.Usage(c.Request.Context(), p.ID, days)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Payments returns the payment history
// @Summary Payment history
// @Tags User
// @Produce json
// @Security BearerAuth
// @Success 200 {object} PaymentHistoryResponse
// @Router /api/v1/user/payments [get]
func (h *Handler) Payments(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	resp, err := h.service.Payments(c.Request.Context(), p.ID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CreateTicket opens a ticket with the subscriber's ISP
// @Summary Create support ticket
// @Tags User
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body TicketCreateRequest true "Ticket"
// @Success 200 {object} TicketResponse
// @Router /api/v1/user/tickets [post]
func (h *Handler) CreateTicket(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	var req TicketCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.CreateTicket(c.Request.Context(), p.ID, &req)
	if err != nil {
		apiutil.RequestLogger(c, h.logger, "user_create_ticket").Error("Failed to create ticket", zap.Error(err))
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Tickets lists the subscriber's tickets
// @Summary List own tickets
// @Tags User
// @Produce json
// @Security BearerAuth
// @Success 200 {array} support.TicketResponse
// @Router /api/v1/user/tickets [get]
func (h *Handler) Tickets(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	resp, err := h.service.Tickets(c.Request.Context(), p.ID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UpgradePlan switches the subscriber's plan
// @Summary Upgrade plan
// @Tags User
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body PlanUpgradeRequest true "Plan"
// @Success 200 {object} PlanUpgradeResponse
// @Failure 404 {object} apperrors.ProblemDetails
// @Router /api/v1/user/plan/upgrade [post]
func (h *Handler) UpgradePlan(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	var req PlanUpgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.UpgradePlan(c.Request.Context(), p.ID, &req, audit.FromRequest(c, "", ""))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

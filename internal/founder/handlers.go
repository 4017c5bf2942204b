package founder

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/astranetix/bms/common/apiutil"
	apperrors "github.com/astranetix/bms/common/errors"
	"github.com/astranetix/bms/internal/audit"
)

// Handler provides HTTP handlers for the founder console
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new founder handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Dashboard returns platform totals for the founder
// @Summary Founder dashboard
// @Tags Founder
// @Produce json
// @Security BearerAuth
// @Success 200 {object} DashboardResponse
// @Failure 403 {object} apperrors.ProblemDetails
// @Router /api/v1/founder/dashboard [get]
func (h *Handler) Dashboard(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	resp, err := h.service.Dashboard(c.Request.Context(), p.ID)
	if err != nil {
		apiutil.RequestLogger(c, h.logger, "founder_dashboard").Error("Failed to build dashboard", zap.Error(err))
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CreateISP provisions a new ISP portal
// @Summary Create ISP
// @Tags Founder
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ISPCreateRequest true "ISP details"
// @Success 200 {object} ISPCreateResponse
// @Failure 400 {object} apperrors.ProblemDetails
// @Router /api/v1/founder/isp/create [post]
func (h *Handler) CreateISP(c *gin.Context) {
	logger := apiutil.RequestLogger(c, h.logger, "create_isp")
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}

	var req ISPCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}

	resp, err := h.service.CreateISP(c.Request.Context(), p.ID, &req, audit.FromRequest(c, "", ""))
	if err != nil {
		logger.Error("Failed to create ISP", zap.Error(err))
		apperrors.HandleError(c, err)
		return
	}
	logger.Info("ISP portal created", zap.String("isp_id", resp.ISPID), zap.String("domain", resp.Domain))
	c.JSON(http.StatusOK, resp)
}

// ListISPs lists the founder's ISPs
// @Summary List ISPs
// @Tags Founder
// @Produce json
// @Security BearerAuth
// @Success 200 {array} ISPListResponse
// @Router /api/v1/founder/isp/list [get]
func (h *Handler) ListISPs(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	resp, err := h.service.ListISPs(c.Request.Context(), p.ID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateGlobalPolicies merges system-wide policy groups
// @Summary Update global policies
// @Tags Founder
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body GlobalPoliciesRequest true "Policy groups"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/founder/policies/global [put]
func (h *Handler) UpdateGlobalPolicies(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	var req GlobalPoliciesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	policies, err := h.service.UpdateGlobalPolicies(c.Request.Context(), p.ID, &req, audit.FromRequest(c, "", ""))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Global policies updated successfully",
		"policies": policies,
	})
}

// RevenueAnalytics returns monthly revenue and a three month forecast
// @Summary Revenue analytics
// @Tags Founder
// @Produce json
// @Security BearerAuth
// @Success 200 {object} RevenueAnalyticsResponse
// @Router /api/v1/founder/revenue/analytics [get]
func (h *Handler) RevenueAnalytics(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	resp, err := h.service.RevenueAnalytics(c.Request.Context(), p.ID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SystemMonitoring returns a week of platform usage
// @Summary System monitoring
// @Tags Founder
// @Produce json
// @Security BearerAuth
// @Success 200 {object} SystemMonitoringResponse
// @Router /api/v1/founder/system/monitoring [get]
func (h *Handler) SystemMonitoring(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	resp, err := h.service.SystemMonitoring(c.Request.Context(), p.ID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

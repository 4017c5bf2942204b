package sustainability

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/astranetix/bms/common/apiutil"
	apperrors "github.com/astranetix/bms/common/errors"
)

type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Dashboard returns the 30-day energy overview
// @Summary Sustainability dashboard
// @Tags Sustainability
// @Produce json
// @Security BearerAuth
// @Param tenant_id path string true "Tenant ID"
// @Success 200 {object} DashboardResponse
// @Router /api/v1/sustainability/{tenant_id}/dashboard [get]
func (h *Handler) Dashboard(c *gin.Context) {
	_, tenantID, ok := apiutil.TenantParam(c, "tenant_id")
	if !ok {
		return
	}
	resp, err := h.service.Dashboard(c.Request.Context(), tenantID)
	if err != nil {
		apiutil.RequestLogger(c, h.logger, "sustainability_dashboard").Error("Failed to build dashboard", zap.Error(err))
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CreateMetric records an energy or emissions measurement
// @Summary Record metric
// @Tags Sustainability
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param tenant_id path string true "Tenant ID"
// @Param request body MetricCreateRequest true "Metric"
// @Success 200 {object} MetricResponse
// @Failure 400 {object} apperrors.ProblemDetails
// @Router /api/v1/sustainability/{tenant_id}/metrics [post]
func (h *Handler) CreateMetric(c *gin.Context) {
	p, tenantID, ok := apiutil.TenantParam(c, "tenant_id")
	if !ok {
		return
	}
	var req MetricCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	tenantType := ""
	if tenantID == p.ID {
		tenantType = p.UserType
	}
	metric, err := h.service.CreateMetric(c.Request.Context(), tenantID, tenantType, &req)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewMetricResponse(metric))
}

// ListMetrics lists recent metrics
// @Summary List metrics
// @Tags Sustainability
// @Produce json
// @Security BearerAuth
// @Param tenant_id path string true "Tenant ID"
// @Param days_back query int false "Window in days" default(30)
// @Param metric_type query string false "Metric type"
// @Success 200 {array} MetricResponse
// @Router /api/v1/sustainability/{tenant_id}/metrics [get]
func (h *Handler) ListMetrics(c *gin.Context) {
	_, tenantID, ok := apiutil.TenantParam(c, "tenant_id")
	if !ok {
		return
	}
	var f MetricFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.Metrics(c.Request.Context(), tenantID, f)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// PurchaseOffset buys carbon credits
// @Summary Purchase carbon offset
// @Tags Sustainability
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param tenant_id path string true "Tenant ID"
// @Param request body OffsetPurchaseRequest true "Purchase"
// @Success 200 {object} OffsetResponse
// @Failure 400 {object} apperrors.ProblemDetails
// @Router /api/v1/sustainability/{tenant_id}/carbon-offset [post]
func (h *Handler) PurchaseOffset(c *gin.Context) {
	_, tenantID, ok := apiutil.TenantParam(c, "tenant_id")
	if !ok {
		return
	}
	var req OffsetPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	offset, err := h.service.PurchaseOffset(c.Request.Context(), tenantID, &req)
	if err != nil {
		apiutil.RequestLogger(c, h.logger, "carbon_offset").Warn("Offset purchase rejected", zap.Error(err))
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewOffsetResponse(offset))
}

// Report summarises a period
// @Summary Sustainability report
// @Tags Sustainability
// @Produce json
// @Security BearerAuth
// @Param tenant_id path string true "Tenant ID"
// @Param period query string false "weekly, monthly, quarterly or yearly" default(monthly)
// @Success 200 {object} ReportResponse
// @Failure 400 {object} apperrors.ProblemDetails
// @Router /api/v1/sustainability/{tenant_id}/report [get]
func (h *Handler) Report(c *gin.Context) {
	_, tenantID, ok := apiutil.TenantParam(c, "tenant_id")
	if !ok {
		return
	}
	resp, err := h.service.Report(c.Request.Context(), tenantID, c.DefaultQuery("period", "monthly"))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

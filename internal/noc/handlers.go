package noc

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/astranetix/bms/common/apiutil"
	apperrors "github.com/astranetix/bms/common/errors"
)

// Handler provides HTTP handlers for the NOC
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new NOC handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Dashboard returns the tenant's NOC overview
// @Summary NOC dashboard
// @Tags NOC
// @Produce json
// @Security BearerAuth
// @Param tenant_id path string true "Tenant ID"
// @Success 200 {object} DashboardResponse
// @Failure 403 {object} apperrors.ProblemDetails
// @Router /api/v1/noc/{tenant_id}/dashboard [get]
func (h *Handler) Dashboard(c *gin.Context) {
	_, tenantID, ok := apiutil.TenantParam(c, "tenant_id")
	if !ok {
		return
	}
	resp, err := h.service.Dashboard(c.Request.Context(), tenantID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CreateAlert raises a network alert
// @Summary Create alert
// @Tags NOC
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param tenant_id path string true "Tenant ID"
// @Param request body AlertCreateRequest true "Alert"
// @Success 200 {object} AlertResponse
// @Failure 400 {object} apperrors.ProblemDetails
// @Router /api/v1/noc/{tenant_id}/alerts [post]
func (h *Handler) CreateAlert(c *gin.Context) {
	p, tenantID, ok := apiutil.TenantParam(c, "tenant_id")
	if !ok {
		return
	}
	var req AlertCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.CreateAlert(c.Request.Context(), tenantID, p.ID, &req)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Alerts lists alerts
// @Summary List alerts
// @Tags NOC
// @Produce json
// @Security BearerAuth
// @Param tenant_id path string true "Tenant ID"
// @Param status query string false "Status"
// @Param severity query string false "Severity"
// @Success 200 {array} AlertResponse
// @Router /api/v1/noc/{tenant_id}/alerts [get]
func (h *Handler) Alerts(c *gin.Context) {
	_, tenantID, ok := apiutil.TenantParam(c, "tenant_id")
	if !ok {
		return
	}
	var filter AlertFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.Alerts(c.Request.Context(), tenantID, filter)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// StreamAlerts upgrades to a websocket carrying new alerts
// @Summary Stream alerts
// @Tags NOC
// @Security BearerAuth
// @Param tenant_id path string true "Tenant ID"
// @Param token query string false "Access token"
// @Param since query int false "Replay alerts after this sequence number"
// @Success 101
// @Router /api/v1/noc/{tenant_id}/alerts/stream [get]
func (h *Handler) StreamAlerts(c *gin.Context) {
	p, tenantID, ok := apiutil.TenantParam(c, "tenant_id")
	if !ok {
		return
	}
	since, ok := apiutil.IntQuery(c, "since", 0, 0, 1<<31-1)
	if !ok {
		return
	}
	if h.service.hub == nil {
		apperrors.InternalServerError(c, "alert streaming is not enabled")
		return
	}
	log := apiutil.RequestLogger(c, h.logger, "stream_alerts")
	if err := h.service.hub.ServeWS(c.Writer, c.Request, p.ID.String(), AlertTopic(tenantID), uint64(since)); err != nil {
		// the upgrader has already written the error response
		log.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	log.Info("Alert stream opened", zap.String("tenant_id", tenantID.String()), zap.Int("since", since))
}

// ResolveAlert resolves an alert
// @Summary Resolve alert
// @Tags NOC
// @Produce json
// @Security BearerAuth
// @Param tenant_id path string true "Tenant ID"
// @Param alert_id path string true "Alert ID"
// @Success 200 {object} AlertResponse
// @Failure 404 {object} apperrors.ProblemDetails
// @Router /api/v1/noc/{tenant_id}/alerts/{alert_id}/resolve [put]
func (h *Handler) ResolveAlert(c *gin.Context) {
	_, tenantID, ok := apiutil.TenantParam(c, "tenant_id")
	if !ok {
		return
	}
	alertID, ok := apiutil.UUIDParam(c, "alert_id")
	if !ok {
		return
	}
	resp, err := h.service.ResolveAlert(c.Request.Context(), tenantID, alertID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Heartbeat records device liveness
// @Summary Device heartbeat
// @Tags NOC
// @Produce json
// @Security BearerAuth
// @Param tenant_id path string true "Tenant ID"
// @Param device_id path string true "Device ID"
// @Success 200 {object} HeartbeatResponse
// @Failure 404 {object} apperrors.ProblemDetails
// @Router /api/v1/noc/{tenant_id}/devices/{device_id}/heartbeat [post]
func (h *Handler) Heartbeat(c *gin.Context) {
	_, tenantID, ok := apiutil.TenantParam(c, "tenant_id")
	if !ok {
		return
	}
	deviceID, ok := apiutil.UUIDParam(c, "device_id")
	if !ok {
		return
	}
	resp, err := h.service.Heartbeat(c.Request.Context(), tenantID, deviceID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AnalyzeAudit scores the tenant's audit trail
// @Summary AI audit analysis
// @Tags NOC
// @Produce json
// @Security BearerAuth
// @Param tenant_id path string true "Tenant ID"
// @Param hours_back query int false "Window in hours" default(24)
// @Success 200 {object} AuditAnalysisResponse
// @Router /api/v1/noc/{tenant_id}/ai-audit [get]
func (h *Handler) AnalyzeAudit(c *gin.Context) {
	_, tenantID, ok := apiutil.TenantParam(c, "tenant_id")
	if !ok {
		return
	}
	hours, ok := apiutil.IntQuery(c, "hours_back", 24, 1, 24*90)
	if !ok {
		return
	}
	resp, err := h.service.AnalyzeAudit(c.Request.Context(), tenantID, hours)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	if resp.HighRiskActivities > 0 {
		apiutil.RequestLogger(c, h.logger, "ai_audit").Warn("High risk audit activity",
			zap.String("tenant_id", tenantID.String()),
			zap.Int("count", resp.HighRiskActivities))
	}
	c.JSON(http.StatusOK, resp)
}

// SLAs lists SLA definitions
// @Summary List SLAs
// @Tags NOC
// @Produce json
// @Security BearerAuth
// @Param tenant_id path string true "ISP ID"
// @Success 200 {array} SLAResponse
// @Router /api/v1/noc/{tenant_id}/sla [get]
func (h *Handler) SLAs(c *gin.Context) {
	_, ispID, ok := apiutil.OwnTenantParam(c, "tenant_id")
	if !ok {
		return
	}
	resp, err := h.service.SLAs(c.Request.Context(), ispID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CreateSLA defines an SLA
// @Summary Create SLA
// @Tags NOC
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param tenant_id path string true "ISP ID"
// @Param request body SLACreateRequest true "SLA"
// @Success 200 {object} SLAResponse
// @Router /api/v1/noc/{tenant_id}/sla [post]
func (h *Handler) CreateSLA(c *gin.Context) {
	_, ispID, ok := apiutil.OwnTenantParam(c, "tenant_id")
	if !ok {
		return
	}
	var req SLACreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.CreateSLA(c.Request.Context(), ispID, &req)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Compliance reports SLA compliance
// @Summary SLA compliance
// @Tags NOC
// @Produce json
// @Security BearerAuth
// @Param tenant_id path string true "ISP ID"
// @Param sla_id path string true "SLA ID"
// @Param days query int false "Period in days" default(30)
// @Success 200 {object} SLAComplianceReport
// @Failure 404 {object} apperrors.ProblemDetails
// @Router /api/v1/noc/{tenant_id}/sla/{sla_id}/compliance [get]
func (h *Handler) Compliance(c *gin.Context) {
	_, ispID, ok := apiutil.OwnTenantParam(c, "tenant_id")
	if !ok {
		return
	}
	slaID, ok := apiutil.UUIDParam(c, "sla_id")
	if !ok {
		return
	}
	days, ok := apiutil.IntQuery(c, "days", 30, 1, 365)
	if !ok {
		return
	}
	resp, err := h.service.Compliance(c.Request.Context(), ispID, slaID, days)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

package isp

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/astranetix/bms/api/responses"
	"github.com/astranetix/bms/common/apiutil"
	"github.com/astranetix/bms/common/dbutil"
	apperrors "github.com/astranetix/bms/common/errors"
	"github.com/astranetix/bms/internal/audit"
)

// Handler provides HTTP handlers for the ISP portal
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new ISP handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Dashboard returns the ISP overview
// @Summary ISP dashboard
// @Tags ISP
// @Produce json
// @Security BearerAuth
// @Success 200 {object} DashboardResponse
// @Router /api/v1/isp/dashboard [get]
func (h *Handler) Dashboard(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	resp, err := h.service.Dashboard(c.Request.Context(), p.ID)
	if err != nil {
		apiutil.RequestLogger(c, h.logger, "isp_dashboard").Error("Failed to build dashboard", zap.Error(err))
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CreateSubscriber adds a subscriber
// @Summary Create subscriber
// @Tags ISP
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SubscriberCreateRequest true "Subscriber"
// @Success 200 {object} SubscriberCreateResponse
// @Failure 404 {object} apperrors.ProblemDetails
// @Failure 409 {object} apperrors.ProblemDetails
// @Router /api/v1/isp/subscribers [post]
func (h *Handler) CreateSubscriber(c *gin.Context) {
	logger := apiutil.RequestLogger(c, h.logger, "create_subscriber")
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	var req SubscriberCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.CreateSubscriber(c.Request.Context(), p.ID, &req, audit.FromRequest(c, "", ""))
	if err != nil {
		logger.Warn("Failed to create subscriber", zap.Error(err))
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListSubscribers pages through the ISP's subscribers
// @Summary List subscribers
// @Tags ISP
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param branch_id query string false "Branch filter"
// @Param active query bool false "Active filter"
// @Success 200 {object} responses.PaginatedResponse
// @Router /api/v1/isp/subscribers [get]
func (h *Handler) ListSubscribers(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	var f SubscriberFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	f.Page, f.Limit = dbutil.NormalizePage(f.Page, f.Limit)
	items, total, err := h.service.ListSubscribers(c.Request.Context(), p.ID, f)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	responses.Paginated(c, items, responses.NewPaginationMeta(f.Page, f.Limit, total))
}

// UpdateSubscriberStatus suspends or reactivates a subscriber
// @Summary Update subscriber status
// @Tags ISP
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param user_id path string true "Subscriber ID"
// @Param request body SubscriberStatusRequest true "Status"
// @Success 200 {object} SubscriberListResponse
// @Router /api/v1/isp/subscribers/{user_id} [patch]
func (h *Handler) UpdateSubscriberStatus(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	userID, ok := apiutil.UUIDParam(c, "user_id")
	if !ok {
		return
	}
	var req SubscriberStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.SetSubscriberActive(c.Request.Context(), p.ID, userID, *req.IsActive, audit.FromRequest(c, "", ""))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	apiutil.RequestLogger(c, h.logger, "subscriber_status").Info("Subscriber status changed",
		zap.String("user_id", resp.ID), zap.Bool("is_active", resp.IsActive))
	c.JSON(http.StatusOK, resp)
}

// CreatePlan adds a subscription plan
// @Summary Create plan
// @Tags ISP
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body PlanCreateRequest true "Plan"
// @Success 200 {object} PlanResponse
// @Router /api/v1/isp/plans [post]
func (h *Handler) CreatePlan(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	var req PlanCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.CreatePlan(c.Request.Context(), p.ID, &req)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListPlans lists the ISP's plans
// @Summary List plans
// @Tags ISP
// @Produce json
// @Security BearerAuth
// @Success 200 {array} PlanResponse
// @Router /api/v1/isp/plans [get]
func (h *Handler) ListPlans(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	resp, err := h.service.ListPlans(c.Request.Context(), p.ID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ConfigureRadius stores RADIUS settings
// @Summary Configure RADIUS
// @Tags ISP
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RadiusConfigRequest true "RADIUS settings"
// @Success 200 {object} RadiusConfigResponse
// @Router /api/v1/isp/radius [put]
func (h *Handler) ConfigureRadius(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	var req RadiusConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.ConfigureRadius(c.Request.Context(), p.ID, &req, audit.FromRequest(c, "", ""))
	if err != nil {
		apiutil.RequestLogger(c, h.logger, "configure_radius").Error("Failed to configure RADIUS", zap.Error(err))
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateBranding replaces the portal branding
// @Summary Update branding
// @Tags ISP
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body map[string]interface{} true "Branding"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/isp/branding [put]
func (h *Handler) UpdateBranding(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	var req map[string]interface{}
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.UpdateBranding(c.Request.Context(), p.ID, req)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RegisterDevice adds a network device
// @Summary Register device
// @Tags ISP
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body DeviceCreateRequest true "Device"
// @Success 200 {object} DeviceResponse
// @Router /api/v1/isp/devices [post]
func (h *Handler) RegisterDevice(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	var req DeviceCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.RegisterDevice(c.Request.Context(), p.ID, &req, audit.FromRequest(c, "", ""))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// IngestUsage stores accounting records
// @Summary Ingest usage
// @Tags ISP
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UsageIngestRequest true "Usage records"
// @Success 200 {object} UsageIngestResponse
// @Router /api/v1/isp/usage [post]
func (h *Handler) IngestUsage(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	var req UsageIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.IngestUsage(c.Request.Context(), p.ID, &req)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// BandwidthOptimization analyses recent traffic
// @Summary Bandwidth optimization
// @Tags ISP
// @Produce json
// @Security BearerAuth
// @Success 200 {object} BandwidthOptimizationResponse
// @Router /api/v1/isp/bandwidth/optimization [get]
func (h *Handler) BandwidthOptimization(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	resp, err := h.service.BandwidthOptimization(c.Request.Context(), p.ID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SubscriberAnalytics reports subscriber growth and mix
// @Summary Subscriber analytics
// @Tags ISP
// @Produce json
// @Security BearerAuth
// @Success 200 {object} SubscriberAnalyticsResponse
// @Router /api/v1/isp/analytics/subscribers [get]
func (h *Handler) SubscriberAnalytics(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	resp, err := h.service.SubscriberAnalytics(c.Request.Context(), p.ID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

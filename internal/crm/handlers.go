package crm

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/astranetix/bms/common/apiutil"
	"github.com/astranetix/bms/common/auth"
	apperrors "github.com/astranetix/bms/common/errors"
)

// Handler provides HTTP handlers for CRM
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new CRM handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func campaignParams(c *gin.Context) (*auth.Principal, uuid.UUID, uuid.UUID, bool) {
	p, ispID, ok := apiutil.OwnTenantParam(c, "isp_id")
	if !ok {
		return nil, uuid.Nil, uuid.Nil, false
	}
	id, ok := apiutil.UUIDParam(c, "campaign_id")
	if !ok {
		return nil, uuid.Nil, uuid.Nil, false
	}
	return p, ispID, id, true
}

// Analytics summarises the subscriber base
// @Summary Customer analytics
// @Tags CRM
// @Produce json
// @Security BearerAuth
// @Param isp_id path string true "ISP ID"
// @Success 200 {object} CustomerAnalytics
// @Failure 403 {object} apperrors.ProblemDetails
// @Router /api/v1/crm/{isp_id}/analytics [get]
func (h *Handler) Analytics(c *gin.Context) {
	_, ispID, ok := apiutil.OwnTenantParam(c, "isp_id")
	if !ok {
		return
	}
	resp, err := h.service.Analytics(c.Request.Context(), ispID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CreateSegment defines a subscriber segment
// @Summary Create segment
// @Tags CRM
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param isp_id path string true "ISP ID"
// @Param request body SegmentCreateRequest true "Segment"
// @Success 200 {object} SegmentResponse
// @Failure 400 {object} apperrors.ProblemDetails
// @Router /api/v1/crm/{isp_id}/segments [post]
func (h *Handler) CreateSegment(c *gin.Context) {
	_, ispID, ok := apiutil.OwnTenantParam(c, "isp_id")
	if !ok {
		return
	}
	var req SegmentCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.CreateSegment(c.Request.Context(), ispID, &req)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Segments lists segments
// @Summary List segments
// @Tags CRM
// @Produce json
// @Security BearerAuth
// @Param isp_id path string true "ISP ID"
// @Success 200 {array} SegmentResponse
// @Router /api/v1/crm/{isp_id}/segments [get]
func (h *Handler) Segments(c *gin.Context) {
	_, ispID, ok := apiutil.OwnTenantParam(c, "isp_id")
	if !ok {
		return
	}
	resp, err := h.service.Segments(c.Request.Context(), ispID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CreateCampaign drafts a campaign
// @Summary Create campaign
// @Tags CRM
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param isp_id path string true "ISP ID"
// @Param request body CampaignCreateRequest true "Campaign"
// @Success 200 {object} CampaignResponse
// @Failure 400 {object} apperrors.ProblemDetails
// @Router /api/v1/crm/{isp_id}/campaigns [post]
func (h *Handler) CreateCampaign(c *gin.Context) {
	_, ispID, ok := apiutil.OwnTenantParam(c, "isp_id")
	if !ok {
		return
	}
	var req CampaignCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.CreateCampaign(c.Request.Context(), ispID, &req)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Campaigns lists campaigns
// @Summary List campaigns
// @Tags CRM
// @Produce json
// @Security BearerAuth
// @Param isp_id path string true "ISP ID"
// @Success 200 {array} CampaignResponse
// @Router /api/v1/crm/{isp_id}/campaigns [get]
func (h *Handler) Campaigns(c *gin.Context) {
	_, ispID, ok := apiutil.OwnTenantParam(c, "isp_id")
	if !ok {
		return
	}
	resp, err := h.service.Campaigns(c.Request.Context(), ispID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Launch sends a campaign
// @Summary Launch campaign
// @Tags CRM
// @Produce json
// @Security BearerAuth
// @Param isp_id path string true "ISP ID"
// @Param campaign_id path string true "Campaign ID"
// @Success 200 {object} CampaignMetrics
// @Failure 404 {object} apperrors.ProblemDetails
// @Failure 409 {object} apperrors.ProblemDetails
// @Router /api/v1/crm/{isp_id}/campaigns/{campaign_id}/launch [post]
func (h *Handler) Launch(c *gin.Context) {
	p, ispID, id, ok := campaignParams(c)
	if !ok {
		return
	}
	resp, err := h.service.Launch(c.Request.Context(), ispID, p.ID, id)
	if err != nil {
		apiutil.RequestLogger(c, h.logger, "launch_campaign").Warn("Campaign launch failed", zap.Error(err))
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RecordEvent counts an engagement event
// @Summary Record campaign event
// @Tags CRM
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param isp_id path string true "ISP ID"
// @Param campaign_id path string true "Campaign ID"
// @Param request body CampaignEventRequest true "Event"
// @Success 200 {object} CampaignMetrics
// @Router /api/v1/crm/{isp_id}/campaigns/{campaign_id}/events [post]
func (h *Handler) RecordEvent(c *gin.Context) {
	_, ispID, id, ok := campaignParams(c)
	if !ok {
		return
	}
	var req CampaignEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.RecordEvent(c.Request.Context(), ispID, id, &req)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Metrics returns campaign metrics
// @Summary Campaign metrics
// @Tags CRM
// @Produce json
// @Security BearerAuth
// @Param isp_id path string true "ISP ID"
// @Param campaign_id path string true "Campaign ID"
// @Success 200 {object} CampaignMetrics
// @Failure 404 {object} apperrors.ProblemDetails
// @Router /api/v1/crm/{isp_id}/campaigns/{campaign_id}/metrics [get]
func (h *Handler) Metrics(c *gin.Context) {
	_, ispID, id, ok := campaignParams(c)
	if !ok {
		return
	}
	resp, err := h.service.Metrics(c.Request.Context(), ispID, id)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

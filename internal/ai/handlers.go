package ai

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/astranetix/bms/common/apiutil"
	apperrors "github.com/astranetix/bms/common/errors"
)

// Handler provides HTTP handlers for the AI manager
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new AI handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// AnalyzeTraffic forecasts traffic for the caller's subscribers
// @Summary Analyze traffic
// @Tags AI
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body TrafficAnalysisRequest true "Period"
// @Success 200 {object} TrafficAnalysisResponse
// @Failure 400 {object} apperrors.ProblemDetails
// @Router /api/v1/ai/traffic/analyze [post]
func (h *Handler) AnalyzeTraffic(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	var req TrafficAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.AnalyzeTraffic(c.Request.Context(), p, &req)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// OptimizeQoS tiers subscribers by bandwidth pressure
// @Summary Optimize QoS
// @Tags AI
// @Produce json
// @Security BearerAuth
// @Success 200 {object} QoSOptimizationResponse
// @Router /api/v1/ai/qos/optimize [get]
func (h *Handler) OptimizeQoS(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	resp, err := h.service.OptimizeQoS(c.Request.Context(), p)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	apiutil.RequestLogger(c, h.logger, "optimize_qos").Info("QoS optimised",
		zap.Int("users", resp.TotalUsersAnalyzed),
		zap.Int("high_priority", resp.HighPriorityUsers))
	c.JSON(http.StatusOK, resp)
}

// PredictNetwork forecasts network demand
// @Summary Predict network demand
// @Tags AI
// @Produce json
// @Security BearerAuth
// @Param days_ahead query int false "Forecast horizon" minimum(1) maximum(90) default(7)
// @Success 200 {object} NetworkPredictionResponse
// @Router /api/v1/ai/network/predict [get]
func (h *Handler) PredictNetwork(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	days, ok := apiutil.IntQuery(c, "days_ahead", 7, 1, 90)
	if !ok {
		return
	}
	resp, err := h.service.PredictNetwork(c.Request.Context(), p, days)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// DetectAnomalies flags unusual subscriber traffic
// @Summary Detect anomalies
// @Tags AI
// @Produce json
// @Security BearerAuth
// @Param hours query int false "Window in hours" minimum(1) maximum(168) default(24)
// @Success 200 {object} AnomalyDetectionResponse
// @Router /api/v1/ai/anomalies [get]
func (h *Handler) DetectAnomalies(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	hours, ok := apiutil.IntQuery(c, "hours", 24, 1, 168)
	if !ok {
		return
	}
	resp, err := h.service.DetectAnomalies(c.Request.Context(), p, hours)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	if resp.HighSeverityCount > 0 {
		apiutil.RequestLogger(c, h.logger, "detect_anomalies").Warn("High severity anomalies detected",
			zap.Int("count", resp.HighSeverityCount))
	}
	c.JSON(http.StatusOK, resp)
}

// Insights lists stored analyses
// @Summary List insights
// @Tags AI
// @Produce json
// @Security BearerAuth
// @Param type query string false "Insight type"
// @Param limit query int false "Max results" default(20)
// @Success 200 {array} InsightResponse
// @Router /api/v1/ai/insights [get]
func (h *Handler) Insights(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	limit, ok := apiutil.IntQuery(c, "limit", 20, 1, 100)
	if !ok {
		return
	}
	resp, err := h.service.Insights(c.Request.Context(), p, c.Query("type"), limit)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Insight returns one stored analysis
// @Summary Get insight
// @Tags AI
// @Produce json
// @Security BearerAuth
// @Param insight_id path string true "Insight ID"
// @Success 200 {object} InsightResponse
// @Failure 404 {object} apperrors.ProblemDetails
// @Router /api/v1/ai/insights/{insight_id} [get]
func (h *Handler) Insight(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	id, ok := apiutil.UUIDParam(c, "insight_id")
	if !ok {
		return
	}
	resp, err := h.service.Insight(c.Request.Context(), p, id)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

package reporting

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/astranetix/bms/common/apiutil"
	apperrors "github.com/astranetix/bms/common/errors"
)

// Handler provides HTTP handlers for reporting
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new reporting handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Templates lists active report templates
// @Summary List report templates
// @Tags Reporting
// @Produce json
// @Security BearerAuth
// @Param isp_id path string true "ISP ID"
// @Success 200 {array} TemplateResponse
// @Failure 403 {object} apperrors.ProblemDetails
// @Router /api/v1/reporting/{isp_id}/templates [get]
func (h *Handler) Templates(c *gin.Context) {
	_, ispID, ok := apiutil.OwnTenantParam(c, "isp_id")
	if !ok {
		return
	}
	resp, err := h.service.Templates(c.Request.Context(), ispID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CreateTemplate stores a report template
// @Summary Create report template
// @Tags Reporting
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param isp_id path string true "ISP ID"
// @Param request body TemplateCreateRequest true "Template"
// @Success 200 {object} TemplateResponse
// @Failure 400 {object} apperrors.ProblemDetails
// @Router /api/v1/reporting/{isp_id}/templates [post]
func (h *Handler) CreateTemplate(c *gin.Context) {
	_, ispID, ok := apiutil.OwnTenantParam(c, "isp_id")
	if !ok {
		return
	}
	var req TemplateCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.CreateTemplate(c.Request.Context(), ispID, &req)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Generate renders a template into the artifact store
// @Summary Generate report
// @Tags Reporting
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param isp_id path string true "ISP ID"
// @Param request body GenerateRequest true "Generation"
// @Success 200 {object} GenerationResponse
// @Failure 400 {object} apperrors.ProblemDetails
// @Failure 404 {object} apperrors.ProblemDetails
// @Router /api/v1/reporting/{isp_id}/generate [post]
func (h *Handler) Generate(c *gin.Context) {
	p, ispID, ok := apiutil.OwnTenantParam(c, "isp_id")
	if !ok {
		return
	}
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.Generate(c.Request.Context(), ispID, p.ID, &req)
	if err != nil {
		apiutil.RequestLogger(c, h.logger, "generate_report").Warn("Report generation failed", zap.Error(err))
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Generations lists recent generations
// @Summary List report generations
// @Tags Reporting
// @Produce json
// @Security BearerAuth
// @Param isp_id path string true "ISP ID"
// @Success 200 {array} GenerationResponse
// @Router /api/v1/reporting/{isp_id}/generations [get]
func (h *Handler) Generations(c *gin.Context) {
	_, ispID, ok := apiutil.OwnTenantParam(c, "isp_id")
	if !ok {
		return
	}
	resp, err := h.service.Generations(c.Request.Context(), ispID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Download streams a generated report
// @Summary Download report
// @Tags Reporting
// @Produce octet-stream
// @Security BearerAuth
// @Param isp_id path string true "ISP ID"
// @Param generation_id path string true "Generation ID"
// @Success 200 {file} file
// @Failure 404 {object} apperrors.ProblemDetails
// @Failure 409 {object} apperrors.ProblemDetails
// @Router /api/v1/reporting/{isp_id}/generations/{generation_id}/download [get]
func (h *Handler) Download(c *gin.Context) {
	_, ispID, ok := apiutil.OwnTenantParam(c, "isp_id")
	if !ok {
		return
	}
	id, ok := apiutil.UUIDParam(c, "generation_id")
	if !ok {
		return
	}
	artifact, err := h.service.Download(c.Request.Context(), ispID, id)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+artifact.Name+`"`)
	c.Data(http.StatusOK, artifact.ContentType, artifact.Data)
}

// CustomReport runs an ad hoc report
// @Summary Custom report
// @Tags Reporting
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param isp_id path string true "ISP ID"
// @Param request body CustomReportRequest true "Report definition"
// @Success 200 {object} CustomReportResponse
// @Failure 400 {object} apperrors.ProblemDetails
// @Router /api/v1/reporting/{isp_id}/custom-report [post]
func (h *Handler) CustomReport(c *gin.Context) {
	_, ispID, ok := apiutil.OwnTenantParam(c, "isp_id")
	if !ok {
		return
	}
	var req CustomReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.CustomReport(c.Request.Context(), ispID, &req)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Compliance returns a framework assessment
// @Summary Compliance report
// @Tags Reporting
// @Produce json
// @Security BearerAuth
// @Param isp_id path string true "ISP ID"
// @Param report_type path string true "Framework (gdpr, pci, iso, sox)"
// @Success 200 {object} ComplianceReport
// @Router /api/v1/reporting/{isp_id}/compliance/{report_type} [get]
func (h *Handler) Compliance(c *gin.Context) {
	if _, _, ok := apiutil.OwnTenantParam(c, "isp_id"); !ok {
		return
	}
	c.JSON(http.StatusOK, h.service.Compliance(c.Param("report_type")))
}

// BIEndpoints lists the BI feeds
// @Summary BI endpoints
// @Tags Reporting
// @Produce json
// @Security BearerAuth
// @Param isp_id path string true "ISP ID"
// @Success 200 {array} BIEndpoint
// @Router /api/v1/reporting/{isp_id}/bi-endpoints [get]
func (h *Handler) BIEndpoints(c *gin.Context) {
	_, ispID, ok := apiutil.OwnTenantParam(c, "isp_id")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, BIEndpoints(ispID))
}

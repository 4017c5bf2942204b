package branch

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/astranetix/bms/common/apiutil"
	apperrors "github.com/astranetix/bms/common/errors"
	"github.com/astranetix/bms/internal/audit"
)

type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Create adds a branch to the caller's ISP
// @Summary Create branch
// @Tags Branch
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body BranchCreateRequest true "Branch"
// @Success 200 {object} BranchCreateResponse
// @Router /api/v1/branch [post]
func (h *Handler) Create(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	var req BranchCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.Create(c.Request.Context(), p.ID, &req, audit.FromRequest(c, "", ""))
	if err != nil {
		apiutil.RequestLogger(c, h.logger, "create_branch").Error("Failed to create branch", zap.Error(err))
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// List returns the ISP's branches
// @Summary List branches
// @Tags Branch
// @Produce json
// @Security BearerAuth
// @Success 200 {array} BranchListResponse
// @Router /api/v1/branch [get]
func (h *Handler) List(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	resp, err := h.service.List(c.Request.Context(), p.ID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Dashboard returns one branch's overview
// @Summary Branch dashboard
// @Tags Branch
// @Produce json
// @Security BearerAuth
// @Param branch_id path string true "Branch ID"
// @Success 200 {object} BranchDashboardResponse
// @Failure 404 {object} apperrors.ProblemDetails
// @Router /api/v1/branch/{branch_id}/dashboard [get]
func (h *Handler) Dashboard(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	branchID, ok := apiutil.UUIDParam(c, "branch_id")
	if !ok {
		return
	}
	resp, err := h.service.Dashboard(c.Request.Context(), p.ID, branchID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Users lists a branch's subscribers
// @Summary Branch users
// @Tags Branch
// @Produce json
// @Security BearerAuth
// @Param branch_id path string true "Branch ID"
// @Success 200 {array} BranchUserListResponse
// @Router /api/v1/branch/{branch_id}/users [get]
func (h *Handler) Users(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	branchID, ok := apiutil.UUIDParam(c, "branch_id")
	if !ok {
		return
	}
	resp, err := h.service.Users(c.Request.Context(), p.ID, branchID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Analytics scores a branch
// @Summary Branch analytics
// @Tags Branch
// @Produce json
// @Security BearerAuth
// @Param branch_id path string true "Branch ID"
// @Success 200 {object} BranchAnalyticsResponse
// @Router /api/v1/branch/{branch_id}/analytics [get]
func (h *Handler) Analytics(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	branchID, ok := apiutil.UUIDParam(c, "branch_id")
	if !ok {
		return
	}
	resp, err := h.service.Analytics(c.Request.Context(), p.ID, branchID)
	if err != nil {
		apiutil.RequestLogger(c, h.logger, "branch_analytics").Error("Failed to build analytics", zap.Error(err))
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

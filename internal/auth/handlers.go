package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/astranetix/bms/common/apiutil"
	apperrors "github.com/astranetix/bms/common/errors"
)

// Handler provides HTTP handlers for authentication
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new auth handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Login authenticates any account type
// @Summary Log in
// @Description Authenticates a founder, ISP or subscriber and returns a bearer token
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} LoginResponse
// @Failure 401 {object} apperrors.ProblemDetails
// @Failure 429 {object} apperrors.ProblemDetails
// @Router /api/v1/auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	logger := apiutil.RequestLogger(c, h.logger, "login")

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}

	resp, err := h.service.Login(c.Request.Context(), &req)
	if err != nil {
		logger.Info("Login rejected", zap.Error(err))
		apperrors.HandleError(c, err)
		return
	}

	logger.Info("Login succeeded", zap.String("user_id", resp.UserID), zap.String("user_type", resp.UserType))
	c.JSON(http.StatusOK, resp)
}

// RegisterFounder creates a founder account
// @Summary Register founder
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Founder details"
// @Success 200 {object} UserResponse
// @Failure 400 {object} apperrors.ProblemDetails
// @Router /api/v1/auth/register/founder [post]
func (h *Handler) RegisterFounder(c *gin.Context) {
	logger := apiutil.RequestLogger(c, h.logger, "register_founder")

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}

	resp, err := h.service.RegisterFounder(c.Request.Context(), &req)
	if err != nil {
		logger.Warn("Founder registration failed", zap.Error(err))
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Me returns the authenticated account
// @Summary Current account
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} UserResponse
// @Failure 401 {object} apperrors.ProblemDetails
// @Failure 404 {object} apperrors.ProblemDetails
// @Router /api/v1/auth/me [get]
func (h *Handler) Me(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	resp, err := h.service.Me(c.Request.Context(), p)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Logout revokes the presented token
// @Summary Log out
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string
// @Router /api/v1/auth/logout [post]
func (h *Handler) Logout(c *gin.Context) {
	logger := apiutil.RequestLogger(c, h.logger, "logout")
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	if err := h.service.Logout(c.Request.Context(), p); err != nil {
		logger.Error("Failed to revoke token", zap.Error(err))
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// SetupTOTP starts two-factor enrolment for a founder
// @Summary Start TOTP enrolment
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} TOTPSetupResponse
// @Router /api/v1/auth/totp/setup [post]
func (h *Handler) SetupTOTP(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	resp, err := h.service.SetupTOTP(c.Request.Context(), p.ID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type verifyTOTPRequest struct {
	Code string `json:"code" binding:"required,len=6,numeric"`
}

// VerifyTOTP completes two-factor enrolment
// @Summary Confirm TOTP enrolment
// @Tags Auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body verifyTOTPRequest true "Current code"
// @Success 200 {object} map[string]string
// @Failure 400 {object} apperrors.ProblemDetails
// @Router /api/v1/auth/totp/verify [post]
func (h *Handler) VerifyTOTP(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	var req verifyTOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	if err := h.service.VerifyTOTP(c.Request.Context(), p.ID, req.Code); err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Two-factor authentication enabled"})
}

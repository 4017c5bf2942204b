package payment

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/astranetix/bms/common/apiutil"
	apperrors "github.com/astranetix/bms/common/errors"
	"github.com/astranetix/bms/internal/audit"
)

// Handler provides HTTP handlers for payments
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new payment handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Process charges a subscriber
// @Summary Process payment
// @Tags Payment
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body PaymentRequest true "Payment"
// @Success 200 {object} PaymentResponse
// @Failure 400 {object} apperrors.ProblemDetails
// @Failure 403 {object} apperrors.ProblemDetails
// @Router /api/v1/payment/process [post]
func (h *Handler) Process(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.Process(c.Request.Context(), p, &req, audit.FromRequest(c, "", ""))
	if err != nil {
		apiutil.RequestLogger(c, h.logger, "process_payment").Warn("Payment rejected", zap.Error(err))
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CreateInvoice issues an invoice
// @Summary Generate invoice
// @Tags Payment
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body InvoiceRequest true "Invoice"
// @Success 200 {object} InvoiceResponse
// @Router /api/v1/payment/invoices [post]
func (h *Handler) CreateInvoice(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	var req InvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.CreateInvoice(c.Request.Context(), p, &req)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Invoice returns an issued invoice
// @Summary Get invoice
// @Tags Payment
// @Produce json
// @Security BearerAuth
// @Param invoice_id path string true "Invoice ID"
// @Success 200 {object} InvoiceResponse
// @Failure 404 {object} apperrors.ProblemDetails
// @Router /api/v1/payment/invoices/{invoice_id} [get]
func (h *Handler) Invoice(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	id, ok := apiutil.UUIDParam(c, "invoice_id")
	if !ok {
		return
	}
	resp, err := h.service.Invoice(c.Request.Context(), p, id)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Refund refunds a completed payment
// @Summary Refund payment
// @Tags Payment
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RefundRequest true "Refund"
// @Success 200 {object} RefundResponse
// @Failure 400 {object} apperrors.ProblemDetails
// @Router /api/v1/payment/refunds [post]
func (h *Handler) Refund(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BindingError(c, err)
		return
	}
	resp, err := h.service.Refund(c.Request.Context(), p, &req, audit.FromRequest(c, "", ""))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Analytics reports billing KPIs
// @Summary Billing analytics
// @Tags Payment
// @Produce json
// @Security BearerAuth
// @Success 200 {object} BillingAnalyticsResponse
// @Router /api/v1/payment/analytics [get]
func (h *Handler) Analytics(c *gin.Context) {
	p, ok := apiutil.Principal(c)
	if !ok {
		return
	}
	resp, err := h.service.Analytics(c.Request.Context(), p)
	if err != nil {
		apiutil.RequestLogger(c, h.logger, "billing_analytics").Error("Failed to build analytics", zap.Error(err))
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Methods lists the supported payment methods
// @Summary Payment methods
// @Tags Payment
// @Produce json
// @Security BearerAuth
// @Success 200 {array} MethodResponse
// @Router /api/v1/payment/methods [get]
func (h *Handler) Methods(c *gin.Context) {
	c.JSON(http.StatusOK, Methods())
}

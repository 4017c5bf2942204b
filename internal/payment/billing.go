package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/astranetix/bms/common/auth"
	"github.com/astranetix/bms/common/dbutil"
	"github.com/astranetix/bms/common/errors"
	"github.com/astranetix/bms/internal/audit"
	"github.com/astranetix/bms/internal/messaging"
	"github.com/astranetix/bms/internal/tenancy"
	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/pkg/stats"
)

type InvoiceRequest struct {
	UserID              string `json:"user_id" binding:"required,uuid"`
	BillingPeriodStart  string `json:"billing_period_start" binding:"required,datetime=2006-01-02"`
	BillingPeriodEnd    string `json:"billing_period_end" binding:"required,datetime=2006-01-02"`
	IncludeUsageDetails *bool  `json:"include_usage_details,omitempty"`
	Language            string `json:"language,omitempty" binding:"omitempty,len=2"`
	Currency            string `json:"currency,omitempty" binding:"omitempty,currency_code"`
}

type InvoiceResponse struct {
	InvoiceID   string                 `json:"invoice_id"`
	UserID      string                 `json:"user_id"`
	AmountDue   decimal.Decimal        `json:"amount_due"`
	Currency    string                 `json:"currency"`
	DueDate     string                 `json:"due_date"`
	Status      string                 `json:"status"`
	InvoiceData map[string]interface{} `json:"invoice_data"`
	DownloadURL string                 `json:"download_url"`
	PaymentURL  string                 `json:"payment_url"`
}

func invoiceResponse(inv *models.Invoice) *InvoiceResponse {
	id := inv.ID.String()
	return &InvoiceResponse{
		InvoiceID:   id,
		UserID:      inv.UserID.String(),
		AmountDue:   inv.AmountDue,
		Currency:    inv.Currency,
		DueDate:     inv.DueDate.Format("2006-01-02"),
		Status:      inv.Status,
		InvoiceData: inv.InvoiceData,
		DownloadURL: "/api/v1/payment/invoices/" + id,
		PaymentURL:  "/api/v1/payment/process?invoice_id=" + id,
	}
}

// CreateInvoice bills the subscriber's plan price for a period. The invoice is
// due fifteen days after the period ends.
func (s *Service) CreateInvoice(ctx context.Context, p *auth.Principal, req *InvoiceRequest) (*InvoiceResponse, error) {
	start, _ := time.Parse("2006-01-02", req.BillingPeriodStart)
	end, _ := time.Parse("2006-01-02", req.BillingPeriodEnd)
	if end.Before(start) {
		return nil, errors.Invalid.WithField("order", "billing_period_end", "billing_period_end must not precede billing_period_start")
	}
	u, err := s.payer(ctx, p, uuid.MustParse(req.UserID))
	if err != nil {
		return nil, err
	}
	plan, err := s.planOf(ctx, u)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, errors.Invalid.Explain("Subscriber has no subscription plan")
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = plan.Currency
	}
	language := req.Language
	if language == "" {
		language = "en"
	}
	amount := plan.Price.Round(2)
	data := models.JSONMap{
		"line_items": []map[string]interface{}{{
			"description": plan.Name + " subscription",
			"quantity":    1,
			"unit_price":  amount.StringFixed(2),
			"total":       amount.StringFixed(2),
		}},
		"subtotal":      amount.StringFixed(2),
		"plan":          plan.Name,
		"billing_cycle": plan.BillingCycle,
		"period_start":  req.BillingPeriodStart,
		"period_end":    req.BillingPeriodEnd,
		"language":      language,
	}
	if req.IncludeUsageDetails == nil || *req.IncludeUsageDetails {
		var total int64
		if err := s.db.WithContext(ctx).Model(&models.BandwidthUsage{}).
			Select("COALESCE(SUM(total_bytes),0)").
			Where("user_id = ? AND date >= ? AND date < ?", u.ID, start, end.AddDate(0, 0, 1)).
			Scan(&total).Error; err != nil {
			return nil, fmt.Errorf("failed to sum usage: %w", err)
		}
		data["usage_gb"] = stats.Round2(float64(total) / models.BytesPerGB)
	}

	inv := &models.Invoice{
		UserID:             u.ID,
		AmountDue:          amount,
		Currency:           currency,
		DueDate:            end.AddDate(0, 0, invoiceDueDays),
		BillingPeriodStart: start,
		BillingPeriodEnd:   end,
		InvoiceData:        data,
		Status:             "issued",
	}
	if err := s.db.WithContext(ctx).Create(inv).Error; err != nil {
		return nil, dbutil.WrapError(err)
	}
	s.logger.Info("Invoice issued",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("user_id", u.ID.String()),
		zap.String("amount_due", amount.StringFixed(2)))
	return invoiceResponse(inv), nil
}

// Invoice loads an invoice the principal may see.
func (s *Service) Invoice(ctx context.Context, p *auth.Principal, invoiceID uuid.UUID) (*InvoiceResponse, error) {
	inv, err := dbutil.FindExisting[models.Invoice](s.db.WithContext(ctx).Where("id = ?", invoiceID), "Invoice")
	if err != nil {
		return nil, err
	}
	if _, err := s.payer(ctx, p, inv.UserID); err != nil {
		if k := errors.KindOf(err); k == errors.KindForbidden || k == errors.KindNotFound {
			return nil, errors.NotFound.Explain("Invoice not found")
		}
		return nil, err
	}
	return invoiceResponse(inv), nil
}

type RefundRequest struct {
	PaymentID string           `json:"payment_id" binding:"required,uuid"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Reason    string           `json:"reason,omitempty" binding:"omitempty,max=255"`
	Notes     string           `json:"notes,omitempty" binding:"omitempty,max=2000"`
}

type RefundResponse struct {
	RefundID            string  `json:"refund_id"`
	Status              string  `json:"status"`
	Amount              float64 `json:"amount"`
	Currency            string  `json:"currency"`
	GatewayRefundID     string  `json:"gateway_refund_id"`
	Message             string  `json:"message"`
	EstimatedCompletion string  `json:"estimated_completion"`
}

// Refund returns part or all of a completed payment. The refunds of a
// payment never sum past its amount; the one that reaches it marks the
// payment refunded.
func (s *Service) Refund(ctx context.Context, p *auth.Principal, req *RefundRequest, entry audit.Entry) (*RefundResponse, error) {
	payment, err := dbutil.FindExisting[models.Payment](s.db.WithContext(ctx).
		Where("id = ? AND user_id IN (?)", req.PaymentID, tenancy.UsersOf(s.db, p.UserType, p.ID)), "Payment")
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentCompleted {
		return nil, errors.Invalid.Explain("Only completed payments can be refunded")
	}
	gateway, ok := s.gateways[payment.Gateway]
	if !ok {
		return nil, errors.Internal.Explain("gateway %s is not configured", payment.Gateway)
	}
	reason := req.Reason
	if reason == "" {
		reason = "requested_by_customer"
	}

	var refund *models.Refund
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The locked row serialises refunds of one payment.
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(payment, "id = ?", payment.ID).Error; err != nil {
			return dbutil.WrapError(err)
		}
		if payment.Status != models.PaymentCompleted {
			return errors.Invalid.Explain("Only completed payments can be refunded")
		}
		var amounts []decimal.Decimal
		if err := tx.Model(&models.Refund{}).Where("payment_id = ?", payment.ID).Pluck("amount", &amounts).Error; err != nil {
			return fmt.Errorf("failed to load refunds: %w", err)
		}
		refunded := decimal.Zero
		for _, a := range amounts {
			refunded = refunded.Add(a)
		}
		remaining := payment.Amount.Sub(refunded)

		amount := remaining
		if req.Amount != nil {
			amount = req.Amount.Round(2)
		}
		if !amount.IsPositive() {
			return errors.Invalid.WithField("gt", "amount", "amount must be greater than zero")
		}
		if amount.GreaterThan(remaining) {
			return errors.Invalid.Explain("Refund exceeds the refundable amount of %s", remaining.StringFixed(2))
		}

		gatewayRefundID, err := gateway.Refund(ctx, payment.GatewayTransactionID, amount)
		if err != nil {
			return err
		}
		refund = &models.Refund{
			PaymentID:       payment.ID,
			Amount:          amount,
			Currency:        payment.Currency,
			Reason:          reason,
			Notes:           req.Notes,
			Status:          models.PaymentCompleted,
			GatewayRefundID: gatewayRefundID,
		}
		if err := tx.Create(refund).Error; err != nil {
			return dbutil.WrapError(err)
		}
		if amount.Equal(remaining) {
			if err := tx.Model(payment).Update("status", models.PaymentRefunded).Error; err != nil {
				return fmt.Errorf("failed to mark payment refunded: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Emit(ctx, messaging.TopicPaymentRefunded, s.tenantOf(ctx, payment.UserID), p.ID.String(), map[string]interface{}{
		"payment_id": payment.ID.String(),
		"refund_id":  refund.ID.String(),
		"amount":     refund.Amount.StringFixed(2),
	})
	entry.Action = audit.ActionRefund
	entry.Resource = "payment"
	entry.NewValues = models.JSONMap{
		"payment_id": payment.ID.String(),
		"refund_id":  refund.ID.String(),
		"amount":     refund.Amount.StringFixed(2),
		"reason":     reason,
	}
	_ = s.audit.Record(ctx, entry)

	return &RefundResponse{
		RefundID:            refund.ID.String(),
		Status:              refund.Status,
		Amount:              refund.Amount.InexactFloat64(),
		Currency:            refund.Currency,
		GatewayRefundID:     refund.GatewayRefundID,
		Message:             "Refund processed successfully",
		EstimatedCompletion: "5-10 business days",
	}, nil
}

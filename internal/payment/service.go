// Package payment charges subscribers through the payment gateways and
// keeps invoices, refunds and billing analytics.
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

	"github.com/astranetix/bms/common/auth"
	"github.com/astranetix/bms/common/dbutil"
	"github.com/astranetix/bms/common/errors"
	"github.com/astranetix/bms/internal/audit"
	"github.com/astranetix/bms/internal/messaging"
	"github.com/astranetix/bms/internal/tenancy"
	"github.com/astranetix/bms/pkg/metrics"
	"github.com/astranetix/bms/pkg/models"
)

const (
	velocityWindow = time.Hour
	invoiceDueDays = 15
)

type Service struct {
	db        *gorm.DB
	logger    *zap.Logger
	publisher *messaging.Publisher
	audit     *audit.Service
	gateways  map[string]Gateway
	now       func() time.Time
}

// NewService creates the payment service. gateways replace the simulated
// processors of the same name.
func NewService(db *gorm.DB, logger *zap.Logger, publisher *messaging.Publisher, auditSvc *audit.Service, gateways ...Gateway) *Service {
	s := &Service{
		db:        db,
		logger:    logger,
		publisher: publisher,
		audit:     auditSvc,
		gateways:  make(map[string]Gateway),
		now:       tenancy.Now,
	}
	for _, g := range append(DefaultGateways(), gateways...) {
		s.gateways[g.Name()] = g
	}
	return s
}

// payer loads a subscriber the principal may bill: users only themselves,
// ISPs their own subscribers, founders any subscriber under them.
func (s *Service) payer(ctx context.Context, p *auth.Principal, userID uuid.UUID) (*models.User, error) {
	if p.UserType == auth.UserTypeUser && p.ID != userID {
		return nil, errors.Forbidden.Explain("Users may only pay for themselves")
	}
	q := s.db.WithContext(ctx).Where("id = ?", userID)
	if p.UserType != auth.UserTypeUser {
		q = q.Where("id IN (?)", tenancy.UsersOf(s.db, p.UserType, p.ID))
	}
	return dbutil.FindExisting[models.User](q, "User")
}

func (s *Service) planOf(ctx context.Context, u *models.User) (*models.SubscriptionPlan, error) {
	if u.PlanID == nil {
		return nil, nil
	}
	var plan models.SubscriptionPlan
	if err := s.db.WithContext(ctx).Where("id = ?", *u.PlanID).Limit(1).Find(&plan).Error; err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	if plan.ID == uuid.Nil {
		return nil, nil
	}
	return &plan, nil
}

// tenantOf resolves the ISP that owns userID, for event keys.
func (s *Service) tenantOf(ctx context.Context, userID uuid.UUID) string {
	var ids []uuid.UUID
	if err := s.db.WithContext(ctx).Model(&models.Branch{}).
		Joins("JOIN users ON users.branch_id = branches.id").
		Where("users.id = ?", userID).
		Pluck("branches.isp_id", &ids).Error; err != nil || len(ids) == 0 {
		s.logger.Warn("Failed to resolve tenant", zap.String("user_id", userID.String()), zap.Error(err))
		return ""
	}
	return ids[0].String()
}

type PaymentRequest struct {
	UserID             string                 `json:"user_id" binding:"required,uuid"`
	Amount             decimal.Decimal        `json:"amount"`
	Currency           string                 `json:"currency,omitempty" binding:"omitempty,currency_code"`
	PaymentMethodType  string                 `json:"payment_method_type" binding:"required,oneof=card bank_transfer wallet crypto"`
	PaymentMethodID    string                 `json:"payment_method_id" binding:"required,max=255"`
	BillingPeriodStart string                 `json:"billing_period_start,omitempty" binding:"omitempty,datetime=2006-01-02"`
	BillingPeriodEnd   string                 `json:"billing_period_end,omitempty" binding:"omitempty,datetime=2006-01-02"`
	Description        string                 `json:"description,omitempty" binding:"omitempty,max=500"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
}

type PaymentResponse struct {
	PaymentID       string                 `json:"payment_id"`
	Status          string                 `json:"status"`
	Message         string                 `json:"message"`
	TransactionID   *string                `json:"transaction_id"`
	Amount          decimal.Decimal        `json:"amount"`
	Currency        string                 `json:"currency"`
	GatewayUsed     string                 `json:"gateway_used"`
	FraudScore      float64                `json:"fraud_score"`
	GatewayResponse map[string]interface{} `json:"gateway_response,omitempty"`
}

func optionalDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil
	}
	return &t
}

// Process scores and charges a payment. Payments scoring above the block
// threshold are stored as blocked without reaching a gateway.
func (s *Service) Process(ctx context.Context, p *auth.Principal, req *PaymentRequest, entry audit.Entry) (*PaymentResponse, error) {
	if !req.Amount.IsPositive() {
		return nil, errors.Invalid.WithField("gt", "amount", "amount must be greater than zero")
	}
	if err := validateMethodID(req.PaymentMethodType, req.PaymentMethodID); err != nil {
		return nil, err
	}
	u, err := s.payer(ctx, p, uuid.MustParse(req.UserID))
	if err != nil {
		return nil, err
	}
	plan, err := s.planOf(ctx, u)
	if err != nil {
		return nil, err
	}
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "USD"
		if plan != nil && plan.Currency != "" {
			currency = plan.Currency
		}
	}
	gatewayName, ok := SelectGateway(req.PaymentMethodType, currency)
	if !ok {
		return nil, errors.Invalid.WithField("unsupported", "payment_method_type", "no gateway supports this payment method")
	}
	gateway, ok := s.gateways[gatewayName]
	if !ok {
		return nil, errors.Internal.Explain("gateway %s is not configured", gatewayName)
	}

	now := s.now()
	var recent int64
	if err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("user_id = ? AND created_at >= ?", u.ID, now.Add(-velocityWindow)).
		Count(&recent).Error; err != nil {
		return nil, fmt.Errorf("failed to count recent payments: %w", err)
	}
	signals := FraudSignals{
		Amount:         req.Amount,
		RecentPayments: recent,
		MethodType:     req.PaymentMethodType,
		UserActive:     u.IsActive,
		Currency:       currency,
	}
	if plan != nil {
		signals.PlanCurrency = plan.Currency
	}
	score := FraudScore(signals)

	invoice := models.JSONMap{}
	if req.Description != "" {
		invoice["description"] = req.Description
	}
	if len(req.Metadata) > 0 {
		invoice["metadata"] = req.Metadata
	}
	payment := &models.Payment{
		UserID:             u.ID,
		Amount:             req.Amount.Round(2),
		Currency:           currency,
		Gateway:            gatewayName,
		Status:             models.PaymentPending,
		PaymentMethodType:  req.PaymentMethodType,
		FraudScore:         score,
		BillingPeriodStart: optionalDate(req.BillingPeriodStart),
		BillingPeriodEnd:   optionalDate(req.BillingPeriodEnd),
		InvoiceData:        invoice,
	}
	resp := &PaymentResponse{
		Amount:      payment.Amount,
		Currency:    currency,
		GatewayUsed: gatewayName,
		FraudScore:  score,
	}

	topic := messaging.TopicPaymentCompleted
	if score > BlockThreshold {
		payment.Status = models.PaymentBlocked
		resp.Message = "Payment blocked due to high fraud risk"
		topic = messaging.TopicPaymentBlocked
		if err := s.db.WithContext(ctx).Create(payment).Error; err != nil {
			return nil, dbutil.WrapError(err)
		}
	} else {
		payment.ID = uuid.New()
		result, chargeErr := gateway.Charge(ctx, Charge{
			PaymentID: payment.ID,
			Amount:    payment.Amount,
			Currency:  currency,
			MethodID:  req.PaymentMethodID,
		})
		if chargeErr != nil {
			s.logger.Warn("Gateway charge failed",
				zap.String("gateway", gatewayName),
				zap.String("user_id", u.ID.String()),
				zap.Error(chargeErr))
			payment.Status = models.PaymentFailed
			resp.Message = "Payment failed at gateway"
			topic = ""
		} else {
			payment.Status = models.PaymentCompleted
			payment.GatewayTransactionID = result.TransactionID
			resp.Message = "Payment processed successfully"
			resp.TransactionID = &result.TransactionID
			resp.GatewayResponse = result.Response
		}
		if err := s.db.WithContext(ctx).Create(payment).Error; err != nil {
			return nil, dbutil.WrapError(err)
		}
	}
	resp.PaymentID = payment.ID.String()
	resp.Status = payment.Status
	metrics.PaymentsProcessed.WithLabelValues(gatewayName, payment.Status).Inc()

	s.logger.Info("Payment processed",
		zap.String("payment_id", resp.PaymentID),
		zap.String("user_id", u.ID.String()),
		zap.String("gateway", gatewayName),
		zap.String("status", payment.Status),
		zap.Float64("fraud_score", score))

	if topic != "" {
		s.publisher.Emit(ctx, topic, s.tenantOf(ctx, u.ID), p.ID.String(), map[string]interface{}{
			"payment_id":  resp.PaymentID,
			"user_id":     u.ID.String(),
			"amount":      payment.Amount.StringFixed(2),
			"currency":    currency,
			"gateway":     gatewayName,
			"fraud_score": score,
		})
	}

	entry.Action = audit.ActionPaymentProcess
	entry.Resource = "payment"
	entry.NewValues = models.JSONMap{
		"payment_id": resp.PaymentID,
		"amount":     payment.Amount.StringFixed(2),
		"status":     payment.Status,
	}
	_ = s.audit.Record(ctx, entry)
	return resp, nil
}

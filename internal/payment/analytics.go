package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/astranetix/bms/common/auth"
	"github.com/astranetix/bms/internal/tenancy"
	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/pkg/stats"
)

const analyticsMonths = 12

type BillingAnalyticsResponse struct {
	TotalRevenue         float64            `json:"total_revenue"`
	SuccessfulPayments   int                `json:"successful_payments"`
	FailedPayments       int                `json:"failed_payments"`
	PendingPayments      int                `json:"pending_payments"`
	AveragePaymentAmount float64            `json:"average_payment_amount"`
	PaymentSuccessRate   float64            `json:"payment_success_rate"`
	RevenueByGateway     map[string]float64 `json:"revenue_by_gateway"`
	MonthlyRevenueTrend  map[string]float64 `json:"monthly_revenue_trend"`
	ChurnRiskScore       float64            `json:"churn_risk_score"`
	CollectionEfficiency float64            `json:"collection_efficiency"`
	Recommendations      []string           `json:"recommendations"`
}

// Analytics summarises twelve months of payments of the principal's
// subscribers. Blocked payments count as failed.
func (s *Service) Analytics(ctx context.Context, p *auth.Principal) (*BillingAnalyticsResponse, error) {
	now := s.now()
	keys := tenancy.MonthKeys(now, analyticsMonths)
	since := tenancy.MonthStart(now).AddDate(0, -(analyticsMonths - 1), 0)

	var payments []models.Payment
	if err := s.db.WithContext(ctx).
		Where("user_id IN (?) AND created_at >= ?", tenancy.UsersOf(s.db, p.UserType, p.ID), since).
		Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}

	resp := &BillingAnalyticsResponse{
		RevenueByGateway:    map[string]float64{},
		MonthlyRevenueTrend: make(map[string]float64, len(keys)),
	}
	for _, k := range keys {
		resp.MonthlyRevenueTrend[k] = 0
	}
	revenue, pending := decimal.Zero, decimal.Zero
	byGateway := map[string]decimal.Decimal{}
	byMonth := map[string]decimal.Decimal{}
	for _, pay := range payments {
		switch pay.Status {
		case models.PaymentCompleted:
			resp.SuccessfulPayments++
			revenue = revenue.Add(pay.Amount)
			byGateway[pay.Gateway] = byGateway[pay.Gateway].Add(pay.Amount)
			month := pay.CreatedAt.UTC().Format("2006-01")
			byMonth[month] = byMonth[month].Add(pay.Amount)
		case models.PaymentFailed, models.PaymentBlocked:
			resp.FailedPayments++
		case models.PaymentPending:
			resp.PendingPayments++
			pending = pending.Add(pay.Amount)
		}
	}
	for g, amt := range byGateway {
		resp.RevenueByGateway[g] = stats.Round2(amt.InexactFloat64())
	}
	for _, k := range keys {
		resp.MonthlyRevenueTrend[k] = stats.Round2(byMonth[k].InexactFloat64())
	}

	total := float64(len(payments))
	rev := revenue.InexactFloat64()
	resp.TotalRevenue = stats.Round2(rev)
	resp.AveragePaymentAmount = stats.Round2(stats.Ratio(rev, float64(resp.SuccessfulPayments)))
	resp.PaymentSuccessRate = stats.Percent(float64(resp.SuccessfulPayments), total)
	resp.ChurnRiskScore = stats.Round2(stats.Ratio(float64(resp.FailedPayments), total))
	resp.CollectionEfficiency = stats.Percent(rev, rev+pending.InexactFloat64())
	resp.Recommendations = billingAdvice(resp)
	return resp, nil
}

func billingAdvice(r *BillingAnalyticsResponse) []string {
	var out []string
	if r.SuccessfulPayments+r.FailedPayments+r.PendingPayments == 0 {
		return []string{"No payments recorded yet. Enable automatic billing to start collecting revenue."}
	}
	if r.PaymentSuccessRate < 90 {
		out = append(out, "Payment success rate is below 90%. Offer additional payment methods and retry failed charges.")
	}
	if r.ChurnRiskScore > 0.1 {
		out = append(out, "Failed payments signal churn risk. Contact affected subscribers before suspension.")
	}
	if r.CollectionEfficiency < 85 {
		out = append(out, "Many payments are pending. Send reminders and enable auto-pay.")
	}
	if len(r.RevenueByGateway) == 1 {
		out = append(out, "All revenue flows through one gateway. Add a second gateway for redundancy.")
	}
	if len(out) == 0 {
		out = append(out, "Billing performance is healthy.")
	}
	return out
}

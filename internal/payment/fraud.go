package payment

import (
	"github.com/shopspring/decimal"

	"github.com/astranetix/bms/pkg/stats"
)

// BlockThreshold is the fraud score above which a payment is refused.
const BlockThreshold = 0.8

var largeAmount = decimal.NewFromInt(1000)

// FraudSignals are the facts a payment is scored on.
type FraudSignals struct {
	Amount         decimal.Decimal
	RecentPayments int64
	MethodType     string
	UserActive     bool
	Currency       string
	PlanCurrency   string
}

// FraudScore adds a weight per risk signal on top of a base score and caps
// the total at 1.
func FraudScore(s FraudSignals) float64 {
	score := 0.05
	if s.Amount.GreaterThan(largeAmount) {
		score += 0.3
	}
	if s.RecentPayments > 3 {
		score += 0.2
	}
	if s.MethodType == MethodCrypto {
		score += 0.2
	}
	if !s.UserActive {
		score += 0.15
	}
	if s.PlanCurrency != "" && s.Currency != s.PlanCurrency {
		score += 0.1
	}
	return stats.Round2(stats.Clamp(score, 0, 1))
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment statuses.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
	PaymentBlocked   = "blocked"
	PaymentRefunded  = "refunded"
)

// Payment is a single charge against a subscriber.
type Payment struct {
	Base
	UserID               uuid.UUID       `json:"user_id" gorm:"type:uuid;index;not null"`
	Amount               decimal.Decimal `json:"amount" gorm:"type:decimal(10,2);not null"`
	Currency             string          `json:"currency" gorm:"size:3;default:USD"`
	Gateway              string          `json:"gateway" gorm:"size:50;not null"`
	GatewayTransactionID string          `json:"gateway_transaction_id,omitempty" gorm:"size:255;index"`
	Status               string          `json:"status" gorm:"size:20;index;default:pending"`
	PaymentMethodType    string          `json:"payment_method_type,omitempty" gorm:"size:30"`
	FraudScore           float64         `json:"fraud_score"`
	BillingPeriodStart   *time.Time      `json:"billing_period_start,omitempty"`
	BillingPeriodEnd     *time.Time      `json:"billing_period_end,omitempty"`
	InvoiceData          JSONMap         `json:"invoice_data"`

	Refunds []Refund `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

func (Payment) TableName() string { return "payments" }

// Refund returns part or all of a completed payment.
type Refund struct {
	Base
	PaymentID       uuid.UUID       `json:"payment_id" gorm:"type:uuid;index;not null"`
	Amount          decimal.Decimal `json:"amount" gorm:"type:decimal(10,2);not null"`
	Currency        string          `json:"currency" gorm:"size:3"`
	Reason          string          `json:"reason" gorm:"size:255;not null"`
	Notes           string          `json:"notes,omitempty" gorm:"type:text"`
	Status          string          `json:"status" gorm:"size:20;default:processed"`
	GatewayRefundID string          `json:"gateway_refund_id,omitempty" gorm:"size:255"`
}

func (Refund) TableName() string { return "refunds" }

// Invoice is a billing statement for one subscriber period.
type Invoice struct {
	Base
	UserID             uuid.UUID       `json:"user_id" gorm:"type:uuid;index;not null"`
	AmountDue          decimal.Decimal `json:"amount_due" gorm:"type:decimal(10,2);not null"`
	Currency           string          `json:"currency" gorm:"size:3;default:USD"`
	DueDate            time.Time       `json:"due_date"`
	BillingPeriodStart time.Time       `json:"billing_period_start"`
	BillingPeriodEnd   time.Time       `json:"billing_period_end"`
	InvoiceData        JSONMap         `json:"invoice_data"`
	Status             string          `json:"status" gorm:"size:20;default:issued"`
}

func (Invoice) TableName() string { return "invoices" }

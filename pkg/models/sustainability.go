package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SustainabilityMetric is one energy or emissions measurement.
type SustainabilityMetric struct {
	Base
	TenantID    uuid.UUID  `json:"tenant_id" gorm:"type:uuid;index;not null"`
	TenantType  string     `json:"tenant_type" gorm:"size:20;not null"`
	MetricType  string     `json:"metric_type" gorm:"size:50;index;not null"`
	Value       float64    `json:"value" gorm:"not null"`
	Unit        string     `json:"unit" gorm:"size:20;not null"`
	PeriodStart time.Time  `json:"period_start" gorm:"index"`
	PeriodEnd   time.Time  `json:"period_end"`
	DeviceID    *uuid.UUID `json:"device_id,omitempty" gorm:"type:uuid"`
	Location    string     `json:"location,omitempty" gorm:"size:255"`
	Metadata    JSONMap    `json:"metadata"`
}

func (SustainabilityMetric) TableName() string { return "sustainability_metrics" }

// CarbonOffset is a purchased carbon credit.
type CarbonOffset struct {
	Base
	TenantID       uuid.UUID       `json:"tenant_id" gorm:"type:uuid;index;not null"`
	AmountCO2      float64         `json:"amount_co2" gorm:"column:amount_co2;not null"`
	PricePerKg     decimal.Decimal `json:"price_per_kg" gorm:"type:decimal(10,4);not null"`
	TotalCost      decimal.Decimal `json:"total_cost" gorm:"type:decimal(12,2);not null"`
	Provider       string          `json:"provider" gorm:"size:255;not null"`
	CertificateID  string          `json:"certificate_id" gorm:"size:255"`
	ProjectDetails JSONMap         `json:"project_details"`
	Status         string          `json:"status" gorm:"size:20;default:completed"`
}

func (CarbonOffset) TableName() string { return "carbon_offsets" }

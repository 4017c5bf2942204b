package models

import (
	"time"

	"github.com/google/uuid"
)

// BytesPerGB converts byte counters to gigabytes.
const BytesPerGB = 1024 * 1024 * 1024

// BandwidthUsage is one subscriber's traffic for a day.
type BandwidthUsage struct {
	Base
	UserID        uuid.UUID `json:"user_id" gorm:"type:uuid;index;not null"`
	Date          time.Time `json:"date" gorm:"index;not null"`
	UploadBytes   int64     `json:"upload_bytes"`
	DownloadBytes int64     `json:"download_bytes"`
	TotalBytes    int64     `json:"total_bytes"`
	PeakUsageMbps float64   `json:"peak_usage_mbps"`
	PeakHour      int       `json:"peak_hour"`
}

func (BandwidthUsage) TableName() string { return "bandwidth_usage" }

// AIInsight records the output of an analysis run for later review.
type AIInsight struct {
	Base
	TenantID        uuid.UUID `json:"tenant_id" gorm:"type:uuid;index;not null"`
	TenantType      string    `json:"tenant_type" gorm:"size:20;not null"`
	InsightType     string    `json:"insight_type" gorm:"size:50;not null"`
	Data            JSONMap   `json:"data"`
	ConfidenceScore float64   `json:"confidence_score"`
}

func (AIInsight) TableName() string { return "ai_insights" }

package models

import (
	"time"

	"github.com/google/uuid"
)

// CustomerSegment is a named subscriber filter owned by an ISP.
type CustomerSegment struct {
	Base
	ISPID           uuid.UUID `json:"isp_id" gorm:"column:isp_id;type:uuid;index;not null"`
	Name            string    `json:"name" gorm:"size:255;not null"`
	Criteria        JSONMap   `json:"criteria"`
	Description     string    `json:"description,omitempty" gorm:"type:text"`
	AutoUpdate      bool      `json:"auto_update" gorm:"not null"`
	SubscriberCount int       `json:"subscriber_count"`
}

func (CustomerSegment) TableName() string { return "customer_segments" }

// Campaign statuses.
const (
	CampaignDraft = "draft"
	CampaignReady = "ready"
	CampaignSent  = "sent"
)

// MarketingCampaign is an outbound message sent to one or more segments.
type MarketingCampaign struct {
	Base
	ISPID          uuid.UUID  `json:"isp_id" gorm:"column:isp_id;type:uuid;index;not null"`
	Name           string     `json:"name" gorm:"size:255;not null"`
	CampaignType   string     `json:"campaign_type" gorm:"size:20;not null"`
	Status         string     `json:"status" gorm:"size:20;default:draft"`
	TargetSegments StringList `json:"target_segments"`
	Content        JSONMap    `json:"content"`
	ScheduledAt    *time.Time `json:"scheduled_at,omitempty"`
	Metrics        JSONMap    `json:"metrics"`
}

func (MarketingCampaign) TableName() string { return "marketing_campaigns" }

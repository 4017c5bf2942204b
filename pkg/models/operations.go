package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Alert severities and ticket priorities share one vocabulary.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
	StatusClosed     = "closed"
)

// NetworkAlert is an operational event raised against a tenant.
type NetworkAlert struct {
	Base
	TenantID     uuid.UUID  `json:"tenant_id" gorm:"type:uuid;index;not null"`
	TenantType   string     `json:"tenant_type" gorm:"size:20;not null"`
	AlertType    string     `json:"alert_type" gorm:"size:50;not null"`
	Severity     string     `json:"severity" gorm:"size:20;index;not null"`
	Title        string     `json:"title" gorm:"size:255;not null"`
	Description  string     `json:"description" gorm:"type:text"`
	Source       string     `json:"source" gorm:"size:100"`
	Status       string     `json:"status" gorm:"size:20;index;default:open"`
	Escalated    bool       `json:"escalated"`
	AutoResolved bool       `json:"auto_resolved"`
	Metadata     JSONMap    `json:"metadata"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

func (NetworkAlert) TableName() string { return "network_alerts" }

// SLADefinition holds the service targets an ISP commits to.
type SLADefinition struct {
	Base
	ISPID                uuid.UUID `json:"isp_id" gorm:"column:isp_id;type:uuid;index;not null"`
	Name                 string    `json:"name" gorm:"size:255;not null"`
	Description          string    `json:"description,omitempty" gorm:"type:text"`
	UptimeTarget         float64   `json:"uptime_target" gorm:"default:0.999"`
	ResponseTimeTarget   int       `json:"response_time_target"`
	ResolutionTimeTarget int       `json:"resolution_time_target"`
	BandwidthGuarantee   float64   `json:"bandwidth_guarantee"`
	Penalties            JSONMap   `json:"penalties"`
	IsActive             bool      `json:"is_active" gorm:"not null"`
}

func (SLADefinition) TableName() string { return "sla_definitions" }

// AuditLog is an append-only record of a state-changing action.
type AuditLog struct {
	ID         uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	CreatedAt  time.Time  `json:"created_at" gorm:"index"`
	UserID     *uuid.UUID `json:"user_id,omitempty" gorm:"type:uuid;index"`
	TenantID   *uuid.UUID `json:"tenant_id,omitempty" gorm:"type:uuid;index"`
	TenantType string     `json:"tenant_type,omitempty" gorm:"size:20"`
	Action     string     `json:"action" gorm:"size:100;not null"`
	Resource   string     `json:"resource" gorm:"size:100;not null"`
	OldValues  JSONMap    `json:"old_values"`
	NewValues  JSONMap    `json:"new_values"`
	IPAddress  string     `json:"ip_address,omitempty" gorm:"size:45"`
	UserAgent  string     `json:"user_agent,omitempty" gorm:"type:text"`
}

func (AuditLog) TableName() string { return "audit_logs" }

func (a *AuditLog) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// SupportTicket is a customer issue raised against a tenant.
type SupportTicket struct {
	Base
	TenantID           uuid.UUID  `json:"tenant_id" gorm:"type:uuid;index;not null"`
	UserID             *uuid.UUID `json:"user_id,omitempty" gorm:"type:uuid;index"`
	Title              string     `json:"title" gorm:"size:255;not null"`
	Description        string     `json:"description" gorm:"type:text;not null"`
	Category           string     `json:"category" gorm:"size:50;default:general"`
	Priority           string     `json:"priority" gorm:"size:20;default:medium"`
	Status             string     `json:"status" gorm:"size:20;index;default:open"`
	AssignedTo         *uuid.UUID `json:"assigned_to,omitempty" gorm:"type:uuid"`
	SLADeadline        *time.Time `json:"sla_deadline,omitempty" gorm:"column:sla_deadline"`
	ResolvedAt         *time.Time `json:"resolved_at,omitempty"`
	SatisfactionRating *int       `json:"satisfaction_rating,omitempty"`
}

func (SupportTicket) TableName() string { return "support_tickets" }

// KnowledgeBaseArticle is a help article. A nil TenantID makes it global.
type KnowledgeBaseArticle struct {
	Base
	TenantID     *uuid.UUID `json:"tenant_id,omitempty" gorm:"type:uuid;index"`
	Slug         string     `json:"slug" gorm:"size:100;index;not null"`
	Title        string     `json:"title" gorm:"size:255;not null"`
	Content      string     `json:"content" gorm:"type:text;not null"`
	Category     string     `json:"category" gorm:"size:50;index"`
	Tags         StringList `json:"tags"`
	Views        int        `json:"views"`
	HelpfulVotes int        `json:"helpful_votes"`
	IsPublic     bool       `json:"is_public" gorm:"not null"`
	Language     string     `json:"language" gorm:"size:8;default:en"`
}

func (KnowledgeBaseArticle) TableName() string { return "knowledge_base_articles" }

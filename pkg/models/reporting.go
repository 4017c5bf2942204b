package models

import (
	"time"

	"github.com/google/uuid"
)

// Report generation statuses.
const (
	ReportGenerating = "generating"
	ReportCompleted  = "completed"
	ReportFailed     = "failed"
)

// ReportTemplate describes a report an ISP can generate on demand.
type ReportTemplate struct {
	Base
	ISPID       uuid.UUID `json:"isp_id" gorm:"column:isp_id;type:uuid;index;not null"`
	Name        string    `json:"name" gorm:"size:255;not null"`
	Description string    `json:"description,omitempty" gorm:"type:text"`
	ReportType  string    `json:"report_type" gorm:"size:50;not null"`
	Config      JSONMap   `json:"config"`
	Schedule    JSONMap   `json:"schedule"`
	IsActive    bool      `json:"is_active" gorm:"not null"`

	Generations []ReportGeneration `json:"-" gorm:"foreignKey:TemplateID;constraint:OnDelete:CASCADE"`
}

func (ReportTemplate) TableName() string { return "report_templates" }

// ReportGeneration is one run of a template.
type ReportGeneration struct {
	Base
	TemplateID   uuid.UUID  `json:"template_id" gorm:"type:uuid;index;not null"`
	GeneratedBy  uuid.UUID  `json:"generated_by" gorm:"type:uuid;not null"`
	FilePath     string     `json:"file_path,omitempty" gorm:"size:500"`
	FileFormat   string     `json:"file_format" gorm:"size:10;not null"`
	Status       string     `json:"status" gorm:"size:20;default:generating"`
	Parameters   JSONMap    `json:"parameters"`
	ErrorMessage string     `json:"error_message,omitempty" gorm:"type:text"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

func (ReportGeneration) TableName() string { return "report_generations" }

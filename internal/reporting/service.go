// Package reporting builds ISP reports: template-driven generations rendered
// to csv, json or yaml and kept in the artifact store, ad hoc custom reports
// over whitelisted tables, canned compliance summaries and BI descriptors.
package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/astranetix/bms/common/dbutil"
	"github.com/astranetix/bms/common/errors"
	"github.com/astranetix/bms/internal/messaging"
	"github.com/astranetix/bms/internal/reporting/store"
	"github.com/astranetix/bms/internal/tenancy"
	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/pkg/validation"
)

// Report types.
const (
	TypeUsage      = "usage"
	TypeBilling    = "billing"
	TypeNetwork    = "network"
	TypeCompliance = "compliance"
)

// Service implements the reporting operations.
type Service struct {
	db        *gorm.DB
	logger    *zap.Logger
	artifacts *store.ArtifactStore
	publisher *messaging.Publisher
	sanitizer *validation.Validator
	now       func() time.Time
}

func NewService(db *gorm.DB, logger *zap.Logger, artifacts *store.ArtifactStore, publisher *messaging.Publisher) *Service {
	return &Service{
		db:        db,
		logger:    logger,
		artifacts: artifacts,
		publisher: publisher,
		sanitizer: validation.NewValidator(logger),
		now:       tenancy.Now,
	}
}

// Schedule is the decoded schedule of a template. Templates without a cron
// expression only generate on demand.
type Schedule struct {
	Cron       string
	Format     string
	Parameters map[string]interface{}
	next       cron.Schedule
}

// Next returns the first run strictly after t.
func (s Schedule) Next(t time.Time) time.Time {
	return s.next.Next(t)
}

// ParseSchedule validates a template schedule of the form
// {"cron": "0 6 * * 1", "format": "csv", "parameters": {...}}. A nil or
// empty map yields a nil schedule.
func ParseSchedule(raw map[string]interface{}) (*Schedule, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	expr, ok := raw["cron"].(string)
	if !ok || expr == "" {
		return nil, errors.Invalid.Explain("schedule requires a cron expression").
			WithField("schedule", "schedule.cron", "must be a non-empty string")
	}
	parsed, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, errors.Invalid.Explain("invalid cron expression %q", expr).
			WithField("schedule", "schedule.cron", err.Error())
	}
	sched := &Schedule{Cron: expr, Format: FormatCSV, next: parsed}
	if v, present := raw["format"]; present {
		format, ok := v.(string)
		if !ok || !validFormat(format) {
			return nil, errors.Invalid.Explain("unsupported schedule format").
				WithField("schedule", "schedule.format", "must be one of csv json yaml")
		}
		sched.Format = format
	}
	if v, present := raw["parameters"]; present {
		params, ok := v.(map[string]interface{})
		if !ok {
			return nil, errors.Invalid.Explain("schedule parameters must be an object").
				WithField("schedule", "schedule.parameters", "must be an object")
		}
		sched.Parameters = params
	}
	return sched, nil
}

type TemplateCreateRequest struct {
	Name        string                 `json:"name" binding:"required,max=255"`
	Description string                 `json:"description,omitempty"`
	ReportType  string                 `json:"report_type" binding:"required,oneof=usage billing network compliance"`
	Config      map[string]interface{} `json:"config" binding:"required"`
	Schedule    map[string]interface{} `json:"schedule,omitempty"`
}

type TemplateResponse struct {
	ID          string                 `json:"id"`
	ISPID       string                 `json:"isp_id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	ReportType  string                 `json:"report_type"`
	Config      map[string]interface{} `json:"config"`
	Schedule    map[string]interface{} `json:"schedule"`
	IsActive    bool                   `json:"is_active"`
	CreatedAt   time.Time              `json:"created_at"`
}

func newTemplateResponse(t *models.ReportTemplate) TemplateResponse {
	return TemplateResponse{
		ID:          t.ID.String(),
		ISPID:       t.ISPID.String(),
		Name:        t.Name,
		Description: t.Description,
		ReportType:  t.ReportType,
		Config:      t.Config,
		Schedule:    t.Schedule,
		IsActive:    t.IsActive,
		CreatedAt:   t.CreatedAt,
	}
}

// CreateTemplate stores an active template after validating its schedule.
func (s *Service) CreateTemplate(ctx context.Context, ispID uuid.UUID, req *TemplateCreateRequest) (*TemplateResponse, error) {
	if _, err := ParseSchedule(req.Schedule); err != nil {
		return nil, err
	}
	tpl := &models.ReportTemplate{
		ISPID:       ispID,
		Name:        s.sanitizer.SanitizeText(req.Name),
		Description: s.sanitizer.SanitizeText(req.Description),
		ReportType:  req.ReportType,
		Config:      models.JSONMap(req.Config),
		Schedule:    models.JSONMap(req.Schedule),
		IsActive:    true,
	}
	if tpl.Schedule == nil {
		tpl.Schedule = models.JSONMap{}
	}
	if err := s.db.WithContext(ctx).Create(tpl).Error; err != nil {
		return nil, dbutil.WrapError(err)
	}
	s.logger.Info("Report template created",
		zap.String("isp_id", ispID.String()),
		zap.String("template_id", tpl.ID.String()),
		zap.String("report_type", tpl.ReportType))
	resp := newTemplateResponse(tpl)
	return &resp, nil
}

// Templates lists the ISP's active templates.
func (s *Service) Templates(ctx context.Context, ispID uuid.UUID) ([]TemplateResponse, error) {
	var templates []models.ReportTemplate
	if err := s.db.WithContext(ctx).
		Where("isp_id = ? AND is_active = ?", ispID, true).
		Order("created_at ASC").
		Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("failed to list report templates: %w", err)
	}
	out := make([]TemplateResponse, 0, len(templates))
	for i := range templates {
		out = append(out, newTemplateResponse(&templates[i]))
	}
	return out, nil
}

func (s *Service) template(ctx context.Context, ispID, id uuid.UUID) (*models.ReportTemplate, error) {
	return dbutil.FindExisting[models.ReportTemplate](s.db.WithContext(ctx).Where("id = ? AND isp_id = ?", id, ispID), "Report template")
}

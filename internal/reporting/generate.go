package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/astranetix/bms/common/dbutil"
	"github.com/astranetix/bms/common/errors"
	"github.com/astranetix/bms/internal/messaging"
	"github.com/astranetix/bms/internal/reporting/store"
	"github.com/astranetix/bms/pkg/metrics"
	"github.com/astranetix/bms/pkg/models"
)

const generationListLimit = 50

type GenerateRequest struct {
	TemplateID string                 `json:"template_id" binding:"required,uuid"`
	FileFormat string                 `json:"file_format" binding:"required"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

type GenerationResponse struct {
	ID           string                 `json:"id"`
	TemplateID   string                 `json:"template_id"`
	GeneratedBy  string                 `json:"generated_by"`
	FilePath     string                 `json:"file_path"`
	FileFormat   string                 `json:"file_format"`
	Status       string                 `json:"status"`
	Parameters   map[string]interface{} `json:"parameters"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	CompletedAt  *time.Time             `json:"completed_at"`
}

func newGenerationResponse(g *models.ReportGeneration) GenerationResponse {
	return GenerationResponse{
		ID:           g.ID.String(),
		TemplateID:   g.TemplateID.String(),
		GeneratedBy:  g.GeneratedBy.String(),
		FilePath:     g.FilePath,
		FileFormat:   g.FileFormat,
		Status:       g.Status,
		Parameters:   g.Parameters,
		ErrorMessage: g.ErrorMessage,
		CreatedAt:    g.CreatedAt,
		CompletedAt:  g.CompletedAt,
	}
}

// Generate runs a template for ispID and stores the rendered artifact.
func (s *Service) Generate(ctx context.Context, ispID, actorID uuid.UUID, req *GenerateRequest) (*GenerationResponse, error) {
	templateID, err := uuid.Parse(req.TemplateID)
	if err != nil {
		return nil, errors.Invalid.Explain("invalid template_id")
	}
	tpl, err := s.template(ctx, ispID, templateID)
	if err != nil {
		return nil, err
	}
	if !validFormat(req.FileFormat) {
		return nil, unsupportedFormat(req.FileFormat)
	}
	params := req.Parameters
	if params == nil {
		params = map[string]interface{}{}
	}
	if _, err := periodDays(params); err != nil {
		return nil, err
	}
	return s.generate(ctx, tpl, actorID, req.FileFormat, params)
}

func (s *Service) generate(ctx context.Context, tpl *models.ReportTemplate, actorID uuid.UUID, format string, params map[string]interface{}) (*GenerationResponse, error) {
	gen := &models.ReportGeneration{
		TemplateID:  tpl.ID,
		GeneratedBy: actorID,
		FileFormat:  format,
		Status:      models.ReportGenerating,
		Parameters:  models.JSONMap(params),
	}
	gen.CreatedAt = s.now()
	if err := s.db.WithContext(ctx).Create(gen).Error; err != nil {
		return nil, dbutil.WrapError(err)
	}
	logger := s.logger.With(
		zap.String("isp_id", tpl.ISPID.String()),
		zap.String("template_id", tpl.ID.String()),
		zap.String("generation_id", gen.ID.String()))

	key := store.Key(tpl.ISPID.String(), gen.ID.String(), format)
	if err := s.render(ctx, tpl, params, format, key); err != nil {
		metrics.ReportsGenerated.WithLabelValues(tpl.ReportType, models.ReportFailed).Inc()
		logger.Error("Report generation failed", zap.Error(err))
		if uerr := s.db.WithContext(ctx).Model(gen).Updates(map[string]interface{}{
			"status":        models.ReportFailed,
			"error_message": err.Error(),
		}).Error; uerr != nil {
			logger.Error("Failed to record generation failure", zap.Error(uerr))
		}
		return nil, err
	}

	completed := s.now()
	gen.Status = models.ReportCompleted
	gen.FilePath = key
	gen.CompletedAt = &completed
	if err := s.db.WithContext(ctx).Model(gen).Updates(map[string]interface{}{
		"status":       gen.Status,
		"file_path":    gen.FilePath,
		"completed_at": completed,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to complete generation: %w", err)
	}
	metrics.ReportsGenerated.WithLabelValues(tpl.ReportType, models.ReportCompleted).Inc()
	s.publisher.Emit(ctx, messaging.TopicReportGenerated, tpl.ISPID.String(), actorID.String(), map[string]interface{}{
		"generation_id": gen.ID.String(),
		"template_id":   tpl.ID.String(),
		"report_type":   tpl.ReportType,
		"file_format":   format,
	})
	logger.Info("Report generated", zap.String("file_path", key))
	resp := newGenerationResponse(gen)
	return &resp, nil
}

func (s *Service) render(ctx context.Context, tpl *models.ReportTemplate, params map[string]interface{}, format, key string) error {
	report, err := s.buildReport(ctx, tpl, params)
	if err != nil {
		return err
	}
	data, err := Render(report, format)
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	if s.artifacts == nil {
		return fmt.Errorf("artifact store unavailable")
	}
	if err := s.artifacts.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to store report: %w", err)
	}
	return nil
}

func (s *Service) ownedGenerations(ctx context.Context, ispID uuid.UUID) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.ReportGeneration{}).
		Where("template_id IN (?)", s.db.Model(&models.ReportTemplate{}).Select("id").Where("isp_id = ?", ispID))
}

// Generations lists the ISP's most recent generations.
func (s *Service) Generations(ctx context.Context, ispID uuid.UUID) ([]GenerationResponse, error) {
	var gens []models.ReportGeneration
	if err := s.ownedGenerations(ctx, ispID).
		Order("created_at DESC").
		Limit(generationListLimit).
		Find(&gens).Error; err != nil {
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}
	out := make([]GenerationResponse, 0, len(gens))
	for i := range gens {
		out = append(out, newGenerationResponse(&gens[i]))
	}
	return out, nil
}

// Artifact is a stored report ready for download.
type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
}

// Download returns the stored artifact of a completed generation.
func (s *Service) Download(ctx context.Context, ispID, generationID uuid.UUID) (*Artifact, error) {
	gen, err := dbutil.FindExisting[models.ReportGeneration](s.ownedGenerations(ctx, ispID).Where("id = ?", generationID), "Report")
	if err != nil {
		return nil, err
	}
	if gen.Status != models.ReportCompleted {
		return nil, errors.Conflict.Explain("report is %s", gen.Status)
	}
	if s.artifacts == nil {
		return nil, fmt.Errorf("artifact store unavailable")
	}
	data, err := s.artifacts.Get(ctx, gen.FilePath)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errors.NotFound.Explain("Report artifact not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	return &Artifact{
		Name:        gen.ID.String() + "." + gen.FileFormat,
		ContentType: ContentType(gen.FileFormat),
		Data:        data,
	}, nil
}

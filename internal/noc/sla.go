package noc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/astranetix/bms/common/dbutil"
	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/pkg/stats"
)

const defaultUptimeTarget = 0.999

type SLACreateRequest struct {
	Name                 string                 `json:"name" binding:"required,max=255"`
	Description          string                 `json:"description,omitempty"`
	UptimeTarget         *float64               `json:"uptime_target,omitempty" binding:"omitempty,gt=0,lte=1"`
	ResponseTimeTarget   *int                   `json:"response_time_target,omitempty" binding:"omitempty,min=0"`
	ResolutionTimeTarget *int                   `json:"resolution_time_target,omitempty" binding:"omitempty,min=0"`
	BandwidthGuarantee   *float64               `json:"bandwidth_guarantee,omitempty" binding:"omitempty,min=0"`
	Penalties            map[string]interface{} `json:"penalties,omitempty"`
}

type SLAResponse struct {
	ID                   string                 `json:"id"`
	ISPID                string                 `json:"isp_id"`
	Name                 string                 `json:"name"`
	Description          string                 `json:"description"`
	UptimeTarget         float64                `json:"uptime_target"`
	ResponseTimeTarget   int                    `json:"response_time_target"`
	ResolutionTimeTarget int                    `json:"resolution_time_target"`
	BandwidthGuarantee   float64                `json:"bandwidth_guarantee"`
	Penalties            map[string]interface{} `json:"penalties"`
	IsActive             bool                   `json:"is_active"`
	CreatedAt            time.Time              `json:"created_at"`
}

func newSLAResponse(d *models.SLADefinition) SLAResponse {
	penalties := map[string]interface{}(d.Penalties)
	if penalties == nil {
		penalties = map[string]interface{}{}
	}
	return SLAResponse{
		ID:                   d.ID.String(),
		ISPID:                d.ISPID.String(),
		Name:                 d.Name,
		Description:          d.Description,
		UptimeTarget:         d.UptimeTarget,
		ResponseTimeTarget:   d.ResponseTimeTarget,
		ResolutionTimeTarget: d.ResolutionTimeTarget,
		BandwidthGuarantee:   d.BandwidthGuarantee,
		Penalties:            penalties,
		IsActive:             d.IsActive,
		CreatedAt:            d.CreatedAt,
	}
}

// SLAs lists the ISP's active SLA definitions.
func (s *Service) SLAs(ctx context.Context, ispID uuid.UUID) ([]SLAResponse, error) {
	var defs []models.SLADefinition
	if err := s.db.WithContext(ctx).Where("isp_id = ? AND is_active = ?", ispID, true).Order("created_at ASC").Find(&defs).Error; err != nil {
		return nil, fmt.Errorf("failed to list SLAs: %w", err)
	}
	out := make([]SLAResponse, 0, len(defs))
	for i := range defs {
		out = append(out, newSLAResponse(&defs[i]))
	}
	return out, nil
}

func (s *Service) CreateSLA(ctx context.Context, ispID uuid.UUID, req *SLACreateRequest) (*SLAResponse, error) {
	def := &models.SLADefinition{
		ISPID:        ispID,
		Name:         s.sanitizer.SanitizeText(req.Name),
		Description:  s.sanitizer.SanitizeText(req.Description),
		UptimeTarget: defaultUptimeTarget,
		Penalties:    models.JSONMap{},
		IsActive:     true,
	}
	if req.UptimeTarget != nil {
		def.UptimeTarget = *req.UptimeTarget
	}
	if req.ResponseTimeTarget != nil {
		def.ResponseTimeTarget = *req.ResponseTimeTarget
	}
	if req.ResolutionTimeTarget != nil {
		def.ResolutionTimeTarget = *req.ResolutionTimeTarget
	}
	if req.BandwidthGuarantee != nil {
		def.BandwidthGuarantee = *req.BandwidthGuarantee
	}
	if req.Penalties != nil {
		def.Penalties = models.JSONMap(req.Penalties)
	}
	if err := s.db.WithContext(ctx).Create(def).Error; err != nil {
		return nil, dbutil.WrapError(err)
	}
	s.logger.Info("SLA defined",
		zap.String("isp_id", ispID.String()),
		zap.String("sla_id", def.ID.String()),
		zap.Float64("uptime_target", def.UptimeTarget))
	resp := newSLAResponse(def)
	return &resp, nil
}

type SLABreach struct {
	Metric   string  `json:"metric"`
	Target   float64 `json:"target"`
	Achieved float64 `json:"achieved"`
}

type SLAComplianceReport struct {
	SLAID                string      `json:"sla_id"`
	PeriodStart          time.Time   `json:"period_start"`
	PeriodEnd            time.Time   `json:"period_end"`
	UptimeAchieved       float64     `json:"uptime_achieved"`
	DowntimeMinutes      float64     `json:"downtime_minutes"`
	AvgResponseTime      float64     `json:"avg_response_time"`
	AvgResolutionTime    float64     `json:"avg_resolution_time"`
	CompliancePercentage float64     `json:"compliance_percentage"`
	Breaches             []SLABreach `json:"breaches"`
	PenaltiesIncurred    float64     `json:"penalties_incurred"`
}

// Downtime sums the time critical alerts were open inside [start, end).
// Overlapping alerts are counted once.
func Downtime(alerts []models.NetworkAlert, start, end time.Time) time.Duration {
	type span struct{ from, to time.Time }
	spans := make([]span, 0, len(alerts))
	for _, a := range alerts {
		from, to := a.CreatedAt, end
		if a.ResolvedAt != nil && a.ResolvedAt.Before(end) {
			to = *a.ResolvedAt
		}
		if from.Before(start) {
			from = start
		}
		if to.After(from) {
			spans = append(spans, span{from, to})
		}
	}
	// alerts arrive ordered by created_at so spans are sorted by from
	var total time.Duration
	var cur span
	for i, sp := range spans {
		switch {
		case i == 0:
			cur = sp
		case !sp.from.After(cur.to):
			if sp.to.After(cur.to) {
				cur.to = sp.to
			}
		default:
			total += cur.to.Sub(cur.from)
			cur = sp
		}
	}
	if len(spans) > 0 {
		total += cur.to.Sub(cur.from)
	}
	return total
}

func penaltyPerBreach(p models.JSONMap) float64 {
	switch v := p["per_breach"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Compliance measures an SLA over the last days days from critical alert
// downtime and the ISP's ticket handling times.
func (s *Service) Compliance(ctx context.Context, ispID, slaID uuid.UUID, days int) (*SLAComplianceReport, error) {
	def, err := dbutil.FindExisting[models.SLADefinition](s.db.WithContext(ctx).Where("id = ? AND isp_id = ?", slaID, ispID), "SLA")
	if err != nil {
		return nil, err
	}
	end := s.now()
	start := end.AddDate(0, 0, -days)
	db := s.db.WithContext(ctx)

	var alerts []models.NetworkAlert
	if err := db.Where("tenant_id = ? AND severity = ? AND created_at < ? AND (resolved_at IS NULL OR resolved_at >= ?)",
		ispID, models.SeverityCritical, end, start).
		Order("created_at ASC").Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("failed to load critical alerts: %w", err)
	}
	downtime := Downtime(alerts, start, end)
	period := end.Sub(start)
	uptime := 1 - downtime.Seconds()/period.Seconds()

	var tickets []models.SupportTicket
	if err := db.Where("tenant_id = ? AND created_at >= ?", ispID, start).Find(&tickets).Error; err != nil {
		return nil, fmt.Errorf("failed to load tickets: %w", err)
	}
	var response, resolution []float64
	for _, t := range tickets {
		if t.Status != models.StatusOpen {
			response = append(response, t.UpdatedAt.Sub(t.CreatedAt).Minutes())
		}
		if t.ResolvedAt != nil {
			resolution = append(resolution, t.ResolvedAt.Sub(t.CreatedAt).Minutes())
		}
	}

	report := &SLAComplianceReport{
		SLAID:             def.ID.String(),
		PeriodStart:       start,
		PeriodEnd:         end,
		UptimeAchieved:    stats.Round(uptime, 4),
		DowntimeMinutes:   stats.Round2(downtime.Minutes()),
		AvgResponseTime:   stats.Round2(stats.Mean(response)),
		AvgResolutionTime: stats.Round2(stats.Mean(resolution)),
		Breaches:          []SLABreach{},
	}

	checks := 1
	if uptime < def.UptimeTarget {
		report.Breaches = append(report.Breaches, SLABreach{Metric: "uptime", Target: def.UptimeTarget, Achieved: report.UptimeAchieved})
	}
	if def.ResponseTimeTarget > 0 {
		checks++
		if report.AvgResponseTime > float64(def.ResponseTimeTarget) {
			report.Breaches = append(report.Breaches, SLABreach{Metric: "response_time", Target: float64(def.ResponseTimeTarget), Achieved: report.AvgResponseTime})
		}
	}
	if def.ResolutionTimeTarget > 0 {
		checks++
		if report.AvgResolutionTime > float64(def.ResolutionTimeTarget) {
			report.Breaches = append(report.Breaches, SLABreach{Metric: "resolution_time", Target: float64(def.ResolutionTimeTarget), Achieved: report.AvgResolutionTime})
		}
	}
	report.CompliancePercentage = stats.Percent(float64(checks-len(report.Breaches)), float64(checks))
	report.PenaltiesIncurred = stats.Round2(penaltyPerBreach(def.Penalties) * float64(len(report.Breaches)))
	return report, nil
}

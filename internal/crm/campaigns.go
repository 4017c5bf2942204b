package crm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/astranetix/bms/common/dbutil"
	"github.com/astranetix/bms/common/errors"
	"github.com/astranetix/bms/internal/messaging"
	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/pkg/stats"
)

// Campaign counters kept in MarketingCampaign.Metrics.
const (
	MetricSent         = "sent"
	MetricDelivered    = "delivered"
	MetricBounced      = "bounced"
	MetricOpened       = "opened"
	MetricClicked      = "clicked"
	MetricUnsubscribed = "unsubscribed"
)

type CampaignCreateRequest struct {
	Name           string                 `json:"name" binding:"required,max=255"`
	CampaignType   string                 `json:"campaign_type" binding:"required,oneof=email sms push"`
	TargetSegments []string               `json:"target_segments" binding:"required,min=1,dive,uuid"`
	Content        map[string]interface{} `json:"content" binding:"required"`
	ScheduledAt    *time.Time             `json:"scheduled_at,omitempty"`
}

type CampaignResponse struct {
	ID             string                 `json:"id"`
	ISPID          string                 `json:"isp_id"`
	Name           string                 `json:"name"`
	CampaignType   string                 `json:"campaign_type"`
	Status         string                 `json:"status"`
	TargetSegments []string               `json:"target_segments"`
	Content        map[string]interface{} `json:"content"`
	ScheduledAt    *time.Time             `json:"scheduled_at"`
	Metrics        map[string]interface{} `json:"metrics"`
	CreatedAt      time.Time              `json:"created_at"`
}

func newCampaignResponse(c *models.MarketingCampaign) CampaignResponse {
	metrics := map[string]interface{}(c.Metrics)
	if metrics == nil {
		metrics = map[string]interface{}{}
	}
	return CampaignResponse{
		ID:             c.ID.String(),
		ISPID:          c.ISPID.String(),
		Name:           c.Name,
		CampaignType:   c.CampaignType,
		Status:         c.Status,
		TargetSegments: c.TargetSegments,
		Content:        c.Content,
		ScheduledAt:    c.ScheduledAt,
		Metrics:        metrics,
		CreatedAt:      c.CreatedAt,
	}
}

// CreateCampaign stores a campaign. Scheduled campaigns start as drafts,
// the rest are ready to launch.
func (s *Service) CreateCampaign(ctx context.Context, ispID uuid.UUID, req *CampaignCreateRequest) (*CampaignResponse, error) {
	targets := dedupe(req.TargetSegments)
	var owned int64
	if err := s.db.WithContext(ctx).Model(&models.CustomerSegment{}).
		Where("id IN ? AND isp_id = ?", targets, ispID).
		Count(&owned).Error; err != nil {
		return nil, fmt.Errorf("failed to check segments: %w", err)
	}
	if int(owned) != len(targets) {
		return nil, errors.Invalid.Explain("unknown target segment").WithField("segment", "target_segments", "every segment must belong to the ISP")
	}

	status := models.CampaignReady
	if req.ScheduledAt != nil {
		status = models.CampaignDraft
	}
	campaign := &models.MarketingCampaign{
		ISPID:          ispID,
		Name:           s.sanitizer.SanitizeText(req.Name),
		CampaignType:   req.CampaignType,
		Status:         status,
		TargetSegments: models.StringList(targets),
		Content:        models.JSONMap(s.sanitizer.SanitizeMap(req.Content)),
		ScheduledAt:    req.ScheduledAt,
		Metrics:        models.JSONMap{},
	}
	if err := s.db.WithContext(ctx).Create(campaign).Error; err != nil {
		return nil, dbutil.WrapError(err)
	}
	resp := newCampaignResponse(campaign)
	return &resp, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// Campaigns lists the ISP's campaigns newest first.
func (s *Service) Campaigns(ctx context.Context, ispID uuid.UUID) ([]CampaignResponse, error) {
	var campaigns []models.MarketingCampaign
	if err := s.db.WithContext(ctx).Where("isp_id = ?", ispID).Order("created_at DESC").Find(&campaigns).Error; err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	out := make([]CampaignResponse, 0, len(campaigns))
	for i := range campaigns {
		out = append(out, newCampaignResponse(&campaigns[i]))
	}
	return out, nil
}

func (s *Service) campaign(ctx context.Context, ispID, id uuid.UUID) (*models.MarketingCampaign, error) {
	return dbutil.FindExisting[models.MarketingCampaign](s.db.WithContext(ctx).Where("id = ? AND isp_id = ?", id, ispID), "Campaign")
}

type recipient struct {
	ID    uuid.UUID
	Email string
}

// audience resolves the distinct subscribers matched by any of segmentIDs.
func (s *Service) audience(ctx context.Context, ispID uuid.UUID, segmentIDs []string) ([]recipient, error) {
	var segs []models.CustomerSegment
	if err := s.db.WithContext(ctx).Where("id IN ? AND isp_id = ?", segmentIDs, ispID).Find(&segs).Error; err != nil {
		return nil, fmt.Errorf("failed to load segments: %w", err)
	}
	seen := map[uuid.UUID]bool{}
	var out []recipient
	for _, seg := range segs {
		c, err := ParseCriteria(seg.Criteria)
		if err != nil {
			return nil, err
		}
		var rows []recipient
		if err := c.Apply(s.db, s.subscribers(ctx, ispID), s.now()).Select("id, email").Scan(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to resolve audience: %w", err)
		}
		for _, r := range rows {
			if !seen[r.ID] {
				seen[r.ID] = true
				out = append(out, r)
			}
		}
	}
	return out, nil
}

// Launch sends a ready or draft campaign to its audience. Recipients with an
// invalid address count as bounced.
func (s *Service) Launch(ctx context.Context, ispID, actorID, id uuid.UUID) (*CampaignMetrics, error) {
	campaign, err := s.campaign(ctx, ispID, id)
	if err != nil {
		return nil, err
	}
	if campaign.Status == models.CampaignSent {
		return nil, errors.Conflict.Explain("campaign has already been launched")
	}
	recipients, err := s.audience(ctx, ispID, campaign.TargetSegments)
	if err != nil {
		return nil, err
	}
	bounced := 0
	for _, r := range recipients {
		if s.validate.Var(r.Email, "required,email") != nil {
			bounced++
		}
	}
	sent := len(recipients)
	campaign.Status = models.CampaignSent
	campaign.Metrics = models.JSONMap{
		MetricSent:         sent,
		MetricDelivered:    sent - bounced,
		MetricBounced:      bounced,
		MetricOpened:       0,
		MetricClicked:      0,
		MetricUnsubscribed: 0,
		"launched_at":      s.now().Format(time.RFC3339),
	}
	res := s.db.WithContext(ctx).Model(campaign).Where("status <> ?", models.CampaignSent).Updates(map[string]interface{}{
		"status":  campaign.Status,
		"metrics": campaign.Metrics,
	})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to launch campaign: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errors.Conflict.Explain("campaign has already been launched")
	}

	s.publisher.Emit(ctx, messaging.TopicCampaignLaunched, ispID.String(), actorID.String(), map[string]interface{}{
		"campaign_id":   campaign.ID.String(),
		"campaign_type": campaign.CampaignType,
		"sent":          sent,
		"bounced":       bounced,
	})
	s.logger.Info("Campaign launched",
		zap.String("isp_id", ispID.String()),
		zap.String("campaign_id", campaign.ID.String()),
		zap.Int("sent", sent),
		zap.Int("bounced", bounced))
	return NewCampaignMetrics(campaign.Metrics), nil
}

type CampaignEventRequest struct {
	Type string `json:"type" binding:"required,oneof=opened clicked unsubscribed"`
}

// RecordEvent counts an engagement event against a launched campaign.
func (s *Service) RecordEvent(ctx context.Context, ispID, id uuid.UUID, req *CampaignEventRequest) (*CampaignMetrics, error) {
	var campaign *models.MarketingCampaign
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		campaign, err = dbutil.FindExisting[models.MarketingCampaign](tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND isp_id = ?", id, ispID), "Campaign")
		if err != nil {
			return err
		}
		if campaign.Status != models.CampaignSent {
			return errors.Invalid.Explain("campaign has not been launched")
		}
		if campaign.Metrics == nil {
			campaign.Metrics = models.JSONMap{}
		}
		campaign.Metrics[req.Type] = counter(campaign.Metrics, req.Type) + 1
		if err := tx.Model(campaign).Update("metrics", campaign.Metrics).Error; err != nil {
			return fmt.Errorf("failed to record campaign event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return NewCampaignMetrics(campaign.Metrics), nil
}

type CampaignMetrics struct {
	Sent         int     `json:"sent"`
	Delivered    int     `json:"delivered"`
	Opened       int     `json:"opened"`
	Clicked      int     `json:"clicked"`
	Unsubscribed int     `json:"unsubscribed"`
	Bounced      int     `json:"bounced"`
	DeliveryRate float64 `json:"delivery_rate"`
	OpenRate     float64 `json:"open_rate"`
	ClickRate    float64 `json:"click_rate"`
}

func counter(m models.JSONMap, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

// NewCampaignMetrics derives the rates from the stored counters.
func NewCampaignMetrics(m models.JSONMap) *CampaignMetrics {
	out := &CampaignMetrics{
		Sent:         counter(m, MetricSent),
		Delivered:    counter(m, MetricDelivered),
		Opened:       counter(m, MetricOpened),
		Clicked:      counter(m, MetricClicked),
		Unsubscribed: counter(m, MetricUnsubscribed),
		Bounced:      counter(m, MetricBounced),
	}
	out.DeliveryRate = stats.Percent(float64(out.Delivered), float64(out.Sent))
	out.OpenRate = stats.Percent(float64(out.Opened), float64(out.Delivered))
	out.ClickRate = stats.Percent(float64(out.Clicked), float64(out.Opened))
	return out
}

// Metrics reports a campaign's delivery and engagement figures.
func (s *Service) Metrics(ctx context.Context, ispID, id uuid.UUID) (*CampaignMetrics, error) {
	campaign, err := s.campaign(ctx, ispID, id)
	if err != nil {
		return nil, err
	}
	return NewCampaignMetrics(campaign.Metrics), nil
}

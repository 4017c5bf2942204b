// Package crm segments an ISP's subscribers and runs marketing campaigns
// against those segments.
package crm

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/astranetix/bms/common/dbutil"
	"github.com/astranetix/bms/internal/messaging"
	"github.com/astranetix/bms/internal/tenancy"
	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/pkg/stats"
	"github.com/astranetix/bms/pkg/validation"
)

const trendMonths = 6

type Service struct {
	db        *gorm.DB
	logger    *zap.Logger
	publisher *messaging.Publisher
	sanitizer *validation.Validator
	validate  *validator.Validate
	now       func() time.Time
}

func NewService(db *gorm.DB, logger *zap.Logger, publisher *messaging.Publisher) *Service {
	return &Service{
		db:        db,
		logger:    logger,
		publisher: publisher,
		sanitizer: validation.NewValidator(logger),
		validate:  validator.New(),
		now:       tenancy.Now,
	}
}

func (s *Service) subscribers(ctx context.Context, ispID uuid.UUID) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.User{}).Where("id IN (?)", tenancy.UsersOfISP(s.db, ispID))
}

func (s *Service) countSegment(ctx context.Context, ispID uuid.UUID, raw models.JSONMap) (int, error) {
	c, err := ParseCriteria(raw)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := c.Apply(s.db, s.subscribers(ctx, ispID), s.now()).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count segment: %w", err)
	}
	return int(n), nil
}

type SegmentCreateRequest struct {
	Name        string                 `json:"name" binding:"required,max=255"`
	Criteria    map[string]interface{} `json:"criteria" binding:"required"`
	Description string                 `json:"description,omitempty"`
	AutoUpdate  *bool                  `json:"auto_update,omitempty"`
}

type SegmentResponse struct {
	ID              string                 `json:"id"`
	ISPID           string                 `json:"isp_id"`
	Name            string                 `json:"name"`
	Criteria        map[string]interface{} `json:"criteria"`
	Description     string                 `json:"description"`
	AutoUpdate      bool                   `json:"auto_update"`
	SubscriberCount int                    `json:"subscriber_count"`
	CreatedAt       time.Time              `json:"created_at"`
}

func newSegmentResponse(seg *models.CustomerSegment) SegmentResponse {
	return SegmentResponse{
		ID:              seg.ID.String(),
		ISPID:           seg.ISPID.String(),
		Name:            seg.Name,
		Criteria:        seg.Criteria,
		Description:     seg.Description,
		AutoUpdate:      seg.AutoUpdate,
		SubscriberCount: seg.SubscriberCount,
		CreatedAt:       seg.CreatedAt,
	}
}

// CreateSegment validates the criteria and stores the segment with its
// current size.
func (s *Service) CreateSegment(ctx context.Context, ispID uuid.UUID, req *SegmentCreateRequest) (*SegmentResponse, error) {
	count, err := s.countSegment(ctx, ispID, req.Criteria)
	if err != nil {
		return nil, err
	}
	seg := &models.CustomerSegment{
		ISPID:           ispID,
		Name:            s.sanitizer.SanitizeText(req.Name),
		Criteria:        models.JSONMap(req.Criteria),
		Description:     s.sanitizer.SanitizeText(req.Description),
		AutoUpdate:      req.AutoUpdate == nil || *req.AutoUpdate,
		SubscriberCount: count,
	}
	if err := s.db.WithContext(ctx).Create(seg).Error; err != nil {
		return nil, dbutil.WrapError(err)
	}
	s.logger.Info("Segment created",
		zap.String("isp_id", ispID.String()),
		zap.String("segment_id", seg.ID.String()),
		zap.Int("subscribers", count))
	resp := newSegmentResponse(seg)
	return &resp, nil
}

// Segments lists the ISP's segments, refreshing the size of auto-updating ones.
func (s *Service) Segments(ctx context.Context, ispID uuid.UUID) ([]SegmentResponse, error) {
	var segs []models.CustomerSegment
	if err := s.db.WithContext(ctx).Where("isp_id = ?", ispID).Order("created_at ASC").Find(&segs).Error; err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	out := make([]SegmentResponse, 0, len(segs))
	for i := range segs {
		seg := &segs[i]
		if seg.AutoUpdate {
			count, err := s.countSegment(ctx, ispID, seg.Criteria)
			if err != nil {
				return nil, err
			}
			if count != seg.SubscriberCount {
				seg.SubscriberCount = count
				if err := s.db.WithContext(ctx).Model(seg).Update("subscriber_count", count).Error; err != nil {
					return nil, fmt.Errorf("failed to refresh segment: %w", err)
				}
			}
		}
		out = append(out, newSegmentResponse(seg))
	}
	return out, nil
}

type SegmentShare struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type MonthTrend struct {
	Month            string `json:"month"`
	NewSubscribers   int    `json:"new_subscribers"`
	TotalSubscribers int    `json:"total_subscribers"`
}

type CustomerAnalytics struct {
	TotalSubscribers       int64            `json:"total_subscribers"`
	ActiveSubscribers      int64            `json:"active_subscribers"`
	ChurnRate              float64          `json:"churn_rate"`
	AverageRevenue         float64          `json:"average_revenue"`
	Segments               []SegmentShare   `json:"segments"`
	GrowthTrends           []MonthTrend     `json:"growth_trends"`
	GeographicDistribution map[string]int64 `json:"geographic_distribution"`
}

// Analytics summarises the ISP's subscriber base.
func (s *Service) Analytics(ctx context.Context, ispID uuid.UUID) (*CustomerAnalytics, error) {
	now := s.now()
	resp := &CustomerAnalytics{
		Segments:               []SegmentShare{},
		GeographicDistribution: map[string]int64{},
	}
	if err := s.subscribers(ctx, ispID).Count(&resp.TotalSubscribers).Error; err != nil {
		return nil, fmt.Errorf("failed to count subscribers: %w", err)
	}
	if err := s.subscribers(ctx, ispID).Where("is_active = ?", true).Count(&resp.ActiveSubscribers).Error; err != nil {
		return nil, fmt.Errorf("failed to count active subscribers: %w", err)
	}

	churn, err := tenancy.ChurnRate(ctx, s.db, ispID, now)
	if err != nil {
		return nil, err
	}
	resp.ChurnRate = churn

	revenue, err := tenancy.CompletedRevenue(ctx, s.db, tenancy.UsersOfISP(s.db, ispID), now.AddDate(0, 0, -30), time.Time{})
	if err != nil {
		return nil, err
	}
	resp.AverageRevenue = stats.Round2(stats.Ratio(revenue.InexactFloat64(), float64(resp.ActiveSubscribers)))

	var segs []models.CustomerSegment
	if err := s.db.WithContext(ctx).Where("isp_id = ?", ispID).Order("created_at ASC").Find(&segs).Error; err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	for _, seg := range segs {
		count, err := s.countSegment(ctx, ispID, seg.Criteria)
		if err != nil {
			return nil, err
		}
		resp.Segments = append(resp.Segments, SegmentShare{
			ID:         seg.ID.String(),
			Name:       seg.Name,
			Count:      count,
			Percentage: stats.Percent(float64(count), float64(resp.TotalSubscribers)),
		})
	}

	var joined []time.Time
	if err := s.subscribers(ctx, ispID).Pluck("created_at", &joined).Error; err != nil {
		return nil, fmt.Errorf("failed to load signups: %w", err)
	}
	newByMonth := map[string]int{}
	for _, t := range joined {
		newByMonth[t.UTC().Format("2006-01")]++
	}
	keys := tenancy.MonthKeys(now, trendMonths)
	before := 0
	first := tenancy.MonthStart(now).AddDate(0, -(trendMonths - 1), 0)
	for _, t := range joined {
		if t.Before(first) {
			before++
		}
	}
	running := before
	for _, k := range keys {
		running += newByMonth[k]
		resp.GrowthTrends = append(resp.GrowthTrends, MonthTrend{
			Month:            k,
			NewSubscribers:   newByMonth[k],
			TotalSubscribers: running,
		})
	}

	var regions []struct {
		Address string
		Count   int64
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Select("COALESCE(branches.address, '') AS address, COUNT(users.id) AS count").
		Joins("JOIN branches ON branches.id = users.branch_id").
		Where("branches.isp_id = ?", ispID).
		Group("branches.address").
		Scan(&regions).Error; err != nil {
		return nil, fmt.Errorf("failed to group subscribers by branch: %w", err)
	}
	for _, r := range regions {
		key := r.Address
		if key == "" {
			key = "Unknown"
		}
		resp.GeographicDistribution[key] += r.Count
	}
	return resp, nil
}

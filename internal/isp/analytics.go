package isp

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/astranetix/bms/internal/tenancy"
	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/pkg/stats"
)

const (
	optimizationWindowDays = 30
	congestionThreshold    = 80.0
	highUsageShare         = 0.8
)

type CongestionPoint struct {
	Location       string  `json:"location"`
	Utilization    float64 `json:"utilization"`
	Recommendation string  `json:"recommendation"`
}

type BandwidthOptimizationResponse struct {
	TotalUsageGB      float64           `json:"total_usage_gb"`
	PeakHours         []int             `json:"peak_hours"`
	OptimizationScore float64           `json:"optimization_score"`
	Recommendations   []string          `json:"recommendations"`
	CongestionPoints  []CongestionPoint `json:"congestion_points"`
	PredictedGrowth   float64           `json:"predicted_growth"`
}

type branchUsage struct {
	BranchID   uuid.UUID
	BranchName string
	Location   string
	AvgPeak    float64
	AvgLimit   float64
}

// BandwidthOptimization analyses the last 30 days of the ISP's traffic for
// peak hours, congested branches and growth.
func (s *Service) BandwidthOptimization(ctx context.Context, ispID uuid.UUID) (*BandwidthOptimizationResponse, error) {
	if _, err := s.isp(ctx, ispID); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	since := tenancy.DayStart(s.now()).AddDate(0, 0, -optimizationWindowDays)

	var usage []models.BandwidthUsage
	if err := db.Where("user_id IN (?) AND date >= ?", tenancy.UsersOfISP(s.db, ispID), since).
		Order("date ASC").Find(&usage).Error; err != nil {
		return nil, fmt.Errorf("failed to load usage: %w", err)
	}

	hours := map[int]int{}
	var totalBytes int64
	for _, u := range usage {
		hours[u.PeakHour]++
		totalBytes += u.TotalBytes
	}
	_, series := tenancy.DailyGB(usage)

	var perBranch []branchUsage
	if err := db.Model(&models.BandwidthUsage{}).
		Select("branches.id AS branch_id, branches.name AS branch_name, branches.location AS location, "+
			"COALESCE(AVG(bandwidth_usage.peak_usage_mbps),0) AS avg_peak, COALESCE(AVG(users.bandwidth_limit),0) AS avg_limit").
		Joins("JOIN users ON users.id = bandwidth_usage.user_id").
		Joins("JOIN branches ON branches.id = users.branch_id").
		Where("branches.isp_id = ? AND bandwidth_usage.date >= ?", ispID, since).
		Group("branches.id, branches.name, branches.location").
		Order("branches.name").
		Scan(&perBranch).Error; err != nil {
		return nil, fmt.Errorf("failed to load branch usage: %w", err)
	}

	resp := &BandwidthOptimizationResponse{
		TotalUsageGB:     stats.Round2(float64(totalBytes) / models.BytesPerGB),
		PeakHours:        stats.TopCounts(hours, 3),
		CongestionPoints: []CongestionPoint{},
		PredictedGrowth:  stats.Round2(stats.NaiveTrendPercent(series)),
	}
	utilizations := make([]float64, 0, len(perBranch))
	for _, b := range perBranch {
		util := stats.Percent(b.AvgPeak, b.AvgLimit)
		utilizations = append(utilizations, util)
		if util > congestionThreshold {
			location := b.Location
			if location == "" {
				location = b.BranchName
			}
			resp.CongestionPoints = append(resp.CongestionPoints, CongestionPoint{
				Location:       location,
				Utilization:    util,
				Recommendation: fmt.Sprintf("Increase capacity at %s or move heavy users to higher tiers", b.BranchName),
			})
		}
	}
	resp.OptimizationScore = stats.Round2(stats.Clamp(100-stats.Mean(utilizations), 0, 100))
	resp.Recommendations = optimizationAdvice(resp)
	return resp, nil
}

func optimizationAdvice(r *BandwidthOptimizationResponse) []string {
	var out []string
	if len(r.PeakHours) > 0 {
		out = append(out, fmt.Sprintf("Schedule maintenance outside peak hour %02d:00", r.PeakHours[0]))
	}
	if len(r.CongestionPoints) > 0 {
		out = append(out, fmt.Sprintf("%d branch(es) run above %.0f%% utilization; plan capacity upgrades", len(r.CongestionPoints), congestionThreshold))
	}
	if r.PredictedGrowth > 10 {
		out = append(out, "Traffic is growing quickly; review upstream transit commitments")
	}
	if r.OptimizationScore < 50 {
		out = append(out, "Enable QoS shaping for bulk traffic during peak hours")
	}
	if len(out) == 0 {
		out = append(out, "Network capacity is sufficient for current demand")
	}
	return out
}

type HighUsageUser struct {
	UserID     string  `json:"user_id"`
	Username   string  `json:"username"`
	UsageGB    float64 `json:"usage_gb"`
	DataLimit  int     `json:"data_limit"`
	Percentage float64 `json:"percentage"`
}

type SubscriberAnalyticsResponse struct {
	TotalSubscribers   int64            `json:"total_subscribers"`
	ActiveSubscribers  int64            `json:"active_subscribers"`
	ChurnRate          float64          `json:"churn_rate"`
	GrowthRate         float64          `json:"growth_rate"`
	SubscribersByMonth map[string]int64 `json:"subscribers_by_month"`
	PlanDistribution   map[string]int64 `json:"plan_distribution"`
	HighUsageUsers     []HighUsageUser  `json:"high_usage_users"`
	RevenuePerUser     float64          `json:"revenue_per_user"`
	SatisfactionScore  float64          `json:"satisfaction_score"`
}

// SubscriberAnalytics reports growth, churn, plan mix and heavy users.
func (s *Service) SubscriberAnalytics(ctx context.Context, ispID uuid.UUID) (*SubscriberAnalyticsResponse, error) {
	if _, err := s.isp(ctx, ispID); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	now := s.now()
	thisMonth := tenancy.MonthStart(now)
	lastMonth := thisMonth.AddDate(0, -1, 0)
	keys := tenancy.MonthKeys(now, 6)

	var users []models.User
	if err := db.Where("id IN (?)", tenancy.UsersOfISP(s.db, ispID)).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to load subscribers: %w", err)
	}

	resp := &SubscriberAnalyticsResponse{
		TotalSubscribers:   int64(len(users)),
		SubscribersByMonth: make(map[string]int64, len(keys)),
		PlanDistribution:   map[string]int64{},
		HighUsageUsers:     []HighUsageUser{},
	}
	for _, k := range keys {
		resp.SubscribersByMonth[k] = 0
	}
	var newThis, newLast float64
	for _, u := range users {
		if u.IsActive {
			resp.ActiveSubscribers++
		}
		created := u.CreatedAt.UTC()
		if _, ok := resp.SubscribersByMonth[created.Format("2006-01")]; ok {
			resp.SubscribersByMonth[created.Format("2006-01")]++
		}
		switch {
		case !created.Before(thisMonth):
			newThis++
		case !created.Before(lastMonth):
			newLast++
		}
		plan := u.SubscriptionPlan
		if plan == "" {
			plan = "unassigned"
		}
		resp.PlanDistribution[plan]++
	}
	resp.GrowthRate = tenancy.GrowthPercent(newThis, newLast)

	churn, err := tenancy.ChurnRate(ctx, s.db, ispID, now)
	if err != nil {
		return nil, err
	}
	resp.ChurnRate = churn

	var monthly []struct {
		UserID uuid.UUID
		Total  int64
	}
	if err := db.Model(&models.BandwidthUsage{}).
		Select("user_id, COALESCE(SUM(total_bytes),0) AS total").
		Where("user_id IN (?) AND date >= ?", tenancy.UsersOfISP(s.db, ispID), thisMonth).
		Group("user_id").
		Scan(&monthly).Error; err != nil {
		return nil, fmt.Errorf("failed to load monthly usage: %w", err)
	}
	byID := make(map[uuid.UUID]*models.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}
	for _, m := range monthly {
		u, ok := byID[m.UserID]
		if !ok || u.DataLimit == nil || *u.DataLimit <= 0 {
			continue
		}
		gb := float64(m.Total) / models.BytesPerGB
		if gb > highUsageShare*float64(*u.DataLimit) {
			resp.HighUsageUsers = append(resp.HighUsageUsers, HighUsageUser{
				UserID:     u.ID.String(),
				Username:   u.Username,
				UsageGB:    stats.Round2(gb),
				DataLimit:  *u.DataLimit,
				Percentage: stats.Percent(gb, float64(*u.DataLimit)),
			})
		}
	}
	sort.Slice(resp.HighUsageUsers, func(i, j int) bool {
		return resp.HighUsageUsers[i].Percentage > resp.HighUsageUsers[j].Percentage
	})

	revenue, err := tenancy.CompletedRevenue(ctx, s.db, tenancy.UsersOfISP(s.db, ispID), thisMonth, time.Time{})
	if err != nil {
		return nil, err
	}
	resp.RevenuePerUser = stats.Round2(stats.Ratio(revenue.InexactFloat64(), float64(resp.ActiveSubscribers)))

	rating, err := tenancy.MeanRating(ctx, s.db.Model(&models.SupportTicket{}).Where("tenant_id = ?", ispID), 4.0)
	if err != nil {
		return nil, err
	}
	resp.SatisfactionScore = rating
	return resp, nil
}

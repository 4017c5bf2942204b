// Package ai runs the statistical traffic models behind the AI manager:
// trend projection, QoS tiering, capacity prediction and anomaly scoring.
package ai

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/astranetix/bms/common/auth"
	"github.com/astranetix/bms/common/dbutil"
	"github.com/astranetix/bms/common/errors"
	"github.com/astranetix/bms/internal/tenancy"
	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/pkg/stats"
)

const (
	forecastDays   = 7
	historyDays    = 30
	maxConfidence  = 0.95
	epsilon        = 1e-9
	anomalyZ       = 2.0
	capacityMargin = 0.8
)

// Insight types persisted for later review.
const (
	InsightTraffic    = "traffic_analysis"
	InsightQoS        = "qos_optimization"
	InsightPrediction = "network_prediction"
	InsightAnomalies  = "anomaly_detection"
)

type Service struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger, now: tenancy.Now}
}

// confidence grows with the number of observed days.
func confidence(points int) float64 {
	return stats.Round2(math.Min(maxConfidence, 0.5+float64(points)/60))
}

func roundAll(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = stats.Round2(x)
	}
	return out
}

func (s *Service) usage(ctx context.Context, p *auth.Principal, since, until time.Time) ([]models.BandwidthUsage, error) {
	q := s.db.WithContext(ctx).Where("user_id IN (?) AND date >= ?", tenancy.UsersOf(s.db, p.UserType, p.ID), since)
	if !until.IsZero() {
		q = q.Where("date < ?", until)
	}
	var rows []models.BandwidthUsage
	if err := q.Order("date ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load usage: %w", err)
	}
	return rows, nil
}

// record stores an insight and returns its id. A failed write is logged and
// the analysis is still returned.
func (s *Service) record(ctx context.Context, p *auth.Principal, kind string, data models.JSONMap, score float64) string {
	insight := &models.AIInsight{
		TenantID:        p.ID,
		TenantType:      p.UserType,
		InsightType:     kind,
		Data:            data,
		ConfidenceScore: score,
	}
	if err := s.db.WithContext(ctx).Create(insight).Error; err != nil {
		s.logger.Warn("Failed to store insight", zap.String("type", kind), zap.Error(err))
		return uuid.NewString()
	}
	return insight.ID.String()
}

type TrafficAnalysisRequest struct {
	StartDate    string `json:"start_date" binding:"required,datetime=2006-01-02"`
	EndDate      string `json:"end_date" binding:"required,datetime=2006-01-02"`
	AnalysisType string `json:"analysis_type,omitempty" binding:"omitempty,oneof=comprehensive peak_hours congestion"`
}

type TrafficAnalysisResponse struct {
	AnalysisID                  string    `json:"analysis_id"`
	PredictedBandwidthGB        []float64 `json:"predicted_bandwidth_gb"`
	PeakHours                   []int     `json:"peak_hours"`
	CongestionRiskScore         float64   `json:"congestion_risk_score"`
	OptimizationRecommendations []string  `json:"optimization_recommendations"`
	ConfidenceScore             float64   `json:"confidence_score"`
	DataPointsAnalyzed          int       `json:"data_points_analyzed"`
}

// AnalyzeTraffic projects daily traffic a week ahead and scores congestion
// risk from how far the busiest day sits above the mean.
func (s *Service) AnalyzeTraffic(ctx context.Context, p *auth.Principal, req *TrafficAnalysisRequest) (*TrafficAnalysisResponse, error) {
	start, _ := time.Parse("2006-01-02", req.StartDate)
	end, _ := time.Parse("2006-01-02", req.EndDate)
	if end.Before(start) {
		return nil, errors.Invalid.WithField("order", "end_date", "end_date must not precede start_date")
	}
	kind := req.AnalysisType
	if kind == "" {
		kind = "comprehensive"
	}
	rows, err := s.usage(ctx, p, start, end.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	hours := map[int]int{}
	for _, r := range rows {
		hours[r.PeakHour]++
	}
	_, series := tenancy.DailyGB(rows)
	risk := 0.0
	if len(series) > 0 {
		risk = stats.Clamp(stats.Max(series)/(stats.Mean(series)+epsilon)-1, 0, 1)
	}

	resp := &TrafficAnalysisResponse{
		PredictedBandwidthGB: roundAll(stats.Project(series, forecastDays)),
		PeakHours:            stats.TopCounts(hours, 3),
		CongestionRiskScore:  stats.Round2(risk),
		ConfidenceScore:      confidence(len(series)),
		DataPointsAnalyzed:   len(rows),
	}
	resp.OptimizationRecommendations = trafficAdvice(kind, resp)
	resp.AnalysisID = s.record(ctx, p, InsightTraffic, models.JSONMap{
		"analysis_type":          kind,
		"start_date":             req.StartDate,
		"end_date":               req.EndDate,
		"predicted_bandwidth_gb": resp.PredictedBandwidthGB,
		"peak_hours":             resp.PeakHours,
		"congestion_risk_score":  resp.CongestionRiskScore,
		"data_points":            resp.DataPointsAnalyzed,
	}, resp.ConfidenceScore)

	s.logger.Info("Traffic analysed",
		zap.String("tenant_id", p.ID.String()),
		zap.String("analysis_type", kind),
		zap.Int("data_points", len(rows)),
		zap.Float64("congestion_risk", resp.CongestionRiskScore))
	return resp, nil
}

func trafficAdvice(kind string, r *TrafficAnalysisResponse) []string {
	if r.DataPointsAnalyzed == 0 {
		return []string{"No traffic recorded in the selected period."}
	}
	var out []string
	if kind != "congestion" && len(r.PeakHours) > 0 {
		out = append(out, fmt.Sprintf("Traffic peaks at %02d:00. Schedule maintenance and backups outside this hour.", r.PeakHours[0]))
	}
	if kind != "peak_hours" {
		switch {
		case r.CongestionRiskScore >= 0.7:
			out = append(out, "High congestion risk. Add capacity on busy links or enable traffic shaping during peaks.")
		case r.CongestionRiskScore >= 0.3:
			out = append(out, "Moderate congestion risk. Monitor peak days and prepare burst capacity.")
		default:
			out = append(out, "Traffic is evenly spread. Current capacity is adequate.")
		}
	}
	if n := len(r.PredictedBandwidthGB); n > 1 && r.PredictedBandwidthGB[n-1] > r.PredictedBandwidthGB[0] {
		out = append(out, "Daily traffic is trending upward over the next week.")
	}
	return out
}

type Recommendation struct {
	UserID               string            `json:"user_id"`
	Username             string            `json:"username"`
	CurrentPlan          string            `json:"current_plan"`
	PriorityLevel        string            `json:"priority_level"`
	RecommendedBandwidth int               `json:"recommended_bandwidth"`
	TrafficShapingRules  map[string]string `json:"traffic_shaping_rules"`
	Recommendations      []string          `json:"recommendations"`
}

type QoSOptimizationResponse struct {
	OptimizationID        string           `json:"optimization_id"`
	TotalUsersAnalyzed    int              `json:"total_users_analyzed"`
	HighPriorityUsers     int              `json:"high_priority_users"`
	OptimizationScore     float64          `json:"optimization_score"`
	UserRecommendations   []Recommendation `json:"user_recommendations"`
	GlobalRecommendations []string         `json:"global_recommendations"`
}

type peakRow struct {
	UserID  uuid.UUID
	AvgPeak float64
}

// Priority tiers.
const (
	PriorityHigh     = "high"
	PriorityStandard = "standard"
	PriorityLow      = "low"
)

// Tier classifies a subscriber by how much of the plan bandwidth the average
// daily peak uses, and sizes the bandwidth to provision.
func Tier(avgPeak float64, limit int) (priority string, recommended int) {
	ratio := stats.Ratio(avgPeak, float64(limit))
	switch {
	case ratio >= 0.8:
		return PriorityHigh, int(math.Round(float64(limit) * 1.25))
	case ratio < 0.3:
		return PriorityLow, max(int(math.Round(float64(limit)*0.75)), 1)
	default:
		return PriorityStandard, limit
	}
}

func shapingRules(priority string, limit int) (map[string]string, []string) {
	switch priority {
	case PriorityHigh:
		return map[string]string{
				"queue":                "priority",
				"burst_allowance":      "25%",
				"guaranteed_bandwidth": fmt.Sprintf("%d Mbps", limit),
			}, []string{
				"Upgrade to a higher bandwidth plan",
				"Apply priority queuing during peak hours",
			}
	case PriorityLow:
		return map[string]string{
				"queue":                "best_effort",
				"burst_allowance":      "0%",
				"guaranteed_bandwidth": fmt.Sprintf("%d Mbps", max(limit/2, 1)),
			}, []string{
				"Offer a lower tier plan that fits actual usage",
			}
	default:
		return map[string]string{
				"queue":                "standard",
				"burst_allowance":      "10%",
				"guaranteed_bandwidth": fmt.Sprintf("%d Mbps", max(limit*8/10, 1)),
			}, []string{
				"Current plan matches usage",
			}
	}
}

// OptimizeQoS tiers every subscriber in scope on 30 days of peaks.
func (s *Service) OptimizeQoS(ctx context.Context, p *auth.Principal) (*QoSOptimizationResponse, error) {
	db := s.db.WithContext(ctx)
	var users []models.User
	if err := db.Where("id IN (?)", tenancy.UsersOf(s.db, p.UserType, p.ID)).Order("username ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to load subscribers: %w", err)
	}
	since := tenancy.DayStart(s.now()).AddDate(0, 0, -historyDays)
	var peaks []peakRow
	if err := db.Model(&models.BandwidthUsage{}).
		Select("user_id, COALESCE(AVG(peak_usage_mbps),0) AS avg_peak").
		Where("user_id IN (?) AND date >= ?", tenancy.UsersOf(s.db, p.UserType, p.ID), since).
		Group("user_id").
		Scan(&peaks).Error; err != nil {
		return nil, fmt.Errorf("failed to load peaks: %w", err)
	}
	avg := make(map[uuid.UUID]float64, len(peaks))
	for _, r := range peaks {
		avg[r.UserID] = r.AvgPeak
	}

	resp := &QoSOptimizationResponse{
		TotalUsersAnalyzed:  len(users),
		UserRecommendations: make([]Recommendation, 0, len(users)),
	}
	var low int
	for _, u := range users {
		priority, recommended := Tier(avg[u.ID], u.BandwidthLimit)
		rules, advice := shapingRules(priority, u.BandwidthLimit)
		switch priority {
		case PriorityHigh:
			resp.HighPriorityUsers++
		case PriorityLow:
			low++
		}
		resp.UserRecommendations = append(resp.UserRecommendations, Recommendation{
			UserID:               u.ID.String(),
			Username:             u.Username,
			CurrentPlan:          u.SubscriptionPlan,
			PriorityLevel:        priority,
			RecommendedBandwidth: recommended,
			TrafficShapingRules:  rules,
			Recommendations:      advice,
		})
	}
	resp.OptimizationScore = stats.Round2(100 - stats.Percent(float64(resp.HighPriorityUsers), float64(len(users))))

	switch {
	case len(users) == 0:
		resp.GlobalRecommendations = []string{"No subscribers to optimise yet."}
	default:
		if resp.HighPriorityUsers > 0 {
			resp.GlobalRecommendations = append(resp.GlobalRecommendations,
				fmt.Sprintf("%d subscribers run close to their plan limit. Offer targeted upgrades.", resp.HighPriorityUsers))
		}
		if low > 0 {
			resp.GlobalRecommendations = append(resp.GlobalRecommendations,
				fmt.Sprintf("%d subscribers use under 30%% of their bandwidth. Reclaim capacity with off-peak shaping.", low))
		}
		if len(resp.GlobalRecommendations) == 0 {
			resp.GlobalRecommendations = []string{"Bandwidth allocation matches demand."}
		}
	}
	resp.OptimizationID = s.record(ctx, p, InsightQoS, models.JSONMap{
		"total_users":         resp.TotalUsersAnalyzed,
		"high_priority_users": resp.HighPriorityUsers,
		"optimization_score":  resp.OptimizationScore,
	}, confidence(len(peaks)))
	return resp, nil
}

type NetworkPredictionResponse struct {
	PredictionID            string   `json:"prediction_id"`
	DaysAhead               int      `json:"days_ahead"`
	PredictedPeakUsageGB    float64  `json:"predicted_peak_usage_gb"`
	PredictedAverageUsageGB float64  `json:"predicted_average_usage_gb"`
	GrowthRatePercent       float64  `json:"growth_rate_percent"`
	ConfidenceScore         float64  `json:"confidence_score"`
	CapacityRecommendations []string `json:"capacity_recommendations"`
	RiskFactors             []string `json:"risk_factors"`
}

// PredictNetwork extends the 30-day linear trend of daily traffic.
func (s *Service) PredictNetwork(ctx context.Context, p *auth.Principal, daysAhead int) (*NetworkPredictionResponse, error) {
	since := tenancy.DayStart(s.now()).AddDate(0, 0, -historyDays)
	rows, err := s.usage(ctx, p, since, time.Time{})
	if err != nil {
		return nil, err
	}
	_, series := tenancy.DailyGB(rows)
	projected := stats.Project(series, daysAhead)

	resp := &NetworkPredictionResponse{
		DaysAhead:               daysAhead,
		PredictedPeakUsageGB:    stats.Round2(stats.Max(projected)),
		PredictedAverageUsageGB: stats.Round2(stats.Mean(projected)),
		GrowthRatePercent:       stats.Round2(stats.NaiveTrendPercent(series)),
		ConfidenceScore:         confidence(len(series)),
		RiskFactors:             []string{},
	}

	var capacity struct {
		AvgPeak  float64
		AvgLimit float64
	}
	if err := s.db.WithContext(ctx).Model(&models.BandwidthUsage{}).
		Select("COALESCE(AVG(bandwidth_usage.peak_usage_mbps),0) AS avg_peak, COALESCE(AVG(users.bandwidth_limit),0) AS avg_limit").
		Joins("JOIN users ON users.id = bandwidth_usage.user_id").
		Where("bandwidth_usage.user_id IN (?) AND bandwidth_usage.date >= ?", tenancy.UsersOf(s.db, p.UserType, p.ID), since).
		Scan(&capacity).Error; err != nil {
		return nil, fmt.Errorf("failed to load capacity: %w", err)
	}

	if resp.GrowthRatePercent > 20 {
		resp.RiskFactors = append(resp.RiskFactors,
			fmt.Sprintf("Traffic grew %.2f%% over the last %d days", resp.GrowthRatePercent, historyDays))
	}
	if capacity.AvgLimit > 0 && capacity.AvgPeak >= capacityMargin*capacity.AvgLimit {
		resp.RiskFactors = append(resp.RiskFactors, "Peak usage is within 20% of provisioned capacity")
	}
	if len(series) < 7 {
		resp.RiskFactors = append(resp.RiskFactors, "Less than a week of history; the forecast is tentative")
	}

	switch {
	case resp.GrowthRatePercent > 20:
		resp.CapacityRecommendations = []string{
			fmt.Sprintf("Provision for %.2f GB daily peaks within %d days", resp.PredictedPeakUsageGB, daysAhead),
			"Negotiate additional upstream transit before the forecast peak",
		}
	case resp.GrowthRatePercent < -10:
		resp.CapacityRecommendations = []string{"Traffic is declining. Review over-provisioned links."}
	default:
		resp.CapacityRecommendations = []string{"Current capacity covers the forecast period."}
	}

	resp.PredictionID = s.record(ctx, p, InsightPrediction, models.JSONMap{
		"days_ahead":       daysAhead,
		"predicted_peak":   resp.PredictedPeakUsageGB,
		"predicted_avg":    resp.PredictedAverageUsageGB,
		"growth_percent":   resp.GrowthRatePercent,
		"risk_factor_hits": len(resp.RiskFactors),
	}, resp.ConfidenceScore)
	return resp, nil
}

type Anomaly struct {
	Type        string  `json:"type"`
	Severity    string  `json:"severity"`
	Description string  `json:"description"`
	Timestamp   string  `json:"timestamp"`
	UserID      *string `json:"user_id"`
	ZScore      float64 `json:"z_score"`
}

type AnomalyDetectionResponse struct {
	DetectionID       string             `json:"detection_id"`
	TimePeriodHours   int                `json:"time_period_hours"`
	AnomaliesDetected int                `json:"anomalies_detected"`
	HighSeverityCount int                `json:"high_severity_count"`
	Anomalies         []Anomaly          `json:"anomalies"`
	BaselineMetrics   map[string]float64 `json:"baseline_metrics"`
	Recommendations   []string           `json:"recommendations"`
}

type totalRow struct {
	UserID uuid.UUID
	Total  int64
}

// Severity grades an anomaly by the size of its z-score.
func Severity(z float64) string {
	switch a := math.Abs(z); {
	case a > 4:
		return "critical"
	case a > 3:
		return "high"
	default:
		return "medium"
	}
}

// DetectAnomalies compares each subscriber's traffic in the window with the
// population and flags those more than two standard deviations out.
func (s *Service) DetectAnomalies(ctx context.Context, p *auth.Principal, hours int) (*AnomalyDetectionResponse, error) {
	now := s.now()
	var totals []totalRow
	if err := s.db.WithContext(ctx).Model(&models.BandwidthUsage{}).
		Select("user_id, COALESCE(SUM(total_bytes),0) AS total").
		Where("user_id IN (?) AND date >= ?", tenancy.UsersOf(s.db, p.UserType, p.ID), now.Add(-time.Duration(hours)*time.Hour)).
		Group("user_id").
		Scan(&totals).Error; err != nil {
		return nil, fmt.Errorf("failed to load usage: %w", err)
	}

	values := make([]float64, len(totals))
	for i, t := range totals {
		values[i] = float64(t.Total) / models.BytesPerGB
	}
	mean, std := stats.Mean(values), stats.StdDev(values)

	resp := &AnomalyDetectionResponse{
		TimePeriodHours: hours,
		Anomalies:       []Anomaly{},
		BaselineMetrics: map[string]float64{
			"mean_gb": stats.Round2(mean),
			"std_gb":  stats.Round2(std),
			"users":   float64(len(totals)),
		},
	}
	for i, t := range totals {
		z := stats.ZScore(values[i], mean, std)
		if math.Abs(z) <= anomalyZ {
			continue
		}
		kind, direction := "bandwidth_spike", "above"
		if z < 0 {
			kind, direction = "unusual_data_usage", "below"
		}
		id := t.UserID.String()
		a := Anomaly{
			Type:     kind,
			Severity: Severity(z),
			Description: fmt.Sprintf("Subscriber used %.2f GB in %d hours, %.1f standard deviations %s the mean of %.2f GB",
				values[i], hours, math.Abs(z), direction, mean),
			Timestamp: now.Format(time.RFC3339),
			UserID:    &id,
			ZScore:    stats.Round2(z),
		}
		if a.Severity == "high" || a.Severity == "critical" {
			resp.HighSeverityCount++
		}
		resp.Anomalies = append(resp.Anomalies, a)
	}
	sort.SliceStable(resp.Anomalies, func(i, j int) bool {
		return math.Abs(resp.Anomalies[i].ZScore) > math.Abs(resp.Anomalies[j].ZScore)
	})
	resp.AnomaliesDetected = len(resp.Anomalies)

	switch {
	case resp.HighSeverityCount > 0:
		resp.Recommendations = []string{
			"Investigate high severity anomalies for compromised devices or abuse",
			"Apply temporary rate limits to the affected subscribers",
		}
	case resp.AnomaliesDetected > 0:
		resp.Recommendations = []string{"Review flagged subscribers at the next capacity check"}
	default:
		resp.Recommendations = []string{"No anomalies detected. Traffic is within normal bounds."}
	}

	resp.DetectionID = s.record(ctx, p, InsightAnomalies, models.JSONMap{
		"hours":     hours,
		"anomalies": resp.AnomaliesDetected,
		"high":      resp.HighSeverityCount,
		"mean_gb":   resp.BaselineMetrics["mean_gb"],
	}, confidence(len(totals)))
	return resp, nil
}

type InsightResponse struct {
	ID              string                 `json:"id"`
	InsightType     string                 `json:"insight_type"`
	Data            map[string]interface{} `json:"data"`
	ConfidenceScore float64                `json:"confidence_score"`
	CreatedAt       time.Time              `json:"created_at"`
}

// Insights lists the principal's stored analyses newest first.
func (s *Service) Insights(ctx context.Context, p *auth.Principal, kind string, limit int) ([]InsightResponse, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", p.ID)
	if kind != "" {
		q = q.Where("insight_type = ?", kind)
	}
	var insights []models.AIInsight
	if err := q.Order("created_at DESC").Limit(limit).Find(&insights).Error; err != nil {
		return nil, fmt.Errorf("failed to list insights: %w", err)
	}
	out := make([]InsightResponse, 0, len(insights))
	for _, in := range insights {
		out = append(out, InsightResponse{
			ID:              in.ID.String(),
			InsightType:     in.InsightType,
			Data:            in.Data,
			ConfidenceScore: in.ConfidenceScore,
			CreatedAt:       in.CreatedAt,
		})
	}
	return out, nil
}

// Insight loads one stored analysis of the principal.
func (s *Service) Insight(ctx context.Context, p *auth.Principal, id uuid.UUID) (*InsightResponse, error) {
	in, err := dbutil.FindExisting[models.AIInsight](s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, p.ID), "Insight")
	if err != nil {
		return nil, err
	}
	return &InsightResponse{
		ID:              in.ID.String(),
		InsightType:     in.InsightType,
		Data:            in.Data,
		ConfidenceScore: in.ConfidenceScore,
		CreatedAt:       in.CreatedAt,
	}, nil
}

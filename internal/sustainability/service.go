// Package sustainability tracks energy and emissions metrics, carbon offset
// purchases and the derived dashboards and periodic reports.
package sustainability

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/astranetix/bms/common/dbutil"
	"github.com/astranetix/bms/common/errors"
	"github.com/astranetix/bms/internal/tenancy"
	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/pkg/stats"
	"github.com/astranetix/bms/pkg/validation"
)

const (
	MetricEnergy    = "energy_consumption"
	MetricRenewable = "renewable_usage"

	// carbonPerKWh is kg CO2 emitted per kWh drawn from the grid.
	carbonPerKWh = 0.5
	costPerKWh   = 0.12

	kgCO2PerTree = 22.0
	kgCO2PerCar  = 4600.0

	dashboardDays = 30
	dateLayout    = "2006-01-02"
)

// periodDays maps a report period to its window length.
var periodDays = map[string]int{
	"weekly":    7,
	"monthly":   30,
	"quarterly": 90,
	"yearly":    365,
}

type Service struct {
	db        *gorm.DB
	logger    *zap.Logger
	sanitizer *validation.Validator
	now       func() time.Time
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{
		db:        db,
		logger:    logger,
		sanitizer: validation.NewValidator(logger),
		now:       tenancy.Now,
	}
}

type Initiative struct {
	Name             string `json:"name"`
	Status           string `json:"status"`
	EnergySavings    string `json:"energy_savings"`
	CostSavings      string `json:"cost_savings"`
	CompletionDate   string `json:"completion_date,omitempty"`
	ExpectedComplete string `json:"expected_completion,omitempty"`
}

var initiatives = []Initiative{
	{Name: "LED Lighting Upgrade", Status: "completed", EnergySavings: "2,340 kWh/year", CostSavings: "$280/year", CompletionDate: "2024-01-15"},
	{Name: "Server Virtualization", Status: "in_progress", EnergySavings: "8,760 kWh/year", CostSavings: "$1,051/year", ExpectedComplete: "2024-03-30"},
	{Name: "Solar Panel Installation", Status: "planned", EnergySavings: "15,000 kWh/year", CostSavings: "$1,800/year", ExpectedComplete: "2024-06-01"},
}

type Goals struct {
	CarbonNeutralBy       string             `json:"carbon_neutral_by"`
	RenewableEnergyTarget float64            `json:"renewable_energy_target"`
	EnergyReductionTarget float64            `json:"energy_reduction_target"`
	CurrentProgress       map[string]float64 `json:"current_progress"`
}

type Impact struct {
	TreesEquivalent      float64 `json:"trees_equivalent"`
	CarsOffRoad          float64 `json:"cars_off_road"`
	RenewableEnergyUsage float64 `json:"renewable_energy_kwh"`
}

type DashboardResponse struct {
	TenantID              string       `json:"tenant_id"`
	PeriodDays            int          `json:"period_days"`
	TotalEnergyKWh        float64      `json:"total_energy_consumption"`
	CarbonFootprintKg     float64      `json:"carbon_footprint"`
	RenewablePercentage   float64      `json:"renewable_energy_percentage"`
	EnergyEfficiencyScore float64      `json:"energy_efficiency_score"`
	CostSavings           float64      `json:"cost_savings"`
	Initiatives           []Initiative `json:"sustainability_initiatives"`
	Goals                 Goals        `json:"environmental_goals"`
	Impact                Impact       `json:"environmental_impact"`
}

// values returns metric values of the given type for tenantID whose period
// starts on or after since.
func (s *Service) values(ctx context.Context, tenantID uuid.UUID, metricType string, since time.Time) ([]float64, error) {
	var vals []float64
	err := s.db.WithContext(ctx).Model(&models.SustainabilityMetric{}).
		Where("tenant_id = ? AND metric_type = ? AND period_start >= ?", tenantID, metricType, since).
		Pluck("value", &vals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load %s metrics: %w", metricType, err)
	}
	return vals, nil
}

// Dashboard summarises the last 30 days of energy and renewable metrics.
func (s *Service) Dashboard(ctx context.Context, tenantID uuid.UUID) (*DashboardResponse, error) {
	since := tenancy.DayStart(s.now()).AddDate(0, 0, -dashboardDays)
	energyVals, err := s.values(ctx, tenantID, MetricEnergy, since)
	if err != nil {
		return nil, err
	}
	renewableVals, err := s.values(ctx, tenantID, MetricRenewable, since)
	if err != nil {
		return nil, err
	}

	energy := stats.Sum(energyVals)
	carbon := energy * carbonPerKWh
	renewable := stats.Mean(renewableVals)

	return &DashboardResponse{
		TenantID:              tenantID.String(),
		PeriodDays:            dashboardDays,
		TotalEnergyKWh:        stats.Round2(energy),
		CarbonFootprintKg:     stats.Round2(carbon),
		RenewablePercentage:   stats.Round2(renewable),
		EnergyEfficiencyScore: stats.Round2(math.Max(0, 100-energy/1000)),
		CostSavings:           stats.Round2(energy * costPerKWh * renewable / 100),
		Initiatives:           append([]Initiative{}, initiatives...),
		Goals: Goals{
			CarbonNeutralBy:       "2030",
			RenewableEnergyTarget: 80.0,
			EnergyReductionTarget: 25.0,
			CurrentProgress: map[string]float64{
				"renewable_energy": stats.Round2(renewable),
				"energy_reduction": 12.5,
			},
		},
		Impact: Impact{
			TreesEquivalent:      stats.Round2(carbon / kgCO2PerTree),
			CarsOffRoad:          stats.Round2(carbon / kgCO2PerCar),
			RenewableEnergyUsage: stats.Round2(energy * renewable / 100),
		},
	}, nil
}

type MetricCreateRequest struct {
	MetricType  string                 `json:"metric_type" binding:"required,max=50"`
	Value       float64                `json:"value" binding:"gte=0"`
	Unit        string                 `json:"unit" binding:"required,max=20"`
	PeriodStart string                 `json:"period_start" binding:"required,datetime=2006-01-02"`
	PeriodEnd   string                 `json:"period_end" binding:"required,datetime=2006-01-02"`
	DeviceID    string                 `json:"device_id,omitempty" binding:"omitempty,uuid"`
	Location    string                 `json:"location,omitempty" binding:"max=255"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

type MetricResponse struct {
	ID          string                 `json:"id"`
	TenantID    string                 `json:"tenant_id"`
	TenantType  string                 `json:"tenant_type"`
	MetricType  string                 `json:"metric_type"`
	Value       float64                `json:"value"`
	Unit        string                 `json:"unit"`
	PeriodStart string                 `json:"period_start"`
	PeriodEnd   string                 `json:"period_end"`
	DeviceID    *string                `json:"device_id,omitempty"`
	Location    string                 `json:"location,omitempty"`
	Metadata    map[string]interface{} `json:"metadata"`
	CreatedAt   time.Time              `json:"created_at"`
}

func NewMetricResponse(m *models.SustainabilityMetric) MetricResponse {
	resp := MetricResponse{
		ID:          m.ID.String(),
		TenantID:    m.TenantID.String(),
		TenantType:  m.TenantType,
		MetricType:  m.MetricType,
		Value:       m.Value,
		Unit:        m.Unit,
		PeriodStart: m.PeriodStart.Format(dateLayout),
		PeriodEnd:   m.PeriodEnd.Format(dateLayout),
		Location:    m.Location,
		Metadata:    m.Metadata,
		CreatedAt:   m.CreatedAt,
	}
	if m.DeviceID != nil {
		id := m.DeviceID.String()
		resp.DeviceID = &id
	}
	if resp.Metadata == nil {
		resp.Metadata = map[string]interface{}{}
	}
	return resp
}

// tenantKinds is the lookup order used to classify a tenant id.
var tenantKinds = []struct {
	model interface{}
	kind  string
}{
	{&models.ISP{}, "isp"},
	{&models.Branch{}, "branch"},
	{&models.User{}, "user"},
	{&models.Founder{}, "founder"},
}

// tenantType classifies tenantID by the account table that holds it.
func (s *Service) tenantType(ctx context.Context, tenantID uuid.UUID) (string, error) {
	for _, k := range tenantKinds {
		var n int64
		if err := s.db.WithContext(ctx).Model(k.model).Where("id = ?", tenantID).Count(&n).Error; err != nil {
			return "", fmt.Errorf("failed to classify tenant: %w", err)
		}
		if n > 0 {
			return k.kind, nil
		}
	}
	return "", errors.NotFound.Explain("Tenant not found")
}

// CreateMetric records a measurement for tenantID. tenantType is the kind of
// account the metric belongs to; when empty it is looked up.
func (s *Service) CreateMetric(ctx context.Context, tenantID uuid.UUID, tenantType string, req *MetricCreateRequest) (*models.SustainabilityMetric, error) {
	start, _ := time.Parse(dateLayout, req.PeriodStart)
	end, _ := time.Parse(dateLayout, req.PeriodEnd)
	if end.Before(start) {
		return nil, errors.Invalid.Explain("period_end must not precede period_start").
			WithField("metric", "period_end", "must not precede period_start")
	}
	if tenantType == "" {
		var err error
		if tenantType, err = s.tenantType(ctx, tenantID); err != nil {
			return nil, err
		}
	}
	metric := &models.SustainabilityMetric{
		TenantID:    tenantID,
		TenantType:  tenantType,
		MetricType:  s.sanitizer.SanitizeText(req.MetricType),
		Value:       req.Value,
		Unit:        s.sanitizer.SanitizeText(req.Unit),
		PeriodStart: start,
		PeriodEnd:   end,
		Location:    s.sanitizer.SanitizeText(req.Location),
		Metadata:    models.JSONMap(req.Metadata),
	}
	if metric.Metadata == nil {
		metric.Metadata = models.JSONMap{}
	}
	if req.DeviceID != "" {
		id := uuid.MustParse(req.DeviceID)
		metric.DeviceID = &id
	}
	if err := s.db.WithContext(ctx).Create(metric).Error; err != nil {
		return nil, dbutil.WrapError(err)
	}
	s.logger.Info("Sustainability metric recorded",
		zap.String("tenant_id", tenantID.String()),
		zap.String("metric_type", metric.MetricType),
		zap.Float64("value", metric.Value))
	return metric, nil
}

type MetricFilter struct {
	DaysBack   int    `form:"days_back,default=30" binding:"min=1,max=365"`
	MetricType string `form:"metric_type"`
}

// Metrics lists the tenant's metrics whose period started within the window,
// newest first.
func (s *Service) Metrics(ctx context.Context, tenantID uuid.UUID, f MetricFilter) ([]MetricResponse, error) {
	since := tenancy.DayStart(s.now()).AddDate(0, 0, -f.DaysBack)
	q := s.db.WithContext(ctx).Where("tenant_id = ? AND period_start >= ?", tenantID, since)
	if f.MetricType != "" {
		q = q.Where("metric_type = ?", f.MetricType)
	}
	var metrics []models.SustainabilityMetric
	if err := q.Order("created_at DESC").Find(&metrics).Error; err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	out := make([]MetricResponse, 0, len(metrics))
	for i := range metrics {
		out = append(out, NewMetricResponse(&metrics[i]))
	}
	return out, nil
}

type OffsetPurchaseRequest struct {
	AmountCO2      float64                `json:"amount_co2" binding:"required,gt=0"`
	PricePerKg     decimal.Decimal        `json:"price_per_kg" binding:"required"`
	Provider       string                 `json:"provider" binding:"required,max=255"`
	CertificateID  string                 `json:"certificate_id,omitempty" binding:"max=255"`
	ProjectDetails map[string]interface{} `json:"project_details,omitempty"`
}

type OffsetResponse struct {
	ID             string                 `json:"id"`
	TenantID       string                 `json:"tenant_id"`
	AmountCO2      float64                `json:"amount_co2"`
	PricePerKg     decimal.Decimal        `json:"price_per_kg"`
	TotalCost      decimal.Decimal        `json:"total_cost"`
	Provider       string                 `json:"provider"`
	CertificateID  string                 `json:"certificate_id"`
	ProjectDetails map[string]interface{} `json:"project_details"`
	Status         string                 `json:"status"`
	PurchaseDate   time.Time              `json:"purchase_date"`
}

func NewOffsetResponse(o *models.CarbonOffset) OffsetResponse {
	details := map[string]interface{}(o.ProjectDetails)
	if details == nil {
		details = map[string]interface{}{}
	}
	return OffsetResponse{
		ID:             o.ID.String(),
		TenantID:       o.TenantID.String(),
		AmountCO2:      o.AmountCO2,
		PricePerKg:     o.PricePerKg,
		TotalCost:      o.TotalCost,
		Provider:       o.Provider,
		CertificateID:  o.CertificateID,
		ProjectDetails: details,
		Status:         o.Status,
		PurchaseDate:   o.CreatedAt,
	}
}

// PurchaseOffset records a completed carbon credit purchase. Without a
// certificate id one is derived from the tenant and purchase time.
func (s *Service) PurchaseOffset(ctx context.Context, tenantID uuid.UUID, req *OffsetPurchaseRequest) (*models.CarbonOffset, error) {
	if !req.PricePerKg.IsPositive() {
		return nil, errors.Invalid.Explain("price_per_kg must be positive").
			WithField("carbon_offset", "price_per_kg", "must be positive")
	}
	now := s.now()
	cert := s.sanitizer.SanitizeText(req.CertificateID)
	if cert == "" {
		cert = fmt.Sprintf("CO2-%s-%d", tenantID.String()[:8], now.Unix())
	}
	offset := &models.CarbonOffset{
		TenantID:       tenantID,
		AmountCO2:      req.AmountCO2,
		PricePerKg:     req.PricePerKg,
		TotalCost:      decimal.NewFromFloat(req.AmountCO2).Mul(req.PricePerKg).Round(2),
		Provider:       s.sanitizer.SanitizeText(req.Provider),
		CertificateID:  cert,
		ProjectDetails: models.JSONMap(req.ProjectDetails),
		Status:         "completed",
	}
	if offset.ProjectDetails == nil {
		offset.ProjectDetails = models.JSONMap{}
	}
	offset.CreatedAt = now
	if err := s.db.WithContext(ctx).Create(offset).Error; err != nil {
		return nil, dbutil.WrapError(err)
	}
	s.logger.Info("Carbon offset purchased",
		zap.String("tenant_id", tenantID.String()),
		zap.Float64("amount_co2", offset.AmountCO2),
		zap.String("total_cost", offset.TotalCost.String()))
	return offset, nil
}

type Improvement struct {
	Initiative     string  `json:"initiative"`
	EnergySavedKWh float64 `json:"energy_saved"`
	CostSaved      float64 `json:"cost_saved"`
	Implemented    string  `json:"implementation_date"`
}

var improvements = []Improvement{
	{Initiative: "Server Consolidation", EnergySavedKWh: 2340, CostSaved: 280.80, Implemented: "2024-01-15"},
	{Initiative: "Cooling Optimization", EnergySavedKWh: 1560, CostSaved: 187.20, Implemented: "2024-02-01"},
}

var recommendations = []string{
	"Consider additional renewable energy sources",
	"Implement advanced power management systems",
	"Explore energy storage solutions for peak load management",
	"Investigate waste heat recovery opportunities",
	"Set up automated energy monitoring and alerting",
}

type CostAnalysis struct {
	TotalEnergyCost        float64 `json:"total_energy_cost"`
	SavingsFromInitiatives float64 `json:"savings_from_initiatives"`
	NetCost                float64 `json:"net_cost"`
	CostPerKWh             float64 `json:"cost_per_kwh"`
}

type ReportResponse struct {
	TenantID              string            `json:"tenant_id"`
	ReportPeriod          string            `json:"report_period"`
	PeriodStart           string            `json:"period_start"`
	PeriodEnd             string            `json:"period_end"`
	TotalEnergyKWh        float64           `json:"total_energy_consumption"`
	TotalCarbonKg         float64           `json:"total_carbon_emissions"`
	MetricsRecorded       int               `json:"metrics_recorded"`
	EfficiencyImprovement []Improvement     `json:"efficiency_improvements"`
	CostAnalysis          CostAnalysis      `json:"cost_analysis"`
	Recommendations       []string          `json:"recommendations"`
	ComplianceStatus      map[string]string `json:"compliance_status"`
	GeneratedAt           time.Time         `json:"generated_at"`
}

// Report aggregates the tenant's energy and carbon metrics over the period
// (weekly, monthly, quarterly or yearly).
func (s *Service) Report(ctx context.Context, tenantID uuid.UUID, period string) (*ReportResponse, error) {
	days, ok := periodDays[period]
	if !ok {
		return nil, errors.Invalid.Explain("unknown report period %q", period).
			WithField("report", "period", "must be weekly, monthly, quarterly or yearly")
	}
	now := s.now()
	today := tenancy.DayStart(now)
	start := today.AddDate(0, 0, -days)

	var metrics []models.SustainabilityMetric
	if err := s.db.WithContext(ctx).Where("tenant_id = ? AND period_start >= ?", tenantID, start).
		Find(&metrics).Error; err != nil {
		return nil, fmt.Errorf("failed to load metrics: %w", err)
	}
	var energy, carbon float64
	for _, m := range metrics {
		switch {
		case strings.HasPrefix(m.MetricType, "energy"):
			energy += m.Value
		case strings.HasPrefix(m.MetricType, "carbon"):
			carbon += m.Value
		}
	}

	var savings float64
	for _, imp := range improvements {
		savings += imp.CostSaved
	}
	cost := energy * costPerKWh

	label := fmt.Sprintf("%s Report - %s to %s",
		strings.ToUpper(period[:1])+period[1:], start.Format(dateLayout), today.Format(dateLayout))

	return &ReportResponse{
		TenantID:              tenantID.String(),
		ReportPeriod:          label,
		PeriodStart:           start.Format(dateLayout),
		PeriodEnd:             today.Format(dateLayout),
		TotalEnergyKWh:        stats.Round2(energy),
		TotalCarbonKg:         stats.Round2(carbon),
		MetricsRecorded:       len(metrics),
		EfficiencyImprovement: append([]Improvement{}, improvements...),
		CostAnalysis: CostAnalysis{
			TotalEnergyCost:        stats.Round2(cost),
			SavingsFromInitiatives: stats.Round2(savings),
			NetCost:                stats.Round2(cost - savings),
			CostPerKWh:             costPerKWh,
		},
		Recommendations: append([]string{}, recommendations...),
		ComplianceStatus: map[string]string{
			"iso_14001":                 "compliant",
			"ghg_protocol":              "compliant",
			"science_based_targets":     "in_progress",
			"carbon_disclosure_project": "submitted",
		},
		GeneratedAt: now,
	}, nil
}

// Package founder serves the platform owner's console: ISP provisioning,
// global policies and cross-ISP analytics.
package founder

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/astranetix/bms/common/dbutil"
	"github.com/astranetix/bms/internal/audit"
	"github.com/astranetix/bms/internal/messaging"
	"github.com/astranetix/bms/internal/tenancy"
	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/pkg/security"
	"github.com/astranetix/bms/pkg/stats"
)

const systemHealth = 99.9

// ISPCreateRequest is the body of POST /founder/isp/create.
type ISPCreateRequest struct {
	CompanyName   string                 `json:"company_name" binding:"required,max=255"`
	Email         string                 `json:"email" binding:"required,email"`
	Password      string                 `json:"password" binding:"required,min=8"`
	ContactPerson string                 `json:"contact_person,omitempty" binding:"omitempty,max=255"`
	Phone         string                 `json:"phone,omitempty" binding:"omitempty,max=50"`
	Address       string                 `json:"address,omitempty"`
	Branding      map[string]interface{} `json:"branding,omitempty"`
	Settings      map[string]interface{} `json:"settings,omitempty"`
}

type ISPCreateResponse struct {
	ISPID     string `json:"isp_id"`
	PortalURL string `json:"portal_url"`
	Domain    string `json:"domain"`
	Message   string `json:"message"`
}

type ISPSummary struct {
	ID          string    `json:"id"`
	CompanyName string    `json:"company_name"`
	Domain      string    `json:"domain"`
	CreatedAt   time.Time `json:"created_at"`
	IsActive    bool      `json:"is_active"`
}

type DashboardResponse struct {
	TotalISPs      int64        `json:"total_isps"`
	TotalBranches  int64        `json:"total_branches"`
	TotalUsers     int64        `json:"total_users"`
	MonthlyRevenue float64      `json:"monthly_revenue"`
	SystemHealth   float64      `json:"system_health"`
	RecentISPs     []ISPSummary `json:"recent_isps"`
}

type ISPListResponse struct {
	ID             string    `json:"id"`
	CompanyName    string    `json:"company_name"`
	Domain         string    `json:"domain"`
	Email          string    `json:"email"`
	ContactPerson  string    `json:"contact_person"`
	BranchesCount  int64     `json:"branches_count"`
	UsersCount     int64     `json:"users_count"`
	MonthlyRevenue float64   `json:"monthly_revenue"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	PortalURL      string    `json:"portal_url"`
}

// GlobalPoliciesRequest carries the policy groups to merge. Absent groups are
// left untouched.
type GlobalPoliciesRequest struct {
	PricingPolicies    map[string]interface{} `json:"pricing_policies,omitempty"`
	BandwidthRules     map[string]interface{} `json:"bandwidth_rules,omitempty"`
	SecuritySettings   map[string]interface{} `json:"security_settings,omitempty"`
	PaymentGateways    map[string]interface{} `json:"payment_gateways,omitempty"`
	ComplianceSettings map[string]interface{} `json:"compliance_settings,omitempty"`
}

func (r *GlobalPoliciesRequest) groups() map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{})
	for k, v := range map[string]map[string]interface{}{
		"pricing_policies":    r.PricingPolicies,
		"bandwidth_rules":     r.BandwidthRules,
		"security_settings":   r.SecuritySettings,
		"payment_gateways":    r.PaymentGateways,
		"compliance_settings": r.ComplianceSettings,
	} {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

type RevenueAnalyticsResponse struct {
	HistoricalRevenue map[string]float64 `json:"historical_revenue"`
	PredictedRevenue  []float64          `json:"predicted_revenue"`
	TotalRevenue      float64            `json:"total_revenue"`
	GrowthRate        float64            `json:"growth_rate"`
	ConfidenceScore   float64            `json:"confidence_score"`
}

type SystemAlert struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type SystemMonitoringResponse struct {
	SystemHealth     float64       `json:"system_health"`
	ActiveUsers      int64         `json:"active_users"`
	TotalBandwidthGB float64       `json:"total_bandwidth_gb"`
	AvgPeakUsageMbps float64       `json:"avg_peak_usage_mbps"`
	Alerts           []SystemAlert `json:"alerts"`
	Recommendations  []string      `json:"recommendations"`
}

// Service implements the founder console.
type Service struct {
	db             *gorm.DB
	logger         *zap.Logger
	publisher      *messaging.Publisher
	audit          *audit.Service
	platformDomain string
	now            func() time.Time
}

func NewService(db *gorm.DB, logger *zap.Logger, publisher *messaging.Publisher, auditSvc *audit.Service, platformDomain string) *Service {
	return &Service{
		db:             db,
		logger:         logger,
		publisher:      publisher,
		audit:          auditSvc,
		platformDomain: platformDomain,
		now:            tenancy.Now,
	}
}

func (s *Service) portalURL(domain string) string {
	return fmt.Sprintf("https://%s.%s", domain, s.platformDomain)
}

func (s *Service) founder(ctx context.Context, id uuid.UUID) (*models.Founder, error) {
	return dbutil.FindExisting[models.Founder](s.db.WithContext(ctx).Where("id = ?", id), "Founder")
}

// Dashboard summarises every ISP the founder owns.
func (s *Service) Dashboard(ctx context.Context, founderID uuid.UUID) (*DashboardResponse, error) {
	if _, err := s.founder(ctx, founderID); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	resp := &DashboardResponse{SystemHealth: systemHealth, RecentISPs: []ISPSummary{}}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return db.WithContext(gctx).Model(&models.ISP{}).Where("founder_id = ?", founderID).Count(&resp.TotalISPs).Error
	})
	g.Go(func() error {
		return db.WithContext(gctx).Model(&models.Branch{}).
			Joins("JOIN isps ON isps.id = branches.isp_id").
			Where("isps.founder_id = ?", founderID).
			Count(&resp.TotalBranches).Error
	})
	g.Go(func() error {
		return db.WithContext(gctx).Model(&models.User{}).
			Where("id IN (?)", tenancy.UsersOfFounder(s.db, founderID)).
			Count(&resp.TotalUsers).Error
	})
	g.Go(func() error {
		revenue, err := tenancy.CompletedRevenue(gctx, s.db, tenancy.UsersOfFounder(s.db, founderID), tenancy.MonthStart(s.now()), time.Time{})
		if err != nil {
			return err
		}
		resp.MonthlyRevenue = stats.Round2(revenue.InexactFloat64())
		return nil
	})
	g.Go(func() error {
		var recent []models.ISP
		if err := db.WithContext(gctx).Where("founder_id = ?", founderID).Order("created_at DESC").Limit(5).Find(&recent).Error; err != nil {
			return err
		}
		for _, isp := range recent {
			resp.RecentISPs = append(resp.RecentISPs, ISPSummary{
				ID:          isp.ID.String(),
				CompanyName: isp.CompanyName,
				Domain:      isp.Domain,
				CreatedAt:   isp.CreatedAt,
				IsActive:    isp.IsActive,
			})
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to build founder dashboard: %w", err)
	}
	return resp, nil
}

// CreateISP provisions an ISP tenant with a unique subdomain derived from its
// company name.
func (s *Service) CreateISP(ctx context.Context, founderID uuid.UUID, req *ISPCreateRequest, entry audit.Entry) (*ISPCreateResponse, error) {
	if _, err := s.founder(ctx, founderID); err != nil {
		return nil, err
	}

	hash, err := security.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	base := security.DomainSafe(req.CompanyName)
	if base == "" {
		base = "isp"
	}

	isp := &models.ISP{
		FounderID:     founderID,
		CompanyName:   req.CompanyName,
		Email:         req.Email,
		PasswordHash:  hash,
		ContactPerson: req.ContactPerson,
		Phone:         req.Phone,
		Address:       req.Address,
		Branding:      models.JSONMap(req.Branding),
		Settings:      models.JSONMap(req.Settings),
		IsActive:      true,
	}
	if isp.Branding == nil {
		isp.Branding = models.JSONMap{}
	}
	if isp.Settings == nil {
		isp.Settings = models.JSONMap{}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		domain, err := freeDomain(tx, base)
		if err != nil {
			return err
		}
		isp.Domain = domain
		return tx.Create(isp).Error
	})
	if err != nil {
		return nil, dbutil.WrapError(err)
	}

	s.logger.Info("ISP created",
		zap.String("isp_id", isp.ID.String()),
		zap.String("founder_id", founderID.String()),
		zap.String("domain", isp.Domain))

	s.publisher.Emit(ctx, messaging.TopicISPCreated, isp.ID.String(), founderID.String(), map[string]interface{}{
		"company_name": isp.CompanyName,
		"domain":       isp.Domain,
		"founder_id":   founderID.String(),
	})
	entry.Action = audit.ActionCreate
	entry.Resource = "isp"
	entry.NewValues = models.JSONMap{"isp_id": isp.ID.String(), "company_name": isp.CompanyName, "domain": isp.Domain}
	_ = s.audit.Record(ctx, entry)

	return &ISPCreateResponse{
		ISPID:     isp.ID.String(),
		PortalURL: s.portalURL(isp.Domain),
		Domain:    isp.Domain,
		Message:   "ISP portal created successfully",
	}, nil
}

// freeDomain returns base, or base-1, base-2 ... whichever is unused first.
func freeDomain(tx *gorm.DB, base string) (string, error) {
	candidate := base
	for n := 1; ; n++ {
		var count int64
		if err := tx.Model(&models.ISP{}).Where("domain = ?", candidate).Count(&count).Error; err != nil {
			return "", fmt.Errorf("failed to check domain: %w", err)
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
}

// ListISPs returns every ISP of the founder with its counts and revenue.
func (s *Service) ListISPs(ctx context.Context, founderID uuid.UUID) ([]ISPListResponse, error) {
	if _, err := s.founder(ctx, founderID); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	var isps []models.ISP
	if err := db.Where("founder_id = ?", founderID).Order("created_at DESC").Find(&isps).Error; err != nil {
		return nil, fmt.Errorf("failed to list isps: %w", err)
	}

	monthStart := tenancy.MonthStart(s.now())
	out := make([]ISPListResponse, 0, len(isps))
	for _, isp := range isps {
		item := ISPListResponse{
			ID:            isp.ID.String(),
			CompanyName:   isp.CompanyName,
			Domain:        isp.Domain,
			Email:         isp.Email,
			ContactPerson: isp.ContactPerson,
			IsActive:      isp.IsActive,
			CreatedAt:     isp.CreatedAt,
			PortalURL:     s.portalURL(isp.Domain),
		}
		if err := db.Model(&models.Branch{}).Where("isp_id = ?", isp.ID).Count(&item.BranchesCount).Error; err != nil {
			return nil, fmt.Errorf("failed to count branches: %w", err)
		}
		if err := db.Model(&models.User{}).Where("id IN (?)", tenancy.UsersOfISP(s.db, isp.ID)).Count(&item.UsersCount).Error; err != nil {
			return nil, fmt.Errorf("failed to count users: %w", err)
		}
		revenue, err := tenancy.CompletedRevenue(ctx, s.db, tenancy.UsersOfISP(s.db, isp.ID), monthStart, time.Time{})
		if err != nil {
			return nil, err
		}
		item.MonthlyRevenue = stats.Round2(revenue.InexactFloat64())
		out = append(out, item)
	}
	return out, nil
}

// UpdateGlobalPolicies merges the given policy groups into the founder's
// settings under global_policies.
func (s *Service) UpdateGlobalPolicies(ctx context.Context, founderID uuid.UUID, req *GlobalPoliciesRequest, entry audit.Entry) (map[string]interface{}, error) {
	f, err := s.founder(ctx, founderID)
	if err != nil {
		return nil, err
	}

	settings := models.JSONMap{}
	for k, v := range f.Settings {
		settings[k] = v
	}
	old, _ := settings["global_policies"].(map[string]interface{})
	policies := make(map[string]interface{}, len(old))
	for k, v := range old {
		policies[k] = v
	}
	for k, v := range req.groups() {
		policies[k] = v
	}
	settings["global_policies"] = policies

	if err := s.db.WithContext(ctx).Model(f).Update("settings", settings).Error; err != nil {
		return nil, fmt.Errorf("failed to update policies: %w", err)
	}

	entry.Action = audit.ActionModifyCritical
	entry.Resource = "global_policies"
	entry.OldValues = models.JSONMap{"global_policies": old}
	entry.NewValues = models.JSONMap{"global_policies": policies}
	_ = s.audit.Record(ctx, entry)

	return policies, nil
}

// RevenueAnalytics groups twelve months of completed revenue by month and
// extrapolates the next quarter from the last three months.
func (s *Service) RevenueAnalytics(ctx context.Context, founderID uuid.UUID) (*RevenueAnalyticsResponse, error) {
	if _, err := s.founder(ctx, founderID); err != nil {
		return nil, err
	}

	var payments []models.Payment
	err := s.db.WithContext(ctx).
		Where("user_id IN (?) AND status = ? AND created_at >= ?",
			tenancy.UsersOfFounder(s.db, founderID), models.PaymentCompleted, s.now().AddDate(0, 0, -365)).
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}

	monthly := make(map[string]float64)
	for _, p := range payments {
		monthly[p.CreatedAt.UTC().Format("2006-01")] += p.Amount.InexactFloat64()
	}
	months := make([]string, 0, len(monthly))
	for m := range monthly {
		monthly[m] = stats.Round2(monthly[m])
		months = append(months, m)
	}
	sort.Strings(months)

	var recent float64
	for _, m := range months[max(0, len(months)-3):] {
		recent += monthly[m]
	}
	avg3 := recent / 3

	var total float64
	for _, v := range monthly {
		total += v
	}

	return &RevenueAnalyticsResponse{
		HistoricalRevenue: monthly,
		PredictedRevenue:  []float64{stats.Round2(avg3 * 1.05), stats.Round2(avg3 * 1.08), stats.Round2(avg3 * 1.12)},
		TotalRevenue:      stats.Round2(total),
		GrowthRate:        5.0,
		ConfidenceScore:   0.85,
	}, nil
}

// SystemMonitoring reports the last week of usage across the founder's
// subscribers.
func (s *Service) SystemMonitoring(ctx context.Context, founderID uuid.UUID) (*SystemMonitoringResponse, error) {
	if _, err := s.founder(ctx, founderID); err != nil {
		return nil, err
	}
	now := s.now()

	var active int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id IN (?) AND is_active = ?", tenancy.UsersOfFounder(s.db, founderID), true).
		Count(&active).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count active users: %w", err)
	}

	usage, err := tenancy.SummarizeUsage(ctx, s.db, tenancy.UsersOfFounder(s.db, founderID), tenancy.DayStart(now).AddDate(0, 0, -7))
	if err != nil {
		return nil, err
	}

	return &SystemMonitoringResponse{
		SystemHealth:     systemHealth,
		ActiveUsers:      active,
		TotalBandwidthGB: stats.Round2(usage.TotalGB()),
		AvgPeakUsageMbps: stats.Round2(usage.AvgPeakMbps),
		Alerts: []SystemAlert{
			{Type: "info", Message: "All systems operational", Timestamp: now},
		},
		Recommendations: []string{
			"Consider upgrading bandwidth capacity in the downtown region",
			"Monitor network performance during peak hours (7-10 PM)",
		},
	}, nil
}

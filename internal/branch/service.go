// Package branch serves the per-branch views of the ISP portal.
package branch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/astranetix/bms/common/dbutil"
	"github.com/astranetix/bms/internal/audit"
	"github.com/astranetix/bms/internal/tenancy"
	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/pkg/stats"
)

const (
	deviceOnlineWindow = 5 * time.Minute
	defaultRating      = 4.0
)

type Service struct {
	db     *gorm.DB
	logger *zap.Logger
	audit  *audit.Service
	now    func() time.Time
}

func NewService(db *gorm.DB, logger *zap.Logger, auditSvc *audit.Service) *Service {
	return &Service{db: db, logger: logger, audit: auditSvc, now: tenancy.Now}
}

// find loads a branch of ispID. Branches of other ISPs are reported missing.
func (s *Service) find(ctx context.Context, ispID, branchID uuid.UUID) (*models.Branch, error) {
	return dbutil.FindExisting[models.Branch](s.db.WithContext(ctx).Where("id = ? AND isp_id = ?", branchID, ispID), "Branch")
}

type BranchCreateRequest struct {
	Name         string                 `json:"name" binding:"required,max=255"`
	Location     string                 `json:"location,omitempty" binding:"omitempty,max=255"`
	ManagerName  string                 `json:"manager_name,omitempty" binding:"omitempty,max=255"`
	ContactEmail string                 `json:"contact_email,omitempty" binding:"omitempty,email"`
	Phone        string                 `json:"phone,omitempty" binding:"omitempty,max=20"`
	Address      string                 `json:"address,omitempty"`
	Settings     map[string]interface{} `json:"settings,omitempty"`
}

type BranchCreateResponse struct {
	BranchID     string `json:"branch_id"`
	Name         string `json:"name"`
	Location     string `json:"location"`
	ManagerName  string `json:"manager_name"`
	ContactEmail string `json:"contact_email"`
	Message      string `json:"message"`
}

func (s *Service) Create(ctx context.Context, ispID uuid.UUID, req *BranchCreateRequest, entry audit.Entry) (*BranchCreateResponse, error) {
	if _, err := dbutil.FindExisting[models.ISP](s.db.WithContext(ctx).Where("id = ?", ispID), "ISP"); err != nil {
		return nil, err
	}
	b := &models.Branch{
		ISPID:        ispID,
		Name:         req.Name,
		Location:     req.Location,
		ManagerName:  req.ManagerName,
		ContactEmail: req.ContactEmail,
		Phone:        req.Phone,
		Address:      req.Address,
		Settings:     models.JSONMap(req.Settings),
		IsActive:     true,
	}
	if b.Settings == nil {
		b.Settings = models.JSONMap{}
	}
	if err := s.db.WithContext(ctx).Create(b).Error; err != nil {
		return nil, dbutil.WrapError(err)
	}

	entry.Action = audit.ActionCreate
	entry.Resource = "branch"
	entry.NewValues = models.JSONMap{"branch_id": b.ID.String(), "name": b.Name}
	_ = s.audit.Record(ctx, entry)

	return &BranchCreateResponse{
		BranchID:     b.ID.String(),
		Name:         b.Name,
		Location:     b.Location,
		ManagerName:  b.ManagerName,
		ContactEmail: b.ContactEmail,
		Message:      "Branch created successfully",
	}, nil
}

type BranchListResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Location       string    `json:"location"`
	ManagerName    string    `json:"manager_name"`
	ContactEmail   string    `json:"contact_email"`
	Phone          string    `json:"phone"`
	UserCount      int64     `json:"user_count"`
	MonthlyRevenue float64   `json:"monthly_revenue"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s *Service) List(ctx context.Context, ispID uuid.UUID) ([]BranchListResponse, error) {
	db := s.db.WithContext(ctx)
	var branches []models.Branch
	if err := db.Where("isp_id = ?", ispID).Order("created_at ASC").Find(&branches).Error; err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	monthStart := tenancy.MonthStart(s.now())

	out := make([]BranchListResponse, 0, len(branches))
	for _, b := range branches {
		item := BranchListResponse{
			ID:           b.ID.String(),
			Name:         b.Name,
			Location:     b.Location,
			ManagerName:  b.ManagerName,
			ContactEmail: b.ContactEmail,
			Phone:        b.Phone,
			IsActive:     b.IsActive,
			CreatedAt:    b.CreatedAt,
		}
		if err := db.Model(&models.User{}).Where("branch_id = ?", b.ID).Count(&item.UserCount).Error; err != nil {
			return nil, fmt.Errorf("failed to count users: %w", err)
		}
		revenue, err := tenancy.CompletedRevenue(ctx, s.db, tenancy.UsersOfBranch(s.db, b.ID), monthStart, time.Time{})
		if err != nil {
			return nil, err
		}
		item.MonthlyRevenue = stats.Round2(revenue.InexactFloat64())
		out = append(out, item)
	}
	return out, nil
}

type TopUser struct {
	Username string  `json:"username"`
	FullName string  `json:"full_name"`
	Plan     string  `json:"plan"`
	UsageGB  float64 `json:"usage_gb"`
}

type BranchDashboardResponse struct {
	BranchID           string    `json:"branch_id"`
	Name               string    `json:"name"`
	Location           string    `json:"location"`
	ManagerName        string    `json:"manager_name"`
	TotalUsers         int64     `json:"total_users"`
	MonthlyRevenue     float64   `json:"monthly_revenue"`
	TotalBandwidthGB   float64   `json:"total_bandwidth_gb"`
	AvgPeakUsageMbps   float64   `json:"avg_peak_usage_mbps"`
	OpenSupportTickets int64     `json:"open_support_tickets"`
	NetworkHealth      float64   `json:"network_health"`
	TopUsers           []TopUser `json:"top_users"`
}

func (s *Service) Dashboard(ctx context.Context, ispID, branchID uuid.UUID) (*BranchDashboardResponse, error) {
	b, err := s.find(ctx, ispID, branchID)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	now := s.now()
	monthStart := tenancy.MonthStart(now)
	users := func() *gorm.DB { return tenancy.UsersOfBranch(s.db, b.ID) }

	resp := &BranchDashboardResponse{
		BranchID:    b.ID.String(),
		Name:        b.Name,
		Location:    b.Location,
		ManagerName: b.ManagerName,
		TopUsers:    []TopUser{},
	}
	if err := db.Model(&models.User{}).Where("branch_id = ?", b.ID).Count(&resp.TotalUsers).Error; err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	revenue, err := tenancy.CompletedRevenue(ctx, s.db, users(), monthStart, time.Time{})
	if err != nil {
		return nil, err
	}
	resp.MonthlyRevenue = stats.Round2(revenue.InexactFloat64())

	usage, err := tenancy.SummarizeUsage(ctx, s.db, users(), monthStart)
	if err != nil {
		return nil, err
	}
	resp.TotalBandwidthGB = stats.Round2(usage.TotalGB())
	resp.AvgPeakUsageMbps = stats.Round2(usage.AvgPeakMbps)

	if err := db.Model(&models.SupportTicket{}).
		Where("user_id IN (?) AND status IN ?", users(), []string{models.StatusOpen, models.StatusInProgress}).
		Count(&resp.OpenSupportTickets).Error; err != nil {
		return nil, fmt.Errorf("failed to count tickets: %w", err)
	}

	if resp.NetworkHealth, err = s.deviceHealth(ctx, b.ID, now); err != nil {
		return nil, err
	}

	var top []struct {
		Username         string
		FullName         string
		SubscriptionPlan string
		Total            int64
	}
	if err := db.Model(&models.BandwidthUsage{}).
		Select("users.username, users.full_name, users.subscription_plan, COALESCE(SUM(bandwidth_usage.total_bytes),0) AS total").
		Joins("JOIN users ON users.id = bandwidth_usage.user_id").
		Where("users.branch_id = ? AND bandwidth_usage.date >= ?", b.ID, monthStart).
		Group("users.id, users.username, users.full_name, users.subscription_plan").
		Order("total DESC").
		Limit(5).
		Scan(&top).Error; err != nil {
		return nil, fmt.Errorf("failed to rank users: %w", err)
	}
	for _, u := range top {
		resp.TopUsers = append(resp.TopUsers, TopUser{
			Username: u.Username,
			FullName: u.FullName,
			Plan:     u.SubscriptionPlan,
			UsageGB:  stats.Round2(float64(u.Total) / models.BytesPerGB),
		})
	}
	return resp, nil
}

// deviceHealth is the share of active devices seen in the last five minutes.
// A branch without devices reports full health.
func (s *Service) deviceHealth(ctx context.Context, branchID uuid.UUID, now time.Time) (float64, error) {
	var total, online int64
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.NetworkDevice{}).Where("branch_id = ? AND is_active = ?", branchID, true).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count devices: %w", err)
	}
	if total == 0 {
		return 100, nil
	}
	if err := db.Model(&models.NetworkDevice{}).
		Where("branch_id = ? AND is_active = ? AND last_seen >= ?", branchID, true, now.Add(-deviceOnlineWindow)).
		Count(&online).Error; err != nil {
		return 0, fmt.Errorf("failed to count online devices: %w", err)
	}
	return stats.Percent(float64(online), float64(total)), nil
}

type BranchUserListResponse struct {
	ID                string     `json:"id"`
	Username          string     `json:"username"`
	FullName          string     `json:"full_name"`
	Email             string     `json:"email"`
	SubscriptionPlan  string     `json:"subscription_plan"`
	BandwidthLimit    int        `json:"bandwidth_limit"`
	IsActive          bool       `json:"is_active"`
	RecentUsageGB     float64    `json:"recent_usage_gb"`
	LastPaymentStatus string     `json:"last_payment_status"`
	LastPaymentDate   *time.Time `json:"last_payment_date"`
	OpenTickets       int64      `json:"open_tickets"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Users lists the branch's subscribers with their last week of usage, last
// payment and open tickets.
func (s *Service) Users(ctx context.Context, ispID, branchID uuid.UUID) ([]BranchUserListResponse, error) {
	b, err := s.find(ctx, ispID, branchID)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	var users []models.User
	if err := db.Where("branch_id = ?", b.ID).Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	since := tenancy.DayStart(s.now()).AddDate(0, 0, -7)

	out := make([]BranchUserListResponse, 0, len(users))
	for _, u := range users {
		item := BranchUserListResponse{
			ID:                u.ID.String(),
			Username:          u.Username,
			FullName:          u.FullName,
			Email:             u.Email,
			SubscriptionPlan:  u.SubscriptionPlan,
			BandwidthLimit:    u.BandwidthLimit,
			IsActive:          u.IsActive,
			LastPaymentStatus: "none",
			CreatedAt:         u.CreatedAt,
		}
		var recent int64
		if err := db.Model(&models.BandwidthUsage{}).Select("COALESCE(SUM(total_bytes),0)").
			Where("user_id = ? AND date >= ?", u.ID, since).Scan(&recent).Error; err != nil {
			return nil, fmt.Errorf("failed to sum usage: %w", err)
		}
		item.RecentUsageGB = stats.Round2(float64(recent) / models.BytesPerGB)

		var p models.Payment
		if err := db.Where("user_id = ?", u.ID).Order("created_at DESC").Limit(1).Find(&p).Error; err != nil {
			return nil, fmt.Errorf("failed to load payment: %w", err)
		}
		if p.ID != uuid.Nil {
			created := p.CreatedAt
			item.LastPaymentStatus = p.Status
			item.LastPaymentDate = &created
		}
		if err := db.Model(&models.SupportTicket{}).
			Where("user_id = ? AND status IN ?", u.ID, []string{models.StatusOpen, models.StatusInProgress}).
			Count(&item.OpenTickets).Error; err != nil {
			return nil, fmt.Errorf("failed to count tickets: %w", err)
		}
		out = append(out, item)
	}
	return out, nil
}

type BranchAnalyticsResponse struct {
	BranchID                  string   `json:"branch_id"`
	BranchName                string   `json:"branch_name"`
	TotalUsers                int64    `json:"total_users"`
	NewUsersMonth             int64    `json:"new_users_month"`
	UserGrowthRate            float64  `json:"user_growth_rate"`
	TotalRevenueMonth         float64  `json:"total_revenue_month"`
	AvgRevenuePerUser         float64  `json:"avg_revenue_per_user"`
	PeakUsageHour             int      `json:"peak_usage_hour"`
	CustomerSatisfactionScore float64  `json:"customer_satisfaction_score"`
	SupportTicketsMonth       int64    `json:"support_tickets_month"`
	NetworkUtilization        float64  `json:"network_utilization"`
	Recommendations           []string `json:"recommendations"`
	PerformanceScore          float64  `json:"performance_score"`
}

// Analytics scores the branch on utilization, satisfaction and ticket
// resolution for the current month.
func (s *Service) Analytics(ctx context.Context, ispID, branchID uuid.UUID) (*BranchAnalyticsResponse, error) {
	b, err := s.find(ctx, ispID, branchID)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	now := s.now()
	monthStart := tenancy.MonthStart(now)
	lastMonth := monthStart.AddDate(0, -1, 0)
	users := func() *gorm.DB { return tenancy.UsersOfBranch(s.db, b.ID) }

	resp := &BranchAnalyticsResponse{BranchID: b.ID.String(), BranchName: b.Name}
	if err := db.Model(&models.User{}).Where("branch_id = ?", b.ID).Count(&resp.TotalUsers).Error; err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	var prevNew int64
	if err := db.Model(&models.User{}).Where("branch_id = ? AND created_at >= ?", b.ID, monthStart).Count(&resp.NewUsersMonth).Error; err != nil {
		return nil, fmt.Errorf("failed to count new users: %w", err)
	}
	if err := db.Model(&models.User{}).Where("branch_id = ? AND created_at >= ? AND created_at < ?", b.ID, lastMonth, monthStart).Count(&prevNew).Error; err != nil {
		return nil, fmt.Errorf("failed to count new users: %w", err)
	}
	resp.UserGrowthRate = tenancy.GrowthPercent(float64(resp.NewUsersMonth), float64(prevNew))

	revenue, err := tenancy.CompletedRevenue(ctx, s.db, users(), monthStart, time.Time{})
	if err != nil {
		return nil, err
	}
	resp.TotalRevenueMonth = stats.Round2(revenue.InexactFloat64())
	resp.AvgRevenuePerUser = stats.Round2(stats.Ratio(resp.TotalRevenueMonth, float64(resp.TotalUsers)))

	var hours []int
	if err := db.Model(&models.BandwidthUsage{}).Where("user_id IN (?) AND date >= ?", users(), monthStart).
		Pluck("peak_hour", &hours).Error; err != nil {
		return nil, fmt.Errorf("failed to load peak hours: %w", err)
	}
	resp.PeakUsageHour = stats.Mode(hours, 20)

	tickets := func() *gorm.DB {
		return db.Model(&models.SupportTicket{}).Where("user_id IN (?) AND created_at >= ?", users(), monthStart)
	}
	if resp.CustomerSatisfactionScore, err = tenancy.MeanRating(ctx, tickets(), defaultRating); err != nil {
		return nil, err
	}
	var resolved int64
	if err := tickets().Count(&resp.SupportTicketsMonth).Error; err != nil {
		return nil, fmt.Errorf("failed to count tickets: %w", err)
	}
	if err := tickets().Where("status IN ?", []string{models.StatusResolved, models.StatusClosed}).Count(&resolved).Error; err != nil {
		return nil, fmt.Errorf("failed to count resolved tickets: %w", err)
	}
	resolution := 1.0
	if resp.SupportTicketsMonth > 0 {
		resolution = float64(resolved) / float64(resp.SupportTicketsMonth)
	}

	var util struct {
		AvgPeak  float64
		AvgLimit float64
	}
	if err := db.Model(&models.BandwidthUsage{}).
		Select("COALESCE(AVG(bandwidth_usage.peak_usage_mbps),0) AS avg_peak, COALESCE(AVG(users.bandwidth_limit),0) AS avg_limit").
		Joins("JOIN users ON users.id = bandwidth_usage.user_id").
		Where("users.branch_id = ? AND bandwidth_usage.date >= ?", b.ID, monthStart).
		Scan(&util).Error; err != nil {
		return nil, fmt.Errorf("failed to compute utilization: %w", err)
	}
	resp.NetworkUtilization = stats.Percent(util.AvgPeak, util.AvgLimit)

	resp.PerformanceScore = stats.Round2(stats.Mean([]float64{
		stats.Clamp(100-resp.NetworkUtilization, 0, 100),
		resp.CustomerSatisfactionScore * 20,
		resolution * 100,
	}))
	resp.Recommendations = branchAdvice(resp, resolution)
	return resp, nil
}

func branchAdvice(r *BranchAnalyticsResponse, resolution float64) []string {
	var out []string
	if r.NetworkUtilization > 80 {
		out = append(out, "Network utilization is high; upgrade branch uplink capacity")
	}
	if r.CustomerSatisfactionScore < 3.5 {
		out = append(out, "Customer satisfaction is below target; review recent support interactions")
	}
	if resolution < 0.8 {
		out = append(out, "Resolve outstanding support tickets to improve response metrics")
	}
	if r.NewUsersMonth == 0 {
		out = append(out, "No new subscribers this month; consider a local acquisition campaign")
	}
	out = append(out, fmt.Sprintf("Schedule maintenance away from the %02d:00 peak", r.PeakUsageHour))
	return out
}

// Package isp serves the ISP portal: subscribers, plans, network settings and
// ISP-wide analytics.
package isp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/astranetix/bms/common/dbutil"
	"github.com/astranetix/bms/common/errors"
	"github.com/astranetix/bms/internal/audit"
	"github.com/astranetix/bms/internal/messaging"
	"github.com/astranetix/bms/internal/tenancy"
	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/pkg/security"
	"github.com/astranetix/bms/pkg/stats"
)

// Service implements the ISP portal.
type Service struct {
	db        *gorm.DB
	logger    *zap.Logger
	publisher *messaging.Publisher
	audit     *audit.Service
	sealer    *security.Sealer
	now       func() time.Time
}

func NewService(db *gorm.DB, logger *zap.Logger, publisher *messaging.Publisher, auditSvc *audit.Service, sealer *security.Sealer) *Service {
	return &Service{
		db:        db,
		logger:    logger,
		publisher: publisher,
		audit:     auditSvc,
		sealer:    sealer,
		now:       tenancy.Now,
	}
}

func (s *Service) isp(ctx context.Context, id uuid.UUID) (*models.ISP, error) {
	return dbutil.FindExisting[models.ISP](s.db.WithContext(ctx).Where("id = ?", id), "ISP")
}

func (s *Service) branchOf(ctx context.Context, ispID, branchID uuid.UUID) (*models.Branch, error) {
	return dbutil.FindExisting[models.Branch](s.db.WithContext(ctx).Where("id = ? AND isp_id = ?", branchID, ispID), "Branch")
}

func (s *Service) subscriberOf(ctx context.Context, ispID, userID uuid.UUID) (*models.User, error) {
	return dbutil.FindExisting[models.User](s.db.WithContext(ctx).
		Where("id = ? AND id IN (?)", userID, tenancy.UsersOfISP(s.db, ispID)), "Subscriber")
}

type TicketSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Priority  string    `json:"priority"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type DashboardResponse struct {
	SubscriberCount  int64                  `json:"subscriber_count"`
	BranchesCount    int64                  `json:"branches_count"`
	MonthlyRevenue   float64                `json:"monthly_revenue"`
	TotalBandwidthGB float64                `json:"total_bandwidth_gb"`
	AvgPeakUsageMbps float64                `json:"avg_peak_usage_mbps"`
	NetworkHealth    float64                `json:"network_health"`
	RecentTickets    []TicketSummary        `json:"recent_tickets"`
	Branding         map[string]interface{} `json:"branding"`
}

// Dashboard summarises the ISP's subscribers, revenue, usage and alerts.
func (s *Service) Dashboard(ctx context.Context, ispID uuid.UUID) (*DashboardResponse, error) {
	isp, err := s.isp(ctx, ispID)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	now := s.now()
	resp := &DashboardResponse{Branding: isp.Branding, RecentTickets: []TicketSummary{}}
	if resp.Branding == nil {
		resp.Branding = map[string]interface{}{}
	}

	if err := db.Model(&models.User{}).Where("id IN (?)", tenancy.UsersOfISP(s.db, ispID)).Count(&resp.SubscriberCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count subscribers: %w", err)
	}
	if err := db.Model(&models.Branch{}).Where("isp_id = ?", ispID).Count(&resp.BranchesCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count branches: %w", err)
	}

	revenue, err := tenancy.CompletedRevenue(ctx, s.db, tenancy.UsersOfISP(s.db, ispID), tenancy.MonthStart(now), time.Time{})
	if err != nil {
		return nil, err
	}
	resp.MonthlyRevenue = stats.Round2(revenue.InexactFloat64())

	usage, err := tenancy.SummarizeUsage(ctx, s.db, tenancy.UsersOfISP(s.db, ispID), tenancy.DayStart(now).AddDate(0, 0, -30))
	if err != nil {
		return nil, err
	}
	resp.TotalBandwidthGB = stats.Round2(usage.TotalGB())
	resp.AvgPeakUsageMbps = stats.Round2(usage.AvgPeakMbps)

	critical, recent, err := tenancy.AlertCounts(ctx, s.db, ispID, now)
	if err != nil {
		return nil, err
	}
	resp.NetworkHealth = tenancy.NetworkHealth(critical, recent)

	var tickets []models.SupportTicket
	if err := db.Where("tenant_id = ?", ispID).Order("created_at DESC").Limit(5).Find(&tickets).Error; err != nil {
		return nil, fmt.Errorf("failed to load tickets: %w", err)
	}
	for _, t := range tickets {
		resp.RecentTickets = append(resp.RecentTickets, TicketSummary{
			ID: t.ID.String(), Title: t.Title, Priority: t.Priority, Status: t.Status, CreatedAt: t.CreatedAt,
		})
	}
	return resp, nil
}

// SubscriberCreateRequest is the body of POST /isp/subscribers.
type SubscriberCreateRequest struct {
	BranchID       string `json:"branch_id" binding:"required,uuid"`
	PlanID         string `json:"plan_id" binding:"required,uuid"`
	Username       string `json:"username" binding:"required,min=3,max=100"`
	Email          string `json:"email" binding:"required,email"`
	Password       string `json:"password,omitempty" binding:"omitempty,min=8"`
	FullName       string `json:"full_name" binding:"required,max=255"`
	Phone          string `json:"phone,omitempty" binding:"omitempty,max=50"`
	Address        string `json:"address,omitempty"`
	ConnectionType string `json:"connection_type,omitempty" binding:"omitempty,oneof=broadband fiber wireless dsl cable satellite"`
	IPAddress      string `json:"ip_address,omitempty" binding:"omitempty,ip"`
	MACAddress     string `json:"mac_address,omitempty" binding:"omitempty,mac"`
}

type SubscriberCreateResponse struct {
	UserID            string `json:"user_id"`
	Username          string `json:"username"`
	Email             string `json:"email"`
	GeneratedPassword string `json:"generated_password,omitempty"`
	PlanName          string `json:"plan_name"`
	BandwidthLimit    int    `json:"bandwidth_limit"`
	Message           string `json:"message"`
}

// CreateSubscriber adds a subscriber on one of the ISP's branches. The plan's
// name and limits are copied onto the subscriber.
func (s *Service) CreateSubscriber(ctx context.Context, ispID uuid.UUID, req *SubscriberCreateRequest, entry audit.Entry) (*SubscriberCreateResponse, error) {
	if _, err := s.isp(ctx, ispID); err != nil {
		return nil, err
	}
	branch, err := s.branchOf(ctx, ispID, uuid.MustParse(req.BranchID))
	if err != nil {
		return nil, err
	}
	plan, err := dbutil.FindExisting[models.SubscriptionPlan](s.db.WithContext(ctx).
		Where("id = ? AND isp_id = ?", req.PlanID, ispID), "Plan")
	if err != nil {
		return nil, err
	}

	var taken int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", req.Username).Count(&taken).Error; err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if taken > 0 {
		return nil, errors.Conflict.Explain("Username already exists")
	}

	password := req.Password
	generated := ""
	if password == "" {
		if password, err = security.GeneratePassword(security.DefaultPasswordLength); err != nil {
			return nil, fmt.Errorf("failed to generate password: %w", err)
		}
		generated = password
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	connType := req.ConnectionType
	if connType == "" {
		connType = "broadband"
	}
	planID := plan.ID
	user := &models.User{
		BranchID:         branch.ID,
		PlanID:           &planID,
		Username:         req.Username,
		Email:            req.Email,
		PasswordHash:     hash,
		FullName:         req.FullName,
		Phone:            req.Phone,
		Address:          req.Address,
		SubscriptionPlan: plan.Name,
		BandwidthLimit:   plan.BandwidthLimit,
		DataLimit:        plan.DataLimit,
		ConnectionType:   connType,
		IPAddress:        req.IPAddress,
		MACAddress:       req.MACAddress,
		IsActive:         true,
		Settings:         models.JSONMap{},
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, dbutil.WrapError(err)
	}

	s.logger.Info("Subscriber created",
		zap.String("isp_id", ispID.String()),
		zap.String("user_id", user.ID.String()),
		zap.String("branch_id", branch.ID.String()))
	s.publisher.Emit(ctx, messaging.TopicSubscriberCreated, ispID.String(), ispID.String(), map[string]interface{}{
		"user_id":   user.ID.String(),
		"branch_id": branch.ID.String(),
		"plan_id":   plan.ID.String(),
	})
	entry.Action = audit.ActionCreate
	entry.Resource = "subscriber"
	entry.NewValues = models.JSONMap{"user_id": user.ID.String(), "username": user.Username, "plan": plan.Name}
	_ = s.audit.Record(ctx, entry)

	return &SubscriberCreateResponse{
		UserID:            user.ID.String(),
		Username:          user.Username,
		Email:             user.Email,
		GeneratedPassword: generated,
		PlanName:          plan.Name,
		BandwidthLimit:    plan.BandwidthLimit,
		Message:           "Subscriber created successfully",
	}, nil
}

// SubscriberFilter narrows the subscriber list.
type SubscriberFilter struct {
	Page     int    `form:"page"`
	Limit    int    `form:"limit"`
	BranchID string `form:"branch_id" binding:"omitempty,uuid"`
	Active   *bool  `form:"active"`
}

type SubscriberListResponse struct {
	ID                string    `json:"id"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	FullName          string    `json:"full_name"`
	SubscriptionPlan  string    `json:"subscription_plan"`
	BandwidthLimit    int       `json:"bandwidth_limit"`
	IsActive          bool      `json:"is_active"`
	LastUsageGB       float64   `json:"last_usage_gb"`
	LastPaymentStatus string    `json:"last_payment_status"`
	CreatedAt         time.Time `json:"created_at"`
	BranchName        string    `json:"branch_name"`
}

// ListSubscribers returns one page of the ISP's subscribers, newest first,
// and the total matching count.
func (s *Service) ListSubscribers(ctx context.Context, ispID uuid.UUID, f SubscriberFilter) ([]SubscriberListResponse, int64, error) {
	if _, err := s.isp(ctx, ispID); err != nil {
		return nil, 0, err
	}
	db := s.db.WithContext(ctx)

	query := func() *gorm.DB {
		q := db.Model(&models.User{}).
			Joins("JOIN branches ON branches.id = users.branch_id").
			Where("branches.isp_id = ?", ispID)
		if f.BranchID != "" {
			q = q.Where("users.branch_id = ?", f.BranchID)
		}
		if f.Active != nil {
			q = q.Where("users.is_active = ?", *f.Active)
		}
		return q
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count subscribers: %w", err)
	}

	var rows []models.User
	if err := query().Select("users.*").
		Order("users.created_at DESC").
		Scopes(dbutil.Paginate(f.Page, f.Limit)).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list subscribers: %w", err)
	}

	var branches []models.Branch
	if err := db.Select("id", "name").Where("isp_id = ?", ispID).Find(&branches).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to load branches: %w", err)
	}
	branchNames := make(map[uuid.UUID]string, len(branches))
	for _, b := range branches {
		branchNames[b.ID] = b.Name
	}

	out := make([]SubscriberListResponse, 0, len(rows))
	for _, r := range rows {
		item := SubscriberListResponse{
			ID:                r.ID.String(),
			Username:          r.Username,
			Email:             r.Email,
			FullName:          r.FullName,
			SubscriptionPlan:  r.SubscriptionPlan,
			BandwidthLimit:    r.BandwidthLimit,
			IsActive:          r.IsActive,
			LastPaymentStatus: "none",
			CreatedAt:         r.CreatedAt,
			BranchName:        branchNames[r.BranchID],
		}

		var usage models.BandwidthUsage
		if err := db.Where("user_id = ?", r.ID).Order("date DESC").Limit(1).Find(&usage).Error; err != nil {
			return nil, 0, fmt.Errorf("failed to load usage: %w", err)
		}
		item.LastUsageGB = stats.Round2(float64(usage.TotalBytes) / models.BytesPerGB)

		var payment models.Payment
		if err := db.Where("user_id = ?", r.ID).Order("created_at DESC").Limit(1).Find(&payment).Error; err != nil {
			return nil, 0, fmt.Errorf("failed to load payment: %w", err)
		}
		if payment.ID != uuid.Nil {
			item.LastPaymentStatus = payment.Status
		}
		out = append(out, item)
	}
	return out, total, nil
}

type SubscriberStatusRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// SetSubscriberActive suspends or reactivates a subscriber.
func (s *Service) SetSubscriberActive(ctx context.Context, ispID, userID uuid.UUID, active bool, entry audit.Entry) (*SubscriberListResponse, error) {
	user, err := s.subscriberOf(ctx, ispID, userID)
	if err != nil {
		return nil, err
	}
	previous := user.IsActive
	if err := s.db.WithContext(ctx).Model(user).Update("is_active", active).Error; err != nil {
		return nil, fmt.Errorf("failed to update subscriber: %w", err)
	}

	if previous && !active {
		s.publisher.Emit(ctx, messaging.TopicSubscriberSuspended, ispID.String(), ispID.String(), map[string]interface{}{
			"user_id": user.ID.String(),
		})
	}
	entry.Action = audit.ActionSubscriberState
	entry.Resource = "subscriber"
	entry.OldValues = models.JSONMap{"is_active": previous}
	entry.NewValues = models.JSONMap{"is_active": active, "user_id": user.ID.String()}
	_ = s.audit.Record(ctx, entry)

	return &SubscriberListResponse{
		ID:               user.ID.String(),
		Username:         user.Username,
		Email:            user.Email,
		FullName:         user.FullName,
		SubscriptionPlan: user.SubscriptionPlan,
		BandwidthLimit:   user.BandwidthLimit,
		IsActive:         active,
		CreatedAt:        user.CreatedAt,
	}, nil
}

// PlanCreateRequest is the body of POST /isp/plans.
type PlanCreateRequest struct {
	Name           string                 `json:"name" binding:"required,max=100"`
	Description    string                 `json:"description,omitempty"`
	BandwidthLimit int                    `json:"bandwidth_limit" binding:"required,min=1"`
	DataLimit      *int                   `json:"data_limit,omitempty" binding:"omitempty,min=1"`
	Price          decimal.Decimal        `json:"price"`
	Currency       string                 `json:"currency,omitempty" binding:"omitempty,currency_code"`
	BillingCycle   string                 `json:"billing_cycle,omitempty" binding:"omitempty,oneof=monthly quarterly yearly"`
	Features       map[string]interface{} `json:"features,omitempty"`
}

type PlanResponse struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name"`
	Description    string                 `json:"description"`
	BandwidthLimit int                    `json:"bandwidth_limit"`
	DataLimit      *int                   `json:"data_limit"`
	Price          float64                `json:"price"`
	Currency       string                 `json:"currency"`
	BillingCycle   string                 `json:"billing_cycle"`
	Features       map[string]interface{} `json:"features"`
	IsActive       bool                   `json:"is_active"`
}

func planResponse(p *models.SubscriptionPlan) PlanResponse {
	features := map[string]interface{}(p.Features)
	if features == nil {
		features = map[string]interface{}{}
	}
	return PlanResponse{
		ID:             p.ID.String(),
		Name:           p.Name,
		Description:    p.Description,
		BandwidthLimit: p.BandwidthLimit,
		DataLimit:      p.DataLimit,
		Price:          p.Price.InexactFloat64(),
		Currency:       p.Currency,
		BillingCycle:   p.BillingCycle,
		Features:       features,
		IsActive:       p.IsActive,
	}
}

// CreatePlan adds a subscription plan to the ISP's catalogue.
func (s *Service) CreatePlan(ctx context.Context, ispID uuid.UUID, req *PlanCreateRequest) (*PlanResponse, error) {
	if _, err := s.isp(ctx, ispID); err != nil {
		return nil, err
	}
	if !req.Price.IsPositive() {
		return nil, errors.Invalid.Explain("price must be positive").WithField("gt", "price", "price must be greater than 0")
	}
	plan := &models.SubscriptionPlan{
		ISPID:          ispID,
		Name:           req.Name,
		Description:    req.Description,
		BandwidthLimit: req.BandwidthLimit,
		DataLimit:      req.DataLimit,
		Price:          req.Price.Round(2),
		Currency:       strings.ToUpper(req.Currency),
		BillingCycle:   req.BillingCycle,
		Features:       models.JSONMap(req.Features),
		IsActive:       true,
	}
	if plan.Currency == "" {
		plan.Currency = "USD"
	}
	if plan.BillingCycle == "" {
		plan.BillingCycle = "monthly"
	}
	if plan.Features == nil {
		plan.Features = models.JSONMap{}
	}
	if err := s.db.WithContext(ctx).Create(plan).Error; err != nil {
		return nil, dbutil.WrapError(err)
	}
	resp := planResponse(plan)
	return &resp, nil
}

// ListPlans returns the ISP's plans, cheapest first.
func (s *Service) ListPlans(ctx context.Context, ispID uuid.UUID) ([]PlanResponse, error) {
	if _, err := s.isp(ctx, ispID); err != nil {
		return nil, err
	}
	var plans []models.SubscriptionPlan
	if err := s.db.WithContext(ctx).Where("isp_id = ?", ispID).Order("price ASC").Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	out := make([]PlanResponse, 0, len(plans))
	for i := range plans {
		out = append(out, planResponse(&plans[i]))
	}
	return out, nil
}

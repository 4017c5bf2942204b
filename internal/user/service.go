// Package user serves the subscriber self-care portal.
package user

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/astranetix/bms/common/dbutil"
	"github.com/astranetix/bms/common/errors"
	"github.com/astranetix/bms/internal/audit"
	"github.com/astranetix/bms/internal/support"
	"github.com/astranetix/bms/internal/tenancy"
	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/pkg/stats"
)

const (
	warnUsagePercent = 80.0
	suggestionCount  = 3
)

type Service struct {
	db      *gorm.DB
	logger  *zap.Logger
	support *support.Service
	audit   *audit.Service
	now     func() time.Time
}

func NewService(db *gorm.DB, logger *zap.Logger, supportSvc *support.Service, auditSvc *audit.Service) *Service {
	return &Service{db: db, logger: logger, support: supportSvc, audit: auditSvc, now: tenancy.Now}
}

func (s *Service) subscriber(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return dbutil.FindExisting[models.User](s.db.WithContext(ctx).Where("id = ?", userID), "User")
}

// ispOf resolves the ISP that owns the subscriber's branch.
func (s *Service) ispOf(ctx context.Context, u *models.User) (uuid.UUID, error) {
	b, err := dbutil.FindExisting[models.Branch](s.db.WithContext(ctx).Where("id = ?", u.BranchID), "Branch")
	if err != nil {
		return uuid.Nil, err
	}
	return b.ISPID, nil
}

func gb(bytes int64) float64 {
	return stats.Round2(float64(bytes) / models.BytesPerGB)
}

type DashboardResponse struct {
	UserID             string  `json:"user_id"`
	Username           string  `json:"username"`
	FullName           string  `json:"full_name"`
	Email              string  `json:"email"`
	SubscriptionPlan   string  `json:"subscription_plan"`
	BandwidthLimit     int     `json:"bandwidth_limit"`
	DataLimit          *int    `json:"data_limit"`
	CurrentUsageGB     float64 `json:"current_usage_gb"`
	UsagePercentage    float64 `json:"usage_percentage"`
	PeakUsageMbps      int     `json:"peak_usage_mbps"`
	AccountStatus      string  `json:"account_status"`
	NextBillingDate    string  `json:"next_billing_date"`
	LastPaymentAmount  float64 `json:"last_payment_amount"`
	LastPaymentStatus  string  `json:"last_payment_status"`
	OpenSupportTickets int64   `json:"open_support_tickets"`
	ConnectionStatus   string  `json:"connection_status"`
	IPAddress          *string `json:"ip_address"`
}

func usagePercent(usedGB float64, limit *int) float64 {
	if limit == nil || *limit <= 0 {
		return 0
	}
	return stats.Percent(usedGB, float64(*limit))
}

// Dashboard summarises the subscriber's month to date.
func (s *Service) Dashboard(ctx context.Context, userID uuid.UUID) (*DashboardResponse, error) {
	u, err := s.subscriber(ctx, userID)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	now := s.now()

	var month struct {
		Total int64
		Peak  float64
	}
	if err := db.Model(&models.BandwidthUsage{}).
		Select("COALESCE(SUM(total_bytes),0) AS total, COALESCE(MAX(peak_usage_mbps),0) AS peak").
		Where("user_id = ? AND date >= ?", u.ID, tenancy.MonthStart(now)).
		Scan(&month).Error; err != nil {
		return nil, fmt.Errorf("failed to summarize usage: %w", err)
	}
	usedGB := float64(month.Total) / models.BytesPerGB

	resp := &DashboardResponse{
		UserID:            u.ID.String(),
		Username:          u.Username,
		FullName:          u.FullName,
		Email:             u.Email,
		SubscriptionPlan:  u.SubscriptionPlan,
		BandwidthLimit:    u.BandwidthLimit,
		DataLimit:         u.DataLimit,
		CurrentUsageGB:    stats.Round2(usedGB),
		UsagePercentage:   usagePercent(usedGB, u.DataLimit),
		PeakUsageMbps:     int(month.Peak),
		AccountStatus:     "active",
		NextBillingDate:   tenancy.NextMonthStart(now).Format("2006-01-02"),
		LastPaymentStatus: "none",
		ConnectionStatus:  "offline",
	}
	if !u.IsActive {
		resp.AccountStatus = "suspended"
	}
	if u.IPAddress != "" {
		ip := u.IPAddress
		resp.IPAddress = &ip
	}

	var last models.Payment
	if err := db.Where("user_id = ?", u.ID).Order("created_at DESC").Limit(1).Find(&last).Error; err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	if last.ID != uuid.Nil {
		resp.LastPaymentAmount = last.Amount.InexactFloat64()
		resp.LastPaymentStatus = last.Status
	}

	if err := db.Model(&models.SupportTicket{}).
		Where("user_id = ? AND status IN ?", u.ID, []string{models.StatusOpen, models.StatusInProgress}).
		Count(&resp.OpenSupportTickets).Error; err != nil {
		return nil, fmt.Errorf("failed to count tickets: %w", err)
	}

	var today int64
	if err := db.Model(&models.BandwidthUsage{}).
		Where("user_id = ? AND date >= ?", u.ID, tenancy.DayStart(now)).
		Count(&today).Error; err != nil {
		return nil, fmt.Errorf("failed to check connection: %w", err)
	}
	if today > 0 {
		resp.ConnectionStatus = "online"
	}
	return resp, nil
}

type UsageAlert struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type DailyUsage struct {
	UploadGB      float64 `json:"upload_gb"`
	DownloadGB    float64 `json:"download_gb"`
	TotalGB       float64 `json:"total_gb"`
	PeakUsageMbps float64 `json:"peak_usage_mbps"`
}

type UsageResponse struct {
	UserID             string                `json:"user_id"`
	PeriodDays         int                   `json:"period_days"`
	TotalUsageGB       float64               `json:"total_usage_gb"`
	AvgDailyUsageGB    float64               `json:"avg_daily_usage_gb"`
	PeakUsageMbps      int                   `json:"peak_usage_mbps"`
	DataLimitGB        *int                  `json:"data_limit_gb"`
	BandwidthLimitMbps int                   `json:"bandwidth_limit_mbps"`
	DailyUsage         map[string]DailyUsage `json:"daily_usage"`
	Alerts             []UsageAlert          `json:"alerts"`
	OptimizationTips   []string              `json:"optimization_tips"`
}

// Usage reports the last days of traffic with limit alerts and tips.
func (s *Service) Usage(ctx context.Context, userID uuid.UUID, days int) (*UsageResponse, error) {
	u, err := s.subscriber(ctx, userID)
	if err != nil {
		return nil, err
	}
	since := tenancy.DayStart(s.now()).AddDate(0, 0, -days)
	var records []models.BandwidthUsage
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND date >= ?", u.ID, since).
		Order("date ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load usage: %w", err)
	}

	resp := &UsageResponse{
		UserID:             u.ID.String(),
		PeriodDays:         days,
		DataLimitGB:        u.DataLimit,
		BandwidthLimitMbps: u.BandwidthLimit,
		DailyUsage:         make(map[string]DailyUsage, len(records)),
		Alerts:             []UsageAlert{},
	}
	var total int64
	var peak float64
	var peaks []float64
	hours := make([]int, 0, len(records))
	for _, r := range records {
		total += r.TotalBytes
		peak = max(peak, r.PeakUsageMbps)
		peaks = append(peaks, r.PeakUsageMbps)
		hours = append(hours, r.PeakHour)

		key := r.Date.UTC().Format("2006-01-02")
		d := resp.DailyUsage[key]
		d.UploadGB = stats.Round2(d.UploadGB + float64(r.UploadBytes)/models.BytesPerGB)
		d.DownloadGB = stats.Round2(d.DownloadGB + float64(r.DownloadBytes)/models.BytesPerGB)
		d.TotalGB = stats.Round2(d.TotalGB + float64(r.TotalBytes)/models.BytesPerGB)
		d.PeakUsageMbps = max(d.PeakUsageMbps, r.PeakUsageMbps)
		resp.DailyUsage[key] = d
	}
	totalGB := float64(total) / models.BytesPerGB
	resp.TotalUsageGB = stats.Round2(totalGB)
	resp.AvgDailyUsageGB = stats.Round2(totalGB / float64(days))
	resp.PeakUsageMbps = int(peak)

	pct := usagePercent(totalGB, u.DataLimit)
	switch {
	case total == 0:
		resp.Alerts = append(resp.Alerts, UsageAlert{Type: "info", Message: "No usage recorded in this period"})
	case u.DataLimit != nil && pct >= 100:
		resp.Alerts = append(resp.Alerts, UsageAlert{Type: "critical",
			Message: fmt.Sprintf("You have used %.2f GB, exceeding your %d GB data limit", totalGB, *u.DataLimit)})
	case u.DataLimit != nil && pct >= warnUsagePercent:
		resp.Alerts = append(resp.Alerts, UsageAlert{Type: "warning",
			Message: fmt.Sprintf("You have used %.0f%% of your %d GB data limit", pct, *u.DataLimit)})
	}
	resp.OptimizationTips = usageTips(u, pct, stats.Mean(peaks), hours)
	return resp, nil
}

func usageTips(u *models.User, pct, avgPeak float64, hours []int) []string {
	var tips []string
	if len(hours) > 0 {
		if h := stats.Mode(hours, 20); h >= 18 && h <= 23 {
			tips = append(tips, fmt.Sprintf("Your usage peaks around %02d:00. Schedule large downloads and backups overnight.", h))
		}
	}
	if u.BandwidthLimit > 0 && avgPeak >= 0.9*float64(u.BandwidthLimit) {
		tips = append(tips, "Your connection often runs at full speed. A faster plan would reduce slowdowns.")
	}
	if pct >= warnUsagePercent {
		tips = append(tips, "Consider upgrading to a plan with a higher data limit.")
	}
	if len(tips) == 0 {
		tips = append(tips, "Your usage is well within your plan.")
	}
	return tips
}

type PaymentInfo struct {
	ID                 string     `json:"id"`
	Amount             float64    `json:"amount"`
	Currency           string     `json:"currency"`
	Status             string     `json:"status"`
	Gateway            string     `json:"gateway"`
	BillingPeriodStart *time.Time `json:"billing_period_start"`
	BillingPeriodEnd   *time.Time `json:"billing_period_end"`
	CreatedAt          time.Time  `json:"created_at"`
}

type PaymentHistoryResponse struct {
	UserID          string        `json:"user_id"`
	TotalPayments   int           `json:"total_payments"`
	TotalAmountPaid float64       `json:"total_amount_paid"`
	Payments        []PaymentInfo `json:"payments"`
}

// Payments lists every payment newest first. The totals count completed
// payments only.
func (s *Service) Payments(ctx context.Context, userID uuid.UUID) (*PaymentHistoryResponse, error) {
	u, err := s.subscriber(ctx, userID)
	if err != nil {
		return nil, err
	}
	var payments []models.Payment
	if err := s.db.WithContext(ctx).Where("user_id = ?", u.ID).Order("created_at DESC").Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}
	resp := &PaymentHistoryResponse{UserID: u.ID.String(), Payments: make([]PaymentInfo, 0, len(payments))}
	var paid []float64
	for _, p := range payments {
		if p.Status == models.PaymentCompleted {
			resp.TotalPayments++
			paid = append(paid, p.Amount.InexactFloat64())
		}
		resp.Payments = append(resp.Payments, PaymentInfo{
			ID:                 p.ID.String(),
			Amount:             p.Amount.InexactFloat64(),
			Currency:           p.Currency,
			Status:             p.Status,
			Gateway:            p.Gateway,
			BillingPeriodStart: p.BillingPeriodStart,
			BillingPeriodEnd:   p.BillingPeriodEnd,
			CreatedAt:          p.CreatedAt,
		})
	}
	resp.TotalAmountPaid = stats.Round2(stats.Sum(paid))
	return resp, nil
}

type TicketCreateRequest struct {
	Title       string `json:"title" binding:"required,max=255"`
	Description string `json:"description" binding:"required"`
	Category    string `json:"category,omitempty" binding:"omitempty,oneof=technical billing general account"`
	Priority    string `json:"priority,omitempty" binding:"omitempty,oneof=low medium high critical urgent"`
}

type TicketResponse struct {
	TicketID            string    `json:"ticket_id"`
	Title               string    `json:"title"`
	Status              string    `json:"status"`
	Category            string    `json:"category"`
	Priority            string    `json:"priority"`
	CreatedAt           time.Time `json:"created_at"`
	AutoSuggestions     []string  `json:"auto_suggestions"`
	EstimatedResolution string    `json:"estimated_resolution"`
}

// ticketPriority maps the subscriber-facing "urgent" onto critical.
func ticketPriority(p string) string {
	if p == "urgent" {
		return models.SeverityCritical
	}
	return p
}

func estimatedResolution(priority string) string {
	return fmt.Sprintf("Within %d hours", support.SLAHours(priority))
}

// CreateTicket raises a ticket with the subscriber's ISP and suggests help
// articles that resemble it.
func (s *Service) CreateTicket(ctx context.Context, userID uuid.UUID, req *TicketCreateRequest) (*TicketResponse, error) {
	u, err := s.subscriber(ctx, userID)
	if err != nil {
		return nil, err
	}
	ispID, err := s.ispOf(ctx, u)
	if err != nil {
		return nil, err
	}
	ticket, err := s.support.CreateTicket(ctx, ispID, &u.ID, &support.TicketCreateRequest{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Priority:    ticketPriority(req.Priority),
	})
	if err != nil {
		return nil, err
	}
	suggestions, err := s.support.SuggestArticles(ctx, ispID, req.Title+" "+req.Description, suggestionCount)
	if err != nil {
		s.logger.Warn("Article suggestions unavailable", zap.Error(err))
		suggestions = []string{}
	}
	return &TicketResponse{
		TicketID:            ticket.ID.String(),
		Title:               ticket.Title,
		Status:              ticket.Status,
		Category:            ticket.Category,
		Priority:            ticket.Priority,
		CreatedAt:           ticket.CreatedAt,
		AutoSuggestions:     suggestions,
		EstimatedResolution: estimatedResolution(ticket.Priority),
	}, nil
}

// Tickets lists the subscriber's own tickets newest first.
func (s *Service) Tickets(ctx context.Context, userID uuid.UUID) ([]support.TicketResponse, error) {
	var tickets []models.SupportTicket
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&tickets).Error; err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	out := make([]support.TicketResponse, 0, len(tickets))
	for i := range tickets {
		out = append(out, support.NewTicketResponse(&tickets[i]))
	}
	return out, nil
}

type PlanUpgradeRequest struct {
	NewPlanID     string `json:"new_plan_id" binding:"required,uuid"`
	EffectiveDate string `json:"effective_date,omitempty" binding:"omitempty,datetime=2006-01-02"`
}

type PlanSummary struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	BandwidthLimit int     `json:"bandwidth_limit"`
	DataLimit      *int    `json:"data_limit"`
	Price          float64 `json:"price"`
	Currency       string  `json:"currency"`
	BillingCycle   string  `json:"billing_cycle"`
}

type PlanUpgradeResponse struct {
	Message       string      `json:"message"`
	NewPlan       PlanSummary `json:"new_plan"`
	EffectiveDate string      `json:"effective_date"`
}

// UpgradePlan moves the subscriber to another active plan of the same ISP.
// The new limits apply at once; effective_date is recorded for billing.
func (s *Service) UpgradePlan(ctx context.Context, userID uuid.UUID, req *PlanUpgradeRequest, entry audit.Entry) (*PlanUpgradeResponse, error) {
	u, err := s.subscriber(ctx, userID)
	if err != nil {
		return nil, err
	}
	ispID, err := s.ispOf(ctx, u)
	if err != nil {
		return nil, err
	}
	plan, err := dbutil.FindExisting[models.SubscriptionPlan](s.db.WithContext(ctx).
		Where("id = ? AND isp_id = ? AND is_active = ?", req.NewPlanID, ispID, true), "Plan")
	if err != nil {
		return nil, err
	}

	today := tenancy.DayStart(s.now())
	effective := today
	if req.EffectiveDate != "" {
		effective, _ = time.Parse("2006-01-02", req.EffectiveDate)
		if effective.Before(today) {
			return nil, errors.Invalid.WithField("past_date", "effective_date", "effective_date cannot be in the past")
		}
	}

	previous := u.SubscriptionPlan
	if err := s.db.WithContext(ctx).Model(u).Updates(map[string]interface{}{
		"plan_id":           plan.ID,
		"subscription_plan": plan.Name,
		"bandwidth_limit":   plan.BandwidthLimit,
		"data_limit":        plan.DataLimit,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to change plan: %w", err)
	}

	entry.Action = audit.ActionUpdate
	entry.Resource = "subscription_plan"
	entry.TenantID = &ispID
	entry.OldValues = models.JSONMap{"plan": previous}
	entry.NewValues = models.JSONMap{"plan": plan.Name, "plan_id": plan.ID.String(), "effective_date": effective.Format("2006-01-02")}
	_ = s.audit.Record(ctx, entry)

	s.logger.Info("Subscriber plan changed",
		zap.String("user_id", u.ID.String()),
		zap.String("from", previous),
		zap.String("to", plan.Name))

	return &PlanUpgradeResponse{
		Message: "Plan upgraded successfully",
		NewPlan: PlanSummary{
			ID:             plan.ID.String(),
			Name:           plan.Name,
			BandwidthLimit: plan.BandwidthLimit,
			DataLimit:      plan.DataLimit,
			Price:          plan.Price.InexactFloat64(),
			Currency:       plan.Currency,
			BillingCycle:   plan.BillingCycle,
		},
		EffectiveDate: effective.Format("2006-01-02"),
	}, nil
}

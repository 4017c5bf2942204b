package reporting

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/astranetix/bms/common/errors"
	"github.com/astranetix/bms/internal/tenancy"
	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/pkg/stats"
)

const (
	defaultPeriodDays = 30
	maxPeriodDays     = 365
	topUserLimit      = 5
	deviceLiveness    = 5 * time.Minute
)

// Report is the rendered body of a generation. Summary holds scalar
// figures, Rows the tabular part in Columns order.
type Report struct {
	ReportType  string                   `json:"report_type" yaml:"report_type"`
	Template    string                   `json:"template" yaml:"template"`
	ISPID       string                   `json:"isp_id" yaml:"isp_id"`
	GeneratedAt time.Time                `json:"generated_at" yaml:"generated_at"`
	PeriodStart time.Time                `json:"period_start" yaml:"period_start"`
	PeriodEnd   time.Time                `json:"period_end" yaml:"period_end"`
	Summary     map[string]interface{}   `json:"summary" yaml:"summary"`
	Columns     []string                 `json:"columns" yaml:"columns"`
	Rows        []map[string]interface{} `json:"rows" yaml:"rows"`
}

// periodDays reads the optional "days" parameter.
func periodDays(params map[string]interface{}) (int, error) {
	v, ok := params["days"]
	if !ok {
		return defaultPeriodDays, nil
	}
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || f < 1 || f > maxPeriodDays {
		return 0, errors.Invalid.Explain("days must be a whole number between 1 and %d", maxPeriodDays).
			WithField("parameters", "parameters.days", "out of range")
	}
	return int(f), nil
}

func (s *Service) buildReport(ctx context.Context, tpl *models.ReportTemplate, params map[string]interface{}) (*Report, error) {
	days, err := periodDays(params)
	if err != nil {
		return nil, err
	}
	now := s.now()
	r := &Report{
		ReportType:  tpl.ReportType,
		Template:    tpl.Name,
		ISPID:       tpl.ISPID.String(),
		GeneratedAt: now,
		PeriodStart: now.AddDate(0, 0, -days),
		PeriodEnd:   now,
		Summary:     map[string]interface{}{"period_days": days},
		Rows:        []map[string]interface{}{},
	}
	switch tpl.ReportType {
	case TypeUsage:
		err = s.usageReport(ctx, tpl.ISPID, r)
	case TypeBilling:
		err = s.billingReport(ctx, tpl.ISPID, r)
	case TypeNetwork:
		err = s.networkReport(ctx, tpl.ISPID, r)
	case TypeCompliance:
		err = s.complianceReport(ctx, tpl.ISPID, r, days)
	default:
		err = fmt.Errorf("unknown report type %q", tpl.ReportType)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

type userTotal struct {
	UserID uuid.UUID
	Total  int64
}

func (s *Service) usageReport(ctx context.Context, ispID uuid.UUID, r *Report) error {
	users := tenancy.UsersOfISP(s.db, ispID)
	summary, err := tenancy.SummarizeUsage(ctx, s.db, users, r.PeriodStart)
	if err != nil {
		return err
	}
	var peak float64
	if err := s.db.WithContext(ctx).Model(&models.BandwidthUsage{}).
		Select("COALESCE(MAX(peak_usage_mbps), 0)").
		Where("user_id IN (?) AND date >= ?", users, r.PeriodStart).
		Scan(&peak).Error; err != nil {
		return fmt.Errorf("failed to load peak usage: %w", err)
	}
	var totals []userTotal
	if err := s.db.WithContext(ctx).Model(&models.BandwidthUsage{}).
		Select("user_id, SUM(total_bytes) AS total").
		Where("user_id IN (?) AND date >= ?", users, r.PeriodStart).
		Group("user_id").
		Order("total DESC").
		Scan(&totals).Error; err != nil {
		return fmt.Errorf("failed to total usage per user: %w", err)
	}

	r.Summary["total_usage_gb"] = stats.Round2(summary.TotalGB())
	r.Summary["peak_usage_mbps"] = stats.Round2(peak)
	r.Summary["average_usage_per_user"] = stats.Round2(stats.Ratio(summary.TotalGB(), float64(len(totals))))
	r.Summary["active_users"] = len(totals)
	r.Columns = []string{"user_id", "usage_gb"}
	for i, t := range totals {
		if i == topUserLimit {
			break
		}
		r.Rows = append(r.Rows, map[string]interface{}{
			"user_id":  t.UserID.String(),
			"usage_gb": stats.Round2(float64(t.Total) / models.BytesPerGB),
		})
	}
	return nil
}

func (s *Service) billingReport(ctx context.Context, ispID uuid.UUID, r *Report) error {
	users := tenancy.UsersOfISP(s.db, ispID)
	revenue, err := tenancy.CompletedRevenue(ctx, s.db, users, r.PeriodStart, time.Time{})
	if err != nil {
		return err
	}
	pending, err := tenancy.SumPayments(ctx, s.db, users, models.PaymentPending, r.PeriodStart, time.Time{})
	if err != nil {
		return err
	}

	var rows []struct {
		Plan   string
		Amount decimal.Decimal
	}
	if err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Select("users.subscription_plan AS plan, payments.amount AS amount").
		Joins("JOIN users ON users.id = payments.user_id").
		Where("payments.user_id IN (?) AND payments.status = ? AND payments.created_at >= ?", users, models.PaymentCompleted, r.PeriodStart).
		Scan(&rows).Error; err != nil {
		return fmt.Errorf("failed to load plan revenue: %w", err)
	}
	byPlan := map[string]decimal.Decimal{}
	for _, row := range rows {
		plan := row.Plan
		if plan == "" {
			plan = "No plan"
		}
		byPlan[plan] = byPlan[plan].Add(row.Amount)
	}
	plans := make([]string, 0, len(byPlan))
	for p := range byPlan {
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool {
		if c := byPlan[plans[i]].Cmp(byPlan[plans[j]]); c != 0 {
			return c > 0
		}
		return plans[i] < plans[j]
	})

	total := revenue.Add(pending)
	r.Summary["total_revenue"] = revenue.Round(2).InexactFloat64()
	r.Summary["pending_payments"] = pending.Round(2).InexactFloat64()
	r.Summary["collection_rate"] = stats.Percent(revenue.InexactFloat64(), total.InexactFloat64())
	r.Columns = []string{"plan", "revenue"}
	for _, p := range plans {
		r.Rows = append(r.Rows, map[string]interface{}{
			"plan":    p,
			"revenue": byPlan[p].Round(2).InexactFloat64(),
		})
	}
	return nil
}

var severityOrder = []string{
	models.SeverityCritical,
	models.SeverityHigh,
	models.SeverityMedium,
	models.SeverityLow,
	models.SeverityInfo,
}

func (s *Service) networkReport(ctx context.Context, ispID uuid.UUID, r *Report) error {
	critical, lastDay, err := tenancy.AlertCounts(ctx, s.db, ispID, r.PeriodEnd)
	if err != nil {
		return err
	}
	var alerts []models.NetworkAlert
	if err := s.db.WithContext(ctx).
		Select("severity", "status").
		Where("tenant_id = ? AND created_at >= ?", ispID, r.PeriodStart).
		Find(&alerts).Error; err != nil {
		return fmt.Errorf("failed to load alerts: %w", err)
	}
	bySeverity := map[string]int{}
	open := 0
	for _, a := range alerts {
		bySeverity[a.Severity]++
		if a.Status == models.StatusOpen || a.Status == models.StatusInProgress {
			open++
		}
	}

	var devices []models.NetworkDevice
	if err := s.db.WithContext(ctx).
		Where("branch_id IN (?)", tenancy.BranchesOfISP(s.db, ispID)).
		Find(&devices).Error; err != nil {
		return fmt.Errorf("failed to load devices: %w", err)
	}
	online, offline, maintenance := 0, 0, 0
	cutoff := r.PeriodEnd.Add(-deviceLiveness)
	for _, d := range devices {
		switch {
		case !d.IsActive:
			maintenance++
		case d.LastSeen != nil && !d.LastSeen.Before(cutoff):
			online++
		default:
			offline++
		}
	}

	r.Summary["network_health"] = tenancy.NetworkHealth(critical, lastDay)
	r.Summary["total_alerts"] = len(alerts)
	r.Summary["open_alerts"] = open
	r.Summary["devices_online"] = online
	r.Summary["devices_offline"] = offline
	r.Summary["devices_maintenance"] = maintenance
	r.Summary["device_availability"] = stats.Percent(float64(online), float64(online+offline))
	r.Columns = []string{"severity", "alerts"}
	for _, sev := range severityOrder {
		r.Rows = append(r.Rows, map[string]interface{}{"severity": sev, "alerts": bySeverity[sev]})
	}
	return nil
}

func (s *Service) complianceReport(ctx context.Context, ispID uuid.UUID, r *Report, days int) error {
	var logs []models.AuditLog
	if err := s.db.WithContext(ctx).
		Select("action", "created_at").
		Where("tenant_id = ? AND created_at >= ?", ispID, r.PeriodStart).
		Find(&logs).Error; err != nil {
		return fmt.Errorf("failed to load audit logs: %w", err)
	}
	covered := map[string]bool{}
	actions := map[string]int{}
	for _, l := range logs {
		covered[l.CreatedAt.UTC().Format("2006-01-02")] = true
		actions[l.Action]++
	}

	r.Summary["audit_events"] = len(logs)
	r.Summary["distinct_actions"] = len(actions)
	r.Summary["days_covered"] = len(covered)
	r.Summary["audit_trail_completeness"] = stats.Percent(float64(len(covered)), float64(days))
	r.Columns = []string{"action", "events"}
	for _, a := range stats.TopCounts(actions, len(actions)) {
		r.Rows = append(r.Rows, map[string]interface{}{"action": a, "events": actions[a]})
	}
	return nil
}

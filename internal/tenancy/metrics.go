package tenancy

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/pkg/stats"
)

// AlertCounts returns the tenant's open critical alerts and the alerts raised
// in the 24 hours before now.
func AlertCounts(ctx context.Context, db *gorm.DB, tenantID uuid.UUID, now time.Time) (openCritical, lastDay int64, err error) {
	if err = db.WithContext(ctx).Model(&models.NetworkAlert{}).Where("tenant_id = ? AND severity = ? AND status = ?", tenantID, models.SeverityCritical, models.StatusOpen).
		Count(&openCritical).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count critical alerts: %w", err)
	}
	if err = db.WithContext(ctx).Model(&models.NetworkAlert{}).
		Where("tenant_id = ? AND created_at >= ?", tenantID, now.Add(-24*time.Hour)).
		Count(&lastDay).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count recent alerts: %w", err)
	}
	return openCritical, lastDay, nil
}

// NetworkHealth is 100 less 10 per critical alert and 2 per recent alert,
// floored at 0.
func NetworkHealth(critical, recent int64) float64 {
	return math.Max(0, 100-10*float64(critical)-2*float64(recent))
}

// ChurnRate is the share of ispID's subscribers deactivated in the 30 days
// before now, in percent.
func ChurnRate(ctx context.Context, db *gorm.DB, ispID uuid.UUID, now time.Time) (float64, error) {
	var total, churned int64
	users := UsersOfISP(db, ispID)
	if err := db.WithContext(ctx).Model(&models.User{}).Where("id IN (?)", users).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count subscribers: %w", err)
	}
	if err := db.WithContext(ctx).Model(&models.User{}).
		Where("id IN (?) AND is_active = ? AND updated_at >= ?", UsersOfISP(db, ispID), false, now.AddDate(0, 0, -30)).
		Count(&churned).Error; err != nil {
		return 0, fmt.Errorf("failed to count churned subscribers: %w", err)
	}
	return stats.Percent(float64(churned), float64(total)), nil
}

// MeanRating averages satisfaction ratings of the tenant's tickets, returning
// def when none are rated.
func MeanRating(ctx context.Context, tickets *gorm.DB, def float64) (float64, error) {
	var ratings []int
	if err := tickets.WithContext(ctx).Where("satisfaction_rating IS NOT NULL").Pluck("satisfaction_rating", &ratings).Error; err != nil {
		return 0, fmt.Errorf("failed to load ratings: %w", err)
	}
	if len(ratings) == 0 {
		return def, nil
	}
	xs := make([]float64, len(ratings))
	for i, r := range ratings {
		xs[i] = float64(r)
	}
	return stats.Round2(stats.Mean(xs)), nil
}

// GrowthPercent compares current against previous in percent. Growth from
// zero is reported as 100 when anything was added.
func GrowthPercent(current, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return stats.Round2((current - previous) / previous * 100)
}

// MonthKeys returns the YYYY-MM keys of the n months ending with now's month,
// oldest first.
func MonthKeys(now time.Time, n int) []string {
	start := MonthStart(now)
	keys := make([]string, n)
	for i := 0; i < n; i++ {
		keys[i] = start.AddDate(0, -(n - 1 - i), 0).Format("2006-01")
	}
	return keys
}

// Package tenancy holds the queries that resolve what a tenant owns. Founders
// own ISPs, ISPs own branches and branches own subscribers; every analytics
// endpoint scopes its rows through these subqueries.
package tenancy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/now"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/astranetix/bms/pkg/models"
)

// UsersOfISP selects the ids of ispID's subscribers.
func UsersOfISP(db *gorm.DB, ispID uuid.UUID) *gorm.DB {
	return db.Model(&models.User{}).
		Select("users.id").
		Joins("JOIN branches ON branches.id = users.branch_id").
		Where("branches.isp_id = ?", ispID)
}

// UsersOfFounder selects the ids of every subscriber under founderID.
func UsersOfFounder(db *gorm.DB, founderID uuid.UUID) *gorm.DB {
	return db.Model(&models.User{}).
		Select("users.id").
		Joins("JOIN branches ON branches.id = users.branch_id").
		Joins("JOIN isps ON isps.id = branches.isp_id").
		Where("isps.founder_id = ?", founderID)
}

// UsersOfBranch selects the ids of branchID's subscribers.
func UsersOfBranch(db *gorm.DB, branchID uuid.UUID) *gorm.DB {
	return db.Model(&models.User{}).Select("users.id").Where("users.branch_id = ?", branchID)
}

// UsersOf resolves the subscriber scope of an ISP or founder principal.
func UsersOf(db *gorm.DB, userType string, id uuid.UUID) *gorm.DB {
	if userType == models.UserTypeFounder {
		return UsersOfFounder(db, id)
	}
	return UsersOfISP(db, id)
}

// BranchesOfISP selects ispID's branch ids.
func BranchesOfISP(db *gorm.DB, ispID uuid.UUID) *gorm.DB {
	return db.Model(&models.Branch{}).Select("id").Where("isp_id = ?", ispID)
}

// CompletedRevenue sums completed payments of users made at or after since.
// A zero until means no upper bound.
func CompletedRevenue(ctx context.Context, db *gorm.DB, users *gorm.DB, since, until time.Time) (decimal.Decimal, error) {
	return SumPayments(ctx, db, users, models.PaymentCompleted, since, until)
}

// SumPayments sums payment amounts of users with status in [since, until).
func SumPayments(ctx context.Context, db *gorm.DB, users *gorm.DB, status string, since, until time.Time) (decimal.Decimal, error) {
	q := db.WithContext(ctx).Model(&models.Payment{}).
		Where("user_id IN (?) AND status = ? AND created_at >= ?", users, status, since)
	if !until.IsZero() {
		q = q.Where("created_at < ?", until)
	}
	var amounts []decimal.Decimal
	if err := q.Pluck("amount", &amounts).Error; err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum payments: %w", err)
	}
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total, nil
}

// UsageSummary aggregates usage rows.
type UsageSummary struct {
	TotalBytes  int64
	AvgPeakMbps float64
	Rows        int64
}

// TotalGB converts TotalBytes to gigabytes.
func (u UsageSummary) TotalGB() float64 {
	return float64(u.TotalBytes) / models.BytesPerGB
}

// SummarizeUsage aggregates usage of users dated at or after since.
func SummarizeUsage(ctx context.Context, db *gorm.DB, users *gorm.DB, since time.Time) (UsageSummary, error) {
	var out struct {
		Total int64
		Avg   float64
		Cnt   int64
	}
	err := db.WithContext(ctx).Model(&models.BandwidthUsage{}).
		Select("COALESCE(SUM(total_bytes),0) AS total, COALESCE(AVG(peak_usage_mbps),0) AS avg, COUNT(*) AS cnt").
		Where("user_id IN (?) AND date >= ?", users, since).
		Scan(&out).Error
	if err != nil {
		return UsageSummary{}, fmt.Errorf("failed to summarize usage: %w", err)
	}
	return UsageSummary{TotalBytes: out.Total, AvgPeakMbps: out.Avg, Rows: out.Cnt}, nil
}

// Now is the production clock.
func Now() time.Time { return time.Now().UTC() }

// MonthStart is the first instant of t's month in UTC.
func MonthStart(t time.Time) time.Time {
	return now.With(t.UTC()).BeginningOfMonth()
}

// NextMonthStart is the first instant of the month after t.
func NextMonthStart(t time.Time) time.Time {
	return now.With(t.UTC()).EndOfMonth().Add(time.Nanosecond)
}

// DayStart truncates t to midnight UTC.
func DayStart(t time.Time) time.Time {
	return now.With(t.UTC()).BeginningOfDay()
}

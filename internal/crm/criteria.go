package crm

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/astranetix/bms/common/errors"
	"github.com/astranetix/bms/internal/tenancy"
	"github.com/astranetix/bms/pkg/models"
)

// Segment criteria keys.
const (
	CriterionPlan           = "plan"
	CriterionConnectionType = "connection_type"
	CriterionIsActive       = "is_active"
	CriterionBranchID       = "branch_id"
	CriterionMinUsageGB     = "min_usage_gb"
)

const usageWindowDays = 30

// Criteria is a validated segment filter. Nil fields do not filter.
type Criteria struct {
	Plan           *string
	ConnectionType *string
	IsActive       *bool
	BranchID       *uuid.UUID
	MinUsageGB     *float64
}

func invalidCriterion(key, msg string) error {
	return errors.Invalid.Explain("invalid segment criteria").WithField("criteria", "criteria."+key, msg)
}

// ParseCriteria validates raw criteria as decoded from JSON.
func ParseCriteria(raw map[string]interface{}) (Criteria, error) {
	var c Criteria
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		val := raw[key]
		switch key {
		case CriterionPlan, CriterionConnectionType:
			s, ok := val.(string)
			if !ok || s == "" {
				return Criteria{}, invalidCriterion(key, "must be a non-empty string")
			}
			if key == CriterionPlan {
				c.Plan = &s
			} else {
				c.ConnectionType = &s
			}
		case CriterionIsActive:
			b, ok := val.(bool)
			if !ok {
				return Criteria{}, invalidCriterion(key, "must be a boolean")
			}
			c.IsActive = &b
		case CriterionBranchID:
			s, _ := val.(string)
			id, err := uuid.Parse(s)
			if err != nil {
				return Criteria{}, invalidCriterion(key, "must be a UUID")
			}
			c.BranchID = &id
		case CriterionMinUsageGB:
			f, ok := val.(float64)
			if !ok || f < 0 {
				return Criteria{}, invalidCriterion(key, "must be a non-negative number")
			}
			c.MinUsageGB = &f
		default:
			return Criteria{}, invalidCriterion(key, fmt.Sprintf("unsupported criterion %q", key))
		}
	}
	return c, nil
}

// Apply narrows q, a query over users, to those matching c. ISP scoping is
// left to the caller.
func (c Criteria) Apply(db, q *gorm.DB, now time.Time) *gorm.DB {
	if c.Plan != nil {
		q = q.Where("subscription_plan = ?", *c.Plan)
	}
	if c.ConnectionType != nil {
		q = q.Where("connection_type = ?", *c.ConnectionType)
	}
	if c.IsActive != nil {
		q = q.Where("is_active = ?", *c.IsActive)
	}
	if c.BranchID != nil {
		q = q.Where("branch_id = ?", *c.BranchID)
	}
	if c.MinUsageGB != nil && *c.MinUsageGB > 0 {
		heavy := db.Model(&models.BandwidthUsage{}).
			Select("user_id").
			Where("date >= ?", tenancy.DayStart(now).AddDate(0, 0, -usageWindowDays)).
			Group("user_id").
			Having("SUM(total_bytes) >= ?", int64(*c.MinUsageGB*models.BytesPerGB))
		q = q.Where("id IN (?)", heavy)
	}
	return q
}

package reporting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/astranetix/bms/common/errors"
	"github.com/astranetix/bms/internal/tenancy"
)

const (
	customPreviewRows = 100
	maxCustomRows     = 10000
)

// sourceColumns whitelists the columns a custom report may read per table.
var sourceColumns = map[string]map[string]bool{
	"users": set("id", "branch_id", "username", "email", "full_name", "subscription_plan",
		"bandwidth_limit", "data_limit", "connection_type", "is_active", "created_at"),
	"payments": set("id", "user_id", "amount", "currency", "gateway", "status",
		"payment_method_type", "fraud_score", "created_at"),
	"bandwidth_usage": set("id", "user_id", "date", "upload_bytes", "download_bytes",
		"total_bytes", "peak_usage_mbps", "peak_hour", "created_at"),
	"support_tickets": set("id", "user_id", "title", "category", "priority", "status",
		"assigned_to", "satisfaction_rating", "created_at", "resolved_at"),
}

func set(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

type ReportField struct {
	Name        string `json:"name" binding:"required"`
	Label       string `json:"label"`
	Type        string `json:"type" binding:"required,oneof=string number date boolean"`
	SourceTable string `json:"source_table" binding:"required,oneof=users payments bandwidth_usage support_tickets"`
	Calculation string `json:"calculation,omitempty" binding:"omitempty,oneof=sum avg count min max"`
}

type ReportFilter struct {
	Field    string      `json:"field" binding:"required"`
	Operator string      `json:"operator" binding:"required,oneof=equals not_equals contains greater_than less_than"`
	Value    interface{} `json:"value"`
}

type CustomReportRequest struct {
	Name        string              `json:"name" binding:"required,max=255"`
	Description string              `json:"description,omitempty"`
	Fields      []ReportField       `json:"fields" binding:"required,min=1,dive"`
	Filters     []ReportFilter      `json:"filters" binding:"dive"`
	Grouping    []string            `json:"grouping,omitempty"`
	Sorting     []map[string]string `json:"sorting,omitempty"`
	DateRange   map[string]string   `json:"date_range,omitempty"`
}

type CustomReportResponse struct {
	ReportName     string                   `json:"report_name"`
	Description    string                   `json:"description"`
	GeneratedAt    time.Time                `json:"generated_at"`
	TotalRecords   int                      `json:"total_records"`
	Data           []map[string]interface{} `json:"data"`
	Fields         []ReportField            `json:"fields"`
	FiltersApplied []ReportFilter           `json:"filters_applied"`
}

func badField(field, msg string, args ...interface{}) error {
	return errors.Invalid.Explain(msg, args...).WithField("custom_report", field, fmt.Sprintf(msg, args...))
}

// scope restricts table to rows belonging to ispID.
func (s *Service) scope(q *gorm.DB, table string, ispID uuid.UUID) *gorm.DB {
	switch table {
	case "users":
		return q.Where("id IN (?)", tenancy.UsersOfISP(s.db, ispID))
	case "support_tickets":
		return q.Where("tenant_id = ?", ispID)
	default:
		return q.Where("user_id IN (?)", tenancy.UsersOfISP(s.db, ispID))
	}
}

func dateColumn(table string) string {
	if table == "bandwidth_usage" {
		return "date"
	}
	return "created_at"
}

var filterOps = map[string]string{
	"equals":       "=",
	"not_equals":   "<>",
	"greater_than": ">",
	"less_than":    "<",
}

// CustomReport runs an ad hoc query over one whitelisted table of the ISP's
// data and returns the first rows.
func (s *Service) CustomReport(ctx context.Context, ispID uuid.UUID, req *CustomReportRequest) (*CustomReportResponse, error) {
	table := req.Fields[0].SourceTable
	columns := sourceColumns[table]

	grouped := set(req.Grouping...)
	aggregate := len(req.Grouping) > 0
	for _, f := range req.Fields {
		if f.SourceTable != table {
			return nil, badField("fields", "all fields must come from %s", table)
		}
		if !columns[f.Name] {
			return nil, badField("fields", "unknown field %s.%s", table, f.Name)
		}
		if f.Calculation != "" {
			aggregate = true
		}
	}
	for _, g := range req.Grouping {
		if !columns[g] {
			return nil, badField("grouping", "unknown grouping field %s", g)
		}
	}

	selects := make([]string, 0, len(req.Fields))
	outputs := map[string]bool{}
	for _, f := range req.Fields {
		switch {
		case f.Calculation != "":
			selects = append(selects, fmt.Sprintf("%s(%s) AS %s", strings.ToUpper(f.Calculation), f.Name, f.Name))
		case aggregate && !grouped[f.Name]:
			return nil, badField("fields", "field %s must be grouped or aggregated", f.Name)
		default:
			selects = append(selects, f.Name)
		}
		outputs[f.Name] = true
	}

	q := s.scope(s.db.WithContext(ctx).Table(table), table, ispID).Select(strings.Join(selects, ", "))
	for _, flt := range req.Filters {
		if !columns[flt.Field] {
			return nil, badField("filters", "unknown filter field %s", flt.Field)
		}
		switch flt.Value.(type) {
		case string, float64, bool:
		default:
			return nil, badField("filters", "filter on %s needs a scalar value", flt.Field)
		}
		if flt.Operator == "contains" {
			text, ok := flt.Value.(string)
			if !ok {
				return nil, badField("filters", "contains on %s needs a string value", flt.Field)
			}
			q = q.Where(flt.Field+" LIKE ?", "%"+text+"%")
			continue
		}
		q = q.Where(fmt.Sprintf("%s %s ?", flt.Field, filterOps[flt.Operator]), flt.Value)
	}

	if len(req.DateRange) > 0 {
		col := dateColumn(table)
		if v := req.DateRange["start"]; v != "" {
			start, err := time.Parse("2006-01-02", v)
			if err != nil {
				return nil, badField("date_range", "start must be YYYY-MM-DD")
			}
			q = q.Where(col+" >= ?", start)
		}
		if v := req.DateRange["end"]; v != "" {
			end, err := time.Parse("2006-01-02", v)
			if err != nil {
				return nil, badField("date_range", "end must be YYYY-MM-DD")
			}
			q = q.Where(col+" < ?", end.AddDate(0, 0, 1))
		}
	}

	if len(req.Grouping) > 0 {
		q = q.Group(strings.Join(req.Grouping, ", "))
	}
	for _, srt := range req.Sorting {
		field := srt["field"]
		if !outputs[field] {
			return nil, badField("sorting", "cannot sort by %s", field)
		}
		dir := strings.ToUpper(srt["direction"])
		switch dir {
		case "":
			dir = "ASC"
		case "ASC", "DESC":
		default:
			return nil, badField("sorting", "direction must be asc or desc")
		}
		q = q.Order(field + " " + dir)
	}

	rows := make([]map[string]interface{}, 0)
	if err := q.Limit(maxCustomRows).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to run custom report: %w", err)
	}
	preview := rows
	if len(preview) > customPreviewRows {
		preview = preview[:customPreviewRows]
	}
	filters := req.Filters
	if filters == nil {
		filters = []ReportFilter{}
	}
	return &CustomReportResponse{
		ReportName:     s.sanitizer.SanitizeText(req.Name),
		Description:    s.sanitizer.SanitizeText(req.Description),
		GeneratedAt:    s.now(),
		TotalRecords:   len(rows),
		Data:           preview,
		Fields:         req.Fields,
		FiltersApplied: filters,
	}, nil
}

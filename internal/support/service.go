// Package support runs the helpdesk: tickets with SLA deadlines, a keyword
// chatbot, analytics and the knowledge base.
package support

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/astranetix/bms/common/dbutil"
	"github.com/astranetix/bms/internal/messaging"
	"github.com/astranetix/bms/internal/tenancy"
	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/pkg/stats"
	"github.com/astranetix/bms/pkg/validation"
)

// slaHours is the resolution target per priority.
var slaHours = map[string]int{
	models.SeverityCritical: 2,
	models.SeverityHigh:     8,
	models.SeverityMedium:   24,
	models.SeverityLow:      72,
}

const defaultSLAHours = 24

// SLAHours returns the resolution target for priority in hours. Priorities
// outside the table get the default.
func SLAHours(priority string) int {
	if h, ok := slaHours[priority]; ok {
		return h
	}
	return defaultSLAHours
}

type Service struct {
	db        *gorm.DB
	logger    *zap.Logger
	publisher *messaging.Publisher
	sanitizer *validation.Validator
	now       func() time.Time
}

func NewService(db *gorm.DB, logger *zap.Logger, publisher *messaging.Publisher) *Service {
	return &Service{
		db:        db,
		logger:    logger,
		publisher: publisher,
		sanitizer: validation.NewValidator(logger),
		now:       tenancy.Now,
	}
}

type TicketCreateRequest struct {
	Title       string   `json:"title" binding:"required,max=255"`
	Description string   `json:"description" binding:"required"`
	Priority    string   `json:"priority,omitempty" binding:"omitempty,oneof=low medium high critical urgent"`
	Category    string   `json:"category,omitempty" binding:"omitempty,oneof=technical billing general account"`
	UserID      string   `json:"user_id,omitempty" binding:"omitempty,uuid"`
	Attachments []string `json:"attachments,omitempty"`
}

type TicketResponse struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Priority           string     `json:"priority"`
	Category           string     `json:"category"`
	Status             string     `json:"status"`
	UserID             *string    `json:"user_id"`
	AssignedTo         *string    `json:"assigned_to"`
	SLADeadline        *time.Time `json:"sla_deadline"`
	ResolutionTime     *int       `json:"resolution_time"`
	SatisfactionRating *int       `json:"satisfaction_rating"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func optionalID(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

// NewTicketResponse renders t; resolution_time is in minutes.
func NewTicketResponse(t *models.SupportTicket) TicketResponse {
	resp := TicketResponse{
		ID:                 t.ID.String(),
		Title:              t.Title,
		Description:        t.Description,
		Priority:           t.Priority,
		Category:           t.Category,
		Status:             t.Status,
		UserID:             optionalID(t.UserID),
		AssignedTo:         optionalID(t.AssignedTo),
		SLADeadline:        t.SLADeadline,
		SatisfactionRating: t.SatisfactionRating,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
	if t.ResolvedAt != nil {
		minutes := int(t.ResolvedAt.Sub(t.CreatedAt).Minutes())
		resp.ResolutionTime = &minutes
	}
	return resp
}

// CreateTicket opens a ticket against tenantID with a deadline from the SLA
// table. userID is the subscriber who raised it, if any.
func (s *Service) CreateTicket(ctx context.Context, tenantID uuid.UUID, userID *uuid.UUID, req *TicketCreateRequest) (*models.SupportTicket, error) {
	now := s.now()
	priority := req.Priority
	if priority == "" {
		priority = models.SeverityMedium
	}
	deadline := now.Add(time.Duration(SLAHours(priority)) * time.Hour)
	category := req.Category
	if category == "" {
		category = "general"
	}
	ticket := &models.SupportTicket{
		TenantID:    tenantID,
		UserID:      userID,
		Title:       s.sanitizer.SanitizeText(req.Title),
		Description: s.sanitizer.SanitizeText(req.Description),
		Category:    category,
		Priority:    priority,
		Status:      models.StatusOpen,
		SLADeadline: &deadline,
	}
	if err := s.db.WithContext(ctx).Create(ticket).Error; err != nil {
		return nil, dbutil.WrapError(err)
	}

	s.logger.Info("Support ticket created",
		zap.String("tenant_id", tenantID.String()),
		zap.String("ticket_id", ticket.ID.String()),
		zap.String("priority", priority))
	s.publisher.Emit(ctx, messaging.TopicSupportTicket, tenantID.String(), tenantID.String(), map[string]interface{}{
		"ticket_id":    ticket.ID.String(),
		"priority":     priority,
		"category":     category,
		"sla_deadline": deadline.Format(time.RFC3339),
	})
	return ticket, nil
}

type TicketFilter struct {
	Status   string `form:"status" binding:"omitempty,oneof=open in_progress resolved closed"`
	Priority string `form:"priority" binding:"omitempty,oneof=low medium high critical"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

// ListTickets returns the tenant's tickets newest first.
func (s *Service) ListTickets(ctx context.Context, tenantID uuid.UUID, f TicketFilter) ([]TicketResponse, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Priority != "" {
		q = q.Where("priority = ?", f.Priority)
	}
	if f.Limit == 0 {
		f.Limit = 50
	}
	var tickets []models.SupportTicket
	if err := q.Order("created_at DESC").Limit(f.Limit).Find(&tickets).Error; err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	out := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		out = append(out, NewTicketResponse(&tickets[i]))
	}
	return out, nil
}

type TicketUpdateRequest struct {
	Status             string `json:"status,omitempty" binding:"omitempty,oneof=open in_progress resolved closed"`
	AssignedTo         string `json:"assigned_to,omitempty" binding:"omitempty,uuid"`
	SatisfactionRating *int   `json:"satisfaction_rating,omitempty" binding:"omitempty,min=1,max=5"`
}

// UpdateTicket changes status, assignee or rating. Moving a ticket to
// resolved or closed stamps resolved_at once.
func (s *Service) UpdateTicket(ctx context.Context, tenantID, ticketID uuid.UUID, req *TicketUpdateRequest) (*TicketResponse, error) {
	ticket, err := dbutil.FindExisting[models.SupportTicket](s.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", ticketID, tenantID), "Ticket")
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if req.Status != "" {
		updates["status"] = req.Status
		switch req.Status {
		case models.StatusResolved, models.StatusClosed:
			if ticket.ResolvedAt == nil {
				updates["resolved_at"] = s.now()
			}
		default:
			updates["resolved_at"] = nil
		}
	}
	if req.AssignedTo != "" {
		updates["assigned_to"] = uuid.MustParse(req.AssignedTo)
	}
	if req.SatisfactionRating != nil {
		updates["satisfaction_rating"] = *req.SatisfactionRating
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(ticket).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update ticket: %w", err)
		}
	}
	if err := s.db.WithContext(ctx).First(ticket, "id = ?", ticket.ID).Error; err != nil {
		return nil, dbutil.WrapError(err)
	}
	resp := NewTicketResponse(ticket)
	return &resp, nil
}

type CategoryShare struct {
	Category   string  `json:"category"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type AgentPerformance struct {
	AgentID            string  `json:"agent_id"`
	TicketsAssigned    int     `json:"tickets_assigned"`
	TicketsResolved    int     `json:"tickets_resolved"`
	AvgResolutionTime  float64 `json:"avg_resolution_time"`
	SatisfactionRating float64 `json:"satisfaction_rating"`
}

type TicketTrend struct {
	Date          string `json:"date"`
	TicketCount   int    `json:"ticket_count"`
	ResolvedCount int    `json:"resolved_count"`
}

type AnalyticsResponse struct {
	TotalTickets          int64              `json:"total_tickets"`
	OpenTickets           int64              `json:"open_tickets"`
	ResolvedTickets       int64              `json:"resolved_tickets"`
	AverageResolutionTime float64            `json:"average_resolution_time"`
	SLAComplianceRate     float64            `json:"sla_compliance_rate"`
	CustomerSatisfaction  float64            `json:"customer_satisfaction"`
	TopCategories         []CategoryShare    `json:"top_categories"`
	AgentPerformance      []AgentPerformance `json:"agent_performance"`
	TicketTrends          []TicketTrend      `json:"ticket_trends"`
}

type agentTally struct {
	assigned int
	resolved int
	hours    []float64
	ratings  []float64
}

// Analytics summarises the tenant's tickets created in the last daysBack days.
func (s *Service) Analytics(ctx context.Context, tenantID uuid.UUID, daysBack int) (*AnalyticsResponse, error) {
	now := s.now()
	since := now.AddDate(0, 0, -daysBack)
	db := s.db.WithContext(ctx)

	var tickets []models.SupportTicket
	if err := db.Where("tenant_id = ? AND created_at >= ?", tenantID, since).Find(&tickets).Error; err != nil {
		return nil, fmt.Errorf("failed to load tickets: %w", err)
	}
	resp := &AnalyticsResponse{
		TotalTickets:     int64(len(tickets)),
		TopCategories:    []CategoryShare{},
		AgentPerformance: []AgentPerformance{},
	}
	if err := db.Model(&models.SupportTicket{}).
		Where("tenant_id = ? AND status IN ?", tenantID, []string{models.StatusOpen, models.StatusInProgress}).
		Count(&resp.OpenTickets).Error; err != nil {
		return nil, fmt.Errorf("failed to count open tickets: %w", err)
	}

	categories := map[string]int{}
	agents := map[uuid.UUID]*agentTally{}
	var resolutionHours, ratings []float64
	var withinSLA int
	for _, t := range tickets {
		categories[t.Category]++
		if t.SatisfactionRating != nil {
			ratings = append(ratings, float64(*t.SatisfactionRating))
		}
		var tally *agentTally
		if t.AssignedTo != nil {
			if tally = agents[*t.AssignedTo]; tally == nil {
				tally = &agentTally{}
				agents[*t.AssignedTo] = tally
			}
			tally.assigned++
			if t.SatisfactionRating != nil {
				tally.ratings = append(tally.ratings, float64(*t.SatisfactionRating))
			}
		}
		if t.ResolvedAt == nil {
			continue
		}
		resp.ResolvedTickets++
		hours := t.ResolvedAt.Sub(t.CreatedAt).Hours()
		resolutionHours = append(resolutionHours, hours)
		if t.SLADeadline != nil && !t.ResolvedAt.After(*t.SLADeadline) {
			withinSLA++
		}
		if tally != nil {
			tally.resolved++
			tally.hours = append(tally.hours, hours)
		}
	}
	resp.AverageResolutionTime = stats.Round2(stats.Mean(resolutionHours))
	resp.SLAComplianceRate = stats.Percent(float64(withinSLA), float64(resp.ResolvedTickets))
	resp.CustomerSatisfaction = stats.Round2(stats.Mean(ratings))

	for _, c := range stats.TopCounts(categories, len(categories)) {
		resp.TopCategories = append(resp.TopCategories, CategoryShare{
			Category:   c,
			Count:      categories[c],
			Percentage: stats.Percent(float64(categories[c]), float64(len(tickets))),
		})
	}

	for id, a := range agents {
		resp.AgentPerformance = append(resp.AgentPerformance, AgentPerformance{
			AgentID:            id.String(),
			TicketsAssigned:    a.assigned,
			TicketsResolved:    a.resolved,
			AvgResolutionTime:  stats.Round2(stats.Mean(a.hours)),
			SatisfactionRating: stats.Round2(stats.Mean(a.ratings)),
		})
	}
	sort.Slice(resp.AgentPerformance, func(i, j int) bool {
		a, b := resp.AgentPerformance[i], resp.AgentPerformance[j]
		if a.TicketsResolved != b.TicketsResolved {
			return a.TicketsResolved > b.TicketsResolved
		}
		return a.AgentID < b.AgentID
	})

	today := tenancy.DayStart(now)
	for i := 0; i < 7; i++ {
		day := today.AddDate(0, 0, -i)
		trend := TicketTrend{Date: day.Format("2006-01-02")}
		for _, t := range tickets {
			if created := t.CreatedAt.UTC(); !created.Before(day) && created.Before(day.AddDate(0, 0, 1)) {
				trend.TicketCount++
				if t.ResolvedAt != nil {
					trend.ResolvedCount++
				}
			}
		}
		resp.TicketTrends = append(resp.TicketTrends, trend)
	}
	return resp, nil
}

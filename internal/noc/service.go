// Package noc serves the network operations centre: alerting with live
// streaming, device liveness, audit-log risk analysis and SLA tracking.
package noc

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/astranetix/bms/common/auth"
	"github.com/astranetix/bms/common/dbutil"
	"github.com/astranetix/bms/internal/infrastructure/ws"
	"github.com/astranetix/bms/internal/messaging"
	"github.com/astranetix/bms/internal/tenancy"
	"github.com/astranetix/bms/pkg/metrics"
	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/pkg/stats"
	"github.com/astranetix/bms/pkg/validation"
)

const (
	recentAlertLimit = 10
	alertListLimit   = 100
	deviceLiveness   = 5 * time.Minute
)

// Service implements the NOC operations.
type Service struct {
	db        *gorm.DB
	logger    *zap.Logger
	hub       *ws.Hub
	publisher *messaging.Publisher
	sanitizer *validation.Validator
	now       func() time.Time
}

func NewService(db *gorm.DB, logger *zap.Logger, hub *ws.Hub, publisher *messaging.Publisher) *Service {
	return &Service{
		db:        db,
		logger:    logger,
		hub:       hub,
		publisher: publisher,
		sanitizer: validation.NewValidator(logger),
		now:       tenancy.Now,
	}
}

// AlertTopic is the hub topic carrying tenantID's alerts.
func AlertTopic(tenantID uuid.UUID) string {
	return "noc.alerts." + tenantID.String()
}

type AlertCreateRequest struct {
	AlertType   string                 `json:"alert_type" binding:"required,max=50"`
	Severity    string                 `json:"severity" binding:"required,oneof=critical high medium low info"`
	Title       string                 `json:"title" binding:"required,max=255"`
	Description string                 `json:"description,omitempty"`
	Source      string                 `json:"source,omitempty" binding:"max=100"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

type AlertResponse struct {
	ID           string                 `json:"id"`
	TenantID     string                 `json:"tenant_id"`
	TenantType   string                 `json:"tenant_type"`
	AlertType    string                 `json:"alert_type"`
	Severity     string                 `json:"severity"`
	Title        string                 `json:"title"`
	Description  string                 `json:"description"`
	Source       string                 `json:"source"`
	Status       string                 `json:"status"`
	Escalated    bool                   `json:"escalated"`
	AutoResolved bool                   `json:"auto_resolved"`
	Metadata     map[string]interface{} `json:"metadata"`
	CreatedAt    time.Time              `json:"created_at"`
	ResolvedAt   *time.Time             `json:"resolved_at"`
}

func NewAlertResponse(a *models.NetworkAlert) AlertResponse {
	meta := map[string]interface{}(a.Metadata)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	return AlertResponse{
		ID:           a.ID.String(),
		TenantID:     a.TenantID.String(),
		TenantType:   a.TenantType,
		AlertType:    a.AlertType,
		Severity:     a.Severity,
		Title:        a.Title,
		Description:  a.Description,
		Source:       a.Source,
		Status:       a.Status,
		Escalated:    a.Escalated,
		AutoResolved: a.AutoResolved,
		Metadata:     meta,
		CreatedAt:    a.CreatedAt,
		ResolvedAt:   a.ResolvedAt,
	}
}

type DashboardResponse struct {
	TotalAlerts          int64              `json:"total_alerts"`
	CriticalAlerts       int64              `json:"critical_alerts"`
	NetworkHealth        float64            `json:"network_health"`
	UptimePercentage     float64            `json:"uptime_percentage"`
	ActiveDevices        int64              `json:"active_devices"`
	BandwidthUtilization float64            `json:"bandwidth_utilization"`
	RecentAlerts         []AlertResponse    `json:"recent_alerts"`
	NetworkTopology      map[string]int64   `json:"network_topology"`
	PerformanceMetrics   map[string]float64 `json:"performance_metrics"`
}

// Dashboard summarises the tenant's alert load and device state.
func (s *Service) Dashboard(ctx context.Context, tenantID uuid.UUID) (*DashboardResponse, error) {
	now := s.now()
	db := s.db.WithContext(ctx)
	critical, total, err := tenancy.AlertCounts(ctx, s.db, tenantID, now)
	if err != nil {
		return nil, err
	}

	var recent []models.NetworkAlert
	if err := db.Where("tenant_id = ?", tenantID).Order("created_at DESC").Limit(recentAlertLimit).Find(&recent).Error; err != nil {
		return nil, fmt.Errorf("failed to load recent alerts: %w", err)
	}

	var devices int64
	if err := db.Model(&models.NetworkDevice{}).
		Where("branch_id IN (?) AND is_active = ? AND last_seen >= ?", tenancy.BranchesOfISP(s.db, tenantID), true, now.Add(-deviceLiveness)).
		Count(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to count devices: %w", err)
	}

	var lastHour int64
	if err := db.Model(&models.BandwidthUsage{}).
		Select("COALESCE(SUM(total_bytes),0)").
		Where("user_id IN (?) AND created_at >= ?", tenancy.UsersOfISP(s.db, tenantID), now.Add(-time.Hour)).
		Scan(&lastHour).Error; err != nil {
		return nil, fmt.Errorf("failed to sum usage: %w", err)
	}

	resp := &DashboardResponse{
		TotalAlerts:          total,
		CriticalAlerts:       critical,
		NetworkHealth:        tenancy.NetworkHealth(critical, total),
		UptimePercentage:     math.Max(95, 100-0.5*float64(critical)),
		ActiveDevices:        devices,
		BandwidthUtilization: stats.Round2(math.Min(100, float64(lastHour)/models.BytesPerGB*100)),
		RecentAlerts:         make([]AlertResponse, 0, len(recent)),
		NetworkTopology: map[string]int64{
			"nodes":       devices,
			"connections": devices * 2,
			"regions":     3,
		},
		PerformanceMetrics: map[string]float64{
			"latency_ms":      25.5,
			"packet_loss":     0.02,
			"jitter_ms":       1.2,
			"throughput_mbps": 850,
		},
	}
	for i := range recent {
		resp.RecentAlerts = append(resp.RecentAlerts, NewAlertResponse(&recent[i]))
	}
	return resp, nil
}

// CreateAlert stores an alert, escalating critical ones, then pushes it to
// stream subscribers and the event bus.
func (s *Service) CreateAlert(ctx context.Context, tenantID, actorID uuid.UUID, req *AlertCreateRequest) (*AlertResponse, error) {
	meta := models.JSONMap{}
	if req.Metadata != nil {
		meta = models.JSONMap(s.sanitizer.SanitizeMap(req.Metadata))
	}
	alert := &models.NetworkAlert{
		TenantID:    tenantID,
		TenantType:  auth.UserTypeISP,
		AlertType:   req.AlertType,
		Severity:    req.Severity,
		Title:       s.sanitizer.SanitizeText(req.Title),
		Description: s.sanitizer.SanitizeText(req.Description),
		Source:      req.Source,
		Status:      models.StatusOpen,
		Escalated:   req.Severity == models.SeverityCritical,
		Metadata:    meta,
	}
	if err := s.db.WithContext(ctx).Create(alert).Error; err != nil {
		return nil, dbutil.WrapError(err)
	}
	metrics.AlertsRaised.WithLabelValues(alert.Severity).Inc()

	resp := NewAlertResponse(alert)
	if s.hub != nil {
		if payload, err := json.Marshal(resp); err == nil {
			s.hub.Broadcast(AlertTopic(tenantID), payload)
		} else {
			s.logger.Warn("Failed to encode alert for stream", zap.Error(err))
		}
	}
	s.publisher.Emit(ctx, messaging.TopicNOCAlert, tenantID.String(), actorID.String(), map[string]interface{}{
		"alert_id":   resp.ID,
		"alert_type": alert.AlertType,
		"severity":   alert.Severity,
		"title":      alert.Title,
		"escalated":  alert.Escalated,
	})

	level := s.logger.Info
	if alert.Escalated {
		level = s.logger.Warn
	}
	level("Network alert raised",
		zap.String("tenant_id", tenantID.String()),
		zap.String("alert_id", resp.ID),
		zap.String("severity", alert.Severity),
		zap.Bool("escalated", alert.Escalated))
	return &resp, nil
}

type AlertFilter struct {
	Status   string `form:"status" binding:"omitempty,oneof=open in_progress resolved closed"`
	Severity string `form:"severity" binding:"omitempty,oneof=critical high medium low info"`
}

// Alerts lists the tenant's alerts newest first.
func (s *Service) Alerts(ctx context.Context, tenantID uuid.UUID, f AlertFilter) ([]AlertResponse, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Severity != "" {
		q = q.Where("severity = ?", f.Severity)
	}
	var alerts []models.NetworkAlert
	if err := q.Order("created_at DESC").Limit(alertListLimit).Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	out := make([]AlertResponse, 0, len(alerts))
	for i := range alerts {
		out = append(out, NewAlertResponse(&alerts[i]))
	}
	return out, nil
}

// ResolveAlert closes an alert. Resolving twice keeps the first timestamp.
func (s *Service) ResolveAlert(ctx context.Context, tenantID, alertID uuid.UUID) (*AlertResponse, error) {
	alert, err := dbutil.FindExisting[models.NetworkAlert](s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", alertID, tenantID), "Alert")
	if err != nil {
		return nil, err
	}
	if alert.Status != models.StatusResolved {
		now := s.now()
		alert.Status = models.StatusResolved
		alert.ResolvedAt = &now
		if err := s.db.WithContext(ctx).Model(alert).Updates(map[string]interface{}{
			"status":      alert.Status,
			"resolved_at": now,
		}).Error; err != nil {
			return nil, fmt.Errorf("failed to resolve alert: %w", err)
		}
	}
	resp := NewAlertResponse(alert)
	return &resp, nil
}

type HeartbeatResponse struct {
	DeviceID string    `json:"device_id"`
	Name     string    `json:"name"`
	IsActive bool      `json:"is_active"`
	LastSeen time.Time `json:"last_seen"`
}

// Heartbeat marks a device of the tenant as seen now.
func (s *Service) Heartbeat(ctx context.Context, tenantID, deviceID uuid.UUID) (*HeartbeatResponse, error) {
	device, err := dbutil.FindExisting[models.NetworkDevice](s.db.WithContext(ctx).
		Where("id = ? AND branch_id IN (?)", deviceID, tenancy.BranchesOfISP(s.db, tenantID)), "Device")
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.db.WithContext(ctx).Model(device).Update("last_seen", now).Error; err != nil {
		return nil, fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return &HeartbeatResponse{
		DeviceID: device.ID.String(),
		Name:     device.Name,
		IsActive: device.IsActive,
		LastSeen: now,
	}, nil
}

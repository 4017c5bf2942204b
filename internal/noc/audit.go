package noc

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/astranetix/bms/internal/audit"
	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/pkg/stats"
)

const (
	scoredLogs         = 50
	anomalyRisk        = 0.7
	highRisk           = 0.8
	hyperactiveActions = 50
)

var sensitiveActions = map[string]bool{
	audit.ActionDelete:         true,
	audit.ActionModifyCritical: true,
	audit.ActionAdminAccess:    true,
	audit.ActionPasswordChange: true,
}

type AuditAnomaly struct {
	LogID     string    `json:"log_id"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	RiskScore float64   `json:"risk_score"`
	UserID    *string   `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	Reason    string    `json:"reason"`
}

type AuditAnalysisResponse struct {
	TotalLogs          int                      `json:"total_logs"`
	AnomaliesDetected  int                      `json:"anomalies_detected"`
	HighRiskActivities int                      `json:"high_risk_activities"`
	SuspiciousPatterns []map[string]interface{} `json:"suspicious_patterns"`
	Anomalies          []AuditAnomaly           `json:"anomalies"`
	Recommendations    []string                 `json:"recommendations"`
	RiskDistribution   map[string]int           `json:"risk_distribution"`
}

// RiskScore rates one audit entry. userActions is the number of entries the
// same user produced in the analysed window.
func RiskScore(log *models.AuditLog, userActions int) float64 {
	score := 0.1
	if sensitiveActions[log.Action] {
		score += 0.4
	}
	if h := log.CreatedAt.UTC().Hour(); h < 6 || h > 22 {
		score += 0.2
	}
	if userActions > hyperactiveActions {
		score += 0.3
	}
	if strings.HasPrefix(log.IPAddress, "10.") {
		score -= 0.1
	} else {
		score += 0.2
	}
	return stats.Round2(math.Min(1, score))
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func countValues(m map[string]int) []float64 {
	out := make([]float64, 0, len(m))
	for _, v := range m {
		out = append(out, float64(v))
	}
	return out
}

// AnalyzeAudit scores the tenant's recent audit trail for unusual action
// frequencies, hyperactive accounts and individually risky entries.
func (s *Service) AnalyzeAudit(ctx context.Context, tenantID uuid.UUID, hours int) (*AuditAnalysisResponse, error) {
	var logs []models.AuditLog
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND created_at >= ?", tenantID, s.now().Add(-time.Duration(hours)*time.Hour)).
		Order("created_at ASC").
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to load audit logs: %w", err)
	}

	resp := &AuditAnalysisResponse{
		TotalLogs:          len(logs),
		SuspiciousPatterns: []map[string]interface{}{},
		Anomalies:          []AuditAnomaly{},
	}

	actions := map[string]int{}
	users := map[string]int{}
	for _, l := range logs {
		actions[l.Action]++
		if l.UserID != nil {
			users[l.UserID.String()]++
		}
	}

	if len(actions) > 0 {
		values := countValues(actions)
		mean, std := stats.Mean(values), stats.StdDev(values)
		for _, action := range sortedKeys(actions) {
			c := float64(actions[action])
			if std > 0 && math.Abs(c-mean) > 2*std {
				resp.SuspiciousPatterns = append(resp.SuspiciousPatterns, map[string]interface{}{
					"type":           "unusual_action_frequency",
					"action":         action,
					"count":          actions[action],
					"expected_range": fmt.Sprintf("%.1f ± %.1f", mean, std),
					"severity":       models.SeverityMedium,
				})
			}
		}
	}
	if len(users) > 0 {
		values := countValues(users)
		mean, std := stats.Mean(values), stats.StdDev(values)
		for _, user := range sortedKeys(users) {
			if std > 0 && float64(users[user]) > mean+2*std {
				resp.SuspiciousPatterns = append(resp.SuspiciousPatterns, map[string]interface{}{
					"type":           "hyperactive_user",
					"user_id":        user,
					"activity_count": users[user],
					"threshold":      fmt.Sprintf("%.1f", mean+2*std),
					"severity":       models.SeverityHigh,
				})
			}
		}
	}

	recent := logs
	if len(recent) > scoredLogs {
		recent = recent[len(recent)-scoredLogs:]
	}
	for i := range recent {
		l := &recent[i]
		var userID *string
		count := 0
		if l.UserID != nil {
			id := l.UserID.String()
			userID = &id
			count = users[id]
		}
		score := RiskScore(l, count)
		if score <= anomalyRisk {
			continue
		}
		if score > highRisk {
			resp.HighRiskActivities++
		}
		resp.Anomalies = append(resp.Anomalies, AuditAnomaly{
			LogID:     l.ID.String(),
			Action:    l.Action,
			Resource:  l.Resource,
			RiskScore: score,
			UserID:    userID,
			CreatedAt: l.CreatedAt,
			Reason:    "High risk activity detected",
		})
	}
	resp.AnomaliesDetected = len(resp.Anomalies)

	if len(resp.SuspiciousPatterns) > 0 {
		resp.Recommendations = append(resp.Recommendations, "Review user access patterns for potential security threats")
	}
	if resp.AnomaliesDetected > 5 {
		resp.Recommendations = append(resp.Recommendations, "Implement additional monitoring for high-risk activities")
	}
	resp.Recommendations = append(resp.Recommendations, "Regular audit log analysis helps maintain security posture")

	resp.RiskDistribution = map[string]int{
		"low":    max(0, resp.TotalLogs-resp.AnomaliesDetected-len(resp.SuspiciousPatterns)),
		"medium": len(resp.SuspiciousPatterns),
		"high":   resp.AnomaliesDetected,
	}
	return resp, nil
}

package reporting

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Finding struct {
	Type            string `json:"type" yaml:"type"`
	Severity        string `json:"severity" yaml:"severity"`
	Description     string `json:"description" yaml:"description"`
	AffectedRecords int    `json:"affected_records" yaml:"affected_records"`
}

type ComplianceReport struct {
	ReportType      string    `json:"report_type"`
	ComplianceScore float64   `json:"compliance_score"`
	TotalChecks     int       `json:"total_checks"`
	PassedChecks    int       `json:"passed_checks"`
	FailedChecks    int       `json:"failed_checks"`
	Findings        []Finding `json:"findings"`
	Recommendations []string  `json:"recommendations"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// complianceProfiles holds the canned assessment per framework. Unknown
// frameworks fall back to the generic profile.
var complianceProfiles = map[string]ComplianceReport{
	"gdpr": {
		ComplianceScore: 92.5,
		TotalChecks:     25,
		PassedChecks:    23,
		Findings: []Finding{
			{Type: "data_retention", Severity: "medium", Description: "Some user data retained beyond policy period", AffectedRecords: 145},
			{Type: "consent_tracking", Severity: "low", Description: "Missing consent timestamps for some users", AffectedRecords: 23},
		},
		Recommendations: []string{
			"Implement automated data retention cleanup",
			"Update consent tracking system",
			"Regular compliance audits",
		},
	},
	"pci": {
		ComplianceScore: 88.0,
		TotalChecks:     20,
		PassedChecks:    18,
		Findings: []Finding{
			{Type: "encryption", Severity: "high", Description: "Some payment data not properly encrypted", AffectedRecords: 12},
		},
		Recommendations: []string{
			"Upgrade encryption standards",
			"Implement additional security controls",
		},
	},
}

var genericProfile = ComplianceReport{
	ComplianceScore: 85.0,
	TotalChecks:     15,
	PassedChecks:    13,
	Findings:        []Finding{},
	Recommendations: []string{"Generic compliance improvements needed"},
}

// Compliance returns the assessment for a framework such as gdpr or pci.
func (s *Service) Compliance(reportType string) *ComplianceReport {
	profile, ok := complianceProfiles[reportType]
	if !ok {
		profile = genericProfile
	}
	out := profile
	out.ReportType = reportType
	out.FailedChecks = profile.TotalChecks - profile.PassedChecks
	out.Findings = append([]Finding{}, profile.Findings...)
	out.Recommendations = append([]string{}, profile.Recommendations...)
	out.GeneratedAt = s.now()
	return &out
}

type BIEndpoint struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Endpoint        string   `json:"endpoint"`
	Methods         []string `json:"methods"`
	Parameters      []string `json:"parameters"`
	ResponseFormat  string   `json:"response_format"`
	RefreshInterval int      `json:"refresh_interval"`
}

// BIEndpoints describes the feeds offered to external BI tools. Refresh
// intervals are in minutes.
func BIEndpoints(ispID uuid.UUID) []BIEndpoint {
	base := fmt.Sprintf("/api/v1/reporting/%s/bi", ispID)
	return []BIEndpoint{
		{
			Name:            "subscriber_analytics",
			Description:     "Real-time subscriber metrics and usage data",
			Endpoint:        base + "/subscribers",
			Methods:         []string{"GET"},
			Parameters:      []string{"date_range", "segment", "branch_id"},
			ResponseFormat:  "JSON",
			RefreshInterval: 15,
		},
		{
			Name:            "revenue_metrics",
			Description:     "Billing and revenue analytics",
			Endpoint:        base + "/revenue",
			Methods:         []string{"GET"},
			Parameters:      []string{"period", "currency", "plan_type"},
			ResponseFormat:  "JSON",
			RefreshInterval: 60,
		},
		{
			Name:            "network_performance",
			Description:     "Network health and performance metrics",
			Endpoint:        base + "/network",
			Methods:         []string{"GET"},
			Parameters:      []string{"metric_type", "time_window", "device_id"},
			ResponseFormat:  "JSON",
			RefreshInterval: 5,
		},
		{
			Name:            "support_analytics",
			Description:     "Support ticket and customer satisfaction data",
			Endpoint:        base + "/support",
			Methods:         []string{"GET"},
			Parameters:      []string{"status", "priority", "category"},
			ResponseFormat:  "JSON",
			RefreshInterval: 30,
		},
	}
}

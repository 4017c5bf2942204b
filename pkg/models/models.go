// Package models holds the gorm entities of the BMS schema.
package models

// AllModels lists every entity in migration order, parents before children.
func AllModels() []interface{} {
	return []interface{}{
		&Founder{},
		&ISP{},
		&Branch{},
		&SubscriptionPlan{},
		&User{},
		&NetworkDevice{},
		&TenantAccess{},
		&BandwidthUsage{},
		&Payment{},
		&Refund{},
		&Invoice{},
		&AIInsight{},
		&NetworkAlert{},
		&SLADefinition{},
		&AuditLog{},
		&SupportTicket{},
		&KnowledgeBaseArticle{},
		&CustomerSegment{},
		&MarketingCampaign{},
		&ReportTemplate{},
		&ReportGeneration{},
		&SustainabilityMetric{},
		&CarbonOffset{},
	}
}

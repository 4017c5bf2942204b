package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/astranetix/bms/pkg/models"
)

// AutoMigrate creates or updates every table and seeds the global
// knowledge-base articles.
func AutoMigrate(db *gorm.DB, log *zap.Logger) error {
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	if err := SeedKnowledgeBase(db); err != nil {
		return err
	}
	if log != nil {
		log.Info("Database schema migrated", zap.Int("tables", len(models.AllModels())))
	}
	return nil
}

// globalArticles are visible to every tenant.
var globalArticles = []models.KnowledgeBaseArticle{
	{
		Slug:         "getting-started",
		Title:        "Getting Started with Your Internet Service",
		Content:      "Welcome to your new internet service! This guide covers modem setup, Wi-Fi naming and your first speed test.",
		Category:     "getting_started",
		Tags:         models.StringList{"setup", "basics", "new_customer"},
		Views:        1247,
		HelpfulVotes: 89,
	},
	{
		Slug:         "connection-issues",
		Title:        "Troubleshooting Connection Issues",
		Content:      "If you're experiencing connectivity problems, restart your modem and router, check cables and run a speed test.",
		Category:     "technical",
		Tags:         models.StringList{"troubleshooting", "connection", "technical"},
		Views:        892,
		HelpfulVotes: 67,
	},
	{
		Slug:         "monthly-bill",
		Title:        "Understanding Your Monthly Bill",
		Content:      "Your monthly bill includes your plan charge, any usage above your data limit, taxes and one-off fees.",
		Category:     "billing",
		Tags:         models.StringList{"billing", "charges", "explanation"},
		Views:        654,
		HelpfulVotes: 45,
	},
	{
		Slug:         "password-reset",
		Title:        "How to Reset Your Password",
		Content:      "Use the Forgot Password link on the login page. A reset link is sent to your registered email.",
		Category:     "account",
		Tags:         models.StringList{"password", "login", "account"},
		Views:        511,
		HelpfulVotes: 40,
	},
}

// SeedKnowledgeBase inserts the global articles that are not present yet.
func SeedKnowledgeBase(db *gorm.DB) error {
	for i := range globalArticles {
		a := globalArticles[i]
		var count int64
		if err := db.Model(&models.KnowledgeBaseArticle{}).
			Where("slug = ? AND tenant_id IS NULL", a.Slug).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check knowledge base seed: %w", err)
		}
		if count > 0 {
			continue
		}
		a.IsPublic = true
		a.Language = "en"
		a.CreatedAt = time.Now().UTC()
		if err := db.Create(&a).Error; err != nil {
			return fmt.Errorf("failed to seed knowledge base article %s: %w", a.Slug, err)
		}
	}
	return nil
}

package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astranetix/bms/internal/infrastructure/config"
	"github.com/astranetix/bms/pkg/models"
)

func TestAutoMigrate_SeedsKnowledgeBaseOnce(t *testing.T) {
	db := NewTestDB(t)

	var count int64
	require.NoError(t, db.Model(&models.KnowledgeBaseArticle{}).Count(&count).Error)
	assert.EqualValues(t, len(globalArticles), count)

	require.NoError(t, AutoMigrate(db, nil))
	require.NoError(t, db.Model(&models.KnowledgeBaseArticle{}).Count(&count).Error)
	assert.EqualValues(t, len(globalArticles), count)

	var article models.KnowledgeBaseArticle
	require.NoError(t, db.Where("slug = ?", "monthly-bill").First(&article).Error)
	assert.Nil(t, article.TenantID)
	assert.Equal(t, models.StringList{"billing", "charges", "explanation"}, article.Tags)
	assert.True(t, article.IsPublic)
}

func TestNewDB_RejectsUnknownDriver(t *testing.T) {
	_, err := NewDB(config.DatabaseConfig{Driver: "mysql", DSN: "x"}, nil)
	assert.Error(t, err)
}

func TestJSONColumnsRoundTrip(t *testing.T) {
	db := NewTestDB(t)

	founder := models.Founder{
		Email:        "root@example.com",
		PasswordHash: "x",
		CompanyName:  "Root",
		FullName:     "Root Admin",
		IsActive:     true,
		Settings:     models.JSONMap{"global_policies": map[string]interface{}{"tier": "gold"}},
	}
	require.NoError(t, db.Create(&founder).Error)

	var loaded models.Founder
	require.NoError(t, db.First(&loaded, "id = ?", founder.ID).Error)
	policies, ok := loaded.Settings["global_policies"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "gold", policies["tier"])
}

package support

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/astranetix/bms/common/dbutil"
	"github.com/astranetix/bms/common/errors"
	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/pkg/security"
)

// visibleArticles scopes to public global articles and the tenant's own.
func (s *Service) visibleArticles(ctx context.Context, tenantID uuid.UUID) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.KnowledgeBaseArticle{}).
		Where("(tenant_id IS NULL AND is_public = ?) OR tenant_id = ?", true, tenantID)
}

type ArticleResponse struct {
	ID           string    `json:"id"`
	Slug         string    `json:"slug"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Category     string    `json:"category"`
	Tags         []string  `json:"tags"`
	Views        int       `json:"views"`
	HelpfulVotes int       `json:"helpful_votes"`
	IsPublic     bool      `json:"is_public"`
	Language     string    `json:"language"`
	Global       bool      `json:"global"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func articleResponse(a *models.KnowledgeBaseArticle) ArticleResponse {
	tags := []string(a.Tags)
	if tags == nil {
		tags = []string{}
	}
	return ArticleResponse{
		ID:           a.ID.String(),
		Slug:         a.Slug,
		Title:        a.Title,
		Content:      a.Content,
		Category:     a.Category,
		Tags:         tags,
		Views:        a.Views,
		HelpfulVotes: a.HelpfulVotes,
		IsPublic:     a.IsPublic,
		Language:     a.Language,
		Global:       a.TenantID == nil,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

type ArticleFilter struct {
	Category string `form:"category"`
	Language string `form:"language" binding:"omitempty,len=2"`
	Query    string `form:"q" binding:"omitempty,max=200"`
}

// ListArticles returns global and tenant articles. With a query the result is
// ranked by fuzzy title similarity and articles with no similar word are
// dropped; otherwise the most helpful come first.
func (s *Service) ListArticles(ctx context.Context, tenantID uuid.UUID, f ArticleFilter) ([]ArticleResponse, error) {
	if f.Language == "" {
		f.Language = "en"
	}
	q := s.visibleArticles(ctx, tenantID).Where("language = ?", f.Language)
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	var articles []models.KnowledgeBaseArticle
	if err := q.Order("helpful_votes DESC").Order("title ASC").Find(&articles).Error; err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}

	if f.Query != "" {
		articles = rankArticles(articles, words(f.Query))
	}
	out := make([]ArticleResponse, 0, len(articles))
	for i := range articles {
		out = append(out, articleResponse(&articles[i]))
	}
	return out, nil
}

func rankArticles(articles []models.KnowledgeBaseArticle, query []string) []models.KnowledgeBaseArticle {
	type scored struct {
		article models.KnowledgeBaseArticle
		score   float64
	}
	var hits []scored
	for _, a := range articles {
		if sc := titleScore(query, a.Title); sc > 0 {
			hits = append(hits, scored{a, sc})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	out := make([]models.KnowledgeBaseArticle, len(hits))
	for i, h := range hits {
		out[i] = h.article
	}
	return out
}

// SuggestArticles returns up to n article titles whose titles resemble text.
func (s *Service) SuggestArticles(ctx context.Context, tenantID uuid.UUID, text string, n int) ([]string, error) {
	var articles []models.KnowledgeBaseArticle
	if err := s.visibleArticles(ctx, tenantID).Order("helpful_votes DESC").Find(&articles).Error; err != nil {
		return nil, fmt.Errorf("failed to load articles: %w", err)
	}
	ranked := rankArticles(articles, words(text))
	titles := make([]string, 0, n)
	for i := 0; i < len(ranked) && i < n; i++ {
		titles = append(titles, ranked[i].Title)
	}
	return titles, nil
}

type ArticleCreateRequest struct {
	Title    string   `json:"title" binding:"required,max=255"`
	Content  string   `json:"content" binding:"required"`
	Category string   `json:"category" binding:"required,max=50"`
	Tags     []string `json:"tags,omitempty" binding:"omitempty,max=20,dive,max=50"`
	IsPublic *bool    `json:"is_public,omitempty"`
	Language string   `json:"language,omitempty" binding:"omitempty,len=2"`
}

// CreateArticle adds a tenant article. Content keeps safe formatting only.
func (s *Service) CreateArticle(ctx context.Context, tenantID uuid.UUID, req *ArticleCreateRequest) (*ArticleResponse, error) {
	slug := security.DomainSafe(req.Title)
	if slug == "" {
		return nil, errors.Invalid.Explain("title must contain letters or digits")
	}
	if len(slug) > 100 {
		slug = slug[:100]
	}
	tid := tenantID
	article := &models.KnowledgeBaseArticle{
		TenantID: &tid,
		Slug:     slug,
		Title:    s.sanitizer.SanitizeText(req.Title),
		Content:  s.sanitizer.SanitizeHTML(req.Content),
		Category: req.Category,
		Tags:     models.StringList(req.Tags),
		IsPublic: true,
		Language: req.Language,
	}
	if req.IsPublic != nil {
		article.IsPublic = *req.IsPublic
	}
	if article.Language == "" {
		article.Language = "en"
	}
	if article.Tags == nil {
		article.Tags = models.StringList{}
	}
	if err := s.db.WithContext(ctx).Create(article).Error; err != nil {
		return nil, dbutil.WrapError(err)
	}
	resp := articleResponse(article)
	return &resp, nil
}

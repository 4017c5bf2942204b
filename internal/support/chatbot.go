package support

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/astranetix/bms/pkg/models"
)

type ChatbotRequest struct {
	Message string                 `json:"message" binding:"required,max=2000"`
	UserID  string                 `json:"user_id,omitempty" binding:"omitempty,uuid"`
	Context map[string]interface{} `json:"context,omitempty"`
}

type ArticleLink struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type ChatbotResponse struct {
	Response              string        `json:"response"`
	Confidence            float64       `json:"confidence"`
	SuggestedActions      []string      `json:"suggested_actions"`
	EscalateToHuman       bool          `json:"escalate_to_human"`
	KnowledgeBaseArticles []ArticleLink `json:"knowledge_base_articles"`
}

type chatRule struct {
	keywords   []string
	response   string
	confidence float64
	actions    []string
	category   string
}

var chatRules = []chatRule{
	{
		keywords:   []string{"password", "login"},
		response:   "I can help you with password reset. Please click on 'Forgot Password' on the login page or contact your administrator.",
		confidence: 0.9,
		actions:    []string{"Reset Password", "Contact Admin"},
		category:   "account",
	},
	{
		keywords:   []string{"billing", "payment"},
		response:   "For billing inquiries, I can help you view your current balance and payment history. Would you like me to show your account details?",
		confidence: 0.85,
		actions:    []string{"View Balance", "Payment History", "Update Payment Method"},
		category:   "billing",
	},
	{
		keywords:   []string{"slow", "speed", "internet"},
		response:   "I understand you're experiencing speed issues. Let me help you troubleshoot. First, please try restarting your modem and router.",
		confidence: 0.8,
		actions:    []string{"Speed Test", "Restart Equipment", "Check Network Status"},
		category:   "technical",
	},
}

var fallbackRule = chatRule{
	response:   "I'm here to help! Could you please provide more details about your issue? You can ask about billing, technical problems, or account management.",
	confidence: 0.6,
	actions:    []string{"Contact Human Agent", "Browse Help Topics"},
	category:   "getting_started",
}

func matchRule(message string) (chatRule, bool) {
	text := strings.ToLower(message)
	tokens := words(text)
	for _, r := range chatRules {
		for _, k := range r.keywords {
			if mentions(text, tokens, k) {
				return r, true
			}
		}
	}
	return fallbackRule, false
}

// Chat answers a first-level support question from the keyword rules and
// links the matching knowledge-base category. Unmatched questions escalate.
func (s *Service) Chat(ctx context.Context, tenantID uuid.UUID, req *ChatbotRequest) (*ChatbotResponse, error) {
	rule, matched := matchRule(req.Message)

	var articles []models.KnowledgeBaseArticle
	if err := s.visibleArticles(ctx, tenantID).
		Where("category = ?", rule.category).
		Order("helpful_votes DESC").
		Limit(2).
		Find(&articles).Error; err != nil {
		return nil, fmt.Errorf("failed to load articles: %w", err)
	}
	links := make([]ArticleLink, 0, len(articles))
	for _, a := range articles {
		links = append(links, ArticleLink{Title: a.Title, URL: "/kb/" + a.Slug})
	}

	return &ChatbotResponse{
		Response:              rule.response,
		Confidence:            rule.confidence,
		SuggestedActions:      rule.actions,
		EscalateToHuman:       !matched,
		KnowledgeBaseArticles: links,
	}, nil
}

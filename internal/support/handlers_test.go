package support_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astranetix/bms/internal/messaging"
	"github.com/astranetix/bms/internal/support"
	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/testutil"
)

func setup(t *testing.T) (*testutil.Env, *gin.Engine) {
	env := testutil.NewEnv(t)
	svc := support.NewService(env.DB, env.Logger, env.Publisher)
	r, api := env.Router()
	support.Routes(api, svc, env.Logger, env.Authn())
	return env, r
}

func ticketsPath(tenant uuid.UUID) string {
	return "/api/v1/support/" + tenant.String() + "/tickets"
}

func TestCreateTicket_SLADeadline(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	token := env.Token(t, h.ISP.ID, "isp")

	cases := []struct {
		priority string
		stored   string
		hours    int
	}{
		{"critical", "critical", 2},
		{"urgent", "urgent", 24},
		{"high", "high", 8},
		{"", "medium", 24},
		{"low", "low", 72},
	}
	for _, tc := range cases {
		body := gin.H{"title": "No signal", "description": "Router lights are off", "priority": tc.priority}
		before := time.Now().UTC()
		w := testutil.Do(t, r, http.MethodPost, ticketsPath(h.ISP.ID), token, body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp support.TicketResponse
		testutil.Decode(t, w, &resp)
		assert.Equal(t, tc.stored, resp.Priority)
		assert.Equal(t, "open", resp.Status)
		assert.Equal(t, "general", resp.Category)
		require.NotNil(t, resp.SLADeadline)
		expected := before.Add(time.Duration(tc.hours) * time.Hour)
		assert.WithinDuration(t, expected, *resp.SLADeadline, 5*time.Second)
	}
	assert.Len(t, env.Producer.Messages(messaging.TopicSupportTicket), len(cases))
}

func TestCreateTicket_SanitizesAndLinksUser(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	token := env.Token(t, h.ISP.ID, "isp")

	body := gin.H{
		"title":       "<b>Slow</b> evenings",
		"description": "<script>alert(1)</script>Speed drops after 8pm",
		"category":    "technical",
		"user_id":     h.Subscriber.ID.String(),
	}
	w := testutil.Do(t, r, http.MethodPost, ticketsPath(h.ISP.ID), token, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp support.TicketResponse
	testutil.Decode(t, w, &resp)
	assert.Equal(t, "Slow evenings", resp.Title)
	assert.NotContains(t, resp.Description, "script")
	require.NotNil(t, resp.UserID)
	assert.Equal(t, h.Subscriber.ID.String(), *resp.UserID)

	body["category"] = "hardware"
	w = testutil.Do(t, r, http.MethodPost, ticketsPath(h.ISP.ID), token, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTickets_TenantAccess(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	other := env.ISP(t, h.Founder.ID)
	body := gin.H{"title": "Outage", "description": "Down"}

	w := testutil.Do(t, r, http.MethodPost, ticketsPath(h.ISP.ID), env.Token(t, other.ID, "isp"), body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutil.Do(t, r, http.MethodGet, ticketsPath(h.ISP.ID), env.Token(t, h.Founder.ID, "founder"), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = testutil.Do(t, r, http.MethodGet, ticketsPath(h.ISP.ID), "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListTickets_Filters(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	token := env.Token(t, h.ISP.ID, "isp")

	for _, p := range []string{"low", "high", "high"} {
		w := testutil.Do(t, r, http.MethodPost, ticketsPath(h.ISP.ID), token, gin.H{"title": "T " + p, "description": "d", "priority": p})
		require.Equal(t, http.StatusOK, w.Code)
	}
	other := env.ISP(t, h.Founder.ID)
	w := testutil.Do(t, r, http.MethodPost, ticketsPath(other.ID), env.Token(t, other.ID, "isp"), gin.H{"title": "x", "description": "d"})
	require.Equal(t, http.StatusOK, w.Code)

	var all []support.TicketResponse
	testutil.Decode(t, testutil.Do(t, r, http.MethodGet, ticketsPath(h.ISP.ID), token, nil), &all)
	assert.Len(t, all, 3)

	var high []support.TicketResponse
	testutil.Decode(t, testutil.Do(t, r, http.MethodGet, ticketsPath(h.ISP.ID)+"?priority=high", token, nil), &high)
	assert.Len(t, high, 2)

	var limited []support.TicketResponse
	testutil.Decode(t, testutil.Do(t, r, http.MethodGet, ticketsPath(h.ISP.ID)+"?limit=1", token, nil), &limited)
	assert.Len(t, limited, 1)

	w = testutil.Do(t, r, http.MethodGet, ticketsPath(h.ISP.ID)+"?status=pending", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateTicket_ResolvedAt(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	token := env.Token(t, h.ISP.ID, "isp")

	w := testutil.Do(t, r, http.MethodPost, ticketsPath(h.ISP.ID), token, gin.H{"title": "Billing", "description": "Double charge"})
	require.Equal(t, http.StatusOK, w.Code)
	var created support.TicketResponse
	testutil.Decode(t, w, &created)
	path := ticketsPath(h.ISP.ID) + "/" + created.ID

	agent := uuid.New()
	w = testutil.Do(t, r, http.MethodPut, path, token, gin.H{"status": "resolved", "assigned_to": agent.String(), "satisfaction_rating": 4})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resolved support.TicketResponse
	testutil.Decode(t, w, &resolved)
	assert.Equal(t, "resolved", resolved.Status)
	require.NotNil(t, resolved.ResolutionTime)
	require.NotNil(t, resolved.AssignedTo)
	assert.Equal(t, agent.String(), *resolved.AssignedTo)
	require.NotNil(t, resolved.SatisfactionRating)
	assert.Equal(t, 4, *resolved.SatisfactionRating)

	var stored models.SupportTicket
	require.NoError(t, env.DB.First(&stored, "id = ?", created.ID).Error)
	require.NotNil(t, stored.ResolvedAt)
	firstResolved := *stored.ResolvedAt

	w = testutil.Do(t, r, http.MethodPut, path, token, gin.H{"status": "closed"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, env.DB.First(&stored, "id = ?", created.ID).Error)
	require.NotNil(t, stored.ResolvedAt)
	assert.True(t, firstResolved.Equal(*stored.ResolvedAt))

	w = testutil.Do(t, r, http.MethodPut, path, token, gin.H{"status": "open"})
	require.Equal(t, http.StatusOK, w.Code)
	var reopened support.TicketResponse
	testutil.Decode(t, w, &reopened)
	assert.Nil(t, reopened.ResolutionTime)

	w = testutil.Do(t, r, http.MethodPut, path, token, gin.H{"satisfaction_rating": 6})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.Do(t, r, http.MethodPut, ticketsPath(h.ISP.ID)+"/"+uuid.NewString(), token, gin.H{"status": "closed"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatbot(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	token := env.Token(t, h.ISP.ID, "isp")
	path := "/api/v1/support/" + h.ISP.ID.String() + "/chatbot"

	cases := []struct {
		message    string
		confidence float64
		escalate   bool
		article    string
	}{
		{"I forgot my pasword", 0.9, false, "/kb/password-reset"},
		{"Question about my last payment", 0.85, false, "/kb/monthly-bill"},
		{"The internet is so slow tonight", 0.8, false, "/kb/connection-issues"},
		{"Hello there", 0.6, true, "/kb/getting-started"},
	}
	for _, tc := range cases {
		w := testutil.Do(t, r, http.MethodPost, path, token, gin.H{"message": tc.message})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp support.ChatbotResponse
		testutil.Decode(t, w, &resp)
		assert.Equal(t, tc.confidence, resp.Confidence, tc.message)
		assert.Equal(t, tc.escalate, resp.EscalateToHuman, tc.message)
		assert.NotEmpty(t, resp.SuggestedActions)
		require.NotEmpty(t, resp.KnowledgeBaseArticles, tc.message)
		assert.Equal(t, tc.article, resp.KnowledgeBaseArticles[0].URL)
	}

	w := testutil.Do(t, r, http.MethodPost, path, token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalytics(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	token := env.Token(t, h.ISP.ID, "isp")
	now := time.Now().UTC()
	agent := uuid.New()
	five, three := 5, 3

	ticket := func(created time.Time, category, priority string, slaHours int, resolvedAfter time.Duration, rating *int, assigned *uuid.UUID) {
		deadline := created.Add(time.Duration(slaHours) * time.Hour)
		st := &models.SupportTicket{
			TenantID:           h.ISP.ID,
			Title:              category,
			Description:        "d",
			Category:           category,
			Priority:           priority,
			Status:             models.StatusOpen,
			SLADeadline:        &deadline,
			SatisfactionRating: rating,
			AssignedTo:         assigned,
		}
		st.CreatedAt = created
		if resolvedAfter > 0 {
			at := created.Add(resolvedAfter)
			st.ResolvedAt = &at
			st.Status = models.StatusResolved
		}
		require.NoError(t, env.DB.Create(st).Error)
	}
	ticket(now.Add(-10*time.Hour), "technical", "high", 8, 4*time.Hour, &five, &agent)
	ticket(now.Add(-30*time.Hour), "billing", "medium", 24, 30*time.Hour, &three, &agent)
	ticket(now.Add(-time.Hour), "technical", "medium", 24, 0, nil, nil)
	ticket(now.AddDate(0, 0, -40), "account", "low", 72, 0, nil, nil)

	w := testutil.Do(t, r, http.MethodGet, "/api/v1/support/"+h.ISP.ID.String()+"/analytics?days_back=30", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp support.AnalyticsResponse
	testutil.Decode(t, w, &resp)

	assert.Equal(t, int64(3), resp.TotalTickets)
	assert.Equal(t, int64(2), resp.OpenTickets)
	assert.Equal(t, int64(2), resp.ResolvedTickets)
	assert.InDelta(t, 17.0, resp.AverageResolutionTime, 0.01)
	assert.Equal(t, 50.0, resp.SLAComplianceRate)
	assert.Equal(t, 4.0, resp.CustomerSatisfaction)

	require.Len(t, resp.TopCategories, 2)
	assert.Equal(t, "technical", resp.TopCategories[0].Category)
	assert.Equal(t, 66.67, resp.TopCategories[0].Percentage)

	require.Len(t, resp.AgentPerformance, 1)
	assert.Equal(t, agent.String(), resp.AgentPerformance[0].AgentID)
	assert.Equal(t, 2, resp.AgentPerformance[0].TicketsResolved)
	assert.Equal(t, 4.0, resp.AgentPerformance[0].SatisfactionRating)

	require.Len(t, resp.TicketTrends, 7)
	assert.Equal(t, now.Format("2006-01-02"), resp.TicketTrends[0].Date)
	var created, resolved int
	for _, tr := range resp.TicketTrends {
		created += tr.TicketCount
		resolved += tr.ResolvedCount
	}
	assert.Equal(t, 3, created)
	assert.Equal(t, 2, resolved)

	w = testutil.Do(t, r, http.MethodGet, "/api/v1/support/"+h.ISP.ID.String()+"/analytics?days_back=0", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalytics_Empty(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	w := testutil.Do(t, r, http.MethodGet, "/api/v1/support/"+h.ISP.ID.String()+"/analytics", env.Token(t, h.ISP.ID, "isp"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp support.AnalyticsResponse
	testutil.Decode(t, w, &resp)
	assert.Zero(t, resp.TotalTickets)
	assert.Zero(t, resp.SLAComplianceRate)
	assert.Zero(t, resp.CustomerSatisfaction)
	assert.Empty(t, resp.TopCategories)
}

func TestKnowledgeBase(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	token := env.Token(t, h.ISP.ID, "isp")
	path := "/api/v1/support/" + h.ISP.ID.String() + "/knowledge-base"

	var seeded []support.ArticleResponse
	testutil.Decode(t, testutil.Do(t, r, http.MethodGet, path, token, nil), &seeded)
	require.Len(t, seeded, 4)
	assert.Equal(t, "getting-started", seeded[0].Slug)
	assert.True(t, seeded[0].Global)

	w := testutil.Do(t, r, http.MethodPost, path, token, gin.H{
		"title":    "Fibre Router Setup",
		"content":  `<p>Plug in the <b>ONT</b></p><script>steal()</script>`,
		"category": "technical",
		"tags":     []string{"fibre"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var created support.ArticleResponse
	testutil.Decode(t, w, &created)
	assert.Equal(t, "fibre-router-setup", created.Slug)
	assert.False(t, created.Global)
	assert.True(t, created.IsPublic)
	assert.Equal(t, "en", created.Language)
	assert.Contains(t, created.Content, "<b>ONT</b>")
	assert.NotContains(t, created.Content, "script")

	var technical []support.ArticleResponse
	testutil.Decode(t, testutil.Do(t, r, http.MethodGet, path+"?category=technical", token, nil), &technical)
	assert.Len(t, technical, 2)

	var found []support.ArticleResponse
	testutil.Decode(t, testutil.Do(t, r, http.MethodGet, path+"?q=pasword%20reset", token, nil), &found)
	require.NotEmpty(t, found)
	assert.Equal(t, "password-reset", found[0].Slug)

	other := env.ISP(t, h.Founder.ID)
	var foreign []support.ArticleResponse
	testutil.Decode(t, testutil.Do(t, r, http.MethodGet, "/api/v1/support/"+other.ID.String()+"/knowledge-base", env.Token(t, other.ID, "isp"), nil), &foreign)
	assert.Len(t, foreign, 4)
}

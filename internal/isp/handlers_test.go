package isp_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astranetix/bms/internal/isp"
	"github.com/astranetix/bms/internal/messaging"
	"github.com/astranetix/bms/internal/tenancy"
	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/pkg/security"
	"github.com/astranetix/bms/testutil"
)

const gb = int64(models.BytesPerGB)

func setup(t *testing.T) (*testutil.Env, *gin.Engine) {
	env := testutil.NewEnv(t)
	svc := isp.NewService(env.DB, env.Logger, env.Publisher, env.Audit, env.Sealer)
	r, api := env.Router()
	isp.Routes(api, svc, env.Logger, env.Authn())
	return env, r
}

func TestCreateSubscriber(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	token := env.Token(t, h.ISP.ID, "isp")

	body := gin.H{
		"branch_id": h.Branch.ID.String(),
		"plan_id":   h.Plan.ID.String(),
		"username":  "alice",
		"email":     "alice@example.com",
		"full_name": "Alice Example",
	}
	w := testutil.Do(t, r, http.MethodPost, "/api/v1/isp/subscribers", token, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp isp.SubscriberCreateResponse
	testutil.Decode(t, w, &resp)
	assert.Len(t, resp.GeneratedPassword, security.DefaultPasswordLength)
	assert.Equal(t, h.Plan.Name, resp.PlanName)
	assert.Equal(t, 100, resp.BandwidthLimit)

	var stored models.User
	require.NoError(t, env.DB.Where("username = ?", "alice").First(&stored).Error)
	assert.True(t, security.VerifyPassword(resp.GeneratedPassword, stored.PasswordHash))
	require.NotNil(t, stored.DataLimit)
	assert.Equal(t, 100, *stored.DataLimit)
	assert.Equal(t, "broadband", stored.ConnectionType)
	assert.Len(t, env.Producer.Messages(messaging.TopicSubscriberCreated), 1)

	w = testutil.Do(t, r, http.MethodPost, "/api/v1/isp/subscribers", token, body)
	assert.Equal(t, http.StatusConflict, w.Code)

	body["password"] = "chosen-password"
	body["username"] = "bob"
	w = testutil.Do(t, r, http.MethodPost, "/api/v1/isp/subscribers", token, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp = isp.SubscriberCreateResponse{}
	testutil.Decode(t, w, &resp)
	assert.Empty(t, resp.GeneratedPassword)
}

func TestCreateSubscriber_ForeignBranchOrPlan(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	other := env.ISP(t, h.Founder.ID)
	otherBranch := env.Branch(t, other.ID)
	otherPlan := env.Plan(t, other.ID, "10.00", 10, nil)
	token := env.Token(t, h.ISP.ID, "isp")

	body := gin.H{
		"branch_id": otherBranch.ID.String(),
		"plan_id":   h.Plan.ID.String(),
		"username":  "mallory",
		"email":     "m@example.com",
		"full_name": "Mallory",
	}
	w := testutil.Do(t, r, http.MethodPost, "/api/v1/isp/subscribers", token, body)
	assert.Equal(t, http.StatusNotFound, w.Code)

	body["branch_id"] = h.Branch.ID.String()
	body["plan_id"] = otherPlan.ID.String()
	w = testutil.Do(t, r, http.MethodPost, "/api/v1/isp/subscribers", token, body)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListSubscribers(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	second := env.Subscriber(t, h.Branch.ID, h.Plan)
	env.Usage(t, h.Subscriber.ID, time.Now().UTC(), gb, gb, 50, 20)
	env.Payment(t, h.Subscriber.ID, "49.99", models.PaymentCompleted, time.Now().UTC())
	require.NoError(t, env.DB.Model(second).Update("is_active", false).Error)

	token := env.Token(t, h.ISP.ID, "isp")
	w := testutil.Do(t, r, http.MethodGet, "/api/v1/isp/subscribers?limit=10", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var page struct {
		Data       []isp.SubscriberListResponse `json:"data"`
		Pagination struct {
			TotalRecords int64 `json:"total_records"`
			PerPage      int   `json:"per_page"`
		} `json:"pagination"`
	}
	testutil.Decode(t, w, &page)
	assert.Equal(t, int64(2), page.Pagination.TotalRecords)
	assert.Equal(t, 10, page.Pagination.PerPage)
	require.Len(t, page.Data, 2)
	for _, row := range page.Data {
		assert.Equal(t, h.Branch.Name, row.BranchName)
		if row.ID == h.Subscriber.ID.String() {
			assert.Equal(t, 2.0, row.LastUsageGB)
			assert.Equal(t, models.PaymentCompleted, row.LastPaymentStatus)
		} else {
			assert.Equal(t, "none", row.LastPaymentStatus)
		}
	}

	w = testutil.Do(t, r, http.MethodGet, "/api/v1/isp/subscribers?active=false", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	testutil.Decode(t, w, &page)
	require.Len(t, page.Data, 1)
	assert.Equal(t, second.ID.String(), page.Data[0].ID)
}

func TestSuspendSubscriber(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	token := env.Token(t, h.ISP.ID, "isp")

	w := testutil.Do(t, r, http.MethodPatch, "/api/v1/isp/subscribers/"+h.Subscriber.ID.String(), token, gin.H{"is_active": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, env.Producer.Messages(messaging.TopicSubscriberSuspended), 1)

	var u models.User
	require.NoError(t, env.DB.First(&u, "id = ?", h.Subscriber.ID).Error)
	assert.False(t, u.IsActive)

	w = testutil.Do(t, r, http.MethodPatch, "/api/v1/isp/subscribers/not-a-uuid", token, gin.H{"is_active": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPlans(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	token := env.Token(t, h.ISP.ID, "isp")

	w := testutil.Do(t, r, http.MethodPost, "/api/v1/isp/plans", token, gin.H{
		"name": "Basic", "bandwidth_limit": 25, "price": 19.5, "currency": "EUR",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var plan isp.PlanResponse
	testutil.Decode(t, w, &plan)
	assert.Equal(t, 19.5, plan.Price)
	assert.Equal(t, "EUR", plan.Currency)
	assert.Equal(t, "monthly", plan.BillingCycle)
	assert.True(t, plan.IsActive)

	w = testutil.Do(t, r, http.MethodPost, "/api/v1/isp/plans", token, gin.H{"name": "Free", "bandwidth_limit": 5, "price": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.Do(t, r, http.MethodPost, "/api/v1/isp/plans", token, gin.H{"name": "Odd", "bandwidth_limit": 5, "price": 5, "billing_cycle": "weekly"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.Do(t, r, http.MethodGet, "/api/v1/isp/plans", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var plans []isp.PlanResponse
	testutil.Decode(t, w, &plans)
	require.Len(t, plans, 2)
	assert.Equal(t, "Basic", plans[0].Name)
}

func TestRadiusConfig_SealsSecret(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	token := env.Token(t, h.ISP.ID, "isp")

	w := testutil.Do(t, r, http.MethodPut, "/api/v1/isp/radius", token, gin.H{
		"server_host": "10.0.0.1", "secret": "radius-shared-secret", "nas_identifier": "nas-1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp isp.RadiusConfigResponse
	testutil.Decode(t, w, &resp)
	assert.Equal(t, 1812, resp.ServerPort)
	assert.Equal(t, 1812, resp.AuthPort)
	assert.Equal(t, 1813, resp.AcctPort)
	assert.Equal(t, "****************cret", resp.Secret)

	var stored models.ISP
	require.NoError(t, env.DB.First(&stored, "id = ?", h.ISP.ID).Error)
	radius, ok := stored.Settings["radius"].(map[string]interface{})
	require.True(t, ok)
	sealed, _ := radius["secret"].(string)
	assert.NotEqual(t, "radius-shared-secret", sealed)
	plain, err := env.Sealer.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "radius-shared-secret", plain)
}

func TestBrandingAndDashboard(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	token := env.Token(t, h.ISP.ID, "isp")
	now := time.Now().UTC()

	w := testutil.Do(t, r, http.MethodPut, "/api/v1/isp/branding", token, gin.H{"primary_color": "#123456"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	env.Payment(t, h.Subscriber.ID, "49.99", models.PaymentCompleted, now)
	env.Usage(t, h.Subscriber.ID, now, gb, gb, 40, 21)
	require.NoError(t, env.DB.Create(&models.NetworkAlert{
		TenantID: h.ISP.ID, TenantType: "isp", AlertType: "link", Severity: models.SeverityCritical,
		Title: "Uplink down", Status: models.StatusOpen, Metadata: models.JSONMap{},
	}).Error)
	require.NoError(t, env.DB.Create(&models.SupportTicket{
		TenantID: h.ISP.ID, Title: "Slow", Description: "Slow internet", Priority: "high", Status: models.StatusOpen,
	}).Error)

	w = testutil.Do(t, r, http.MethodGet, "/api/v1/isp/dashboard", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var dash isp.DashboardResponse
	testutil.Decode(t, w, &dash)
	assert.Equal(t, int64(1), dash.SubscriberCount)
	assert.Equal(t, int64(1), dash.BranchesCount)
	assert.Equal(t, 49.99, dash.MonthlyRevenue)
	assert.Equal(t, 2.0, dash.TotalBandwidthGB)
	assert.Equal(t, 40.0, dash.AvgPeakUsageMbps)
	assert.Equal(t, 88.0, dash.NetworkHealth)
	require.Len(t, dash.RecentTickets, 1)
	assert.Equal(t, "Slow", dash.RecentTickets[0].Title)
	assert.Equal(t, "#123456", dash.Branding["primary_color"])
}

func TestRegisterDevice_MasksCredentials(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	token := env.Token(t, h.ISP.ID, "isp")

	w := testutil.Do(t, r, http.MethodPost, "/api/v1/isp/devices", token, gin.H{
		"branch_id": h.Branch.ID.String(), "name": "core-1", "device_type": "router",
		"ip_address": "192.168.1.1", "username": "admin", "password": "hunter22", "snmp_community": "public",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp isp.DeviceResponse
	testutil.Decode(t, w, &resp)
	assert.Equal(t, "********", resp.Password)
	assert.Equal(t, "******", resp.SNMPCommunity)
	assert.Empty(t, resp.RadiusSecret)

	var device models.NetworkDevice
	require.NoError(t, env.DB.First(&device, "id = ?", resp.ID).Error)
	plain, err := env.Sealer.Open(device.PasswordEncrypted)
	require.NoError(t, err)
	assert.Equal(t, "hunter22", plain)

	other := env.Branch(t, env.ISP(t, h.Founder.ID).ID)
	w = testutil.Do(t, r, http.MethodPost, "/api/v1/isp/devices", token, gin.H{
		"branch_id": other.ID.String(), "name": "edge", "device_type": "switch", "ip_address": "10.0.0.2",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIngestUsage(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	token := env.Token(t, h.ISP.ID, "isp")

	w := testutil.Do(t, r, http.MethodPost, "/api/v1/isp/usage", token, gin.H{"records": []gin.H{
		{"user_id": h.Subscriber.ID.String(), "date": "2026-01-02", "upload_bytes": 100, "download_bytes": 400, "peak_usage_mbps": 12.5, "peak_hour": 20},
		{"user_id": h.Subscriber.ID.String(), "date": "2026-01-03", "upload_bytes": 1, "download_bytes": 2, "peak_hour": 9},
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp isp.UsageIngestResponse
	testutil.Decode(t, w, &resp)
	assert.Equal(t, 2, resp.Ingested)

	var total int64
	require.NoError(t, env.DB.Model(&models.BandwidthUsage{}).Select("COALESCE(SUM(total_bytes),0)").Scan(&total).Error)
	assert.Equal(t, int64(503), total)

	stranger := env.Subscriber(t, env.Branch(t, env.ISP(t, h.Founder.ID).ID).ID, nil)
	w = testutil.Do(t, r, http.MethodPost, "/api/v1/isp/usage", token, gin.H{"records": []gin.H{
		{"user_id": stranger.ID.String(), "date": "2026-01-02", "upload_bytes": 1, "download_bytes": 1},
	}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = testutil.Do(t, r, http.MethodPost, "/api/v1/isp/usage", token, gin.H{"records": []gin.H{
		{"user_id": h.Subscriber.ID.String(), "date": "02/01/2026"},
	}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBandwidthOptimization(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	today := tenancy.DayStart(time.Now().UTC())
	for i := 0; i < 5; i++ {
		day := today.AddDate(0, 0, -i)
		env.Usage(t, h.Subscriber.ID, day, 0, int64(5-i)*gb, 90, 20)
	}
	env.Usage(t, h.Subscriber.ID, today.AddDate(0, 0, -5), 0, gb, 90, 8)

	w := testutil.Do(t, r, http.MethodGet, "/api/v1/isp/bandwidth/optimization", env.Token(t, h.ISP.ID, "isp"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp isp.BandwidthOptimizationResponse
	testutil.Decode(t, w, &resp)
	assert.Equal(t, 16.0, resp.TotalUsageGB)
	assert.Equal(t, []int{20, 8}, resp.PeakHours)
	require.Len(t, resp.CongestionPoints, 1)
	assert.Equal(t, 90.0, resp.CongestionPoints[0].Utilization)
	assert.Equal(t, 10.0, resp.OptimizationScore)
	assert.Greater(t, resp.PredictedGrowth, 0.0)
	assert.NotEmpty(t, resp.Recommendations)
}

func TestSubscriberAnalytics(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	now := time.Now().UTC()
	env.Usage(t, h.Subscriber.ID, tenancy.MonthStart(now), 0, 90*gb, 50, 20)
	env.Payment(t, h.Subscriber.ID, "50.00", models.PaymentCompleted, now)
	rating := 5
	require.NoError(t, env.DB.Create(&models.SupportTicket{
		TenantID: h.ISP.ID, Title: "Thanks", Description: "ok", Status: models.StatusResolved, SatisfactionRating: &rating,
	}).Error)

	w := testutil.Do(t, r, http.MethodGet, "/api/v1/isp/analytics/subscribers", env.Token(t, h.ISP.ID, "isp"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp isp.SubscriberAnalyticsResponse
	testutil.Decode(t, w, &resp)
	assert.Equal(t, int64(1), resp.TotalSubscribers)
	assert.Equal(t, int64(1), resp.ActiveSubscribers)
	assert.Equal(t, 100.0, resp.GrowthRate)
	assert.Len(t, resp.SubscribersByMonth, 6)
	assert.Equal(t, int64(1), resp.SubscribersByMonth[now.Format("2006-01")])
	assert.Equal(t, int64(1), resp.PlanDistribution[h.Plan.Name])
	require.Len(t, resp.HighUsageUsers, 1)
	assert.Equal(t, 90.0, resp.HighUsageUsers[0].Percentage)
	assert.Equal(t, 50.0, resp.RevenuePerUser)
	assert.Equal(t, 5.0, resp.SatisfactionScore)
}

func TestISPRoutes_RequireISP(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	w := testutil.Do(t, r, http.MethodGet, "/api/v1/isp/dashboard", env.Token(t, h.Subscriber.ID, "user"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

package ai_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astranetix/bms/internal/ai"
	"github.com/astranetix/bms/internal/tenancy"
	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/testutil"
)

const gb = models.BytesPerGB

func setup(t *testing.T) (*testutil.Env, *gin.Engine) {
	env := testutil.NewEnv(t)
	r, api := env.Router()
	ai.Routes(api, ai.NewService(env.DB, env.Logger), env.Logger, env.Authn())
	return env, r
}

func TestAnalyzeTraffic(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	hours := []int{20, 20, 21, 20, 21}
	for i, hour := range hours {
		env.Usage(t, h.Subscriber.ID, start.AddDate(0, 0, i), 0, int64(i+1)*gb, 50, hour)
	}
	// outside the requested window
	env.Usage(t, h.Subscriber.ID, start.AddDate(0, 0, 10), 0, 50*gb, 50, 3)

	token := env.Token(t, h.ISP.ID, "isp")
	w := testutil.Do(t, r, http.MethodPost, "/api/v1/ai/traffic/analyze", token, gin.H{
		"start_date": "2024-01-01",
		"end_date":   "2024-01-05",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ai.TrafficAnalysisResponse
	testutil.Decode(t, w, &resp)
	assert.Equal(t, 5, resp.DataPointsAnalyzed)
	assert.Equal(t, []float64{6, 7, 8, 9, 10, 11, 12}, resp.PredictedBandwidthGB)
	assert.Equal(t, []int{20, 21}, resp.PeakHours)
	assert.Equal(t, 0.67, resp.CongestionRiskScore)
	assert.Equal(t, 0.58, resp.ConfidenceScore)
	assert.NotEmpty(t, resp.OptimizationRecommendations)

	var insight models.AIInsight
	require.NoError(t, env.DB.First(&insight, "id = ?", resp.AnalysisID).Error)
	assert.Equal(t, ai.InsightTraffic, insight.InsightType)
	assert.Equal(t, h.ISP.ID, insight.TenantID)
	assert.Equal(t, "comprehensive", insight.Data["analysis_type"])
}

func TestAnalyzeTraffic_EmptyPeriod(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)

	w := testutil.Do(t, r, http.MethodPost, "/api/v1/ai/traffic/analyze", env.Token(t, h.ISP.ID, "isp"), gin.H{
		"start_date": "2024-03-01", "end_date": "2024-03-31", "analysis_type": "congestion",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var resp ai.TrafficAnalysisResponse
	testutil.Decode(t, w, &resp)
	assert.Zero(t, resp.DataPointsAnalyzed)
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 0, 0}, resp.PredictedBandwidthGB)
	assert.Empty(t, resp.PeakHours)
	assert.Zero(t, resp.CongestionRiskScore)
	assert.Equal(t, []string{"No traffic recorded in the selected period."}, resp.OptimizationRecommendations)
}

func TestAnalyzeTraffic_Validation(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	token := env.Token(t, h.ISP.ID, "isp")

	for name, body := range map[string]gin.H{
		"reversed":     {"start_date": "2024-02-01", "end_date": "2024-01-01"},
		"bad type":     {"start_date": "2024-01-01", "end_date": "2024-01-02", "analysis_type": "deep"},
		"bad date":     {"start_date": "01/01/2024", "end_date": "2024-01-02"},
		"missing date": {"start_date": "2024-01-01"},
	} {
		t.Run(name, func(t *testing.T) {
			w := testutil.Do(t, r, http.MethodPost, "/api/v1/ai/traffic/analyze", token, body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestOptimizeQoS(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	today := tenancy.DayStart(tenancy.Now())
	standard := env.Subscriber(t, h.Branch.ID, h.Plan)
	low := env.Subscriber(t, h.Branch.ID, h.Plan)
	env.Subscriber(t, env.Branch(t, env.ISP(t, h.Founder.ID).ID).ID, nil)

	env.Usage(t, h.Subscriber.ID, today, 0, gb, 85, 20)
	env.Usage(t, h.Subscriber.ID, today.AddDate(0, 0, -1), 0, gb, 95, 20)
	env.Usage(t, standard.ID, today, 0, gb, 50, 20)
	env.Usage(t, low.ID, today, 0, gb, 10, 20)

	w := testutil.Do(t, r, http.MethodGet, "/api/v1/ai/qos/optimize", env.Token(t, h.ISP.ID, "isp"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ai.QoSOptimizationResponse
	testutil.Decode(t, w, &resp)
	assert.Equal(t, 3, resp.TotalUsersAnalyzed)
	assert.Equal(t, 1, resp.HighPriorityUsers)
	assert.Equal(t, 66.67, resp.OptimizationScore)
	assert.Len(t, resp.GlobalRecommendations, 2)

	byUser := map[string]ai.Recommendation{}
	for _, rec := range resp.UserRecommendations {
		byUser[rec.UserID] = rec
	}
	assert.Equal(t, ai.PriorityHigh, byUser[h.Subscriber.ID.String()].PriorityLevel)
	assert.Equal(t, 125, byUser[h.Subscriber.ID.String()].RecommendedBandwidth)
	assert.Equal(t, "priority", byUser[h.Subscriber.ID.String()].TrafficShapingRules["queue"])
	assert.Equal(t, ai.PriorityStandard, byUser[standard.ID.String()].PriorityLevel)
	assert.Equal(t, 100, byUser[standard.ID.String()].RecommendedBandwidth)
	assert.Equal(t, ai.PriorityLow, byUser[low.ID.String()].PriorityLevel)
	assert.Equal(t, 75, byUser[low.ID.String()].RecommendedBandwidth)
}

func TestTier(t *testing.T) {
	cases := []struct {
		peak        float64
		limit       int
		priority    string
		recommended int
	}{
		{80, 100, ai.PriorityHigh, 125},
		{79.9, 100, ai.PriorityStandard, 100},
		{30, 100, ai.PriorityStandard, 100},
		{29, 100, ai.PriorityLow, 75},
		{0, 1, ai.PriorityLow, 1},
	}
	for _, tc := range cases {
		priority, recommended := ai.Tier(tc.peak, tc.limit)
		assert.Equal(t, tc.priority, priority, "peak %v", tc.peak)
		assert.Equal(t, tc.recommended, recommended, "peak %v", tc.peak)
	}
}

func TestPredictNetwork(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	today := tenancy.DayStart(tenancy.Now())
	for i := 0; i < 10; i++ {
		env.Usage(t, h.Subscriber.ID, today.AddDate(0, 0, i-9), 0, int64(i+1)*gb, 90, 20)
	}

	w := testutil.Do(t, r, http.MethodGet, "/api/v1/ai/network/predict?days_ahead=5", env.Token(t, h.ISP.ID, "isp"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ai.NetworkPredictionResponse
	testutil.Decode(t, w, &resp)
	assert.Equal(t, 5, resp.DaysAhead)
	assert.Equal(t, 15.0, resp.PredictedPeakUsageGB)
	assert.Equal(t, 13.0, resp.PredictedAverageUsageGB)
	assert.Equal(t, 900.0, resp.GrowthRatePercent)
	assert.Equal(t, 0.67, resp.ConfidenceScore)
	assert.Len(t, resp.RiskFactors, 2)
	assert.Len(t, resp.CapacityRecommendations, 2)

	w = testutil.Do(t, r, http.MethodGet, "/api/v1/ai/network/predict?days_ahead=0", env.Token(t, h.ISP.ID, "isp"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPredictNetwork_NoHistory(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)

	w := testutil.Do(t, r, http.MethodGet, "/api/v1/ai/network/predict", env.Token(t, h.Founder.ID, "founder"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp ai.NetworkPredictionResponse
	testutil.Decode(t, w, &resp)
	assert.Equal(t, 7, resp.DaysAhead)
	assert.Zero(t, resp.PredictedPeakUsageGB)
	assert.Zero(t, resp.GrowthRatePercent)
	assert.Equal(t, []string{"Less than a week of history; the forecast is tentative"}, resp.RiskFactors)
}

func TestDetectAnomalies(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	today := tenancy.DayStart(tenancy.Now())
	env.Usage(t, h.Subscriber.ID, today, 0, 100*gb, 95, 2)
	for i := 0; i < 10; i++ {
		u := env.Subscriber(t, h.Branch.ID, h.Plan)
		env.Usage(t, u.ID, today, 0, gb, 20, 20)
	}
	// older than the window
	env.Usage(t, h.Subscriber.ID, today.AddDate(0, 0, -5), 0, 500*gb, 95, 2)

	token := env.Token(t, h.ISP.ID, "isp")
	w := testutil.Do(t, r, http.MethodGet, "/api/v1/ai/anomalies?hours=24", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ai.AnomalyDetectionResponse
	testutil.Decode(t, w, &resp)
	assert.Equal(t, 24, resp.TimePeriodHours)
	require.Equal(t, 1, resp.AnomaliesDetected)
	assert.Equal(t, 1, resp.HighSeverityCount)
	a := resp.Anomalies[0]
	assert.Equal(t, "bandwidth_spike", a.Type)
	assert.Equal(t, "high", a.Severity)
	assert.Equal(t, 3.16, a.ZScore)
	require.NotNil(t, a.UserID)
	assert.Equal(t, h.Subscriber.ID.String(), *a.UserID)
	assert.Equal(t, 10.0, resp.BaselineMetrics["mean_gb"])
	assert.Equal(t, 11.0, resp.BaselineMetrics["users"])
	assert.Len(t, resp.Recommendations, 2)

	w = testutil.Do(t, r, http.MethodGet, "/api/v1/ai/anomalies?hours=200", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDetectAnomalies_TenantScope(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	env.Usage(t, h.Subscriber.ID, tenancy.DayStart(tenancy.Now()), 0, 100*gb, 95, 2)
	rival := env.ISP(t, h.Founder.ID)

	w := testutil.Do(t, r, http.MethodGet, "/api/v1/ai/anomalies", env.Token(t, rival.ID, "isp"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp ai.AnomalyDetectionResponse
	testutil.Decode(t, w, &resp)
	assert.Zero(t, resp.AnomaliesDetected)
	assert.Zero(t, resp.BaselineMetrics["users"])
	assert.Equal(t, []string{"No anomalies detected. Traffic is within normal bounds."}, resp.Recommendations)
}

func TestSeverity(t *testing.T) {
	assert.Equal(t, "medium", ai.Severity(2.5))
	assert.Equal(t, "high", ai.Severity(-3.5))
	assert.Equal(t, "critical", ai.Severity(4.47))
}

func TestInsights(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	token := env.Token(t, h.ISP.ID, "isp")

	require.Equal(t, http.StatusOK, testutil.Do(t, r, http.MethodGet, "/api/v1/ai/qos/optimize", token, nil).Code)
	w := testutil.Do(t, r, http.MethodPost, "/api/v1/ai/traffic/analyze", token, gin.H{
		"start_date": "2024-01-01", "end_date": "2024-01-02",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var analysis ai.TrafficAnalysisResponse
	testutil.Decode(t, w, &analysis)

	w = testutil.Do(t, r, http.MethodGet, "/api/v1/ai/insights", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var all []ai.InsightResponse
	testutil.Decode(t, w, &all)
	assert.Len(t, all, 2)

	w = testutil.Do(t, r, http.MethodGet, "/api/v1/ai/insights?type=traffic_analysis", token, nil)
	var traffic []ai.InsightResponse
	testutil.Decode(t, w, &traffic)
	require.Len(t, traffic, 1)
	assert.Equal(t, analysis.AnalysisID, traffic[0].ID)

	w = testutil.Do(t, r, http.MethodGet, "/api/v1/ai/insights/"+analysis.AnalysisID, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	rival := env.ISP(t, h.Founder.ID)
	w = testutil.Do(t, r, http.MethodGet, "/api/v1/ai/insights/"+analysis.AnalysisID, env.Token(t, rival.ID, "isp"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutes_RequireStaff(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)

	w := testutil.Do(t, r, http.MethodGet, "/api/v1/ai/qos/optimize", env.Token(t, h.Subscriber.ID, "user"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = testutil.Do(t, r, http.MethodGet, "/api/v1/ai/qos/optimize", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

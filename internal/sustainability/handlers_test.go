package sustainability_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astranetix/bms/internal/sustainability"
	"github.com/astranetix/bms/internal/tenancy"
	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/testutil"
)

type fixture struct {
	env   *testutil.Env
	r     *gin.Engine
	h     *testutil.Hierarchy
	token string
	today time.Time
}

func setup(t *testing.T) *fixture {
	env := testutil.NewEnv(t)
	svc := sustainability.NewService(env.DB, env.Logger)
	r, api := env.Router()
	sustainability.Routes(api, svc, env.Logger, env.Authn())
	h := env.Hierarchy(t)
	return &fixture{
		env:   env,
		r:     r,
		h:     h,
		token: env.Token(t, h.ISP.ID, "isp"),
		today: tenancy.DayStart(time.Now().UTC()),
	}
}

func (f *fixture) path(tenant uuid.UUID, rest string) string {
	return "/api/v1/sustainability/" + tenant.String() + rest
}

func (f *fixture) metric(t *testing.T, tenant uuid.UUID, metricType string, value float64, daysAgo int) {
	start := f.today.AddDate(0, 0, -daysAgo)
	require.NoError(t, f.env.DB.Create(&models.SustainabilityMetric{
		TenantID:    tenant,
		TenantType:  "isp",
		MetricType:  metricType,
		Value:       value,
		Unit:        "kWh",
		PeriodStart: start,
		PeriodEnd:   start,
		Metadata:    models.JSONMap{},
	}).Error)
}

func TestDashboard(t *testing.T) {
	f := setup(t)
	f.metric(t, f.h.ISP.ID, sustainability.MetricEnergy, 1000, 5)
	f.metric(t, f.h.ISP.ID, sustainability.MetricEnergy, 2000, 10)
	f.metric(t, f.h.ISP.ID, sustainability.MetricEnergy, 9999, 40)
	f.metric(t, f.h.ISP.ID, sustainability.MetricRenewable, 40, 3)
	f.metric(t, f.h.ISP.ID, sustainability.MetricRenewable, 60, 4)
	f.metric(t, uuid.New(), sustainability.MetricEnergy, 500, 1)

	w := testutil.Do(t, f.r, http.MethodGet, f.path(f.h.ISP.ID, "/dashboard"), f.token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp sustainability.DashboardResponse
	testutil.Decode(t, w, &resp)

	assert.Equal(t, 3000.0, resp.TotalEnergyKWh)
	assert.Equal(t, 1500.0, resp.CarbonFootprintKg)
	assert.Equal(t, 50.0, resp.RenewablePercentage)
	assert.Equal(t, 97.0, resp.EnergyEfficiencyScore)
	assert.Equal(t, 180.0, resp.CostSavings)
	assert.Len(t, resp.Initiatives, 3)
	assert.Equal(t, "2030", resp.Goals.CarbonNeutralBy)
	assert.Equal(t, 50.0, resp.Goals.CurrentProgress["renewable_energy"])
	assert.Equal(t, 68.18, resp.Impact.TreesEquivalent)
	assert.Equal(t, 0.33, resp.Impact.CarsOffRoad)
	assert.Equal(t, 1500.0, resp.Impact.RenewableEnergyUsage)
}

func TestDashboard_Empty(t *testing.T) {
	f := setup(t)
	w := testutil.Do(t, f.r, http.MethodGet, f.path(f.h.ISP.ID, "/dashboard"), f.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp sustainability.DashboardResponse
	testutil.Decode(t, w, &resp)
	assert.Zero(t, resp.TotalEnergyKWh)
	assert.Zero(t, resp.RenewablePercentage)
	assert.Equal(t, 100.0, resp.EnergyEfficiencyScore)
	assert.Zero(t, resp.CostSavings)
}

func TestAccess(t *testing.T) {
	f := setup(t)
	other := f.env.ISP(t, f.h.Founder.ID)
	otherToken := f.env.Token(t, other.ID, "isp")

	w := testutil.Do(t, f.r, http.MethodGet, f.path(f.h.ISP.ID, "/dashboard"), otherToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	founderToken := f.env.Token(t, f.h.Founder.ID, "founder")
	w = testutil.Do(t, f.r, http.MethodGet, f.path(f.h.ISP.ID, "/report"), founderToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = testutil.Do(t, f.r, http.MethodGet, f.path(f.h.ISP.ID, "/dashboard"), "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = testutil.Do(t, f.r, http.MethodGet, "/api/v1/sustainability/not-a-uuid/dashboard", f.token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateMetric(t *testing.T) {
	f := setup(t)
	device := uuid.New()
	body := gin.H{
		"metric_type":  "energy_consumption",
		"value":        420.5,
		"unit":         "kWh",
		"period_start": "2024-03-01",
		"period_end":   "2024-03-31",
		"device_id":    device.String(),
		"location":     "<b>Core</b> rack",
		"metadata":     gin.H{"source": "pdu"},
	}
	w := testutil.Do(t, f.r, http.MethodPost, f.path(f.h.ISP.ID, "/metrics"), f.token, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp sustainability.MetricResponse
	testutil.Decode(t, w, &resp)
	assert.Equal(t, "isp", resp.TenantType)
	assert.Equal(t, 420.5, resp.Value)
	assert.Equal(t, "2024-03-01", resp.PeriodStart)
	assert.Equal(t, "2024-03-31", resp.PeriodEnd)
	require.NotNil(t, resp.DeviceID)
	assert.Equal(t, device.String(), *resp.DeviceID)
	assert.Equal(t, "Core rack", resp.Location)
	assert.Equal(t, "pdu", resp.Metadata["source"])

	userToken := f.env.Token(t, f.h.Subscriber.ID, "user")
	w = testutil.Do(t, f.r, http.MethodPost, f.path(f.h.Subscriber.ID, "/metrics"), userToken, gin.H{
		"metric_type": "energy_consumption", "value": 3, "unit": "kWh",
		"period_start": "2024-03-01", "period_end": "2024-03-01",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	testutil.Decode(t, w, &resp)
	assert.Equal(t, "user", resp.TenantType)
}

func TestCreateMetric_FounderOnBehalf(t *testing.T) {
	f := setup(t)
	founderToken := f.env.Token(t, f.h.Founder.ID, "founder")
	body := gin.H{
		"metric_type": "renewable_usage", "value": 35, "unit": "percent",
		"period_start": "2024-03-01", "period_end": "2024-03-02",
	}

	w := testutil.Do(t, f.r, http.MethodPost, f.path(f.h.Branch.ID, "/metrics"), founderToken, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp sustainability.MetricResponse
	testutil.Decode(t, w, &resp)
	assert.Equal(t, "branch", resp.TenantType)
	assert.Equal(t, f.h.Branch.ID.String(), resp.TenantID)

	w = testutil.Do(t, f.r, http.MethodPost, f.path(uuid.New(), "/metrics"), founderToken, body)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateMetric_Invalid(t *testing.T) {
	f := setup(t)
	cases := map[string]gin.H{
		"end before start": {"metric_type": "energy_consumption", "value": 1, "unit": "kWh", "period_start": "2024-03-02", "period_end": "2024-03-01"},
		"bad date":         {"metric_type": "energy_consumption", "value": 1, "unit": "kWh", "period_start": "03/01/2024", "period_end": "2024-03-01"},
		"missing unit":     {"metric_type": "energy_consumption", "value": 1, "period_start": "2024-03-01", "period_end": "2024-03-01"},
		"negative value":   {"metric_type": "energy_consumption", "value": -1, "unit": "kWh", "period_start": "2024-03-01", "period_end": "2024-03-01"},
		"bad device":       {"metric_type": "energy_consumption", "value": 1, "unit": "kWh", "period_start": "2024-03-01", "period_end": "2024-03-01", "device_id": "pdu-1"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := testutil.Do(t, f.r, http.MethodPost, f.path(f.h.ISP.ID, "/metrics"), f.token, body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
	var n int64
	require.NoError(t, f.env.DB.Model(&models.SustainabilityMetric{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestListMetrics(t *testing.T) {
	f := setup(t)
	f.metric(t, f.h.ISP.ID, sustainability.MetricEnergy, 10, 2)
	f.metric(t, f.h.ISP.ID, sustainability.MetricRenewable, 20, 5)
	f.metric(t, f.h.ISP.ID, sustainability.MetricEnergy, 30, 45)
	f.metric(t, uuid.New(), sustainability.MetricEnergy, 40, 1)

	list := func(query string) []sustainability.MetricResponse {
		w := testutil.Do(t, f.r, http.MethodGet, f.path(f.h.ISP.ID, "/metrics"+query), f.token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp []sustainability.MetricResponse
		testutil.Decode(t, w, &resp)
		return resp
	}

	assert.Len(t, list(""), 2)
	assert.Len(t, list("?days_back=60"), 3)
	energy := list("?days_back=60&metric_type=energy_consumption")
	require.Len(t, energy, 2)
	for _, m := range energy {
		assert.Equal(t, sustainability.MetricEnergy, m.MetricType)
	}

	w := testutil.Do(t, f.r, http.MethodGet, f.path(f.h.ISP.ID, "/metrics?days_back=0"), f.token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPurchaseOffset(t *testing.T) {
	f := setup(t)
	body := gin.H{
		"amount_co2":      1000,
		"price_per_kg":    0.015,
		"provider":        "Verra",
		"project_details": gin.H{"project": "Mangrove restoration"},
	}
	w := testutil.Do(t, f.r, http.MethodPost, f.path(f.h.ISP.ID, "/carbon-offset"), f.token, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp sustainability.OffsetResponse
	testutil.Decode(t, w, &resp)
	assert.True(t, resp.TotalCost.Equal(decimal.RequireFromString("15")), resp.TotalCost.String())
	assert.Equal(t, "completed", resp.Status)
	assert.True(t, strings.HasPrefix(resp.CertificateID, "CO2-"+f.h.ISP.ID.String()[:8]+"-"), resp.CertificateID)
	assert.Equal(t, "Mangrove restoration", resp.ProjectDetails["project"])
	assert.WithinDuration(t, time.Now(), resp.PurchaseDate, 5*time.Second)

	body["certificate_id"] = "VCS-981"
	body["amount_co2"] = 12.5
	body["price_per_kg"] = "0.333"
	w = testutil.Do(t, f.r, http.MethodPost, f.path(f.h.ISP.ID, "/carbon-offset"), f.token, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	testutil.Decode(t, w, &resp)
	assert.Equal(t, "VCS-981", resp.CertificateID)
	assert.True(t, resp.TotalCost.Equal(decimal.RequireFromString("4.16")), resp.TotalCost.String())

	var stored []models.CarbonOffset
	require.NoError(t, f.env.DB.Where("tenant_id = ?", f.h.ISP.ID).Find(&stored).Error)
	assert.Len(t, stored, 2)
}

func TestPurchaseOffset_Invalid(t *testing.T) {
	f := setup(t)
	cases := map[string]gin.H{
		"zero price":     {"amount_co2": 10, "price_per_kg": 0, "provider": "Verra"},
		"negative price": {"amount_co2": 10, "price_per_kg": -1, "provider": "Verra"},
		"no amount":      {"price_per_kg": 0.01, "provider": "Verra"},
		"no provider":    {"amount_co2": 10, "price_per_kg": 0.01},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := testutil.Do(t, f.r, http.MethodPost, f.path(f.h.ISP.ID, "/carbon-offset"), f.token, body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestReport(t *testing.T) {
	f := setup(t)
	f.metric(t, f.h.ISP.ID, "energy_consumption", 100, 3)
	f.metric(t, f.h.ISP.ID, "energy_peak", 50, 20)
	f.metric(t, f.h.ISP.ID, "carbon_emissions", 30, 3)
	f.metric(t, f.h.ISP.ID, sustainability.MetricRenewable, 40, 3)

	report := func(period string) sustainability.ReportResponse {
		w := testutil.Do(t, f.r, http.MethodGet, f.path(f.h.ISP.ID, "/report?period="+period), f.token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp sustainability.ReportResponse
		testutil.Decode(t, w, &resp)
		return resp
	}

	weekly := report("weekly")
	start := f.today.AddDate(0, 0, -7).Format("2006-01-02")
	assert.Equal(t, "Weekly Report - "+start+" to "+f.today.Format("2006-01-02"), weekly.ReportPeriod)
	assert.Equal(t, 100.0, weekly.TotalEnergyKWh)
	assert.Equal(t, 30.0, weekly.TotalCarbonKg)
	assert.Equal(t, 3, weekly.MetricsRecorded)
	assert.Equal(t, 12.0, weekly.CostAnalysis.TotalEnergyCost)
	assert.Equal(t, 468.0, weekly.CostAnalysis.SavingsFromInitiatives)
	assert.Equal(t, -456.0, weekly.CostAnalysis.NetCost)
	assert.Equal(t, 0.12, weekly.CostAnalysis.CostPerKWh)
	assert.Len(t, weekly.EfficiencyImprovement, 2)
	assert.Len(t, weekly.Recommendations, 5)
	assert.Equal(t, "in_progress", weekly.ComplianceStatus["science_based_targets"])

	monthly := report("monthly")
	assert.Equal(t, 150.0, monthly.TotalEnergyKWh)
	assert.True(t, strings.HasPrefix(monthly.ReportPeriod, "Monthly Report - "))

	w := testutil.Do(t, f.r, http.MethodGet, f.path(f.h.ISP.ID, "/report"), f.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var def sustainability.ReportResponse
	testutil.Decode(t, w, &def)
	assert.Equal(t, 150.0, def.TotalEnergyKWh)

	w = testutil.Do(t, f.r, http.MethodGet, f.path(f.h.ISP.ID, "/report?period=daily"), f.token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

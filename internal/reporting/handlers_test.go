package reporting_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/astranetix/bms/internal/messaging"
	"github.com/astranetix/bms/internal/reporting"
	"github.com/astranetix/bms/internal/reporting/store"
	"github.com/astranetix/bms/internal/tenancy"
	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/testutil"
)

type fixture struct {
	env   *testutil.Env
	r     *gin.Engine
	h     *testutil.Hierarchy
	token string
	base  string
}

func newFixture(t *testing.T) *fixture {
	env := testutil.NewEnv(t)
	artifacts, err := store.Open("", true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = artifacts.Close() })

	r, api := env.Router()
	reporting.Routes(api, reporting.NewService(env.DB, env.Logger, artifacts, env.Publisher), env.Logger, env.Authn())
	h := env.Hierarchy(t)
	return &fixture{
		env:   env,
		r:     r,
		h:     h,
		token: env.Token(t, h.ISP.ID, "isp"),
		base:  "/api/v1/reporting/" + h.ISP.ID.String(),
	}
}

func (f *fixture) template(t *testing.T, reportType string) reporting.TemplateResponse {
	t.Helper()
	w := testutil.Do(t, f.r, http.MethodPost, f.base+"/templates", f.token, gin.H{
		"name":        "Monthly " + reportType,
		"report_type": reportType,
		"config":      gin.H{"fields": []string{"all"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var tpl reporting.TemplateResponse
	testutil.Decode(t, w, &tpl)
	return tpl
}

func (f *fixture) generate(t *testing.T, templateID, format string, params gin.H) reporting.GenerationResponse {
	t.Helper()
	w := testutil.Do(t, f.r, http.MethodPost, f.base+"/generate", f.token, gin.H{
		"template_id": templateID,
		"file_format": format,
		"parameters":  params,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var gen reporting.GenerationResponse
	testutil.Decode(t, w, &gen)
	return gen
}

func (f *fixture) download(t *testing.T, gen reporting.GenerationResponse) []byte {
	t.Helper()
	w := testutil.Do(t, f.r, http.MethodGet, f.base+"/generations/"+gen.ID+"/download", f.token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return w.Body.Bytes()
}

func TestTemplates(t *testing.T) {
	f := newFixture(t)

	w := testutil.Do(t, f.r, http.MethodPost, f.base+"/templates", f.token, gin.H{
		"name":        "Weekly usage",
		"report_type": "usage",
		"config":      gin.H{},
		"schedule":    gin.H{"cron": "0 6 * * 1", "format": "json"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var tpl reporting.TemplateResponse
	testutil.Decode(t, w, &tpl)
	assert.True(t, tpl.IsActive)
	assert.Equal(t, "0 6 * * 1", tpl.Schedule["cron"])

	f.template(t, "billing")
	w = testutil.Do(t, f.r, http.MethodGet, f.base+"/templates", f.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []reporting.TemplateResponse
	testutil.Decode(t, w, &list)
	assert.Len(t, list, 2)

	for name, body := range map[string]gin.H{
		"report type":     {"name": "x", "report_type": "sales", "config": gin.H{}},
		"cron":            {"name": "x", "report_type": "usage", "config": gin.H{}, "schedule": gin.H{"cron": "every monday"}},
		"missing cron":    {"name": "x", "report_type": "usage", "config": gin.H{}, "schedule": gin.H{"format": "csv"}},
		"schedule format": {"name": "x", "report_type": "usage", "config": gin.H{}, "schedule": gin.H{"cron": "@daily", "format": "pdf"}},
		"no config":       {"name": "x", "report_type": "usage"},
	} {
		t.Run(name, func(t *testing.T) {
			w := testutil.Do(t, f.r, http.MethodPost, f.base+"/templates", f.token, body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestAccess(t *testing.T) {
	f := newFixture(t)
	rival := f.env.ISP(t, f.h.Founder.ID)
	assert.Equal(t, http.StatusForbidden, testutil.Do(t, f.r, http.MethodGet, f.base+"/templates", f.env.Token(t, rival.ID, "isp"), nil).Code)
	assert.Equal(t, http.StatusForbidden, testutil.Do(t, f.r, http.MethodGet, f.base+"/templates", f.env.Token(t, f.h.Founder.ID, "founder"), nil).Code)
	assert.Equal(t, http.StatusForbidden, testutil.Do(t, f.r, http.MethodGet, f.base+"/templates", f.env.Token(t, f.h.Subscriber.ID, "user"), nil).Code)
	assert.Equal(t, http.StatusUnauthorized, testutil.Do(t, f.r, http.MethodGet, f.base+"/templates", "", nil).Code)
}

func TestGenerate_UsageCSV(t *testing.T) {
	f := newFixture(t)
	today := tenancy.DayStart(time.Now())
	other := f.env.Subscriber(t, f.h.Branch.ID, nil)
	f.env.Usage(t, f.h.Subscriber.ID, today, models.BytesPerGB, 2*models.BytesPerGB, 80, 20)
	f.env.Usage(t, other.ID, today.AddDate(0, 0, -1), 0, models.BytesPerGB, 40, 21)
	f.env.Usage(t, other.ID, today.AddDate(0, 0, -60), 0, 50*models.BytesPerGB, 900, 21)

	tpl := f.template(t, "usage")
	gen := f.generate(t, tpl.ID, "csv", nil)
	assert.Equal(t, models.ReportCompleted, gen.Status)
	assert.Equal(t, "/reports/"+f.h.ISP.ID.String()+"/"+gen.ID+".csv", gen.FilePath)
	assert.NotNil(t, gen.CompletedAt)
	assert.Equal(t, f.h.ISP.ID.String(), gen.GeneratedBy)

	w := testutil.Do(t, f.r, http.MethodGet, f.base+"/generations/"+gen.ID+"/download", f.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), gen.ID+".csv")

	reader := csv.NewReader(bytes.NewReader(w.Body.Bytes()))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	require.NoError(t, err)
	values := map[string]string{}
	for _, rec := range records {
		values[rec[0]] = rec[1]
	}
	assert.Equal(t, "usage", values["report_type"])
	assert.Equal(t, "4", values["total_usage_gb"])
	assert.Equal(t, "80", values["peak_usage_mbps"])
	assert.Equal(t, "2", values["average_usage_per_user"])
	assert.Equal(t, "2", values["active_users"])
	assert.Equal(t, "30", values["period_days"])
	assert.Equal(t, "usage_gb", values["user_id"])
	assert.Equal(t, "3", values[f.h.Subscriber.ID.String()])
	assert.Equal(t, "1", values[other.ID.String()])

	msgs := f.env.Producer.Messages(messaging.TopicReportGenerated)
	require.Len(t, msgs, 1)
	assert.Equal(t, f.h.ISP.ID.String(), msgs[0].Key)

	w = testutil.Do(t, f.r, http.MethodGet, f.base+"/generations", f.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var gens []reporting.GenerationResponse
	testutil.Decode(t, w, &gens)
	require.Len(t, gens, 1)
	assert.Equal(t, gen.ID, gens[0].ID)
}

func TestGenerate_BillingJSON(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	other := f.env.Subscriber(t, f.h.Branch.ID, nil)
	f.env.Payment(t, f.h.Subscriber.ID, "49.99", models.PaymentCompleted, now.Add(-time.Hour))
	f.env.Payment(t, other.ID, "20.00", models.PaymentCompleted, now.Add(-2*time.Hour))
	f.env.Payment(t, other.ID, "10.00", models.PaymentPending, now.Add(-time.Hour))
	f.env.Payment(t, other.ID, "99.00", models.PaymentCompleted, now.AddDate(0, 0, -45))

	gen := f.generate(t, f.template(t, "billing").ID, "json", gin.H{"days": 30})
	var report reporting.Report
	require.NoError(t, json.Unmarshal(f.download(t, gen), &report))

	assert.Equal(t, "billing", report.ReportType)
	assert.Equal(t, 69.99, report.Summary["total_revenue"])
	assert.Equal(t, 10.0, report.Summary["pending_payments"])
	assert.Equal(t, 87.5, report.Summary["collection_rate"])
	assert.Equal(t, []string{"plan", "revenue"}, report.Columns)
	require.Len(t, report.Rows, 2)
	assert.Equal(t, f.h.Plan.Name, report.Rows[0]["plan"])
	assert.Equal(t, 49.99, report.Rows[0]["revenue"])
	assert.Equal(t, "No plan", report.Rows[1]["plan"])
	assert.Equal(t, 20.0, report.Rows[1]["revenue"])
}

func TestGenerate_NetworkYAML(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	recent := now.Add(-time.Minute)
	stale := now.Add(-time.Hour)
	for _, d := range []*models.NetworkDevice{
		{BranchID: f.h.Branch.ID, Name: "core", DeviceType: "router", IPAddress: "10.0.0.1", IsActive: true, LastSeen: &recent, Settings: models.JSONMap{}},
		{BranchID: f.h.Branch.ID, Name: "edge", DeviceType: "switch", IPAddress: "10.0.0.2", IsActive: true, LastSeen: &stale, Settings: models.JSONMap{}},
		{BranchID: f.h.Branch.ID, Name: "spare", DeviceType: "switch", IPAddress: "10.0.0.3", IsActive: false, Settings: models.JSONMap{}},
	} {
		require.NoError(t, f.env.DB.Create(d).Error)
	}
	for _, a := range []*models.NetworkAlert{
		{TenantID: f.h.ISP.ID, TenantType: "isp", AlertType: "outage", Severity: models.SeverityCritical, Title: "Core down", Status: models.StatusOpen, Metadata: models.JSONMap{}},
		{TenantID: f.h.ISP.ID, TenantType: "isp", AlertType: "latency", Severity: models.SeverityLow, Title: "Slow", Status: models.StatusResolved, Metadata: models.JSONMap{}},
	} {
		require.NoError(t, f.env.DB.Create(a).Error)
	}

	gen := f.generate(t, f.template(t, "network").ID, "yaml", nil)
	w := testutil.Do(t, f.r, http.MethodGet, f.base+"/generations/"+gen.ID+"/download", f.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))

	var doc struct {
		ReportType string                   `yaml:"report_type"`
		Summary    map[string]interface{}   `yaml:"summary"`
		Rows       []map[string]interface{} `yaml:"rows"`
	}
	require.NoError(t, yaml.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "network", doc.ReportType)
	assert.Equal(t, 2, doc.Summary["total_alerts"])
	assert.Equal(t, 1, doc.Summary["open_alerts"])
	assert.Equal(t, 1, doc.Summary["devices_online"])
	assert.Equal(t, 1, doc.Summary["devices_offline"])
	assert.Equal(t, 1, doc.Summary["devices_maintenance"])
	assert.Equal(t, 50, doc.Summary["device_availability"])
	assert.Equal(t, 86, doc.Summary["network_health"])
	require.Len(t, doc.Rows, 5)
	assert.Equal(t, "critical", doc.Rows[0]["severity"])
	assert.Equal(t, 1, doc.Rows[0]["alerts"])
}

func TestGenerate_ComplianceCoverage(t *testing.T) {
	f := newFixture(t)
	tenant := f.h.ISP.ID
	now := time.Now().UTC()
	for _, at := range []time.Time{now.Add(-time.Hour), now.Add(-2 * time.Hour), now.AddDate(0, 0, -3)} {
		log := &models.AuditLog{ID: uuid.New(), CreatedAt: at, TenantID: &tenant, TenantType: "isp", Action: "update", Resource: "plan"}
		require.NoError(t, f.env.DB.Create(log).Error)
	}
	old := &models.AuditLog{ID: uuid.New(), CreatedAt: now.AddDate(0, 0, -20), TenantID: &tenant, Action: "delete", Resource: "user"}
	require.NoError(t, f.env.DB.Create(old).Error)

	gen := f.generate(t, f.template(t, "compliance").ID, "json", gin.H{"days": 10})
	var report reporting.Report
	require.NoError(t, json.Unmarshal(f.download(t, gen), &report))
	assert.Equal(t, 3.0, report.Summary["audit_events"])
	assert.Equal(t, 1.0, report.Summary["distinct_actions"])
	assert.Equal(t, 10.0, report.Summary["period_days"])
	covered := report.Summary["days_covered"].(float64)
	assert.Contains(t, []float64{2, 3}, covered)
	assert.Equal(t, covered*10, report.Summary["audit_trail_completeness"])
}

func TestGenerate_Errors(t *testing.T) {
	f := newFixture(t)
	tpl := f.template(t, "usage")

	w := testutil.Do(t, f.r, http.MethodPost, f.base+"/generate", f.token, gin.H{"template_id": tpl.ID, "file_format": "pdf"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.Do(t, f.r, http.MethodPost, f.base+"/generate", f.token, gin.H{"template_id": tpl.ID, "file_format": "csv", "parameters": gin.H{"days": 0}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.Do(t, f.r, http.MethodPost, f.base+"/generate", f.token, gin.H{"template_id": uuid.NewString(), "file_format": "csv"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Report template not found")

	rival := f.env.ISP(t, f.h.Founder.ID)
	theirs := &models.ReportTemplate{ISPID: rival.ID, Name: "Theirs", ReportType: "usage", Config: models.JSONMap{}, Schedule: models.JSONMap{}, IsActive: true}
	require.NoError(t, f.env.DB.Create(theirs).Error)
	w = testutil.Do(t, f.r, http.MethodPost, f.base+"/generate", f.token, gin.H{"template_id": theirs.ID.String(), "file_format": "csv"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	var count int64
	require.NoError(t, f.env.DB.Model(&models.ReportGeneration{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDownload_Errors(t *testing.T) {
	f := newFixture(t)
	tpl := f.template(t, "usage")

	w := testutil.Do(t, f.r, http.MethodGet, f.base+"/generations/"+uuid.NewString()+"/download", f.token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	failed := &models.ReportGeneration{
		TemplateID:   uuid.MustParse(tpl.ID),
		GeneratedBy:  f.h.ISP.ID,
		FileFormat:   "csv",
		Status:       models.ReportFailed,
		Parameters:   models.JSONMap{},
		ErrorMessage: "boom",
	}
	require.NoError(t, f.env.DB.Create(failed).Error)
	w = testutil.Do(t, f.r, http.MethodGet, f.base+"/generations/"+failed.ID.String()+"/download", f.token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	lost := &models.ReportGeneration{
		TemplateID:  uuid.MustParse(tpl.ID),
		GeneratedBy: f.h.ISP.ID,
		FilePath:    "/reports/missing.csv",
		FileFormat:  "csv",
		Status:      models.ReportCompleted,
		Parameters:  models.JSONMap{},
	}
	require.NoError(t, f.env.DB.Create(lost).Error)
	w = testutil.Do(t, f.r, http.MethodGet, f.base+"/generations/"+lost.ID.String()+"/download", f.token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = testutil.Do(t, f.r, http.MethodGet, f.base+"/generations/not-a-uuid/download", f.token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCustomReport(t *testing.T) {
	f := newFixture(t)
	fiber := f.env.Subscriber(t, f.h.Branch.ID, nil)
	require.NoError(t, f.env.DB.Model(fiber).Update("connection_type", "fiber").Error)
	inactive := f.env.Subscriber(t, f.h.Branch.ID, nil)
	require.NoError(t, f.env.DB.Model(inactive).Update("is_active", false).Error)
	// another tenant's subscriber must not show up
	f.env.Hierarchy(t)

	w := testutil.Do(t, f.r, http.MethodPost, f.base+"/custom-report", f.token, gin.H{
		"name": "Active subscribers",
		"fields": []gin.H{
			{"name": "username", "label": "Username", "type": "string", "source_table": "users"},
			{"name": "connection_type", "label": "Connection", "type": "string", "source_table": "users"},
		},
		"filters": []gin.H{{"field": "is_active", "operator": "equals", "value": true}},
		"sorting": []gin.H{{"field": "username", "direction": "desc"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp reporting.CustomReportResponse
	testutil.Decode(t, w, &resp)
	assert.Equal(t, "Active subscribers", resp.ReportName)
	assert.Equal(t, 2, resp.TotalRecords)
	require.Len(t, resp.Data, 2)
	assert.Contains(t, resp.Data[0], "username")
	assert.Contains(t, resp.Data[0], "connection_type")
	assert.GreaterOrEqual(t, resp.Data[0]["username"], resp.Data[1]["username"])
	assert.Len(t, resp.FiltersApplied, 1)
	assert.Len(t, resp.Fields, 2)

	w = testutil.Do(t, f.r, http.MethodPost, f.base+"/custom-report", f.token, gin.H{
		"name": "By connection",
		"fields": []gin.H{
			{"name": "connection_type", "label": "Connection", "type": "string", "source_table": "users"},
			{"name": "id", "label": "Subscribers", "type": "number", "source_table": "users", "calculation": "count"},
		},
		"filters":  []gin.H{{"field": "email", "operator": "contains", "value": "@example.com"}},
		"grouping": []string{"connection_type"},
		"sorting":  []gin.H{{"field": "connection_type"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	testutil.Decode(t, w, &resp)
	require.Equal(t, 2, resp.TotalRecords)
	assert.Equal(t, "broadband", resp.Data[0]["connection_type"])
	assert.EqualValues(t, 2, resp.Data[0]["id"])
	assert.Equal(t, "fiber", resp.Data[1]["connection_type"])
	assert.EqualValues(t, 1, resp.Data[1]["id"])

	users := gin.H{"name": "username", "label": "Username", "type": "string", "source_table": "users"}
	for name, body := range map[string]gin.H{
		"unknown table":   {"name": "x", "fields": []gin.H{{"name": "id", "type": "string", "source_table": "isps"}}},
		"unknown column":  {"name": "x", "fields": []gin.H{{"name": "password_hash", "type": "string", "source_table": "users"}}},
		"mixed tables":    {"name": "x", "fields": []gin.H{users, {"name": "amount", "type": "number", "source_table": "payments"}}},
		"bad operator":    {"name": "x", "fields": []gin.H{users}, "filters": []gin.H{{"field": "email", "operator": "like", "value": "a"}}},
		"filter column":   {"name": "x", "fields": []gin.H{users}, "filters": []gin.H{{"field": "password_hash", "operator": "equals", "value": "a"}}},
		"contains number": {"name": "x", "fields": []gin.H{users}, "filters": []gin.H{{"field": "email", "operator": "contains", "value": 5}}},
		"ungrouped field": {"name": "x", "fields": []gin.H{users, {"name": "id", "type": "number", "source_table": "users", "calculation": "count"}}},
		"sort unselected": {"name": "x", "fields": []gin.H{users}, "sorting": []gin.H{{"field": "email"}}},
		"sort direction":  {"name": "x", "fields": []gin.H{users}, "sorting": []gin.H{{"field": "username", "direction": "up"}}},
		"date range":      {"name": "x", "fields": []gin.H{users}, "date_range": gin.H{"start": "01/02/2024"}},
		"no fields":       {"name": "x", "fields": []gin.H{}},
	} {
		t.Run(name, func(t *testing.T) {
			w := testutil.Do(t, f.r, http.MethodPost, f.base+"/custom-report", f.token, body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestCustomReport_PaymentsDateRange(t *testing.T) {
	f := newFixture(t)
	f.env.Payment(t, f.h.Subscriber.ID, "10.00", models.PaymentCompleted, time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	f.env.Payment(t, f.h.Subscriber.ID, "15.00", models.PaymentCompleted, time.Date(2024, 3, 31, 23, 0, 0, 0, time.UTC))
	f.env.Payment(t, f.h.Subscriber.ID, "99.00", models.PaymentCompleted, time.Date(2024, 4, 1, 1, 0, 0, 0, time.UTC))

	w := testutil.Do(t, f.r, http.MethodPost, f.base+"/custom-report", f.token, gin.H{
		"name":       "March",
		"fields":     []gin.H{{"name": "amount", "type": "number", "source_table": "payments", "calculation": "sum"}},
		"date_range": gin.H{"start": "2024-03-01", "end": "2024-03-31"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp reporting.CustomReportResponse
	testutil.Decode(t, w, &resp)
	require.Equal(t, 1, resp.TotalRecords)
	assert.EqualValues(t, 25, resp.Data[0]["amount"])
}

func TestCompliance(t *testing.T) {
	f := newFixture(t)
	for reportType, want := range map[string]struct {
		score          float64
		total, passed  int
		findings, recs int
	}{
		"gdpr": {92.5, 25, 23, 2, 3},
		"pci":  {88.0, 20, 18, 1, 2},
		"iso":  {85.0, 15, 13, 0, 1},
	} {
		t.Run(reportType, func(t *testing.T) {
			w := testutil.Do(t, f.r, http.MethodGet, f.base+"/compliance/"+reportType, f.token, nil)
			require.Equal(t, http.StatusOK, w.Code)
			var resp reporting.ComplianceReport
			testutil.Decode(t, w, &resp)
			assert.Equal(t, reportType, resp.ReportType)
			assert.Equal(t, want.score, resp.ComplianceScore)
			assert.Equal(t, want.total, resp.TotalChecks)
			assert.Equal(t, want.passed, resp.PassedChecks)
			assert.Equal(t, want.total-want.passed, resp.FailedChecks)
			assert.Len(t, resp.Findings, want.findings)
			assert.Len(t, resp.Recommendations, want.recs)
		})
	}
}

func TestBIEndpoints(t *testing.T) {
	f := newFixture(t)
	w := testutil.Do(t, f.r, http.MethodGet, f.base+"/bi-endpoints", f.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp []reporting.BIEndpoint
	testutil.Decode(t, w, &resp)
	require.Len(t, resp, 4)
	intervals := map[string]int{}
	for _, e := range resp {
		intervals[e.Name] = e.RefreshInterval
		assert.Contains(t, e.Endpoint, f.h.ISP.ID.String())
	}
	assert.Equal(t, map[string]int{
		"subscriber_analytics": 15,
		"revenue_metrics":      60,
		"network_performance":  5,
		"support_analytics":    30,
	}, intervals)
}

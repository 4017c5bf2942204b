package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/astranetix/bms/common/auth"
	"github.com/astranetix/bms/internal/database"
	"github.com/astranetix/bms/pkg/models"
)

func TestRecordAndForTenant(t *testing.T) {
	db := database.NewTestDB(t)
	svc := NewService(db, zap.NewNop())
	ctx := context.Background()

	tenant := uuid.New()
	other := uuid.New()
	require.NoError(t, svc.Record(ctx, Entry{TenantID: &tenant, TenantType: "isp", Action: ActionCreate, Resource: "branch",
		NewValues: models.JSONMap{"name": "North"}}))
	require.NoError(t, svc.Record(ctx, Entry{TenantID: &tenant, TenantType: "isp", Action: ActionDelete, Resource: "branch"}))
	require.NoError(t, svc.Record(ctx, Entry{TenantID: &other, TenantType: "isp", Action: ActionCreate, Resource: "plan"}))

	logs, err := svc.ForTenant(ctx, tenant, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, logs, 2)
	for _, l := range logs {
		assert.Equal(t, tenant, *l.TenantID)
	}

	logs, err = svc.ForTenant(ctx, tenant, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestFromRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	c.Request.Header.Set("User-Agent", "curl/8")
	c.Request.RemoteAddr = "10.1.2.3:5555"

	isp := uuid.New()
	auth.SetPrincipal(c, &auth.Principal{ID: isp, UserType: auth.UserTypeISP})

	entry := FromRequest(c, ActionUpdate, "branding")
	assert.Equal(t, "10.1.2.3", entry.IPAddress)
	assert.Equal(t, "curl/8", entry.UserAgent)
	require.NotNil(t, entry.TenantID)
	assert.Equal(t, isp, *entry.TenantID)
	assert.Equal(t, "isp", entry.TenantType)
}

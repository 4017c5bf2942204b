package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/astranetix/bms/common/errors"
	"github.com/astranetix/bms/internal/messaging"
	"github.com/astranetix/bms/internal/payment"
	"github.com/astranetix/bms/internal/tenancy"
	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/testutil"
)

const walletAddress = "0x52908400098527886E0F7030069857D2E4169EE7"

func setup(t *testing.T, gateways ...payment.Gateway) (*testutil.Env, *gin.Engine) {
	env := testutil.NewEnv(t)
	svc := payment.NewService(env.DB, env.Logger, env.Publisher, env.Audit, gateways...)
	r, api := env.Router()
	payment.Routes(api, svc, env.Logger, env.Authn())
	return env, r
}

func process(t *testing.T, r http.Handler, token string, body gin.H) (*payment.PaymentResponse, int) {
	t.Helper()
	w := testutil.Do(t, r, http.MethodPost, "/api/v1/payment/process", token, body)
	if w.Code != http.StatusOK {
		return nil, w.Code
	}
	var resp payment.PaymentResponse
	testutil.Decode(t, w, &resp)
	return &resp, w.Code
}

func TestProcess_CardPayment(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)

	resp, code := process(t, r, env.Token(t, h.ISP.ID, "isp"), gin.H{
		"user_id":             h.Subscriber.ID.String(),
		"amount":              49.99,
		"payment_method_type": "card",
		"payment_method_id":   "pm_card_visa",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.PaymentCompleted, resp.Status)
	assert.Equal(t, payment.GatewayStripe, resp.GatewayUsed)
	assert.Equal(t, "USD", resp.Currency)
	assert.Equal(t, 0.05, resp.FraudScore)
	assert.True(t, resp.Amount.Equal(decimal.RequireFromString("49.99")))
	require.NotNil(t, resp.TransactionID)
	assert.True(t, strings.HasPrefix(*resp.TransactionID, "pi_"))

	var stored models.Payment
	require.NoError(t, env.DB.First(&stored, "id = ?", resp.PaymentID).Error)
	assert.Equal(t, *resp.TransactionID, stored.GatewayTransactionID)

	msgs := env.Producer.Messages(messaging.TopicPaymentCompleted)
	require.Len(t, msgs, 1)
	assert.Equal(t, h.ISP.ID.String(), msgs[0].Key)
}

func TestProcess_GatewayDispatch(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	token := env.Token(t, h.Subscriber.ID, "user")

	resp, code := process(t, r, token, gin.H{
		"user_id": h.Subscriber.ID.String(), "amount": "1500",
		"currency": "INR", "payment_method_type": "card", "payment_method_id": "card_1",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, payment.GatewayRazorpay, resp.GatewayUsed)
	assert.Equal(t, 0.45, resp.FraudScore)

	resp, code = process(t, r, token, gin.H{
		"user_id": h.Subscriber.ID.String(), "amount": 10,
		"payment_method_type": "wallet", "payment_method_id": "paypal_1",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, payment.GatewayPayPal, resp.GatewayUsed)

	resp, code = process(t, r, token, gin.H{
		"user_id": h.Subscriber.ID.String(), "amount": 10,
		"payment_method_type": "crypto", "payment_method_id": strings.ToLower(walletAddress),
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, payment.GatewayCrypto, resp.GatewayUsed)
	assert.Equal(t, 0.25, resp.FraudScore)
	require.NotNil(t, resp.TransactionID)
	assert.Len(t, *resp.TransactionID, 66)
	assert.Equal(t, walletAddress, resp.GatewayResponse["wallet_address"])

	_, code = process(t, r, token, gin.H{
		"user_id": h.Subscriber.ID.String(), "amount": 10,
		"payment_method_type": "crypto", "payment_method_id": "0xnothex",
	})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestProcess_BlockedForFraud(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	require.NoError(t, env.DB.Model(h.Subscriber).Update("is_active", false).Error)
	for i := 0; i < 4; i++ {
		env.Payment(t, h.Subscriber.ID, "5.00", models.PaymentCompleted, time.Now().Add(-10*time.Minute))
	}

	resp, code := process(t, r, env.Token(t, h.ISP.ID, "isp"), gin.H{
		"user_id": h.Subscriber.ID.String(), "amount": 5000,
		"payment_method_type": "crypto", "payment_method_id": walletAddress,
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.PaymentBlocked, resp.Status)
	assert.Equal(t, 0.9, resp.FraudScore)
	assert.Nil(t, resp.TransactionID)

	var stored models.Payment
	require.NoError(t, env.DB.First(&stored, "id = ?", resp.PaymentID).Error)
	assert.Equal(t, models.PaymentBlocked, stored.Status)
	assert.Empty(t, stored.GatewayTransactionID)
	assert.Len(t, env.Producer.Messages(messaging.TopicPaymentBlocked), 1)
	assert.Empty(t, env.Producer.Messages(messaging.TopicPaymentCompleted))
}

type decliningGateway struct{}

func (decliningGateway) Name() string { return payment.GatewayStripe }

func (decliningGateway) Charge(context.Context, payment.Charge) (*payment.ChargeResult, error) {
	return nil, apperrors.New("card declined")
}

func (decliningGateway) Refund(context.Context, string, decimal.Decimal) (string, error) {
	return "", apperrors.New("not supported")
}

func TestProcess_GatewayFailure(t *testing.T) {
	env, r := setup(t, decliningGateway{})
	h := env.Hierarchy(t)

	resp, code := process(t, r, env.Token(t, h.ISP.ID, "isp"), gin.H{
		"user_id": h.Subscriber.ID.String(), "amount": 20,
		"payment_method_type": "card", "payment_method_id": "pm_card_declined",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.PaymentFailed, resp.Status)
	assert.Nil(t, resp.TransactionID)
	assert.Empty(t, env.Producer.Messages(messaging.TopicPaymentCompleted))
}

func TestProcess_Authorization(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	other := env.Subscriber(t, h.Branch.ID, h.Plan)
	body := gin.H{"user_id": other.ID.String(), "amount": 10, "payment_method_type": "card", "payment_method_id": "pm"}

	_, code := process(t, r, env.Token(t, h.Subscriber.ID, "user"), body)
	assert.Equal(t, http.StatusForbidden, code)

	rival := env.ISP(t, h.Founder.ID)
	_, code = process(t, r, env.Token(t, rival.ID, "isp"), body)
	assert.Equal(t, http.StatusNotFound, code)

	_, code = process(t, r, env.Token(t, h.Founder.ID, "founder"), body)
	assert.Equal(t, http.StatusForbidden, code)

	body["amount"] = 0
	_, code = process(t, r, env.Token(t, h.ISP.ID, "isp"), body)
	assert.Equal(t, http.StatusBadRequest, code)

	body["amount"] = -5
	_, code = process(t, r, env.Token(t, h.ISP.ID, "isp"), body)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestInvoices(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	ispToken := env.Token(t, h.ISP.ID, "isp")
	env.Usage(t, h.Subscriber.ID, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), 0, 5*models.BytesPerGB, 10, 20)
	env.Usage(t, h.Subscriber.ID, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), 0, 7*models.BytesPerGB, 10, 20)

	w := testutil.Do(t, r, http.MethodPost, "/api/v1/payment/invoices", ispToken, gin.H{
		"user_id":              h.Subscriber.ID.String(),
		"billing_period_start": "2024-01-01",
		"billing_period_end":   "2024-01-31",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var inv payment.InvoiceResponse
	testutil.Decode(t, w, &inv)
	assert.True(t, inv.AmountDue.Equal(decimal.RequireFromString("49.99")))
	assert.Equal(t, "2024-02-15", inv.DueDate)
	assert.Equal(t, "USD", inv.Currency)
	assert.Equal(t, 5.0, inv.InvoiceData["usage_gb"])
	items, ok := inv.InvoiceData["line_items"].([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 1)
	assert.Contains(t, inv.DownloadURL, inv.InvoiceID)

	w = testutil.Do(t, r, http.MethodGet, "/api/v1/payment/invoices/"+inv.InvoiceID, env.Token(t, h.Subscriber.ID, "user"), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	rival := env.ISP(t, h.Founder.ID)
	w = testutil.Do(t, r, http.MethodGet, "/api/v1/payment/invoices/"+inv.InvoiceID, env.Token(t, rival.ID, "isp"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	no := false
	w = testutil.Do(t, r, http.MethodPost, "/api/v1/payment/invoices", ispToken, gin.H{
		"user_id":               h.Subscriber.ID.String(),
		"billing_period_start":  "2024-02-01",
		"billing_period_end":    "2024-02-29",
		"include_usage_details": no,
		"currency":              "EUR",
	})
	require.Equal(t, http.StatusOK, w.Code)
	inv = payment.InvoiceResponse{}
	testutil.Decode(t, w, &inv)
	assert.NotContains(t, inv.InvoiceData, "usage_gb")
	assert.Equal(t, "EUR", inv.Currency)

	w = testutil.Do(t, r, http.MethodPost, "/api/v1/payment/invoices", ispToken, gin.H{
		"user_id":              h.Subscriber.ID.String(),
		"billing_period_start": "2024-02-01",
		"billing_period_end":   "2024-01-01",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	planless := env.Subscriber(t, h.Branch.ID, nil)
	w = testutil.Do(t, r, http.MethodPost, "/api/v1/payment/invoices", ispToken, gin.H{
		"user_id":              planless.ID.String(),
		"billing_period_start": "2024-01-01",
		"billing_period_end":   "2024-01-31",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefunds(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	token := env.Token(t, h.ISP.ID, "isp")

	paid, code := process(t, r, token, gin.H{
		"user_id": h.Subscriber.ID.String(), "amount": "100.00",
		"payment_method_type": "card", "payment_method_id": "pm_card_visa",
	})
	require.Equal(t, http.StatusOK, code)

	refund := func(body gin.H) (*payment.RefundResponse, int) {
		w := testutil.Do(t, r, http.MethodPost, "/api/v1/payment/refunds", token, body)
		if w.Code != http.StatusOK {
			return nil, w.Code
		}
		var resp payment.RefundResponse
		testutil.Decode(t, w, &resp)
		return &resp, w.Code
	}

	partial, code := refund(gin.H{"payment_id": paid.PaymentID, "amount": 40})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 40.0, partial.Amount)
	assert.True(t, strings.HasPrefix(partial.GatewayRefundID, "re_"))

	var stored models.Payment
	require.NoError(t, env.DB.First(&stored, "id = ?", paid.PaymentID).Error)
	assert.Equal(t, models.PaymentCompleted, stored.Status)

	_, code = refund(gin.H{"payment_id": paid.PaymentID, "amount": 70})
	assert.Equal(t, http.StatusBadRequest, code)

	rest, code := refund(gin.H{"payment_id": paid.PaymentID})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 60.0, rest.Amount)
	require.NoError(t, env.DB.First(&stored, "id = ?", paid.PaymentID).Error)
	assert.Equal(t, models.PaymentRefunded, stored.Status)

	_, code = refund(gin.H{"payment_id": paid.PaymentID, "amount": 1})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Len(t, env.Producer.Messages(messaging.TopicPaymentRefunded), 2)

	pending := env.Payment(t, h.Subscriber.ID, "10.00", models.PaymentPending, time.Now())
	_, code = refund(gin.H{"payment_id": pending.ID.String()})
	assert.Equal(t, http.StatusBadRequest, code)

	rival := env.ISP(t, h.Founder.ID)
	w := testutil.Do(t, r, http.MethodPost, "/api/v1/payment/refunds", env.Token(t, rival.ID, "isp"), gin.H{"payment_id": paid.PaymentID})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = testutil.Do(t, r, http.MethodPost, "/api/v1/payment/refunds", env.Token(t, h.Subscriber.ID, "user"), gin.H{"payment_id": paid.PaymentID})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRefunds_ConcurrentFullRefunds(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	token := env.Token(t, h.ISP.ID, "isp")

	paid, code := process(t, r, token, gin.H{
		"user_id": h.Subscriber.ID.String(), "amount": "100.00",
		"payment_method_type": "card", "payment_method_id": "pm_card_visa",
	})
	require.Equal(t, http.StatusOK, code)

	codes := make([]int, 2)
	var wg sync.WaitGroup
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := testutil.Do(t, r, http.MethodPost, "/api/v1/payment/refunds", token, gin.H{"payment_id": paid.PaymentID})
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(t, []int{http.StatusOK, http.StatusBadRequest}, codes)
	var refunds []models.Refund
	require.NoError(t, env.DB.Where("payment_id = ?", paid.PaymentID).Find(&refunds).Error)
	require.Len(t, refunds, 1)
	assert.True(t, refunds[0].Amount.Equal(decimal.NewFromInt(100)))
	var stored models.Payment
	require.NoError(t, env.DB.First(&stored, "id = ?", paid.PaymentID).Error)
	assert.Equal(t, models.PaymentRefunded, stored.Status)
}

func TestAnalytics(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	now := time.Now().UTC()
	env.Payment(t, h.Subscriber.ID, "100.00", models.PaymentCompleted, now)
	env.Payment(t, h.Subscriber.ID, "50.00", models.PaymentCompleted, tenancy.MonthStart(now).AddDate(0, 0, -1))
	env.Payment(t, h.Subscriber.ID, "20.00", models.PaymentFailed, now)
	env.Payment(t, h.Subscriber.ID, "50.00", models.PaymentPending, now)
	env.Payment(t, h.Subscriber.ID, "999.00", models.PaymentCompleted, now.AddDate(-2, 0, 0))

	w := testutil.Do(t, r, http.MethodGet, "/api/v1/payment/analytics", env.Token(t, h.ISP.ID, "isp"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp payment.BillingAnalyticsResponse
	testutil.Decode(t, w, &resp)

	assert.Equal(t, 150.0, resp.TotalRevenue)
	assert.Equal(t, 2, resp.SuccessfulPayments)
	assert.Equal(t, 1, resp.FailedPayments)
	assert.Equal(t, 1, resp.PendingPayments)
	assert.Equal(t, 75.0, resp.AveragePaymentAmount)
	assert.Equal(t, 50.0, resp.PaymentSuccessRate)
	assert.Equal(t, 0.25, resp.ChurnRiskScore)
	assert.Equal(t, 75.0, resp.CollectionEfficiency)
	assert.Equal(t, map[string]float64{"stripe": 150}, resp.RevenueByGateway)
	require.Len(t, resp.MonthlyRevenueTrend, 12)
	assert.Equal(t, 100.0, resp.MonthlyRevenueTrend[now.Format("2006-01")])
	assert.NotEmpty(t, resp.Recommendations)

	var founder payment.BillingAnalyticsResponse
	testutil.Decode(t, testutil.Do(t, r, http.MethodGet, "/api/v1/payment/analytics", env.Token(t, h.Founder.ID, "founder"), nil), &founder)
	assert.Equal(t, 150.0, founder.TotalRevenue)

	w = testutil.Do(t, r, http.MethodGet, "/api/v1/payment/analytics", env.Token(t, h.Subscriber.ID, "user"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMethods(t *testing.T) {
	env, r := setup(t)
	h := env.Hierarchy(t)
	w := testutil.Do(t, r, http.MethodGet, "/api/v1/payment/methods", env.Token(t, h.Subscriber.ID, "user"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var methods []map[string]json.RawMessage
	testutil.Decode(t, w, &methods)
	assert.Len(t, methods, 5)
	ids := make([]string, 0, len(methods))
	for _, m := range methods {
		var id string
		require.NoError(t, json.Unmarshal(m["id"], &id))
		ids = append(ids, id)
	}
	assert.Contains(t, ids, "razorpay")
	assert.Contains(t, ids, "crypto")
}

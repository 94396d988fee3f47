package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/globalnexus/streamvault/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePesapal struct {
	tokenRequests int32
	ipnRequests   int32
	tokenTTL      time.Duration
	orderStatus   string
	statusCode    int

	srv *httptest.Server
}

func newFakePesapal(t *testing.T) *fakePesapal {
	t.Helper()
	f := &fakePesapal{tokenTTL: 5 * time.Minute, orderStatus: "200", statusCode: 1}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/Auth/RequestToken", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.tokenRequests, 1)
		var creds map[string]string
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds["consumer_key"] != "test-key" {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "500",
				"error":  map[string]string{"code": "invalid_consumer_key_or_secret", "message": "bad credentials"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"token":      fmt.Sprintf("tok-%d", atomic.LoadInt32(&f.tokenRequests)),
			"expiryDate": time.Now().Add(f.tokenTTL).Format(time.RFC3339),
			"status":     "200",
		})
	})
	mux.HandleFunc("/api/URLSetup/RegisterIPN", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.ipnRequests, 1)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"ipn_id": "ipn-abc",
			"status": "200",
		})
	})
	mux.HandleFunc("/api/Transactions/SubmitOrderRequest", func(w http.ResponseWriter, r *http.Request) {
		if f.orderStatus != "200" {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"status": f.orderStatus,
				"error":  map[string]string{"code": "order_rejected", "message": "duplicate order id"},
			})
			return
		}
		var order pesapalOrderRequest
		_ = json.NewDecoder(r.Body).Decode(&order)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"order_tracking_id":  "track-001",
			"merchant_reference": order.ID,
			"redirect_url":       "https://pay.pesapal.test/iframe/track-001",
			"status":             "200",
		})
	})
	mux.HandleFunc("/api/Transactions/GetTransactionStatus", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"payment_method":    "MPESA",
			"amount":            10000,
			"confirmation_code": "CONF-9",
			"status_code":       f.statusCode,
			"status":            "200",
		})
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakePesapal) client() *PesapalClient {
	return &PesapalClient{
		ConsumerKey:    "test-key",
		ConsumerSecret: "test-secret",
		BaseURL:        f.srv.URL,
		CallbackURL:    "http://localhost:4000/api/pesapal/callback",
		IPNURL:         "http://localhost:4000/api/pesapal/ipn",
		HTTPClient:     f.srv.Client(),
		breaker:        newGatewayBreaker("pesapal-test"),
	}
}

func pesapalIntent() *models.PaymentIntent {
	return &models.PaymentIntent{
		IntentID:          "intent-1",
		MerchantReference: "SUB-a1b2c3d4-1week-1700000000000",
		PlanID:            "1week",
		Provider:          models.ProviderPesapal,
		AmountMinor:       10000,
		Currency:          "UGX",
	}
}

func TestPesapalSubmitOrder(t *testing.T) {
	f := newFakePesapal(t)
	c := f.client()

	result, err := c.SubmitOrder(context.Background(), pesapalIntent(), Customer{Email: "viewer@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "track-001", result.ProviderReference)
	assert.Equal(t, "https://pay.pesapal.test/iframe/track-001", result.RedirectURL)
}

func TestPesapalTokenAndIPNAreCached(t *testing.T) {
	f := newFakePesapal(t)
	c := f.client()

	for i := 0; i < 3; i++ {
		_, err := c.SubmitOrder(context.Background(), pesapalIntent(), Customer{})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.tokenRequests))
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.ipnRequests))
}

func TestPesapalTokenRefreshesNearExpiry(t *testing.T) {
	f := newFakePesapal(t)
	// Expiry inside the refresh skew forces a new token per call.
	f.tokenTTL = 10 * time.Second
	c := f.client()

	_, err := c.SubmitOrder(context.Background(), pesapalIntent(), Customer{})
	require.NoError(t, err)
	_, err = c.SubmitOrder(context.Background(), pesapalIntent(), Customer{})
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&f.tokenRequests))
}

func TestPesapalAuthRejection(t *testing.T) {
	f := newFakePesapal(t)
	c := f.client()
	c.ConsumerKey = "wrong-key"

	_, err := c.SubmitOrder(context.Background(), pesapalIntent(), Customer{})
	var rejected *GatewayRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, models.ProviderPesapal, rejected.Provider)
	assert.Equal(t, "invalid_consumer_key_or_secret", rejected.Code)
}

func TestPesapalOrderRejection(t *testing.T) {
	f := newFakePesapal(t)
	f.orderStatus = "500"
	c := f.client()

	_, err := c.SubmitOrder(context.Background(), pesapalIntent(), Customer{})
	var rejected *GatewayRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "duplicate order id", rejected.Message)
}

func TestPesapalQueryStatusMapping(t *testing.T) {
	f := newFakePesapal(t)
	c := f.client()

	cases := []struct {
		code int
		want ProviderStatus
	}{
		{0, StatusPending},
		{1, StatusCompleted},
		{2, StatusFailed},
		{3, StatusReversed},
		{9, StatusUnknown},
	}
	for _, tc := range cases {
		f.statusCode = tc.code
		signal, err := c.QueryStatus(context.Background(), "track-001")
		require.NoError(t, err)
		assert.Equal(t, tc.want, signal.ProviderStatus, "status_code %d", tc.code)
		assert.Equal(t, SourcePoll, signal.ReceivedVia)
	}

	f.statusCode = 1
	signal, err := c.QueryStatus(context.Background(), "track-001")
	require.NoError(t, err)
	assert.Equal(t, "CONF-9", signal.ConfirmationCode)
	assert.Equal(t, "MPESA", signal.PaymentMethod)
	assert.Equal(t, int64(10000), signal.AmountMinor)
}

func TestPesapalBreakerOpensOnRepeatedServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := &PesapalClient{
		ConsumerKey:    "test-key",
		ConsumerSecret: "test-secret",
		BaseURL:        srv.URL,
		HTTPClient:     srv.Client(),
		breaker:        newGatewayBreaker("pesapal-broken"),
	}

	for i := 0; i < 6; i++ {
		_, err := c.QueryStatus(context.Background(), "track-001")
		require.ErrorIs(t, err, ErrGatewayUnavailable)
	}
}

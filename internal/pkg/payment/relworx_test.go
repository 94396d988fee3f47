package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/globalnexus/streamvault/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRelworxClient(srv *httptest.Server) *RelworxClient {
	return &RelworxClient{
		BaseURL:    srv.URL,
		APIKey:     "test-api-key",
		HTTPClient: srv.Client(),
		breaker:    newGatewayBreaker("relworx-test"),
	}
}

func TestRelworxSubmitOrder(t *testing.T) {
	var got relworxDepositRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/deposit", r.URL.Path)
		require.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success":            true,
			"internal_reference": "rw-12345",
		})
	}))
	defer srv.Close()

	c := newRelworxClient(srv)
	intent := &models.PaymentIntent{PlanID: "1month", AmountMinor: 30000, Currency: "UGX"}
	result, err := c.SubmitOrder(context.Background(), intent, Customer{Phone: "0701234567"})
	require.NoError(t, err)

	assert.Equal(t, "rw-12345", result.ProviderReference)
	assert.Empty(t, result.RedirectURL)
	assert.Equal(t, "+256701234567", got.MSISDN)
	assert.Equal(t, float64(30000), got.Amount)
}

func TestRelworxSubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"message": "insufficient float",
		})
	}))
	defer srv.Close()

	c := newRelworxClient(srv)
	intent := &models.PaymentIntent{PlanID: "1week", AmountMinor: 10000}
	_, err := c.SubmitOrder(context.Background(), intent, Customer{Phone: "0701234567"})

	var rejected *GatewayRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, models.ProviderRelworx, rejected.Provider)
	assert.Equal(t, "insufficient float", rejected.Message)
}

func TestRelworxSubmitWithoutPhone(t *testing.T) {
	c := &RelworxClient{breaker: newGatewayBreaker("relworx-test")}
	intent := &models.PaymentIntent{PlanID: "1week", AmountMinor: 10000}
	_, err := c.SubmitOrder(context.Background(), intent, Customer{})

	var rejected *GatewayRejectedError
	require.ErrorAs(t, err, &rejected)
}

func TestRelworxQueryStatusMapping(t *testing.T) {
	status := "pending"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/request-status", r.URL.Path)
		require.Equal(t, "rw-12345", r.URL.Query().Get("internal_reference"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"relworx": map[string]string{"request_status": status},
		})
	}))
	defer srv.Close()

	c := newRelworxClient(srv)
	cases := []struct {
		status string
		want   ProviderStatus
	}{
		{"pending", StatusPending},
		{"success", StatusCompleted},
		{"SUCCESS", StatusCompleted},
		{"failed", StatusFailed},
		{"cancelled", StatusUnknown},
	}
	for _, tc := range cases {
		status = tc.status
		signal, err := c.QueryStatus(context.Background(), "rw-12345")
		require.NoError(t, err)
		assert.Equal(t, tc.want, signal.ProviderStatus, "request_status %q", tc.status)
		assert.Equal(t, "mobile_money", signal.PaymentMethod)
	}
}

func TestNormalizeMSISDN(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0701234567", "+256701234567", false},
		{"0 701 234 567", "+256701234567", false},
		{"+256701234567", "+256701234567", false},
		{"256701234567", "+256701234567", false},
		{"", "", true},
		{"0701", "", true},
	}
	for _, tc := range cases {
		got, err := NormalizeMSISDN(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

package controllers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globalnexus/streamvault/app/models"
	"github.com/globalnexus/streamvault/internal/pkg/entitlements"
	"github.com/globalnexus/streamvault/internal/pkg/payment"
	"github.com/globalnexus/streamvault/internal/pkg/plans"
)

// ipnRepo is a minimal in-memory payment.Repository for IPN handler tests.
type ipnRepo struct {
	mu      sync.Mutex
	byRef   map[string]models.PaymentIntent
	dedupes map[string]bool
}

func newIPNRepo() *ipnRepo {
	return &ipnRepo{
		byRef:   make(map[string]models.PaymentIntent),
		dedupes: make(map[string]bool),
	}
}

func (r *ipnRepo) CreateIntent(intent *models.PaymentIntent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byRef[intent.MerchantReference] = *intent
	return nil
}

func (r *ipnRepo) IntentByID(intentID string) (*models.PaymentIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, intent := range r.byRef {
		if intent.IntentID == intentID {
			out := intent
			return &out, nil
		}
	}
	return nil, payment.ErrIntentNotFound
}

func (r *ipnRepo) IntentByReference(ref string) (*models.PaymentIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	intent, ok := r.byRef[ref]
	if !ok {
		return nil, payment.ErrIntentNotFound
	}
	out := intent
	return &out, nil
}

func (r *ipnRepo) SaveIntent(intent *models.PaymentIntent) error {
	return r.CreateIntent(intent)
}

func (r *ipnRepo) ListIntentsByUser(userID uint, limit int) ([]models.PaymentIntent, error) {
	return nil, nil
}

func (r *ipnRepo) ListNonTerminal() ([]models.PaymentIntent, error) {
	return nil, nil
}

func (r *ipnRepo) RecordEventIfNotExists(event *models.PaymentEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := event.Provider + ":" + event.DedupeKey
	if r.dedupes[key] {
		return false, nil
	}
	r.dedupes[key] = true
	return true, nil
}

func (r *ipnRepo) DeleteEventByDedupe(provider, dedupeKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.dedupes, provider+":"+dedupeKey)
	return nil
}

type ipnStore struct {
	mu      sync.Mutex
	applied int
}

func (s *ipnStore) ApplySettlement(userID uint, plan plans.Plan, settlement entitlements.Settlement) (*entitlements.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied++
	return &entitlements.Entitlement{
		UserID:    userID,
		PlanID:    plan.ID,
		ExpiresAt: time.Now().Add(time.Duration(plan.DurationDays) * 24 * time.Hour),
		IsActive:  true,
	}, nil
}

func (s *ipnStore) Current(userID uint) (*entitlements.Entitlement, error) {
	return &entitlements.Entitlement{UserID: userID}, nil
}

type ipnGateway struct {
	status payment.ProviderStatus
}

func (g *ipnGateway) Name() string { return models.ProviderPesapal }

func (g *ipnGateway) SubmitOrder(ctx context.Context, intent *models.PaymentIntent, customer payment.Customer) (*payment.SubmitResult, error) {
	return &payment.SubmitResult{ProviderReference: "trk-1"}, nil
}

func (g *ipnGateway) QueryStatus(ctx context.Context, providerReference string) (*payment.SettlementSignal, error) {
	return &payment.SettlementSignal{
		ProviderStatus:   g.status,
		ConfirmationCode: "CONF-9",
		PaymentMethod:    "MPESA",
	}, nil
}

func ipnApp(t *testing.T, repo payment.Repository, store payment.EntitlementStore, gw payment.Gateway) *fiber.App {
	t.Helper()
	r := payment.NewReconciler(repo, store)
	if gw != nil {
		r.Register(gw)
	}
	payment.SetReconciler(r)
	t.Cleanup(r.Shutdown)

	app := fiber.New()
	app.Get("/api/pesapal/ipn", HandlePesapalIPN)
	return app
}

type ipnBody struct {
	OrderNotificationType  string `json:"orderNotificationType"`
	OrderTrackingID        string `json:"orderTrackingId"`
	OrderMerchantReference string `json:"orderMerchantReference"`
	Status                 int    `json:"status"`
}

func TestPesapalIPNMissingParams(t *testing.T) {
	app := ipnApp(t, newIPNRepo(), &ipnStore{}, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/pesapal/ipn", nil))
	require.NoError(t, err)

	var body ipnBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 500, body.Status)
}

func TestPesapalIPNUnknownReferenceIsAcked(t *testing.T) {
	app := ipnApp(t, newIPNRepo(), &ipnStore{}, nil)

	req := httptest.NewRequest("GET",
		"/api/pesapal/ipn?OrderTrackingId=trk-1&OrderMerchantReference=SUB-nobody-1month-1&OrderNotificationType=IPNCHANGE", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	// Not ours, but acknowledged so the provider stops retrying.
	var body ipnBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 200, body.Status)
	assert.Equal(t, "IPNCHANGE", body.OrderNotificationType)
	assert.Equal(t, "trk-1", body.OrderTrackingID)
	assert.Equal(t, "SUB-nobody-1month-1", body.OrderMerchantReference)
}

func TestPesapalIPNSettlesIntent(t *testing.T) {
	repo := newIPNRepo()
	store := &ipnStore{}
	now := time.Now()
	require.NoError(t, repo.CreateIntent(&models.PaymentIntent{
		IntentID:          "in-1",
		UserID:            7,
		PlanID:            "1month",
		MerchantReference: "SUB-a1b2c3d4-1month-1000",
		Provider:          models.ProviderPesapal,
		ProviderReference: "trk-1",
		AmountMinor:       30000,
		Currency:          "UGX",
		Status:            models.IntentStatusSubmitted,
		SubmittedAt:       &now,
	}))
	app := ipnApp(t, repo, store, &ipnGateway{status: payment.StatusCompleted})

	req := httptest.NewRequest("GET",
		"/api/pesapal/ipn?OrderTrackingId=trk-1&OrderMerchantReference=SUB-a1b2c3d4-1month-1000&OrderNotificationType=IPNCHANGE", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	var body ipnBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 200, body.Status)

	intent, err := repo.IntentByReference("SUB-a1b2c3d4-1month-1000")
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusSettled, intent.Status)
	assert.Equal(t, 1, store.applied)
}

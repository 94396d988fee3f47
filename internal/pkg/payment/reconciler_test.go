package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/globalnexus/streamvault/app/models"
	"github.com/globalnexus/streamvault/internal/pkg/entitlements"
	"github.com/globalnexus/streamvault/internal/pkg/plans"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo is an in-memory Repository.
type fakeRepo struct {
	mu      sync.Mutex
	byRef   map[string]models.PaymentIntent
	byID    map[string]string // intent id -> reference
	dedupes map[string]bool
	events  []models.PaymentEvent
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		byRef:   make(map[string]models.PaymentIntent),
		byID:    make(map[string]string),
		dedupes: make(map[string]bool),
	}
}

func (f *fakeRepo) CreateIntent(intent *models.PaymentIntent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	intent.CreatedAt = time.Now()
	f.byRef[intent.MerchantReference] = *intent
	f.byID[intent.IntentID] = intent.MerchantReference
	return nil
}

func (f *fakeRepo) IntentByID(intentID string) (*models.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref, ok := f.byID[intentID]
	if !ok {
		return nil, ErrIntentNotFound
	}
	intent := f.byRef[ref]
	return &intent, nil
}

func (f *fakeRepo) IntentByReference(ref string) (*models.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	intent, ok := f.byRef[ref]
	if !ok {
		return nil, ErrIntentNotFound
	}
	return &intent, nil
}

func (f *fakeRepo) SaveIntent(intent *models.PaymentIntent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byRef[intent.MerchantReference] = *intent
	f.byID[intent.IntentID] = intent.MerchantReference
	return nil
}

func (f *fakeRepo) ListIntentsByUser(userID uint, limit int) ([]models.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PaymentIntent
	for _, intent := range f.byRef {
		if intent.UserID == userID {
			out = append(out, intent)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListNonTerminal() ([]models.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PaymentIntent
	for _, intent := range f.byRef {
		if !intent.IsTerminal() {
			out = append(out, intent)
		}
	}
	return out, nil
}

func (f *fakeRepo) RecordEventIfNotExists(event *models.PaymentEvent) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := event.Provider + "|" + event.DedupeKey
	if f.dedupes[key] {
		return false, nil
	}
	f.dedupes[key] = true
	f.events = append(f.events, *event)
	return true, nil
}

func (f *fakeRepo) DeleteEventByDedupe(provider, dedupeKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.dedupes, provider+"|"+dedupeKey)
	kept := f.events[:0]
	for _, event := range f.events {
		if event.Provider != provider || event.DedupeKey != dedupeKey {
			kept = append(kept, event)
		}
	}
	f.events = kept
	return nil
}

// fakeStore is an in-memory EntitlementStore with the real stacking rule.
type fakeStore struct {
	mu       sync.Mutex
	applies  int
	failNext int // upcoming ApplySettlement calls answered with a write conflict
	expiry   map[uint]time.Time
	plan     map[uint]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{expiry: make(map[uint]time.Time), plan: make(map[uint]string)}
}

func (f *fakeStore) ApplySettlement(userID uint, plan plans.Plan, settlement entitlements.Settlement) (*entitlements.Entitlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return nil, &entitlements.WriteConflictError{UserID: userID, Err: errors.New("tx aborted")}
	}
	f.applies++
	now := time.Now()
	f.expiry[userID] = entitlements.ExtendFrom(now, f.expiry[userID], plan.DurationDays)
	f.plan[userID] = plan.ID
	return &entitlements.Entitlement{
		UserID:    userID,
		PlanID:    plan.ID,
		ExpiresAt: f.expiry[userID],
		IsActive:  true,
	}, nil
}

func (f *fakeStore) Current(userID uint) (*entitlements.Entitlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	exp := f.expiry[userID]
	return &entitlements.Entitlement{
		UserID:    userID,
		PlanID:    f.plan[userID],
		ExpiresAt: exp,
		IsActive:  exp.After(time.Now()),
	}, nil
}

func (f *fakeStore) applyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applies
}

// fakeGateway returns scripted signals from QueryStatus.
type fakeGateway struct {
	mu      sync.Mutex
	name    string
	signals []SettlementSignal
	submit  func() (*SubmitResult, error)
	queries int
}

func (f *fakeGateway) Name() string {
	if f.name != "" {
		return f.name
	}
	return models.ProviderPesapal
}

func (f *fakeGateway) SubmitOrder(ctx context.Context, intent *models.PaymentIntent, customer Customer) (*SubmitResult, error) {
	if f.submit != nil {
		return f.submit()
	}
	return &SubmitResult{ProviderReference: "trk-" + intent.IntentID, RedirectURL: "https://pay.example/redirect"}, nil
}

func (f *fakeGateway) QueryStatus(ctx context.Context, providerReference string) (*SettlementSignal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	idx := f.queries - 1
	if idx >= len(f.signals) {
		idx = len(f.signals) - 1
	}
	signal := f.signals[idx]
	return &signal, nil
}

func newTestReconciler(t *testing.T, gw Gateway) (*Reconciler, *fakeRepo, *fakeStore) {
	t.Helper()
	repo := newFakeRepo()
	store := newFakeStore()
	r := NewReconciler(repo, store)
	r.Register(gw)
	t.Cleanup(r.Shutdown)
	return r, repo, store
}

func testUser() *models.User {
	return &models.User{ID: 7, PublicID: "a1b2c3d4e5f60718293a", Email: "viewer@example.com"}
}

func TestSubmitPaymentCreatesSubmittedIntent(t *testing.T) {
	gw := &fakeGateway{signals: []SettlementSignal{{ProviderStatus: StatusPending}}}
	r, _, _ := newTestReconciler(t, gw)

	intent, err := r.SubmitPayment(context.Background(), testUser(), "1month", models.ProviderPesapal, Customer{Email: "viewer@example.com"})
	require.NoError(t, err)

	assert.Equal(t, models.IntentStatusSubmitted, intent.Status)
	assert.Equal(t, int64(30000), intent.AmountMinor)
	assert.Equal(t, "UGX", intent.Currency)
	assert.NotEmpty(t, intent.ProviderReference)
	assert.NotEmpty(t, intent.RedirectURL)
	assert.NotNil(t, intent.SubmittedAt)

	parts, err := DecodeReference(intent.MerchantReference)
	require.NoError(t, err)
	assert.Equal(t, "1month", parts.PlanID)
	assert.Equal(t, "a1b2c3d4", parts.UserPrefix)
}

func TestSubmitPaymentUnknownPlan(t *testing.T) {
	r, _, _ := newTestReconciler(t, &fakeGateway{})

	_, err := r.SubmitPayment(context.Background(), testUser(), "lifetime", models.ProviderPesapal, Customer{})
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestSubmitPaymentRejectionIsTerminal(t *testing.T) {
	gw := &fakeGateway{submit: func() (*SubmitResult, error) {
		return nil, &GatewayRejectedError{Provider: models.ProviderPesapal, Message: "invalid billing address"}
	}}
	r, repo, store := newTestReconciler(t, gw)

	intent, err := r.SubmitPayment(context.Background(), testUser(), "1week", models.ProviderPesapal, Customer{})
	require.Error(t, err)

	stored, err := repo.IntentByReference(intent.MerchantReference)
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusFailed, stored.Status)
	assert.Equal(t, "invalid billing address", stored.FailureReason)
	assert.Equal(t, 0, store.applyCount())
}

func TestWebhookSettlesBeforeAnyPoll(t *testing.T) {
	gw := &fakeGateway{signals: []SettlementSignal{{ProviderStatus: StatusPending}}}
	r, repo, store := newTestReconciler(t, gw)

	intent, err := r.SubmitPayment(context.Background(), testUser(), "1week", models.ProviderPesapal, Customer{})
	require.NoError(t, err)

	// Webhook arrives before the first poll fires.
	_, err = r.ApplySignal(context.Background(), intent.MerchantReference, &SettlementSignal{
		MerchantReference: intent.MerchantReference,
		ProviderStatus:    StatusCompleted,
		ConfirmationCode:  "CONF123",
		PaymentMethod:     "MPESA",
		ReceivedVia:       SourceWebhook,
	})
	require.NoError(t, err)

	stored, err := repo.IntentByReference(intent.MerchantReference)
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusSettled, stored.Status)
	assert.Equal(t, "CONF123", stored.ConfirmationCode)
	assert.Equal(t, 1, store.applyCount())

	ent, err := store.Current(7)
	require.NoError(t, err)
	assert.True(t, ent.IsActive)
	wantExpiry := time.Now().AddDate(0, 0, 7)
	assert.WithinDuration(t, wantExpiry, ent.ExpiresAt, 2*time.Second)

	// A later poll observing the same terminal state is a no-op.
	_, err = r.ApplySignal(context.Background(), intent.MerchantReference, &SettlementSignal{
		MerchantReference: intent.MerchantReference,
		ProviderStatus:    StatusCompleted,
		ReceivedVia:       SourcePoll,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.applyCount())
}

func TestDuplicateWebhookAppliesOnce(t *testing.T) {
	gw := &fakeGateway{signals: []SettlementSignal{{ProviderStatus: StatusPending}}}
	r, _, store := newTestReconciler(t, gw)

	intent, err := r.SubmitPayment(context.Background(), testUser(), "1month", models.ProviderPesapal, Customer{})
	require.NoError(t, err)

	signal := &SettlementSignal{
		MerchantReference: intent.MerchantReference,
		ProviderStatus:    StatusCompleted,
		ReceivedVia:       SourceWebhook,
	}
	for i := 0; i < 3; i++ {
		_, err = r.ApplySignal(context.Background(), intent.MerchantReference, signal)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, store.applyCount())
}

func TestFailedEntitlementWriteDoesNotPoisonRedelivery(t *testing.T) {
	gw := &fakeGateway{signals: []SettlementSignal{{ProviderStatus: StatusPending}}}
	r, repo, store := newTestReconciler(t, gw)

	intent, err := r.SubmitPayment(context.Background(), testUser(), "1month", models.ProviderPesapal, Customer{})
	require.NoError(t, err)

	// The entitlement write and its conflict retry both fail, so this
	// delivery must not settle anything.
	store.failNext = 2
	signal := &SettlementSignal{
		MerchantReference: intent.MerchantReference,
		ProviderStatus:    StatusCompleted,
		ConfirmationCode:  "CONF123",
		ReceivedVia:       SourceWebhook,
	}
	_, err = r.ApplySignal(context.Background(), intent.MerchantReference, signal)
	require.Error(t, err)

	stored, err := repo.IntentByReference(intent.MerchantReference)
	require.NoError(t, err)
	assert.False(t, stored.IsTerminal())
	assert.Equal(t, 0, store.applyCount())

	// The provider redelivers the same Completed signal; now the store
	// recovers and the entitlement must be applied exactly once.
	_, err = r.ApplySignal(context.Background(), intent.MerchantReference, signal)
	require.NoError(t, err)

	stored, err = repo.IntentByReference(intent.MerchantReference)
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusSettled, stored.Status)
	assert.Equal(t, 1, store.applyCount())

	ent, err := store.Current(7)
	require.NoError(t, err)
	assert.True(t, ent.IsActive)
}

func TestTerminalSignalReleasesReferenceLock(t *testing.T) {
	gw := &fakeGateway{signals: []SettlementSignal{{ProviderStatus: StatusPending}}}
	r, _, _ := newTestReconciler(t, gw)

	intent, err := r.SubmitPayment(context.Background(), testUser(), "1week", models.ProviderPesapal, Customer{})
	require.NoError(t, err)

	_, err = r.ApplySignal(context.Background(), intent.MerchantReference, &SettlementSignal{
		MerchantReference: intent.MerchantReference,
		ProviderStatus:    StatusCompleted,
		ReceivedVia:       SourceWebhook,
	})
	require.NoError(t, err)

	r.mu.Lock()
	_, held := r.refLocks[intent.MerchantReference]
	r.mu.Unlock()
	assert.False(t, held)

	// An absorbed late signal re-creates the entry only transiently.
	_, err = r.ApplySignal(context.Background(), intent.MerchantReference, &SettlementSignal{
		MerchantReference: intent.MerchantReference,
		ProviderStatus:    StatusCompleted,
		ReceivedVia:       SourcePoll,
	})
	require.NoError(t, err)

	r.mu.Lock()
	remaining := len(r.refLocks)
	r.mu.Unlock()
	assert.Zero(t, remaining)
}

func TestConcurrentSignalsApplyAtMostOnce(t *testing.T) {
	gw := &fakeGateway{signals: []SettlementSignal{{ProviderStatus: StatusPending}}}
	r, repo, store := newTestReconciler(t, gw)

	intent, err := r.SubmitPayment(context.Background(), testUser(), "1month", models.ProviderPesapal, Customer{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	signals := []SettlementSignal{
		{MerchantReference: intent.MerchantReference, ProviderStatus: StatusCompleted, ReceivedVia: SourceWebhook},
		{MerchantReference: intent.MerchantReference, ProviderStatus: StatusCompleted, ReceivedVia: SourcePoll},
		{MerchantReference: intent.MerchantReference, ProviderStatus: StatusFailed, ReceivedVia: SourcePoll},
	}
	for i := range signals {
		wg.Add(1)
		go func(s SettlementSignal) {
			defer wg.Done()
			_, _ = r.ApplySignal(context.Background(), s.MerchantReference, &s)
		}(signals[i])
	}
	wg.Wait()

	stored, err := repo.IntentByReference(intent.MerchantReference)
	require.NoError(t, err)
	assert.True(t, stored.IsTerminal())
	// Whichever signal won, the entitlement was mutated at most once.
	assert.LessOrEqual(t, store.applyCount(), 1)
	if stored.Status == models.IntentStatusSettled {
		assert.Equal(t, 1, store.applyCount())
	} else {
		assert.Equal(t, 0, store.applyCount())
	}
}

func TestFailedSignalNeverTouchesEntitlement(t *testing.T) {
	gw := &fakeGateway{signals: []SettlementSignal{{ProviderStatus: StatusPending}}}
	r, repo, store := newTestReconciler(t, gw)

	intent, err := r.SubmitPayment(context.Background(), testUser(), "2days", models.ProviderPesapal, Customer{})
	require.NoError(t, err)

	for _, status := range []ProviderStatus{StatusPending, StatusFailed} {
		_, err = r.ApplySignal(context.Background(), intent.MerchantReference, &SettlementSignal{
			MerchantReference: intent.MerchantReference,
			ProviderStatus:    status,
			ReceivedVia:       SourcePoll,
		})
		require.NoError(t, err)
	}

	stored, err := repo.IntentByReference(intent.MerchantReference)
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusFailed, stored.Status)
	assert.Equal(t, 0, store.applyCount())
}

func TestReversedMapsToFailed(t *testing.T) {
	gw := &fakeGateway{signals: []SettlementSignal{{ProviderStatus: StatusPending}}}
	r, repo, store := newTestReconciler(t, gw)

	intent, err := r.SubmitPayment(context.Background(), testUser(), "1week", models.ProviderPesapal, Customer{})
	require.NoError(t, err)

	_, err = r.ApplySignal(context.Background(), intent.MerchantReference, &SettlementSignal{
		MerchantReference: intent.MerchantReference,
		ProviderStatus:    StatusReversed,
		ReceivedVia:       SourceWebhook,
	})
	require.NoError(t, err)

	stored, _ := repo.IntentByReference(intent.MerchantReference)
	assert.Equal(t, models.IntentStatusFailed, stored.Status)
	assert.Equal(t, 0, store.applyCount())
}

func TestPollLoopSettlesIntent(t *testing.T) {
	gw := &fakeGateway{signals: []SettlementSignal{
		{ProviderStatus: StatusPending},
		{ProviderStatus: StatusPending},
		{ProviderStatus: StatusCompleted, ConfirmationCode: "POLLCONF"},
	}}
	r, repo, store := newTestReconciler(t, gw)
	r.pollInterval = 10 * time.Millisecond
	r.pollDeadline = 2 * time.Second

	intent, err := r.SubmitPayment(context.Background(), testUser(), "1month", models.ProviderPesapal, Customer{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stored, err := repo.IntentByReference(intent.MerchantReference)
		return err == nil && stored.Status == models.IntentStatusSettled
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, store.applyCount())
	stored, _ := repo.IntentByReference(intent.MerchantReference)
	assert.Equal(t, "POLLCONF", stored.ConfirmationCode)
}

func TestPollDeadlineExpiresIntent(t *testing.T) {
	gw := &fakeGateway{signals: []SettlementSignal{{ProviderStatus: StatusPending}}}
	r, repo, store := newTestReconciler(t, gw)
	r.pollInterval = 10 * time.Millisecond
	r.pollDeadline = 60 * time.Millisecond

	intent, err := r.SubmitPayment(context.Background(), testUser(), "1month", models.ProviderPesapal, Customer{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stored, err := repo.IntentByReference(intent.MerchantReference)
		return err == nil && stored.Status == models.IntentStatusExpired
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, store.applyCount())

	// Timeout is surfaced as its own outcome, never as a failure.
	note := Notify(models.IntentStatusExpired)
	assert.Equal(t, OutcomeTimeout, note.Outcome)
	assert.NotEqual(t, Notify(models.IntentStatusFailed).Message, note.Message)
}

func TestTwoSettlementsStackDurations(t *testing.T) {
	gw := &fakeGateway{signals: []SettlementSignal{{ProviderStatus: StatusPending}}}
	r, _, store := newTestReconciler(t, gw)

	user := testUser()
	first, err := r.SubmitPayment(context.Background(), user, "1week", models.ProviderPesapal, Customer{})
	require.NoError(t, err)
	second, err := r.SubmitPayment(context.Background(), user, "1month", models.ProviderPesapal, Customer{})
	require.NoError(t, err)

	for _, intent := range []*models.PaymentIntent{first, second} {
		_, err = r.ApplySignal(context.Background(), intent.MerchantReference, &SettlementSignal{
			MerchantReference: intent.MerchantReference,
			ProviderStatus:    StatusCompleted,
			ReceivedVia:       SourceWebhook,
		})
		require.NoError(t, err)
	}

	assert.Equal(t, 2, store.applyCount())
	ent, err := store.Current(user.ID)
	require.NoError(t, err)
	wantExpiry := time.Now().AddDate(0, 0, 37)
	assert.WithinDuration(t, wantExpiry, ent.ExpiresAt, 2*time.Second)
}

func TestConfirmFromWebhookVerifiesAtProvider(t *testing.T) {
	gw := &fakeGateway{signals: []SettlementSignal{
		{ProviderStatus: StatusPending},
		{ProviderStatus: StatusCompleted, ConfirmationCode: "WEBCONF"},
	}}
	r, repo, store := newTestReconciler(t, gw)

	intent, err := r.SubmitPayment(context.Background(), testUser(), "1month", models.ProviderPesapal, Customer{})
	require.NoError(t, err)

	// First notification arrives while the provider still reports pending.
	updated, err := r.ConfirmFromWebhook(context.Background(), intent.MerchantReference)
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusPending, updated.Status)
	assert.Equal(t, 0, store.applyCount())

	// Second notification after the customer paid.
	updated, err = r.ConfirmFromWebhook(context.Background(), intent.MerchantReference)
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusSettled, updated.Status)
	assert.Equal(t, 1, store.applyCount())

	stored, _ := repo.IntentByReference(intent.MerchantReference)
	assert.Equal(t, "WEBCONF", stored.ConfirmationCode)
}

func TestApplySignalUnknownReference(t *testing.T) {
	r, _, _ := newTestReconciler(t, &fakeGateway{signals: []SettlementSignal{{ProviderStatus: StatusPending}}})

	_, err := r.ApplySignal(context.Background(), "SUB-none-1week-123", &SettlementSignal{
		ProviderStatus: StatusCompleted,
		ReceivedVia:    SourceWebhook,
	})
	assert.ErrorIs(t, err, ErrIntentNotFound)
}

func TestIntentStatusOutcome(t *testing.T) {
	gw := &fakeGateway{signals: []SettlementSignal{{ProviderStatus: StatusPending}}}
	r, _, _ := newTestReconciler(t, gw)

	intent, err := r.SubmitPayment(context.Background(), testUser(), "1month", models.ProviderPesapal, Customer{})
	require.NoError(t, err)

	stored, note, err := r.IntentStatus(context.Background(), intent.IntentID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusSubmitted, stored.Status)
	assert.Equal(t, OutcomePending, note.Outcome)
}

package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/globalnexus/streamvault/app/models"
	"github.com/globalnexus/streamvault/internal/pkg/entitlements"
	"github.com/globalnexus/streamvault/internal/pkg/plans"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

const (
	// DefaultPollInterval is how often the status of a submitted intent is
	// polled at the provider.
	DefaultPollInterval = 5 * time.Second

	// DefaultPollDeadline bounds how long an intent may stay non-terminal
	// after submission before it is abandoned as Expired.
	DefaultPollDeadline = 120 * time.Second
)

// EntitlementStore is the entitlement mutation surface the reconciler
// drives. Satisfied by *entitlements.Store.
type EntitlementStore interface {
	ApplySettlement(userID uint, plan plans.Plan, settlement entitlements.Settlement) (*entitlements.Entitlement, error)
	Current(userID uint) (*entitlements.Entitlement, error)
}

// Reconciler converges settlement signals from two independent sources
// (provider webhook, status poll) into at most one entitlement mutation per
// intent. Signal application is serialized per merchant reference and the
// first terminal signal wins; everything later is audit-logged and
// discarded.
type Reconciler struct {
	repo     Repository
	store    EntitlementStore
	gateways map[string]Gateway

	pollInterval time.Duration
	pollDeadline time.Duration

	// onSettled, when set, runs after a settlement has been applied.
	// Used for side channels like receipt mail; never for entitlement state.
	onSettled func(intent *models.PaymentIntent)

	mu       sync.Mutex
	refLocks map[string]*sync.Mutex
	polls    map[string]context.CancelFunc

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// NewReconciler builds a reconciler over the given persistence and
// entitlement surfaces. Gateways are attached with Register.
func NewReconciler(repo Repository, store EntitlementStore) *Reconciler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		repo:         repo,
		store:        store,
		gateways:     make(map[string]Gateway),
		pollInterval: DefaultPollInterval,
		pollDeadline: DefaultPollDeadline,
		refLocks:     make(map[string]*sync.Mutex),
		polls:        make(map[string]context.CancelFunc),
		baseCtx:      ctx,
		stop:         cancel,
	}
}

// Register attaches a payment gateway under its provider name.
func (r *Reconciler) Register(gw Gateway) {
	r.gateways[gw.Name()] = gw
}

// OnSettled installs a post-settlement hook. The hook runs in its own
// goroutine once per applied settlement.
func (r *Reconciler) OnSettled(fn func(intent *models.PaymentIntent)) {
	r.onSettled = fn
}

// SubmitPayment creates a payment intent for a plan and opens the order at
// the chosen provider. On success the intent is Submitted and a background
// poll loop runs until a terminal signal or the deadline. Submission is a
// single attempt; transport failures surface to the caller unretried.
func (r *Reconciler) SubmitPayment(ctx context.Context, user *models.User, planID, providerName string, customer Customer) (*models.PaymentIntent, error) {
	plan, ok := plans.Get(planID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	gw, ok := r.gateways[providerName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, providerName)
	}

	ref, err := EncodeReference(user.PublicID, plan.ID)
	if err != nil {
		return nil, err
	}

	intent := &models.PaymentIntent{
		IntentID:          uuid.New().String(),
		UserID:            user.ID,
		PlanID:            plan.ID,
		MerchantReference: ref,
		Provider:          gw.Name(),
		AmountMinor:       plan.PriceMinor,
		Currency:          plans.Currency,
		Status:            models.IntentStatusCreated,
	}
	if err := r.repo.CreateIntent(intent); err != nil {
		return nil, err
	}

	result, err := gw.SubmitOrder(ctx, intent, customer)
	if err != nil {
		var rejected *GatewayRejectedError
		if errors.As(err, &rejected) {
			// Business rejection is terminal; a transport error leaves the
			// intent Created for the expiry sweep.
			now := time.Now()
			intent.Status = models.IntentStatusFailed
			intent.FailureReason = rejected.Message
			intent.CompletedAt = &now
			if saveErr := r.repo.SaveIntent(intent); saveErr != nil {
				log.Errorf("[Reconciler] failed to persist rejected intent %s: %v", intent.IntentID, saveErr)
			}
		}
		return intent, err
	}

	now := time.Now()
	intent.Status = models.IntentStatusSubmitted
	intent.ProviderReference = result.ProviderReference
	intent.RedirectURL = result.RedirectURL
	intent.SubmittedAt = &now
	if err := r.repo.SaveIntent(intent); err != nil {
		return nil, err
	}

	log.Infof("[Reconciler] intent %s submitted to %s as %s", intent.IntentID, gw.Name(), ref)
	r.startPolling(intent)
	return intent, nil
}

// ApplySignal feeds one settlement signal into the state machine. It is
// the single entrance for both webhook and poll deliveries. Safe to call
// concurrently for the same reference; terminal intents absorb any further
// signal as a logged no-op.
func (r *Reconciler) ApplySignal(ctx context.Context, merchantReference string, signal *SettlementSignal) (*models.PaymentIntent, error) {
	_ = ctx
	lock := r.refLock(merchantReference)
	lock.Lock()
	defer lock.Unlock()

	intent, err := r.repo.IntentByReference(merchantReference)
	if err != nil {
		return nil, err
	}

	if intent.IsTerminal() {
		r.recordEvent(intent, signal, false, "ignored: intent already "+intent.Status)
		log.Infof("[Reconciler] %s signal for %s ignored, intent already %s",
			signal.ReceivedVia, merchantReference, intent.Status)
		r.releaseRefLock(merchantReference)
		return intent, nil
	}

	switch {
	case signal.ProviderStatus == StatusPending:
		if intent.Status != models.IntentStatusPending {
			intent.Status = models.IntentStatusPending
			if err := r.repo.SaveIntent(intent); err != nil {
				return nil, err
			}
		}
		r.recordEvent(intent, signal, false, "")

	case signal.ProviderStatus == StatusCompleted:
		if err := r.settle(intent, signal); err != nil {
			return nil, err
		}

	case signal.Terminal(): // Failed or Reversed
		now := time.Now()
		intent.Status = models.IntentStatusFailed
		intent.FailureReason = "payment " + string(signal.ProviderStatus)
		intent.CompletedAt = &now
		if err := r.repo.SaveIntent(intent); err != nil {
			return nil, err
		}
		r.recordTerminalEvent(intent, signal, false, "")

	default:
		r.recordEvent(intent, signal, false, "unmapped provider status")
		log.Warnf("[Reconciler] unmapped status %q for %s", signal.ProviderStatus, merchantReference)
	}

	if intent.IsTerminal() {
		r.stopPolling(merchantReference)
		r.releaseRefLock(merchantReference)
	}
	return intent, nil
}

// settle applies the one entitlement mutation an intent is allowed. The
// terminal audit row is the idempotency gate: if it already exists the
// entitlement was extended by an earlier delivery and must not be touched
// again.
func (r *Reconciler) settle(intent *models.PaymentIntent, signal *SettlementSignal) error {
	plan, ok := plans.Get(intent.PlanID)
	if !ok {
		return fmt.Errorf("%w: intent %s references %s", ErrPlanNotFound, intent.IntentID, intent.PlanID)
	}

	note := ""
	if signal.AmountMinor > 0 && signal.AmountMinor != intent.AmountMinor {
		note = fmt.Sprintf("amount mismatch: provider %d, intent %d", signal.AmountMinor, intent.AmountMinor)
		log.Warnf("[Reconciler] %s for %s", note, intent.MerchantReference)
	}

	created, err := r.recordTerminalEvent(intent, signal, true, note)
	if err != nil {
		return err
	}
	if created {
		ent, err := r.store.ApplySettlement(intent.UserID, plan, entitlements.Settlement{
			PaymentMethod:    signal.PaymentMethod,
			ConfirmationCode: signal.ConfirmationCode,
		})
		var conflict *entitlements.WriteConflictError
		if errors.As(err, &conflict) {
			// One retry with a fresh read; the row lock makes a second
			// failure a real fault, not a race.
			ent, err = r.store.ApplySettlement(intent.UserID, plan, entitlements.Settlement{
				PaymentMethod:    signal.PaymentMethod,
				ConfirmationCode: signal.ConfirmationCode,
			})
		}
		if err != nil {
			// The gate row must not outlive a failed mutation: leaving it
			// would make the next delivery of this signal skip the
			// entitlement forever.
			if derr := r.repo.DeleteEventByDedupe(intent.Provider, intent.MerchantReference+":terminal"); derr != nil {
				log.Errorf("[Reconciler] rolling back terminal event for %s: %v", intent.MerchantReference, derr)
			}
			return err
		}
		log.Infof("[Reconciler] user %d entitled to %s until %s via %s",
			intent.UserID, plan.ID, ent.ExpiresAt.Format(time.RFC3339), intent.Provider)
		if r.onSettled != nil {
			settled := *intent
			go r.onSettled(&settled)
		}
	} else {
		log.Infof("[Reconciler] settlement for %s already applied, skipping entitlement", intent.MerchantReference)
	}

	now := time.Now()
	intent.Status = models.IntentStatusSettled
	intent.PaymentMethod = signal.PaymentMethod
	intent.ConfirmationCode = signal.ConfirmationCode
	intent.CompletedAt = &now
	return r.repo.SaveIntent(intent)
}

// ConfirmFromWebhook handles a provider notification for a merchant
// reference. The notification payload itself is never trusted: the
// authoritative status is re-queried at the provider and fed through
// ApplySignal as a webhook-sourced signal.
func (r *Reconciler) ConfirmFromWebhook(ctx context.Context, merchantReference string) (*models.PaymentIntent, error) {
	intent, err := r.repo.IntentByReference(merchantReference)
	if err != nil {
		return nil, err
	}
	gw, ok := r.gateways[intent.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, intent.Provider)
	}

	signal, err := gw.QueryStatus(ctx, intent.ProviderReference)
	if err != nil {
		var rejected *GatewayRejectedError
		if errors.As(err, &rejected) {
			signal = &SettlementSignal{ProviderStatus: StatusFailed}
		} else {
			return nil, err
		}
	}
	signal.MerchantReference = merchantReference
	signal.ReceivedVia = SourceWebhook
	return r.ApplySignal(ctx, merchantReference, signal)
}

// IntentStatus resolves an intent for the UI together with its
// user-facing outcome.
func (r *Reconciler) IntentStatus(ctx context.Context, intentID string) (*models.PaymentIntent, Notification, error) {
	_ = ctx
	intent, err := r.repo.IntentByID(intentID)
	if err != nil {
		return nil, Notification{}, err
	}
	return intent, Notify(intent.Status), nil
}

// IntentByReference resolves an intent by its merchant reference, for
// callers that only hold the reference echoed by the provider.
func (r *Reconciler) IntentByReference(ctx context.Context, merchantReference string) (*models.PaymentIntent, Notification, error) {
	_ = ctx
	intent, err := r.repo.IntentByReference(merchantReference)
	if err != nil {
		return nil, Notification{}, err
	}
	return intent, Notify(intent.Status), nil
}

// History lists a user's payment intents, newest first.
func (r *Reconciler) History(userID uint, limit int) ([]models.PaymentIntent, error) {
	return r.repo.ListIntentsByUser(userID, limit)
}

// ResumePolling restarts poll loops for intents that were in flight when
// the process stopped and expires those already past their deadline.
// Called once at startup.
func (r *Reconciler) ResumePolling() error {
	intents, err := r.repo.ListNonTerminal()
	if err != nil {
		return err
	}

	now := time.Now()
	for i := range intents {
		intent := &intents[i]
		if now.After(r.deadlineFor(intent)) {
			r.expire(intent.MerchantReference)
			continue
		}
		if intent.Status == models.IntentStatusCreated {
			// Never submitted; nothing to poll. The deadline check above
			// will expire it on the next startup.
			continue
		}
		r.startPolling(intent)
	}
	return nil
}

// Shutdown cancels all poll loops and waits for them to drain.
func (r *Reconciler) Shutdown() {
	r.stop()
	r.wg.Wait()
}

func (r *Reconciler) deadlineFor(intent *models.PaymentIntent) time.Time {
	start := intent.CreatedAt
	if intent.SubmittedAt != nil {
		start = *intent.SubmittedAt
	}
	return start.Add(r.pollDeadline)
}

func (r *Reconciler) startPolling(intent *models.PaymentIntent) {
	ctx, cancel := context.WithDeadline(r.baseCtx, r.deadlineFor(intent))

	r.mu.Lock()
	if _, running := r.polls[intent.MerchantReference]; running {
		r.mu.Unlock()
		cancel()
		return
	}
	r.polls[intent.MerchantReference] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go r.poll(ctx, intent.MerchantReference, intent.Provider, intent.ProviderReference)
}

func (r *Reconciler) poll(ctx context.Context, ref, provider, providerRef string) {
	defer r.wg.Done()
	defer r.clearPoll(ref)

	gw, ok := r.gateways[provider]
	if !ok {
		log.Errorf("[Reconciler] no gateway %q for %s, abandoning poll", provider, ref)
		return
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				r.expire(ref)
			}
			return
		case <-ticker.C:
			signal, err := gw.QueryStatus(ctx, providerRef)
			if err != nil {
				var rejected *GatewayRejectedError
				if errors.As(err, &rejected) {
					// The provider itself refused the query; treat as a
					// failed settlement rather than polling a dead order.
					signal = &SettlementSignal{ProviderStatus: StatusFailed, ReceivedVia: SourcePoll}
				} else {
					// A network blip must not fail the whole intent.
					log.Warnf("[Reconciler] poll for %s: %v", ref, err)
					continue
				}
			}
			signal.MerchantReference = ref

			intent, err := r.ApplySignal(ctx, ref, signal)
			if err != nil {
				log.Errorf("[Reconciler] applying poll signal for %s: %v", ref, err)
				continue
			}
			if intent.IsTerminal() {
				return
			}
		}
	}
}

// expire moves a non-terminal intent to Expired. Terminal intents are left
// untouched; the poll may have lost the race against a webhook.
func (r *Reconciler) expire(ref string) {
	lock := r.refLock(ref)
	lock.Lock()
	defer lock.Unlock()

	intent, err := r.repo.IntentByReference(ref)
	if err != nil {
		log.Errorf("[Reconciler] expiring %s: %v", ref, err)
		return
	}
	if intent.IsTerminal() {
		r.releaseRefLock(ref)
		return
	}

	now := time.Now()
	intent.Status = models.IntentStatusExpired
	intent.CompletedAt = &now
	if err := r.repo.SaveIntent(intent); err != nil {
		log.Errorf("[Reconciler] expiring %s: %v", ref, err)
		return
	}
	r.releaseRefLock(ref)
	log.Infof("[Reconciler] intent %s expired without a terminal signal", ref)
}

func (r *Reconciler) refLock(ref string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.refLocks[ref]
	if !ok {
		lock = &sync.Mutex{}
		r.refLocks[ref] = lock
	}
	return lock
}

// releaseRefLock evicts a reference's mutex once its intent is terminal.
// A signal racing the eviction re-creates the entry, observes the terminal
// intent and evicts it again; without this the map grows by one entry per
// payment for the process lifetime.
func (r *Reconciler) releaseRefLock(ref string) {
	r.mu.Lock()
	delete(r.refLocks, ref)
	r.mu.Unlock()
}

func (r *Reconciler) stopPolling(ref string) {
	r.mu.Lock()
	cancel, ok := r.polls[ref]
	r.mu.Unlock()
	if ok {
		cancel()
	}
}

func (r *Reconciler) clearPoll(ref string) {
	r.mu.Lock()
	if cancel, ok := r.polls[ref]; ok {
		cancel()
		delete(r.polls, ref)
	}
	r.mu.Unlock()
}

// recordEvent writes a non-terminal audit row. Each row gets a unique
// dedupe key; idempotency matters only for terminal applications.
func (r *Reconciler) recordEvent(intent *models.PaymentIntent, signal *SettlementSignal, applied bool, note string) {
	event := &models.PaymentEvent{
		Provider:          intent.Provider,
		DedupeKey:         intent.MerchantReference + ":" + uuid.New().String(),
		MerchantReference: intent.MerchantReference,
		ProviderStatus:    string(signal.ProviderStatus),
		ReceivedVia:       string(signal.ReceivedVia),
		ConfirmationCode:  signal.ConfirmationCode,
		AmountMinor:       signal.AmountMinor,
		Applied:           applied,
		Note:              note,
	}
	if _, err := r.repo.RecordEventIfNotExists(event); err != nil {
		log.Errorf("[Reconciler] recording event for %s: %v", intent.MerchantReference, err)
	}
}

// recordTerminalEvent writes the single terminal audit row per reference.
func (r *Reconciler) recordTerminalEvent(intent *models.PaymentIntent, signal *SettlementSignal, applied bool, note string) (bool, error) {
	event := &models.PaymentEvent{
		Provider:          intent.Provider,
		DedupeKey:         intent.MerchantReference + ":terminal",
		MerchantReference: intent.MerchantReference,
		ProviderStatus:    string(signal.ProviderStatus),
		ReceivedVia:       string(signal.ReceivedVia),
		ConfirmationCode:  signal.ConfirmationCode,
		AmountMinor:       signal.AmountMinor,
		Applied:           applied,
		Note:              note,
	}
	return r.repo.RecordEventIfNotExists(event)
}

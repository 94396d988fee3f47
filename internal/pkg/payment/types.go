package payment

import (
	"errors"
	"fmt"
)

// ProviderStatus is the normalized settlement vocabulary. Provider-specific
// codes (Pesapal numeric status_code, Relworx request_status strings) are
// mapped to these values at the adapter boundary; the reconciler never sees
// provider wording.
type ProviderStatus string

const (
	StatusPending   ProviderStatus = "pending"
	StatusCompleted ProviderStatus = "completed"
	StatusFailed    ProviderStatus = "failed"
	StatusReversed  ProviderStatus = "reversed"
	StatusUnknown   ProviderStatus = "unknown"
)

// SignalSource identifies which delivery path produced a settlement signal.
type SignalSource string

const (
	SourceWebhook SignalSource = "webhook"
	SourcePoll    SignalSource = "poll"
)

// SettlementSignal is one inbound fact about a payment outcome, via webhook
// push or status poll. Ephemeral; persisted only as an audit event.
type SettlementSignal struct {
	MerchantReference string
	ProviderStatus    ProviderStatus
	ConfirmationCode  string
	AmountMinor       int64
	PaymentMethod     string
	ReceivedVia       SignalSource
}

// Terminal reports whether the signal carries a terminal provider status.
func (s SettlementSignal) Terminal() bool {
	switch s.ProviderStatus {
	case StatusCompleted, StatusFailed, StatusReversed:
		return true
	default:
		return false
	}
}

// ErrGatewayUnavailable wraps transport-level failures talking to a
// provider: connection errors, non-2xx responses, open circuit breaker.
// The poll loop treats it as retryable until the deadline.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// ErrIntentNotFound is returned when no payment intent matches the given
// id or merchant reference.
var ErrIntentNotFound = errors.New("payment intent not found")

// ErrPlanNotFound is returned for a plan id missing from the catalog.
var ErrPlanNotFound = errors.New("plan not found")

// ErrUnknownProvider is returned when no gateway is registered under the
// requested provider name.
var ErrUnknownProvider = errors.New("unknown payment provider")

// GatewayRejectedError is a business-rule rejection from the provider: the
// HTTP layer may have returned 200 with a rejection embedded in the body.
// Terminal; never retried.
type GatewayRejectedError struct {
	Provider string
	Code     string
	Message  string
}

func (e *GatewayRejectedError) Error() string {
	return fmt.Sprintf("%s rejected request (code %s): %s", e.Provider, e.Code, e.Message)
}

package models

import "time"

// Payment intent lifecycle. Created and Submitted and Pending are
// non-terminal; Settled, Failed and Expired are terminal and absorb any
// later settlement signal for the same reference.
const (
	IntentStatusCreated   = "created"
	IntentStatusSubmitted = "submitted"
	IntentStatusPending   = "pending"
	IntentStatusSettled   = "settled"
	IntentStatusFailed    = "failed"
	IntentStatusExpired   = "expired"
)

const (
	ProviderPesapal = "pesapal"
	ProviderRelworx = "relworx"
)

// PaymentIntent tracks one purchase attempt from submission to terminal
// settlement. Owned by the reconciler after creation; the merchant
// reference is the sole correlation key with the provider.
type PaymentIntent struct {
	ID                uint       `gorm:"primaryKey" json:"-"`
	IntentID          string     `gorm:"type:varchar(36);uniqueIndex" json:"intent_id"`
	UserID            uint       `gorm:"not null;index" json:"user_id"`
	PlanID            string     `gorm:"type:varchar(50);not null" json:"plan_id"`
	MerchantReference string     `gorm:"type:varchar(100);uniqueIndex" json:"merchant_reference"`
	Provider          string     `gorm:"type:varchar(20);not null;index" json:"provider"`
	ProviderReference string     `gorm:"type:varchar(191);index" json:"provider_reference,omitempty"`
	AmountMinor       int64      `gorm:"not null" json:"amount_minor"`
	Currency          string     `gorm:"type:varchar(8);not null" json:"currency"`
	Status            string     `gorm:"type:varchar(20);not null;default:'created';index" json:"status"`
	RedirectURL       string     `gorm:"type:varchar(500)" json:"redirect_url,omitempty"`
	PaymentMethod     string     `gorm:"type:varchar(50)" json:"payment_method,omitempty"`
	ConfirmationCode  string     `gorm:"type:varchar(100)" json:"confirmation_code,omitempty"`
	FailureReason     string     `gorm:"type:varchar(255)" json:"failure_reason,omitempty"`
	SubmittedAt       *time.Time `gorm:"type:timestamp;default:null" json:"submitted_at,omitempty"`
	CompletedAt       *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the intent reached a final state.
func (p *PaymentIntent) IsTerminal() bool {
	switch p.Status {
	case IntentStatusSettled, IntentStatusFailed, IntentStatusExpired:
		return true
	default:
		return false
	}
}

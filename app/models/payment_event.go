package models

import "time"

// PaymentEvent is the audit row written for every settlement signal the
// reconciler sees, applied or not. The (provider, dedupe_key) unique index
// doubles as the idempotency guard for terminal applications: inserting the
// terminal event for a reference twice is a conflict, not a second
// entitlement mutation.
type PaymentEvent struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Provider          string    `gorm:"type:varchar(20);not null;index:ux_payment_events_provider_dedupe,unique,priority:1" json:"provider"`
	DedupeKey         string    `gorm:"type:varchar(191);not null;index:ux_payment_events_provider_dedupe,unique,priority:2" json:"dedupe_key"`
	MerchantReference string    `gorm:"type:varchar(100);not null;index" json:"merchant_reference"`
	ProviderStatus    string    `gorm:"type:varchar(20);not null" json:"provider_status"`
	ReceivedVia       string    `gorm:"type:varchar(20);not null" json:"received_via"`
	ConfirmationCode  string    `gorm:"type:varchar(100)" json:"confirmation_code,omitempty"`
	AmountMinor       int64     `json:"amount_minor,omitempty"`
	Applied           bool      `gorm:"default:false" json:"applied"`
	Note              string    `gorm:"type:varchar(255)" json:"note,omitempty"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
}

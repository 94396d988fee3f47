package models

import "time"

// Subscription is the per-user entitlement record. One row per user;
// mutated only by the settlement reconciler. Whether the subscription is
// active is computed from ExpiresAt at read time and deliberately not
// stored, so a row read long after its last write cannot report stale
// access.
type Subscription struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"not null;uniqueIndex" json:"user_id"`
	PlanID           string    `gorm:"type:varchar(50);not null" json:"plan_id"`
	ExpiresAt        time.Time `gorm:"type:timestamp;not null;index" json:"expires_at"`
	PaymentMethod    string    `gorm:"type:varchar(50)" json:"payment_method,omitempty"`
	ConfirmationCode string    `gorm:"type:varchar(100)" json:"confirmation_code,omitempty"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ActiveAt reports whether the subscription grants access at the given
// instant.
func (s *Subscription) ActiveAt(now time.Time) bool {
	return s.ExpiresAt.After(now)
}

package entitlements

import (
	"errors"
	"fmt"
	"time"

	"github.com/globalnexus/streamvault/app/models"
	"github.com/globalnexus/streamvault/internal/pkg/plans"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entitlement is a user's current subscription access window. IsActive is
// computed from ExpiresAt at read time, never stored.
type Entitlement struct {
	UserID    uint      `json:"user_id"`
	PlanID    string    `json:"plan_id"`
	ExpiresAt time.Time `json:"expires_at"`
	IsActive  bool      `json:"is_active"`
}

// WriteConflictError reports a failed entitlement transaction. The caller
// (the reconciler) retries once with a fresh read.
type WriteConflictError struct {
	UserID uint
	Err    error
}

func (e *WriteConflictError) Error() string {
	return fmt.Sprintf("entitlement write conflict for user %d: %v", e.UserID, e.Err)
}

func (e *WriteConflictError) Unwrap() error { return e.Err }

// Settlement carries the provider details recorded alongside an extension.
type Settlement struct {
	PaymentMethod    string
	ConfirmationCode string
}

// Store mutates and reads per-user subscription rows. All writes go through
// ApplySettlement under a row lock so two intents settling for the same
// user cannot lose an update.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// ApplySettlement extends the user's subscription by the plan duration,
// counted from the later of now and the current expiry. Renewing before
// expiry stacks the remaining time instead of resetting it.
func (s *Store) ApplySettlement(userID uint, plan plans.Plan, settlement Settlement) (*Entitlement, error) {
	if userID == 0 {
		return nil, errors.New("user_id is required")
	}

	now := s.now()
	var sub models.Subscription

	err := s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&sub).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		sub.UserID = userID
		sub.PlanID = plan.ID
		sub.ExpiresAt = ExtendFrom(now, sub.ExpiresAt, plan.DurationDays)
		if settlement.PaymentMethod != "" {
			sub.PaymentMethod = settlement.PaymentMethod
		}
		if settlement.ConfirmationCode != "" {
			sub.ConfirmationCode = settlement.ConfirmationCode
		}
		return tx.Save(&sub).Error
	})
	if err != nil {
		return nil, &WriteConflictError{UserID: userID, Err: err}
	}

	return s.fromRow(&sub, now), nil
}

// Current returns the user's entitlement. Users without a subscription row
// get an inactive zero-window entitlement rather than an error.
func (s *Store) Current(userID uint) (*Entitlement, error) {
	var sub models.Subscription
	err := s.db.Where("user_id = ?", userID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Entitlement{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.fromRow(&sub, s.now()), nil
}

func (s *Store) fromRow(sub *models.Subscription, now time.Time) *Entitlement {
	return &Entitlement{
		UserID:    sub.UserID,
		PlanID:    sub.PlanID,
		ExpiresAt: sub.ExpiresAt,
		IsActive:  sub.ActiveAt(now),
	}
}

// ExtendFrom computes the new expiry for a settlement: durationDays added
// to the later of now and the current expiry. A settlement can therefore
// never shorten or clear an unexpired window.
func ExtendFrom(now, currentExpiresAt time.Time, durationDays int) time.Time {
	base := now
	if currentExpiresAt.After(base) {
		base = currentExpiresAt
	}
	return base.AddDate(0, 0, durationDays)
}

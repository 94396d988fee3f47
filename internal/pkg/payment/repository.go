package payment

import (
	"errors"
	"time"

	"github.com/globalnexus/streamvault/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the reconciler.
type Repository interface {
	CreateIntent(intent *models.PaymentIntent) error
	IntentByID(intentID string) (*models.PaymentIntent, error)
	IntentByReference(merchantReference string) (*models.PaymentIntent, error)
	SaveIntent(intent *models.PaymentIntent) error
	ListIntentsByUser(userID uint, limit int) ([]models.PaymentIntent, error)
	ListNonTerminal() ([]models.PaymentIntent, error)
	RecordEventIfNotExists(event *models.PaymentEvent) (bool, error)
	DeleteEventByDedupe(provider, dedupeKey string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payment repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateIntent(intent *models.PaymentIntent) error {
	return r.db.Create(intent).Error
}

func (r *gormRepository) IntentByID(intentID string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.Where("intent_id = ?", intentID).First(&intent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIntentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *gormRepository) IntentByReference(merchantReference string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.Where("merchant_reference = ?", merchantReference).First(&intent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIntentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *gormRepository) SaveIntent(intent *models.PaymentIntent) error {
	return r.db.Save(intent).Error
}

func (r *gormRepository) ListIntentsByUser(userID uint, limit int) ([]models.PaymentIntent, error) {
	var intents []models.PaymentIntent
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&intents).Error
	return intents, err
}

func (r *gormRepository) ListNonTerminal() ([]models.PaymentIntent, error) {
	var intents []models.PaymentIntent
	err := r.db.Where("status IN ?", []string{
		models.IntentStatusCreated,
		models.IntentStatusSubmitted,
		models.IntentStatusPending,
	}).Find(&intents).Error
	return intents, err
}

// RecordEventIfNotExists inserts a settlement signal audit row. The
// (provider, dedupe_key) unique index makes the insert idempotent;
// the returned flag reports whether this call created the row.
func (r *gormRepository) RecordEventIfNotExists(event *models.PaymentEvent) (bool, error) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "dedupe_key"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// DeleteEventByDedupe removes an audit row. Used to roll back the terminal
// gate row when the entitlement mutation behind it could not be applied.
func (r *gormRepository) DeleteEventByDedupe(provider, dedupeKey string) error {
	return r.db.Where("provider = ? AND dedupe_key = ?", provider, dedupeKey).
		Delete(&models.PaymentEvent{}).Error
}

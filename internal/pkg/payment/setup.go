package payment

import (
	"github.com/globalnexus/streamvault/app/models"
	"github.com/globalnexus/streamvault/app/repository"
	"github.com/globalnexus/streamvault/internal/pkg/entitlements"
	"github.com/globalnexus/streamvault/internal/pkg/mail"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

var reconciler *Reconciler

// SetupReconciler wires the process-wide reconciler with both provider
// gateways and resumes any in-flight intents. Called once at startup.
func SetupReconciler(db *gorm.DB) *Reconciler {
	r := NewReconciler(NewRepository(db), entitlements.NewStore(db))
	r.Register(NewPesapalClientFromEnv())
	r.Register(NewRelworxClientFromEnv())

	if mail.Enabled() {
		r.OnSettled(func(intent *models.PaymentIntent) {
			user, err := repository.GetGlobalRepositories().User.GetByID(intent.UserID)
			if err != nil {
				log.Warnf("[Payment] receipt mail skipped, user %d: %v", intent.UserID, err)
				return
			}
			mail.SendPaymentReceipt(user, intent)
		})
	}

	if err := r.ResumePolling(); err != nil {
		log.Errorf("[Payment] resuming in-flight intents: %v", err)
	}

	reconciler = r
	return r
}

// GetReconciler returns the process-wide reconciler.
func GetReconciler() *Reconciler {
	return reconciler
}

// SetReconciler replaces the process-wide reconciler. Used by tests.
func SetReconciler(r *Reconciler) {
	reconciler = r
}

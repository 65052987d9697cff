package repository

import (
	"time"

	"github.com/ManuelReschke/PixelPremium/app/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UserRepository defines the user operations the entitlement engine needs,
// including writes to the denormalized premium snapshot.
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	LockByID(id uint) (*models.User, error)
	SetPremiumSnapshot(userID uint, until time.Time, features datatypes.JSON) error
	ClearPremiumSnapshot(userID uint) (int64, error)
	ClearExpiredPremiumSnapshot(userID uint, now time.Time) (int64, error)
	ListStalePremiumUserIDs(now time.Time, limit int) ([]uint, error)
}

// PlanRepository defines the interface for plan catalog operations
type PlanRepository interface {
	GetByID(id uint) (*models.Plan, error)
	GetByCode(code string) (*models.Plan, error)
	List(activeOnly bool) ([]models.Plan, error)
	CreateIfNotExists(plan *models.Plan) (bool, error)
	SetActive(id uint, active bool) (int64, error)
}

// SubscriptionRepository defines the interface for subscription ledger operations
type SubscriptionRepository interface {
	Create(sub *models.Subscription) error
	GetByID(id uint) (*models.Subscription, error)
	ListByUser(userID uint) ([]models.Subscription, error)
	ListEntitling(userID uint, now time.Time) ([]models.Subscription, error)
	ListByUserAndStatus(userID uint, status string) ([]models.Subscription, error)
	SupersedeEntitling(userID uint, now time.Time, reason string) (int64, error)
	Transition(id uint, from, to string, fields map[string]interface{}) (int64, error)
	ListOverdue(now time.Time, limit int) ([]models.Subscription, error)
	ExpireOverdue(ids []uint, now time.Time) (int64, error)
}

// PaymentRepository defines the interface for the append-only payment ledger
type PaymentRepository interface {
	Create(payment *models.Payment) error
	GetByID(id uint) (*models.Payment, error)
	GetByExternalTxID(externalTxID string) (*models.Payment, error)
	GetRefundOf(paymentID uint) (*models.Payment, error)
	ListByUser(userID uint) ([]models.Payment, error)
}

// FeatureUsageRepository defines the interface for per-feature usage counters
type FeatureUsageRepository interface {
	Increment(userID uint, featureName string, at time.Time) error
	Get(userID uint, featureName string) (*models.FeatureUsage, error)
	ListByUser(userID uint) ([]models.FeatureUsage, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User         UserRepository
	Plan         PlanRepository
	Subscription SubscriptionRepository
	Payment      PaymentRepository
	FeatureUsage FeatureUsageRepository
}

// NewRepositories creates a new instance of all repositories bound to db.
// Pass a transaction handle to get repositories that write inside that transaction.
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Plan:         NewPlanRepository(db),
		Subscription: NewSubscriptionRepository(db),
		Payment:      NewPaymentRepository(db),
		FeatureUsage: NewFeatureUsageRepository(db),
	}
}

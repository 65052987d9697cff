package repository

import (
	"time"

	"github.com/ManuelReschke/PixelPremium/app/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// LockByID loads the user row with SELECT ... FOR UPDATE. Every ledger
// transaction takes this lock first, which serializes writers per user.
func (r *userRepository) LockByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SetPremiumSnapshot overwrites the snapshot with an active entitlement.
func (r *userRepository) SetPremiumSnapshot(userID uint, until time.Time, features datatypes.JSON) error {
	return r.db.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"is_premium":       true,
		"premium_until":    until,
		"premium_features": features,
	}).Error
}

// ClearPremiumSnapshot resets the snapshot to the non-premium state.
func (r *userRepository) ClearPremiumSnapshot(userID uint) (int64, error) {
	tx := r.db.Model(&models.User{}).Where("id = ?", userID).Updates(clearedSnapshot())
	return tx.RowsAffected, tx.Error
}

// ClearExpiredPremiumSnapshot clears the snapshot only while it is still
// premium and past its end, so a purchase committed in between is not undone.
func (r *userRepository) ClearExpiredPremiumSnapshot(userID uint, now time.Time) (int64, error) {
	tx := r.db.Model(&models.User{}).
		Where("id = ? AND is_premium = ? AND (premium_until IS NULL OR premium_until <= ?)", userID, true, now).
		Updates(clearedSnapshot())
	return tx.RowsAffected, tx.Error
}

// ListStalePremiumUserIDs returns users flagged premium without any active, unexpired subscription.
func (r *userRepository) ListStalePremiumUserIDs(now time.Time, limit int) ([]uint, error) {
	var ids []uint
	query := r.db.Model(&models.User{}).
		Where("is_premium = ?", true).
		Where("NOT EXISTS (SELECT 1 FROM subscriptions s WHERE s.user_id = users.id AND s.status = ? AND s.end_date > ?)",
			models.SubscriptionStatusActive, now).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Pluck("id", &ids).Error
	return ids, err
}

func clearedSnapshot() map[string]interface{} {
	return map[string]interface{}{
		"is_premium":       false,
		"premium_until":    nil,
		"premium_features": models.NewFeatureSet().JSON(),
	}
}

package repository

import (
	"fmt"
	"time"

	"github.com/ManuelReschke/PixelPremium/app/models"
	"gorm.io/gorm"
)

// subscriptionRepository implements the SubscriptionRepository interface
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// Create inserts a new subscription row
func (r *subscriptionRepository) Create(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

// GetByID retrieves a subscription by its ID
func (r *subscriptionRepository) GetByID(id uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.First(&sub, id).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListByUser returns the full history of a user's subscriptions, newest first
func (r *subscriptionRepository) ListByUser(userID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("user_id = ?", userID).Order("id DESC").Find(&subs).Error
	return subs, err
}

// ListEntitling returns active, unexpired subscriptions; the first element is the winner.
func (r *subscriptionRepository) ListEntitling(userID uint, now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("user_id = ? AND status = ? AND end_date > ?", userID, models.SubscriptionStatusActive, now).
		Order("end_date DESC").Order("id DESC").
		Find(&subs).Error
	return subs, err
}

// ListByUserAndStatus returns a user's subscriptions in the given status
func (r *subscriptionRepository) ListByUserAndStatus(userID uint, status string) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("user_id = ? AND status = ?", userID, status).Order("id ASC").Find(&subs).Error
	return subs, err
}

// SupersedeEntitling cancels every active, unexpired subscription of the user.
func (r *subscriptionRepository) SupersedeEntitling(userID uint, now time.Time, reason string) (int64, error) {
	tx := r.db.Model(&models.Subscription{}).
		Where("user_id = ? AND status = ? AND end_date > ?", userID, models.SubscriptionStatusActive, now).
		Updates(map[string]interface{}{
			"status":              models.SubscriptionStatusCancelled,
			"cancelled_at":        now,
			"cancellation_reason": reason,
			"auto_renew":          false,
		})
	return tx.RowsAffected, tx.Error
}

// Transition moves a single row from one status to another. The update is
// conditional on the current status, so a concurrent change yields zero rows.
func (r *subscriptionRepository) Transition(id uint, from, to string, fields map[string]interface{}) (int64, error) {
	if !models.CanTransition(from, to) {
		return 0, fmt.Errorf("subscription transition %s -> %s is not allowed", from, to)
	}
	updates := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = to

	tx := r.db.Model(&models.Subscription{}).Where("id = ? AND status = ?", id, from).Updates(updates)
	return tx.RowsAffected, tx.Error
}

// ListOverdue returns active subscriptions whose end date has passed
func (r *subscriptionRepository) ListOverdue(now time.Time, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	query := r.db.
		Where("status = ? AND end_date <= ?", models.SubscriptionStatusActive, now).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&subs).Error
	return subs, err
}

// ExpireOverdue marks the given subscriptions expired in one statement. Rows
// that are no longer active or not yet overdue are left alone.
func (r *subscriptionRepository) ExpireOverdue(ids []uint, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx := r.db.Model(&models.Subscription{}).
		Where("id IN ? AND status = ? AND end_date <= ?", ids, models.SubscriptionStatusActive, now).
		Update("status", models.SubscriptionStatusExpired)
	return tx.RowsAffected, tx.Error
}

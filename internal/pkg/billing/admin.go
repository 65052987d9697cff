package billing

import (
	"context"
	"strings"

	"github.com/ManuelReschke/PixelPremium/app/models"
	"github.com/ManuelReschke/PixelPremium/app/repository"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const defaultRevokeReason = "revoked by admin"

// RevokeResult counts the rows a revoke touched.
type RevokeResult struct {
	CancelledCount int
	// FailedPendingCount is the number of pending subscriptions moved to failed.
	FailedPendingCount int
}

// AdminOverride grants and revokes premium outside the payment flow.
type AdminOverride struct {
	engine
}

func NewAdminOverride(db *gorm.DB, opts ...Option) *AdminOverride {
	return &AdminOverride{engine: newEngine(db, opts)}
}

// GiveAdminPremium activates planID for durationDays with a zero-amount
// payment record flagged as admin-given.
func (a *AdminOverride) GiveAdminPremium(ctx context.Context, userID, planID uint, durationDays int, reason string) (*models.Subscription, error) {
	if userID == 0 || planID == 0 {
		return nil, invalidInput("user id and plan id are required")
	}
	if durationDays <= 0 {
		return nil, invalidInput("duration must be at least one day, got %d", durationDays)
	}

	var sub *models.Subscription
	err := a.inTx(ctx, "give admin premium", func(r *repository.Repositories) error {
		var err error
		sub, err = activate(r, grant{
			UserID:        userID,
			PlanID:        planID,
			DurationDays:  durationDays,
			PaymentMethod: models.PaymentMethodAdmin,
			ExternalTxID:  "admin-" + uuid.NewString(),
			Amount:        decimal.Zero,
			IsAdminGiven:  true,
			GrantReason:   strings.TrimSpace(reason),
		}, a.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Infof("[Billing] Admin granted plan %d to user %d for %d days (subscription %d)", planID, userID, durationDays, sub.ID)
	return sub, nil
}

// RevokeAdminPremium cancels every active subscription of the user, fails
// pending ones and clears the entitlement snapshot in the same transaction.
func (a *AdminOverride) RevokeAdminPremium(ctx context.Context, userID uint, reason string) (*RevokeResult, error) {
	if userID == 0 {
		return nil, invalidInput("user id is required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultRevokeReason
	}
	now := a.now()

	result := &RevokeResult{}
	err := a.inTx(ctx, "revoke admin premium", func(r *repository.Repositories) error {
		if _, err := r.User.LockByID(userID); err != nil {
			if notFound(err) {
				return ErrUserNotFound
			}
			return err
		}

		active, err := r.Subscription.ListEntitling(userID, now)
		if err != nil {
			return err
		}
		for _, sub := range active {
			n, err := r.Subscription.Transition(sub.ID, models.SubscriptionStatusActive, models.SubscriptionStatusCancelled, map[string]interface{}{
				"cancelled_at":        now,
				"cancellation_reason": reason,
				"auto_renew":          false,
			})
			if err != nil {
				return err
			}
			result.CancelledCount += int(n)
		}

		pending, err := r.Subscription.ListByUserAndStatus(userID, models.SubscriptionStatusPending)
		if err != nil {
			return err
		}
		for _, sub := range pending {
			n, err := r.Subscription.Transition(sub.ID, models.SubscriptionStatusPending, models.SubscriptionStatusFailed, map[string]interface{}{
				"cancellation_reason": reason,
			})
			if err != nil {
				return err
			}
			result.FailedPendingCount += int(n)
		}

		_, err = r.User.ClearPremiumSnapshot(userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Infof("[Billing] Admin revoked premium of user %d: %d cancelled, %d pending failed (%s)",
		userID, result.CancelledCount, result.FailedPendingCount, reason)
	return result, nil
}

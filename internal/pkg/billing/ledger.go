package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/PixelPremium/app/models"
	"github.com/ManuelReschke/PixelPremium/app/repository"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CreateSubscriptionInput describes a completed purchase. The caller has
// already collected the payment.
type CreateSubscriptionInput struct {
	UserID          uint            `validate:"required"`
	PlanID          uint            `validate:"required"`
	PaymentMethod   string          `validate:"required,max=32"`
	ExternalTxID    string          `validate:"required,max=191"`
	AmountPaid      decimal.Decimal `validate:"-"`
	AutoRenew       bool            `validate:"-"`
	GatewayResponse datatypes.JSON  `validate:"-"`
}

// Ledger creates, cancels and reads subscription rows.
type Ledger struct {
	engine
}

func NewLedger(db *gorm.DB, opts ...Option) *Ledger {
	return &Ledger{engine: newEngine(db, opts)}
}

// CreateSubscription supersedes the user's active subscription, inserts the
// new one with its payment record and overwrites the entitlement snapshot,
// all in one transaction.
func (l *Ledger) CreateSubscription(ctx context.Context, in CreateSubscriptionInput) (*models.Subscription, error) {
	in.PaymentMethod = strings.TrimSpace(in.PaymentMethod)
	in.ExternalTxID = strings.TrimSpace(in.ExternalTxID)
	if err := l.check(in); err != nil {
		return nil, err
	}
	if in.PaymentMethod == models.PaymentMethodAdmin {
		return nil, invalidInput("payment method %q is reserved for admin grants", in.PaymentMethod)
	}
	if in.AmountPaid.IsNegative() {
		return nil, invalidInput("amount paid must not be negative")
	}

	var sub *models.Subscription
	err := l.inTx(ctx, "create subscription", func(r *repository.Repositories) error {
		var err error
		sub, err = activate(r, grant{
			UserID:          in.UserID,
			PlanID:          in.PlanID,
			PaymentMethod:   in.PaymentMethod,
			ExternalTxID:    in.ExternalTxID,
			Amount:          in.AmountPaid,
			AutoRenew:       in.AutoRenew,
			GatewayResponse: in.GatewayResponse,
		}, l.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Infof("[Billing] User %d subscribed to plan %d until %s (subscription %d)",
		sub.UserID, sub.PlanID, sub.EndDate.Format(time.RFC3339), sub.ID)
	return sub, nil
}

// CancelSubscription moves one of the user's subscriptions from active to
// cancelled. The entitlement snapshot is left for the resolver and the sweep.
func (l *Ledger) CancelSubscription(ctx context.Context, userID, subscriptionID uint, reason string) (*models.Subscription, error) {
	if userID == 0 || subscriptionID == 0 {
		return nil, ErrSubscriptionNotFound
	}
	now := l.now()

	var sub *models.Subscription
	err := l.inTx(ctx, "cancel subscription", func(r *repository.Repositories) error {
		if _, err := r.User.LockByID(userID); err != nil {
			if notFound(err) {
				return ErrSubscriptionNotFound
			}
			return err
		}

		current, err := r.Subscription.GetByID(subscriptionID)
		if notFound(err) {
			return ErrSubscriptionNotFound
		}
		if err != nil {
			return err
		}
		if current.UserID != userID {
			return ErrSubscriptionNotFound
		}
		if !models.CanTransition(current.Status, models.SubscriptionStatusCancelled) {
			return fmt.Errorf("%w: subscription %d is %s", ErrInvalidTransition, current.ID, current.Status)
		}

		n, err := r.Subscription.Transition(current.ID, current.Status, models.SubscriptionStatusCancelled, map[string]interface{}{
			"cancelled_at":        now,
			"cancellation_reason": strings.TrimSpace(reason),
			"auto_renew":          false,
		})
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: subscription %d changed concurrently", ErrInvalidTransition, current.ID)
		}

		sub, err = r.Subscription.GetByID(current.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Infof("[Billing] User %d cancelled subscription %d", userID, sub.ID)
	return sub, nil
}

// GetActiveSubscription returns the subscription that currently entitles the user.
func (l *Ledger) GetActiveSubscription(ctx context.Context, userID uint) (*models.Subscription, error) {
	repos, cancel := l.reader(ctx)
	defer cancel()

	subs, err := repos.Subscription.ListEntitling(userID, l.now())
	if err != nil {
		return nil, storeFailure("get active subscription", err)
	}
	if len(subs) == 0 {
		return nil, ErrSubscriptionNotFound
	}
	return &subs[0], nil
}

// ListSubscriptions returns the user's full subscription history, newest first.
func (l *Ledger) ListSubscriptions(ctx context.Context, userID uint) ([]models.Subscription, error) {
	repos, cancel := l.reader(ctx)
	defer cancel()

	subs, err := repos.Subscription.ListByUser(userID)
	if err != nil {
		return nil, storeFailure("list subscriptions", err)
	}
	return subs, nil
}

// grant is one activation of a plan, paid or admin-given.
type grant struct {
	UserID          uint
	PlanID          uint
	DurationDays    int // zero uses the plan's duration
	PaymentMethod   string
	ExternalTxID    string
	Amount          decimal.Decimal
	AutoRenew       bool
	IsAdminGiven    bool
	GrantReason     string
	GatewayResponse datatypes.JSON
}

// activate runs the supersede-then-insert sequence on repositories bound to a
// transaction. The user row lock serializes concurrent activations per user.
func activate(r *repository.Repositories, g grant, now time.Time) (*models.Subscription, error) {
	plan, err := r.Plan.GetByID(g.PlanID)
	if notFound(err) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, ErrPlanInactive
	}
	features, err := plan.FeatureSet()
	if err != nil {
		return nil, fmt.Errorf("%w: plan %d: %v", ErrMalformedFeatureData, plan.ID, err)
	}

	if _, err := r.User.LockByID(g.UserID); err != nil {
		if notFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if _, err := r.Payment.GetByExternalTxID(g.ExternalTxID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTransaction, g.ExternalTxID)
	} else if !notFound(err) {
		return nil, err
	}

	days := g.DurationDays
	if days == 0 {
		days = plan.DurationDays
	}
	end := now.AddDate(0, 0, days)

	superseded, err := r.Subscription.SupersedeEntitling(g.UserID, now, models.CancelReasonSuperseded)
	if err != nil {
		return nil, err
	}

	frozen := features.Clone().JSON()
	sub := &models.Subscription{
		UserID:        g.UserID,
		PlanID:        plan.ID,
		Status:        models.SubscriptionStatusActive,
		StartDate:     now,
		EndDate:       end,
		PaymentMethod: g.PaymentMethod,
		ExternalTxID:  g.ExternalTxID,
		AmountPaid:    g.Amount,
		Currency:      plan.Currency,
		AutoRenew:     g.AutoRenew,
		IsAdminGiven:  g.IsAdminGiven,
		GrantReason:   g.GrantReason,
		Features:      frozen,
	}
	if err := r.Subscription.Create(sub); err != nil {
		return nil, err
	}

	payment := &models.Payment{
		UserID:          g.UserID,
		SubscriptionID:  &sub.ID,
		PlanID:          plan.ID,
		Amount:          g.Amount,
		Currency:        plan.Currency,
		Status:          models.PaymentStatusCompleted,
		PaymentMethod:   g.PaymentMethod,
		ExternalTxID:    g.ExternalTxID,
		GatewayResponse: g.GatewayResponse,
		IsAdminGiven:    g.IsAdminGiven,
	}
	if err := recordPayment(r, payment); err != nil {
		return nil, err
	}

	if err := r.User.SetPremiumSnapshot(g.UserID, end, frozen); err != nil {
		return nil, err
	}

	log.Debugf("[Billing] User %d: plan %s staged as subscription %d, superseded %d", g.UserID, plan.Code, sub.ID, superseded)
	return sub, nil
}

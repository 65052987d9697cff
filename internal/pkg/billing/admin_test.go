package billing

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ManuelReschke/PixelPremium/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGiveAdminPremium(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kim := f.user(t, "kim")

	sub, err := f.admin.GiveAdminPremium(ctx, kim.ID, f.gold.ID, 7, "support compensation")
	require.NoError(t, err)

	assert.True(t, sub.IsAdminGiven)
	assert.Equal(t, models.PaymentMethodAdmin, sub.PaymentMethod)
	assert.Equal(t, "support compensation", sub.GrantReason)
	assert.True(t, sub.AmountPaid.IsZero())
	assertSameTime(t, day(2023, time.December, 18), sub.EndDate)
	assertFeatures(t, f.gold.Features, sub.Features)

	var payments []models.Payment
	require.NoError(t, f.db.Where("user_id = ?", kim.ID).Find(&payments).Error)
	require.Len(t, payments, 1)
	assert.True(t, payments[0].Amount.IsZero())
	assert.True(t, payments[0].IsAdminGiven)
	assert.Equal(t, models.PaymentStatusCompleted, payments[0].Status)
	assert.True(t, strings.HasPrefix(payments[0].ExternalTxID, "admin-"))

	user := f.reloadUser(t, kim.ID)
	assert.True(t, user.IsPremium)
	require.NotNil(t, user.PremiumUntil)
	assertSameTime(t, day(2023, time.December, 18), *user.PremiumUntil)
}

func TestGiveAdminPremiumSupersedesPaidSubscription(t *testing.T) {
	f := newFixture(t)
	lee := f.user(t, "lee")
	paid := f.buy(t, lee.ID, f.gold, "tx-paid")

	granted, err := f.admin.GiveAdminPremium(context.Background(), lee.ID, f.platinum.ID, 90, "")
	require.NoError(t, err)

	assert.Equal(t, models.SubscriptionStatusCancelled, f.reloadSubscription(t, paid.ID).Status)
	assert.Equal(t, int64(1), f.entitlingCount(t, lee.ID))
	assertFeatures(t, f.platinum.Features, f.reloadUser(t, lee.ID).PremiumFeatures)
	assertSameTime(t, day(2024, time.March, 10), granted.EndDate)
}

func TestGiveAdminPremiumValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mia := f.user(t, "mia")

	_, err := f.admin.GiveAdminPremium(ctx, mia.ID, f.gold.ID, 0, "zero days")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.admin.GiveAdminPremium(ctx, mia.ID, 9999, 30, "no plan")
	assert.ErrorIs(t, err, ErrPlanNotFound)

	_, err = f.admin.GiveAdminPremium(ctx, 9999, f.gold.ID, 30, "no user")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRevokeAdminPremiumClearsImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ned := f.user(t, "ned")
	sub := f.buy(t, ned.ID, f.platinum, "tx-ned")

	pending := &models.Subscription{
		UserID:        ned.ID,
		PlanID:        f.gold.ID,
		Status:        models.SubscriptionStatusPending,
		StartDate:     f.clock.Now(),
		EndDate:       f.clock.Now().AddDate(0, 0, 30),
		PaymentMethod: "card",
		ExternalTxID:  "tx-pending",
		Currency:      "EUR",
		Features:      f.gold.Features,
	}
	require.NoError(t, f.db.Create(pending).Error)

	result, err := f.admin.RevokeAdminPremium(ctx, ned.ID, "chargeback")
	require.NoError(t, err)
	assert.Equal(t, 1, result.CancelledCount)
	assert.Equal(t, 1, result.FailedPendingCount)

	user := f.reloadUser(t, ned.ID)
	assert.False(t, user.IsPremium)
	assert.Nil(t, user.PremiumUntil)
	assert.False(t, user.HasPremiumSnapshot())

	cancelled := f.reloadSubscription(t, sub.ID)
	assert.Equal(t, models.SubscriptionStatusCancelled, cancelled.Status)
	assert.Equal(t, "chargeback", cancelled.CancellationReason)
	assert.False(t, cancelled.AutoRenew)

	assert.Equal(t, models.SubscriptionStatusFailed, f.reloadSubscription(t, pending.ID).Status)
	assert.Zero(t, f.entitlingCount(t, ned.ID))
}

func TestRevokeAdminPremiumWithoutSubscriptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ola := f.user(t, "ola")

	result, err := f.admin.RevokeAdminPremium(ctx, ola.ID, "")
	require.NoError(t, err)
	assert.Zero(t, result.CancelledCount)
	assert.Zero(t, result.FailedPendingCount)

	_, err = f.admin.RevokeAdminPremium(ctx, 9999, "")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ManuelReschke/PixelPremium/app/models"
	"github.com/ManuelReschke/PixelPremium/internal/pkg/testdb"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	db       *gorm.DB
	clock    *testClock
	catalog  *Catalog
	ledger   *Ledger
	payments *PaymentRecorder
	admin    *AdminOverride
	sweeper  *Sweeper
	gold     *models.Plan
	platinum *models.Plan
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	db := testdb.New(t)
	clock := &testClock{now: day(2023, time.December, 11)}
	opts = append([]Option{WithClock(clock.Now), WithTimeout(5 * time.Second)}, opts...)

	f := &fixture{
		db:       db,
		clock:    clock,
		catalog:  NewCatalog(db, opts...),
		ledger:   NewLedger(db, opts...),
		payments: NewPaymentRecorder(db, opts...),
		admin:    NewAdminOverride(db, opts...),
		sweeper:  NewSweeper(db, opts...),
	}

	plans := []models.Plan{
		{
			Code:         "gold",
			Name:         "Gold",
			Price:        decimal.RequireFromString("49.90"),
			Currency:     "EUR",
			DurationDays: 30,
			Features:     mustFeatures(t, map[string]any{"hd_upload": true, "ad_free": true, "max_albums": 50}),
			IsActive:     true,
			DisplayOrder: 1,
		},
		{
			Code:         "platinum",
			Name:         "Platinum",
			Price:        decimal.RequireFromString("99.90"),
			Currency:     "EUR",
			DurationDays: 30,
			Features:     mustFeatures(t, map[string]any{"hd_upload": true, "ad_free": true, "raw_download": true, "max_albums": 500}),
			IsActive:     true,
			DisplayOrder: 2,
		},
	}
	_, err := f.catalog.SeedPlans(context.Background(), plans)
	require.NoError(t, err)
	f.gold = &plans[0]
	f.platinum = &plans[1]
	return f
}

func mustFeatures(t *testing.T, in map[string]any) datatypes.JSON {
	t.Helper()
	fs, err := models.FeatureSetFromMap(in)
	require.NoError(t, err)
	return fs.JSON()
}

func (f *fixture) user(t *testing.T, name string) *models.User {
	return testdb.CreateUser(t, f.db, name)
}

func (f *fixture) buy(t *testing.T, userID uint, plan *models.Plan, txID string) *models.Subscription {
	t.Helper()
	sub, err := f.ledger.CreateSubscription(context.Background(), CreateSubscriptionInput{
		UserID:        userID,
		PlanID:        plan.ID,
		PaymentMethod: "card",
		ExternalTxID:  txID,
		AmountPaid:    plan.Price,
	})
	require.NoError(t, err)
	return sub
}

func (f *fixture) reloadUser(t *testing.T, id uint) *models.User {
	t.Helper()
	var user models.User
	require.NoError(t, f.db.First(&user, id).Error)
	return &user
}

func (f *fixture) reloadSubscription(t *testing.T, id uint) *models.Subscription {
	t.Helper()
	var sub models.Subscription
	require.NoError(t, f.db.First(&sub, id).Error)
	return &sub
}

// entitlingCount counts rows that are active and unexpired at the clock's now.
func (f *fixture) entitlingCount(t *testing.T, userID uint) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&models.Subscription{}).
		Where("user_id = ? AND status = ? AND end_date > ?", userID, models.SubscriptionStatusActive, f.clock.Now()).
		Count(&count).Error)
	return count
}

func assertSameTime(t *testing.T, want, got time.Time) {
	t.Helper()
	assert.True(t, want.Equal(got), "want %s, got %s", want, got)
}

func assertFeatures(t *testing.T, want datatypes.JSON, got datatypes.JSON) {
	t.Helper()
	wantSet, err := models.ParseFeatureSet(want)
	require.NoError(t, err)
	gotSet, err := models.ParseFeatureSet(got)
	require.NoError(t, err)
	assert.Equal(t, wantSet.Map(), gotSet.Map())
}

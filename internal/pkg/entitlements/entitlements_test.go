package entitlements

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ManuelReschke/PixelPremium/app/models"
	"github.com/ManuelReschke/PixelPremium/internal/pkg/billing"
	"github.com/ManuelReschke/PixelPremium/internal/pkg/testdb"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var start = time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)

type fixture struct {
	db       *gorm.DB
	now      time.Time
	mu       sync.Mutex
	resolver *Resolver
	usage    *UsageTracker
	ledger   *billing.Ledger
	plan     *models.Plan
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) setNow(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testdb.New(t)
	f := &fixture{db: db, now: start}
	f.usage = NewUsageTracker(db, WithClock(f.clock))
	f.resolver = NewResolver(db, f.usage, WithClock(f.clock))
	f.ledger = billing.NewLedger(db, billing.WithClock(f.clock))

	features, err := models.FeatureSetFromMap(map[string]any{
		"hd_upload":    true,
		"raw_download": false,
		"max_albums":   50,
	})
	require.NoError(t, err)

	plans := []models.Plan{{
		Code:         "gold",
		Name:         "Gold",
		Price:        decimal.RequireFromString("49.90"),
		Currency:     "EUR",
		DurationDays: 30,
		Features:     features.JSON(),
		IsActive:     true,
	}}
	_, err = billing.NewCatalog(db).SeedPlans(context.Background(), plans)
	require.NoError(t, err)
	f.plan = &plans[0]
	return f
}

func (f *fixture) premiumUser(t *testing.T, name string) *models.User {
	t.Helper()
	user := testdb.CreateUser(t, f.db, name)
	_, err := f.ledger.CreateSubscription(context.Background(), billing.CreateSubscriptionInput{
		UserID:        user.ID,
		PlanID:        f.plan.ID,
		PaymentMethod: "card",
		ExternalTxID:  "tx-" + name,
		AmountPaid:    f.plan.Price,
	})
	require.NoError(t, err)
	return user
}

func TestCheckUserPremiumStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.premiumUser(t, "alice")
	bob := testdb.CreateUser(t, f.db, "bob")

	status, err := f.resolver.CheckUserPremiumStatus(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, status.IsPremium)
	require.NotNil(t, status.PremiumUntil)
	assert.True(t, status.PremiumUntil.Equal(time.Date(2024, time.February, 4, 0, 0, 0, 0, time.UTC)))
	assert.True(t, status.Features.Enabled("hd_upload"))

	status, err = f.resolver.CheckUserPremiumStatus(ctx, bob.ID)
	require.NoError(t, err)
	assert.False(t, status.IsPremium)
	assert.Nil(t, status.PremiumUntil)
	assert.Zero(t, status.Features.Len())

	_, err = f.resolver.CheckUserPremiumStatus(ctx, 9999)
	assert.ErrorIs(t, err, billing.ErrUserNotFound)
}

func TestCheckUserPremiumStatusHealsExpiredSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	carol := f.premiumUser(t, "carol")

	// One second past the end, before any sweep ran.
	f.setNow(time.Date(2024, time.February, 4, 0, 0, 1, 0, time.UTC))
	status, err := f.resolver.CheckUserPremiumStatus(ctx, carol.ID)
	require.NoError(t, err)
	assert.False(t, status.IsPremium)
	assert.Nil(t, status.PremiumUntil)

	var user models.User
	require.NoError(t, f.db.First(&user, carol.ID).Error)
	assert.False(t, user.IsPremium)
	assert.Nil(t, user.PremiumUntil)

	// The subscription row itself is left for the sweep.
	var sub models.Subscription
	require.NoError(t, f.db.Where("user_id = ?", carol.ID).First(&sub).Error)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
}

func TestCheckUserPremiumStatusExactEndIsExpired(t *testing.T) {
	f := newFixture(t)
	dave := f.premiumUser(t, "dave")

	f.setNow(time.Date(2024, time.February, 4, 0, 0, 0, 0, time.UTC))
	status, err := f.resolver.CheckUserPremiumStatus(context.Background(), dave.ID)
	require.NoError(t, err)
	assert.False(t, status.IsPremium)
}

func TestCheckUserPremiumStatusDegradesMalformedFeatures(t *testing.T) {
	f := newFixture(t)
	erin := f.premiumUser(t, "erin")
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", erin.ID).
		Update("premium_features", datatypes.JSON(`{"hd_upload":"definitely"}`)).Error)

	status, err := f.resolver.CheckUserPremiumStatus(context.Background(), erin.ID)
	require.NoError(t, err)
	assert.True(t, status.IsPremium)
	assert.Zero(t, status.Features.Len())

	decision, err := f.resolver.RequireFeature(context.Background(), erin.ID, "hd_upload")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonFeatureNotIncluded, decision.Reason)
}

func TestCheckUserPremiumStatusReadsLegacyFeatures(t *testing.T) {
	f := newFixture(t)
	gina := f.premiumUser(t, "gina")
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", gina.ID).
		Update("premium_features", datatypes.JSON(`"{\"hd_upload\":true}"`)).Error)

	status, err := f.resolver.CheckUserPremiumStatus(context.Background(), gina.ID)
	require.NoError(t, err)
	assert.True(t, status.Features.Enabled("hd_upload"))
}

func TestRequireFeature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hank := f.premiumUser(t, "hank")
	free := testdb.CreateUser(t, f.db, "ivy")

	tests := []struct {
		name    string
		userID  uint
		feature string
		allowed bool
		reason  string
	}{
		{name: "enabled feature", userID: hank.ID, feature: "hd_upload", allowed: true},
		{name: "present but false", userID: hank.ID, feature: "raw_download", reason: ReasonFeatureNotIncluded},
		{name: "numeric value is not a grant", userID: hank.ID, feature: "max_albums", reason: ReasonFeatureNotIncluded},
		{name: "absent feature", userID: hank.ID, feature: "video_upload", reason: ReasonFeatureNotIncluded},
		{name: "non-premium user", userID: free.ID, feature: "hd_upload", reason: ReasonPremiumRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := f.resolver.RequireFeature(ctx, tt.userID, tt.feature)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, decision.Allowed)
			assert.Equal(t, tt.reason, decision.Reason)
		})
	}

	usage, err := f.usage.ListUsage(ctx, hank.ID)
	require.NoError(t, err)
	require.Len(t, usage, 1, "only allowed calls are counted")
	assert.Equal(t, "hd_upload", usage[0].FeatureName)
	assert.Equal(t, int64(1), usage[0].UsageCount)

	_, err = f.resolver.RequireFeature(ctx, hank.ID, " ")
	assert.ErrorIs(t, err, billing.ErrInvalidInput)
}

func TestTrackUsageUpsertsOneRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jack := testdb.CreateUser(t, f.db, "jack")

	for i := 0; i < 3; i++ {
		f.setNow(start.Add(time.Duration(i) * time.Minute))
		require.NoError(t, f.usage.TrackUsage(ctx, jack.ID, "hd_upload"))
	}

	var rows []models.FeatureUsage
	require.NoError(t, f.db.Where("user_id = ? AND feature_name = ?", jack.ID, "hd_upload").Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0].UsageCount)
	assert.True(t, rows[0].LastUsedAt.Equal(start.Add(2*time.Minute)))

	usage, err := f.usage.GetUsage(ctx, jack.ID, "hd_upload")
	require.NoError(t, err)
	assert.Equal(t, int64(3), usage.UsageCount)

	unused, err := f.usage.GetUsage(ctx, jack.ID, "raw_download")
	require.NoError(t, err)
	assert.Zero(t, unused.UsageCount)
}

func TestTrackUsageConcurrent(t *testing.T) {
	f := newFixture(t)
	kim := testdb.CreateUser(t, f.db, "kim")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.usage.TrackUsage(context.Background(), kim.ID, "hd_upload"))
		}()
	}
	wg.Wait()

	usage, err := f.usage.ListUsage(context.Background(), kim.ID)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, int64(10), usage[0].UsageCount)
}

func TestTrackUsageValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.usage.TrackUsage(ctx, 0, "hd_upload"), billing.ErrInvalidInput)
	assert.ErrorIs(t, f.usage.TrackUsage(ctx, 1, ""), billing.ErrInvalidInput)

	long := make([]byte, maxFeatureNameLength+1)
	for i := range long {
		long[i] = 'a'
	}
	assert.ErrorIs(t, f.usage.TrackUsage(ctx, 1, string(long)), billing.ErrInvalidInput)
}

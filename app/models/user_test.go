package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestUserPremiumExpired(t *testing.T) {
	now := time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	assert.False(t, (&User{}).PremiumExpired(now))
	assert.True(t, (&User{IsPremium: true}).PremiumExpired(now), "premium without an end date counts as expired")
	assert.True(t, (&User{IsPremium: true, PremiumUntil: &past}).PremiumExpired(now))
	assert.True(t, (&User{IsPremium: true, PremiumUntil: &now}).PremiumExpired(now))
	assert.False(t, (&User{IsPremium: true, PremiumUntil: &future}).PremiumExpired(now))
}

func TestUserHasPremiumSnapshot(t *testing.T) {
	until := time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)

	assert.False(t, (&User{}).HasPremiumSnapshot())
	assert.False(t, (&User{PremiumFeatures: NewFeatureSet().JSON()}).HasPremiumSnapshot())
	assert.True(t, (&User{IsPremium: true}).HasPremiumSnapshot())
	assert.True(t, (&User{PremiumUntil: &until}).HasPremiumSnapshot())
	assert.True(t, (&User{PremiumFeatures: datatypes.JSON(`{"hd_upload":true}`)}).HasPremiumSnapshot())
	assert.True(t, (&User{PremiumFeatures: datatypes.JSON(`garbage`)}).HasPremiumSnapshot())
}

func TestUserSnapshotEquals(t *testing.T) {
	until := time.Date(2024, time.February, 4, 0, 0, 0, 0, time.UTC)
	features, err := FeatureSetFromMap(map[string]any{"hd_upload": true, "max_albums": 50})
	require.NoError(t, err)

	user := &User{IsPremium: true, PremiumUntil: &until, PremiumFeatures: features.JSON()}
	assert.True(t, user.SnapshotEquals(until, features))
	assert.True(t, user.SnapshotEquals(until.In(time.FixedZone("CET", 3600)), features))
	assert.False(t, user.SnapshotEquals(until.Add(time.Second), features))

	other, err := FeatureSetFromMap(map[string]any{"hd_upload": true, "max_albums": 500})
	require.NoError(t, err)
	assert.False(t, user.SnapshotEquals(until, other))

	user.IsPremium = false
	assert.False(t, user.SnapshotEquals(until, features))
}

func TestUserValidate(t *testing.T) {
	user := &User{Name: "alice", Email: "alice@example.com", Role: ROLE_USER, Status: STATUS_ACTIVE}
	assert.NoError(t, user.Validate())

	user.Email = "not-an-email"
	assert.Error(t, user.Validate())

	user.Email = "alice@example.com"
	user.Role = "owner"
	assert.Error(t, user.Validate())

	user.Role = ROLE_USER
	user.Name = "al"
	assert.Error(t, user.Validate())
}

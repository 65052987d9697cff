package billing

import (
	"context"
	"testing"

	"github.com/ManuelReschke/PixelPremium/app/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestGetPlansOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	extra := []models.Plan{
		{Code: "starter", Name: "Starter", Price: decimal.NewFromInt(5), Currency: "eur", DurationDays: 30, IsActive: true, DisplayOrder: 0},
		{Code: "silver", Name: "Silver", Price: decimal.NewFromInt(19), Currency: "EUR", DurationDays: 30, IsActive: true, DisplayOrder: 1},
		{Code: "legacy", Name: "Legacy", Price: decimal.NewFromInt(1), Currency: "EUR", DurationDays: 30, IsActive: false, DisplayOrder: 0},
	}
	created, err := f.catalog.SeedPlans(ctx, extra)
	require.NoError(t, err)
	assert.Equal(t, 3, created)
	assert.Equal(t, "EUR", extra[0].Currency)

	all, err := f.catalog.GetPlans(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"legacy", "starter", "silver", "gold", "platinum"}, planCodes(all))

	active, err := f.catalog.GetPlans(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"starter", "silver", "gold", "platinum"}, planCodes(active))
}

func TestSeedPlansNeverOverwrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	again := []models.Plan{{
		Code: "gold", Name: "Gold Renamed", Price: decimal.NewFromInt(1), Currency: "EUR", DurationDays: 1, IsActive: true,
	}}
	created, err := f.catalog.SeedPlans(ctx, again)
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Equal(t, f.gold.ID, again[0].ID)

	plan, err := f.catalog.GetPlanByCode(ctx, "gold")
	require.NoError(t, err)
	assert.Equal(t, "Gold", plan.Name)
	assert.True(t, decimal.RequireFromString("49.90").Equal(plan.Price))
}

func TestSeedPlansValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		plan models.Plan
	}{
		{name: "missing code", plan: models.Plan{Name: "X", Price: decimal.NewFromInt(1), Currency: "EUR", DurationDays: 30}},
		{name: "zero duration", plan: models.Plan{Code: "x", Name: "X", Price: decimal.NewFromInt(1), Currency: "EUR"}},
		{name: "bad currency", plan: models.Plan{Code: "x", Name: "X", Price: decimal.NewFromInt(1), Currency: "EURO", DurationDays: 30}},
		{name: "negative price", plan: models.Plan{Code: "x", Name: "X", Price: decimal.NewFromInt(-1), Currency: "EUR", DurationDays: 30}},
		{name: "malformed features", plan: models.Plan{Code: "x", Name: "X", Price: decimal.NewFromInt(1), Currency: "EUR", DurationDays: 30, Features: datatypes.JSON(`[1,2]`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.catalog.SeedPlans(ctx, []models.Plan{tt.plan})
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestPlanLookupsAndActivation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.catalog.GetPlanByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrPlanNotFound)
	_, err = f.catalog.GetPlanByCode(ctx, "diamond")
	assert.ErrorIs(t, err, ErrPlanNotFound)
	_, err = f.catalog.SetPlanActive(ctx, 9999, false)
	assert.ErrorIs(t, err, ErrPlanNotFound)

	plan, err := f.catalog.SetPlanActive(ctx, f.platinum.ID, false)
	require.NoError(t, err)
	assert.False(t, plan.IsActive)

	reloaded, err := f.catalog.GetPlanByID(ctx, f.platinum.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsActive)

	plan, err = f.catalog.SetPlanActive(ctx, f.platinum.ID, true)
	require.NoError(t, err)
	assert.True(t, plan.IsActive)
}

func planCodes(plans []models.Plan) []string {
	codes := make([]string, 0, len(plans))
	for _, p := range plans {
		codes = append(codes, p.Code)
	}
	return codes
}

package main

import (
	"github.com/ManuelReschke/PixelPremium/app/models"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
)

// defaultPlans is the seed catalog. Seeding never overwrites a plan whose code exists.
func defaultPlans() []models.Plan {
	gold := mustFeatures(map[string]any{
		"ad_free":         true,
		"hd_upload":       true,
		"see_who_liked":   true,
		"unlimited_likes": true,
		"max_albums":      50,
	})
	platinum := mustFeatures(map[string]any{
		"ad_free":          true,
		"hd_upload":        true,
		"see_who_liked":    true,
		"unlimited_likes":  true,
		"raw_download":     true,
		"priority_support": true,
		"profile_boost":    true,
		"max_albums":       500,
		"monthly_boosts":   5,
	})

	return []models.Plan{
		{
			Code:         "gold",
			Name:         "Gold",
			Price:        decimal.RequireFromString("49.90"),
			Currency:     "EUR",
			DurationDays: 30,
			Features:     gold.JSON(),
			IsActive:     true,
			DisplayOrder: 1,
		},
		{
			Code:         "platinum",
			Name:         "Platinum",
			Price:        decimal.RequireFromString("99.90"),
			Currency:     "EUR",
			DurationDays: 30,
			Features:     platinum.JSON(),
			IsActive:     true,
			DisplayOrder: 2,
		},
	}
}

func mustFeatures(in map[string]any) models.FeatureSet {
	fs, err := models.FeatureSetFromMap(in)
	if err != nil {
		log.Fatalf("invalid seed features: %v", err)
	}
	return fs
}

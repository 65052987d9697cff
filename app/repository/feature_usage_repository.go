package repository

import (
	"time"

	"github.com/ManuelReschke/PixelPremium/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// featureUsageRepository implements the FeatureUsageRepository interface
type featureUsageRepository struct {
	db *gorm.DB
}

// NewFeatureUsageRepository creates a new feature usage repository instance
func NewFeatureUsageRepository(db *gorm.DB) FeatureUsageRepository {
	return &featureUsageRepository{db: db}
}

// Increment bumps the (user, feature) counter with a single upsert statement,
// so concurrent callers never produce a second row.
func (r *featureUsageRepository) Increment(userID uint, featureName string, at time.Time) error {
	usage := &models.FeatureUsage{
		UserID:      userID,
		FeatureName: featureName,
		UsageCount:  1,
		LastUsedAt:  at,
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
			{Name: "feature_name"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"usage_count":  gorm.Expr("feature_usage.usage_count + ?", 1),
			"last_used_at": at,
		}),
	}).Create(usage).Error
}

// Get returns the usage row for (user, feature)
func (r *featureUsageRepository) Get(userID uint, featureName string) (*models.FeatureUsage, error) {
	var usage models.FeatureUsage
	err := r.db.Where("user_id = ? AND feature_name = ?", userID, featureName).First(&usage).Error
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

// ListByUser returns every usage row of a user ordered by feature name
func (r *featureUsageRepository) ListByUser(userID uint) ([]models.FeatureUsage, error) {
	var usages []models.FeatureUsage
	err := r.db.Where("user_id = ?", userID).Order("feature_name ASC").Find(&usages).Error
	return usages, err
}

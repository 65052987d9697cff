package models

import "time"

// FeatureUsage counts how often a user passed a feature gate. One row per (user, feature).
type FeatureUsage struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;uniqueIndex:ux_feature_usage_user_feature,priority:1" json:"user_id"`
	FeatureName string    `gorm:"type:varchar(100);not null;uniqueIndex:ux_feature_usage_user_feature,priority:2" json:"feature_name"`
	UsageCount  int64     `gorm:"not null" json:"usage_count"`
	LastUsedAt  time.Time `gorm:"not null" json:"last_used_at"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (FeatureUsage) TableName() string {
	return "feature_usage"
}

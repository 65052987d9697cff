package entitlements

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/PixelPremium/app/models"
	"github.com/ManuelReschke/PixelPremium/app/repository"
	"github.com/ManuelReschke/PixelPremium/internal/pkg/billing"
	"github.com/ManuelReschke/PixelPremium/internal/pkg/database"
	"gorm.io/gorm"
)

const maxFeatureNameLength = 100

// UsageTracker keeps one counter row per (user, feature).
type UsageTracker struct {
	repos *repository.Factory
	cfg   config
}

func NewUsageTracker(db *gorm.DB, opts ...Option) *UsageTracker {
	return &UsageTracker{repos: repository.NewFactory(db), cfg: newConfig(opts)}
}

// TrackUsage increments the counter and refreshes the last-used time in a
// single upsert.
func (t *UsageTracker) TrackUsage(ctx context.Context, userID uint, feature string) error {
	feature, err := normalizeFeature(userID, feature)
	if err != nil {
		return err
	}

	ctx, cancel := database.WithTimeout(ctx, t.cfg.timeout)
	defer cancel()

	if err := t.repos.WithContext(ctx).FeatureUsage.Increment(userID, feature, t.cfg.now()); err != nil {
		return &billing.TxError{Op: "track usage", Err: err}
	}
	return nil
}

// GetUsage returns the counter for (user, feature); a feature never used has
// a zero count.
func (t *UsageTracker) GetUsage(ctx context.Context, userID uint, feature string) (*models.FeatureUsage, error) {
	feature, err := normalizeFeature(userID, feature)
	if err != nil {
		return nil, err
	}

	ctx, cancel := database.WithTimeout(ctx, t.cfg.timeout)
	defer cancel()

	usage, err := t.repos.WithContext(ctx).FeatureUsage.Get(userID, feature)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.FeatureUsage{UserID: userID, FeatureName: feature}, nil
	}
	if err != nil {
		return nil, &billing.TxError{Op: "get usage", Err: err}
	}
	return usage, nil
}

func (t *UsageTracker) ListUsage(ctx context.Context, userID uint) ([]models.FeatureUsage, error) {
	ctx, cancel := database.WithTimeout(ctx, t.cfg.timeout)
	defer cancel()

	usages, err := t.repos.WithContext(ctx).FeatureUsage.ListByUser(userID)
	if err != nil {
		return nil, &billing.TxError{Op: "list usage", Err: err}
	}
	return usages, nil
}

func normalizeFeature(userID uint, feature string) (string, error) {
	feature = strings.TrimSpace(feature)
	if userID == 0 || feature == "" {
		return "", fmt.Errorf("%w: user id and feature name are required", billing.ErrInvalidInput)
	}
	if len(feature) > maxFeatureNameLength {
		return "", fmt.Errorf("%w: feature name longer than %d characters", billing.ErrInvalidInput, maxFeatureNameLength)
	}
	return feature, nil
}

package entitlements

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/PixelPremium/app/models"
	"github.com/ManuelReschke/PixelPremium/app/repository"
	"github.com/ManuelReschke/PixelPremium/internal/pkg/billing"
	"github.com/ManuelReschke/PixelPremium/internal/pkg/database"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

const (
	ReasonPremiumRequired    = "premium subscription required"
	ReasonFeatureNotIncluded = "feature not included in plan"
)

// PremiumStatus is the entitlement state a caller may act on.
type PremiumStatus struct {
	IsPremium    bool
	PremiumUntil *time.Time
	Features     models.FeatureSet
}

// Decision is the outcome of a feature gate.
type Decision struct {
	Allowed bool
	Reason  string
}

// Resolver reads the entitlement snapshot on every call; nothing is cached.
type Resolver struct {
	repos *repository.Factory
	usage *UsageTracker
	cfg   config
}

func NewResolver(db *gorm.DB, usage *UsageTracker, opts ...Option) *Resolver {
	return &Resolver{repos: repository.NewFactory(db), usage: usage, cfg: newConfig(opts)}
}

// CheckUserPremiumStatus returns the user's entitlement. An expired snapshot is
// cleared before returning, so callers never see premium past its end.
// Unreadable feature data degrades to an empty set.
func (r *Resolver) CheckUserPremiumStatus(ctx context.Context, userID uint) (*PremiumStatus, error) {
	ctx, cancel := database.WithTimeout(ctx, r.cfg.timeout)
	defer cancel()

	repos := r.repos.WithContext(ctx)
	user, err := repos.User.GetByID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, billing.ErrUserNotFound
	}
	if err != nil {
		return nil, &billing.TxError{Op: "check premium status", Err: err}
	}

	now := r.cfg.now()
	if user.PremiumExpired(now) {
		// Conditional on the snapshot still being expired, so a purchase
		// committed since the read is kept.
		if n, err := repos.User.ClearExpiredPremiumSnapshot(userID, now); err != nil {
			log.Warnf("[Entitlements] Clearing expired premium of user %d failed: %v", userID, err)
		} else if n > 0 {
			log.Infof("[Entitlements] Cleared expired premium of user %d", userID)
		}
		return notPremium(), nil
	}
	if !user.IsPremium {
		return notPremium(), nil
	}

	features, err := models.ParseFeatureSet(user.PremiumFeatures)
	if err != nil {
		log.Warnf("[Entitlements] %v for user %d, using no features: %v", billing.ErrMalformedFeatureData, userID, err)
	}
	return &PremiumStatus{
		IsPremium:    true,
		PremiumUntil: user.PremiumUntil,
		Features:     features,
	}, nil
}

// RequireFeature allows only premium users whose feature map holds exactly
// true for feature. An allowed call is counted before it returns.
func (r *Resolver) RequireFeature(ctx context.Context, userID uint, feature string) (Decision, error) {
	feature, err := normalizeFeature(userID, feature)
	if err != nil {
		return Decision{}, err
	}

	status, err := r.CheckUserPremiumStatus(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	if !status.IsPremium {
		return Decision{Allowed: false, Reason: ReasonPremiumRequired}, nil
	}
	if !status.Features.Enabled(feature) {
		return Decision{Allowed: false, Reason: ReasonFeatureNotIncluded}, nil
	}

	if err := r.usage.TrackUsage(ctx, userID, feature); err != nil {
		return Decision{}, err
	}
	return Decision{Allowed: true}, nil
}

func notPremium() *PremiumStatus {
	return &PremiumStatus{Features: models.NewFeatureSet()}
}

package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
)

const (
	ROLE_USER     = "user"
	STATUS_ACTIVE = "active"
)

// User carries the denormalized entitlement snapshot (IsPremium, PremiumUntil,
// PremiumFeatures). The snapshot is a cache of the winning active subscription
// and can always be rebuilt from the subscriptions table.
type User struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Name            string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email           string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	Role            string         `gorm:"type:varchar(50);default:'user'" json:"role" validate:"oneof=user admin"`
	Status          string         `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active inactive disabled"`
	IsPremium       bool           `gorm:"not null;default:false;index" json:"is_premium"`
	PremiumUntil    *time.Time     `gorm:"default:null" json:"premium_until,omitempty"`
	PremiumFeatures datatypes.JSON `json:"premium_features,omitempty"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// HasPremiumSnapshot reports whether any snapshot field is set.
// Unreadable features count as set so that a reset rewrites them.
func (u *User) HasPremiumSnapshot() bool {
	if u.IsPremium || u.PremiumUntil != nil {
		return true
	}
	features, err := ParseFeatureSet(u.PremiumFeatures)
	return err != nil || features.Len() > 0
}

// PremiumExpired reports whether the snapshot claims premium but its end has passed.
// A premium flag without an end date counts as expired.
func (u *User) PremiumExpired(now time.Time) bool {
	if !u.IsPremium {
		return false
	}
	return u.PremiumUntil == nil || !u.PremiumUntil.After(now)
}

// SnapshotEquals reports whether the snapshot is premium until the given
// instant with exactly the given features.
func (u *User) SnapshotEquals(until time.Time, features FeatureSet) bool {
	if !u.IsPremium || u.PremiumUntil == nil || !u.PremiumUntil.Equal(until) {
		return false
	}
	current, err := ParseFeatureSet(u.PremiumFeatures)
	if err != nil {
		return false
	}
	return featureSetsEqual(current, features)
}

func featureSetsEqual(a, b FeatureSet) bool {
	if a.Len() != b.Len() {
		return false
	}
	for name, av := range a.Flags {
		bv, ok := b.Flags[name]
		if !ok {
			return false
		}
		switch {
		case av.Bool != nil && bv.Bool != nil:
			if *av.Bool != *bv.Bool {
				return false
			}
		case av.Number != nil && bv.Number != nil:
			if *av.Number != *bv.Number {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// All returns every model owned by the premium engine, in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Plan{},
		&Subscription{},
		&Payment{},
		&FeatureUsage{},
	}
}

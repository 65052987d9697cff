package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	SubscriptionStatusPending   = "pending"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusExpired   = "expired"
	SubscriptionStatusFailed    = "failed"
)

const (
	PaymentMethodAdmin = "admin"

	CancelReasonSuperseded = "superseded by new subscription"
)

// subscriptionTransitions lists every allowed status change. Terminal states
// have no outgoing edges; a fresh purchase always creates a new row.
var subscriptionTransitions = map[string][]string{
	SubscriptionStatusPending: {SubscriptionStatusActive, SubscriptionStatusFailed},
	SubscriptionStatusActive:  {SubscriptionStatusCancelled, SubscriptionStatusExpired},
}

// CanTransition reports whether a subscription may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range subscriptionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Subscription is a time-boxed grant of a plan to a user. Rows are never deleted.
type Subscription struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	UserID             uint            `gorm:"not null;index:idx_subscriptions_user_status,priority:1" json:"user_id"`
	PlanID             uint            `gorm:"not null;index" json:"plan_id"`
	Status             string          `gorm:"type:varchar(16);not null;index:idx_subscriptions_user_status,priority:2;index:idx_subscriptions_status_end,priority:1" json:"status"`
	StartDate          time.Time       `gorm:"not null" json:"start_date"`
	EndDate            time.Time       `gorm:"not null;index:idx_subscriptions_status_end,priority:2" json:"end_date"`
	PaymentMethod      string          `gorm:"type:varchar(32);not null" json:"payment_method"`
	ExternalTxID       string          `gorm:"type:varchar(191);not null;index" json:"external_tx_id"`
	AmountPaid         decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount_paid"`
	Currency           string          `gorm:"type:varchar(3);not null" json:"currency"`
	AutoRenew          bool            `gorm:"not null" json:"auto_renew"`
	CancelledAt        *time.Time      `gorm:"default:null" json:"cancelled_at,omitempty"`
	CancellationReason string          `gorm:"type:varchar(255);not null;default:''" json:"cancellation_reason"`
	IsAdminGiven       bool            `gorm:"not null" json:"is_admin_given"`
	GrantReason        string          `gorm:"type:varchar(255);not null;default:''" json:"grant_reason"`
	Features           datatypes.JSON  `json:"features"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsEntitling reports whether the row grants premium at the given instant.
func (s *Subscription) IsEntitling(now time.Time) bool {
	return s.Status == SubscriptionStatusActive && s.EndDate.After(now)
}

// FeatureSet decodes the frozen feature map captured at creation.
func (s *Subscription) FeatureSet() (FeatureSet, error) {
	return ParseFeatureSet(s.Features)
}

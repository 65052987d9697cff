package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// Payment is an append-only record of a payment attempt. Refunds are new rows
// pointing at the original through RefundOfID.
type Payment struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	UserID          uint            `gorm:"not null;index" json:"user_id"`
	SubscriptionID  *uint           `gorm:"index" json:"subscription_id,omitempty"`
	PlanID          uint            `gorm:"not null" json:"plan_id"`
	Amount          decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency        string          `gorm:"type:varchar(3);not null" json:"currency"`
	Status          string          `gorm:"type:varchar(16);not null;index" json:"status"`
	PaymentMethod   string          `gorm:"type:varchar(32);not null" json:"payment_method"`
	ExternalTxID    string          `gorm:"type:varchar(191);not null;uniqueIndex" json:"external_tx_id"`
	GatewayResponse datatypes.JSON  `json:"gateway_response"`
	IsAdminGiven    bool            `gorm:"not null" json:"is_admin_given"`
	RefundOfID      *uint           `gorm:"index" json:"refund_of_id,omitempty"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Plan is a purchasable premium tier. Plans are seeded once and afterwards only
// toggled active/inactive; subscriptions keep their own copy of Features.
type Plan struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Code         string          `gorm:"type:varchar(50);not null;uniqueIndex" json:"code" validate:"required,max=50"`
	Name         string          `gorm:"type:varchar(150);not null" json:"name" validate:"required,max=150"`
	Price        decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Currency     string          `gorm:"type:varchar(3);not null" json:"currency" validate:"required,len=3"`
	DurationDays int             `gorm:"not null" json:"duration_days" validate:"gt=0"`
	Features     datatypes.JSON  `json:"features"`
	IsActive     bool            `gorm:"not null;index" json:"is_active"`
	DisplayOrder int             `gorm:"not null" json:"display_order"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// FeatureSet decodes the plan's feature map.
func (p *Plan) FeatureSet() (FeatureSet, error) {
	return ParseFeatureSet(p.Features)
}

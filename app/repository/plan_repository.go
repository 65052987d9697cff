package repository

import (
	"github.com/ManuelReschke/PixelPremium/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// planRepository implements the PlanRepository interface
type planRepository struct {
	db *gorm.DB
}

// NewPlanRepository creates a new plan repository instance
func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

// GetByID retrieves a plan by its ID
func (r *planRepository) GetByID(id uint) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.First(&plan, id).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

// GetByCode retrieves a plan by its unique code
func (r *planRepository) GetByCode(code string) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.Where("code = ?", code).First(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

// List returns plans ordered by display order, then price ascending
func (r *planRepository) List(activeOnly bool) ([]models.Plan, error) {
	var plans []models.Plan
	query := r.db.Order("display_order ASC").Order("price ASC").Order("id ASC")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	err := query.Find(&plans).Error
	return plans, err
}

// CreateIfNotExists inserts the plan unless its code already exists. The stored
// row is loaded back into plan either way.
func (r *planRepository) CreateIfNotExists(plan *models.Plan) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoNothing: true,
	}).Create(plan)
	if tx.Error != nil {
		return false, tx.Error
	}

	created := tx.RowsAffected > 0
	if err := r.db.Where("code = ?", plan.Code).First(plan).Error; err != nil {
		return false, err
	}
	return created, nil
}

// SetActive toggles whether the plan can be purchased
func (r *planRepository) SetActive(id uint, active bool) (int64, error) {
	tx := r.db.Model(&models.Plan{}).Where("id = ?", id).Update("is_active", active)
	return tx.RowsAffected, tx.Error
}

package repository

import (
	"github.com/ManuelReschke/PixelPremium/app/models"
	"gorm.io/gorm"
)

// paymentRepository implements the PaymentRepository interface
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// Create appends a payment record
func (r *paymentRepository) Create(payment *models.Payment) error {
	return r.db.Create(payment).Error
}

// GetByID retrieves a payment by its ID
func (r *paymentRepository) GetByID(id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.First(&payment, id).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetByExternalTxID retrieves a payment by the gateway transaction id
func (r *paymentRepository) GetByExternalTxID(externalTxID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.Where("external_tx_id = ?", externalTxID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetRefundOf returns the refund record written for paymentID, if any
func (r *paymentRepository) GetRefundOf(paymentID uint) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.Where("refund_of_id = ?", paymentID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// ListByUser returns a user's payments, newest first
func (r *paymentRepository) ListByUser(userID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.Where("user_id = ?", userID).Order("id DESC").Find(&payments).Error
	return payments, err
}

package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/PixelPremium/app/models"
	"github.com/ManuelReschke/PixelPremium/app/repository"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaymentRecorder reads the append-only payment ledger and appends refunds.
// Purchase payments are written by the Ledger inside its transaction.
type PaymentRecorder struct {
	engine
}

func NewPaymentRecorder(db *gorm.DB, opts ...Option) *PaymentRecorder {
	return &PaymentRecorder{engine: newEngine(db, opts)}
}

// ListPayments returns the user's payments, newest first.
func (p *PaymentRecorder) ListPayments(ctx context.Context, userID uint) ([]models.Payment, error) {
	repos, cancel := p.reader(ctx)
	defer cancel()

	payments, err := repos.Payment.ListByUser(userID)
	if err != nil {
		return nil, storeFailure("list payments", err)
	}
	return payments, nil
}

func (p *PaymentRecorder) GetByExternalTxID(ctx context.Context, externalTxID string) (*models.Payment, error) {
	repos, cancel := p.reader(ctx)
	defer cancel()

	payment, err := repos.Payment.GetByExternalTxID(strings.TrimSpace(externalTxID))
	if notFound(err) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, storeFailure("get payment", err)
	}
	return payment, nil
}

// RecordRefund appends a refunded record for a completed payment. The original
// record and the user's entitlements are not touched.
func (p *PaymentRecorder) RecordRefund(ctx context.Context, paymentID uint, externalTxID, reason string) (*models.Payment, error) {
	externalTxID = strings.TrimSpace(externalTxID)
	if paymentID == 0 || externalTxID == "" {
		return nil, invalidInput("payment id and external transaction id are required")
	}

	var refund *models.Payment
	err := p.inTx(ctx, "record refund", func(r *repository.Repositories) error {
		original, err := r.Payment.GetByID(paymentID)
		if notFound(err) {
			return ErrPaymentNotFound
		}
		if err != nil {
			return err
		}
		if original.Status != models.PaymentStatusCompleted {
			return invalidInput("payment %d is %s, only completed payments can be refunded", original.ID, original.Status)
		}
		if original.Amount.IsZero() {
			return invalidInput("payment %d has no amount to refund", original.ID)
		}

		if _, err := r.Payment.GetRefundOf(original.ID); err == nil {
			return fmt.Errorf("%w: payment %d", ErrAlreadyRefunded, original.ID)
		} else if !notFound(err) {
			return err
		}
		if _, err := r.Payment.GetByExternalTxID(externalTxID); err == nil {
			return fmt.Errorf("%w: %s", ErrDuplicateTransaction, externalTxID)
		} else if !notFound(err) {
			return err
		}

		refund = &models.Payment{
			UserID:          original.UserID,
			SubscriptionID:  original.SubscriptionID,
			PlanID:          original.PlanID,
			Amount:          original.Amount,
			Currency:        original.Currency,
			Status:          models.PaymentStatusRefunded,
			PaymentMethod:   original.PaymentMethod,
			ExternalTxID:    externalTxID,
			GatewayResponse: refundPayload(reason),
			IsAdminGiven:    original.IsAdminGiven,
			RefundOfID:      &original.ID,
		}
		return recordPayment(r, refund)
	})
	if err != nil {
		return nil, err
	}

	log.Infof("[Billing] Refunded payment %d (%s %s) as payment %d",
		paymentID, refund.Amount.StringFixed(2), refund.Currency, refund.ID)
	return refund, nil
}

// recordPayment appends a payment inside the caller's transaction.
func recordPayment(r *repository.Repositories, payment *models.Payment) error {
	err := r.Payment.Create(payment)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", ErrDuplicateTransaction, payment.ExternalTxID)
	}
	return err
}

func refundPayload(reason string) datatypes.JSON {
	data, err := json.Marshal(map[string]string{"refund_reason": strings.TrimSpace(reason)})
	if err != nil {
		return nil
	}
	return datatypes.JSON(data)
}

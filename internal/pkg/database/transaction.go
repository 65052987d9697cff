package database

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// WithTimeout bounds ctx by timeout unless the caller already set a deadline.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// WithTx runs fn inside a single transaction. fn must use the tx handle for
// every statement; returning an error rolls everything back.
func WithTx(ctx context.Context, db *gorm.DB, timeout time.Duration, fn func(tx *gorm.DB) error) error {
	ctx, cancel := WithTimeout(ctx, timeout)
	defer cancel()

	return db.WithContext(ctx).Transaction(fn)
}

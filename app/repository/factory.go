package repository

import (
	"context"

	"gorm.io/gorm"
)

// Factory hands out repositories bound either to the base connection pool or
// to a caller's context or transaction.
type Factory struct {
	db *gorm.DB
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// DB returns the base handle the factory was created with.
func (f *Factory) DB() *gorm.DB {
	return f.db
}

// WithContext returns repositories whose queries observe ctx (deadline, cancellation).
func (f *Factory) WithContext(ctx context.Context) *Repositories {
	return NewRepositories(f.db.WithContext(ctx))
}

// WithTx returns repositories that run inside tx.
func (f *Factory) WithTx(tx *gorm.DB) *Repositories {
	return NewRepositories(tx)
}

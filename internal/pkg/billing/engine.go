package billing

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/PixelPremium/app/repository"
	"github.com/ManuelReschke/PixelPremium/internal/pkg/database"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	defaultTimeout          = 10 * time.Second
	defaultSweepConcurrency = 4
)

// Clock returns the current instant. Billing code only ever works in UTC
// with second precision.
type Clock func() time.Time

func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// Option configures a billing component.
type Option func(*engine)

func WithClock(clock Clock) Option {
	return func(e *engine) {
		e.now = func() time.Time { return clock().UTC().Truncate(time.Second) }
	}
}

// WithTimeout sets the deadline applied to calls whose context has none.
func WithTimeout(timeout time.Duration) Option {
	return func(e *engine) {
		e.timeout = timeout
	}
}

// WithSweepBatchSize bounds how many overdue rows one sweep transaction expires.
// Zero expires everything in a single transaction.
func WithSweepBatchSize(size int) Option {
	return func(e *engine) {
		e.batchSize = size
	}
}

// WithSweepConcurrency bounds the number of users reconciled in parallel.
func WithSweepConcurrency(n int) Option {
	return func(e *engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// engine is the state shared by every billing component.
type engine struct {
	repos       *repository.Factory
	now         Clock
	timeout     time.Duration
	batchSize   int
	concurrency int
	validate    *validator.Validate
}

func newEngine(db *gorm.DB, opts []Option) engine {
	e := engine{
		repos:       repository.NewFactory(db),
		now:         SystemClock,
		timeout:     defaultTimeout,
		concurrency: defaultSweepConcurrency,
		validate:    validator.New(),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// inTx runs fn on repositories bound to one transaction.
func (e *engine) inTx(ctx context.Context, op string, fn func(r *repository.Repositories) error) error {
	err := database.WithTx(ctx, e.repos.DB(), e.timeout, func(tx *gorm.DB) error {
		return fn(e.repos.WithTx(tx))
	})
	return storeFailure(op, err)
}

// reader returns repositories bound to ctx plus the operation deadline.
func (e *engine) reader(ctx context.Context) (*repository.Repositories, context.CancelFunc) {
	ctx, cancel := database.WithTimeout(ctx, e.timeout)
	return e.repos.WithContext(ctx), cancel
}

func (e *engine) check(in interface{}) error {
	if err := e.validate.Struct(in); err != nil {
		return invalidInput("%v", err)
	}
	return nil
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

package entitlements

import (
	"time"

	"github.com/ManuelReschke/PixelPremium/internal/pkg/billing"
)

const defaultTimeout = 5 * time.Second

type config struct {
	now     billing.Clock
	timeout time.Duration
}

// Option configures the resolver and the usage tracker.
type Option func(*config)

func WithClock(clock billing.Clock) Option {
	return func(c *config) {
		c.now = func() time.Time { return clock().UTC().Truncate(time.Second) }
	}
}

// WithTimeout sets the deadline applied to calls whose context has none.
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.timeout = timeout
	}
}

func newConfig(opts []Option) config {
	c := config{now: billing.SystemClock, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ManuelReschke/PixelPremium/internal/pkg/billing"
	"github.com/ManuelReschke/PixelPremium/internal/pkg/cache"
	"github.com/ManuelReschke/PixelPremium/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
)

const sweepLockName = "premium:sweep"

// Sweeper is the unit of work the manager schedules.
type Sweeper interface {
	RunOnce(ctx context.Context) (*billing.SweepResult, error)
}

// Locker guards the sweep across process instances. A nil Locker means this
// process is the only scheduler.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error)
}

// Config controls the sweep schedule.
type Config struct {
	Interval time.Duration
	LockTTL  time.Duration
	// RunOnStart triggers one sweep as soon as the manager starts.
	RunOnStart bool
}

func ConfigFromEnv() Config {
	return Config{
		Interval:   env.GetEnvDuration("SWEEP_INTERVAL", 15*time.Minute),
		LockTTL:    env.GetEnvDuration("SWEEP_LOCK_TTL", 5*time.Minute),
		RunOnStart: env.GetEnvBool("SWEEP_ON_START", true),
	}
}

// Manager runs the expiration sweep on a ticker for as long as the process runs.
type Manager struct {
	sweeper     Sweeper
	locker      Locker
	cfg         Config
	sweepTicker *time.Ticker
	stopCh      chan struct{}
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

func NewManager(sweeper Sweeper, locker Locker, cfg Config) *Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	return &Manager{
		sweeper: sweeper,
		locker:  locker,
		cfg:     cfg,
	}
}

// Start starts the sweep worker. Calling Start on a running manager is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true

	m.sweepTicker = time.NewTicker(m.cfg.Interval)
	m.wg.Add(1)
	go m.sweepWorker(ctx, m.sweepTicker, m.stopCh)

	log.Infof("[Scheduler] Started sweep worker (interval: %s)", m.cfg.Interval)
}

// Stop stops the worker and waits for an in-flight sweep to return. Its
// context is cancelled, so the open transaction rolls back.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Scheduler] Stopping sweep worker...")

	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}
	close(m.stopCh)
	m.cancel()
	m.stopCh = nil
	m.running = false

	m.wg.Wait()

	log.Info("[Scheduler] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// RunSweepOnce runs one sweep under the distributed lock. It returns
// billing.ErrSweepInProgress when another instance holds the lock.
// The sweep's context ends when the lock expires, so its open transactions
// roll back before another instance can take over.
func (m *Manager) RunSweepOnce(ctx context.Context) (*billing.SweepResult, error) {
	if m.locker != nil {
		release, err := m.locker.TryLock(ctx, sweepLockName, m.cfg.LockTTL)
		if errors.Is(err, cache.ErrLockNotAcquired) {
			return nil, billing.ErrSweepInProgress
		}
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				log.Warnf("[Scheduler] Releasing sweep lock failed: %v", err)
			}
		}()

		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.LockTTL)
		defer cancel()
	}

	return m.sweeper.RunOnce(ctx)
}

func (m *Manager) sweepWorker(ctx context.Context, ticker *time.Ticker, stopCh chan struct{}) {
	defer m.wg.Done()

	if m.cfg.RunOnStart {
		m.runScheduled(ctx)
	}

	for {
		select {
		case <-stopCh:
			log.Info("[Scheduler] Sweep worker stopping")
			return
		case <-ticker.C:
			m.runScheduled(ctx)
		}
	}
}

func (m *Manager) runScheduled(ctx context.Context) {
	log.Debug("[Scheduler] Running expiration sweep")
	result, err := m.RunSweepOnce(ctx)
	switch {
	case errors.Is(err, billing.ErrSweepInProgress):
		log.Debug("[Scheduler] Sweep skipped, another run holds the lock")
	case err != nil:
		log.Errorf("[Scheduler] Sweep failed: %v", err)
	case len(result.Failures) > 0:
		log.Warnf("[Scheduler] Sweep finished with %d failed users, retrying next run", len(result.Failures))
	}
}

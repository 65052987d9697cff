package billing

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuelReschke/PixelPremium/app/models"
	"github.com/ManuelReschke/PixelPremium/app/repository"
	"github.com/gofiber/fiber/v2/log"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"
	"gorm.io/gorm"
)

// SweepResult summarizes one sweep pass.
type SweepResult struct {
	ExpiredCount    int
	ReconciledCount int
	Failures        []*ReconciliationError
}

// Sweeper expires overdue subscriptions and reconciles entitlement snapshots.
// It owns no schedule; see scheduler.Manager.
type Sweeper struct {
	engine
	running atomic.Bool

	// reconcile is swapped in tests to inject per-user failures.
	reconcile func(ctx context.Context, userID uint, now time.Time) (bool, error)
}

func NewSweeper(db *gorm.DB, opts ...Option) *Sweeper {
	s := &Sweeper{engine: newEngine(db, opts)}
	s.reconcile = s.reconcileUser
	return s
}

// RunOnce performs one idempotent pass. A second pass right after the first
// changes nothing. Per-user failures are reported in the result and do not
// abort the pass.
func (s *Sweeper) RunOnce(ctx context.Context) (*SweepResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSweepInProgress
	}
	defer s.running.Store(false)

	now := s.now()
	result := &SweepResult{}

	users, err := s.expireOverdue(ctx, now, result)
	if err != nil {
		return nil, err
	}

	repos, cancel := s.reader(ctx)
	stale, err := repos.User.ListStalePremiumUserIDs(now, 0)
	cancel()
	if err != nil {
		return nil, storeFailure("list stale premium users", err)
	}
	users = lo.Uniq(append(users, stale...))

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(s.concurrency)
	for _, userID := range users {
		p.Go(func() {
			changed, err := s.reconcile(ctx, userID, now)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Errorf("[Sweeper] Reconciling user %d failed: %v", userID, err)
				result.Failures = append(result.Failures, &ReconciliationError{UserID: userID, Err: err})
				return
			}
			if changed {
				result.ReconciledCount++
			}
		})
	}
	p.Wait()

	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].UserID < result.Failures[j].UserID
	})

	log.Infof("[Sweeper] Expired %d subscriptions, reconciled %d of %d users, %d failures",
		result.ExpiredCount, result.ReconciledCount, len(users), len(result.Failures))
	return result, nil
}

// expireOverdue flips overdue active rows to expired, one batch per
// transaction, and returns the owners of those rows.
func (s *Sweeper) expireOverdue(ctx context.Context, now time.Time, result *SweepResult) ([]uint, error) {
	var users []uint
	for {
		var batch []models.Subscription
		err := s.inTx(ctx, "expire overdue subscriptions", func(r *repository.Repositories) error {
			var err error
			batch, err = r.Subscription.ListOverdue(now, s.batchSize)
			if err != nil {
				return err
			}
			ids := lo.Map(batch, func(sub models.Subscription, _ int) uint { return sub.ID })
			n, err := r.Subscription.ExpireOverdue(ids, now)
			if err != nil {
				return err
			}
			result.ExpiredCount += int(n)
			return nil
		})
		if err != nil {
			return nil, err
		}

		users = append(users, lo.Map(batch, func(sub models.Subscription, _ int) uint { return sub.UserID })...)
		if s.batchSize <= 0 || len(batch) < s.batchSize {
			return users, nil
		}
	}
}

// reconcileUser rebuilds one user's snapshot from the subscriptions table and
// reports whether it changed.
func (s *Sweeper) reconcileUser(ctx context.Context, userID uint, now time.Time) (bool, error) {
	changed := false
	err := s.inTx(ctx, "reconcile user", func(r *repository.Repositories) error {
		user, err := r.User.LockByID(userID)
		if notFound(err) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}

		entitling, err := r.Subscription.ListEntitling(userID, now)
		if err != nil {
			return err
		}
		if len(entitling) == 0 {
			if !user.HasPremiumSnapshot() {
				return nil
			}
			changed = true
			_, err := r.User.ClearPremiumSnapshot(userID)
			return err
		}

		winner := entitling[0]
		features, err := winner.FeatureSet()
		if err != nil {
			log.Warnf("[Sweeper] %v on subscription %d: %v", ErrMalformedFeatureData, winner.ID, err)
		}
		if user.SnapshotEquals(winner.EndDate, features) {
			return nil
		}
		changed = true
		return r.User.SetPremiumSnapshot(userID, winner.EndDate, features.JSON())
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

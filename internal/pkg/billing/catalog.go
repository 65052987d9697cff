package billing

import (
	"context"
	"strings"

	"github.com/ManuelReschke/PixelPremium/app/models"
	"github.com/ManuelReschke/PixelPremium/app/repository"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Catalog serves the purchasable plans. Plans are seeded and afterwards only
// toggled active or inactive.
type Catalog struct {
	engine
}

func NewCatalog(db *gorm.DB, opts ...Option) *Catalog {
	return &Catalog{engine: newEngine(db, opts)}
}

// GetPlans returns plans ordered by display order, then price ascending.
func (c *Catalog) GetPlans(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	repos, cancel := c.reader(ctx)
	defer cancel()

	plans, err := repos.Plan.List(activeOnly)
	if err != nil {
		return nil, storeFailure("list plans", err)
	}
	return plans, nil
}

func (c *Catalog) GetPlanByID(ctx context.Context, id uint) (*models.Plan, error) {
	repos, cancel := c.reader(ctx)
	defer cancel()

	plan, err := repos.Plan.GetByID(id)
	if notFound(err) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, storeFailure("get plan", err)
	}
	return plan, nil
}

func (c *Catalog) GetPlanByCode(ctx context.Context, code string) (*models.Plan, error) {
	repos, cancel := c.reader(ctx)
	defer cancel()

	plan, err := repos.Plan.GetByCode(strings.TrimSpace(code))
	if notFound(err) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, storeFailure("get plan", err)
	}
	return plan, nil
}

// SeedPlans inserts plans whose code does not exist yet. Existing plans are
// never overwritten. Returns the number of plans created.
func (c *Catalog) SeedPlans(ctx context.Context, plans []models.Plan) (int, error) {
	for i := range plans {
		if err := c.checkPlan(&plans[i]); err != nil {
			return 0, err
		}
	}

	created := 0
	err := c.inTx(ctx, "seed plans", func(r *repository.Repositories) error {
		for i := range plans {
			ok, err := r.Plan.CreateIfNotExists(&plans[i])
			if err != nil {
				return err
			}
			if ok {
				created++
				log.Infof("[Billing] Seeded plan %s (%s, %s %s, %d days)",
					plans[i].Code, plans[i].Name, plans[i].Price.StringFixed(2), plans[i].Currency, plans[i].DurationDays)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

// SetPlanActive is the only mutation a plan sees after seeding.
func (c *Catalog) SetPlanActive(ctx context.Context, id uint, active bool) (*models.Plan, error) {
	var plan *models.Plan
	err := c.inTx(ctx, "set plan active", func(r *repository.Repositories) error {
		var err error
		plan, err = r.Plan.GetByID(id)
		if notFound(err) {
			return ErrPlanNotFound
		}
		if err != nil {
			return err
		}
		if plan.IsActive == active {
			return nil
		}
		if _, err := r.Plan.SetActive(id, active); err != nil {
			return err
		}
		plan.IsActive = active
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[Billing] Plan %s active=%t", plan.Code, plan.IsActive)
	return plan, nil
}

func (c *Catalog) checkPlan(plan *models.Plan) error {
	plan.Code = strings.TrimSpace(plan.Code)
	plan.Currency = strings.ToUpper(strings.TrimSpace(plan.Currency))
	if err := c.check(plan); err != nil {
		return err
	}
	if plan.Price.IsNegative() {
		return invalidInput("plan %s has a negative price", plan.Code)
	}
	features, err := plan.FeatureSet()
	if err != nil {
		return invalidInput("plan %s: %v: %v", plan.Code, ErrMalformedFeatureData, err)
	}
	plan.Features = features.JSON()
	return nil
}

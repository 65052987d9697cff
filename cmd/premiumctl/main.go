package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/PixelPremium/internal/pkg/billing"
	"github.com/ManuelReschke/PixelPremium/internal/pkg/cache"
	"github.com/ManuelReschke/PixelPremium/internal/pkg/database"
	"github.com/ManuelReschke/PixelPremium/internal/pkg/entitlements"
	"github.com/ManuelReschke/PixelPremium/internal/pkg/env"
	"github.com/ManuelReschke/PixelPremium/internal/pkg/scheduler"
	"github.com/ManuelReschke/PixelPremium/migrations"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes one command and returns the process exit code. Deferred
// cleanup runs before main exits.
func run(args []string) int {
	env.SetupEnvFile()

	if len(args) < 1 {
		printUsage()
		return 1
	}
	command, args := args[0], args[1:]

	cfg := database.ConfigFromEnv()
	if err := database.ValidateSchema(cfg, migrations.RequiredVersion); err != nil {
		log.Errorf("Schema check failed: %v", err)
		return 1
	}
	db, err := database.Open(cfg)
	if err != nil {
		log.Errorf("Failed to connect to database: %v", err)
		return 1
	}
	defer func() {
		if err := database.Close(db); err != nil {
			log.Warnf("[Database] Closing connection pool: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	opts := []billing.Option{
		billing.WithTimeout(cfg.OpTimeout),
		billing.WithSweepBatchSize(env.GetEnvInt("SWEEP_BATCH_SIZE", 500)),
		billing.WithSweepConcurrency(env.GetEnvInt("SWEEP_CONCURRENCY", 4)),
	}

	switch command {
	case "plans":
		err = listPlans(ctx, db, opts)
	case "status":
		err = showStatus(ctx, db, args)
	case "grant":
		err = grant(ctx, db, opts, args)
	case "revoke":
		err = revoke(ctx, db, opts, args)
	case "sweep":
		err = sweep(ctx, db, opts)
	default:
		printUsage()
		return 1
	}

	if err != nil {
		log.Errorf("%s failed: %v", command, err)
		return 1
	}
	return 0
}

func listPlans(ctx context.Context, db *gorm.DB, opts []billing.Option) error {
	plans, err := billing.NewCatalog(db, opts...).GetPlans(ctx, false)
	if err != nil {
		return err
	}
	for _, p := range plans {
		state := "active"
		if !p.IsActive {
			state = "inactive"
		}
		fmt.Printf("%-4d %-12s %-16s %8s %s %4d days  %s\n",
			p.ID, p.Code, p.Name, p.Price.StringFixed(2), p.Currency, p.DurationDays, state)
	}
	return nil
}

func showStatus(ctx context.Context, db *gorm.DB, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: status USER_ID")
	}
	userID, err := parseID(args[0])
	if err != nil {
		return err
	}

	usage := entitlements.NewUsageTracker(db)
	status, err := entitlements.NewResolver(db, usage).CheckUserPremiumStatus(ctx, userID)
	if err != nil {
		return err
	}

	if !status.IsPremium {
		fmt.Printf("user %d: not premium\n", userID)
		return nil
	}
	fmt.Printf("user %d: premium until %s\n", userID, status.PremiumUntil.Format(time.RFC3339))
	for name, value := range status.Features.Map() {
		fmt.Printf("  %-20s %v\n", name, value)
	}

	counters, err := usage.ListUsage(ctx, userID)
	if err != nil {
		return err
	}
	for _, c := range counters {
		fmt.Printf("  used %-15s %d times, last %s\n", c.FeatureName, c.UsageCount, c.LastUsedAt.Format(time.RFC3339))
	}
	return nil
}

func grant(ctx context.Context, db *gorm.DB, opts []billing.Option, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: grant USER_ID PLAN_CODE DAYS [REASON]")
	}
	userID, err := parseID(args[0])
	if err != nil {
		return err
	}
	days, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid number of days %q", args[2])
	}

	plan, err := billing.NewCatalog(db, opts...).GetPlanByCode(ctx, args[1])
	if err != nil {
		return err
	}

	sub, err := billing.NewAdminOverride(db, opts...).GiveAdminPremium(ctx, userID, plan.ID, days, strings.Join(args[3:], " "))
	if err != nil {
		return err
	}
	fmt.Printf("granted %s to user %d until %s (subscription %d)\n", plan.Code, userID, sub.EndDate.Format(time.RFC3339), sub.ID)
	return nil
}

func revoke(ctx context.Context, db *gorm.DB, opts []billing.Option, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: revoke USER_ID [REASON]")
	}
	userID, err := parseID(args[0])
	if err != nil {
		return err
	}

	result, err := billing.NewAdminOverride(db, opts...).RevokeAdminPremium(ctx, userID, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Printf("revoked premium of user %d: %d cancelled, %d pending failed\n",
		userID, result.CancelledCount, result.FailedPendingCount)
	return nil
}

// sweep runs one pass under the same lock the daemon uses.
func sweep(ctx context.Context, db *gorm.DB, opts []billing.Option) error {
	manager := scheduler.NewManager(billing.NewSweeper(db, opts...), cache.NewLocker(cache.GetClient()), scheduler.ConfigFromEnv())
	defer cache.Close()

	result, err := manager.RunSweepOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("expired %d, reconciled %d, failed %d\n", result.ExpiredCount, result.ReconciledCount, len(result.Failures))
	for _, f := range result.Failures {
		fmt.Printf("  %v\n", f)
	}
	return nil
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return uint(id), nil
}

func printUsage() {
	fmt.Println("Usage: go run cmd/premiumctl/main.go [command]")
	fmt.Println("Available commands:")
	fmt.Println("  plans                              - List all plans")
	fmt.Println("  status USER_ID                     - Show a user's entitlement and feature usage")
	fmt.Println("  grant USER_ID PLAN_CODE DAYS [WHY] - Give admin premium")
	fmt.Println("  revoke USER_ID [WHY]               - Revoke premium immediately")
	fmt.Println("  sweep                              - Run one expiration sweep")
}

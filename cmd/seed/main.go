package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"content-platform-billing/internal/config"
	"content-platform-billing/internal/domain/model"
	"content-platform-billing/internal/domain/ports/repository"
	pg "content-platform-billing/internal/infra/db/postgres"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	ruleRepo := pg.NewPromotionRuleRepo(pool)

	// If rules already exist, do nothing.
	existing, err := ruleRepo.ListActive(ctx, repository.NoTX, time.Now())
	if err != nil {
		log.Fatalf("list rules: %v", err)
	}
	if len(existing) > 0 {
		fmt.Printf("%d active rules already present. No changes.\n", len(existing))
		for _, r := range existing {
			fmt.Printf("  - %s (priority=%d, stackable=%t)\n", r.RuleName, r.Priority, r.Stackable)
		}
		return
	}

	now := time.Now()
	limit100 := int64(100)
	rules := []*model.PromotionRule{
		{
			ID:       uuid.NewString(),
			RuleName: "Yearly plans 20% off",
			RuleType: model.RuleDiscount,
			ApplyTo: model.ApplyTo{
				Type:           model.ScopeSubscriptions,
				BillingPeriods: []string{"yearly"},
			},
			TargetUsers: model.TargetUsers{Type: model.TargetAll},
			Discount:    &model.DiscountSpec{Kind: model.DiscountPercentage, Value: decimal.NewFromInt(20)},
			StartDate:   now,
			EndDate:     now.AddDate(0, 3, 0),
			Priority:    10,
			Stackable:   true,
			Status:      model.RuleStatusActive,
		},
		{
			ID:       uuid.NewString(),
			RuleName: "New user welcome: 100 bonus credits",
			RuleType: model.RuleBonusCredits,
			ApplyTo:  model.ApplyTo{Type: model.ScopeAll},
			TargetUsers: model.TargetUsers{
				Type:                 model.TargetNewUsers,
				RegisteredWithinDays: 30,
			},
			Gift:      &model.GiftSpec{Kind: model.GiftBonusCredits, Amount: 100},
			StartDate: now,
			EndDate:   now.AddDate(0, 1, 0),
			Priority:  5,
			Stackable: true,
			Status:    model.RuleStatusActive,
		},
		{
			ID:          uuid.NewString(),
			RuleName:    "Launch week: $5 off packages",
			RuleType:    model.RuleDiscount,
			ApplyTo:     model.ApplyTo{Type: model.ScopePackages},
			TargetUsers: model.TargetUsers{Type: model.TargetAll},
			Discount:    &model.DiscountSpec{Kind: model.DiscountFixed, Value: decimal.NewFromInt(5)},
			StartDate:   now,
			EndDate:     now.AddDate(0, 0, 7),
			Priority:    1,
			Stackable:   false,
			UsageLimit:  &limit100,
			Status:      model.RuleStatusActive,
		},
	}

	for _, r := range rules {
		r.CreatedAt, r.UpdatedAt = now, now
		if err := r.Validate(); err != nil {
			log.Fatalf("seed rule %q: %v", r.RuleName, err)
		}
		if err := ruleRepo.Save(ctx, repository.NoTX, r); err != nil {
			log.Fatalf("save rule %q: %v", r.RuleName, err)
		}
		fmt.Printf("Seeded rule: %s\n", r.RuleName)
	}
	fmt.Println("Done.")
}

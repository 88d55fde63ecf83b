// seedrules loads a YAML rule pack into the shipping_rules table. Intended
// for local development and for bootstrapping a fresh environment:
//
//	go run ./cmd/seedrules -file rules.yaml
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/MichaelCampos91/pedidos-sub000/internal/config"
	"github.com/MichaelCampos91/pedidos-sub000/internal/db"
	"github.com/MichaelCampos91/pedidos-sub000/internal/models"
	"github.com/MichaelCampos91/pedidos-sub000/internal/repository"
)

type rulePack struct {
	Description string     `yaml:"description"`
	Rules       []packRule `yaml:"rules"`
}

type packRule struct {
	Name            string   `yaml:"name"`
	RuleType        string   `yaml:"rule_type"`
	ConditionType   string   `yaml:"condition_type"`
	MinValue        string   `yaml:"min_value"`
	States          []string `yaml:"states"`
	ShippingMethods []int    `yaml:"shipping_methods"`
	DiscountType    string   `yaml:"discount_type"`
	DiscountValue   string   `yaml:"discount_value"`
	ProductionDays  int      `yaml:"production_days"`
	Priority        int      `yaml:"priority"`
	Active          *bool    `yaml:"active"`
}

func main() {
	file := flag.String("file", "rules.yaml", "path to the YAML rule pack")
	flag.Parse()

	pack, err := loadRulePack(*file)
	if err != nil {
		log.Fatalf("Error loading rule pack: %v", err)
	}

	cfg := config.LoadConfig()
	database, err := db.NewDB(cfg.DSN, cfg.MigrationsDir)
	if err != nil {
		log.Fatalf("Error in connection to db: %v", err)
	}
	defer database.Close()

	repo := repository.NewRuleRepository(database)
	ctx := context.Background()

	for _, pr := range pack.Rules {
		rule, err := toRule(pr)
		if err != nil {
			log.Fatalf("Rule %q: %v", pr.Name, err)
		}
		if err := repo.Create(ctx, rule); err != nil {
			log.Fatalf("Rule %q: %v", pr.Name, err)
		}
		log.Printf("Seeded rule %q (id=%d)", rule.Name, rule.ID)
	}
	log.Printf("Seeded %d rules from %s", len(pack.Rules), *file)
}

func loadRulePack(path string) (rulePack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return rulePack{}, err
	}

	var pack rulePack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return rulePack{}, err
	}
	return pack, nil
}

func toRule(pr packRule) (*models.ShippingRule, error) {
	rule := &models.ShippingRule{
		Name:            pr.Name,
		RuleType:        models.RuleType(pr.RuleType),
		ConditionType:   models.ConditionType(pr.ConditionType),
		DiscountType:    models.DiscountType(pr.DiscountType),
		ShippingMethods: pr.ShippingMethods,
		ProductionDays:  pr.ProductionDays,
		Priority:        pr.Priority,
		Active:          pr.Active == nil || *pr.Active,
	}
	if rule.ConditionType == "" {
		rule.ConditionType = models.ConditionAll
	}
	if pr.MinValue != "" {
		min, err := decimal.NewFromString(pr.MinValue)
		if err != nil {
			return nil, err
		}
		rule.Condition.MinValue = &min
	}
	rule.Condition.States = pr.States
	if pr.DiscountValue != "" {
		v, err := decimal.NewFromString(pr.DiscountValue)
		if err != nil {
			return nil, err
		}
		rule.DiscountValue = v
	}
	return rule, nil
}

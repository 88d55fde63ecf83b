// Package shiprules applies the stored shipping business rules to a priced
// quote: surcharges first, then free shipping for the cheapest option, plus
// the global production lead time. The engine does no I/O; the caller loads
// the active rules (sorted by priority) and the production-days setting fresh
// on every request.
package shiprules

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/MichaelCampos91/pedidos-sub000/internal/models"
)

var oneHundred = decimal.NewFromInt(100)

// Result is the outcome of a single rule-engine run.
type Result struct {
	Options             []models.ShippingOption `json:"options"`
	AppliedRules        []models.AppliedRule    `json:"applied_rules"`
	ProductionDaysAdded int                     `json:"production_days_added"`
}

// Apply runs every active rule against the quoted options. Rules must come
// pre-filtered to active=true and sorted ascending by priority. The input
// slice is not modified; the returned options carry the adjusted prices and
// delivery estimates.
//
// Surcharge rules stack per option in priority order. Free shipping goes to
// at most one option: the cheapest after surcharges, first matching rule
// wins. Production days come from the global setting and are added once per
// option no matter how many rules fired.
func Apply(options []models.ShippingOption, orderValue decimal.Decimal, destinationState string, rules []models.ShippingRule, globalProductionDays int) (Result, error) {
	res := Result{
		Options:             make([]models.ShippingOption, len(options)),
		AppliedRules:        []models.AppliedRule{},
		ProductionDaysAdded: globalProductionDays,
	}
	if len(options) == 0 {
		return res, nil
	}
	copy(res.Options, options)

	prices := make([]decimal.Decimal, len(res.Options))
	for i, opt := range res.Options {
		p, err := decimal.NewFromString(opt.Price)
		if err != nil {
			return Result{}, fmt.Errorf("option %d: invalid price %q: %w", opt.ID, opt.Price, err)
		}
		prices[i] = p
	}

	// Pass 1: surcharges and lead time, per option in input order.
	for i := range res.Options {
		opt := &res.Options[i]
		final := prices[i]
		for _, rule := range rules {
			if rule.RuleType == models.RuleTypeFreeShipping {
				continue
			}
			if !ruleApplies(rule, orderValue, destinationState, opt.ID) {
				continue
			}
			if rule.RuleType != models.RuleTypeSurcharge {
				continue
			}
			surcharge := surchargeAmount(rule, final)
			before := final
			final = final.Add(surcharge)
			after := final
			res.AppliedRules = append(res.AppliedRules, models.AppliedRule{
				RuleID:        rule.ID,
				RuleType:      rule.RuleType,
				Applied:       true,
				OptionID:      opt.ID,
				OriginalPrice: &before,
				FinalPrice:    &after,
				Surcharge:     &surcharge,
			})
		}
		prices[i] = final
		opt.Price = final.StringFixed(2)

		if globalProductionDays > 0 {
			opt.DeliveryTime += globalProductionDays
			if opt.DeliveryRange != nil {
				r := *opt.DeliveryRange
				r.Min += globalProductionDays
				r.Max += globalProductionDays
				opt.DeliveryRange = &r
			}
		}
	}

	// Pass 2: free shipping for the single cheapest option. Ties keep the
	// first occurrence in input order.
	cheapest := 0
	for i := 1; i < len(prices); i++ {
		if prices[i].LessThan(prices[cheapest]) {
			cheapest = i
		}
	}
	for _, rule := range rules {
		if rule.RuleType != models.RuleTypeFreeShipping {
			continue
		}
		if !ruleApplies(rule, orderValue, destinationState, res.Options[cheapest].ID) {
			continue
		}
		opt := &res.Options[cheapest]
		original := prices[cheapest]
		zero := decimal.Zero
		originalStr := original.StringFixed(2)
		opt.OriginalPrice = &originalStr
		opt.Price = "0.00"
		res.AppliedRules = append(res.AppliedRules, models.AppliedRule{
			RuleID:        rule.ID,
			RuleType:      rule.RuleType,
			Applied:       true,
			OptionID:      opt.ID,
			OriginalPrice: &original,
			FinalPrice:    &zero,
		})
		break
	}

	return res, nil
}

// SurchargeTotal sums the surcharges every matching rule would add to an
// option priced basePrice, without touching the option. It shares the exact
// predicate used by Apply.
func SurchargeTotal(rules []models.ShippingRule, orderValue decimal.Decimal, destinationState string, optionID int, basePrice decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	running := basePrice
	for _, rule := range rules {
		if rule.RuleType != models.RuleTypeSurcharge {
			continue
		}
		if !ruleApplies(rule, orderValue, destinationState, optionID) {
			continue
		}
		s := surchargeAmount(rule, running)
		total = total.Add(s)
		running = running.Add(s)
	}
	return total
}

func surchargeAmount(rule models.ShippingRule, price decimal.Decimal) decimal.Decimal {
	if rule.DiscountType == models.DiscountPercentage {
		return price.Mul(rule.DiscountValue).Div(oneHundred)
	}
	return rule.DiscountValue
}

// ruleApplies decides whether a rule gates in for the given order context and
// shipping option. An "all" condition or an empty bag matches everything.
// Otherwise every predicate present in the bag must hold; a bag holding only
// keys we no longer map falls back to the legacy single-predicate behavior
// keyed by condition_type.
func ruleApplies(rule models.ShippingRule, orderValue decimal.Decimal, destinationState string, optionID int) bool {
	if rule.ConditionType == models.ConditionAll || rule.Condition.Empty() {
		return true
	}

	cond := rule.Condition
	methods := unionMethods(cond.ShippingMethods, rule.ShippingMethods)

	hasMin := cond.MinValue != nil
	hasStates := len(cond.States) > 0
	hasMethods := len(methods) > 0

	if !hasMin && !hasStates && !hasMethods {
		// Legacy rows: a non-empty bag with none of the known predicates.
		switch rule.ConditionType {
		case models.ConditionMinValue:
			return cond.MinValue != nil && orderValue.GreaterThanOrEqual(*cond.MinValue)
		case models.ConditionStates:
			return stateIn(destinationState, cond.States)
		case models.ConditionShippingMethods:
			return methodIn(optionID, methods)
		default:
			return true
		}
	}

	if hasMin && orderValue.LessThan(*cond.MinValue) {
		return false
	}
	if hasStates && !stateIn(destinationState, cond.States) {
		return false
	}
	if hasMethods && !methodIn(optionID, methods) {
		return false
	}
	return true
}

func stateIn(state string, states []string) bool {
	if state == "" {
		return false
	}
	state = strings.ToUpper(strings.TrimSpace(state))
	for _, s := range states {
		if strings.ToUpper(strings.TrimSpace(s)) == state {
			return true
		}
	}
	return false
}

func methodIn(id int, methods []int) bool {
	for _, m := range methods {
		if m == id {
			return true
		}
	}
	return false
}

func unionMethods(primary, fallback []int) []int {
	if len(fallback) == 0 {
		return primary
	}
	out := make([]int, 0, len(primary)+len(fallback))
	seen := make(map[int]struct{}, len(primary)+len(fallback))
	for _, m := range primary {
		if _, ok := seen[m]; !ok {
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	for _, m := range fallback {
		if _, ok := seen[m]; !ok {
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}

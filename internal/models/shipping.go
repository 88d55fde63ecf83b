package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type RuleType string

const (
	RuleTypeFreeShipping   RuleType = "free_shipping"
	RuleTypeSurcharge      RuleType = "surcharge"
	RuleTypeProductionDays RuleType = "production_days"
	// RuleTypeDiscount exists in stored data but is disabled; the engine
	// ignores rules carrying it.
	RuleTypeDiscount RuleType = "discount"
)

type ConditionType string

const (
	ConditionAll             ConditionType = "all"
	ConditionMinValue        ConditionType = "min_value"
	ConditionStates          ConditionType = "states"
	ConditionShippingMethods ConditionType = "shipping_methods"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// DeliveryRange is the min/max business-day estimate quoted by the carrier.
type DeliveryRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// ShippingOption is one priced delivery method returned by the rate
// aggregator. Price is a decimal string in the local currency; the rule
// engine rewrites it in place.
type ShippingOption struct {
	ID            int            `json:"id"`
	Name          string         `json:"name"`
	Carrier       string         `json:"carrier,omitempty"`
	Price         string         `json:"price"`
	DeliveryTime  int            `json:"delivery_time"`
	DeliveryRange *DeliveryRange `json:"delivery_range,omitempty"`
	// OriginalPrice is set only when free shipping zeroes this option.
	OriginalPrice *string `json:"original_price,omitempty"`
}

// RuleCondition is the condition bag stored in the condition_value column.
// Presence of a field activates that predicate; an empty bag matches
// everything. Stored rows predate the current shape, so the decoder also
// accepts a bare number (minimum value), a bare array (states or method ids)
// and objects carrying keys we no longer recognize.
type RuleCondition struct {
	MinValue        *decimal.Decimal `json:"min_value,omitempty"`
	States          []string         `json:"states,omitempty"`
	ShippingMethods []int            `json:"shipping_methods,omitempty"`

	// legacyKeys is true when a stored bag held only keys we do not map;
	// such a bag is still non-empty and falls back to the condition_type
	// single-predicate path.
	legacyKeys bool
}

func (c RuleCondition) Empty() bool {
	return c.MinValue == nil && len(c.States) == 0 && len(c.ShippingMethods) == 0 && !c.legacyKeys
}

func (c *RuleCondition) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	switch trimmed[0] {
	case '{':
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		known := 0
		if v, ok := raw["min_value"]; ok {
			d, err := decodeLooseDecimal(v)
			if err != nil {
				return fmt.Errorf("condition min_value: %w", err)
			}
			c.MinValue = d
			known++
		}
		if v, ok := raw["states"]; ok {
			if err := json.Unmarshal(v, &c.States); err != nil {
				return fmt.Errorf("condition states: %w", err)
			}
			known++
		}
		if v, ok := raw["shipping_methods"]; ok {
			if err := json.Unmarshal(v, &c.ShippingMethods); err != nil {
				return fmt.Errorf("condition shipping_methods: %w", err)
			}
			known++
		}
		c.legacyKeys = len(raw) > 0 && known == 0
		return nil
	case '[':
		var states []string
		if err := json.Unmarshal(trimmed, &states); err == nil {
			c.States = states
			return nil
		}
		var methods []int
		if err := json.Unmarshal(trimmed, &methods); err != nil {
			return fmt.Errorf("condition array: %w", err)
		}
		c.ShippingMethods = methods
		return nil
	default:
		d, err := decodeLooseDecimal(trimmed)
		if err != nil {
			return fmt.Errorf("condition scalar: %w", err)
		}
		c.MinValue = d
		return nil
	}
}

// decodeLooseDecimal accepts both 200 and "200.00".
func decodeLooseDecimal(raw json.RawMessage) (*decimal.Decimal, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	return &d, nil
}

type ShippingRule struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	RuleType      RuleType        `json:"rule_type"`
	ConditionType ConditionType   `json:"condition_type"`
	Condition     RuleCondition   `json:"condition_value"`
	DiscountType  DiscountType    `json:"discount_type,omitempty"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	// ShippingMethods is a second, legacy location for the modality filter;
	// the engine unions it with Condition.ShippingMethods.
	ShippingMethods []int     `json:"shipping_methods,omitempty"`
	ProductionDays  int       `json:"production_days"`
	Priority        int       `json:"priority"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// AppliedRule is the audit record emitted for every rule that fired.
type AppliedRule struct {
	RuleID              int64            `json:"rule_id"`
	RuleType            RuleType         `json:"rule_type"`
	Applied             bool             `json:"applied"`
	OptionID            int              `json:"option_id,omitempty"`
	OriginalPrice       *decimal.Decimal `json:"original_price,omitempty"`
	FinalPrice          *decimal.Decimal `json:"final_price,omitempty"`
	Surcharge           *decimal.Decimal `json:"surcharge,omitempty"`
	ProductionDaysAdded int              `json:"production_days_added,omitempty"`
}

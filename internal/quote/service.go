// Package quote prices a checkout: it fetches carrier rates from the
// aggregator (through the Redis cache), loads the active shipping rules and
// the production-days setting fresh from storage, and runs the rule engine.
package quote

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"github.com/MichaelCampos91/pedidos-sub000/internal/gateway"
	"github.com/MichaelCampos91/pedidos-sub000/internal/models"
	"github.com/MichaelCampos91/pedidos-sub000/internal/shiprules"
)

type RuleSource interface {
	ActiveRules(ctx context.Context) ([]models.ShippingRule, error)
}

type SettingsSource interface {
	ProductionDays(ctx context.Context) (int, error)
}

// OptionCache is the Redis rate cache; a nil cache disables caching.
type OptionCache interface {
	Get(ctx context.Context, req gateway.QuoteRequest) ([]models.ShippingOption, error)
	Set(ctx context.Context, req gateway.QuoteRequest, options []models.ShippingOption) error
}

type Request struct {
	DestinationZip   string          `json:"destination_zip"`
	DestinationState string          `json:"destination_state,omitempty"`
	OrderValue       decimal.Decimal `json:"order_value"`
	WeightKg         decimal.Decimal `json:"weight_kg"`
}

type Response struct {
	Options             []models.ShippingOption `json:"options"`
	AppliedRules        []models.AppliedRule    `json:"applied_rules"`
	ProductionDaysAdded int                     `json:"production_days_added"`
}

type Service struct {
	quoter   gateway.RateQuoter
	rules    RuleSource
	settings SettingsSource
	cache    OptionCache
}

func NewService(quoter gateway.RateQuoter, rules RuleSource, settings SettingsSource, cache OptionCache) *Service {
	return &Service{quoter: quoter, rules: rules, settings: settings, cache: cache}
}

func (s *Service) Quote(ctx context.Context, req Request) (*Response, error) {
	if req.DestinationZip == "" {
		return nil, fmt.Errorf("destination zip is required")
	}
	if req.OrderValue.IsNegative() {
		return nil, fmt.Errorf("order value must be non-negative")
	}

	gwReq := gateway.QuoteRequest{
		DestinationZip:   req.DestinationZip,
		DestinationState: req.DestinationState,
		WeightKg:         req.WeightKg,
		DeclaredValue:    req.OrderValue,
	}

	options, err := s.lookupRates(ctx, gwReq)
	if err != nil {
		return nil, err
	}

	rules, err := s.rules.ActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active rules: %w", err)
	}
	days, err := s.settings.ProductionDays(ctx)
	if err != nil {
		return nil, fmt.Errorf("load production days: %w", err)
	}

	result, err := shiprules.Apply(options, req.OrderValue, req.DestinationState, rules, days)
	if err != nil {
		return nil, fmt.Errorf("apply shipping rules: %w", err)
	}

	return &Response{
		Options:             result.Options,
		AppliedRules:        result.AppliedRules,
		ProductionDaysAdded: result.ProductionDaysAdded,
	}, nil
}

// lookupRates serves rates from the cache when possible. Cache failures are
// logged and fall through to the aggregator; a broken Redis must not break
// checkout.
func (s *Service) lookupRates(ctx context.Context, req gateway.QuoteRequest) ([]models.ShippingOption, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, req)
		if err != nil {
			log.Printf("quote cache read failed: %v", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	options, err := s.quoter.Quote(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("aggregator quote: %w", err)
	}

	if s.cache != nil && len(options) > 0 {
		if err := s.cache.Set(ctx, req, options); err != nil {
			log.Printf("quote cache write failed: %v", err)
		}
	}
	return options, nil
}

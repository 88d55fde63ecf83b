// Package gateway holds the HTTP clients for the third-party providers: the
// shipping-rate aggregator, the payment gateway and the ERP.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MichaelCampos91/pedidos-sub000/internal/models"
)

// QuoteRequest describes one parcel to be priced by the aggregator.
type QuoteRequest struct {
	DestinationZip   string          `json:"destination_zip"`
	DestinationState string          `json:"destination_state,omitempty"`
	WeightKg         decimal.Decimal `json:"weight_kg"`
	DeclaredValue    decimal.Decimal `json:"declared_value"`
}

// RateQuoter is what the quote service needs from the aggregator.
type RateQuoter interface {
	Quote(ctx context.Context, req QuoteRequest) ([]models.ShippingOption, error)
}

// FreightClient talks to the external shipping-rate aggregator.
type FreightClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewFreightClient(baseURL, token string) *FreightClient {
	return &FreightClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type freightQuoteResponse struct {
	Services []struct {
		ServiceID     int     `json:"service_id"`
		ServiceName   string  `json:"service_name"`
		Carrier       string  `json:"carrier"`
		Price         string  `json:"price"`
		DeliveryTime  int     `json:"delivery_time"`
		DeliveryRange *struct {
			Min int `json:"min"`
			Max int `json:"max"`
		} `json:"delivery_range"`
		Error string `json:"error,omitempty"`
	} `json:"services"`
}

func (c *FreightClient) Quote(ctx context.Context, req QuoteRequest) ([]models.ShippingOption, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode quote request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/shipping/quote", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build quote request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("token", c.token)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("quote request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("aggregator returned %d: %s", resp.StatusCode, data)
	}

	var decoded freightQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode quote response: %w", err)
	}

	var options []models.ShippingOption
	for _, svc := range decoded.Services {
		// services the aggregator could not price come back with an error
		// string and no usable price
		if svc.Error != "" {
			continue
		}
		opt := models.ShippingOption{
			ID:           svc.ServiceID,
			Name:         svc.ServiceName,
			Carrier:      svc.Carrier,
			Price:        svc.Price,
			DeliveryTime: svc.DeliveryTime,
		}
		if svc.DeliveryRange != nil {
			opt.DeliveryRange = &models.DeliveryRange{Min: svc.DeliveryRange.Min, Max: svc.DeliveryRange.Max}
		}
		options = append(options, opt)
	}
	return options, nil
}

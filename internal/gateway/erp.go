package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MichaelCampos91/pedidos-sub000/internal/models"
)

// OrderPusher is what the outbox processor needs from the ERP.
type OrderPusher interface {
	PushOrder(ctx context.Context, order *models.Order) error
}

// ERPClient mirrors paid orders into the ERP.
type ERPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewERPClient(baseURL, token string) *ERPClient {
	return &ERPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *ERPClient) PushOrder(ctx context.Context, order *models.Order) error {
	body, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode erp order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build erp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("erp request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("erp returned %d: %s", resp.StatusCode, data)
	}
	return nil
}

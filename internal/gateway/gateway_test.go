package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MichaelCampos91/pedidos-sub000/internal/gateway"
	"github.com/MichaelCampos91/pedidos-sub000/internal/models"
)

func TestWebhookSignatureRoundTrip(t *testing.T) {
	body := []byte(`{"event_id":"evt-1","order_id":"o-1","status":"approved"}`)

	sig := gateway.SignWebhookPayload(body, "secret")
	assert.True(t, gateway.VerifyWebhookSignature(body, sig, "secret"))
	assert.False(t, gateway.VerifyWebhookSignature(body, sig, "other-secret"))
	assert.False(t, gateway.VerifyWebhookSignature([]byte(`{"tampered":true}`), sig, "secret"))
	assert.False(t, gateway.VerifyWebhookSignature(body, "", "secret"))
}

func TestFreightClientQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/shipping/quote", r.URL.Path)
		assert.Equal(t, "test-token", r.Header.Get("token"))

		var req gateway.QuoteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "01310-100", req.DestinationZip)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"services": [
			{"service_id": 1, "service_name": "PAC", "carrier": "Correios", "price": "22.50", "delivery_time": 8, "delivery_range": {"min": 6, "max": 8}},
			{"service_id": 2, "service_name": "SEDEX", "carrier": "Correios", "price": "41.90", "delivery_time": 3},
			{"service_id": 3, "service_name": "Motoboy", "error": "area not covered"}
		]}`))
	}))
	defer srv.Close()

	client := gateway.NewFreightClient(srv.URL, "test-token")
	options, err := client.Quote(context.Background(), gateway.QuoteRequest{
		DestinationZip: "01310-100",
		WeightKg:       decimal.RequireFromString("1.2"),
		DeclaredValue:  decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	// the errored service is dropped
	require.Len(t, options, 2)
	assert.Equal(t, "PAC", options[0].Name)
	assert.Equal(t, "22.50", options[0].Price)
	require.NotNil(t, options[0].DeliveryRange)
	assert.Equal(t, 6, options[0].DeliveryRange.Min)
	assert.Nil(t, options[1].DeliveryRange)
}

func TestFreightClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := gateway.NewFreightClient(srv.URL, "test-token")
	_, err := client.Quote(context.Background(), gateway.QuoteRequest{DestinationZip: "01310-100"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestPaymentClientCreateCharge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/charges", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))

		var req gateway.ChargeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "o-1", req.OrderID)
		assert.Equal(t, "tok_abc", req.CardToken)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"payment_id": "pay-1", "status": "approved"}`))
	}))
	defer srv.Close()

	client := gateway.NewPaymentClient(srv.URL, "sk_test")
	resp, err := client.CreateCharge(context.Background(), gateway.ChargeRequest{
		OrderID:   "o-1",
		Amount:    decimal.RequireFromString("122.50"),
		CardToken: "tok_abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "pay-1", resp.PaymentID)
	assert.Equal(t, gateway.PaymentStatusApproved, resp.Status)
}

func TestPaymentClientRefusal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"invalid card"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := gateway.NewPaymentClient(srv.URL, "sk_test")
	_, err := client.CreateCharge(context.Background(), gateway.ChargeRequest{OrderID: "o-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}

func TestERPClientPushOrder(t *testing.T) {
	var pushed models.Order
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)
		assert.Equal(t, "Bearer erp-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&pushed))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := gateway.NewERPClient(srv.URL, "erp-token")
	err := client.PushOrder(context.Background(), &models.Order{
		ID:     "o-1",
		Status: models.OrderStatusPaid,
		Total:  decimal.RequireFromString("122.50"),
	})
	require.NoError(t, err)
	assert.Equal(t, "o-1", pushed.ID)
}

func TestERPClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "duplicate order", http.StatusConflict)
	}))
	defer srv.Close()

	client := gateway.NewERPClient(srv.URL, "erp-token")
	err := client.PushOrder(context.Background(), &models.Order{ID: "o-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
}

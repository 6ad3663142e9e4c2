package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-club-ticketing/internal/apperr"
	"ms-club-ticketing/internal/config"
	"ms-club-ticketing/internal/logger"
	"ms-club-ticketing/internal/models"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *AsaasClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewAsaasClient(config.AsaasConfig{BaseURL: srv.URL + "/", APIKey: "key-123", Timeout: 2 * time.Second}, logger.Discard())
}

func TestAsaasClient_CreateCharge(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "key-123", r.Header.Get("access_token"))

		var body ChargeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, models.BillingPix, body.BillingType)
		assert.Equal(t, 60.0, body.Value)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"pay_123","billingType":"PIX","status":"PENDING","value":60,"invoiceUrl":"https://asaas/i/pay_123"}`))
	})

	charge, err := client.CreateCharge(context.Background(), ChargeRequest{Customer: "cus_1", Value: 60, BillingType: models.BillingPix})
	require.NoError(t, err)
	assert.Equal(t, "pay_123", charge.ID)
	assert.Equal(t, "https://asaas/i/pay_123", charge.InvoiceURL)
}

func TestAsaasClient_Rejection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"code":"invalid_customer","description":"Customer not found"}]}`))
	})

	_, err := client.CreateCharge(context.Background(), ChargeRequest{})
	var ve *apperr.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Error(), "Customer not found")
}

func TestAsaasClient_GatewayDown(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.CreateCharge(context.Background(), ChargeRequest{})
	var ue *apperr.UpstreamUnavailableError
	assert.True(t, errors.As(err, &ue))
}

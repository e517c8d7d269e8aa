package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/rfqmarket-backend/pkg/config"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rfqmarket-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(config.PaymentsConfig{SecretKey: "test_sk"}, nil, WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	require.NoError(t, err)
	return client
}

func TestConfirmSendsAuthAndIdempotencyKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payments/confirm", r.URL.Path)
		assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("test_sk:")), r.Header.Get("Authorization"))
		assert.Equal(t, "idem-1", r.Header.Get("Idempotency-Key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "pay_1", body["paymentKey"])
		assert.Equal(t, float64(950000), body["amount"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"paymentKey":  "pay_1",
			"orderId":     body["orderId"],
			"status":      "DONE",
			"method":      "CARD",
			"totalAmount": 950000,
			"approvedAt":  "2026-03-01T10:00:00+09:00",
		})
	})

	payment, err := client.Confirm(context.Background(), ConfirmRequest{
		PaymentKey:     "pay_1",
		OrderID:        "order-1",
		Amount:         950000,
		IdempotencyKey: "idem-1",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusDone, payment.Status)
	assert.Equal(t, "CARD", payment.Method)
	assert.Equal(t, 1, payment.ApprovedTime().Hour())
}

func TestCancelEscapesPaymentKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/pay%2F1/cancel", r.URL.EscapedPath())
		_ = json.NewEncoder(w).Encode(map[string]any{"paymentKey": "pay/1", "status": "CANCELED"})
	})

	payment, err := client.Cancel(context.Background(), CancelRequest{PaymentKey: "pay/1", Reason: "buyer request"})
	require.NoError(t, err)
	assert.True(t, payment.Status.IsCanceled())
}

func TestGatewayErrorsMapToDomainCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
		want   pkgerrors.Code
	}{
		{name: "already processed", status: http.StatusBadRequest, code: "ALREADY_PROCESSED_PAYMENT", want: pkgerrors.CodeAlreadyProcessed},
		{name: "unauthorized", status: http.StatusUnauthorized, code: "UNAUTHORIZED_KEY", want: pkgerrors.CodeUnauthorized},
		{name: "not found", status: http.StatusNotFound, code: "NOT_FOUND_PAYMENT", want: pkgerrors.CodeNotFound},
		{name: "rejected card", status: http.StatusBadRequest, code: "REJECT_CARD_PAYMENT", want: pkgerrors.CodeValidation},
		{name: "gateway down", status: http.StatusInternalServerError, code: "FAILED_INTERNAL_SYSTEM_PROCESSING", want: pkgerrors.CodeDependency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(map[string]string{"code": tt.code, "message": "gateway said no"})
			})
			_, err := client.Confirm(context.Background(), ConfirmRequest{PaymentKey: "pay_1", OrderID: "o", Amount: 1})
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, tt.want), "got %v", err)
		})
	}
}

func TestNewClientRequiresSecret(t *testing.T) {
	_, err := NewClient(config.PaymentsConfig{BaseURL: "https://example.test"}, nil)
	require.Error(t, err)
}

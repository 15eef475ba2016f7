package processor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePayout(t *testing.T) {
	var gotAuth string
	var gotBody PayoutRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/payouts", r.URL.Path)

		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(PayoutResult{
			PayoutID:             "p-123",
			Status:               PayoutStatusSent,
			ReceiverName:         "J*** D***",
			BankTransactionRefNo: "REF-1",
		})
	}))
	defer server.Close()

	client := New(server.URL, "secret-key")

	result, err := client.CreatePayout(context.Background(), &PayoutRequest{
		Amount:            100.50,
		IBAN:              "TR320010009999901234567890",
		AccountHolderName: "Jane Doe",
		Reference:         "w-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, 100.50, gotBody.Amount)
	assert.Equal(t, "p-123", result.PayoutID)
	assert.Equal(t, PayoutStatusSent, result.Status)
}

func TestCreatePayoutServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(server.URL, "secret-key")

	_, err := client.CreatePayout(context.Background(), &PayoutRequest{Amount: 10})
	require.Error(t, err)
}

func TestCommissionQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/commissions", r.URL.Path)
		require.Equal(t, "100.50", r.URL.Query().Get("amount"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(CommissionResult{CommissionAmount: 2.75})
	}))
	defer server.Close()

	client := New(server.URL, "secret-key")

	fee, err := client.CommissionQuote(context.Background(), 100.5)
	require.NoError(t, err)
	assert.Equal(t, 2.75, fee)
}

func TestGetPayout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payouts/p-9", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(PayoutResult{PayoutID: "p-9", Status: PayoutStatusProcessing})
	}))
	defer server.Close()

	client := New(server.URL, "secret-key")

	result, err := client.GetPayout(context.Background(), "p-9")
	require.NoError(t, err)
	assert.Equal(t, PayoutStatusProcessing, result.Status)
}

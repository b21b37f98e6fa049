package redemption

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aurumfi/goldvault/internal/domain"
)

const (
	testWallet = "0x4444444444444444444444444444444444444444"
	testBank   = "1234567890"
)

func TestSubmitSelfServiceValidatesBeforeSending(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	ctx := context.Background()
	amount := big.NewInt(1_000_000)

	_, err := c.SubmitSelfService(ctx, "0xabc", amount, testBank, "not-an-address")
	require.ErrorIs(t, err, domain.ErrInvalidAddress)

	_, err = c.SubmitSelfService(ctx, "0xabc", amount, "12345", testWallet)
	require.ErrorIs(t, err, domain.ErrInvalidBankAccount)

	_, err = c.SubmitSelfService(ctx, "0xabc", amount, "1234567890123", testWallet)
	require.ErrorIs(t, err, domain.ErrInvalidBankAccount)

	_, err = c.SubmitSelfService(ctx, "0xabc", big.NewInt(0), testBank, testWallet)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = c.SubmitSelfService(ctx, "0xabc", nil, testBank, testWallet)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	require.Zero(t, requests, "validation failures must not reach the service")
}

func TestSubmitSelfServiceRejectsAboveCeiling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request should not be sent")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	over := new(big.Int).Add(domain.SelfServiceCeiling, big.NewInt(1))

	_, err := c.SubmitSelfService(context.Background(), "0xabc", over, testBank, testWallet)
	require.ErrorIs(t, err, domain.ErrAmountAboveCeiling)
	require.Contains(t, err.Error(), "treasury")
}

func TestSubmitSelfServiceAtCeilingIsAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/redemptions/self-service", r.URL.Path)

		var req apiSelfServiceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, domain.SelfServiceCeiling.String(), req.Amount)
		require.Equal(t, testWallet, req.WalletAddress)

		json.NewEncoder(w).Encode(apiSelfServiceResponse{
			ID:              "red-42",
			ReferenceNumber: "REF-2024-0042",
			Status:          "pending",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	red, err := c.SubmitSelfService(context.Background(), "0xabc", domain.SelfServiceCeiling, testBank, testWallet)

	require.NoError(t, err)
	require.Equal(t, "red-42", red.ID)
	require.Equal(t, "REF-2024-0042", red.ReferenceNumber)
	require.Equal(t, domain.RedemptionPending, red.Status)
	require.Equal(t, "0xabc", red.TxHash)
}

func TestSubmitTreasuryAssistedAllowsLargeAmounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/redemptions/treasury", r.URL.Path)
		json.NewEncoder(w).Encode(apiTreasuryResponse{
			Status:                  "processing",
			EstimatedProcessingSecs: 172800,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	over := new(big.Int).Mul(domain.SelfServiceCeiling, big.NewInt(4))

	receipt, err := c.SubmitTreasuryAssisted(context.Background(), over, testBank, testWallet)
	require.NoError(t, err)
	require.Equal(t, domain.RedemptionProcessing, receipt.Status)
	require.Equal(t, int64(172800), int64(receipt.EstimatedProcessingTime.Seconds()))
}

func TestCheckStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/redemptions/red-42", r.URL.Path)
		json.NewEncoder(w).Encode(apiStatusResponse{
			ID:     "red-42",
			Status: "completed",
			Amount: "1000000",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	red, err := c.CheckStatus(context.Background(), "red-42")

	require.NoError(t, err)
	require.Equal(t, domain.RedemptionCompleted, red.Status)
	require.Equal(t, big.NewInt(1_000_000), red.Amount)
	require.True(t, red.Status.Terminal())
}

func TestCheckStatusNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such redemption", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.CheckStatus(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

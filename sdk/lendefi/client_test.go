package lendefi

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var testAsset = common.HexToAddress("0x00000000000000000000000000000000000000E1")

func TestDepositSendsBearerAndParsesShares(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/vault/deposit", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "1000000", body["amount"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"shares":"1000000"}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "tok")
	shares, err := client.Deposit(context.Background(), big.NewInt(1_000_000), SlippageGuard{})
	require.NoError(t, err)
	require.Zero(t, shares.Cmp(big.NewInt(1_000_000)))
}

func TestPositionRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, "/v1/positions/")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"owner":"0x0000000000000000000000000000000000000001",
			"positionId":3,
			"isolated":false,
			"status":"ACTIVE",
			"tier":"CROSS_A",
			"debt":"2000000000",
			"creditLimit":"2000000000",
			"healthFactor":"1062500",
			"collateral":{"` + testAsset.Hex() + `":"1000000000000000000"}
		}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "tok")
	pos, err := client.Position(context.Background(), common.HexToAddress("0x1"), 3)
	require.NoError(t, err)
	require.Equal(t, uint64(3), pos.ID)
	require.Equal(t, "CROSS_A", pos.Tier)
	require.Zero(t, pos.Debt.Cmp(big.NewInt(2_000_000_000)))
	require.Zero(t, pos.Collateral[testAsset].Cmp(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)))
}

func TestAPIErrorCarriesRequestID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"lending: debt would exceed credit limit","requestId":"req-1"}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "tok")
	err := client.Borrow(context.Background(), 0, big.NewInt(1), SlippageGuard{})
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	require.Equal(t, http.StatusConflict, apiErr.Status)
	require.Equal(t, "req-1", apiErr.RequestID)
	require.Contains(t, apiErr.Message, "credit limit")
}

func TestPoolStatusParsing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/vault/pool", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"totalAssets":"10000000000",
			"availableLiquidity":"8000000000",
			"utilization":"200000",
			"supplyRate":"12000",
			"borrowRate":"76000"
		}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "tok")
	status, err := client.PoolStatus(context.Background())
	require.NoError(t, err)
	require.Zero(t, status.Utilization.Cmp(big.NewInt(200_000)))
	require.Zero(t, status.BorrowRate.Cmp(big.NewInt(76_000)))
}

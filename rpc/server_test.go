package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/LendefiMarkets/lendefi-markets-polygon/native/assets"
	nativecommon "github.com/LendefiMarkets/lendefi-markets-polygon/native/common"
	"github.com/LendefiMarkets/lendefi-markets-polygon/native/lending"
	"github.com/LendefiMarkets/lendefi-markets-polygon/native/oracle"
	"github.com/LendefiMarkets/lendefi-markets-polygon/native/vault"
	"github.com/LendefiMarkets/lendefi-markets-polygon/state"
	"github.com/LendefiMarkets/lendefi-markets-polygon/storage"
)

var (
	baseAsset  = common.HexToAddress("0x00000000000000000000000000000000000000B0")
	ethAsset   = common.HexToAddress("0x00000000000000000000000000000000000000E1")
	govToken   = common.HexToAddress("0x00000000000000000000000000000000000000C0")
	treasury   = common.HexToAddress("0x00000000000000000000000000000000000000A0")
	adminAddr  = common.HexToAddress("0x00000000000000000000000000000000000000AD")
	vaultAddr  = common.HexToAddress("0x00000000000000000000000000000000000000F0")
	engineAddr = common.HexToAddress("0x00000000000000000000000000000000000000E0")
	userAddr   = common.HexToAddress("0x0000000000000000000000000000000000000001")
	lenderAddr = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

type stubFeed struct {
	answer *big.Int
}

func (f *stubFeed) LatestRound() (oracle.RoundData, error) {
	return oracle.RoundData{RoundID: 1, Answer: f.answer, UpdatedAt: time.Now()}, nil
}

func (f *stubFeed) Decimals() uint8 { return 8 }

type testEnv struct {
	t       *testing.T
	manager *state.Manager
	ledger  *state.TokenLedger
	vault   *vault.Vault
	engine  *lending.Engine
	auth    *Authenticator
	server  *httptest.Server
	height  uint64
}

func usdc(amount int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(amount), big.NewInt(1_000_000))
}

func eth(amount int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(amount), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func newTestEnv(t *testing.T, quotas map[string]nativecommon.Quota) *testEnv {
	t.Helper()

	manager, err := state.NewManager(storage.NewMemDB())
	require.NoError(t, err)
	ledger := state.NewTokenLedger(manager)

	registry := assets.NewRegistry(adminAddr)
	ethFeed := common.HexToAddress("0x00000000000000000000000000000000000000FE")
	require.NoError(t, registry.Upsert(adminAddr, assets.Asset{
		Address:                 ethAsset,
		Active:                  true,
		Decimals:                18,
		BorrowThresholdBps:      8_000,
		LiquidationThresholdBps: 8_500,
		MaxSupplyThreshold:      eth(1_000_000),
		Tier:                    assets.TierCrossA,
		Oracle:                  assets.OracleConfig{Feed: ethFeed, MinOracleCount: 1},
	}))

	aggregator := oracle.NewAggregator(registry, oracle.Config{})
	aggregator.RegisterFeed(ethFeed, &stubFeed{answer: big.NewInt(2_500 * 100_000_000)})

	env := &testEnv{t: t, manager: manager, ledger: ledger, height: 1}
	require.NoError(t, manager.SetHeight(env.height))

	v, err := vault.New(vault.Params{
		State:    manager,
		Token:    ledger.Bind(baseAsset),
		Pauses:   manager,
		Address:  vaultAddr,
		Ledger:   engineAddr,
		Treasury: treasury,
		Admin:    adminAddr,
		Height:   manager.Height,
		Config:   vault.DefaultProtocolConfig(),
	})
	require.NoError(t, err)

	engine, err := lending.New(lending.Params{
		State:        manager,
		Registry:     registry,
		Oracle:       aggregator,
		Vault:        v,
		Tokens:       ledger,
		GovToken:     ledger.Bind(govToken),
		Pauses:       manager,
		Self:         engineAddr,
		BaseDecimals: 6,
		Height:       manager.Height,
	})
	require.NoError(t, err)

	auth := NewAuthenticator("test-secret", "lendefi-test", nil)
	srv := NewServer(Params{
		Vault:    v,
		Engine:   engine,
		Registry: registry,
		Prices:   aggregator,
		Pauser:   manager,
		Admin:    adminAddr,
		Auth:     auth,
		Quotas:   quotas,
	})

	env.vault = v
	env.engine = engine
	env.auth = auth
	env.server = httptest.NewServer(srv.Handler())
	t.Cleanup(env.server.Close)
	return env
}

// advance bumps the ordering height so consecutive operations by one caller
// clear the same-unit guard.
func (env *testEnv) advance() {
	env.height++
	require.NoError(env.t, env.manager.SetHeight(env.height))
}

func (env *testEnv) request(caller common.Address, method, path string, body any) (*http.Response, []byte) {
	env.t.Helper()
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(env.t, err)
		payload = raw
	}
	req, err := http.NewRequest(method, env.server.URL+path, bytes.NewReader(payload))
	require.NoError(env.t, err)
	if caller != (common.Address{}) {
		token, err := env.auth.IssueToken(caller, time.Hour)
		require.NoError(env.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := env.server.Client().Do(req)
	require.NoError(env.t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(env.t, err)
	return resp, buf.Bytes()
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, _ := env.request(common.Address{}, http.MethodGet, "/v1/vault/pool", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthzIsPublic(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, body := env.request(common.Address{}, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", string(body))
}

func TestDepositAndPoolStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.ledger.Mint(baseAsset, lenderAddr, usdc(10_000)))

	resp, body := env.request(lenderAddr, http.MethodPost, "/v1/vault/deposit", depositRequest{Amount: usdc(5_000).String()})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var shares sharesResponse
	require.NoError(t, json.Unmarshal(body, &shares))
	require.Equal(t, usdc(5_000).String(), shares.Shares)

	resp, body = env.request(lenderAddr, http.MethodGet, "/v1/vault/pool", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pool poolStatusResponse
	require.NoError(t, json.Unmarshal(body, &pool))
	require.Equal(t, usdc(5_000).String(), pool.TotalAssets)
	require.Equal(t, "0", pool.Utilization)
}

func TestBorrowLifecycleOverREST(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.ledger.Mint(baseAsset, lenderAddr, usdc(10_000)))
	require.NoError(t, env.ledger.Mint(ethAsset, userAddr, eth(2)))

	resp, body := env.request(lenderAddr, http.MethodPost, "/v1/vault/deposit", depositRequest{Amount: usdc(10_000).String()})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	env.advance()

	resp, body = env.request(userAddr, http.MethodPost, "/v1/positions/", createPositionRequest{Asset: ethAsset.Hex()})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var created createPositionResponse
	require.NoError(t, json.Unmarshal(body, &created))

	path := fmt.Sprintf("/v1/positions/%d/collateral", created.PositionID)
	resp, body = env.request(userAddr, http.MethodPost, path, collateralRequest{Asset: ethAsset.Hex(), Amount: eth(1).String()})
	require.Equal(t, http.StatusNoContent, resp.StatusCode, string(body))
	env.advance()

	// 1 ETH at $2500 with an 80% borrow threshold backs exactly 2000 USDC.
	path = fmt.Sprintf("/v1/positions/%d/borrow", created.PositionID)
	resp, body = env.request(userAddr, http.MethodPost, path, borrowRequest{Amount: usdc(2_000).String()})
	require.Equal(t, http.StatusNoContent, resp.StatusCode, string(body))

	balance, err := env.ledger.BalanceOf(baseAsset, userAddr)
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(usdc(2_000)))

	path = fmt.Sprintf("/v1/positions/%s/%d", userAddr.Hex(), created.PositionID)
	resp, body = env.request(userAddr, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pos positionResponse
	require.NoError(t, json.Unmarshal(body, &pos))
	require.Equal(t, usdc(2_000).String(), pos.Debt)
	require.Equal(t, "CROSS_A", pos.Tier)
	require.Equal(t, eth(1).String(), pos.Collateral[ethAsset.Hex()])

	env.advance()
	path = fmt.Sprintf("/v1/positions/%d/repay", created.PositionID)
	resp, body = env.request(userAddr, http.MethodPost, path, repayRequest{Amount: usdc(2_000).String()})
	require.Equal(t, http.StatusNoContent, resp.StatusCode, string(body))
}

func TestBorrowBeyondCreditLimitMapsToConflict(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.ledger.Mint(baseAsset, lenderAddr, usdc(10_000)))
	require.NoError(t, env.ledger.Mint(ethAsset, userAddr, eth(1)))

	resp, _ := env.request(lenderAddr, http.MethodPost, "/v1/vault/deposit", depositRequest{Amount: usdc(10_000).String()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	env.advance()

	resp, body := env.request(userAddr, http.MethodPost, "/v1/positions/", createPositionRequest{Asset: ethAsset.Hex()})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created createPositionResponse
	require.NoError(t, json.Unmarshal(body, &created))

	path := fmt.Sprintf("/v1/positions/%d/collateral", created.PositionID)
	resp, _ = env.request(userAddr, http.MethodPost, path, collateralRequest{Asset: ethAsset.Hex(), Amount: eth(1).String()})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	env.advance()

	path = fmt.Sprintf("/v1/positions/%d/borrow", created.PositionID)
	resp, body = env.request(userAddr, http.MethodPost, path, borrowRequest{Amount: usdc(2_001).String()})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var errResp errorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	require.Contains(t, errResp.Error, "credit limit")
	require.NotEmpty(t, errResp.RequestID)
}

func TestOraclePriceEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, body := env.request(userAddr, http.MethodGet, "/v1/prices/"+ethAsset.Hex(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var price priceResponse
	require.NoError(t, json.Unmarshal(body, &price))
	require.Equal(t, big.NewInt(2_500*100_000_000).String(), price.Price)
}

func TestAdminPauseGating(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.ledger.Mint(baseAsset, lenderAddr, usdc(1_000)))

	resp, _ := env.request(userAddr, http.MethodPost, "/v1/admin/pause", pauseRequest{Module: "vault", Paused: true})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = env.request(adminAddr, http.MethodPost, "/v1/admin/pause", pauseRequest{Module: "vault", Paused: true})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := env.request(lenderAddr, http.MethodPost, "/v1/vault/deposit", depositRequest{Amount: usdc(100).String()})
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, string(body))

	resp, _ = env.request(adminAddr, http.MethodPost, "/v1/admin/pause", pauseRequest{Module: "vault", Paused: false})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = env.request(lenderAddr, http.MethodPost, "/v1/vault/deposit", depositRequest{Amount: usdc(100).String()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAssetListing(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, body := env.request(userAddr, http.MethodGet, "/v1/assets/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed []assetResponse
	require.NoError(t, json.Unmarshal(body, &listed))
	require.Len(t, listed, 1)
	require.Equal(t, ethAsset.Hex(), listed[0].Address)
	require.Equal(t, "CROSS_A", listed[0].Tier)
}

func TestLendingQuotaEnforced(t *testing.T) {
	env := newTestEnv(t, map[string]nativecommon.Quota{
		"lending": {MaxRequestsPerMin: 1, EpochSeconds: 3600},
	})
	resp, _ := env.request(userAddr, http.MethodPost, "/v1/positions/", createPositionRequest{Asset: ethAsset.Hex()})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = env.request(userAddr, http.MethodPost, "/v1/positions/", createPositionRequest{Asset: ethAsset.Hex()})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestInvalidTokenRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/v1/vault/pool", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err := env.server.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

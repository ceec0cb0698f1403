// Package lendefi is a typed Go client for the market daemon's REST API.
package lendefi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// APIError is a non-2xx response from the daemon.
type APIError struct {
	Status    int
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("lendefi: %s (status %d, request %s)", e.Message, e.Status, e.RequestID)
	}
	return fmt.Sprintf("lendefi: %s (status %d)", e.Message, e.Status)
}

// Client talks to one market daemon.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// Option customises the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New builds a client for the daemon at baseURL authenticating with the given
// bearer token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		base:  strings.TrimRight(baseURL, "/"),
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("lendefi: encode request: %w", err)
		}
		payload = raw
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, RequestID: resp.Header.Get("X-Request-ID")}
		var envelope struct {
			Error     string `json:"error"`
			RequestID string `json:"requestId"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&envelope); decodeErr == nil && envelope.Error != "" {
			apiErr.Message = envelope.Error
			if envelope.RequestID != "" {
				apiErr.RequestID = envelope.RequestID
			}
		} else {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func parseBig(field, value string) (*big.Int, error) {
	parsed, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("lendefi: response field %s is not a decimal: %q", field, value)
	}
	return parsed, nil
}

// PoolStatus describes the vault's current accounting.
type PoolStatus struct {
	TotalAssets        *big.Int
	AvailableLiquidity *big.Int
	Utilization        *big.Int
	SupplyRate         *big.Int
	BorrowRate         *big.Int
}

// PoolStatus fetches the pooled totals and current rates.
func (c *Client) PoolStatus(ctx context.Context) (*PoolStatus, error) {
	var raw struct {
		TotalAssets        string `json:"totalAssets"`
		AvailableLiquidity string `json:"availableLiquidity"`
		Utilization        string `json:"utilization"`
		SupplyRate         string `json:"supplyRate"`
		BorrowRate         string `json:"borrowRate"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/vault/pool", nil, &raw); err != nil {
		return nil, err
	}
	status := &PoolStatus{}
	var err error
	if status.TotalAssets, err = parseBig("totalAssets", raw.TotalAssets); err != nil {
		return nil, err
	}
	if status.AvailableLiquidity, err = parseBig("availableLiquidity", raw.AvailableLiquidity); err != nil {
		return nil, err
	}
	if status.Utilization, err = parseBig("utilization", raw.Utilization); err != nil {
		return nil, err
	}
	if status.SupplyRate, err = parseBig("supplyRate", raw.SupplyRate); err != nil {
		return nil, err
	}
	if status.BorrowRate, err = parseBig("borrowRate", raw.BorrowRate); err != nil {
		return nil, err
	}
	return status, nil
}

// SlippageGuard bounds the realized outcome of an operation. A nil Expected
// disables the check.
type SlippageGuard struct {
	Expected     *big.Int
	ToleranceBps uint64
}

func guardString(g SlippageGuard) string {
	if g.Expected == nil {
		return ""
	}
	return g.Expected.String()
}

// Deposit supplies base tokens and returns the shares minted.
func (c *Client) Deposit(ctx context.Context, amount *big.Int, guard SlippageGuard) (*big.Int, error) {
	body := map[string]any{
		"amount":         amount.String(),
		"expectedShares": guardString(guard),
		"toleranceBps":   guard.ToleranceBps,
	}
	var raw struct {
		Shares string `json:"shares"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/vault/deposit", body, &raw); err != nil {
		return nil, err
	}
	return parseBig("shares", raw.Shares)
}

// Withdraw redeems base tokens and returns the shares burned.
func (c *Client) Withdraw(ctx context.Context, amount *big.Int, guard SlippageGuard) (*big.Int, error) {
	body := map[string]any{
		"amount":         amount.String(),
		"expectedShares": guardString(guard),
		"toleranceBps":   guard.ToleranceBps,
	}
	var raw struct {
		Shares string `json:"shares"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/vault/withdraw", body, &raw); err != nil {
		return nil, err
	}
	return parseBig("shares", raw.Shares)
}

// CreatePosition opens a position keyed to the given asset's mode and returns
// its id.
func (c *Client) CreatePosition(ctx context.Context, asset common.Address, isolated bool) (uint64, error) {
	body := map[string]any{"asset": asset.Hex(), "isolated": isolated}
	var raw struct {
		PositionID uint64 `json:"positionId"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/positions/", body, &raw); err != nil {
		return 0, err
	}
	return raw.PositionID, nil
}

// SupplyCollateral moves collateral into a position.
func (c *Client) SupplyCollateral(ctx context.Context, id uint64, asset common.Address, amount *big.Int) error {
	body := map[string]any{"asset": asset.Hex(), "amount": amount.String()}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/positions/%d/collateral", id), body, nil)
}

// Borrow draws base tokens against a position's credit limit.
func (c *Client) Borrow(ctx context.Context, id uint64, amount *big.Int, guard SlippageGuard) error {
	body := map[string]any{
		"amount":              amount.String(),
		"expectedCreditLimit": guardString(guard),
		"toleranceBps":        guard.ToleranceBps,
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/positions/%d/borrow", id), body, nil)
}

// Repay pays down a position's debt.
func (c *Client) Repay(ctx context.Context, id uint64, amount *big.Int, guard SlippageGuard) error {
	body := map[string]any{
		"amount":       amount.String(),
		"expectedDebt": guardString(guard),
		"toleranceBps": guard.ToleranceBps,
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/positions/%d/repay", id), body, nil)
}

// Position is a point-in-time view of one borrow position.
type Position struct {
	Owner        common.Address
	ID           uint64
	Isolated     bool
	Status       string
	Tier         string
	Debt         *big.Int
	CreditLimit  *big.Int
	HealthFactor *big.Int
	Collateral   map[common.Address]*big.Int
}

// Position fetches a position with its derived debt, credit limit, and health
// factor.
func (c *Client) Position(ctx context.Context, owner common.Address, id uint64) (*Position, error) {
	var raw struct {
		Owner        string            `json:"owner"`
		PositionID   uint64            `json:"positionId"`
		Isolated     bool              `json:"isolated"`
		Status       string            `json:"status"`
		Tier         string            `json:"tier"`
		Debt         string            `json:"debt"`
		CreditLimit  string            `json:"creditLimit"`
		HealthFactor string            `json:"healthFactor"`
		Collateral   map[string]string `json:"collateral"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/positions/%s/%d", owner.Hex(), id), nil, &raw); err != nil {
		return nil, err
	}
	pos := &Position{
		Owner:      common.HexToAddress(raw.Owner),
		ID:         raw.PositionID,
		Isolated:   raw.Isolated,
		Status:     raw.Status,
		Tier:       raw.Tier,
		Collateral: make(map[common.Address]*big.Int, len(raw.Collateral)),
	}
	var err error
	if pos.Debt, err = parseBig("debt", raw.Debt); err != nil {
		return nil, err
	}
	if pos.CreditLimit, err = parseBig("creditLimit", raw.CreditLimit); err != nil {
		return nil, err
	}
	if pos.HealthFactor, err = parseBig("healthFactor", raw.HealthFactor); err != nil {
		return nil, err
	}
	for asset, amount := range raw.Collateral {
		value, err := parseBig("collateral", amount)
		if err != nil {
			return nil, err
		}
		pos.Collateral[common.HexToAddress(asset)] = value
	}
	return pos, nil
}

// Price fetches the aggregated USD price (8 decimals) for an asset.
func (c *Client) Price(ctx context.Context, asset common.Address) (*big.Int, error) {
	var raw struct {
		Price string `json:"price"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/prices/"+asset.Hex(), nil, &raw); err != nil {
		return nil, err
	}
	return parseBig("price", raw.Price)
}

// Liquidate seizes an undercollateralized position.
func (c *Client) Liquidate(ctx context.Context, owner common.Address, id uint64, guard SlippageGuard) error {
	body := map[string]any{
		"owner":        owner.Hex(),
		"positionId":   id,
		"expectedCost": guardString(guard),
		"toleranceBps": guard.ToleranceBps,
	}
	return c.do(ctx, http.MethodPost, "/v1/liquidate", body, nil)
}

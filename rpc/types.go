package rpc

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Amounts travel as decimal strings so token quantities never lose precision
// in JSON numbers.

type depositRequest struct {
	Amount         string `json:"amount"`
	ExpectedShares string `json:"expectedShares"`
	ToleranceBps   uint64 `json:"toleranceBps"`
}

type mintRequest struct {
	Shares         string `json:"shares"`
	ExpectedAssets string `json:"expectedAssets"`
	ToleranceBps   uint64 `json:"toleranceBps"`
}

type withdrawRequest struct {
	Amount         string `json:"amount"`
	ExpectedShares string `json:"expectedShares"`
	ToleranceBps   uint64 `json:"toleranceBps"`
}

type redeemRequest struct {
	Shares         string `json:"shares"`
	ExpectedAssets string `json:"expectedAssets"`
	ToleranceBps   uint64 `json:"toleranceBps"`
}

type sharesResponse struct {
	Shares string `json:"shares"`
}

type assetsResponse struct {
	Assets string `json:"assets"`
}

type rewardResponse struct {
	Reward string `json:"reward"`
}

type poolStatusResponse struct {
	TotalAssets        string `json:"totalAssets"`
	AvailableLiquidity string `json:"availableLiquidity"`
	Utilization        string `json:"utilization"`
	SupplyRate         string `json:"supplyRate"`
	BorrowRate         string `json:"borrowRate"`
}

type createPositionRequest struct {
	Asset    string `json:"asset"`
	Isolated bool   `json:"isolated"`
}

type createPositionResponse struct {
	PositionID uint64 `json:"positionId"`
}

type collateralRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
	// Withdrawals carry a slippage guard; supplies ignore these fields.
	ExpectedCreditLimit string `json:"expectedCreditLimit,omitempty"`
	ToleranceBps        uint64 `json:"toleranceBps,omitempty"`
}

type borrowRequest struct {
	Amount              string `json:"amount"`
	ExpectedCreditLimit string `json:"expectedCreditLimit"`
	ToleranceBps        uint64 `json:"toleranceBps"`
}

type repayRequest struct {
	Amount       string `json:"amount"`
	ExpectedDebt string `json:"expectedDebt"`
	ToleranceBps uint64 `json:"toleranceBps"`
}

type exitRequest struct {
	ExpectedDebt string `json:"expectedDebt"`
	ToleranceBps uint64 `json:"toleranceBps"`
}

type liquidateRequest struct {
	Owner        string `json:"owner"`
	PositionID   uint64 `json:"positionId"`
	ExpectedCost string `json:"expectedCost"`
	ToleranceBps uint64 `json:"toleranceBps"`
}

type positionResponse struct {
	Owner         string            `json:"owner"`
	PositionID    uint64            `json:"positionId"`
	Isolated      bool              `json:"isolated"`
	IsolatedAsset string            `json:"isolatedAsset,omitempty"`
	Status        string            `json:"status"`
	Debt          string            `json:"debt"`
	CreditLimit   string            `json:"creditLimit"`
	HealthFactor  string            `json:"healthFactor"`
	Tier          string            `json:"tier"`
	Collateral    map[string]string `json:"collateral"`
}

type priceResponse struct {
	Asset string `json:"asset"`
	Price string `json:"price"`
	// Price is USD scaled to 8 decimals.
}

type assetResponse struct {
	Address                 string `json:"address"`
	Active                  bool   `json:"active"`
	Decimals                uint8  `json:"decimals"`
	Tier                    string `json:"tier"`
	BorrowThresholdBps      uint64 `json:"borrowThresholdBps"`
	LiquidationThresholdBps uint64 `json:"liquidationThresholdBps"`
	MaxSupplyThreshold      string `json:"maxSupplyThreshold"`
	IsolationDebtCap        string `json:"isolationDebtCap,omitempty"`
}

type pauseRequest struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func parseAmountField(field, value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("%s is not a decimal amount: %q", field, value)
	}
	return amount, nil
}

// parseOptionalAmount returns nil for an empty field so handlers can skip
// slippage guards the caller did not request.
func parseOptionalAmount(field, value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	return parseAmountField(field, value)
}

func parseAddressField(field, value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%s is not a hex address: %q", field, value)
	}
	return common.HexToAddress(trimmed), nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// Package lending implements the position ledger: per-borrower collateral
// accounting, credit-limit and health-factor math, and the borrow, repay,
// exit and liquidation flows against the shared liquidity pool. Interest is
// accrued and pushed into pool accounting before any operation reads or
// changes debt, so solvency checks always see debt consistent with elapsed
// time.
package lending

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/LendefiMarkets/lendefi-markets-polygon/native/assets"
	nativecommon "github.com/LendefiMarkets/lendefi-markets-polygon/native/common"
	"github.com/LendefiMarkets/lendefi-markets-polygon/native/rates"
)

var (
	ErrZeroAddress            = errors.New("lending: zero address")
	ErrInvalidAmount          = errors.New("lending: amount must be positive")
	ErrPositionNotFound       = errors.New("lending: position not found")
	ErrPositionNotActive      = errors.New("lending: position not active")
	ErrPositionLimit          = errors.New("lending: position ceiling reached")
	ErrPositionModeMismatch   = errors.New("lending: isolation flag does not match asset tier")
	ErrAssetNotAllowed        = errors.New("lending: asset not permitted for position mode")
	ErrTooManyAssets          = errors.New("lending: collateral asset ceiling reached")
	ErrSupplyCapExceeded      = errors.New("lending: asset supply cap exceeded")
	ErrInsufficientCollateral = errors.New("lending: insufficient collateral balance")
	ErrCreditLimitExceeded    = errors.New("lending: debt would exceed credit limit")
	ErrIsolationDebtCap       = errors.New("lending: isolation debt cap exceeded")
	ErrLowLiquidity           = errors.New("lending: insufficient pool liquidity")
	ErrNoDebt                 = errors.New("lending: position has no debt")
	ErrNotLiquidatable        = errors.New("lending: position is healthy")
	ErrInsufficientGovBalance = errors.New("lending: liquidator governance balance too low")
	ErrSlippageExceeded       = errors.New("lending: realized outcome outside tolerance")
	ErrReentrancy             = errors.New("lending: reentrant call")
	ErrStateUnavailable       = errors.New("lending: state unavailable")
)

const (
	moduleName = "lending"

	maxPositionsPerUser    = 1_000
	maxAssetsPerPosition   = 20
	liquidationFeeBpsScale = 10_000
)

// priceScale matches the oracle aggregator's fixed USD decimals.
var priceScale = big.NewInt(100_000_000)

// minLiquidatorGovBalance is the governance-token holding required to call
// Liquidate: 20,000 whole tokens at 18 decimals.
var minLiquidatorGovBalance = new(big.Int).Mul(big.NewInt(20_000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Engine is the position ledger for one market.
type Engine struct {
	mu      sync.Mutex
	entered bool

	state        State
	registry     *assets.Registry
	oracle       Prices
	vault        Liquidity
	tokens       Tokens
	govToken     BalanceReader
	pauses       nativecommon.PauseView
	self         common.Address
	baseDecimals uint8
	height       func() uint64
}

// Params wires an engine instance.
type Params struct {
	State        State
	Registry     *assets.Registry
	Oracle       Prices
	Vault        Liquidity
	Tokens       Tokens
	GovToken     BalanceReader
	Pauses       nativecommon.PauseView
	Self         common.Address
	BaseDecimals uint8
	Height       func() uint64
}

// New constructs a position ledger.
func New(p Params) (*Engine, error) {
	if p.State == nil || p.Registry == nil || p.Oracle == nil || p.Vault == nil || p.Tokens == nil {
		return nil, ErrStateUnavailable
	}
	if p.Self == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	height := p.Height
	if height == nil {
		height = func() uint64 { return 0 }
	}
	decimals := p.BaseDecimals
	if decimals == 0 {
		decimals = 6
	}
	return &Engine{
		state:        p.State,
		registry:     p.Registry,
		oracle:       p.Oracle,
		vault:        p.Vault,
		tokens:       p.Tokens,
		govToken:     p.GovToken,
		pauses:       p.Pauses,
		self:         p.Self,
		baseDecimals: decimals,
		height:       height,
	}, nil
}

func (e *Engine) enter() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.entered {
		return ErrReentrancy
	}
	e.entered = true
	return nil
}

func (e *Engine) exit() {
	e.mu.Lock()
	e.entered = false
	e.mu.Unlock()
}

// runStaged funnels an operation's writes through one staged set in the
// persistence layer. They commit together when op succeeds; a failure at any
// point, including mid-persist, discards them all.
func (e *Engine) runStaged(op func() error) error {
	if err := e.state.Stage(); err != nil {
		return err
	}
	if err := op(); err != nil {
		e.state.Discard()
		return err
	}
	return e.state.Commit()
}

func (e *Engine) loadActive(owner common.Address, id uint64) (*Position, error) {
	pos, found, err := e.state.Position(owner, id)
	if err != nil {
		return nil, err
	}
	if !found || pos == nil {
		return nil, ErrPositionNotFound
	}
	if pos.Status != StatusActive {
		return nil, ErrPositionNotActive
	}
	pos.Normalise()
	return pos, nil
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

func belowMinimum(realized, expected *big.Int, toleranceBps uint64) bool {
	if expected == nil || expected.Sign() <= 0 || toleranceBps >= 10_000 {
		return false
	}
	floor := new(big.Int).Mul(expected, big.NewInt(10_000-int64(toleranceBps)))
	floor.Quo(floor, big.NewInt(10_000))
	return realized.Cmp(floor) < 0
}

func aboveMaximum(realized, expected *big.Int, toleranceBps uint64) bool {
	if expected == nil || expected.Sign() <= 0 {
		return false
	}
	ceiling := new(big.Int).Mul(expected, big.NewInt(10_000+int64(toleranceBps)))
	ceiling.Quo(ceiling, big.NewInt(10_000))
	return realized.Cmp(ceiling) > 0
}

// positionTier resolves the rate tier: the opening asset's tier for isolated
// positions, the riskiest held tier for cross positions, STABLE when empty.
func (e *Engine) positionTier(pos *Position) (assets.Tier, error) {
	if pos.Isolated {
		entry, err := e.registry.Get(pos.IsolatedAsset)
		if err != nil {
			return assets.TierIsolated, err
		}
		return entry.Tier, nil
	}
	tier := assets.TierStable
	for _, asset := range pos.CollateralOrder {
		entry, err := e.registry.Get(asset)
		if err != nil {
			return tier, err
		}
		if entry.Tier > tier {
			tier = entry.Tier
		}
	}
	return tier, nil
}

// weightedValue sums price·quantity·threshold over the position's collateral,
// normalized to base-asset units.
func (e *Engine) weightedValue(pos *Position, liquidation bool) (*big.Int, error) {
	total := big.NewInt(0)
	baseUnit := pow10(e.baseDecimals)
	for _, asset := range pos.CollateralOrder {
		amount := pos.holding(asset)
		if amount.Sign() == 0 {
			continue
		}
		entry, err := e.registry.Get(asset)
		if err != nil {
			return nil, err
		}
		price, err := e.oracle.GetAssetPrice(asset)
		if err != nil {
			return nil, err
		}
		thresholdBps := entry.BorrowThresholdBps
		if liquidation {
			thresholdBps = entry.LiquidationThresholdBps
		}
		value := new(big.Int).Mul(price, amount)
		value.Mul(value, new(big.Int).SetUint64(thresholdBps))
		value.Mul(value, baseUnit)
		divisor := new(big.Int).Mul(pow10(entry.Decimals), big.NewInt(10_000))
		divisor.Mul(divisor, priceScale)
		value.Quo(value, divisor)
		total.Add(total, value)
	}
	return total, nil
}

func (e *Engine) creditLimit(pos *Position) (*big.Int, error) {
	limit, err := e.weightedValue(pos, false)
	if err != nil {
		return nil, err
	}
	if pos.Isolated {
		entry, err := e.registry.Get(pos.IsolatedAsset)
		if err != nil {
			return nil, err
		}
		if entry.IsolationDebtCap != nil && limit.Cmp(entry.IsolationDebtCap) > 0 {
			limit = new(big.Int).Set(entry.IsolationDebtCap)
		}
	}
	return limit, nil
}

// debtWithInterest computes current debt without mutating the position.
func (e *Engine) debtWithInterest(pos *Position, height uint64) (*big.Int, error) {
	if pos.DebtAmount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	tier, err := e.positionTier(pos)
	if err != nil {
		return nil, err
	}
	borrowRate, err := e.vault.BorrowRate(tier)
	if err != nil {
		return nil, err
	}
	rateRay := rates.AnnualRateToRay(borrowRate, rates.WAD)
	elapsed := uint64(0)
	if height > pos.LastInterestAccrual {
		elapsed = height - pos.LastInterestAccrual
	}
	return rates.AccrueInterest(pos.DebtAmount, rateRay, elapsed), nil
}

// accrue materializes pending interest into the position's principal and
// records the delta in pool accounting, then persists the position. It runs
// inside the surrounding operation's staged writes: a failed operation
// discards the accrual, and the next touch recomputes it from
// LastInterestAccrual.
func (e *Engine) accrue(pos *Position, height uint64) error {
	debt, err := e.debtWithInterest(pos, height)
	if err != nil {
		return err
	}
	delta := new(big.Int).Sub(debt, pos.DebtAmount)
	if delta.Sign() > 0 {
		if err := e.vault.RecordInterestAccrual(e.self, delta); err != nil {
			return err
		}
	}
	pos.DebtAmount = debt
	pos.LastInterestAccrual = height
	return e.state.PutPosition(pos)
}

// CreatePosition opens a new position against the given asset. The isolation
// flag must match the asset's tier both ways.
func (e *Engine) CreatePosition(caller common.Address, asset common.Address, isolated bool) (uint64, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if caller == (common.Address{}) {
		return 0, ErrZeroAddress
	}
	entry, err := e.registry.GetActive(asset)
	if err != nil {
		return 0, err
	}
	if (entry.Tier == assets.TierIsolated) != isolated {
		return 0, ErrPositionModeMismatch
	}
	if err := e.enter(); err != nil {
		return 0, err
	}
	defer e.exit()

	var id uint64
	err = e.runStaged(func() error {
		count, err := e.state.PositionCount(caller)
		if err != nil {
			return err
		}
		if count >= maxPositionsPerUser {
			return ErrPositionLimit
		}
		id = count
		pos := &Position{
			Owner:               caller,
			ID:                  count,
			Isolated:            isolated,
			Status:              StatusActive,
			DebtAmount:          big.NewInt(0),
			LastInterestAccrual: e.height(),
			Vault:               CollateralVaultAddress(caller, count),
			Collateral:          make(map[common.Address]*big.Int),
		}
		if isolated {
			pos.IsolatedAsset = asset
		}
		if err := e.state.PutPosition(pos); err != nil {
			return err
		}
		return e.state.SetPositionCount(caller, count+1)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// SupplyCollateral moves amount of asset from the caller into the position's
// collateral vault.
func (e *Engine) SupplyCollateral(caller common.Address, asset common.Address, amount *big.Int, id uint64) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	return e.runStaged(func() error {
		pos, err := e.loadActive(caller, id)
		if err != nil {
			return err
		}
		entry, err := e.registry.GetActive(asset)
		if err != nil {
			return err
		}
		if pos.Isolated && asset != pos.IsolatedAsset {
			return ErrAssetNotAllowed
		}
		if !pos.Isolated && entry.Tier == assets.TierIsolated {
			return ErrAssetNotAllowed
		}
		if pos.holding(asset).Sign() == 0 && len(pos.CollateralOrder) >= maxAssetsPerPosition {
			return ErrTooManyAssets
		}
		tvl, err := e.state.AssetTVL(asset)
		if err != nil {
			return err
		}
		if tvl == nil {
			tvl = big.NewInt(0)
		}
		newTVL := new(big.Int).Add(tvl, amount)
		if newTVL.Cmp(entry.MaxSupplyThreshold) > 0 {
			return ErrSupplyCapExceeded
		}
		if err := e.oracle.PoolLiquidityLimit(asset, amount); err != nil {
			return err
		}
		if err := e.tokens.Transfer(asset, caller, pos.Vault, amount); err != nil {
			return err
		}
		pos.setHolding(asset, new(big.Int).Add(pos.holding(asset), amount))
		if err := e.state.SetAssetTVL(asset, newTVL); err != nil {
			return err
		}
		return e.state.PutPosition(pos)
	})
}

// WithdrawCollateral releases collateral back to the owner after checking
// the remaining holdings still cover the outstanding debt.
func (e *Engine) WithdrawCollateral(caller common.Address, asset common.Address, amount *big.Int, id uint64, expectedCreditLimit *big.Int, toleranceBps uint64) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	return e.runStaged(func() error {
		pos, err := e.loadActive(caller, id)
		if err != nil {
			return err
		}
		if err := e.accrue(pos, e.height()); err != nil {
			return err
		}
		holding := pos.holding(asset)
		if holding.Cmp(amount) < 0 {
			return ErrInsufficientCollateral
		}
		pos.setHolding(asset, new(big.Int).Sub(holding, amount))
		limit, err := e.creditLimit(pos)
		if err != nil {
			return err
		}
		if pos.DebtAmount.Cmp(limit) > 0 {
			return ErrCreditLimitExceeded
		}
		if belowMinimum(limit, expectedCreditLimit, toleranceBps) {
			return ErrSlippageExceeded
		}
		tvl, err := e.state.AssetTVL(asset)
		if err != nil {
			return err
		}
		if tvl == nil {
			tvl = big.NewInt(0)
		}
		newTVL := new(big.Int).Sub(tvl, amount)
		if newTVL.Sign() < 0 {
			newTVL = big.NewInt(0)
		}
		if err := e.state.SetAssetTVL(asset, newTVL); err != nil {
			return err
		}
		if err := e.state.PutPosition(pos); err != nil {
			return err
		}
		return e.tokens.Transfer(asset, pos.Vault, caller, amount)
	})
}

// Borrow draws base-asset liquidity against the position's credit limit.
func (e *Engine) Borrow(caller common.Address, id uint64, amount *big.Int, expectedCreditLimit *big.Int, toleranceBps uint64) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	return e.runStaged(func() error {
		pos, err := e.loadActive(caller, id)
		if err != nil {
			return err
		}
		if err := e.accrue(pos, e.height()); err != nil {
			return err
		}
		newDebt := new(big.Int).Add(pos.DebtAmount, amount)
		if pos.Isolated {
			entry, err := e.registry.Get(pos.IsolatedAsset)
			if err != nil {
				return err
			}
			if entry.IsolationDebtCap != nil && newDebt.Cmp(entry.IsolationDebtCap) > 0 {
				return ErrIsolationDebtCap
			}
		}
		limit, err := e.creditLimit(pos)
		if err != nil {
			return err
		}
		if newDebt.Cmp(limit) > 0 {
			return ErrCreditLimitExceeded
		}
		if belowMinimum(limit, expectedCreditLimit, toleranceBps) {
			return ErrSlippageExceeded
		}
		available, err := e.vault.AvailableLiquidity()
		if err != nil {
			return err
		}
		if amount.Cmp(available) > 0 {
			return ErrLowLiquidity
		}
		pos.DebtAmount = newDebt
		if err := e.state.PutPosition(pos); err != nil {
			return err
		}
		return e.vault.Borrow(e.self, amount, caller)
	})
}

// Repay settles debt from the caller's funds. Any amount at or above the
// current debt repays in full.
func (e *Engine) Repay(caller common.Address, id uint64, amount *big.Int, expectedDebt *big.Int, toleranceBps uint64) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	return e.runStaged(func() error {
		pos, err := e.loadActive(caller, id)
		if err != nil {
			return err
		}
		if err := e.accrue(pos, e.height()); err != nil {
			return err
		}
		if pos.DebtAmount.Sign() == 0 {
			return ErrNoDebt
		}
		if aboveMaximum(pos.DebtAmount, expectedDebt, toleranceBps) {
			return ErrSlippageExceeded
		}
		payment := new(big.Int).Set(amount)
		if payment.Cmp(pos.DebtAmount) > 0 {
			payment = new(big.Int).Set(pos.DebtAmount)
		}
		if err := e.vault.Repay(e.self, payment, caller); err != nil {
			return err
		}
		pos.DebtAmount = new(big.Int).Sub(pos.DebtAmount, payment)
		return e.state.PutPosition(pos)
	})
}

// ExitPosition repays any remaining debt, returns every collateral asset to
// the owner, and closes the position permanently.
func (e *Engine) ExitPosition(caller common.Address, id uint64, expectedDebt *big.Int, toleranceBps uint64) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	return e.runStaged(func() error {
		pos, err := e.loadActive(caller, id)
		if err != nil {
			return err
		}
		if err := e.accrue(pos, e.height()); err != nil {
			return err
		}
		if pos.DebtAmount.Sign() > 0 {
			if aboveMaximum(pos.DebtAmount, expectedDebt, toleranceBps) {
				return ErrSlippageExceeded
			}
			if err := e.vault.Repay(e.self, pos.DebtAmount, caller); err != nil {
				return err
			}
			pos.DebtAmount = big.NewInt(0)
		}
		return e.releaseCollateral(pos, caller, StatusClosed)
	})
}

// releaseCollateral commits the terminal status and TVL bookkeeping, then
// transfers every held asset to the recipient.
func (e *Engine) releaseCollateral(pos *Position, recipient common.Address, status PositionStatus) error {
	type release struct {
		asset  common.Address
		amount *big.Int
	}
	releases := make([]release, 0, len(pos.CollateralOrder))
	for _, asset := range pos.CollateralOrder {
		amount := pos.holding(asset)
		if amount.Sign() == 0 {
			continue
		}
		releases = append(releases, release{asset: asset, amount: new(big.Int).Set(amount)})
		tvl, err := e.state.AssetTVL(asset)
		if err != nil {
			return err
		}
		if tvl == nil {
			tvl = big.NewInt(0)
		}
		remaining := new(big.Int).Sub(tvl, amount)
		if remaining.Sign() < 0 {
			remaining = big.NewInt(0)
		}
		if err := e.state.SetAssetTVL(asset, remaining); err != nil {
			return err
		}
	}
	pos.CollateralOrder = nil
	pos.Collateral = make(map[common.Address]*big.Int)
	pos.Status = status
	if err := e.state.PutPosition(pos); err != nil {
		return err
	}
	for _, r := range releases {
		if err := e.tokens.Transfer(r.asset, pos.Vault, recipient, r.amount); err != nil {
			return err
		}
	}
	return nil
}

// Liquidate seizes an unhealthy position. Eligibility is re-derived from
// current prices and freshly accrued debt at execution time; a stale
// observation by the liquidator is never trusted.
func (e *Engine) Liquidate(caller common.Address, user common.Address, id uint64, expectedCost *big.Int, toleranceBps uint64) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if caller == (common.Address{}) {
		return ErrZeroAddress
	}
	if e.govToken != nil {
		balance, err := e.govToken.BalanceOf(caller)
		if err != nil {
			return err
		}
		if balance == nil || balance.Cmp(minLiquidatorGovBalance) < 0 {
			return ErrInsufficientGovBalance
		}
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	return e.runStaged(func() error {
		pos, err := e.loadActive(user, id)
		if err != nil {
			return err
		}
		if err := e.accrue(pos, e.height()); err != nil {
			return err
		}
		if pos.DebtAmount.Sign() == 0 {
			return ErrNotLiquidatable
		}
		liqValue, err := e.weightedValue(pos, true)
		if err != nil {
			return err
		}
		health := new(big.Int).Mul(liqValue, rates.WAD)
		health.Quo(health, pos.DebtAmount)
		if health.Cmp(rates.WAD) >= 0 {
			return ErrNotLiquidatable
		}
		tier, err := e.positionTier(pos)
		if err != nil {
			return err
		}
		fee := new(big.Int).Mul(pos.DebtAmount, new(big.Int).SetUint64(tier.LiquidationFeeBps()))
		fee.Quo(fee, big.NewInt(liquidationFeeBpsScale))
		cost := new(big.Int).Add(pos.DebtAmount, fee)
		if aboveMaximum(cost, expectedCost, toleranceBps) {
			return ErrSlippageExceeded
		}
		// Debt and fee settle in one transfer: a liquidator who cannot cover
		// the full cost funds neither leg and the position stays untouched.
		if err := e.vault.SettleLiquidation(e.self, pos.DebtAmount, fee, caller); err != nil {
			return err
		}
		pos.DebtAmount = big.NewInt(0)
		return e.releaseCollateral(pos, caller, StatusLiquidated)
	})
}

// GetPosition returns a copy of the stored position.
func (e *Engine) GetPosition(owner common.Address, id uint64) (*Position, error) {
	pos, found, err := e.state.Position(owner, id)
	if err != nil {
		return nil, err
	}
	if !found || pos == nil {
		return nil, ErrPositionNotFound
	}
	pos.Normalise()
	return pos, nil
}

// CalculateDebtWithInterest returns the position's debt as of now without
// mutating state.
func (e *Engine) CalculateDebtWithInterest(owner common.Address, id uint64) (*big.Int, error) {
	pos, err := e.GetPosition(owner, id)
	if err != nil {
		return nil, err
	}
	return e.debtWithInterest(pos, e.height())
}

// CalculateCreditLimit returns the borrowable value of the position's
// collateral, capped by the isolation debt cap where applicable.
func (e *Engine) CalculateCreditLimit(owner common.Address, id uint64) (*big.Int, error) {
	pos, err := e.GetPosition(owner, id)
	if err != nil {
		return nil, err
	}
	return e.creditLimit(pos)
}

// HealthFactor returns liquidation-weighted collateral value over current
// debt at WAD scale. Zero-debt positions report the maximum representable
// value.
func (e *Engine) HealthFactor(owner common.Address, id uint64) (*big.Int, error) {
	pos, err := e.GetPosition(owner, id)
	if err != nil {
		return nil, err
	}
	debt, err := e.debtWithInterest(pos, e.height())
	if err != nil {
		return nil, err
	}
	if debt.Sign() == 0 {
		return new(big.Int).Set(maxUint256), nil
	}
	liqValue, err := e.weightedValue(pos, true)
	if err != nil {
		return nil, err
	}
	health := new(big.Int).Mul(liqValue, rates.WAD)
	return health.Quo(health, debt), nil
}

// IsLiquidatable reports whether the health factor is below 1.0.
func (e *Engine) IsLiquidatable(owner common.Address, id uint64) (bool, error) {
	health, err := e.HealthFactor(owner, id)
	if err != nil {
		return false, err
	}
	return health.Cmp(rates.WAD) < 0, nil
}

// GetPositionTier returns the rate tier the position currently borrows at.
func (e *Engine) GetPositionTier(owner common.Address, id uint64) (assets.Tier, error) {
	pos, err := e.GetPosition(owner, id)
	if err != nil {
		return assets.TierStable, err
	}
	return e.positionTier(pos)
}

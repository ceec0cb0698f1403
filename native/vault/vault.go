// Package vault implements the shared liquidity pool for one base asset.
// Suppliers hold shares priced by pooled accounting totals rather than raw
// token balances, borrowed liquidity is moved only by the bound position
// ledger, and flash loans settle within a single call.
package vault

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
	ErrUnauthorized       = errors.New("vault: caller not authorized")
	ErrZeroAddress        = errors.New("vault: zero address")
	ErrInvalidAmount      = errors.New("vault: amount must be positive")
	ErrLowLiquidity       = errors.New("vault: insufficient available liquidity")
	ErrInsufficientShares = errors.New("vault: insufficient share balance")
	ErrFlashLoanNotRepaid = errors.New("vault: flash loan not repaid with fee")
	ErrAmountTooLarge     = errors.New("vault: amount too large")
	ErrSameBlockOperation = errors.New("vault: repeat operation in same ordering unit")
	ErrSlippageExceeded   = errors.New("vault: realized outcome outside tolerance")
	ErrReentrancy         = errors.New("vault: reentrant call")
	ErrNotRewardable      = errors.New("vault: supplier not rewardable")
	ErrStateUnavailable   = errors.New("vault: state unavailable")
)

const moduleName = "vault"

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Vault is the share-accounted liquidity pool.
type Vault struct {
	mu      sync.Mutex
	entered bool

	cfg      ProtocolConfig
	state    State
	token    Token
	pauses   nativecommon.PauseView
	address  common.Address
	ledger   common.Address
	treasury common.Address
	admin    common.Address
	height   func() uint64
}

// Params wires a vault instance.
type Params struct {
	State    State
	Token    Token
	Pauses   nativecommon.PauseView
	Address  common.Address
	Ledger   common.Address
	Treasury common.Address
	Admin    common.Address
	Height   func() uint64
	Config   ProtocolConfig
}

// New constructs a vault after validating its configuration.
func New(p Params) (*Vault, error) {
	if p.State == nil || p.Token == nil {
		return nil, ErrStateUnavailable
	}
	if p.Address == (common.Address{}) || p.Ledger == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if err := p.Config.Validate(); err != nil {
		return nil, err
	}
	height := p.Height
	if height == nil {
		height = func() uint64 { return 0 }
	}
	return &Vault{
		cfg:      p.Config.Clone(),
		state:    p.State,
		token:    p.Token,
		pauses:   p.Pauses,
		address:  p.Address,
		ledger:   p.Ledger,
		treasury: p.Treasury,
		admin:    p.Admin,
		height:   height,
	}, nil
}

// Address returns the vault's custody account.
func (v *Vault) Address() common.Address { return v.address }

// Config returns a copy of the active protocol parameters.
func (v *Vault) Config() ProtocolConfig {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cfg.Clone()
}

// UpdateConfig replaces the protocol parameters. Admin only.
func (v *Vault) UpdateConfig(caller common.Address, cfg ProtocolConfig) error {
	if caller != v.admin {
		return ErrUnauthorized
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	v.mu.Lock()
	v.cfg = cfg.Clone()
	v.mu.Unlock()
	return nil
}

// enter takes the single-operation latch. It stays held across any external
// transfer the operation makes, so a transfer target calling back in fails
// with ErrReentrancy instead of observing intermediate state.
func (v *Vault) enter() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.entered {
		return ErrReentrancy
	}
	v.entered = true
	return nil
}

func (v *Vault) exit() {
	v.mu.Lock()
	v.entered = false
	v.mu.Unlock()
}

// runStaged funnels an operation's writes through one staged set in the
// persistence layer. They commit together when op succeeds; a failure at any
// point, including mid-persist, discards them all.
func (v *Vault) runStaged(op func() error) error {
	if err := v.state.Stage(); err != nil {
		return err
	}
	if err := op(); err != nil {
		v.state.Discard()
		return err
	}
	return v.state.Commit()
}

func (v *Vault) loadState() (*VaultState, error) {
	state, err := v.state.VaultState()
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = &VaultState{}
	}
	state.Normalise()
	return state, nil
}

// checkOrdering rejects a second liquidity-affecting operation by one caller
// within the same ordering unit. The height is recorded only when the whole
// operation commits, so a failed attempt does not burn the slot.
func (v *Vault) checkOrdering(caller common.Address, height uint64) error {
	last, acted, err := v.state.LastActed(caller)
	if err != nil {
		return err
	}
	if acted && last == height {
		return ErrSameBlockOperation
	}
	return nil
}

func sharesForAssets(state *VaultState, amount *big.Int) *big.Int {
	if state.TotalShares.Sign() == 0 || state.TotalBase.Sign() == 0 {
		return new(big.Int).Set(amount)
	}
	shares := new(big.Int).Mul(amount, state.TotalShares)
	return shares.Quo(shares, state.TotalBase)
}

func assetsForShares(state *VaultState, shares *big.Int) *big.Int {
	if state.TotalShares.Sign() == 0 {
		return new(big.Int).Set(shares)
	}
	amount := new(big.Int).Mul(shares, state.TotalBase)
	return amount.Quo(amount, state.TotalShares)
}

func ceilDiv(numerator, denominator *big.Int) *big.Int {
	quotient, remainder := new(big.Int).QuoRem(numerator, denominator, new(big.Int))
	if remainder.Sign() != 0 {
		quotient.Add(quotient, big.NewInt(1))
	}
	return quotient
}

// belowMinimum reports whether realized fell short of expected by more than
// toleranceBps. A nil or zero expectation disables the check.
func belowMinimum(realized, expected *big.Int, toleranceBps uint64) bool {
	if expected == nil || expected.Sign() <= 0 || toleranceBps >= 10_000 {
		return false
	}
	floor := new(big.Int).Mul(expected, big.NewInt(10_000-int64(toleranceBps)))
	floor.Quo(floor, big.NewInt(10_000))
	return realized.Cmp(floor) < 0
}

// aboveMaximum reports whether realized exceeded expected by more than
// toleranceBps. A nil or zero expectation disables the check.
func aboveMaximum(realized, expected *big.Int, toleranceBps uint64) bool {
	if expected == nil || expected.Sign() <= 0 {
		return false
	}
	ceiling := new(big.Int).Mul(expected, big.NewInt(10_000+int64(toleranceBps)))
	ceiling.Quo(ceiling, big.NewInt(10_000))
	return realized.Cmp(ceiling) > 0
}

// TotalAssets returns the authoritative share backing. Donations into the
// custody account are invisible here.
func (v *Vault) TotalAssets() (*big.Int, error) {
	state, err := v.loadState()
	if err != nil {
		return nil, err
	}
	return state.TotalBase, nil
}

// AvailableLiquidity returns the non-borrowed supplied balance.
func (v *Vault) AvailableLiquidity() (*big.Int, error) {
	state, err := v.loadState()
	if err != nil {
		return nil, err
	}
	return state.availableLiquidity(), nil
}

// Utilization returns TotalBorrow/TotalSuppliedLiquidity at WAD scale.
func (v *Vault) Utilization() (*big.Int, error) {
	state, err := v.loadState()
	if err != nil {
		return nil, err
	}
	return rates.Utilization(state.TotalBorrow, state.TotalSuppliedLiquidity), nil
}

// BorrowRate returns the utilization-based borrow rate for collateral of the
// given tier.
func (v *Vault) BorrowRate(tier assets.Tier) (*big.Int, error) {
	state, err := v.loadState()
	if err != nil {
		return nil, err
	}
	cfg := v.Config()
	utilization := rates.Utilization(state.TotalBorrow, state.TotalSuppliedLiquidity)
	return rates.GetBorrowRate(utilization, cfg.BorrowRate, cfg.TargetUtilization, tier.JumpRate()), nil
}

// SupplyRate returns the supplier-side rate implied by the current borrow
// rate for the given tier, net of the protocol profit target.
func (v *Vault) SupplyRate(tier assets.Tier) (*big.Int, error) {
	state, err := v.loadState()
	if err != nil {
		return nil, err
	}
	cfg := v.Config()
	utilization := rates.Utilization(state.TotalBorrow, state.TotalSuppliedLiquidity)
	borrowRate := rates.GetBorrowRate(utilization, cfg.BorrowRate, cfg.TargetUtilization, tier.JumpRate())
	return rates.GetSupplyRate(state.TotalBorrow, state.TotalSuppliedLiquidity, borrowRate, cfg.ProfitTargetRate), nil
}

// PreviewDeposit returns the shares minted for an asset deposit.
func (v *Vault) PreviewDeposit(amount *big.Int) (*big.Int, error) {
	state, err := v.loadState()
	if err != nil {
		return nil, err
	}
	return sharesForAssets(state, amount), nil
}

// PreviewMint returns the assets charged for minting exact shares, rounded
// against the minter.
func (v *Vault) PreviewMint(shares *big.Int) (*big.Int, error) {
	state, err := v.loadState()
	if err != nil {
		return nil, err
	}
	if state.TotalShares.Sign() == 0 {
		return new(big.Int).Set(shares), nil
	}
	return ceilDiv(new(big.Int).Mul(shares, state.TotalBase), state.TotalShares), nil
}

// PreviewWithdraw returns the shares burned to withdraw exact assets,
// rounded against the withdrawer.
func (v *Vault) PreviewWithdraw(amount *big.Int) (*big.Int, error) {
	state, err := v.loadState()
	if err != nil {
		return nil, err
	}
	if state.TotalBase.Sign() == 0 {
		return new(big.Int).Set(amount), nil
	}
	return ceilDiv(new(big.Int).Mul(amount, state.TotalShares), state.TotalBase), nil
}

// PreviewRedeem returns the assets released for burning exact shares.
func (v *Vault) PreviewRedeem(shares *big.Int) (*big.Int, error) {
	state, err := v.loadState()
	if err != nil {
		return nil, err
	}
	return assetsForShares(state, shares), nil
}

// Deposit pulls amount from the caller and mints shares at the current
// share price.
func (v *Vault) Deposit(caller common.Address, amount, expectedShares *big.Int, toleranceBps uint64) (*big.Int, error) {
	if err := nativecommon.Guard(v.pauses, moduleName); err != nil {
		return nil, err
	}
	if caller == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := v.enter(); err != nil {
		return nil, err
	}
	defer v.exit()

	var shares *big.Int
	err := v.runStaged(func() error {
		height := v.height()
		if err := v.checkOrdering(caller, height); err != nil {
			return err
		}
		state, err := v.loadState()
		if err != nil {
			return err
		}
		shares = sharesForAssets(state, amount)
		if shares.Sign() == 0 {
			return ErrInvalidAmount
		}
		if belowMinimum(shares, expectedShares, toleranceBps) {
			return ErrSlippageExceeded
		}
		if err := v.token.Transfer(caller, v.address, amount); err != nil {
			return err
		}
		return v.creditSupply(caller, state, amount, shares, height)
	})
	if err != nil {
		return nil, err
	}
	return shares, nil
}

// Mint issues exact shares, charging the caller the implied asset amount.
func (v *Vault) Mint(caller common.Address, shares, expectedAssets *big.Int, toleranceBps uint64) (*big.Int, error) {
	if err := nativecommon.Guard(v.pauses, moduleName); err != nil {
		return nil, err
	}
	if caller == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := v.enter(); err != nil {
		return nil, err
	}
	defer v.exit()

	var amount *big.Int
	err := v.runStaged(func() error {
		height := v.height()
		if err := v.checkOrdering(caller, height); err != nil {
			return err
		}
		state, err := v.loadState()
		if err != nil {
			return err
		}
		if state.TotalShares.Sign() == 0 {
			amount = new(big.Int).Set(shares)
		} else {
			amount = ceilDiv(new(big.Int).Mul(shares, state.TotalBase), state.TotalShares)
		}
		if aboveMaximum(amount, expectedAssets, toleranceBps) {
			return ErrSlippageExceeded
		}
		if err := v.token.Transfer(caller, v.address, amount); err != nil {
			return err
		}
		return v.creditSupply(caller, state, amount, shares, height)
	})
	if err != nil {
		return nil, err
	}
	return amount, nil
}

func (v *Vault) creditSupply(caller common.Address, state *VaultState, amount, shares *big.Int, height uint64) error {
	state.TotalBase.Add(state.TotalBase, amount)
	state.TotalSuppliedLiquidity.Add(state.TotalSuppliedLiquidity, amount)
	state.TotalShares.Add(state.TotalShares, shares)

	balance, err := v.state.ShareBalance(caller)
	if err != nil {
		return err
	}
	if balance == nil {
		balance = big.NewInt(0)
	}
	balance = new(big.Int).Add(balance, shares)

	record, exists, err := v.state.SupplierRecord(caller)
	if err != nil {
		return err
	}
	if !exists || record.BaseAmount == nil {
		record = SupplierRecord{BaseAmount: big.NewInt(0), AccrualStart: height}
	}
	record.BaseAmount = new(big.Int).Add(record.BaseAmount, amount)

	if err := v.state.PutVaultState(state); err != nil {
		return err
	}
	if err := v.state.SetShareBalance(caller, balance); err != nil {
		return err
	}
	if err := v.state.PutSupplierRecord(caller, record); err != nil {
		return err
	}
	return v.state.SetLastActed(caller, height)
}

// Withdraw releases exact assets, burning the implied shares. Accounting and
// the outgoing transfer stage as one write set.
func (v *Vault) Withdraw(caller common.Address, amount, expectedShares *big.Int, toleranceBps uint64) (*big.Int, error) {
	if err := nativecommon.Guard(v.pauses, moduleName); err != nil {
		return nil, err
	}
	if caller == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := v.enter(); err != nil {
		return nil, err
	}
	defer v.exit()

	var shares *big.Int
	err := v.runStaged(func() error {
		height := v.height()
		if err := v.checkOrdering(caller, height); err != nil {
			return err
		}
		state, err := v.loadState()
		if err != nil {
			return err
		}
		if state.TotalBase.Sign() == 0 {
			return ErrInsufficientShares
		}
		shares = ceilDiv(new(big.Int).Mul(amount, state.TotalShares), state.TotalBase)
		if aboveMaximum(shares, expectedShares, toleranceBps) {
			return ErrSlippageExceeded
		}
		if err := v.debitSupply(caller, state, amount, shares, height); err != nil {
			return err
		}
		return v.token.Transfer(v.address, caller, amount)
	})
	if err != nil {
		return nil, err
	}
	return shares, nil
}

// Redeem burns exact shares, releasing the implied assets. Accounting and
// the outgoing transfer stage as one write set.
func (v *Vault) Redeem(caller common.Address, shares, expectedAssets *big.Int, toleranceBps uint64) (*big.Int, error) {
	if err := nativecommon.Guard(v.pauses, moduleName); err != nil {
		return nil, err
	}
	if caller == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := v.enter(); err != nil {
		return nil, err
	}
	defer v.exit()

	var amount *big.Int
	err := v.runStaged(func() error {
		height := v.height()
		if err := v.checkOrdering(caller, height); err != nil {
			return err
		}
		state, err := v.loadState()
		if err != nil {
			return err
		}
		amount = assetsForShares(state, shares)
		if amount.Sign() == 0 {
			return ErrInvalidAmount
		}
		if belowMinimum(amount, expectedAssets, toleranceBps) {
			return ErrSlippageExceeded
		}
		if err := v.debitSupply(caller, state, amount, shares, height); err != nil {
			return err
		}
		return v.token.Transfer(v.address, caller, amount)
	})
	if err != nil {
		return nil, err
	}
	return amount, nil
}

func (v *Vault) debitSupply(caller common.Address, state *VaultState, amount, shares *big.Int, height uint64) error {
	balance, err := v.state.ShareBalance(caller)
	if err != nil {
		return err
	}
	if balance == nil || balance.Cmp(shares) < 0 {
		return ErrInsufficientShares
	}
	if amount.Cmp(state.availableLiquidity()) > 0 {
		return ErrLowLiquidity
	}

	state.TotalBase.Sub(state.TotalBase, amount)
	state.TotalSuppliedLiquidity.Sub(state.TotalSuppliedLiquidity, amount)
	state.TotalShares.Sub(state.TotalShares, shares)
	balance = new(big.Int).Sub(balance, shares)

	record, exists, err := v.state.SupplierRecord(caller)
	if err != nil {
		return err
	}
	if exists && record.BaseAmount != nil {
		record.BaseAmount = new(big.Int).Sub(record.BaseAmount, amount)
		if record.BaseAmount.Sign() < 0 {
			record.BaseAmount = big.NewInt(0)
		}
	}

	if err := v.state.PutVaultState(state); err != nil {
		return err
	}
	if err := v.state.SetShareBalance(caller, balance); err != nil {
		return err
	}
	if exists {
		if err := v.state.PutSupplierRecord(caller, record); err != nil {
			return err
		}
	}
	return v.state.SetLastActed(caller, height)
}

// Borrow moves non-borrowed liquidity to receiver. Position-ledger only.
func (v *Vault) Borrow(caller common.Address, amount *big.Int, receiver common.Address) error {
	if caller != v.ledger {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := v.enter(); err != nil {
		return err
	}
	defer v.exit()

	state, err := v.loadState()
	if err != nil {
		return err
	}
	if amount.Cmp(state.availableLiquidity()) > 0 {
		return ErrLowLiquidity
	}
	state.TotalBorrow.Add(state.TotalBorrow, amount)
	if err := v.state.PutVaultState(state); err != nil {
		return err
	}
	return v.token.Transfer(v.address, receiver, amount)
}

// Repay pulls amount from payer and reduces the outstanding borrow.
// Position-ledger only.
func (v *Vault) Repay(caller common.Address, amount *big.Int, payer common.Address) error {
	if caller != v.ledger {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := v.enter(); err != nil {
		return err
	}
	defer v.exit()

	if err := v.token.Transfer(payer, v.address, amount); err != nil {
		return err
	}
	state, err := v.loadState()
	if err != nil {
		return err
	}
	state.TotalBorrow.Sub(state.TotalBorrow, amount)
	if state.TotalBorrow.Sign() < 0 {
		state.TotalBorrow = big.NewInt(0)
	}
	return v.state.PutVaultState(state)
}

// RecordInterestAccrual capitalizes accrued borrower interest into the pool
// totals. No tokens move; the debt grows and so does the value backing
// shares. Position-ledger only.
func (v *Vault) RecordInterestAccrual(caller common.Address, delta *big.Int) error {
	if caller != v.ledger {
		return ErrUnauthorized
	}
	if delta == nil || delta.Sign() < 0 {
		return ErrInvalidAmount
	}
	if delta.Sign() == 0 {
		return nil
	}
	if err := v.enter(); err != nil {
		return err
	}
	defer v.exit()

	state, err := v.loadState()
	if err != nil {
		return err
	}
	state.TotalBorrow.Add(state.TotalBorrow, delta)
	state.TotalBase.Add(state.TotalBase, delta)
	state.TotalAccruedInterest.Add(state.TotalAccruedInterest, delta)
	return v.state.PutVaultState(state)
}

// BoostYield pulls amount from the funding account and credits it to the
// pool without minting shares, raising the share price for every holder.
// Position-ledger only.
func (v *Vault) BoostYield(caller common.Address, from common.Address, amount *big.Int) error {
	if caller != v.ledger {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := v.enter(); err != nil {
		return err
	}
	defer v.exit()

	if err := v.token.Transfer(from, v.address, amount); err != nil {
		return err
	}
	state, err := v.loadState()
	if err != nil {
		return err
	}
	state.TotalBase.Add(state.TotalBase, amount)
	state.TotalAccruedInterest.Add(state.TotalAccruedInterest, amount)
	return v.state.PutVaultState(state)
}

// SettleLiquidation collects a liquidated position's debt plus the
// liquidation fee from the payer in a single transfer, retiring the debt and
// crediting the fee to the pool without minting shares. A payer short of
// debt plus fee funds neither leg. Position-ledger only.
func (v *Vault) SettleLiquidation(caller common.Address, debt, fee *big.Int, payer common.Address) error {
	if caller != v.ledger {
		return ErrUnauthorized
	}
	if debt == nil || debt.Sign() <= 0 || fee == nil || fee.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := v.enter(); err != nil {
		return err
	}
	defer v.exit()

	cost := new(big.Int).Add(debt, fee)
	if err := v.token.Transfer(payer, v.address, cost); err != nil {
		return err
	}
	state, err := v.loadState()
	if err != nil {
		return err
	}
	state.TotalBorrow.Sub(state.TotalBorrow, debt)
	if state.TotalBorrow.Sign() < 0 {
		state.TotalBorrow = big.NewInt(0)
	}
	state.TotalBase.Add(state.TotalBase, fee)
	state.TotalAccruedInterest.Add(state.TotalAccruedInterest, fee)
	return v.state.PutVaultState(state)
}

// FlashLoan lends amount to receiver for the duration of the callback and
// verifies by balance difference that principal plus fee came back. The fee
// is credited to TotalBase; any surplus returned beyond it is treated as a
// donation and deliberately not accounted.
func (v *Vault) FlashLoan(initiator common.Address, receiver FlashBorrower, receiverAddr common.Address, amount *big.Int, params []byte) error {
	if err := nativecommon.Guard(v.pauses, moduleName); err != nil {
		return err
	}
	if receiver == nil || receiverAddr == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := v.enter(); err != nil {
		return err
	}
	defer v.exit()

	return v.runStaged(func() error {
		cfg := v.Config()
		feeProduct := new(big.Int).Mul(amount, new(big.Int).SetUint64(cfg.FlashLoanFeeBps))
		if feeProduct.Cmp(maxUint256) > 0 {
			return ErrAmountTooLarge
		}
		fee := feeProduct.Quo(feeProduct, big.NewInt(10_000))

		before, err := v.token.BalanceOf(v.address)
		if err != nil {
			return err
		}
		if before == nil || before.Cmp(amount) < 0 {
			return ErrLowLiquidity
		}
		if err := v.token.Transfer(v.address, receiverAddr, amount); err != nil {
			return err
		}
		if err := receiver.OnFlashLoan(initiator, amount, fee, params); err != nil {
			return err
		}
		after, err := v.token.BalanceOf(v.address)
		if err != nil {
			return err
		}
		required := new(big.Int).Add(before, fee)
		if after == nil || after.Cmp(required) < 0 {
			return ErrFlashLoanNotRepaid
		}

		state, err := v.loadState()
		if err != nil {
			return err
		}
		state.TotalBase.Add(state.TotalBase, fee)
		return v.state.PutVaultState(state)
	})
}

// IsRewardable reports whether the supplier has held at least the rewardable
// supply for a full reward interval.
func (v *Vault) IsRewardable(supplier common.Address) (bool, error) {
	cfg := v.Config()
	if cfg.RewardAmount.Sign() == 0 {
		return false, nil
	}
	record, exists, err := v.state.SupplierRecord(supplier)
	if err != nil {
		return false, err
	}
	if !exists || record.BaseAmount == nil {
		return false, nil
	}
	if record.BaseAmount.Cmp(cfg.RewardableSupply) < 0 {
		return false, nil
	}
	return v.height()-record.AccrualStart >= cfg.RewardInterval, nil
}

// ClaimReward pays the supplier reward from the treasury and restarts the
// accrual window. The reward is proportional to the elapsed window, capped
// at RewardAmount.
func (v *Vault) ClaimReward(caller common.Address) (*big.Int, error) {
	if err := nativecommon.Guard(v.pauses, moduleName); err != nil {
		return nil, err
	}
	rewardable, err := v.IsRewardable(caller)
	if err != nil {
		return nil, err
	}
	if !rewardable {
		return nil, ErrNotRewardable
	}
	if err := v.enter(); err != nil {
		return nil, err
	}
	defer v.exit()

	var reward *big.Int
	err = v.runStaged(func() error {
		cfg := v.Config()
		record, _, err := v.state.SupplierRecord(caller)
		if err != nil {
			return err
		}
		height := v.height()
		duration := height - record.AccrualStart
		reward = new(big.Int).Mul(cfg.RewardAmount, new(big.Int).SetUint64(duration))
		reward.Quo(reward, new(big.Int).SetUint64(cfg.RewardInterval))
		if reward.Cmp(cfg.RewardAmount) > 0 {
			reward = new(big.Int).Set(cfg.RewardAmount)
		}
		// The treasury pays before the accrual window resets, so an
		// underfunded treasury cannot consume an earned window.
		if err := v.token.Transfer(v.treasury, caller, reward); err != nil {
			return err
		}
		record.AccrualStart = height
		return v.state.PutSupplierRecord(caller, record)
	})
	if err != nil {
		return nil, err
	}
	return reward, nil
}

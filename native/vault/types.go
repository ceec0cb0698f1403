package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// VaultState is the pooled accounting for one base asset. TotalBase is the
// authoritative value backing shares: principal plus capitalized interest
// plus injected yield. Share price is TotalBase/TotalShares and is never
// derived from a raw token balance, so direct transfers into the vault
// cannot move it.
type VaultState struct {
	TotalBase              *big.Int
	TotalBorrow            *big.Int
	TotalSuppliedLiquidity *big.Int
	TotalAccruedInterest   *big.Int
	TotalShares            *big.Int
}

// Normalise fills nil fields with zero so callers can mutate in place.
func (s *VaultState) Normalise() {
	if s.TotalBase == nil {
		s.TotalBase = big.NewInt(0)
	}
	if s.TotalBorrow == nil {
		s.TotalBorrow = big.NewInt(0)
	}
	if s.TotalSuppliedLiquidity == nil {
		s.TotalSuppliedLiquidity = big.NewInt(0)
	}
	if s.TotalAccruedInterest == nil {
		s.TotalAccruedInterest = big.NewInt(0)
	}
	if s.TotalShares == nil {
		s.TotalShares = big.NewInt(0)
	}
}

// Clone deep-copies the state.
func (s *VaultState) Clone() *VaultState {
	if s == nil {
		return &VaultState{}
	}
	clone := &VaultState{}
	if s.TotalBase != nil {
		clone.TotalBase = new(big.Int).Set(s.TotalBase)
	}
	if s.TotalBorrow != nil {
		clone.TotalBorrow = new(big.Int).Set(s.TotalBorrow)
	}
	if s.TotalSuppliedLiquidity != nil {
		clone.TotalSuppliedLiquidity = new(big.Int).Set(s.TotalSuppliedLiquidity)
	}
	if s.TotalAccruedInterest != nil {
		clone.TotalAccruedInterest = new(big.Int).Set(s.TotalAccruedInterest)
	}
	if s.TotalShares != nil {
		clone.TotalShares = new(big.Int).Set(s.TotalShares)
	}
	clone.Normalise()
	return clone
}

// availableLiquidity is the non-borrowed supplied balance.
func (s *VaultState) availableLiquidity() *big.Int {
	available := new(big.Int).Sub(s.TotalSuppliedLiquidity, s.TotalBorrow)
	if available.Sign() < 0 {
		return big.NewInt(0)
	}
	return available
}

// SupplierRecord tracks one supplier's principal and the start of the
// current reward accrual window.
type SupplierRecord struct {
	BaseAmount   *big.Int
	AccrualStart uint64
}

// State is the persistence boundary for vault accounting. Stage opens a
// write set for one operation; writes become visible to other operations only
// on Commit, and Discard drops them without a trace.
type State interface {
	Stage() error
	Commit() error
	Discard()
	VaultState() (*VaultState, error)
	PutVaultState(*VaultState) error
	ShareBalance(common.Address) (*big.Int, error)
	SetShareBalance(common.Address, *big.Int) error
	SupplierRecord(common.Address) (SupplierRecord, bool, error)
	PutSupplierRecord(common.Address, SupplierRecord) error
	LastActed(common.Address) (uint64, bool, error)
	SetLastActed(common.Address, uint64) error
}

// Token is the fungible-asset transfer boundary. Transfers move custody in
// an external ledger; the vault only ever reads its own balance for flash
// loan repayment verification.
type Token interface {
	BalanceOf(common.Address) (*big.Int, error)
	Transfer(from, to common.Address, amount *big.Int) error
}

// FlashBorrower receives a flash loan and must return principal plus fee to
// the vault before the callback returns.
type FlashBorrower interface {
	OnFlashLoan(initiator common.Address, amount, fee *big.Int, params []byte) error
}

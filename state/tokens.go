package state

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance = errors.New("state: insufficient token balance")
	ErrInvalidTransfer     = errors.New("state: invalid transfer")
)

// TokenLedger tracks fungible-asset balances per account. It is the daemon's
// implementation of the asset-transfer boundary: positions, the vault
// custody account, and user accounts all hold balances here.
type TokenLedger struct {
	mu sync.Mutex
	m  *Manager
}

// NewTokenLedger builds a ledger over the manager's database.
func NewTokenLedger(m *Manager) *TokenLedger {
	return &TokenLedger{m: m}
}

// BalanceOf returns the holder's balance of asset.
func (l *TokenLedger) BalanceOf(asset, holder common.Address) (*big.Int, error) {
	balance := new(big.Int)
	found, err := l.m.getJSON(tokenBalanceKey(asset, holder), balance)
	if err != nil {
		return nil, err
	}
	if !found {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// Mint credits newly issued units to an account. Used by genesis loading and
// deposit bridging.
func (l *TokenLedger) Mint(asset, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidTransfer
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, err := l.BalanceOf(asset, to)
	if err != nil {
		return err
	}
	return l.m.putJSON(tokenBalanceKey(asset, to), new(big.Int).Add(balance, amount))
}

// Transfer moves amount of asset between accounts.
func (l *TokenLedger) Transfer(asset, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidTransfer
	}
	if amount.Sign() == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fromBalance, err := l.BalanceOf(asset, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance, err := l.BalanceOf(asset, to)
	if err != nil {
		return err
	}
	if err := l.m.putJSON(tokenBalanceKey(asset, from), new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return l.m.putJSON(tokenBalanceKey(asset, to), new(big.Int).Add(toBalance, amount))
}

// BoundToken views the ledger through one fixed asset. It satisfies the
// vault's single-asset token boundary and the governance balance reader.
type BoundToken struct {
	ledger *TokenLedger
	asset  common.Address
}

// Bind fixes the ledger to one asset.
func (l *TokenLedger) Bind(asset common.Address) *BoundToken {
	return &BoundToken{ledger: l, asset: asset}
}

func (t *BoundToken) BalanceOf(holder common.Address) (*big.Int, error) {
	return t.ledger.BalanceOf(t.asset, holder)
}

func (t *BoundToken) Transfer(from, to common.Address, amount *big.Int) error {
	return t.ledger.Transfer(t.asset, from, to, amount)
}

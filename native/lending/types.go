package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/LendefiMarkets/lendefi-markets-polygon/native/assets"
)

// PositionStatus is the lifecycle state of a position. Terminal states are
// immutable.
type PositionStatus uint8

const (
	StatusActive PositionStatus = iota
	StatusClosed
	StatusLiquidated
)

func (s PositionStatus) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusClosed:
		return "CLOSED"
	case StatusLiquidated:
		return "LIQUIDATED"
	default:
		return "UNKNOWN"
	}
}

// Position is one borrower account against the shared liquidity pool.
// DebtAmount is principal only; accrued interest is computed on read and
// materialized into DebtAmount whenever the position mutates. An isolated
// position may only ever hold collateral of its opening asset.
type Position struct {
	Owner               common.Address
	ID                  uint64
	Isolated            bool
	IsolatedAsset       common.Address
	Status              PositionStatus
	DebtAmount          *big.Int
	LastInterestAccrual uint64
	Vault               common.Address
	CollateralOrder     []common.Address
	Collateral          map[common.Address]*big.Int
}

// Normalise fills nil containers so callers can mutate in place.
func (p *Position) Normalise() {
	if p.DebtAmount == nil {
		p.DebtAmount = big.NewInt(0)
	}
	if p.Collateral == nil {
		p.Collateral = make(map[common.Address]*big.Int)
	}
}

// Clone deep-copies the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	if p.DebtAmount != nil {
		clone.DebtAmount = new(big.Int).Set(p.DebtAmount)
	}
	clone.CollateralOrder = append([]common.Address{}, p.CollateralOrder...)
	clone.Collateral = make(map[common.Address]*big.Int, len(p.Collateral))
	for asset, amount := range p.Collateral {
		clone.Collateral[asset] = new(big.Int).Set(amount)
	}
	return &clone
}

// holding returns the position's balance of asset, zero when absent.
func (p *Position) holding(asset common.Address) *big.Int {
	if amount, ok := p.Collateral[asset]; ok && amount != nil {
		return amount
	}
	return big.NewInt(0)
}

func (p *Position) setHolding(asset common.Address, amount *big.Int) {
	current, held := p.Collateral[asset]
	if amount.Sign() == 0 {
		if held {
			delete(p.Collateral, asset)
			for i, a := range p.CollateralOrder {
				if a == asset {
					p.CollateralOrder = append(p.CollateralOrder[:i], p.CollateralOrder[i+1:]...)
					break
				}
			}
		}
		return
	}
	if !held || current == nil {
		p.CollateralOrder = append(p.CollateralOrder, asset)
	}
	p.Collateral[asset] = new(big.Int).Set(amount)
}

// CollateralVaultAddress derives the deterministic custody address for one
// position's collateral.
func CollateralVaultAddress(owner common.Address, id uint64) common.Address {
	preimage := make([]byte, 0, common.AddressLength+8+len("collateral-vault"))
	preimage = append(preimage, owner.Bytes()...)
	var idBytes [8]byte
	for i := 0; i < 8; i++ {
		idBytes[7-i] = byte(id >> (8 * i))
	}
	preimage = append(preimage, idBytes[:]...)
	preimage = append(preimage, []byte("collateral-vault")...)
	return common.BytesToAddress(crypto.Keccak256(preimage)[12:])
}

// State is the persistence boundary for the position ledger. Stage opens a
// write set for one operation; writes become visible to other operations only
// on Commit, and Discard drops them without a trace.
type State interface {
	Stage() error
	Commit() error
	Discard()
	Position(owner common.Address, id uint64) (*Position, bool, error)
	PutPosition(*Position) error
	PositionCount(owner common.Address) (uint64, error)
	SetPositionCount(owner common.Address, count uint64) error
	AssetTVL(asset common.Address) (*big.Int, error)
	SetAssetTVL(asset common.Address, amount *big.Int) error
}

// Tokens moves collateral assets between accounts.
type Tokens interface {
	Transfer(asset, from, to common.Address, amount *big.Int) error
}

// Prices is the oracle boundary the engine values collateral through.
type Prices interface {
	GetAssetPrice(asset common.Address) (*big.Int, error)
	PoolLiquidityLimit(asset common.Address, amount *big.Int) error
}

// Liquidity is the base-asset pool boundary. SettleLiquidation funds a
// liquidation's debt and fee in a single transfer so a payer short of either
// leg funds neither.
type Liquidity interface {
	Borrow(caller common.Address, amount *big.Int, receiver common.Address) error
	Repay(caller common.Address, amount *big.Int, payer common.Address) error
	RecordInterestAccrual(caller common.Address, delta *big.Int) error
	SettleLiquidation(caller common.Address, debt, fee *big.Int, payer common.Address) error
	AvailableLiquidity() (*big.Int, error)
	BorrowRate(tier assets.Tier) (*big.Int, error)
}

// BalanceReader reads governance-token balances for the liquidator gate.
type BalanceReader interface {
	BalanceOf(common.Address) (*big.Int, error)
}

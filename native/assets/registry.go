// Package assets maintains the per-asset risk configuration consulted by the
// position ledger and the oracle aggregator on every valuation. The registry
// is a pure configuration store: it validates on write, is mutated only by
// its administrator, and is read-only to every other module.
package assets

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNotAuthorized     = errors.New("assets: caller is not the registry admin")
	ErrAssetNotListed    = errors.New("assets: asset not listed")
	ErrAssetInactive     = errors.New("assets: asset not active")
	ErrInvalidDecimals   = errors.New("assets: decimals out of range")
	ErrInvalidThreshold  = errors.New("assets: threshold out of range")
	ErrThresholdSpread   = errors.New("assets: liquidation threshold too close to borrow threshold")
	ErrRegistryFull      = errors.New("assets: supported asset ceiling reached")
	ErrIsolationDebtCap  = errors.New("assets: isolation debt cap required only for isolated tier")
	ErrSupplyCapRequired = errors.New("assets: max supply threshold required")
	ErrOracleConfig      = errors.New("assets: oracle configuration invalid")
)

const (
	// maxSupportedAssets bounds the registry so valuation loops stay cheap.
	maxSupportedAssets = 3_000
	// minThresholdSpreadBps is the enforced gap between the borrow and
	// liquidation thresholds.
	minThresholdSpreadBps      = 100
	maxBorrowThresholdBps      = 9_800
	maxLiquidationThresholdBps = 9_900
)

// OracleConfig names the price sources configured for an asset. A zero
// address disables the corresponding source. MinOracleCount is the number of
// healthy sources the aggregator must consult before pricing the asset.
type OracleConfig struct {
	Feed           common.Address
	Pool           common.Address
	MinOracleCount uint8
}

func (o OracleConfig) sources() uint8 {
	count := uint8(0)
	if o.Feed != (common.Address{}) {
		count++
	}
	if o.Pool != (common.Address{}) {
		count++
	}
	return count
}

// Asset is a registry entry describing one collateral asset.
type Asset struct {
	Address                 common.Address
	Active                  bool
	Decimals                uint8
	BorrowThresholdBps      uint64
	LiquidationThresholdBps uint64
	MaxSupplyThreshold      *big.Int
	IsolationDebtCap        *big.Int
	Tier                    Tier
	Oracle                  OracleConfig
}

// Clone returns a deep copy so callers cannot mutate registry state.
func (a Asset) Clone() Asset {
	clone := a
	if a.MaxSupplyThreshold != nil {
		clone.MaxSupplyThreshold = new(big.Int).Set(a.MaxSupplyThreshold)
	}
	if a.IsolationDebtCap != nil {
		clone.IsolationDebtCap = new(big.Int).Set(a.IsolationDebtCap)
	}
	return clone
}

func (a Asset) validate() error {
	if a.Decimals == 0 || a.Decimals > 18 {
		return ErrInvalidDecimals
	}
	if a.BorrowThresholdBps == 0 || a.BorrowThresholdBps > maxBorrowThresholdBps {
		return ErrInvalidThreshold
	}
	if a.LiquidationThresholdBps > maxLiquidationThresholdBps {
		return ErrInvalidThreshold
	}
	if a.LiquidationThresholdBps < a.BorrowThresholdBps+minThresholdSpreadBps {
		return ErrThresholdSpread
	}
	if a.MaxSupplyThreshold == nil || a.MaxSupplyThreshold.Sign() <= 0 {
		return ErrSupplyCapRequired
	}
	if !a.Tier.Valid() {
		return ErrInvalidThreshold
	}
	isolatedCap := a.IsolationDebtCap != nil && a.IsolationDebtCap.Sign() > 0
	if a.Tier == TierIsolated && !isolatedCap {
		return ErrIsolationDebtCap
	}
	if a.Tier != TierIsolated && isolatedCap {
		return ErrIsolationDebtCap
	}
	configured := a.Oracle.sources()
	if configured == 0 {
		return ErrOracleConfig
	}
	if a.Oracle.MinOracleCount == 0 || a.Oracle.MinOracleCount > configured {
		return ErrOracleConfig
	}
	return nil
}

// Registry stores the listed assets for one market.
type Registry struct {
	mu     sync.RWMutex
	admin  common.Address
	assets map[common.Address]*Asset
	order  []common.Address
}

// NewRegistry constructs an empty registry administered by admin.
func NewRegistry(admin common.Address) *Registry {
	return &Registry{
		admin:  admin,
		assets: make(map[common.Address]*Asset),
	}
}

func (r *Registry) authorize(caller common.Address) error {
	if caller != r.admin {
		return ErrNotAuthorized
	}
	return nil
}

// Upsert lists a new asset or replaces the configuration of an existing one
// after validation. Only the registry admin may call it.
func (r *Registry) Upsert(caller common.Address, asset Asset) error {
	if err := asset.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.authorize(caller); err != nil {
		return err
	}
	if _, exists := r.assets[asset.Address]; !exists {
		if len(r.order) >= maxSupportedAssets {
			return ErrRegistryFull
		}
		r.order = append(r.order, asset.Address)
	}
	stored := asset.Clone()
	r.assets[asset.Address] = &stored
	return nil
}

// SetActive toggles an asset without touching its risk parameters.
func (r *Registry) SetActive(caller common.Address, addr common.Address, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.authorize(caller); err != nil {
		return err
	}
	asset, ok := r.assets[addr]
	if !ok {
		return ErrAssetNotListed
	}
	asset.Active = active
	return nil
}

// Get returns a copy of the asset entry or ErrAssetNotListed.
func (r *Registry) Get(addr common.Address) (Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	asset, ok := r.assets[addr]
	if !ok {
		return Asset{}, ErrAssetNotListed
	}
	return asset.Clone(), nil
}

// GetActive behaves like Get but also requires the asset to be active.
func (r *Registry) GetActive(addr common.Address) (Asset, error) {
	asset, err := r.Get(addr)
	if err != nil {
		return Asset{}, err
	}
	if !asset.Active {
		return Asset{}, ErrAssetInactive
	}
	return asset, nil
}

// List returns the listed asset addresses in listing order.
func (r *Registry) List() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]common.Address{}, r.order...)
}

// Count reports the number of listed assets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

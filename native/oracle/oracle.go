// Package oracle aggregates asset prices from up to two independent sources
// per asset: a push-style reference feed and a pool-implied time-weighted
// price. Every reading passes a freshness check and a single-step volatility
// circuit breaker before it is eligible for aggregation; solvency decisions
// in the position ledger only ever see prices that survived both.
package oracle

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/LendefiMarkets/lendefi-markets-polygon/native/assets"
)

var (
	ErrStalePrice          = errors.New("oracle: price exceeds freshness threshold")
	ErrCircuitBreaker      = errors.New("oracle: volatility circuit breaker tripped")
	ErrInsufficientOracles = errors.New("oracle: insufficient healthy price sources")
	ErrSourceNotConfigured = errors.New("oracle: source not configured for asset")
	ErrInvalidPrice        = errors.New("oracle: source returned invalid price")
	ErrPoolLiquidityCap    = errors.New("oracle: amount exceeds pool liquidity limit")
)

// USDPriceDecimals is the fixed scale every aggregated price is normalized
// to, regardless of the source's native precision.
const USDPriceDecimals = 8

// SourceKind selects one of an asset's configured price sources.
type SourceKind uint8

const (
	SourceFeed SourceKind = iota
	SourcePool
)

func (k SourceKind) String() string {
	switch k {
	case SourceFeed:
		return "feed"
	case SourcePool:
		return "pool"
	default:
		return "unknown"
	}
}

// RoundData is one reading from a push-style reference feed.
type RoundData struct {
	RoundID   uint64
	Answer    *big.Int
	UpdatedAt time.Time
}

// PriceFeed is the push-style reference source boundary.
type PriceFeed interface {
	LatestRound() (RoundData, error)
	Decimals() uint8
}

// PoolObserver is the pool-implied source boundary. Observe returns the
// cumulative tick at the start and end of the requested window together with
// the time of the newest underlying observation.
type PoolObserver interface {
	Observe(window uint32) ([2]int64, time.Time, error)
	Token0() common.Address
	Token1() common.Address
	TokenDecimals(token common.Address) uint8
	PoolBalance(token common.Address) (*big.Int, error)
}

// Config tunes the aggregator safeguards.
type Config struct {
	// FreshnessThreshold bounds the age of any reading.
	FreshnessThreshold time.Duration
	// MaxDeviationBps trips the circuit breaker when successive readings
	// from one source move further than this fraction.
	MaxDeviationBps uint64
	// TwapWindow is the pool observation window in seconds.
	TwapWindow uint32
	// PoolLiquidityCapBps bounds a single collateral deposit relative to
	// the reference pool's balance of that asset.
	PoolLiquidityCapBps uint64
}

// Normalise applies defaults to unset fields.
func (c Config) Normalise() Config {
	cfg := c
	if cfg.FreshnessThreshold <= 0 {
		cfg.FreshnessThreshold = 8 * time.Hour
	}
	if cfg.MaxDeviationBps == 0 {
		cfg.MaxDeviationBps = 2_000
	}
	if cfg.TwapWindow == 0 {
		cfg.TwapWindow = 1_800
	}
	if cfg.PoolLiquidityCapBps == 0 {
		cfg.PoolLiquidityCapBps = 300
	}
	return cfg
}

// Aggregator resolves USD prices for registry-listed assets.
type Aggregator struct {
	mu       sync.RWMutex
	registry *assets.Registry
	cfg      Config
	feeds    map[common.Address]PriceFeed
	pools    map[common.Address]PoolObserver
	// lastReading tracks the previous accepted price per asset and source
	// for the single-step deviation check.
	lastReading map[string]*big.Int
}

// NewAggregator constructs an aggregator over the provided registry.
func NewAggregator(registry *assets.Registry, cfg Config) *Aggregator {
	return &Aggregator{
		registry:    registry,
		cfg:         cfg.Normalise(),
		feeds:       make(map[common.Address]PriceFeed),
		pools:       make(map[common.Address]PoolObserver),
		lastReading: make(map[string]*big.Int),
	}
}

// RegisterFeed binds a push-style feed implementation to its registry id.
func (a *Aggregator) RegisterFeed(id common.Address, feed PriceFeed) {
	if a == nil || feed == nil {
		return
	}
	a.mu.Lock()
	a.feeds[id] = feed
	a.mu.Unlock()
}

// RegisterPool binds a pool observer implementation to its registry id.
func (a *Aggregator) RegisterPool(id common.Address, pool PoolObserver) {
	if a == nil || pool == nil {
		return
	}
	a.mu.Lock()
	a.pools[id] = pool
	a.mu.Unlock()
}

func readingKey(asset common.Address, kind SourceKind) string {
	return asset.Hex() + ":" + kind.String()
}

// scaleToUSD renormalizes a price from the source's decimals to the fixed
// USD scale.
func scaleToUSD(price *big.Int, decimals uint8) *big.Int {
	scaled := new(big.Int).Set(price)
	switch {
	case decimals < USDPriceDecimals:
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(USDPriceDecimals-decimals)), nil)
		scaled.Mul(scaled, factor)
	case decimals > USDPriceDecimals:
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-USDPriceDecimals)), nil)
		scaled.Quo(scaled, factor)
	}
	return scaled
}

func (a *Aggregator) checkDeviation(asset common.Address, kind SourceKind, price *big.Int) error {
	key := readingKey(asset, kind)
	a.mu.Lock()
	defer a.mu.Unlock()
	previous, ok := a.lastReading[key]
	if ok && previous.Sign() > 0 {
		diff := new(big.Int).Sub(price, previous)
		diff.Abs(diff)
		diff.Mul(diff, big.NewInt(10_000))
		diff.Quo(diff, previous)
		if diff.Cmp(new(big.Int).SetUint64(a.cfg.MaxDeviationBps)) > 0 {
			// The tripped reading is not recorded: the breaker clears
			// only once the source returns inside the band.
			return ErrCircuitBreaker
		}
	}
	a.lastReading[key] = new(big.Int).Set(price)
	return nil
}

func (a *Aggregator) feedPrice(asset assets.Asset) (*big.Int, error) {
	if asset.Oracle.Feed == (common.Address{}) {
		return nil, ErrSourceNotConfigured
	}
	a.mu.RLock()
	feed := a.feeds[asset.Oracle.Feed]
	a.mu.RUnlock()
	if feed == nil {
		return nil, ErrSourceNotConfigured
	}
	round, err := feed.LatestRound()
	if err != nil {
		return nil, err
	}
	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if time.Since(round.UpdatedAt) > a.cfg.FreshnessThreshold {
		return nil, ErrStalePrice
	}
	price := scaleToUSD(round.Answer, feed.Decimals())
	if err := a.checkDeviation(asset.Address, SourceFeed, price); err != nil {
		return nil, err
	}
	return price, nil
}

func (a *Aggregator) poolPrice(asset assets.Asset) (*big.Int, error) {
	if asset.Oracle.Pool == (common.Address{}) {
		return nil, ErrSourceNotConfigured
	}
	a.mu.RLock()
	pool := a.pools[asset.Oracle.Pool]
	a.mu.RUnlock()
	if pool == nil {
		return nil, ErrSourceNotConfigured
	}
	cumulatives, observedAt, err := pool.Observe(a.cfg.TwapWindow)
	if err != nil {
		return nil, err
	}
	if time.Since(observedAt) > a.cfg.FreshnessThreshold {
		return nil, ErrStalePrice
	}
	meanTick, err := MeanTick(cumulatives, a.cfg.TwapWindow)
	if err != nil {
		return nil, err
	}
	quoteToken := pool.Token0()
	if quoteToken == asset.Address {
		quoteToken = pool.Token1()
	}
	// Quote one whole unit of the asset in the paired token, then adjust
	// for the decimal difference between the two pooled tokens.
	baseUnit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(asset.Decimals)), nil)
	quote, err := QuoteAtTick(meanTick, baseUnit, asset.Address, quoteToken)
	if err != nil {
		return nil, err
	}
	if quote.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	price := scaleToUSD(quote, pool.TokenDecimals(quoteToken))
	if err := a.checkDeviation(asset.Address, SourcePool, price); err != nil {
		return nil, err
	}
	return price, nil
}

// GetAssetPriceByType returns one source's price normalized to the USD
// scale, after the staleness and deviation safeguards.
func (a *Aggregator) GetAssetPriceByType(addr common.Address, kind SourceKind) (*big.Int, error) {
	asset, err := a.registry.GetActive(addr)
	if err != nil {
		return nil, err
	}
	switch kind {
	case SourceFeed:
		return a.feedPrice(asset)
	case SourcePool:
		return a.poolPrice(asset)
	default:
		return nil, ErrSourceNotConfigured
	}
}

// GetAssetPrice returns the arithmetic median of the asset's healthy
// sources: the mean when both report, the sole price when only one does,
// and ErrInsufficientOracles when fewer sources are healthy than the
// asset's configured minimum.
func (a *Aggregator) GetAssetPrice(addr common.Address) (*big.Int, error) {
	asset, err := a.registry.GetActive(addr)
	if err != nil {
		return nil, err
	}
	var (
		healthy []*big.Int
		lastErr error
	)
	if asset.Oracle.Feed != (common.Address{}) {
		if price, err := a.feedPrice(asset); err == nil {
			healthy = append(healthy, price)
		} else {
			lastErr = err
		}
	}
	if asset.Oracle.Pool != (common.Address{}) {
		if price, err := a.poolPrice(asset); err == nil {
			healthy = append(healthy, price)
		} else {
			lastErr = err
		}
	}
	if len(healthy) < int(asset.Oracle.MinOracleCount) {
		if lastErr != nil {
			return nil, errors.Join(ErrInsufficientOracles, lastErr)
		}
		return nil, ErrInsufficientOracles
	}
	switch len(healthy) {
	case 1:
		return healthy[0], nil
	default:
		median := new(big.Int).Add(healthy[0], healthy[1])
		median.Quo(median, big.NewInt(2))
		return median, nil
	}
}

// PoolLiquidityLimit rejects a collateral deposit whose size could move the
// pool-implied price used to value it: the amount must stay within the
// configured fraction of the reference pool's balance of that asset. Assets
// without a pool source pass unconditionally.
func (a *Aggregator) PoolLiquidityLimit(addr common.Address, amount *big.Int) error {
	asset, err := a.registry.Get(addr)
	if err != nil {
		return err
	}
	if asset.Oracle.Pool == (common.Address{}) || amount == nil || amount.Sign() <= 0 {
		return nil
	}
	a.mu.RLock()
	pool := a.pools[asset.Oracle.Pool]
	a.mu.RUnlock()
	if pool == nil {
		return ErrSourceNotConfigured
	}
	balance, err := pool.PoolBalance(addr)
	if err != nil {
		return err
	}
	if balance == nil || balance.Sign() <= 0 {
		return ErrPoolLiquidityCap
	}
	scaled := new(big.Int).Mul(amount, big.NewInt(10_000))
	limit := new(big.Int).Mul(balance, new(big.Int).SetUint64(a.cfg.PoolLiquidityCapBps))
	if scaled.Cmp(limit) > 0 {
		return ErrPoolLiquidityCap
	}
	return nil
}

package state

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/LendefiMarkets/lendefi-markets-polygon/native/assets"
	"github.com/LendefiMarkets/lendefi-markets-polygon/native/lending"
	"github.com/LendefiMarkets/lendefi-markets-polygon/native/vault"
	"github.com/LendefiMarkets/lendefi-markets-polygon/storage"
)

var (
	marketAdmin      = common.HexToAddress("0x00000000000000000000000000000000000000AA")
	marketTreasury   = common.HexToAddress("0x00000000000000000000000000000000000000AB")
	marketVaultAcct  = common.HexToAddress("0x00000000000000000000000000000000000000AC")
	marketLedgerAcct = common.HexToAddress("0x00000000000000000000000000000000000000AD")
	marketBase       = common.HexToAddress("0x00000000000000000000000000000000000000B1")
	marketGov        = common.HexToAddress("0x00000000000000000000000000000000000000B2")
	marketEth        = common.HexToAddress("0x00000000000000000000000000000000000000B3")
	marketFeed       = common.HexToAddress("0x00000000000000000000000000000000000000B4")
	marketSupplier   = common.HexToAddress("0x0000000000000000000000000000000000000031")
	marketBorrower   = common.HexToAddress("0x0000000000000000000000000000000000000032")
	marketLiquidator = common.HexToAddress("0x0000000000000000000000000000000000000033")
)

func baseUnits(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000))
}

func weiUnits(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func usdQuote(dollars int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(dollars), big.NewInt(100_000_000))
}

type fixedPrices struct {
	prices map[common.Address]*big.Int
}

func (p *fixedPrices) GetAssetPrice(asset common.Address) (*big.Int, error) {
	return new(big.Int).Set(p.prices[asset]), nil
}

func (p *fixedPrices) PoolLiquidityLimit(common.Address, *big.Int) error { return nil }

type marketEnv struct {
	manager *Manager
	ledger  *TokenLedger
	vault   *vault.Vault
	engine  *lending.Engine
	prices  *fixedPrices
}

// newMarket wires the full persistence stack the way the daemon does: one
// manager backing the vault, the position ledger, and the token ledger.
func newMarket(t *testing.T) *marketEnv {
	t.Helper()

	manager, err := NewManager(storage.NewMemDB())
	require.NoError(t, err)
	require.NoError(t, manager.SetHeight(1))
	ledger := NewTokenLedger(manager)

	registry := assets.NewRegistry(marketAdmin)
	require.NoError(t, registry.Upsert(marketAdmin, assets.Asset{
		Address:                 marketEth,
		Active:                  true,
		Decimals:                18,
		BorrowThresholdBps:      8_000,
		LiquidationThresholdBps: 8_500,
		MaxSupplyThreshold:      weiUnits(1_000_000),
		Tier:                    assets.TierCrossA,
		Oracle:                  assets.OracleConfig{Feed: marketFeed, MinOracleCount: 1},
	}))

	prices := &fixedPrices{prices: map[common.Address]*big.Int{marketEth: usdQuote(2_500)}}

	v, err := vault.New(vault.Params{
		State:    manager,
		Token:    ledger.Bind(marketBase),
		Pauses:   manager,
		Address:  marketVaultAcct,
		Ledger:   marketLedgerAcct,
		Treasury: marketTreasury,
		Admin:    marketAdmin,
		Height:   manager.Height,
		Config:   vault.DefaultProtocolConfig(),
	})
	require.NoError(t, err)

	engine, err := lending.New(lending.Params{
		State:        manager,
		Registry:     registry,
		Oracle:       prices,
		Vault:        v,
		Tokens:       ledger,
		GovToken:     ledger.Bind(marketGov),
		Pauses:       manager,
		Self:         marketLedgerAcct,
		BaseDecimals: 6,
		Height:       manager.Height,
	})
	require.NoError(t, err)

	return &marketEnv{manager: manager, ledger: ledger, vault: v, engine: engine, prices: prices}
}

// A liquidator must fund debt plus fee in one transfer. When the funds fall
// short the entire liquidation aborts: pool totals, the position, custody,
// and the liquidator's balance stay exactly as they were.
func TestLiquidationShortOfFeeLeavesNoTrace(t *testing.T) {
	env := newMarket(t)

	require.NoError(t, env.ledger.Mint(marketBase, marketSupplier, baseUnits(1_000_000)))
	_, err := env.vault.Deposit(marketSupplier, baseUnits(1_000_000), nil, 0)
	require.NoError(t, err)

	require.NoError(t, env.manager.SetHeight(2))
	id, err := env.engine.CreatePosition(marketBorrower, marketEth, false)
	require.NoError(t, err)
	require.NoError(t, env.ledger.Mint(marketEth, marketBorrower, weiUnits(1)))
	require.NoError(t, env.engine.SupplyCollateral(marketBorrower, marketEth, weiUnits(1), id))
	require.NoError(t, env.engine.Borrow(marketBorrower, id, baseUnits(1_000), nil, 0))

	env.prices.prices[marketEth] = usdQuote(1_150)
	liquidatable, err := env.engine.IsLiquidatable(marketBorrower, id)
	require.NoError(t, err)
	require.True(t, liquidatable)

	require.NoError(t, env.ledger.Mint(marketGov, marketLiquidator, weiUnits(20_000)))
	// Debt is 1,000 and CROSS_A carries a 2% fee: the cost is 1,020. Fund
	// only the debt.
	require.NoError(t, env.ledger.Mint(marketBase, marketLiquidator, baseUnits(1_000)))

	err = env.engine.Liquidate(marketLiquidator, marketBorrower, id, nil, 0)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	totals, err := env.manager.VaultState()
	require.NoError(t, err)
	require.Zero(t, totals.TotalBorrow.Cmp(baseUnits(1_000)), "borrow retired without payment")

	pos, found, err := env.manager.Position(marketBorrower, id)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, lending.StatusActive, pos.Status)
	require.Zero(t, pos.DebtAmount.Cmp(baseUnits(1_000)))

	balance, err := env.ledger.BalanceOf(marketBase, marketLiquidator)
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(baseUnits(1_000)), "liquidator funds consumed")

	held, err := env.ledger.BalanceOf(marketEth, pos.Vault)
	require.NoError(t, err)
	require.Zero(t, held.Cmp(weiUnits(1)), "collateral left custody")

	// With the fee funded the same liquidation settles whole.
	require.NoError(t, env.ledger.Mint(marketBase, marketLiquidator, baseUnits(20)))
	require.NoError(t, env.engine.Liquidate(marketLiquidator, marketBorrower, id, nil, 0))

	pos, _, err = env.manager.Position(marketBorrower, id)
	require.NoError(t, err)
	require.Equal(t, lending.StatusLiquidated, pos.Status)
	require.Zero(t, pos.DebtAmount.Sign())

	totals, err = env.manager.VaultState()
	require.NoError(t, err)
	require.Zero(t, totals.TotalBorrow.Sign())

	seized, err := env.ledger.BalanceOf(marketEth, marketLiquidator)
	require.NoError(t, err)
	require.Zero(t, seized.Cmp(weiUnits(1)))
}

// A reward claim against an empty treasury must not consume the supplier's
// accrual window.
func TestRewardClaimAgainstEmptyTreasuryKeepsWindow(t *testing.T) {
	env := newMarket(t)

	supply := baseUnits(100_000)
	require.NoError(t, env.ledger.Mint(marketBase, marketSupplier, supply))
	_, err := env.vault.Deposit(marketSupplier, supply, nil, 0)
	require.NoError(t, err)

	cfg := vault.DefaultProtocolConfig()
	require.NoError(t, env.manager.SetHeight(1+cfg.RewardInterval))

	rewardable, err := env.vault.IsRewardable(marketSupplier)
	require.NoError(t, err)
	require.True(t, rewardable)

	_, err = env.vault.ClaimReward(marketSupplier)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	record, found, err := env.manager.SupplierRecord(marketSupplier)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(1), record.AccrualStart, "failed payout burned the accrual window")

	rewardable, err = env.vault.IsRewardable(marketSupplier)
	require.NoError(t, err)
	require.True(t, rewardable)

	require.NoError(t, env.ledger.Mint(marketBase, marketTreasury, cfg.RewardAmount))
	paid, err := env.vault.ClaimReward(marketSupplier)
	require.NoError(t, err)
	require.Zero(t, paid.Cmp(cfg.RewardAmount))
}

package state

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/LendefiMarkets/lendefi-markets-polygon/native/lending"
	"github.com/LendefiMarkets/lendefi-markets-polygon/native/vault"
	"github.com/LendefiMarkets/lendefi-markets-polygon/storage"
)

var (
	holderA = common.HexToAddress("0x0000000000000000000000000000000000000011")
	holderB = common.HexToAddress("0x0000000000000000000000000000000000000022")
	assetX  = common.HexToAddress("0x0000000000000000000000000000000000000101")
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(storage.NewMemDB())
	require.NoError(t, err)
	return m
}

func TestVaultStateRoundTrip(t *testing.T) {
	m := newManager(t)

	fresh, err := m.VaultState()
	require.NoError(t, err)
	require.Zero(t, fresh.TotalBase.Sign(), "fresh market must start empty")

	fresh.TotalBase = big.NewInt(1_000_000)
	fresh.TotalBorrow = big.NewInt(400_000)
	fresh.TotalShares = big.NewInt(999_999)
	require.NoError(t, m.PutVaultState(fresh))

	loaded, err := m.VaultState()
	require.NoError(t, err)
	require.Zero(t, loaded.TotalBase.Cmp(big.NewInt(1_000_000)))
	require.Zero(t, loaded.TotalBorrow.Cmp(big.NewInt(400_000)))
	require.Zero(t, loaded.TotalShares.Cmp(big.NewInt(999_999)))
}

func TestPositionRoundTrip(t *testing.T) {
	m := newManager(t)

	_, found, err := m.Position(holderA, 0)
	require.NoError(t, err)
	require.False(t, found)

	pos := &lending.Position{
		Owner:               holderA,
		ID:                  7,
		Isolated:            true,
		IsolatedAsset:       assetX,
		Status:              lending.StatusActive,
		DebtAmount:          big.NewInt(123_456),
		LastInterestAccrual: 42,
		Vault:               lending.CollateralVaultAddress(holderA, 7),
		CollateralOrder:     []common.Address{assetX},
		Collateral:          map[common.Address]*big.Int{assetX: big.NewInt(999)},
	}
	require.NoError(t, m.PutPosition(pos))

	loaded, found, err := m.Position(holderA, 7)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, pos.Status, loaded.Status)
	require.Equal(t, pos.Vault, loaded.Vault)
	require.Zero(t, loaded.DebtAmount.Cmp(big.NewInt(123_456)))
	require.Zero(t, loaded.Collateral[assetX].Cmp(big.NewInt(999)))
}

func TestSupplierAndOrderingRecords(t *testing.T) {
	m := newManager(t)

	_, found, err := m.SupplierRecord(holderA)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, m.PutSupplierRecord(holderA, vault.SupplierRecord{
		BaseAmount:   big.NewInt(5_000),
		AccrualStart: 17,
	}))
	record, found, err := m.SupplierRecord(holderA)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(17), record.AccrualStart)

	require.NoError(t, m.SetLastActed(holderA, 99))
	height, acted, err := m.LastActed(holderA)
	require.NoError(t, err)
	require.True(t, acted)
	require.Equal(t, uint64(99), height)
}

func TestHeightSurvivesRestart(t *testing.T) {
	db := storage.NewMemDB()
	m, err := NewManager(db)
	require.NoError(t, err)
	require.NoError(t, m.SetHeight(12_345))

	reopened, err := NewManager(db)
	require.NoError(t, err)
	require.Equal(t, uint64(12_345), reopened.Height())
}

func TestStagedWritesCommitOrDiscardAtomically(t *testing.T) {
	db := storage.NewMemDB()
	m, err := NewManager(db)
	require.NoError(t, err)

	require.NoError(t, m.Stage())
	require.NoError(t, m.SetAssetTVL(assetX, big.NewInt(777)))

	// The open operation reads its own staged writes.
	tvl, err := m.AssetTVL(assetX)
	require.NoError(t, err)
	require.Zero(t, tvl.Cmp(big.NewInt(777)))

	// A second operation cannot open a set while one is active.
	require.ErrorIs(t, m.Stage(), ErrOperationInProgress)

	m.Discard()
	tvl, err = m.AssetTVL(assetX)
	require.NoError(t, err)
	require.Zero(t, tvl.Sign(), "discarded write must not surface")

	require.NoError(t, m.Stage())
	require.NoError(t, m.SetAssetTVL(assetX, big.NewInt(42)))
	require.NoError(t, m.Commit())

	reopened, err := NewManager(db)
	require.NoError(t, err)
	tvl, err = reopened.AssetTVL(assetX)
	require.NoError(t, err)
	require.Zero(t, tvl.Cmp(big.NewInt(42)), "committed write must persist")
}

func TestCommitAndDiscardWithoutStageAreNoOps(t *testing.T) {
	m := newManager(t)
	m.Discard()
	require.NoError(t, m.Commit())
	require.NoError(t, m.Stage())
	require.NoError(t, m.Commit())
}

func TestPauseFlags(t *testing.T) {
	m := newManager(t)
	require.False(t, m.IsPaused("vault"))
	require.NoError(t, m.SetPaused("vault", true))
	require.True(t, m.IsPaused("vault"))
	require.False(t, m.IsPaused("lending"))
	require.NoError(t, m.SetPaused("vault", false))
	require.False(t, m.IsPaused("vault"))
}

func TestTokenLedgerTransfers(t *testing.T) {
	m := newManager(t)
	ledger := NewTokenLedger(m)

	require.NoError(t, ledger.Mint(assetX, holderA, big.NewInt(1_000)))
	require.ErrorIs(t, ledger.Transfer(assetX, holderA, holderB, big.NewInt(1_001)), ErrInsufficientBalance)
	require.NoError(t, ledger.Transfer(assetX, holderA, holderB, big.NewInt(400)))

	balanceA, err := ledger.BalanceOf(assetX, holderA)
	require.NoError(t, err)
	require.Zero(t, balanceA.Cmp(big.NewInt(600)))
	balanceB, err := ledger.BalanceOf(assetX, holderB)
	require.NoError(t, err)
	require.Zero(t, balanceB.Cmp(big.NewInt(400)))
}

func TestBoundTokenView(t *testing.T) {
	m := newManager(t)
	ledger := NewTokenLedger(m)
	require.NoError(t, ledger.Mint(assetX, holderA, big.NewInt(100)))

	bound := ledger.Bind(assetX)
	require.NoError(t, bound.Transfer(holderA, holderB, big.NewInt(30)))
	balance, err := bound.BalanceOf(holderB)
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(big.NewInt(30)))
}

// Package state persists market accounting in a key-value store behind the
// typed boundaries the vault and position ledger consume. Records are JSON
// for debuggability; big integers survive the round trip at full precision.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"github.com/LendefiMarkets/lendefi-markets-polygon/native/lending"
	"github.com/LendefiMarkets/lendefi-markets-polygon/native/vault"
	"github.com/LendefiMarkets/lendefi-markets-polygon/storage"
)

// ErrOperationInProgress rejects an operation while another one's staged
// writes are still open.
var ErrOperationInProgress = errors.New("state: operation already in progress")

// Manager is the concrete persistence layer for one market. It implements
// vault.State and lending.State.
//
// Record writes funnel through a staged batch per operation: between Stage
// and Commit they land in an overlay visible to the operation's own reads,
// and hit the database as a single atomic batch on Commit. A failure anywhere
// in the operation discards the whole set, so no partial accounting survives.
type Manager struct {
	db     storage.Database
	height atomic.Uint64

	// opMu serializes staged operations; stageMu protects the write set.
	opMu    sync.Mutex
	stageMu sync.Mutex
	batch   storage.Batch
	overlay map[string][]byte
}

// NewManager wraps a database, restoring the persisted ordering height.
func NewManager(db storage.Database) (*Manager, error) {
	m := &Manager{db: db}
	raw, err := db.Get([]byte(keyHeight))
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
	case err != nil:
		return nil, fmt.Errorf("state: restore height: %w", err)
	default:
		var height uint64
		if err := json.Unmarshal(raw, &height); err != nil {
			return nil, fmt.Errorf("state: decode height: %w", err)
		}
		m.height.Store(height)
	}
	return m, nil
}

// Height returns the current ordering unit.
func (m *Manager) Height() uint64 { return m.height.Load() }

// SetHeight advances the ordering unit and persists it.
func (m *Manager) SetHeight(height uint64) error {
	m.height.Store(height)
	raw, err := json.Marshal(height)
	if err != nil {
		return err
	}
	return m.db.Put([]byte(keyHeight), raw)
}

// IsPaused satisfies the pause guard consulted by the vault and ledger.
func (m *Manager) IsPaused(module string) bool {
	ok, err := m.db.Has(pauseKey(module))
	return err == nil && ok
}

// SetPaused toggles a module pause flag.
func (m *Manager) SetPaused(module string, paused bool) error {
	if paused {
		return m.db.Put(pauseKey(module), []byte{1})
	}
	return m.db.Delete(pauseKey(module))
}

// Stage opens the write set for one operation. A second operation arriving
// while a set is open fails fast with ErrOperationInProgress rather than
// queueing behind writes it cannot see.
func (m *Manager) Stage() error {
	if !m.opMu.TryLock() {
		return ErrOperationInProgress
	}
	m.stageMu.Lock()
	m.batch = m.db.NewBatch()
	m.overlay = make(map[string][]byte)
	m.stageMu.Unlock()
	return nil
}

// Commit writes the staged set to the database in one batch. Without an open
// set it is a no-op.
func (m *Manager) Commit() error {
	m.stageMu.Lock()
	batch := m.batch
	m.batch = nil
	m.overlay = nil
	m.stageMu.Unlock()
	if batch == nil {
		return nil
	}
	err := batch.Write()
	m.opMu.Unlock()
	return err
}

// Discard drops the staged set without touching the database.
func (m *Manager) Discard() {
	m.stageMu.Lock()
	open := m.batch != nil
	m.batch = nil
	m.overlay = nil
	m.stageMu.Unlock()
	if open {
		m.opMu.Unlock()
	}
}

func (m *Manager) stagedValue(key []byte) ([]byte, bool) {
	m.stageMu.Lock()
	defer m.stageMu.Unlock()
	if m.overlay == nil {
		return nil, false
	}
	raw, ok := m.overlay[string(key)]
	return raw, ok
}

func (m *Manager) getJSON(key []byte, out any) (bool, error) {
	raw, staged := m.stagedValue(key)
	if !staged {
		var err error
		raw, err = m.db.Get(key)
		if errors.Is(err, storage.ErrKeyNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

func (m *Manager) putJSON(key []byte, in any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	m.stageMu.Lock()
	if m.batch != nil {
		m.batch.Put(key, raw)
		m.overlay[string(key)] = raw
		m.stageMu.Unlock()
		return nil
	}
	m.stageMu.Unlock()
	return m.db.Put(key, raw)
}

// VaultState loads the pooled totals, empty when the market is fresh.
func (m *Manager) VaultState() (*vault.VaultState, error) {
	var stored vault.VaultState
	if _, err := m.getJSON([]byte(prefixVaultState), &stored); err != nil {
		return nil, err
	}
	stored.Normalise()
	return &stored, nil
}

func (m *Manager) PutVaultState(state *vault.VaultState) error {
	return m.putJSON([]byte(prefixVaultState), state)
}

func (m *Manager) ShareBalance(addr common.Address) (*big.Int, error) {
	balance := new(big.Int)
	found, err := m.getJSON(vaultSharesKey(addr), balance)
	if err != nil {
		return nil, err
	}
	if !found {
		return big.NewInt(0), nil
	}
	return balance, nil
}

func (m *Manager) SetShareBalance(addr common.Address, balance *big.Int) error {
	return m.putJSON(vaultSharesKey(addr), balance)
}

func (m *Manager) SupplierRecord(addr common.Address) (vault.SupplierRecord, bool, error) {
	var record vault.SupplierRecord
	found, err := m.getJSON(vaultSupplierKey(addr), &record)
	return record, found, err
}

func (m *Manager) PutSupplierRecord(addr common.Address, record vault.SupplierRecord) error {
	return m.putJSON(vaultSupplierKey(addr), record)
}

func (m *Manager) LastActed(addr common.Address) (uint64, bool, error) {
	var height uint64
	found, err := m.getJSON(vaultActedKey(addr), &height)
	return height, found, err
}

func (m *Manager) SetLastActed(addr common.Address, height uint64) error {
	return m.putJSON(vaultActedKey(addr), height)
}

// Position loads one position, reporting absence without error.
func (m *Manager) Position(owner common.Address, id uint64) (*lending.Position, bool, error) {
	var pos lending.Position
	found, err := m.getJSON(positionKey(owner, id), &pos)
	if err != nil || !found {
		return nil, found, err
	}
	pos.Normalise()
	return &pos, true, nil
}

func (m *Manager) PutPosition(pos *lending.Position) error {
	return m.putJSON(positionKey(pos.Owner, pos.ID), pos)
}

func (m *Manager) PositionCount(owner common.Address) (uint64, error) {
	var count uint64
	if _, err := m.getJSON(positionCountKey(owner), &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (m *Manager) SetPositionCount(owner common.Address, count uint64) error {
	return m.putJSON(positionCountKey(owner), count)
}

func (m *Manager) AssetTVL(asset common.Address) (*big.Int, error) {
	tvl := new(big.Int)
	found, err := m.getJSON(assetTVLKey(asset), tvl)
	if err != nil {
		return nil, err
	}
	if !found {
		return big.NewInt(0), nil
	}
	return tvl, nil
}

func (m *Manager) SetAssetTVL(asset common.Address, amount *big.Int) error {
	return m.putJSON(assetTVLKey(asset), amount)
}

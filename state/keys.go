package state

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// Key layout. Every record lives under a short prefix so backups and
// debugging tools can scan one concern at a time.
const (
	prefixVaultState    = "vault/state"
	prefixVaultShares   = "vault/shares/"
	prefixVaultSupplier = "vault/supplier/"
	prefixVaultActed    = "vault/acted/"
	prefixPosition      = "lend/pos/"
	prefixPositionCount = "lend/cnt/"
	prefixAssetTVL      = "lend/tvl/"
	prefixTokenBalance  = "bal/"
	keyHeight           = "sys/height"
	prefixPause         = "sys/pause/"
)

func vaultSharesKey(addr common.Address) []byte {
	return []byte(prefixVaultShares + addr.Hex())
}

func vaultSupplierKey(addr common.Address) []byte {
	return []byte(prefixVaultSupplier + addr.Hex())
}

func vaultActedKey(addr common.Address) []byte {
	return []byte(prefixVaultActed + addr.Hex())
}

func positionKey(owner common.Address, id uint64) []byte {
	return []byte(prefixPosition + owner.Hex() + "/" + strconv.FormatUint(id, 10))
}

func positionCountKey(owner common.Address) []byte {
	return []byte(prefixPositionCount + owner.Hex())
}

func assetTVLKey(asset common.Address) []byte {
	return []byte(prefixAssetTVL + asset.Hex())
}

func tokenBalanceKey(asset, holder common.Address) []byte {
	return []byte(prefixTokenBalance + asset.Hex() + "/" + holder.Hex())
}

func pauseKey(module string) []byte {
	return []byte(prefixPause + module)
}

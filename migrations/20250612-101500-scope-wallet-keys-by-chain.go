package migrations

import (
	"fmt"
	"strings"

	"github.com/LumenWallet/lumen-core/model"
	"github.com/LumenWallet/lumen-core/storage"
)

// ScopeWalletKeysByChain rewrites legacy wallet records stored under
// "w:<address>" to the chain-scoped "w:<chainID>:<address>" layout. The chain
// comes from the record body, which always carried it. Without this, the same
// counterfactual address on two chains shared one deployment flag.
func ScopeWalletKeysByChain(db storage.Storage) (int, error) {
	items, err := db.GetByPrefix([]byte("w:"))
	if err != nil {
		return 0, fmt.Errorf("failed to scan wallet records: %w", err)
	}

	updates := make(map[string][]byte)
	var legacyKeys [][]byte
	for _, item := range items {
		key := string(item.Key)
		if strings.Count(key, ":") != 1 {
			// Already chain-scoped.
			continue
		}

		account := &model.SmartAccount{}
		if err := account.FromStorageData(item.Value); err != nil {
			return 0, fmt.Errorf("corrupt wallet record %s: %w", key, err)
		}
		if account.ChainID == nil {
			return 0, fmt.Errorf("wallet record %s has no chain id", key)
		}

		updates[account.StorageKey()] = item.Value
		legacyKeys = append(legacyKeys, item.Key)
	}

	if len(updates) == 0 {
		return 0, nil
	}

	if err := db.BatchWrite(updates); err != nil {
		return 0, fmt.Errorf("failed to write scoped wallet records: %w", err)
	}
	for _, key := range legacyKeys {
		if err := db.Delete(key); err != nil {
			return 0, fmt.Errorf("failed to delete legacy record %s: %w", string(key), err)
		}
	}

	return len(updates), nil
}

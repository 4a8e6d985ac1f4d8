// Package wallet keeps the durable wallet records: which smart accounts an
// owner has, and whether each is deployed on-chain. The registry is the only
// writer of deployment state; everything else observes it.
package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/LumenWallet/lumen-core/core/chainio/aa"
	"github.com/LumenWallet/lumen-core/metrics"
	"github.com/LumenWallet/lumen-core/model"
	"github.com/LumenWallet/lumen-core/pkg/erc4337/bundler"
	"github.com/LumenWallet/lumen-core/pkg/logger"
	"github.com/LumenWallet/lumen-core/storage"
)

// ReceiptStorageKey is the badger key for a stored receipt.
func ReceiptStorageKey(userOpHash common.Hash) string {
	return fmt.Sprintf("receipt:%s", userOpHash.Hex())
}

// Registry manages SmartAccount records. CreateWallet is idempotent per
// (chain, owner, salt); MarkDeployed and OnReceipt flip deployment state at
// most once per account.
type Registry struct {
	db      storage.Storage
	logger  logger.Logger
	metrics metrics.PipelineMetrics

	// mu serializes the read-modify-write of the deployment flip.
	mu sync.Mutex
}

func NewRegistry(db storage.Storage, m metrics.PipelineMetrics, log logger.Logger) *Registry {
	if m == nil {
		m = metrics.NoopMetrics{}
	}
	return &Registry{
		db:      db,
		logger:  logger.EnsureLogger(log),
		metrics: m,
	}
}

// CreateWallet derives the counterfactual address for (owner, salt) under the
// factory and persists the record. Re-creating an existing wallet returns the
// stored record untouched, deployment state included.
func (r *Registry) CreateWallet(
	owner common.Address,
	factory common.Address,
	salt *big.Int,
	chainID *big.Int,
) (*model.SmartAccount, error) {
	if chainID == nil {
		return nil, &aa.EncodingError{Field: "chainID", Reason: "nil"}
	}

	address, err := aa.ComputeCounterfactualAddress(factory, owner, salt)
	if err != nil {
		return nil, err
	}

	if existing, err := r.GetWallet(chainID, address); err == nil {
		return existing, nil
	}

	account := &model.SmartAccount{
		Owner:   owner,
		Address: address,
		Factory: factory,
		Salt:    new(big.Int).Set(salt),
		ChainID: new(big.Int).Set(chainID),
	}

	if err := r.save(account); err != nil {
		return nil, err
	}

	r.logger.Info("wallet registered",
		"owner", owner.Hex(),
		"address", address.Hex(),
		"salt", salt.String(),
		"chain", chainID.String())

	return account, nil
}

// GetWallet loads one wallet record.
func (r *Registry) GetWallet(chainID *big.Int, address common.Address) (*model.SmartAccount, error) {
	raw, err := r.db.GetKey([]byte(model.WalletStorageKey(chainID, address)))
	if err != nil {
		if storage.IsErrNotFound(err) {
			return nil, fmt.Errorf("wallet %s not found on chain %s", address.Hex(), chainID.String())
		}
		return nil, err
	}

	account := &model.SmartAccount{}
	if err := account.FromStorageData(raw); err != nil {
		return nil, fmt.Errorf("corrupt wallet record %s: %w", address.Hex(), err)
	}
	return account, nil
}

// ListWallets returns the owner's wallets on a chain. Hidden wallets are
// skipped unless includeHidden is set.
func (r *Registry) ListWallets(chainID *big.Int, owner common.Address, includeHidden bool) ([]*model.SmartAccount, error) {
	items, err := r.db.GetByPrefix([]byte(model.WalletByOwnerPrefix(chainID)))
	if err != nil {
		return nil, err
	}

	wallets := []*model.SmartAccount{}
	for _, item := range items {
		account := &model.SmartAccount{}
		if err := account.FromStorageData(item.Value); err != nil {
			r.logger.Error("skipping corrupt wallet record", "key", string(item.Key), "error", err)
			continue
		}
		if account.Owner != owner {
			continue
		}
		if account.IsHidden && !includeHidden {
			continue
		}
		wallets = append(wallets, account)
	}
	return wallets, nil
}

// SetHidden marks a wallet hidden or visible again. Hidden wallets stay fully
// functional; the flag only affects listings.
func (r *Registry) SetHidden(chainID *big.Int, address common.Address, hidden bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, err := r.GetWallet(chainID, address)
	if err != nil {
		return err
	}
	if account.IsHidden == hidden {
		return nil
	}
	account.IsHidden = hidden
	return r.save(account)
}

// MarkDeployed flips the account's deployment state. The flip happens at most
// once; later calls are no-ops. Returns whether this call performed the flip.
func (r *Registry) MarkDeployed(chainID *big.Int, address common.Address) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, err := r.GetWallet(chainID, address)
	if err != nil {
		return false, err
	}
	if account.IsDeployed {
		return false, nil
	}

	account.IsDeployed = true
	if err := r.save(account); err != nil {
		return false, err
	}

	r.metrics.IncWalletsDeployed()
	r.logger.Info("wallet deployed", "address", address.Hex(), "chain", chainID.String())
	return true, nil
}

// OnReceipt records the receipt and, for successful inclusions, flips the
// sender's deployment state. Receipts are the primary deployment authority;
// only a confirmed receipt flips the flag here.
func (r *Registry) OnReceipt(chainID *big.Int, receipt *bundler.Receipt) {
	if raw, err := receiptJSON(receipt); err == nil {
		if err := r.db.Set([]byte(ReceiptStorageKey(receipt.UserOpHash)), raw); err != nil {
			r.logger.Error("failed to store receipt", "userOpHash", receipt.UserOpHash.Hex(), "error", err)
		}
	}

	if !receipt.Success {
		return
	}

	if _, err := r.MarkDeployed(chainID, receipt.Sender); err != nil {
		// The sender may not be a registered wallet (e.g. an imported
		// account); nothing to track then.
		r.logger.Debug("no wallet record for confirmed sender",
			"sender", receipt.Sender.Hex(),
			"error", err)
	}
}

// ReconcileOnce checks every undeployed wallet on the chain against on-chain
// code and flips the ones that deployed behind our back (another device, or a
// receipt we missed). This is the secondary deployment check.
func (r *Registry) ReconcileOnce(ctx context.Context, reader aa.ChainReader, chainID *big.Int) error {
	items, err := r.db.GetByPrefix([]byte(model.WalletByOwnerPrefix(chainID)))
	if err != nil {
		return err
	}

	for _, item := range items {
		account := &model.SmartAccount{}
		if err := account.FromStorageData(item.Value); err != nil || account.IsDeployed {
			continue
		}

		deployed, err := aa.IsDeployed(ctx, reader, account.Address)
		if err != nil {
			r.logger.Warn("deployment reconcile check failed",
				"address", account.Address.Hex(),
				"error", err)
			continue
		}
		if deployed {
			if _, err := r.MarkDeployed(chainID, account.Address); err != nil {
				r.logger.Error("failed to flip reconciled wallet", "address", account.Address.Hex(), "error", err)
			}
		}
	}
	return nil
}

func receiptJSON(receipt *bundler.Receipt) ([]byte, error) {
	return json.Marshal(receipt)
}

func (r *Registry) save(account *model.SmartAccount) error {
	raw, err := account.ToJSON()
	if err != nil {
		return err
	}
	return r.db.Set([]byte(account.StorageKey()), raw)
}

package model

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SmartAccount identifies one smart wallet: the owner EOA that controls it and
// the deterministic account address derived from factory+owner+salt. The
// address is valid before deployment; IsDeployed is observed state and flips
// exactly once, on the first confirmed receipt for the account.
type SmartAccount struct {
	Owner   common.Address `json:"owner"`
	Address common.Address `json:"address"`
	Factory common.Address `json:"factory"`
	Salt    *big.Int       `json:"salt"`
	ChainID *big.Int       `json:"chain_id"`

	IsDeployed bool `json:"is_deployed"`
	IsHidden   bool `json:"is_hidden,omitempty"`
}

func (a *SmartAccount) ToJSON() ([]byte, error) {
	return json.Marshal(a)
}

func (a *SmartAccount) FromStorageData(body []byte) error {
	return json.Unmarshal(body, a)
}

// StorageKey is the badger key for this account record, scoped by chain so the
// same counterfactual address on two chains tracks deployment independently.
func (a *SmartAccount) StorageKey() string {
	return WalletStorageKey(a.ChainID, a.Address)
}

func WalletStorageKey(chainID *big.Int, address common.Address) string {
	return fmt.Sprintf("w:%s:%s", chainID.String(), address.Hex())
}

// WalletByOwnerPrefix lists every wallet record of an owner on a chain.
func WalletByOwnerPrefix(chainID *big.Int) string {
	return fmt.Sprintf("w:%s:", chainID.String())
}

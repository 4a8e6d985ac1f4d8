// Package testutil holds helpers shared by package tests: throwaway storage,
// a development logger and canned wallet fixtures. Nothing here talks to a
// live network.
package testutil

import (
	"math/big"
	"testing"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/ethereum/go-ethereum/common"

	"github.com/LumenWallet/lumen-core/core/config"
	"github.com/LumenWallet/lumen-core/model"
	"github.com/LumenWallet/lumen-core/storage"
)

var (
	TestOwner      = common.HexToAddress("0xc660Ec8C2f66558745dB69EA9E86d7e78b91B1d3")
	TestFactory    = common.HexToAddress("0x9406Cc6185a346906296840746125a0E44976454")
	TestEntrypoint = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	TestChainID    = big.NewInt(11155111)
)

func GetLogger() sdklogging.Logger {
	logger, err := sdklogging.NewZapLogger(sdklogging.Development)
	if err != nil {
		panic(err)
	}
	return logger
}

// GetStorage returns an in-memory badger store torn down with the test.
func GetStorage(t *testing.T) storage.Storage {
	t.Helper()
	db, err := storage.NewInMemory()
	if err != nil {
		t.Fatalf("failed to open in-memory storage: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// GetSmartWalletConfig is a plausible single-chain config for wiring tests.
// The URLs are placeholders; tests that need a live endpoint must fake it.
func GetSmartWalletConfig() *config.SmartWalletConfig {
	return &config.SmartWalletConfig{
		EntrypointAddress: TestEntrypoint,
		FactoryAddress:    TestFactory,
		EthRpcUrl:         "http://127.0.0.1:8545",
		BundlerURL:        "http://127.0.0.1:4337",
	}
}

// GetSmartAccount is an undeployed counterfactual account fixture.
func GetSmartAccount(salt int64) *model.SmartAccount {
	return &model.SmartAccount{
		Owner:   TestOwner,
		Address: common.BigToAddress(new(big.Int).Add(big.NewInt(0x5af1), big.NewInt(salt))),
		Factory: TestFactory,
		Salt:    big.NewInt(salt),
		ChainID: new(big.Int).Set(TestChainID),
	}
}

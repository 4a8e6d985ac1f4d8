// Package config loads the wallet node configuration from YAML and resolves
// it into wired values: parsed addresses, durations and a constructed logger.
package config

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	sdkutils "github.com/Layr-Labs/eigensdk-go/utils"

	"github.com/LumenWallet/lumen-core/core/chainio/aa"
)

// SmartWalletConfig is everything the transaction pipeline needs to talk to
// one chain: the contracts, the RPC endpoints and the bundler/paymaster
// services.
type SmartWalletConfig struct {
	EntrypointAddress common.Address
	FactoryAddress    common.Address

	EthRpcUrl    string
	EthWsUrl     string
	BundlerURL   string
	PaymasterURL string
}

// Config is the resolved runtime configuration.
type Config struct {
	Logger  sdklogging.Logger
	ChainID *big.Int

	SmartWallet *SmartWalletConfig

	DbPath            string
	OwnerPrivateKey   string
	ReceiptTimeout    time.Duration
	ReconcileInterval time.Duration
	FeeCacheTTL       time.Duration
}

// ConfigRaw is the YAML shape read from the config file.
type ConfigRaw struct {
	Environment sdklogging.LogLevel `yaml:"environment"`

	ChainID      int64  `yaml:"chain_id" validate:"required,gt=0"`
	EthRpcUrl    string `yaml:"eth_rpc_url" validate:"required,url"`
	EthWsUrl     string `yaml:"eth_ws_url" validate:"omitempty,url"`
	BundlerURL   string `yaml:"bundler_url" validate:"required,url"`
	PaymasterURL string `yaml:"paymaster_url" validate:"omitempty,url"`

	// Contract overrides; the canonical v0.6 deployments apply when empty.
	EntrypointAddress string `yaml:"entrypoint_address" validate:"omitempty,eth_addr"`
	FactoryAddress    string `yaml:"factory_address" validate:"omitempty,eth_addr"`

	DbPath string `yaml:"db_path"`

	// OwnerPrivateKey backs the CLI's local signing oracle. Hosts embedding
	// the library wire their own oracle and leave this empty.
	OwnerPrivateKey string `yaml:"owner_private_key"`

	ReceiptTimeoutSeconds    int `yaml:"receipt_timeout_seconds" validate:"omitempty,gt=0"`
	ReconcileIntervalSeconds int `yaml:"reconcile_interval_seconds" validate:"omitempty,gt=0"`
	FeeCacheTTLSeconds       int `yaml:"fee_cache_ttl_seconds" validate:"omitempty,gt=0"`
}

const (
	defaultReceiptTimeout    = 60 * time.Second
	defaultReconcileInterval = 2 * time.Minute
	defaultFeeCacheTTL       = 12 * time.Second
)

// NewConfig reads, validates and resolves the YAML file at configFilePath.
func NewConfig(configFilePath string) (*Config, error) {
	var raw ConfigRaw
	if err := sdkutils.ReadYamlConfig(configFilePath, &raw); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFilePath, err)
	}
	return resolve(&raw)
}

func resolve(raw *ConfigRaw) (*Config, error) {
	if err := validator.New().Struct(raw); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := sdklogging.NewZapLogger(normalizeLogLevel(raw.Environment))
	if err != nil {
		return nil, err
	}

	smartWallet := &SmartWalletConfig{
		EntrypointAddress: aa.EntrypointAddress,
		FactoryAddress:    aa.FactoryAddress(),
		EthRpcUrl:         raw.EthRpcUrl,
		EthWsUrl:          raw.EthWsUrl,
		BundlerURL:        raw.BundlerURL,
		PaymasterURL:      raw.PaymasterURL,
	}
	if raw.EntrypointAddress != "" {
		smartWallet.EntrypointAddress = common.HexToAddress(raw.EntrypointAddress)
	}
	if raw.FactoryAddress != "" {
		smartWallet.FactoryAddress = common.HexToAddress(raw.FactoryAddress)
	}

	config := &Config{
		Logger:            logger,
		ChainID:           big.NewInt(raw.ChainID),
		SmartWallet:       smartWallet,
		DbPath:            raw.DbPath,
		OwnerPrivateKey:   raw.OwnerPrivateKey,
		ReceiptTimeout:    defaultReceiptTimeout,
		ReconcileInterval: defaultReconcileInterval,
		FeeCacheTTL:       defaultFeeCacheTTL,
	}
	if raw.ReceiptTimeoutSeconds > 0 {
		config.ReceiptTimeout = time.Duration(raw.ReceiptTimeoutSeconds) * time.Second
	}
	if raw.ReconcileIntervalSeconds > 0 {
		config.ReconcileInterval = time.Duration(raw.ReconcileIntervalSeconds) * time.Second
	}
	if raw.FeeCacheTTLSeconds > 0 {
		config.FeeCacheTTL = time.Duration(raw.FeeCacheTTLSeconds) * time.Second
	}

	return config, nil
}

func normalizeLogLevel(level sdklogging.LogLevel) sdklogging.LogLevel {
	switch level {
	case sdklogging.Development, sdklogging.Production:
		return level
	}
	return sdklogging.Production
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNewConfigDefaults(t *testing.T) {
	path := writeConfigFile(t, `
environment: production
chain_id: 11155111
eth_rpc_url: https://rpc.sepolia.example
bundler_url: https://bundler.sepolia.example
`)

	c, err := NewConfig(path)
	require.NoError(t, err)

	assert.Equal(t, int64(11155111), c.ChainID.Int64())
	assert.Equal(t, common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"), c.SmartWallet.EntrypointAddress)
	assert.Equal(t, 60*time.Second, c.ReceiptTimeout)
	assert.Equal(t, 2*time.Minute, c.ReconcileInterval)
	assert.Equal(t, 12*time.Second, c.FeeCacheTTL)
	assert.NotNil(t, c.Logger)
	assert.Empty(t, c.SmartWallet.PaymasterURL)
}

func TestNewConfigOverrides(t *testing.T) {
	path := writeConfigFile(t, `
environment: development
chain_id: 8453
eth_rpc_url: https://rpc.base.example
eth_ws_url: wss://ws.base.example
bundler_url: https://bundler.base.example
paymaster_url: https://paymaster.base.example
entrypoint_address: "0x0000000071727De22E5E9d8BAf0edAc6f37da032"
factory_address: "0x000000000000000000000000000000000000dEaD"
receipt_timeout_seconds: 120
reconcile_interval_seconds: 30
fee_cache_ttl_seconds: 5
`)

	c, err := NewConfig(path)
	require.NoError(t, err)

	assert.Equal(t, common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032"), c.SmartWallet.EntrypointAddress)
	assert.Equal(t, common.HexToAddress("0x000000000000000000000000000000000000dEaD"), c.SmartWallet.FactoryAddress)
	assert.Equal(t, 120*time.Second, c.ReceiptTimeout)
	assert.Equal(t, 30*time.Second, c.ReconcileInterval)
	assert.Equal(t, 5*time.Second, c.FeeCacheTTL)
	assert.Equal(t, "wss://ws.base.example", c.SmartWallet.EthWsUrl)
}

func TestNewConfigRejectsMissingBundler(t *testing.T) {
	path := writeConfigFile(t, `
chain_id: 1
eth_rpc_url: https://rpc.example
`)

	_, err := NewConfig(path)
	assert.Error(t, err)
}

func TestNewConfigRejectsMalformedAddress(t *testing.T) {
	path := writeConfigFile(t, `
chain_id: 1
eth_rpc_url: https://rpc.example
bundler_url: https://bundler.example
entrypoint_address: "not-an-address"
`)

	_, err := NewConfig(path)
	assert.Error(t, err)
}

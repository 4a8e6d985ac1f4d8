package migrations

import (
	"github.com/LumenWallet/lumen-core/core/migrator"
)

// Migrations is the list of schema migrations, applied in order at startup.
// Names are timestamp-prefixed so the recorded keys sort lexicographically in
// application order.
var Migrations = []migrator.Migration{
	{
		Name:     "20250612-101500-scope-wallet-keys-by-chain",
		Function: ScopeWalletKeysByChain,
	},
}

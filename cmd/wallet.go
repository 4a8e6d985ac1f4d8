package cmd

import (
	"context"
	"fmt"
	"log"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/LumenWallet/lumen-core/core/chainio/aa"
	"github.com/LumenWallet/lumen-core/core/chainio/signer"
	appconfig "github.com/LumenWallet/lumen-core/core/config"
	"github.com/LumenWallet/lumen-core/core/migrator"
	"github.com/LumenWallet/lumen-core/core/wallet"
	"github.com/LumenWallet/lumen-core/migrations"
	"github.com/LumenWallet/lumen-core/storage"
)

var (
	walletSalt int64
	walletList bool

	walletCmd = &cobra.Command{
		Use:   "wallet",
		Short: "Derive and inspect smart wallet addresses",
		Long: `Derive the counterfactual smart wallet address for the configured owner
key and record it in the local registry. With --list, show every wallet
of the owner instead.`,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := appconfig.NewConfig(config)
			if err != nil {
				log.Fatalf("failed to load config: %v", err)
			}

			owner, err := signer.NewLocalSignerFromHex(cfg.OwnerPrivateKey)
			if err != nil {
				log.Fatalf("failed to load owner key: %v", err)
			}

			aa.SetEntrypointAddress(cfg.SmartWallet.EntrypointAddress)
			aa.SetFactoryAddress(cfg.SmartWallet.FactoryAddress)

			db, err := openStorage(cfg)
			if err != nil {
				log.Fatalf("failed to open storage: %v", err)
			}
			defer db.Close()

			registry := wallet.NewRegistry(db, nil, cfg.Logger)

			if walletList {
				wallets, err := registry.ListWallets(cfg.ChainID, owner.Address(), false)
				if err != nil {
					log.Fatalf("failed to list wallets: %v", err)
				}
				for _, w := range wallets {
					fmt.Printf("%s salt=%s deployed=%v\n", w.Address.Hex(), w.Salt.String(), w.IsDeployed)
				}
				return
			}

			account, err := registry.CreateWallet(owner.Address(), cfg.SmartWallet.FactoryAddress, big.NewInt(walletSalt), cfg.ChainID)
			if err != nil {
				log.Fatalf("failed to derive wallet: %v", err)
			}

			fmt.Printf("owner:    %s\n", account.Owner.Hex())
			fmt.Printf("wallet:   %s\n", account.Address.Hex())
			fmt.Printf("factory:  %s\n", account.Factory.Hex())
			fmt.Printf("salt:     %s\n", account.Salt.String())
			fmt.Printf("deployed: %v\n", account.IsDeployed)
		},
	}
)

// openStorage opens the registry database and brings its schema up to date.
func openStorage(cfg *appconfig.Config) (storage.Storage, error) {
	path := cfg.DbPath
	if path == "" {
		path = "/tmp/lumen"
	}
	db, err := storage.NewWithPath(path)
	if err != nil {
		return nil, err
	}

	m := migrator.NewMigrator(db, nil, migrations.Migrations, cfg.Logger)
	if err := m.Run(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func init() {
	walletCmd.Flags().Int64Var(&walletSalt, "salt", 0, "salt for wallet derivation")
	walletCmd.Flags().BoolVar(&walletList, "list", false, "list the owner's wallets instead of deriving one")
	rootCmd.AddCommand(walletCmd)
}

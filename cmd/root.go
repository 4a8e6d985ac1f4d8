package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var (
	config  = "./config/wallet.yaml"
	rootCmd = &cobra.Command{
		Use:   "lumen",
		Short: "Lumen smart wallet CLI",
		Long: `Lumen CLI to manage ERC-4337 smart wallets and submit user operations.

Such as "lumen wallet" to derive a wallet address or "lumen send" to
build, sign and submit an operation through the configured bundler.
`,
	}
)

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&config, "config", "c", "./config/wallet.yaml", "Path to config file")
}

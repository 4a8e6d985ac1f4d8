package cmd

import (
	"context"
	"fmt"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"

	"github.com/LumenWallet/lumen-core/core/chainio/aa"
	"github.com/LumenWallet/lumen-core/core/chainio/signer"
	appconfig "github.com/LumenWallet/lumen-core/core/config"
	"github.com/LumenWallet/lumen-core/core/wallet"
	"github.com/LumenWallet/lumen-core/model"
	"github.com/LumenWallet/lumen-core/pkg/eip1559"
	"github.com/LumenWallet/lumen-core/pkg/erc4337/bundler"
	"github.com/LumenWallet/lumen-core/pkg/erc4337/paymaster"
	"github.com/LumenWallet/lumen-core/pkg/erc4337/preset"
)

var (
	sendTo    string
	sendValue string
	sendData  string
	sendSalt  int64
	sendMode  string
	sendToken string

	sendCmd = &cobra.Command{
		Use:   "send",
		Short: "Build, sign and submit a user operation",
		Long: `Build a user operation for the configured owner's smart wallet, sign it
with the local key and submit it through the bundler, then wait for the
receipt. The wallet is deployed automatically on its first operation.`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := runSend(); err != nil {
				log.Fatalf("send failed: %v", err)
			}
		},
	}
)

func runSend() error {
	cfg, err := appconfig.NewConfig(config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if !common.IsHexAddress(sendTo) {
		return fmt.Errorf("invalid --to address: %s", sendTo)
	}
	value, ok := new(big.Int).SetString(sendValue, 10)
	if !ok {
		return fmt.Errorf("invalid --value: %s", sendValue)
	}
	var calldata []byte
	if sendData != "" {
		if calldata, err = hexutil.Decode(sendData); err != nil {
			return fmt.Errorf("invalid --data: %w", err)
		}
	}

	mode := paymaster.Mode(sendMode)
	var feeToken *common.Address
	if mode == paymaster.ModeERC20 {
		if !common.IsHexAddress(sendToken) {
			return fmt.Errorf("--mode erc20 requires a valid --token address")
		}
		token := common.HexToAddress(sendToken)
		feeToken = &token
	}

	owner, err := signer.NewLocalSignerFromHex(cfg.OwnerPrivateKey)
	if err != nil {
		return fmt.Errorf("failed to load owner key: %w", err)
	}

	aa.SetEntrypointAddress(cfg.SmartWallet.EntrypointAddress)
	aa.SetFactoryAddress(cfg.SmartWallet.FactoryAddress)

	client, err := ethclient.Dial(cfg.SmartWallet.EthRpcUrl)
	if err != nil {
		return fmt.Errorf("failed to connect to rpc: %w", err)
	}
	defer client.Close()

	bundlerClient, err := bundler.NewBundlerClient(cfg.SmartWallet.BundlerURL)
	if err != nil {
		return fmt.Errorf("failed to connect to bundler: %w", err)
	}
	defer bundlerClient.Close()

	var sponsor preset.SponsorshipService
	if cfg.SmartWallet.PaymasterURL != "" {
		sponsor = paymaster.NewClient(cfg.SmartWallet.PaymasterURL, cfg.Logger)
	}

	fees, err := eip1559.NewCachedOracle(client, cfg.ChainID, cfg.FeeCacheTTL)
	if err != nil {
		return fmt.Errorf("failed to create fee oracle: %w", err)
	}

	db, err := openStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer db.Close()

	registry := wallet.NewRegistry(db, nil, cfg.Logger)
	account, err := registry.CreateWallet(owner.Address(), cfg.SmartWallet.FactoryAddress, big.NewInt(sendSalt), cfg.ChainID)
	if err != nil {
		return fmt.Errorf("failed to load wallet: %w", err)
	}

	builder := preset.NewBuilder(client, bundlerClient, sponsor, fees, cfg.SmartWallet.EntrypointAddress, cfg.Logger)
	pipeline := preset.NewPipeline(builder, owner, nil, cfg.Logger)
	pipeline.SetReceiptTimeout(cfg.ReceiptTimeout)
	pipeline.OnReceipt(func(receipt *bundler.Receipt) {
		registry.OnReceipt(cfg.ChainID, receipt)
	})

	calls := []model.Call{model.NewCall(common.HexToAddress(sendTo), value, calldata)}
	events := pipeline.BuildAndSubmit(context.Background(), account, calls, mode, feeToken)

	for event := range events {
		switch event.Kind {
		case preset.EventSubmitted:
			fmt.Printf("%s userOpHash=%s\n", event.Kind, event.UserOpHash.Hex())
		case preset.EventConfirmed:
			fmt.Printf("%s userOpHash=%s\n", event.Kind, event.Receipt.UserOpHash.Hex())
			if event.Receipt.ActualGasUsed != nil {
				fmt.Printf("gas used: %s\n", event.Receipt.ActualGasUsed.ToInt().String())
			}
			if event.Receipt.TxReceipt != nil {
				fmt.Printf("included in tx %s\n", event.Receipt.TxReceipt.TransactionHash.Hex())
			}
		case preset.EventReverted:
			return fmt.Errorf("operation reverted: %s", event.Reason)
		case preset.EventPending:
			return fmt.Errorf("no receipt within %s; re-check userOpHash %s later", cfg.ReceiptTimeout, event.UserOpHash.Hex())
		case preset.EventFailed:
			return event.Err
		default:
			fmt.Println(event.Kind)
		}
	}
	return nil
}

func init() {
	sendCmd.Flags().StringVar(&sendTo, "to", "", "target contract or recipient address")
	sendCmd.Flags().StringVar(&sendValue, "value", "0", "native value in wei")
	sendCmd.Flags().StringVar(&sendData, "data", "", "hex calldata, 0x-prefixed")
	sendCmd.Flags().Int64Var(&sendSalt, "salt", 0, "salt of the sending wallet")
	sendCmd.Flags().StringVar(&sendMode, "mode", "none", "gas payment mode: none, sponsored or erc20")
	sendCmd.Flags().StringVar(&sendToken, "token", "", "fee token address for --mode erc20")
	_ = sendCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(sendCmd)
}

package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/LumenWallet/lumen-core/core/backup"
	appconfig "github.com/LumenWallet/lumen-core/core/config"
)

var (
	backupDir string

	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the wallet registry database",
		Long: `Write a full snapshot of the local wallet registry, including stored
receipts, to a timestamped file under --dir.`,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := appconfig.NewConfig(config)
			if err != nil {
				log.Fatalf("failed to load config: %v", err)
			}

			db, err := openStorage(cfg)
			if err != nil {
				log.Fatalf("failed to open storage: %v", err)
			}
			defer db.Close()

			service := backup.NewService(cfg.Logger, db, backupDir)
			file, err := service.PerformBackup(context.Background())
			if err != nil {
				log.Fatalf("backup failed: %v", err)
			}
			fmt.Printf("backup written to %s\n", file)
		},
	}
)

func init() {
	backupCmd.Flags().StringVar(&backupDir, "dir", "./backups", "directory to write snapshots into")
	rootCmd.AddCommand(backupCmd)
}

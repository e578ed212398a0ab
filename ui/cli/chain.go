// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/paxdriver/KriSYS/internal/custody"
	"github.com/paxdriver/KriSYS/internal/db"
	"github.com/paxdriver/KriSYS/internal/ledger"
	"github.com/paxdriver/KriSYS/internal/model"
)

func newChainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Inspect, verify and export the ledger",
	}
	cmd.AddCommand(newChainVerifyCmd(), newChainExportCmd())
	return cmd
}

// loadChain reads the chain from a bundle file, or from the configured
// database when file is empty.
func loadChain(cmd *cobra.Command, file string) ([]model.Block, error) {
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		return ledger.ReadBundle(f)
	}
	store, err := db.NewStoreFromDSN(appConfig.Database.Type, appConfig.Database.Dsn)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()
	return store.LoadChain(cmd.Context())
}

func newChainVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify hashes, links and block signatures",
		Long: `Verifies the stored chain, or a bundle given with --file. Signatures are
checked against --key when set, otherwise against the key recorded in the
genesis block.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			keyFile, _ := cmd.Flags().GetString("key")
			chain, err := loadChain(cmd, file)
			if err != nil {
				return err
			}
			var pub string
			if keyFile != "" {
				raw, err := os.ReadFile(keyFile)
				if err != nil {
					return fmt.Errorf("read public key: %w", err)
				}
				pub = strings.TrimSpace(string(raw))
			}
			if err := custody.VerifyChain(chain, pub); err != nil {
				return err
			}
			tip := chain[len(chain)-1]
			fmt.Fprintf(cmd.OutOrStdout(), "chain ok: %d blocks, tip %s\n", len(chain), tip)
			return nil
		},
	}
	applyDatabaseFlags(cmd)
	cmd.Flags().String("file", "", "Verify a chain bundle instead of the database")
	cmd.Flags().String("key", "", "Armored master public key to verify signatures against")
	return cmd
}

func newChainExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Write the stored chain as a compressed bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := loadChain(cmd, "")
			if err != nil {
				return err
			}
			f, err := os.OpenFile(args[0], os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return err
			}
			if err := ledger.WriteBundle(f, chain); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d blocks to %s\n", len(chain), args[0])
			return nil
		},
	}
	applyDatabaseFlags(cmd)
	return cmd
}

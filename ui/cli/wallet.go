// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/paxdriver/KriSYS/internal/custody"
	"github.com/paxdriver/KriSYS/internal/db"
	"github.com/paxdriver/KriSYS/internal/ledger"
	"github.com/paxdriver/KriSYS/internal/logging"
	"github.com/paxdriver/KriSYS/internal/security"
	"github.com/paxdriver/KriSYS/internal/wallet"
)

// walletEnv is the offline wallet tooling: the same store and master key
// the central node uses, without the HTTP surface.
type walletEnv struct {
	store   *db.BunStore
	manager *wallet.Manager
}

func openWallets() (*walletEnv, error) {
	store, err := db.NewStoreFromDSN(appConfig.Database.Type, appConfig.Database.Dsn)
	if err != nil {
		return nil, err
	}
	master := custody.NewMasterKey(appConfig.Keys.Dir, logging.L)
	if _, err := master.Ensure(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("master key: %w", err)
	}
	escrow, err := custody.NewEscrow(master, nil, logging.L)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &walletEnv{store: store, manager: wallet.NewManager(store, escrow, logging.L)}, nil
}

func (e *walletEnv) Close() error { return e.store.Close() }

// crisisID is taken from the genesis block, or the active policy before the
// chain exists.
func (e *walletEnv) crisisID(ctx context.Context) (string, error) {
	chain, err := e.store.LoadChain(ctx)
	if err != nil {
		return "", err
	}
	if len(chain) > 0 {
		if meta, err := ledger.ParseGenesis(chain[0]); err == nil {
			return meta.CrisisID, nil
		}
	}
	p, err := loadPolicies()
	if err != nil {
		return "", err
	}
	return p.ActiveID(), nil
}

// readPassphrase prompts on a terminal without echo; otherwise it reads one
// line from the command input.
func readPassphrase(cmd *cobra.Command, prompt string, confirm bool) ([]byte, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		pass, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return nil, err
		}
		if confirm {
			fmt.Fprint(cmd.ErrOrStderr(), "Repeat passphrase: ")
			again, err := term.ReadPassword(int(f.Fd()))
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return nil, err
			}
			match := string(again) == string(pass)
			security.ZeroBytes(again)
			if !match {
				security.ZeroBytes(pass)
				return nil, errors.New("passphrases do not match")
			}
		}
		return pass, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

func newWalletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage family wallets",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a wallet and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			members, _ := cmd.Flags().GetInt("members")
			names, _ := cmd.Flags().GetStringSlice("names")
			if len(names) == 0 {
				names = wallet.DefaultNames(members)
			}
			env, err := openWallets()
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()
			crisis, err := env.crisisID(cmd.Context())
			if err != nil {
				return err
			}
			pass, err := readPassphrase(cmd, "Wallet passphrase: ", true)
			if err != nil {
				return err
			}
			defer security.ZeroBytes(pass)
			w, err := env.manager.Create(cmd.Context(), crisis, names, pass)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(w)
		},
	}
	create.Flags().Int("members", 1, "Number of members (1-20)")
	create.Flags().StringSlice("names", nil, "Member names; overrides --members")

	unlock := &cobra.Command{
		Use:   "unlock <family-id>",
		Short: "Print the wallet private key for client-side decryption",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openWallets()
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()
			pass, err := readPassphrase(cmd, "Wallet passphrase: ", false)
			if err != nil {
				return err
			}
			key, err := env.manager.Unlock(cmd.Context(), args[0], pass)
			security.ZeroBytes(pass)
			if err != nil {
				return err
			}
			defer key.Zero()
			return key.Use(func(b []byte) error {
				_, err := cmd.OutOrStdout().Write(b)
				return err
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <family-id>",
		Short: "Delete a wallet and its escrow record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openWallets()
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()
			if err := env.manager.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted wallet %s\n", args[0])
			return nil
		},
	}

	for _, c := range []*cobra.Command{create, unlock, del} {
		applyDatabaseFlags(c)
		c.Flags().String("keys.dir", "./keys", "Directory holding the master key pair")
	}
	create.Flags().String("policy.file", "", "Policy file used for the crisis id before genesis exists")
	create.Flags().String("policy.active", "", "Policy id used for the crisis id before genesis exists")
	cmd.AddCommand(create, unlock, del)
	return cmd
}

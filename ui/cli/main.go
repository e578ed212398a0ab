// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the root command, configuration loading, version
// reporting and database maintenance.

package cli

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/paxdriver/KriSYS/buildvars"
	"github.com/paxdriver/KriSYS/internal/config"
	"github.com/paxdriver/KriSYS/internal/db"
	"github.com/paxdriver/KriSYS/internal/logging"
)

var version = "dev"   // this will be set by the linker
var gitCommit = "dev" // set at build time with the short commit SHA
var buildDate = ""    // set at build time (RFC3339)

var verbose bool
var showVersionFlag bool

var appConfig config.Config

// setupConfig loads configuration for cmd. On first run a default config
// file is written to the user config path.
func setupConfig(cmd *cobra.Command, args []string) error {
	configPath, err := getConfigPathFromCli(cmd)
	if err != nil {
		return err
	}

	appConfig, err = config.LoadConfig[config.Config](cmd, config.Defaults(), configPath)
	if errors.As(err, &viper.ConfigFileNotFoundError{}) {
		// The app can run on defaults; a failed write is only worth a warning.
		if writeErr := config.WriteConfigFile(&appConfig, false); writeErr != nil {
			log.Warnf("could not write default config file: %v", writeErr)
		} else {
			log.Debug("wrote default config to user config path")
		}
	} else if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if err := logging.SetLevel(appConfig.Log.Level); err != nil {
		return err
	}
	if verbose {
		logging.L.SetLevel(log.DebugLevel)
		db.SetDebug(true)
	}
	return nil
}

// Execute runs the CLI entrypoint.
func Execute() error {
	return NewRootCmd().Execute()
}

func applyDatabaseFlags(cmd *cobra.Command) {
	// NewRootCmd may be called repeatedly in tests with package-level
	// subcommands; pflag panics on duplicate definitions.
	if cmd.Flags().Lookup("database.type") == nil {
		cmd.Flags().String("database.type", "sqlite", "Database type (sqlite, postgres, mysql)")
	}
	if cmd.Flags().Lookup("database.dsn") == nil {
		cmd.Flags().String("database.dsn", "./krisys.db", "Database connection string (DSN)")
	}
}

func applyCentralFlags(cmd *cobra.Command) {
	applyDatabaseFlags(cmd)
	if cmd.Flags().Lookup("keys.dir") == nil {
		cmd.Flags().String("keys.dir", "./keys", "Directory holding the master key pair")
	}
	if cmd.Flags().Lookup("admin.token_file") == nil {
		cmd.Flags().String("admin.token_file", "./keys/admin_token.txt", "Admin token file")
	}
	if cmd.Flags().Lookup("policy.file") == nil {
		cmd.Flags().String("policy.file", "", "YAML or JSON policy file (built-in hurricane policy when empty)")
	}
	if cmd.Flags().Lookup("policy.active") == nil {
		cmd.Flags().String("policy.active", "", "Policy id to activate at startup")
	}
}

func getConfigPathFromCli(cmd *cobra.Command) (*string, error) {
	if !cmd.Flags().Changed("config") {
		return nil, nil
	}
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("could not read --config flag: %w", err)
	}
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file specified via --config flag not found or is not accessible: %w", err)
	}
	return &path, nil
}

// NewRootCmd creates the root command with every subcommand attached. Tests
// call it for a fresh command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "krisys",
		Short: "KriSYS is a crisis communication ledger.",
		Long: `KriSYS records check-ins, alerts and private messages for people
affected by a disaster in a signed, append-only ledger. A central node
admits and mines transactions under the active crisis policy; relay
stations collect traffic from offline devices and forward it when they
can reach the central node.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if showVersionFlag {
				fmt.Fprintln(cmd.OutOrStdout(), compositeVersion())
				os.Exit(0)
			}
			return setupConfig(cmd, args)
		},
	}
	cmd.Version = compositeVersion()

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging, including database logs")
	cmd.PersistentFlags().BoolVarP(&showVersionFlag, "version", "V", false, "Print version and exit")
	cmd.PersistentFlags().String("config", "", "config file")
	cmd.PersistentFlags().String("log.level", "info", "Log level (debug, info, warn, error)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		// Skip config loading for version.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			v, c, d := resolveBuildVersion(nil)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "version: %s\n", v)
			fmt.Fprintf(out, "commit: %s\n", c)
			if d != "" {
				fmt.Fprintf(out, "built: %s\n", d)
			}
		},
	}

	cmd.AddCommand(
		newServeCmd(),
		newStationCmd(),
		newChainCmd(),
		newPolicyCmd(),
		newWalletCmd(),
		newDBMaintainCmd(),
		newDebugCmd(),
		versionCmd,
	)
	return cmd
}

func compositeVersion() string {
	v, c, d := resolveBuildVersion(nil)
	out := v
	if c != "" && c != "dev" {
		out += " (" + c + ")"
	}
	if d != "" {
		out += " built: " + d
	}
	return out
}

// resolveBuildVersion computes the best-available version, commit and build
// date for the running binary. If info is nil, it reads build info from the
// runtime.
func resolveBuildVersion(info *debug.BuildInfo) (versionOut, commitOut, dateOut string) {
	resolvedVersion := buildvars.VersionOrDefault(version)
	resolvedCommit := gitCommit
	resolvedDate := buildDate

	ok := info != nil
	if info == nil {
		info, ok = debug.ReadBuildInfo()
	}

	if ok && info != nil {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			resolvedVersion = info.Main.Version
		}
		// Some build paths only record our version as a dependency.
		if (resolvedVersion == "dev" || resolvedVersion == "(devel)") && info.Deps != nil {
			for _, dep := range info.Deps {
				if dep.Path == "github.com/paxdriver/KriSYS" && dep.Version != "" {
					resolvedVersion = dep.Version
					break
				}
			}
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if s.Value != "" {
					resolvedCommit = s.Value
				}
			case "vcs.time":
				if s.Value != "" {
					resolvedDate = s.Value
				}
			}
		}
	}

	if resolvedVersion == "dev" && gitCommit != "dev" && gitCommit != "" {
		resolvedVersion = gitCommit
	}
	return resolvedVersion, resolvedCommit, resolvedDate
}

func newDBMaintainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db-maintain",
		Short: "Run database maintenance (VACUUM/OPTIMIZE) for the configured DB",
		Long:  `Runs engine-specific maintenance tasks (VACUUM, OPTIMIZE TABLE, PRAGMA optimize).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			timeoutSec, _ := cmd.Flags().GetInt("timeout")
			done := make(chan error, 1)
			go func() { done <- db.RunDBMaintenance(appConfig.Database.Type, appConfig.Database.Dsn) }()

			var timeout <-chan time.Time
			if timeoutSec > 0 {
				timeout = time.After(time.Duration(timeoutSec) * time.Second)
			}
			select {
			case err := <-done:
				if err != nil {
					return fmt.Errorf("maintenance failed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Maintenance completed successfully")
				return nil
			case <-timeout:
				return errors.New("maintenance timed out")
			}
		},
	}
	applyDatabaseFlags(cmd)
	cmd.Flags().Int("timeout", 0, "Timeout in seconds for maintenance (0 means no timeout)")
	return cmd
}

// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/paxdriver/KriSYS/internal/config"
)

const redacted = "[REDACTED]"

func newDebugCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "debug",
		Short: "Dump the effective configuration, flags and KRISYS_* environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "--- KRISYS DEBUG ---")
			if p, err := config.GetConfigPath(false); err == nil {
				fmt.Fprintf(out, "User config path: %s\n", p)
			}

			cfg := appConfig
			if cfg.Station.AdminToken != "" {
				cfg.Station.AdminToken = redacted
			}
			b, err := yaml.Marshal(&cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			fmt.Fprintln(out, "-- effective config --")
			fmt.Fprint(out, string(b))

			fmt.Fprintln(out, "-- flags --")
			cmd.Flags().VisitAll(func(f *pflag.Flag) {
				fmt.Fprintf(out, "%s = %s\n", f.Name, f.Value.String())
			})

			fmt.Fprintln(out, "-- environment (KRISYS_*) --")
			for _, e := range os.Environ() {
				if !strings.HasPrefix(e, "KRISYS_") {
					continue
				}
				if k, _, ok := strings.Cut(e, "="); ok && strings.Contains(k, "TOKEN") {
					e = k + "=" + redacted
				}
				fmt.Fprintln(out, e)
			}
			fmt.Fprintln(out, "--- END DEBUG ---")
			return nil
		},
	}
}

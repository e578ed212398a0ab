// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/paxdriver/KriSYS/internal/logging"
	"github.com/paxdriver/KriSYS/internal/policy"
)

// loadPolicies builds the engine the central node would start with.
func loadPolicies() (*policy.Engine, error) {
	e := policy.NewEngine(logging.L)
	if _, err := policy.Bootstrap(e, appConfig.Policy.File); err != nil {
		return nil, err
	}
	if appConfig.Policy.Active != "" {
		if err := e.Activate(appConfig.Policy.Active); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func newPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Show crisis policies",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List known policies; the active one is marked with *",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadPolicies()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "\tID\tNAME\tINTERVAL\tRATE\tTYPES")
			active := e.ActiveID()
			for _, p := range e.List() {
				mark := ""
				if p.ID == active {
					mark = "*"
				}
				s := p.Settings
				fmt.Fprintf(tw, "%s\t%s\t%s\t%ds\t%ds\t%s\n", mark, p.ID, p.Name, s.BlockInterval, s.RateLimit, strings.Join(s.Types, ","))
			}
			return tw.Flush()
		},
	}

	show := &cobra.Command{
		Use:   "show [id]",
		Short: "Print a policy as YAML (the active policy when no id is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadPolicies()
			if err != nil {
				return err
			}
			p := e.Active()
			if len(args) == 1 {
				var ok bool
				if p, ok = e.Lookup(args[0]); !ok {
					return fmt.Errorf("%w: %s", policy.ErrUnknownPolicy, args[0])
				}
			}
			out, err := yaml.Marshal(p)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	for _, c := range []*cobra.Command{list, show} {
		c.Flags().String("policy.file", "", "YAML or JSON policy file")
		c.Flags().String("policy.active", "", "Policy id to treat as active")
	}
	cmd.AddCommand(list, show)
	return cmd
}

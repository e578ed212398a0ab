// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/paxdriver/KriSYS/internal/logging"
	"github.com/paxdriver/KriSYS/internal/node"
)

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the central ledger node",
		Long: `Opens the database and master key, creates the genesis block on first
start, and serves the HTTP API while mining on the active policy's block
interval.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			c, err := node.OpenCentral(ctx, appConfig, logging.L)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			if c.IntegrityErr != nil {
				logging.L.Error("serving a chain that failed validation", "err", c.IntegrityErr)
			}
			return c.Run(ctx)
		},
	}
	applyCentralFlags(cmd)
	cmd.Flags().String("http.addr", ":5000", "HTTP listen address")
	cmd.Flags().Bool("kafka.enabled", false, "Publish committed blocks to Kafka")
	cmd.Flags().StringSlice("kafka.brokers", []string{"localhost:9092"}, "Kafka brokers")
	cmd.Flags().String("kafka.topic", "krisys.blocks", "Kafka topic for committed blocks")
	return cmd
}

func newStationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "station",
		Short: "Run a relay station",
		Long: `Serves the mesh sync endpoint for offline devices and forwards queued
transactions to the central ledger on demand.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return node.OpenStation(appConfig, logging.L).Run(ctx)
		},
	}
	cmd.Flags().String("station.id", "", "Station id (generated when empty)")
	cmd.Flags().String("station.central_url", "http://localhost:5000", "Central ledger base URL")
	cmd.Flags().String("station.admin_token", "", "Encoded admin token sent with forwarded transactions")
	cmd.Flags().Duration("station.forward_timeout", 5*time.Second, "Per-transaction forward timeout")
	cmd.Flags().String("station.listen", ":5001", "Station listen address")
	return cmd
}

// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package client

import (
	"context"

	"github.com/paxdriver/KriSYS/internal/model"
	"github.com/paxdriver/KriSYS/internal/security"
)

// Client is the central ledger API.
type Client interface {
	// --- Lifecycle ---

	// Close releases idle connections.
	Close(ctx context.Context) error

	// Target returns the base URL of the ledger.
	Target() string

	// --- Ledger ---

	Crisis(ctx context.Context) (CrisisInfo, error)

	// SubmitTransaction posts s and returns the transaction id. The rate
	// override is only honored when the client carries an admin token.
	SubmitTransaction(ctx context.Context, s Submission, rateOverride bool) (string, error)

	CheckIn(ctx context.Context, address, stationID string) (string, error)

	Blockchain(ctx context.Context) ([]model.Block, error)

	AddressTransactions(ctx context.Context, address string) ([]model.Transaction, error)

	// --- Wallets ---

	CreateWallet(ctx context.Context, members int, passphrase string) (model.Wallet, error)

	GetWallet(ctx context.Context, familyID string) (model.Wallet, error)

	WalletTransactions(ctx context.Context, familyID string) ([]model.Transaction, error)

	WalletPublicKey(ctx context.Context, familyID string) (string, error)

	// Unlock returns the exported private key of the wallet.
	Unlock(ctx context.Context, familyID, passphrase string) (security.Secret, error)

	// --- Admin ---

	Mine(ctx context.Context) (MineResult, error)

	Alert(ctx context.Context, message string, priority int) (string, error)

	SetPolicy(ctx context.Context, policyID string) error
}

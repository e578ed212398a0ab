// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"

	"github.com/paxdriver/KriSYS/internal/model"
)

// Store defines the persistence contract of the ledger.
type Store interface {
	// SaveBlock writes the block row and all of its transaction rows in one
	// database transaction. Either everything is stored or nothing is.
	SaveBlock(ctx context.Context, b model.Block) error
	// LoadChain returns every stored block ordered by index, with its
	// transactions in their original order.
	LoadChain(ctx context.Context) ([]model.Block, error)

	// CreateWallet stores a wallet and its escrow record together.
	CreateWallet(ctx context.Context, w model.Wallet, rec model.EscrowRecord) error
	GetWallet(ctx context.Context, familyID string) (*model.Wallet, error)
	// UpdateWallet replaces the member and device lists of an existing wallet.
	UpdateWallet(ctx context.Context, w model.Wallet) error
	// DeleteWallet removes a wallet and its escrow record together.
	DeleteWallet(ctx context.Context, familyID string) error
	GetEscrow(ctx context.Context, familyID string) (*model.EscrowRecord, error)
	GetPublicKey(ctx context.Context, familyID string) (string, error)

	Close() error
}

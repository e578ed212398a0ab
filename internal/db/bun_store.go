// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/paxdriver/KriSYS/internal/model"
)

// BunStore implements Store for every supported dialect. Queries are
// dialect-neutral bun builders; the dialect is chosen in createBunDB.
type BunStore struct {
	bun    *bun.DB
	dbType string
}

var _ Store = (*BunStore)(nil)

// DB exposes the underlying bun handle.
func (s *BunStore) DB() *bun.DB { return s.bun }

// Type returns the configured database type.
func (s *BunStore) Type() string { return s.dbType }

// Close closes the database handle.
func (s *BunStore) Close() error { return s.bun.Close() }

// SaveBlock inserts the block and its transactions atomically.
func (s *BunStore) SaveBlock(ctx context.Context, b model.Block) error {
	tx, err := s.bun.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	bm := blockToModel(b)
	if _, err := tx.NewInsert().Model(&bm).Exec(ctx); err != nil {
		return fmt.Errorf("insert block %d: %w", b.Index, MapDBError(err))
	}
	// Read the id back instead of relying on RETURNING, which MySQL lacks.
	var blockID int64
	if err := tx.NewSelect().Model((*BlockModel)(nil)).Column("id").Where("block_index = ?", b.Index).Scan(ctx, &blockID); err != nil {
		return fmt.Errorf("read id of block %d: %w", b.Index, err)
	}

	if len(b.Transactions) > 0 {
		rows := make([]TransactionModel, 0, len(b.Transactions))
		for _, t := range b.Transactions {
			tm, err := transactionToModel(blockID, t)
			if err != nil {
				return err
			}
			rows = append(rows, tm)
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert transactions of block %d: %w", b.Index, MapDBError(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit block %d: %w", b.Index, err)
	}
	dbLogf("db: stored block %d with %d transactions", b.Index, len(b.Transactions))
	return nil
}

// LoadChain reads every block ordered by index.
func (s *BunStore) LoadChain(ctx context.Context) ([]model.Block, error) {
	var bms []BlockModel
	if err := s.bun.NewSelect().Model(&bms).OrderExpr("block_index ASC").Scan(ctx); err != nil {
		return nil, err
	}
	var tms []TransactionModel
	if err := s.bun.NewSelect().Model(&tms).OrderExpr("block_id ASC, id ASC").Scan(ctx); err != nil {
		return nil, err
	}

	chain := make([]model.Block, 0, len(bms))
	pos := make(map[int64]int, len(bms))
	for _, bm := range bms {
		pos[bm.ID] = len(chain)
		chain = append(chain, blockModelToModel(bm))
	}
	for _, tm := range tms {
		i, ok := pos[tm.BlockID]
		if !ok {
			return nil, fmt.Errorf("transaction %s references missing block id %d", tm.TransactionID, tm.BlockID)
		}
		t, err := transactionModelToModel(tm)
		if err != nil {
			return nil, err
		}
		chain[i].Transactions = append(chain[i].Transactions, t)
	}
	return chain, nil
}

// ExistingTransactions reports which of ids are already stored.
func (s *BunStore) ExistingTransactions(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(ids) == 0 {
		return out, nil
	}
	var found []string
	if err := s.bun.NewSelect().Model((*TransactionModel)(nil)).Column("transaction_id").Where("transaction_id IN (?)", bun.In(ids)).Scan(ctx, &found); err != nil {
		return nil, fmt.Errorf("lookup transactions: %w", err)
	}
	for _, id := range found {
		out[id] = true
	}
	return out, nil
}

// CreateWallet inserts the wallet and its escrow record in one transaction.
func (s *BunStore) CreateWallet(ctx context.Context, w model.Wallet, rec model.EscrowRecord) error {
	wm, err := walletToModel(w)
	if err != nil {
		return err
	}
	return s.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&wm).Exec(ctx); err != nil {
			return MapDBError(err)
		}
		km := WalletKeyModel{FamilyID: w.ID, EncryptedPrivateKey: rec.MasterEncryptedKey, PublicKey: rec.PublicKey}
		if _, err := tx.NewInsert().Model(&km).Exec(ctx); err != nil {
			return MapDBError(err)
		}
		return nil
	})
}

// GetWallet returns the wallet or ErrNotFound.
func (s *BunStore) GetWallet(ctx context.Context, familyID string) (*model.Wallet, error) {
	var wm WalletModel
	if err := s.bun.NewSelect().Model(&wm).Where("family_id = ?", familyID).Limit(1).Scan(ctx); err != nil {
		return nil, MapDBError(err)
	}
	w, err := walletModelToModel(wm)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// UpdateWallet rewrites members and devices.
func (s *BunStore) UpdateWallet(ctx context.Context, w model.Wallet) error {
	wm, err := walletToModel(w)
	if err != nil {
		return err
	}
	res, err := s.bun.NewUpdate().Model(&wm).
		Column("members", "devices").
		Where("family_id = ?", w.ID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWallet removes the wallet and its escrow record as a unit.
func (s *BunStore) DeleteWallet(ctx context.Context, familyID string) error {
	return s.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().Model((*WalletModel)(nil)).Where("family_id = ?", familyID).Exec(ctx)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		if _, err := tx.NewDelete().Model((*WalletKeyModel)(nil)).Where("family_id = ?", familyID).Exec(ctx); err != nil {
			return err
		}
		return nil
	})
}

// GetEscrow returns the escrow record or ErrNotFound.
func (s *BunStore) GetEscrow(ctx context.Context, familyID string) (*model.EscrowRecord, error) {
	var km WalletKeyModel
	if err := s.bun.NewSelect().Model(&km).Where("family_id = ?", familyID).Limit(1).Scan(ctx); err != nil {
		return nil, MapDBError(err)
	}
	return &model.EscrowRecord{WalletID: km.FamilyID, MasterEncryptedKey: km.EncryptedPrivateKey, PublicKey: km.PublicKey}, nil
}

// GetPublicKey reads only the public key column of a wallet's key record.
func (s *BunStore) GetPublicKey(ctx context.Context, familyID string) (string, error) {
	var pub string
	err := s.bun.NewSelect().Model((*WalletKeyModel)(nil)).Column("public_key").Where("family_id = ?", familyID).Limit(1).Scan(ctx, &pub)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return pub, nil
}

// CountBlocks returns the number of stored blocks.
func (s *BunStore) CountBlocks(ctx context.Context) (int, error) {
	var n int
	if err := QueryRawInto(ctx, s.bun, &n, "SELECT COUNT(*) FROM blocks"); err != nil {
		return 0, err
	}
	return n, nil
}

// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/paxdriver/KriSYS/internal/model"
)

// BlockModel maps the blocks table.
type BlockModel struct {
	bun.BaseModel `bun:"table:blocks"`
	ID            int64          `bun:"id,pk,autoincrement"`
	BlockIndex    int64          `bun:"block_index"`
	Timestamp     float64        `bun:"timestamp"`
	PreviousHash  string         `bun:"previous_hash"`
	Hash          string         `bun:"hash"`
	Nonce         int64          `bun:"nonce"`
	Signature     sql.NullString `bun:"signature"`
}

// TransactionModel maps the transactions table. RelatedAddresses holds a
// JSON array.
type TransactionModel struct {
	bun.BaseModel    `bun:"table:transactions"`
	ID               int64   `bun:"id,pk,autoincrement"`
	BlockID          int64   `bun:"block_id"`
	TransactionID    string  `bun:"transaction_id"`
	TimestampCreated float64 `bun:"timestamp_created"`
	TimestampPosted  float64 `bun:"timestamp_posted"`
	StationAddress   string  `bun:"station_address"`
	MessageData      string  `bun:"message_data"`
	RelatedAddresses string  `bun:"related_addresses"`
	RelayHash        string  `bun:"relay_hash"`
	PostedID         string  `bun:"posted_id"`
	TypeField        string  `bun:"type_field"`
	PriorityLevel    int     `bun:"priority_level"`
}

// WalletModel maps the wallets table. Members and Devices hold JSON arrays.
type WalletModel struct {
	bun.BaseModel `bun:"table:wallets"`
	ID            int64  `bun:"id,pk,autoincrement"`
	FamilyID      string `bun:"family_id"`
	CrisisID      string `bun:"crisis_id"`
	Members       string `bun:"members"`
	Devices       string `bun:"devices"`
}

// WalletKeyModel maps the wallet_keys table.
type WalletKeyModel struct {
	bun.BaseModel       `bun:"table:wallet_keys"`
	ID                  int64  `bun:"id,pk,autoincrement"`
	FamilyID            string `bun:"family_id"`
	EncryptedPrivateKey string `bun:"encrypted_private_key"`
	PublicKey           string `bun:"public_key"`
}

// --- Mapping helpers ---

func blockToModel(b model.Block) BlockModel {
	return BlockModel{
		BlockIndex:   b.Index,
		Timestamp:    b.Timestamp,
		PreviousHash: b.PreviousHash,
		Hash:         b.Hash,
		Nonce:        b.Nonce,
		Signature:    sql.NullString{String: b.Signature, Valid: b.Signature != ""},
	}
}

func blockModelToModel(bm BlockModel) model.Block {
	b := model.Block{
		Index:        bm.BlockIndex,
		Timestamp:    bm.Timestamp,
		PreviousHash: bm.PreviousHash,
		Hash:         bm.Hash,
		Nonce:        bm.Nonce,
		Transactions: []model.Transaction{},
	}
	if bm.Signature.Valid {
		b.Signature = bm.Signature.String
	}
	return b
}

func transactionToModel(blockID int64, tx model.Transaction) (TransactionModel, error) {
	related := tx.Related
	if related == nil {
		related = []string{}
	}
	data, err := json.Marshal(related)
	if err != nil {
		return TransactionModel{}, fmt.Errorf("encode related addresses: %w", err)
	}
	return TransactionModel{
		BlockID:          blockID,
		TransactionID:    tx.ID,
		TimestampCreated: tx.CreatedAt,
		TimestampPosted:  tx.PostedAt,
		StationAddress:   tx.Origin,
		MessageData:      tx.Payload,
		RelatedAddresses: string(data),
		RelayHash:        tx.RelayHash,
		PostedID:         tx.RelayedID,
		TypeField:        tx.Kind,
		PriorityLevel:    tx.Priority,
	}, nil
}

func transactionModelToModel(tm TransactionModel) (model.Transaction, error) {
	related := []string{}
	if tm.RelatedAddresses != "" {
		if err := json.Unmarshal([]byte(tm.RelatedAddresses), &related); err != nil {
			return model.Transaction{}, fmt.Errorf("decode related addresses of %s: %w", tm.TransactionID, err)
		}
	}
	return model.Transaction{
		ID:        tm.TransactionID,
		CreatedAt: tm.TimestampCreated,
		PostedAt:  tm.TimestampPosted,
		Origin:    tm.StationAddress,
		Payload:   tm.MessageData,
		Related:   related,
		RelayHash: tm.RelayHash,
		RelayedID: tm.PostedID,
		Kind:      tm.TypeField,
		Priority:  tm.PriorityLevel,
	}, nil
}

func walletToModel(w model.Wallet) (WalletModel, error) {
	members := w.Members
	if members == nil {
		members = []model.Member{}
	}
	devices := w.Devices
	if devices == nil {
		devices = []model.Device{}
	}
	m, err := json.Marshal(members)
	if err != nil {
		return WalletModel{}, fmt.Errorf("encode members: %w", err)
	}
	d, err := json.Marshal(devices)
	if err != nil {
		return WalletModel{}, fmt.Errorf("encode devices: %w", err)
	}
	return WalletModel{FamilyID: w.ID, CrisisID: w.CrisisID, Members: string(m), Devices: string(d)}, nil
}

func walletModelToModel(wm WalletModel) (model.Wallet, error) {
	w := model.Wallet{ID: wm.FamilyID, CrisisID: wm.CrisisID, Members: []model.Member{}, Devices: []model.Device{}}
	if wm.Members != "" {
		if err := json.Unmarshal([]byte(wm.Members), &w.Members); err != nil {
			return model.Wallet{}, fmt.Errorf("decode members of %s: %w", wm.FamilyID, err)
		}
	}
	if wm.Devices != "" {
		if err := json.Unmarshal([]byte(wm.Devices), &w.Devices); err != nil {
			return model.Wallet{}, fmt.Errorf("decode devices of %s: %w", wm.FamilyID, err)
		}
	}
	return w, nil
}

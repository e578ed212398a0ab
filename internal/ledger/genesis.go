// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package ledger

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paxdriver/KriSYS/internal/model"
)

// Genesis transaction constants.
const (
	MetadataKind    = "metadata"
	MetadataType    = "crisis_metadata"
	SystemOrigin    = "SYSTEM"
	genesisPriority = 1
)

// ErrNotGenesis is returned by ParseGenesis for blocks that are not a
// well-formed genesis block.
var ErrNotGenesis = errors.New("not a genesis block")

// Metadata describes the deployment; it is the payload of the genesis
// transaction.
type Metadata struct {
	Type           string  `json:"type"`
	CrisisID       string  `json:"crisis_id"`
	Name           string  `json:"name"`
	Organization   string  `json:"organization"`
	Contact        string  `json:"contact"`
	Description    string  `json:"description"`
	CreatedAt      float64 `json:"created_at"`
	BlockPublicKey string  `json:"block_public_key"`
}

// NewGenesis seals block 0 carrying a single metadata transaction. The
// transaction bypasses admission since no policy lists the metadata kind.
func NewGenesis(meta Metadata, timestamp float64) (model.Block, error) {
	meta.Type = MetadataType
	if meta.CreatedAt == 0 {
		meta.CreatedAt = timestamp
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return model.Block{}, fmt.Errorf("encode genesis metadata: %w", err)
	}
	tx := model.Transaction{
		ID:        TransactionID(timestamp, SystemOrigin),
		CreatedAt: timestamp,
		PostedAt:  timestamp,
		Origin:    SystemOrigin,
		Payload:   string(payload),
		Related:   []string{},
		Kind:      MetadataKind,
		Priority:  genesisPriority,
	}
	return Seal(0, timestamp, []model.Transaction{tx}, GenesisPreviousHash)
}

// ParseGenesis extracts the deployment metadata from block 0.
func ParseGenesis(b model.Block) (Metadata, error) {
	if b.Index != 0 || b.PreviousHash != GenesisPreviousHash || len(b.Transactions) != 1 {
		return Metadata{}, ErrNotGenesis
	}
	tx := b.Transactions[0]
	if tx.Kind != MetadataKind {
		return Metadata{}, fmt.Errorf("%w: transaction kind %q", ErrNotGenesis, tx.Kind)
	}
	var meta Metadata
	if err := json.Unmarshal([]byte(tx.Payload), &meta); err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrNotGenesis, err)
	}
	return meta, nil
}

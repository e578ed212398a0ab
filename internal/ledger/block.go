// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/paxdriver/KriSYS/internal/model"
)

// GenesisPreviousHash is the previous_hash of block 0.
const GenesisPreviousHash = "0"

// ComputeHash returns the SHA-256 hex digest of the block's canonical
// encoding: index, timestamp, transactions, previous hash and nonce with
// keys sorted and no incidental whitespace. Hash and Signature are excluded.
func ComputeHash(b model.Block) (string, error) {
	txs := make([]map[string]any, 0, len(b.Transactions))
	for _, tx := range b.Transactions {
		txs = append(txs, wire(tx))
	}
	data, err := json.Marshal(map[string]any{
		"block_index":   b.Index,
		"timestamp":     b.Timestamp,
		"transactions":  txs,
		"previous_hash": b.PreviousHash,
		"nonce":         b.Nonce,
	})
	if err != nil {
		return "", fmt.Errorf("encode block %d: %w", b.Index, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Seal builds a block and computes its hash. The transaction slice is
// copied.
func Seal(index int64, timestamp float64, txs []model.Transaction, previousHash string) (model.Block, error) {
	b := model.Block{
		Index:        index,
		Timestamp:    timestamp,
		PreviousHash: previousHash,
		Transactions: append([]model.Transaction(nil), txs...),
	}
	if b.Transactions == nil {
		b.Transactions = []model.Transaction{}
	}
	h, err := ComputeHash(b)
	if err != nil {
		return model.Block{}, err
	}
	b.Hash = h
	return b, nil
}

// Next seals txs as the successor of tip.
func Next(tip model.Block, timestamp float64, txs []model.Transaction) (model.Block, error) {
	return Seal(tip.Index+1, timestamp, txs, tip.Hash)
}

// SigningHeader is the byte string a block signature covers: compact JSON
// of block_index, hash and previous_hash in that (sorted) key order.
func SigningHeader(b model.Block) []byte {
	// Field order is fixed by the struct and already sorted.
	data, _ := json.Marshal(struct {
		Index        int64  `json:"block_index"`
		Hash         string `json:"hash"`
		PreviousHash string `json:"previous_hash"`
	}{b.Index, b.Hash, b.PreviousHash})
	return data
}

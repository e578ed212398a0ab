// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

// Package ledger implements the hash-chained block ledger: transaction ids,
// canonical block hashing, chain validation, the self-describing genesis
// block and compressed chain bundles.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/paxdriver/KriSYS/internal/model"
)

// FormatTimestamp renders seconds the way ids are derived: the shortest
// decimal form, always carrying a fractional part ("1700000000.0").
func FormatTimestamp(ts float64) string {
	s := strconv.FormatFloat(ts, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// TransactionID is the SHA-256 hex digest of the creation time followed by
// the origin address.
func TransactionID(createdAt float64, origin string) string {
	sum := sha256.Sum256([]byte(FormatTimestamp(createdAt) + origin))
	return hex.EncodeToString(sum[:])
}

// NewTransaction builds a transaction with a derived id. postedAt is the
// admission time asserted by the server.
func NewTransaction(createdAt float64, origin, payload string, related []string, kind string, priority int, postedAt time.Time) model.Transaction {
	if related == nil {
		related = []string{}
	}
	return model.Transaction{
		ID:        TransactionID(createdAt, origin),
		CreatedAt: createdAt,
		PostedAt:  model.UnixSeconds(postedAt),
		Origin:    origin,
		Payload:   payload,
		Related:   append([]string(nil), related...),
		Kind:      kind,
		Priority:  priority,
	}
}

// wire returns the transaction's field map. encoding/json sorts map keys,
// which makes the encoding canonical.
func wire(tx model.Transaction) map[string]any {
	related := tx.Related
	if related == nil {
		related = []string{}
	}
	return map[string]any{
		"transaction_id":    tx.ID,
		"timestamp_created": tx.CreatedAt,
		"timestamp_posted":  tx.PostedAt,
		"station_address":   tx.Origin,
		"message_data":      tx.Payload,
		"related_addresses": related,
		"relay_hash":        tx.RelayHash,
		"posted_id":         tx.RelayedID,
		"type_field":        tx.Kind,
		"priority_level":    tx.Priority,
	}
}

// Encode returns the canonical compact JSON encoding of tx.
func Encode(tx model.Transaction) ([]byte, error) {
	return json.Marshal(wire(tx))
}

// Size is the byte length of Encode(tx); it is what size limits apply to.
func Size(tx model.Transaction) (int, error) {
	b, err := Encode(tx)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

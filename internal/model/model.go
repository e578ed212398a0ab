// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

// Package model holds the plain data types shared by the ledger, custody,
// wallet and mesh packages. The JSON tags are the wire names used by the
// routing layer and the relay stations.
package model

import (
	"fmt"
	"math"
	"time"
)

// Transaction is a single check-in, alert or message. It is immutable once
// admitted into the pending buffer.
type Transaction struct {
	ID        string   `json:"transaction_id"`
	CreatedAt float64  `json:"timestamp_created"`
	PostedAt  float64  `json:"timestamp_posted"`
	Origin    string   `json:"station_address"`
	Payload   string   `json:"message_data"`
	Related   []string `json:"related_addresses"`
	RelayHash string   `json:"relay_hash"`
	RelayedID string   `json:"posted_id"`
	Kind      string   `json:"type_field"`
	Priority  int      `json:"priority_level"`
}

// IsBroadcast reports whether the transaction has no subject addresses.
func (t Transaction) IsBroadcast() bool { return len(t.Related) == 0 }

// Concerns reports whether addr is one of the transaction's related addresses.
func (t Transaction) Concerns(addr string) bool {
	for _, a := range t.Related {
		if a == addr {
			return true
		}
	}
	return false
}

// Block is a sealed, ordered batch of transactions.
type Block struct {
	Index        int64         `json:"block_index"`
	Timestamp    float64       `json:"timestamp"`
	PreviousHash string        `json:"previous_hash"`
	Nonce        int64         `json:"nonce"`
	Transactions []Transaction `json:"transactions"`
	Hash         string        `json:"hash"`
	Signature    string        `json:"signature,omitempty"`
}

// String returns a short human readable form used in logs.
func (b Block) String() string {
	h := b.Hash
	if len(h) > 12 {
		h = h[:12]
	}
	return fmt.Sprintf("#%d(%s, %d txs)", b.Index, h, len(b.Transactions))
}

// Member is a person belonging to a wallet. The address is what stations
// scan and what transactions reference in Related.
type Member struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Device is a client device registered against a wallet.
type Device struct {
	ID           string  `json:"device_id"`
	PublicKey    string  `json:"public_key"`
	RegisteredAt float64 `json:"registered_at"`
}

// Wallet is a group identity, typically a family.
type Wallet struct {
	ID       string   `json:"family_id"`
	CrisisID string   `json:"crisis_id"`
	Members  []Member `json:"members"`
	Devices  []Device `json:"devices"`
}

// Addresses returns every member address of the wallet in member order.
func (w Wallet) Addresses() []string {
	out := make([]string, 0, len(w.Members))
	for _, m := range w.Members {
		out = append(out, m.Address)
	}
	return out
}

// EscrowRecord is the host-side custody record for a wallet key pair.
// MasterEncryptedKey is the passphrase-protected private key sealed to the
// ledger master public key.
type EscrowRecord struct {
	WalletID           string `json:"family_id"`
	MasterEncryptedKey string `json:"-"`
	PublicKey          string `json:"public_key"`
}

// UnixSeconds converts t to fractional seconds since the epoch, the
// representation used on the wire and in the canonical block encoding.
func UnixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// FromUnixSeconds is the inverse of UnixSeconds.
func FromUnixSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import (
	"testing"
	"time"
)

func TestTransactionConcerns(t *testing.T) {
	tx := Transaction{Related: []string{"fam123-01", "fam123-02"}}
	if !tx.Concerns("fam123-02") {
		t.Errorf("expected transaction to concern fam123-02")
	}
	if tx.Concerns("fam999-01") {
		t.Errorf("unexpected match for unrelated address")
	}
	if tx.IsBroadcast() {
		t.Errorf("transaction with related addresses is not a broadcast")
	}
	if !(Transaction{}).IsBroadcast() {
		t.Errorf("empty related list should be a broadcast")
	}
}

func TestWalletAddresses(t *testing.T) {
	w := Wallet{Members: []Member{{ID: "a", Address: "a"}, {ID: "b", Address: "b"}}}
	got := w.Addresses()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected addresses: %v", got)
	}
}

func TestUnixSecondsRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 250_000_000)
	s := UnixSeconds(now)
	if s != 1_700_000_000.25 {
		t.Fatalf("unexpected seconds: %v", s)
	}
	back := FromUnixSeconds(s)
	if d := back.Sub(now); d > time.Microsecond || d < -time.Microsecond {
		t.Fatalf("round trip drifted by %s", d)
	}
}

func TestBlockString(t *testing.T) {
	b := Block{Index: 3, Hash: "0123456789abcdef", Transactions: make([]Transaction, 2)}
	if got := b.String(); got != "#3(0123456789ab, 2 txs)" {
		t.Errorf("unexpected Block.String(): %q", got)
	}
}

package db

import (
	"context"
	"errors"
	"testing"

	"github.com/paxdriver/KriSYS/internal/model"
)

func sampleBlock(index int64, prev string, txIDs ...string) model.Block {
	b := model.Block{
		Index:        index,
		Timestamp:    1_700_000_000.5 + float64(index),
		PreviousHash: prev,
		Hash:         "hash-" + string(rune('a'+index)),
		Signature:    "sig",
	}
	for i, id := range txIDs {
		b.Transactions = append(b.Transactions, model.Transaction{
			ID:        id,
			CreatedAt: 1_700_000_000.125 + float64(i),
			PostedAt:  1_700_000_001.25,
			Origin:    "station_1",
			Payload:   "Check-in",
			Related:   []string{"fam123-01", "fam123-02"},
			Kind:      "check_in",
			Priority:  1,
		})
	}
	return b
}

func TestSaveAndLoadChain(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveBlock(ctx, sampleBlock(0, "0", "g")); err != nil {
		t.Fatalf("SaveBlock genesis: %v", err)
	}
	b1 := sampleBlock(1, "hash-a", "t2", "t1", "t3")
	b1.Signature = ""
	if err := s.SaveBlock(ctx, b1); err != nil {
		t.Fatalf("SaveBlock 1: %v", err)
	}

	chain, err := s.LoadChain(ctx)
	if err != nil {
		t.Fatalf("LoadChain: %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("chain length = %d, want 2", len(chain))
	}
	got := chain[1]
	if got.Timestamp != b1.Timestamp || got.PreviousHash != "hash-a" || got.Signature != "" {
		t.Fatalf("block fields not preserved: %+v", got)
	}
	order := []string{got.Transactions[0].ID, got.Transactions[1].ID, got.Transactions[2].ID}
	if order[0] != "t2" || order[1] != "t1" || order[2] != "t3" {
		t.Fatalf("transaction order not preserved: %v", order)
	}
	if len(got.Transactions[0].Related) != 2 || got.Transactions[0].CreatedAt != 1_700_000_000.125 {
		t.Fatalf("transaction fields not preserved: %+v", got.Transactions[0])
	}
	if chain[0].Signature != "sig" {
		t.Fatalf("signature not preserved")
	}
	n, err := s.CountBlocks(ctx)
	if err != nil || n != 2 {
		t.Fatalf("CountBlocks = %d, %v", n, err)
	}
}

func TestSaveBlockIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.SaveBlock(ctx, sampleBlock(0, "0", "dup")); err != nil {
		t.Fatalf("SaveBlock: %v", err)
	}
	// Second block repeats a transaction id: the unique constraint fails after
	// the block row was inserted, so the block row must be rolled back too.
	err := s.SaveBlock(ctx, sampleBlock(1, "hash-a", "fresh", "dup"))
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	chain, err := s.LoadChain(ctx)
	if err != nil {
		t.Fatalf("LoadChain: %v", err)
	}
	if len(chain) != 1 {
		t.Fatalf("partial block persisted: %d blocks", len(chain))
	}
	if len(chain[0].Transactions) != 1 {
		t.Fatalf("partial transactions persisted: %d", len(chain[0].Transactions))
	}
}

func TestExistingTransactions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.SaveBlock(ctx, sampleBlock(0, "0", "g", "t1")); err != nil {
		t.Fatalf("SaveBlock: %v", err)
	}

	found, err := s.ExistingTransactions(ctx, []string{"t1", "t9", "g"})
	if err != nil {
		t.Fatalf("ExistingTransactions: %v", err)
	}
	if len(found) != 2 || !found["t1"] || !found["g"] || found["t9"] {
		t.Fatalf("found = %v", found)
	}
	if found, err := s.ExistingTransactions(ctx, nil); err != nil || len(found) != 0 {
		t.Fatalf("empty lookup = %v, %v", found, err)
	}
}

func TestWalletLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	w := model.Wallet{
		ID:       "abc123",
		CrisisID: "Hurricane_Bobo",
		Members:  []model.Member{{ID: "abc123-00000001", Name: "Member 1", Address: "abc123-00000001"}},
	}
	rec := model.EscrowRecord{WalletID: "abc123", MasterEncryptedKey: "wrapped", PublicKey: "pub"}
	if err := s.CreateWallet(ctx, w, rec); err != nil {
		t.Fatalf("CreateWallet: %v", err)
	}
	if err := s.CreateWallet(ctx, w, rec); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate on second create, got %v", err)
	}

	got, err := s.GetWallet(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	if len(got.Members) != 1 || got.Members[0].Name != "Member 1" || got.Devices == nil {
		t.Fatalf("unexpected wallet: %+v", got)
	}

	got.Devices = append(got.Devices, model.Device{ID: "dev1", PublicKey: "k", RegisteredAt: 1.5})
	if err := s.UpdateWallet(ctx, *got); err != nil {
		t.Fatalf("UpdateWallet: %v", err)
	}
	again, _ := s.GetWallet(ctx, "abc123")
	if len(again.Devices) != 1 || again.Devices[0].ID != "dev1" {
		t.Fatalf("device not stored: %+v", again.Devices)
	}

	esc, err := s.GetEscrow(ctx, "abc123")
	if err != nil || esc.MasterEncryptedKey != "wrapped" {
		t.Fatalf("GetEscrow = %+v, %v", esc, err)
	}
	pub, err := s.GetPublicKey(ctx, "abc123")
	if err != nil || pub != "pub" {
		t.Fatalf("GetPublicKey = %q, %v", pub, err)
	}

	if err := s.DeleteWallet(ctx, "abc123"); err != nil {
		t.Fatalf("DeleteWallet: %v", err)
	}
	if _, err := s.GetWallet(ctx, "abc123"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("wallet survived delete: %v", err)
	}
	if _, err := s.GetEscrow(ctx, "abc123"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("escrow survived delete: %v", err)
	}
	if _, err := s.GetPublicKey(ctx, "abc123"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("public key survived delete: %v", err)
	}
	if err := s.DeleteWallet(ctx, "abc123"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
	if err := s.UpdateWallet(ctx, w); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update of deleted wallet: %v", err)
	}
}

func TestNewStoreRejectsUnknownType(t *testing.T) {
	if _, err := NewStoreFromDSN("oracle", "x"); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
}

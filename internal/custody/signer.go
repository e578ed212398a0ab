// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package custody

import (
	"fmt"

	"github.com/paxdriver/KriSYS/internal/ledger"
	"github.com/paxdriver/KriSYS/internal/model"
)

// BlockSigner signs sealed blocks with the master key.
type BlockSigner struct {
	master *MasterKey
}

// NewBlockSigner returns a signer backed by master.
func NewBlockSigner(master *MasterKey) *BlockSigner {
	return &BlockSigner{master: master}
}

// SignBlock sets b.Signature to a detached signature over the block's
// signing header. The master key is loaded for this call only.
func (s *BlockSigner) SignBlock(b *model.Block) error {
	header := ledger.SigningHeader(*b)
	return s.master.Use(func(u UnlockedKey) error {
		sig, err := u.Sign(header)
		if err != nil {
			return fmt.Errorf("sign block %d: %w", b.Index, err)
		}
		b.Signature = sig
		return nil
	})
}

// VerifyBlock reports whether b's hash matches its contents and its
// signature was made by masterPublic.
func VerifyBlock(b model.Block, masterPublic string) bool {
	if b.Signature == "" {
		return false
	}
	h, err := ledger.ComputeHash(b)
	if err != nil || h != b.Hash {
		return false
	}
	return Ed25519Suite{}.Verify(ledger.SigningHeader(b), b.Signature, masterPublic)
}

// VerifyChain validates links and hashes, then checks every block signature
// against masterPublic. When masterPublic is empty the key recorded in the
// genesis block is used.
func VerifyChain(chain []model.Block, masterPublic string) error {
	if len(chain) == 0 {
		return &ledger.IntegrityError{Index: 0, Reason: "empty chain"}
	}
	meta, err := ledger.ParseGenesis(chain[0])
	if err != nil {
		return &ledger.IntegrityError{Index: 0, Reason: err.Error()}
	}
	if masterPublic == "" {
		masterPublic = meta.BlockPublicKey
	}
	if err := ledger.ValidateChain(chain); err != nil {
		return err
	}
	for _, b := range chain {
		if !VerifyBlock(b, masterPublic) {
			return &ledger.IntegrityError{Index: b.Index, Reason: fmt.Sprintf("bad signature on %s", b)}
		}
	}
	return nil
}

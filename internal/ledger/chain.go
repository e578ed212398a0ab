// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package ledger

import (
	"errors"
	"fmt"

	"github.com/paxdriver/KriSYS/internal/model"
)

// ErrChainIntegrity is matched by every *IntegrityError.
var ErrChainIntegrity = errors.New("chain integrity violation")

// IntegrityError reports the first block that failed validation.
type IntegrityError struct {
	Index  int64
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("chain integrity violation at block %d: %s", e.Index, e.Reason)
}

// Is lets errors.Is(err, ErrChainIntegrity) match.
func (e *IntegrityError) Is(target error) bool { return target == ErrChainIntegrity }

// ValidateChain checks every block after genesis: the stored hash must match
// a recomputation, previous_hash must link to the prior block and indexes
// must be contiguous. It never modifies the chain. The first failure is
// returned as an *IntegrityError.
func ValidateChain(chain []model.Block) error {
	for i := 1; i < len(chain); i++ {
		cur, prev := chain[i], chain[i-1]
		if cur.Index != prev.Index+1 {
			return &IntegrityError{Index: cur.Index, Reason: fmt.Sprintf("index does not follow %d", prev.Index)}
		}
		h, err := ComputeHash(cur)
		if err != nil {
			return &IntegrityError{Index: cur.Index, Reason: err.Error()}
		}
		if h != cur.Hash {
			return &IntegrityError{Index: cur.Index, Reason: "hash mismatch"}
		}
		if cur.PreviousHash != prev.Hash {
			return &IntegrityError{Index: cur.Index, Reason: "previous_hash does not match prior block"}
		}
	}
	return nil
}

// IsValid reports whether ValidateChain succeeds.
func IsValid(chain []model.Block) bool { return ValidateChain(chain) == nil }

// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package admission

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateTransaction is returned when the pending buffer or the
	// chain already holds a transaction with the same id.
	ErrDuplicateTransaction = errors.New("duplicate transaction id")
	// ErrRateLimited is returned when the origin submitted too recently.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmptyPendingSet is returned by Mine when there is nothing to seal.
	ErrEmptyPendingSet = errors.New("no pending transactions to mine")
	// ErrPersistence is matched by every *PersistenceError.
	ErrPersistence = errors.New("persistence failure")
	// ErrNotBootstrapped is returned when the chain has no genesis block yet.
	ErrNotBootstrapped = errors.New("ledger not bootstrapped")
)

// RateLimitError carries the window that was violated.
type RateLimitError struct {
	Origin  string
	Seconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("only one transaction per station every %d seconds (%s)", e.Seconds, e.Origin)
}

// Is lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// PersistenceError means a sealed block could not be stored or signed. The
// block is not part of the chain.
type PersistenceError struct {
	Index int64
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("block %d not persisted: %v", e.Index, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrPersistence) match.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

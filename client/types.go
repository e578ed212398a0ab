// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package client

import (
	"errors"
	"fmt"
	"net/http"
)

// RateOverrideHeader asks the ledger to skip the per-origin rate limit.
const RateOverrideHeader = "X-Dev-Rate-Override"

// Errors matched by *APIError through errors.Is.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrDuplicate    = errors.New("duplicate transaction")
	ErrRateLimited  = errors.New("rate limited")
)

// APIError is a non-success response from the ledger.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.StatusCode, e.Message)
}

// Is maps status codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return target == ErrBadRequest
	case http.StatusUnauthorized:
		return target == ErrUnauthorized
	case http.StatusNotFound:
		return target == ErrNotFound
	case http.StatusConflict:
		return target == ErrDuplicate
	case http.StatusTooManyRequests:
		return target == ErrRateLimited
	}
	return false
}

// Submission is the transaction document accepted by POST /transaction.
type Submission struct {
	CreatedAt      float64  `json:"timestamp_created"`
	StationAddress string   `json:"station_address"`
	MessageData    string   `json:"message_data"`
	Related        []string `json:"related_addresses"`
	Kind           string   `json:"type_field"`
	Priority       int      `json:"priority_level"`
	RelayHash      string   `json:"relay_hash,omitempty"`
	PostedID       string   `json:"posted_id,omitempty"`
	// RecipientID makes the ledger encrypt a message to that wallet.
	RecipientID string `json:"recipient_id,omitempty"`
}

// CrisisInfo is the deployment metadata recorded in the genesis block.
type CrisisInfo struct {
	CrisisID       string  `json:"crisis_id"`
	Name           string  `json:"name"`
	Organization   string  `json:"organization"`
	Contact        string  `json:"contact"`
	Description    string  `json:"description"`
	CreatedAt      float64 `json:"created_at"`
	BlockPublicKey string  `json:"block_public_key"`
}

// MineResult describes a block mined on request.
type MineResult struct {
	Message string `json:"message"`
	Hash    string `json:"hash"`
}

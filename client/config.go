// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package client

import "time"

// DefaultTimeout bounds a single request when Config.Timeout is unset.
const DefaultTimeout = 10 * time.Second

// Config holds everything needed to reach a central ledger.
type Config struct {
	BaseURL string
	// AdminToken is the encoded X-Admin-Token value. Admin-only calls fail
	// with ErrUnauthorized without it.
	AdminToken string
	Timeout    time.Duration
}

// NewDefaultConfig targets a central ledger on localhost.
func NewDefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:5000",
		Timeout: DefaultTimeout,
	}
}

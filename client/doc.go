// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

// Package client provides a typed HTTP client for the central ledger API.
// Relay stations use it to forward queued traffic; integration tests and
// external tooling use it to drive a node programmatically.
package client

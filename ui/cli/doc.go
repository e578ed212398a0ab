// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.
//
// Package cli implements the KriSYS command-line interface using Cobra.
// It loads configuration, then hands off to the node, ledger, policy and
// wallet packages. Commands stay thin; the work happens in internal/.
package cli

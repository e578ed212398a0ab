// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

// Package testutil holds fixtures shared by package tests: private sqlite
// databases, throwaway key directories and an isolated config environment.
package testutil

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/paxdriver/KriSYS/internal/config"
)

var nameReplacer = strings.NewReplacer("/", "_", " ", "_", "#", "_")

// MemoryDSN returns a shared-cache in-memory sqlite DSN private to t. All
// connections opened with it see the same database until the last closes.
func MemoryDSN(t testing.TB, prefix string) string {
	t.Helper()
	return "file:" + prefix + "_" + nameReplacer.Replace(t.Name()) + "?mode=memory&cache=shared"
}

// CentralConfig returns a central node config rooted in a temp dir, backed
// by an sqlite file there.
func CentralConfig(t testing.TB) config.Config {
	t.Helper()
	dir := t.TempDir()
	var cfg config.Config
	cfg.Database.Type = "sqlite"
	cfg.Database.Dsn = filepath.Join(dir, "krisys.db")
	cfg.Keys.Dir = filepath.Join(dir, "keys")
	cfg.Admin.TokenFile = filepath.Join(dir, "keys", "admin_token.txt")
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Log.Level = "info"
	return cfg
}

// Isolate points HOME, the XDG config dir and the working directory at a
// fresh temp dir so config discovery cannot see the developer's files.
func Isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))
	t.Chdir(dir)
	return dir
}

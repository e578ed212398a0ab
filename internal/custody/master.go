// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package custody

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	clog "github.com/charmbracelet/log"
	"golang.org/x/crypto/ssh"

	"github.com/paxdriver/KriSYS/internal/logging"
	"github.com/paxdriver/KriSYS/internal/security"
)

// Master key file names inside the key directory.
const (
	MasterPublicFile  = "master_public_key.pem"
	MasterPrivateFile = "master_private_key.pem"
)

// ErrMasterKeyMissing is returned when the master key files are absent.
var ErrMasterKeyMissing = errors.New("master key missing")

// MasterKey is the ledger's master key pair on disk. The private half is
// read from disk for every operation and wiped afterwards; nothing is cached.
type MasterKey struct {
	dir   string
	suite Ed25519Suite
	log   *clog.Logger
}

// NewMasterKey returns a handle on the key pair stored in dir.
func NewMasterKey(dir string, logger *clog.Logger) *MasterKey {
	return &MasterKey{dir: dir, log: logging.Component(logger, "custody")}
}

func (m *MasterKey) privatePath() string { return filepath.Join(m.dir, MasterPrivateFile) }
func (m *MasterKey) publicPath() string  { return filepath.Join(m.dir, MasterPublicFile) }

// Ensure generates and persists the master key pair on first boot. It reports
// whether a new pair was created.
func (m *MasterKey) Ensure() (bool, error) {
	if _, err := os.Stat(m.privatePath()); err == nil {
		if _, err := os.Stat(m.publicPath()); err == nil {
			return false, nil
		}
		// Public half lost: rebuild it from the private key.
		return false, m.withPrivate(func(u *unlockedKey) error {
			return os.WriteFile(m.publicPath(), []byte(u.PublicKey()), 0o644)
		})
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("stat master key: %w", err)
	}

	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return false, fmt.Errorf("create key dir: %w", err)
	}
	_, priv, err := ed25519.GenerateKey(m.suite.rand())
	if err != nil {
		return false, fmt.Errorf("generate master key: %w", err)
	}
	u := &unlockedKey{priv: priv}
	defer u.wipe()
	exported, err := u.Export()
	if err != nil {
		return false, err
	}
	defer exported.Zero()
	if err := os.WriteFile(m.privatePath(), exported, 0o600); err != nil {
		return false, fmt.Errorf("write master private key: %w", err)
	}
	if err := os.WriteFile(m.publicPath(), []byte(u.PublicKey()), 0o644); err != nil {
		return false, fmt.Errorf("write master public key: %w", err)
	}
	m.log.Info("generated master key pair", "dir", m.dir)
	return true, nil
}

// PublicKey returns the armored master public key.
func (m *MasterKey) PublicKey() (string, error) {
	data, err := os.ReadFile(m.publicPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrMasterKeyMissing
		}
		return "", fmt.Errorf("read master public key: %w", err)
	}
	if _, err := parsePublic(string(data)); err != nil {
		return "", err
	}
	return string(data), nil
}

// withPrivate loads the private key, runs fn and wipes every copy.
func (m *MasterKey) withPrivate(fn func(*unlockedKey) error) error {
	data, err := os.ReadFile(m.privatePath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrMasterKeyMissing
		}
		return fmt.Errorf("read master private key: %w", err)
	}
	raw := security.Secret(data)
	defer raw.Zero()

	parsed, err := ssh.ParseRawPrivateKey(raw)
	if err != nil {
		return fmt.Errorf("parse master private key: %w", err)
	}
	priv, err := asEd25519(parsed)
	if err != nil {
		return err
	}
	u := &unlockedKey{priv: priv}
	defer u.wipe()
	return fn(u)
}

// Use runs fn with the master private key.
func (m *MasterKey) Use(fn func(UnlockedKey) error) error {
	return m.withPrivate(func(u *unlockedKey) error { return fn(u) })
}

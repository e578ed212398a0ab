// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

// Package wallet manages family wallets: their members, registered devices
// and the escrowed key pair messages to the family are encrypted to.
package wallet

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	clog "github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/paxdriver/KriSYS/internal/custody"
	"github.com/paxdriver/KriSYS/internal/db"
	"github.com/paxdriver/KriSYS/internal/logging"
	"github.com/paxdriver/KriSYS/internal/model"
	"github.com/paxdriver/KriSYS/internal/security"
)

// Member count bounds for Create.
const (
	MinMembers = 1
	MaxMembers = 20
)

var (
	// ErrInvalidMembers is returned when the member count is out of range.
	ErrInvalidMembers = fmt.Errorf("number of members must be between %d and %d", MinMembers, MaxMembers)
	// ErrPassphraseRequired is returned when Create gets an empty passphrase.
	ErrPassphraseRequired = errors.New("passphrase is required")
	// ErrNotFound is returned for unknown wallets.
	ErrNotFound = errors.New("wallet not found")
)

// Store is the persistence the manager needs.
type Store interface {
	CreateWallet(ctx context.Context, w model.Wallet, rec model.EscrowRecord) error
	GetWallet(ctx context.Context, familyID string) (*model.Wallet, error)
	UpdateWallet(ctx context.Context, w model.Wallet) error
	DeleteWallet(ctx context.Context, familyID string) error
	GetEscrow(ctx context.Context, familyID string) (*model.EscrowRecord, error)
	GetPublicKey(ctx context.Context, familyID string) (string, error)
}

// Manager creates and reads wallets. Loaded wallets are cached.
type Manager struct {
	mu    sync.RWMutex
	cache map[string]model.Wallet
	// writeMu serializes read-modify-write updates and deletes.
	writeMu sync.Mutex

	store  Store
	escrow *custody.Escrow
	suite  custody.Suite
	now    func() time.Time
	log    *clog.Logger
}

// NewManager returns a manager over store using escrow for key custody.
func NewManager(store Store, escrow *custody.Escrow, logger *clog.Logger) *Manager {
	return &Manager{
		cache:  make(map[string]model.Wallet),
		store:  store,
		escrow: escrow,
		suite:  custody.Ed25519Suite{},
		now:    time.Now,
		log:    logging.Component(logger, "wallet"),
	}
}

// NewFamilyID returns 24 hex characters of the SHA-256 of 32 random bytes.
func NewFamilyID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])[:24], nil
}

func newMember(familyID, name string) (model.Member, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return model.Member{}, err
	}
	id := familyID + "-" + hex.EncodeToString(buf)
	return model.Member{ID: id, Name: name, Address: id}, nil
}

// Create makes a wallet with one member per name for crisisID. The key pair
// is escrowed under passphrase; the passphrase is not stored.
func (m *Manager) Create(ctx context.Context, crisisID string, names []string, passphrase []byte) (model.Wallet, error) {
	if len(names) < MinMembers || len(names) > MaxMembers {
		return model.Wallet{}, ErrInvalidMembers
	}
	if len(passphrase) == 0 {
		return model.Wallet{}, ErrPassphraseRequired
	}
	id, err := NewFamilyID()
	if err != nil {
		return model.Wallet{}, fmt.Errorf("family id: %w", err)
	}
	w := model.Wallet{ID: id, CrisisID: crisisID, Members: []model.Member{}, Devices: []model.Device{}}
	for _, n := range names {
		mem, err := newMember(id, n)
		if err != nil {
			return model.Wallet{}, fmt.Errorf("member id: %w", err)
		}
		w.Members = append(w.Members, mem)
	}

	rec, err := m.escrow.Wrap(id, passphrase)
	if err != nil {
		return model.Wallet{}, fmt.Errorf("escrow key: %w", err)
	}
	if err := m.store.CreateWallet(ctx, w, rec); err != nil {
		return model.Wallet{}, fmt.Errorf("store wallet: %w", err)
	}

	m.mu.Lock()
	m.cache[id] = w
	m.mu.Unlock()
	m.log.Info("created wallet", "family_id", id, "members", len(w.Members))
	return w, nil
}

// DefaultNames returns "Member 1".."Member n".
func DefaultNames(n int) []string {
	out := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, fmt.Sprintf("Member %d", i))
	}
	return out
}

// Get returns the wallet with familyID.
func (m *Manager) Get(ctx context.Context, familyID string) (model.Wallet, error) {
	m.mu.RLock()
	w, ok := m.cache[familyID]
	m.mu.RUnlock()
	if ok {
		return w, nil
	}
	got, err := m.store.GetWallet(ctx, familyID)
	if errors.Is(err, db.ErrNotFound) {
		return model.Wallet{}, ErrNotFound
	}
	if err != nil {
		return model.Wallet{}, err
	}
	m.mu.Lock()
	m.cache[familyID] = *got
	m.mu.Unlock()
	return *got, nil
}

// AddMember appends a member named name and returns it.
func (m *Manager) AddMember(ctx context.Context, familyID, name string) (model.Member, error) {
	var added model.Member
	err := m.update(ctx, familyID, func(w *model.Wallet) error {
		mem, err := newMember(familyID, name)
		if err != nil {
			return err
		}
		w.Members = append(w.Members, mem)
		added = mem
		return nil
	})
	return added, err
}

// RegisterDevice records a client device. An empty deviceID gets a UUID.
func (m *Manager) RegisterDevice(ctx context.Context, familyID, deviceID, publicKey string) (model.Device, error) {
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	d := model.Device{ID: deviceID, PublicKey: publicKey, RegisteredAt: model.UnixSeconds(m.now())}
	err := m.update(ctx, familyID, func(w *model.Wallet) error {
		w.Devices = append(w.Devices, d)
		return nil
	})
	return d, err
}

func (m *Manager) update(ctx context.Context, familyID string, fn func(*model.Wallet) error) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	w, err := m.Get(ctx, familyID)
	if err != nil {
		return err
	}
	w.Members = append([]model.Member(nil), w.Members...)
	w.Devices = append([]model.Device(nil), w.Devices...)
	if err := fn(&w); err != nil {
		return err
	}
	if err := m.store.UpdateWallet(ctx, w); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	m.mu.Lock()
	m.cache[familyID] = w
	m.mu.Unlock()
	return nil
}

// Delete removes the wallet and its escrow record.
func (m *Manager) Delete(ctx context.Context, familyID string) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	delete(m.cache, familyID)
	m.mu.Unlock()
	err := m.store.DeleteWallet(ctx, familyID)
	if errors.Is(err, db.ErrNotFound) {
		return ErrNotFound
	}
	if err == nil {
		m.log.Info("deleted wallet", "family_id", familyID)
	}
	return err
}

// PublicKey returns the wallet's public key. It never touches the escrow.
func (m *Manager) PublicKey(ctx context.Context, familyID string) (string, error) {
	k, err := m.store.GetPublicKey(ctx, familyID)
	if errors.Is(err, db.ErrNotFound) {
		return "", ErrNotFound
	}
	return k, err
}

// Unlock returns the wallet's passphrase-free private key. Every failure,
// an unknown wallet included, is custody.ErrAuthenticationFailed.
func (m *Manager) Unlock(ctx context.Context, familyID string, passphrase []byte) (security.Secret, error) {
	rec, err := m.store.GetEscrow(ctx, familyID)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			m.log.Error("escrow lookup failed", "family_id", familyID, "err", err)
		}
		rec = nil
	}
	return m.escrow.Unwrap(rec, passphrase)
}

// EncryptFor encrypts plaintext to the public key of familyID.
func (m *Manager) EncryptFor(ctx context.Context, familyID string, plaintext []byte) (string, error) {
	pub, err := m.PublicKey(ctx, familyID)
	if err != nil {
		return "", err
	}
	return m.suite.Encrypt(plaintext, pub)
}

// Addresses returns the member addresses of familyID.
func (m *Manager) Addresses(ctx context.Context, familyID string) ([]string, error) {
	w, err := m.Get(ctx, familyID)
	if err != nil {
		return nil, err
	}
	return w.Addresses(), nil
}

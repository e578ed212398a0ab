// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

// Package custody implements wallet key pairs, the ledger master key and the
// double-wrap escrow that lets the host relay messages it cannot read.
//
// A key pair is an ed25519 seed. Signatures use ed25519 directly; encryption
// uses anonymous NaCl boxes to an X25519 key derived from the same seed. The
// private half is stored in OpenSSH format, passphrase protected with bcrypt
// KDF, which is what "protect" means throughout this package.
package custody

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"encoding/pem"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/ssh"

	"github.com/paxdriver/KriSYS/internal/security"
)

// PEM block types.
const (
	publicKeyBlock = "KRISYS PUBLIC KEY"
	messageBlock   = "KRISYS MESSAGE"
	signatureBlock = "KRISYS SIGNATURE"
	keyComment     = "krisys"
)

var (
	// ErrEmptyPassphrase is returned when protecting a key with no passphrase.
	ErrEmptyPassphrase = errors.New("passphrase must not be empty")
	// ErrInvalidKey is returned for unparseable key or message armor.
	ErrInvalidKey = errors.New("invalid key material")
	// ErrDecrypt is returned when a message cannot be opened with a key.
	ErrDecrypt = errors.New("message decryption failed")
)

// AsymmetricKeyPair is a key pair whose private half is passphrase
// protected. The private key is only usable inside Unlock.
type AsymmetricKeyPair interface {
	// PublicKey returns the armored public key.
	PublicKey() string
	// Protected returns the passphrase-protected private key.
	Protected() []byte
	// Unlock runs fn with the usable private key. The key is wiped when fn
	// returns.
	Unlock(passphrase []byte, fn func(UnlockedKey) error) error
}

// UnlockedKey is a private key in the scope of an Unlock call.
type UnlockedKey interface {
	PublicKey() string
	Decrypt(message string) ([]byte, error)
	Sign(data []byte) (string, error)
	// Protect returns the private key locked behind passphrase.
	Protect(passphrase []byte) ([]byte, error)
	// Export returns the unprotected private key for client-side use.
	Export() (security.Secret, error)
}

// Suite creates and opens key pairs and performs the public-key operations.
type Suite interface {
	Generate(passphrase []byte) (AsymmetricKeyPair, error)
	Open(protected []byte, public string) (AsymmetricKeyPair, error)
	Encrypt(plaintext []byte, recipient string) (string, error)
	Verify(data []byte, signature, signer string) bool
}

// Ed25519Suite is the default Suite.
type Ed25519Suite struct {
	// Rand defaults to crypto/rand.
	Rand io.Reader
}

func (s Ed25519Suite) rand() io.Reader {
	if s.Rand != nil {
		return s.Rand
	}
	return rand.Reader
}

// Generate creates a key pair protected by passphrase.
func (s Ed25519Suite) Generate(passphrase []byte) (AsymmetricKeyPair, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}
	_, priv, err := ed25519.GenerateKey(s.rand())
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	k := &unlockedKey{priv: priv}
	defer k.wipe()
	protected, err := k.Protect(passphrase)
	if err != nil {
		return nil, err
	}
	return &keyPair{public: k.PublicKey(), protected: protected}, nil
}

// Open wraps existing protected key material.
func (s Ed25519Suite) Open(protected []byte, public string) (AsymmetricKeyPair, error) {
	if _, err := parsePublic(public); err != nil {
		return nil, err
	}
	return &keyPair{public: public, protected: append([]byte(nil), protected...)}, nil
}

// Encrypt seals plaintext to the recipient's public key.
func (s Ed25519Suite) Encrypt(plaintext []byte, recipient string) (string, error) {
	pk, err := parsePublic(recipient)
	if err != nil {
		return "", err
	}
	sealed, err := box.SealAnonymous(nil, plaintext, &pk.box, s.rand())
	if err != nil {
		return "", fmt.Errorf("seal message: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: messageBlock, Bytes: sealed})), nil
}

// Verify checks a detached signature made by signer.
func (s Ed25519Suite) Verify(data []byte, signature, signer string) bool {
	pk, err := parsePublic(signer)
	if err != nil {
		return false
	}
	blk, _ := pem.Decode([]byte(signature))
	if blk == nil || blk.Type != signatureBlock || len(blk.Bytes) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pk.sign, data, blk.Bytes)
}

type keyPair struct {
	public    string
	protected []byte
}

func (k *keyPair) PublicKey() string { return k.public }

func (k *keyPair) Protected() []byte { return append([]byte(nil), k.protected...) }

func (k *keyPair) Unlock(passphrase []byte, fn func(UnlockedKey) error) error {
	if len(passphrase) == 0 {
		return ErrEmptyPassphrase
	}
	raw, err := ssh.ParseRawPrivateKeyWithPassphrase(k.protected, passphrase)
	if err != nil {
		return fmt.Errorf("unlock key: %w", err)
	}
	priv, err := asEd25519(raw)
	if err != nil {
		return err
	}
	u := &unlockedKey{priv: priv}
	defer u.wipe()
	if u.PublicKey() != k.public {
		return fmt.Errorf("%w: public key does not match private key", ErrInvalidKey)
	}
	return fn(u)
}

type unlockedKey struct {
	priv ed25519.PrivateKey
}

func (u *unlockedKey) wipe() { security.ZeroBytes(u.priv) }

func (u *unlockedKey) PublicKey() string {
	return armorPublic(u.priv)
}

func (u *unlockedKey) Decrypt(message string) ([]byte, error) {
	blk, _ := pem.Decode([]byte(message))
	if blk == nil || blk.Type != messageBlock {
		return nil, fmt.Errorf("%w: not an armored message", ErrInvalidKey)
	}
	seed := u.priv.Seed()
	defer security.ZeroBytes(seed)
	boxPriv := boxPrivate(seed)
	defer security.ZeroBytes(boxPriv[:])
	pub, err := boxPublic(seed)
	if err != nil {
		return nil, err
	}
	out, ok := box.OpenAnonymous(nil, blk.Bytes, &pub, &boxPriv)
	if !ok {
		return nil, ErrDecrypt
	}
	return out, nil
}

func (u *unlockedKey) Sign(data []byte) (string, error) {
	sig := ed25519.Sign(u.priv, data)
	return string(pem.EncodeToMemory(&pem.Block{Type: signatureBlock, Bytes: sig})), nil
}

func (u *unlockedKey) Protect(passphrase []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}
	blk, err := ssh.MarshalPrivateKeyWithPassphrase(u.priv, keyComment, passphrase)
	if err != nil {
		return nil, fmt.Errorf("protect key: %w", err)
	}
	return pem.EncodeToMemory(blk), nil
}

func (u *unlockedKey) Export() (security.Secret, error) {
	blk, err := ssh.MarshalPrivateKey(u.priv, keyComment)
	if err != nil {
		return nil, fmt.Errorf("export key: %w", err)
	}
	out := pem.EncodeToMemory(blk)
	s := security.FromBytes(out)
	security.ZeroBytes(out)
	security.ZeroBytes(blk.Bytes)
	return s, nil
}

// publicKey is the decoded form of an armored public key.
type publicKey struct {
	sign ed25519.PublicKey
	box  [32]byte
}

// boxPrivate derives the X25519 private scalar from an ed25519 seed the same
// way ed25519 derives its signing scalar.
func boxPrivate(seed []byte) [32]byte {
	h := sha512.Sum512(seed)
	defer security.ZeroBytes(h[:])
	var out [32]byte
	copy(out[:], h[:32])
	out[0] &= 248
	out[31] &= 127
	out[31] |= 64
	return out
}

// boxPublic returns the X25519 public key matching boxPrivate(seed).
func boxPublic(seed []byte) ([32]byte, error) {
	priv := boxPrivate(seed)
	defer security.ZeroBytes(priv[:])
	var out [32]byte
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return out, fmt.Errorf("derive box key: %w", err)
	}
	copy(out[:], pub)
	return out, nil
}

// armorPublic encodes the ed25519 and X25519 public keys of priv as one
// 64-byte PEM block.
func armorPublic(priv ed25519.PrivateKey) string {
	seed := priv.Seed()
	defer security.ZeroBytes(seed)
	xpub, err := boxPublic(seed)
	if err != nil {
		// X25519 only fails for low-order points, never for a clamped scalar
		// times the base point.
		panic(err)
	}
	data := make([]byte, 0, 64)
	data = append(data, priv.Public().(ed25519.PublicKey)...)
	data = append(data, xpub[:]...)
	return string(pem.EncodeToMemory(&pem.Block{Type: publicKeyBlock, Bytes: data}))
}

func parsePublic(armored string) (publicKey, error) {
	blk, _ := pem.Decode([]byte(armored))
	if blk == nil || blk.Type != publicKeyBlock || len(blk.Bytes) != 64 {
		return publicKey{}, fmt.Errorf("%w: not an armored public key", ErrInvalidKey)
	}
	var pk publicKey
	pk.sign = ed25519.PublicKey(append([]byte(nil), blk.Bytes[:32]...))
	copy(pk.box[:], blk.Bytes[32:])
	return pk, nil
}

func asEd25519(raw any) (ed25519.PrivateKey, error) {
	switch k := raw.(type) {
	case ed25519.PrivateKey:
		return k, nil
	case *ed25519.PrivateKey:
		return *k, nil
	default:
		return nil, fmt.Errorf("%w: unexpected key type %T", ErrInvalidKey, raw)
	}
}

// UseExported runs fn with a key previously returned by Export. This is the
// client side of a wallet unlock.
func UseExported(exported []byte, fn func(UnlockedKey) error) error {
	raw, err := ssh.ParseRawPrivateKey(exported)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	priv, err := asEd25519(raw)
	if err != nil {
		return err
	}
	u := &unlockedKey{priv: priv}
	defer u.wipe()
	return fn(u)
}

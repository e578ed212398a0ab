// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AdminHeader carries the operator credential on privileged requests.
const AdminHeader = "X-Admin-Token"

// ErrUnauthorized is returned for every rejected admin credential.
var ErrUnauthorized = errors.New("unauthorized")

// AdminToken is the operator secret, loaded once at startup. Clients send
// the base64 encoding of the token file contents.
type AdminToken struct {
	digest [32]byte
}

// NewAdminToken wraps raw token contents.
func NewAdminToken(raw []byte) *AdminToken {
	return &AdminToken{digest: sha256.Sum256(raw)}
}

// LoadOrCreateAdminToken reads the token file, creating it with a random
// token (0600) when it does not exist.
func LoadOrCreateAdminToken(path string) (*AdminToken, bool, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		s := FromBytes(raw)
		ZeroBytes(raw)
		defer s.Zero()
		return NewAdminToken(s), false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, fmt.Errorf("read admin token: %w", err)
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, false, fmt.Errorf("generate admin token: %w", err)
	}
	tok := FromString(hex.EncodeToString(buf))
	defer tok.Zero()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, false, fmt.Errorf("create admin token dir: %w", err)
	}
	if err := os.WriteFile(path, tok, 0o600); err != nil {
		return nil, false, fmt.Errorf("write admin token: %w", err)
	}
	return NewAdminToken(tok), true, nil
}

// Verify checks a header value. Missing, malformed and wrong tokens all
// take the same path: decode failures hash an empty candidate and the
// comparison is always made over fixed-size digests.
func (a *AdminToken) Verify(header string) error {
	if a == nil {
		return ErrUnauthorized
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header))
	if err != nil {
		decoded = nil
	}
	candidate := sha256.Sum256(decoded)
	ZeroBytes(decoded)
	match := subtle.ConstantTimeCompare(candidate[:], a.digest[:])
	if match != 1 || header == "" || err != nil {
		return ErrUnauthorized
	}
	return nil
}

// Encode returns the header value for raw token contents.
func Encode(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

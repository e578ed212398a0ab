// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package custody

import (
	"crypto/rand"
	"errors"
	"fmt"

	clog "github.com/charmbracelet/log"

	"github.com/paxdriver/KriSYS/internal/logging"
	"github.com/paxdriver/KriSYS/internal/model"
	"github.com/paxdriver/KriSYS/internal/security"
)

// ErrAuthenticationFailed is the only error unlock paths return for custody
// problems: wrong passphrase, corrupt or missing escrow and missing master
// key look the same to the caller.
var ErrAuthenticationFailed = errors.New("authentication failed")

var errNoRecord = errors.New("no escrow record")

// Escrow wraps wallet keys under a user passphrase and then under the master
// public key. Neither layer alone yields a usable private key.
type Escrow struct {
	master *MasterKey
	suite  Suite
	log    *clog.Logger
	decoy  model.EscrowRecord
}

// NewEscrow prepares an escrow service. A decoy record is built so that
// unlock attempts for unknown wallets do the same work as real ones.
func NewEscrow(master *MasterKey, suite Suite, logger *clog.Logger) (*Escrow, error) {
	if suite == nil {
		suite = Ed25519Suite{}
	}
	e := &Escrow{master: master, suite: suite, log: logging.Component(logger, "escrow")}
	junk := make([]byte, 24)
	if _, err := rand.Read(junk); err != nil {
		return nil, fmt.Errorf("decoy passphrase: %w", err)
	}
	decoy, err := e.Wrap("", junk)
	security.ZeroBytes(junk)
	if err != nil {
		return nil, fmt.Errorf("decoy escrow: %w", err)
	}
	e.decoy = decoy
	return e, nil
}

// Wrap generates a key pair for walletID protected by passphrase and seals
// the protected key to the master public key. The passphrase is not kept.
func (e *Escrow) Wrap(walletID string, passphrase []byte) (model.EscrowRecord, error) {
	masterPub, err := e.master.PublicKey()
	if err != nil {
		return model.EscrowRecord{}, err
	}
	kp, err := e.suite.Generate(passphrase)
	if err != nil {
		return model.EscrowRecord{}, err
	}
	userEncrypted := kp.Protected()
	defer security.ZeroBytes(userEncrypted)
	masterEncrypted, err := e.suite.Encrypt(userEncrypted, masterPub)
	if err != nil {
		return model.EscrowRecord{}, fmt.Errorf("wrap under master key: %w", err)
	}
	return model.EscrowRecord{
		WalletID:           walletID,
		MasterEncryptedKey: masterEncrypted,
		PublicKey:          kp.PublicKey(),
	}, nil
}

// Unlock recovers the wallet key from rec and runs fn with it. A nil rec is
// treated as a missing wallet. Every custody failure is logged in full and
// returned as ErrAuthenticationFailed; an error from fn itself is returned
// unchanged.
func (e *Escrow) Unlock(rec *model.EscrowRecord, passphrase []byte, fn func(UnlockedKey) error) error {
	missing := rec == nil
	r := e.decoy
	if !missing {
		r = *rec
	}

	var userEncrypted []byte
	err := e.master.Use(func(mk UnlockedKey) error {
		var derr error
		userEncrypted, derr = mk.Decrypt(r.MasterEncryptedKey)
		return derr
	})
	defer security.ZeroBytes(userEncrypted)

	var fnErr error
	var kp AsymmetricKeyPair
	if err == nil {
		kp, err = e.suite.Open(userEncrypted, r.PublicKey)
	}
	if err == nil {
		err = kp.Unlock(passphrase, func(u UnlockedKey) error {
			if missing {
				return errNoRecord
			}
			fnErr = fn(u)
			return nil
		})
	}
	if err == nil && missing {
		err = errNoRecord
	}
	if err != nil {
		e.log.Error("escrow unlock failed", "wallet", r.WalletID, "missing", missing, "err", err)
		return ErrAuthenticationFailed
	}
	return fnErr
}

// Unwrap returns the passphrase-free private key of rec.
func (e *Escrow) Unwrap(rec *model.EscrowRecord, passphrase []byte) (security.Secret, error) {
	var out security.Secret
	err := e.Unlock(rec, passphrase, func(u UnlockedKey) error {
		var xerr error
		out, xerr = u.Export()
		return xerr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

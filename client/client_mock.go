// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package client

import (
	"context"
	"errors"

	"github.com/paxdriver/KriSYS/internal/model"
	"github.com/paxdriver/KriSYS/internal/security"
)

// ErrNotMocked is returned by MockClient methods with neither an overwrite
// nor a base client.
var ErrNotMocked = errors.New("client method not mocked")

// MockClient calls Overwrites where set and BaseClient otherwise.
type MockClient struct {
	BaseClient Client
	Overwrites MockClientOverwrites
}

type MockClientOverwrites struct {
	Close               func(ctx context.Context) error
	Target              func() string
	Crisis              func(ctx context.Context) (CrisisInfo, error)
	SubmitTransaction   func(ctx context.Context, s Submission, rateOverride bool) (string, error)
	CheckIn             func(ctx context.Context, address, stationID string) (string, error)
	Blockchain          func(ctx context.Context) ([]model.Block, error)
	AddressTransactions func(ctx context.Context, address string) ([]model.Transaction, error)
	CreateWallet        func(ctx context.Context, members int, passphrase string) (model.Wallet, error)
	GetWallet           func(ctx context.Context, familyID string) (model.Wallet, error)
	WalletTransactions  func(ctx context.Context, familyID string) ([]model.Transaction, error)
	WalletPublicKey     func(ctx context.Context, familyID string) (string, error)
	Unlock              func(ctx context.Context, familyID, passphrase string) (security.Secret, error)
	Mine                func(ctx context.Context) (MineResult, error)
	Alert               func(ctx context.Context, message string, priority int) (string, error)
	SetPolicy           func(ctx context.Context, policyID string) error
}

// *MockClient implements Client
var _ Client = (*MockClient)(nil)

func (m *MockClient) Close(ctx context.Context) error {
	if m.Overwrites.Close != nil {
		return m.Overwrites.Close(ctx)
	}
	if m.BaseClient != nil {
		return m.BaseClient.Close(ctx)
	}
	return nil
}

func (m *MockClient) Target() string {
	if m.Overwrites.Target != nil {
		return m.Overwrites.Target()
	}
	if m.BaseClient != nil {
		return m.BaseClient.Target()
	}
	return "mock"
}

func (m *MockClient) Crisis(ctx context.Context) (CrisisInfo, error) {
	if m.Overwrites.Crisis != nil {
		return m.Overwrites.Crisis(ctx)
	}
	if m.BaseClient != nil {
		return m.BaseClient.Crisis(ctx)
	}
	return CrisisInfo{}, ErrNotMocked
}

func (m *MockClient) SubmitTransaction(ctx context.Context, s Submission, rateOverride bool) (string, error) {
	if m.Overwrites.SubmitTransaction != nil {
		return m.Overwrites.SubmitTransaction(ctx, s, rateOverride)
	}
	if m.BaseClient != nil {
		return m.BaseClient.SubmitTransaction(ctx, s, rateOverride)
	}
	return "", ErrNotMocked
}

func (m *MockClient) CheckIn(ctx context.Context, address, stationID string) (string, error) {
	if m.Overwrites.CheckIn != nil {
		return m.Overwrites.CheckIn(ctx, address, stationID)
	}
	if m.BaseClient != nil {
		return m.BaseClient.CheckIn(ctx, address, stationID)
	}
	return "", ErrNotMocked
}

func (m *MockClient) Blockchain(ctx context.Context) ([]model.Block, error) {
	if m.Overwrites.Blockchain != nil {
		return m.Overwrites.Blockchain(ctx)
	}
	if m.BaseClient != nil {
		return m.BaseClient.Blockchain(ctx)
	}
	return nil, ErrNotMocked
}

func (m *MockClient) AddressTransactions(ctx context.Context, address string) ([]model.Transaction, error) {
	if m.Overwrites.AddressTransactions != nil {
		return m.Overwrites.AddressTransactions(ctx, address)
	}
	if m.BaseClient != nil {
		return m.BaseClient.AddressTransactions(ctx, address)
	}
	return nil, ErrNotMocked
}

func (m *MockClient) CreateWallet(ctx context.Context, members int, passphrase string) (model.Wallet, error) {
	if m.Overwrites.CreateWallet != nil {
		return m.Overwrites.CreateWallet(ctx, members, passphrase)
	}
	if m.BaseClient != nil {
		return m.BaseClient.CreateWallet(ctx, members, passphrase)
	}
	return model.Wallet{}, ErrNotMocked
}

func (m *MockClient) GetWallet(ctx context.Context, familyID string) (model.Wallet, error) {
	if m.Overwrites.GetWallet != nil {
		return m.Overwrites.GetWallet(ctx, familyID)
	}
	if m.BaseClient != nil {
		return m.BaseClient.GetWallet(ctx, familyID)
	}
	return model.Wallet{}, ErrNotMocked
}

func (m *MockClient) WalletTransactions(ctx context.Context, familyID string) ([]model.Transaction, error) {
	if m.Overwrites.WalletTransactions != nil {
		return m.Overwrites.WalletTransactions(ctx, familyID)
	}
	if m.BaseClient != nil {
		return m.BaseClient.WalletTransactions(ctx, familyID)
	}
	return nil, ErrNotMocked
}

func (m *MockClient) WalletPublicKey(ctx context.Context, familyID string) (string, error) {
	if m.Overwrites.WalletPublicKey != nil {
		return m.Overwrites.WalletPublicKey(ctx, familyID)
	}
	if m.BaseClient != nil {
		return m.BaseClient.WalletPublicKey(ctx, familyID)
	}
	return "", ErrNotMocked
}

func (m *MockClient) Unlock(ctx context.Context, familyID, passphrase string) (security.Secret, error) {
	if m.Overwrites.Unlock != nil {
		return m.Overwrites.Unlock(ctx, familyID, passphrase)
	}
	if m.BaseClient != nil {
		return m.BaseClient.Unlock(ctx, familyID, passphrase)
	}
	return nil, ErrNotMocked
}

func (m *MockClient) Mine(ctx context.Context) (MineResult, error) {
	if m.Overwrites.Mine != nil {
		return m.Overwrites.Mine(ctx)
	}
	if m.BaseClient != nil {
		return m.BaseClient.Mine(ctx)
	}
	return MineResult{}, ErrNotMocked
}

func (m *MockClient) Alert(ctx context.Context, message string, priority int) (string, error) {
	if m.Overwrites.Alert != nil {
		return m.Overwrites.Alert(ctx, message, priority)
	}
	if m.BaseClient != nil {
		return m.BaseClient.Alert(ctx, message, priority)
	}
	return "", ErrNotMocked
}

func (m *MockClient) SetPolicy(ctx context.Context, policyID string) error {
	if m.Overwrites.SetPolicy != nil {
		return m.Overwrites.SetPolicy(ctx, policyID)
	}
	if m.BaseClient != nil {
		return m.BaseClient.SetPolicy(ctx, policyID)
	}
	return ErrNotMocked
}

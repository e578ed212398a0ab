// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/paxdriver/KriSYS/internal/model"
	"github.com/paxdriver/KriSYS/internal/security"
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4096

// HTTPClient talks to a central ledger over HTTP.
type HTTPClient struct {
	cfg  Config
	http *http.Client
}

// *HTTPClient implements Client
var _ Client = (*HTTPClient)(nil)

// NewHTTPClient returns a client for cfg.BaseURL.
func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPClient{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

// Close releases idle connections.
func (c *HTTPClient) Close(ctx context.Context) error {
	c.http.CloseIdleConnections()
	return nil
}

// Target returns the base URL.
func (c *HTTPClient) Target() string { return c.cfg.BaseURL }

// do sends a JSON request and decodes a JSON response into out when the
// status is want.
func (c *HTTPClient) do(ctx context.Context, method, path string, in any, want int, out any, headers map[string]string) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.AdminToken != "" {
		req.Header.Set(security.AdminHeader, c.cfg.AdminToken)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(raw))
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	// An empty success body leaves out untouched.
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

type admitted struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
}

func (c *HTTPClient) Crisis(ctx context.Context) (CrisisInfo, error) {
	var out CrisisInfo
	err := c.do(ctx, http.MethodGet, "/crisis", nil, http.StatusOK, &out, nil)
	return out, err
}

func (c *HTTPClient) SubmitTransaction(ctx context.Context, s Submission, rateOverride bool) (string, error) {
	if s.Related == nil {
		s.Related = []string{}
	}
	var headers map[string]string
	if rateOverride {
		headers = map[string]string{RateOverrideHeader: "true"}
	}
	var out admitted
	err := c.do(ctx, http.MethodPost, "/transaction", s, http.StatusCreated, &out, headers)
	return out.TransactionID, err
}

func (c *HTTPClient) CheckIn(ctx context.Context, address, stationID string) (string, error) {
	in := map[string]string{"address": address, "station_id": stationID}
	var out admitted
	err := c.do(ctx, http.MethodPost, "/checkin", in, http.StatusCreated, &out, nil)
	return out.TransactionID, err
}

func (c *HTTPClient) Blockchain(ctx context.Context) ([]model.Block, error) {
	var out []model.Block
	err := c.do(ctx, http.MethodGet, "/blockchain", nil, http.StatusOK, &out, nil)
	return out, err
}

func (c *HTTPClient) AddressTransactions(ctx context.Context, address string) ([]model.Transaction, error) {
	var out []model.Transaction
	err := c.do(ctx, http.MethodGet, "/address/"+url.PathEscape(address), nil, http.StatusOK, &out, nil)
	return out, err
}

func (c *HTTPClient) CreateWallet(ctx context.Context, members int, passphrase string) (model.Wallet, error) {
	in := map[string]any{"num_members": members, "passphrase": passphrase}
	var out model.Wallet
	err := c.do(ctx, http.MethodPost, "/wallet", in, http.StatusCreated, &out, nil)
	return out, err
}

func (c *HTTPClient) GetWallet(ctx context.Context, familyID string) (model.Wallet, error) {
	var out model.Wallet
	err := c.do(ctx, http.MethodGet, "/wallet/"+url.PathEscape(familyID), nil, http.StatusOK, &out, nil)
	return out, err
}

func (c *HTTPClient) WalletTransactions(ctx context.Context, familyID string) ([]model.Transaction, error) {
	var out []model.Transaction
	err := c.do(ctx, http.MethodGet, "/wallet/"+url.PathEscape(familyID)+"/transactions", nil, http.StatusOK, &out, nil)
	return out, err
}

func (c *HTTPClient) WalletPublicKey(ctx context.Context, familyID string) (string, error) {
	var out struct {
		PublicKey string `json:"public_key"`
	}
	err := c.do(ctx, http.MethodGet, "/wallet/"+url.PathEscape(familyID)+"/public-key", nil, http.StatusOK, &out, nil)
	return out.PublicKey, err
}

func (c *HTTPClient) Unlock(ctx context.Context, familyID, passphrase string) (security.Secret, error) {
	in := map[string]string{"family_id": familyID, "passphrase": passphrase}
	var out struct {
		PrivateKey string `json:"private_key"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/unlock", in, http.StatusOK, &out, nil); err != nil {
		return nil, err
	}
	return security.FromString(out.PrivateKey), nil
}

func (c *HTTPClient) Mine(ctx context.Context) (MineResult, error) {
	var out MineResult
	err := c.do(ctx, http.MethodPost, "/admin/mine", nil, http.StatusOK, &out, nil)
	return out, err
}

func (c *HTTPClient) Alert(ctx context.Context, message string, priority int) (string, error) {
	in := map[string]any{"message": message, "priority": priority}
	var out admitted
	err := c.do(ctx, http.MethodPost, "/admin/alert", in, http.StatusCreated, &out, nil)
	return out.TransactionID, err
}

func (c *HTTPClient) SetPolicy(ctx context.Context, policyID string) error {
	return c.do(ctx, http.MethodPost, "/admin/policy", map[string]string{"policy_id": policyID}, http.StatusOK, nil, nil)
}

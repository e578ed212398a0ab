// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package mesh

import (
	"context"
	"errors"
	"time"

	"github.com/paxdriver/KriSYS/client"
	"github.com/paxdriver/KriSYS/internal/admission"
	"github.com/paxdriver/KriSYS/internal/ledger"
	"github.com/paxdriver/KriSYS/internal/model"
)

// SubmissionFor converts a queued item into a ledger submission.
func SubmissionFor(item QueuedItem) client.Submission {
	related := item.Related
	if related == nil {
		related = []string{}
	}
	return client.Submission{
		CreatedAt:      item.CreatedAt,
		StationAddress: item.StationAddress,
		MessageData:    item.MessageData,
		Related:        related,
		Kind:           item.Kind,
		Priority:       item.Priority,
		RelayHash:      item.RelayHash,
	}
}

// ClientForwarder submits items through a ledger API client with the
// rate-limit override set. The ledger only honors the override for admin
// callers, so the client needs the admin token.
type ClientForwarder struct {
	Client client.Client
}

// NewHTTPForwarder returns a forwarder posting to the ledger at baseURL.
// adminToken is the encoded X-Admin-Token value.
func NewHTTPForwarder(baseURL, adminToken string, timeout time.Duration) *ClientForwarder {
	if timeout <= 0 {
		timeout = DefaultForwardTimeout
	}
	return &ClientForwarder{Client: client.NewHTTPClient(client.Config{
		BaseURL:    baseURL,
		AdminToken: adminToken,
		Timeout:    timeout,
	})}
}

// Target returns the ledger URL.
func (f *ClientForwarder) Target() string { return f.Client.Target() }

// Forward submits item; any non-201 answer is an error except a duplicate,
// which means the ledger already holds the item.
func (f *ClientForwarder) Forward(ctx context.Context, item QueuedItem) error {
	_, err := f.Client.SubmitTransaction(ctx, SubmissionFor(item), true)
	if errors.Is(err, client.ErrDuplicate) {
		return nil
	}
	return err
}

// Admitter accepts transactions into a pending buffer.
type Admitter interface {
	Admit(tx model.Transaction, rateOverride bool) error
}

// PipelineForwarder admits items directly into a ledger running in the same
// process.
type PipelineForwarder struct {
	Admitter Admitter
	Now      func() time.Time
}

// Target names the in-process ledger.
func (f PipelineForwarder) Target() string { return "local" }

// Forward admits item with the rate-limit override.
func (f PipelineForwarder) Forward(ctx context.Context, item QueuedItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	tx := ledger.NewTransaction(item.CreatedAt, item.StationAddress, item.MessageData, item.Related, item.Kind, item.Priority, now())
	tx.RelayHash = item.RelayHash
	err := f.Admitter.Admit(tx, true)
	if errors.Is(err, admission.ErrDuplicateTransaction) {
		return nil
	}
	return err
}

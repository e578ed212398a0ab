// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

// Package admission admits transactions into the pending buffer under the
// active policy and seals that buffer into signed, persisted blocks.
package admission

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	clog "github.com/charmbracelet/log"

	"github.com/paxdriver/KriSYS/internal/ledger"
	"github.com/paxdriver/KriSYS/internal/logging"
	"github.com/paxdriver/KriSYS/internal/model"
	"github.com/paxdriver/KriSYS/internal/policy"
)

// BlockStore persists and loads blocks.
type BlockStore interface {
	SaveBlock(ctx context.Context, b model.Block) error
	LoadChain(ctx context.Context) ([]model.Block, error)
}

// TransactionLookup is implemented by stores that can report which of the
// given transaction ids are already stored.
type TransactionLookup interface {
	ExistingTransactions(ctx context.Context, ids []string) (map[string]bool, error)
}

// Signer signs a sealed block in place.
type Signer interface {
	SignBlock(b *model.Block) error
}

// Notifier is told about every block that became part of the chain.
type Notifier interface {
	BlockCommitted(b model.Block)
}

// Pipeline owns the pending buffer and the in-memory chain. One mutex guards
// both; readers take the read lock.
type Pipeline struct {
	mu      sync.RWMutex
	pending []model.Transaction
	chain   []model.Block
	// committed holds the id of every transaction in chain.
	committed map[string]struct{}

	policies  *policy.Engine
	store     BlockStore
	signer    Signer
	notifiers []Notifier
	now       func() time.Time
	log       *clog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }

// WithLogger sets the logger.
func WithLogger(l *clog.Logger) Option { return func(p *Pipeline) { p.log = logging.Component(l, "ledger") } }

// WithNotifier registers a block notifier.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) {
		if n != nil {
			p.notifiers = append(p.notifiers, n)
		}
	}
}

// New returns a pipeline with an empty chain. Call Bootstrap before use.
func New(policies *policy.Engine, store BlockStore, signer Signer, opts ...Option) *Pipeline {
	p := &Pipeline{
		policies: policies,
		store:    store,
		signer:   signer,
		now:      time.Now,
		log:      logging.Component(nil, "ledger"),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Bootstrap loads the stored chain. An empty store gets a genesis block
// built from meta, signed and persisted. The loaded chain is validated; an
// integrity failure is logged and returned alongside a usable pipeline so
// the operator can decide what to do.
func (p *Pipeline) Bootstrap(ctx context.Context, meta ledger.Metadata) error {
	chain, err := p.store.LoadChain(ctx)
	if err != nil {
		return &PersistenceError{Index: 0, Err: fmt.Errorf("load chain: %w", err)}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(chain) == 0 {
		g, err := ledger.NewGenesis(meta, model.UnixSeconds(p.now()))
		if err != nil {
			return err
		}
		if err := p.persist(ctx, &g); err != nil {
			return err
		}
		p.setChain([]model.Block{g})
		p.log.Info("created genesis block", "hash", g.Hash, "crisis", meta.CrisisID)
		p.notify(g)
		return nil
	}

	p.setChain(chain)
	p.log.Info("loaded chain", "blocks", len(chain), "tip", chain[len(chain)-1].String())
	if err := ledger.ValidateChain(chain); err != nil {
		p.log.Error("stored chain failed validation", "err", err)
		return err
	}
	return nil
}

// Admit validates tx under the active policy and appends it to the pending
// buffer. Checks run in order: policy, size, duplicate id, rate limit. The
// first failure is returned and nothing is changed. rateOverride skips the
// rate-limit check and is meant for trusted relay paths.
func (p *Pipeline) Admit(tx model.Transaction, rateOverride bool) error {
	pol := p.policies.Active()

	if err := policy.Validate(tx, pol, ledger.Size); err != nil {
		return err
	}
	size, err := ledger.Size(tx)
	if err != nil {
		return fmt.Errorf("measure transaction: %w", err)
	}
	if size > pol.Settings.SizeLimit {
		return &policy.ViolationError{Rule: policy.RuleSize, Detail: fmt.Sprintf("transaction exceeds size limit (%d/%d bytes)", size, pol.Settings.SizeLimit)}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.committed[tx.ID]; ok {
		return fmt.Errorf("%w: %s already in chain", ErrDuplicateTransaction, tx.ID)
	}
	for _, q := range p.pending {
		if q.ID == tx.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateTransaction, tx.ID)
		}
	}
	if !rateOverride {
		window := float64(pol.Settings.RateLimit)
		for _, q := range p.pending {
			if q.Origin == tx.Origin && math.Abs(tx.CreatedAt-q.CreatedAt) < window {
				return &RateLimitError{Origin: tx.Origin, Seconds: pol.Settings.RateLimit}
			}
		}
	}
	if tx.Related == nil {
		tx.Related = []string{}
	}
	p.pending = append(p.pending, tx)
	p.log.Debug("admitted transaction", "id", tx.ID, "kind", tx.Kind, "origin", tx.Origin, "override", rateOverride)
	return nil
}

// Mine seals the pending buffer into the next block, signs and persists it
// and appends it to the chain. On a persistence failure the block is
// discarded and its transactions return to the front of the buffer, so
// nothing admitted is lost and no unstored block becomes canonical.
// Transactions the store already holds are dropped instead of requeued.
func (p *Pipeline) Mine(ctx context.Context) (model.Block, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pending) == 0 {
		return model.Block{}, ErrEmptyPendingSet
	}
	if len(p.chain) == 0 {
		return model.Block{}, ErrNotBootstrapped
	}
	txs := p.pending
	p.pending = nil
	committed := false
	defer func() {
		// Covers error returns and panics from the store or signer.
		if !committed {
			p.pending = append(txs, p.pending...)
		}
	}()

	b, err := ledger.Next(p.chain[len(p.chain)-1], model.UnixSeconds(p.now()), txs)
	if err != nil {
		return model.Block{}, err
	}
	if err := p.persist(ctx, &b); err != nil {
		txs = p.dropStored(ctx, txs)
		p.log.Error("block persistence failed, transactions requeued", "index", b.Index, "requeued", len(txs), "err", err)
		return model.Block{}, err
	}
	committed = true
	p.chain = append(p.chain, b)
	p.index(b)
	p.log.Info("mined block", "block", b.String())
	p.notify(b)
	return b, nil
}

// dropStored removes transactions whose id the store already holds, so a
// single stored duplicate cannot block every later block.
func (p *Pipeline) dropStored(ctx context.Context, txs []model.Transaction) []model.Transaction {
	lookup, ok := p.store.(TransactionLookup)
	if !ok {
		return txs
	}
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	stored, err := lookup.ExistingTransactions(ctx, ids)
	if err != nil || len(stored) == 0 {
		return txs
	}
	kept := txs[:0:0]
	for _, tx := range txs {
		if stored[tx.ID] {
			p.log.Warn("dropping transaction already stored", "id", tx.ID, "origin", tx.Origin)
			continue
		}
		kept = append(kept, tx)
	}
	return kept
}

func (p *Pipeline) setChain(chain []model.Block) {
	p.chain = chain
	p.committed = make(map[string]struct{})
	for _, b := range chain {
		p.index(b)
	}
}

func (p *Pipeline) index(b model.Block) {
	for _, tx := range b.Transactions {
		p.committed[tx.ID] = struct{}{}
	}
}

// persist signs b if unsigned and writes it through the store. It does not
// touch the in-memory chain.
func (p *Pipeline) persist(ctx context.Context, b *model.Block) error {
	if b.Signature == "" && p.signer != nil {
		if err := p.signer.SignBlock(b); err != nil {
			return &PersistenceError{Index: b.Index, Err: fmt.Errorf("sign: %w", err)}
		}
	}
	if err := p.store.SaveBlock(ctx, *b); err != nil {
		return &PersistenceError{Index: b.Index, Err: err}
	}
	return nil
}

func (p *Pipeline) notify(b model.Block) {
	for _, n := range p.notifiers {
		n.BlockCommitted(b)
	}
}

// Chain returns a copy of the chain.
func (p *Pipeline) Chain() []model.Block {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]model.Block(nil), p.chain...)
}

// Tip returns the last block.
func (p *Pipeline) Tip() (model.Block, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.chain) == 0 {
		return model.Block{}, ErrNotBootstrapped
	}
	return p.chain[len(p.chain)-1], nil
}

// Genesis returns block 0.
func (p *Pipeline) Genesis() (model.Block, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.chain) == 0 {
		return model.Block{}, ErrNotBootstrapped
	}
	return p.chain[0], nil
}

// Metadata returns the deployment metadata carried by the genesis block.
func (p *Pipeline) Metadata() (ledger.Metadata, error) {
	g, err := p.Genesis()
	if err != nil {
		return ledger.Metadata{}, err
	}
	return ledger.ParseGenesis(g)
}

// Pending returns a copy of the pending buffer.
func (p *Pipeline) Pending() []model.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]model.Transaction(nil), p.pending...)
}

// PendingCount returns the number of pending transactions.
func (p *Pipeline) PendingCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.pending)
}

// TransactionsFor returns chain transactions that concern any of addrs.
func (p *Pipeline) TransactionsFor(addrs ...string) []model.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := []model.Transaction{}
	for _, b := range p.chain {
		for _, tx := range b.Transactions {
			for _, a := range addrs {
				if tx.Concerns(a) {
					out = append(out, tx)
					break
				}
			}
		}
	}
	return out
}

// Validate checks the in-memory chain.
func (p *Pipeline) Validate() error {
	return ledger.ValidateChain(p.Chain())
}

// BlockInterval returns the active policy's block interval.
func (p *Pipeline) BlockInterval() time.Duration {
	return p.policies.Active().Settings.BlockDuration()
}

// IsUserError reports whether err is a caller-correctable admission failure.
func IsUserError(err error) bool {
	return errors.Is(err, policy.ErrPolicyViolation) ||
		errors.Is(err, ErrDuplicateTransaction) ||
		errors.Is(err, ErrRateLimited)
}

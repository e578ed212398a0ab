// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	clog "github.com/charmbracelet/log"

	"github.com/paxdriver/KriSYS/internal/logging"
)

// DefaultBackoff is the pause after a failed mining cycle.
const DefaultBackoff = 5 * time.Second

// Miner periodically seals the pending buffer. Cycles are aligned to
// wall-clock multiples of the active policy's block interval.
type Miner struct {
	pipeline *Pipeline
	backoff  time.Duration
	now      func() time.Time
	log      *clog.Logger
	// OnCycle, when set, observes the outcome of every cycle.
	OnCycle func(err error)
}

// NewMiner returns a miner for p.
func NewMiner(p *Pipeline, logger *clog.Logger) *Miner {
	return &Miner{
		pipeline: p,
		backoff:  DefaultBackoff,
		now:      p.now,
		log:      logging.Component(logger, "miner"),
	}
}

// NextBoundary returns how long to wait from now until the next multiple of
// interval since the Unix epoch. A non-positive interval yields one second.
func NextBoundary(now time.Time, interval time.Duration) time.Duration {
	if interval <= 0 {
		return time.Second
	}
	elapsed := time.Duration(now.UnixNano()) % interval
	return interval - elapsed
}

// Run mines until ctx is done. Errors and panics inside a cycle are logged
// and followed by a short backoff; they never end the loop.
func (m *Miner) Run(ctx context.Context) {
	m.log.Info("miner started")
	for {
		wait := m.backoff
		err := m.cycle(ctx)
		if m.OnCycle != nil {
			m.OnCycle(err)
		}
		if err != nil {
			m.log.Error("mining cycle failed", "err", err, "retry_in", m.backoff)
		} else {
			wait = NextBoundary(m.now(), m.pipeline.BlockInterval())
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			m.log.Info("miner stopped")
			return
		case <-t.C:
		}
	}
}

// cycle mines once if there is anything pending.
func (m *Miner) cycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in mining cycle: %v", r)
		}
	}()
	if m.pipeline.PendingCount() == 0 {
		return nil
	}
	_, err = m.pipeline.Mine(ctx)
	if errors.Is(err, ErrEmptyPendingSet) {
		return nil
	}
	return err
}

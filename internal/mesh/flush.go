// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package mesh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Flush defaults.
const (
	DefaultFlushConcurrency = 4
	DefaultForwardTimeout   = 5 * time.Second
)

// ErrNoForwarder is returned by Flush on a station without a forwarder.
var ErrNoForwarder = errors.New("station has no forwarder configured")

// Forwarder pushes one queued item to the central ledger.
type Forwarder interface {
	Forward(ctx context.Context, item QueuedItem) error
}

// Describer is implemented by forwarders that can name their target.
type Describer interface {
	Target() string
}

// Flush forwards every pending item. Each item gets its own timeout and a
// failure never stops the others. Items that were accepted are pruned from
// the queue; failed ones go back to pending with their attempt count raised.
// Items are marked sending while in flight so an overlapping Flush skips
// them. The station lock is not held while forwarding.
func (s *Station) Flush(ctx context.Context) (FlushReport, error) {
	if s.forwarder == nil {
		return FlushReport{}, ErrNoForwarder
	}
	report := FlushReport{Status: "ok", Errors: []string{}}
	if d, ok := s.forwarder.(Describer); ok {
		report.CentralURL = d.Target()
	}

	s.mu.Lock()
	var pending []QueuedItem
	for i, q := range s.queued {
		if q.Status == StatusPending {
			s.queued[i].Status = StatusSending
			q.Related = append([]string(nil), q.Related...)
			pending = append(pending, q)
		}
	}
	s.mu.Unlock()

	if len(pending) == 0 {
		report.Message = "No pending messages to flush"
		return report, nil
	}

	results := make([]error, len(pending))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, item := range pending {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					results[i] = fmt.Errorf("panic: %v", r)
				}
			}()
			ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
			defer cancel()
			results[i] = s.forwarder.Forward(ictx, item)
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	for i, item := range pending {
		idx, ok := s.index[item.RelayHash]
		if results[i] == nil {
			report.Success++
			if ok {
				s.queued[idx].Status = StatusSent
			}
			s.sent[item.RelayHash] = struct{}{}
			continue
		}
		report.Failed++
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", item.RelayHash, results[i]))
		if ok {
			s.queued[idx].Status = StatusPending
			s.queued[idx].Attempts++
		}
	}
	kept := s.queued[:0]
	for _, q := range s.queued {
		if q.Status != StatusSent {
			kept = append(kept, q)
		}
	}
	s.queued = kept
	s.reindexLocked()
	s.mu.Unlock()

	report.Attempted = len(pending)
	s.log.Info("flushed station queue", "attempted", report.Attempted, "success", report.Success, "failed", report.Failed)
	if s.observer != nil {
		s.observer.Flushed(report)
	}
	return report, nil
}

// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package mesh

import (
	"math"
	"sync"
	"time"

	clog "github.com/charmbracelet/log"

	"github.com/paxdriver/KriSYS/internal/logging"
)

// PayloadVersion is the sync document version stations produce.
const PayloadVersion = 1

// Observer receives reconciler statistics.
type Observer interface {
	Dropped(reason string, n int)
	Flushed(r FlushReport)
}

// Station is the state of one relay station: queued items keyed by relay
// hash and confirmations keyed the same way.
type Station struct {
	mu        sync.Mutex
	id        string
	queued    []QueuedItem
	index     map[string]int
	confirmed map[string]Confirmation
	// sent remembers relay hashes pushed to the central ledger so a device
	// syncing again does not requeue them.
	sent map[string]struct{}

	forwarder   Forwarder
	concurrency int
	timeout     time.Duration
	observer    Observer
	now         func() time.Time
	log         *clog.Logger
}

// Option configures a Station.
type Option func(*Station)

// WithForwarder sets where Flush pushes queued items.
func WithForwarder(f Forwarder) Option { return func(s *Station) { s.forwarder = f } }

// WithObserver sets the statistics sink.
func WithObserver(o Observer) Option { return func(s *Station) { s.observer = o } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Station) { s.now = now } }

// WithLogger sets the logger.
func WithLogger(l *clog.Logger) Option {
	return func(s *Station) { s.log = logging.Component(l, "mesh") }
}

// WithFlushLimits sets the number of concurrent pushes and the per-item
// timeout. Non-positive values keep the defaults.
func WithFlushLimits(concurrency int, timeout time.Duration) Option {
	return func(s *Station) {
		if concurrency > 0 {
			s.concurrency = concurrency
		}
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// NewStation returns an empty station identified by id.
func NewStation(id string, opts ...Option) *Station {
	s := &Station{
		id:          id,
		index:       map[string]int{},
		confirmed:   map[string]Confirmation{},
		sent:        map[string]struct{}{},
		concurrency: DefaultFlushConcurrency,
		timeout:     DefaultForwardTimeout,
		now:         time.Now,
		log:         logging.Component(nil, "mesh"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ID returns the station id.
func (s *Station) ID() string { return s.id }

func (s *Station) knownLocked(rh string) bool {
	if _, ok := s.index[rh]; ok {
		return true
	}
	if _, ok := s.confirmed[rh]; ok {
		return true
	}
	_, ok := s.sent[rh]
	return ok
}

// Sync sanitizes an incoming sync document, merges it and returns the
// station's own document.
func (s *Station) Sync(body []byte) (Payload, DropStats) {
	raw := Decode(body)

	s.mu.Lock()
	clean := Sanitize(raw, s.knownLocked, s.now())
	s.mergeLocked(clean)
	out := s.exportLocked()
	s.mu.Unlock()

	if n := clean.Drops.Total(); n > 0 {
		s.log.Warn("dropped items from sync payload", "dropped", n, "reasons", clean.Drops.Reasons())
	}
	if s.observer != nil {
		for reason, n := range clean.Drops {
			s.observer.Dropped(reason, n)
		}
	}
	return out, clean.Drops
}

// Merge folds sanitized state into the station. Confirmations keep the
// earliest confirmedAt; queued items are inserted once per relay hash and
// never when the hash is already queued, confirmed or sent.
func (s *Station) Merge(in Sanitized) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeLocked(in)
}

func (s *Station) mergeLocked(in Sanitized) {
	order := in.ConfirmedOrder
	if len(order) != len(in.Confirmed) {
		order = make([]string, 0, len(in.Confirmed))
		for rh := range in.Confirmed {
			order = append(order, rh)
		}
	}
	for _, rh := range order {
		info := in.Confirmed[rh]
		existing, ok := s.confirmed[rh]
		if !ok {
			s.confirmed[rh] = info.clone()
			continue
		}
		have := math.Inf(1)
		if t, ok := existing.ConfirmedAt(); ok && t != 0 {
			have = t
		}
		incoming := have
		if t, ok := info.ConfirmedAt(); ok && t != 0 {
			incoming = t
		}
		if incoming < have {
			merged := existing.clone()
			for k, v := range info {
				merged[k] = v
			}
			s.confirmed[rh] = merged
		}
	}

	for _, item := range in.Queued {
		if item.RelayHash == "" || s.knownLocked(item.RelayHash) {
			continue
		}
		item.Related = append([]string(nil), item.Related...)
		s.index[item.RelayHash] = len(s.queued)
		s.queued = append(s.queued, item)
	}
}

// Export returns the station's sync document.
func (s *Station) Export() Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exportLocked()
}

func (s *Station) exportLocked() Payload {
	queued := make([]QueuedItem, len(s.queued))
	for i, q := range s.queued {
		q.Related = append([]string(nil), q.Related...)
		queued[i] = q
	}
	confirmed := make(map[string]Confirmation, len(s.confirmed))
	for k, v := range s.confirmed {
		confirmed[k] = v.clone()
	}
	return Payload{
		Version:     PayloadVersion,
		DeviceID:    s.id,
		GeneratedAt: s.now().UnixMilli(),
		Blocks:      []any{},
		Queued:      queued,
		Confirmed:   confirmed,
	}
}

// QueuedCount returns the number of queued items.
func (s *Station) QueuedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queued)
}

// reindexLocked rebuilds the relay hash index after the queue changed.
func (s *Station) reindexLocked() {
	s.index = make(map[string]int, len(s.queued))
	for i, q := range s.queued {
		s.index[q.RelayHash] = i
	}
}

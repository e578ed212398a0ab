// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

// Package policy holds the named admission policies of a deployment and the
// rules used to validate a transaction against one of them.
package policy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	clog "github.com/charmbracelet/log"

	"github.com/paxdriver/KriSYS/internal/logging"
	"github.com/paxdriver/KriSYS/internal/model"
)

// DefaultID is the id of the built-in fallback policy.
const DefaultID = "default"

// ErrUnknownPolicy is returned by Activate when the id is not registered.
var ErrUnknownPolicy = errors.New("unknown policy")

// ErrPolicyExists is returned by Create when an explicit id is already taken.
// Published policies are immutable; new settings need a new id.
var ErrPolicyExists = errors.New("policy already exists")

// Settings are the admission parameters of a policy. Intervals are seconds.
type Settings struct {
	BlockInterval  int            `json:"block_interval" yaml:"block_interval"`
	SizeLimit      int            `json:"size_limit" yaml:"size_limit"`
	RateLimit      int            `json:"rate_limit" yaml:"rate_limit"`
	PriorityLevels map[string]int `json:"priority_levels" yaml:"priority_levels"`
	Types          []string       `json:"types" yaml:"types"`
}

// Overrides is a partial Settings. Nil or empty fields inherit the default.
type Overrides struct {
	BlockInterval  *int           `json:"block_interval,omitempty" yaml:"block_interval,omitempty"`
	SizeLimit      *int           `json:"size_limit,omitempty" yaml:"size_limit,omitempty"`
	RateLimit      *int           `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
	PriorityLevels map[string]int `json:"priority_levels,omitempty" yaml:"priority_levels,omitempty"`
	Types          []string       `json:"types,omitempty" yaml:"types,omitempty"`
}

// Policy is a named, immutable admission configuration.
type Policy struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Organization string   `json:"organization"`
	Contact      string   `json:"contact"`
	Description  string   `json:"description"`
	CreatedAt    float64  `json:"created_at"`
	Settings     Settings `json:"policy"`
}

// HasType reports whether kind is whitelisted.
func (s Settings) HasType(kind string) bool {
	for _, t := range s.Types {
		if t == kind {
			return true
		}
	}
	return false
}

// HasPriority reports whether p is one of the declared priority values.
func (s Settings) HasPriority(p int) bool {
	for _, v := range s.PriorityLevels {
		if v == p {
			return true
		}
	}
	return false
}

// BlockDuration returns the mining interval as a time.Duration.
func (s Settings) BlockDuration() time.Duration {
	return time.Duration(s.BlockInterval) * time.Second
}

// DefaultSettings returns a fresh copy of the required-field defaults.
func DefaultSettings() Settings {
	return Settings{
		BlockInterval: 180,
		SizeLimit:     5120,
		RateLimit:     180,
		PriorityLevels: map[string]int{
			"medical":  1,
			"food":     2,
			"shelter":  3,
			"personal": 4,
		},
		Types: []string{"check_in", "message", "alert"},
	}
}

// Default returns the built-in fallback policy.
func Default() Policy {
	return Policy{
		ID:           DefaultID,
		Name:         "Default Crisis Policy",
		Organization: "KriSYS Foundation",
		Contact:      "support@krisys.org",
		Description:  "Standard policy for crisis response",
		Settings:     DefaultSettings(),
	}
}

// Merge lays o over base. Maps and slices are copied so the result shares no
// storage with either argument.
func Merge(base Settings, o Overrides) Settings {
	out := Settings{
		BlockInterval:  base.BlockInterval,
		SizeLimit:      base.SizeLimit,
		RateLimit:      base.RateLimit,
		PriorityLevels: copyLevels(base.PriorityLevels),
		Types:          append([]string(nil), base.Types...),
	}
	if o.BlockInterval != nil {
		out.BlockInterval = *o.BlockInterval
	}
	if o.SizeLimit != nil {
		out.SizeLimit = *o.SizeLimit
	}
	if o.RateLimit != nil {
		out.RateLimit = *o.RateLimit
	}
	if len(o.PriorityLevels) > 0 {
		out.PriorityLevels = copyLevels(o.PriorityLevels)
	}
	if len(o.Types) > 0 {
		out.Types = append([]string(nil), o.Types...)
	}
	return out
}

func copyLevels(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (p Policy) clone() Policy {
	p.Settings = Merge(p.Settings, Overrides{})
	return p
}

// Engine is the policy registry. Exactly one policy is active at a time.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]Policy
	order    []string
	active   string
	now      func() time.Time
	log      *clog.Logger
}

// NewEngine returns a registry holding only the default policy, active.
func NewEngine(logger *clog.Logger) *Engine {
	e := &Engine{
		policies: make(map[string]Policy),
		active:   DefaultID,
		now:      time.Now,
		log:      logging.Component(logger, "policy"),
	}
	def := Default()
	def.CreatedAt = model.UnixSeconds(e.now())
	e.policies[DefaultID] = def
	e.order = append(e.order, DefaultID)
	return e
}

// Slug lowercases name and replaces spaces with underscores.
func Slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// Create registers a new policy whose settings are o merged over the
// defaults. When id is empty a unique one is derived from the name
// (name, name_1, name_2, ...).
func (e *Engine) Create(name, org, contact, description string, o Overrides, id string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if id == "" {
		base := Slug(name)
		if base == "" {
			base = "policy"
		}
		id = base
		for n := 1; ; n++ {
			if _, taken := e.policies[id]; !taken {
				break
			}
			id = fmt.Sprintf("%s_%d", base, n)
		}
	} else if _, taken := e.policies[id]; taken {
		return "", fmt.Errorf("%w: %s", ErrPolicyExists, id)
	}

	p := Policy{
		ID:           id,
		Name:         name,
		Organization: org,
		Contact:      contact,
		Description:  description,
		CreatedAt:    model.UnixSeconds(e.now()),
		Settings:     Merge(DefaultSettings(), o),
	}
	e.policies[id] = p
	e.order = append(e.order, id)
	e.log.Info("policy created", "id", id, "name", name)
	return id, nil
}

// Get returns the policy with the given id, or the active one when id is
// empty. An unknown id yields the default policy; the returned ID is then
// "default" so callers can tell the fallback happened.
func (e *Engine) Get(id string) Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if id == "" {
		id = e.active
	}
	if p, ok := e.policies[id]; ok {
		return p.clone()
	}
	e.log.Warn("unknown policy requested, using default", "requested", id)
	return e.policies[DefaultID].clone()
}

// Lookup returns the policy with the given id without falling back.
func (e *Engine) Lookup(id string) (Policy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.policies[id]
	if !ok {
		return Policy{}, false
	}
	return p.clone(), true
}

// Active returns the currently active policy.
func (e *Engine) Active() Policy { return e.Get("") }

// ActiveID returns the id of the active policy.
func (e *Engine) ActiveID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}

// Activate switches the active policy. Transactions already admitted are
// not re-checked.
func (e *Engine) Activate(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.policies[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPolicy, id)
	}
	prev := e.active
	e.active = id
	e.log.Info("active policy switched", "from", prev, "to", id)
	return nil
}

// List returns every registered policy in creation order.
func (e *Engine) List() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Policy, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.policies[id].clone())
	}
	return out
}

// PriorityLabels returns the labels of s sorted by rank.
func (s Settings) PriorityLabels() []string {
	labels := make([]string, 0, len(s.PriorityLevels))
	for k := range s.PriorityLevels {
		labels = append(labels, k)
	}
	sort.Slice(labels, func(i, j int) bool {
		ri, rj := s.PriorityLevels[labels[i]], s.PriorityLevels[labels[j]]
		if ri != rj {
			return ri < rj
		}
		return labels[i] < labels[j]
	})
	return labels
}

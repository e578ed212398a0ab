// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

// Package mesh reconciles the state of offline relay stations. Stations
// collect transactions from disconnected devices, exchange them with other
// devices and push them to the central ledger once it is reachable.
package mesh

import (
	"encoding/json"
	"sort"
)

// Item statuses.
const (
	StatusPending = "pending"
	StatusSending = "sending"
	StatusSent    = "sent"
)

// QueuedItem is a transaction waiting at a station for the central ledger.
// It is keyed by RelayHash.
type QueuedItem struct {
	RelayHash      string   `json:"relay_hash"`
	CreatedAt      float64  `json:"timestamp_created"`
	StationAddress string   `json:"station_address"`
	MessageData    string   `json:"message_data"`
	Related        []string `json:"related_addresses"`
	Kind           string   `json:"type_field"`
	Priority       int      `json:"priority_level"`
	OriginDevice   string   `json:"origin_device"`
	Status         string   `json:"status"`
	Attempts       float64  `json:"attempts"`
	QueuedAt       float64  `json:"queuedAt"`
}

// Confirmation is what a device knows about a relayed transaction that made
// it into the ledger. Only confirmedAt and timestampPosted are interpreted;
// everything else passes through.
type Confirmation map[string]any

// ConfirmedAt returns the confirmation time in milliseconds, if present.
func (c Confirmation) ConfirmedAt() (float64, bool) {
	return numberField(c, "confirmedAt")
}

func (c Confirmation) clone() Confirmation {
	out := make(Confirmation, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// numberField reads a JSON number without accepting strings or booleans.
func numberField(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Payload is the sync document devices and stations exchange. Only Queued
// and Confirmed are interpreted here.
type Payload struct {
	Version     int                     `json:"version"`
	DeviceID    string                  `json:"deviceId"`
	CrisisID    *string                 `json:"crisisId"`
	GeneratedAt int64                   `json:"generatedAt"`
	ChainTip    any                     `json:"chain_tip"`
	Blocks      []any                   `json:"blocks"`
	Queued      []QueuedItem            `json:"queued"`
	Confirmed   map[string]Confirmation `json:"confirmed"`
}

// Drop reasons.
const (
	DropShape     = "shape"
	DropDuplicate = "duplicate"
	DropQuota     = "origin_quota"
	DropOverflow  = "payload_cap"
	DropTimestamp = "timestamp"
	DropPriority  = "priority"
)

// DropStats counts discarded items by reason.
type DropStats map[string]int

func (d DropStats) add(reason string, n int) {
	if n > 0 {
		d[reason] += n
	}
}

// Total returns the number of dropped items.
func (d DropStats) Total() int {
	n := 0
	for _, v := range d {
		n += v
	}
	return n
}

// Reasons returns the reasons with drops, sorted.
func (d DropStats) Reasons() []string {
	out := make([]string, 0, len(d))
	for k := range d {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// FlushReport summarizes one push to the central ledger.
type FlushReport struct {
	Status     string   `json:"status"`
	Message    string   `json:"message,omitempty"`
	CentralURL string   `json:"central_url,omitempty"`
	Attempted  int      `json:"attempted"`
	Success    int      `json:"success"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors"`
}

// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package mesh

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Limits applied to every incoming payload.
const (
	MaxQueuedPerPayload    = 100
	MaxConfirmedPerPayload = 500
	MaxPerOrigin           = 50
	MaxMessageLength       = 8192
	MaxAddressesPerTx      = 16
	MaxAddressLength       = 128
	MaxStationAddress      = 128
	MaxTypeField           = 32
	MinPriority            = 1
	MaxPriority            = 5

	unknownOrigin = "unknown"
	futureSlack   = 24 * time.Hour
)

// Sanitized is the trusted part of an incoming payload.
type Sanitized struct {
	Queued    []QueuedItem
	Confirmed map[string]Confirmation
	// ConfirmedOrder is the order confirmations appeared in.
	ConfirmedOrder []string
	Drops          DropStats
}

// Decode parses a sync document. Anything that is not a JSON object decodes
// to an empty payload; numbers are kept exact.
func Decode(body []byte) map[string]any {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

// Sanitize extracts the queued and confirmed sections of an untrusted
// payload. known reports relay hashes the local station already holds; those
// are skipped. Items that fail a check are counted in Drops and never
// returned.
func Sanitize(payload map[string]any, known func(string) bool, now time.Time) Sanitized {
	out := Sanitized{Confirmed: map[string]Confirmation{}, Drops: DropStats{}}
	if known == nil {
		known = func(string) bool { return false }
	}
	nowMs := float64(now.UnixMilli())
	maxMs := nowMs + float64(futureSlack.Milliseconds())

	rawQueued, _ := payload["queued"].([]any)
	perOrigin := map[string]int{}
	for i, raw := range rawQueued {
		if len(out.Queued) >= MaxQueuedPerPayload {
			out.Drops.add(DropOverflow, len(rawQueued)-i)
			break
		}
		msg, ok := raw.(map[string]any)
		if !ok {
			out.Drops.add(DropShape, 1)
			continue
		}
		item, reason := sanitizeItem(msg, known, perOrigin, nowMs, maxMs)
		if reason != "" {
			out.Drops.add(reason, 1)
			continue
		}
		out.Queued = append(out.Queued, item)
	}

	rawConfirmed, ok := payload["confirmed"].(map[string]any)
	if !ok {
		return out
	}
	// Map order is random; sort so the cap drops a stable subset.
	keys := sortedKeys(rawConfirmed)
	for i, rh := range keys {
		if i >= MaxConfirmedPerPayload {
			out.Drops.add(DropOverflow, len(keys)-i)
			break
		}
		info, ok := rawConfirmed[rh].(map[string]any)
		if strings.TrimSpace(rh) == "" || !ok {
			out.Drops.add(DropShape, 1)
			continue
		}
		c := Confirmation(info).clone()
		if ca, ok := numberField(c, "confirmedAt"); ok && (ca < 0 || ca > maxMs) {
			delete(c, "confirmedAt")
		}
		// timestampPosted is in seconds.
		if tp, ok := numberField(c, "timestampPosted"); ok && (tp < 0 || tp > maxMs/1000) {
			delete(c, "timestampPosted")
		}
		out.Confirmed[rh] = c
		out.ConfirmedOrder = append(out.ConfirmedOrder, rh)
	}
	return out
}

func sanitizeItem(msg map[string]any, known func(string) bool, perOrigin map[string]int, nowMs, maxMs float64) (QueuedItem, string) {
	rh, ok := msg["relay_hash"].(string)
	if !ok || strings.TrimSpace(rh) == "" {
		return QueuedItem{}, DropShape
	}
	if known(rh) {
		return QueuedItem{}, DropDuplicate
	}

	// The quota counts every attempt from an origin, including ones that
	// fail later checks.
	origin, _ := msg["origin_device"].(string)
	if origin == "" {
		origin = unknownOrigin
	}
	perOrigin[origin]++
	if perOrigin[origin] > MaxPerOrigin {
		return QueuedItem{}, DropQuota
	}

	ts, ok := toFloat(msg["timestamp_created"])
	if !ok {
		return QueuedItem{}, DropShape
	}
	if tsMs := math.Trunc(ts * 1000); tsMs < 0 || tsMs > maxMs {
		return QueuedItem{}, DropTimestamp
	}
	prio, ok := toInt(msg["priority_level"])
	if !ok {
		return QueuedItem{}, DropShape
	}
	if prio < MinPriority || prio > MaxPriority {
		return QueuedItem{}, DropPriority
	}
	station, ok := msg["station_address"].(string)
	if !ok {
		return QueuedItem{}, DropShape
	}
	kind, ok := msg["type_field"].(string)
	if !ok {
		return QueuedItem{}, DropShape
	}
	body, ok := msg["message_data"].(string)
	if !ok {
		return QueuedItem{}, DropShape
	}

	related := []string{}
	if list, ok := msg["related_addresses"].([]any); ok {
		for _, a := range list {
			s, ok := a.(string)
			if !ok || s == "" {
				continue
			}
			if len(related) >= MaxAddressesPerTx {
				break
			}
			related = append(related, clamp(s, MaxAddressLength))
		}
	}

	status, _ := msg["status"].(string)
	if status == "" || status == StatusSending {
		// sending only means in flight at the station that exported it.
		status = StatusPending
	}
	attempts, ok := numberField(msg, "attempts")
	if !ok {
		attempts = 0
	}
	queuedAt, ok := numberField(msg, "queuedAt")
	if !ok {
		queuedAt = nowMs
	}

	return QueuedItem{
		RelayHash:      rh,
		CreatedAt:      ts,
		StationAddress: clamp(station, MaxStationAddress),
		MessageData:    clamp(body, MaxMessageLength),
		Related:        related,
		Kind:           clamp(kind, MaxTypeField),
		Priority:       prio,
		OriginDevice:   origin,
		Status:         status,
		Attempts:       attempts,
		QueuedAt:       queuedAt,
	}, ""
}

// clamp truncates s to max characters.
func clamp(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}

func toFloat(v any) (float64, bool) {
	var f float64
	var err error
	switch x := v.(type) {
	case json.Number:
		f, err = x.Float64()
	case float64:
		f = x
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		return n, err == nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return int(n), true
		}
	}
	f, ok := toFloat(v)
	if !ok || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

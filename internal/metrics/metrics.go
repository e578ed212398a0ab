// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

// Package metrics exposes ledger, mesh and HTTP statistics to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paxdriver/KriSYS/internal/admission"
	"github.com/paxdriver/KriSYS/internal/mesh"
	"github.com/paxdriver/KriSYS/internal/model"
	"github.com/paxdriver/KriSYS/internal/policy"
)

// Metrics holds the collectors. It implements admission.Notifier and
// mesh.Observer.
type Metrics struct {
	gatherer prometheus.Gatherer

	admissions   *prometheus.CounterVec
	blocks       prometheus.Counter
	chainHeight  prometheus.Gauge
	blockTxs     prometheus.Histogram
	meshDropped  *prometheus.CounterVec
	flushItems   *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	reg          prometheus.Registerer
}

// New creates and registers the collectors on reg. A nil reg uses a fresh
// registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		gatherer: reg,
		reg:      reg,
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "krisys_admissions_total",
			Help: "Transactions submitted for admission by result.",
		}, []string{"result"}),
		blocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "krisys_blocks_committed_total",
			Help: "Blocks that became part of the chain.",
		}),
		chainHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "krisys_chain_height",
			Help: "Number of blocks in the chain.",
		}),
		blockTxs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "krisys_block_transactions",
			Help:    "Transactions per committed block.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		meshDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "krisys_mesh_dropped_total",
			Help: "Items dropped from untrusted sync payloads by reason.",
		}, []string{"reason"}),
		flushItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "krisys_mesh_flush_items_total",
			Help: "Station items pushed to the central ledger by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	reg.MustRegister(
		m.admissions,
		m.blocks,
		m.chainHeight,
		m.blockTxs,
		m.meshDropped,
		m.flushItems,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// TrackPending exports the pending buffer size read from fn at scrape time.
func (m *Metrics) TrackPending(fn func() int) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "krisys_pending_transactions",
		Help: "Transactions admitted but not yet mined.",
	}, func() float64 { return float64(fn()) }))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// BlockCommitted implements admission.Notifier.
func (m *Metrics) BlockCommitted(b model.Block) {
	m.blocks.Inc()
	m.chainHeight.Set(float64(b.Index + 1))
	m.blockTxs.Observe(float64(len(b.Transactions)))
}

// ObserveAdmission counts the outcome of one admission attempt.
func (m *Metrics) ObserveAdmission(err error) {
	m.admissions.WithLabelValues(AdmissionResult(err)).Inc()
}

// AdmissionResult maps an Admit error to a label value.
func AdmissionResult(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, policy.ErrPolicyViolation):
		return "policy_violation"
	case errors.Is(err, admission.ErrDuplicateTransaction):
		return "duplicate"
	case errors.Is(err, admission.ErrRateLimited):
		return "rate_limited"
	default:
		return "error"
	}
}

// Dropped implements mesh.Observer.
func (m *Metrics) Dropped(reason string, n int) {
	m.meshDropped.WithLabelValues(reason).Add(float64(n))
}

// Flushed implements mesh.Observer.
func (m *Metrics) Flushed(r mesh.FlushReport) {
	m.flushItems.WithLabelValues("success").Add(float64(r.Success))
	m.flushItems.WithLabelValues("failed").Add(float64(r.Failed))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler records request counts and durations for route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
	})
}

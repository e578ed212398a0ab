// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package api

import (
	"errors"
	"io"
	"net/http"

	clog "github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"github.com/paxdriver/KriSYS/internal/logging"
	"github.com/paxdriver/KriSYS/internal/mesh"
	"github.com/paxdriver/KriSYS/internal/metrics"
)

// Station serves a relay station.
type Station struct {
	Station *mesh.Station
	Metrics *metrics.Metrics
	Log     *clog.Logger
}

// Router returns the relay station routes.
func (s *Station) Router() *mux.Router {
	if s.Log == nil {
		s.Log = logging.Component(nil, "api")
	}
	r := mux.NewRouter()
	if s.Metrics != nil {
		r.Use(instrument(s.Metrics))
		r.Handle("/metrics", s.Metrics.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/mesh/sync", s.sync).Methods(http.MethodPost)
	r.HandleFunc("/mesh/state", s.state).Methods(http.MethodGet)
	r.HandleFunc("/station/flush", s.flush).Methods(http.MethodPost)
	return r
}

func (s *Station) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"role": "station", "status": "ok", "station_id": s.Station.ID(), "queued": s.Station.QueuedCount()})
}

// sync never fails on a bad payload; whatever cannot be used is dropped.
func (s *Station) sync(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		body = nil
	}
	out, _ := s.Station.Sync(body)
	writeJSON(w, http.StatusOK, out)
}

func (s *Station) state(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Station.Export())
}

func (s *Station) flush(w http.ResponseWriter, r *http.Request) {
	report, err := s.Station.Flush(r.Context())
	if errors.Is(err, mesh.ErrNoForwarder) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		s.Log.Error("flush failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Flush failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

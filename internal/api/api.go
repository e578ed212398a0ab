// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

// Package api is the HTTP surface of the central ledger and of relay
// stations.
package api

import (
	"encoding/json"
	"io"
	"net/http"

	clog "github.com/charmbracelet/log"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/paxdriver/KriSYS/internal/logging"
	"github.com/paxdriver/KriSYS/internal/metrics"
	"github.com/paxdriver/KriSYS/internal/security"
)

// maxBody bounds request bodies. Sync payloads are the largest documents.
const maxBody = 8 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func readJSON(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v)
}

// requireAdmin rejects requests without a valid admin token. Missing,
// malformed and wrong tokens get the same response.
func requireAdmin(admin *security.AdminToken, log *clog.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if admin == nil || admin.Verify(r.Header.Get(security.AdminHeader)) != nil {
			log.Warn("rejected admin request", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// instrument records per-route metrics using the route template as label.
func instrument(m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			m.WrapHandler(route, next).ServeHTTP(w, r)
		})
	}
}

// Wrap adds access logging and CORS around a router.
func Wrap(h http.Handler, logger *clog.Logger, origins []string) http.Handler {
	l := logging.Or(logger)
	out := l.StandardLog(clog.StandardLogOptions{ForceLevel: clog.InfoLevel}).Writer()
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", security.AdminHeader, RateOverride}),
	)
	return handlers.LoggingHandler(out, cors(h))
}

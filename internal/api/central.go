// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	clog "github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"github.com/paxdriver/KriSYS/client"
	"github.com/paxdriver/KriSYS/internal/admission"
	"github.com/paxdriver/KriSYS/internal/custody"
	"github.com/paxdriver/KriSYS/internal/ledger"
	"github.com/paxdriver/KriSYS/internal/logging"
	"github.com/paxdriver/KriSYS/internal/metrics"
	"github.com/paxdriver/KriSYS/internal/model"
	"github.com/paxdriver/KriSYS/internal/policy"
	"github.com/paxdriver/KriSYS/internal/security"
	"github.com/paxdriver/KriSYS/internal/wallet"
)

// Fixed origins and defaults of server-built transactions.
const (
	AlertOrigin      = "ADMIN_ALERT"
	DefaultStationID = "STATION_001"
	RateOverride     = client.RateOverrideHeader
)

// Central serves the canonical ledger.
type Central struct {
	Pipeline *admission.Pipeline
	Policies *policy.Engine
	Wallets  *wallet.Manager
	Admin    *security.AdminToken
	Metrics  *metrics.Metrics
	Log      *clog.Logger
	Now      func() time.Time
}

func (c *Central) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Router returns the central ledger routes.
func (c *Central) Router() *mux.Router {
	if c.Log == nil {
		c.Log = logging.Component(nil, "api")
	}
	r := mux.NewRouter()
	if c.Metrics != nil {
		r.Use(instrument(c.Metrics))
		r.Handle("/metrics", c.Metrics.Handler()).Methods(http.MethodGet)
	}
	admin := func(h http.HandlerFunc) http.HandlerFunc { return requireAdmin(c.Admin, c.Log, h) }

	r.HandleFunc("/health", c.health).Methods(http.MethodGet)
	r.HandleFunc("/crisis", c.crisis).Methods(http.MethodGet)
	r.HandleFunc("/wallet", c.createWallet).Methods(http.MethodPost)
	r.HandleFunc("/wallet/{id}", c.getWallet).Methods(http.MethodGet)
	r.HandleFunc("/wallet/{id}", admin(c.deleteWallet)).Methods(http.MethodDelete)
	r.HandleFunc("/wallet/{id}/transactions", c.walletTransactions).Methods(http.MethodGet)
	r.HandleFunc("/wallet/{id}/public-key", c.publicKey).Methods(http.MethodGet)
	r.HandleFunc("/wallet/{id}/members", c.addMember).Methods(http.MethodPost)
	r.HandleFunc("/wallet/{id}/devices", c.registerDevice).Methods(http.MethodPost)
	r.HandleFunc("/transaction", c.submit).Methods(http.MethodPost)
	r.HandleFunc("/blockchain", c.blockchain).Methods(http.MethodGet)
	r.HandleFunc("/blockchain/bundle", c.bundle).Methods(http.MethodGet)
	r.HandleFunc("/address/{addr}", c.address).Methods(http.MethodGet)
	r.HandleFunc("/policy", c.activePolicy).Methods(http.MethodGet)
	r.HandleFunc("/policies", c.listPolicies).Methods(http.MethodGet)
	r.HandleFunc("/checkin", c.checkIn).Methods(http.MethodPost)
	r.HandleFunc("/auth/unlock", c.unlock).Methods(http.MethodPost)
	r.HandleFunc("/admin/mine", admin(c.mine)).Methods(http.MethodPost)
	r.HandleFunc("/admin/alert", admin(c.alert)).Methods(http.MethodPost)
	r.HandleFunc("/admin/policy", admin(c.setPolicy)).Methods(http.MethodPost)
	return r
}

func (c *Central) health(w http.ResponseWriter, r *http.Request) {
	if err := c.Pipeline.Validate(); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"role": "central", "status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"role": "central", "status": "ok", "pending": c.Pipeline.PendingCount()})
}

func (c *Central) crisis(w http.ResponseWriter, r *http.Request) {
	meta, err := c.Pipeline.Metadata()
	if err != nil {
		c.Log.Error("read genesis metadata", "err", err)
		writeError(w, http.StatusInternalServerError, "crisis metadata unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"crisis_id":        meta.CrisisID,
		"name":             meta.Name,
		"organization":     meta.Organization,
		"contact":          meta.Contact,
		"description":      meta.Description,
		"created_at":       meta.CreatedAt,
		"block_public_key": meta.BlockPublicKey,
	})
}

// admit runs tx through the pipeline and writes the outcome.
func (c *Central) admit(w http.ResponseWriter, tx model.Transaction, override bool, extra map[string]any) {
	err := c.Pipeline.Admit(tx, override)
	if c.Metrics != nil {
		c.Metrics.ObserveAdmission(err)
	}
	switch {
	case err == nil:
		body := map[string]any{"status": "success", "transaction_id": tx.ID}
		for k, v := range extra {
			body[k] = v
		}
		writeJSON(w, http.StatusCreated, body)
	case errors.Is(err, policy.ErrPolicyViolation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, admission.ErrDuplicateTransaction):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, admission.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		c.Log.Error("admission failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

type submission struct {
	CreatedAt   *float64 `json:"timestamp_created"`
	Station     *string  `json:"station_address"`
	Message     *string  `json:"message_data"`
	Related     []string `json:"related_addresses"`
	Kind        *string  `json:"type_field"`
	Priority    *int     `json:"priority_level"`
	RelayHash   string   `json:"relay_hash"`
	PostedID    string   `json:"posted_id"`
	RecipientID string   `json:"recipient_id"`
}

func (s submission) missing() string {
	switch {
	case s.CreatedAt == nil:
		return "timestamp_created"
	case s.Station == nil:
		return "station_address"
	case s.Message == nil:
		return "message_data"
	case s.Related == nil:
		return "related_addresses"
	case s.Kind == nil:
		return "type_field"
	case s.Priority == nil:
		return "priority_level"
	}
	return ""
}

func (c *Central) submit(w http.ResponseWriter, r *http.Request) {
	var s submission
	if err := readJSON(r, &s); err != nil {
		writeError(w, http.StatusBadRequest, "No data provided")
		return
	}
	if f := s.missing(); f != "" {
		writeError(w, http.StatusBadRequest, "Missing field: "+f)
		return
	}

	// Only authenticated relays may skip the rate limit.
	override := false
	if r.Header.Get(RateOverride) == "true" {
		if c.Admin != nil && c.Admin.Verify(r.Header.Get(security.AdminHeader)) == nil {
			override = true
		} else {
			c.Log.Warn("ignoring rate override from unauthenticated caller", "remote", r.RemoteAddr)
		}
	}

	body := *s.Message
	if *s.Kind == "message" && s.RecipientID != "" {
		enc, err := c.Wallets.EncryptFor(r.Context(), s.RecipientID, []byte(body))
		if errors.Is(err, wallet.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Recipient not found")
			return
		}
		if err != nil {
			c.Log.Error("encrypt to recipient", "recipient", s.RecipientID, "err", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		body = enc
	}

	tx := ledger.NewTransaction(*s.CreatedAt, *s.Station, body, s.Related, *s.Kind, *s.Priority, c.now())
	tx.RelayHash = s.RelayHash
	tx.RelayedID = s.PostedID
	c.admit(w, tx, override, nil)
}

func (c *Central) checkIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address   string `json:"address"`
		StationID string `json:"station_id"`
	}
	if err := readJSON(r, &req); err != nil || req.Address == "" {
		writeError(w, http.StatusBadRequest, "Missing address")
		return
	}
	if req.StationID == "" {
		req.StationID = DefaultStationID
	}
	now := c.now()
	tx := ledger.NewTransaction(model.UnixSeconds(now), req.StationID, "Check-in", []string{req.Address}, "check_in", 1, now)
	c.admit(w, tx, false, map[string]any{
		"message": fmt.Sprintf("Checked in %s at station %s", req.Address, req.StationID),
	})
}

func (c *Central) alert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message  *string `json:"message"`
		Priority *int    `json:"priority"`
	}
	if err := readJSON(r, &req); err != nil || req.Message == nil || req.Priority == nil {
		writeError(w, http.StatusBadRequest, "Missing field: message or priority")
		return
	}
	now := c.now()
	tx := ledger.NewTransaction(model.UnixSeconds(now), AlertOrigin, *req.Message, nil, "alert", *req.Priority, now)
	c.admit(w, tx, false, nil)
}

func (c *Central) mine(w http.ResponseWriter, r *http.Request) {
	b, err := c.Pipeline.Mine(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"message": fmt.Sprintf("Block #%d mined", b.Index),
			"hash":    b.Hash,
		})
	case errors.Is(err, admission.ErrEmptyPendingSet):
		writeError(w, http.StatusBadRequest, "No transactions to mine")
	default:
		c.Log.Error("manual mine failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Mining failed")
	}
}

func (c *Central) blockchain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.Pipeline.Chain())
}

func (c *Central) bundle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/zstd")
	w.Header().Set("Content-Disposition", `attachment; filename="krisys-chain.json.zst"`)
	if err := ledger.WriteBundle(w, c.Pipeline.Chain()); err != nil {
		c.Log.Error("write chain bundle", "err", err)
	}
}

func (c *Central) address(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.Pipeline.TransactionsFor(mux.Vars(r)["addr"]))
}

func (c *Central) activePolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.Policies.Active())
}

func (c *Central) listPolicies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"active": c.Policies.ActiveID(), "policies": c.Policies.List()})
}

func (c *Central) setPolicy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PolicyID string `json:"policy_id"`
	}
	if err := readJSON(r, &req); err != nil || c.Policies.Activate(req.PolicyID) != nil {
		writeError(w, http.StatusBadRequest, "Invalid Policy ID provided")
		return
	}
	c.Log.Info("active policy switched", "policy", req.PolicyID)
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "policy": req.PolicyID})
}

func (c *Central) createWallet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NumMembers *int   `json:"num_members"`
		Passphrase string `json:"passphrase"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "No data provided")
		return
	}
	n := 1
	if req.NumMembers != nil {
		n = *req.NumMembers
	}
	if req.Passphrase == "" {
		writeError(w, http.StatusBadRequest, "Passphrase must be at least 1 characters")
		return
	}
	if n < wallet.MinMembers || n > wallet.MaxMembers {
		writeError(w, http.StatusBadRequest, "Number of members must be between 1-20")
		return
	}
	crisisID := ""
	if meta, err := c.Pipeline.Metadata(); err == nil {
		crisisID = meta.CrisisID
	}
	wl, err := c.Wallets.Create(r.Context(), crisisID, wallet.DefaultNames(n), []byte(req.Passphrase))
	if err != nil {
		c.Log.Error("wallet creation failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Wallet creation failed")
		return
	}
	writeJSON(w, http.StatusCreated, wl)
}

func (c *Central) loadWallet(w http.ResponseWriter, r *http.Request) (model.Wallet, bool) {
	wl, err := c.Wallets.Get(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, wallet.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Wallet not found")
		return wl, false
	}
	if err != nil {
		c.Log.Error("read wallet", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return wl, false
	}
	return wl, true
}

func (c *Central) getWallet(w http.ResponseWriter, r *http.Request) {
	wl, ok := c.loadWallet(w, r)
	if !ok {
		return
	}
	active := c.Policies.Active()
	writeJSON(w, http.StatusOK, map[string]any{
		"family_id": wl.ID,
		"crisis_id": wl.CrisisID,
		"members":   wl.Members,
		"devices":   wl.Devices,
		"crisis":    map[string]string{"id": active.ID, "name": active.Name},
	})
}

func (c *Central) deleteWallet(w http.ResponseWriter, r *http.Request) {
	err := c.Wallets.Delete(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, wallet.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Wallet not found")
		return
	}
	if err != nil {
		c.Log.Error("delete wallet", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (c *Central) walletTransactions(w http.ResponseWriter, r *http.Request) {
	wl, ok := c.loadWallet(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.Pipeline.TransactionsFor(wl.Addresses()...))
}

func (c *Central) publicKey(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	pub, err := c.Wallets.PublicKey(r.Context(), id)
	if errors.Is(err, wallet.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Public key not found")
		return
	}
	if err != nil {
		c.Log.Error("read public key", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"family_id": id, "public_key": pub})
}

func (c *Central) addMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := readJSON(r, &req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "Missing name")
		return
	}
	m, err := c.Wallets.AddMember(r.Context(), mux.Vars(r)["id"], req.Name)
	if errors.Is(err, wallet.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Wallet not found")
		return
	}
	if err != nil {
		c.Log.Error("add member", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (c *Central) registerDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID  string `json:"device_id"`
		PublicKey string `json:"public_key"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "No data provided")
		return
	}
	d, err := c.Wallets.RegisterDevice(r.Context(), mux.Vars(r)["id"], req.DeviceID, req.PublicKey)
	if errors.Is(err, wallet.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Wallet not found")
		return
	}
	if err != nil {
		c.Log.Error("register device", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (c *Central) unlock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FamilyID   string `json:"family_id"`
		Passphrase string `json:"passphrase"`
	}
	if err := readJSON(r, &req); err != nil || req.FamilyID == "" {
		writeError(w, http.StatusBadRequest, "Missing family_id")
		return
	}
	pass := []byte(req.Passphrase)
	key, err := c.Wallets.Unlock(r.Context(), req.FamilyID, pass)
	security.ZeroBytes(pass)
	if err != nil {
		if !errors.Is(err, custody.ErrAuthenticationFailed) {
			c.Log.Error("unlock wallet", "err", err)
		}
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	defer key.Zero()
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "unlocked",
		"private_key": key.Reveal(),
		"message":     "Wallet unlocked - private key delivered for client-side decryption",
	})
}

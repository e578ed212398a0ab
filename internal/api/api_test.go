package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/paxdriver/KriSYS/internal/api"
	"github.com/paxdriver/KriSYS/internal/custody"
	"github.com/paxdriver/KriSYS/internal/ledger"
	"github.com/paxdriver/KriSYS/internal/mesh"
	"github.com/paxdriver/KriSYS/internal/model"
	"github.com/paxdriver/KriSYS/internal/node"
	"github.com/paxdriver/KriSYS/internal/security"
	"github.com/paxdriver/KriSYS/internal/testutil"
)

type harness struct {
	node  *node.Central
	srv   *httptest.Server
	admin string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testutil.CentralConfig(t)
	cfg.Database.Dsn = testutil.MemoryDSN(t, "api")

	n, err := node.OpenCentral(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("OpenCentral: %v", err)
	}
	t.Cleanup(func() { _ = n.Close() })
	srv := httptest.NewServer(n.API().Router())
	t.Cleanup(srv.Close)

	raw, err := os.ReadFile(cfg.Admin.TokenFile)
	if err != nil {
		t.Fatalf("read admin token: %v", err)
	}
	return &harness{node: n, srv: srv, admin: security.Encode(raw)}
}

func (h *harness) do(t *testing.T, method, path string, body any, headers map[string]string) (int, map[string]any, []byte) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, h.srv.URL+path, rdr)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	var obj map[string]any
	_ = json.Unmarshal(buf.Bytes(), &obj)
	return resp.StatusCode, obj, buf.Bytes()
}

func (h *harness) adminHeaders() map[string]string {
	return map[string]string{security.AdminHeader: h.admin}
}

func TestCrisisMatchesMasterKey(t *testing.T) {
	h := newHarness(t)
	code, body, _ := h.do(t, http.MethodGet, "/crisis", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	pub, _ := h.node.Master.PublicKey()
	if body["block_public_key"] != pub || body["crisis_id"] != "Hurricane_Bobo" {
		t.Fatalf("crisis = %v", body)
	}
	genesis, _ := h.node.Pipeline.Genesis()
	if genesis.Transactions[0].Kind != ledger.MetadataKind || !custody.VerifyBlock(genesis, pub) {
		t.Fatalf("genesis not a signed metadata block")
	}
}

func TestCheckInRateLimitAndMine(t *testing.T) {
	h := newHarness(t)
	checkin := map[string]any{"address": "fam123-01", "station_id": "station_1"}
	if code, body, _ := h.do(t, http.MethodPost, "/checkin", checkin, nil); code != http.StatusCreated || body["transaction_id"] == "" {
		t.Fatalf("checkin = %d %v", code, body)
	}
	checkin["address"] = "fam123-02"
	if code, _, _ := h.do(t, http.MethodPost, "/checkin", checkin, nil); code != http.StatusTooManyRequests {
		t.Fatalf("second checkin = %d, want 429", code)
	}

	if code, _, _ := h.do(t, http.MethodPost, "/admin/mine", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("mine without token = %d", code)
	}
	if code, _, _ := h.do(t, http.MethodPost, "/admin/mine", nil, map[string]string{security.AdminHeader: "bm9wZQ=="}); code != http.StatusUnauthorized {
		t.Fatalf("mine with wrong token = %d", code)
	}
	tip, _ := h.node.Pipeline.Tip()
	code, body, _ := h.do(t, http.MethodPost, "/admin/mine", nil, h.adminHeaders())
	if code != http.StatusOK || body["message"] != "Block #1 mined" {
		t.Fatalf("mine = %d %v", code, body)
	}
	if code, _, _ := h.do(t, http.MethodPost, "/admin/mine", nil, h.adminHeaders()); code != http.StatusBadRequest {
		t.Fatalf("empty mine = %d", code)
	}

	_, _, raw := h.do(t, http.MethodGet, "/blockchain", nil, nil)
	var chain []model.Block
	if err := json.Unmarshal(raw, &chain); err != nil || len(chain) != 2 {
		t.Fatalf("chain = %d blocks, %v", len(chain), err)
	}
	if chain[1].PreviousHash != tip.Hash || !ledger.IsValid(chain) {
		t.Fatalf("mined block does not extend the tip")
	}
	_, _, raw = h.do(t, http.MethodGet, "/address/fam123-01", nil, nil)
	var txs []model.Transaction
	_ = json.Unmarshal(raw, &txs)
	if len(txs) != 1 || txs[0].Kind != "check_in" {
		t.Fatalf("address txs = %v", txs)
	}

	stored, err := h.node.Store.LoadChain(context.Background())
	if err != nil || len(stored) != 2 {
		t.Fatalf("stored chain = %d, %v", len(stored), err)
	}
}

func TestRateOverrideRequiresAdmin(t *testing.T) {
	h := newHarness(t)
	tx := map[string]any{
		"timestamp_created": 1_700_000_000.0,
		"station_address":   "relay_7",
		"message_data":      "ok",
		"related_addresses": []string{"x"},
		"type_field":        "check_in",
		"priority_level":    2,
	}
	if code, body, _ := h.do(t, http.MethodPost, "/transaction", tx, nil); code != http.StatusCreated {
		t.Fatalf("first = %d %v", code, body)
	}
	tx["timestamp_created"] = 1_700_000_001.0
	override := map[string]string{"X-Dev-Rate-Override": "true"}
	if code, _, _ := h.do(t, http.MethodPost, "/transaction", tx, override); code != http.StatusTooManyRequests {
		t.Fatalf("unauthenticated override honored: %d", code)
	}
	override[security.AdminHeader] = h.admin
	if code, _, _ := h.do(t, http.MethodPost, "/transaction", tx, override); code != http.StatusCreated {
		t.Fatalf("admin override rejected: %d", code)
	}
	if code, _, _ := h.do(t, http.MethodPost, "/transaction", tx, override); code != http.StatusConflict {
		t.Fatalf("duplicate = %d", code)
	}
	delete(tx, "priority_level")
	if code, body, _ := h.do(t, http.MethodPost, "/transaction", tx, nil); code != http.StatusBadRequest || !strings.Contains(body["error"].(string), "priority_level") {
		t.Fatalf("missing field = %d %v", code, body)
	}
	tx["priority_level"] = 1
	tx["type_field"] = "gossip"
	tx["station_address"] = "relay_8"
	if code, _, _ := h.do(t, http.MethodPost, "/transaction", tx, nil); code != http.StatusBadRequest {
		t.Fatalf("policy violation = %d", code)
	}
}

func TestWalletLifecycleAndPrivateMessage(t *testing.T) {
	h := newHarness(t)
	if code, _, _ := h.do(t, http.MethodPost, "/wallet", map[string]any{"num_members": 21, "passphrase": "p"}, nil); code != http.StatusBadRequest {
		t.Fatalf("21 members = %d", code)
	}
	if code, _, _ := h.do(t, http.MethodPost, "/wallet", map[string]any{"num_members": 2}, nil); code != http.StatusBadRequest {
		t.Fatalf("no passphrase = %d", code)
	}
	code, body, _ := h.do(t, http.MethodPost, "/wallet", map[string]any{"num_members": 2, "passphrase": "blue door"}, nil)
	if code != http.StatusCreated {
		t.Fatalf("create = %d %v", code, body)
	}
	id := body["family_id"].(string)
	members := body["members"].([]any)
	addr := members[0].(map[string]any)["address"].(string)

	code, body, _ = h.do(t, http.MethodGet, "/wallet/"+id, nil, nil)
	if code != http.StatusOK || body["crisis"].(map[string]any)["id"] != "Hurricane_Bobo" {
		t.Fatalf("get = %d %v", code, body)
	}
	if code, _, _ := h.do(t, http.MethodGet, "/wallet/unknown", nil, nil); code != http.StatusNotFound {
		t.Fatalf("unknown wallet = %d", code)
	}
	code, body, _ = h.do(t, http.MethodGet, "/wallet/"+id+"/public-key", nil, nil)
	if code != http.StatusOK || !strings.Contains(body["public_key"].(string), "KRISYS PUBLIC KEY") {
		t.Fatalf("public key = %d %v", code, body)
	}

	msg := map[string]any{
		"timestamp_created": 1_700_000_000.0,
		"station_address":   "sender",
		"message_data":      "we are at the library",
		"related_addresses": []string{addr},
		"type_field":        "message",
		"priority_level":    5,
		"recipient_id":      id,
	}
	if code, body, _ := h.do(t, http.MethodPost, "/transaction", msg, nil); code != http.StatusCreated {
		t.Fatalf("message = %d %v", code, body)
	}
	if _, err := h.node.Pipeline.Mine(context.Background()); err != nil {
		t.Fatalf("Mine: %v", err)
	}
	_, _, raw := h.do(t, http.MethodGet, "/wallet/"+id+"/transactions", nil, nil)
	var txs []model.Transaction
	_ = json.Unmarshal(raw, &txs)
	if len(txs) != 1 || strings.Contains(txs[0].Payload, "library") {
		t.Fatalf("stored message not encrypted: %v", txs)
	}

	code, body, _ = h.do(t, http.MethodPost, "/auth/unlock", map[string]any{"family_id": id, "passphrase": "blue door"}, nil)
	if code != http.StatusOK || body["status"] != "unlocked" {
		t.Fatalf("unlock = %d %v", code, body)
	}
	var plain []byte
	err := custody.UseExported([]byte(body["private_key"].(string)), func(u custody.UnlockedKey) error {
		var derr error
		plain, derr = u.Decrypt(txs[0].Payload)
		return derr
	})
	if err != nil || string(plain) != "we are at the library" {
		t.Fatalf("client decrypt = %q, %v", plain, err)
	}

	_, wrong, wrongRaw := h.do(t, http.MethodPost, "/auth/unlock", map[string]any{"family_id": id, "passphrase": "red door"}, nil)
	_, _, missingRaw := h.do(t, http.MethodPost, "/auth/unlock", map[string]any{"family_id": "nobody", "passphrase": "blue door"}, nil)
	if wrong["error"] == nil || !bytes.Equal(wrongRaw, missingRaw) {
		t.Fatalf("unlock failures differ: %s vs %s", wrongRaw, missingRaw)
	}

	if code, _, _ := h.do(t, http.MethodDelete, "/wallet/"+id, nil, h.adminHeaders()); code != http.StatusOK {
		t.Fatalf("delete = %d", code)
	}
	if code, _, _ := h.do(t, http.MethodGet, "/wallet/"+id+"/public-key", nil, nil); code != http.StatusNotFound {
		t.Fatalf("public key after delete = %d", code)
	}
}

func TestAdminPolicyAndAlert(t *testing.T) {
	h := newHarness(t)
	if code, _, _ := h.do(t, http.MethodPost, "/admin/policy", map[string]any{"policy_id": "nope"}, h.adminHeaders()); code != http.StatusBadRequest {
		t.Fatalf("bad policy = %d", code)
	}
	if code, _, _ := h.do(t, http.MethodPost, "/admin/policy", map[string]any{"policy_id": "default"}, nil); code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated switch = %d", code)
	}
	if code, _, _ := h.do(t, http.MethodPost, "/admin/policy", map[string]any{"policy_id": "default"}, h.adminHeaders()); code != http.StatusOK {
		t.Fatalf("switch = %d", code)
	}
	if _, body, _ := h.do(t, http.MethodGet, "/policy", nil, nil); body["id"] != "default" {
		t.Fatalf("active policy = %v", body)
	}
	code, body, _ := h.do(t, http.MethodPost, "/admin/alert", map[string]any{"message": "storm surge", "priority": 1}, h.adminHeaders())
	if code != http.StatusCreated {
		t.Fatalf("alert = %d %v", code, body)
	}
	pending := h.node.Pipeline.Pending()
	if len(pending) != 1 || pending[0].Origin != api.AlertOrigin || pending[0].Kind != "alert" {
		t.Fatalf("pending = %v", pending)
	}
}

func TestStationFlushIntoCentral(t *testing.T) {
	h := newHarness(t)
	st := mesh.NewStation("station_test",
		mesh.WithForwarder(mesh.NewHTTPForwarder(h.srv.URL, h.admin, time.Second)))
	stationSrv := httptest.NewServer((&api.Station{Station: st}).Router())
	defer stationSrv.Close()

	now := float64(time.Now().Unix())
	var queued []any
	for i, rh := range []string{"rh-a", "rh-b", "rh-c"} {
		queued = append(queued, map[string]any{
			"relay_hash":        rh,
			"timestamp_created": now - float64(10*i),
			"station_address":   "offline_shelter",
			"message_data":      "checked in offline",
			"related_addresses": []any{"fam-9"},
			"type_field":        "check_in",
			"priority_level":    1,
			"origin_device":     "phone-9",
		})
	}
	payload, _ := json.Marshal(map[string]any{"version": 1, "queued": queued, "confirmed": map[string]any{}})
	resp, err := http.Post(stationSrv.URL+"/mesh/sync", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	var synced mesh.Payload
	_ = json.NewDecoder(resp.Body).Decode(&synced)
	resp.Body.Close()
	if len(synced.Queued) != 3 {
		t.Fatalf("station queued %d", len(synced.Queued))
	}

	resp, err = http.Post(stationSrv.URL+"/station/flush", "application/json", nil)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	var report mesh.FlushReport
	_ = json.NewDecoder(resp.Body).Decode(&report)
	resp.Body.Close()
	if report.Attempted != 3 || report.Success != 3 || report.CentralURL != h.srv.URL {
		t.Fatalf("report = %+v", report)
	}
	if h.node.Pipeline.PendingCount() != 3 || st.QueuedCount() != 0 {
		t.Fatalf("central pending = %d, station queued = %d", h.node.Pipeline.PendingCount(), st.QueuedCount())
	}
	for _, tx := range h.node.Pipeline.Pending() {
		if !strings.HasPrefix(tx.RelayHash, "rh-") {
			t.Fatalf("relay hash lost: %+v", tx)
		}
	}
}

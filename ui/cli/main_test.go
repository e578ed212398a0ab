package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paxdriver/KriSYS/internal/config"
	"github.com/paxdriver/KriSYS/internal/custody"
	"github.com/paxdriver/KriSYS/internal/model"
	"github.com/paxdriver/KriSYS/internal/node"
	"github.com/paxdriver/KriSYS/internal/testutil"
)

// executeCommand runs a fresh root command and returns what it printed.
func executeCommand(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	if stdin != nil {
		root.SetIn(stdin)
	}
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestWalletCreateUnlockDelete(t *testing.T) {
	testutil.Isolate(t)
	out, err := executeCommand(t, strings.NewReader("harbor lights\n"), "wallet", "create", "--members", "3")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var w model.Wallet
	if err := json.Unmarshal([]byte(out), &w); err != nil {
		t.Fatalf("decode wallet %q: %v", out, err)
	}
	if len(w.Members) != 3 || w.CrisisID != "Hurricane_Bobo" {
		t.Fatalf("wallet = %+v", w)
	}

	key, err := executeCommand(t, strings.NewReader("harbor lights\n"), "wallet", "unlock", w.ID)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := custody.UseExported([]byte(key), func(u custody.UnlockedKey) error { return nil }); err != nil {
		t.Fatalf("exported key unusable: %v", err)
	}
	if _, err := executeCommand(t, strings.NewReader("wrong\n"), "wallet", "unlock", w.ID); err == nil {
		t.Fatalf("wrong passphrase accepted")
	}

	if _, err := executeCommand(t, nil, "wallet", "delete", w.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := executeCommand(t, nil, "wallet", "delete", w.ID); err == nil {
		t.Fatalf("second delete succeeded")
	}
}

func TestChainVerifyAndExport(t *testing.T) {
	dir := testutil.Isolate(t)
	cfg := testutil.CentralConfig(t)
	c, err := node.OpenCentral(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("OpenCentral: %v", err)
	}
	_ = c.Close()

	dsn := "--database.dsn=" + cfg.Database.Dsn
	out, err := executeCommand(t, nil, "chain", "verify", dsn)
	if err != nil || !strings.Contains(out, "chain ok: 1 blocks") {
		t.Fatalf("verify = %q, %v", out, err)
	}

	bundle := filepath.Join(dir, "chain.zst")
	if _, err := executeCommand(t, nil, "chain", "export", bundle, dsn); err != nil {
		t.Fatalf("export: %v", err)
	}
	out, err = executeCommand(t, nil, "chain", "verify", "--file", bundle)
	if err != nil || !strings.Contains(out, "chain ok") {
		t.Fatalf("verify bundle = %q, %v", out, err)
	}
}

func TestPolicyListAndShow(t *testing.T) {
	testutil.Isolate(t)
	out, err := executeCommand(t, nil, "policy", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "*  Hurricane_Bobo") || !strings.Contains(out, "default") {
		t.Fatalf("list output:\n%s", out)
	}
	out, err = executeCommand(t, nil, "policy", "show", "default")
	if err != nil || !strings.Contains(out, "id: default") {
		t.Fatalf("show = %q, %v", out, err)
	}
	if _, err := executeCommand(t, nil, "policy", "show", "nope"); err == nil {
		t.Fatalf("unknown policy shown")
	}
}

func TestDBMaintainSQLite(t *testing.T) {
	dir := testutil.Isolate(t)
	out, err := executeCommand(t, nil, "db-maintain", "--database.dsn", filepath.Join(dir, "m.db"))
	if err != nil || !strings.Contains(out, "Maintenance completed successfully") {
		t.Fatalf("db-maintain = %q, %v", out, err)
	}
}

func TestFirstRunWritesConfig(t *testing.T) {
	dir := testutil.Isolate(t)
	if _, err := executeCommand(t, nil, "policy", "list"); err != nil {
		t.Fatalf("policy list: %v", err)
	}
	path, err := config.GetConfigPath(false)
	if err != nil {
		t.Fatalf("GetConfigPath: %v", err)
	}
	if !strings.HasPrefix(path, dir) {
		t.Fatalf("config path %s escaped the test dir", path)
	}
	if _, err := executeCommand(t, nil, "policy", "list", "--config", path); err != nil {
		t.Fatalf("explicit config: %v", err)
	}
}

func TestDebugRedactsStationToken(t *testing.T) {
	testutil.Isolate(t)
	t.Setenv("KRISYS_STATION_ADMIN_TOKEN", "c2VjcmV0")
	out, err := executeCommand(t, nil, "debug")
	if err != nil {
		t.Fatalf("debug: %v", err)
	}
	if strings.Contains(out, "c2VjcmV0") || !strings.Contains(out, "KRISYS_STATION_ADMIN_TOKEN="+redacted) {
		t.Fatalf("token leaked or missing:\n%s", out)
	}
}

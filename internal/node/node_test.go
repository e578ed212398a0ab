package node

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/paxdriver/KriSYS/internal/config"
	"github.com/paxdriver/KriSYS/internal/ledger"
	"github.com/paxdriver/KriSYS/internal/logging"
	"github.com/paxdriver/KriSYS/internal/model"
	"github.com/paxdriver/KriSYS/internal/testutil"
)

func TestOpenCentralReloadsChain(t *testing.T) {
	cfg := testutil.CentralConfig(t)
	ctx := context.Background()

	c, err := OpenCentral(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	genesis, _ := c.Pipeline.Genesis()
	now := float64(time.Now().Unix())
	tx := ledger.NewTransaction(now, "station_1", "Check-in", []string{"fam-1"}, "check_in", 1, time.Now())
	if err := c.Pipeline.Admit(tx, false); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	mined, err := c.Pipeline.Mine(ctx)
	if err != nil {
		t.Fatalf("Mine: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	c2, err := OpenCentral(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer c2.Close()
	if c2.IntegrityErr != nil {
		t.Fatalf("integrity: %v", c2.IntegrityErr)
	}
	chain := c2.Pipeline.Chain()
	if len(chain) != 2 || chain[0].Hash != genesis.Hash || chain[1].Hash != mined.Hash {
		t.Fatalf("reloaded chain = %v", chain)
	}
	got := c2.Pipeline.TransactionsFor("fam-1")
	if len(got) != 1 || got[0].ID != tx.ID {
		t.Fatalf("transactions after reload = %v", got)
	}
}

func TestOpenCentralActivatesConfiguredPolicy(t *testing.T) {
	cfg := testutil.CentralConfig(t)
	cfg.Policy.Active = "default"
	c, err := OpenCentral(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()
	meta, err := c.Pipeline.Metadata()
	if err != nil || meta.CrisisID != "default" {
		t.Fatalf("metadata = %+v, %v", meta, err)
	}

	cfg.Policy.Active = "missing"
	cfg.Database.Dsn = filepath.Join(t.TempDir(), "other.db")
	if _, err := OpenCentral(context.Background(), cfg, nil); err == nil {
		t.Fatalf("unknown active policy accepted")
	}
}

func TestOpenCentralReportsTamperedChain(t *testing.T) {
	cfg := testutil.CentralConfig(t)
	ctx := context.Background()
	c, err := OpenCentral(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	tip, _ := c.Pipeline.Tip()
	forged := model.Block{Index: tip.Index + 1, Timestamp: tip.Timestamp + 1, PreviousHash: "not-the-tip", Hash: "bogus"}
	if err := c.Store.SaveBlock(ctx, forged); err != nil {
		t.Fatalf("SaveBlock: %v", err)
	}
	_ = c.Close()

	c2, err := OpenCentral(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c2.Close()
	if c2.IntegrityErr == nil {
		t.Fatalf("tampered chain not reported")
	}
}

func TestOpenStationDefaults(t *testing.T) {
	var cfg config.Config
	cfg.Station.CentralURL = "http://localhost:5000"
	cfg.Station.ForwardTimeout = time.Second
	s := OpenStation(cfg, nil)
	if !strings.HasPrefix(s.Station.ID(), "station-") || len(s.Station.ID()) != len("station-")+8 {
		t.Fatalf("generated id = %q", s.Station.ID())
	}
	cfg.Station.ID = "station_7"
	if got := OpenStation(cfg, nil).Station.ID(); got != "station_7" {
		t.Fatalf("configured id = %q", got)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, "127.0.0.1:0", nil, logging.Component(nil, "test")) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not stop")
	}
}

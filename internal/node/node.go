// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

// Package node assembles a central ledger or a relay station from the
// configuration and runs it until its context ends.
package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	clog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/paxdriver/KriSYS/internal/admission"
	"github.com/paxdriver/KriSYS/internal/api"
	"github.com/paxdriver/KriSYS/internal/config"
	"github.com/paxdriver/KriSYS/internal/custody"
	"github.com/paxdriver/KriSYS/internal/db"
	"github.com/paxdriver/KriSYS/internal/ledger"
	"github.com/paxdriver/KriSYS/internal/logging"
	"github.com/paxdriver/KriSYS/internal/mesh"
	"github.com/paxdriver/KriSYS/internal/metrics"
	"github.com/paxdriver/KriSYS/internal/policy"
	"github.com/paxdriver/KriSYS/internal/publish"
	"github.com/paxdriver/KriSYS/internal/security"
	"github.com/paxdriver/KriSYS/internal/wallet"
)

const shutdownGrace = 10 * time.Second

// Central is a running central ledger and everything it owns.
type Central struct {
	Config    config.Config
	Store     *db.BunStore
	Master    *custody.MasterKey
	Policies  *policy.Engine
	Pipeline  *admission.Pipeline
	Miner     *admission.Miner
	Wallets   *wallet.Manager
	Admin     *security.AdminToken
	Metrics   *metrics.Metrics
	Publisher *publish.BlockPublisher
	// IntegrityErr is set when the stored chain failed validation at boot.
	IntegrityErr error

	log *clog.Logger
}

// OpenCentral opens storage and keys, loads policies and the chain, and
// creates the genesis block on first start. A chain that fails validation
// is reported in IntegrityErr; the node still starts so an operator can
// inspect it.
func OpenCentral(ctx context.Context, cfg config.Config, logger *clog.Logger) (*Central, error) {
	log := logging.Component(logger, "node")
	c := &Central{Config: cfg, log: log}

	store, err := db.NewStoreFromDSN(cfg.Database.Type, cfg.Database.Dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	c.Store = store
	ok := false
	defer func() {
		if !ok {
			_ = store.Close()
		}
	}()

	c.Master = custody.NewMasterKey(cfg.Keys.Dir, logger)
	if created, err := c.Master.Ensure(); err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	} else if created {
		log.Info("generated master key pair", "dir", cfg.Keys.Dir)
	}
	masterPub, err := c.Master.PublicKey()
	if err != nil {
		return nil, err
	}

	admin, created, err := security.LoadOrCreateAdminToken(cfg.Admin.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("admin token: %w", err)
	}
	if created {
		log.Info("generated admin token", "file", cfg.Admin.TokenFile)
	}
	c.Admin = admin

	c.Policies = policy.NewEngine(logger)
	if _, err := policy.Bootstrap(c.Policies, cfg.Policy.File); err != nil {
		return nil, fmt.Errorf("load policies: %w", err)
	}
	if cfg.Policy.Active != "" {
		if err := c.Policies.Activate(cfg.Policy.Active); err != nil {
			return nil, err
		}
	}

	c.Metrics = metrics.New(nil)
	opts := []admission.Option{admission.WithLogger(logger), admission.WithNotifier(c.Metrics)}
	if cfg.Kafka.Enabled {
		c.Publisher = publish.NewBlockPublisher(publish.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), logger)
		opts = append(opts, admission.WithNotifier(c.Publisher))
	}
	c.Pipeline = admission.New(c.Policies, store, custody.NewBlockSigner(c.Master), opts...)
	c.Metrics.TrackPending(c.Pipeline.PendingCount)

	active := c.Policies.Active()
	meta := ledger.Metadata{
		CrisisID:       active.ID,
		Name:           active.Name,
		Organization:   active.Organization,
		Contact:        active.Contact,
		Description:    active.Description,
		CreatedAt:      active.CreatedAt,
		BlockPublicKey: masterPub,
	}
	if err := c.Pipeline.Bootstrap(ctx, meta); err != nil {
		if !errors.Is(err, ledger.ErrChainIntegrity) {
			return nil, err
		}
		c.IntegrityErr = err
	}
	if got, err := c.Pipeline.Metadata(); err == nil && got.BlockPublicKey != masterPub {
		log.Warn("genesis block key does not match the master key on disk", "crisis", got.CrisisID)
	}

	escrow, err := custody.NewEscrow(c.Master, nil, logger)
	if err != nil {
		return nil, err
	}
	c.Wallets = wallet.NewManager(store, escrow, logger)
	c.Miner = admission.NewMiner(c.Pipeline, logger)

	ok = true
	return c, nil
}

// API returns the central HTTP handlers.
func (c *Central) API() *api.Central {
	return &api.Central{
		Pipeline: c.Pipeline,
		Policies: c.Policies,
		Wallets:  c.Wallets,
		Admin:    c.Admin,
		Metrics:  c.Metrics,
		Log:      logging.Component(c.log, "api"),
	}
}

// Run serves HTTP and mines until ctx ends.
func (c *Central) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.Miner.Run(ctx)
		return nil
	})
	if c.Publisher != nil {
		g.Go(func() error { return c.Publisher.Run(ctx) })
	}
	g.Go(func() error {
		return serve(ctx, c.Config.HTTP.Addr, api.Wrap(c.API().Router(), c.log, nil), c.log)
	})
	return g.Wait()
}

// Close releases storage.
func (c *Central) Close() error { return c.Store.Close() }

// Station is a running relay station.
type Station struct {
	Config  config.Config
	Station *mesh.Station
	Metrics *metrics.Metrics
	log     *clog.Logger
}

// OpenStation builds a relay station that forwards to the configured
// central ledger.
func OpenStation(cfg config.Config, logger *clog.Logger) *Station {
	id := cfg.Station.ID
	if id == "" {
		id = "station-" + uuid.NewString()[:8]
	}
	m := metrics.New(nil)
	fwd := mesh.NewHTTPForwarder(cfg.Station.CentralURL, cfg.Station.AdminToken, cfg.Station.ForwardTimeout)
	st := mesh.NewStation(id,
		mesh.WithForwarder(fwd),
		mesh.WithObserver(m),
		mesh.WithLogger(logger),
		mesh.WithFlushLimits(0, cfg.Station.ForwardTimeout),
	)
	return &Station{Config: cfg, Station: st, Metrics: m, log: logging.Component(logger, "node")}
}

// Run serves the station API until ctx ends.
func (s *Station) Run(ctx context.Context) error {
	h := (&api.Station{Station: s.Station, Metrics: s.Metrics, Log: logging.Component(s.log, "api")}).Router()
	s.log.Info("relay station ready", "id", s.Station.ID(), "central", s.Config.Station.CentralURL)
	return serve(ctx, s.Config.Station.Listen, api.Wrap(h, s.log, nil), s.log)
}

func serve(ctx context.Context, addr string, h http.Handler, log *clog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(sctx)
}

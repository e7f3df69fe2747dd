// Package service wires TokenState together with the rate model, the
// registrar, the minter gateway, persistence, metrics and the RPC/event
// servers into one running node: New/Start/Stop lifecycle, a
// cancel-context background loop, and a mutex-guarded running flag.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"yieldcore/core/clock"
	"yieldcore/core/config"
	"yieldcore/core/events"
	"yieldcore/core/gateway"
	"yieldcore/core/metrics"
	"yieldcore/core/rate"
	"yieldcore/core/registrar"
	"yieldcore/core/rpc"
	"yieldcore/core/storage"
	"yieldcore/core/token"
)

// RateUpdateInterval is how often the node recomputes the safe earner
// rate and commits it to the index.
const RateUpdateInterval = 1 * time.Hour

// Node owns one TokenState and everything that reads or drives it.
type Node struct {
	cfg *config.Config

	Token     *token.TokenState
	Registrar *registrar.InMemory
	Gateway   *gateway.Stub
	RateModel *rate.EarnerRateModel
	Clock     clock.Clock

	store   *storage.Store
	metrics *metrics.Server
	hub     *events.Hub
	rpc     *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex

	running bool
}

// New builds a Node from cfg, restoring a previous snapshot from cfg's
// data directory if one exists, otherwise starting a fresh TokenState.
func New(cfg *config.Config) (*Node, error) {
	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open token state store: %w", err)
	}

	snap, err := store.Load()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load token state snapshot: %w", err)
	}

	sysClock := clock.System{}
	now := sysClock.NowSeconds()

	var tok *token.TokenState
	if snap.IsEmpty() {
		tok = token.New(cfg.RegistrarID, now)
		log.Info("starting fresh token state", "registrar", cfg.RegistrarID)
	} else {
		tok = snap.Restore(cfg.RegistrarID)
		log.Info("restored token state from snapshot", "registrar", cfg.RegistrarID, "earners", len(snap.Earning))
	}

	reg := registrar.NewInMemory()
	cfg.SeedRegistrar(reg)

	gw := gateway.NewStub(rate.MinterRateModel(reg), uint256.NewInt(0))

	rateModel := &rate.EarnerRateModel{
		Registrar: reg,
		Gateway:   gw,
		TotalEarningSupplyFunc: func() *uint256.Int {
			supply, err := tok.TotalEarningSupply(sysClock.NowSeconds())
			if err != nil {
				log.Warn("rate model: failed to read total earning supply", "err", err)
				return uint256.NewInt(0)
			}
			return supply
		},
	}

	metricsServer := metrics.NewServer(&metrics.Config{
		ListenAddr:  cfg.MetricsAddr,
		MetricsPath: "/metrics",
		Interval:    10 * time.Second,
	}, tok)

	hub := events.NewHub(cfg.EventsAddr)
	hub.Attach(tok)

	rpcServer := rpc.NewServer(cfg.RPCAddr, tok, sysClock.NowSeconds)

	ctx, cancel := context.WithCancel(context.Background())

	return &Node{
		cfg:       cfg,
		Token:     tok,
		Registrar: reg,
		Gateway:   gw,
		RateModel: rateModel,
		Clock:     sysClock,
		store:     store,
		metrics:   metricsServer,
		hub:       hub,
		rpc:       rpcServer,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start brings up the RPC, metrics and event servers and the background
// rate-update loop.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return fmt.Errorf("node already running")
	}

	if err := n.rpc.Start(); err != nil {
		return fmt.Errorf("failed to start rpc server: %w", err)
	}
	if err := n.metrics.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	if err := n.hub.Start(); err != nil {
		return fmt.Errorf("failed to start event hub: %w", err)
	}

	n.wg.Add(1)
	go n.rateUpdateLoop()

	n.running = true
	log.Info("yield node started", "rpc_addr", n.cfg.RPCAddr, "metrics_addr", n.cfg.MetricsAddr, "events_addr", n.cfg.EventsAddr)
	return nil
}

// Stop snapshots the current token state and shuts every subsystem down.
func (n *Node) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.running {
		return
	}

	n.cancel()
	n.wg.Wait()

	n.rpc.Stop()
	n.metrics.Stop()
	n.hub.Stop()

	if err := n.Snapshot(); err != nil {
		log.Error("failed to persist final token state snapshot", "err", err)
	}
	if err := n.store.Close(); err != nil {
		log.Error("failed to close token state store", "err", err)
	}

	n.running = false
	log.Info("yield node stopped")
}

// Snapshot persists the current token state immediately.
func (n *Node) Snapshot() error {
	return n.store.Save(storage.SnapshotOf(n.Token))
}

func (n *Node) rateUpdateLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(RateUpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.updateRateOnce()
		}
	}
}

func (n *Node) updateRateOnce() {
	newRate, err := n.RateModel.Rate()
	if err != nil {
		log.Error("failed to compute safe earner rate", "err", err)
		return
	}
	now := n.Clock.NowSeconds()
	if _, err := n.Token.UpdateIndexWithExternalRate(newRate, now); err != nil {
		log.Error("failed to update index with new rate", "err", err)
		return
	}
	if err := n.Snapshot(); err != nil {
		log.Error("failed to persist token state after rate update", "err", err)
	}
	log.Info("earner rate updated", "rate_bp", newRate)
}

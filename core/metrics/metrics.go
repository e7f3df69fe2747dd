// Package metrics exposes the token core's state as Prometheus gauges:
// the index, rate and supply figures a yield-bearing token needs watched.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"yieldcore/core/token"
)

// Config configures the metrics HTTP server.
type Config struct {
	ListenAddr  string
	MetricsPath string
	Interval    time.Duration
}

// DefaultConfig returns the default metrics server configuration.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:  ":8080",
		MetricsPath: "/metrics",
		Interval:    10 * time.Second,
	}
}

// Server collects TokenState figures on a ticker and serves them over
// /metrics.
type Server struct {
	cfg   *Config
	token *token.TokenState

	registry *prometheus.Registry

	currentIndex          prometheus.Gauge
	earnerRateBp          prometheus.Gauge
	totalSupply           prometheus.Gauge
	totalNonEarningSupply prometheus.Gauge
	totalEarningSupply    prometheus.Gauge
	principalOfSupply     prometheus.Gauge
	snapshotErrors        prometheus.Counter

	server *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex

	running bool
}

// NewServer builds a Server for tok, with metrics registered but not yet
// started.
func NewServer(cfg *Config, tok *token.TokenState) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	registry := prometheus.NewRegistry()

	s := &Server{
		cfg:      cfg,
		token:    tok,
		registry: registry,
		ctx:      ctx,
		cancel:   cancel,

		currentIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "yieldcore_current_index",
			Help: "Current continuous-compounding index, scaled by 1e12",
		}),
		earnerRateBp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "yieldcore_earner_rate_basis_points",
			Help: "Last committed earner rate, in basis points",
		}),
		totalSupply: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "yieldcore_total_supply",
			Help: "total_non_earning_supply + total_earning_supply, present value",
		}),
		totalNonEarningSupply: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "yieldcore_total_non_earning_supply",
			Help: "Aggregate present-value balance of non-earning holders",
		}),
		totalEarningSupply: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "yieldcore_total_earning_supply",
			Help: "Present value of the earning cohort's principal at the current index",
		}),
		principalOfSupply: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "yieldcore_principal_of_total_earning_supply",
			Help: "Sum of principal across all earning accounts",
		}),
		snapshotErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yieldcore_metrics_snapshot_errors_total",
			Help: "Total failures projecting token state to the current time",
		}),
	}

	for _, c := range []prometheus.Collector{
		s.currentIndex, s.earnerRateBp, s.totalSupply,
		s.totalNonEarningSupply, s.totalEarningSupply, s.principalOfSupply,
		s.snapshotErrors,
	} {
		s.registry.MustRegister(c)
	}

	router := mux.NewRouter()
	router.Path(cfg.MetricsPath).Handler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	s.server = &http.Server{Addr: cfg.ListenAddr, Handler: router}

	return s
}

// Start begins periodic collection and serves /metrics.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("metrics server already running")
	}

	s.wg.Add(1)
	go s.collectLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Info("starting metrics server", "addr", s.cfg.ListenAddr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "err", err)
		}
	}()

	s.running = true
	return nil
}

// Stop shuts the server down and waits for the collection loop to exit.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.server.Shutdown(shutdownCtx)
	s.wg.Wait()
	s.running = false
}

func (s *Server) collectLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.collectOnce()
		}
	}
}

func (s *Server) collectOnce() {
	now := uint64(time.Now().Unix())

	s.currentIndex.Set(indexFloat(mustCurrentIndex(s, now)))
	s.earnerRateBp.Set(float64(s.token.LatestRate()))
	s.principalOfSupply.Set(indexFloat(s.token.PrincipalOfTotalEarningSupply()))

	earning, err := s.token.TotalEarningSupply(now)
	if err != nil {
		s.snapshotErrors.Inc()
		log.Warn("metrics: failed to project earning supply", "err", err)
		return
	}
	s.totalEarningSupply.Set(indexFloat(earning))
	s.totalNonEarningSupply.Set(indexFloat(s.token.TotalNonEarningSupply()))

	total, err := s.token.TotalSupply(now)
	if err != nil {
		s.snapshotErrors.Inc()
		log.Warn("metrics: failed to project total supply", "err", err)
		return
	}
	s.totalSupply.Set(indexFloat(total))
}

func mustCurrentIndex(s *Server, now uint64) *uint256.Int {
	idx, err := s.token.CurrentIndex(now)
	if err != nil {
		s.snapshotErrors.Inc()
		log.Warn("metrics: failed to project current index", "err", err)
		return s.token.LatestIndex()
	}
	return idx
}

// indexFloat converts a uint256 to a float64 gauge reading. Values this
// large lose precision past 2^53, which is acceptable for a dashboard
// metric but never used for accounting math.
func indexFloat(v *uint256.Int) float64 {
	f, err := strconv.ParseFloat(v.Dec(), 64)
	if err != nil {
		return 0
	}
	return f
}

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"yieldcore/core/config"
	"yieldcore/core/service"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "yield-node",
	Short: "Yield-bearing token core node",
	Long:  "A standalone node running the continuous-indexing yield token core over JSON-RPC",
	Run:   runNode,
}

var (
	configFile  string
	dataDir     string
	rpcAddr     string
	metricsAddr string
	eventsAddr  string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "data directory")
	rootCmd.PersistentFlags().StringVar(&rpcAddr, "rpc-addr", ":8645", "JSON-RPC listen address")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", ":8080", "Prometheus metrics listen address")
	rootCmd.PersistentFlags().StringVar(&eventsAddr, "events-addr", ":8646", "websocket event hub listen address")

	viper.BindPFlags(rootCmd.PersistentFlags())
}

func runNode(cmd *cobra.Command, args []string) {
	log.Info("starting yield node", "version", Version, "build", BuildTime)

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	if cmd.Flags().Changed("rpc-addr") {
		cfg.RPCAddr = rpcAddr
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.MetricsAddr = metricsAddr
	}
	if cmd.Flags().Changed("events-addr") {
		cfg.EventsAddr = eventsAddr
	}

	node, err := service.New(cfg)
	if err != nil {
		log.Error("failed to build yield node", "err", err)
		os.Exit(1)
	}

	if err := node.Start(); err != nil {
		log.Error("failed to start yield node", "err", err)
		os.Exit(1)
	}

	fmt.Printf("yield-node %s listening: rpc=%s metrics=%s events=%s\n", Version, cfg.RPCAddr, cfg.MetricsAddr, cfg.EventsAddr)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Info("shutting down yield node")
	node.Stop()
	log.Info("yield node stopped")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

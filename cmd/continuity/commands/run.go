package commands

import (
	"fmt"

	"github.com/mosaicnetworks/continuity/consensus"
	"github.com/mosaicnetworks/continuity/crypto"
	"github.com/mosaicnetworks/continuity/dag"
	"github.com/mosaicnetworks/continuity/net"
	"github.com/mosaicnetworks/continuity/node"
	"github.com/mosaicnetworks/continuity/ops"
	"github.com/mosaicnetworks/continuity/peers"
	"github.com/mosaicnetworks/continuity/service"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRunCmd returns the command that starts a node.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runNode,
	}
	addRunFlags(cmd)
	return cmd
}

func runNode(cmd *cobra.Command, args []string) error {
	logger := _config.Logger()

	pemKey := crypto.NewPemKey(_config.DataDir)
	key, err := pemKey.ReadKey()
	if err != nil || key == nil {
		return fmt.Errorf("no private key under %s; run keygen first", _config.DataDir)
	}

	var store dag.Store
	if _config.Store {
		store, err = dag.NewBadgerStore(_config.CacheSize, _config.BadgerDir())
		if err != nil {
			return fmt.Errorf("opening badger store: %s", err)
		}
	} else {
		store = dag.NewInmemStore(_config.CacheSize)
	}

	trans, err := net.NewTCPTransport(
		_config.BindAddr,
		_config.AdvertiseAddr,
		_config.MaxPool,
		_config.PullTimeout,
		logger.WithField("component", "transport"),
	)
	if err != nil {
		return fmt.Errorf("creating transport: %s", err)
	}

	peerSet := peers.NewJSONPeerSet(_config.DataDir)
	knownPeers, err := peerSet.PeerSet()
	if err != nil {
		return fmt.Errorf("reading peers.json: %s", err)
	}

	witnesses := make([]string, len(knownPeers))
	for i, p := range knownPeers {
		witnesses[i] = p.ID
	}

	registry := consensus.NewRegistry(
		consensus.NewContinuity2017(logrus.NewEntry(logger)),
	)

	n, err := node.NewNode(
		_config,
		key,
		store,
		trans,
		ops.NewJSONValidator(),
		registry,
		witnesses,
		knownPeers,
	)
	if err != nil {
		return fmt.Errorf("creating node: %s", err)
	}

	if !_config.NoService {
		svc := service.NewService(_config.ServiceAddr, n, logrus.NewEntry(logger))
		go svc.Serve()
	}

	n.Run(true)

	return nil
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("moniker", _config.Moniker, "Optional name")
	cmd.Flags().String("ledger", _config.LedgerID, "Ledger id")

	// Network
	cmd.Flags().StringP("listen", "l", _config.BindAddr, "Listen IP:Port for gossip")
	cmd.Flags().StringP("advertise", "a", _config.AdvertiseAddr, "Advertise IP:Port for gossip")
	cmd.Flags().DurationP("timeout", "t", _config.TCPTimeout, "TCP Timeout")
	cmd.Flags().Duration("pull-timeout", _config.PullTimeout, "Pull session timeout")
	cmd.Flags().Int("max-pool", _config.MaxPool, "Connection pool size max")
	cmd.Flags().Int("gossip-fanout", _config.GossipFanout, "In-flight pulls per cycle")

	// Service
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().Bool("no-service", _config.NoService, "Disable the HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.DatabaseDir, "Database directory")
	cmd.Flags().Int("cache-size", _config.CacheSize, "Number of items in the store windows")

	// Worker
	cmd.Flags().Duration("heartbeat", _config.HeartbeatTimeout, "Time between gossips")
	cmd.Flags().Duration("slow-heartbeat", _config.SlowHeartbeatTimeout, "Time between gossips when idle")
	cmd.Flags().Int("op-queue", _config.OperationQueueSize, "Operation intake bound")

	// Peers
	cmd.Flags().Int("peer-capacity", _config.PeerCapacity, "Peer table capacity")
	cmd.Flags().Duration("max-failure", _config.MaxFailure, "Max failure backoff")
	cmd.Flags().Duration("min-failure", _config.MinFailure, "Min failure backoff")
	cmd.Flags().Duration("max-failure-grace", _config.MaxFailureGracePeriod, "Failure grace period")
	cmd.Flags().Duration("max-idle", _config.MaxIdle, "Max idle backoff")
	cmd.Flags().Duration("min-idle", _config.MinIdle, "Min idle backoff")
	cmd.Flags().Duration("max-idle-grace", _config.MaxIdleGracePeriod, "Idle grace period")

	// Merge policy
	cmd.Flags().String("witness-target", _config.WitnessTargetThreshold, "Witness target threshold (int, 2f, f, 1)")
	cmd.Flags().String("witness-min", _config.WitnessMinimumThreshold, "Witness minimum threshold (int, 2f, f, 1)")
	cmd.Flags().String("peer-min", _config.PeerMinimumThreshold, "Peer minimum threshold (int, 2f, f, 1)")
	cmd.Flags().Float64("op-ready-chance", _config.OperationReadyChance, "Chance of folding pending operations into a merge")
}

// loadConfig reads the flags and the optional config file into _config.
// Flags set on the command line take precedence over the file; the file
// takes precedence over flag defaults. Environment variables are not read.
func loadConfig(cmd *cobra.Command, args []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	viper.SetConfigName("continuity")
	viper.AddConfigPath(_config.DataDir)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	return viper.Unmarshal(_config)
}

package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/mosaicnetworks/continuity/merge"
	"github.com/mosaicnetworks/continuity/peers"
	"github.com/sirupsen/logrus"
)

// Default filenames.
const (
	// DefaultKeyfile is the name of the file containing the node's
	// private key.
	DefaultKeyfile = "priv_key.pem"

	// DefaultBadgerFile is the name of the folder containing the
	// Badger database.
	DefaultBadgerFile = "badger_db"
)

// Default configuration values.
const (
	DefaultLogLevel       = "debug"
	DefaultBindAddr       = "127.0.0.1:1337"
	DefaultServiceAddr    = "127.0.0.1:8000"
	DefaultLedgerID       = "main"
	DefaultHeartbeat      = 500 * time.Millisecond
	DefaultSlowHeartbeat  = 5 * time.Second
	DefaultTCPTimeout     = 1000 * time.Millisecond
	DefaultPullTimeout    = 30 * time.Second
	DefaultCacheSize      = 10000
	DefaultMaxPool        = 2
	DefaultGossipFanout   = 1
	DefaultPeerCapacity   = 110
	DefaultOperationQueue = 1000
)

// Config contains all the configuration properties of a ledger node.
type Config struct {
	// DataDir is the top-level directory containing configuration and
	// data.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LedgerID names the ledger this node participates in.
	LedgerID string `mapstructure:"ledger"`

	// Moniker is an optional human-readable name for this node.
	Moniker string `mapstructure:"moniker"`

	// BindAddr is the local address:port where this node gossips with
	// other nodes.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to advertise a different address to peers.
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the HTTP API service.
	ServiceAddr string `mapstructure:"service-listen"`

	// HeartbeatTimeout is the frequency of the gossip timer when the
	// node has something to gossip about.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat"`

	// SlowHeartbeatTimeout is the frequency of the gossip timer when
	// the node has nothing to gossip about.
	SlowHeartbeatTimeout time.Duration `mapstructure:"slow-heartbeat"`

	// TCPTimeout is set by the --timeout flag. The run command does not
	// pass it to the transport; gossip connections use PullTimeout.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// PullTimeout bounds one pull exchange.
	PullTimeout time.Duration `mapstructure:"pull-timeout"`

	// MaxPool controls how many connections are pooled per target.
	MaxPool int `mapstructure:"max-pool"`

	// Store activates Badger-backed persistent storage.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// CacheSize is the number of items in the store's per-creator
	// rolling windows.
	CacheSize int `mapstructure:"cache-size"`

	// GossipFanout caps in-flight pulls per worker cycle.
	GossipFanout int `mapstructure:"gossip-fanout"`

	// PeerCapacity caps the peer table: 100 productive plus 10
	// untrusted slots.
	PeerCapacity int `mapstructure:"peer-capacity"`

	// OperationQueueSize bounds the regular-operation intake;
	// producers get LoadError beyond it.
	OperationQueueSize int `mapstructure:"op-queue"`

	// Reputation and backoff knobs of the peer registry.
	MaxFailure            time.Duration `mapstructure:"max-failure"`
	MinFailure            time.Duration `mapstructure:"min-failure"`
	MaxFailureGracePeriod time.Duration `mapstructure:"max-failure-grace"`
	MaxIdle               time.Duration `mapstructure:"max-idle"`
	MinIdle               time.Duration `mapstructure:"min-idle"`
	MaxIdleGracePeriod    time.Duration `mapstructure:"max-idle-grace"`

	// Merge policy.
	WitnessTargetThreshold  string  `mapstructure:"witness-target"`
	WitnessMinimumThreshold string  `mapstructure:"witness-min"`
	PeerMinimumThreshold    string  `mapstructure:"peer-min"`
	OperationReadyChance    float64 `mapstructure:"op-ready-chance"`

	logger *logrus.Logger
}

// NewDefaultConfig returns the default configuration.
func NewDefaultConfig() *Config {
	reg := peers.DefaultRegistryConfig()
	mrg := merge.DefaultConfig()

	return &Config{
		DataDir:                 DefaultDataDir(),
		LogLevel:                DefaultLogLevel,
		LedgerID:                DefaultLedgerID,
		BindAddr:                DefaultBindAddr,
		ServiceAddr:             DefaultServiceAddr,
		HeartbeatTimeout:        DefaultHeartbeat,
		SlowHeartbeatTimeout:    DefaultSlowHeartbeat,
		TCPTimeout:              DefaultTCPTimeout,
		PullTimeout:             DefaultPullTimeout,
		MaxPool:                 DefaultMaxPool,
		CacheSize:               DefaultCacheSize,
		GossipFanout:            DefaultGossipFanout,
		PeerCapacity:            DefaultPeerCapacity,
		OperationQueueSize:      DefaultOperationQueue,
		MaxFailure:              reg.MaxFailure,
		MinFailure:              reg.MinFailure,
		MaxFailureGracePeriod:   reg.MaxFailureGracePeriod,
		MaxIdle:                 reg.MaxIdle,
		MinIdle:                 reg.MinIdle,
		MaxIdleGracePeriod:      reg.MaxIdleGracePeriod,
		WitnessTargetThreshold:  mrg.WitnessTargetThreshold,
		WitnessMinimumThreshold: mrg.WitnessMinimumThreshold,
		PeerMinimumThreshold:    mrg.PeerMinimumThreshold,
		OperationReadyChance:    mrg.OperationReadyChance,
	}
}

// RegistryConfig projects the peer registry's knobs.
func (c *Config) RegistryConfig() peers.RegistryConfig {
	return peers.RegistryConfig{
		MaxFailure:            c.MaxFailure,
		MinFailure:            c.MinFailure,
		MaxFailureGracePeriod: c.MaxFailureGracePeriod,
		MaxIdle:               c.MaxIdle,
		MinIdle:               c.MinIdle,
		MaxIdleGracePeriod:    c.MaxIdleGracePeriod,
		PeerCapacity:          c.PeerCapacity,
	}
}

// MergeConfig projects the merge policy.
func (c *Config) MergeConfig() merge.Config {
	return merge.Config{
		WitnessTargetThreshold:  c.WitnessTargetThreshold,
		WitnessMinimumThreshold: c.WitnessMinimumThreshold,
		PeerMinimumThreshold:    c.PeerMinimumThreshold,
		OperationReadyChance:    c.OperationReadyChance,
	}
}

// Keyfile returns the path of the private key file.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// BadgerDir returns the path of the badger database.
func (c *Config) BadgerDir() string {
	if c.DatabaseDir != "" {
		return c.DatabaseDir
	}
	return filepath.Join(c.DataDir, DefaultBadgerFile)
}

// DefaultDataDir returns the platform data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".continuity"
	}
	return filepath.Join(home, ".continuity")
}

package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of one cluster node.
type ServerConfig struct {
	// Node identity
	Host string
	Port uint16
	// Peers is the initially known membership as host:port addresses,
	// including this node. An empty list means the node starts blind and
	// learns the membership from the leader.
	Peers []string

	// Consensus timing parameters
	HeartbeatIntervalMs     int64
	ConnectionTimeoutMs     int64
	ElectionLeastTimeoutMs  int64
	ElectionRandomTimeoutMs int64

	// WAL parameters
	EnableWal                       bool
	WalDir                          string
	ForceWalPeriodInMs              int64
	RegisterBufferSleepIntervalInMs int64
	RegisterBufferRejectThresholdMs int64
	WalBufferCount                  int
	WalBufferSize                   int
	WalBuffersPerNode               int

	// Raft log storage
	DataDir string

	// RPC settings
	Serializer string

	// Logging configuration
	LogLevel string
}

// DefaultServerConfig returns the production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:                            "127.0.0.1",
		Port:                            6667,
		HeartbeatIntervalMs:             1000,
		ConnectionTimeoutMs:             20000,
		ElectionLeastTimeoutMs:          5000,
		ElectionRandomTimeoutMs:         5000,
		EnableWal:                       true,
		WalDir:                          "data/wal",
		ForceWalPeriodInMs:              100,
		RegisterBufferSleepIntervalInMs: 200,
		RegisterBufferRejectThresholdMs: 10000,
		WalBufferCount:                  64,
		WalBufferSize:                   4 * 1024 * 1024,
		WalBuffersPerNode:               2,
		DataDir:                         "data",
		Serializer:                      "binary",
		LogLevel:                        "info",
	}
}

// Validate checks the invariants the recognized options must satisfy.
func (c *ServerConfig) Validate() error {
	if c.ForceWalPeriodInMs < 0 {
		return fmt.Errorf("forceWalPeriodInMs must be >= 0, got %d", c.ForceWalPeriodInMs)
	}
	if c.RegisterBufferSleepIntervalInMs <= 0 {
		return fmt.Errorf("registerBufferSleepIntervalInMs must be > 0, got %d", c.RegisterBufferSleepIntervalInMs)
	}
	if c.RegisterBufferRejectThresholdMs <= c.RegisterBufferSleepIntervalInMs {
		return fmt.Errorf("registerBufferRejectThresholdInMs (%d) must be greater than the sleep interval (%d)",
			c.RegisterBufferRejectThresholdMs, c.RegisterBufferSleepIntervalInMs)
	}
	if c.ConnectionTimeoutMs <= 0 {
		return fmt.Errorf("connectionTimeoutMs must be > 0, got %d", c.ConnectionTimeoutMs)
	}
	if c.HeartbeatIntervalMs <= 0 {
		return fmt.Errorf("heartbeatIntervalMs must be > 0, got %d", c.HeartbeatIntervalMs)
	}
	return nil
}

// Endpoint returns this node's host:port address.
func (c *ServerConfig) Endpoint() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Duration helpers for wiring the core services.

func (c *ServerConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMs) * time.Millisecond
}

func (c *ServerConfig) ConnectionTimeout() time.Duration {
	return time.Duration(c.ConnectionTimeoutMs) * time.Millisecond
}

func (c *ServerConfig) ElectionLeastTimeout() time.Duration {
	return time.Duration(c.ElectionLeastTimeoutMs) * time.Millisecond
}

func (c *ServerConfig) ElectionRandomTimeout() time.Duration {
	return time.Duration(c.ElectionRandomTimeoutMs) * time.Millisecond
}

func (c *ServerConfig) ForceWalPeriod() time.Duration {
	return time.Duration(c.ForceWalPeriodInMs) * time.Millisecond
}

func (c *ServerConfig) RegisterBufferSleepInterval() time.Duration {
	return time.Duration(c.RegisterBufferSleepIntervalInMs) * time.Millisecond
}

func (c *ServerConfig) RegisterBufferRejectThreshold() time.Duration {
	return time.Duration(c.RegisterBufferRejectThresholdMs) * time.Millisecond
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-28s: %s\n", name, value))
	}

	addSection("Node Identity")
	addField("Endpoint", c.Endpoint())

	addSection("Cluster")
	if len(c.Peers) == 0 {
		addField("Peers", "(blind, waiting for the leader)")
	}
	for i, peer := range c.Peers {
		addField(strconv.Itoa(i), peer)
	}

	addSection("Consensus")
	addField("Heartbeat Interval", fmt.Sprintf("%d ms", c.HeartbeatIntervalMs))
	addField("Connection Timeout", fmt.Sprintf("%d ms", c.ConnectionTimeoutMs))
	addField("Election Backoff", fmt.Sprintf("%d ms + [0, %d ms)", c.ElectionLeastTimeoutMs, c.ElectionRandomTimeoutMs))

	addSection("Write-Ahead Log")
	addField("Enabled", fmt.Sprintf("%t", c.EnableWal))
	addField("Directory", c.WalDir)
	addField("Force Period", fmt.Sprintf("%d ms", c.ForceWalPeriodInMs))
	addField("Buffer Sleep Interval", fmt.Sprintf("%d ms", c.RegisterBufferSleepIntervalInMs))
	addField("Buffer Reject Threshold", fmt.Sprintf("%d ms", c.RegisterBufferRejectThresholdMs))
	addField("Buffers", fmt.Sprintf("%d x %d bytes, %d per node", c.WalBufferCount, c.WalBufferSize, c.WalBuffersPerNode))

	addSection("Storage")
	addField("Data Directory", c.DataDir)

	addSection("RPC")
	addField("Serializer", c.Serializer)

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

package serve

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/holtenko/iotdb/cmd/util"
	"github.com/holtenko/iotdb/lib/consensus"
	"github.com/holtenko/iotdb/lib/consensus/logstore"
	"github.com/holtenko/iotdb/lib/service"
	"github.com/holtenko/iotdb/lib/wal"
	"github.com/holtenko/iotdb/rpc/common"
	"github.com/holtenko/iotdb/rpc/serializer"
	"github.com/holtenko/iotdb/rpc/transport/tcp"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = common.DefaultServerConfig()
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start a cluster node",
		Long:    `Start a cluster node with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is IOTDB_<flag> (e.g. IOTDB_PORT=6667)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	defaults := common.DefaultServerConfig()

	ServeCmd.PersistentFlags().String("host", defaults.Host, util.WrapString("The address this node binds and advertises to its peers"))
	ServeCmd.PersistentFlags().Uint16("port", defaults.Port, util.WrapString("The port of the consensus RPC endpoint"))
	ServeCmd.PersistentFlags().String("peers", "", util.WrapString("Comma-separated list of cluster members as host:port, including this node. Leave empty to start blind and learn the membership from the leader"))

	ServeCmd.PersistentFlags().Int64("heartbeat-interval-ms", defaults.HeartbeatIntervalMs, util.WrapString("Interval between leader heartbeats"))
	ServeCmd.PersistentFlags().Int64("connection-timeout-ms", defaults.ConnectionTimeoutMs, util.WrapString("Heartbeat staleness bound; also bounds the election wait and each RPC"))
	ServeCmd.PersistentFlags().Int64("election-least-timeout-ms", defaults.ElectionLeastTimeoutMs, util.WrapString("Minimum backoff between election rounds"))
	ServeCmd.PersistentFlags().Int64("election-random-timeout-ms", defaults.ElectionRandomTimeoutMs, util.WrapString("Random extra backoff between election rounds"))

	ServeCmd.PersistentFlags().Bool("enable-wal", defaults.EnableWal, util.WrapString("Whether writes go through the write-ahead log"))
	ServeCmd.PersistentFlags().String("wal-dir", defaults.WalDir, util.WrapString("Directory for the WAL segment files"))
	ServeCmd.PersistentFlags().Int64("force-wal-period-ms", defaults.ForceWalPeriodInMs, util.WrapString("Interval of the background force-sync task (0 disables it)"))
	ServeCmd.PersistentFlags().Int64("register-buffer-sleep-interval-ms", defaults.RegisterBufferSleepIntervalInMs, util.WrapString("Sleep between buffer admission attempts when the pool is exhausted"))
	ServeCmd.PersistentFlags().Int64("register-buffer-reject-threshold-ms", defaults.RegisterBufferRejectThresholdMs, util.WrapString("Cumulative admission wait after which a WAL registration is rejected"))
	ServeCmd.PersistentFlags().Int("wal-buffer-count", defaults.WalBufferCount, util.WrapString("Total byte buffers in the pool"))
	ServeCmd.PersistentFlags().Int("wal-buffer-size", defaults.WalBufferSize, util.WrapString("Size of one byte buffer"))
	ServeCmd.PersistentFlags().Int("wal-buffers-per-node", defaults.WalBuffersPerNode, util.WrapString("Buffers attached to each WAL node at registration"))

	ServeCmd.PersistentFlags().String("data-dir", defaults.DataDir, util.WrapString("Directory for the raft log store"))
	ServeCmd.PersistentFlags().String("serializer", defaults.Serializer, util.WrapString("Wire encoding of the consensus RPCs (binary, json, gob)"))
	ServeCmd.PersistentFlags().String("log-level", defaults.LogLevel, util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.Host = viper.GetString("host")
	serveCmdConfig.Port = uint16(viper.GetUint32("port"))

	serveCmdConfig.Peers = nil
	if peers := viper.GetString("peers"); peers != "" {
		for _, peer := range strings.Split(peers, ",") {
			peer = strings.TrimSpace(peer)
			host, port, err := net.SplitHostPort(peer)
			if err != nil {
				return fmt.Errorf("invalid peer %q (expected host:port): %v", peer, err)
			}
			if _, err := strconv.ParseUint(port, 10, 16); err != nil {
				return fmt.Errorf("invalid peer port in %q: %v", peer, err)
			}
			serveCmdConfig.Peers = append(serveCmdConfig.Peers, net.JoinHostPort(host, port))
		}
	}

	serveCmdConfig.HeartbeatIntervalMs = viper.GetInt64("heartbeat-interval-ms")
	serveCmdConfig.ConnectionTimeoutMs = viper.GetInt64("connection-timeout-ms")
	serveCmdConfig.ElectionLeastTimeoutMs = viper.GetInt64("election-least-timeout-ms")
	serveCmdConfig.ElectionRandomTimeoutMs = viper.GetInt64("election-random-timeout-ms")

	serveCmdConfig.EnableWal = viper.GetBool("enable-wal")
	serveCmdConfig.WalDir = viper.GetString("wal-dir")
	serveCmdConfig.ForceWalPeriodInMs = viper.GetInt64("force-wal-period-ms")
	serveCmdConfig.RegisterBufferSleepIntervalInMs = viper.GetInt64("register-buffer-sleep-interval-ms")
	serveCmdConfig.RegisterBufferRejectThresholdMs = viper.GetInt64("register-buffer-reject-threshold-ms")
	serveCmdConfig.WalBufferCount = viper.GetInt("wal-buffer-count")
	serveCmdConfig.WalBufferSize = viper.GetInt("wal-buffer-size")
	serveCmdConfig.WalBuffersPerNode = viper.GetInt("wal-buffers-per-node")

	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.Serializer = viper.GetString("serializer")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	return serveCmdConfig.Validate()
}

// run starts the node and blocks until it is signalled to stop
func run(cmd *cobra.Command, _ []string) error {
	common.InitLoggers(serveCmdConfig)
	plog := logger.GetLogger("cmd")
	plog.Infof("starting node %s", serveCmdConfig.Endpoint())
	plog.Infof(serveCmdConfig.String())

	s, err := serializer.New(serveCmdConfig.Serializer)
	if err != nil {
		return err
	}

	// raft log storage
	if err := os.MkdirAll(serveCmdConfig.DataDir, 0o755); err != nil {
		return fmt.Errorf("cannot create data dir: %w", err)
	}
	logStore, err := logstore.OpenBoltStore(filepath.Join(serveCmdConfig.DataDir, "raftlog.db"))
	if err != nil {
		return err
	}
	defer logStore.Close()

	// consensus driver over the tcp transport
	thisNode := &consensus.Node{Host: serveCmdConfig.Host, Port: serveCmdConfig.Port}
	nodes := []*consensus.Node{thisNode}
	for _, peer := range serveCmdConfig.Peers {
		host, portStr, _ := net.SplitHostPort(peer)
		port, _ := strconv.ParseUint(portStr, 10, 16)
		if host == thisNode.Host && uint16(port) == thisNode.Port {
			continue
		}
		nodes = append(nodes, &consensus.Node{Host: host, Port: uint16(port)})
	}

	provider := tcp.NewProvider(s, serveCmdConfig.ConnectionTimeout())
	defer provider.Close()

	driver := consensus.NewDriver(consensus.Config{
		HeartbeatInterval:     serveCmdConfig.HeartbeatInterval(),
		ConnectionTimeout:     serveCmdConfig.ConnectionTimeout(),
		ElectionLeastTimeout:  serveCmdConfig.ElectionLeastTimeout(),
		ElectionRandomTimeout: serveCmdConfig.ElectionRandomTimeout(),
	}, thisNode, nodes, provider, logStore)

	server := tcp.NewServer(s)
	if err := server.Serve(serveCmdConfig.Endpoint(), driver); err != nil {
		return err
	}
	defer server.Close()

	// wal manager
	walManager := wal.NewManager(wal.Options{
		Enable:                        serveCmdConfig.EnableWal,
		ForceWalPeriod:                serveCmdConfig.ForceWalPeriod(),
		RegisterBufferSleepInterval:   serveCmdConfig.RegisterBufferSleepInterval(),
		RegisterBufferRejectThreshold: serveCmdConfig.RegisterBufferRejectThreshold(),
	}, wal.NewFileSink(serveCmdConfig.WalDir))

	services := service.NewRegistry()
	services.Register("wal", walManager)
	services.Register("consensus", driver)
	if err := services.StartAll(); err != nil {
		return err
	}

	// the buffer pool backs every WAL registration; the system group is
	// registered eagerly so a cold node fails fast on an undersized pool
	pool := wal.NewBufferPool(serveCmdConfig.WalBufferCount, serveCmdConfig.WalBufferSize, serveCmdConfig.WalBuffersPerNode)
	if serveCmdConfig.EnableWal {
		if _, err := walManager.GetNode(cmd.Context(), "root.system-seq", pool.Supply); err != nil {
			services.StopAll()
			return err
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	plog.Infof("received %s, shutting down", sig)
	services.StopAll()
	return nil
}

// initConfig reads in the environment configuration.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("iotdb")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

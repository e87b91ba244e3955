package common

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lni/dragonboat/v4/config"
)

// --------------------------------------------------------------------------
// helper functions for to interface with Dragonboat
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the PrimaryConfig to a Dragonboat Config for the journal shard
func (c *PrimaryConfig) ToDragonboatConfig() config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            c.ShardID,
		ElectionRTT:        electionRTTFactor,
		HeartbeatRTT:       heartbeatRTTFactor,
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *PrimaryConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// Primary configuration struct
// --------------------------------------------------------------------------

// PrimaryConfig holds all configuration parameters of a journal primary
type PrimaryConfig struct {
	// Replication stream
	Endpoint        string        // Address replicas connect to (host:port or socket path)
	Heartbeat       time.Duration // Interval of OpPing entries on idle connections
	SubscriberQueue int           // Entries buffered per replica before it is dropped
	Socket          SocketConfig

	// HTTP control surface
	HTTPEndpoint string

	// Keyspace
	Databases   int
	JournalFile string // Append every published entry to this file (empty = off)

	// Raft (optional)
	Raft               bool
	ShardID            uint64
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string
	ReplicaID          uint64
	ClusterMembers     map[uint64]string
	TimeoutSecond      int64

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *PrimaryConfig) String() string {
	var sb strings.Builder
	addSection, addField := formatters(&sb)

	addSection("Replication Stream")
	addField("Endpoint", c.Endpoint)
	addField("Heartbeat", c.Heartbeat.String())
	addField("Subscriber Queue", strconv.Itoa(c.SubscriberQueue))

	addSection("HTTP")
	addField("Endpoint", valueOr(c.HTTPEndpoint, "disabled"))

	addSection("Keyspace")
	addField("Databases", strconv.Itoa(c.Databases))
	addField("Journal File", valueOr(c.JournalFile, "disabled"))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	if c.Raft {
		// Node Identity
		addSection("Node Identity")
		addField("RAFT Address", c.ClusterMembers[c.ReplicaID])
		addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))
		addField("Shard ID", strconv.FormatUint(c.ShardID, 10))

		// RAFT parameters
		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
		addField("Check Quorum", fmt.Sprintf("%t", true))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))
		addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

		// Storage
		addSection("Storage")
		addField("Data Directory", c.DataDir)

		addSection("Cluster")
		sb.WriteString("  Initial Cluster Members:\n")

		// Sort keys for consistent output
		var keys []uint64
		for k := range c.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.ClusterMembers[k]))
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// Replica configuration struct
// --------------------------------------------------------------------------

// ReplicaConfig holds all configuration parameters of a journal replica
type ReplicaConfig struct {
	Endpoint     string
	ReplicaID    uint64
	StartDb      uint32
	Databases    int
	Poll         time.Duration // Read deadline per pull, also the idle wait between steps
	IdleTimeout  time.Duration // Reconnect when nothing arrived for this long (0 = never)
	RetryCount   int           // Reconnect attempts before giving up
	MaxStringLen uint64
	Socket       SocketConfig
	LogLevel     string
}

// String returns a formatted string representation of the replica configuration
func (c *ReplicaConfig) String() string {
	var sb strings.Builder
	addSection, addField := formatters(&sb)

	addSection("Replica Configuration")
	addField("Endpoint", c.Endpoint)
	addField("Replica ID", strconv.FormatUint(c.ReplicaID, 10))
	addField("Start Db", strconv.FormatUint(uint64(c.StartDb), 10))
	addField("Databases", strconv.Itoa(c.Databases))

	addSection("Connection")
	addField("Poll", c.Poll.String())
	addField("Idle Timeout", c.IdleTimeout.String())
	addField("Retry Count", strconv.Itoa(c.RetryCount))
	addField("Max String Length", strconv.FormatUint(c.MaxStringLen, 10))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// formatters returns helper functions for consistent formatting
func formatters(sb *strings.Builder) (func(title string), func(name, value string)) {
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}
	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}
	return addSection, addField
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

package utilities

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// IDSource hands out entity primary keys.
type IDSource interface {
	Next() int64
}

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// SnowflakeIDs generates 64-bit, time-ordered ids from a single snowflake node.
type SnowflakeIDs struct {
	node *snowflake.Node
}

// NewSnowflakeIDs creates a generator for the given node id (0..1023).
func NewSnowflakeIDs(nodeID int64) (*SnowflakeIDs, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	return &SnowflakeIDs{node: node}, nil
}

// NewSnowflakeIDsFromEnv reads the node id from SNOWFLAKE_NODE, defaulting
// to node 1 when unset or unparsable.
func NewSnowflakeIDsFromEnv() (*SnowflakeIDs, error) {
	nodeID, err := strconv.ParseInt(os.Getenv("SNOWFLAKE_NODE"), 10, 64)
	if err != nil {
		nodeID = 1
	}
	return NewSnowflakeIDs(nodeID)
}

// Next returns a new id. snowflake.Node is safe for concurrent use.
func (g *SnowflakeIDs) Next() int64 {
	return g.node.Generate().Int64()
}

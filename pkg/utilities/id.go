package utilities

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// IDGenerator hands out snowflake ids from a single node so ids minted in the
// same millisecond still differ by sequence.
type IDGenerator struct {
	node *snowflake.Node
}

// NewIDGenerator builds a generator for the given node id (0-1023).
func NewIDGenerator(nodeID int64) (*IDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &IDGenerator{node: node}, nil
}

// Next returns a new positive int64 id.
func (g *IDGenerator) Next() int64 {
	return g.node.Generate().Int64()
}

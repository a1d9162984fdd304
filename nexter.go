package lake

import (
	"sync/atomic"

	"github.com/bwmarrin/snowflake"
	"github.com/pkg/errors"
)

// IDGenerator hands out identifiers which are unique for its lifetime.
// Implementations must be thread safe.
type IDGenerator interface {
	Next() int64
}

// Nexter is a threadsafe monotonic unique id generator.
type Nexter struct {
	id *int64
}

// NexterOption configures a Nexter.
type NexterOption func(n *Nexter)

// NexterStartFrom sets the first id a Nexter hands out.
func NexterStartFrom(s int64) NexterOption {
	return func(n *Nexter) {
		*n.id = s
	}
}

// NewNexter creates a new id generator starting at 0.
func NewNexter(opts ...NexterOption) *Nexter {
	var id int64
	n := &Nexter{
		id: &id,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Next generates a new id and returns it.
func (n *Nexter) Next() (nextID int64) {
	nextID = atomic.AddInt64(n.id, 1)
	return nextID - 1
}

// Last returns the most recently generated id.
func (n *Nexter) Last() (lastID int64) {
	return atomic.LoadInt64(n.id) - 1
}

// SnowflakeIDs generates snowflake ids: unique within a run, roughly time
// ordered, and different from one run to the next.
type SnowflakeIDs struct {
	node *snowflake.Node
}

// NewSnowflakeIDs gets a SnowflakeIDs for the given node number (0-1023).
// Concurrent runs writing to the same tables should use different nodes.
func NewSnowflakeIDs(node int64) (*SnowflakeIDs, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, errors.Wrap(err, "creating snowflake node")
	}
	return &SnowflakeIDs{node: n}, nil
}

// Next implements IDGenerator.
func (s *SnowflakeIDs) Next() int64 {
	return s.node.Generate().Int64()
}

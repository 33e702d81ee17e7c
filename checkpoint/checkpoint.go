package checkpoint

import (
	"time"

	"github.com/holiman/uint256"
)

// Checkpoint records what is needed to put the dev chain back where it was.
// Optional fields are nil when the host did not support or had not set them.
type Checkpoint struct {
	ID               uint64
	BlockHeight      uint64
	TimeOffset       *int64       // simulated clock offset, seconds
	PendingBaseFee   *uint256.Int // queued base fee for the next block (u128)
	PendingTimestamp *uint64      // queued timestamp for the next block
	CapturedAt       time.Time    // carries a monotonic reading
}

// Copy returns a deep copy so callers cannot alias the stored record.
func (c Checkpoint) Copy() Checkpoint {
	out := c
	if c.TimeOffset != nil {
		v := *c.TimeOffset
		out.TimeOffset = &v
	}
	if c.PendingBaseFee != nil {
		out.PendingBaseFee = new(uint256.Int).Set(c.PendingBaseFee)
	}
	if c.PendingTimestamp != nil {
		v := *c.PendingTimestamp
		out.PendingTimestamp = &v
	}
	return out
}

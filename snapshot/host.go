package snapshot

import (
	"context"

	"github.com/holiman/uint256"
)

// HeadReader reports the persisted chain height.
type HeadReader interface {
	BestNumber(ctx context.Context) (uint64, error)
}

// Backend removes the top n blocks from storage. finalize marks the new head irreversible.
type Backend interface {
	Revert(ctx context.Context, n uint64, finalize bool) error
}

// VirtualClock is the simulated time-travel offset, in seconds.
type VirtualClock interface {
	Offset() int64
	SetOffset(seconds int64)
}

// Overrides are values queued for the next block only.
type Overrides struct {
	BaseFee   *uint256.Int
	Timestamp *uint64
}

// OverridesSource reads and replaces the queued next-block overrides.
type OverridesSource interface {
	PendingOverrides() Overrides
	SetPendingOverrides(o Overrides)
}

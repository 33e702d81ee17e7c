package snapshot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mezonai/devnode/checkpoint"
	"github.com/mezonai/devnode/errors"
	"github.com/mezonai/devnode/events"
	"github.com/mezonai/devnode/logx"
	"github.com/mezonai/devnode/monitoring"
)

// Service implements evm_snapshot / evm_revert on top of a host chain.
//
// Snapshot and Revert share one mutex, so a snapshot can never observe a
// half-applied revert and id allocation is atomic with insertion. The storage
// truncation runs under that lock as well; reverts are rare test-only calls.
// When the host hands over its production lock (WithLocker) it is held for
// the whole call, so no block is mined between the head read and the truncation.
type Service struct {
	mu        sync.Mutex
	hostLock  sync.Locker
	store     *checkpoint.Store
	head      HeadReader
	backend   Backend
	clock     VirtualClock
	overrides OverridesSource
	eventBus  *events.EventBus
	now       func() time.Time

	// corrupted is set once a revert finds the head below a recorded height.
	corrupted error
}

type Option func(*Service)

// WithClock records and restores the simulated clock offset.
func WithClock(c VirtualClock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithOverrides records and restores the pending next-block overrides.
func WithOverrides(o OverridesSource) Option {
	return func(s *Service) {
		s.overrides = o
	}
}

func WithEventBus(eb *events.EventBus) Option {
	return func(s *Service) {
		s.eventBus = eb
	}
}

// WithLocker makes Snapshot and Revert hold l, the lock the host takes around
// block production and other state changes.
func WithLocker(l sync.Locker) Option {
	return func(s *Service) {
		s.hostLock = l
	}
}

// WithStore lets several services share, or tests inspect, a registry.
func WithStore(store *checkpoint.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

func NewService(head HeadReader, backend Backend, opts ...Option) *Service {
	s := &Service{
		store:   checkpoint.NewStore(),
		head:    head,
		backend: backend,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot captures the current chain state and returns its id. Ids start at 1.
func (s *Service) Snapshot(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock := s.lockHost()
	defer unlock()

	if s.corrupted != nil {
		return 0, s.corrupted
	}

	height, err := s.head.BestNumber(ctx)
	if err != nil {
		logx.Error("SNAPSHOT", fmt.Sprintf("Failed to read chain head | error=%v", err))
		return 0, errors.Wrap(err, errors.ErrCodeHostFailure, errors.ErrMsgChainHead)
	}

	cp := checkpoint.Checkpoint{
		BlockHeight: height,
		CapturedAt:  s.now(),
	}
	if s.clock != nil {
		offset := s.clock.Offset()
		cp.TimeOffset = &offset
	}
	if s.overrides != nil {
		pending := s.overrides.PendingOverrides()
		cp.PendingBaseFee = pending.BaseFee
		cp.PendingTimestamp = pending.Timestamp
	}

	cp.ID = s.store.AllocateID()
	s.store.Put(cp)

	monitoring.IncreaseSnapshotCount()
	monitoring.SetCheckpointsHeld(s.store.Len())
	logx.Info("SNAPSHOT", fmt.Sprintf("Snapshot taken | id=%d | height=%d", cp.ID, height))
	s.eventBus.Publish(events.NewSnapshotTaken(cp.ID, height))

	return cp.ID, nil
}

// Revert rolls the chain back to snapshot id. An unknown id returns false
// with no error. On success the snapshot and every later one are dropped.
func (s *Service) Revert(ctx context.Context, id uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock := s.lockHost()
	defer unlock()

	if s.corrupted != nil {
		return false, s.corrupted
	}

	cp, ok := s.store.Get(id)
	if !ok {
		monitoring.RecordRevert(monitoring.RevertNotFound)
		logx.Debug("SNAPSHOT", fmt.Sprintf("Revert to unknown snapshot | id=%d", id))
		return false, nil
	}

	current, err := s.head.BestNumber(ctx)
	if err != nil {
		monitoring.RecordRevert(monitoring.RevertFailed)
		logx.Error("SNAPSHOT", fmt.Sprintf("Failed to read chain head | error=%v", err))
		return false, errors.Wrap(err, errors.ErrCodeHostFailure, errors.ErrMsgChainHead)
	}

	if current < cp.BlockHeight {
		s.corrupted = errors.NewError(errors.ErrCodeInvariantViolation,
			fmt.Sprintf("%s: snapshot %d recorded height %d, head is %d", errors.ErrMsgNegativeDelta, id, cp.BlockHeight, current))
		monitoring.IncreaseInvariantViolations()
		monitoring.RecordRevert(monitoring.RevertInvariant)
		logx.Error("SNAPSHOT", s.corrupted.Error())
		return false, s.corrupted
	}

	delta := current - cp.BlockHeight
	if err := s.backend.Revert(ctx, delta, true); err != nil {
		monitoring.RecordRevert(monitoring.RevertFailed)
		logx.Error("SNAPSHOT", fmt.Sprintf("Backend revert failed | id=%d | blocks=%d | error=%v", id, delta, err))
		return false, errors.Wrap(err, errors.ErrCodeHostFailure, errors.ErrMsgBackendRevert)
	}

	s.restore(cp)
	purged := s.store.PurgeFrom(id)

	monitoring.RecordRevert(monitoring.RevertRestored)
	monitoring.AddRevertedBlocks(delta)
	monitoring.SetCheckpointsHeld(s.store.Len())
	logx.Info("SNAPSHOT", fmt.Sprintf("Reverted to snapshot | id=%d | height=%d | blocks_removed=%d | purged=%d", id, cp.BlockHeight, delta, purged))
	s.eventBus.Publish(events.NewSnapshotRestored(id, cp.BlockHeight, purged))

	return true, nil
}

func (s *Service) lockHost() func() {
	if s.hostLock == nil {
		return func() {}
	}
	s.hostLock.Lock()
	return s.hostLock.Unlock
}

// restore reapplies the clock offset and queued overrides captured in cp.
func (s *Service) restore(cp checkpoint.Checkpoint) {
	if s.clock != nil && cp.TimeOffset != nil {
		s.clock.SetOffset(*cp.TimeOffset)
	}
	if s.overrides != nil {
		s.overrides.SetPendingOverrides(Overrides{
			BaseFee:   cp.PendingBaseFee,
			Timestamp: cp.PendingTimestamp,
		})
	}
}

// Len returns the number of snapshots currently revertible.
func (s *Service) Len() int {
	return s.store.Len()
}

// Corrupted returns the invariant violation that stopped the service, if any.
func (s *Service) Corrupted() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.corrupted
}

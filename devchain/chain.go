package devchain

import (
	"context"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"github.com/mezonai/devnode/block"
	"github.com/mezonai/devnode/clock"
	"github.com/mezonai/devnode/errors"
	"github.com/mezonai/devnode/events"
	"github.com/mezonai/devnode/logx"
	"github.com/mezonai/devnode/monitoring"
	"github.com/mezonai/devnode/snapshot"
	"github.com/mezonai/devnode/store"
)

// Genesis describes block 0, written when the store is empty.
type Genesis struct {
	Timestamp uint64
	BaseFee   *uint256.Int
}

// Chain is an instant-seal chain: every mined block is final. It is the host
// the snapshot service reads from and truncates.
type Chain struct {
	// prodMu is held by every user-driven mutation (mining, time travel,
	// next-block overrides) and shared with the snapshot service through
	// Locker, so a snapshot or revert never interleaves with them.
	prodMu sync.Mutex

	mu       sync.Mutex
	store    store.BlockStore
	clock    *clock.VirtualClock
	eventBus *events.EventBus

	pendingBaseFee   *uint256.Int
	pendingTimestamp *uint64
}

var (
	_ snapshot.HeadReader      = (*Chain)(nil)
	_ snapshot.Backend         = (*Chain)(nil)
	_ snapshot.VirtualClock    = (*Chain)(nil)
	_ snapshot.OverridesSource = (*Chain)(nil)
)

// Open wraps bs, writing genesis first when bs holds no blocks.
func Open(bs store.BlockStore, clk *clock.VirtualClock, genesis Genesis, eventBus *events.EventBus) (*Chain, error) {
	if bs == nil {
		return nil, fmt.Errorf("block store cannot be nil")
	}
	if clk == nil {
		clk = clock.New(nil)
	}

	c := &Chain{
		store:    bs,
		clock:    clk,
		eventBus: eventBus,
	}

	if _, ok := bs.BestNumber(); !ok {
		g := block.Genesis(genesis.Timestamp, genesis.BaseFee)
		if err := bs.Append(g); err != nil {
			return nil, fmt.Errorf("failed to write genesis: %w", err)
		}
		if err := bs.MarkFinalized(0); err != nil {
			return nil, fmt.Errorf("failed to finalize genesis: %w", err)
		}
		logx.Info("DEVCHAIN", fmt.Sprintf("Genesis written | timestamp=%d | hash=%s", g.Timestamp, g.HashHex()))
	}

	best, _ := bs.BestNumber()
	monitoring.SetBlockHeight(best)
	return c, nil
}

// BestNumber returns the head block number.
func (c *Chain) BestNumber(ctx context.Context) (uint64, error) {
	best, ok := c.store.BestNumber()
	if !ok {
		return 0, store.ErrEmptyStore
	}
	return best, nil
}

// Head returns the head block.
func (c *Chain) Head(ctx context.Context) (*block.Block, error) {
	return c.store.Head()
}

// BlockByNumber returns the stored block at number.
func (c *Chain) BlockByNumber(ctx context.Context, number uint64) (*block.Block, error) {
	return c.store.Block(number)
}

// Locker returns the lock that serializes block production and the other
// user-driven mutations. The snapshot service takes it around Snapshot and Revert.
func (c *Chain) Locker() sync.Locker {
	return &c.prodMu
}

// Mine seals one block on top of the head. Queued overrides are consumed.
func (c *Chain) Mine(ctx context.Context) (*block.Block, error) {
	c.prodMu.Lock()
	defer c.prodMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	parent, err := c.store.Head()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeHostFailure, errors.ErrMsgMineFailed)
	}

	timestamp := uint64(c.clock.Now().Unix())
	if c.pendingTimestamp != nil {
		timestamp = *c.pendingTimestamp
	}
	if timestamp < parent.Timestamp {
		timestamp = parent.Timestamp
	}

	baseFee := parent.BaseFee
	if c.pendingBaseFee != nil {
		baseFee = c.pendingBaseFee
	}

	b := block.Assemble(parent.Number+1, parent.Hash, timestamp, baseFee)
	if err := c.store.Append(b); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeHostFailure, errors.ErrMsgMineFailed)
	}
	if err := c.store.MarkFinalized(b.Number); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeHostFailure, errors.ErrMsgMineFailed)
	}

	c.pendingBaseFee = nil
	c.pendingTimestamp = nil

	monitoring.SetBlockHeight(b.Number)
	logx.Info("DEVCHAIN", fmt.Sprintf("Mined block | number=%d | timestamp=%d | base_fee=%s | hash=%s", b.Number, b.Timestamp, b.BaseFee.Dec(), b.HashHex()))
	c.eventBus.Publish(events.NewBlockMined(b.Number, b.HashHex()))
	return b, nil
}

// Revert removes the top n blocks from storage.
func (c *Chain) Revert(ctx context.Context, n uint64, finalize bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Revert(n, finalize); err != nil {
		return err
	}

	best, _ := c.store.BestNumber()
	monitoring.SetBlockHeight(best)
	if n > 0 {
		c.eventBus.Publish(events.NewChainReverted(best, n))
	}
	return nil
}

func (c *Chain) Offset() int64 {
	return c.clock.Offset()
}

func (c *Chain) SetOffset(seconds int64) {
	c.clock.SetOffset(seconds)
}

// IncreaseTime moves the virtual clock forward and returns the total offset.
func (c *Chain) IncreaseTime(seconds int64) (int64, error) {
	if seconds < 0 {
		return 0, errors.NewError(errors.ErrCodeInvalidRequest, errors.ErrMsgNegativeTime)
	}

	c.prodMu.Lock()
	defer c.prodMu.Unlock()

	offset, err := c.clock.Advance(seconds)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInvalidRequest,
			fmt.Sprintf("%s: offset %d + %d exceeds %d", errors.ErrMsgTimeOverflow, offset, seconds, clock.MaxOffset))
	}
	logx.Info("DEVCHAIN", fmt.Sprintf("Clock advanced | seconds=%d | offset=%d", seconds, offset))
	return offset, nil
}

// PendingOverrides returns copies of the values queued for the next block.
func (c *Chain) PendingOverrides() snapshot.Overrides {
	c.mu.Lock()
	defer c.mu.Unlock()

	var o snapshot.Overrides
	if c.pendingBaseFee != nil {
		o.BaseFee = new(uint256.Int).Set(c.pendingBaseFee)
	}
	if c.pendingTimestamp != nil {
		ts := *c.pendingTimestamp
		o.Timestamp = &ts
	}
	return o
}

// SetPendingOverrides replaces both queued values, clearing any left nil.
func (c *Chain) SetPendingOverrides(o snapshot.Overrides) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pendingBaseFee = nil
	if o.BaseFee != nil {
		c.pendingBaseFee = new(uint256.Int).Set(o.BaseFee)
	}
	c.pendingTimestamp = nil
	if o.Timestamp != nil {
		ts := *o.Timestamp
		c.pendingTimestamp = &ts
	}
}

// SetNextBlockTimestamp fixes the timestamp of the next mined block only.
func (c *Chain) SetNextBlockTimestamp(ctx context.Context, timestamp uint64) error {
	c.prodMu.Lock()
	defer c.prodMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	head, err := c.store.Head()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeHostFailure, errors.ErrMsgChainHead)
	}
	if timestamp < head.Timestamp {
		return errors.NewError(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("%s: %d < %d", errors.ErrMsgTimestampTooLow, timestamp, head.Timestamp))
	}
	c.pendingTimestamp = &timestamp
	return nil
}

// SetNextBlockBaseFee fixes the base fee of the next mined block only. The
// fee must fit in 128 bits.
func (c *Chain) SetNextBlockBaseFee(fee *uint256.Int) error {
	if fee == nil {
		return errors.NewError(errors.ErrCodeInvalidRequest, errors.ErrMsgInvalidRequest)
	}
	if fee.BitLen() > 128 {
		return errors.NewError(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("%s: %d bits", errors.ErrMsgBaseFeeTooLarge, fee.BitLen()))
	}

	c.prodMu.Lock()
	defer c.prodMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pendingBaseFee = new(uint256.Int).Set(fee)
	return nil
}

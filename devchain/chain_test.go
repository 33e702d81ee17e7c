package devchain

import (
	"bytes"
	"context"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mezonai/devnode/clock"
	"github.com/mezonai/devnode/db"
	"github.com/mezonai/devnode/errors"
	"github.com/mezonai/devnode/events"
	"github.com/mezonai/devnode/logx"
	"github.com/mezonai/devnode/snapshot"
	"github.com/mezonai/devnode/store"
)

var genesisTime = time.Unix(1_700_000_000, 0)

func newTestChain(t *testing.T) (*Chain, *clock.VirtualClock) {
	t.Helper()
	provider, err := db.NewMemLevelDBProvider()
	require.NoError(t, err)
	bs, err := store.NewGenericBlockStore(provider)
	require.NoError(t, err)
	t.Cleanup(bs.MustClose)

	clk := clock.NewFixed(genesisTime)
	chain, err := Open(bs, clk, Genesis{
		Timestamp: uint64(genesisTime.Unix()),
		BaseFee:   uint256.NewInt(1_000_000_000),
	}, nil)
	require.NoError(t, err)
	return chain, clk
}

func mineN(t *testing.T, c *Chain, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := c.Mine(context.Background())
		require.NoError(t, err)
	}
}

func TestOpenWritesGenesisOnce(t *testing.T) {
	provider, err := db.NewMemLevelDBProvider()
	require.NoError(t, err)
	bs, err := store.NewGenericBlockStore(provider)
	require.NoError(t, err)
	defer bs.MustClose()

	c, err := Open(bs, nil, Genesis{Timestamp: 5}, nil)
	require.NoError(t, err)
	mineN(t, c, 2)

	reopened, err := Open(bs, nil, Genesis{Timestamp: 5}, nil)
	require.NoError(t, err)
	best, err := reopened.BestNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), best)
}

func TestMineUsesClockAndParentBaseFee(t *testing.T) {
	c, clk := newTestChain(t)
	clk.SetOffset(12)

	b, err := c.Mine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), b.Number)
	assert.Equal(t, uint64(genesisTime.Unix()+12), b.Timestamp)
	assert.Equal(t, uint64(1_000_000_000), b.BaseFee.Uint64())

	genesis, err := c.BlockByNumber(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, genesis.Hash, b.ParentHash)
}

func TestMineNeverGoesBackInTime(t *testing.T) {
	c, clk := newTestChain(t)
	clk.SetOffset(100)
	mineN(t, c, 1)

	clk.SetOffset(0)
	b, err := c.Mine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(genesisTime.Unix()+100), b.Timestamp)
}

func TestOverridesApplyToNextBlockOnly(t *testing.T) {
	c, _ := newTestChain(t)
	ctx := context.Background()

	ts := uint64(genesisTime.Unix() + 500)
	require.NoError(t, c.SetNextBlockTimestamp(ctx, ts))
	require.NoError(t, c.SetNextBlockBaseFee(uint256.NewInt(7)))

	b, err := c.Mine(ctx)
	require.NoError(t, err)
	assert.Equal(t, ts, b.Timestamp)
	assert.Equal(t, uint64(7), b.BaseFee.Uint64())

	pending := c.PendingOverrides()
	assert.Nil(t, pending.BaseFee)
	assert.Nil(t, pending.Timestamp)

	// base fee carries over from the parent, timestamp does not regress
	b, err = c.Mine(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), b.BaseFee.Uint64())
	assert.Equal(t, ts, b.Timestamp)
}

func TestSetNextBlockTimestampRejectsPast(t *testing.T) {
	c, _ := newTestChain(t)

	err := c.SetNextBlockTimestamp(context.Background(), uint64(genesisTime.Unix()-1))
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidRequest))
	assert.Nil(t, c.PendingOverrides().Timestamp)
}

func TestIncreaseTime(t *testing.T) {
	c, clk := newTestChain(t)

	offset, err := c.IncreaseTime(60)
	require.NoError(t, err)
	assert.Equal(t, int64(60), offset)
	assert.Equal(t, int64(60), clk.Offset())

	_, err = c.IncreaseTime(-1)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidRequest))
	assert.Equal(t, int64(60), c.Offset())
}

func TestIncreaseTimeRejectsOverflow(t *testing.T) {
	c, clk := newTestChain(t)

	_, err := c.IncreaseTime(math.MaxInt64)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidRequest))
	assert.ErrorIs(t, err, clock.ErrOffsetOutOfRange)
	assert.Equal(t, int64(0), c.Offset())

	offset, err := c.IncreaseTime(clock.MaxOffset - 10)
	require.NoError(t, err)
	assert.Equal(t, clock.MaxOffset-10, offset)

	// a second large jump must not wrap the offset negative
	_, err = c.IncreaseTime(clock.MaxOffset - 10)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidRequest))
	assert.Equal(t, clock.MaxOffset-10, c.Offset())
	assert.True(t, clk.Now().After(genesisTime))
}

func TestLogLinesAreKeyValue(t *testing.T) {
	var buf bytes.Buffer
	logx.SetOutput(&buf)
	defer logx.SetOutput(os.Stderr)

	c, _ := newTestChain(t)
	_, err := c.IncreaseTime(60)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Genesis written | timestamp=1700000000 | hash=0x")
	assert.Contains(t, out, "Clock advanced | seconds=60 | offset=60")
}

func TestIncreaseTimeBeyondDurationRange(t *testing.T) {
	c, clk := newTestChain(t)

	_, err := c.IncreaseTime(10_000_000_000)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidRequest))
	assert.Equal(t, genesisTime, clk.Now())

	b, err := c.Mine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(genesisTime.Unix()), b.Timestamp)
}

func TestSetNextBlockBaseFeeRejectsOver128Bits(t *testing.T) {
	c, _ := newTestChain(t)

	maxU128 := new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
	require.NoError(t, c.SetNextBlockBaseFee(maxU128))
	assert.Equal(t, maxU128, c.PendingOverrides().BaseFee)

	tooBig := new(uint256.Int).Lsh(uint256.NewInt(1), 208)
	err := c.SetNextBlockBaseFee(tooBig)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidRequest))
	assert.Equal(t, maxU128, c.PendingOverrides().BaseFee)

	err = c.SetNextBlockBaseFee(nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidRequest))
}

func TestPendingOverridesAreCopies(t *testing.T) {
	c, _ := newTestChain(t)
	require.NoError(t, c.SetNextBlockBaseFee(uint256.NewInt(3)))

	o := c.PendingOverrides()
	o.BaseFee.SetUint64(99)
	assert.Equal(t, uint64(3), c.PendingOverrides().BaseFee.Uint64())
}

func TestRevertPublishesEvent(t *testing.T) {
	c, _ := newTestChain(t)
	bus := events.NewEventBus()
	c.eventBus = bus
	_, ch := bus.Subscribe()

	mineN(t, c, 3)
	for i := 0; i < 3; i++ {
		ev := <-ch
		assert.Equal(t, events.EventBlockMined, ev.Type())
	}

	require.NoError(t, c.Revert(context.Background(), 2, true))
	ev := <-ch
	reverted, ok := ev.(*events.ChainReverted)
	require.True(t, ok)
	assert.Equal(t, uint64(1), reverted.BlockNumber())
	assert.Equal(t, uint64(2), reverted.Removed())
}

func TestRevertTooDeep(t *testing.T) {
	c, _ := newTestChain(t)
	mineN(t, c, 2)

	err := c.Revert(context.Background(), 3, true)
	assert.ErrorIs(t, err, store.ErrRevertTooDeep)
	best, _ := c.BestNumber(context.Background())
	assert.Equal(t, uint64(2), best)
}

func TestSnapshotRevertRoundTrip(t *testing.T) {
	c, clk := newTestChain(t)
	ctx := context.Background()
	svc := snapshot.NewService(c, c, snapshot.WithClock(c), snapshot.WithOverrides(c), snapshot.WithLocker(c.Locker()))

	mineN(t, c, 2)
	require.NoError(t, c.SetNextBlockBaseFee(uint256.NewInt(42)))
	clk.SetOffset(30)

	id, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
	headAtSnapshot, err := c.Head(ctx)
	require.NoError(t, err)

	// diverge: consume the override, move time, mine more
	mineN(t, c, 4)
	_, err = c.IncreaseTime(3600)
	require.NoError(t, err)

	ok, err := svc.Revert(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	head, err := c.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, headAtSnapshot.Hash, head.Hash)
	assert.Equal(t, int64(30), c.Offset())
	require.NotNil(t, c.PendingOverrides().BaseFee)
	assert.Equal(t, uint64(42), c.PendingOverrides().BaseFee.Uint64())

	// the override is applied again on the replayed block
	b, err := c.Mine(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), b.Number)
	assert.Equal(t, uint64(42), b.BaseFee.Uint64())

	ok, err = svc.Revert(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentSnapshotsWhileMining(t *testing.T) {
	c, _ := newTestChain(t)
	ctx := context.Background()
	svc := snapshot.NewService(c, c, snapshot.WithClock(c), snapshot.WithOverrides(c), snapshot.WithLocker(c.Locker()))

	const n = 50
	var wg sync.WaitGroup
	ids := make(chan uint64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := svc.Snapshot(ctx)
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			_, err := c.Mine(ctx)
			assert.NoError(t, err)
		}
	}()
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool)
	for id := range ids {
		assert.False(t, seen[id])
		seen[id] = true
		assert.True(t, id >= 1 && id <= n)
	}
	assert.Len(t, seen, n)

	// reverting to the first snapshot always lands at or below the current head
	ok, err := svc.Revert(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, svc.Len())
}

// minesAfterHeadRead starts a Mine right after the first armed head read and
// gives it time to run before returning.
type minesAfterHeadRead struct {
	*Chain
	armed bool
	mined chan error
}

func (h *minesAfterHeadRead) BestNumber(ctx context.Context) (uint64, error) {
	best, err := h.Chain.BestNumber(ctx)
	if h.armed {
		h.armed = false
		go func() {
			_, err := h.Chain.Mine(ctx)
			h.mined <- err
		}()
		time.Sleep(50 * time.Millisecond)
	}
	return best, err
}

// headAfterRevert records the head right after each truncation.
type headAfterRevert struct {
	*Chain
	heads []uint64
}

func (b *headAfterRevert) Revert(ctx context.Context, n uint64, finalize bool) error {
	if err := b.Chain.Revert(ctx, n, finalize); err != nil {
		return err
	}
	best, err := b.Chain.BestNumber(ctx)
	if err != nil {
		return err
	}
	b.heads = append(b.heads, best)
	return nil
}

func TestMineDuringRevertWaitsForTruncation(t *testing.T) {
	c, _ := newTestChain(t)
	ctx := context.Background()

	head := &minesAfterHeadRead{Chain: c, mined: make(chan error, 1)}
	backend := &headAfterRevert{Chain: c}
	svc := snapshot.NewService(head, backend, snapshot.WithLocker(c.Locker()))

	id, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	genesis, err := c.Head(ctx)
	require.NoError(t, err)

	mineN(t, c, 3)
	head.armed = true

	ok, err := svc.Revert(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []uint64{0}, backend.heads)

	// the concurrent block lands on top of the restored head
	require.NoError(t, <-head.mined)
	b, err := c.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), b.Number)
	assert.Equal(t, genesis.Hash, b.ParentHash)
}

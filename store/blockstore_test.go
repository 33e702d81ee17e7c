package store

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mezonai/devnode/block"
	"github.com/mezonai/devnode/db"
)

func newTestStore(t *testing.T) (*GenericBlockStore, *db.LevelDBProvider) {
	t.Helper()
	provider, err := db.NewMemLevelDBProvider()
	require.NoError(t, err)
	bs, err := NewGenericBlockStore(provider)
	require.NoError(t, err)
	t.Cleanup(bs.MustClose)
	return bs, provider
}

// appendChain stores genesis plus n blocks and returns the head.
func appendChain(t *testing.T, bs *GenericBlockStore, n uint64) *block.Block {
	t.Helper()
	head := block.Genesis(1000, uint256.NewInt(10))
	require.NoError(t, bs.Append(head))
	for i := uint64(1); i <= n; i++ {
		head = block.Assemble(i, head.Hash, 1000+i, head.BaseFee)
		require.NoError(t, bs.Append(head))
		require.NoError(t, bs.MarkFinalized(i))
	}
	return head
}

func TestEmptyStore(t *testing.T) {
	bs, _ := newTestStore(t)

	_, ok := bs.BestNumber()
	assert.False(t, ok)
	_, err := bs.Head()
	assert.ErrorIs(t, err, ErrEmptyStore)
	assert.ErrorIs(t, bs.Revert(1, true), ErrEmptyStore)
}

func TestAppendRequiresGenesisFirst(t *testing.T) {
	bs, _ := newTestStore(t)

	err := bs.Append(block.Assemble(1, [32]byte{}, 0, nil))
	assert.ErrorIs(t, err, ErrNonContiguous)
}

func TestAppendAndRead(t *testing.T) {
	bs, _ := newTestStore(t)
	head := appendChain(t, bs, 5)

	best, ok := bs.BestNumber()
	require.True(t, ok)
	assert.Equal(t, uint64(5), best)
	assert.Equal(t, uint64(5), bs.LatestFinalized())

	got, err := bs.Head()
	require.NoError(t, err)
	assert.Equal(t, head.Hash, got.Hash)

	b3, err := bs.Block(3)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), b3.Number)

	_, err = bs.Block(6)
	assert.ErrorIs(t, err, ErrBlockNotFound)
}

func TestAppendRejectsGapsAndForks(t *testing.T) {
	bs, _ := newTestStore(t)
	head := appendChain(t, bs, 2)

	err := bs.Append(block.Assemble(4, head.Hash, 0, nil))
	assert.ErrorIs(t, err, ErrNonContiguous)

	err = bs.Append(block.Assemble(3, [32]byte{0xff}, 0, nil))
	assert.ErrorIs(t, err, ErrParentMismatch)

	best, _ := bs.BestNumber()
	assert.Equal(t, uint64(2), best)
}

func TestRevertFinalize(t *testing.T) {
	bs, _ := newTestStore(t)
	appendChain(t, bs, 10)

	require.NoError(t, bs.Revert(4, true))

	best, _ := bs.BestNumber()
	assert.Equal(t, uint64(6), best)
	assert.Equal(t, uint64(6), bs.LatestFinalized())
	for n := uint64(7); n <= 10; n++ {
		_, err := bs.Block(n)
		assert.ErrorIs(t, err, ErrBlockNotFound)
	}
	_, err := bs.Block(6)
	assert.NoError(t, err)
}

func TestRevertWithoutFinalizeClampsFinalized(t *testing.T) {
	bs, _ := newTestStore(t)
	appendChain(t, bs, 10)
	require.NoError(t, bs.MarkFinalized(3))

	require.NoError(t, bs.Revert(2, false))
	assert.Equal(t, uint64(3), bs.LatestFinalized())

	require.NoError(t, bs.Revert(6, false))
	assert.Equal(t, uint64(2), bs.LatestFinalized())
}

func TestRevertZeroWithoutFinalizeIsNoop(t *testing.T) {
	bs, _ := newTestStore(t)
	appendChain(t, bs, 3)
	require.NoError(t, bs.MarkFinalized(1))

	require.NoError(t, bs.Revert(0, false))
	best, _ := bs.BestNumber()
	assert.Equal(t, uint64(3), best)
	assert.Equal(t, uint64(1), bs.LatestFinalized())
}

func TestRevertZeroFinalizesHead(t *testing.T) {
	bs, provider := newTestStore(t)
	appendChain(t, bs, 3)
	require.NoError(t, bs.MarkFinalized(1))

	require.NoError(t, bs.Revert(0, true))
	best, _ := bs.BestNumber()
	assert.Equal(t, uint64(3), best)
	assert.Equal(t, uint64(3), bs.LatestFinalized())

	reopened, err := NewGenericBlockStore(provider)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), reopened.LatestFinalized())
}

func TestRevertZeroOnEmptyStore(t *testing.T) {
	bs, _ := newTestStore(t)

	assert.NoError(t, bs.Revert(0, true))
	_, ok := bs.BestNumber()
	assert.False(t, ok)
}

func TestRevertPastGenesisLeavesStoreUntouched(t *testing.T) {
	bs, _ := newTestStore(t)
	appendChain(t, bs, 3)

	err := bs.Revert(4, true)
	assert.ErrorIs(t, err, ErrRevertTooDeep)

	best, _ := bs.BestNumber()
	assert.Equal(t, uint64(3), best)
	_, err = bs.Block(3)
	assert.NoError(t, err)
}

func TestRevertThenAppendContinues(t *testing.T) {
	bs, _ := newTestStore(t)
	appendChain(t, bs, 5)
	require.NoError(t, bs.Revert(3, true))

	parent, err := bs.Head()
	require.NoError(t, err)
	next := block.Assemble(3, parent.Hash, 2000, parent.BaseFee)
	require.NoError(t, bs.Append(next))

	got, err := bs.Block(3)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), got.Timestamp)
}

func TestMetaSurvivesReopen(t *testing.T) {
	provider, err := db.NewMemLevelDBProvider()
	require.NoError(t, err)
	defer provider.Close()

	bs, err := NewGenericBlockStore(provider)
	require.NoError(t, err)
	appendChain(t, bs, 4)
	require.NoError(t, bs.Revert(1, true))

	reopened, err := NewGenericBlockStore(provider)
	require.NoError(t, err)
	best, ok := reopened.BestNumber()
	require.True(t, ok)
	assert.Equal(t, uint64(3), best)
	assert.Equal(t, uint64(3), reopened.LatestFinalized())
}

func TestReopenDetectsMissingHeadBlock(t *testing.T) {
	provider, err := db.NewMemLevelDBProvider()
	require.NoError(t, err)
	defer provider.Close()

	bs, err := NewGenericBlockStore(provider)
	require.NoError(t, err)
	appendChain(t, bs, 2)

	require.NoError(t, provider.Put(metaKey(BlockMetaKeyLatestStore), encodeNumber(9)))
	_, err = NewGenericBlockStore(provider)
	assert.ErrorIs(t, err, ErrMissingHead)
}

func TestReopenRejectsCorruptMeta(t *testing.T) {
	provider, err := db.NewMemLevelDBProvider()
	require.NoError(t, err)
	defer provider.Close()

	require.NoError(t, provider.Put(metaKey(BlockMetaKeyLatestFinalized), []byte{1, 2, 3}))
	_, err = NewGenericBlockStore(provider)
	assert.Error(t, err)
}

func TestMarkFinalizedUnknownBlock(t *testing.T) {
	bs, _ := newTestStore(t)
	appendChain(t, bs, 1)
	assert.ErrorIs(t, bs.MarkFinalized(9), ErrBlockNotFound)
}

func TestStoreConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     StoreConfig
		wantErr bool
	}{
		{"memory", StoreConfig{Type: MemoryStoreType}, false},
		{"leveldb", StoreConfig{Type: LevelDBStoreType, Directory: "/tmp/x"}, false},
		{"leveldb without dir", StoreConfig{Type: LevelDBStoreType}, true},
		{"redis", StoreConfig{Type: RedisStoreType, RedisAddress: "localhost:6379"}, false},
		{"redis without address", StoreConfig{Type: RedisStoreType}, true},
		{"empty", StoreConfig{}, true},
		{"unknown", StoreConfig{Type: "bolt"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreateBlockStoreMemory(t *testing.T) {
	bs, err := CreateBlockStore(&StoreConfig{Type: MemoryStoreType})
	require.NoError(t, err)
	defer bs.MustClose()

	appendChain(t, bs, 1)
	best, _ := bs.BestNumber()
	assert.Equal(t, uint64(1), best)
}

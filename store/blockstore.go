package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/mezonai/devnode/block"
	"github.com/mezonai/devnode/db"
	"github.com/mezonai/devnode/logx"
)

var (
	ErrEmptyStore     = errors.New("block store is empty")
	ErrBlockNotFound  = errors.New("block not found")
	ErrNonContiguous  = errors.New("block does not extend the head")
	ErrRevertTooDeep  = errors.New("cannot revert past genesis")
	ErrParentMismatch = errors.New("parent hash does not match head")
	ErrMissingHead    = errors.New("recorded head block is not stored")
)

// BlockStore is an append-only chain of blocks with a single truncation primitive.
type BlockStore interface {
	Append(b *block.Block) error
	Block(number uint64) (*block.Block, error)
	Head() (*block.Block, error)
	BestNumber() (uint64, bool)
	LatestFinalized() uint64
	MarkFinalized(number uint64) error
	Revert(n uint64, finalize bool) error
	MustClose()
}

// GenericBlockStore is a database-agnostic implementation that uses DatabaseProvider
// This allows it to work with any database backend (LevelDB, RocksDB, Redis)
type GenericBlockStore struct {
	provider        db.DatabaseProvider
	txm             *db.DBTxManager
	mu              sync.RWMutex
	head            uint64
	hasHead         bool
	latestFinalized uint64
}

// NewGenericBlockStore creates a new generic block store with the given provider
func NewGenericBlockStore(provider db.DatabaseProvider) (*GenericBlockStore, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}

	store := &GenericBlockStore{
		provider: provider,
		txm:      db.NewDBTxManager(provider),
	}

	if err := store.loadMeta(); err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}

	return store, nil
}

func metaKey(name string) []byte {
	return []byte(PrefixBlockMeta + name)
}

func encodeNumber(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

func decodeMetaNumber(name string, value []byte) (uint64, bool, error) {
	if value == nil {
		return 0, false, nil
	}
	if len(value) != 8 {
		return 0, false, fmt.Errorf("invalid %s value length: %d", name, len(value))
	}
	return binary.BigEndian.Uint64(value), true, nil
}

// loadMeta reads the head and latest finalized numbers in one batch read and
// checks that the recorded head block is actually stored.
func (s *GenericBlockStore) loadMeta() error {
	headKey, finalizedKey := metaKey(BlockMetaKeyLatestStore), metaKey(BlockMetaKeyLatestFinalized)
	values, err := s.provider.GetBatch([][]byte{headKey, finalizedKey})
	if err != nil {
		return fmt.Errorf("failed to load block store metadata: %w", err)
	}

	head, ok, err := decodeMetaNumber(BlockMetaKeyLatestStore, values[string(headKey)])
	if err != nil {
		return err
	}
	finalized, _, err := decodeMetaNumber(BlockMetaKeyLatestFinalized, values[string(finalizedKey)])
	if err != nil {
		return err
	}

	if ok {
		exists, err := s.provider.Has(numberToBlockKey(head))
		if err != nil {
			return fmt.Errorf("failed to check head block %d: %w", head, err)
		}
		if !exists {
			return fmt.Errorf("head block %d: %w", head, ErrMissingHead)
		}
	}
	if finalized > head {
		finalized = head
	}

	s.head, s.hasHead = head, ok
	s.latestFinalized = finalized
	return nil
}

// numberToBlockKey converts a block number to a block storage key
func numberToBlockKey(number uint64) []byte {
	key := make([]byte, len(PrefixBlock)+8)
	copy(key, PrefixBlock)
	binary.BigEndian.PutUint64(key[len(PrefixBlock):], number)
	return key
}

func (s *GenericBlockStore) blockLocked(number uint64) (*block.Block, error) {
	value, err := s.provider.Get(numberToBlockKey(number))
	if err != nil {
		return nil, fmt.Errorf("failed to get block %d: %w", number, err)
	}
	if value == nil {
		return nil, fmt.Errorf("block %d: %w", number, ErrBlockNotFound)
	}
	return block.Decode(value)
}

// Block retrieves a block by number
func (s *GenericBlockStore) Block(number uint64) (*block.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.blockLocked(number)
}

// Head returns the highest stored block
func (s *GenericBlockStore) Head() (*block.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.hasHead {
		return nil, ErrEmptyStore
	}
	return s.blockLocked(s.head)
}

// BestNumber returns the head number, false when nothing was stored yet
func (s *GenericBlockStore) BestNumber() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.head, s.hasHead
}

// LatestFinalized returns the latest finalized block number
func (s *GenericBlockStore) LatestFinalized() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestFinalized
}

// Append stores b as the new head. The first block must be number 0 and every
// later block must be head+1 and point at the head's hash.
func (s *GenericBlockStore) Append(b *block.Block) error {
	if b == nil {
		return fmt.Errorf("block cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasHead {
		if b.Number != s.head+1 {
			return fmt.Errorf("block %d on head %d: %w", b.Number, s.head, ErrNonContiguous)
		}
		parent, err := s.blockLocked(s.head)
		if err != nil {
			return err
		}
		if parent.Hash != b.ParentHash {
			return fmt.Errorf("block %d: %w", b.Number, ErrParentMismatch)
		}
	} else if b.Number != 0 {
		return fmt.Errorf("first block must be genesis, got %d: %w", b.Number, ErrNonContiguous)
	}

	value, err := b.Encode()
	if err != nil {
		return fmt.Errorf("failed to marshal block: %w", err)
	}

	err = s.txm.WithBatch(func(batch db.DatabaseBatch) error {
		batch.Put(numberToBlockKey(b.Number), value)
		batch.Put(metaKey(BlockMetaKeyLatestStore), encodeNumber(b.Number))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store block %d: %w", b.Number, err)
	}

	s.head, s.hasHead = b.Number, true
	logx.Debug("BLOCKSTORE", fmt.Sprintf("Appended block | number=%d", b.Number))
	return nil
}

// MarkFinalized marks a stored block as finalized and updates metadata
func (s *GenericBlockStore) MarkFinalized(number uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasHead || number > s.head {
		return fmt.Errorf("block %d: %w", number, ErrBlockNotFound)
	}

	if err := s.provider.Put(metaKey(BlockMetaKeyLatestFinalized), encodeNumber(number)); err != nil {
		return fmt.Errorf("failed to update latest finalized: %w", err)
	}
	s.latestFinalized = number
	return nil
}

// Revert deletes the top n blocks in one batch. With finalize the new head
// becomes the latest finalized block, otherwise the finalized pointer is only
// lowered to the new head if it was above it. Asking for more blocks than sit
// above genesis fails and leaves the store untouched. Revert(0, false) is a
// no-op; Revert(0, true) only finalizes the current head.
func (s *GenericBlockStore) Revert(n uint64, finalize bool) error {
	if n == 0 && !finalize {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasHead {
		if n == 0 {
			return nil
		}
		return ErrEmptyStore
	}
	if n > s.head {
		return fmt.Errorf("revert %d blocks from head %d: %w", n, s.head, ErrRevertTooDeep)
	}

	newHead := s.head - n
	finalized := s.latestFinalized
	if finalize || finalized > newHead {
		finalized = newHead
	}

	err := s.txm.WithBatch(func(batch db.DatabaseBatch) error {
		for number := newHead + 1; number <= s.head; number++ {
			batch.Delete(numberToBlockKey(number))
		}
		batch.Put(metaKey(BlockMetaKeyLatestStore), encodeNumber(newHead))
		batch.Put(metaKey(BlockMetaKeyLatestFinalized), encodeNumber(finalized))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to revert %d blocks: %w", n, err)
	}

	logx.Info("BLOCKSTORE", fmt.Sprintf("Reverted blocks | removed=%d | head=%d | finalized=%d", n, newHead, finalized))
	s.head = newHead
	s.latestFinalized = finalized
	return nil
}

// MustClose Close closes the underlying database provider
func (s *GenericBlockStore) MustClose() {
	if err := s.provider.Close(); err != nil {
		logx.Error("BLOCKSTORE", fmt.Sprintf("Failed to close provider | error=%v", err))
	}
}

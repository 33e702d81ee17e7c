package checkpoint

import (
	"sync"

	"github.com/google/btree"
)

const btreeDegree = 8

// Store is an in-memory ordered registry of checkpoints. Ids come from a
// per-instance counter starting at 1 and are never handed out twice, even
// after the entry holding them has been purged.
type Store struct {
	mu     sync.Mutex
	nextID uint64
	tree   *btree.BTreeG[Checkpoint]
}

func byID(a, b Checkpoint) bool {
	return a.ID < b.ID
}

func NewStore() *Store {
	return &Store{
		nextID: 1,
		tree:   btree.NewG[Checkpoint](btreeDegree, byID),
	}
}

// AllocateID reserves the next id.
func (s *Store) AllocateID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	return id
}

// Put inserts cp, replacing any entry with the same id.
func (s *Store) Put(cp Checkpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tree.ReplaceOrInsert(cp.Copy())
}

// Get returns a copy of the checkpoint with the given id.
func (s *Store) Get(id uint64) (Checkpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.tree.Get(Checkpoint{ID: id})
	if !ok {
		return Checkpoint{}, false
	}
	return cp.Copy(), true
}

// PurgeFrom removes every checkpoint whose id is >= id and returns how many were removed.
func (s *Store) PurgeFrom(id uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []Checkpoint
	s.tree.AscendGreaterOrEqual(Checkpoint{ID: id}, func(cp Checkpoint) bool {
		stale = append(stale, cp)
		return true
	})
	for _, cp := range stale {
		s.tree.Delete(cp)
	}
	return len(stale)
}

// Len returns the number of checkpoints held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Len()
}

// IDs returns the held ids in ascending order.
func (s *Store) IDs() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]uint64, 0, s.tree.Len())
	s.tree.Ascend(func(cp Checkpoint) bool {
		ids = append(ids, cp.ID)
		return true
	})
	return ids
}

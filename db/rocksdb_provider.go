//go:build rocksdb
// +build rocksdb

package db

import (
	"fmt"
	"sync"

	"github.com/linxGnu/grocksdb"
)

// RocksDBProvider stores blocks in a RocksDB directory. Build with -tags rocksdb.
type RocksDBProvider struct {
	once sync.Once
	db   *grocksdb.DB
	ro   *grocksdb.ReadOptions
	wo   *grocksdb.WriteOptions
}

func NewRocksDBProvider(directory string) (DatabaseProvider, error) {
	opts := grocksdb.NewDefaultOptions()
	defer opts.Destroy()
	opts.SetCreateIfMissing(true)

	rdb, err := grocksdb.OpenDb(opts, directory)
	if err != nil {
		return nil, fmt.Errorf("failed to open RocksDB at %s: %w", directory, err)
	}

	wo := grocksdb.NewDefaultWriteOptions()
	// every block write and revert must survive a crash of the node
	wo.SetSync(true)

	return &RocksDBProvider{
		db: rdb,
		ro: grocksdb.NewDefaultReadOptions(),
		wo: wo,
	}, nil
}

// ownedCopy copies a RocksDB slice out before it is freed. Missing keys yield nil.
func ownedCopy(s *grocksdb.Slice) []byte {
	defer s.Free()
	if !s.Exists() {
		return nil
	}
	return append([]byte(nil), s.Data()...)
}

func (p *RocksDBProvider) Get(key []byte) ([]byte, error) {
	value, err := p.db.Get(p.ro, key)
	if err != nil {
		return nil, err
	}
	return ownedCopy(value), nil
}

// GetBatch reads keys with one MultiGet. Missing keys are absent from the map.
func (p *RocksDBProvider) GetBatch(keys [][]byte) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	values, err := p.db.MultiGet(p.ro, keys...)
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		if data := ownedCopy(v); data != nil {
			result[string(keys[i])] = data
		}
	}
	return result, nil
}

func (p *RocksDBProvider) Put(key, value []byte) error {
	return p.db.Put(p.wo, key, value)
}

func (p *RocksDBProvider) Delete(key []byte) error {
	return p.db.Delete(p.wo, key)
}

func (p *RocksDBProvider) Has(key []byte) (bool, error) {
	value, err := p.db.Get(p.ro, key)
	if err != nil {
		return false, err
	}
	return ownedCopy(value) != nil, nil
}

// Close is idempotent.
func (p *RocksDBProvider) Close() error {
	p.once.Do(func() {
		p.ro.Destroy()
		p.wo.Destroy()
		p.db.Close()
	})
	return nil
}

func (p *RocksDBProvider) Batch() DatabaseBatch {
	return &RocksDBBatch{
		wb: grocksdb.NewWriteBatch(),
		p:  p,
	}
}

// RocksDBBatch buffers block writes and deletes until Write.
type RocksDBBatch struct {
	wb *grocksdb.WriteBatch
	p  *RocksDBProvider
}

func (b *RocksDBBatch) Put(key, value []byte) { b.wb.Put(key, value) }
func (b *RocksDBBatch) Delete(key []byte)     { b.wb.Delete(key) }
func (b *RocksDBBatch) Reset()                { b.wb.Clear() }

func (b *RocksDBBatch) Write() error {
	return b.p.db.Write(b.p.wo, b.wb)
}

func (b *RocksDBBatch) Close() error {
	b.wb.Destroy()
	return nil
}

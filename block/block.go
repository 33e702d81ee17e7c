package block

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/mezonai/devnode/jsonx"
)

type Block struct {
	Number     uint64       `json:"number"`
	ParentHash [32]byte     `json:"parent_hash"`
	Timestamp  uint64       `json:"timestamp"` // unix seconds, virtual clock
	BaseFee    *uint256.Int `json:"base_fee"`
	Hash       [32]byte     `json:"hash"`
}

// Assemble builds the block at number on top of parentHash and seals its hash.
func Assemble(number uint64, parentHash [32]byte, timestamp uint64, baseFee *uint256.Int) *Block {
	b := &Block{
		Number:     number,
		ParentHash: parentHash,
		Timestamp:  timestamp,
		BaseFee:    new(uint256.Int),
	}
	if baseFee != nil {
		b.BaseFee.Set(baseFee)
	}
	b.Hash = b.computeHash()
	return b
}

// Genesis returns block 0.
func Genesis(timestamp uint64, baseFee *uint256.Int) *Block {
	return Assemble(0, [32]byte{}, timestamp, baseFee)
}

func (b *Block) computeHash() [32]byte {
	h := sha256.New()
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, b.Number)
	h.Write(buf)
	h.Write(b.ParentHash[:])
	binary.BigEndian.PutUint64(buf, b.Timestamp)
	h.Write(buf)
	fee := b.BaseFee.Bytes32()
	h.Write(fee[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Verify reports whether the stored hash matches the block contents.
func (b *Block) Verify() bool {
	return b.BaseFee != nil && b.computeHash() == b.Hash
}

func (b *Block) HashHex() string {
	return "0x" + hex.EncodeToString(b.Hash[:])
}

func (b *Block) Encode() ([]byte, error) {
	return jsonx.Marshal(b)
}

func Decode(data []byte) (*Block, error) {
	var b Block
	if err := jsonx.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to unmarshal block: %w", err)
	}
	if b.BaseFee == nil {
		b.BaseFee = new(uint256.Int)
	}
	return &b, nil
}

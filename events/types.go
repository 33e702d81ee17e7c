package events

import (
	"time"
)

// EventType is an enum-like string type for chain events
type EventType string

const (
	EventBlockMined       EventType = "BlockMined"
	EventChainReverted    EventType = "ChainReverted"
	EventSnapshotTaken    EventType = "SnapshotTaken"
	EventSnapshotRestored EventType = "SnapshotRestored"
)

// BlockchainEvent represents any event that occurs on the dev chain
type BlockchainEvent interface {
	Type() EventType
	Timestamp() time.Time
	BlockNumber() uint64
}

type baseEvent struct {
	blockNumber uint64
	timestamp   time.Time
}

func (e *baseEvent) Timestamp() time.Time {
	return e.timestamp
}

func (e *baseEvent) BlockNumber() uint64 {
	return e.blockNumber
}

// BlockMined event when a block is appended to the chain
type BlockMined struct {
	baseEvent
	blockHash string
}

func NewBlockMined(number uint64, blockHash string) *BlockMined {
	return &BlockMined{
		baseEvent: baseEvent{blockNumber: number, timestamp: time.Now()},
		blockHash: blockHash,
	}
}

func (e *BlockMined) Type() EventType {
	return EventBlockMined
}

func (e *BlockMined) BlockHash() string {
	return e.blockHash
}

// ChainReverted event when blocks are truncated from the head. BlockNumber is the new head.
type ChainReverted struct {
	baseEvent
	removed uint64
}

func NewChainReverted(newHead uint64, removed uint64) *ChainReverted {
	return &ChainReverted{
		baseEvent: baseEvent{blockNumber: newHead, timestamp: time.Now()},
		removed:   removed,
	}
}

func (e *ChainReverted) Type() EventType {
	return EventChainReverted
}

func (e *ChainReverted) Removed() uint64 {
	return e.removed
}

// SnapshotTaken event when a checkpoint is captured
type SnapshotTaken struct {
	baseEvent
	snapshotID uint64
}

func NewSnapshotTaken(snapshotID uint64, height uint64) *SnapshotTaken {
	return &SnapshotTaken{
		baseEvent:  baseEvent{blockNumber: height, timestamp: time.Now()},
		snapshotID: snapshotID,
	}
}

func (e *SnapshotTaken) Type() EventType {
	return EventSnapshotTaken
}

func (e *SnapshotTaken) SnapshotID() uint64 {
	return e.snapshotID
}

// SnapshotRestored event when the chain is reverted to a checkpoint
type SnapshotRestored struct {
	baseEvent
	snapshotID uint64
	purged     int
}

func NewSnapshotRestored(snapshotID uint64, height uint64, purged int) *SnapshotRestored {
	return &SnapshotRestored{
		baseEvent:  baseEvent{blockNumber: height, timestamp: time.Now()},
		snapshotID: snapshotID,
		purged:     purged,
	}
}

func (e *SnapshotRestored) Type() EventType {
	return EventSnapshotRestored
}

func (e *SnapshotRestored) SnapshotID() uint64 {
	return e.snapshotID
}

// Purged is the number of checkpoints dropped by the restore, the restored one included.
func (e *SnapshotRestored) Purged() int {
	return e.purged
}

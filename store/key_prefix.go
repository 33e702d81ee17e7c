package store

// Declare database key prefix for objects
const (
	PrefixBlockMeta             = "blk_meta:"
	PrefixBlock                 = "blk:"
	BlockMetaKeyLatestFinalized = "latest_finalized"
	BlockMetaKeyLatestStore     = "latest_store"
)

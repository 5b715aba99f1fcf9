// Package shards persists recording descriptors as period-bucketed JSON
// files, one file per decade (general collections) or per year (dense
// historical collections).
//
// Shards are the authoritative storage for the catalog: the in-memory index
// is always reconstructible from them. Writes merge with the existing shard
// and publish atomically, so readers never observe a half-written file.
package shards

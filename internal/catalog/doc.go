// Package catalog builds and serves the per-date index of tapes. It pulls
// descriptors through the remote searchers into on-disk shards, constructs
// tape entities lazily backed by the manifest loaders, and answers the
// queries the playback surfaces need: dates, best tape for a date,
// point-in-time lookup, and year summaries.
//
// The index is published as an immutable snapshot behind an atomic pointer.
// Readers never block; the background refresher swaps in a fresh snapshot
// after each successful update.
package catalog

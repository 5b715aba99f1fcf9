// Package tape models one playable recording: its descriptor, its lazily
// materialized track list, its sort score, and the synthetic set-break
// tracks spliced into long shows.
//
// A Tape is created from a shard descriptor without any network traffic.
// The first Tracks call materializes the track list through a manifest
// loader; scoring never forces that fetch.
package tape

// Package statestore persists appliance state in SQLite: the last player
// position per collection and the history of catalog refresh runs. The
// refresher seeds its min-gap timer from the last successful run so a
// restart does not immediately hit the remote archive.
//
// The schema is embedded and versioned; a version mismatch is surfaced as
// ErrSchemaMismatch rather than migrated in place. Delete the database to
// rebuild it.
package statestore

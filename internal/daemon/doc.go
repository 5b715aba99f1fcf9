// Package daemon assembles the appliance services: the state store, the
// catalog with its per-collection remote sources, the background
// refresher, and ntfy notifications. It enforces single-instance
// execution through a lock file.
package daemon

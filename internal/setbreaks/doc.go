// Package setbreaks loads the static set-break table: for a given artist and
// date it answers where the show happened, which songs closed a set, and
// when the show started.
//
// The table ships as a bundled CSV and can be replaced with a local file.
// It is read once at construction and never written.
package setbreaks

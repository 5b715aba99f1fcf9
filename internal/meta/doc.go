// Package meta fetches and caches per-recording file manifests.
//
// A manifest is fetched at most once per recording: the first tracks access
// reads the disk cache under <root>/<year>/<month>/<identifier>.json, falls
// back to the remote metadata endpoint, and caches the response atomically.
// Parsing the manifest into playable tracks happens in the tape package;
// this one owns transport and cache discipline.
package meta

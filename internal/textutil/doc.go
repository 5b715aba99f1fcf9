// Package textutil provides text processing utilities for title matching.
//
// The primary use cases are:
//   - Creating token-based fingerprints from song titles for comparison
//   - Computing cosine similarity between fingerprints
//   - Picking the closest title out of a track list for a break marker
//
// Fingerprints use term frequency vectors normalized for efficient
// comparison. Tokenization lowercases text and splits on non-alphanumeric
// characters; single-character tokens are dropped, so short song titles
// still fingerprint usefully.
package textutil

// Package remote speaks to the archive's search endpoints and hides their
// pagination and transient failures.
//
// Two Searcher implementations exist: ScrapeClient walks the cursor-based
// scrape endpoint used by archive.org-style collections, and PagedClient
// walks a page-numbered show API behind a bearer token. Both return flat
// descriptor sets with last-write-wins identity on the identifier field.
package remote

// Package archive keeps a history of scrape runs in SQLite and compares
// consecutive runs of a site to surface selector breakage and content
// changes.
//
// Each run stores its counts, per-field statuses, flattened values, a
// content hash of those values, and the formatted output compressed with
// zstd.
package archive

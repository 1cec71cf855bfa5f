// Package scrape wires URL normalization, site lookup, fetching,
// extraction, output and archiving into one call per facility.
package scrape

// Package main is the one-shot facility scraper CLI.
//
// Usage:
//
//	# Fetch and extract a configured site, print TOML
//	./scraper -config config.toml -url https://example-fablab.org
//
//	# Extract from a saved page with a site's rules
//	./scraper -config config.toml -html page.html -site example -format json
//
//	# Write dated output and record the run for change detection
//	./scraper -url example-fablab.org -organize -archive data/archive.db
package main
